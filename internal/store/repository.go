/**
 * @description
 * This file defines the `Repository` interface, the contract for all data
 * access the reseller-service needs. The application layer depends on this
 * interface rather than on PostgreSQL directly, which keeps the ledger and
 * orchestrator logic testable against in-memory fakes.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"time"

	"github.com/painelpro/reseller-service/internal/domain"
)

// Repository defines the set of methods for interacting with the database.
// Every ledger write executes as a single database transaction: either all of
// its balance updates and audit rows become visible, or none do.
type Repository interface {
	// Account methods
	FindAccountByID(ctx context.Context, accountID int64) (*domain.Account, error)
	FindAccountByUsername(ctx context.Context, username string) (*domain.Account, error)
	CreateAccount(ctx context.Context, params CreateAccountParams) (*domain.Account, error)
	UpdateAccount(ctx context.Context, accountID int64, params UpdateAccountParams) (*domain.Account, error)
	// UpdateAccountStatus reports whether the row actually changed, so
	// callers can fire status-change events only on real transitions.
	UpdateAccountStatus(ctx context.Context, accountID int64, status domain.AccountStatus) (bool, error)
	UpdateAccountCreator(ctx context.Context, accountID int64, newCreatorID int64) error
	DeleteAccount(ctx context.Context, accountID int64) error
	ListAccounts(ctx context.Context, opts domain.AccountListOptions) ([]domain.Account, error)
	FindExpiredActiveAccounts(ctx context.Context, limit int) ([]domain.Account, error)

	// Batched hierarchy lookups used by the role resolver and listings.
	FindRolesByIDs(ctx context.Context, accountIDs []int64) (map[int64]domain.Role, error)
	FindUsernamesByIDs(ctx context.Context, accountIDs []int64) (map[int64]string, error)

	// Ledger methods
	GetBalance(ctx context.Context, accountID int64) (*domain.Balance, error)
	// SetBalance is a compare-and-swap administrative write. It fails with
	// ErrBalanceConflict when the stored balance no longer matches
	// expectedPrior.
	SetBalance(ctx context.Context, accountID int64, newBalance int64, expectedPrior int64) error
	// RenewAccountWithCharge applies the provisioning charge (when
	// ChargeAmount > 0) and the expiry/status update in one database
	// transaction, so a failed charge leaves the account untouched.
	RenewAccountWithCharge(ctx context.Context, params RenewAccountParams) (*domain.Account, error)
	// TransferCredits moves Amount from one account to the other, locking
	// both balance rows, and writes exactly two transaction rows that
	// reference each other as counterparties.
	TransferCredits(ctx context.Context, params TransferCreditsParams) (*domain.TransferResult, error)
	// SetUnlimitedFlag toggles the unlimited flag and reports whether it
	// actually changed. Only a real change appends the informational
	// transaction row.
	SetUnlimitedFlag(ctx context.Context, params SetUnlimitedParams) (bool, *domain.Balance, error)
	FindTransactionsByAccountID(ctx context.Context, accountID int64, opts domain.TransactionListOptions) ([]domain.Transaction, error)

	// Lifecycle event methods
	CreateLifecycleEvent(ctx context.Context, event *domain.LifecycleEvent) error
	ListLifecycleEvents(ctx context.Context, opts domain.LifecycleEventListOptions) ([]domain.LifecycleEvent, error)

	// Integration settings methods
	GetIntegrationSettings(ctx context.Context) (*domain.IntegrationSettings, error)
	UpsertIntegrationSettings(ctx context.Context, params IntegrationSettingsParams) (*domain.IntegrationSettings, error)
}

// CreateAccountParams carries everything needed to provision an account.
// When ChargeAmount is non-zero the payer is debited inside the same database
// transaction that inserts the account, so an insufficient balance leaves no
// partial state behind.
type CreateAccountParams struct {
	Username      string
	PasswordHash  string
	Role          domain.Role
	CreatorID     *int64
	Status        domain.AccountStatus
	Email         *string
	Phone         *string
	Plan          *string
	CreditExpiry  *time.Time
	BillingExpiry *time.Time

	ChargeAmount      int64
	ChargePayerID     int64
	ChargeDescription string
	PerformedBy       int64
}

// UpdateAccountParams lists the mutable account fields. Nil means unchanged.
type UpdateAccountParams struct {
	Email         *string
	Phone         *string
	Plan          *string
	PasswordHash  *string
	Status        *domain.AccountStatus
	CreditExpiry  *time.Time
	BillingExpiry *time.Time
}

// RenewAccountParams describes a renewal: the new expiry plus the optional
// charge applied in the same database transaction.
type RenewAccountParams struct {
	AccountID         int64
	NewCreditExpiry   time.Time
	ChargeAmount      int64
	ChargePayerID     int64
	ChargeDescription string
	PerformedBy       int64
}

// TransferCreditsParams describes one normalized transfer: From is debited,
// To is credited, Amount is always positive.
type TransferCreditsParams struct {
	FromAccountID   int64
	ToAccountID     int64
	Amount          int64
	FromDescription string
	ToDescription   string
	PerformedBy     int64
}

// SetUnlimitedParams describes an unlimited-flag toggle.
type SetUnlimitedParams struct {
	AccountID   int64
	Value       bool
	Description string
	PerformedBy int64
}

// IntegrationSettingsParams carries the webhook configuration update.
type IntegrationSettingsParams struct {
	WebhookURL    string
	WebhookSecret string
	Enabled       bool
}
