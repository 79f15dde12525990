/**
 * @description
 * This file defines the ledger and lifecycle-notification domain models: the
 * immutable transaction audit record, the append-only lifecycle event log,
 * the webhook payload shape, and the DTOs for the credit operations.
 *
 * @notes
 * - Transaction amounts are signed: positive means credit added to the
 *   account, negative means credit spent. BalanceAfter captures the balance
 *   row at the instant the transaction was written, which is the invariant
 *   the reconciliation tests check.
 * - Transactions and lifecycle events carry no foreign key to accounts so
 *   both survive account deletion.
 */

package domain

import (
	"time"
)

// Transaction is one immutable row of the credit audit trail.
type Transaction struct {
	ID               int64     `json:"id"`
	AccountID        int64     `json:"account_id"`
	Amount           int64     `json:"amount"`
	BalanceAfter     int64     `json:"balance_after"`
	Description      string    `json:"description"`
	RelatedAccountID *int64    `json:"related_account_id,omitempty"`
	PerformedBy      int64     `json:"performed_by"`
	CreatedAt        time.Time `json:"created_at"`
}

// TransferResult carries both legs of a completed transfer. From is the
// debited side, To the credited side.
type TransferResult struct {
	From *Transaction `json:"from"`
	To   *Transaction `json:"to"`
}

// Lifecycle event types dispatched to the integration webhook.
const (
	EventCreateUser       = "create_user"
	EventDeleteUser       = "delete_user"
	EventUpdateUserStatus = "update_user_status"
)

// LifecycleEvent is one row of the append-only notification audit log.
// Exactly one row is written per attempted dispatch, whatever the outcome.
type LifecycleEvent struct {
	ID             int64     `json:"id"`
	EventType      string    `json:"event_type"`
	Endpoint       string    `json:"endpoint"`
	Payload        []byte    `json:"payload"`
	ResponseStatus *int      `json:"response_status,omitempty"`
	ResponseBody   *string   `json:"response_body,omitempty"`
	Error          *string   `json:"error,omitempty"`
	AccountID      int64     `json:"account_id"`
	CreatedAt      time.Time `json:"created_at"`
}

// WebhookPayload is the JSON body POSTed to the integration endpoint. Fields
// are snapshotted by the orchestrator before the triggering mutation returns,
// so a delete_user payload stays complete after the account row is gone.
type WebhookPayload struct {
	Event        string     `json:"event"`
	EventID      string     `json:"event_id"`
	UserID       int64      `json:"user_id"`
	Username     string     `json:"username,omitempty"`
	Role         string     `json:"role,omitempty"`
	Status       string     `json:"status,omitempty"`
	OldStatus    string     `json:"old_status,omitempty"`
	NewStatus    string     `json:"new_status,omitempty"`
	CreditExpiry *time.Time `json:"credit_expiry,omitempty"`
	Timestamp    time.Time  `json:"timestamp"`
}

// LifecycleEventListOptions controls pagination for the audit log endpoint.
type LifecycleEventListOptions struct {
	EventType string
	AccountID *int64
	Limit     int
	Offset    int
}

// IntegrationSettings is the operator-managed webhook configuration.
// The table holds a single row.
type IntegrationSettings struct {
	WebhookURL    string    `json:"webhook_url"`
	WebhookSecret string    `json:"-"`
	Enabled       bool      `json:"enabled"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// IntegrationSettingsRequest is the DTO for updating the webhook settings.
type IntegrationSettingsRequest struct {
	WebhookURL    string `json:"webhook_url" validate:"omitempty,url,max=2048"`
	WebhookSecret string `json:"webhook_secret" validate:"max=256"`
	Enabled       bool   `json:"enabled"`
}

// TransferCreditRequest is the DTO for moving credit between two accounts.
// A positive amount grants credit to the target, a negative amount reclaims
// credit from it. Zero is rejected.
type TransferCreditRequest struct {
	TargetID int64 `json:"target_id" validate:"required"`
	Amount   int64 `json:"amount" validate:"required"`
}

// SetUnlimitedRequest is the DTO for toggling an account's unlimited flag.
type SetUnlimitedRequest struct {
	TargetID int64 `json:"target_id" validate:"required"`
	Value    bool  `json:"value"`
}

// CorrectBalanceRequest is the DTO for the administrative balance
// correction. ExpectedPrior guards against concurrent ledger writes: the
// update only applies when the stored balance still matches it.
type CorrectBalanceRequest struct {
	Balance       int64 `json:"balance" validate:"min=0"`
	ExpectedPrior int64 `json:"expected_prior" validate:"min=0"`
}

// TransactionListOptions controls pagination for transaction history.
type TransactionListOptions struct {
	Limit  int
	Offset int
}
