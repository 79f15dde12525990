/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository`
 * interface. It contains all SQL for accounts, balances, the transaction
 * audit trail, lifecycle events and the integration settings.
 *
 * The ledger methods are the critical section: every balance mutation runs
 * inside a database transaction that locks the touched balance rows with
 * SELECT ... FOR UPDATE, validates sufficiency under the lock, and writes the
 * balance update together with its audit row. Locks are always taken in
 * ascending account-id order so two concurrent transfers cannot deadlock.
 *
 * @dependencies
 * - context, errors, fmt, strings, time: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/painelpro/reseller-service/internal/domain"
)

var (
	ErrAccountNotFound    = errors.New("account not found")
	ErrBalanceNotFound    = errors.New("balance not found")
	ErrInsufficientCredit = errors.New("insufficient credit")
	ErrUsernameTaken      = errors.New("username already taken")
	ErrBalanceConflict    = errors.New("balance changed concurrently")
)

const accountColumns = `id, username, password_hash, role, creator_id, status, email, phone, plan, credit_expiry, billing_expiry, created_at, updated_at`

const transactionColumns = `id, account_id, amount, balance_after, description, related_account_id, performed_by, created_at`

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var (
		account domain.Account
		role    string
		status  string
	)
	err := row.Scan(
		&account.ID,
		&account.Username,
		&account.PasswordHash,
		&role,
		&account.CreatorID,
		&status,
		&account.Email,
		&account.Phone,
		&account.Plan,
		&account.CreditExpiry,
		&account.BillingExpiry,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	account.Role = domain.Role(role)
	account.Status = domain.AccountStatus(status)
	return &account, nil
}

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var tx domain.Transaction
	err := row.Scan(
		&tx.ID,
		&tx.AccountID,
		&tx.Amount,
		&tx.BalanceAfter,
		&tx.Description,
		&tx.RelatedAccountID,
		&tx.PerformedBy,
		&tx.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

// FindAccountByID retrieves an account by its numeric id.
func (r *PostgresRepository) FindAccountByID(ctx context.Context, accountID int64) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	account, err := scanAccount(r.db.QueryRow(ctx, query, accountID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return account, nil
}

// FindAccountByUsername retrieves an account by username, case-insensitively.
func (r *PostgresRepository) FindAccountByUsername(ctx context.Context, username string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE lower(btrim(username)) = lower(btrim($1))`
	account, err := scanAccount(r.db.QueryRow(ctx, query, username))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return account, nil
}

// CreateAccount inserts the account, its balance row (for non-operators) and,
// when ChargeAmount is positive, debits the payer, all in one database
// transaction. An insufficient payer balance rolls everything back.
func (r *PostgresRepository) CreateAccount(ctx context.Context, params CreateAccountParams) (*domain.Account, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	insertQuery := `
		INSERT INTO accounts (username, password_hash, role, creator_id, status, email, phone, plan, credit_expiry, billing_expiry)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING ` + accountColumns
	account, err := scanAccount(tx.QueryRow(ctx, insertQuery,
		params.Username,
		params.PasswordHash,
		string(params.Role),
		params.CreatorID,
		string(params.Status),
		params.Email,
		params.Phone,
		params.Plan,
		params.CreditExpiry,
		params.BillingExpiry,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrUsernameTaken
		}
		return nil, err
	}

	// Operators never hold a balance row; everyone else starts at zero.
	if params.Role != domain.RoleOperator {
		if _, err := tx.Exec(ctx,
			`INSERT INTO balances (account_id, balance, unlimited) VALUES ($1, 0, false)`,
			account.ID,
		); err != nil {
			return nil, err
		}
	}

	if params.ChargeAmount > 0 {
		if _, err := r.chargeWithinTx(ctx, tx, params.ChargePayerID, params.ChargeAmount, params.ChargeDescription, &account.ID, params.PerformedBy); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return account, nil
}

// UpdateAccount applies a partial update; COALESCE keeps unset fields as-is.
func (r *PostgresRepository) UpdateAccount(ctx context.Context, accountID int64, params UpdateAccountParams) (*domain.Account, error) {
	var status *string
	if params.Status != nil {
		s := string(*params.Status)
		status = &s
	}
	query := `
		UPDATE accounts SET
			email = COALESCE($2, email),
			phone = COALESCE($3, phone),
			plan = COALESCE($4, plan),
			password_hash = COALESCE($5, password_hash),
			status = COALESCE($6, status),
			credit_expiry = COALESCE($7, credit_expiry),
			billing_expiry = COALESCE($8, billing_expiry),
			updated_at = NOW()
		WHERE id = $1
		RETURNING ` + accountColumns
	account, err := scanAccount(r.db.QueryRow(ctx, query,
		accountID,
		params.Email,
		params.Phone,
		params.Plan,
		params.PasswordHash,
		status,
		params.CreditExpiry,
		params.BillingExpiry,
	))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return account, nil
}

// UpdateAccountStatus sets the status and reports whether the row changed.
func (r *PostgresRepository) UpdateAccountStatus(ctx context.Context, accountID int64, status domain.AccountStatus) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE accounts SET status = $2, updated_at = NOW() WHERE id = $1 AND status <> $2`,
		accountID, string(status),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// UpdateAccountCreator repoints an account's creator.
func (r *PostgresRepository) UpdateAccountCreator(ctx context.Context, accountID int64, newCreatorID int64) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE accounts SET creator_id = $2, updated_at = NOW() WHERE id = $1`,
		accountID, newCreatorID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// DeleteAccount removes the account row; the balance row goes with it via
// ON DELETE CASCADE. Transactions and lifecycle events are kept.
func (r *PostgresRepository) DeleteAccount(ctx context.Context, accountID int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, accountID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// ListAccounts returns accounts matching the options, newest first.
func (r *PostgresRepository) ListAccounts(ctx context.Context, opts domain.AccountListOptions) ([]domain.Account, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT ` + accountColumns + ` FROM accounts WHERE 1=1`)
	args := []interface{}{}

	if opts.CreatorID != nil {
		args = append(args, *opts.CreatorID)
		fmt.Fprintf(&sb, " AND creator_id = $%d", len(args))
	}
	if opts.Role != "" {
		args = append(args, opts.Role)
		fmt.Fprintf(&sb, " AND role = $%d", len(args))
	}
	if opts.Status != "" {
		args = append(args, opts.Status)
		fmt.Fprintf(&sb, " AND status = $%d", len(args))
	}
	if search := strings.TrimSpace(opts.Search); search != "" {
		args = append(args, "%"+search+"%")
		fmt.Fprintf(&sb, " AND username ILIKE $%d", len(args))
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}
	args = append(args, limit, offset)
	fmt.Fprintf(&sb, " ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.db.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	accounts := []domain.Account{}
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *account)
	}
	return accounts, rows.Err()
}

// FindExpiredActiveAccounts returns active accounts whose credit expiry day
// has passed, oldest expiry first.
func (r *PostgresRepository) FindExpiredActiveAccounts(ctx context.Context, limit int) ([]domain.Account, error) {
	if limit <= 0 {
		limit = 500
	}
	query := `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE status = 'active' AND credit_expiry IS NOT NULL AND credit_expiry < CURRENT_DATE
		ORDER BY credit_expiry ASC
		LIMIT $1`
	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	accounts := []domain.Account{}
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *account)
	}
	return accounts, rows.Err()
}

// FindRolesByIDs resolves roles for a set of accounts in one query.
func (r *PostgresRepository) FindRolesByIDs(ctx context.Context, accountIDs []int64) (map[int64]domain.Role, error) {
	roles := make(map[int64]domain.Role, len(accountIDs))
	if len(accountIDs) == 0 {
		return roles, nil
	}
	rows, err := r.db.Query(ctx, `SELECT id, role FROM accounts WHERE id = ANY($1)`, accountIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id   int64
			role string
		)
		if err := rows.Scan(&id, &role); err != nil {
			return nil, err
		}
		roles[id] = domain.Role(role)
	}
	return roles, rows.Err()
}

// FindUsernamesByIDs resolves usernames for a set of accounts in one query.
func (r *PostgresRepository) FindUsernamesByIDs(ctx context.Context, accountIDs []int64) (map[int64]string, error) {
	usernames := make(map[int64]string, len(accountIDs))
	if len(accountIDs) == 0 {
		return usernames, nil
	}
	rows, err := r.db.Query(ctx, `SELECT id, btrim(username) FROM accounts WHERE id = ANY($1)`, accountIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id       int64
			username string
		)
		if err := rows.Scan(&id, &username); err != nil {
			return nil, err
		}
		usernames[id] = username
	}
	return usernames, rows.Err()
}

// GetBalance retrieves the balance row for an account.
func (r *PostgresRepository) GetBalance(ctx context.Context, accountID int64) (*domain.Balance, error) {
	var balance domain.Balance
	err := r.db.QueryRow(ctx,
		`SELECT account_id, balance, unlimited, updated_at FROM balances WHERE account_id = $1`,
		accountID,
	).Scan(&balance.AccountID, &balance.Balance, &balance.Unlimited, &balance.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrBalanceNotFound
		}
		return nil, err
	}
	return &balance, nil
}

// SetBalance writes a new balance only if the stored value still matches
// expectedPrior.
func (r *PostgresRepository) SetBalance(ctx context.Context, accountID int64, newBalance int64, expectedPrior int64) error {
	if newBalance < 0 {
		return fmt.Errorf("balance must not be negative: %d", newBalance)
	}
	tag, err := r.db.Exec(ctx,
		`UPDATE balances SET balance = $2, updated_at = NOW() WHERE account_id = $1 AND balance = $3`,
		accountID, newBalance, expectedPrior,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM balances WHERE account_id = $1)`, accountID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrBalanceNotFound
		}
		return ErrBalanceConflict
	}
	return nil
}

// chargeWithinTx locks the payer's balance row, verifies sufficiency and
// applies the debit plus its audit row inside the caller's transaction.
// Unlimited payers are exempt: nothing is written and (nil, nil) is returned.
func (r *PostgresRepository) chargeWithinTx(ctx context.Context, tx pgx.Tx, payerID int64, amount int64, description string, relatedAccountID *int64, performedBy int64) (*domain.Transaction, error) {
	var (
		balance   int64
		unlimited bool
	)
	err := tx.QueryRow(ctx,
		`SELECT balance, unlimited FROM balances WHERE account_id = $1 FOR UPDATE`,
		payerID,
	).Scan(&balance, &unlimited)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrBalanceNotFound
		}
		return nil, err
	}
	if unlimited {
		return nil, nil
	}
	if balance < amount {
		return nil, ErrInsufficientCredit
	}

	if _, err := tx.Exec(ctx,
		`UPDATE balances SET balance = balance - $2, updated_at = NOW() WHERE account_id = $1`,
		payerID, amount,
	); err != nil {
		return nil, err
	}

	insertQuery := `
		INSERT INTO transactions (account_id, amount, balance_after, description, related_account_id, performed_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + transactionColumns
	charge, err := scanTransaction(tx.QueryRow(ctx, insertQuery,
		payerID, -amount, balance-amount, description, relatedAccountID, performedBy,
	))
	if err != nil {
		return nil, err
	}
	return charge, nil
}

// RenewAccountWithCharge charges the payer (when ChargeAmount > 0) and
// extends the account's credit expiry in one database transaction.
func (r *PostgresRepository) RenewAccountWithCharge(ctx context.Context, params RenewAccountParams) (*domain.Account, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if params.ChargeAmount > 0 {
		if _, err := r.chargeWithinTx(ctx, tx, params.ChargePayerID, params.ChargeAmount, params.ChargeDescription, &params.AccountID, params.PerformedBy); err != nil {
			return nil, err
		}
	}

	query := `
		UPDATE accounts SET credit_expiry = $2, status = 'active', updated_at = NOW()
		WHERE id = $1
		RETURNING ` + accountColumns
	account, err := scanAccount(tx.QueryRow(ctx, query, params.AccountID, params.NewCreditExpiry))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return account, nil
}

type lockedBalance struct {
	balance   int64
	unlimited bool
	// missing marks an operator side that has no balance row; its leg is
	// informational only.
	missing bool
}

// TransferCredits atomically moves Amount between two accounts. Both balance
// rows are locked in ascending account-id order, the paying side is validated
// under the lock, and exactly two transaction rows are written. Operator
// sides without a balance row get an informational row and no balance change;
// the same applies to an unlimited paying side.
func (r *PostgresRepository) TransferCredits(ctx context.Context, params TransferCreditsParams) (*domain.TransferResult, error) {
	if params.Amount <= 0 {
		return nil, fmt.Errorf("transfer amount must be positive: %d", params.Amount)
	}
	if params.FromAccountID == params.ToAccountID {
		return nil, fmt.Errorf("transfer endpoints must differ: %d", params.FromAccountID)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	lockOrder := []int64{params.FromAccountID, params.ToAccountID}
	if lockOrder[1] < lockOrder[0] {
		lockOrder[0], lockOrder[1] = lockOrder[1], lockOrder[0]
	}

	sides := make(map[int64]*lockedBalance, 2)
	for _, accountID := range lockOrder {
		side := &lockedBalance{}
		err := tx.QueryRow(ctx,
			`SELECT balance, unlimited FROM balances WHERE account_id = $1 FOR UPDATE`,
			accountID,
		).Scan(&side.balance, &side.unlimited)
		if err == pgx.ErrNoRows {
			// Only operator accounts legitimately run without a balance row.
			var role string
			if roleErr := tx.QueryRow(ctx, `SELECT role FROM accounts WHERE id = $1`, accountID).Scan(&role); roleErr != nil {
				if roleErr == pgx.ErrNoRows {
					return nil, ErrAccountNotFound
				}
				return nil, roleErr
			}
			if domain.Role(role) != domain.RoleOperator {
				return nil, ErrBalanceNotFound
			}
			side.missing = true
		} else if err != nil {
			return nil, err
		}
		sides[accountID] = side
	}

	from := sides[params.FromAccountID]
	to := sides[params.ToAccountID]

	if !from.missing && !from.unlimited && from.balance < params.Amount {
		return nil, ErrInsufficientCredit
	}

	fromAfter := int64(0)
	if !from.missing {
		fromAfter = from.balance
		if !from.unlimited {
			fromAfter = from.balance - params.Amount
			if _, err := tx.Exec(ctx,
				`UPDATE balances SET balance = balance - $2, updated_at = NOW() WHERE account_id = $1`,
				params.FromAccountID, params.Amount,
			); err != nil {
				return nil, err
			}
		}
	}

	toAfter := int64(0)
	if !to.missing {
		toAfter = to.balance + params.Amount
		if _, err := tx.Exec(ctx,
			`UPDATE balances SET balance = balance + $2, updated_at = NOW() WHERE account_id = $1`,
			params.ToAccountID, params.Amount,
		); err != nil {
			return nil, err
		}
	}

	// NOW() is stable for the duration of the transaction, so both audit
	// rows share one timestamp.
	insertQuery := `
		INSERT INTO transactions (account_id, amount, balance_after, description, related_account_id, performed_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + transactionColumns

	fromTx, err := scanTransaction(tx.QueryRow(ctx, insertQuery,
		params.FromAccountID, -params.Amount, fromAfter, params.FromDescription, params.ToAccountID, params.PerformedBy,
	))
	if err != nil {
		return nil, err
	}
	toTx, err := scanTransaction(tx.QueryRow(ctx, insertQuery,
		params.ToAccountID, params.Amount, toAfter, params.ToDescription, params.FromAccountID, params.PerformedBy,
	))
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &domain.TransferResult{From: fromTx, To: toTx}, nil
}

// SetUnlimitedFlag toggles the unlimited flag. The numeric balance is never
// touched; a real change appends one zero-amount informational row so a
// repeated call with the same value stays a no-op.
func (r *PostgresRepository) SetUnlimitedFlag(ctx context.Context, params SetUnlimitedParams) (bool, *domain.Balance, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return false, nil, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE balances SET unlimited = $2, updated_at = NOW() WHERE account_id = $1 AND unlimited <> $2`,
		params.AccountID, params.Value,
	)
	if err != nil {
		return false, nil, err
	}
	changed := tag.RowsAffected() > 0

	var balance domain.Balance
	err = tx.QueryRow(ctx,
		`SELECT account_id, balance, unlimited, updated_at FROM balances WHERE account_id = $1`,
		params.AccountID,
	).Scan(&balance.AccountID, &balance.Balance, &balance.Unlimited, &balance.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return false, nil, ErrBalanceNotFound
		}
		return false, nil, err
	}

	if changed {
		if _, err := tx.Exec(ctx,
			`INSERT INTO transactions (account_id, amount, balance_after, description, related_account_id, performed_by)
			 VALUES ($1, 0, $2, $3, NULL, $4)`,
			params.AccountID, balance.Balance, params.Description, params.PerformedBy,
		); err != nil {
			return false, nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, nil, err
	}
	return changed, &balance, nil
}

// FindTransactionsByAccountID returns an account's audit trail, newest first.
func (r *PostgresRepository) FindTransactionsByAccountID(ctx context.Context, accountID int64, opts domain.TransactionListOptions) ([]domain.Transaction, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE account_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`
	rows, err := r.db.Query(ctx, query, accountID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	transactions := []domain.Transaction{}
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, *tx)
	}
	return transactions, rows.Err()
}

// CreateLifecycleEvent appends one row to the notification audit log.
func (r *PostgresRepository) CreateLifecycleEvent(ctx context.Context, event *domain.LifecycleEvent) error {
	payload := string(event.Payload)
	if payload == "" {
		payload = "{}"
	}
	query := `
		INSERT INTO lifecycle_events (event_type, endpoint, payload, response_status, response_body, error, account_id)
		VALUES ($1, $2, $3::jsonb, $4, $5, $6, $7)
		RETURNING id, created_at`
	return r.db.QueryRow(ctx, query,
		event.EventType,
		event.Endpoint,
		payload,
		event.ResponseStatus,
		event.ResponseBody,
		event.Error,
		event.AccountID,
	).Scan(&event.ID, &event.CreatedAt)
}

// ListLifecycleEvents returns notification audit rows, newest first.
func (r *PostgresRepository) ListLifecycleEvents(ctx context.Context, opts domain.LifecycleEventListOptions) ([]domain.LifecycleEvent, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT id, event_type, endpoint, payload, response_status, response_body, error, account_id, created_at FROM lifecycle_events WHERE 1=1`)
	args := []interface{}{}

	if opts.EventType != "" {
		args = append(args, opts.EventType)
		fmt.Fprintf(&sb, " AND event_type = $%d", len(args))
	}
	if opts.AccountID != nil {
		args = append(args, *opts.AccountID)
		fmt.Fprintf(&sb, " AND account_id = $%d", len(args))
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}
	args = append(args, limit, offset)
	fmt.Fprintf(&sb, " ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.db.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []domain.LifecycleEvent{}
	for rows.Next() {
		var (
			event   domain.LifecycleEvent
			payload string
		)
		if err := rows.Scan(
			&event.ID,
			&event.EventType,
			&event.Endpoint,
			&payload,
			&event.ResponseStatus,
			&event.ResponseBody,
			&event.Error,
			&event.AccountID,
			&event.CreatedAt,
		); err != nil {
			return nil, err
		}
		event.Payload = []byte(payload)
		events = append(events, event)
	}
	return events, rows.Err()
}

// GetIntegrationSettings returns the single webhook configuration row. A
// missing row reads as an unconfigured integration.
func (r *PostgresRepository) GetIntegrationSettings(ctx context.Context) (*domain.IntegrationSettings, error) {
	var settings domain.IntegrationSettings
	err := r.db.QueryRow(ctx,
		`SELECT webhook_url, webhook_secret, enabled, updated_at FROM integration_settings WHERE id = 1`,
	).Scan(&settings.WebhookURL, &settings.WebhookSecret, &settings.Enabled, &settings.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return &domain.IntegrationSettings{UpdatedAt: time.Time{}}, nil
		}
		return nil, err
	}
	return &settings, nil
}

// UpsertIntegrationSettings writes the webhook configuration.
func (r *PostgresRepository) UpsertIntegrationSettings(ctx context.Context, params IntegrationSettingsParams) (*domain.IntegrationSettings, error) {
	var settings domain.IntegrationSettings
	query := `
		INSERT INTO integration_settings (id, webhook_url, webhook_secret, enabled, updated_at)
		VALUES (1, $1, $2, $3, NOW())
		ON CONFLICT (id) DO UPDATE SET
			webhook_url = EXCLUDED.webhook_url,
			webhook_secret = EXCLUDED.webhook_secret,
			enabled = EXCLUDED.enabled,
			updated_at = NOW()
		RETURNING webhook_url, webhook_secret, enabled, updated_at`
	err := r.db.QueryRow(ctx, query,
		strings.TrimSpace(params.WebhookURL),
		params.WebhookSecret,
		params.Enabled,
	).Scan(&settings.WebhookURL, &settings.WebhookSecret, &settings.Enabled, &settings.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &settings, nil
}
