package app

import (
	"context"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/painelpro/reseller-service/internal/domain"
	"github.com/painelpro/reseller-service/internal/store"
)

// memoryRepository is an in-memory store.Repository with the same observable
// semantics as the Postgres implementation: balance mutations validate
// sufficiency before writing, ledger writes are all-or-nothing, and audit
// rows carry the balance at the instant they were written. The scenario
// tests run the full service stack against it.
type memoryRepository struct {
	mu sync.Mutex

	nextAccountID int64
	nextTxID      int64
	nextEventID   int64

	accounts     map[int64]domain.Account
	balances     map[int64]domain.Balance
	transactions []domain.Transaction
	events       []domain.LifecycleEvent
	settings     domain.IntegrationSettings
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{
		accounts: make(map[int64]domain.Account),
		balances: make(map[int64]domain.Balance),
	}
}

// seedAccount inserts an account (and, for non-operators, a balance row)
// without touching the audit trail, so tests start from a clean ledger.
func (m *memoryRepository) seedAccount(t *testing.T, username string, role domain.Role, creatorID *int64, balance int64, unlimited bool) domain.Account {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	m.nextAccountID++
	account := domain.Account{
		ID:           m.nextAccountID,
		Username:     username,
		PasswordHash: "seeded",
		Role:         role,
		CreatorID:    creatorID,
		Status:       domain.StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	m.accounts[account.ID] = account
	if role != domain.RoleOperator {
		m.balances[account.ID] = domain.Balance{
			AccountID: account.ID,
			Balance:   balance,
			Unlimited: unlimited,
			UpdatedAt: now,
		}
	}
	return account
}

func (m *memoryRepository) transactionsFor(accountID int64) []domain.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	var rows []domain.Transaction
	for _, tx := range m.transactions {
		if tx.AccountID == accountID {
			rows = append(rows, tx)
		}
	}
	return rows
}

func (m *memoryRepository) FindAccountByID(ctx context.Context, accountID int64) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.accounts[accountID]
	if !ok {
		return nil, store.ErrAccountNotFound
	}
	copied := account
	return &copied, nil
}

func (m *memoryRepository) FindAccountByUsername(ctx context.Context, username string) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	needle := strings.TrimSpace(username)
	for _, account := range m.accounts {
		if strings.EqualFold(strings.TrimSpace(account.Username), needle) {
			copied := account
			return &copied, nil
		}
	}
	return nil, store.ErrAccountNotFound
}

func (m *memoryRepository) CreateAccount(ctx context.Context, params store.CreateAccountParams) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, account := range m.accounts {
		if strings.EqualFold(strings.TrimSpace(account.Username), strings.TrimSpace(params.Username)) {
			return nil, store.ErrUsernameTaken
		}
	}

	// Validate the provisioning charge before any state changes, mirroring
	// the all-or-nothing database transaction.
	if params.ChargeAmount > 0 {
		payer, ok := m.balances[params.ChargePayerID]
		if !ok {
			return nil, store.ErrBalanceNotFound
		}
		if !payer.Unlimited && payer.Balance < params.ChargeAmount {
			return nil, store.ErrInsufficientCredit
		}
	}

	now := time.Now().UTC()
	m.nextAccountID++
	account := domain.Account{
		ID:            m.nextAccountID,
		Username:      params.Username,
		PasswordHash:  params.PasswordHash,
		Role:          params.Role,
		CreatorID:     params.CreatorID,
		Status:        params.Status,
		Email:         params.Email,
		Phone:         params.Phone,
		Plan:          params.Plan,
		CreditExpiry:  params.CreditExpiry,
		BillingExpiry: params.BillingExpiry,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	m.accounts[account.ID] = account
	if params.Role != domain.RoleOperator {
		m.balances[account.ID] = domain.Balance{AccountID: account.ID, UpdatedAt: now}
	}
	if params.ChargeAmount > 0 {
		m.chargeLocked(params.ChargePayerID, params.ChargeAmount, params.ChargeDescription, &account.ID, params.PerformedBy, now)
	}

	copied := account
	return &copied, nil
}

// chargeLocked applies a pre-validated debit. Unlimited payers are exempt and
// get no audit row.
func (m *memoryRepository) chargeLocked(payerID, amount int64, description string, relatedID *int64, performedBy int64, now time.Time) {
	payer := m.balances[payerID]
	if payer.Unlimited {
		return
	}
	payer.Balance -= amount
	payer.UpdatedAt = now
	m.balances[payerID] = payer
	m.appendTransactionLocked(payerID, -amount, payer.Balance, description, relatedID, performedBy, now)
}

func (m *memoryRepository) appendTransactionLocked(accountID, amount, balanceAfter int64, description string, relatedID *int64, performedBy int64, now time.Time) domain.Transaction {
	m.nextTxID++
	tx := domain.Transaction{
		ID:           m.nextTxID,
		AccountID:    accountID,
		Amount:       amount,
		BalanceAfter: balanceAfter,
		Description:  description,
		PerformedBy:  performedBy,
		CreatedAt:    now,
	}
	if relatedID != nil {
		related := *relatedID
		tx.RelatedAccountID = &related
	}
	m.transactions = append(m.transactions, tx)
	return tx
}

func (m *memoryRepository) UpdateAccount(ctx context.Context, accountID int64, params store.UpdateAccountParams) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.accounts[accountID]
	if !ok {
		return nil, store.ErrAccountNotFound
	}
	if params.Email != nil {
		account.Email = params.Email
	}
	if params.Phone != nil {
		account.Phone = params.Phone
	}
	if params.Plan != nil {
		account.Plan = params.Plan
	}
	if params.PasswordHash != nil {
		account.PasswordHash = *params.PasswordHash
	}
	if params.Status != nil {
		account.Status = *params.Status
	}
	if params.CreditExpiry != nil {
		account.CreditExpiry = params.CreditExpiry
	}
	if params.BillingExpiry != nil {
		account.BillingExpiry = params.BillingExpiry
	}
	account.UpdatedAt = time.Now().UTC()
	m.accounts[accountID] = account
	copied := account
	return &copied, nil
}

func (m *memoryRepository) UpdateAccountStatus(ctx context.Context, accountID int64, status domain.AccountStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.accounts[accountID]
	if !ok {
		return false, nil
	}
	if account.Status == status {
		return false, nil
	}
	account.Status = status
	account.UpdatedAt = time.Now().UTC()
	m.accounts[accountID] = account
	return true, nil
}

func (m *memoryRepository) UpdateAccountCreator(ctx context.Context, accountID int64, newCreatorID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.accounts[accountID]
	if !ok {
		return store.ErrAccountNotFound
	}
	account.CreatorID = &newCreatorID
	account.UpdatedAt = time.Now().UTC()
	m.accounts[accountID] = account
	return nil
}

func (m *memoryRepository) DeleteAccount(ctx context.Context, accountID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[accountID]; !ok {
		return store.ErrAccountNotFound
	}
	// The balance row cascades; transactions and lifecycle events survive.
	delete(m.accounts, accountID)
	delete(m.balances, accountID)
	return nil
}

func (m *memoryRepository) ListAccounts(ctx context.Context, opts domain.AccountListOptions) ([]domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var accounts []domain.Account
	for _, account := range m.accounts {
		if opts.CreatorID != nil && (account.CreatorID == nil || *account.CreatorID != *opts.CreatorID) {
			continue
		}
		if opts.Role != "" && string(account.Role) != opts.Role {
			continue
		}
		if opts.Status != "" && string(account.Status) != opts.Status {
			continue
		}
		if search := strings.TrimSpace(opts.Search); search != "" && !strings.Contains(strings.ToLower(account.Username), strings.ToLower(search)) {
			continue
		}
		accounts = append(accounts, account)
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].ID > accounts[j].ID })
	return accounts, nil
}

func (m *memoryRepository) FindExpiredActiveAccounts(ctx context.Context, limit int) ([]domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	var expired []domain.Account
	for _, account := range m.accounts {
		if account.Status != domain.StatusActive || account.CreditExpiry == nil {
			continue
		}
		if account.CreditExpiry.Before(today) {
			expired = append(expired, account)
		}
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i].CreditExpiry.Before(*expired[j].CreditExpiry) })
	if limit > 0 && len(expired) > limit {
		expired = expired[:limit]
	}
	return expired, nil
}

func (m *memoryRepository) FindRolesByIDs(ctx context.Context, accountIDs []int64) (map[int64]domain.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	roles := make(map[int64]domain.Role, len(accountIDs))
	for _, id := range accountIDs {
		if account, ok := m.accounts[id]; ok {
			roles[id] = account.Role
		}
	}
	return roles, nil
}

func (m *memoryRepository) FindUsernamesByIDs(ctx context.Context, accountIDs []int64) (map[int64]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	usernames := make(map[int64]string, len(accountIDs))
	for _, id := range accountIDs {
		if account, ok := m.accounts[id]; ok {
			usernames[id] = strings.TrimSpace(account.Username)
		}
	}
	return usernames, nil
}

func (m *memoryRepository) GetBalance(ctx context.Context, accountID int64) (*domain.Balance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	balance, ok := m.balances[accountID]
	if !ok {
		return nil, store.ErrBalanceNotFound
	}
	copied := balance
	return &copied, nil
}

func (m *memoryRepository) SetBalance(ctx context.Context, accountID int64, newBalance int64, expectedPrior int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	balance, ok := m.balances[accountID]
	if !ok {
		return store.ErrBalanceNotFound
	}
	if balance.Balance != expectedPrior {
		return store.ErrBalanceConflict
	}
	balance.Balance = newBalance
	balance.UpdatedAt = time.Now().UTC()
	m.balances[accountID] = balance
	return nil
}

func (m *memoryRepository) RenewAccountWithCharge(ctx context.Context, params store.RenewAccountParams) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	account, ok := m.accounts[params.AccountID]
	if !ok {
		return nil, store.ErrAccountNotFound
	}
	if params.ChargeAmount > 0 {
		payer, ok := m.balances[params.ChargePayerID]
		if !ok {
			return nil, store.ErrBalanceNotFound
		}
		if !payer.Unlimited && payer.Balance < params.ChargeAmount {
			return nil, store.ErrInsufficientCredit
		}
	}

	now := time.Now().UTC()
	if params.ChargeAmount > 0 {
		m.chargeLocked(params.ChargePayerID, params.ChargeAmount, params.ChargeDescription, &params.AccountID, params.PerformedBy, now)
	}
	expiry := params.NewCreditExpiry
	account.CreditExpiry = &expiry
	account.Status = domain.StatusActive
	account.UpdatedAt = now
	m.accounts[params.AccountID] = account
	copied := account
	return &copied, nil
}

func (m *memoryRepository) TransferCredits(ctx context.Context, params store.TransferCreditsParams) (*domain.TransferResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	type side struct {
		balance   domain.Balance
		missing   bool
		accountID int64
	}
	load := func(accountID int64) (*side, error) {
		balance, ok := m.balances[accountID]
		if !ok {
			account, exists := m.accounts[accountID]
			if !exists {
				return nil, store.ErrAccountNotFound
			}
			if account.Role != domain.RoleOperator {
				return nil, store.ErrBalanceNotFound
			}
			return &side{missing: true, accountID: accountID}, nil
		}
		return &side{balance: balance, accountID: accountID}, nil
	}

	from, err := load(params.FromAccountID)
	if err != nil {
		return nil, err
	}
	to, err := load(params.ToAccountID)
	if err != nil {
		return nil, err
	}
	if !from.missing && !from.balance.Unlimited && from.balance.Balance < params.Amount {
		return nil, store.ErrInsufficientCredit
	}

	now := time.Now().UTC()
	fromAfter := int64(0)
	if !from.missing {
		fromAfter = from.balance.Balance
		if !from.balance.Unlimited {
			fromAfter -= params.Amount
			from.balance.Balance = fromAfter
			from.balance.UpdatedAt = now
			m.balances[from.accountID] = from.balance
		}
	}
	toAfter := int64(0)
	if !to.missing {
		toAfter = to.balance.Balance + params.Amount
		to.balance.Balance = toAfter
		to.balance.UpdatedAt = now
		m.balances[to.accountID] = to.balance
	}

	fromTx := m.appendTransactionLocked(params.FromAccountID, -params.Amount, fromAfter, params.FromDescription, &params.ToAccountID, params.PerformedBy, now)
	toTx := m.appendTransactionLocked(params.ToAccountID, params.Amount, toAfter, params.ToDescription, &params.FromAccountID, params.PerformedBy, now)
	return &domain.TransferResult{From: &fromTx, To: &toTx}, nil
}

func (m *memoryRepository) SetUnlimitedFlag(ctx context.Context, params store.SetUnlimitedParams) (bool, *domain.Balance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	balance, ok := m.balances[params.AccountID]
	if !ok {
		return false, nil, store.ErrBalanceNotFound
	}
	changed := balance.Unlimited != params.Value
	if changed {
		now := time.Now().UTC()
		balance.Unlimited = params.Value
		balance.UpdatedAt = now
		m.balances[params.AccountID] = balance
		m.appendTransactionLocked(params.AccountID, 0, balance.Balance, params.Description, nil, params.PerformedBy, now)
	}
	copied := balance
	return changed, &copied, nil
}

func (m *memoryRepository) FindTransactionsByAccountID(ctx context.Context, accountID int64, opts domain.TransactionListOptions) ([]domain.Transaction, error) {
	rows := m.transactionsFor(accountID)
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID > rows[j].ID })
	return rows, nil
}

func (m *memoryRepository) CreateLifecycleEvent(ctx context.Context, event *domain.LifecycleEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextEventID++
	event.ID = m.nextEventID
	event.CreatedAt = time.Now().UTC()
	m.events = append(m.events, *event)
	return nil
}

func (m *memoryRepository) ListLifecycleEvents(ctx context.Context, opts domain.LifecycleEventListOptions) ([]domain.LifecycleEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var events []domain.LifecycleEvent
	for _, event := range m.events {
		if opts.EventType != "" && event.EventType != opts.EventType {
			continue
		}
		if opts.AccountID != nil && event.AccountID != *opts.AccountID {
			continue
		}
		events = append(events, event)
	}
	sort.Slice(events, func(i, j int) bool { return events[i].ID > events[j].ID })
	return events, nil
}

func (m *memoryRepository) GetIntegrationSettings(ctx context.Context) (*domain.IntegrationSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := m.settings
	return &copied, nil
}

func (m *memoryRepository) UpsertIntegrationSettings(ctx context.Context, params store.IntegrationSettingsParams) (*domain.IntegrationSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = domain.IntegrationSettings{
		WebhookURL:    strings.TrimSpace(params.WebhookURL),
		WebhookSecret: params.WebhookSecret,
		Enabled:       params.Enabled,
		UpdatedAt:     time.Now().UTC(),
	}
	copied := m.settings
	return &copied, nil
}
