/**
 * @description
 * This file contains the provisioning orchestrator: account creation across
 * the operator -> master -> reseller -> client hierarchy, renewal, updates,
 * deletion and creator reassignment. Every mutation checks the caller's
 * place in the hierarchy first, runs its database work through one atomic
 * store call, and only then fans out lifecycle notifications and broker
 * events. Authorization failures change nothing.
 *
 * @dependencies
 * - golang.org/x/crypto/bcrypt: Password hashing.
 * - internal/store: Repository interface and sentinel errors.
 * - pkg/rabbitmq: Account event publishing for internal consumers.
 */
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/painelpro/reseller-service/internal/domain"
	"github.com/painelpro/reseller-service/internal/metrics"
	"github.com/painelpro/reseller-service/internal/store"
	"github.com/painelpro/reseller-service/pkg/rabbitmq"
)

var (
	// ErrUnauthorized is returned when the caller's hierarchy position does
	// not permit the requested operation.
	ErrUnauthorized = errors.New("caller is not authorized for this operation")
	// ErrInvalidRole is returned for unknown role values.
	ErrInvalidRole = errors.New("invalid account role")
	// ErrInvalidStatus is returned for unknown status values.
	ErrInvalidStatus = errors.New("invalid account status")
	// ErrOperatorLifecycle rejects renewals of operator accounts, which have
	// no credit expiry.
	ErrOperatorLifecycle = errors.New("operator accounts have no credit lifecycle")
	// ErrSelfDeletion rejects an account deleting itself.
	ErrSelfDeletion = errors.New("accounts cannot delete themselves")
	// ErrIneligibleCreator rejects reassignment to a creator that cannot
	// hold accounts.
	ErrIneligibleCreator = errors.New("new creator must exist and be able to hold accounts")
)

// EventDispatcher queues lifecycle webhook deliveries. Implemented by
// Notifier; stubbed in tests.
type EventDispatcher interface {
	Dispatch(event string, payload domain.WebhookPayload)
}

// Service implements the provisioning orchestrator and the credit ledger
// operations on top of the store.
type Service struct {
	repo     store.Repository
	resolver *RoleResolver
	notifier EventDispatcher
	producer rabbitmq.Publisher
	metrics  metrics.Recorder
	logger   *slog.Logger
}

// NewService wires the orchestrator with its collaborators.
func NewService(
	repo store.Repository,
	resolver *RoleResolver,
	notifier EventDispatcher,
	producer rabbitmq.Publisher,
	recorder metrics.Recorder,
	logger *slog.Logger,
) *Service {
	return &Service{
		repo:     repo,
		resolver: resolver,
		notifier: notifier,
		producer: producer,
		metrics:  recorder,
		logger:   logger,
	}
}

// CreateAccount provisions a new account under the caller. Role legality is
// checked with CanCreate. Creating a non-trial client charges the caller one
// credit inside the same database transaction that inserts the account, so
// an insufficient balance leaves no partial state. Trial clients are free
// and expire immediately; masters and resellers are free.
func (s *Service) CreateAccount(ctx context.Context, callerID int64, req domain.CreateAccountRequest) (*domain.Account, error) {
	role, ok := domain.ParseRole(req.Role)
	if !ok {
		return nil, ErrInvalidRole
	}
	callerRole, err := s.resolver.Role(ctx, callerID)
	if err != nil {
		return nil, err
	}
	if !callerRole.CanCreate(role) {
		return nil, ErrUnauthorized
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := time.Now().UTC()
	username := strings.TrimSpace(req.Username)

	var creditExpiry *time.Time
	var chargeAmount int64
	switch role {
	case domain.RoleOperator:
		// Operators have no credit lifecycle.
	case domain.RoleClient:
		if req.Trial {
			expiry := now
			creditExpiry = &expiry
		} else {
			expiry := now.AddDate(0, 0, domain.CreditValidityDays)
			creditExpiry = &expiry
			if callerRole != domain.RoleOperator {
				chargeAmount = domain.ProvisioningCost
			}
		}
	default:
		expiry := now.AddDate(0, 0, domain.CreditValidityDays)
		creditExpiry = &expiry
	}

	account, err := s.repo.CreateAccount(ctx, store.CreateAccountParams{
		Username:          username,
		PasswordHash:      string(hash),
		Role:              role,
		CreatorID:         &callerID,
		Status:            domain.StatusActive,
		Email:             req.Email,
		Phone:             req.Phone,
		Plan:              req.Plan,
		CreditExpiry:      creditExpiry,
		ChargeAmount:      chargeAmount,
		ChargePayerID:     callerID,
		ChargeDescription: fmt.Sprintf("Provisioning charge for %s %s", role.Label(), username),
		PerformedBy:       callerID,
	})
	if err != nil {
		if chargeAmount > 0 && errors.Is(err, store.ErrInsufficientCredit) {
			s.metrics.RecordLedgerOperation("provision_charge", "insufficient")
		}
		return nil, err
	}
	if chargeAmount > 0 {
		s.metrics.RecordLedgerOperation("provision_charge", "ok")
	}

	s.resolver.Prime(account.ID, account.Role)
	s.logger.Info("account created",
		"account_id", account.ID,
		"username", account.Username,
		"role", account.Role,
		"creator_id", callerID,
		"trial", req.Trial,
	)

	s.notifier.Dispatch(domain.EventCreateUser, lifecyclePayload(account))
	s.publishAccountEvent(ctx, rabbitmq.RoutingKeyAccountCreated, account)
	return account, nil
}

// RenewAccount extends the target's credit expiry by the standard validity
// window and reactivates it. Allowed for operators and the direct creator.
// The renewal costs one credit, charged to the caller in the same database
// transaction as the expiry update; operators renew for free.
func (s *Service) RenewAccount(ctx context.Context, callerID, targetID int64) (*domain.Account, error) {
	target, err := s.repo.FindAccountByID(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if target.Role == domain.RoleOperator {
		return nil, ErrOperatorLifecycle
	}
	callerRole, err := s.resolver.Role(ctx, callerID)
	if err != nil {
		return nil, err
	}
	if !domain.CanManageCredits(callerRole, callerID, target.CreatorID) {
		return nil, ErrUnauthorized
	}

	chargeAmount := domain.ProvisioningCost
	if callerRole == domain.RoleOperator {
		chargeAmount = 0
	}

	oldStatus := target.Status
	renewed, err := s.repo.RenewAccountWithCharge(ctx, store.RenewAccountParams{
		AccountID:         targetID,
		NewCreditExpiry:   time.Now().UTC().AddDate(0, 0, domain.CreditValidityDays),
		ChargeAmount:      chargeAmount,
		ChargePayerID:     callerID,
		ChargeDescription: fmt.Sprintf("Renewal charge for %s %s", target.Role.Label(), target.Username),
		PerformedBy:       callerID,
	})
	if err != nil {
		if chargeAmount > 0 && errors.Is(err, store.ErrInsufficientCredit) {
			s.metrics.RecordLedgerOperation("renewal_charge", "insufficient")
		}
		return nil, err
	}
	if chargeAmount > 0 {
		s.metrics.RecordLedgerOperation("renewal_charge", "ok")
	}

	s.logger.Info("account renewed",
		"account_id", renewed.ID,
		"credit_expiry", renewed.CreditExpiry,
		"performed_by", callerID,
	)

	if renewed.Status != oldStatus {
		payload := lifecyclePayload(renewed)
		payload.OldStatus = string(oldStatus)
		payload.NewStatus = string(renewed.Status)
		s.notifier.Dispatch(domain.EventUpdateUserStatus, payload)
		s.publishAccountEvent(ctx, rabbitmq.RoutingKeyAccountStatusChanged, renewed)
	}
	return renewed, nil
}

// UpdateAccount applies a partial update to the target account. Operators
// may update anyone, everyone else only accounts they directly created.
// An explicit credit expiry recomputes the status unless an explicit status
// was supplied alongside it.
func (s *Service) UpdateAccount(ctx context.Context, callerID, targetID int64, req domain.UpdateAccountRequest) (*domain.Account, error) {
	target, err := s.repo.FindAccountByID(ctx, targetID)
	if err != nil {
		return nil, err
	}
	callerRole, err := s.resolver.Role(ctx, callerID)
	if err != nil {
		return nil, err
	}
	// Account administration follows the credit-management rule: operator or
	// direct creator.
	if !domain.CanManageCredits(callerRole, callerID, target.CreatorID) {
		return nil, ErrUnauthorized
	}

	params := store.UpdateAccountParams{
		Email:         req.Email,
		Phone:         req.Phone,
		Plan:          req.Plan,
		CreditExpiry:  req.CreditExpiry,
		BillingExpiry: req.BillingExpiry,
	}
	if req.Password != nil {
		hash, err := bcrypt.GenerateFromPassword([]byte(*req.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		hashed := string(hash)
		params.PasswordHash = &hashed
	}
	switch {
	case req.Status != nil:
		status, ok := domain.ParseStatus(*req.Status)
		if !ok {
			return nil, ErrInvalidStatus
		}
		params.Status = &status
	case req.CreditExpiry != nil:
		derived := domain.StatusForExpiry(*req.CreditExpiry, time.Now().UTC())
		params.Status = &derived
	}

	oldStatus := target.Status
	updated, err := s.repo.UpdateAccount(ctx, targetID, params)
	if err != nil {
		return nil, err
	}

	s.logger.Info("account updated", "account_id", updated.ID, "performed_by", callerID)

	if updated.Status != oldStatus {
		payload := lifecyclePayload(updated)
		payload.OldStatus = string(oldStatus)
		payload.NewStatus = string(updated.Status)
		s.notifier.Dispatch(domain.EventUpdateUserStatus, payload)
		s.publishAccountEvent(ctx, rabbitmq.RoutingKeyAccountStatusChanged, updated)
	}
	return updated, nil
}

// DeleteAccount removes the target account and its balance row. The
// notification payload is snapshotted before the delete so the delete_user
// event stays complete after the row is gone. Transactions and lifecycle
// events are retained.
func (s *Service) DeleteAccount(ctx context.Context, callerID, targetID int64) error {
	if callerID == targetID {
		return ErrSelfDeletion
	}
	target, err := s.repo.FindAccountByID(ctx, targetID)
	if err != nil {
		return err
	}
	callerRole, err := s.resolver.Role(ctx, callerID)
	if err != nil {
		return err
	}
	if !domain.CanManageCredits(callerRole, callerID, target.CreatorID) {
		return ErrUnauthorized
	}

	if err := s.repo.DeleteAccount(ctx, targetID); err != nil {
		return err
	}
	s.resolver.Invalidate(targetID)

	s.logger.Info("account deleted",
		"account_id", targetID,
		"username", target.Username,
		"performed_by", callerID,
	)

	s.notifier.Dispatch(domain.EventDeleteUser, lifecyclePayload(target))
	s.publishAccountEvent(ctx, rabbitmq.RoutingKeyAccountDeleted, target)
	return nil
}

// ReassignCreator moves the target account under a different creator.
// Operator only. The new creator must exist and must not be a client.
func (s *Service) ReassignCreator(ctx context.Context, callerID, targetID int64, req domain.ReassignCreatorRequest) error {
	callerRole, err := s.resolver.Role(ctx, callerID)
	if err != nil {
		return err
	}
	if callerRole != domain.RoleOperator {
		return ErrUnauthorized
	}
	if req.NewCreatorID == targetID {
		return ErrIneligibleCreator
	}
	if _, err := s.repo.FindAccountByID(ctx, targetID); err != nil {
		return err
	}
	newCreatorRole, err := s.resolver.Role(ctx, req.NewCreatorID)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			return ErrIneligibleCreator
		}
		return err
	}
	if newCreatorRole == domain.RoleClient {
		return ErrIneligibleCreator
	}

	if err := s.repo.UpdateAccountCreator(ctx, targetID, req.NewCreatorID); err != nil {
		return err
	}
	s.resolver.Invalidate(targetID)

	s.logger.Info("account creator reassigned",
		"account_id", targetID,
		"new_creator_id", req.NewCreatorID,
		"performed_by", callerID,
	)
	return nil
}

// GetAccount returns one account decorated for display. Visible to the
// account itself, its direct creator and operators.
func (s *Service) GetAccount(ctx context.Context, callerID, targetID int64) (*domain.AccountView, error) {
	target, err := s.repo.FindAccountByID(ctx, targetID)
	if err != nil {
		return nil, err
	}
	allowed, err := s.canViewLedger(ctx, callerID, target)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, ErrUnauthorized
	}

	view := domain.AccountView{Account: *target, RoleLabel: target.Role.Label()}
	if target.CreatorID != nil {
		names, err := s.repo.FindUsernamesByIDs(ctx, []int64{*target.CreatorID})
		if err != nil {
			return nil, err
		}
		if name, ok := names[*target.CreatorID]; ok {
			view.CreatorUsername = &name
		}
	}
	return &view, nil
}

// ListAccounts returns accounts visible to the caller. Operators see
// everything and may filter freely; everyone else is pinned to the accounts
// they directly created. Creator usernames are resolved in one batched
// query rather than per row.
func (s *Service) ListAccounts(ctx context.Context, callerID int64, opts domain.AccountListOptions) ([]domain.AccountView, error) {
	callerRole, err := s.resolver.Role(ctx, callerID)
	if err != nil {
		return nil, err
	}
	if callerRole != domain.RoleOperator {
		opts.CreatorID = &callerID
	}

	accounts, err := s.repo.ListAccounts(ctx, opts)
	if err != nil {
		return nil, err
	}

	creatorIDs := make([]int64, 0, len(accounts))
	seen := make(map[int64]struct{}, len(accounts))
	for _, account := range accounts {
		if account.CreatorID == nil {
			continue
		}
		if _, ok := seen[*account.CreatorID]; ok {
			continue
		}
		seen[*account.CreatorID] = struct{}{}
		creatorIDs = append(creatorIDs, *account.CreatorID)
	}

	names := map[int64]string{}
	if len(creatorIDs) > 0 {
		names, err = s.repo.FindUsernamesByIDs(ctx, creatorIDs)
		if err != nil {
			return nil, err
		}
	}

	views := make([]domain.AccountView, 0, len(accounts))
	for _, account := range accounts {
		view := domain.AccountView{Account: account, RoleLabel: account.Role.Label()}
		if account.CreatorID != nil {
			if name, ok := names[*account.CreatorID]; ok {
				creatorName := name
				view.CreatorUsername = &creatorName
			}
		}
		views = append(views, view)
	}
	return views, nil
}

// lifecyclePayload snapshots the fields every webhook payload carries.
func lifecyclePayload(account *domain.Account) domain.WebhookPayload {
	return domain.WebhookPayload{
		UserID:       account.ID,
		Username:     account.Username,
		Role:         string(account.Role),
		Status:       string(account.Status),
		CreditExpiry: account.CreditExpiry,
	}
}

// publishAccountEvent forwards one account event to the broker. Publish
// failures are logged and swallowed: the broker is an optional consumer,
// never part of the operation's success.
func (s *Service) publishAccountEvent(ctx context.Context, routingKey string, account *domain.Account) {
	event := rabbitmq.AccountEvent{
		EventType: routingKey,
		AccountID: account.ID,
		Username:  account.Username,
		Role:      string(account.Role),
		Status:    string(account.Status),
		Timestamp: time.Now().UTC(),
	}
	if err := s.producer.PublishAccountEvent(ctx, routingKey, event); err != nil {
		s.logger.Warn("account event publish failed",
			"routing_key", routingKey,
			"account_id", account.ID,
			"error", err,
		)
	}
}
