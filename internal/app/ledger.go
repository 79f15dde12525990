/**
 * @description
 * Credit ledger operations of the Service: balance reads, credit transfers
 * between hierarchy levels, the unlimited-credit toggle and the
 * administrative balance correction. This layer owns authorization and
 * direction normalization; atomicity, row locking and sufficiency checks
 * live in the store's transfer methods.
 *
 * @dependencies
 * - internal/domain: Role predicates and ledger models.
 * - internal/store: Atomic ledger store methods and sentinel errors.
 */
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/painelpro/reseller-service/internal/domain"
	"github.com/painelpro/reseller-service/internal/store"
)

var (
	// ErrInvalidTransferAmount rejects zero-amount transfers.
	ErrInvalidTransferAmount = errors.New("transfer amount must not be zero")
	// ErrSelfTransfer rejects transfers where initiator and target are the
	// same account.
	ErrSelfTransfer = errors.New("credit cannot be transferred to the initiating account")
	// ErrClientCreditTarget rejects credit movements targeting client
	// accounts, which cannot spend credit.
	ErrClientCreditTarget = errors.New("client accounts cannot hold transferable credit")
	// ErrOperatorHasNoBalance rejects ledger writes targeting operator
	// accounts, which carry no balance row.
	ErrOperatorHasNoBalance = errors.New("operator accounts do not carry a credit balance")
)

// GetBalance returns the credit balance of the target account. Allowed for
// the account itself, its direct creator and operators. Operator accounts
// report a synthetic unlimited balance.
func (s *Service) GetBalance(ctx context.Context, callerID, targetID int64) (*domain.Balance, error) {
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
	if target.Role == domain.RoleOperator {
		return &domain.Balance{AccountID: target.ID, Unlimited: true}, nil
	}
	return s.repo.GetBalance(ctx, targetID)
}

// TransferCredit moves credit between the caller and the target account.
// A positive amount grants credit to the target, a negative amount reclaims
// it. Authorization follows the hierarchy: operators may move credit
// anywhere, everyone else only to and from accounts they directly created.
func (s *Service) TransferCredit(ctx context.Context, callerID int64, req domain.TransferCreditRequest) (*domain.TransferResult, error) {
	if req.Amount == 0 {
		return nil, ErrInvalidTransferAmount
	}
	if req.TargetID == callerID {
		return nil, ErrSelfTransfer
	}

	callerRole, err := s.resolver.Role(ctx, callerID)
	if err != nil {
		return nil, err
	}
	target, err := s.repo.FindAccountByID(ctx, req.TargetID)
	if err != nil {
		return nil, err
	}
	switch target.Role {
	case domain.RoleClient:
		return nil, ErrClientCreditTarget
	case domain.RoleOperator:
		return nil, ErrOperatorHasNoBalance
	}
	if !domain.CanManageCredits(callerRole, callerID, target.CreatorID) {
		s.metrics.RecordLedgerOperation("transfer", "unauthorized")
		return nil, ErrUnauthorized
	}

	names, err := s.repo.FindUsernamesByIDs(ctx, []int64{callerID, req.TargetID})
	if err != nil {
		return nil, err
	}
	callerName := names[callerID]
	targetName := names[req.TargetID]

	params := store.TransferCreditsParams{PerformedBy: callerID}
	if req.Amount > 0 {
		params.FromAccountID = callerID
		params.ToAccountID = req.TargetID
		params.Amount = req.Amount
		params.FromDescription = fmt.Sprintf("Transfer to %s %s", target.Role.Label(), targetName)
		params.ToDescription = fmt.Sprintf("Credit received from %s %s", callerRole.Label(), callerName)
	} else {
		params.FromAccountID = req.TargetID
		params.ToAccountID = callerID
		params.Amount = -req.Amount
		params.FromDescription = fmt.Sprintf("Credit reclaimed by %s %s", callerRole.Label(), callerName)
		params.ToDescription = fmt.Sprintf("Credit reclaimed from %s %s", target.Role.Label(), targetName)
	}

	result, err := s.repo.TransferCredits(ctx, params)
	if err != nil {
		outcome := "error"
		if errors.Is(err, store.ErrInsufficientCredit) {
			outcome = "insufficient"
		}
		s.metrics.RecordLedgerOperation("transfer", outcome)
		return nil, err
	}
	s.metrics.RecordLedgerOperation("transfer", "ok")
	s.logger.Info("credit transfer completed",
		"from", params.FromAccountID,
		"to", params.ToAccountID,
		"amount", params.Amount,
		"performed_by", callerID,
	)
	return result, nil
}

// SetUnlimited toggles the unlimited flag on the target's balance. Operator
// only and always free. Repeating the call with the same value is a no-op
// and writes no duplicate audit row.
func (s *Service) SetUnlimited(ctx context.Context, callerID int64, req domain.SetUnlimitedRequest) (*domain.Balance, error) {
	callerRole, err := s.resolver.Role(ctx, callerID)
	if err != nil {
		return nil, err
	}
	if callerRole != domain.RoleOperator {
		s.metrics.RecordLedgerOperation("set_unlimited", "unauthorized")
		return nil, ErrUnauthorized
	}

	target, err := s.repo.FindAccountByID(ctx, req.TargetID)
	if err != nil {
		return nil, err
	}
	if target.Role == domain.RoleOperator {
		return nil, ErrOperatorHasNoBalance
	}

	description := "Unlimited credit disabled"
	if req.Value {
		description = "Unlimited credit enabled"
	}
	changed, balance, err := s.repo.SetUnlimitedFlag(ctx, store.SetUnlimitedParams{
		AccountID:   req.TargetID,
		Value:       req.Value,
		Description: description,
		PerformedBy: callerID,
	})
	if err != nil {
		s.metrics.RecordLedgerOperation("set_unlimited", "error")
		return nil, err
	}
	s.metrics.RecordLedgerOperation("set_unlimited", "ok")
	if changed {
		s.logger.Info("unlimited credit flag changed",
			"account_id", req.TargetID,
			"unlimited", req.Value,
			"performed_by", callerID,
		)
	}
	return balance, nil
}

// CorrectBalance overwrites the target's balance with an expected-prior
// compare-and-swap. Operator only. This is an administrative escape hatch
// that bypasses the transfer audit trail, hence the warning log.
func (s *Service) CorrectBalance(ctx context.Context, callerID, targetID int64, req domain.CorrectBalanceRequest) (*domain.Balance, error) {
	callerRole, err := s.resolver.Role(ctx, callerID)
	if err != nil {
		return nil, err
	}
	if callerRole != domain.RoleOperator {
		return nil, ErrUnauthorized
	}

	target, err := s.repo.FindAccountByID(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if target.Role == domain.RoleOperator {
		return nil, ErrOperatorHasNoBalance
	}

	if err := s.repo.SetBalance(ctx, targetID, req.Balance, req.ExpectedPrior); err != nil {
		outcome := "error"
		if errors.Is(err, store.ErrBalanceConflict) {
			outcome = "conflict"
		}
		s.metrics.RecordLedgerOperation("balance_correction", outcome)
		return nil, err
	}
	s.metrics.RecordLedgerOperation("balance_correction", "ok")
	s.logger.Warn("administrative balance correction applied",
		"account_id", targetID,
		"balance", req.Balance,
		"expected_prior", req.ExpectedPrior,
		"performed_by", callerID,
	)
	return s.repo.GetBalance(ctx, targetID)
}

// ListTransactions returns the target account's transaction history, newest
// first. Visibility follows the same rule as GetBalance.
func (s *Service) ListTransactions(ctx context.Context, callerID, targetID int64, opts domain.TransactionListOptions) ([]domain.Transaction, error) {
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
	return s.repo.FindTransactionsByAccountID(ctx, targetID, opts)
}

// canViewLedger reports whether the caller may read the target's ledger:
// the account itself, its direct creator, or any operator.
func (s *Service) canViewLedger(ctx context.Context, callerID int64, target *domain.Account) (bool, error) {
	if callerID == target.ID {
		return true, nil
	}
	callerRole, err := s.resolver.Role(ctx, callerID)
	if err != nil {
		return false, err
	}
	return domain.CanManageCredits(callerRole, callerID, target.CreatorID), nil
}
