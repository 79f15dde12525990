package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/painelpro/reseller-service/internal/domain"
	"github.com/painelpro/reseller-service/internal/metrics"
	"github.com/painelpro/reseller-service/internal/store"
	"github.com/painelpro/reseller-service/pkg/rabbitmq"
)

type dispatchedEvent struct {
	event   string
	payload domain.WebhookPayload
}

type dispatcherStub struct {
	events []dispatchedEvent
}

func (d *dispatcherStub) Dispatch(event string, payload domain.WebhookPayload) {
	d.events = append(d.events, dispatchedEvent{event: event, payload: payload})
}

type producerStub struct {
	routingKeys []string
	events      []rabbitmq.AccountEvent
}

func (p *producerStub) PublishAccountEvent(ctx context.Context, routingKey string, event rabbitmq.AccountEvent) error {
	p.routingKeys = append(p.routingKeys, routingKey)
	p.events = append(p.events, event)
	return nil
}

func (p *producerStub) Close() {}

func newTestService(repo store.Repository) (*Service, *dispatcherStub, *producerStub) {
	dispatcher := &dispatcherStub{}
	producer := &producerStub{}
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	svc := NewService(repo, NewRoleResolver(repo), dispatcher, producer, metrics.Noop{}, logger)
	return svc, dispatcher, producer
}

type createRepoStub struct {
	store.Repository

	callerRole domain.Role
	created    *store.CreateAccountParams
	createErr  error
}

func (s *createRepoStub) FindRolesByIDs(ctx context.Context, accountIDs []int64) (map[int64]domain.Role, error) {
	roles := make(map[int64]domain.Role, len(accountIDs))
	for _, id := range accountIDs {
		roles[id] = s.callerRole
	}
	return roles, nil
}

func (s *createRepoStub) CreateAccount(ctx context.Context, params store.CreateAccountParams) (*domain.Account, error) {
	s.created = &params
	if s.createErr != nil {
		return nil, s.createErr
	}
	return &domain.Account{
		ID:           100,
		Username:     params.Username,
		Role:         params.Role,
		CreatorID:    params.CreatorID,
		Status:       params.Status,
		CreditExpiry: params.CreditExpiry,
	}, nil
}

func TestCreateAccount_ClientChargesCreator(t *testing.T) {
	repo := &createRepoStub{callerRole: domain.RoleMaster}
	svc, dispatcher, producer := newTestService(repo)

	account, err := svc.CreateAccount(context.Background(), 1, domain.CreateAccountRequest{
		Username: "cliente1",
		Password: "secret123",
		Role:     "client",
	})
	if err != nil {
		t.Fatalf("CreateAccount returned error: %v", err)
	}
	if repo.created == nil {
		t.Fatal("expected account to be persisted")
	}
	if repo.created.ChargeAmount != domain.ProvisioningCost {
		t.Fatalf("expected charge of %d credit, got %d", domain.ProvisioningCost, repo.created.ChargeAmount)
	}
	if repo.created.ChargePayerID != 1 {
		t.Fatalf("expected creator to pay, got payer %d", repo.created.ChargePayerID)
	}
	if repo.created.PasswordHash == "" || repo.created.PasswordHash == "secret123" {
		t.Fatal("expected password to be stored hashed")
	}
	if repo.created.CreditExpiry == nil {
		t.Fatal("expected credit expiry to be set")
	}
	wantExpiry := time.Now().UTC().AddDate(0, 0, domain.CreditValidityDays)
	if diff := repo.created.CreditExpiry.Sub(wantExpiry); diff < -time.Minute || diff > time.Minute {
		t.Fatalf("expected expiry near %v, got %v", wantExpiry, *repo.created.CreditExpiry)
	}

	if len(dispatcher.events) != 1 || dispatcher.events[0].event != domain.EventCreateUser {
		t.Fatalf("expected one create_user event, got %+v", dispatcher.events)
	}
	if dispatcher.events[0].payload.UserID != account.ID {
		t.Fatalf("expected payload for account %d, got %d", account.ID, dispatcher.events[0].payload.UserID)
	}
	if len(producer.routingKeys) != 1 || producer.routingKeys[0] != rabbitmq.RoutingKeyAccountCreated {
		t.Fatalf("expected account.created broker event, got %v", producer.routingKeys)
	}
}

func TestCreateAccount_TrialClientIsFreeAndExpiresToday(t *testing.T) {
	repo := &createRepoStub{callerRole: domain.RoleReseller}
	svc, _, _ := newTestService(repo)

	_, err := svc.CreateAccount(context.Background(), 3, domain.CreateAccountRequest{
		Username: "teste1",
		Password: "secret123",
		Role:     "client",
		Trial:    true,
	})
	if err != nil {
		t.Fatalf("CreateAccount returned error: %v", err)
	}
	if repo.created.ChargeAmount != 0 {
		t.Fatalf("expected trial creation to be free, got charge %d", repo.created.ChargeAmount)
	}
	if repo.created.CreditExpiry == nil {
		t.Fatal("expected trial expiry to be set")
	}
	if diff := time.Since(*repo.created.CreditExpiry); diff < -time.Minute || diff > time.Minute {
		t.Fatalf("expected trial expiry at creation time, got %v", *repo.created.CreditExpiry)
	}
}

func TestCreateAccount_OperatorCreatesClientWithoutCharge(t *testing.T) {
	repo := &createRepoStub{callerRole: domain.RoleOperator}
	svc, _, _ := newTestService(repo)

	_, err := svc.CreateAccount(context.Background(), 9, domain.CreateAccountRequest{
		Username: "cliente2",
		Password: "secret123",
		Role:     "client",
	})
	if err != nil {
		t.Fatalf("CreateAccount returned error: %v", err)
	}
	if repo.created.ChargeAmount != 0 {
		t.Fatalf("expected operator creation to be free, got charge %d", repo.created.ChargeAmount)
	}
}

func TestCreateAccount_MasterCreatesResellerFree(t *testing.T) {
	repo := &createRepoStub{callerRole: domain.RoleMaster}
	svc, _, _ := newTestService(repo)

	_, err := svc.CreateAccount(context.Background(), 1, domain.CreateAccountRequest{
		Username: "revenda1",
		Password: "secret123",
		Role:     "reseller",
	})
	if err != nil {
		t.Fatalf("CreateAccount returned error: %v", err)
	}
	if repo.created.ChargeAmount != 0 {
		t.Fatalf("expected reseller creation to be free, got charge %d", repo.created.ChargeAmount)
	}
	if repo.created.CreditExpiry == nil {
		t.Fatal("expected reseller to get a credit expiry")
	}
}

func TestCreateAccount_InsufficientCreditAborts(t *testing.T) {
	repo := &createRepoStub{callerRole: domain.RoleReseller, createErr: store.ErrInsufficientCredit}
	svc, dispatcher, producer := newTestService(repo)

	_, err := svc.CreateAccount(context.Background(), 3, domain.CreateAccountRequest{
		Username: "cliente3",
		Password: "secret123",
		Role:     "client",
	})
	if !errors.Is(err, store.ErrInsufficientCredit) {
		t.Fatalf("expected ErrInsufficientCredit, got %v", err)
	}
	if len(dispatcher.events) != 0 {
		t.Fatalf("expected no lifecycle events for failed creation, got %+v", dispatcher.events)
	}
	if len(producer.routingKeys) != 0 {
		t.Fatalf("expected no broker events for failed creation, got %v", producer.routingKeys)
	}
}

func TestCreateAccount_ResellerCannotCreateMaster(t *testing.T) {
	repo := &createRepoStub{callerRole: domain.RoleReseller}
	svc, dispatcher, _ := newTestService(repo)

	_, err := svc.CreateAccount(context.Background(), 3, domain.CreateAccountRequest{
		Username: "master2",
		Password: "secret123",
		Role:     "master",
	})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if repo.created != nil {
		t.Fatal("expected no persistence for unauthorized creation")
	}
	if len(dispatcher.events) != 0 {
		t.Fatal("expected no lifecycle events for unauthorized creation")
	}
}

func TestCreateAccount_UnknownRoleRejected(t *testing.T) {
	repo := &createRepoStub{callerRole: domain.RoleOperator}
	svc, _, _ := newTestService(repo)

	_, err := svc.CreateAccount(context.Background(), 9, domain.CreateAccountRequest{
		Username: "whoever",
		Password: "secret123",
		Role:     "superuser",
	})
	if !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("expected ErrInvalidRole, got %v", err)
	}
}
