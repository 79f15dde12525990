package app

import (
	"context"
	"errors"
	"testing"

	"github.com/painelpro/reseller-service/internal/domain"
	"github.com/painelpro/reseller-service/internal/store"
)

type integrationRepoStub struct {
	store.Repository

	roles    map[int64]domain.Role
	settings domain.IntegrationSettings
	upserted *store.IntegrationSettingsParams
	events   []domain.LifecycleEvent
}

func (s *integrationRepoStub) FindRolesByIDs(ctx context.Context, accountIDs []int64) (map[int64]domain.Role, error) {
	roles := make(map[int64]domain.Role, len(accountIDs))
	for _, id := range accountIDs {
		if role, ok := s.roles[id]; ok {
			roles[id] = role
		}
	}
	return roles, nil
}

func (s *integrationRepoStub) GetIntegrationSettings(ctx context.Context) (*domain.IntegrationSettings, error) {
	settings := s.settings
	return &settings, nil
}

func (s *integrationRepoStub) UpsertIntegrationSettings(ctx context.Context, params store.IntegrationSettingsParams) (*domain.IntegrationSettings, error) {
	s.upserted = &params
	return &domain.IntegrationSettings{
		WebhookURL:    params.WebhookURL,
		WebhookSecret: params.WebhookSecret,
		Enabled:       params.Enabled,
	}, nil
}

func (s *integrationRepoStub) ListLifecycleEvents(ctx context.Context, opts domain.LifecycleEventListOptions) ([]domain.LifecycleEvent, error) {
	return s.events, nil
}

func operatorOnlyRepo() *integrationRepoStub {
	return &integrationRepoStub{
		roles: map[int64]domain.Role{9: domain.RoleOperator, 1: domain.RoleMaster},
	}
}

func TestUpdateIntegrationSettings_OperatorOnly(t *testing.T) {
	repo := operatorOnlyRepo()
	svc, _, _ := newTestService(repo)

	_, err := svc.UpdateIntegrationSettings(context.Background(), 1, domain.IntegrationSettingsRequest{
		WebhookURL: "https://hooks.example.com/painel",
		Enabled:    true,
	})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if repo.upserted != nil {
		t.Fatal("expected no settings write")
	}
}

func TestUpdateIntegrationSettings_RejectsBlockedEndpoints(t *testing.T) {
	repo := operatorOnlyRepo()
	svc, _, _ := newTestService(repo)

	blocked := []string{
		"http://127.0.0.1/hook",
		"http://localhost/hook",
		"http://10.1.2.3/hook",
		"http://169.254.169.254/latest/meta-data",
		"ftp://hooks.example.com/painel",
	}
	for _, url := range blocked {
		_, err := svc.UpdateIntegrationSettings(context.Background(), 9, domain.IntegrationSettingsRequest{
			WebhookURL: url,
			Enabled:    true,
		})
		if !errors.Is(err, ErrInvalidWebhookEndpoint) {
			t.Fatalf("expected %q rejected, got %v", url, err)
		}
	}
	if repo.upserted != nil {
		t.Fatal("expected no settings write for blocked endpoints")
	}
}

func TestUpdateIntegrationSettings_EmptySecretKeepsStored(t *testing.T) {
	repo := operatorOnlyRepo()
	repo.settings = domain.IntegrationSettings{
		WebhookURL:    "https://hooks.example.com/old",
		WebhookSecret: "stored-secret",
		Enabled:       true,
	}
	svc, _, _ := newTestService(repo)

	updated, err := svc.UpdateIntegrationSettings(context.Background(), 9, domain.IntegrationSettingsRequest{
		WebhookURL: "https://hooks.example.com/new",
		Enabled:    true,
	})
	if err != nil {
		t.Fatalf("UpdateIntegrationSettings returned error: %v", err)
	}
	if repo.upserted.WebhookSecret != "stored-secret" {
		t.Fatalf("expected stored secret kept, got %q", repo.upserted.WebhookSecret)
	}
	if updated.WebhookURL != "https://hooks.example.com/new" {
		t.Fatalf("expected new url stored, got %q", updated.WebhookURL)
	}
}

func TestUpdateIntegrationSettings_NewSecretReplacesStored(t *testing.T) {
	repo := operatorOnlyRepo()
	repo.settings = domain.IntegrationSettings{WebhookSecret: "stored-secret"}
	svc, _, _ := newTestService(repo)

	_, err := svc.UpdateIntegrationSettings(context.Background(), 9, domain.IntegrationSettingsRequest{
		WebhookURL:    "https://hooks.example.com/painel",
		WebhookSecret: "fresh-secret",
		Enabled:       true,
	})
	if err != nil {
		t.Fatalf("UpdateIntegrationSettings returned error: %v", err)
	}
	if repo.upserted.WebhookSecret != "fresh-secret" {
		t.Fatalf("expected fresh secret stored, got %q", repo.upserted.WebhookSecret)
	}
}

func TestGetIntegrationSettings_OperatorOnly(t *testing.T) {
	repo := operatorOnlyRepo()
	svc, _, _ := newTestService(repo)

	if _, err := svc.GetIntegrationSettings(context.Background(), 1); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if _, err := svc.GetIntegrationSettings(context.Background(), 9); err != nil {
		t.Fatalf("expected operator read to succeed, got %v", err)
	}
}

func TestListLifecycleEvents_OperatorOnly(t *testing.T) {
	repo := operatorOnlyRepo()
	repo.events = []domain.LifecycleEvent{{ID: 1, EventType: domain.EventDeleteUser}}
	svc, _, _ := newTestService(repo)

	if _, err := svc.ListLifecycleEvents(context.Background(), 1, domain.LifecycleEventListOptions{}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	events, err := svc.ListLifecycleEvents(context.Background(), 9, domain.LifecycleEventListOptions{})
	if err != nil {
		t.Fatalf("ListLifecycleEvents returned error: %v", err)
	}
	if len(events) != 1 || events[0].EventType != domain.EventDeleteUser {
		t.Fatalf("unexpected events: %+v", events)
	}
}
