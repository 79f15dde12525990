/**
 * @description
 * Operator-only management of the lifecycle webhook integration: reading and
 * updating the endpoint configuration and paging through the delivery audit
 * log. Endpoint changes are validated against private and loopback ranges
 * before they are stored, complementing the transport-level guard the
 * webhook client applies on every delivery.
 */
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/painelpro/reseller-service/internal/domain"
	"github.com/painelpro/reseller-service/internal/store"
	"github.com/painelpro/reseller-service/pkg/webhookclient"
)

// ErrInvalidWebhookEndpoint rejects webhook URLs pointing at loopback,
// private or otherwise blocked destinations.
var ErrInvalidWebhookEndpoint = errors.New("webhook endpoint is not allowed")

// GetIntegrationSettings returns the webhook configuration. Operator only.
func (s *Service) GetIntegrationSettings(ctx context.Context, callerID int64) (*domain.IntegrationSettings, error) {
	if err := s.requireOperator(ctx, callerID); err != nil {
		return nil, err
	}
	return s.repo.GetIntegrationSettings(ctx)
}

// UpdateIntegrationSettings stores a new webhook configuration. Operator
// only. An empty secret keeps the stored one, so operators never need to
// resend it. A non-empty URL must pass the endpoint guard.
func (s *Service) UpdateIntegrationSettings(ctx context.Context, callerID int64, req domain.IntegrationSettingsRequest) (*domain.IntegrationSettings, error) {
	if err := s.requireOperator(ctx, callerID); err != nil {
		return nil, err
	}
	if req.WebhookURL != "" {
		if err := webhookclient.ValidateEndpointURL(req.WebhookURL); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidWebhookEndpoint, err)
		}
	}

	secret := req.WebhookSecret
	if secret == "" {
		current, err := s.repo.GetIntegrationSettings(ctx)
		if err != nil {
			return nil, err
		}
		secret = current.WebhookSecret
	}

	updated, err := s.repo.UpsertIntegrationSettings(ctx, store.IntegrationSettingsParams{
		WebhookURL:    req.WebhookURL,
		WebhookSecret: secret,
		Enabled:       req.Enabled,
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("integration settings updated",
		"webhook_url", updated.WebhookURL,
		"enabled", updated.Enabled,
		"performed_by", callerID,
	)
	return updated, nil
}

// ListLifecycleEvents pages through the webhook delivery audit log. Operator
// only.
func (s *Service) ListLifecycleEvents(ctx context.Context, callerID int64, opts domain.LifecycleEventListOptions) ([]domain.LifecycleEvent, error) {
	if err := s.requireOperator(ctx, callerID); err != nil {
		return nil, err
	}
	return s.repo.ListLifecycleEvents(ctx, opts)
}

func (s *Service) requireOperator(ctx context.Context, callerID int64) error {
	callerRole, err := s.resolver.Role(ctx, callerID)
	if err != nil {
		return err
	}
	if callerRole != domain.RoleOperator {
		return ErrUnauthorized
	}
	return nil
}
