/**
 * @description
 * The lifecycle Notifier delivers account lifecycle events (create_user,
 * delete_user, update_user_status) to the operator-configured webhook and
 * records every attempt in the lifecycle_events audit log. Delivery runs on
 * its own goroutine after the triggering operation commits: the orchestrator
 * guarantees the attempt, never the delivery, and a dead endpoint can never
 * fail or slow down provisioning.
 *
 * Exactly one audit row is written per dispatched event, whatever the
 * outcome: delivered, rejected, transport failure or webhook not configured.
 *
 * @dependencies
 * - github.com/google/uuid: Event ids for webhook consumers to deduplicate on.
 * - pkg/webhookclient: SSRF-guarded HTTP delivery with HMAC signing.
 */
package app

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/painelpro/reseller-service/internal/domain"
	"github.com/painelpro/reseller-service/internal/metrics"
	"github.com/painelpro/reseller-service/internal/store"
	"github.com/painelpro/reseller-service/pkg/webhookclient"
)

const (
	defaultDeliveryTimeout = 10 * time.Second
	// recordTimeout bounds the audit-row write separately from delivery, so
	// a webhook that eats the whole delivery window cannot starve the write.
	recordTimeout = 5 * time.Second
)

// Notifier dispatches lifecycle webhooks and writes the audit log.
type Notifier struct {
	repo    store.Repository
	client  *webhookclient.Client
	logger  *slog.Logger
	metrics metrics.Recorder
	timeout time.Duration
}

// NewNotifier creates a Notifier. A zero timeout falls back to 10 seconds.
func NewNotifier(repo store.Repository, client *webhookclient.Client, logger *slog.Logger, recorder metrics.Recorder, timeout time.Duration) *Notifier {
	if timeout <= 0 {
		timeout = defaultDeliveryTimeout
	}
	return &Notifier{
		repo:    repo,
		client:  client,
		logger:  logger,
		metrics: recorder,
		timeout: timeout,
	}
}

// Dispatch queues one lifecycle event for delivery and returns immediately.
// It never returns an error; failures surface in the audit log and metrics.
func (n *Notifier) Dispatch(event string, payload domain.WebhookPayload) {
	payload.Event = event
	if payload.EventID == "" {
		payload.EventID = uuid.NewString()
	}
	if payload.Timestamp.IsZero() {
		payload.Timestamp = time.Now().UTC()
	}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				n.logger.Error("lifecycle dispatch panic recovered", "event", event, "panic", r)
			}
		}()
		n.deliver(context.Background(), event, payload)
	}()
}

// deliver performs one delivery attempt and records its outcome. Split from
// Dispatch so tests can run it synchronously.
func (n *Notifier) deliver(ctx context.Context, event string, payload domain.WebhookPayload) {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	body, err := json.Marshal(payload)
	if err != nil {
		n.logger.Error("lifecycle payload marshal failed", "event", event, "error", err)
		return
	}

	record := &domain.LifecycleEvent{
		EventType: event,
		Payload:   body,
		AccountID: payload.UserID,
	}

	settings, err := n.repo.GetIntegrationSettings(ctx)
	switch {
	case err != nil:
		msg := "integration settings unavailable: " + err.Error()
		record.Error = &msg
		n.metrics.RecordWebhookDispatch(event, "error")
		n.logger.Error("lifecycle settings load failed", "event", event, "error", err)

	case settings.WebhookURL == "" || !settings.Enabled:
		// Recorded with neither status nor error: the event happened but no
		// delivery was attempted.
		n.metrics.RecordWebhookDispatch(event, "skipped")
		n.logger.Info("lifecycle event recorded without dispatch, webhook not configured",
			"event", event, "account_id", payload.UserID)

	default:
		record.Endpoint = settings.WebhookURL
		start := time.Now()
		result, postErr := n.client.Post(ctx, settings.WebhookURL, settings.WebhookSecret, body)
		n.metrics.RecordWebhookLatency(time.Since(start))

		if postErr != nil {
			msg := postErr.Error()
			record.Error = &msg
			n.metrics.RecordWebhookDispatch(event, "transport_error")
			n.logger.Warn("lifecycle webhook delivery failed",
				"event", event, "account_id", payload.UserID, "error", postErr)
		} else {
			record.ResponseStatus = &result.Status
			if result.Body != "" {
				respBody := result.Body
				record.ResponseBody = &respBody
			}
			outcome := "rejected"
			if result.Status >= 200 && result.Status < 300 {
				outcome = "ok"
			}
			n.metrics.RecordWebhookDispatch(event, outcome)
			n.logger.Info("lifecycle webhook delivered",
				"event", event, "account_id", payload.UserID, "status", result.Status)
		}
	}

	recordCtx, recordCancel := context.WithTimeout(context.Background(), recordTimeout)
	defer recordCancel()
	if err := n.repo.CreateLifecycleEvent(recordCtx, record); err != nil {
		n.logger.Error("failed to record lifecycle event",
			"event", event, "account_id", payload.UserID, "error", err)
	}
}
