/**
 * @description
 * Background expiry sweep. A cron schedule flips active accounts whose
 * credit expiry has passed to inactive and fires one update_user_status
 * notification per flip. The sweep drains in batches so a large backlog
 * after downtime is still processed in one run.
 *
 * @dependencies
 * - github.com/robfig/cron/v3: Cron scheduling with panic recovery.
 */
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/painelpro/reseller-service/internal/domain"
	"github.com/painelpro/reseller-service/pkg/rabbitmq"
)

const sweepBatchSize = 200

// SweepExpiredAccounts deactivates every active account whose credit expiry
// day has passed and returns the number of accounts flipped. Each flip
// dispatches an update_user_status lifecycle event. Errors on individual
// accounts are logged and skipped so one bad row cannot stall the sweep.
func (s *Service) SweepExpiredAccounts(ctx context.Context) (int, error) {
	flipped := 0
	for {
		expired, err := s.repo.FindExpiredActiveAccounts(ctx, sweepBatchSize)
		if err != nil {
			return flipped, err
		}
		if len(expired) == 0 {
			return flipped, nil
		}

		progressed := 0
		for _, account := range expired {
			changed, err := s.repo.UpdateAccountStatus(ctx, account.ID, domain.StatusInactive)
			if err != nil {
				s.logger.Error("expiry sweep update failed", "account_id", account.ID, "error", err)
				continue
			}
			if !changed {
				continue
			}
			progressed++
			flipped++

			deactivated := account
			deactivated.Status = domain.StatusInactive
			payload := lifecyclePayload(&deactivated)
			payload.OldStatus = string(account.Status)
			payload.NewStatus = string(domain.StatusInactive)
			s.notifier.Dispatch(domain.EventUpdateUserStatus, payload)
			s.publishAccountEvent(ctx, rabbitmq.RoutingKeyAccountStatusChanged, &deactivated)
		}

		// A batch where nothing changed means the remaining rows cannot be
		// flipped right now; stop instead of refetching them forever.
		if progressed == 0 {
			s.logger.Warn("expiry sweep made no progress, stopping", "remaining", len(expired))
			return flipped, nil
		}
		if len(expired) < sweepBatchSize {
			return flipped, nil
		}
	}
}

// Scheduler runs the expiry sweep on a cron schedule.
type Scheduler struct {
	cron     *cron.Cron
	service  *Service
	logger   *slog.Logger
	schedule string
}

// NewScheduler creates the cron runner. The schedule uses standard five-field
// cron syntax. Panics inside jobs are recovered and logged instead of
// killing the process.
func NewScheduler(service *Service, logger *slog.Logger, schedule string) *Scheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelError))
	return &Scheduler{
		cron:     cron.New(cron.WithChain(cron.Recover(cronLogger))),
		service:  service,
		logger:   logger,
		schedule: schedule,
	}
}

// Start registers the sweep job and starts the cron loop.
func (sch *Scheduler) Start() error {
	if _, err := sch.cron.AddFunc(sch.schedule, sch.runSweep); err != nil {
		return err
	}
	sch.cron.Start()
	sch.logger.Info("expiry sweep scheduled", "schedule", sch.schedule)
	return nil
}

// Stop halts the cron loop and returns a context that is done once running
// jobs finish.
func (sch *Scheduler) Stop() context.Context {
	return sch.cron.Stop()
}

func (sch *Scheduler) runSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	start := time.Now()
	flipped, err := sch.service.SweepExpiredAccounts(ctx)
	if err != nil {
		sch.logger.Error("expiry sweep failed", "flipped", flipped, "error", err)
		return
	}
	sch.logger.Info("expiry sweep completed", "flipped", flipped, "duration", time.Since(start).String())
}
