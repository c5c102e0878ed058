package workers

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"hookrelay/internal/pkg/metrics"
	"hookrelay/internal/platform/audit"
	"hookrelay/internal/platform/config"
)

// RequestPruner deletes captured requests older than a cutoff.
type RequestPruner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

var scheduleParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Retention prunes old captured requests on a cron schedule.
type Retention struct {
	pruner   RequestPruner
	audit    *audit.Logger
	schedule cron.Schedule
	expr     string
	maxAge   time.Duration
	now      func() time.Time
	cron     *cron.Cron
}

func NewRetention(cfg config.RetentionConfig, pruner RequestPruner, auditLogger *audit.Logger) (*Retention, error) {
	if cfg.MaxAge <= 0 {
		return nil, fmt.Errorf("retention max_age must be positive, got %s", cfg.MaxAge)
	}
	schedule, err := scheduleParser.Parse(cfg.Schedule)
	if err != nil {
		return nil, fmt.Errorf("invalid retention schedule %q: %w", cfg.Schedule, err)
	}

	return &Retention{
		pruner:   pruner,
		audit:    auditLogger,
		schedule: schedule,
		expr:     cfg.Schedule,
		maxAge:   cfg.MaxAge,
		now:      time.Now,
	}, nil
}

// RunOnce deletes everything captured more than maxAge ago and returns the
// number of rows removed.
func (r *Retention) RunOnce(ctx context.Context) (int64, error) {
	cutoff := r.now().Add(-r.maxAge)

	deleted, err := r.pruner.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		metrics.StorageErrorsTotal.WithLabelValues("retention").Inc()
		return 0, err
	}

	metrics.RetentionDeletedTotal.Add(float64(deleted))
	r.audit.Log(nil, audit.ActionRetentionCleanup, "request", "", map[string]interface{}{
		"cutoff":  cutoff.UTC().Format(time.RFC3339),
		"deleted": deleted,
	})
	log.Info().Int64("deleted", deleted).Time("cutoff", cutoff).Msg("retention sweep finished")
	return deleted, nil
}

// Start schedules RunOnce and returns immediately. Stop waits for a running
// sweep to finish.
func (r *Retention) Start(ctx context.Context) {
	r.cron = cron.New()
	r.cron.Schedule(r.schedule, cron.FuncJob(func() {
		if _, err := r.RunOnce(ctx); err != nil {
			log.Error().Err(err).Msg("retention sweep failed")
		}
	}))
	r.cron.Start()
	log.Info().Str("schedule", r.expr).Dur("max_age", r.maxAge).Msg("retention worker started")
}

func (r *Retention) Stop() {
	if r.cron == nil {
		return
	}
	<-r.cron.Stop().Done()
}
