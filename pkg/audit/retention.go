package audit

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/kbforge/kbforge/pkg/observability"
)

// Cleaner is the subset of DBLogger the janitor needs
type Cleaner interface {
	Cleanup(ctx context.Context, olderThan time.Time) (int64, error)
}

// Janitor periodically deletes audit events older than the retention window
type Janitor struct {
	cleaner   Cleaner
	retention time.Duration
	logger    *observability.Logger
	cron      *cron.Cron
}

// NewJanitor creates a retention janitor. A retention of zero disables
// cleanup entirely.
func NewJanitor(cleaner Cleaner, retention time.Duration, logger *observability.Logger) *Janitor {
	return &Janitor{
		cleaner:   cleaner,
		retention: retention,
		logger:    logger,
		cron:      cron.New(),
	}
}

// Start schedules the cleanup job. Runs hourly at minute 17 to avoid
// colliding with top-of-the-hour batch work.
func (j *Janitor) Start() error {
	if j.retention <= 0 {
		j.logger.Info("audit retention disabled, janitor not scheduled")
		return nil
	}

	_, err := j.cron.AddFunc("17 * * * *", j.runOnce)
	if err != nil {
		return err
	}

	j.cron.Start()
	j.logger.WithField("retention", j.retention.String()).Info("audit retention janitor started")
	return nil
}

// Stop halts the schedule and waits for a running job to finish
func (j *Janitor) Stop() {
	ctx := j.cron.Stop()
	<-ctx.Done()
}

func (j *Janitor) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	cutoff := time.Now().UTC().Add(-j.retention)
	count, err := j.cleaner.Cleanup(ctx, cutoff)
	if err != nil {
		j.logger.WithError(err).Error("audit retention cleanup failed")
		return
	}

	if count > 0 {
		j.logger.WithFields(map[string]interface{}{
			"deleted": count,
			"cutoff":  cutoff.Format(time.RFC3339),
		}).Info("audit retention cleanup completed")
	}
}
