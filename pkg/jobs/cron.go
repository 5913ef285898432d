package jobs

import (
	"context"
	"time"

	"github.com/am0414/success-academy-international/pkg/billing"
	"github.com/am0414/success-academy-international/pkg/logger"
	"github.com/robfig/cron/v3"
)

// DiscountSyncer recomputes every billable student's referral discount
type DiscountSyncer interface {
	SyncAllDiscounts(ctx context.Context) (billing.SyncSummary, error)
}

// EventPurger forgets processed webhook events older than a cutoff
type EventPurger interface {
	PurgeBefore(ctx context.Context, before time.Time) (int64, error)
}

// Config holds job schedules in standard five-field cron syntax
type Config struct {
	DiscountSyncSchedule string
	EventPurgeSchedule   string
	EventRetention       time.Duration
}

// CronManager manages scheduled jobs
type CronManager struct {
	cron    *cron.Cron
	config  Config
	syncer  DiscountSyncer
	purger  EventPurger
	logger  logger.Logger
	now     func() time.Time
	timeout time.Duration
}

// NewCronManager creates a new cron manager. purger may be nil when
// processed events expire on their own.
func NewCronManager(config Config, syncer DiscountSyncer, purger EventPurger, log logger.Logger) *CronManager {
	if config.DiscountSyncSchedule == "" {
		config.DiscountSyncSchedule = "0 3 * * *"
	}
	if config.EventPurgeSchedule == "" {
		config.EventPurgeSchedule = "30 4 * * *"
	}
	if config.EventRetention <= 0 {
		config.EventRetention = 7 * 24 * time.Hour
	}

	return &CronManager{
		cron:    cron.New(),
		config:  config,
		syncer:  syncer,
		purger:  purger,
		logger:  log.With("component", "cron"),
		now:     time.Now,
		timeout: 30 * time.Minute,
	}
}

// SetupJobs configures all scheduled jobs
func (cm *CronManager) SetupJobs() error {
	cm.logger.Info("setting up cron jobs")

	_, err := cm.cron.AddFunc(cm.config.DiscountSyncSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), cm.timeout)
		defer cancel()
		cm.RunDiscountSync(ctx)
	})
	if err != nil {
		return err
	}

	if cm.purger != nil {
		_, err = cm.cron.AddFunc(cm.config.EventPurgeSchedule, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()
			cm.RunEventPurge(ctx)
		})
		if err != nil {
			return err
		}
	}

	cm.logger.Info("cron jobs configured",
		"discount_sync", cm.config.DiscountSyncSchedule,
		"event_purge", cm.purgeSchedule(),
	)
	return nil
}

// RunDiscountSync runs one discount reconciliation sweep
func (cm *CronManager) RunDiscountSync(ctx context.Context) {
	cm.logger.Info("running discount sync job")
	started := cm.now()

	summary, err := cm.syncer.SyncAllDiscounts(ctx)
	if err != nil {
		cm.logger.Error("discount sync job failed", "error", err, "checked", summary.Checked)
		return
	}

	cm.logger.Info("discount sync job completed",
		"checked", summary.Checked,
		"failed", summary.Failed,
		"duration", cm.now().Sub(started).String(),
	)
}

// RunEventPurge deletes processed webhook events past the retention window
func (cm *CronManager) RunEventPurge(ctx context.Context) {
	if cm.purger == nil {
		return
	}
	cutoff := cm.now().Add(-cm.config.EventRetention)
	n, err := cm.purger.PurgeBefore(ctx, cutoff)
	if err != nil {
		cm.logger.Error("webhook event purge failed", "error", err)
		return
	}
	cm.logger.Info("webhook events purged", "deleted", n, "before", cutoff)
}

// Entries returns the number of scheduled jobs
func (cm *CronManager) Entries() int {
	return len(cm.cron.Entries())
}

// Start starts the cron scheduler
func (cm *CronManager) Start() {
	cm.logger.Info("starting cron scheduler")
	cm.cron.Start()
}

// Stop stops the scheduler; the returned context is done once running jobs finish
func (cm *CronManager) Stop() context.Context {
	cm.logger.Info("stopping cron scheduler")
	return cm.cron.Stop()
}

func (cm *CronManager) purgeSchedule() string {
	if cm.purger == nil {
		return "disabled"
	}
	return cm.config.EventPurgeSchedule
}
