package service

import (
	"context"
	"time"

	"supportbridge/internal/constants"

	"github.com/sirupsen/logrus"
)

// RetentionStore defines the cleanup operation the scheduler runs.
type RetentionStore interface {
	CleanupOldRecords(retentionDays int) error
}

// Scheduler prunes old import records and delivery attempts on a fixed
// interval.
type Scheduler struct {
	db            RetentionStore
	retentionDays int
	intervalHours int
	logger        *logrus.Logger
	stopCh        chan struct{}
}

func NewScheduler(db RetentionStore, retentionDays, intervalHours int, logger *logrus.Logger) *Scheduler {
	if retentionDays <= 0 {
		retentionDays = constants.DefaultRetentionDays
	}
	if intervalHours <= 0 {
		intervalHours = constants.CleanupSchedulerIntervalHours
	}
	return &Scheduler{
		db:            db,
		retentionDays: retentionDays,
		intervalHours: intervalHours,
		logger:        logger,
		stopCh:        make(chan struct{}),
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(s.intervalHours) * time.Hour)
	defer ticker.Stop()

	s.logger.Info("Starting cleanup scheduler")

	s.runCleanup()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler context cancelled, stopping")
			return
		case <-s.stopCh:
			s.logger.Info("Scheduler stop signal received, stopping")
			return
		case <-ticker.C:
			s.runCleanup()
		}
	}
}

func (s *Scheduler) Stop() {
	close(s.stopCh)
}

func (s *Scheduler) runCleanup() {
	s.logger.WithField("retentionDays", s.retentionDays).Info("Running scheduled cleanup")

	if err := s.db.CleanupOldRecords(s.retentionDays); err != nil {
		s.logger.WithField("error", err).Error("Failed to clean up old records")
	}
}
