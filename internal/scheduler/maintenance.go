package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/wonny/dragon/internal/contracts"
	"github.com/wonny/dragon/pkg/logger"
)

// Retention windows for pruned records
const (
	runLogRetention = 180 * 24 * time.Hour
	alertRetention  = 90 * 24 * time.Hour
)

// Maintenance runs periodic housekeeping jobs.
// 일일 런과 달리 고정 주기라서 cron으로 충분하다.
type Maintenance struct {
	cron    *cron.Cron
	runLogs contracts.RunLogRepository
	alerts  contracts.AlertRepository
	logger  *logger.Logger
}

// NewMaintenance creates the maintenance job runner
func NewMaintenance(runLogs contracts.RunLogRepository, alerts contracts.AlertRepository, log *logger.Logger) *Maintenance {
	return &Maintenance{
		cron:    cron.New(),
		runLogs: runLogs,
		alerts:  alerts,
		logger:  log.WithField("module", "maintenance"),
	}
}

// Start registers and starts the housekeeping schedule
func (m *Maintenance) Start() error {
	// 매주 일요일 03:00 (런과 겹치지 않는 한가한 시간대)
	if _, err := m.cron.AddFunc("0 3 * * 0", m.prune); err != nil {
		return err
	}
	m.cron.Start()
	m.logger.Info("Maintenance jobs started")
	return nil
}

// Stop stops the cron loop and waits for a running job to finish
func (m *Maintenance) Stop() {
	ctx := m.cron.Stop()
	<-ctx.Done()
	m.logger.Info("Maintenance jobs stopped")
}

// prune deletes old run logs and resolved alerts
func (m *Maintenance) prune() {
	ctx := context.Background()
	now := time.Now().UTC()

	deletedLogs, err := m.runLogs.DeleteBefore(ctx, now.Add(-runLogRetention))
	if err != nil {
		m.logger.WithError(err).Error("Failed to prune run logs")
	}

	deletedAlerts, err := m.alerts.DeleteResolvedBefore(ctx, now.Add(-alertRetention))
	if err != nil {
		m.logger.WithError(err).Error("Failed to prune resolved alerts")
	}

	m.logger.WithFields(map[string]interface{}{
		"run_logs": deletedLogs,
		"alerts":   deletedAlerts,
	}).Info("Maintenance prune completed")
}
