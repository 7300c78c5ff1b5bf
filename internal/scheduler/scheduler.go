package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/wonny/dragon/internal/contracts"
	"github.com/wonny/dragon/internal/pipeline"
	"github.com/wonny/dragon/internal/settings"
	"github.com/wonny/dragon/pkg/logger"
)

// Runner triggers one pipeline run
type Runner interface {
	Run(ctx context.Context) (*contracts.RunSummary, error)
}

// Scheduler arms a one-shot timer for the next daily run.
// ⭐ SSOT: 일일 런 스케줄 관리는 여기서만
//
// cron 표현식이 아니라 단발 타이머를 쓴다. 설정의 HH:MM/타임존이 런타임에
// 바뀔 수 있고, 매 발화 후 그 시점의 설정으로 다시 조준해야 하기 때문.
type Scheduler struct {
	runner   Runner
	settings *settings.Service
	logger   *logger.Logger
	clock    func() time.Time

	mu      sync.Mutex
	timer   *time.Timer
	nextRun *time.Time
	stopped bool
}

// New creates a new scheduler
func New(runner Runner, settingsSvc *settings.Service, log *logger.Logger) *Scheduler {
	return &Scheduler{
		runner:   runner,
		settings: settingsSvc,
		logger:   log.WithField("module", "scheduler"),
		clock:    time.Now,
	}
}

// Start arms the timer per the current settings and re-arms on every change
func (s *Scheduler) Start() {
	s.settings.OnChange(func(st settings.State) {
		s.logger.Info("Settings changed, re-arming schedule")
		s.arm(st)
	})
	s.arm(s.settings.Current())
}

// Stop cancels the pending timer. 진행 중인 런은 중단하지 않는다.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.nextRun = nil
	s.logger.Info("Scheduler stopped")
}

// NextScheduled returns the currently armed fire time, if any
func (s *Scheduler) NextScheduled() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.nextRun == nil {
		return nil
	}
	t := *s.nextRun
	return &t
}

// arm replaces the pending timer according to the given settings
func (s *Scheduler) arm(st settings.State) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.nextRun = nil

	if s.stopped {
		return
	}
	if !st.ScheduleEnabled {
		s.logger.Info("Schedule disabled, no run armed")
		return
	}

	next, err := NextRun(s.clock(), st)
	if err != nil {
		// Update()가 검증하므로 여기 오면 저장된 설정이 깨진 것
		s.logger.WithError(err).Error("Invalid schedule settings, no run armed")
		return
	}

	s.nextRun = &next
	s.timer = time.AfterFunc(time.Until(next), s.fire)

	s.logger.WithFields(map[string]interface{}{
		"next_run": next.Format(time.RFC3339),
		"timezone": st.ScheduleTimeZone,
	}).Info("Next run armed")
}

// fire runs the pipeline once, then re-arms for the following day
func (s *Scheduler) fire() {
	s.logger.Info("Scheduled run triggered")

	_, err := s.runner.Run(context.Background())
	switch {
	case errors.Is(err, pipeline.ErrRunInProgress):
		// 수동 트리거와 겹치면 이번 발화는 건너뛴다
		s.logger.Warn("Run already in progress, scheduled run skipped")
	case err != nil:
		s.logger.WithError(err).Error("Scheduled run failed")
	}

	s.arm(s.settings.Current())
}

// NextRun computes the next fire time: today at HH:MM in the configured
// timezone if still in the future, otherwise the same time tomorrow.
func NextRun(now time.Time, st settings.State) (time.Time, error) {
	hour, minute, err := settings.ParseTimeOfDay(st.ScheduleTime)
	if err != nil {
		return time.Time{}, err
	}
	loc, err := time.LoadLocation(st.ScheduleTimeZone)
	if err != nil {
		return time.Time{}, fmt.Errorf("load timezone %q: %w", st.ScheduleTimeZone, err)
	}

	local := now.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next, nil
}
