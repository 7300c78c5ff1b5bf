package settings

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/wonny/dragon/internal/contracts"
	"github.com/wonny/dragon/pkg/logger"
)

// Settings keys in the KV store
const (
	keyScheduleEnabled  = "schedule_enabled"
	keyScheduleTime     = "schedule_time"
	keyScheduleTimeZone = "schedule_timezone"
	keyMaxCandidates    = "max_candidates"
	keyLookbackDays     = "history_lookback_days"
	keyRegressionWindow = "regression_window"
	keyProviderPriority = "provider_priority"
)

// State is the typed view over the persisted pipeline settings
type State struct {
	ScheduleEnabled     bool
	ScheduleTime        string // "HH:MM"
	ScheduleTimeZone    string // IANA name, e.g. "America/New_York"
	MaxCandidates       int
	HistoryLookbackDays int
	RegressionWindow    int
	ProviderPriority    []string
}

// DefaultState returns the settings used until the operator changes them
func DefaultState() State {
	return State{
		ScheduleEnabled:     false,
		ScheduleTime:        "22:00",
		ScheduleTimeZone:    "UTC",
		MaxCandidates:       20,
		HistoryLookbackDays: 365,
		RegressionWindow:    5,
		ProviderPriority:    []string{"stooq", "yahoo"},
	}
}

// Validate checks a state before it is applied
func (s State) Validate() error {
	if _, _, err := ParseTimeOfDay(s.ScheduleTime); err != nil {
		return err
	}
	if _, err := time.LoadLocation(s.ScheduleTimeZone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", s.ScheduleTimeZone, err)
	}
	if s.MaxCandidates < 1 {
		return fmt.Errorf("max_candidates must be >= 1")
	}
	if s.HistoryLookbackDays < 1 {
		return fmt.Errorf("history_lookback_days must be >= 1")
	}
	if s.RegressionWindow < 2 {
		return fmt.Errorf("regression_window must be >= 2")
	}
	if len(s.ProviderPriority) == 0 {
		return fmt.Errorf("provider_priority must not be empty")
	}
	return nil
}

// ParseTimeOfDay parses "HH:MM" into hour and minute
func ParseTimeOfDay(s string) (hour, minute int, err error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time of day %q, want HH:MM", s)
	}

	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}

	return hour, minute, nil
}

// Service loads and mutates the persisted settings
// ⭐ SSOT: 파이프라인 런타임 설정은 이 서비스를 통해서만 읽고 쓴다
type Service struct {
	kv     contracts.KVRepository
	logger *logger.Logger

	mu    sync.RWMutex
	state State

	// onChange is invoked after every successful update (스케줄러 재무장용)
	onChange func(State)
}

// NewService creates the settings service and loads persisted values,
// seeding defaults for missing keys.
func NewService(ctx context.Context, kv contracts.KVRepository, log *logger.Logger) (*Service, error) {
	s := &Service{
		kv:     kv,
		logger: log.WithField("module", "settings"),
		state:  DefaultState(),
	}

	if err := s.load(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// OnChange registers the listener notified after each update
func (s *Service) OnChange(fn func(State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = fn
}

// Current returns a copy of the in-memory state
func (s *Service) Current() State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := s.state
	st.ProviderPriority = append([]string(nil), s.state.ProviderPriority...)
	return st
}

// Update validates, persists and applies a new state.
// 메모리 상태와 저장소를 함께 바꾸는 유일한 경로.
func (s *Service) Update(ctx context.Context, next State) error {
	if err := next.Validate(); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}

	if err := s.persist(ctx, next); err != nil {
		return fmt.Errorf("persist settings: %w", err)
	}

	s.mu.Lock()
	s.state = next
	fn := s.onChange
	s.mu.Unlock()

	s.logger.Info("Settings updated")

	if fn != nil {
		fn(next)
	}
	return nil
}

// load reads persisted keys over the defaults. 모르는 키는 무시,
// 빠진 키는 기본값 유지.
func (s *Service) load(ctx context.Context) error {
	values, err := s.kv.All(ctx)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	st := s.state
	if v, ok := values[keyScheduleEnabled]; ok {
		st.ScheduleEnabled = v == "true"
	}
	if v, ok := values[keyScheduleTime]; ok {
		st.ScheduleTime = v
	}
	if v, ok := values[keyScheduleTimeZone]; ok {
		st.ScheduleTimeZone = v
	}
	if v, ok := values[keyMaxCandidates]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			st.MaxCandidates = n
		}
	}
	if v, ok := values[keyLookbackDays]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			st.HistoryLookbackDays = n
		}
	}
	if v, ok := values[keyRegressionWindow]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			st.RegressionWindow = n
		}
	}
	if v, ok := values[keyProviderPriority]; ok && v != "" {
		st.ProviderPriority = strings.Split(v, ",")
	}

	if err := st.Validate(); err != nil {
		s.logger.WithError(err).Warn("Persisted settings invalid, keeping defaults")
		return nil
	}

	s.state = st
	return nil
}

// persist writes every key with its data-type tag
func (s *Service) persist(ctx context.Context, st State) error {
	entries := []struct {
		key, value, dataType string
	}{
		{keyScheduleEnabled, strconv.FormatBool(st.ScheduleEnabled), "bool"},
		{keyScheduleTime, st.ScheduleTime, "string"},
		{keyScheduleTimeZone, st.ScheduleTimeZone, "string"},
		{keyMaxCandidates, strconv.Itoa(st.MaxCandidates), "int"},
		{keyLookbackDays, strconv.Itoa(st.HistoryLookbackDays), "int"},
		{keyRegressionWindow, strconv.Itoa(st.RegressionWindow), "int"},
		{keyProviderPriority, strings.Join(st.ProviderPriority, ","), "string_list"},
	}

	for _, e := range entries {
		if err := s.kv.Set(ctx, e.key, e.value, e.dataType); err != nil {
			return err
		}
	}
	return nil
}
