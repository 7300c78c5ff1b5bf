package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/wonny/dragon/internal/scheduler"
	"github.com/wonny/dragon/internal/settings"
	"github.com/wonny/dragon/pkg/logger"
)

// SettingsHandler handles pipeline settings endpoints
type SettingsHandler struct {
	settings  *settings.Service
	scheduler *scheduler.Scheduler
	logger    *logger.Logger
}

// NewSettingsHandler creates a new settings handler
func NewSettingsHandler(settingsSvc *settings.Service, sched *scheduler.Scheduler, log *logger.Logger) *SettingsHandler {
	return &SettingsHandler{
		settings:  settingsSvc,
		scheduler: sched,
		logger:    log,
	}
}

// settingsView is the JSON shape of the pipeline settings
type settingsView struct {
	ScheduleEnabled     bool       `json:"schedule_enabled"`
	ScheduleTime        string     `json:"schedule_time"`
	ScheduleTimeZone    string     `json:"schedule_timezone"`
	MaxCandidates       int        `json:"max_candidates"`
	HistoryLookbackDays int        `json:"history_lookback_days"`
	RegressionWindow    int        `json:"regression_window"`
	ProviderPriority    []string   `json:"provider_priority"`
	NextRun             *time.Time `json:"next_run,omitempty"`
}

// GetSettings returns the current settings plus the armed fire time
// GET /api/settings
func (h *SettingsHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	st := h.settings.Current()

	view := settingsView{
		ScheduleEnabled:     st.ScheduleEnabled,
		ScheduleTime:        st.ScheduleTime,
		ScheduleTimeZone:    st.ScheduleTimeZone,
		MaxCandidates:       st.MaxCandidates,
		HistoryLookbackDays: st.HistoryLookbackDays,
		RegressionWindow:    st.RegressionWindow,
		ProviderPriority:    st.ProviderPriority,
	}
	if h.scheduler != nil {
		view.NextRun = h.scheduler.NextScheduled()
	}

	respondJSON(w, http.StatusOK, view)
}

// updateSettingsRequest allows partial updates; nil fields keep current values
type updateSettingsRequest struct {
	ScheduleEnabled     *bool    `json:"schedule_enabled"`
	ScheduleTime        *string  `json:"schedule_time"`
	ScheduleTimeZone    *string  `json:"schedule_timezone"`
	MaxCandidates       *int     `json:"max_candidates"`
	HistoryLookbackDays *int     `json:"history_lookback_days"`
	RegressionWindow    *int     `json:"regression_window"`
	ProviderPriority    []string `json:"provider_priority"`
}

// UpdateSettings validates and persists new settings.
// 스케줄러 재무장은 settings.Service의 OnChange 훅이 처리한다.
// PUT /api/settings
func (h *SettingsHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req updateSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	st := h.settings.Current()
	if req.ScheduleEnabled != nil {
		st.ScheduleEnabled = *req.ScheduleEnabled
	}
	if req.ScheduleTime != nil {
		st.ScheduleTime = *req.ScheduleTime
	}
	if req.ScheduleTimeZone != nil {
		st.ScheduleTimeZone = *req.ScheduleTimeZone
	}
	if req.MaxCandidates != nil {
		st.MaxCandidates = *req.MaxCandidates
	}
	if req.HistoryLookbackDays != nil {
		st.HistoryLookbackDays = *req.HistoryLookbackDays
	}
	if req.RegressionWindow != nil {
		st.RegressionWindow = *req.RegressionWindow
	}
	if req.ProviderPriority != nil {
		st.ProviderPriority = req.ProviderPriority
	}

	if err := h.settings.Update(r.Context(), st); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.logger.Info("Settings updated via API")
	h.GetSettings(w, r)
}
