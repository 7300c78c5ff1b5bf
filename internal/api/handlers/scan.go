package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/wonny/dragon/internal/contracts"
	"github.com/wonny/dragon/internal/pipeline"
	"github.com/wonny/dragon/internal/report"
	"github.com/wonny/dragon/pkg/logger"
)

// ScanHandler handles scan-related API endpoints
// ⭐ SSOT: 스캔 API 핸들러는 이 구조체에서만
type ScanHandler struct {
	pipeline   *pipeline.Service
	candidates contracts.CandidateRepository
	runLogs    contracts.RunLogRepository
	logger     *logger.Logger
}

// NewScanHandler creates a new scan handler
func NewScanHandler(
	pipelineSvc *pipeline.Service,
	candidates contracts.CandidateRepository,
	runLogs contracts.RunLogRepository,
	log *logger.Logger,
) *ScanHandler {
	return &ScanHandler{
		pipeline:   pipelineSvc,
		candidates: candidates,
		runLogs:    runLogs,
		logger:     log,
	}
}

// TriggerScan starts a pipeline run in the background
// POST /api/scan
func (h *ScanHandler) TriggerScan(w http.ResponseWriter, r *http.Request) {
	if h.pipeline.Busy() {
		respondError(w, http.StatusConflict, "A run is already in progress")
		return
	}

	// 요청 컨텍스트에 묶지 않는다. 클라이언트가 끊겨도 런은 끝까지 간다
	go func() {
		if _, err := h.pipeline.Run(context.Background()); err != nil {
			h.logger.WithError(err).Error("Manual run failed")
		}
	}()

	respondJSON(w, http.StatusAccepted, map[string]string{
		"status": "started",
	})
}

// GetRuns returns the most recent run logs
// GET /api/runs?limit=20
func (h *ScanHandler) GetRuns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 200 {
			respondError(w, http.StatusBadRequest, "limit must be in 1..200")
			return
		}
		limit = n
	}

	logs, err := h.runLogs.ListRecent(ctx, limit)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list run logs")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve runs")
		return
	}

	views := make([]runLogView, 0, len(logs))
	for _, l := range logs {
		views = append(views, newRunLogView(l))
	}
	respondJSON(w, http.StatusOK, views)
}

// GetCandidates returns the ranked candidates for a scan date
// GET /api/candidates?date=2026-08-28
func (h *ScanHandler) GetCandidates(w http.ResponseWriter, r *http.Request) {
	candidates, ok := h.candidatesForRequest(w, r)
	if !ok {
		return
	}

	views := make([]candidateView, 0, len(candidates))
	for _, c := range candidates {
		views = append(views, newCandidateView(c))
	}
	respondJSON(w, http.StatusOK, views)
}

// GetCandidatesCSV returns the candidate report as CSV
// GET /api/report/candidates?date=2026-08-28
func (h *ScanHandler) GetCandidatesCSV(w http.ResponseWriter, r *http.Request) {
	candidates, ok := h.candidatesForRequest(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="candidates.csv"`)
	if err := report.WriteCandidatesCSV(w, candidates); err != nil {
		h.logger.WithError(err).Error("Failed to write candidate CSV")
	}
}

// candidatesForRequest parses the date parameter and loads that day's set.
// 실패 시 응답까지 쓰고 ok=false를 돌려준다.
func (h *ScanHandler) candidatesForRequest(w http.ResponseWriter, r *http.Request) ([]contracts.Candidate, bool) {
	dateStr := r.URL.Query().Get("date")
	if dateStr == "" {
		respondError(w, http.StatusBadRequest, "date parameter is required (YYYY-MM-DD)")
		return nil, false
	}
	date, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid date, want YYYY-MM-DD")
		return nil, false
	}

	candidates, err := h.candidates.ListByDate(r.Context(), date)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list candidates")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve candidates")
		return nil, false
	}
	return candidates, true
}

// runLogView is the JSON shape of a run log
type runLogView struct {
	ID               int64      `json:"id"`
	StartedAt        time.Time  `json:"started_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	Status           string     `json:"status"`
	Message          string     `json:"message,omitempty"`
	TickersProcessed int        `json:"tickers_processed"`
	CandidatesFound  int        `json:"candidates_found"`
	AlertsTriggered  int        `json:"alerts_triggered"`
}

func newRunLogView(l contracts.RunLog) runLogView {
	return runLogView{
		ID:               l.ID,
		StartedAt:        l.StartedAt,
		CompletedAt:      l.CompletedAt,
		Status:           string(l.Status),
		Message:          l.Message,
		TickersProcessed: l.TickersProcessed,
		CandidatesFound:  l.CandidatesFound,
		AlertsTriggered:  l.AlertsTriggered,
	}
}

// candidateView is the JSON shape of a ranked candidate
type candidateView struct {
	Rank            int     `json:"rank"`
	Symbol          string  `json:"symbol"`
	ScanDate        string  `json:"scan_date"`
	MomentumScore   float64 `json:"momentum_score"`
	ClosePrice      float64 `json:"close"`
	Tenkan          float64 `json:"tenkan"`
	Kijun           float64 `json:"kijun"`
	TenkanSlope     float64 `json:"tenkan_slope"`
	KijunSlope      float64 `json:"kijun_slope"`
	PriceKijunRatio float64 `json:"price_kijun_ratio"`
	TKDistance      float64 `json:"tk_distance"`
	Notes           string  `json:"notes,omitempty"`
}

func newCandidateView(c contracts.Candidate) candidateView {
	return candidateView{
		Rank:            c.Rank,
		Symbol:          c.Symbol,
		ScanDate:        c.ScanDate.Format("2006-01-02"),
		MomentumScore:   c.MomentumScore,
		ClosePrice:      c.ClosePrice,
		Tenkan:          c.Tenkan,
		Kijun:           c.Kijun,
		TenkanSlope:     c.TenkanSlope,
		KijunSlope:      c.KijunSlope,
		PriceKijunRatio: c.PriceKijunRatio,
		TKDistance:      c.TKDistance,
		Notes:           c.Notes,
	}
}

// Helper functions

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}
