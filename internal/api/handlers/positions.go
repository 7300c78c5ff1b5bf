package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/wonny/dragon/internal/contracts"
	"github.com/wonny/dragon/internal/report"
	"github.com/wonny/dragon/pkg/logger"
)

// PositionHandler handles position and alert API endpoints
type PositionHandler struct {
	positions contracts.PositionRepository
	alerts    contracts.AlertRepository
	tickers   contracts.TickerRepository
	logger    *logger.Logger
}

// NewPositionHandler creates a new position handler
func NewPositionHandler(
	positions contracts.PositionRepository,
	alerts contracts.AlertRepository,
	tickers contracts.TickerRepository,
	log *logger.Logger,
) *PositionHandler {
	return &PositionHandler{
		positions: positions,
		alerts:    alerts,
		tickers:   tickers,
		logger:    log,
	}
}

// GetOpenPositions returns all open positions
// GET /api/positions
func (h *PositionHandler) GetOpenPositions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	positions, err := h.positions.ListOpen(ctx)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list open positions")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve positions")
		return
	}

	views := make([]positionView, 0, len(positions))
	for _, p := range positions {
		symbol := ""
		if t, err := h.tickers.GetByID(ctx, p.TickerID); err == nil {
			symbol = t.Symbol
		}
		views = append(views, newPositionView(p, symbol))
	}
	respondJSON(w, http.StatusOK, views)
}

// GetAlerts returns sell alerts, newest first
// GET /api/alerts?unresolved=true
func (h *PositionHandler) GetAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, ok := h.alertsForRequest(w, r)
	if !ok {
		return
	}

	views := make([]alertView, 0, len(alerts))
	for _, a := range alerts {
		views = append(views, newAlertView(a))
	}
	respondJSON(w, http.StatusOK, views)
}

// GetAlertsCSV returns the alert report as CSV
// GET /api/report/alerts?unresolved=true
func (h *PositionHandler) GetAlertsCSV(w http.ResponseWriter, r *http.Request) {
	alerts, ok := h.alertsForRequest(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="alerts.csv"`)
	if err := report.WriteAlertsCSV(w, alerts); err != nil {
		h.logger.WithError(err).Error("Failed to write alert CSV")
	}
}

// ResolveAlert marks an alert as acknowledged by the operator
// POST /api/alerts/{id}/resolve
func (h *PositionHandler) ResolveAlert(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid alert id")
		return
	}

	err = h.alerts.Resolve(r.Context(), id, time.Now().UTC())
	if err != nil {
		if errors.Is(err, contracts.ErrNotFound) {
			respondError(w, http.StatusNotFound, "Alert not found or already resolved")
			return
		}
		h.logger.WithError(err).Error("Failed to resolve alert")
		respondError(w, http.StatusInternalServerError, "Failed to resolve alert")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "resolved"})
}

func (h *PositionHandler) alertsForRequest(w http.ResponseWriter, r *http.Request) ([]contracts.SellAlert, bool) {
	unresolvedOnly := r.URL.Query().Get("unresolved") == "true"

	alerts, err := h.alerts.List(r.Context(), unresolvedOnly)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list alerts")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve alerts")
		return nil, false
	}
	return alerts, true
}

// positionView is the JSON shape of a tracked position
type positionView struct {
	ID                int64    `json:"id"`
	Symbol            string   `json:"symbol"`
	DateOpened        string   `json:"date_opened"`
	Status            string   `json:"status"`
	ConfirmedByUser   bool     `json:"confirmed_by_user"`
	LastEvaluatedDate *string  `json:"last_evaluated_date,omitempty"`
	LastClose         *float64 `json:"last_close,omitempty"`
	LastKijun         *float64 `json:"last_kijun,omitempty"`
}

func newPositionView(p contracts.Position, symbol string) positionView {
	v := positionView{
		ID:              p.ID,
		Symbol:          symbol,
		DateOpened:      p.DateOpened.Format("2006-01-02"),
		Status:          string(p.Status),
		ConfirmedByUser: p.ConfirmedByUser,
		LastClose:       p.LastClose,
		LastKijun:       p.LastKijun,
	}
	if p.LastEvaluatedDate != nil {
		s := p.LastEvaluatedDate.Format("2006-01-02")
		v.LastEvaluatedDate = &s
	}
	return v
}

// alertView is the JSON shape of a sell alert
type alertView struct {
	ID         int64      `json:"id"`
	Symbol     string     `json:"symbol"`
	AlertDate  string     `json:"alert_date"`
	ClosePrice float64    `json:"close"`
	KijunValue float64    `json:"kijun"`
	Reason     string     `json:"reason"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

func newAlertView(a contracts.SellAlert) alertView {
	return alertView{
		ID:         a.ID,
		Symbol:     a.Symbol,
		AlertDate:  a.AlertDate.Format("2006-01-02"),
		ClosePrice: a.ClosePrice,
		KijunValue: a.KijunValue,
		Reason:     a.Reason,
		ResolvedAt: a.ResolvedAt,
	}
}
