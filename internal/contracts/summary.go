package contracts

import "time"

// RunSummary is the plain, serializable result of one pipeline run,
// consumed by the report boundary and the status API.
type RunSummary struct {
	RunID            int64       `json:"run_id"`
	ScanDate         time.Time   `json:"scan_date"`
	StartedAt        time.Time   `json:"started_at"`
	CompletedAt      time.Time   `json:"completed_at"`
	Status           RunStatus   `json:"status"`
	Message          string      `json:"message"`
	TickersProcessed int         `json:"tickers_processed"`
	BarsFetched      int         `json:"bars_fetched"`
	FetchAborted     bool        `json:"fetch_aborted"` // rate limit으로 중단됐는지
	Candidates       []Candidate `json:"candidates"`
	Alerts           []SellAlert `json:"alerts"`
}
