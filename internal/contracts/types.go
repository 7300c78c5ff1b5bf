package contracts

import "time"

// IndexSource identifies the index membership list a ticker was seeded from
type IndexSource string

const (
	IndexSP500     IndexSource = "SP500"
	IndexNasdaq100 IndexSource = "NASDAQ100"
)

// AllIndexSources returns the configured index sources in seeding order
func AllIndexSources() []IndexSource {
	return []IndexSource{IndexSP500, IndexNasdaq100}
}

// Ticker represents a tradeable symbol in the universe
// 삭제하지 않는다. active=false로 비활성화만 한다
type Ticker struct {
	ID          int64
	Symbol      string
	Name        string
	SourceIndex IndexSource
	Active      bool
	Notes       string
}

// PriceBar is a single daily OHLC bar. (TickerID, Date)로 유일, 쓰고 나면 불변.
type PriceBar struct {
	TickerID int64
	Date     time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
}

// IndicatorRow holds the Ichimoku components and derived series for one bar.
// nil 필드는 "아직 계산 불가"라는 뜻이다. 0으로 채우지 않는다. downstream은
// "기울기 0"과 "기울기 없음"을 구분해야 한다.
type IndicatorRow struct {
	TickerID        int64
	Date            time.Time
	Tenkan          *float64
	Kijun           *float64
	SenkouA         *float64
	SenkouB         *float64
	Chikou          *float64
	TenkanSlope     *float64
	KijunSlope      *float64
	PriceKijunRatio *float64
	TKDistance      *float64
}

// Candidate is one ranked scan result for a scan date
type Candidate struct {
	ScanDate        time.Time
	TickerID        int64
	Symbol          string
	Rank            int
	MomentumScore   float64
	ClosePrice      float64
	Tenkan          float64
	Kijun           float64
	TenkanSlope     float64
	KijunSlope      float64
	PriceKijunRatio float64
	TKDistance      float64
	Notes           string
}

// PositionStatus is the lifecycle state of a position
type PositionStatus string

const (
	PositionOpen   PositionStatus = "open"
	PositionClosed PositionStatus = "closed"
)

// Position tracks an entry opened from a candidate.
// 불변식: 한 종목당 open 포지션은 동시에 최대 1개.
type Position struct {
	ID                int64
	TickerID          int64
	DateOpened        time.Time
	Status            PositionStatus
	ConfirmedByUser   bool
	LastEvaluatedDate *time.Time
	LastClose         *float64
	LastKijun         *float64
}

// SellAlert is raised exactly once when a stop condition triggers.
// 생성 후 ResolvedAt 외에는 불변.
type SellAlert struct {
	ID         int64
	TickerID   int64
	Symbol     string
	AlertDate  time.Time
	ClosePrice float64
	KijunValue float64
	Reason     string
	ResolvedAt *time.Time
}

// SellReasonCloseBelowKijun is the only stop condition this engine raises
const SellReasonCloseBelowKijun = "Close below Kijun"

// RunStatus is the terminal state of a pipeline run log
type RunStatus string

const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunFailed  RunStatus = "failed"
)

// RunLog records one pipeline invocation. status=running인 채 남은 row는
// 크래시 가능성이 있으므로 "실패"가 아니라 "불확정"으로 해석해야 한다.
type RunLog struct {
	ID               int64
	StartedAt        time.Time
	CompletedAt      *time.Time
	Status           RunStatus
	Message          string
	TickersProcessed int
	CandidatesFound  int
	AlertsTriggered  int
}
