package universe

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/wonny/dragon/internal/contracts"
	"github.com/wonny/dragon/pkg/httputil"
	"github.com/wonny/dragon/pkg/logger"
)

// refreshURLs maps index sources to constituent pages.
// 테이블 구조가 바뀌면 파싱이 0건을 내고, 그 소스는 그대로 둔다.
var refreshURLs = map[contracts.IndexSource]string{
	contracts.IndexSP500:     "https://www.slickcharts.com/sp500",
	contracts.IndexNasdaq100: "https://www.slickcharts.com/nasdaq100",
}

// Refresher updates index membership from the web.
// 시드와 달리 명시적 CLI 조작으로만 실행된다. EnsureSeeded의 one-way
// 부트스트랩 불변식을 깨지 않기 위해.
type Refresher struct {
	tickers    contracts.TickerRepository
	httpClient *httputil.Client
	logger     *logger.Logger
}

// NewRefresher creates a new constituent refresher
func NewRefresher(tickers contracts.TickerRepository, httpClient *httputil.Client, log *logger.Logger) *Refresher {
	return &Refresher{
		tickers:    tickers,
		httpClient: httpClient,
		logger:     log.WithField("module", "universe_refresh"),
	}
}

// RefreshResult summarizes one refresh pass
type RefreshResult struct {
	Added       int
	Updated     int
	Deactivated int
}

// Refresh scrapes current constituents per index, upserts them as active,
// and deactivates tickers of that index no longer listed.
func (rf *Refresher) Refresh(ctx context.Context) (*RefreshResult, error) {
	result := &RefreshResult{}

	current := make(map[string]bool)
	for _, source := range contracts.AllIndexSources() {
		constituents, err := rf.scrape(ctx, source)
		if err != nil {
			rf.logger.WithError(err).WithField("index", source).Warn("Skipping index refresh")
			continue
		}

		for _, c := range constituents {
			current[c.Symbol] = true

			existing, err := rf.tickers.GetBySymbol(ctx, c.Symbol)
			isNew := err != nil

			t := &contracts.Ticker{
				Symbol:      c.Symbol,
				Name:        c.Name,
				SourceIndex: source,
				Active:      true,
			}
			if existing != nil {
				t.Notes = existing.Notes
			}
			if err := rf.tickers.UpsertBySymbol(ctx, t); err != nil {
				return nil, fmt.Errorf("upsert %s: %w", c.Symbol, err)
			}

			if isNew {
				result.Added++
			} else {
				result.Updated++
			}
		}
	}

	if len(current) == 0 {
		return nil, fmt.Errorf("no constituents fetched from any index")
	}

	// 빠진 종목은 비활성화만 한다 (이력 보존)
	all, err := rf.tickers.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active tickers: %w", err)
	}
	for _, t := range all {
		if !current[t.Symbol] {
			if err := rf.tickers.Deactivate(ctx, t.Symbol); err != nil {
				return nil, fmt.Errorf("deactivate %s: %w", t.Symbol, err)
			}
			result.Deactivated++
		}
	}

	rf.logger.WithFields(map[string]interface{}{
		"added":       result.Added,
		"updated":     result.Updated,
		"deactivated": result.Deactivated,
	}).Info("Universe refresh completed")

	return result, nil
}

// scrape parses the constituent table of one index page
func (rf *Refresher) scrape(ctx context.Context, source contracts.IndexSource) ([]Constituent, error) {
	url := refreshURLs[source]

	resp, err := rf.httpClient.Get(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse HTML: %w", err)
	}

	var out []Constituent
	doc.Find("table tbody tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		// 컬럼: rank, name, symbol, ...
		if cells.Length() < 3 {
			return
		}
		name := strings.TrimSpace(cells.Eq(1).Text())
		symbol := strings.ToUpper(strings.TrimSpace(cells.Eq(2).Text()))
		if symbol == "" || name == "" {
			return
		}
		out = append(out, Constituent{Symbol: symbol, Name: name})
	})

	if len(out) == 0 {
		return nil, fmt.Errorf("no rows parsed from %s", url)
	}
	return out, nil
}
