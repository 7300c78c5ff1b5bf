package provider

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/wonny/dragon/pkg/httputil"
	"github.com/wonny/dragon/pkg/logger"
)

// StooqClient fetches daily bars from the Stooq CSV endpoint
// ⭐ SSOT: Stooq 호출은 이 클라이언트에서만
type StooqClient struct {
	httpClient *httputil.Client
	logger     *logger.Logger
	baseURL    string
}

// NewStooqClient creates a new Stooq client
func NewStooqClient(httpClient *httputil.Client, baseURL string, log *logger.Logger) *StooqClient {
	return &StooqClient{
		httpClient: httpClient,
		logger:     log.WithField("provider", "stooq"),
		baseURL:    baseURL,
	}
}

// Name returns the provider identifier
func (c *StooqClient) Name() string {
	return "stooq"
}

// FetchRange fetches daily bars for [from, to]
func (c *StooqClient) FetchRange(ctx context.Context, symbol string, from, to time.Time) ([]OHLC, error) {
	params := url.Values{}
	params.Set("s", stooqSymbol(symbol))
	params.Set("d1", from.Format("20060102"))
	params.Set("d2", to.Format("20060102"))
	params.Set("i", "d")

	fullURL := fmt.Sprintf("%s/q/d/l/?%s", c.baseURL, params.Encode())

	resp, err := c.httpClient.Get(ctx, fullURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp.StatusCode); err != nil {
		return nil, err
	}

	bars, err := parseStooqCSV(resp.Body)
	if err != nil {
		return nil, err
	}
	return bars, nil
}

// FetchLatest fetches the most recent bar (lookback 7일 중 마지막 행)
func (c *StooqClient) FetchLatest(ctx context.Context, symbol string) (*OHLC, error) {
	to := time.Now().UTC()
	bars, err := c.FetchRange(ctx, symbol, to.AddDate(0, 0, -7), to)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: no recent bars for %s", ErrNotFound, symbol)
	}
	return &bars[len(bars)-1], nil
}

// parseStooqCSV parses "Date,Open,High,Low,Close,Volume" rows.
// 모르는 심볼이면 Stooq는 200에 빈/무효 본문을 준다 → notFound.
func parseStooqCSV(r io.Reader) ([]OHLC, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil || len(header) < 5 || !strings.EqualFold(header[0], "Date") {
		return nil, fmt.Errorf("%w: unrecognized response body", ErrNotFound)
	}

	var bars []OHLC
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: malformed csv: %v", ErrNetwork, err)
		}
		if len(record) < 5 {
			continue
		}

		date, err := time.Parse("2006-01-02", record[0])
		if err != nil {
			continue
		}

		var vals [4]float64
		ok := true
		for i := 0; i < 4; i++ {
			v, err := strconv.ParseFloat(record[i+1], 64)
			if err != nil {
				ok = false
				break
			}
			vals[i] = v
		}
		if !ok {
			continue
		}

		bars = append(bars, OHLC{
			Date:  date,
			Open:  vals[0],
			High:  vals[1],
			Low:   vals[2],
			Close: vals[3],
		})
	}

	return bars, nil
}

// stooqSymbol maps a plain US symbol to Stooq notation (aapl → aapl.us)
func stooqSymbol(symbol string) string {
	s := strings.ToLower(symbol)
	s = strings.ReplaceAll(s, "-", ".")
	if !strings.Contains(s, ".us") {
		s += ".us"
	}
	return s
}

// classifyStatus maps HTTP status codes to the provider error taxonomy
func classifyStatus(code int) error {
	switch {
	case code == http.StatusOK:
		return nil
	case code == http.StatusTooManyRequests:
		return ErrRateLimited
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return ErrUnauthorized
	case code == http.StatusNotFound:
		return ErrNotFound
	default:
		return fmt.Errorf("%w: unexpected status %d", ErrNetwork, code)
	}
}
