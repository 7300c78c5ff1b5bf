package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/wonny/dragon/pkg/httputil"
	"github.com/wonny/dragon/pkg/logger"
)

// YahooClient fetches daily bars from the Yahoo Finance chart API
// ⭐ SSOT: Yahoo 호출은 이 클라이언트에서만
type YahooClient struct {
	httpClient *httputil.Client
	logger     *logger.Logger
	baseURL    string
}

// NewYahooClient creates a new Yahoo Finance client
func NewYahooClient(httpClient *httputil.Client, baseURL string, log *logger.Logger) *YahooClient {
	return &YahooClient{
		httpClient: httpClient,
		logger:     log.WithField("provider", "yahoo"),
		baseURL:    baseURL,
	}
}

// Name returns the provider identifier
func (c *YahooClient) Name() string {
	return "yahoo"
}

// chartResponse mirrors the subset of the chart API payload we consume
type chartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open  []*float64 `json:"open"`
					High  []*float64 `json:"high"`
					Low   []*float64 `json:"low"`
					Close []*float64 `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// FetchRange fetches daily bars for [from, to]
func (c *YahooClient) FetchRange(ctx context.Context, symbol string, from, to time.Time) ([]OHLC, error) {
	params := url.Values{}
	params.Set("period1", strconv.FormatInt(from.Unix(), 10))
	// period2는 exclusive라서 마지막 날을 포함시키려면 하루 더
	params.Set("period2", strconv.FormatInt(to.AddDate(0, 0, 1).Unix(), 10))
	params.Set("interval", "1d")
	params.Set("events", "history")

	fullURL := fmt.Sprintf("%s/v8/finance/chart/%s?%s", c.baseURL, url.PathEscape(symbol), params.Encode())

	resp, err := c.httpClient.Get(ctx, fullURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp.StatusCode); err != nil {
		return nil, err
	}

	var payload chartResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: decode chart response: %v", ErrNetwork, err)
	}

	if payload.Chart.Error != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, payload.Chart.Error.Description)
	}
	if len(payload.Chart.Result) == 0 {
		return nil, fmt.Errorf("%w: empty chart result for %s", ErrNotFound, symbol)
	}

	result := payload.Chart.Result[0]
	if len(result.Indicators.Quote) == 0 {
		return nil, fmt.Errorf("%w: no quote data for %s", ErrNotFound, symbol)
	}
	quote := result.Indicators.Quote[0]

	// 부분 장중 응답은 배열 길이가 서로 어긋날 수 있다 (ragged payload).
	// 다섯 배열 중 가장 짧은 쪽까지만 읽는다.
	n := len(result.Timestamp)
	for _, arr := range [][]*float64{quote.Open, quote.High, quote.Low, quote.Close} {
		if len(arr) < n {
			n = len(arr)
		}
	}

	var bars []OHLC
	for i := 0; i < n; i++ {
		ts := result.Timestamp[i]
		// 휴장/결측 지점은 null로 온다
		if quote.Open[i] == nil || quote.High[i] == nil || quote.Low[i] == nil || quote.Close[i] == nil {
			continue
		}
		bars = append(bars, OHLC{
			Date:  time.Unix(ts, 0).UTC().Truncate(24 * time.Hour),
			Open:  *quote.Open[i],
			High:  *quote.High[i],
			Low:   *quote.Low[i],
			Close: *quote.Close[i],
		})
	}

	return bars, nil
}

// FetchLatest fetches the most recent daily bar
func (c *YahooClient) FetchLatest(ctx context.Context, symbol string) (*OHLC, error) {
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
