package indicator

import (
	"sort"

	"github.com/wonny/dragon/internal/contracts"
)

// 일목균형표 기본 파라미터 (9/26/52, 26일 선행/후행)
const (
	TenkanPeriod  = 9
	KijunPeriod   = 26
	SenkouBPeriod = 52
	CloudShift    = 26
)

// Calculator computes the Ichimoku component series for one ticker.
// ⭐ SSOT: 지표 계산은 여기서만. 순수 함수, I/O 없음.
type Calculator struct {
	regressionWindow int
}

// NewCalculator creates a calculator with the given regression window.
// window < 2이면 slope는 전 구간 미정의.
func NewCalculator(regressionWindow int) *Calculator {
	return &Calculator{regressionWindow: regressionWindow}
}

// Compute turns a ticker's price bars into one indicator row per bar,
// aligned by date. 입력 순서는 가정하지 않는다. 먼저 날짜 오름차순 정렬.
//
// 미정의 값은 nil로 남긴다. 0이나 NaN으로 대체하지 않는다.
func (c *Calculator) Compute(bars []contracts.PriceBar) []contracts.IndicatorRow {
	n := len(bars)
	if n == 0 {
		return nil
	}

	sorted := make([]contracts.PriceBar, n)
	copy(sorted, bars)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})

	rows := make([]contracts.IndicatorRow, n)
	for i := range rows {
		rows[i].TickerID = sorted[i].TickerID
		rows[i].Date = sorted[i].Date
	}

	// 전환선/기준선: trailing window의 (최고가+최저가)/2
	tenkan := make([]*float64, n)
	kijun := make([]*float64, n)
	for i := 0; i < n; i++ {
		if i >= TenkanPeriod-1 {
			tenkan[i] = fptr(midpoint(sorted[i-TenkanPeriod+1 : i+1]))
		}
		if i >= KijunPeriod-1 {
			kijun[i] = fptr(midpoint(sorted[i-KijunPeriod+1 : i+1]))
		}
		rows[i].Tenkan = tenkan[i]
		rows[i].Kijun = kijun[i]
	}

	// 선행스팬 A/B: i에서 계산해 i+26에 저장 (구름은 앞으로 밀린다)
	for i := 0; i < n; i++ {
		j := i + CloudShift
		if j >= n {
			continue
		}
		if tenkan[i] != nil && kijun[i] != nil {
			rows[j].SenkouA = fptr((*tenkan[i] + *kijun[i]) / 2)
		}
		if i >= SenkouBPeriod-1 {
			rows[j].SenkouB = fptr(midpoint(sorted[i-SenkouBPeriod+1 : i+1]))
		}
	}

	// 후행스팬: i의 종가를 i-26에 저장
	for i := CloudShift; i < n; i++ {
		rows[i-CloudShift].Chikou = fptr(sorted[i].Close)
	}

	// 회귀 기울기 및 파생값
	for i := 0; i < n; i++ {
		rows[i].TenkanSlope = c.slopeAt(tenkan, i)
		rows[i].KijunSlope = c.slopeAt(kijun, i)

		if kijun[i] != nil && *kijun[i] != 0 {
			rows[i].PriceKijunRatio = fptr(sorted[i].Close / *kijun[i])
		}
		if tenkan[i] != nil && kijun[i] != nil {
			rows[i].TKDistance = fptr(*tenkan[i] - *kijun[i])
		}
	}

	return rows
}

// slopeAt returns the OLS slope of the trailing regression window ending at i.
// 윈도우 안에 미정의 점이 하나라도 있으면 전체가 미정의다. 건너뛰거나
// 보간하지 않는다.
func (c *Calculator) slopeAt(series []*float64, i int) *float64 {
	w := c.regressionWindow
	if w < 2 || i < w-1 {
		return nil
	}

	window := make([]float64, w)
	for k := 0; k < w; k++ {
		v := series[i-w+1+k]
		if v == nil {
			return nil
		}
		window[k] = *v
	}

	return fptr(olsSlope(window))
}

// olsSlope computes the ordinary-least-squares slope with x = 0..n-1.
// 호출 전 n >= 2 보장.
func olsSlope(ys []float64) float64 {
	n := float64(len(ys))

	var sumX, sumY, sumXY, sumXX float64
	for i, y := range ys {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}

	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (n*sumXY - sumX*sumY) / denom
}

// midpoint returns (max(high) + min(low)) / 2 over the window
func midpoint(window []contracts.PriceBar) float64 {
	hi := window[0].High
	lo := window[0].Low
	for _, b := range window[1:] {
		if b.High > hi {
			hi = b.High
		}
		if b.Low < lo {
			lo = b.Low
		}
	}
	return (hi + lo) / 2
}

func fptr(v float64) *float64 {
	return &v
}
