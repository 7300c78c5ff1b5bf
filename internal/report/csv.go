package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/wonny/dragon/internal/contracts"
)

// candidateHeader is the column order of the candidate report
var candidateHeader = []string{
	"rank", "symbol", "scan_date", "momentum_score", "close",
	"tenkan", "kijun", "tenkan_slope", "kijun_slope",
	"price_kijun_ratio", "tk_distance", "notes",
}

// WriteCandidatesCSV writes the ranked candidates of one scan date.
// 스프레드시트로 바로 열어보는 용도라 컬럼은 평평하게 유지한다.
func WriteCandidatesCSV(w io.Writer, candidates []contracts.Candidate) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(candidateHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for _, c := range candidates {
		record := []string{
			strconv.Itoa(c.Rank),
			c.Symbol,
			c.ScanDate.Format("2006-01-02"),
			formatFloat(c.MomentumScore),
			formatFloat(c.ClosePrice),
			formatFloat(c.Tenkan),
			formatFloat(c.Kijun),
			formatFloat(c.TenkanSlope),
			formatFloat(c.KijunSlope),
			formatFloat(c.PriceKijunRatio),
			formatFloat(c.TKDistance),
			c.Notes,
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// alertHeader is the column order of the sell alert report
var alertHeader = []string{
	"symbol", "alert_date", "close", "kijun", "reason", "resolved_at",
}

// WriteAlertsCSV writes sell alerts, newest first as given
func WriteAlertsCSV(w io.Writer, alerts []contracts.SellAlert) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(alertHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for _, a := range alerts {
		resolved := ""
		if a.ResolvedAt != nil {
			resolved = a.ResolvedAt.Format("2006-01-02")
		}
		record := []string{
			a.Symbol,
			a.AlertDate.Format("2006-01-02"),
			formatFloat(a.ClosePrice),
			formatFloat(a.KijunValue),
			a.Reason,
			resolved,
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
