package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "파이프라인 1회 실행",
	Long: `전체 파이프라인을 한 번 실행합니다.

단계:
  1. SEEDING    유니버스 시드 (최초 1회)
  2. FETCHING   누락 시세 수집
  3. COMPUTING  지표 시계열 재계산
  4. SCANNING   후보 스캔 + 랭킹
  5. EVALUATING 포지션 평가 + 매도 알림

Example:
  go run ./cmd/dragon run`,
	RunE: runOnce,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runOnce(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	summary, err := a.pipeline.Run(ctx)
	if err != nil {
		return fmt.Errorf("pipeline run: %w", err)
	}

	fmt.Printf("\n✅ Run #%d %s\n", summary.RunID, summary.Status)
	fmt.Printf("   Scan date:  %s\n", summary.ScanDate.Format("2006-01-02"))
	fmt.Printf("   Tickers:    %d\n", summary.TickersProcessed)
	fmt.Printf("   New bars:   %d", summary.BarsFetched)
	if summary.FetchAborted {
		fmt.Printf(" (fetch aborted, rate limited)")
	}
	fmt.Println()
	fmt.Printf("   Candidates: %d\n", len(summary.Candidates))
	fmt.Printf("   Alerts:     %d\n", len(summary.Alerts))

	for _, c := range summary.Candidates {
		fmt.Printf("   #%-3d %-6s score=%.4f close=%.2f\n", c.Rank, c.Symbol, c.MomentumScore, c.ClosePrice)
	}
	for _, al := range summary.Alerts {
		fmt.Printf("   🔔 %s %s close=%.2f kijun=%.2f\n", al.Symbol, al.Reason, al.ClosePrice, al.KijunValue)
	}

	return nil
}
