package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "최근 런/포지션/알림 현황",
	RunE:  runStatus,
}

var statusRunLimit int

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().IntVar(&statusRunLimit, "runs", 5, "표시할 최근 런 수")
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	runs, err := a.runLogs.ListRecent(ctx, statusRunLimit)
	if err != nil {
		return err
	}

	fmt.Println("=== Recent runs ===")
	if len(runs) == 0 {
		fmt.Println("  (none)")
	}
	for _, r := range runs {
		completed := "-"
		if r.CompletedAt != nil {
			completed = r.CompletedAt.Format("2006-01-02 15:04:05")
		}
		fmt.Printf("  #%-4d %-7s started=%s completed=%s tickers=%d candidates=%d alerts=%d\n",
			r.ID, r.Status, r.StartedAt.Format("2006-01-02 15:04:05"), completed,
			r.TickersProcessed, r.CandidatesFound, r.AlertsTriggered)
		if r.Message != "" {
			fmt.Printf("        %s\n", r.Message)
		}
	}

	positions, err := a.positions.ListOpen(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("\n=== Open positions (%d) ===\n", len(positions))
	for _, p := range positions {
		symbol := fmt.Sprintf("ticker#%d", p.TickerID)
		if t, err := a.tickers.GetByID(ctx, p.TickerID); err == nil {
			symbol = t.Symbol
		}
		line := fmt.Sprintf("  %-6s opened=%s", symbol, p.DateOpened.Format("2006-01-02"))
		if p.LastClose != nil && p.LastKijun != nil {
			line += fmt.Sprintf(" close=%.2f kijun=%.2f", *p.LastClose, *p.LastKijun)
		}
		fmt.Println(line)
	}

	alerts, err := a.alerts.List(ctx, true)
	if err != nil {
		return err
	}

	fmt.Printf("\n=== Unresolved alerts (%d) ===\n", len(alerts))
	for _, al := range alerts {
		fmt.Printf("  🔔 %-6s %s %s close=%.2f kijun=%.2f\n",
			al.Symbol, al.AlertDate.Format("2006-01-02"), al.Reason, al.ClosePrice, al.KijunValue)
	}

	return nil
}
