package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// universeCmd groups universe management subcommands
var universeCmd = &cobra.Command{
	Use:   "universe",
	Short: "티커 유니버스 관리",
}

var universeSeedCmd = &cobra.Command{
	Use:   "seed",
	Short: "내장 구성종목 리스트로 유니버스 시드",
	Long: `내장된 S&P 500 / NASDAQ 100 구성종목으로 유니버스를 시드합니다.
이미 티커가 있으면 아무것도 하지 않습니다 (1회성 부트스트랩).`,
	RunE: runUniverseSeed,
}

var universeRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "웹에서 최신 구성종목으로 갱신",
	Long: `최신 지수 구성종목을 웹에서 가져와 유니버스를 갱신합니다.
빠진 종목은 추가하고, 지수에서 제외된 종목은 비활성화합니다.
티커는 절대 물리 삭제하지 않습니다.`,
	RunE: runUniverseRefresh,
}

var universeListCmd = &cobra.Command{
	Use:   "list",
	Short: "활성 티커 목록 출력",
	RunE:  runUniverseList,
}

func init() {
	rootCmd.AddCommand(universeCmd)
	universeCmd.AddCommand(universeSeedCmd)
	universeCmd.AddCommand(universeRefreshCmd)
	universeCmd.AddCommand(universeListCmd)
}

func runUniverseSeed(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.universe.EnsureSeeded(ctx); err != nil {
		return fmt.Errorf("seed universe: %w", err)
	}

	count, err := a.tickers.Count(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("✅ Universe ready: %d tickers\n", count)
	return nil
}

func runUniverseRefresh(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	result, err := a.refresher.Refresh(ctx)
	if err != nil {
		return fmt.Errorf("refresh universe: %w", err)
	}

	fmt.Printf("✅ Universe refreshed: %d added, %d updated, %d deactivated\n",
		result.Added, result.Updated, result.Deactivated)
	return nil
}

func runUniverseList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	tickers, err := a.tickers.ListActive(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Active tickers: %d\n\n", len(tickers))
	for _, t := range tickers {
		fmt.Printf("  %-6s %-10s %s\n", t.Symbol, t.SourceIndex, t.Name)
	}
	return nil
}
