package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	configFile string
	verbose    bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "dragon",
	Short: "Ichimoku Dragon - 일목균형표 모멘텀 스캐너",
	Long: `Ichimoku Dragon

일목균형표 기반 일일 모멘텀 스캔 파이프라인.
유니버스 관리 → 시세 수집 → 지표 계산 → 후보 스캔 → 포지션 평가.

Usage:
  go run ./cmd/dragon [command]

Examples:
  go run ./cmd/dragon run
  go run ./cmd/dragon serve
  go run ./cmd/dragon universe seed
  go run ./cmd/dragon status`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default is .env)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
