package commands

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// settingsCmd groups settings subcommands
var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "파이프라인 설정 조회/변경",
}

var settingsListCmd = &cobra.Command{
	Use:   "list",
	Short: "현재 설정 출력",
	RunE:  runSettingsList,
}

var settingsSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "설정 하나 변경",
	Long: `설정 키 하나를 변경합니다. 검증을 통과해야 저장됩니다.

Keys:
  schedule_enabled       true | false
  schedule_time          HH:MM
  schedule_timezone      IANA name (e.g. America/New_York)
  max_candidates         int >= 1
  history_lookback_days  int >= 1
  regression_window      int >= 2
  provider_priority      comma-separated (e.g. stooq,yahoo)

Example:
  go run ./cmd/dragon settings set schedule_time 22:30`,
	Args: cobra.ExactArgs(2),
	RunE: runSettingsSet,
}

func init() {
	rootCmd.AddCommand(settingsCmd)
	settingsCmd.AddCommand(settingsListCmd)
	settingsCmd.AddCommand(settingsSetCmd)
}

func runSettingsList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	st := a.settings.Current()
	fmt.Printf("schedule_enabled:       %t\n", st.ScheduleEnabled)
	fmt.Printf("schedule_time:          %s\n", st.ScheduleTime)
	fmt.Printf("schedule_timezone:      %s\n", st.ScheduleTimeZone)
	fmt.Printf("max_candidates:         %d\n", st.MaxCandidates)
	fmt.Printf("history_lookback_days:  %d\n", st.HistoryLookbackDays)
	fmt.Printf("regression_window:      %d\n", st.RegressionWindow)
	fmt.Printf("provider_priority:      %s\n", strings.Join(st.ProviderPriority, ","))
	return nil
}

func runSettingsSet(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	key, value := args[0], args[1]

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	st := a.settings.Current()
	switch key {
	case "schedule_enabled":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid bool %q", value)
		}
		st.ScheduleEnabled = b
	case "schedule_time":
		st.ScheduleTime = value
	case "schedule_timezone":
		st.ScheduleTimeZone = value
	case "max_candidates":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid int %q", value)
		}
		st.MaxCandidates = n
	case "history_lookback_days":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid int %q", value)
		}
		st.HistoryLookbackDays = n
	case "regression_window":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid int %q", value)
		}
		st.RegressionWindow = n
	case "provider_priority":
		st.ProviderPriority = strings.Split(value, ",")
	default:
		return fmt.Errorf("unknown settings key %q", key)
	}

	if err := a.settings.Update(ctx, st); err != nil {
		return err
	}

	fmt.Printf("✅ %s = %s\n", key, value)
	return nil
}
