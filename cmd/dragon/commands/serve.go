package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/dragon/internal/api"
	"github.com/wonny/dragon/internal/api/handlers"
	"github.com/wonny/dragon/internal/scheduler"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "데몬 모드 (스케줄러 + API 서버)",
	Long: `스케줄러와 REST API 서버를 함께 실행합니다.

이 명령어는:
- 설정된 시각에 일일 파이프라인 실행
- 유지보수 잡(오래된 로그/알림 정리) 실행
- 상태 조회/수동 트리거 API 제공

Endpoints:
  GET  /health                     - Health check
  POST /api/scan                   - 수동 런 트리거
  GET  /api/runs                   - 최근 런 이력
  GET  /api/candidates?date=       - 후보 조회
  GET  /api/positions              - 오픈 포지션
  GET  /api/alerts                 - 매도 알림
  GET  /api/settings               - 설정 조회
  PUT  /api/settings               - 설정 변경

Example:
  go run ./cmd/dragon serve
  go run ./cmd/dragon serve --port 8091`,
	RunE: runServe,
}

var servePort string

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&servePort, "port", "", "API 서버 포트 (기본: PORT env)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	if servePort != "" {
		a.cfg.Port = servePort
	}

	// Scheduler
	sched := scheduler.New(a.pipeline, a.settings, a.log)
	sched.Start()
	defer sched.Stop()

	maintenance := scheduler.NewMaintenance(a.runLogs, a.alerts, a.log)
	if err := maintenance.Start(); err != nil {
		return fmt.Errorf("start maintenance jobs: %w", err)
	}
	defer maintenance.Stop()

	// API server
	scanHandler := handlers.NewScanHandler(a.pipeline, a.candidates, a.runLogs, a.log)
	positionHandler := handlers.NewPositionHandler(a.positions, a.alerts, a.tickers, a.log)
	settingsHandler := handlers.NewSettingsHandler(a.settings, sched, a.log)

	router := api.NewRouter(scanHandler, positionHandler, settingsHandler, a.log)
	server := api.New(a.cfg, a.log, router)

	go func() {
		if err := server.Start(); err != nil {
			a.log.WithError(err).Fatal("Failed to start server")
		}
	}()

	fmt.Printf("\n✅ Dragon daemon running on http://localhost:%s\n", a.cfg.Port)
	if next := sched.NextScheduled(); next != nil {
		fmt.Printf("   Next scheduled run: %s\n", next.Format(time.RFC3339))
	} else {
		fmt.Println("   Schedule disabled (enable via PUT /api/settings)")
	}

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	a.log.Info("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	return nil
}
