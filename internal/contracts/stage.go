package contracts

// Pipeline Stage 정의 (SSOT)
// 모든 로그와 run_log row에서 이 상수를 사용해야 함
//
// 파이프라인 흐름:
//   Idle → Seeding → Fetching → Computing → Scanning → Evaluating
//        → Completed | Failed

// Stage represents a pipeline stage
type Stage string

const (
	// StageIdle 대기 (스케줄러/수동 트리거 전)
	StageIdle Stage = "IDLE"

	// StageSeeding 유니버스 시드 (최초 1회성 부트스트랩)
	// 위치: internal/universe/
	StageSeeding Stage = "SEEDING"

	// StageFetching 누락 히스토리 수집
	// 위치: internal/marketdata/
	StageFetching Stage = "FETCHING"

	// StageComputing 지표 시계열 전체 재계산
	// 위치: internal/indicator/
	StageComputing Stage = "COMPUTING"

	// StageScanning 합의 기준일 결정 + 후보 스캔/랭킹
	// 위치: internal/scan/
	StageScanning Stage = "SCANNING"

	// StageEvaluating 포지션 평가 및 매도 알림
	// 위치: internal/position/
	StageEvaluating Stage = "EVALUATING"

	// StageCompleted 이번 호출 종료 (terminal)
	StageCompleted Stage = "COMPLETED"

	// StageFailed 복구 불가 오류 (terminal)
	StageFailed Stage = "FAILED"
)

// String returns the stage name
func (s Stage) String() string {
	return string(s)
}

// Terminal reports whether the stage ends the invocation
func (s Stage) Terminal() bool {
	return s == StageCompleted || s == StageFailed
}

// AllStages returns the non-terminal stages in execution order
func AllStages() []Stage {
	return []Stage{
		StageIdle,
		StageSeeding,
		StageFetching,
		StageComputing,
		StageScanning,
		StageEvaluating,
	}
}
