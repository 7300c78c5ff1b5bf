package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/dragon/internal/settings"
)

func scheduleState(enabled bool, at, tz string) settings.State {
	st := settings.DefaultState()
	st.ScheduleEnabled = enabled
	st.ScheduleTime = at
	st.ScheduleTimeZone = tz
	return st
}

func TestNextRun(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	tests := []struct {
		name string
		now  time.Time
		st   settings.State
		want time.Time
	}{
		{
			name: "same day when still ahead",
			now:  time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC),
			st:   scheduleState(true, "22:00", "UTC"),
			want: time.Date(2026, 8, 28, 22, 0, 0, 0, time.UTC),
		},
		{
			name: "next day when already past",
			now:  time.Date(2026, 8, 28, 22, 30, 0, 0, time.UTC),
			st:   scheduleState(true, "22:00", "UTC"),
			want: time.Date(2026, 8, 29, 22, 0, 0, 0, time.UTC),
		},
		{
			name: "exact boundary rolls to next day",
			now:  time.Date(2026, 8, 28, 22, 0, 0, 0, time.UTC),
			st:   scheduleState(true, "22:00", "UTC"),
			want: time.Date(2026, 8, 29, 22, 0, 0, 0, time.UTC),
		},
		{
			name: "timezone respected",
			// 18:00 UTC = 14:00 New York → 당일 16:30 NY가 아직 남아 있다
			now:  time.Date(2026, 8, 28, 18, 0, 0, 0, time.UTC),
			st:   scheduleState(true, "16:30", "America/New_York"),
			want: time.Date(2026, 8, 28, 16, 30, 0, 0, ny),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NextRun(tt.now, tt.st)
			require.NoError(t, err)
			assert.True(t, got.Equal(tt.want), "got %v, want %v", got, tt.want)
		})
	}
}

func TestNextRun_InvalidSettings(t *testing.T) {
	now := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)

	_, err := NextRun(now, scheduleState(true, "25:00", "UTC"))
	assert.Error(t, err)

	_, err = NextRun(now, scheduleState(true, "22:00", "Mars/Olympus"))
	assert.Error(t, err)
}
