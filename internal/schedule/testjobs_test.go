package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"prayerhub/internal/clock"
)

func newTestSchedulerForTest(start time.Time, maxPending, maxMinutesAhead int) (*TestScheduler, *Runner, *clock.MockClock, *counter) {
	clk := clock.NewMockClock(start)
	runner := NewRunner(clk, zap.NewNop())
	var fired counter
	ts := NewTestScheduler(runner, fired.inc, maxPending, maxMinutesAhead, clk, zap.NewNop())
	return ts, runner, clk, &fired
}

func TestScheduleInMinutes(t *testing.T) {
	start := time.Date(2026, 8, 31, 12, 0, 0, 0, time.Local)
	ts, _, clk, fired := newTestSchedulerForTest(start, 3, 60)

	id, err := ts.ScheduleInMinutes(10)
	require.NoError(t, err)
	assert.Equal(t, "test_audio_202608311210", id)

	clk.Advance(10 * time.Minute)
	assert.Equal(t, 1, fired.value())
}

func TestScheduleInMinutesBounds(t *testing.T) {
	start := time.Date(2026, 8, 31, 12, 0, 0, 0, time.Local)
	ts, _, _, _ := newTestSchedulerForTest(start, 10, 60)

	_, err := ts.ScheduleInMinutes(0)
	assert.Error(t, err)

	_, err = ts.ScheduleInMinutes(-5)
	assert.Error(t, err)

	_, err = ts.ScheduleInMinutes(61)
	assert.Error(t, err)

	_, err = ts.ScheduleInMinutes(60)
	assert.NoError(t, err)
}

func TestScheduleAtTimeRollsToTomorrow(t *testing.T) {
	start := time.Date(2026, 8, 31, 12, 0, 0, 0, time.Local)
	ts, runner, _, _ := newTestSchedulerForTest(start, 3, 24*60)

	// 09:00 has passed today, so the test lands tomorrow morning.
	id, err := ts.ScheduleAtTime("09:00")
	require.NoError(t, err)
	assert.Equal(t, "test_audio_202609010900", id)

	job, ok := runner.Get(id)
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 9, 1, 9, 0, 0, 0, time.Local), job.RunAt)
}

func TestScheduleAtTimeRespectsHorizon(t *testing.T) {
	start := time.Date(2026, 8, 31, 12, 0, 0, 0, time.Local)
	ts, _, _, _ := newTestSchedulerForTest(start, 3, 120)

	_, err := ts.ScheduleAtTime("13:00")
	assert.NoError(t, err)

	// 15:00 is 180 minutes out, beyond the 120 minute horizon.
	_, err = ts.ScheduleAtTime("15:00")
	assert.Error(t, err)
}

func TestScheduleAtTimeRejectsGarbage(t *testing.T) {
	start := time.Date(2026, 8, 31, 12, 0, 0, 0, time.Local)
	ts, _, _, _ := newTestSchedulerForTest(start, 3, 60)

	_, err := ts.ScheduleAtTime("noon")
	assert.Error(t, err)
	_, err = ts.ScheduleAtTime("25:00")
	assert.Error(t, err)
}

func TestPendingCapacity(t *testing.T) {
	start := time.Date(2026, 8, 31, 12, 0, 0, 0, time.Local)
	ts, _, _, _ := newTestSchedulerForTest(start, 2, 60)

	_, err := ts.ScheduleInMinutes(5)
	require.NoError(t, err)
	_, err = ts.ScheduleInMinutes(10)
	require.NoError(t, err)

	_, err = ts.ScheduleInMinutes(15)
	assert.Error(t, err)

	// Cancelling frees a slot.
	tests := ts.List()
	require.Len(t, tests, 2)
	require.True(t, ts.Cancel(tests[0].ID))

	_, err = ts.ScheduleInMinutes(15)
	assert.NoError(t, err)
}

func TestCancelOnlyTouchesTestJobs(t *testing.T) {
	start := time.Date(2026, 8, 31, 12, 0, 0, 0, time.Local)
	ts, runner, _, _ := newTestSchedulerForTest(start, 3, 60)

	require.True(t, runner.Add("event_maghrib_20260831",
		start.Add(time.Hour), func() {}))

	assert.False(t, ts.Cancel("event_maghrib_20260831"))
	_, ok := runner.Get("event_maghrib_20260831")
	assert.True(t, ok)

	assert.False(t, ts.Cancel("test_audio_000000000000"))
}

func TestListOnlyReturnsTestJobs(t *testing.T) {
	start := time.Date(2026, 8, 31, 12, 0, 0, 0, time.Local)
	ts, runner, _, _ := newTestSchedulerForTest(start, 3, 60)

	require.True(t, runner.Add("event_maghrib_20260831", start.Add(time.Hour), func() {}))
	_, err := ts.ScheduleInMinutes(5)
	require.NoError(t, err)

	tests := ts.List()
	require.Len(t, tests, 1)
	assert.Equal(t, "test_audio_202608311205", tests[0].ID)
}
