package schedule

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"prayerhub/internal/clock"
	"prayerhub/internal/prayer"
)

type eventRecorder struct {
	mu     sync.Mutex
	events []string
}

func (r *eventRecorder) handle(_ prayer.DayPlan, event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *eventRecorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func dayPlanForTest(t *testing.T, date string, times map[string]string) prayer.DayPlan {
	t.Helper()
	plan, err := prayer.PlanFromRecord(prayer.Record{
		Date: date, Madhab: "hanafi", City: "Amsterdam", Times: times})
	require.NoError(t, err)
	return plan
}

func newDaySchedulerForTest(start time.Time) (*DayScheduler, *Runner, *clock.MockClock, *eventRecorder) {
	clk := clock.NewMockClock(start)
	runner := NewRunner(clk, zap.NewNop())
	rec := &eventRecorder{}
	return NewDayScheduler(runner, rec.handle, clk, zap.NewNop()), runner, clk, rec
}

func TestScheduleDayCreatesExpectedJobIDs(t *testing.T) {
	start := time.Date(2026, 8, 31, 1, 0, 0, 0, time.Local)
	scheduler, runner, _, _ := newDaySchedulerForTest(start)

	plan := dayPlanForTest(t, "2026-08-31", map[string]string{
		"fajr": "05:00", "maghrib": "18:00",
	})
	scheduler.ScheduleDay(plan, []string{"21:30"})

	ids := make([]string, 0)
	for _, job := range runner.Jobs() {
		ids = append(ids, job.ID)
	}
	assert.Equal(t, []string{
		"event_fajr_20260831",
		"event_maghrib_20260831",
		"quran_20260831_2130",
	}, ids)
}

func TestScheduleDaySkipsPastEvents(t *testing.T) {
	start := time.Date(2026, 8, 31, 12, 0, 0, 0, time.Local)
	scheduler, runner, _, _ := newDaySchedulerForTest(start)

	plan := dayPlanForTest(t, "2026-08-31", map[string]string{
		"fajr": "05:00", "maghrib": "18:00",
	})
	scheduler.ScheduleDay(plan, []string{"09:00", "21:30"})

	ids := make([]string, 0)
	for _, job := range runner.Jobs() {
		ids = append(ids, job.ID)
	}
	assert.Equal(t, []string{"event_maghrib_20260831", "quran_20260831_2130"}, ids)
}

func TestScheduleDayIsIdempotent(t *testing.T) {
	start := time.Date(2026, 8, 31, 1, 0, 0, 0, time.Local)
	scheduler, runner, _, _ := newDaySchedulerForTest(start)

	plan := dayPlanForTest(t, "2026-08-31", map[string]string{"maghrib": "18:00"})
	scheduler.ScheduleDay(plan, []string{"21:30"})
	scheduler.ScheduleDay(plan, []string{"21:30"})
	scheduler.ScheduleDay(plan, []string{"21:30"})

	assert.Len(t, runner.Jobs(), 2)
}

func TestRescheduleRemovesStaleJobsForDateOnly(t *testing.T) {
	start := time.Date(2026, 8, 31, 1, 0, 0, 0, time.Local)
	scheduler, runner, _, _ := newDaySchedulerForTest(start)

	today := dayPlanForTest(t, "2026-08-31", map[string]string{"maghrib": "18:00"})
	tomorrow := dayPlanForTest(t, "2026-09-01", map[string]string{"maghrib": "17:58"})
	scheduler.ScheduleDay(today, []string{"21:30"})
	scheduler.ScheduleDay(tomorrow, nil)

	// A pending test job embeds a timestamp, not a bare date; it must
	// survive a reschedule of that date.
	require.True(t, runner.Add("test_audio_202608311330",
		time.Date(2026, 8, 31, 13, 30, 0, 0, time.Local), func() {}))

	updated := dayPlanForTest(t, "2026-08-31", map[string]string{"maghrib": "18:05"})
	scheduler.ScheduleDay(updated, nil)

	ids := make([]string, 0)
	for _, job := range runner.Jobs() {
		ids = append(ids, job.ID)
	}
	assert.ElementsMatch(t, []string{
		"event_maghrib_20260831",
		"event_maghrib_20260901",
		"test_audio_202608311330",
	}, ids)

	job, ok := runner.Get("event_maghrib_20260831")
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 8, 31, 18, 5, 0, 0, time.Local), job.RunAt)
}

func TestFiredEventReachesHandler(t *testing.T) {
	start := time.Date(2026, 8, 31, 17, 0, 0, 0, time.Local)
	scheduler, _, clk, rec := newDaySchedulerForTest(start)

	plan := dayPlanForTest(t, "2026-08-31", map[string]string{"maghrib": "18:00"})
	scheduler.ScheduleDay(plan, []string{"21:30"})

	clk.Advance(time.Hour)
	assert.Equal(t, []string{"maghrib"}, rec.all())

	clk.Advance(3*time.Hour + 30*time.Minute)
	assert.Equal(t, []string{"maghrib", "quran@21:30"}, rec.all())
}

func TestScheduleRefreshJob(t *testing.T) {
	start := time.Date(2026, 8, 31, 23, 0, 0, 0, time.Local)
	scheduler, runner, clk, _ := newDaySchedulerForTest(start)

	var refreshes int
	require.NoError(t, scheduler.ScheduleRefreshJob(0, 5, func() { refreshes++ }))

	job, ok := runner.Get(RefreshJobID)
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 9, 1, 0, 5, 0, 0, time.Local), job.RunAt)

	clk.Advance(65 * time.Minute)
	assert.Equal(t, 1, refreshes)
}

func TestJobIDFormats(t *testing.T) {
	date := time.Date(2026, 8, 31, 0, 0, 0, 0, time.Local)
	assert.Equal(t, "event_fajr_20260831", EventJobID("fajr", date))
	assert.Equal(t, "quran_20260831_0615", QuranJobID(date, "06:15"))
	assert.Equal(t, "refresh_daily", RefreshJobID)
}
