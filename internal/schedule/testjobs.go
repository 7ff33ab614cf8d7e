package schedule

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"prayerhub/internal/clock"
)

const testJobPrefix = "test_audio"

// TestScheduler lets the control panel queue bounded ad-hoc audio tests.
// Test jobs share the runner's job table but are fenced off by id prefix,
// a pending cap and a horizon so the panel can never flood the schedule.
type TestScheduler struct {
	runner          *Runner
	clk             clock.Clock
	handler         func()
	maxPending      int
	maxMinutesAhead int
	logger          *zap.Logger
}

// NewTestScheduler creates a TestScheduler; handler runs when a test fires.
func NewTestScheduler(runner *Runner, handler func(), maxPending, maxMinutesAhead int, clk clock.Clock, logger *zap.Logger) *TestScheduler {
	return &TestScheduler{
		runner:          runner,
		clk:             clk,
		handler:         handler,
		maxPending:      maxPending,
		maxMinutesAhead: maxMinutesAhead,
		logger:          logger,
	}
}

// ScheduleAtTime queues a test at the given local HH:MM. A time already
// passed today rolls over to tomorrow.
func (t *TestScheduler) ScheduleAtTime(hhmm string) (string, error) {
	parsed, err := time.Parse("15:04", hhmm)
	if err != nil {
		return "", fmt.Errorf("invalid time %q, expected HH:MM", hhmm)
	}

	now := t.clk.Now()
	runAt := time.Date(now.Year(), now.Month(), now.Day(),
		parsed.Hour(), parsed.Minute(), 0, 0, time.Local)
	if !runAt.After(now) {
		runAt = runAt.AddDate(0, 0, 1)
	}
	return t.schedule(runAt)
}

// ScheduleInMinutes queues a test n minutes from now.
func (t *TestScheduler) ScheduleInMinutes(n int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("minutes must be positive, got %d", n)
	}
	return t.schedule(t.clk.Now().Add(time.Duration(n) * time.Minute))
}

// Cancel removes a pending test job. Only test-prefixed ids are accepted so
// the panel cannot cancel prayer events through this path.
func (t *TestScheduler) Cancel(id string) bool {
	if !strings.HasPrefix(id, testJobPrefix+"_") {
		return false
	}
	if t.runner.Remove(id) {
		t.logger.Info("Cancelled test job", zap.String("job_id", id))
		return true
	}
	return false
}

// List returns the pending test jobs sorted by run time.
func (t *TestScheduler) List() []JobInfo {
	var tests []JobInfo
	for _, info := range t.runner.Jobs() {
		if strings.HasPrefix(info.ID, testJobPrefix+"_") {
			tests = append(tests, info)
		}
	}
	return tests
}

func (t *TestScheduler) schedule(runAt time.Time) (string, error) {
	now := t.clk.Now()
	if !runAt.After(now) {
		return "", fmt.Errorf("test time %s is not in the future", runAt.Format("15:04"))
	}
	horizon := now.Add(time.Duration(t.maxMinutesAhead) * time.Minute)
	if runAt.After(horizon) {
		return "", fmt.Errorf("test time is more than %d minutes ahead", t.maxMinutesAhead)
	}
	if len(t.List()) >= t.maxPending {
		return "", fmt.Errorf("too many pending tests, at most %d allowed", t.maxPending)
	}

	id := fmt.Sprintf("%s_%s", testJobPrefix, runAt.Format("200601021504"))
	if !t.runner.Add(id, runAt, t.handler) {
		return "", fmt.Errorf("test time %s is not in the future", runAt.Format("15:04"))
	}
	t.logger.Info("Scheduled test job",
		zap.String("job_id", id), zap.Time("run_at", runAt))
	return id, nil
}
