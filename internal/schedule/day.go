package schedule

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"prayerhub/internal/clock"
	"prayerhub/internal/prayer"
)

// RefreshJobID is the id of the recurring daily refresh job. Job id formats
// are stable: status views and operators rely on them.
const RefreshJobID = "refresh_daily"

// Handler executes a day-plan event at fire time.
type Handler func(plan prayer.DayPlan, event string)

// DayScheduler converts day plans into one-shot jobs on the runner.
type DayScheduler struct {
	runner  *Runner
	handler Handler
	clk     clock.Clock
	logger  *zap.Logger
}

// NewDayScheduler creates a DayScheduler.
func NewDayScheduler(runner *Runner, handler Handler, clk clock.Clock, logger *zap.Logger) *DayScheduler {
	return &DayScheduler{runner: runner, handler: handler, clk: clk, logger: logger}
}

// ScheduleDay replaces this date's jobs with jobs for the plan's times plus
// the configured Quran recitation times. Events whose moment has already
// passed are skipped so stale audio never plays after a reboot.
func (s *DayScheduler) ScheduleDay(plan prayer.DayPlan, quranTimes []string) {
	removed := s.removeJobsForDate(plan.Date)
	if removed > 0 {
		s.logger.Info("Removed stale jobs for date",
			zap.String("date", plan.Date.Format("2006-01-02")), zap.Int("count", removed))
	}

	names := make([]string, 0, len(plan.Times))
	for name := range plan.Times {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		runAt, err := prayer.Combine(plan.Date, plan.Times[name])
		if err != nil {
			s.logger.Warn("Skipping event with invalid time",
				zap.String("event", name), zap.Error(err))
			continue
		}
		if !runAt.After(s.clk.Now()) {
			continue
		}

		id := EventJobID(name, plan.Date)
		plan, name := plan, name
		if s.runner.Add(id, runAt, func() { s.fireEvent(plan, name) }) {
			s.logger.Info("Scheduled event",
				zap.String("job_id", id), zap.Time("run_at", runAt))
		}
	}

	times := append([]string(nil), quranTimes...)
	sort.Strings(times)
	for _, hhmm := range times {
		runAt, err := prayer.Combine(plan.Date, hhmm)
		if err != nil {
			s.logger.Warn("Skipping Quran slot with invalid time",
				zap.String("time", hhmm), zap.Error(err))
			continue
		}
		if !runAt.After(s.clk.Now()) {
			continue
		}

		id := QuranJobID(plan.Date, hhmm)
		plan, event := plan, "quran@"+hhmm
		if s.runner.Add(id, runAt, func() { s.fireEvent(plan, event) }) {
			s.logger.Info("Scheduled Quran recitation",
				zap.String("job_id", id), zap.Time("run_at", runAt))
		}
	}
}

// ScheduleRefreshJob installs the recurring daily refresh trigger.
func (s *DayScheduler) ScheduleRefreshJob(hour, minute int, refresh func()) error {
	spec := fmt.Sprintf("%d %d * * *", minute, hour)
	if err := s.runner.AddCron(RefreshJobID, spec, refresh); err != nil {
		return fmt.Errorf("installing %s: %w", RefreshJobID, err)
	}
	s.logger.Info("Scheduled daily refresh",
		zap.Int("hour", hour), zap.Int("minute", minute))
	return nil
}

// Jobs lists every pending job, for the status UI.
func (s *DayScheduler) Jobs() []JobInfo {
	return s.runner.Jobs()
}

func (s *DayScheduler) fireEvent(plan prayer.DayPlan, event string) {
	s.logger.Info("Executing scheduled event",
		zap.String("event", event),
		zap.String("date", plan.Date.Format("2006-01-02")))
	s.handler(plan, event)
}

// removeJobsForDate clears every job whose id encodes the date, so repeated
// refreshes never accumulate duplicates.
func (s *DayScheduler) removeJobsForDate(date time.Time) int {
	compact := date.Format("20060102")
	return s.runner.RemoveWhere(func(id string) bool {
		return strings.HasSuffix(id, "_"+compact) ||
			strings.HasPrefix(id, "quran_"+compact+"_")
	})
}

// EventJobID is the stable job id for a named event on a date.
func EventJobID(name string, date time.Time) string {
	return fmt.Sprintf("event_%s_%s", name, date.Format("20060102"))
}

// QuranJobID keeps the slot time in the id for easier tracking in status
// views.
func QuranJobID(date time.Time, hhmm string) string {
	compact := strings.ReplaceAll(hhmm, ":", "")
	return fmt.Sprintf("quran_%s_%s", date.Format("20060102"), compact)
}
