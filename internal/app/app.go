// Package app wires the fetching, derivation and scheduling layers into the
// appliance's startup and refresh flows.
package app

import (
	"time"

	"go.uber.org/zap"

	"prayerhub/internal/clock"
	"prayerhub/internal/config"
	"prayerhub/internal/prayer"
	"prayerhub/internal/schedule"
)

// PlanSource supplies day plans. *prayer.Service satisfies it.
type PlanSource interface {
	Prefetch(days int)
	GetDay(day time.Time) (prayer.DayPlan, bool)
	CachedPlans() []prayer.DayPlan
}

// Orchestrator drives the cache-first boot sequence and the daily refresh.
type Orchestrator struct {
	plans        PlanSource
	scheduler    *schedule.DayScheduler
	quranTimes   []string
	prefetchDays int
	clk          clock.Clock
	logger       *zap.Logger
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(plans PlanSource, scheduler *schedule.DayScheduler, cfg config.Config, clk clock.Clock, logger *zap.Logger) *Orchestrator {
	quranTimes := make([]string, 0, len(cfg.Audio.QuranSchedule))
	for _, item := range cfg.Audio.QuranSchedule {
		quranTimes = append(quranTimes, item.Time)
	}
	return &Orchestrator{
		plans:        plans,
		scheduler:    scheduler,
		quranTimes:   quranTimes,
		prefetchDays: cfg.API.PrefetchDays,
		clk:          clk,
		logger:       logger,
	}
}

// ScheduleFromCache schedules every cached day plan. This runs before any
// network call so a reboot without connectivity still produces a full
// schedule from the last prefetch.
func (o *Orchestrator) ScheduleFromCache() int {
	plans := o.plans.CachedPlans()
	for _, plan := range plans {
		o.scheduler.ScheduleDay(plan, o.quranTimes)
	}
	o.logger.Info("Scheduled from cache", zap.Int("days", len(plans)))
	return len(plans)
}

// ScheduleRefresh installs the recurring daily refresh and runs one refresh
// immediately to pull fresh data over whatever the cache provided.
func (o *Orchestrator) ScheduleRefresh(hour, minute int) error {
	if err := o.scheduler.ScheduleRefreshJob(hour, minute, o.Refresh); err != nil {
		return err
	}
	o.Refresh()
	return nil
}

// Refresh prefetches the configured window and reschedules today and
// tomorrow. Later days stay cached only; they get scheduled when their date
// arrives.
func (o *Orchestrator) Refresh() {
	o.logger.Info("Refreshing prayer times", zap.Int("days", o.prefetchDays))
	o.plans.Prefetch(o.prefetchDays)

	now := o.clk.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.Local)
	for _, day := range []time.Time{today, today.AddDate(0, 0, 1)} {
		plan, ok := o.plans.GetDay(day)
		if !ok {
			o.logger.Warn("No plan available for date",
				zap.String("date", day.Format("2006-01-02")))
			continue
		}
		o.scheduler.ScheduleDay(plan, o.quranTimes)
	}
}
