// Package schedule contains the event scheduling core: a small in-process
// job runner plus the day-plan and test-audio schedulers built on it.
package schedule

import (
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"prayerhub/internal/clock"
)

// DefaultMisfireGrace is how late a job may fire and still run. Anything
// later is treated as missed, never fired retroactively.
const DefaultMisfireGrace = 60 * time.Second

// JobInfo describes a pending job for status views.
type JobInfo struct {
	ID    string    `json:"id"`
	RunAt time.Time `json:"run_at"`
}

// Runner owns the job table. At most one job exists per id: adding an id
// again replaces the previous job. Callbacks run on timer goroutines and are
// recover-guarded so a panicking handler cannot kill future firings.
type Runner struct {
	clk    clock.Clock
	logger *zap.Logger
	parser cron.Parser
	grace  time.Duration

	mu   sync.Mutex
	jobs map[string]*jobEntry
}

type jobEntry struct {
	id      string
	runAt   time.Time
	fn      func()
	timer   clock.Timer
	sched   cron.Schedule // non-nil for recurring jobs
	running bool
}

// NewRunner creates a Runner with the default misfire grace.
func NewRunner(clk clock.Clock, logger *zap.Logger) *Runner {
	r := &Runner{
		clk:    clk,
		logger: logger,
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		grace:  DefaultMisfireGrace,
		jobs:   make(map[string]*jobEntry),
	}
	return r
}

// SetMisfireGrace overrides the misfire grace window.
func (r *Runner) SetMisfireGrace(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.grace = d
}

// Add schedules fn to run once at runAt, replacing any job with the same id.
// Jobs whose runAt is not strictly in the future are silently dropped; the
// return value reports whether the job was added.
func (r *Runner) Add(id string, runAt time.Time, fn func()) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clk.Now()
	if !runAt.After(now) {
		r.logger.Debug("Dropping past job", zap.String("job_id", id), zap.Time("run_at", runAt))
		return false
	}

	r.removeLocked(id)
	entry := &jobEntry{id: id, runAt: runAt, fn: fn}
	entry.timer = r.clk.AfterFunc(runAt.Sub(now), func() { r.fire(entry) })
	r.jobs[id] = entry
	return true
}

// AddCron schedules fn on a recurring cron spec (standard five-field form),
// replacing any job with the same id.
func (r *Runner) AddCron(id, spec string, fn func()) error {
	sched, err := r.parser.Parse(spec)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.removeLocked(id)
	now := r.clk.Now()
	next := sched.Next(now)
	entry := &jobEntry{id: id, runAt: next, fn: fn, sched: sched}
	entry.timer = r.clk.AfterFunc(next.Sub(now), func() { r.fire(entry) })
	r.jobs[id] = entry
	return nil
}

// Remove deletes the job with the given id, reporting whether it existed.
func (r *Runner) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeLocked(id)
}

// RemoveWhere deletes every job whose id matches the predicate and returns
// how many were removed.
func (r *Runner) RemoveWhere(match func(id string) bool) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id := range r.jobs {
		if match(id) {
			r.removeLocked(id)
			removed++
		}
	}
	return removed
}

// Get returns the job with the given id, if pending.
func (r *Runner) Get(id string) (JobInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.jobs[id]
	if !ok {
		return JobInfo{}, false
	}
	return JobInfo{ID: entry.id, RunAt: entry.runAt}, true
}

// Jobs lists every pending job sorted by run time, then id.
func (r *Runner) Jobs() []JobInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	infos := make([]JobInfo, 0, len(r.jobs))
	for _, entry := range r.jobs {
		infos = append(infos, JobInfo{ID: entry.id, RunAt: entry.runAt})
	}
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].RunAt.Equal(infos[j].RunAt) {
			return infos[i].ID < infos[j].ID
		}
		return infos[i].RunAt.Before(infos[j].RunAt)
	})
	return infos
}

func (r *Runner) removeLocked(id string) bool {
	entry, ok := r.jobs[id]
	if !ok {
		return false
	}
	entry.timer.Stop()
	delete(r.jobs, id)
	return true
}

func (r *Runner) fire(entry *jobEntry) {
	r.mu.Lock()
	current, ok := r.jobs[entry.id]
	if !ok || current != entry {
		// Replaced or removed after the timer was set.
		r.mu.Unlock()
		return
	}

	now := r.clk.Now()
	lateness := now.Sub(entry.runAt)

	if entry.sched != nil {
		next := entry.sched.Next(now)
		entry.runAt = next
		entry.timer = r.clk.AfterFunc(next.Sub(now), func() { r.fire(entry) })
	} else {
		delete(r.jobs, entry.id)
	}

	if lateness > r.grace {
		r.mu.Unlock()
		r.logger.Warn("Job missed its window, not firing",
			zap.String("job_id", entry.id),
			zap.Duration("late_by", lateness))
		return
	}
	if entry.running {
		// A previous firing of this recurring job is still executing.
		r.mu.Unlock()
		r.logger.Warn("Job still running, skipping firing", zap.String("job_id", entry.id))
		return
	}
	entry.running = true
	r.mu.Unlock()

	r.invoke(entry.id, entry.fn)

	r.mu.Lock()
	entry.running = false
	r.mu.Unlock()
}

func (r *Runner) invoke(id string, fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Job callback panicked",
				zap.String("job_id", id), zap.Any("panic", rec))
		}
	}()
	fn()
}
