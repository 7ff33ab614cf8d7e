package audio

import (
	"math"
	"time"

	"go.uber.org/zap"
)

// TimeoutPolicy resolves how long a playback may run before it is killed.
// In fixed mode every playback gets the configured bound; in auto mode the
// bound is the probed file duration plus a buffer, falling back to the fixed
// bound when the probe fails. A zero fixed bound means unbounded.
type TimeoutPolicy struct {
	strategy string
	fixed    time.Duration
	buffer   time.Duration
	prober   DurationProber
	logger   *zap.Logger
}

// NewTimeoutPolicy creates a TimeoutPolicy. prober may be nil in fixed mode.
func NewTimeoutPolicy(strategy string, fixed, buffer time.Duration, prober DurationProber, logger *zap.Logger) *TimeoutPolicy {
	return &TimeoutPolicy{
		strategy: strategy,
		fixed:    fixed,
		buffer:   buffer,
		prober:   prober,
		logger:   logger,
	}
}

// Resolve returns the playback bound for path. Zero means unbounded.
func (t *TimeoutPolicy) Resolve(path string) time.Duration {
	if t.strategy != "auto" || t.prober == nil {
		return t.fixed
	}

	duration, err := t.prober.Duration(path)
	if err != nil {
		t.logger.Warn("Duration probe failed, using fixed timeout",
			zap.String("path", path), zap.Error(err))
		return t.fixed
	}

	seconds := math.Ceil(duration.Seconds() + t.buffer.Seconds())
	if seconds <= 0 {
		return t.fixed
	}
	return time.Duration(seconds) * time.Second
}

// Prewarm probes every path so the first playback does not pay probe latency.
// No-op outside auto mode.
func (t *TimeoutPolicy) Prewarm(paths []string) {
	if t.strategy != "auto" || t.prober == nil {
		return
	}
	for _, path := range paths {
		if _, err := t.prober.Duration(path); err != nil {
			t.logger.Debug("Prewarm probe failed", zap.String("path", path), zap.Error(err))
		}
	}
}
