package audio

import (
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"prayerhub/internal/command"
)

// Binary is the player executable used for foreground playback.
type Binary int

const (
	BinaryNone Binary = iota
	BinaryMpg123
	BinaryFfplay
)

func (b Binary) String() string {
	switch b {
	case BinaryMpg123:
		return "mpg123"
	case BinaryFfplay:
		return "ffplay"
	default:
		return "none"
	}
}

// DetectPlayer probes PATH for a playback binary, preferring mpg123 over
// ffplay.
func DetectPlayer(runner command.Runner) Binary {
	if _, ok := runner.LookPath("mpg123"); ok {
		return BinaryMpg123
	}
	if _, ok := runner.LookPath("ffplay"); ok {
		return BinaryFfplay
	}
	return BinaryNone
}

// ForegroundMonitor is notified around foreground playback so the keepalive
// service can step aside for the duration.
type ForegroundMonitor interface {
	OnForegroundStart()
	OnForegroundEnd()
}

// ExclusivePlayer plays one file at a time. A Play while another playback is
// in flight returns immediately instead of queueing; prayer audio must never
// stack.
type ExclusivePlayer struct {
	runner    command.Runner
	router    *Router
	binary    Binary
	extraArgs []string
	monitor   ForegroundMonitor
	logger    *zap.Logger

	mu sync.Mutex
}

// NewExclusivePlayer creates an ExclusivePlayer. The playback binary is
// resolved once here. monitor may be nil.
func NewExclusivePlayer(runner command.Runner, router *Router, extraArgs []string, monitor ForegroundMonitor, logger *zap.Logger) *ExclusivePlayer {
	binary := DetectPlayer(runner)
	if binary == BinaryNone {
		logger.Error("Neither mpg123 nor ffplay found on PATH; audio events will be skipped")
	} else {
		logger.Info("Playback binary detected", zap.String("binary", binary.String()))
	}
	return &ExclusivePlayer{
		runner:    runner,
		router:    router,
		binary:    binary,
		extraArgs: extraArgs,
		monitor:   monitor,
		logger:    logger,
	}
}

// Binary returns the playback binary resolved at construction.
func (p *ExclusivePlayer) Binary() Binary {
	return p.binary
}

// Play plays path at the given volume, blocking until the player exits or
// timeout elapses (zero timeout means unbounded). It reports whether the
// player ran to a clean exit; a concurrent playback, a missing file, a
// non-zero exit or a timeout kill all yield false.
func (p *ExclusivePlayer) Play(path string, volumePercent int, timeout time.Duration) bool {
	if p.binary == BinaryNone {
		p.logger.Error("Cannot play, neither mpg123 nor ffplay is available",
			zap.String("path", path))
		return false
	}
	if _, err := os.Stat(path); err != nil {
		p.logger.Error("Audio file missing", zap.String("path", path), zap.Error(err))
		return false
	}
	if !p.mu.TryLock() {
		p.logger.Warn("Playback already in progress, skipping", zap.String("path", path))
		return false
	}
	defer p.mu.Unlock()

	if p.monitor != nil {
		p.monitor.OnForegroundStart()
		defer p.monitor.OnForegroundEnd()
	}

	if err := p.router.SetMasterVolume(volumePercent); err != nil {
		p.logger.Warn("Volume change failed, playing anyway", zap.Error(err))
	}

	args := p.playArgs(path)
	p.logger.Info("Playing audio",
		zap.String("path", path),
		zap.Int("volume_percent", volumePercent),
		zap.Duration("timeout", timeout))

	result, err := p.runner.Run(args, timeout)
	switch {
	case err == command.ErrTimeout:
		p.logger.Warn("Playback timed out, player killed",
			zap.String("path", path), zap.Duration("timeout", timeout))
		return false
	case err != nil:
		p.logger.Error("Playback failed to start", zap.String("path", path), zap.Error(err))
		return false
	case result.ExitCode != 0:
		p.logger.Warn("Player exited non-zero",
			zap.String("path", path), zap.Int("exit_code", result.ExitCode))
		return false
	}
	return true
}

func (p *ExclusivePlayer) playArgs(path string) []string {
	var args []string
	switch p.binary {
	case BinaryMpg123:
		args = []string{"mpg123", "-q"}
	case BinaryFfplay:
		args = []string{"ffplay", "-nodisp", "-autoexit", "-loglevel", "error"}
	}
	args = append(args, p.extraArgs...)
	return append(args, path)
}
