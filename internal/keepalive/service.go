// Package keepalive plays a quiet background tone so the amplifier never
// auto-sleeps between prayer events.
package keepalive

import (
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"prayerhub/internal/clock"
	"prayerhub/internal/command"
	"prayerhub/internal/config"
)

// Service owns the detached keepalive player process. Foreground playback
// pauses it and resumes it afterwards; the optional volume cycle bounces the
// tone's own volume between two bounds so the amplifier keeps seeing signal
// changes.
type Service struct {
	cfg    config.Keepalive
	binary string
	runner command.Runner
	clk    clock.Clock
	gate   func() bool
	logger *zap.Logger

	mu         sync.Mutex
	handle     command.Handle
	foreground bool
	modStop    chan struct{}
}

// NewService creates a Service using the given player binary ("mpg123" or
// "ffplay"); any other value disables the service.
func NewService(cfg config.Keepalive, binary string, runner command.Runner, clk clock.Clock, logger *zap.Logger) *Service {
	if cfg.Enabled && binary != "mpg123" && binary != "ffplay" {
		logger.Warn("Keepalive disabled, no usable player binary")
		cfg.Enabled = false
	}
	return &Service{cfg: cfg, binary: binary, runner: runner, clk: clk, logger: logger}
}

// SetConnectionGate installs a pre-start speaker check; a false return keeps
// the tone stopped until the next resume.
func (s *Service) SetConnectionGate(gate func() bool) {
	s.gate = gate
}

// ResumeIfIdle starts the keepalive process unless one is already running or
// a foreground playback is in flight.
func (s *Service) ResumeIfIdle() {
	if !s.cfg.Enabled {
		return
	}
	if s.gate != nil && !s.gate() {
		s.logger.Warn("Speaker unavailable, keepalive stays stopped")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.foreground || s.runningLocked() {
		return
	}
	s.startLocked(s.cfg.VolumePercent)
	if s.cfg.VolumeCycleEnabled && s.modStop == nil {
		s.modStop = make(chan struct{})
		go s.modulate(s.modStop)
	}
}

// PauseForForeground stops the keepalive process and its modulator so
// foreground audio plays alone.
func (s *Service) PauseForForeground() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.foreground = true
	s.stopModulatorLocked()
	s.stopProcessLocked()
}

// OnForegroundStart implements audio.ForegroundMonitor.
func (s *Service) OnForegroundStart() {
	s.PauseForForeground()
}

// OnForegroundEnd implements audio.ForegroundMonitor.
func (s *Service) OnForegroundEnd() {
	s.mu.Lock()
	s.foreground = false
	s.mu.Unlock()
	s.ResumeIfIdle()
}

// IsRunning reports whether the keepalive process is alive.
func (s *Service) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runningLocked()
}

// IsModulating reports whether the volume cycle goroutine is active.
func (s *Service) IsModulating() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.modStop != nil
}

// Stop shuts the service down for process exit.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopModulatorLocked()
	s.stopProcessLocked()
}

func (s *Service) runningLocked() bool {
	return s.handle != nil && s.handle.Running()
}

func (s *Service) startLocked(volumePercent int) {
	path := config.ResolvePath(s.cfg.Path)
	if _, err := os.Stat(path); err != nil {
		s.logger.Error("Keepalive audio file missing", zap.String("path", path))
		return
	}

	args := s.buildArgs(volumePercent)
	handle, err := s.runner.Spawn(args)
	if err != nil {
		s.logger.Error("Failed to start keepalive player", zap.Error(err))
		return
	}
	s.handle = handle
	s.logger.Info("Keepalive tone started",
		zap.Int("volume_percent", volumePercent), zap.Bool("loop", s.cfg.Loop))
}

func (s *Service) stopProcessLocked() {
	if s.handle == nil {
		return
	}
	if s.handle.Running() {
		if err := s.handle.Terminate(); err != nil {
			s.logger.Warn("Failed to terminate keepalive player", zap.Error(err))
		}
		if err := s.handle.Wait(2 * time.Second); err != nil {
			s.logger.Warn("Keepalive player did not exit in time")
		}
	}
	s.handle = nil
}

func (s *Service) stopModulatorLocked() {
	if s.modStop == nil {
		return
	}
	close(s.modStop)
	s.modStop = nil
}

// modulate bounces the tone volume between the configured bounds, restarting
// the player at each step. It owns the direction state; stop wins any race
// with the step timer.
func (s *Service) modulate(stop chan struct{}) {
	step := time.Duration(s.cfg.VolumeCycleStepSeconds * float64(time.Second))
	volume := s.cfg.VolumeCycleMinPercent
	ascending := true

	for {
		select {
		case <-stop:
			return
		case <-s.clk.After(step):
		}

		if ascending {
			volume++
			if volume >= s.cfg.VolumeCycleMaxPercent {
				volume = s.cfg.VolumeCycleMaxPercent
				ascending = false
			}
		} else {
			volume--
			if volume <= s.cfg.VolumeCycleMinPercent {
				volume = s.cfg.VolumeCycleMinPercent
				ascending = true
			}
		}

		s.mu.Lock()
		if s.modStop != stop {
			s.mu.Unlock()
			return
		}
		if s.foreground {
			s.mu.Unlock()
			continue
		}
		s.stopProcessLocked()
		s.startLocked(volume)
		s.mu.Unlock()
	}
}

// buildArgs assembles the player command line. mpg123 scales 0..32768, so
// the percent maps onto that range; ffplay takes the percent directly.
func (s *Service) buildArgs(volumePercent int) []string {
	path := config.ResolvePath(s.cfg.Path)

	var args []string
	switch s.binary {
	case "mpg123":
		args = []string{"mpg123", "-q"}
		if s.cfg.Loop {
			args = append(args, "--loop", "-1")
		}
		scale := 32768 * volumePercent / 100
		args = append(args, "-f", fmt.Sprintf("%d", scale), path)
	case "ffplay":
		args = []string{"ffplay", "-nodisp", "-autoexit", "-loglevel", "error"}
		if s.cfg.Loop {
			args = append(args, "-stream_loop", "-1")
		}
		args = append(args, "-volume", fmt.Sprintf("%d", volumePercent), path)
	}

	if s.cfg.NiceLevel != nil {
		args = append([]string{"nice", "-n", fmt.Sprintf("%d", *s.cfg.NiceLevel)}, args...)
	}
	return args
}
