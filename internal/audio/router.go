// Package audio covers sound output: backend volume routing, exclusive file
// playback and playback timeout resolution.
package audio

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"prayerhub/internal/command"
)

// Backend is the system audio stack used for volume control.
type Backend int

const (
	BackendNone Backend = iota
	BackendPipeWire
	BackendPulseAudio
)

func (b Backend) String() string {
	switch b {
	case BackendPipeWire:
		return "pipewire"
	case BackendPulseAudio:
		return "pulseaudio"
	default:
		return "none"
	}
}

// DetectBackend probes PATH for a volume control binary, preferring wpctl
// over pactl.
func DetectBackend(runner command.Runner) Backend {
	if _, ok := runner.LookPath("wpctl"); ok {
		return BackendPipeWire
	}
	if _, ok := runner.LookPath("pactl"); ok {
		return BackendPulseAudio
	}
	return BackendNone
}

// Router applies volume changes and sink selection through the detected
// backend. The backend is resolved once at construction and never re-probed.
type Router struct {
	runner  command.Runner
	backend Backend
	logger  *zap.Logger
}

// NewRouter creates a Router for the detected backend.
func NewRouter(runner command.Runner, logger *zap.Logger) *Router {
	backend := DetectBackend(runner)
	if backend == BackendNone {
		logger.Warn("No audio backend found; volume control disabled")
	} else {
		logger.Info("Audio backend detected", zap.String("backend", backend.String()))
	}
	return &Router{runner: runner, backend: backend, logger: logger}
}

// Backend returns the backend resolved at construction.
func (r *Router) Backend() Backend {
	return r.backend
}

// SetMasterVolume sets the default sink volume in percent. With no backend
// this logs and succeeds so playback can still proceed.
func (r *Router) SetMasterVolume(percent int) error {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}

	var args []string
	switch r.backend {
	case BackendPipeWire:
		args = []string{"wpctl", "set-volume", "@DEFAULT_AUDIO_SINK@",
			fmt.Sprintf("%.2f", float64(percent)/100.0)}
	case BackendPulseAudio:
		args = []string{"pactl", "set-sink-volume", "@DEFAULT_SINK@",
			fmt.Sprintf("%d%%", percent)}
	default:
		r.logger.Warn("Skipping volume change, no audio backend",
			zap.Int("percent", percent))
		return nil
	}

	result, err := r.runner.Run(args, 5*time.Second)
	if err != nil {
		return fmt.Errorf("volume command failed: %w", err)
	}
	if result.ExitCode != 0 {
		return fmt.Errorf("volume command exited %d: %s",
			result.ExitCode, strings.TrimSpace(result.Stderr))
	}
	r.logger.Debug("Set master volume", zap.Int("percent", percent))
	return nil
}

// EnsureDefaultSink points the default sink at the Bluetooth speaker's
// bluez sink. Only meaningful on PulseAudio-compatible backends; failures
// are logged, not fatal, since the sink name varies by stack version.
func (r *Router) EnsureDefaultSink(mac string) {
	if _, ok := r.runner.LookPath("pactl"); !ok {
		return
	}
	sink := fmt.Sprintf("bluez_output.%s.1", strings.ReplaceAll(mac, ":", "_"))
	result, err := r.runner.Run([]string{"pactl", "set-default-sink", sink}, 5*time.Second)
	if err != nil || result.ExitCode != 0 {
		r.logger.Warn("Could not set default sink", zap.String("sink", sink))
		return
	}
	r.logger.Info("Default sink set", zap.String("sink", sink))
}
