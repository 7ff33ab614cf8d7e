// Package bluetooth keeps the speaker connection alive through bluetoothctl.
package bluetooth

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"prayerhub/internal/clock"
	"prayerhub/internal/command"
)

var macPattern = regexp.MustCompile(`^[0-9A-Fa-f]{2}(:[0-9A-Fa-f]{2}){5}$`)

// connectBackoff is slept after each failed connect attempt; its length is
// also the attempt count for EnsureConnected.
var connectBackoff = []time.Duration{1 * time.Second, 2 * time.Second, 5 * time.Second}

// SinkEnsurer points audio output at the connected device. *audio.Router
// satisfies it.
type SinkEnsurer interface {
	EnsureDefaultSink(mac string)
}

// TonePlayer plays the connection chime. Satisfied by a closure over the
// exclusive player.
type TonePlayer func()

// Manager checks and restores the Bluetooth speaker connection.
type Manager struct {
	runner        command.Runner
	clk           clock.Clock
	mac           string
	ensureSink    bool
	sink          SinkEnsurer
	connectedTone TonePlayer
	logger        *zap.Logger
}

// NewManager creates a Manager. The MAC is validated here so a malformed
// address can never reach bluetoothctl. sink and connectedTone may be nil.
func NewManager(runner command.Runner, clk clock.Clock, mac string, ensureSink bool, sink SinkEnsurer, connectedTone TonePlayer, logger *zap.Logger) (*Manager, error) {
	if !macPattern.MatchString(mac) {
		return nil, fmt.Errorf("invalid bluetooth MAC address %q", mac)
	}
	return &Manager{
		runner:        runner,
		clk:           clk,
		mac:           mac,
		ensureSink:    ensureSink,
		sink:          sink,
		connectedTone: connectedTone,
		logger:        logger,
	}, nil
}

// IsConnected asks bluetoothctl whether the device is currently connected.
func (m *Manager) IsConnected() bool {
	result, err := m.runner.Run([]string{"bluetoothctl", "info", m.mac}, 5*time.Second)
	if err != nil || result.ExitCode != 0 {
		return false
	}
	for _, line := range strings.Split(result.Stdout, "\n") {
		if strings.Contains(line, "Connected:") && strings.Contains(line, "yes") {
			return true
		}
	}
	return false
}

// EnsureConnected verifies the connection, attempting to connect with
// backoff when it is down. Reports whether the device ends up connected.
func (m *Manager) EnsureConnected() bool {
	if m.IsConnected() {
		return true
	}
	m.logger.Info("Bluetooth device not connected, reconnecting",
		zap.String("mac", m.mac))

	for attempt, backoff := range connectBackoff {
		if m.connect() {
			m.onConnected()
			return true
		}
		m.logger.Warn("Bluetooth connect attempt failed",
			zap.Int("attempt", attempt+1), zap.Duration("backoff", backoff))
		m.clk.Sleep(backoff)
	}

	if m.IsConnected() {
		m.onConnected()
		return true
	}
	m.logger.Error("Bluetooth device unreachable", zap.String("mac", m.mac))
	return false
}

// EnsureConnectedOnce is the playback-path gate: one check, at most one
// connect attempt, no backoff loop, so an event is not delayed past its
// moment by a dead speaker.
func (m *Manager) EnsureConnectedOnce() bool {
	if m.IsConnected() {
		return true
	}
	m.logger.Info("Bluetooth device not connected, single reconnect attempt",
		zap.String("mac", m.mac))
	if m.connect() {
		m.onConnected()
		return true
	}
	return false
}

func (m *Manager) connect() bool {
	result, err := m.runner.Run([]string{"bluetoothctl", "connect", m.mac}, 10*time.Second)
	if err != nil {
		m.logger.Warn("bluetoothctl connect did not run", zap.Error(err))
		return false
	}
	if result.ExitCode != 0 {
		return false
	}
	return strings.Contains(result.Stdout, "Connection successful") || m.IsConnected()
}

func (m *Manager) onConnected() {
	m.logger.Info("Bluetooth device connected", zap.String("mac", m.mac))
	if m.ensureSink && m.sink != nil {
		m.sink.EnsureDefaultSink(m.mac)
	}
	if m.connectedTone != nil {
		m.connectedTone()
	}
}
