// Package playback maps scheduled events to audio files and volumes and
// drives the player.
package playback

import (
	"strings"
	"time"

	"go.uber.org/zap"

	"prayerhub/internal/config"
	"prayerhub/internal/prayer"
)

// EventTest is the synthetic event fired by test-audio jobs.
const EventTest = "test_audio"

// Player runs one playback to completion. *audio.ExclusivePlayer satisfies
// it.
type Player interface {
	Play(path string, volumePercent int, timeout time.Duration) bool
}

// ConnectionGate restores the speaker before playback. *bluetooth.Manager
// satisfies it via EnsureConnectedOnce.
type ConnectionGate interface {
	EnsureConnectedOnce() bool
}

// TimeoutResolver bounds a playback. *audio.TimeoutPolicy satisfies it.
type TimeoutResolver interface {
	Resolve(path string) time.Duration
}

// Handler executes audio events. It is the callback target for every
// scheduled job, so it never panics outward.
type Handler struct {
	audio   config.Audio
	gate    ConnectionGate
	player  Player
	timeout TimeoutResolver
	logger  *zap.Logger
}

// NewHandler creates a Handler. gate may be nil when no speaker is managed.
func NewHandler(audio config.Audio, gate ConnectionGate, player Player, timeout TimeoutResolver, logger *zap.Logger) *Handler {
	return &Handler{
		audio:   audio,
		gate:    gate,
		player:  player,
		timeout: timeout,
		logger:  logger,
	}
}

// HandleEvent plays the audio for a named event, reporting whether playback
// completed cleanly.
func (h *Handler) HandleEvent(event string) (played bool) {
	defer func() {
		if rec := recover(); rec != nil {
			h.logger.Error("Playback handler panicked",
				zap.String("event", event), zap.Any("panic", rec))
			played = false
		}
	}()

	if h.gate != nil && !h.gate.EnsureConnectedOnce() {
		h.logger.Error("Speaker unavailable, skipping event", zap.String("event", event))
		return false
	}

	path, volume, ok := h.resolve(event)
	if !ok {
		h.logger.Warn("No audio configured for event", zap.String("event", event))
		return false
	}
	path = config.ResolvePath(path)

	return h.player.Play(path, volume, h.timeout.Resolve(path))
}

// resolve maps an event name to its file and volume. Quran events carry
// their slot time in the name and match a schedule entry exactly.
func (h *Handler) resolve(event string) (path string, volumePercent int, ok bool) {
	volumes := h.audio.Volumes
	switch event {
	case prayer.EventFajr:
		return h.audio.Adhan.Fajr, volumes.FajrAdhanPercent, true
	case prayer.EventDhuhr:
		return h.audio.Adhan.Dhuhr, volumes.AdhanPercent, true
	case prayer.EventAsr:
		return h.audio.Adhan.Asr, volumes.AdhanPercent, true
	case prayer.EventMaghrib:
		return h.audio.Adhan.Maghrib, volumes.AdhanPercent, true
	case prayer.EventIsha:
		return h.audio.Adhan.Isha, volumes.AdhanPercent, true
	case prayer.EventSunrise:
		return h.audio.Notifications.Sunrise, volumes.NotificationPercent, true
	case prayer.EventSunset:
		return h.audio.Notifications.Sunset, volumes.NotificationPercent, true
	case prayer.EventMidnight:
		return h.audio.Notifications.Midnight, volumes.NotificationPercent, true
	case prayer.EventTahajjud:
		return h.audio.Notifications.Tahajjud, volumes.NotificationPercent, true
	case EventTest:
		return h.audio.TestAudio, volumes.TestPercent, true
	}

	if hhmm, isQuran := strings.CutPrefix(event, "quran@"); isQuran {
		for _, item := range h.audio.QuranSchedule {
			if item.Time == hhmm {
				return item.File, volumes.QuranPercent, true
			}
		}
	}
	return "", 0, false
}

// PlayConnectedTone plays the short connection chime, if configured.
func (h *Handler) PlayConnectedTone() {
	if h.audio.ConnectedTone == "" {
		return
	}
	path := config.ResolvePath(h.audio.ConnectedTone)
	h.player.Play(path, h.audio.Volumes.NotificationPercent, h.timeout.Resolve(path))
}

// AudioPaths lists every configured audio file, resolved, for prewarming.
func AudioPaths(audio config.Audio) []string {
	raw := []string{
		audio.TestAudio,
		audio.ConnectedTone,
		audio.Adhan.Fajr, audio.Adhan.Dhuhr, audio.Adhan.Asr,
		audio.Adhan.Maghrib, audio.Adhan.Isha,
		audio.Notifications.Sunrise, audio.Notifications.Sunset,
		audio.Notifications.Midnight, audio.Notifications.Tahajjud,
	}
	for _, item := range audio.QuranSchedule {
		raw = append(raw, item.File)
	}
	paths := make([]string, 0, len(raw))
	for _, p := range raw {
		if p != "" {
			paths = append(paths, config.ResolvePath(p))
		}
	}
	return paths
}
