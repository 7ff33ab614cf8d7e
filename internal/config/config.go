// Package config loads and validates the appliance configuration. The base
// config.yml is deep-merged with config.d/*.yml overlays and secrets.yml so
// device-specific overrides and credentials live outside the base file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/shlex"
	"gopkg.in/yaml.v3"
)

// Error is the configuration failure type. Load and Validate return only
// this; callers treat it as fatal at startup.
type Error struct {
	msg string
}

func (e *Error) Error() string {
	return e.msg
}

func errorf(format string, args ...any) *Error {
	return &Error{msg: fmt.Sprintf(format, args...)}
}

// Location identifies the place and jurisprudence variant used for prayer
// time queries. Latitude/Longitude are optional; when both are set the
// derivation step can fill in an astronomical sunrise.
type Location struct {
	City      string  `yaml:"city"`
	Madhab    string  `yaml:"madhab"`
	Timezone  string  `yaml:"timezone"`
	Latitude  float64 `yaml:"latitude"`
	Longitude float64 `yaml:"longitude"`
}

// API configures the prayer times API client.
type API struct {
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxRetries     int    `yaml:"max_retries"`
	RetryBaseMs    int    `yaml:"retry_base_ms"`
	PrefetchDays   int    `yaml:"prefetch_days"`
}

// Volumes holds the per-category playback volumes in percent.
type Volumes struct {
	MasterPercent       int `yaml:"master_percent"`
	AdhanPercent        int `yaml:"adhan_percent"`
	FajrAdhanPercent    int `yaml:"fajr_adhan_percent"`
	QuranPercent        int `yaml:"quran_percent"`
	NotificationPercent int `yaml:"notification_percent"`
	TestPercent         int `yaml:"test_percent"`
}

// Adhan maps each daily prayer to its audio file.
type Adhan struct {
	Fajr    string `yaml:"fajr"`
	Dhuhr   string `yaml:"dhuhr"`
	Asr     string `yaml:"asr"`
	Maghrib string `yaml:"maghrib"`
	Isha    string `yaml:"isha"`
}

// QuranScheduleItem pairs a wall-clock HH:MM label with a recitation file.
type QuranScheduleItem struct {
	Time string `yaml:"time"`
	File string `yaml:"file"`
}

// Notifications maps the derived events to their audio files.
type Notifications struct {
	Sunrise  string `yaml:"sunrise"`
	Sunset   string `yaml:"sunset"`
	Midnight string `yaml:"midnight"`
	Tahajjud string `yaml:"tahajjud"`
}

// Keepalive configures the background tone that keeps the amplifier awake.
type Keepalive struct {
	Enabled                bool    `yaml:"enabled"`
	Path                   string  `yaml:"path"`
	VolumePercent          int     `yaml:"volume_percent"`
	Loop                   bool    `yaml:"loop"`
	NiceLevel              *int    `yaml:"nice_level"`
	VolumeCycleEnabled     bool    `yaml:"volume_cycle_enabled"`
	VolumeCycleMinPercent  int     `yaml:"volume_cycle_min_percent"`
	VolumeCycleMaxPercent  int     `yaml:"volume_cycle_max_percent"`
	VolumeCycleStepSeconds float64 `yaml:"volume_cycle_step_seconds"`
}

// Audio groups every audio-related setting.
type Audio struct {
	TestAudio                    string              `yaml:"test_audio"`
	ConnectedTone                string              `yaml:"connected_tone"`
	Adhan                        Adhan               `yaml:"adhan"`
	QuranSchedule                []QuranScheduleItem `yaml:"quran_schedule"`
	Notifications                Notifications       `yaml:"notifications"`
	Volumes                      Volumes             `yaml:"volumes"`
	PlaybackTimeoutSeconds       int                 `yaml:"playback_timeout_seconds"`
	PlaybackTimeoutStrategy      string              `yaml:"playback_timeout_strategy"`
	PlaybackTimeoutBufferSeconds int                 `yaml:"playback_timeout_buffer_seconds"`
	FfprobeTimeoutSeconds        int                 `yaml:"ffprobe_timeout_seconds"`
	PlayerExtraArgs              string              `yaml:"player_extra_args"`
	Keepalive                    Keepalive           `yaml:"background_keepalive"`
}

// Bluetooth configures the speaker connection.
type Bluetooth struct {
	DeviceMAC         string `yaml:"device_mac"`
	EnsureDefaultSink bool   `yaml:"ensure_default_sink"`
}

// ControlPanelAuth holds the panel login credentials. The password is stored
// as a bcrypt hash, never in the clear.
type ControlPanelAuth struct {
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash"`
}

// TestScheduler bounds the manually scheduled test-audio jobs.
type TestScheduler struct {
	MaxPendingTests int `yaml:"max_pending_tests"`
	MaxMinutesAhead int `yaml:"max_minutes_ahead"`
}

// ControlPanel configures the web control surface.
type ControlPanel struct {
	Enabled       bool             `yaml:"enabled"`
	Host          string           `yaml:"host"`
	Port          int              `yaml:"port"`
	Auth          ControlPanelAuth `yaml:"auth"`
	TestScheduler TestScheduler    `yaml:"test_scheduler"`
}

// Logging configures the optional rotating log file.
type Logging struct {
	FilePath string `yaml:"file_path"`
}

// Config is the full validated application configuration.
type Config struct {
	Location     Location     `yaml:"location"`
	API          API          `yaml:"api"`
	Audio        Audio        `yaml:"audio"`
	Bluetooth    Bluetooth    `yaml:"bluetooth"`
	ControlPanel ControlPanel `yaml:"control_panel"`
	Logging      Logging      `yaml:"logging"`
}

func defaults() Config {
	return Config{
		API: API{
			TimeoutSeconds: 8,
			RetryBaseMs:    500,
			PrefetchDays:   3,
		},
		Audio: Audio{
			PlaybackTimeoutSeconds:  300,
			PlaybackTimeoutStrategy: "fixed",
			FfprobeTimeoutSeconds:   5,
			Keepalive: Keepalive{
				Loop:                   true,
				VolumeCycleMinPercent:  1,
				VolumeCycleMaxPercent:  10,
				VolumeCycleStepSeconds: 1.0,
			},
		},
		ControlPanel: ControlPanel{
			Host: "0.0.0.0",
			Port: 8080,
			TestScheduler: TestScheduler{
				MaxPendingTests: 3,
				MaxMinutesAhead: 120,
			},
		},
	}
}

// Load reads configPath, merges any config.d overlays and secrets.yml from
// the same directory, applies defaults and validates the result.
func Load(configPath string) (Config, error) {
	merged, err := loadYAML(configPath)
	if err != nil {
		return Config{}, err
	}

	rootDir := filepath.Dir(configPath)
	overlayDir := filepath.Join(rootDir, "config.d")
	if entries, err := os.ReadDir(overlayDir); err == nil {
		names := make([]string, 0, len(entries))
		for _, entry := range entries {
			if !entry.IsDir() && filepath.Ext(entry.Name()) == ".yml" {
				names = append(names, entry.Name())
			}
		}
		sort.Strings(names)
		for _, name := range names {
			overlay, err := loadYAML(filepath.Join(overlayDir, name))
			if err != nil {
				return Config{}, err
			}
			merged = deepMerge(merged, overlay)
		}
	}

	secretsPath := filepath.Join(rootDir, "secrets.yml")
	if _, err := os.Stat(secretsPath); err == nil {
		secrets, err := loadYAML(secretsPath)
		if err != nil {
			return Config{}, err
		}
		merged = deepMerge(merged, secrets)
	}

	cfg := defaults()
	raw, err := yaml.Marshal(merged)
	if err != nil {
		return Config{}, errorf("config merge failed: %v", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, errorf("config does not match expected shape: %v", err)
	}

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadYAML(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errorf("failed to read config file %s: %v", path, err)
	}
	var out map[string]any
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, errorf("failed to parse config file %s: %v", path, err)
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}

func deepMerge(base, override map[string]any) map[string]any {
	merged := make(map[string]any, len(base))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range override {
		baseMap, baseOK := merged[k].(map[string]any)
		overrideMap, overrideOK := v.(map[string]any)
		if baseOK && overrideOK {
			merged[k] = deepMerge(baseMap, overrideMap)
			continue
		}
		merged[k] = v
	}
	return merged
}

// Validate checks the invariants the rest of the system relies on. It is
// exported so dry-run can re-check a hand-built configuration.
func Validate(cfg Config) error {
	if cfg.Location.City == "" {
		return errorf("location.city is required")
	}
	if cfg.Location.Madhab == "" {
		return errorf("location.madhab is required")
	}
	if cfg.API.BaseURL == "" {
		return errorf("api.base_url is required")
	}
	if cfg.API.PrefetchDays < 1 {
		return errorf("api.prefetch_days must be at least 1, got %d", cfg.API.PrefetchDays)
	}
	if cfg.API.MaxRetries < 0 {
		return errorf("api.max_retries must not be negative, got %d", cfg.API.MaxRetries)
	}

	if err := validateAudio(cfg.Audio); err != nil {
		return err
	}

	if cfg.ControlPanel.Enabled {
		if cfg.ControlPanel.Auth.Username == "" {
			return errorf("control_panel.auth.username is required when the panel is enabled")
		}
		if cfg.ControlPanel.Auth.PasswordHash == "" {
			return errorf("control_panel.auth.password_hash is required when the panel is enabled")
		}
		if cfg.ControlPanel.TestScheduler.MaxPendingTests < 1 {
			return errorf("control_panel.test_scheduler.max_pending_tests must be at least 1")
		}
		if cfg.ControlPanel.TestScheduler.MaxMinutesAhead < 1 {
			return errorf("control_panel.test_scheduler.max_minutes_ahead must be at least 1")
		}
	}
	return nil
}

func validateAudio(audio Audio) error {
	type audioPath struct {
		label    string
		path     string
		optional bool
	}
	paths := []audioPath{
		{"test_audio", audio.TestAudio, false},
		{"connected_tone", audio.ConnectedTone, true},
		{"adhan.fajr", audio.Adhan.Fajr, false},
		{"adhan.dhuhr", audio.Adhan.Dhuhr, false},
		{"adhan.asr", audio.Adhan.Asr, false},
		{"adhan.maghrib", audio.Adhan.Maghrib, false},
		{"adhan.isha", audio.Adhan.Isha, false},
		{"notifications.sunrise", audio.Notifications.Sunrise, false},
		{"notifications.sunset", audio.Notifications.Sunset, false},
		{"notifications.midnight", audio.Notifications.Midnight, false},
		{"notifications.tahajjud", audio.Notifications.Tahajjud, false},
	}
	for _, item := range audio.QuranSchedule {
		if _, err := time.Parse("15:04", item.Time); err != nil {
			return errorf("quran_schedule time is not HH:MM: %q", item.Time)
		}
		paths = append(paths, audioPath{fmt.Sprintf("quran_schedule[%s]", item.Time), item.File, false})
	}
	for _, item := range paths {
		if item.path == "" {
			if item.optional {
				continue
			}
			return errorf("audio file not configured (%s)", item.label)
		}
		resolved := ResolvePath(item.path)
		if _, err := os.Stat(resolved); err != nil {
			return errorf("audio file does not exist (%s): %s", item.label, resolved)
		}
	}

	volumes := map[string]int{
		"master_percent":       audio.Volumes.MasterPercent,
		"adhan_percent":        audio.Volumes.AdhanPercent,
		"fajr_adhan_percent":   audio.Volumes.FajrAdhanPercent,
		"quran_percent":        audio.Volumes.QuranPercent,
		"notification_percent": audio.Volumes.NotificationPercent,
		"test_percent":         audio.Volumes.TestPercent,
	}
	for name, value := range volumes {
		if value < 0 || value > 100 {
			return errorf("volume percent out of range for %s: %d", name, value)
		}
	}

	switch audio.PlaybackTimeoutStrategy {
	case "fixed", "auto":
	default:
		return errorf("playback_timeout_strategy must be fixed or auto, got %q", audio.PlaybackTimeoutStrategy)
	}
	if audio.PlaybackTimeoutSeconds < 0 {
		return errorf("playback_timeout_seconds must not be negative, got %d", audio.PlaybackTimeoutSeconds)
	}
	if audio.PlaybackTimeoutBufferSeconds < 0 {
		return errorf("playback_timeout_buffer_seconds must not be negative, got %d", audio.PlaybackTimeoutBufferSeconds)
	}

	if _, err := shlex.Split(audio.PlayerExtraArgs); err != nil {
		return errorf("player_extra_args is not parseable: %v", err)
	}

	if audio.Keepalive.Enabled {
		if audio.Keepalive.Path == "" {
			return errorf("background_keepalive.path is required when keepalive is enabled")
		}
		ka := audio.Keepalive
		if ka.VolumeCycleEnabled {
			if ka.VolumeCycleMinPercent < 0 || ka.VolumeCycleMaxPercent > 100 ||
				ka.VolumeCycleMinPercent >= ka.VolumeCycleMaxPercent {
				return errorf("background_keepalive volume cycle bounds are invalid: min=%d max=%d",
					ka.VolumeCycleMinPercent, ka.VolumeCycleMaxPercent)
			}
			if ka.VolumeCycleStepSeconds <= 0 {
				return errorf("background_keepalive.volume_cycle_step_seconds must be positive")
			}
		}
	}
	return nil
}

// ResolvePath makes a configured audio path absolute; relative paths resolve
// against the working directory, matching validation.
func ResolvePath(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	wd, err := os.Getwd()
	if err != nil {
		return path
	}
	return filepath.Join(wd, path)
}

// PlayerArgs returns the parsed extra player arguments. Validate has already
// checked the string parses.
func (a Audio) PlayerArgs() []string {
	args, err := shlex.Split(a.PlayerExtraArgs)
	if err != nil {
		return nil
	}
	return args
}
