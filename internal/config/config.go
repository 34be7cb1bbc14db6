// Package config loads the monitor configuration. Fields are pointers so a
// partial JSON file is safe: anything omitted falls back to the Get* default.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"time"
)

// DefaultConfigPath is the path to the canonical defaults file. It is the
// single source of truth for default monitor settings.
const DefaultConfigPath = "config/vigil.defaults.json"

// QuietHours configures the nightly suppression window. Start and End use
// 24-hour "HH:MM" wall-clock strings; a window wrapping midnight is allowed.
type QuietHours struct {
	Enabled *bool   `json:"enabled,omitempty"`
	Start   *string `json:"start,omitempty"`
	End     *string `json:"end,omitempty"`
}

// MonitorConfig is the root configuration. The schema matches what the
// /api/stats endpoint echoes back so one JSON document serves both startup
// configuration and inspection.
type MonitorConfig struct {
	// Alert policy
	CooldownSeconds        *int        `json:"cooldown_seconds,omitempty"`
	UnknownIntervalSeconds *int        `json:"unknown_interval_seconds,omitempty"`
	QuietHours             *QuietHours `json:"quiet_hours,omitempty"`
	EmergencyKeywords      []string    `json:"emergency_keywords,omitempty"`

	// Presence tracking
	HeartbeatSeconds *int `json:"heartbeat_seconds,omitempty"`
	StalenessSeconds *int `json:"staleness_seconds,omitempty"`

	// Baseline and anomaly detection
	MinBaselineDays           *int     `json:"min_baseline_days,omitempty"`
	PositionDistanceThreshold *float64 `json:"position_distance_threshold,omitempty"`

	// Detection quality
	MinConfidence *float64 `json:"min_confidence,omitempty"`

	// Orchestration
	PollIntervalSeconds   *int `json:"poll_interval_seconds,omitempty"`
	SweepIntervalSeconds  *int `json:"sweep_interval_seconds,omitempty"`
	StatusIntervalMinutes *int `json:"status_interval_minutes,omitempty"`

	// Paths and endpoints
	CapturesDir *string  `json:"captures_dir,omitempty"`
	DataDir     *string  `json:"data_dir,omitempty"`
	DBPath      *string  `json:"db_path,omitempty"`
	Listen      *string  `json:"listen,omitempty"`
	WebhookURL  *string  `json:"webhook_url,omitempty"`
	Cameras     []string `json:"cameras,omitempty"`

	// Logging
	LogLevel  *string `json:"log_level,omitempty"`
	LogFormat *string `json:"log_format,omitempty"`

	unknownKeys []string
}

// UnknownKeys returns the top-level keys in the loaded file that no recognized
// option claims. Callers should log them; an unknown key usually means a typo.
func (c *MonitorConfig) UnknownKeys() []string {
	return c.unknownKeys
}

// Empty returns a MonitorConfig with every field unset.
func Empty() *MonitorConfig {
	return &MonitorConfig{}
}

// Load reads a MonitorConfig from a JSON file. The path must end in .json and
// the file must be under 1MB. Omitted fields keep their defaults, so partial
// configs are safe.
func Load(path string) (*MonitorConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Empty()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	cfg.unknownKeys = unknownTopLevelKeys(data)
	return cfg, nil
}

func unknownTopLevelKeys(data []byte) []string {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil
	}

	known := make(map[string]bool)
	t := reflect.TypeOf(MonitorConfig{})
	for i := 0; i < t.NumField(); i++ {
		tag := strings.Split(t.Field(i).Tag.Get("json"), ",")[0]
		if tag != "" && tag != "-" {
			known[tag] = true
		}
	}

	var unknown []string
	for key := range raw {
		if !known[key] {
			unknown = append(unknown, key)
		}
	}
	sort.Strings(unknown)
	return unknown
}

// Validate checks the configuration values.
func (c *MonitorConfig) Validate() error {
	if c.CooldownSeconds != nil && *c.CooldownSeconds < 0 {
		return fmt.Errorf("cooldown_seconds must be non-negative, got %d", *c.CooldownSeconds)
	}
	if c.UnknownIntervalSeconds != nil && *c.UnknownIntervalSeconds < 0 {
		return fmt.Errorf("unknown_interval_seconds must be non-negative, got %d", *c.UnknownIntervalSeconds)
	}
	if c.HeartbeatSeconds != nil && *c.HeartbeatSeconds <= 0 {
		return fmt.Errorf("heartbeat_seconds must be positive, got %d", *c.HeartbeatSeconds)
	}
	if c.StalenessSeconds != nil && *c.StalenessSeconds <= 0 {
		return fmt.Errorf("staleness_seconds must be positive, got %d", *c.StalenessSeconds)
	}
	if c.MinBaselineDays != nil && *c.MinBaselineDays <= 0 {
		return fmt.Errorf("min_baseline_days must be positive, got %d", *c.MinBaselineDays)
	}
	if c.PositionDistanceThreshold != nil && *c.PositionDistanceThreshold <= 0 {
		return fmt.Errorf("position_distance_threshold must be positive, got %f", *c.PositionDistanceThreshold)
	}
	if c.MinConfidence != nil && (*c.MinConfidence < 0 || *c.MinConfidence > 1) {
		return fmt.Errorf("min_confidence must be between 0 and 1, got %f", *c.MinConfidence)
	}
	if c.QuietHours != nil {
		for name, v := range map[string]*string{"quiet_hours.start": c.QuietHours.Start, "quiet_hours.end": c.QuietHours.End} {
			if v == nil || *v == "" {
				continue
			}
			if err := validateClock(*v); err != nil {
				return fmt.Errorf("invalid %s %q: %w", name, *v, err)
			}
		}
	}
	return nil
}

func validateClock(s string) error {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return fmt.Errorf("expected HH:MM: %w", err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return fmt.Errorf("clock value out of range")
	}
	return nil
}

// GetCooldown returns the per-subject alert cooldown.
func (c *MonitorConfig) GetCooldown() time.Duration {
	if c.CooldownSeconds == nil {
		return 5 * time.Minute
	}
	return time.Duration(*c.CooldownSeconds) * time.Second
}

// GetUnknownInterval returns the minimum spacing between unknown-person alerts.
func (c *MonitorConfig) GetUnknownInterval() time.Duration {
	if c.UnknownIntervalSeconds == nil {
		return 5 * time.Minute
	}
	return time.Duration(*c.UnknownIntervalSeconds) * time.Second
}

// GetHeartbeatInterval returns the still-present reminder interval.
func (c *MonitorConfig) GetHeartbeatInterval() time.Duration {
	if c.HeartbeatSeconds == nil {
		return 5 * time.Minute
	}
	return time.Duration(*c.HeartbeatSeconds) * time.Second
}

// GetStalenessCeiling returns the absence gap after which a presence record
// is evicted.
func (c *MonitorConfig) GetStalenessCeiling() time.Duration {
	if c.StalenessSeconds == nil {
		return 10 * time.Minute
	}
	return time.Duration(*c.StalenessSeconds) * time.Second
}

// GetMinBaselineDays returns the history span required before anomaly checks.
func (c *MonitorConfig) GetMinBaselineDays() int {
	if c.MinBaselineDays == nil {
		return 7
	}
	return *c.MinBaselineDays
}

// GetPositionDistanceThreshold returns the normalized distance beyond which a
// position reads as unusual.
func (c *MonitorConfig) GetPositionDistanceThreshold() float64 {
	if c.PositionDistanceThreshold == nil {
		return 0.3
	}
	return *c.PositionDistanceThreshold
}

// GetMinConfidence returns the detection confidence floor.
func (c *MonitorConfig) GetMinConfidence() float64 {
	if c.MinConfidence == nil {
		return 0.6
	}
	return *c.MinConfidence
}

// GetPollInterval returns the per-camera source poll interval.
func (c *MonitorConfig) GetPollInterval() time.Duration {
	if c.PollIntervalSeconds == nil {
		return 10 * time.Second
	}
	return time.Duration(*c.PollIntervalSeconds) * time.Second
}

// GetSweepInterval returns the staleness sweep interval.
func (c *MonitorConfig) GetSweepInterval() time.Duration {
	if c.SweepIntervalSeconds == nil {
		return time.Minute
	}
	return time.Duration(*c.SweepIntervalSeconds) * time.Second
}

// GetStatusInterval returns the status digest interval. Zero disables the
// digest.
func (c *MonitorConfig) GetStatusInterval() time.Duration {
	if c.StatusIntervalMinutes == nil {
		return time.Hour
	}
	return time.Duration(*c.StatusIntervalMinutes) * time.Minute
}

// GetQuietEnabled reports whether the quiet-hours window is active.
func (c *MonitorConfig) GetQuietEnabled() bool {
	if c.QuietHours == nil || c.QuietHours.Enabled == nil {
		return false
	}
	return *c.QuietHours.Enabled
}

// GetQuietStart returns the quiet window start as "HH:MM".
func (c *MonitorConfig) GetQuietStart() string {
	if c.QuietHours == nil || c.QuietHours.Start == nil || *c.QuietHours.Start == "" {
		return "23:00"
	}
	return *c.QuietHours.Start
}

// GetQuietEnd returns the quiet window end as "HH:MM".
func (c *MonitorConfig) GetQuietEnd() string {
	if c.QuietHours == nil || c.QuietHours.End == nil || *c.QuietHours.End == "" {
		return "07:00"
	}
	return *c.QuietHours.End
}

// GetCapturesDir returns the directory the detection collaborator drops
// sidecar files into.
func (c *MonitorConfig) GetCapturesDir() string {
	if c.CapturesDir == nil || *c.CapturesDir == "" {
		return "captures"
	}
	return *c.CapturesDir
}

// GetDataDir returns the flat-file data directory.
func (c *MonitorConfig) GetDataDir() string {
	if c.DataDir == nil || *c.DataDir == "" {
		return "data"
	}
	return *c.DataDir
}

// GetDBPath returns the sqlite archive path.
func (c *MonitorConfig) GetDBPath() string {
	if c.DBPath == nil || *c.DBPath == "" {
		return "vigil.db"
	}
	return *c.DBPath
}

// GetListen returns the HTTP listen address.
func (c *MonitorConfig) GetListen() string {
	if c.Listen == nil || *c.Listen == "" {
		return ":8080"
	}
	return *c.Listen
}

// GetWebhookURL returns the notification webhook endpoint, empty when alerts
// should only be logged.
func (c *MonitorConfig) GetWebhookURL() string {
	if c.WebhookURL == nil {
		return ""
	}
	return *c.WebhookURL
}

// GetLogLevel returns the zap log level name.
func (c *MonitorConfig) GetLogLevel() string {
	if c.LogLevel == nil || *c.LogLevel == "" {
		return "info"
	}
	return *c.LogLevel
}

// GetLogFormat returns "json" or "console".
func (c *MonitorConfig) GetLogFormat() string {
	if c.LogFormat == nil || *c.LogFormat == "" {
		return "console"
	}
	return *c.LogFormat
}
