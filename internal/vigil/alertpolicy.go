package vigil

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// DefaultEmergencyKeywords is the vocabulary that lets an alert bypass quiet
// hours. Matching is a case-insensitive substring test against the scene
// description.
var DefaultEmergencyKeywords = []string{"unknown", "intrusion", "break", "glass", "anomaly"}

// PolicyConfig holds the notification gating parameters.
type PolicyConfig struct {
	// Cooldown is the minimum interval between sent alerts for the same
	// (camera, subject) key, measured from the last alert actually sent.
	Cooldown time.Duration

	// UnknownInterval rate-limits unknown-subject alerts independently of
	// the per-key cooldowns.
	UnknownInterval time.Duration

	// Quiet hours window as minutes from midnight. A start after the end
	// means the window crosses midnight.
	QuietEnabled    bool
	QuietStartMin   int
	QuietEndMin     int

	EmergencyKeywords []string
}

// DefaultPolicyConfig returns the default gating parameters: 5 minute
// cooldowns, 5 minute unknown-subject limit, quiet hours disabled.
func DefaultPolicyConfig() PolicyConfig {
	return PolicyConfig{
		Cooldown:          5 * time.Minute,
		UnknownInterval:   5 * time.Minute,
		EmergencyKeywords: DefaultEmergencyKeywords,
	}
}

// ParseQuietHours converts "HH:MM" window bounds to minutes from midnight.
func ParseQuietHours(start, end string) (startMin, endMin int, err error) {
	startMin, err = parseClockMinutes(start)
	if err != nil {
		return 0, 0, fmt.Errorf("quiet hours start: %w", err)
	}
	endMin, err = parseClockMinutes(end)
	if err != nil {
		return 0, 0, fmt.Errorf("quiet hours end: %w", err)
	}
	return startMin, endMin, nil
}

func parseClockMinutes(s string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("invalid HH:MM value %q", s)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("HH:MM value %q out of range", s)
	}
	return h*60 + m, nil
}

// AlertPolicy decides whether a presence transition may produce a
// human-visible notification. Cooldown state is deliberately in-memory only: a
// restart resetting cooldowns is acceptable.
type AlertPolicy struct {
	mu          sync.Mutex
	cfg         PolicyConfig
	lastSent    map[PresenceKey]time.Time
	lastUnknown time.Time
}

// NewAlertPolicy creates a policy with the given configuration.
func NewAlertPolicy(cfg PolicyConfig) *AlertPolicy {
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultPolicyConfig().Cooldown
	}
	if cfg.UnknownInterval <= 0 {
		cfg.UnknownInterval = DefaultPolicyConfig().UnknownInterval
	}
	if len(cfg.EmergencyKeywords) == 0 {
		cfg.EmergencyKeywords = DefaultEmergencyKeywords
	}
	return &AlertPolicy{
		cfg:      cfg,
		lastSent: make(map[PresenceKey]time.Time),
	}
}

// ShouldNotify applies the gating rules in order: quiet hours (with emergency
// bypass), then the unknown-subject limiter or the per-key cooldown. A true
// return records the alert as sent, so cooldowns measure from delivery
// decisions rather than from observations.
func (p *AlertPolicy) ShouldNotify(tr Transition, camera, subject, description string, now time.Time) bool {
	if tr.Type == TransitionUnchanged {
		return false
	}
	if subject == "" {
		subject = UnknownSubject
	}

	if p.IsQuietHours(now) && !p.IsEmergency(description) {
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if subject == UnknownSubject {
		if !p.lastUnknown.IsZero() && now.Sub(p.lastUnknown) < p.cfg.UnknownInterval {
			return false
		}
		p.lastUnknown = now
		p.lastSent[PresenceKey{Camera: camera, Subject: subject}] = now
		return true
	}

	key := PresenceKey{Camera: camera, Subject: subject}
	if last, ok := p.lastSent[key]; ok && now.Sub(last) < p.cfg.Cooldown {
		return false
	}
	p.lastSent[key] = now
	return true
}

// IsQuietHours reports whether now falls inside the configured window. A
// window whose start is after its end crosses midnight: active when the
// current time is at or after the start or at or before the end.
func (p *AlertPolicy) IsQuietHours(now time.Time) bool {
	if !p.cfg.QuietEnabled {
		return false
	}
	cur := now.Hour()*60 + now.Minute()
	start, end := p.cfg.QuietStartMin, p.cfg.QuietEndMin
	if start < end {
		return cur >= start && cur <= end
	}
	return cur >= start || cur <= end
}

// IsEmergency reports whether the description matches the emergency
// vocabulary and may bypass quiet hours.
func (p *AlertPolicy) IsEmergency(description string) bool {
	desc := strings.ToLower(description)
	for _, kw := range p.cfg.EmergencyKeywords {
		if strings.Contains(desc, kw) {
			return true
		}
	}
	return false
}

// LastSent returns the last sent-alert time for a key, for introspection.
func (p *AlertPolicy) LastSent(camera, subject string) (time.Time, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ts, ok := p.lastSent[PresenceKey{Camera: camera, Subject: subject}]
	return ts, ok
}
