package vigil

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"
)

// PatternKey is the bucket a behavioral pattern aggregates over. Weekday uses
// the time.Weekday numbering (Sunday = 0).
type PatternKey struct {
	Subject string
	Camera  string
	Hour    int
	Weekday int
}

// PatternKeyFor returns the bucket an event falls into.
func PatternKeyFor(ev MovementEvent) PatternKey {
	return PatternKey{
		Subject: ev.Subject,
		Camera:  ev.Camera,
		Hour:    ev.Timestamp.Hour(),
		Weekday: int(ev.Timestamp.Weekday()),
	}
}

// String renders the key in the snapshot file format.
func (k PatternKey) String() string {
	subject := k.Subject
	if subject == "" {
		subject = UnknownSubject
	}
	return fmt.Sprintf("%s_%s_%d_%d", subject, k.Camera, k.Hour, k.Weekday)
}

// BehavioralPattern is the aggregated statistic for one bucket. It is a
// derived projection: rebuilt wholesale on every baseline build, never patched
// in place.
type BehavioralPattern struct {
	Subject            string       `json:"subject"`
	Camera             string       `json:"camera"`
	HourOfDay          int          `json:"hour_of_day"`
	DayOfWeek          int          `json:"day_of_week"`
	AvgDurationMinutes float64      `json:"avg_duration_minutes"`
	FrequencyScore     float64      `json:"frequency_score"`
	TypicalPositions   [][2]float64 `json:"typical_positions"`
}

// Key reconstructs the bucket key from the pattern fields.
func (p BehavioralPattern) Key() PatternKey {
	return PatternKey{Subject: p.Subject, Camera: p.Camera, Hour: p.HourOfDay, Weekday: p.DayOfWeek}
}

// EventStore is the persistence boundary the baseline writes through: an
// append-only movement log plus a replaceable pattern snapshot.
type EventStore interface {
	AppendEvent(ev MovementEvent) error
	WritePatterns(patterns map[string]BehavioralPattern) error
}

// BuildSummary describes one baseline build for operators.
type BuildSummary struct {
	TotalEvents       int            `json:"total_events_analyzed"`
	PatternsCreated   int            `json:"patterns_created"`
	Cameras           []string       `json:"cameras"`
	Start             time.Time      `json:"start"`
	End               time.Time      `json:"end"`
	MostActiveHours   map[int]int    `json:"most_active_hours"`
	MostActiveCameras map[string]int `json:"most_active_cameras"`
}

// BaselineConfig holds the aggregation parameters.
type BaselineConfig struct {
	// MinBaselineDays is the event-history span required before anomaly
	// checks are statistically meaningful.
	MinBaselineDays int

	// DwellGapCutoff separates continuous dwell from a new visit:
	// consecutive same-bucket deltas at or above this are discarded.
	DwellGapCutoff time.Duration

	// MaxOccurrencesPerDay caps the frequency normalization.
	MaxOccurrencesPerDay float64

	// MaxTypicalPositions bounds the verbatim position sample per bucket.
	MaxTypicalPositions int
}

// DefaultBaselineConfig returns the default aggregation parameters.
func DefaultBaselineConfig() BaselineConfig {
	return BaselineConfig{
		MinBaselineDays:      7,
		DwellGapCutoff:       30 * time.Minute,
		MaxOccurrencesPerDay: 10,
		MaxTypicalPositions:  10,
	}
}

// Baseline aggregates the movement history into per-bucket patterns. Record
// appends run concurrently with an in-flight Build; a build computes over a
// snapshot of the log and swaps the whole pattern map atomically, so readers
// see either the old or the new map, never a partial one.
type Baseline struct {
	cfg   BaselineConfig
	store EventStore
	log   *zap.Logger

	mu       sync.RWMutex
	events   []MovementEvent
	patterns map[PatternKey]BehavioralPattern
}

// NewBaseline creates a baseline seeded with previously persisted events and
// patterns. store may be nil for purely in-memory use (tests).
func NewBaseline(cfg BaselineConfig, store EventStore, events []MovementEvent, patterns map[PatternKey]BehavioralPattern, log *zap.Logger) *Baseline {
	if cfg.MinBaselineDays <= 0 {
		cfg.MinBaselineDays = DefaultBaselineConfig().MinBaselineDays
	}
	if cfg.DwellGapCutoff <= 0 {
		cfg.DwellGapCutoff = DefaultBaselineConfig().DwellGapCutoff
	}
	if cfg.MaxOccurrencesPerDay <= 0 {
		cfg.MaxOccurrencesPerDay = DefaultBaselineConfig().MaxOccurrencesPerDay
	}
	if cfg.MaxTypicalPositions <= 0 {
		cfg.MaxTypicalPositions = DefaultBaselineConfig().MaxTypicalPositions
	}
	if log == nil {
		log = zap.NewNop()
	}
	if patterns == nil {
		patterns = make(map[PatternKey]BehavioralPattern)
	}
	return &Baseline{
		cfg:      cfg,
		store:    store,
		log:      log,
		events:   append([]MovementEvent(nil), events...),
		patterns: patterns,
	}
}

// Record appends an event to the in-memory log and the persistent store. A
// store failure is logged and swallowed: the in-memory log stays
// authoritative for the process lifetime.
func (b *Baseline) Record(ev MovementEvent) {
	b.mu.Lock()
	b.events = append(b.events, ev)
	b.mu.Unlock()

	if b.store == nil {
		return
	}
	if err := b.store.AppendEvent(ev); err != nil {
		b.log.Warn("failed to persist movement event",
			zap.String("camera", ev.Camera),
			zap.Error(err))
	}
}

// EventCount returns the size of the in-memory movement log.
func (b *Baseline) EventCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.events)
}

// EventsBetween returns events with start <= timestamp < end.
func (b *Baseline) EventsBetween(start, end time.Time) []MovementEvent {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []MovementEvent
	for _, ev := range b.events {
		if !ev.Timestamp.Before(start) && ev.Timestamp.Before(end) {
			out = append(out, ev)
		}
	}
	return out
}

// HasSufficientBaseline reports whether the span between the oldest and newest
// recorded event reaches the minimum baseline days. Anomaly checks before that
// point are statistically meaningless.
func (b *Baseline) HasSufficientBaseline() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.events) == 0 {
		return false
	}
	first, last := b.events[0].Timestamp, b.events[0].Timestamp
	for _, ev := range b.events[1:] {
		if ev.Timestamp.Before(first) {
			first = ev.Timestamp
		}
		if ev.Timestamp.After(last) {
			last = ev.Timestamp
		}
	}
	return last.Sub(first) >= time.Duration(b.cfg.MinBaselineDays)*24*time.Hour
}

// Build recomputes the full pattern map from the event log, persists the
// snapshot, and swaps the live map. windowDays limits the history considered;
// zero means all of it. An empty window is a normal cold-start condition, not
// an error.
func (b *Baseline) Build(windowDays int, now time.Time) (BuildSummary, error) {
	b.mu.RLock()
	events := append([]MovementEvent(nil), b.events...)
	b.mu.RUnlock()

	if windowDays > 0 {
		cutoff := now.AddDate(0, 0, -windowDays)
		filtered := events[:0]
		for _, ev := range events {
			if !ev.Timestamp.Before(cutoff) {
				filtered = append(filtered, ev)
			}
		}
		events = filtered
	}

	if len(events) == 0 {
		b.log.Warn("no events to build baseline from")
		return BuildSummary{}, nil
	}

	sort.Slice(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})

	first := events[0].Timestamp
	last := events[len(events)-1].Timestamp
	spanDays := int(last.Sub(first).Hours() / 24)
	if spanDays < 1 {
		spanDays = 1
	}

	groups := make(map[PatternKey][]MovementEvent)
	hourCounts := make(map[int]int)
	cameraCounts := make(map[string]int)
	for _, ev := range events {
		key := PatternKeyFor(ev)
		groups[key] = append(groups[key], ev)
		hourCounts[ev.Timestamp.Hour()]++
		cameraCounts[ev.Camera]++
	}

	patterns := make(map[PatternKey]BehavioralPattern)
	for key, occ := range groups {
		// A single occurrence carries no dwell or frequency signal.
		if len(occ) < 2 {
			continue
		}

		var durations []float64
		for i := 1; i < len(occ); i++ {
			delta := occ[i].Timestamp.Sub(occ[i-1].Timestamp)
			if delta < b.cfg.DwellGapCutoff {
				durations = append(durations, delta.Minutes())
			}
		}
		var avgDuration float64
		if len(durations) > 0 {
			avgDuration = stat.Mean(durations, nil)
		}

		frequency := float64(len(occ)) / float64(spanDays)
		score := frequency / b.cfg.MaxOccurrencesPerDay
		if score > 1 {
			score = 1
		}

		n := len(occ)
		if n > b.cfg.MaxTypicalPositions {
			n = b.cfg.MaxTypicalPositions
		}
		positions := make([][2]float64, 0, n)
		for _, ev := range occ[:n] {
			positions = append(positions, ev.Position)
		}

		patterns[key] = BehavioralPattern{
			Subject:            key.Subject,
			Camera:             key.Camera,
			HourOfDay:          key.Hour,
			DayOfWeek:          key.Weekday,
			AvgDurationMinutes: avgDuration,
			FrequencyScore:     score,
			TypicalPositions:   positions,
		}
	}

	b.mu.Lock()
	b.patterns = patterns
	b.mu.Unlock()

	if b.store != nil {
		snapshot := make(map[string]BehavioralPattern, len(patterns))
		for key, p := range patterns {
			snapshot[key.String()] = p
		}
		if err := b.store.WritePatterns(snapshot); err != nil {
			b.log.Warn("failed to persist pattern snapshot", zap.Error(err))
		}
	}

	cameras := make([]string, 0, len(cameraCounts))
	for c := range cameraCounts {
		cameras = append(cameras, c)
	}
	sort.Strings(cameras)

	summary := BuildSummary{
		TotalEvents:       len(events),
		PatternsCreated:   len(patterns),
		Cameras:           cameras,
		Start:             first,
		End:               last,
		MostActiveHours:   topHours(hourCounts, 3),
		MostActiveCameras: cameraCounts,
	}
	b.log.Info("baseline built",
		zap.Int("events", summary.TotalEvents),
		zap.Int("patterns", summary.PatternsCreated))
	return summary, nil
}

func topHours(counts map[int]int, n int) map[int]int {
	hours := make([]int, 0, len(counts))
	for h := range counts {
		hours = append(hours, h)
	}
	sort.Slice(hours, func(i, j int) bool {
		if counts[hours[i]] != counts[hours[j]] {
			return counts[hours[i]] > counts[hours[j]]
		}
		return hours[i] < hours[j]
	})
	if len(hours) > n {
		hours = hours[:n]
	}
	out := make(map[int]int, len(hours))
	for _, h := range hours {
		out[h] = counts[h]
	}
	return out
}

// PatternFor returns the pattern for a bucket, if one exists.
func (b *Baseline) PatternFor(key PatternKey) (BehavioralPattern, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	p, ok := b.patterns[key]
	return p, ok
}

// SubjectPatterns returns every pattern recorded for a subject, across all
// cameras and buckets.
func (b *Baseline) SubjectPatterns(subject string) []BehavioralPattern {
	if subject == "" {
		subject = UnknownSubject
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []BehavioralPattern
	for key, p := range b.patterns {
		if key.Subject == subject {
			out = append(out, p)
		}
	}
	return out
}

// PatternCount returns the number of live patterns.
func (b *Baseline) PatternCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.patterns)
}

// Patterns returns a copy of the live pattern map keyed by the snapshot key
// format.
func (b *Baseline) Patterns() map[string]BehavioralPattern {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make(map[string]BehavioralPattern, len(b.patterns))
	for key, p := range b.patterns {
		out[key.String()] = p
	}
	return out
}
