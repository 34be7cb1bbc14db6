package vigil

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// TransitionType is the outcome of observing one detection against the
// presence state machine.
type TransitionType string

const (
	TransitionArrived        TransitionType = "arrived"
	TransitionStillPresent   TransitionType = "still_present"
	TransitionSubjectChanged TransitionType = "subject_changed"
	TransitionNewObjects     TransitionType = "new_objects"
	TransitionUnchanged      TransitionType = "unchanged"
)

// Transition describes the state change produced by a single observation.
type Transition struct {
	Type TransitionType

	// Elapsed is the gap since the previous observation, set for
	// still_present heartbeats.
	Elapsed time.Duration

	// NewObjects lists object classes not previously seen with this
	// subject, set for new_objects transitions.
	NewObjects []string

	// PreviousSubject is the subject whose live presence was superseded,
	// set for subject_changed transitions.
	PreviousSubject string
}

// PresenceKey identifies one presence record. Tracking granularity is
// per-(camera, subject): a camera may hold several live records at once.
type PresenceKey struct {
	Camera  string
	Subject string
}

// PresenceState is the live record for one subject on one camera.
type PresenceState struct {
	Subject    string
	Objects    map[string]bool // co-occurring non-person classes seen so far
	FirstSeen  time.Time
	LastSeen   time.Time
	AlertCount int
}

// TrackerConfig holds the presence state machine thresholds.
type TrackerConfig struct {
	// HeartbeatInterval is the observation gap beyond which a subject that
	// is still in view produces a still_present transition instead of
	// unchanged.
	HeartbeatInterval time.Duration

	// StalenessCeiling is the maximum unrefreshed age of a presence
	// record. Records older than this are evicted by EvictStale, and an
	// observation arriving after a gap this large counts as a fresh
	// arrival rather than a heartbeat.
	StalenessCeiling time.Duration
}

// DefaultTrackerConfig returns the default presence thresholds.
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		HeartbeatInterval: 5 * time.Minute,
		StalenessCeiling:  10 * time.Minute,
	}
}

// Tracker turns raw per-frame detections into arrival/heartbeat/departure
// transitions. Each camera worker owns its keys; the mutex covers the
// cross-camera API surface (scene summaries, sweeps).
type Tracker struct {
	mu     sync.Mutex
	cfg    TrackerConfig
	states map[PresenceKey]*PresenceState

	// lastSubject remembers the most recent subject observed per camera so
	// an arrival that supersedes a still-live different subject can be
	// classified subject_changed.
	lastSubject map[string]string
}

// NewTracker creates a presence tracker with the given thresholds.
func NewTracker(cfg TrackerConfig) *Tracker {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultTrackerConfig().HeartbeatInterval
	}
	if cfg.StalenessCeiling <= 0 {
		cfg.StalenessCeiling = DefaultTrackerConfig().StalenessCeiling
	}
	return &Tracker{
		cfg:         cfg,
		states:      make(map[PresenceKey]*PresenceState),
		lastSubject: make(map[string]string),
	}
}

// Observe runs one detection through the state machine and returns the
// resulting transition. objects are the co-occurring non-person classes seen
// in the same frame. now is the camera stream timestamp, not wall time.
func (t *Tracker) Observe(camera, subject string, objects []string, now time.Time) Transition {
	if subject == "" {
		subject = UnknownSubject
	}
	key := PresenceKey{Camera: camera, Subject: subject}

	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.states[key]
	if ok && now.Sub(st.LastSeen) > t.cfg.StalenessCeiling {
		// The record outlived the ceiling without a sweep running; a
		// reappearance after that long is a fresh arrival.
		delete(t.states, key)
		ok = false
	}

	if !ok {
		st = &PresenceState{
			Subject:    subject,
			Objects:    make(map[string]bool, len(objects)),
			FirstSeen:  now,
			LastSeen:   now,
			AlertCount: 1,
		}
		for _, o := range objects {
			st.Objects[o] = true
		}
		t.states[key] = st

		prev := t.lastSubject[camera]
		t.lastSubject[camera] = subject
		if prev != "" && prev != subject {
			if _, live := t.states[PresenceKey{Camera: camera, Subject: prev}]; live {
				st.AlertCount++
				return Transition{Type: TransitionSubjectChanged, PreviousSubject: prev}
			}
		}
		return Transition{Type: TransitionArrived}
	}

	t.lastSubject[camera] = subject

	var added []string
	for _, o := range objects {
		if !st.Objects[o] {
			st.Objects[o] = true
			added = append(added, o)
		}
	}
	if len(added) > 0 {
		sort.Strings(added)
		st.LastSeen = now
		return Transition{Type: TransitionNewObjects, NewObjects: added}
	}

	elapsed := now.Sub(st.LastSeen)
	st.LastSeen = now
	if elapsed > t.cfg.HeartbeatInterval {
		return Transition{Type: TransitionStillPresent, Elapsed: elapsed}
	}
	return Transition{Type: TransitionUnchanged}
}

// MarkLeft removes a presence record on an explicit departure signal.
// It reports whether a record was actually live.
func (t *Tracker) MarkLeft(camera, subject string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := PresenceKey{Camera: camera, Subject: subject}
	if _, ok := t.states[key]; !ok {
		return false
	}
	delete(t.states, key)
	if t.lastSubject[camera] == subject {
		delete(t.lastSubject, camera)
	}
	return true
}

// EvictStale removes presence records unrefreshed for longer than the
// staleness ceiling and returns their keys, oldest first. Eviction is the only
// implicit departure signal; a single missed frame never removes a record.
func (t *Tracker) EvictStale(now time.Time) []PresenceKey {
	t.mu.Lock()
	defer t.mu.Unlock()

	var evicted []PresenceKey
	for key, st := range t.states {
		if now.Sub(st.LastSeen) > t.cfg.StalenessCeiling {
			evicted = append(evicted, key)
		}
	}
	sort.Slice(evicted, func(i, j int) bool {
		return t.states[evicted[i]].LastSeen.Before(t.states[evicted[j]].LastSeen)
	})
	for _, key := range evicted {
		delete(t.states, key)
		if t.lastSubject[key.Camera] == key.Subject {
			delete(t.lastSubject, key.Camera)
		}
	}
	return evicted
}

// SceneSummary describes who is currently on a camera and with what, for the
// status API. Returns "Empty" when nothing is live.
func (t *Tracker) SceneSummary(camera string) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var parts []string
	for key, st := range t.states {
		if key.Camera != camera {
			continue
		}
		objs := make([]string, 0, len(st.Objects))
		for o := range st.Objects {
			objs = append(objs, o)
		}
		sort.Strings(objs)
		if len(objs) == 0 {
			parts = append(parts, key.Subject+" with no objects")
		} else {
			parts = append(parts, key.Subject+" with "+strings.Join(objs, ", "))
		}
	}
	if len(parts) == 0 {
		return "Empty"
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}

// ActiveStates returns a copy of all live presence records.
func (t *Tracker) ActiveStates() map[PresenceKey]PresenceState {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[PresenceKey]PresenceState, len(t.states))
	for key, st := range t.states {
		copied := *st
		copied.Objects = make(map[string]bool, len(st.Objects))
		for o := range st.Objects {
			copied.Objects[o] = true
		}
		out[key] = copied
	}
	return out
}

// ActiveCount returns the number of live presence records.
func (t *Tracker) ActiveCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.states)
}
