// Package jsonl persists the movement log and pattern snapshot as flat files:
// an append-only JSON-lines event log and a whole-file JSON pattern snapshot,
// both human-inspectable and trivially replayable.
package jsonl

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/banshee-data/vigil.report/internal/vigil"
)

const (
	eventsFile   = "movement_events.jsonl"
	patternsFile = "behavioral_patterns.json"
)

// eventRecord is the wire form of one movement event. Subject is a pointer so
// an unresolved identity round-trips as JSON null rather than a magic string.
type eventRecord struct {
	Timestamp  time.Time  `json:"timestamp"`
	Camera     string     `json:"camera"`
	Subject    *string    `json:"subject"`
	Position   [2]float64 `json:"position"`
	Confidence float64    `json:"confidence"`
}

func toRecord(ev vigil.MovementEvent) eventRecord {
	rec := eventRecord{
		Timestamp:  ev.Timestamp,
		Camera:     ev.Camera,
		Position:   ev.Position,
		Confidence: ev.Confidence,
	}
	if ev.Subject != "" && ev.Subject != vigil.UnknownSubject {
		subject := ev.Subject
		rec.Subject = &subject
	}
	return rec
}

func (r eventRecord) toEvent() vigil.MovementEvent {
	subject := vigil.UnknownSubject
	if r.Subject != nil && *r.Subject != "" {
		subject = *r.Subject
	}
	return vigil.MovementEvent{
		Timestamp:  r.Timestamp,
		Camera:     r.Camera,
		Subject:    subject,
		Position:   r.Position,
		Confidence: r.Confidence,
	}
}

// Store holds the open event log and the snapshot path for one data directory.
type Store struct {
	dir string
	log *zap.Logger

	mu     sync.Mutex
	events *os.File
	w      *bufio.Writer
}

// Open creates the data directory if needed and opens the event log for
// appending.
func Open(dir string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir %s: %w", dir, err)
	}
	f, err := os.OpenFile(filepath.Join(dir, eventsFile), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	return &Store{dir: dir, log: log, events: f, w: bufio.NewWriter(f)}, nil
}

// AppendEvent writes one event to the log and flushes it. The log is the
// durable record; buffering across events would lose the tail on a crash.
func (s *Store) AppendEvent(ev vigil.MovementEvent) error {
	line, err := json.Marshal(toRecord(ev))
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.events == nil {
		return fmt.Errorf("event log is closed")
	}
	if _, err := s.w.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	if err := s.w.Flush(); err != nil {
		return fmt.Errorf("flush event log: %w", err)
	}
	return nil
}

// LoadEvents reads the whole event log. Malformed lines are logged and
// skipped so one corrupt record cannot wedge startup.
func (s *Store) LoadEvents() ([]vigil.MovementEvent, error) {
	f, err := os.Open(filepath.Join(s.dir, eventsFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open event log: %w", err)
	}
	defer f.Close()

	var events []vigil.MovementEvent
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec eventRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			s.log.Warn("skipping malformed event log line",
				zap.Int("line", lineNo),
				zap.Error(err))
			continue
		}
		if rec.Camera == "" || rec.Timestamp.IsZero() {
			s.log.Warn("skipping incomplete event log line", zap.Int("line", lineNo))
			continue
		}
		events = append(events, rec.toEvent())
	}
	if err := scanner.Err(); err != nil {
		return events, fmt.Errorf("read event log: %w", err)
	}
	return events, nil
}

// WritePatterns replaces the pattern snapshot atomically via a temp file and
// rename, so a crash mid-write leaves the previous snapshot intact.
func (s *Store) WritePatterns(patterns map[string]vigil.BehavioralPattern) error {
	data, err := json.MarshalIndent(patterns, "", "  ")
	if err != nil {
		return fmt.Errorf("encode patterns: %w", err)
	}

	dst := filepath.Join(s.dir, patternsFile)
	tmp, err := os.CreateTemp(s.dir, patternsFile+".tmp-*")
	if err != nil {
		return fmt.Errorf("create snapshot temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

// LoadPatterns reads the pattern snapshot. Bucket keys are reconstructed from
// the pattern fields, not parsed out of the snapshot key, since subject and
// camera names may themselves contain the separator.
func (s *Store) LoadPatterns() (map[vigil.PatternKey]vigil.BehavioralPattern, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, patternsFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open pattern snapshot: %w", err)
	}

	var raw map[string]vigil.BehavioralPattern
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode pattern snapshot: %w", err)
	}

	patterns := make(map[vigil.PatternKey]vigil.BehavioralPattern, len(raw))
	for _, p := range raw {
		patterns[p.Key()] = p
	}
	return patterns, nil
}

// Close flushes and closes the event log.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.events == nil {
		return nil
	}
	flushErr := s.w.Flush()
	closeErr := s.events.Close()
	s.events = nil
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}
