package vigil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Source feeds one camera's detection batches. Delivery is at-least-once: the
// monitor deduplicates by frame ID, the source only has to hand out batches in
// non-decreasing timestamp order.
type Source interface {
	Camera() string
	NextBatches(ctx context.Context) ([]DetectionBatch, error)
}

// Notifier is the outbound delivery boundary. Implementations get a single
// attempt per notification; the monitor logs and drops failures rather than
// retrying, to avoid alert storms during an outage.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// ArchiveStore receives best-effort copies of events and sent notifications
// for reporting. Failures never abort the processing loop.
type ArchiveStore interface {
	ArchiveEvent(ev MovementEvent) error
	ArchiveNotification(n Notification) error
}

// MonitorConfig holds the orchestration timings.
type MonitorConfig struct {
	PollInterval    time.Duration // how often each camera worker asks its source for batches
	SweepInterval   time.Duration // how often stale presence records are evicted
	StatusInterval  time.Duration // how often a status digest is emitted; zero disables
	DispatchTimeout time.Duration // upper bound on one notification dispatch
	DedupRetention  time.Duration // how long processed frame IDs are remembered
}

// DefaultMonitorConfig returns the default orchestration timings.
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		PollInterval:    10 * time.Second,
		SweepInterval:   time.Minute,
		StatusInterval:  time.Hour,
		DispatchTimeout: 30 * time.Second,
		DedupRetention:  time.Hour,
	}
}

// Monitor drives the per-camera processing pipeline: source batches through
// the presence tracker, the alert policy, the baseline and the anomaly
// detector, emitting notifications at the delivery boundary.
type Monitor struct {
	cfg      MonitorConfig
	tracker  *Tracker
	policy   *AlertPolicy
	baseline *Baseline
	detector *Detector
	filter   *DetectionFilter
	notifier Notifier
	archive  ArchiveStore
	clock    Clock
	log      *zap.Logger
	stats    *ProcessingStats

	mu        sync.Mutex
	processed map[string]map[string]time.Time // camera -> frame ID -> stream time
	lastTS    map[string]time.Time            // camera -> newest processed stream time
}

// NewMonitor wires the pipeline together. archive may be nil.
func NewMonitor(cfg MonitorConfig, tracker *Tracker, policy *AlertPolicy, baseline *Baseline, detector *Detector, filter *DetectionFilter, notifier Notifier, archive ArchiveStore, clock Clock, log *zap.Logger) *Monitor {
	def := DefaultMonitorConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = def.SweepInterval
	}
	if cfg.DispatchTimeout <= 0 {
		cfg.DispatchTimeout = def.DispatchTimeout
	}
	if cfg.DedupRetention <= 0 {
		cfg.DedupRetention = def.DedupRetention
	}
	if clock == nil {
		clock = SystemClock{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Monitor{
		cfg:       cfg,
		tracker:   tracker,
		policy:    policy,
		baseline:  baseline,
		detector:  detector,
		filter:    filter,
		notifier:  notifier,
		archive:   archive,
		clock:     clock,
		log:       log,
		stats:     NewProcessingStats(clock.Now()),
		processed: make(map[string]map[string]time.Time),
		lastTS:    make(map[string]time.Time),
	}
}

// Stats returns a snapshot of the processing counters.
func (m *Monitor) Stats() StatsSnapshot {
	return m.stats.Snapshot(m.clock.Now())
}

// Run starts one worker per source plus the sweep and digest loops, and
// blocks until ctx is cancelled and all workers have drained.
func (m *Monitor) Run(ctx context.Context, sources []Source) {
	var wg sync.WaitGroup
	for _, src := range sources {
		wg.Add(1)
		go func(src Source) {
			defer wg.Done()
			m.runCamera(ctx, src)
		}(src)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		m.runSweepLoop(ctx)
	}()

	if m.cfg.StatusInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.runDigestLoop(ctx)
		}()
	}

	wg.Wait()
}

func (m *Monitor) runCamera(ctx context.Context, src Source) {
	log := m.log.With(zap.String("camera", src.Camera()))
	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			batches, err := src.NextBatches(ctx)
			if err != nil {
				log.Warn("failed to fetch detection batches", zap.Error(err))
				continue
			}
			sort.SliceStable(batches, func(i, j int) bool {
				return batches[i].Timestamp.Before(batches[j].Timestamp)
			})
			for _, batch := range batches {
				if ctx.Err() != nil {
					return
				}
				m.ProcessBatch(ctx, batch)
			}
		}
	}
}

func (m *Monitor) runSweepLoop(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.RunSweep(ctx, m.clock.Now())
		}
	}
}

func (m *Monitor) runDigestLoop(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.StatusInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.EmitDigest(ctx, m.clock.Now())
		}
	}
}

// ProcessBatch runs one detection batch through the pipeline. Duplicate and
// malformed batches are dropped with a logged warning; processing always
// continues.
func (m *Monitor) ProcessBatch(ctx context.Context, batch DetectionBatch) {
	if err := batch.Validate(); err != nil {
		m.log.Warn("dropping malformed detection batch", zap.Error(err))
		m.stats.AddDropped()
		return
	}
	if !m.markProcessed(batch.Camera, batch.FrameID, batch.Timestamp) {
		m.stats.AddDropped()
		return
	}
	m.stats.AddBatch()

	subject := batch.Subject
	if subject == "" {
		subject = UnknownSubject
	}

	var persons []Detection
	var objects []string
	seenObjects := make(map[string]bool)
	for _, det := range batch.Detections {
		ok, reason := m.filter.Check(det, batch.Description)
		if !ok {
			m.log.Debug("detection filtered",
				zap.String("camera", batch.Camera),
				zap.String("class", det.Class),
				zap.String("reason", reason))
			m.stats.AddFiltered()
			continue
		}
		if det.Class == PersonClass {
			persons = append(persons, det)
		} else if !seenObjects[det.Class] {
			seenObjects[det.Class] = true
			objects = append(objects, det.Class)
		}
	}
	if len(persons) == 0 {
		return
	}

	tr := m.tracker.Observe(batch.Camera, subject, objects, batch.Timestamp)
	if m.policy.ShouldNotify(tr, batch.Camera, subject, batch.Description, batch.Timestamp) {
		m.dispatch(ctx, m.buildNotification(tr, batch, subject))
	} else if tr.Type != TransitionUnchanged {
		m.stats.AddSuppressed()
	}

	for _, det := range persons {
		ev := NewMovementEvent(batch.Camera, subject, det, batch.FrameWidth, batch.FrameHeight, batch.Timestamp)
		m.baseline.Record(ev)
		m.stats.AddEvent()
		if m.archive != nil {
			if err := m.archive.ArchiveEvent(ev); err != nil {
				m.log.Warn("failed to archive movement event", zap.Error(err))
			}
		}

		if !m.baseline.HasSufficientBaseline() {
			continue
		}
		if anomaly := m.detector.Check(ev); anomaly != nil {
			m.stats.AddAnomaly()
			m.log.Warn("anomaly detected",
				zap.String("type", string(anomaly.Type)),
				zap.String("camera", ev.Camera),
				zap.String("subject", ev.Subject))
			m.dispatch(ctx, Notification{
				ID:        anomaly.ID,
				Kind:      KindAnomaly,
				Camera:    ev.Camera,
				Subject:   ev.Subject,
				Message:   anomaly.Message,
				Severity:  anomaly.Severity,
				Timestamp: batch.Timestamp,
			})
		}
	}
}

// markProcessed records a frame ID and reports whether it was new. Remembered
// IDs are pruned once older than the dedup retention window.
func (m *Monitor) markProcessed(camera, frameID string, ts time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	frames, ok := m.processed[camera]
	if !ok {
		frames = make(map[string]time.Time)
		m.processed[camera] = frames
	}
	if _, dup := frames[frameID]; dup {
		return false
	}
	frames[frameID] = ts
	if ts.After(m.lastTS[camera]) {
		m.lastTS[camera] = ts
	}

	cutoff := m.lastTS[camera].Add(-m.cfg.DedupRetention)
	for id, seen := range frames {
		if seen.Before(cutoff) {
			delete(frames, id)
		}
	}
	return true
}

func (m *Monitor) buildNotification(tr Transition, batch DetectionBatch, subject string) Notification {
	n := Notification{
		ID:        uuid.New().String(),
		Camera:    batch.Camera,
		Subject:   subject,
		Timestamp: batch.Timestamp,
		Severity:  SeverityLow,
	}
	switch tr.Type {
	case TransitionArrived:
		if subject == UnknownSubject {
			n.Kind = KindUnknownSubject
			n.Severity = SeverityMedium
			n.Message = fmt.Sprintf("Unknown person in %s", batch.Camera)
		} else {
			n.Kind = KindArrival
			n.Message = fmt.Sprintf("%s arrived at %s", subject, batch.Camera)
		}
	case TransitionSubjectChanged:
		n.Kind = KindSubjectChanged
		n.Message = fmt.Sprintf("%s arrived at %s (previously %s)", subject, batch.Camera, tr.PreviousSubject)
		if subject == UnknownSubject {
			n.Kind = KindUnknownSubject
			n.Severity = SeverityMedium
			n.Message = fmt.Sprintf("Unknown person in %s (previously %s)", batch.Camera, tr.PreviousSubject)
		}
	case TransitionNewObjects:
		n.Kind = KindNewObjects
		n.Message = fmt.Sprintf("%s in %s with new objects: %v", subject, batch.Camera, tr.NewObjects)
	case TransitionStillPresent:
		n.Kind = KindHeartbeat
		n.Message = fmt.Sprintf("%s still in %s (%.0f min)", subject, batch.Camera, tr.Elapsed.Minutes())
	}
	return n
}

// RunSweep evicts stale presence records and emits departure notifications
// for them. Departures respect quiet hours but not cooldowns: a subject
// leaving is rare enough to always be worth reporting.
func (m *Monitor) RunSweep(ctx context.Context, now time.Time) []PresenceKey {
	evicted := m.tracker.EvictStale(now)
	for _, key := range evicted {
		if m.policy.IsQuietHours(now) {
			m.stats.AddSuppressed()
			continue
		}
		m.dispatch(ctx, Notification{
			ID:        uuid.New().String(),
			Kind:      KindDeparture,
			Camera:    key.Camera,
			Subject:   key.Subject,
			Message:   fmt.Sprintf("%s left %s", key.Subject, key.Camera),
			Severity:  SeverityLow,
			Timestamp: now,
		})
	}
	return evicted
}

// EmitDigest sends the periodic status summary.
func (m *Monitor) EmitDigest(ctx context.Context, now time.Time) {
	stats := m.stats.Snapshot(now)
	window := m.cfg.StatusInterval
	if window <= 0 {
		window = time.Hour
	}
	activity := SummarizeActivity(m.baseline.EventsBetween(now.Add(-window), now), now.Add(-window), now)
	m.dispatch(ctx, Notification{
		ID:        uuid.New().String(),
		Kind:      KindDigest,
		Message:   DigestMessage(stats, activity),
		Timestamp: now,
	})
}

// dispatch delivers one notification with a bounded timeout. A failure is
// logged and the notification dropped; there is no retry.
func (m *Monitor) dispatch(ctx context.Context, n Notification) {
	dctx, cancel := context.WithTimeout(ctx, m.cfg.DispatchTimeout)
	defer cancel()

	if err := m.notifier.Notify(dctx, n); err != nil {
		m.log.Warn("notification delivery failed",
			zap.String("kind", string(n.Kind)),
			zap.String("camera", n.Camera),
			zap.Error(err))
		m.stats.AddDeliveryFailure()
		return
	}
	m.stats.AddAlert()
	if m.archive != nil && n.Kind != KindDigest {
		if err := m.archive.ArchiveNotification(n); err != nil {
			m.log.Warn("failed to archive notification", zap.Error(err))
		}
	}
}
