package vigil

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeNotifier struct {
	mu   sync.Mutex
	sent []Notification
	fail error
}

func (f *fakeNotifier) Notify(_ context.Context, n Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.sent = append(f.sent, n)
	return nil
}

func (f *fakeNotifier) kinds() []NotificationKind {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]NotificationKind, len(f.sent))
	for i, n := range f.sent {
		out[i] = n.Kind
	}
	return out
}

type fakeArchive struct {
	mu     sync.Mutex
	events []MovementEvent
	notes  []Notification
}

func (f *fakeArchive) ArchiveEvent(ev MovementEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeArchive) ArchiveNotification(n Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notes = append(f.notes, n)
	return nil
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func newTestMonitor(notifier Notifier, archive ArchiveStore, baseline *Baseline) *Monitor {
	if baseline == nil {
		baseline = NewBaseline(BaselineConfig{}, nil, nil, nil, zap.NewNop())
	}
	tracker := testTracker()
	policy := NewAlertPolicy(PolicyConfig{Cooldown: 5 * time.Minute, UnknownInterval: 5 * time.Minute})
	detector := NewDetector(DetectorConfig{}, baseline)
	filter := NewDetectionFilter(FilterConfig{MinConfidence: 0.6})
	clock := fixedClock{t: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
	return NewMonitor(MonitorConfig{}, tracker, policy, baseline, detector, filter, notifier, archive, clock, zap.NewNop())
}

func personBatch(frameID, camera, subject string, ts time.Time) DetectionBatch {
	return DetectionBatch{
		FrameID:   frameID,
		Camera:    camera,
		Subject:   subject,
		Timestamp: ts,
		Detections: []Detection{{
			Class:      PersonClass,
			Confidence: 0.9,
			BBox:       [4]float64{0.4, 0.4, 0.6, 0.6},
		}},
	}
}

func TestProcessBatchArrival(t *testing.T) {
	t.Parallel()
	notifier := &fakeNotifier{}
	archive := &fakeArchive{}
	m := newTestMonitor(notifier, archive, nil)
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	m.ProcessBatch(context.Background(), personBatch("f1", "kitchen", "alice", now))

	require.Len(t, notifier.sent, 1)
	got := notifier.sent[0]
	assert.Equal(t, KindArrival, got.Kind)
	assert.Equal(t, "kitchen", got.Camera)
	assert.Equal(t, "alice", got.Subject)
	assert.Equal(t, now, got.Timestamp)

	// The event and the sent notification both reach the archive.
	assert.Len(t, archive.events, 1)
	assert.Len(t, archive.notes, 1)

	stats := m.Stats()
	assert.Equal(t, int64(1), stats.BatchesProcessed)
	assert.Equal(t, int64(1), stats.AlertsSent)
	assert.Equal(t, int64(1), stats.EventsRecorded)
}

func TestProcessBatchDeduplicatesFrames(t *testing.T) {
	t.Parallel()
	notifier := &fakeNotifier{}
	m := newTestMonitor(notifier, nil, nil)
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	m.ProcessBatch(context.Background(), personBatch("f1", "kitchen", "alice", now))
	m.ProcessBatch(context.Background(), personBatch("f1", "kitchen", "alice", now))

	assert.Len(t, notifier.sent, 1)
	stats := m.Stats()
	assert.Equal(t, int64(1), stats.BatchesProcessed)
	assert.Equal(t, int64(1), stats.BatchesDropped)
}

func TestProcessBatchDropsMalformed(t *testing.T) {
	t.Parallel()
	notifier := &fakeNotifier{}
	m := newTestMonitor(notifier, nil, nil)

	m.ProcessBatch(context.Background(), DetectionBatch{FrameID: "f1", Camera: "kitchen"}) // no timestamp
	m.ProcessBatch(context.Background(), DetectionBatch{FrameID: "f2", Timestamp: time.Now()})

	assert.Empty(t, notifier.sent)
	assert.Equal(t, int64(2), m.Stats().BatchesDropped)
}

func TestProcessBatchFiltersDetections(t *testing.T) {
	t.Parallel()
	notifier := &fakeNotifier{}
	m := newTestMonitor(notifier, nil, nil)
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	batch := personBatch("f1", "kitchen", "alice", now)
	batch.Detections[0].Confidence = 0.3

	m.ProcessBatch(context.Background(), batch)
	assert.Empty(t, notifier.sent)
	stats := m.Stats()
	assert.Equal(t, int64(1), stats.DetectionsFiltered)
	assert.Equal(t, int64(0), stats.EventsRecorded)
}

func TestProcessBatchUnknownSubject(t *testing.T) {
	t.Parallel()
	notifier := &fakeNotifier{}
	m := newTestMonitor(notifier, nil, nil)
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	m.ProcessBatch(context.Background(), personBatch("f1", "porch", "", now))

	require.Len(t, notifier.sent, 1)
	assert.Equal(t, KindUnknownSubject, notifier.sent[0].Kind)
	assert.Equal(t, SeverityMedium, notifier.sent[0].Severity)
}

func TestProcessBatchNonPersonOnlyIgnored(t *testing.T) {
	t.Parallel()
	notifier := &fakeNotifier{}
	m := newTestMonitor(notifier, nil, nil)
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	batch := DetectionBatch{
		FrameID:   "f1",
		Camera:    "kitchen",
		Timestamp: now,
		Detections: []Detection{{
			Class:      "cat",
			Confidence: 0.95,
			BBox:       [4]float64{0.1, 0.1, 0.2, 0.2},
		}},
	}
	m.ProcessBatch(context.Background(), batch)
	assert.Empty(t, notifier.sent)
	assert.Equal(t, int64(0), m.Stats().EventsRecorded)
}

func TestProcessBatchAnomalyAfterBaseline(t *testing.T) {
	t.Parallel()
	notifier := &fakeNotifier{}

	// A baseline spanning more than the minimum days, with alice only ever
	// in the kitchen.
	baseline := NewBaseline(BaselineConfig{MinBaselineDays: 7}, nil, nil, nil, zap.NewNop())
	start := time.Date(2026, 8, 3, 9, 0, 0, 0, time.UTC)
	for day := 0; day < 8; day++ {
		ts := start.AddDate(0, 0, day)
		baseline.Record(eventAt("alice", "kitchen", ts))
		baseline.Record(eventAt("alice", "kitchen", ts.Add(5*time.Minute)))
	}
	_, err := baseline.Build(0, start.AddDate(0, 0, 9))
	require.NoError(t, err)
	require.True(t, baseline.HasSufficientBaseline())

	m := newTestMonitor(notifier, nil, baseline)

	// mallory has no patterns at all: arrival alert plus anomaly.
	m.ProcessBatch(context.Background(), personBatch("f1", "kitchen", "mallory", start.AddDate(0, 0, 9)))

	kinds := notifier.kinds()
	assert.Contains(t, kinds, KindArrival)
	assert.Contains(t, kinds, KindAnomaly)
	assert.Equal(t, int64(1), m.Stats().AnomaliesDetected)
}

func TestRunSweepEmitsDepartures(t *testing.T) {
	t.Parallel()
	notifier := &fakeNotifier{}
	m := newTestMonitor(notifier, nil, nil)
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	m.ProcessBatch(context.Background(), personBatch("f1", "kitchen", "alice", now))
	notifier.sent = nil

	evicted := m.RunSweep(context.Background(), now.Add(11*time.Minute))
	require.Len(t, evicted, 1)
	require.Len(t, notifier.sent, 1)
	assert.Equal(t, KindDeparture, notifier.sent[0].Kind)
	assert.Equal(t, "alice", notifier.sent[0].Subject)
}

func TestRunSweepSuppressedInQuietHours(t *testing.T) {
	t.Parallel()
	notifier := &fakeNotifier{}

	tracker := testTracker()
	start, end, err := ParseQuietHours("23:00", "07:00")
	require.NoError(t, err)
	policy := NewAlertPolicy(PolicyConfig{QuietEnabled: true, QuietStartMin: start, QuietEndMin: end})
	baseline := NewBaseline(BaselineConfig{}, nil, nil, nil, zap.NewNop())
	m := NewMonitor(MonitorConfig{}, tracker, policy, baseline, NewDetector(DetectorConfig{}, baseline),
		NewDetectionFilter(FilterConfig{}), notifier, nil, fixedClock{t: time.Now()}, zap.NewNop())

	day := time.Date(2026, 8, 1, 22, 40, 0, 0, time.UTC)
	m.ProcessBatch(context.Background(), personBatch("f1", "kitchen", "alice", day))
	notifier.sent = nil

	evicted := m.RunSweep(context.Background(), day.Add(30*time.Minute)) // 23:10, inside quiet hours
	require.Len(t, evicted, 1)
	assert.Empty(t, notifier.sent)
	assert.Equal(t, int64(1), m.Stats().AlertsSuppressed)
}

func TestDispatchFailureCounted(t *testing.T) {
	t.Parallel()
	notifier := &fakeNotifier{fail: fmt.Errorf("webhook down")}
	archive := &fakeArchive{}
	m := newTestMonitor(notifier, archive, nil)
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	m.ProcessBatch(context.Background(), personBatch("f1", "kitchen", "alice", now))

	stats := m.Stats()
	assert.Equal(t, int64(1), stats.DeliveryFailures)
	assert.Equal(t, int64(0), stats.AlertsSent)
	// Failed deliveries are not archived.
	assert.Empty(t, archive.notes)
	// The movement event is archived regardless.
	assert.Len(t, archive.events, 1)
}

func TestEmitDigest(t *testing.T) {
	t.Parallel()
	notifier := &fakeNotifier{}
	m := newTestMonitor(notifier, nil, nil)
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	m.ProcessBatch(context.Background(), personBatch("f1", "kitchen", "alice", now))
	notifier.sent = nil

	m.EmitDigest(context.Background(), now.Add(time.Minute))
	require.Len(t, notifier.sent, 1)
	assert.Equal(t, KindDigest, notifier.sent[0].Kind)
	assert.Contains(t, notifier.sent[0].Message, "Batches processed: 1")
}

func TestRunStopsOnCancel(t *testing.T) {
	t.Parallel()
	notifier := &fakeNotifier{}
	m := newTestMonitor(notifier, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx, nil)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
