package vigil

import (
	"sync"
	"time"
)

// ProcessingStats tracks per-monitor counters with thread-safe operations.
type ProcessingStats struct {
	mu                 sync.Mutex
	batchesProcessed   int64
	batchesDropped     int64
	eventsRecorded     int64
	detectionsFiltered int64
	alertsSent         int64
	alertsSuppressed   int64
	anomaliesDetected  int64
	deliveryFailures   int64
	started            time.Time
}

// NewProcessingStats creates a stats instance with the uptime origin set.
func NewProcessingStats(now time.Time) *ProcessingStats {
	return &ProcessingStats{started: now}
}

// AddBatch increments the processed-batch count.
func (s *ProcessingStats) AddBatch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batchesProcessed++
}

// AddDropped increments the dropped-batch count (malformed or duplicate).
func (s *ProcessingStats) AddDropped() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batchesDropped++
}

// AddEvent increments the recorded movement-event count.
func (s *ProcessingStats) AddEvent() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.eventsRecorded++
}

// AddFiltered increments the quality-filtered detection count.
func (s *ProcessingStats) AddFiltered() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detectionsFiltered++
}

// AddAlert increments the sent-alert count.
func (s *ProcessingStats) AddAlert() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alertsSent++
}

// AddSuppressed increments the policy-suppressed alert count.
func (s *ProcessingStats) AddSuppressed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alertsSuppressed++
}

// AddAnomaly increments the detected-anomaly count.
func (s *ProcessingStats) AddAnomaly() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.anomaliesDetected++
}

// AddDeliveryFailure increments the failed-dispatch count.
func (s *ProcessingStats) AddDeliveryFailure() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deliveryFailures++
}

// StatsSnapshot is a point-in-time copy of the counters.
type StatsSnapshot struct {
	BatchesProcessed   int64         `json:"batches_processed"`
	BatchesDropped     int64         `json:"batches_dropped"`
	EventsRecorded     int64         `json:"events_recorded"`
	DetectionsFiltered int64         `json:"detections_filtered"`
	AlertsSent         int64         `json:"alerts_sent"`
	AlertsSuppressed   int64         `json:"alerts_suppressed"`
	AnomaliesDetected  int64         `json:"anomalies_detected"`
	DeliveryFailures   int64         `json:"delivery_failures"`
	Uptime             time.Duration `json:"uptime_ns"`
}

// Snapshot returns the current counter values.
func (s *ProcessingStats) Snapshot(now time.Time) StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return StatsSnapshot{
		BatchesProcessed:   s.batchesProcessed,
		BatchesDropped:     s.batchesDropped,
		EventsRecorded:     s.eventsRecorded,
		DetectionsFiltered: s.detectionsFiltered,
		AlertsSent:         s.alertsSent,
		AlertsSuppressed:   s.alertsSuppressed,
		AnomaliesDetected:  s.anomaliesDetected,
		DeliveryFailures:   s.deliveryFailures,
		Uptime:             now.Sub(s.started),
	}
}
