package vigil

import (
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"
)

// DetectorConfig holds the anomaly scoring thresholds.
type DetectorConfig struct {
	// PositionDistanceThreshold is the minimum Euclidean distance (in
	// normalized coordinate units) from every typical position before an
	// event is flagged unusual_position.
	PositionDistanceThreshold float64
}

// DefaultDetectorConfig returns the default scoring thresholds.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{PositionDistanceThreshold: 0.3}
}

// Detector scores movement events against the behavioral baseline.
type Detector struct {
	cfg      DetectorConfig
	baseline *Baseline
}

// NewDetector creates a detector reading from the given baseline.
func NewDetector(cfg DetectorConfig, baseline *Baseline) *Detector {
	if cfg.PositionDistanceThreshold <= 0 {
		cfg.PositionDistanceThreshold = DefaultDetectorConfig().PositionDistanceThreshold
	}
	return &Detector{cfg: cfg, baseline: baseline}
}

// Check scores an event against the baseline. A nil return means no anomaly:
// either the event fits its bucket's pattern, or there is no baseline to
// assess against, which is the normal cold-start state and not an error.
func (d *Detector) Check(ev MovementEvent) *Anomaly {
	if d.baseline == nil || d.baseline.PatternCount() == 0 {
		return nil
	}

	key := PatternKeyFor(ev)
	pattern, ok := d.baseline.PatternFor(key)
	if !ok {
		subjectPatterns := d.baseline.SubjectPatterns(ev.Subject)
		if len(subjectPatterns) == 0 {
			return &Anomaly{
				ID:       uuid.New().String(),
				Type:     AnomalyUnknownPerson,
				Severity: SeverityLow,
				Message:  fmt.Sprintf("New person detected in %s", ev.Camera),
				Event:    ev,
			}
		}

		cameraSet := make(map[string]bool)
		for _, p := range subjectPatterns {
			cameraSet[p.Camera] = true
		}
		cameras := make([]string, 0, len(cameraSet))
		for c := range cameraSet {
			cameras = append(cameras, c)
		}
		sort.Strings(cameras)

		return &Anomaly{
			ID:             uuid.New().String(),
			Type:           AnomalyUnusualTimeLocation,
			Severity:       SeverityMedium,
			Message:        fmt.Sprintf("%s in %s at unusual time", ev.Subject, ev.Camera),
			Event:          ev,
			TypicalCameras: cameras,
		}
	}

	if len(pattern.TypicalPositions) == 0 {
		return nil
	}
	minDist := math.Inf(1)
	for _, pos := range pattern.TypicalPositions {
		dist := math.Hypot(ev.Position[0]-pos[0], ev.Position[1]-pos[1])
		if dist < minDist {
			minDist = dist
		}
	}
	if minDist > d.cfg.PositionDistanceThreshold {
		return &Anomaly{
			ID:                  uuid.New().String(),
			Type:                AnomalyUnusualPosition,
			Severity:            SeverityLow,
			Message:             fmt.Sprintf("Unusual position in %s", ev.Camera),
			Event:               ev,
			DistanceFromTypical: minDist,
		}
	}
	return nil
}
