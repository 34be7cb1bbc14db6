package vigil

import (
	"fmt"
	"time"
)

// UnknownSubject is the label for detections whose identity resolution failed.
// An empty subject on a batch is normalized to this value.
const UnknownSubject = "unknown"

// PersonClass is the detector class that drives presence tracking. All other
// classes are treated as co-occurring objects.
const PersonClass = "person"

// Detection is a single object reported by the external detector for one frame.
type Detection struct {
	Class      string     `json:"class"`
	Confidence float64    `json:"confidence"`
	BBox       [4]float64 `json:"bbox"` // x1, y1, x2, y2 in pixel coordinates
}

// DetectionBatch is the per-frame payload handed over by the detection
// collaborator: the raw detections plus the externally resolved subject label
// and an optional free-text scene description from the captioner.
type DetectionBatch struct {
	FrameID     string      `json:"frame_id"`
	Camera      string      `json:"camera"`
	Subject     string      `json:"subject,omitempty"`
	Description string      `json:"description,omitempty"`
	Timestamp   time.Time   `json:"timestamp"`
	FrameWidth  float64     `json:"frame_width,omitempty"`
	FrameHeight float64     `json:"frame_height,omitempty"`
	Detections  []Detection `json:"detections"`
}

// Validate reports whether the batch carries the fields processing depends on.
func (b *DetectionBatch) Validate() error {
	if b.Camera == "" {
		return fmt.Errorf("detection batch has no camera")
	}
	if b.Timestamp.IsZero() {
		return fmt.Errorf("detection batch has no timestamp")
	}
	if b.FrameID == "" {
		return fmt.Errorf("detection batch has no frame id")
	}
	return nil
}

// MovementEvent is an immutable record of one detected subject in one frame.
// Position is the bounding box center normalized to the [0,1] range. Subject
// is UnknownSubject when identity resolution failed.
type MovementEvent struct {
	Timestamp  time.Time
	Camera     string
	Subject    string
	Position   [2]float64
	Confidence float64
}

// NewMovementEvent derives an event from a person detection. Pixel coordinates
// are normalized by the frame dimensions; a zero dimension means the bounding
// box is already normalized.
func NewMovementEvent(camera, subject string, det Detection, frameW, frameH float64, ts time.Time) MovementEvent {
	cx := (det.BBox[0] + det.BBox[2]) / 2
	cy := (det.BBox[1] + det.BBox[3]) / 2
	if frameW > 0 {
		cx /= frameW
	}
	if frameH > 0 {
		cy /= frameH
	}
	if subject == "" {
		subject = UnknownSubject
	}
	return MovementEvent{
		Timestamp:  ts,
		Camera:     camera,
		Subject:    subject,
		Position:   [2]float64{clamp01(cx), clamp01(cy)},
		Confidence: det.Confidence,
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Severity grades notifications and anomalies.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// NotificationKind identifies what a notification reports.
type NotificationKind string

const (
	KindArrival        NotificationKind = "arrival"
	KindDeparture      NotificationKind = "departure"
	KindHeartbeat      NotificationKind = "heartbeat"
	KindUnknownSubject NotificationKind = "unknown_subject"
	KindAnomaly        NotificationKind = "anomaly"
	KindSubjectChanged NotificationKind = "subject_changed"
	KindNewObjects     NotificationKind = "new_objects"
	KindDigest         NotificationKind = "digest"
)

// Notification is the outbound object handed to the delivery collaborator.
// Formatting beyond Message and the transport are the collaborator's problem.
type Notification struct {
	ID        string           `json:"id"`
	Kind      NotificationKind `json:"kind"`
	Camera    string           `json:"camera,omitempty"`
	Subject   string           `json:"subject,omitempty"`
	Message   string           `json:"message"`
	Severity  Severity         `json:"severity,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// AnomalyType classifies a deviation from the behavioral baseline.
type AnomalyType string

const (
	AnomalyUnknownPerson       AnomalyType = "unknown_person"
	AnomalyUnusualTimeLocation AnomalyType = "unusual_time_location"
	AnomalyUnusualPosition     AnomalyType = "unusual_position"
)

// Anomaly is a scored deviation produced by the detector, carrying the
// originating event for downstream context.
type Anomaly struct {
	ID                  string        `json:"id"`
	Type                AnomalyType   `json:"type"`
	Severity            Severity      `json:"severity"`
	Message             string        `json:"message"`
	Event               MovementEvent `json:"event"`
	DistanceFromTypical float64       `json:"distance_from_typical,omitempty"`
	TypicalCameras      []string      `json:"typical_cameras,omitempty"`
}
