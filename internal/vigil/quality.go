package vigil

import (
	"fmt"
	"math"
	"strings"
)

// DefaultLowQualityKeywords are caption fragments that indicate a detection
// too degraded to alert on.
var DefaultLowQualityKeywords = []string{
	"blur", "blurry", "blurred", "unclear", "fuzzy",
	"dark", "too dark", "obscured", "hidden",
	"silhouette", "shadow", "uncertain",
}

// FilterConfig holds the detection quality thresholds.
type FilterConfig struct {
	MinConfidence      float64
	LowQualityKeywords []string
}

// DefaultFilterConfig returns the default quality thresholds.
func DefaultFilterConfig() FilterConfig {
	return FilterConfig{
		MinConfidence:      0.6,
		LowQualityKeywords: DefaultLowQualityKeywords,
	}
}

// DetectionFilter screens raw detections before they reach the presence
// pipeline: malformed records and low-value detections are dropped with a
// reason suitable for logging.
type DetectionFilter struct {
	cfg FilterConfig
}

// NewDetectionFilter creates a filter with the given thresholds.
func NewDetectionFilter(cfg FilterConfig) *DetectionFilter {
	if cfg.MinConfidence <= 0 {
		cfg.MinConfidence = DefaultFilterConfig().MinConfidence
	}
	if len(cfg.LowQualityKeywords) == 0 {
		cfg.LowQualityKeywords = DefaultLowQualityKeywords
	}
	return &DetectionFilter{cfg: cfg}
}

// Check reports whether a detection should be processed. When it should not,
// the reason names what disqualified it.
func (f *DetectionFilter) Check(det Detection, description string) (ok bool, reason string) {
	if det.Class == "" {
		return false, "malformed_missing_class"
	}
	if math.IsNaN(det.Confidence) || det.Confidence < 0 || det.Confidence > 1 {
		return false, fmt.Sprintf("malformed_confidence (%v)", det.Confidence)
	}
	if det.BBox[2] < det.BBox[0] || det.BBox[3] < det.BBox[1] {
		return false, "malformed_bbox"
	}
	if det.Confidence < f.cfg.MinConfidence {
		return false, fmt.Sprintf("low_confidence (%.2f)", det.Confidence)
	}

	desc := strings.ToLower(description)
	for _, kw := range f.cfg.LowQualityKeywords {
		if strings.Contains(desc, kw) {
			return false, fmt.Sprintf("low_quality_keyword (%s)", kw)
		}
	}
	return true, ""
}
