package vigil

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilterAcceptsGoodDetection(t *testing.T) {
	t.Parallel()
	f := NewDetectionFilter(FilterConfig{MinConfidence: 0.6})

	ok, reason := f.Check(Detection{
		Class:      "person",
		Confidence: 0.9,
		BBox:       [4]float64{100, 100, 200, 300},
	}, "person standing by the door")
	assert.True(t, ok)
	assert.Empty(t, reason)
}

func TestFilterRejectsMalformed(t *testing.T) {
	t.Parallel()
	f := NewDetectionFilter(FilterConfig{})

	cases := []struct {
		name   string
		det    Detection
		reason string
	}{
		{"missing class", Detection{Confidence: 0.9}, "malformed_missing_class"},
		{"nan confidence", Detection{Class: "person", Confidence: math.NaN()}, "malformed_confidence"},
		{"negative confidence", Detection{Class: "person", Confidence: -0.1}, "malformed_confidence"},
		{"confidence above one", Detection{Class: "person", Confidence: 1.5}, "malformed_confidence"},
		{"inverted bbox", Detection{Class: "person", Confidence: 0.9, BBox: [4]float64{200, 100, 100, 300}}, "malformed_bbox"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ok, reason := f.Check(tc.det, "")
			assert.False(t, ok)
			assert.True(t, strings.HasPrefix(reason, tc.reason), "got reason %q", reason)
		})
	}
}

func TestFilterRejectsLowConfidence(t *testing.T) {
	t.Parallel()
	f := NewDetectionFilter(FilterConfig{MinConfidence: 0.6})

	ok, reason := f.Check(Detection{Class: "person", Confidence: 0.4, BBox: [4]float64{0, 0, 1, 1}}, "")
	assert.False(t, ok)
	assert.Contains(t, reason, "low_confidence")
}

func TestFilterRejectsLowQualityDescription(t *testing.T) {
	t.Parallel()
	f := NewDetectionFilter(FilterConfig{})
	det := Detection{Class: "person", Confidence: 0.9, BBox: [4]float64{0, 0, 1, 1}}

	for _, desc := range []string{
		"a Blurry figure near the door",
		"scene is too dark to identify",
		"silhouette against the window",
	} {
		ok, reason := f.Check(det, desc)
		assert.False(t, ok, "description %q", desc)
		assert.Contains(t, reason, "low_quality_keyword")
	}

	ok, _ := f.Check(det, "person clearly visible in daylight")
	assert.True(t, ok)
}
