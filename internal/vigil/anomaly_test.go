package vigil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// seedBaseline builds a baseline where alice is routinely in the kitchen at
// 09:00 on Mondays, near position (0.5, 0.5).
func seedBaseline(t *testing.T) *Baseline {
	t.Helper()
	b := NewBaseline(BaselineConfig{}, nil, nil, nil, zap.NewNop())
	start := time.Date(2026, 8, 3, 9, 0, 0, 0, time.UTC) // a Monday
	for week := 0; week < 3; week++ {
		ts := start.AddDate(0, 0, 7*week)
		b.Record(eventAt("alice", "kitchen", ts))
		b.Record(eventAt("alice", "kitchen", ts.Add(5*time.Minute)))
	}
	_, err := b.Build(0, start.AddDate(0, 0, 22))
	require.NoError(t, err)
	require.Equal(t, 1, b.PatternCount())
	return b
}

func TestCheckNoBaselineNoAnomaly(t *testing.T) {
	t.Parallel()
	d := NewDetector(DetectorConfig{}, NewBaseline(BaselineConfig{}, nil, nil, nil, zap.NewNop()))

	ev := eventAt("alice", "kitchen", time.Date(2026, 8, 3, 9, 0, 0, 0, time.UTC))
	assert.Nil(t, d.Check(ev))
}

func TestCheckTypicalEventNoAnomaly(t *testing.T) {
	t.Parallel()
	d := NewDetector(DetectorConfig{PositionDistanceThreshold: 0.3}, seedBaseline(t))

	ev := eventAt("alice", "kitchen", time.Date(2026, 8, 24, 9, 30, 0, 0, time.UTC))
	ev.Position = [2]float64{0.55, 0.45} // within 0.3 of (0.5, 0.5)
	assert.Nil(t, d.Check(ev))
}

func TestCheckUnusualPosition(t *testing.T) {
	t.Parallel()
	d := NewDetector(DetectorConfig{PositionDistanceThreshold: 0.3}, seedBaseline(t))

	ev := eventAt("alice", "kitchen", time.Date(2026, 8, 24, 9, 30, 0, 0, time.UTC))
	ev.Position = [2]float64{0.95, 0.95}
	got := d.Check(ev)
	require.NotNil(t, got)
	assert.Equal(t, AnomalyUnusualPosition, got.Type)
	assert.Equal(t, SeverityLow, got.Severity)
	assert.Greater(t, got.DistanceFromTypical, 0.3)
	assert.NotEmpty(t, got.ID)
}

func TestCheckUnusualTimeLocation(t *testing.T) {
	t.Parallel()
	d := NewDetector(DetectorConfig{}, seedBaseline(t))

	// Known subject, but no pattern for 03:00 in the garage.
	ev := eventAt("alice", "garage", time.Date(2026, 8, 25, 3, 0, 0, 0, time.UTC))
	got := d.Check(ev)
	require.NotNil(t, got)
	assert.Equal(t, AnomalyUnusualTimeLocation, got.Type)
	assert.Equal(t, SeverityMedium, got.Severity)
	assert.Equal(t, []string{"kitchen"}, got.TypicalCameras)
}

func TestCheckUnknownPerson(t *testing.T) {
	t.Parallel()
	d := NewDetector(DetectorConfig{}, seedBaseline(t))

	// No patterns at all for this subject.
	ev := eventAt("mallory", "kitchen", time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC))
	got := d.Check(ev)
	require.NotNil(t, got)
	assert.Equal(t, AnomalyUnknownPerson, got.Type)
	assert.Equal(t, SeverityLow, got.Severity)
}
