package vigil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShouldNotifyCooldown(t *testing.T) {
	t.Parallel()
	p := NewAlertPolicy(PolicyConfig{Cooldown: 5 * time.Minute})
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	arrived := Transition{Type: TransitionArrived}

	assert.True(t, p.ShouldNotify(arrived, "kitchen", "alice", "", now))

	// Inside the cooldown every transition for the key is suppressed.
	assert.False(t, p.ShouldNotify(arrived, "kitchen", "alice", "", now.Add(2*time.Minute)))
	assert.False(t, p.ShouldNotify(Transition{Type: TransitionNewObjects}, "kitchen", "alice", "", now.Add(4*time.Minute)))

	// The cooldown measures from the last sent alert, not the last attempt.
	assert.True(t, p.ShouldNotify(arrived, "kitchen", "alice", "", now.Add(5*time.Minute+time.Second)))
}

func TestShouldNotifyCooldownPerKey(t *testing.T) {
	t.Parallel()
	p := NewAlertPolicy(PolicyConfig{Cooldown: 5 * time.Minute})
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	arrived := Transition{Type: TransitionArrived}

	assert.True(t, p.ShouldNotify(arrived, "kitchen", "alice", "", now))

	// A different subject or camera has its own cooldown.
	assert.True(t, p.ShouldNotify(arrived, "kitchen", "bob", "", now))
	assert.True(t, p.ShouldNotify(arrived, "garage", "alice", "", now))
}

func TestShouldNotifyUnchangedNever(t *testing.T) {
	t.Parallel()
	p := NewAlertPolicy(PolicyConfig{})
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	assert.False(t, p.ShouldNotify(Transition{Type: TransitionUnchanged}, "kitchen", "alice", "", now))
}

func TestShouldNotifyUnknownLimiter(t *testing.T) {
	t.Parallel()
	p := NewAlertPolicy(PolicyConfig{UnknownInterval: 5 * time.Minute})
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	arrived := Transition{Type: TransitionArrived}

	assert.True(t, p.ShouldNotify(arrived, "porch", UnknownSubject, "", now))

	// The limiter spans cameras: an unknown person moving between views is
	// one situation, not several.
	assert.False(t, p.ShouldNotify(arrived, "garage", UnknownSubject, "", now.Add(2*time.Minute)))
	assert.True(t, p.ShouldNotify(arrived, "garage", UnknownSubject, "", now.Add(6*time.Minute)))
}

func TestIsQuietHoursCrossingMidnight(t *testing.T) {
	t.Parallel()

	start, end, err := ParseQuietHours("23:00", "07:00")
	require.NoError(t, err)
	p := NewAlertPolicy(PolicyConfig{QuietEnabled: true, QuietStartMin: start, QuietEndMin: end})

	at := func(h, m int) time.Time {
		return time.Date(2026, 8, 1, h, m, 0, 0, time.UTC)
	}
	assert.True(t, p.IsQuietHours(at(23, 30)))
	assert.True(t, p.IsQuietHours(at(2, 0)))
	assert.True(t, p.IsQuietHours(at(6, 59)))
	assert.False(t, p.IsQuietHours(at(12, 0)))
	assert.False(t, p.IsQuietHours(at(22, 59)))
	assert.False(t, p.IsQuietHours(at(7, 1)))
}

func TestIsQuietHoursSameDayWindow(t *testing.T) {
	t.Parallel()

	start, end, err := ParseQuietHours("13:00", "15:00")
	require.NoError(t, err)
	p := NewAlertPolicy(PolicyConfig{QuietEnabled: true, QuietStartMin: start, QuietEndMin: end})

	at := func(h, m int) time.Time {
		return time.Date(2026, 8, 1, h, m, 0, 0, time.UTC)
	}
	assert.True(t, p.IsQuietHours(at(14, 0)))
	assert.False(t, p.IsQuietHours(at(12, 59)))
	assert.False(t, p.IsQuietHours(at(15, 1)))
}

func TestQuietHoursSuppressionAndEmergencyBypass(t *testing.T) {
	t.Parallel()

	start, end, err := ParseQuietHours("23:00", "07:00")
	require.NoError(t, err)
	p := NewAlertPolicy(PolicyConfig{QuietEnabled: true, QuietStartMin: start, QuietEndMin: end})
	night := time.Date(2026, 8, 1, 23, 30, 0, 0, time.UTC)
	arrived := Transition{Type: TransitionArrived}

	assert.False(t, p.ShouldNotify(arrived, "kitchen", "alice", "person walking through", night))
	assert.True(t, p.ShouldNotify(arrived, "kitchen", "alice", "sound of breaking glass", night))
}

func TestIsEmergencyCaseInsensitive(t *testing.T) {
	t.Parallel()
	p := NewAlertPolicy(PolicyConfig{})

	assert.True(t, p.IsEmergency("Possible INTRUSION at the back door"))
	assert.True(t, p.IsEmergency("unknown person near window"))
	assert.False(t, p.IsEmergency("cat on the counter"))
	assert.False(t, p.IsEmergency(""))
}

func TestParseQuietHoursRejectsBadValues(t *testing.T) {
	t.Parallel()

	for _, bad := range []string{"25:00", "12:60", "noon", ""} {
		_, _, err := ParseQuietHours(bad, "07:00")
		assert.Error(t, err, "start %q", bad)
		_, _, err = ParseQuietHours("23:00", bad)
		assert.Error(t, err, "end %q", bad)
	}
}
