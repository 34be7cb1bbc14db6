package vigil

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// ActivitySummary condenses a window of movement events for the periodic
// status digest.
type ActivitySummary struct {
	Start          time.Time      `json:"start"`
	End            time.Time      `json:"end"`
	TotalEvents    int            `json:"total_events"`
	CameraActivity map[string]int `json:"camera_activity"`
	HourlyActivity map[int]int    `json:"hourly_activity"`
	SubjectsSeen   []string       `json:"subjects_seen"`
}

// SummarizeActivity aggregates events in [start, end).
func SummarizeActivity(events []MovementEvent, start, end time.Time) ActivitySummary {
	summary := ActivitySummary{
		Start:          start,
		End:            end,
		CameraActivity: make(map[string]int),
		HourlyActivity: make(map[int]int),
	}
	subjects := make(map[string]bool)
	for _, ev := range events {
		if ev.Timestamp.Before(start) || !ev.Timestamp.Before(end) {
			continue
		}
		summary.TotalEvents++
		summary.CameraActivity[ev.Camera]++
		summary.HourlyActivity[ev.Timestamp.Hour()]++
		subjects[ev.Subject] = true
	}
	for s := range subjects {
		summary.SubjectsSeen = append(summary.SubjectsSeen, s)
	}
	sort.Strings(summary.SubjectsSeen)
	return summary
}

// DigestMessage renders a status digest for the notification boundary.
func DigestMessage(stats StatsSnapshot, activity ActivitySummary) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Status report (uptime %.1f min)\n", stats.Uptime.Minutes())
	fmt.Fprintf(&sb, "Batches processed: %d\n", stats.BatchesProcessed)
	fmt.Fprintf(&sb, "Events recorded: %d\n", stats.EventsRecorded)
	fmt.Fprintf(&sb, "Alerts sent: %d (suppressed %d)\n", stats.AlertsSent, stats.AlertsSuppressed)
	fmt.Fprintf(&sb, "Anomalies: %d\n", stats.AnomaliesDetected)
	fmt.Fprintf(&sb, "Delivery failures: %d\n", stats.DeliveryFailures)
	if activity.TotalEvents > 0 {
		cameras := make([]string, 0, len(activity.CameraActivity))
		for c := range activity.CameraActivity {
			cameras = append(cameras, c)
		}
		sort.Strings(cameras)
		parts := make([]string, 0, len(cameras))
		for _, c := range cameras {
			parts = append(parts, fmt.Sprintf("%s=%d", c, activity.CameraActivity[c]))
		}
		fmt.Fprintf(&sb, "Recent activity: %s\n", strings.Join(parts, " "))
	}
	return sb.String()
}
