// Package report builds the daily activity report from archived movement
// events.
package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/banshee-data/vigil.report/internal/vigil"
)

// presenceGap separates two sightings that still count as one continuous
// stretch of presence when estimating hours seen.
const presenceGap = 30 * time.Minute

// SubjectSummary is one subject's day.
type SubjectSummary struct {
	Subject        string    `json:"subject"`
	FirstSeen      time.Time `json:"first_seen"`
	LastSeen       time.Time `json:"last_seen"`
	TotalHoursSeen float64   `json:"total_hours_seen"`
	Cameras        []string  `json:"cameras"`
	EventCount     int       `json:"event_count"`
}

// DailyReport summarizes one calendar day of archived activity.
type DailyReport struct {
	Date           string           `json:"date"`
	TotalEvents    int              `json:"total_events"`
	Subjects       []SubjectSummary `json:"subjects"`
	CameraActivity map[string]int   `json:"camera_activity"`
	HourlyActivity map[int]int      `json:"hourly_activity"`
}

// BuildDailyReport aggregates one day of events. The events are assumed to
// belong to the report date; ordering does not matter.
func BuildDailyReport(events []vigil.MovementEvent, day time.Time) DailyReport {
	report := DailyReport{
		Date:           day.Format("2006-01-02"),
		TotalEvents:    len(events),
		CameraActivity: make(map[string]int),
		HourlyActivity: make(map[int]int),
	}

	bySubject := make(map[string][]vigil.MovementEvent)
	for _, ev := range events {
		report.CameraActivity[ev.Camera]++
		report.HourlyActivity[ev.Timestamp.Hour()]++
		bySubject[ev.Subject] = append(bySubject[ev.Subject], ev)
	}

	for subject, evs := range bySubject {
		sort.Slice(evs, func(i, j int) bool {
			return evs[i].Timestamp.Before(evs[j].Timestamp)
		})

		cameras := make(map[string]bool)
		var present time.Duration
		for i, ev := range evs {
			cameras[ev.Camera] = true
			if i == 0 {
				continue
			}
			if gap := ev.Timestamp.Sub(evs[i-1].Timestamp); gap < presenceGap {
				present += gap
			}
		}

		sortedCameras := make([]string, 0, len(cameras))
		for c := range cameras {
			sortedCameras = append(sortedCameras, c)
		}
		sort.Strings(sortedCameras)

		report.Subjects = append(report.Subjects, SubjectSummary{
			Subject:        subject,
			FirstSeen:      evs[0].Timestamp,
			LastSeen:       evs[len(evs)-1].Timestamp,
			TotalHoursSeen: present.Hours(),
			Cameras:        sortedCameras,
			EventCount:     len(evs),
		})
	}

	sort.Slice(report.Subjects, func(i, j int) bool {
		return report.Subjects[i].Subject < report.Subjects[j].Subject
	})
	return report
}

// FormatText renders the report for a terminal or a plain-text message.
func FormatText(r DailyReport) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Daily report for %s\n", r.Date)
	fmt.Fprintf(&sb, "Total events: %d\n", r.TotalEvents)

	if len(r.Subjects) == 0 {
		sb.WriteString("No activity recorded.\n")
		return sb.String()
	}

	sb.WriteString("\nSubjects:\n")
	for _, s := range r.Subjects {
		fmt.Fprintf(&sb, "  %s: %s to %s, %.1f h present, cameras: %s (%d events)\n",
			s.Subject,
			s.FirstSeen.Format("15:04"),
			s.LastSeen.Format("15:04"),
			s.TotalHoursSeen,
			strings.Join(s.Cameras, ", "),
			s.EventCount)
	}

	cameras := make([]string, 0, len(r.CameraActivity))
	for c := range r.CameraActivity {
		cameras = append(cameras, c)
	}
	sort.Strings(cameras)
	sb.WriteString("\nCamera activity:\n")
	for _, c := range cameras {
		fmt.Fprintf(&sb, "  %s: %d\n", c, r.CameraActivity[c])
	}

	var peakHour, peakCount int
	for h, n := range r.HourlyActivity {
		if n > peakCount || (n == peakCount && h < peakHour) {
			peakHour, peakCount = h, n
		}
	}
	if peakCount > 0 {
		fmt.Fprintf(&sb, "\nBusiest hour: %02d:00 (%d events)\n", peakHour, peakCount)
	}
	return sb.String()
}
