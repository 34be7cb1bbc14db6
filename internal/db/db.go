// Package db owns the sqlite archive: durable copies of movement events and
// sent alerts, queryable for daily reports long after the in-memory pipeline
// state is gone.
package db

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/banshee-data/vigil.report/internal/vigil"
)

type DB struct {
	*sql.DB
}

// Open opens (or creates) the archive database and applies the connection
// pragmas. WAL keeps readers from blocking the writer; the busy timeout gives
// concurrent statements a chance to queue instead of failing immediately.
func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := sqlDB.Exec(pragma); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("apply %s: %w", pragma, err)
		}
	}

	return &DB{sqlDB}, nil
}

// retryOnBusy retries a write that failed with a lock contention error.
// modernc.org/sqlite surfaces these as plain errors rather than a typed code
// we can switch on.
func retryOnBusy(fn func() error) error {
	const attempts = 5
	var err error
	for i := 0; i < attempts; i++ {
		err = fn()
		if err == nil {
			return nil
		}
		msg := strings.ToLower(err.Error())
		if !strings.Contains(msg, "busy") && !strings.Contains(msg, "locked") {
			return err
		}
		time.Sleep(time.Duration(i+1) * 50 * time.Millisecond)
	}
	return err
}

// ArchiveEvent stores one movement event.
func (db *DB) ArchiveEvent(ev vigil.MovementEvent) error {
	return retryOnBusy(func() error {
		_, err := db.Exec(
			`INSERT INTO movement_events (timestamp, camera, subject, pos_x, pos_y, confidence)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			ev.Timestamp.UTC().Format(time.RFC3339Nano),
			ev.Camera, ev.Subject, ev.Position[0], ev.Position[1], ev.Confidence,
		)
		return err
	})
}

// ArchiveNotification stores one sent alert.
func (db *DB) ArchiveNotification(n vigil.Notification) error {
	return retryOnBusy(func() error {
		_, err := db.Exec(
			`INSERT INTO alerts (id, kind, camera, subject, message, severity, timestamp)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			n.ID, string(n.Kind), n.Camera, n.Subject, n.Message, string(n.Severity),
			n.Timestamp.UTC().Format(time.RFC3339Nano),
		)
		return err
	})
}

func scanEvents(rows *sql.Rows) ([]vigil.MovementEvent, error) {
	defer rows.Close()

	var events []vigil.MovementEvent
	for rows.Next() {
		var (
			ts      string
			camera  string
			subject string
			x, y    float64
			conf    float64
		)
		if err := rows.Scan(&ts, &camera, &subject, &x, &y, &conf); err != nil {
			return nil, err
		}
		parsed, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("parse event timestamp %q: %w", ts, err)
		}
		events = append(events, vigil.MovementEvent{
			Timestamp:  parsed,
			Camera:     camera,
			Subject:    subject,
			Position:   [2]float64{x, y},
			Confidence: conf,
		})
	}
	return events, rows.Err()
}

// EventsBetween returns archived events with start <= timestamp < end, oldest
// first.
func (db *DB) EventsBetween(start, end time.Time) ([]vigil.MovementEvent, error) {
	rows, err := db.Query(
		`SELECT timestamp, camera, subject, pos_x, pos_y, confidence
		 FROM movement_events
		 WHERE timestamp >= ? AND timestamp < ?
		 ORDER BY timestamp ASC`,
		start.UTC().Format(time.RFC3339Nano),
		end.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

// EventsForDay returns archived events for one calendar day in the given
// location.
func (db *DB) EventsForDay(day time.Time, loc *time.Location) ([]vigil.MovementEvent, error) {
	if loc == nil {
		loc = time.Local
	}
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, loc)
	return db.EventsBetween(start, start.AddDate(0, 0, 1))
}

// RecentEvents returns the newest archived events, newest first.
func (db *DB) RecentEvents(limit int) ([]vigil.MovementEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(
		`SELECT timestamp, camera, subject, pos_x, pos_y, confidence
		 FROM movement_events
		 ORDER BY timestamp DESC
		 LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

// NotificationsBetween returns archived alerts with start <= timestamp < end,
// oldest first.
func (db *DB) NotificationsBetween(start, end time.Time) ([]vigil.Notification, error) {
	rows, err := db.Query(
		`SELECT id, kind, camera, subject, message, severity, timestamp
		 FROM alerts
		 WHERE timestamp >= ? AND timestamp < ?
		 ORDER BY timestamp ASC`,
		start.UTC().Format(time.RFC3339Nano),
		end.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []vigil.Notification
	for rows.Next() {
		var (
			n        vigil.Notification
			kind     string
			severity string
			ts       string
		)
		if err := rows.Scan(&n.ID, &kind, &n.Camera, &n.Subject, &n.Message, &severity, &ts); err != nil {
			return nil, err
		}
		parsed, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("parse alert timestamp %q: %w", ts, err)
		}
		n.Kind = vigil.NotificationKind(kind)
		n.Severity = vigil.Severity(severity)
		n.Timestamp = parsed
		alerts = append(alerts, n)
	}
	return alerts, rows.Err()
}
