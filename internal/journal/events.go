package journal

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Event is one recorded registry or consolidation event
type Event struct {
	ID         int64     `json:"id"`
	MapperName string    `json:"mapper_name"`
	DevPath    string    `json:"dev_path,omitempty"`
	EventType  string    `json:"event_type"`
	Details    string    `json:"details,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// RecordEvent logs an event against a mapper name
func (d *DB) RecordEvent(eventType, mapperName, devPath string, details map[string]interface{}) error {
	var detailsJSON string
	if details != nil {
		b, err := json.Marshal(details)
		if err == nil {
			detailsJSON = string(b)
		}
	}

	_, err := d.conn.Exec(`
		INSERT INTO events (mapper_name, dev_path, event_type, details)
		VALUES (?, ?, ?, ?)
	`, mapperName, devPath, eventType, detailsJSON)
	if err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}

	return nil
}

// GetRecentEvents returns the most recent events
func (d *DB) GetRecentEvents(limit int) ([]*Event, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := d.conn.Query(`
		SELECT id, mapper_name, dev_path, event_type, details, timestamp
		FROM events
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// GetMapperEvents returns events for one mapper name
func (d *DB) GetMapperEvents(mapperName string, limit int) ([]*Event, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := d.conn.Query(`
		SELECT id, mapper_name, dev_path, event_type, details, timestamp
		FROM events
		WHERE mapper_name = ?
		ORDER BY id DESC
		LIMIT ?
	`, mapperName, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query mapper events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// GetEventsByType returns events of a specific type
func (d *DB) GetEventsByType(eventType string, limit int) ([]*Event, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := d.conn.Query(`
		SELECT id, mapper_name, dev_path, event_type, details, timestamp
		FROM events
		WHERE event_type = ?
		ORDER BY id DESC
		LIMIT ?
	`, eventType, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events by type: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]*Event, error) {
	var events []*Event
	for rows.Next() {
		var event Event
		var devPath, details sql.NullString

		err := rows.Scan(
			&event.ID, &event.MapperName, &devPath,
			&event.EventType, &details, &event.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}

		event.DevPath = devPath.String
		event.Details = details.String

		events = append(events, &event)
	}

	return events, rows.Err()
}
