package events

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/sentinel-gateway/internal/database"
)

const durableLogCap = 10000

// DurableLog is the optional append-only SQLite-backed event stream,
// capped at ~10k rows by trimming the oldest on every Nth append.
type DurableLog struct {
	db    *database.DB
	log   zerolog.Logger
	count int
}

func NewDurableLog(db *database.DB, log zerolog.Logger) *DurableLog {
	return &DurableLog{db: db, log: log.With().Str("component", "durable_event_log").Logger()}
}

// Append inserts the event and periodically trims the table back to
// durableLogCap rows.
func (d *DurableLog) Append(e *Event) error {
	dataJSON, err := json.Marshal(e.Data)
	if err != nil {
		return err
	}
	var metadataJSON []byte
	if e.Metadata != nil {
		metadataJSON, err = json.Marshal(e.Metadata)
		if err != nil {
			return err
		}
	}

	_, err = d.db.Exec(`
		INSERT INTO durable_events (event_id, event_type, severity, asset_symbol, watchdog_name, description, data_json, metadata_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.EventID, string(e.Type), string(e.Severity), e.AssetSymbol, e.WatchdogName, e.Description, string(dataJSON), nullableString(metadataJSON), e.Timestamp.Unix())
	if err != nil {
		return err
	}

	d.count++
	if d.count%500 == 0 {
		d.trim()
	}
	return nil
}

func nullableString(b []byte) interface{} {
	if b == nil {
		return nil
	}
	return string(b)
}

func (d *DurableLog) trim() {
	_, err := d.db.Exec(`
		DELETE FROM durable_events WHERE id NOT IN (
			SELECT id FROM durable_events ORDER BY id DESC LIMIT ?
		)
	`, durableLogCap)
	if err != nil {
		d.log.Error().Err(err).Msg("durable log trim failed")
	}
}

// Read returns up to count rows with id > startID, oldest first.
func (d *DurableLog) Read(startID int64, count int) ([]*Event, error) {
	if count <= 0 {
		count = 100
	}

	rows, err := d.db.Query(`
		SELECT id, event_id, event_type, severity, asset_symbol, watchdog_name, description, data_json, metadata_json, created_at
		FROM durable_events WHERE id > ? ORDER BY id ASC LIMIT ?
	`, startID, count)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Event
	for rows.Next() {
		var (
			id                                                   int64
			eventID, eventType, severity, description, dataJSON  string
			assetSymbol, watchdogName, metadataJSON              sql.NullString
			createdAt                                            int64
		)
		if err := rows.Scan(&id, &eventID, &eventType, &severity, &assetSymbol, &watchdogName, &description, &dataJSON, &metadataJSON, &createdAt); err != nil {
			return nil, err
		}

		e := &Event{
			EventID:      eventID,
			Type:         EventType(eventType),
			Severity:     Severity(severity),
			AssetSymbol:  assetSymbol.String,
			WatchdogName: watchdogName.String,
			Description:  description,
			Timestamp:    time.Unix(createdAt, 0),
		}
		_ = json.Unmarshal([]byte(dataJSON), &e.Data)
		if metadataJSON.Valid {
			_ = json.Unmarshal([]byte(metadataJSON.String), &e.Metadata)
		}
		out = append(out, e)
	}
	return out, nil
}
