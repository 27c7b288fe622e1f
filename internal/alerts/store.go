package alerts

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/aristath/sentinel-gateway/internal/database"
)

// Store is the SQLite-backed CRUD layer for AlertConfig, matching
// alerts_schema.sql's alert_configs table.
type Store struct {
	db *database.DB
}

func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

// Create inserts a new alert, generating an ID if the caller left it blank.
func (s *Store) Create(a *AlertConfig) error {
	if a.AlertID == "" {
		a.AlertID = uuid.NewString()
	}
	now := time.Now().Unix()
	a.CreatedAtUnix = now
	a.UpdatedAtUnix = now

	triggerJSON, err := json.Marshal(a.Trigger)
	if err != nil {
		return fmt.Errorf("alerts: marshal trigger: %w", err)
	}
	deliveryJSON, err := json.Marshal(a.DeliveryMethods)
	if err != nil {
		return fmt.Errorf("alerts: marshal delivery methods: %w", err)
	}
	emailJSON, err := marshalOptional(a.EmailCfg)
	if err != nil {
		return err
	}
	telegramJSON, err := marshalOptional(a.TelegramCfg)
	if err != nil {
		return err
	}
	webhookJSON, err := marshalOptional(a.WebhookCfg)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
		INSERT INTO alert_configs
			(alert_id, name, description, enabled, trigger_json, delivery_methods_json,
			 email_cfg_json, telegram_cfg_json, webhook_cfg_json, cooldown_seconds,
			 trigger_count, last_triggered, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.AlertID, a.Name, a.Description, boolToInt(a.Enabled), string(triggerJSON), string(deliveryJSON),
		emailJSON, telegramJSON, webhookJSON, a.CooldownSeconds,
		a.TriggerCount, nullableInt64(a.LastTriggeredUnix), a.CreatedAtUnix, a.UpdatedAtUnix,
	)
	if err != nil {
		return fmt.Errorf("alerts: insert: %w", err)
	}
	return nil
}

// Update overwrites the mutable fields of an existing alert.
func (s *Store) Update(a *AlertConfig) error {
	a.UpdatedAtUnix = time.Now().Unix()

	triggerJSON, err := json.Marshal(a.Trigger)
	if err != nil {
		return fmt.Errorf("alerts: marshal trigger: %w", err)
	}
	deliveryJSON, err := json.Marshal(a.DeliveryMethods)
	if err != nil {
		return fmt.Errorf("alerts: marshal delivery methods: %w", err)
	}
	emailJSON, err := marshalOptional(a.EmailCfg)
	if err != nil {
		return err
	}
	telegramJSON, err := marshalOptional(a.TelegramCfg)
	if err != nil {
		return err
	}
	webhookJSON, err := marshalOptional(a.WebhookCfg)
	if err != nil {
		return err
	}

	res, err := s.db.Exec(`
		UPDATE alert_configs SET
			name = ?, description = ?, enabled = ?, trigger_json = ?, delivery_methods_json = ?,
			email_cfg_json = ?, telegram_cfg_json = ?, webhook_cfg_json = ?, cooldown_seconds = ?,
			trigger_count = ?, last_triggered = ?, updated_at = ?
		WHERE alert_id = ?`,
		a.Name, a.Description, boolToInt(a.Enabled), string(triggerJSON), string(deliveryJSON),
		emailJSON, telegramJSON, webhookJSON, a.CooldownSeconds,
		a.TriggerCount, nullableInt64(a.LastTriggeredUnix), a.UpdatedAtUnix, a.AlertID,
	)
	if err != nil {
		return fmt.Errorf("alerts: update: %w", err)
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("alerts: no alert found with id %q", a.AlertID)
	}
	return nil
}

// RecordTrigger bumps trigger_count and last_triggered for a fired alert.
func (s *Store) RecordTrigger(alertID string, at time.Time) error {
	_, err := s.db.Exec(
		`UPDATE alert_configs SET trigger_count = trigger_count + 1, last_triggered = ?, updated_at = ? WHERE alert_id = ?`,
		at.Unix(), time.Now().Unix(), alertID,
	)
	if err != nil {
		return fmt.Errorf("alerts: record trigger: %w", err)
	}
	return nil
}

// Delete removes an alert by id.
func (s *Store) Delete(alertID string) error {
	_, err := s.db.Exec(`DELETE FROM alert_configs WHERE alert_id = ?`, alertID)
	if err != nil {
		return fmt.Errorf("alerts: delete: %w", err)
	}
	return nil
}

// Get fetches a single alert by id.
func (s *Store) Get(alertID string) (*AlertConfig, error) {
	row := s.db.QueryRow(`
		SELECT alert_id, name, description, enabled, trigger_json, delivery_methods_json,
		       email_cfg_json, telegram_cfg_json, webhook_cfg_json, cooldown_seconds,
		       trigger_count, last_triggered, created_at, updated_at
		FROM alert_configs WHERE alert_id = ?`, alertID)
	return scanAlert(row)
}

// List returns every alert, regardless of enabled state.
func (s *Store) List() ([]*AlertConfig, error) {
	rows, err := s.db.Query(`
		SELECT alert_id, name, description, enabled, trigger_json, delivery_methods_json,
		       email_cfg_json, telegram_cfg_json, webhook_cfg_json, cooldown_seconds,
		       trigger_count, last_triggered, created_at, updated_at
		FROM alert_configs`)
	if err != nil {
		return nil, fmt.Errorf("alerts: list: %w", err)
	}
	defer rows.Close()

	var out []*AlertConfig
	for rows.Next() {
		a, err := scanAlertRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAlert(row *sql.Row) (*AlertConfig, error) {
	return scanAlertRow(row)
}

func scanAlertRow(row rowScanner) (*AlertConfig, error) {
	var (
		a                                     AlertConfig
		enabled                               int
		triggerJSON, deliveryJSON             string
		emailJSON, telegramJSON, webhookJSON sql.NullString
		lastTriggered                         sql.NullInt64
	)

	if err := row.Scan(
		&a.AlertID, &a.Name, &a.Description, &enabled, &triggerJSON, &deliveryJSON,
		&emailJSON, &telegramJSON, &webhookJSON, &a.CooldownSeconds,
		&a.TriggerCount, &lastTriggered, &a.CreatedAtUnix, &a.UpdatedAtUnix,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("alerts: not found: %w", err)
		}
		return nil, fmt.Errorf("alerts: scan: %w", err)
	}

	a.Enabled = enabled != 0
	if lastTriggered.Valid {
		a.LastTriggeredUnix = lastTriggered.Int64
	}

	if err := json.Unmarshal([]byte(triggerJSON), &a.Trigger); err != nil {
		return nil, fmt.Errorf("alerts: unmarshal trigger: %w", err)
	}
	if err := json.Unmarshal([]byte(deliveryJSON), &a.DeliveryMethods); err != nil {
		return nil, fmt.Errorf("alerts: unmarshal delivery methods: %w", err)
	}
	if emailJSON.Valid {
		a.EmailCfg = &EmailConfig{}
		if err := json.Unmarshal([]byte(emailJSON.String), a.EmailCfg); err != nil {
			return nil, fmt.Errorf("alerts: unmarshal email config: %w", err)
		}
	}
	if telegramJSON.Valid {
		a.TelegramCfg = &TelegramConfig{}
		if err := json.Unmarshal([]byte(telegramJSON.String), a.TelegramCfg); err != nil {
			return nil, fmt.Errorf("alerts: unmarshal telegram config: %w", err)
		}
	}
	if webhookJSON.Valid {
		a.WebhookCfg = &WebhookConfig{}
		if err := json.Unmarshal([]byte(webhookJSON.String), a.WebhookCfg); err != nil {
			return nil, fmt.Errorf("alerts: unmarshal webhook config: %w", err)
		}
	}

	return &a, nil
}

func marshalOptional(v interface{}) (interface{}, error) {
	switch cfg := v.(type) {
	case *EmailConfig:
		if cfg == nil {
			return nil, nil
		}
		b, err := json.Marshal(cfg)
		return string(b), err
	case *TelegramConfig:
		if cfg == nil {
			return nil, nil
		}
		b, err := json.Marshal(cfg)
		return string(b), err
	case *WebhookConfig:
		if cfg == nil {
			return nil, nil
		}
		b, err := json.Marshal(cfg)
		return string(b), err
	default:
		return nil, nil
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableInt64(v int64) interface{} {
	if v == 0 {
		return nil
	}
	return v
}
