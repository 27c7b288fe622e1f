// Package alerts implements CRUD for user-defined alerts and an engine
// that subscribes each active alert to the shared event stream, enforces
// per-alert cooldown, and fans out delivery to email/Telegram/webhook.
package alerts

import (
	"time"

	"github.com/aristath/sentinel-gateway/internal/events"
)

// DeliveryMethod is the closed set of ways a triggered alert can notify.
type DeliveryMethod string

const (
	DeliveryEmail    DeliveryMethod = "email"
	DeliveryTelegram DeliveryMethod = "telegram"
	DeliveryWebhook  DeliveryMethod = "webhook"
)

// AlertTrigger is the event-stream filter an alert watches plus the
// human-readable condition it represents.
type AlertTrigger struct {
	Filter      events.EventFilter
	Description string
}

// EmailConfig carries SMTP delivery settings for one alert.
type EmailConfig struct {
	SMTPHost string
	SMTPPort int
	Username string
	Password string
	From     string
	To       []string
}

// TelegramConfig carries bot delivery settings for one alert.
type TelegramConfig struct {
	BotToken string
	ChatIDs  []string
}

// WebhookConfig carries HTTP delivery settings for one alert.
type WebhookConfig struct {
	URL         string
	Method      string
	BearerToken string
}

// AlertConfig is a single user-defined alert definition.
type AlertConfig struct {
	AlertID           string
	Name              string
	Description       string
	Enabled           bool
	Trigger           AlertTrigger
	DeliveryMethods   []DeliveryMethod
	EmailCfg          *EmailConfig
	TelegramCfg       *TelegramConfig
	WebhookCfg        *WebhookConfig
	CooldownSeconds   int
	CreatedAtUnix     int64
	UpdatedAtUnix     int64
	LastTriggeredUnix int64
	TriggerCount      int64
}

func (a *AlertConfig) cooldownElapsed(now time.Time) bool {
	if a.LastTriggeredUnix == 0 {
		return true
	}
	return now.Unix()-a.LastTriggeredUnix >= int64(a.CooldownSeconds)
}
