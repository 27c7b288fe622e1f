package alerts

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"net/smtp"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/sentinel-gateway/internal/events"
)

const deliveryQueueCapacity = 512

type deliveryJob struct {
	cfg    *AlertConfig
	event  *events.Event
	method DeliveryMethod
}

// Deliverer fans out triggered-alert notifications to email, Telegram, and
// webhook destinations. Deliveries are coroutine-scheduled: a bounded
// queue feeds a small worker pool rather than spawning one goroutine per
// delivery attempt, so a burst of triggers can't fork unbounded work.
type Deliverer struct {
	client *http.Client
	log    zerolog.Logger
	queue  chan deliveryJob
	wg     sync.WaitGroup
}

func NewDeliverer(log zerolog.Logger, workers int) *Deliverer {
	if workers <= 0 {
		workers = 4
	}
	d := &Deliverer{
		client: &http.Client{Timeout: 10 * time.Second},
		log:    log.With().Str("component", "alert_delivery").Logger(),
		queue:  make(chan deliveryJob, deliveryQueueCapacity),
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

func (d *Deliverer) worker() {
	defer d.wg.Done()
	for job := range d.queue {
		d.deliver(job)
	}
}

// Stop closes the queue and waits for in-flight deliveries to finish.
func (d *Deliverer) Stop() {
	close(d.queue)
	d.wg.Wait()
}

// DispatchAll enqueues one job per enabled delivery method. A full queue
// drops the job with a warning rather than blocking the caller; the next
// matching event gets another chance.
func (d *Deliverer) DispatchAll(ctx context.Context, cfg *AlertConfig, ev *events.Event) {
	for _, method := range cfg.DeliveryMethods {
		job := deliveryJob{cfg: cfg, event: ev, method: method}
		select {
		case d.queue <- job:
		default:
			d.log.Warn().Str("alert_id", cfg.AlertID).Str("method", string(method)).Msg("delivery queue full, dropping")
		}
	}
}

func (d *Deliverer) deliver(job deliveryJob) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	var err error
	switch job.method {
	case DeliveryEmail:
		err = d.deliverEmail(job.cfg, job.event)
	case DeliveryTelegram:
		err = d.deliverTelegram(ctx, job.cfg, job.event)
	case DeliveryWebhook:
		err = d.deliverWebhook(ctx, job.cfg, job.event)
	default:
		err = fmt.Errorf("unknown delivery method %q", job.method)
	}

	if err != nil {
		d.log.Error().Err(err).Str("alert_id", job.cfg.AlertID).Str("method", string(job.method)).
			Msg("alert delivery failed")
	}
}

func (d *Deliverer) deliverEmail(cfg *AlertConfig, ev *events.Event) error {
	if cfg.EmailCfg == nil {
		return fmt.Errorf("no email config on alert %s", cfg.AlertID)
	}
	ec := cfg.EmailCfg

	body := emailBody(cfg, ev)
	addr := fmt.Sprintf("%s:%d", ec.SMTPHost, ec.SMTPPort)

	auth := smtp.PlainAuth("", ec.Username, ec.Password, ec.SMTPHost)
	tlsCfg := &tls.Config{ServerName: ec.SMTPHost, MinVersion: tls.VersionTLS12}

	conn, err := tls.Dial("tcp", addr, tlsCfg)
	if err != nil {
		return fmt.Errorf("smtp tls dial: %w", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, ec.SMTPHost)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	defer client.Close()

	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("smtp auth: %w", err)
	}
	if err := client.Mail(ec.From); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	for _, to := range ec.To {
		if err := client.Rcpt(to); err != nil {
			return fmt.Errorf("smtp rcpt to %s: %w", to, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("smtp write body: %w", err)
	}
	return w.Close()
}

func emailBody(cfg *AlertConfig, ev *events.Event) []byte {
	var buf bytes.Buffer
	buf.WriteString("Subject: [" + string(ev.Severity) + "] " + cfg.Name + "\r\n")
	buf.WriteString("Content-Type: text/html; charset=UTF-8\r\n\r\n")
	buf.WriteString("<h2>" + cfg.Name + "</h2>")
	buf.WriteString("<p><b>Asset:</b> " + ev.AssetSymbol + "</p>")
	buf.WriteString("<p><b>Severity:</b> " + string(ev.Severity) + "</p>")
	buf.WriteString("<p>" + ev.Description + "</p>")
	return buf.Bytes()
}

func (d *Deliverer) deliverTelegram(ctx context.Context, cfg *AlertConfig, ev *events.Event) error {
	if cfg.TelegramCfg == nil {
		return fmt.Errorf("no telegram config on alert %s", cfg.AlertID)
	}
	tc := cfg.TelegramCfg
	text := fmt.Sprintf("[%s] %s\n%s", ev.Severity, cfg.Name, ev.Description)

	var lastErr error
	for _, chatID := range tc.ChatIDs {
		url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", tc.BotToken)
		payload, _ := json.Marshal(map[string]string{"chat_id": chatID, "text": text})

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			lastErr = err
			continue
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := d.client.Do(req)
		if err != nil {
			lastErr = err
			d.log.Warn().Err(err).Str("chat_id", chatID).Msg("telegram delivery failed")
			continue
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("telegram returned %d for chat %s", resp.StatusCode, chatID)
			d.log.Warn().Int("status", resp.StatusCode).Str("chat_id", chatID).Msg("telegram non-200 response")
		}
	}
	return lastErr
}

func (d *Deliverer) deliverWebhook(ctx context.Context, cfg *AlertConfig, ev *events.Event) error {
	if cfg.WebhookCfg == nil {
		return fmt.Errorf("no webhook config on alert %s", cfg.AlertID)
	}
	wc := cfg.WebhookCfg

	method := wc.Method
	if method == "" {
		method = http.MethodPost
	}

	payload, err := json.Marshal(map[string]interface{}{
		"alert_id":   cfg.AlertID,
		"alert_name": cfg.Name,
		"event":      ev,
		"timestamp":  time.Now().Unix(),
	})
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, wc.URL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if wc.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+wc.BearerToken)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	return nil
}
