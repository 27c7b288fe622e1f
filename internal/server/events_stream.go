package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/sentinel-gateway/internal/events"
)

// EventsStreamHandler serves GET /api/events/stream as Server-Sent Events,
// forwarding everything emitted on the bus (or a filtered subset) to each
// connected client for as long as the connection stays open.
type EventsStreamHandler struct {
	eventBus *events.Bus
	log      zerolog.Logger
}

func NewEventsStreamHandler(eventBus *events.Bus, log zerolog.Logger) *EventsStreamHandler {
	return &EventsStreamHandler{
		eventBus: eventBus,
		log:      log.With().Str("component", "events_stream").Logger(),
	}
}

// ServeHTTP streams events matching the optional "types" and "severities"
// query parameters (comma-separated), heartbeating every 30s so
// intermediate proxies don't close the connection as idle.
func (h *EventsStreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	filter := filterFromQuery(r)

	h.log.Info().Str("remote", r.RemoteAddr).Msg("client connected to event stream")

	eventChan := make(chan *events.Event, 100)
	subID := h.eventBus.Subscribe(func(e *events.Event) {
		select {
		case eventChan <- e:
		default:
			h.log.Warn().Str("event_id", e.EventID).Msg("stream channel full, dropping event")
		}
	}, filter, "")
	defer h.eventBus.Unsubscribe(subID)

	fmt.Fprintf(w, "data: %s\n\n", encode(map[string]interface{}{"type": "connected"}))
	flusher.Flush()

	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	done := r.Context().Done()
	for {
		select {
		case <-done:
			h.log.Info().Msg("client disconnected from event stream")
			return

		case e := <-eventChan:
			fmt.Fprintf(w, "data: %s\n\n", encode(e))
			flusher.Flush()

		case <-heartbeat.C:
			fmt.Fprintf(w, "data: %s\n\n", encode(map[string]interface{}{
				"type":      "heartbeat",
				"timestamp": time.Now().Format(time.RFC3339),
			}))
			flusher.Flush()
		}
	}
}

func filterFromQuery(r *http.Request) *events.EventFilter {
	types := r.URL.Query().Get("types")
	severities := r.URL.Query().Get("severities")
	if types == "" && severities == "" {
		return nil
	}
	filter := &events.EventFilter{}
	if types != "" {
		for _, t := range strings.Split(types, ",") {
			filter.EventTypes = append(filter.EventTypes, events.EventType(strings.TrimSpace(t)))
		}
	}
	if severities != "" {
		for _, sv := range strings.Split(severities, ",") {
			filter.Severities = append(filter.Severities, events.Severity(strings.TrimSpace(sv)))
		}
	}
	return filter
}

func encode(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		return `{"error":"failed to encode event"}`
	}
	return string(data)
}
