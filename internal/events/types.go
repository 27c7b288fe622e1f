// Package events implements the in-memory publish/subscribe stream shared
// by watchdogs, the cache manager, and the alert engine: typed events,
// filtering, ring-buffer history, an optional durable SQLite-backed log,
// and an optional websocket broadcaster.
package events

import "time"

// EventType is the closed taxonomy of events the stream carries.
type EventType string

const (
	EventEarningsAnomaly      EventType = "earnings_anomaly"
	EventUnusualVolume        EventType = "unusual_volume"
	EventWhaleMovement        EventType = "whale_movement"
	EventFundingRateAnomaly   EventType = "funding_spike"
	EventLiquidityDrop        EventType = "liquidity_drop"
	EventCorrelationBreakdown EventType = "correlation_break"
	EventExchangeOutage       EventType = "exchange_outage"
	EventPriceAnomaly         EventType = "price_anomaly"
	EventFlashCrash           EventType = "flash_crash"
	EventProviderDegraded     EventType = "provider_degraded"
	EventProviderRecovered    EventType = "provider_recovered"
	EventCacheInvalidated     EventType = "cache_invalidated"
	EventWatchdogHealthChange EventType = "watchdog_health_change"
	EventComplianceBlocked    EventType = "compliance_blocked"
	EventAlertTriggered       EventType = "alert_triggered"
)

// Severity is the closed set of event severities.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Event is a single item on the stream.
type Event struct {
	EventID      string                 `json:"event_id"`
	Type         EventType              `json:"type"`
	Severity     Severity               `json:"severity"`
	AssetSymbol  string                 `json:"asset_symbol,omitempty"`
	Description  string                 `json:"description"`
	Data         map[string]interface{} `json:"data"`
	Timestamp    time.Time              `json:"timestamp"`
	WatchdogName string                 `json:"watchdog_name,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// EventFilter matches are AND across specified dimensions, OR within each
// list. An omitted (nil) dimension is a wildcard.
type EventFilter struct {
	EventTypes    []EventType
	Severities    []Severity
	AssetSymbols  []string
	WatchdogNames []string
}

// Matches reports whether an event satisfies every specified dimension of
// the filter.
func (f *EventFilter) Matches(e *Event) bool {
	if f == nil {
		return true
	}
	if len(f.EventTypes) > 0 && !containsType(f.EventTypes, e.Type) {
		return false
	}
	if len(f.Severities) > 0 && !containsSeverity(f.Severities, e.Severity) {
		return false
	}
	if len(f.AssetSymbols) > 0 && !containsString(f.AssetSymbols, e.AssetSymbol) {
		return false
	}
	if len(f.WatchdogNames) > 0 && !containsString(f.WatchdogNames, e.WatchdogName) {
		return false
	}
	return true
}

func containsType(list []EventType, v EventType) bool {
	for _, t := range list {
		if t == v {
			return true
		}
	}
	return false
}

func containsSeverity(list []Severity, v Severity) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// IsSignificant reports whether an event should trigger cache invalidation
// by pattern: watchdog critical/high severity, or a price or earnings
// anomaly of any severity.
func (e *Event) IsSignificant() bool {
	if e.Severity == SeverityCritical || e.Severity == SeverityHigh {
		return true
	}
	if e.Type == EventPriceAnomaly || e.Type == EventEarningsAnomaly {
		return true
	}
	return false
}
