// Package di wires the gateway's packages together into one Container:
// five SQLite databases, the provider registry, the arbitration engine,
// the tiered cache, the event bus, watchdogs, the compliance guardrail,
// the alert engine, and the reliability scheduler. Handlers and the
// process entrypoint depend on the Container, not on the individual
// packages' constructors.
package di

import (
	"github.com/rs/zerolog"

	"github.com/aristath/sentinel-gateway/internal/alerts"
	"github.com/aristath/sentinel-gateway/internal/arbitration"
	"github.com/aristath/sentinel-gateway/internal/cache"
	"github.com/aristath/sentinel-gateway/internal/database"
	"github.com/aristath/sentinel-gateway/internal/events"
	"github.com/aristath/sentinel-gateway/internal/guardrail"
	"github.com/aristath/sentinel-gateway/internal/providers"
	"github.com/aristath/sentinel-gateway/internal/reliability"
	"github.com/aristath/sentinel-gateway/internal/watchdog"
)

// Container holds every constructed dependency. Built once by Wire at
// startup and closed once by Close at shutdown.
type Container struct {
	Log zerolog.Logger

	// Databases, keyed the same way as internal/database/db.go's schema map.
	EventsDB     *database.DB
	AlertsDB     *database.DB
	ComplianceDB *database.DB
	CacheDB      *database.DB
	ProvidersDB  *database.DB

	EventBus    *events.Bus
	Broadcaster *events.WebSocketBroadcaster

	Registry    *providers.Registry
	Arbitration *arbitration.Engine
	Cache       *cache.Manager

	Watchdogs *watchdog.Manager

	Guardrail      *guardrail.Guardrail
	GuardrailAudit *guardrail.Auditor

	AlertStore  *alerts.Store
	AlertEngine *alerts.Engine
	deliverer   *alerts.Deliverer

	Scheduler       *reliability.Scheduler
	MaintenanceJobs *reliability.MaintenanceJobs
	BackupService   *reliability.BackupService // nil unless Backup.Enabled

	databases reliability.DatabaseSet
}

// Close releases every held resource: the alert deliverer's worker pool,
// then every database, collecting and returning the first error while
// still attempting to close the rest.
func (c *Container) Close() error {
	if c.deliverer != nil {
		c.deliverer.Stop()
	}

	var firstErr error
	for _, db := range []*database.DB{c.EventsDB, c.AlertsDB, c.ComplianceDB, c.CacheDB, c.ProvidersDB} {
		if db == nil {
			continue
		}
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
