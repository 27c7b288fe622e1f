package di

import (
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/aristath/sentinel-gateway/internal/database"
)

// initializeDatabases opens and migrates the gateway's five logical
// databases, in the order the schema files are named in
// internal/database/db.go. Each failure closes whatever already opened
// before returning, mirroring the teacher's staged-cleanup style.
func initializeDatabases(dataDir string, log zerolog.Logger) (*Container, error) {
	c := &Container{Log: log}

	eventsDB, err := database.New(database.Config{
		Path: filepath.Join(dataDir, "events.db"), Profile: database.ProfileStandard, Name: "events",
	})
	if err != nil {
		return nil, fmt.Errorf("di: open events db: %w", err)
	}
	if err := eventsDB.Migrate(); err != nil {
		eventsDB.Close()
		return nil, fmt.Errorf("di: migrate events db: %w", err)
	}
	c.EventsDB = eventsDB

	alertsDB, err := database.New(database.Config{
		Path: filepath.Join(dataDir, "alerts.db"), Profile: database.ProfileStandard, Name: "alerts",
	})
	if err != nil {
		eventsDB.Close()
		return nil, fmt.Errorf("di: open alerts db: %w", err)
	}
	if err := alertsDB.Migrate(); err != nil {
		eventsDB.Close()
		alertsDB.Close()
		return nil, fmt.Errorf("di: migrate alerts db: %w", err)
	}
	c.AlertsDB = alertsDB

	complianceDB, err := database.New(database.Config{
		Path: filepath.Join(dataDir, "compliance.db"), Profile: database.ProfileLedger, Name: "compliance",
	})
	if err != nil {
		eventsDB.Close()
		alertsDB.Close()
		return nil, fmt.Errorf("di: open compliance db: %w", err)
	}
	if err := complianceDB.Migrate(); err != nil {
		eventsDB.Close()
		alertsDB.Close()
		complianceDB.Close()
		return nil, fmt.Errorf("di: migrate compliance db: %w", err)
	}
	c.ComplianceDB = complianceDB

	cacheDB, err := database.New(database.Config{
		Path: filepath.Join(dataDir, "cache.db"), Profile: database.ProfileCache, Name: "cache",
	})
	if err != nil {
		eventsDB.Close()
		alertsDB.Close()
		complianceDB.Close()
		return nil, fmt.Errorf("di: open cache db: %w", err)
	}
	if err := cacheDB.Migrate(); err != nil {
		eventsDB.Close()
		alertsDB.Close()
		complianceDB.Close()
		cacheDB.Close()
		return nil, fmt.Errorf("di: migrate cache db: %w", err)
	}
	c.CacheDB = cacheDB

	providersDB, err := database.New(database.Config{
		Path: filepath.Join(dataDir, "providers.db"), Profile: database.ProfileStandard, Name: "providers",
	})
	if err != nil {
		eventsDB.Close()
		alertsDB.Close()
		complianceDB.Close()
		cacheDB.Close()
		return nil, fmt.Errorf("di: open providers db: %w", err)
	}
	if err := providersDB.Migrate(); err != nil {
		eventsDB.Close()
		alertsDB.Close()
		complianceDB.Close()
		cacheDB.Close()
		providersDB.Close()
		return nil, fmt.Errorf("di: migrate providers db: %w", err)
	}
	c.ProvidersDB = providersDB

	c.databases = map[string]*database.DB{
		"events":     eventsDB,
		"alerts":     alertsDB,
		"compliance": complianceDB,
		"cache":      cacheDB,
		"providers":  providersDB,
	}

	return c, nil
}
