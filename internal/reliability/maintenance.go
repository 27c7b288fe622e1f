// Package reliability schedules recurring database maintenance and offsite
// backup jobs for the gateway's five SQLite databases (cache, events,
// providers, compliance, alerts).
package reliability

import (
	"context"
	"fmt"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/aristath/sentinel-gateway/internal/database"
	"github.com/aristath/sentinel-gateway/internal/scheduler/base"
)

// Job is the scheduler's contract for a named, recoverable unit of work.
// Jobs embed base.JobBase to pick up queue-progress plumbing for free.
type Job interface {
	Name() string
	Run() error
}

// Scheduler owns the cron runner and wraps maintenance/backup jobs with
// logging and panic recovery.
type Scheduler struct {
	cron *cron.Cron
	log  zerolog.Logger
}

// NewScheduler builds a cron-backed scheduler. Jobs log their own panics
// via cron's recover middleware so one bad run can't kill the process.
func NewScheduler(log zerolog.Logger) *Scheduler {
	logger := log.With().Str("component", "reliability_scheduler").Logger()
	c := cron.New(cron.WithChain(
		cron.Recover(cron.PrintfLogger(stdLogAdapter{logger})),
	))
	return &Scheduler{cron: c, log: logger}
}

// stdLogAdapter lets robfig/cron's PrintfLogger write through zerolog.
type stdLogAdapter struct{ log zerolog.Logger }

func (a stdLogAdapter) Println(v ...interface{}) { a.log.Info().Msg(fmt.Sprint(v...)) }
func (a stdLogAdapter) Printf(f string, v ...interface{}) {
	a.log.Info().Msg(fmt.Sprintf(f, v...))
}

// Schedule registers a named job at the given cron spec.
func (s *Scheduler) Schedule(spec, name string, fn func() error) error {
	_, err := s.cron.AddFunc(spec, func() {
		start := time.Now()
		if err := fn(); err != nil {
			s.log.Error().Err(err).Str("job", name).Dur("elapsed", time.Since(start)).Msg("job failed")
			return
		}
		s.log.Info().Str("job", name).Dur("elapsed", time.Since(start)).Msg("job completed")
	})
	if err != nil {
		return fmt.Errorf("reliability: schedule %s: %w", name, err)
	}
	return nil
}

// ScheduleJob registers a Job under its own name, reporting failures and
// duration the same way Schedule does.
func (s *Scheduler) ScheduleJob(spec string, job Job) error {
	return s.Schedule(spec, job.Name(), job.Run)
}

// Start begins running scheduled jobs in the background.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop cancels pending runs and waits for in-flight jobs to finish.
func (s *Scheduler) Stop() context.Context { return s.cron.Stop() }

// DatabaseSet names the gateway's five SQLite databases by role.
type DatabaseSet map[string]*database.DB

// MaintenanceJobs performs WAL checkpoint, integrity check, and VACUUM
// across every database in the set.
type MaintenanceJobs struct {
	databases DatabaseSet
	dataDir   string
	log       zerolog.Logger
}

func NewMaintenanceJobs(databases DatabaseSet, dataDir string, log zerolog.Logger) *MaintenanceJobs {
	return &MaintenanceJobs{
		databases: databases,
		dataDir:   dataDir,
		log:       log.With().Str("component", "maintenance").Logger(),
	}
}

// Daily runs the checkpoint-and-health pass: WAL checkpoint every database,
// run an integrity check, and halt on critically low disk space.
func (m *MaintenanceJobs) Daily(ctx context.Context) error {
	for name, db := range m.databases {
		if err := db.HealthCheck(ctx); err != nil {
			return fmt.Errorf("reliability: CRITICAL integrity failure in %s: %w", name, err)
		}
		if err := db.WALCheckpoint("TRUNCATE"); err != nil {
			m.log.Warn().Str("database", name).Err(err).Msg("wal checkpoint failed")
		}
	}
	return m.checkDiskSpace()
}

// Weekly VACUUMs the ephemeral, fast-growing databases (cache, events).
func (m *MaintenanceJobs) Weekly() error {
	for _, name := range []string{"cache", "events"} {
		db, ok := m.databases[name]
		if !ok {
			continue
		}
		if err := db.Vacuum(); err != nil {
			m.log.Error().Str("database", name).Err(err).Msg("vacuum failed")
		}
	}
	return nil
}

// Monthly VACUUMs every database, including the append-mostly ones, and
// logs size metrics for growth trend analysis.
func (m *MaintenanceJobs) Monthly(ctx context.Context) error {
	for name, db := range m.databases {
		if err := db.Vacuum(); err != nil {
			m.log.Error().Str("database", name).Err(err).Msg("vacuum failed")
			continue
		}
		stats, err := db.GetStats()
		if err != nil {
			m.log.Warn().Str("database", name).Err(err).Msg("failed to collect stats")
			continue
		}
		m.log.Info().Str("database", name).Interface("stats", stats).Msg("monthly growth snapshot")
	}
	return nil
}

// checkDiskSpace halts (returns an error) only when free space drops below
// 500MB; it warns at looser thresholds above that.
func (m *MaintenanceJobs) checkDiskSpace() error {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(m.dataDir, &stat); err != nil {
		return fmt.Errorf("reliability: statfs: %w", err)
	}

	availableGB := float64(stat.Bavail*uint64(stat.Bsize)) / 1e9
	switch {
	case availableGB < 0.5:
		return fmt.Errorf("reliability: CRITICAL only %.2fGB free, halting maintenance", availableGB)
	case availableGB < 5.0:
		m.log.Error().Float64("available_gb", availableGB).Msg("low disk space")
	case availableGB < 10.0:
		m.log.Warn().Float64("available_gb", availableGB).Msg("disk space running low")
	}
	return nil
}

// DailyMaintenanceJob wraps MaintenanceJobs.Daily for the scheduler.
type DailyMaintenanceJob struct {
	base.JobBase
	jobs *MaintenanceJobs
}

func NewDailyMaintenanceJob(jobs *MaintenanceJobs) *DailyMaintenanceJob {
	return &DailyMaintenanceJob{jobs: jobs}
}

func (j *DailyMaintenanceJob) Name() string { return "daily_maintenance" }
func (j *DailyMaintenanceJob) Run() error   { return j.jobs.Daily(context.Background()) }

// WeeklyMaintenanceJob wraps MaintenanceJobs.Weekly for the scheduler.
type WeeklyMaintenanceJob struct {
	base.JobBase
	jobs *MaintenanceJobs
}

func NewWeeklyMaintenanceJob(jobs *MaintenanceJobs) *WeeklyMaintenanceJob {
	return &WeeklyMaintenanceJob{jobs: jobs}
}

func (j *WeeklyMaintenanceJob) Name() string { return "weekly_maintenance" }
func (j *WeeklyMaintenanceJob) Run() error   { return j.jobs.Weekly() }

// MonthlyMaintenanceJob wraps MaintenanceJobs.Monthly for the scheduler.
type MonthlyMaintenanceJob struct {
	base.JobBase
	jobs *MaintenanceJobs
}

func NewMonthlyMaintenanceJob(jobs *MaintenanceJobs) *MonthlyMaintenanceJob {
	return &MonthlyMaintenanceJob{jobs: jobs}
}

func (j *MonthlyMaintenanceJob) Name() string { return "monthly_maintenance" }
func (j *MonthlyMaintenanceJob) Run() error   { return j.jobs.Monthly(context.Background()) }
