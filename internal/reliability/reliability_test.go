package reliability

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/sentinel-gateway/internal/database"
)

func newDB(t *testing.T, dir, name string) *database.DB {
	t.Helper()
	db, err := database.New(database.Config{
		Path:    filepath.Join(dir, name+".db"),
		Profile: database.ProfileStandard,
		Name:    name,
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMaintenanceJobs_DailyRunsCheckpointAndHealthCheck(t *testing.T) {
	dir := t.TempDir()
	dbs := DatabaseSet{
		"cache":  newDB(t, dir, "cache"),
		"events": newDB(t, dir, "events"),
	}
	m := NewMaintenanceJobs(dbs, dir, zerolog.Nop())
	require.NoError(t, m.Daily(context.Background()))
}

func TestMaintenanceJobs_WeeklyVacuumsEphemeralDatabases(t *testing.T) {
	dir := t.TempDir()
	dbs := DatabaseSet{
		"cache":     newDB(t, dir, "cache"),
		"providers": newDB(t, dir, "providers"),
	}
	m := NewMaintenanceJobs(dbs, dir, zerolog.Nop())
	assert.NoError(t, m.Weekly())
}

func TestMaintenanceJobs_MonthlyVacuumsEverything(t *testing.T) {
	dir := t.TempDir()
	dbs := DatabaseSet{
		"alerts": newDB(t, dir, "alerts"),
	}
	m := NewMaintenanceJobs(dbs, dir, zerolog.Nop())
	assert.NoError(t, m.Monthly(context.Background()))
}

func TestParseBackupTimestamp_RoundTripsFromFormattedName(t *testing.T) {
	name := "gateway-backup-2026-01-08-143022.tar.gz"
	ts, err := parseBackupTimestamp(name)
	require.NoError(t, err)
	assert.Equal(t, 2026, ts.Year())
	assert.Equal(t, 8, ts.Day())
}

func TestParseBackupTimestamp_RejectsUnrelatedFilename(t *testing.T) {
	_, err := parseBackupTimestamp("notes.txt")
	assert.Error(t, err)
}

func TestChecksumFile_IsStableForSameContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.db")
	require.NoError(t, os.WriteFile(path, []byte("hello world"), 0o644))

	sum1, err := checksumFile(path)
	require.NoError(t, err)
	sum2, err := checksumFile(path)
	require.NoError(t, err)
	assert.Equal(t, sum1, sum2)
	assert.Contains(t, sum1, "sha256:")
}

func TestScheduler_ScheduleJobRunsNamedJob(t *testing.T) {
	dir := t.TempDir()
	dbs := DatabaseSet{"cache": newDB(t, dir, "cache")}
	jobs := NewMaintenanceJobs(dbs, dir, zerolog.Nop())

	s := NewScheduler(zerolog.Nop())
	require.NoError(t, s.ScheduleJob("@every 1h", NewWeeklyMaintenanceJob(jobs)))
	s.Start()
	defer s.Stop()
}

func TestCreateArchive_ProducesReadableTarGz(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "alerts.db"), []byte("db-bytes"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "manifest.json"), []byte("{}"), 0o644))

	archivePath := filepath.Join(dir, "out.tar.gz")
	require.NoError(t, createArchive(archivePath, dir, []string{"alerts", "manifest"}))

	f, err := os.Open(archivePath)
	require.NoError(t, err)
	defer f.Close()

	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	defer gz.Close()

	names := map[string]bool{}
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err != nil {
			break
		}
		names[hdr.Name] = true
	}
	assert.True(t, names["alerts.db"])
	assert.True(t, names["manifest.json"])
}
