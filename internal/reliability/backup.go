package reliability

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"

	"github.com/aristath/sentinel-gateway/internal/scheduler/base"
)

// R2Client wraps an S3-compatible client (Cloudflare R2) for archive
// upload, listing, and deletion. R2 speaks the S3 API, so the stock
// aws-sdk-go-v2 S3 client and upload manager work unmodified against it
// once pointed at the account's R2 endpoint.
type R2Client struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
}

func NewR2Client(client *s3.Client, bucket string) *R2Client {
	return &R2Client{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   bucket,
	}
}

func (c *R2Client) Upload(ctx context.Context, key string, body io.Reader, size int64) error {
	_, err := c.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(c.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return fmt.Errorf("r2: upload %s: %w", key, err)
	}
	return nil
}

func (c *R2Client) List(ctx context.Context, prefix string) ([]types.Object, error) {
	var out []types.Object
	var token *string
	for {
		page, err := c.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(c.bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("r2: list %s: %w", prefix, err)
		}
		out = append(out, page.Contents...)
		if !page.IsTruncated {
			break
		}
		token = page.NextContinuationToken
	}
	return out, nil
}

func (c *R2Client) Delete(ctx context.Context, key string) error {
	_, err := c.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("r2: delete %s: %w", key, err)
	}
	return nil
}

// BackupMetadata describes one archived snapshot of the gateway's databases.
type BackupMetadata struct {
	Timestamp time.Time          `json:"timestamp"`
	Databases []DatabaseMetadata `json:"databases"`
}

type DatabaseMetadata struct {
	Name      string `json:"name"`
	Filename  string `json:"filename"`
	SizeBytes int64  `json:"size_bytes"`
	Checksum  string `json:"checksum"`
}

// BackupInfo describes one archive already stored in R2.
type BackupInfo struct {
	Filename  string
	Timestamp time.Time
	SizeBytes int64
	AgeHours  int64
}

// BackupService snapshots every database with VACUUM INTO, archives the
// snapshots as tar.gz, and ships the archive to R2.
type BackupService struct {
	databases DatabaseSet
	r2        *R2Client
	dataDir   string
	log       zerolog.Logger
}

func NewBackupService(databases DatabaseSet, r2 *R2Client, dataDir string, log zerolog.Logger) *BackupService {
	return &BackupService{
		databases: databases,
		r2:        r2,
		dataDir:   dataDir,
		log:       log.With().Str("component", "backup").Logger(),
	}
}

// CreateAndUpload snapshots all databases, tars and gzips them with a
// metadata manifest, and uploads the archive to R2.
func (s *BackupService) CreateAndUpload(ctx context.Context) error {
	start := time.Now()
	staging, err := os.MkdirTemp(s.dataDir, "gateway-backup-*")
	if err != nil {
		return fmt.Errorf("reliability: staging dir: %w", err)
	}
	defer os.RemoveAll(staging)

	meta := BackupMetadata{Timestamp: time.Now().UTC()}
	names := make([]string, 0, len(s.databases))
	for name := range s.databases {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		dbPath := filepath.Join(staging, name+".db")
		if _, err := s.databases[name].Conn().ExecContext(ctx, fmt.Sprintf("VACUUM INTO '%s'", dbPath)); err != nil {
			return fmt.Errorf("reliability: vacuum into %s: %w", name, err)
		}
		info, err := os.Stat(dbPath)
		if err != nil {
			return fmt.Errorf("reliability: stat %s backup: %w", name, err)
		}
		checksum, err := checksumFile(dbPath)
		if err != nil {
			return fmt.Errorf("reliability: checksum %s: %w", name, err)
		}
		meta.Databases = append(meta.Databases, DatabaseMetadata{
			Name: name, Filename: name + ".db", SizeBytes: info.Size(), Checksum: checksum,
		})
	}

	metaPath := filepath.Join(staging, "manifest.json")
	if err := writeJSON(metaPath, meta); err != nil {
		return fmt.Errorf("reliability: write manifest: %w", err)
	}

	archiveName := fmt.Sprintf("gateway-backup-%s.tar.gz", time.Now().Format("2006-01-02-150405"))
	archivePath := filepath.Join(staging, archiveName)
	if err := createArchive(archivePath, staging, append(names, "manifest")); err != nil {
		return fmt.Errorf("reliability: create archive: %w", err)
	}

	archiveInfo, err := os.Stat(archivePath)
	if err != nil {
		return fmt.Errorf("reliability: stat archive: %w", err)
	}
	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("reliability: open archive: %w", err)
	}
	defer f.Close()

	if err := s.r2.Upload(ctx, archiveName, f, archiveInfo.Size()); err != nil {
		return err
	}

	s.log.Info().
		Str("archive", archiveName).
		Int64("size_mb", archiveInfo.Size()/1024/1024).
		Dur("elapsed", time.Since(start)).
		Msg("backup uploaded")
	return nil
}

// ListBackups returns archives in R2, newest first.
func (s *BackupService) ListBackups(ctx context.Context) ([]BackupInfo, error) {
	objects, err := s.r2.List(ctx, "gateway-backup-")
	if err != nil {
		return nil, err
	}
	now := time.Now()
	out := make([]BackupInfo, 0, len(objects))
	for _, obj := range objects {
		if obj.Key == nil {
			continue
		}
		name := *obj.Key
		ts, err := parseBackupTimestamp(name)
		if err != nil {
			continue
		}
		out = append(out, BackupInfo{Filename: name, Timestamp: ts, SizeBytes: obj.Size, AgeHours: int64(now.Sub(ts).Hours())})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out, nil
}

// RotateOldBackups deletes archives older than retentionDays, always
// keeping at least the 3 newest regardless of age.
func (s *BackupService) RotateOldBackups(ctx context.Context, retentionDays int) error {
	const minKeep = 3
	backups, err := s.ListBackups(ctx)
	if err != nil {
		return err
	}
	if len(backups) <= minKeep || retentionDays <= 0 {
		return nil
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	deleted := 0
	for i, b := range backups {
		if i < minKeep || !b.Timestamp.Before(cutoff) {
			continue
		}
		if err := s.r2.Delete(ctx, b.Filename); err != nil {
			s.log.Error().Err(err).Str("filename", b.Filename).Msg("failed to delete old backup")
			continue
		}
		deleted++
	}
	s.log.Info().Int("deleted", deleted).Int("remaining", len(backups)-deleted).Msg("backup rotation complete")
	return nil
}

const defaultRetentionDays = 30

// BackupJob wraps BackupService.CreateAndUpload for the scheduler.
type BackupJob struct {
	base.JobBase
	service *BackupService
}

func NewBackupJob(service *BackupService) *BackupJob {
	return &BackupJob{service: service}
}

func (j *BackupJob) Name() string { return "offsite_backup" }
func (j *BackupJob) Run() error   { return j.service.CreateAndUpload(context.Background()) }

// BackupRotationJob wraps BackupService.RotateOldBackups for the scheduler.
type BackupRotationJob struct {
	base.JobBase
	service       *BackupService
	retentionDays int
}

func NewBackupRotationJob(service *BackupService, retentionDays int) *BackupRotationJob {
	if retentionDays <= 0 {
		retentionDays = defaultRetentionDays
	}
	return &BackupRotationJob{service: service, retentionDays: retentionDays}
}

func (j *BackupRotationJob) Name() string { return "backup_rotation" }
func (j *BackupRotationJob) Run() error {
	return j.service.RotateOldBackups(context.Background(), j.retentionDays)
}

func parseBackupTimestamp(filename string) (time.Time, error) {
	if !strings.HasPrefix(filename, "gateway-backup-") || !strings.HasSuffix(filename, ".tar.gz") {
		return time.Time{}, fmt.Errorf("reliability: not a backup filename: %s", filename)
	}
	ts := strings.TrimSuffix(strings.TrimPrefix(filename, "gateway-backup-"), ".tar.gz")
	return time.Parse("2006-01-02-150405", ts)
}

func checksumFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("sha256:%x", h.Sum(nil)), nil
}

func writeJSON(path string, v interface{}) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func createArchive(archivePath, sourceDir string, basenames []string) error {
	f, err := os.Create(archivePath)
	if err != nil {
		return err
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	defer gz.Close()
	tw := tar.NewWriter(gz)
	defer tw.Close()

	for _, base := range basenames {
		name := base + ".db"
		if base == "manifest" {
			name = "manifest.json"
		}
		if err := addFileToArchive(tw, filepath.Join(sourceDir, name), name); err != nil {
			return fmt.Errorf("add %s: %w", name, err)
		}
	}
	return nil
}

func addFileToArchive(tw *tar.Writer, path, nameInArchive string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	if err := tw.WriteHeader(&tar.Header{
		Name: nameInArchive, Size: info.Size(), Mode: int64(info.Mode()), ModTime: info.ModTime(),
	}); err != nil {
		return err
	}
	_, err = io.Copy(tw, f)
	return err
}
