package reliability

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/agenttrace/agenttrace/internal/database"
	"github.com/agenttrace/agenttrace/internal/events"
)

const backupPrefix = "agenttrace-backup-"
const backupTimeFormat = "2006-01-02-150405"

// BackupService creates compressed database backups and ships them to an
// object store. Each run is recorded in the cache database's backup_runs
// table.
type BackupService struct {
	store    ObjectStore
	spansDB  *database.DB
	cacheDB  *database.DB
	dataDir  string
	keepLast int
	bus      *events.Bus
	log      zerolog.Logger
}

// BackupMetadata describes the contents of one backup archive.
type BackupMetadata struct {
	Timestamp time.Time          `json:"timestamp"`
	Version   string             `json:"version"`
	Databases []DatabaseMetadata `json:"databases"`
}

// DatabaseMetadata describes a single database file in the backup.
type DatabaseMetadata struct {
	Name      string `json:"name"`
	Filename  string `json:"filename"`
	SizeBytes int64  `json:"size_bytes"`
	Checksum  string `json:"checksum"`
}

// BackupInfo describes a backup stored remotely.
type BackupInfo struct {
	Key       string    `json:"key"`
	Timestamp time.Time `json:"timestamp"`
	SizeBytes int64     `json:"size_bytes"`
	AgeHours  int64     `json:"age_hours"`
}

// NewBackupService creates a backup service.
func NewBackupService(store ObjectStore, spansDB, cacheDB *database.DB, dataDir string, keepLast int, bus *events.Bus, log zerolog.Logger) *BackupService {
	return &BackupService{
		store:    store,
		spansDB:  spansDB,
		cacheDB:  cacheDB,
		dataDir:  dataDir,
		keepLast: keepLast,
		bus:      bus,
		log:      log.With().Str("service", "backup").Logger(),
	}
}

// CreateAndUploadBackup snapshots both databases, archives them and uploads
// the archive. Old remote backups beyond the retention count are pruned.
func (s *BackupService) CreateAndUploadBackup(ctx context.Context) error {
	s.log.Info().Msg("Starting backup")
	startTime := time.Now()

	runID, err := s.recordRunStart(ctx, startTime)
	if err != nil {
		return err
	}

	key, size, pruned, err := s.runBackup(ctx, startTime)
	if err != nil {
		s.recordRunFinish(ctx, runID, "failed", key, size, err)
		if s.bus != nil {
			s.bus.Publish("reliability", &events.ErrorEventData{
				Error:   err.Error(),
				Context: map[string]interface{}{"context": "backup"},
			})
		}
		return err
	}
	s.recordRunFinish(ctx, runID, "completed", key, size, nil)

	if s.bus != nil {
		s.bus.Publish("reliability", &events.BackupCompletedData{
			RemoteKey: key,
			SizeBytes: size,
			Pruned:    pruned,
		})
	}

	s.log.Info().
		Dur("duration_ms", time.Since(startTime)).
		Str("key", key).
		Int64("size_bytes", size).
		Int("pruned", pruned).
		Msg("Backup completed")

	return nil
}

// runBackup performs the staging, archiving, upload and prune steps.
func (s *BackupService) runBackup(ctx context.Context, startTime time.Time) (string, int64, int, error) {
	stagingDir := filepath.Join(s.dataDir, "backup-staging")
	if err := os.MkdirAll(stagingDir, 0755); err != nil {
		return "", 0, 0, fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(stagingDir)

	metadata := BackupMetadata{
		Timestamp: startTime.UTC(),
		Version:   "1.0.0",
	}

	var stagedFiles []string
	for _, db := range []*database.DB{s.spansDB, s.cacheDB} {
		if db == nil {
			continue
		}
		filename := db.Name() + ".db"
		stagedPath := filepath.Join(stagingDir, filename)

		s.log.Debug().Str("database", db.Name()).Msg("Staging database snapshot")
		if err := snapshotDatabase(ctx, db.Conn(), stagedPath); err != nil {
			return "", 0, 0, fmt.Errorf("failed to snapshot %s: %w", db.Name(), err)
		}

		info, err := os.Stat(stagedPath)
		if err != nil {
			return "", 0, 0, fmt.Errorf("failed to stat %s snapshot: %w", db.Name(), err)
		}
		checksum, err := fileChecksum(stagedPath)
		if err != nil {
			return "", 0, 0, fmt.Errorf("failed to checksum %s snapshot: %w", db.Name(), err)
		}

		metadata.Databases = append(metadata.Databases, DatabaseMetadata{
			Name:      db.Name(),
			Filename:  filename,
			SizeBytes: info.Size(),
			Checksum:  checksum,
		})
		stagedFiles = append(stagedFiles, filename)
	}

	metadataPath := filepath.Join(stagingDir, "backup-metadata.json")
	if err := writeMetadata(metadataPath, metadata); err != nil {
		return "", 0, 0, fmt.Errorf("failed to write metadata: %w", err)
	}
	stagedFiles = append(stagedFiles, "backup-metadata.json")

	key := backupPrefix + startTime.UTC().Format(backupTimeFormat) + ".tar.gz"
	archivePath := filepath.Join(stagingDir, key)
	if err := createArchive(archivePath, stagingDir, stagedFiles); err != nil {
		return "", 0, 0, fmt.Errorf("failed to create archive: %w", err)
	}

	archiveInfo, err := os.Stat(archivePath)
	if err != nil {
		return "", 0, 0, fmt.Errorf("failed to stat archive: %w", err)
	}

	archiveFile, err := os.Open(archivePath)
	if err != nil {
		return "", 0, 0, fmt.Errorf("failed to open archive: %w", err)
	}
	defer archiveFile.Close()

	if err := s.store.Upload(ctx, key, archiveFile, archiveInfo.Size()); err != nil {
		return key, archiveInfo.Size(), 0, fmt.Errorf("failed to upload backup: %w", err)
	}

	pruned, err := s.pruneOldBackups(ctx)
	if err != nil {
		// The backup itself succeeded; log and carry on
		s.log.Warn().Err(err).Msg("Failed to prune old backups")
	}

	return key, archiveInfo.Size(), pruned, nil
}

// ListBackups lists remote backups, newest first.
func (s *BackupService) ListBackups(ctx context.Context) ([]BackupInfo, error) {
	objects, err := s.store.List(ctx, backupPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list backups: %w", err)
	}

	now := time.Now()
	backups := make([]BackupInfo, 0, len(objects))
	for _, obj := range objects {
		if !strings.HasPrefix(obj.Key, backupPrefix) || !strings.HasSuffix(obj.Key, ".tar.gz") {
			continue
		}

		raw := strings.TrimSuffix(strings.TrimPrefix(obj.Key, backupPrefix), ".tar.gz")
		timestamp, err := time.Parse(backupTimeFormat, raw)
		if err != nil {
			s.log.Warn().Str("key", obj.Key).Msg("Failed to parse timestamp from backup key")
			continue
		}

		backups = append(backups, BackupInfo{
			Key:       obj.Key,
			Timestamp: timestamp,
			SizeBytes: obj.SizeBytes,
			AgeHours:  int64(now.Sub(timestamp).Hours()),
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].Timestamp.After(backups[j].Timestamp)
	})
	return backups, nil
}

// pruneOldBackups deletes remote backups beyond the retention count and
// returns the number removed.
func (s *BackupService) pruneOldBackups(ctx context.Context) (int, error) {
	if s.keepLast <= 0 {
		return 0, nil
	}

	backups, err := s.ListBackups(ctx)
	if err != nil {
		return 0, err
	}
	if len(backups) <= s.keepLast {
		return 0, nil
	}

	pruned := 0
	for _, backup := range backups[s.keepLast:] {
		if err := s.store.Delete(ctx, backup.Key); err != nil {
			s.log.Error().Err(err).Str("key", backup.Key).Msg("Failed to delete old backup")
			continue
		}
		s.log.Info().Str("key", backup.Key).Msg("Deleted old backup")
		pruned++
	}
	return pruned, nil
}

// recordRunStart inserts a running backup_runs row.
func (s *BackupService) recordRunStart(ctx context.Context, startTime time.Time) (int64, error) {
	if s.cacheDB == nil {
		return 0, nil
	}
	res, err := s.cacheDB.ExecContext(ctx,
		`INSERT INTO backup_runs (started_at, status) VALUES (?, 'running')`,
		startTime.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("failed to record backup run: %w", err)
	}
	return res.LastInsertId()
}

// recordRunFinish finalizes a backup_runs row.
func (s *BackupService) recordRunFinish(ctx context.Context, runID int64, status, key string, size int64, runErr error) {
	if s.cacheDB == nil {
		return
	}
	var errText sql.NullString
	if runErr != nil {
		errText = sql.NullString{String: runErr.Error(), Valid: true}
	}
	_, err := s.cacheDB.ExecContext(ctx,
		`UPDATE backup_runs SET finished_at = ?, status = ?, remote_key = ?, size_bytes = ?, error = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano), status, key, size, errText, runID)
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to finalize backup run record")
	}
}

// snapshotDatabase writes a consistent copy of an open SQLite database.
// VACUUM INTO produces a compacted snapshot without blocking writers. The
// path is inlined because not every driver supports parameters in VACUUM.
func snapshotDatabase(ctx context.Context, conn *sql.DB, destPath string) error {
	quoted := strings.ReplaceAll(destPath, "'", "''")
	_, err := conn.ExecContext(ctx, fmt.Sprintf("VACUUM INTO '%s'", quoted))
	return err
}

// fileChecksum calculates a SHA256 checksum of a file.
func fileChecksum(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}
	return fmt.Sprintf("sha256:%x", hash.Sum(nil)), nil
}

// writeMetadata writes backup metadata to a JSON file.
func writeMetadata(path string, metadata BackupMetadata) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(metadata)
}

// createArchive creates a tar.gz archive of the named staging files.
func createArchive(archivePath, sourceDir string, filenames []string) error {
	archiveFile, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("failed to create archive file: %w", err)
	}
	defer archiveFile.Close()

	gzipWriter := gzip.NewWriter(archiveFile)
	defer gzipWriter.Close()

	tarWriter := tar.NewWriter(gzipWriter)
	defer tarWriter.Close()

	for _, filename := range filenames {
		if err := addFileToArchive(tarWriter, filepath.Join(sourceDir, filename), filename); err != nil {
			return fmt.Errorf("failed to add %s to archive: %w", filename, err)
		}
	}
	return nil
}

// addFileToArchive adds a single file to a tar archive.
func addFileToArchive(tarWriter *tar.Writer, filePath, nameInArchive string) error {
	file, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return err
	}

	header := &tar.Header{
		Name:    nameInArchive,
		Size:    info.Size(),
		Mode:    int64(info.Mode()),
		ModTime: info.ModTime(),
	}
	if err := tarWriter.WriteHeader(header); err != nil {
		return err
	}
	if _, err := io.Copy(tarWriter, file); err != nil {
		return err
	}
	return nil
}
