package staging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/renameio/v2"

	"github.com/lysyi3m/uni-comb/app/university"
)

const (
	JSONFileName = "universities.json"
	CSVFileName  = "universities.csv"
	lockFileName = ".staging.lock"

	lockRetryDelay = 50 * time.Millisecond
)

// ErrNotFound is returned when an artifact has not been written yet.
var ErrNotFound = errors.New("staged artifact not found")

// Store persists one generation of records as a JSON document and a CSV
// table inside a single directory. Each artifact is replaced atomically.
type Store struct {
	dir      string
	jsonPath string
	csvPath  string

	// mu serializes writers within the process; lock only excludes other
	// processes since a flock handle is reentrant.
	mu   sync.Mutex
	lock *flock.Flock
}

func NewStore(dir string) *Store {
	return &Store{
		dir:      dir,
		jsonPath: filepath.Join(dir, JSONFileName),
		csvPath:  filepath.Join(dir, CSVFileName),
		lock:     flock.New(filepath.Join(dir, lockFileName)),
	}
}

func (s *Store) Dir() string      { return s.dir }
func (s *Store) JSONPath() string { return s.jsonPath }
func (s *Store) CSVPath() string  { return s.csvPath }

// EnsureDir creates the data directory if it does not exist.
func (s *Store) EnsureDir() error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create data directory %s: %w", s.dir, err)
	}
	return nil
}

// Write replaces both artifacts with records. The JSON artifact is written
// first. Concurrent writers, including other processes sharing the directory,
// are serialized by a file lock.
func (s *Store) Write(ctx context.Context, records []university.Record) error {
	if err := s.EnsureDir(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	locked, err := s.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("failed to acquire staging lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("failed to acquire staging lock: %s", s.lock.Path())
	}
	defer func() {
		if err := s.lock.Unlock(); err != nil {
			slog.Error("Failed to release staging lock", "path", s.lock.Path(), "error", err)
		}
	}()

	if records == nil {
		records = []university.Record{}
	}

	jsonData, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode JSON artifact: %w", err)
	}
	if err := renameio.WriteFile(s.jsonPath, append(jsonData, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", s.jsonPath, err)
	}

	var csvData bytes.Buffer
	if err := WriteCSV(&csvData, records); err != nil {
		return fmt.Errorf("failed to encode CSV artifact: %w", err)
	}
	if err := renameio.WriteFile(s.csvPath, csvData.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", s.csvPath, err)
	}

	slog.Debug("Artifacts written", "records", len(records), "json", s.jsonPath, "csv", s.csvPath)
	return nil
}

// ReadJSON loads the structured artifact.
func (s *Store) ReadJSON() ([]university.Record, error) {
	data, err := os.ReadFile(s.jsonPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read %s: %w", s.jsonPath, err)
	}

	var records []university.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", s.jsonPath, err)
	}
	return records, nil
}

// OpenCSV opens the tabular artifact for streaming. The caller closes it.
func (s *Store) OpenCSV() (io.ReadCloser, int64, error) {
	f, err := os.Open(s.csvPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, 0, ErrNotFound
		}
		return nil, 0, fmt.Errorf("failed to open %s: %w", s.csvPath, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("failed to stat %s: %w", s.csvPath, err)
	}
	return f, info.Size(), nil
}

// ArtifactInfo describes one artifact on disk.
type ArtifactInfo struct {
	Path       string     `json:"path"`
	Exists     bool       `json:"exists"`
	Size       int64      `json:"size,omitempty"`
	ModifiedAt *time.Time `json:"modified_at,omitempty"`
}

func (s *Store) Status() map[string]ArtifactInfo {
	return map[string]ArtifactInfo{
		"json": artifactInfo(s.jsonPath),
		"csv":  artifactInfo(s.csvPath),
	}
}

func artifactInfo(path string) ArtifactInfo {
	info := ArtifactInfo{Path: path}
	stat, err := os.Stat(path)
	if err != nil {
		return info
	}
	modified := stat.ModTime().UTC()
	info.Exists = true
	info.Size = stat.Size()
	info.ModifiedAt = &modified
	return info
}
