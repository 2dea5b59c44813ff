// Package crashdump persists crash reports and wires the diagnostics reporter
// into panic recovery and signal handling.
package crashdump

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	"github.com/hugo-lorenzo-mato/crashdiag/internal/fsutil"
)

// ErrNoReports is returned when the store holds no reports.
var ErrNoReports = errors.New("no crash reports found")

const (
	reportPrefix   = "crash-"
	plainSuffix    = ".log"
	archivedSuffix = ".log.zst"
	latestLink     = "latest"
	timeLayout     = "20060102T150405.000000000Z"

	// DefaultMaxFiles is the rotation limit used when none is configured.
	DefaultMaxFiles = 10
)

// Entry describes one stored report.
type Entry struct {
	Name       string    `json:"name" yaml:"name"`
	Path       string    `json:"path" yaml:"path"`
	Size       int64     `json:"size" yaml:"size"`
	Created    time.Time `json:"created" yaml:"created"`
	Compressed bool      `json:"compressed" yaml:"compressed"`
}

// Report is a report file being written.
type Report struct {
	ID      string
	Path    string
	Created time.Time
	f       *os.File
}

// Write appends to the report file. Every call reaches the file before it
// returns.
func (r *Report) Write(p []byte) (int, error) {
	return r.f.Write(p)
}

// WriteString appends s to the report file.
func (r *Report) WriteString(s string) (int, error) {
	return r.f.WriteString(s)
}

// Store keeps crash reports in a directory, newest first, bounded by a
// maximum file count.
type Store struct {
	dir      string
	maxFiles int
	logger   *slog.Logger
	now      func() time.Time

	mu sync.Mutex
}

// NewStore returns a store rooted at dir. It does not touch the file system.
func NewStore(dir string, maxFiles int, logger *slog.Logger) *Store {
	if maxFiles <= 0 {
		maxFiles = DefaultMaxFiles
	}
	if dir == "" {
		dir = filepath.Join(".crashdiag", "reports")
	}
	return &Store{
		dir:      dir,
		maxFiles: maxFiles,
		logger:   logger,
		now:      time.Now,
	}
}

// Dir returns the report directory.
func (s *Store) Dir() string {
	return s.dir
}

// Create opens a new report file and writes its header.
func (s *Store) Create(reason string) (*Report, error) {
	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating crash report dir: %w", err)
	}

	created := s.now().UTC()
	id := uuid.NewString()
	name := reportPrefix + created.Format(timeLayout) + "-" + id + plainSuffix
	path := filepath.Join(s.dir, name)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("creating crash report: %w", err)
	}

	r := &Report{ID: id, Path: path, Created: created, f: f}
	header := fmt.Sprintf("crash report %s\npid: %d\ngo: %s %s/%s\ntime: %s\nreason: %s\n",
		id, os.Getpid(), runtime.Version(), runtime.GOOS, runtime.GOARCH,
		created.Format(time.RFC3339Nano), reason)
	if _, err := f.WriteString(header); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("writing crash report header: %w", err)
	}
	return r, nil
}

// Commit closes r, points the latest link at it and rotates old reports.
// Rotation and link failures are logged, not returned: the report itself is
// already on disk.
func (s *Store) Commit(r *Report) error {
	if err := r.f.Sync(); err != nil {
		s.warn("syncing crash report", r.Path, err)
	}
	if err := r.f.Close(); err != nil {
		return fmt.Errorf("closing crash report: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := fsutil.ReplaceLink(filepath.Base(r.Path), filepath.Join(s.dir, latestLink)); err != nil {
		s.warn("updating latest crash report link", r.Path, err)
	}
	if err := s.rotate(); err != nil {
		s.warn("rotating crash reports", s.dir, err)
	}
	return nil
}

// List returns the stored reports, newest first.
func (s *Store) List() ([]Entry, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading crash report dir: %w", err)
	}

	var out []Entry
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, reportPrefix) {
			continue
		}
		compressed := strings.HasSuffix(name, archivedSuffix)
		if !compressed && !strings.HasSuffix(name, plainSuffix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, Entry{
			Name:       name,
			Path:       filepath.Join(s.dir, name),
			Size:       info.Size(),
			Created:    createdAt(name, info.ModTime()),
			Compressed: compressed,
		})
	}

	// Names start with a fixed-width UTC timestamp, so they sort by age.
	sort.Slice(out, func(i, j int) bool {
		return out[i].Name > out[j].Name
	})
	return out, nil
}

// LoadLatest returns the newest report and its content.
func (s *Store) LoadLatest() (Entry, []byte, error) {
	list, err := s.List()
	if err != nil {
		return Entry{}, nil, err
	}
	if len(list) == 0 {
		return Entry{}, nil, ErrNoReports
	}
	data, err := Read(list[0].Path)
	if err != nil {
		return Entry{}, nil, err
	}
	return list[0], data, nil
}

// Read returns the content of a report file, decompressing archives.
func Read(path string) ([]byte, error) {
	data, err := fsutil.ReadFileScoped(path)
	if err != nil {
		return nil, fmt.Errorf("reading crash report: %w", err)
	}
	if !strings.HasSuffix(path, archivedSuffix) {
		return data, nil
	}
	out, err := zstdDecoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("decompressing crash report: %w", err)
	}
	return out, nil
}

// Encoder and decoder are safe for concurrent EncodeAll/DecodeAll.
var (
	zstdEncoder, _ = zstd.NewWriter(nil)
	zstdDecoder, _ = zstd.NewReader(nil)
)

// Compact archives every plain report except the newest into a zstd file and
// returns how many were archived.
func (s *Store) Compact() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.List()
	if err != nil {
		return 0, err
	}

	archived := 0
	newest := true
	for _, e := range list {
		if e.Compressed {
			continue
		}
		if newest {
			newest = false
			continue
		}
		if err := compress(e.Path); err != nil {
			return archived, err
		}
		archived++
	}
	return archived, nil
}

func compress(path string) error {
	data, err := fsutil.ReadFileScoped(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", filepath.Base(path), err)
	}
	packed := zstdEncoder.EncodeAll(data, make([]byte, 0, len(data)/2))

	dst := strings.TrimSuffix(path, plainSuffix) + archivedSuffix
	if err := fsutil.WriteFileAtomic(dst, packed, 0o600); err != nil {
		return fmt.Errorf("archiving %s: %w", filepath.Base(path), err)
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("removing %s: %w", filepath.Base(path), err)
	}
	return nil
}

// rotate removes the oldest reports beyond maxFiles. Callers hold s.mu.
func (s *Store) rotate() error {
	list, err := s.List()
	if err != nil {
		return err
	}
	var errs []error
	for _, e := range list[min(len(list), s.maxFiles):] {
		if err := os.Remove(e.Path); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Store) warn(msg, path string, err error) {
	if s.logger != nil {
		s.logger.Warn(msg, "path", path, "error", err)
	}
}

func createdAt(name string, fallback time.Time) time.Time {
	ts := strings.TrimPrefix(name, reportPrefix)
	if len(ts) < len(timeLayout) {
		return fallback
	}
	t, err := time.Parse(timeLayout, ts[:len(timeLayout)])
	if err != nil {
		return fallback
	}
	return t
}
