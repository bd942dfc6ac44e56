// Package store is the durable, append-only log of dispatched notifications.
//
// Records are JSON objects, one per line, in a single file guarded by a
// sidecar flock. Retention is checked every CheckInterval writes: when the
// estimated record count exceeds MaxRecords, the file is rewritten with only
// the newest KeepRecords records and atomically swapped in. Readers skip any
// line they cannot parse.
package store

import (
	"bufio"
	"bytes"
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
)

// ErrLockDirMissing is returned when the directory holding the log and its
// lock file does not exist.
var ErrLockDirMissing = errors.New("notification store directory does not exist")

// Record is one persisted notification.
type Record struct {
	Timestamp time.Time `json:"ts"`
	AgentID   string    `json:"agent_id"`
	Urgency   string    `json:"urgency"`
	Event     string    `json:"event"`
	Summary   string    `json:"summary"`

	Project          string `json:"project,omitempty"`
	EventDetail      string `json:"event_detail,omitempty"`
	TerminalSnapshot string `json:"terminal_snapshot,omitempty"`
	RiskLevel        string `json:"risk_level,omitempty"`
}

// Options controls retention.
type Options struct {
	// MaxRecords is the hard cap that triggers compaction.
	// Default: 5000
	MaxRecords int

	// KeepRecords is how many of the newest records survive compaction.
	// Must be less than MaxRecords.
	// Default: 2500
	KeepRecords int

	// CheckInterval is how many appends happen between retention checks.
	// Default: 50
	CheckInterval int

	// SampleBytes is how much of the file is read to estimate the average
	// record size. Files no larger than this are counted exactly.
	// Default: 64 KiB
	SampleBytes int64
}

// DefaultOptions returns the default retention options
func DefaultOptions() Options {
	return Options{
		MaxRecords:    5000,
		KeepRecords:   2500,
		CheckInterval: 50,
		SampleBytes:   64 * 1024,
	}
}

// Validate checks if the options have valid values
func (o Options) Validate() error {
	if o.MaxRecords <= 0 {
		return fmt.Errorf("max_records must be positive (got %d)", o.MaxRecords)
	}
	if o.KeepRecords <= 0 || o.KeepRecords >= o.MaxRecords {
		return fmt.Errorf("keep_records must be in (0, max_records) (got %d, max_records %d)",
			o.KeepRecords, o.MaxRecords)
	}
	if o.CheckInterval <= 0 {
		return fmt.Errorf("check_interval must be positive (got %d)", o.CheckInterval)
	}
	if o.SampleBytes < 1024 {
		return fmt.Errorf("sample_bytes too small (got %d, min 1024)", o.SampleBytes)
	}
	return nil
}

// DefaultPath returns the per-user notification log location,
// ~/.vcwatch/notifications.jsonl.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".vcwatch", "notifications.jsonl"), nil
}

// Store appends and reads notification records. The write counter that gates
// retention checks belongs to the instance, so separate stores never share
// it. Safe for concurrent use.
type Store struct {
	path     string
	lockPath string
	opts     Options
	logger   *slog.Logger

	mu     sync.Mutex
	writes int
}

// New opens a store at path. The parent directory must already exist.
func New(path string, opts Options, logger *slog.Logger) (*Store, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid store options: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	dir := filepath.Dir(path)
	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrLockDirMissing, dir)
		}
		return nil, fmt.Errorf("stat store directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("store directory %s is not a directory", dir)
	}

	return &Store{
		path:     path,
		lockPath: path + ".lock",
		opts:     opts,
		logger:   logger,
	}, nil
}

// Path returns the log file path.
func (s *Store) Path() string {
	return s.path
}

// Append writes rec as one line. Every CheckInterval appends it also runs the
// retention check under the same exclusive lock.
func (s *Store) Append(rec Record) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	lock := newFileLock(s.lockPath)
	if err := lock.lock(true); err != nil {
		return err
	}
	defer func() { _ = lock.unlock() }()

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open notification log: %w", err)
	}
	if _, err := f.Write(line); err != nil {
		_ = f.Close()
		return fmt.Errorf("append record: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close notification log: %w", err)
	}

	s.writes++
	if s.writes%s.opts.CheckInterval != 0 {
		return nil
	}
	// Retention problems must not lose the record that was just written.
	if err := s.enforceRetentionLocked(); err != nil {
		s.logger.Warn("notification log retention check failed", "path", s.path, "error", err)
	}
	return nil
}

// EnforceRetention runs the retention check immediately.
func (s *Store) EnforceRetention() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock := newFileLock(s.lockPath)
	if err := lock.lock(true); err != nil {
		return err
	}
	defer func() { _ = lock.unlock() }()

	return s.enforceRetentionLocked()
}

// enforceRetentionLocked must be called with s.mu and the exclusive file
// lock held.
func (s *Store) enforceRetentionLocked() error {
	estimate, err := s.estimateCount()
	if err != nil {
		return err
	}
	if estimate <= int64(s.opts.MaxRecords) {
		return nil
	}
	return s.compact(estimate)
}

// estimateCount returns the exact line count for small files and an
// extrapolation from a leading sample for large ones.
func (s *Store) estimateCount() (int64, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("open notification log: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat notification log: %w", err)
	}
	size := info.Size()
	if size == 0 {
		return 0, nil
	}

	sampleSize := size
	if sampleSize > s.opts.SampleBytes {
		sampleSize = s.opts.SampleBytes
	}
	sample := make([]byte, sampleSize)
	n, err := io.ReadFull(f, sample)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return 0, fmt.Errorf("read notification log sample: %w", err)
	}
	lines := int64(bytes.Count(sample[:n], []byte{'\n'}))

	if size <= s.opts.SampleBytes {
		if n > 0 && sample[n-1] != '\n' {
			lines++
		}
		return lines, nil
	}
	if lines == 0 {
		// One record larger than the sample; at least one record per sample.
		return size / s.opts.SampleBytes, nil
	}
	avg := int64(n) / lines
	return size / avg, nil
}

// compact rewrites the log keeping the newest KeepRecords parseable records.
func (s *Store) compact(estimate int64) error {
	lines, err := readLines(s.path)
	if err != nil {
		return err
	}

	valid := lines[:0]
	for _, line := range lines {
		if _, ok := parseRecord(line); ok {
			valid = append(valid, line)
		}
	}
	if len(valid) > s.opts.KeepRecords {
		valid = valid[len(valid)-s.opts.KeepRecords:]
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create compaction file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	w := bufio.NewWriter(tmp)
	for _, line := range valid {
		_, _ = w.Write(line)
		_ = w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write compaction file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync compaction file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close compaction file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		cleanup()
		return fmt.Errorf("chmod compaction file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		cleanup()
		return fmt.Errorf("replace notification log: %w", err)
	}

	s.logger.Info("compacted notification log",
		"path", s.path,
		"estimated", estimate,
		"before", len(lines),
		"kept", len(valid))
	return nil
}

// Query selects records for Read.
type Query struct {
	// Limit is the maximum number of records returned, newest kept.
	// 0 means all.
	Limit int

	// AgentID restricts results to one agent when set.
	AgentID string
}

// ReadRecent returns the newest n records in chronological order. n <= 0
// returns every record.
func (s *Store) ReadRecent(n int) ([]Record, error) {
	return s.Read(Query{Limit: n})
}

// Read returns records matching q in chronological order. Lines that fail to
// parse are skipped. A missing log reads as empty.
func (s *Store) Read(q Query) ([]Record, error) {
	lock := newFileLock(s.lockPath)
	if err := lock.lock(false); err != nil {
		return nil, err
	}
	defer func() { _ = lock.unlock() }()

	lines, err := readLines(s.path)
	if err != nil {
		return nil, err
	}

	records := make([]Record, 0, len(lines))
	for _, line := range lines {
		rec, ok := parseRecord(line)
		if !ok {
			continue
		}
		if q.AgentID != "" && rec.AgentID != q.AgentID {
			continue
		}
		records = append(records, rec)
	}

	if q.Limit > 0 && len(records) > q.Limit {
		records = records[len(records)-q.Limit:]
	}
	return records, nil
}

// parseRecord decodes one log line. Compaction and reads share it so that
// every line kept by compaction is readable.
func parseRecord(line []byte) (Record, bool) {
	var rec Record
	if err := json.Unmarshal(line, &rec); err != nil {
		return Record{}, false
	}
	return rec, true
}

// readLines returns the non-empty lines of path. A missing file yields nil.
func readLines(path string) ([][]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open notification log: %w", err)
	}
	defer f.Close()

	var lines [][]byte
	r := bufio.NewReader(f)
	for {
		line, err := r.ReadBytes('\n')
		if trimmed := bytes.TrimSpace(line); len(trimmed) > 0 {
			lines = append(lines, trimmed)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return lines, nil
			}
			return nil, fmt.Errorf("read notification log: %w", err)
		}
	}
}
