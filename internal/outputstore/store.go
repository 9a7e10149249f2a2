// Package outputstore implements the Output Store: a per-process,
// per-stream append-only log with durable SQLite persistence, a hot-tail
// in-memory cache, and regex/time-range filtering applied in Go.
package outputstore

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/edirooss/procexecd/pkg/procexec"
)

// Store is the concrete Output Store (C1). One Store instance serves the
// whole process.
type Store struct {
	log     *zap.Logger
	rootDir string
	tail    *tailCacheIndex

	mu          sync.Mutex
	dbs         map[string]*processDB // pid -> handle
	shuttingDown bool
}

// New opens the Output Store rooted at rootDir, creating it if absent.
func New(log *zap.Logger, rootDir string) (*Store, error) {
	if err := os.MkdirAll(rootDir, 0o755); err != nil {
		return nil, &procexec.InitializationError{Component: "output store", Err: err}
	}
	return &Store{
		log:     log.Named("outputstore"),
		rootDir: rootDir,
		tail:    newTailCacheIndex(),
		dbs:     make(map[string]*processDB),
	}, nil
}

func (s *Store) processDir(pid string) string {
	return filepath.Join(s.rootDir, pid)
}

// dbFor lazily opens the per-process database, idempotent under s.mu — the
// same "creation is idempotent under a top-level lock" rule spec.md §5
// requires for logger creation.
func (s *Store) dbFor(pid string) (*processDB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.shuttingDown {
		return nil, procexec.ErrStoreShuttingDown
	}
	if db, ok := s.dbs[pid]; ok {
		return db, nil
	}
	db, err := openProcessDB(s.processDir(pid))
	if err != nil {
		return nil, err
	}
	s.dbs[pid] = db
	return db, nil
}

func (s *Store) existing(pid string) (*processDB, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	db, ok := s.dbs[pid]
	return db, ok
}

// Store appends lines to (pid, stream). An empty batch is a no-op. The first
// call for a given pid creates its backing directory/database, satisfying
// spec.md §4.3 step 6 ("a manager entry guarantees the backing storage
// exists before any reader arrives").
func (s *Store) Store(pid, stream string, lines []string) error {
	if len(lines) == 0 {
		return nil
	}

	db, err := s.dbFor(pid)
	if err != nil {
		return &procexec.StorageError{PID: pid, Stream: stream, Err: err}
	}

	table, err := db.ensureTable(stream)
	if err != nil {
		return &procexec.StorageError{PID: pid, Stream: stream, Err: err}
	}

	now := time.Now()
	tx, err := db.writer.Beginx()
	if err != nil {
		return &procexec.StorageError{PID: pid, Stream: stream, Err: err}
	}
	stmt := fmt.Sprintf(`INSERT INTO %s (ts, text) VALUES (?, ?)`, table)
	for _, line := range lines {
		ts := float64(now.UnixNano()) / 1e9
		if _, err := tx.Exec(stmt, ts, line); err != nil {
			_ = tx.Rollback()
			return &procexec.StorageError{PID: pid, Stream: stream, Err: err}
		}
		s.tail.get(pid, stream).Append(procexec.OutputEntry{Time: now, Text: line})
	}
	if err := tx.Commit(); err != nil {
		return &procexec.StorageError{PID: pid, Stream: stream, Err: err}
	}
	return nil
}

// Get returns entries for (pid, stream) matching q. Fails with
// ErrProcessNotFound if pid was never registered here; an unknown stream on
// a known pid yields zero entries.
func (s *Store) Get(pid, stream string, q procexec.GetQuery) ([]procexec.OutputEntry, error) {
	db, ok := s.existing(pid)
	if !ok {
		return nil, procexec.ErrProcessNotFound
	}

	table, err := db.ensureTable(stream)
	if err != nil {
		return nil, &procexec.OutputRetrievalError{PID: pid, Err: err}
	}

	// Fast path: a tail-only query (no time range, no grep) for fewer lines
	// than the cache holds can be answered from the in-memory tail cache
	// without round-tripping SQLite. Anything else falls through to the
	// authoritative scan below.
	if q.Since.IsZero() && q.Until.IsZero() && q.Grep == "" && q.Tail != nil && *q.Tail > 0 && *q.Tail < tailCacheCapacity {
		if cached := s.tail.get(pid, stream).Read(*q.Tail); len(cached) == *q.Tail {
			out := make([]procexec.OutputEntry, len(cached))
			for i, e := range cached {
				out[len(cached)-1-i] = e // cache is newest-first, Get returns stored order
			}
			return out, nil
		}
	}

	since := float64(0)
	if !q.Since.IsZero() {
		since = float64(q.Since.UnixNano()) / 1e9
	}
	until := float64(1) << 62
	if !q.Until.IsZero() {
		until = float64(q.Until.UnixNano()) / 1e9
	}

	rows, err := db.reader.Query(
		fmt.Sprintf(`SELECT seq, ts, text FROM %s WHERE ts BETWEEN ? AND ? ORDER BY seq ASC`, table),
		since, until,
	)
	if err != nil {
		return nil, &procexec.OutputRetrievalError{PID: pid, Err: err}
	}
	defer rows.Close()

	var entries []procexec.OutputEntry
	for rows.Next() {
		var seq int64
		var ts float64
		var text string
		if err := rows.Scan(&seq, &ts, &text); err != nil {
			return nil, &procexec.OutputRetrievalError{PID: pid, Err: err}
		}
		sec := int64(ts)
		nsec := int64((ts - float64(sec)) * 1e9)
		entries = append(entries, procexec.OutputEntry{
			Seq:  seq,
			Time: time.Unix(sec, nsec).UTC(),
			Text: text,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, &procexec.OutputRetrievalError{PID: pid, Err: err}
	}

	entries, err = applyGrep(entries, q.Grep, q.GrepMode)
	if err != nil {
		return nil, &procexec.OutputRetrievalError{PID: pid, Err: err}
	}
	entries = applyTail(entries, q.Tail)
	return entries, nil
}

// Clear deletes all streams for pid. Idempotent once the pid is known;
// fails with ErrProcessNotFound otherwise. The directory removal happens
// last so a failure mid-way leaves the db in a consistent, reopenable state
// rather than a half-deleted one.
func (s *Store) Clear(pid string) error {
	s.mu.Lock()
	db, ok := s.dbs[pid]
	if ok {
		delete(s.dbs, pid)
	}
	s.mu.Unlock()

	if !ok {
		return procexec.ErrProcessNotFound
	}

	s.tail.dropProcess(pid)

	if err := db.close(); err != nil {
		s.log.Warn("error closing process db during clear", zap.String("pid", pid), zap.Error(err))
	}
	if err := os.RemoveAll(s.processDir(pid)); err != nil {
		return &procexec.OutputClearError{PID: pid, Err: err}
	}
	return nil
}

// Register marks pid as known to the store without writing any lines yet
// (used when the supervisor wants the directory/db to exist before the
// first manager-stream entry is written — in practice Store's first
// Store() call already does this lazily, Register exists for callers that
// need the existence guarantee explicitly, e.g. tests).
func (s *Store) Register(pid string) error {
	_, err := s.dbFor(pid)
	return err
}

// Shutdown flushes and closes every open backing store. After Shutdown,
// Store fails fast with ErrStoreShuttingDown.
func (s *Store) Shutdown() error {
	s.mu.Lock()
	s.shuttingDown = true
	dbs := s.dbs
	s.dbs = make(map[string]*processDB)
	s.mu.Unlock()

	var firstErr error
	for pid, db := range dbs {
		if err := db.close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close db for pid %s: %w", pid, err)
		}
	}
	return firstErr
}
