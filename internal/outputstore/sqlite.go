package outputstore

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// processDB wraps the per-process SQLite file: one writer handle capped at a
// single connection (SQLite allows exactly one writer), one read-only handle
// allowed multiple connections for concurrent readers. Grounded on the
// pack's sqlite repository split (writer/reader *sqlx.DB pair, MaxOpenConns
// on the writer).
type processDB struct {
	dir    string
	writer *sqlx.DB
	reader *sqlx.DB

	tableMu sync.Mutex
	tables  map[string]struct{} // stream tables already created
}

func openProcessDB(dir string) (*processDB, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create process output directory: %w", err)
	}
	path := filepath.Join(dir, "output.db")
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", path)

	writer, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open writer db: %w", err)
	}
	writer.SetMaxOpenConns(1)
	writer.SetMaxIdleConns(1)

	roDSN := fmt.Sprintf("file:%s?_journal_mode=WAL&mode=ro&_busy_timeout=5000", path)
	reader, err := sqlx.Open("sqlite3", roDSN)
	if err != nil {
		_ = writer.Close()
		return nil, fmt.Errorf("open reader db: %w", err)
	}
	reader.SetMaxOpenConns(4)

	return &processDB{
		dir:    dir,
		writer: writer,
		reader: reader,
		tables: make(map[string]struct{}),
	}, nil
}

var invalidTableChars = regexp.MustCompile(`[^a-zA-Z0-9_]`)

// tableName derives a safe SQLite identifier from an arbitrary stream key by
// stripping non-alphanumeric characters, per spec.md's storage layout rule.
func tableName(stream string) string {
	sanitized := invalidTableChars.ReplaceAllString(stream, "")
	if sanitized == "" {
		sanitized = "stream"
	}
	return "stream_" + strings.ToLower(sanitized)
}

func (db *processDB) ensureTable(stream string) (string, error) {
	table := tableName(stream)

	db.tableMu.Lock()
	defer db.tableMu.Unlock()

	if _, ok := db.tables[table]; ok {
		return table, nil
	}

	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		ts REAL NOT NULL,
		text TEXT NOT NULL
	)`, table)
	if _, err := db.writer.Exec(stmt); err != nil {
		return "", fmt.Errorf("create table %s: %w", table, err)
	}
	if _, err := db.writer.Exec(fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_ts ON %s(ts)`, table, table)); err != nil {
		return "", fmt.Errorf("create index on %s: %w", table, err)
	}

	db.tables[table] = struct{}{}
	return table, nil
}

func (db *processDB) close() error {
	werr := db.writer.Close()
	rerr := db.reader.Close()
	if werr != nil {
		return werr
	}
	return rerr
}
