// Package sqlstore is a ledger.Store backed by a SQLite database.
//
// The document is one row; PutIfMatch is a single conditional statement
// whose affected-row count decides between commit and conflict.
package sqlstore

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/unmistakablecreative/orchestrate-no-bullshit/pkg/ledger"
)

//go:embed schema.sql
var schemaSQL string

// Store provides durable ledger storage in SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ ledger.Store = (*Store)(nil)

// Open creates or opens a SQLite database at the given path.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - 5-second busy timeout for lock contention between processes
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) GetLatest(ctx context.Context) (*ledger.Ledger, ledger.Version, error) {
	var (
		version  int64
		document string
	)
	err := s.db.QueryRowContext(ctx, `SELECT version, document FROM ledger WHERE id = 1`).Scan(&version, &document)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.New(), ledger.NoVersion, nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to read ledger: %w", err)
	}

	l, err := ledger.Decode([]byte(document))
	if err != nil {
		return nil, "", err
	}
	return l, ledger.Version(strconv.FormatInt(version, 10)), nil
}

func (s *Store) PutIfMatch(ctx context.Context, l *ledger.Ledger, expected ledger.Version) (ledger.Version, error) {
	want, err := strconv.ParseInt(string(expected), 10, 64)
	if err != nil {
		return "", &ledger.ConflictError{Expected: expected, Current: s.currentVersion(ctx)}
	}

	data, err := ledger.Encode(l)
	if err != nil {
		return "", err
	}
	updatedAt := s.now().UnixMilli()

	var res sql.Result
	if want == 0 {
		res, err = s.db.ExecContext(ctx,
			`INSERT INTO ledger (id, version, document, updated_at_ms) VALUES (1, 1, ?, ?)
			 ON CONFLICT(id) DO NOTHING`,
			string(data), updatedAt)
	} else {
		res, err = s.db.ExecContext(ctx,
			`UPDATE ledger SET version = version + 1, document = ?, updated_at_ms = ?
			 WHERE id = 1 AND version = ?`,
			string(data), updatedAt, want)
	}
	if err != nil {
		return "", fmt.Errorf("failed to write ledger: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return "", &ledger.ConflictError{Expected: expected, Current: s.currentVersion(ctx)}
	}

	return ledger.Version(strconv.FormatInt(want+1, 10)), nil
}

// currentVersion is best effort; it only enriches conflict errors.
func (s *Store) currentVersion(ctx context.Context) ledger.Version {
	var version int64
	err := s.db.QueryRowContext(ctx, `SELECT version FROM ledger WHERE id = 1`).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.NoVersion
	}
	if err != nil {
		return ""
	}
	return ledger.Version(strconv.FormatInt(version, 10))
}
