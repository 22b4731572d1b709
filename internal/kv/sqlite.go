// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Keeps every key in one table; conditional writes are single guarded statements

package kv

import (
	"context"
	"database/sql"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db       *sql.DB
	timeout  time.Duration
	pageSize int
	logger   *slog.Logger
}

// SQLiteOptions configures NewSQLiteStore.
type SQLiteOptions struct {
	RequestTimeout time.Duration
	PageSize       int
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string, opts SQLiteOptions) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "kv", "backend", "sqlite")

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// One connection: :memory: databases are per-connection, and a single
	// writer avoids SQLITE_BUSY under concurrent compare-and-swap.
	db.SetMaxOpenConns(1)

	if path != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enabling WAL mode: %w", err)
		}
	}

	s := &SQLiteStore{
		db:       db,
		timeout:  opts.RequestTimeout,
		pageSize: opts.PageSize,
		logger:   logger,
	}
	if s.pageSize <= 0 {
		s.pageSize = 256
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the kv table if it doesn't exist
func (s *SQLiteStore) createSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS kv (
			key   TEXT PRIMARY KEY,
			value BLOB NOT NULL
		) WITHOUT ROWID;
	`)
	return err
}

// Get returns the value at key.
func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, Unavailable("get", err)
	}
	return nonNil(value), true, nil
}

// Put writes value at key.
func (s *SQLiteStore) Put(ctx context.Context, key string, value []byte) error {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, nonNil(value))
	if err != nil {
		return Unavailable("put", err)
	}
	return nil
}

// CompareAndSwap writes value if the current value matches expected.
func (s *SQLiteStore) CompareAndSwap(ctx context.Context, key string, expected, value []byte) (bool, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	var res sql.Result
	var err error
	if expected == nil {
		res, err = s.db.ExecContext(ctx, `
			INSERT INTO kv (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO NOTHING
		`, key, nonNil(value))
	} else {
		res, err = s.db.ExecContext(ctx,
			`UPDATE kv SET value = ? WHERE key = ? AND value = ?`,
			nonNil(value), key, expected)
	}
	if err != nil {
		return false, Unavailable("compare-and-swap", err)
	}
	return affected(res, "compare-and-swap")
}

// CompareAndDelete removes key if the current value matches expected.
func (s *SQLiteStore) CompareAndDelete(ctx context.Context, key string, expected []byte) (bool, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ? AND value = ?`, key, nonNil(expected))
	if err != nil {
		return false, Unavailable("compare-and-delete", err)
	}
	return affected(res, "compare-and-delete")
}

// Delete removes key.
func (s *SQLiteStore) Delete(ctx context.Context, key string) (bool, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key)
	if err != nil {
		return false, Unavailable("delete", err)
	}
	return affected(res, "delete")
}

// Scan pages through the prefix ordered by key.
func (s *SQLiteStore) Scan(ctx context.Context, prefix string) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		end := prefixEnd(prefix)
		cursor := prefix
		op := ">="
		for {
			page, err := s.scanPage(ctx, op, cursor, end)
			if err != nil {
				yield(Entry{}, err)
				return
			}
			for _, e := range page {
				if !yield(e, nil) {
					return
				}
			}
			if len(page) < s.pageSize {
				return
			}
			cursor = page[len(page)-1].Key
			op = ">"
		}
	}
}

func (s *SQLiteStore) scanPage(ctx context.Context, op, from, end string) ([]Entry, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	query := `SELECT key, value FROM kv WHERE key ` + op + ` ?`
	args := []any{from}
	if end != "" {
		query += ` AND key < ?`
		args = append(args, end)
	}
	query += ` ORDER BY key LIMIT ?`
	args = append(args, s.pageSize)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, Unavailable("scan", err)
	}
	defer rows.Close()

	var page []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Key, &e.Value); err != nil {
			return nil, Unavailable("scan", err)
		}
		e.Value = nonNil(e.Value)
		page = append(page, e)
	}
	if err := rows.Err(); err != nil {
		return nil, Unavailable("scan", err)
	}
	return page, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func affected(res sql.Result, op string) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, Unavailable(op, err)
	}
	return n > 0, nil
}
