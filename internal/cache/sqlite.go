package cache

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Compile-time check that SQLiteStore satisfies Store.
var _ Store = (*SQLiteStore)(nil)

// queryable abstracts *sql.DB and *sql.Tx for shared query code.
type queryable interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteStore persists generations in a local SQLite file so an edge node
// keeps its offline copy across restarts.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens a SQLite database at the given path and runs migrations.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Open(ctx context.Context, generation string) error {
	return openGeneration(ctx, s.db, generation)
}

func (s *SQLiteStore) Match(ctx context.Context, generation, key string) (Response, error) {
	var (
		status   int
		header   string
		body     []byte
		typ      string
		storedAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT status, header, body, type, stored_at FROM entries WHERE generation = ? AND key = ?`,
		generation, key,
	).Scan(&status, &header, &body, &typ, &storedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Response{}, ErrNotFound
	}
	if err != nil {
		return Response{}, fmt.Errorf("match %s: %w", key, err)
	}

	h := http.Header{}
	if err := json.Unmarshal([]byte(header), &h); err != nil {
		return Response{}, fmt.Errorf("decode header: %w", err)
	}
	if h == nil {
		h = http.Header{}
	}
	ts, _ := time.Parse(time.RFC3339Nano, storedAt)
	return Response{
		Status:   status,
		Header:   h,
		Body:     body,
		Type:     Type(typ),
		StoredAt: ts,
	}, nil
}

func (s *SQLiteStore) Put(ctx context.Context, generation, key string, resp Response) error {
	return s.withTx(ctx, func(q queryable) error {
		if err := openGeneration(ctx, q, generation); err != nil {
			return err
		}
		return putEntry(ctx, q, generation, key, resp)
	})
}

func (s *SQLiteStore) PutAll(ctx context.Context, generation string, entries []Entry) error {
	return s.withTx(ctx, func(q queryable) error {
		if err := openGeneration(ctx, q, generation); err != nil {
			return err
		}
		for _, e := range entries {
			if err := putEntry(ctx, q, generation, e.Key, e.Response); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLiteStore) Generations(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM generations ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list generations: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *SQLiteStore) Delete(ctx context.Context, generation string) error {
	return s.withTx(ctx, func(q queryable) error {
		if _, err := q.ExecContext(ctx, `DELETE FROM entries WHERE generation = ?`, generation); err != nil {
			return fmt.Errorf("delete entries: %w", err)
		}
		if _, err := q.ExecContext(ctx, `DELETE FROM generations WHERE name = ?`, generation); err != nil {
			return fmt.Errorf("delete generation: %w", err)
		}
		return nil
	})
}

func (s *SQLiteStore) withTx(ctx context.Context, fn func(q queryable) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func openGeneration(ctx context.Context, q queryable, generation string) error {
	_, err := q.ExecContext(ctx,
		`INSERT OR IGNORE INTO generations (name, created_at) VALUES (?, ?)`,
		generation, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("open generation %s: %w", generation, err)
	}
	return nil
}

func putEntry(ctx context.Context, q queryable, generation, key string, resp Response) error {
	header, err := json.Marshal(resp.Header)
	if err != nil {
		return fmt.Errorf("encode header: %w", err)
	}
	body := resp.Body
	if body == nil {
		body = []byte{}
	}
	storedAt := resp.StoredAt
	if storedAt.IsZero() {
		storedAt = time.Now()
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO entries (generation, key, status, header, body, type, stored_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (generation, key) DO UPDATE SET
			status = excluded.status,
			header = excluded.header,
			body = excluded.body,
			type = excluded.type,
			stored_at = excluded.stored_at`,
		generation, key, resp.Status, string(header), body, string(resp.Type),
		storedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at TEXT NOT NULL
		)`); err != nil {
		return fmt.Errorf("ensure schema table: %w", err)
	}

	var current int
	if err := db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM schema_version`,
	).Scan(&current); err != nil {
		return fmt.Errorf("get current version: %w", err)
	}

	files, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}
	names := make([]string, 0, len(files))
	for _, f := range files {
		names = append(names, f.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		prefix, _, ok := strings.Cut(name, "_")
		if !ok {
			continue
		}
		ver, err := strconv.Atoi(prefix)
		if err != nil || ver <= current {
			continue
		}
		script, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return err
		}
		if _, err := db.ExecContext(ctx, string(script)); err != nil {
			return fmt.Errorf("apply migration %d: %w", ver, err)
		}
		if _, err := db.ExecContext(ctx,
			`INSERT INTO schema_version (version, applied_at) VALUES (?, ?)`,
			ver, time.Now().UTC().Format(time.RFC3339),
		); err != nil {
			return fmt.Errorf("record migration %d: %w", ver, err)
		}
	}
	return nil
}
