package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// SQLiteStore persists sync records in an embedded SQLite database.
// WAL mode lets status queries read while a pull pass writes.
type SQLiteStore struct {
	conn *sql.DB
	path string
}

// OpenSQLite opens the database at path, creating the file and schema
// when missing. The caller must Close when done.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	s := &SQLiteStore{conn: conn, path: path}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	if err := s.initSchema(context.Background()); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS sync_records (
		remote_id TEXT PRIMARY KEY,
		version INTEGER NOT NULL,
		synced_at TEXT NOT NULL,
		local_path TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sync_records_path ON sync_records(local_path);
	`
	if _, err := s.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("initialize schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, remoteID string) (Record, bool, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT version, synced_at, local_path FROM sync_records WHERE remote_id = ?`,
		remoteID)

	var rec Record
	var syncedAt string
	if err := row.Scan(&rec.Version, &syncedAt, &rec.LocalPath); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, false, nil
		}
		return Record{}, false, fmt.Errorf("query record %s: %w", remoteID, err)
	}
	t, err := time.Parse(time.RFC3339, syncedAt)
	if err != nil {
		return Record{}, false, fmt.Errorf("parse synced_at for %s: %w", remoteID, err)
	}
	rec.SyncedAt = t
	return rec, true, nil
}

func (s *SQLiteStore) Put(ctx context.Context, remoteID string, rec Record) error {
	query := `
	INSERT INTO sync_records (remote_id, version, synced_at, local_path)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(remote_id) DO UPDATE SET
		version = excluded.version,
		synced_at = excluded.synced_at,
		local_path = excluded.local_path
	`
	_, err := s.conn.ExecContext(ctx, query,
		remoteID,
		rec.Version,
		rec.SyncedAt.UTC().Format(time.RFC3339),
		rec.LocalPath,
	)
	if err != nil {
		return fmt.Errorf("upsert record %s: %w", remoteID, err)
	}
	return nil
}

func (s *SQLiteStore) All(ctx context.Context) (map[string]Record, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT remote_id, version, synced_at, local_path FROM sync_records`)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	recs := make(map[string]Record)
	for rows.Next() {
		var (
			id       string
			rec      Record
			syncedAt string
		)
		if err := rows.Scan(&id, &rec.Version, &syncedAt, &rec.LocalPath); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		t, err := time.Parse(time.RFC3339, syncedAt)
		if err != nil {
			return nil, fmt.Errorf("parse synced_at for %s: %w", id, err)
		}
		rec.SyncedAt = t
		recs[id] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return recs, nil
}

// Close checkpoints the WAL and closes the connection.
func (s *SQLiteStore) Close() error {
	if s.conn == nil {
		return nil
	}
	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	s.conn = nil
	return nil
}
