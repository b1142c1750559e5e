// Package state persists sync watermarks and the operation journal.
//
// A Record holds, per remote document, the last version that was
// materialized locally and where it was written. Two interchangeable
// backends implement the Store interface:
//
//   - JSON file: a single human-readable file in the project directory,
//     rewritten atomically on every update. The default.
//   - SQLite: an embedded database with WAL mode, for large trees where
//     rewriting one file per upsert gets expensive.
//
// The journal is separate from the store: an append-only JSONL log of
// every sync and push outcome, used by status reporting.
package state

import (
	"context"
	"fmt"
	"path/filepath"
	"time"
)

// Record is the persisted watermark for one remote document. Absence of
// a record means the document has never been materialized and forces a
// full fetch on the next pass.
type Record struct {
	Version   int       `json:"version"`
	SyncedAt  time.Time `json:"syncedAt"`
	LocalPath string    `json:"localPath"`
}

// Store persists sync records keyed by remote document ID.
// Implementations must be safe for concurrent use; upserts for distinct
// IDs may interleave freely.
type Store interface {
	// Get returns the record for remoteID. The bool reports whether a
	// record exists; a missing record is not an error.
	Get(ctx context.Context, remoteID string) (Record, bool, error)

	// Put creates or replaces the record for remoteID.
	Put(ctx context.Context, remoteID string, rec Record) error

	// All returns every stored record keyed by remote ID.
	All(ctx context.Context) (map[string]Record, error)

	Close() error
}

// Store backends selectable in project settings.
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

// MetadataFile is the JSON backend's file name within a project directory.
const MetadataFile = ".sync-metadata.json"

// Open opens the configured store backend for the project directory dir.
// An empty backend selects JSON.
func Open(backend, dir string) (Store, error) {
	switch backend {
	case "", BackendJSON:
		return OpenFileStore(filepath.Join(dir, MetadataFile))
	case BackendSQLite:
		return OpenSQLite(filepath.Join(dir, ".confsync", "state.db"))
	default:
		return nil, fmt.Errorf("unknown state backend %q (want %q or %q)", backend, BackendJSON, BackendSQLite)
	}
}
