// Package sync implements the engine that mirrors remote document trees
// into a local markdown hierarchy and reconciles local edits upstream.
//
// # Overview
//
// The engine walks a configured set of root documents, decides per document
// whether a fetch is needed by comparing the remote version against the
// persisted sync record, and materializes content and attachments into a
// directory tree that preserves the remote hierarchy.
//
// # Architecture
//
//	Remote store (Confluence)
//	     │  Gateway.GetDocument / GetAttachment
//	     ▼
//	  Puller ──── Mapper (title → slug → nested path)
//	     │
//	     ├── content + attachments → local tree (atomic writes)
//	     └── version watermarks    → state.Store
//
//	  Pusher ──── Gateway.UpdateDocument, then Puller (forced) to
//	              re-converge the local mirror on the remote truth.
//
// # Usage
//
//	store, err := state.Open(state.BackendJSON, projectDir)
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	puller := sync.NewPuller(gateway, store, sync.DefaultPullerConfig())
//	report, err := puller.Sync(ctx, project, "", false)
//
// # Failure model
//
// A failure fetching or writing one node never aborts siblings or other
// roots. Failures are recorded per node in the Report and the pass
// continues; the sync record for a failed node is left untouched so the
// next pass retries it.
//
// # Concurrency
//
// Root subtrees are independent and processed concurrently. Within a
// subtree, a child's path depends on its parent's, so parents are visited
// first; child fetches then proceed concurrently, bounded by the worker
// limit. Sync records are upserted last-write-wins per remote id, which is
// safe because each id is only ever written by the subtree that owns it.
package sync
