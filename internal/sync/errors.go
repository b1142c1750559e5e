package sync

import (
	"errors"
	"fmt"
)

// Errors returned by the engine and expected from Gateway implementations.
//
// Check them with errors.Is / errors.As:
//
//	if errors.Is(err, sync.ErrAccessDenied) {
//	    // push attempted on a read-only document
//	}
var (
	// ErrNotFound indicates the remote id no longer exists.
	ErrNotFound = errors.New("document not found")

	// ErrAccessDenied indicates a push was attempted on a document whose
	// access mode is not read-write, or the remote rejected the caller's
	// credentials.
	ErrAccessDenied = errors.New("access denied")

	// ErrVersionConflict indicates the remote changed between the push
	// freshness check and the update call. The engine never retries or
	// merges; the caller must re-pull and resubmit.
	ErrVersionConflict = errors.New("version conflict")

	// ErrUnknownDocument indicates a document name that is not in the
	// project configuration.
	ErrUnknownDocument = errors.New("document not configured")

	// ErrEmptyContent indicates a push that would blank the remote page.
	ErrEmptyContent = errors.New("refusing to push empty content")
)

// TransportError wraps a network or server failure from the gateway.
// Status is the HTTP status code when one was received, zero otherwise.
type TransportError struct {
	Op     string
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// LocalIOError wraps a materialization write failure. The sync record for
// the affected node is not updated, so the next pass retries it.
type LocalIOError struct {
	Path string
	Err  error
}

func (e *LocalIOError) Error() string {
	return fmt.Sprintf("write %s: %v", e.Path, e.Err)
}

func (e *LocalIOError) Unwrap() error { return e.Err }
