package sync

import "context"

// Document is a remote document as returned by the Gateway.
//
// Content carries the storage-format body. ChildIDs preserves the order
// the remote reports children in; the engine never reorders them.
type Document struct {
	ID          string
	Title       string
	Version     int
	Content     string
	ChildIDs    []string
	Attachments []Attachment
}

// Attachment describes a binary attachment of a document. The bytes are
// fetched separately through Gateway.GetAttachment.
type Attachment struct {
	ID        string
	Filename  string
	MediaType string
}

// Gateway is the remote document store capability consumed by the engine.
//
// Implementations live outside this package (a REST client in production,
// an in-memory fake in tests). The engine calls GetDocument exactly once
// per node per pass; whether the node is then materialized is decided by
// the version comparison, not by extra gateway calls.
type Gateway interface {
	// GetDocument fetches a document by remote id: its version, title,
	// storage-format content, ordered child ids, and attachment
	// descriptors.
	//
	// Fails with ErrNotFound if the id no longer exists, or a
	// *TransportError for network and server failures.
	GetDocument(ctx context.Context, id string) (*Document, error)

	// UpdateDocument replaces a document's content and returns the new
	// remote version number.
	//
	// Fails with ErrAccessDenied, ErrNotFound, ErrVersionConflict, or a
	// *TransportError.
	UpdateDocument(ctx context.Context, id, content string) (int, error)

	// GetAttachment downloads the raw bytes of one attachment of the
	// given document.
	//
	// Fails with ErrNotFound or a *TransportError.
	GetAttachment(ctx context.Context, id, attachmentID string) ([]byte, error)
}

// ConvertFunc turns storage-format content into the text written to disk.
// docID identifies the owning document so attachment references can be
// rewritten to local asset paths. A nil ConvertFunc writes content as-is.
type ConvertFunc func(content, docID string) (string, error)

// EventSink receives progress notifications from the engine. All methods
// may be called from concurrent goroutines and must not block.
type EventSink interface {
	// DocumentSynced is called once per visited node with its outcome.
	DocumentSynced(res Result)

	// PassCompleted is called once at the end of a pull pass.
	PassCompleted(rep *Report)

	// PushCompleted is called after a successful push, before the
	// follow-up refresh pass runs.
	PushCompleted(res *PushResult)
}
