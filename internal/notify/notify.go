// Package notify defines the boundary with the file-watching service.
//
// The service reports raw per-entry state transitions scoped to one workspace
// root. It does not report semantic renames; a rename shows up as a disappear
// record plus an appear record, usually within one batch. Consumers that want
// higher-level events run their own reconciliation over each batch.
package notify

import "context"

// EntryType classifies the directory entry a change record refers to.
type EntryType int

const (
	// EntryFile is a regular file.
	EntryFile EntryType = iota
	// EntryDir is a directory.
	EntryDir
	// EntryOther covers symlinks, sockets, and anything else.
	EntryOther
)

// String returns a human-readable representation of the entry type.
func (t EntryType) String() string {
	switch t {
	case EntryFile:
		return "file"
	case EntryDir:
		return "dir"
	case EntryOther:
		return "other"
	default:
		return "unknown"
	}
}

// ChangeRecord describes one entry's state transition as reported by the
// watching service.
type ChangeRecord struct {
	// RelativeName is the entry path relative to the connection's root,
	// using forward slashes.
	RelativeName string
	// Type is the entry's classification.
	Type EntryType
	// Exists reports whether the entry exists after the transition.
	Exists bool
	// IsNew reports whether the entry appeared during the transition.
	IsNew bool
	// Size is the entry size in bytes, zero when the entry is gone.
	Size uint64
	// ModTimeMs is the modification time in milliseconds since the epoch,
	// zero when the entry is gone.
	ModTimeMs uint64
}

// ChangeBatch is one atomic notification from the watching service.
// Correlation between records (rename pairing) is only ever attempted
// within a single batch, never across batches.
type ChangeBatch struct {
	// Root is the absolute workspace root the batch is scoped to.
	Root string
	// Records are the transitions, in the order the service observed them.
	Records []ChangeRecord
}

// Service creates connections to the watching service. Creation is an
// asynchronous round-trip and may fail; callers do not retry.
type Service interface {
	CreateClient(ctx context.Context, root string) (Connection, error)
}

// Connection is a live session with the watching service scoped to one root.
type Connection interface {
	// Subscribe registers a pattern-scoped subscription. onBatch is invoked
	// synchronously for every batch; the next batch is not delivered until
	// onBatch returns.
	Subscribe(ctx context.Context, pattern string, onBatch func(ChangeBatch)) (Subscription, error)
	// Dispose tears the session down. Idempotent.
	Dispose()
}

// Subscription is a handle to an active pattern subscription.
type Subscription interface {
	// Dispose cancels the subscription. Idempotent.
	Dispose()
}
