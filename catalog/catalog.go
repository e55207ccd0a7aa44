// Package catalog is a non-authoritative side index of subtree lifecycle
// events: when a Tree-family portal is created, cleared, or deleted. It
// plays no part in computing or verifying grove root hashes — grove/ works
// correctly with no catalog.Store attached at all — it exists purely so an
// operator can answer "what subtrees exist and when did they change"
// without walking the whole Merk hierarchy.
//
// The shape is adapted from metadata.Store (grovedb's teacher tracked
// blockchain block metadata in a side SQLite table the same way; this
// tracks grove subtree events instead).
package catalog

import (
	"context"

	"github.com/grovedb/grovedb/feature"
)

// EventKind identifies the lifecycle transition an Event records.
type EventKind uint8

const (
	// Created records a Tree-family element being inserted at Path/Key.
	Created EventKind = iota
	// Cleared records ClearSubtree emptying an existing subtree.
	Cleared
	// Deleted records a non-empty subtree's removal.
	Deleted
)

func (k EventKind) String() string {
	switch k {
	case Created:
		return "created"
	case Cleared:
		return "cleared"
	case Deleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Event is one subtree lifecycle transition.
type Event struct {
	Seq     uint64
	Path    string
	Key     []byte
	Kind    EventKind
	Feature feature.Kind
	AtUnix  int64
}

// Store persists Events. Implementations must be safe for concurrent use
// by a single *grove.DB; they are never consulted to answer grove reads,
// only appended to alongside them.
type Store interface {
	// RecordEvent appends ev. Seq is assigned by the store and ignored on
	// input.
	RecordEvent(ctx context.Context, ev Event) error

	// ListEvents returns every recorded event whose Path equals or is
	// nested under pathPrefix, oldest first. An empty pathPrefix matches
	// every event.
	ListEvents(ctx context.Context, pathPrefix string) ([]Event, error)

	// LatestEvent returns the most recently recorded event for path, or
	// ok=false if none exists.
	LatestEvent(ctx context.Context, path string) (ev Event, ok bool, err error)

	// Close releases the store's resources.
	Close() error
}
