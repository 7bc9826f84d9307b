package store

import (
	"context"
	"errors"
)

// ErrConditionFailed is returned by Put and Update when the write condition
// does not hold for the target key. The predicate is evaluated atomically by
// the backend, never by a separate read.
var ErrConditionFailed = errors.New("store: write condition failed")

// Attribute names every backend understands. Documents are JSON objects; a
// document carrying AttrDeletedAt is tombstoned.
const (
	AttrDeletedAt = "deleted_at"
	AttrDeletedBy = "deleted_by"
)

// Condition is a server-evaluated predicate over the target key's current
// state, applied to conditional writes.
type Condition int

const (
	// ConditionNone writes unconditionally.
	ConditionNone Condition = iota
	// ConditionKeyAbsent requires that no document exists under the key.
	ConditionKeyAbsent
	// ConditionKeyActive requires a document that is not tombstoned.
	ConditionKeyActive
)

// Filter selects which documents a Scan returns.
type Filter struct {
	// Deleted selects tombstoned documents; false selects active ones.
	Deleted bool
	// DeletedBy additionally restricts tombstoned documents to a given
	// actor. Ignored unless Deleted is set.
	DeletedBy string
}

// Page is one bounded chunk of scan results. An empty Cursor means the scan
// is exhausted.
type Page struct {
	Docs   [][]byte
	Cursor string
}

// KV is the conditionally-consistent document store the repository layer is
// built on. Implementations: in-memory (tests, local dev), Redis, Postgres.
// Any store offering atomic conditional writes and cursor-paginated filtered
// scans can be substituted.
type KV interface {
	// Get returns the document under key, or nil when the key is absent.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put stores doc under key if cond holds, returning ErrConditionFailed
	// otherwise. The condition check and the write are a single atomic step.
	Put(ctx context.Context, key string, doc []byte, cond Condition) error

	// Update sets the given top-level attributes on the document under key
	// if cond holds, returning ErrConditionFailed otherwise. The target
	// document must exist: ConditionNone adds no predicate beyond
	// existence, and ConditionKeyAbsent is rejected. Attribute values must
	// be JSON-encodable.
	Update(ctx context.Context, key string, attrs map[string]any, cond Condition) error

	// Delete removes the document under key. Removing an absent key is not
	// an error.
	Delete(ctx context.Context, key string) error

	// Scan returns one page of documents matching the filter, resuming from
	// cursor ("" starts a fresh scan). Callers loop until Page.Cursor is
	// empty. Delivery is at-least-once: a document may appear on more than
	// one page (Redis SCAN repeats keys while the keyspace is rehashing),
	// so callers deduplicate by document identity.
	Scan(ctx context.Context, filter Filter, cursor string) (Page, error)
}
