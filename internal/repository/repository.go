package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"driftwood/itemvault/internal/store"
)

// SoftDeletable is the capability an item type must expose to live in a
// Repository: a stable key and a read accessor for its tombstone marker.
// Items must round-trip through JSON, the stores' document representation.
type SoftDeletable interface {
	GetID() string
	GetDeletedAt() *time.Time
}

// Repository is a typed collection over a conditional-write document store.
// Soft-deleted items stay physically stored but are invisible to Get and
// Scan; only DeletedItems / DeletedItemsBy surface them.
//
// Item lifecycle: absent -> active (Create) -> tombstoned (SoftDelete).
// Tombstoned is terminal for soft operations; only Delete removes a record
// entirely. All preconditions are evaluated atomically inside the store,
// never as a read followed by a write.
type Repository[T SoftDeletable] interface {
	// Get fetches by key. Returns nil (no error) when the key is absent or
	// the stored item is tombstoned.
	Get(ctx context.Context, id string) (*T, error)

	// Create inserts the item under its own key. ErrAlreadyExists when the
	// key is taken.
	Create(ctx context.Context, item T) error

	// Update overwrites an existing active item. ErrNotFound when the key
	// is absent or tombstoned.
	Update(ctx context.Context, item T) error

	// UpdateFields sets individual attributes on an existing active item
	// without replacing the document. ErrNotFound on precondition failure.
	UpdateFields(ctx context.Context, id string, fields map[string]any) error

	// Delete removes the record unconditionally. Idempotent.
	Delete(ctx context.Context, id string) error

	// SoftDelete tombstones an active item, recording when and by whom.
	// Not idempotent: tombstoning an already-tombstoned item returns
	// ErrNotFound.
	SoftDelete(ctx context.Context, id string, actor string) error

	// Scan returns every active item, walking all store pages.
	Scan(ctx context.Context) ([]T, error)

	// DeletedItems returns every tombstoned item.
	DeletedItems(ctx context.Context) ([]T, error)

	// DeletedItemsBy returns tombstoned items attributed to actor.
	DeletedItemsBy(ctx context.Context, actor string) ([]T, error)
}

type kvRepository[T SoftDeletable] struct {
	kv store.KV
}

// New builds a Repository on top of any conditional-write document store.
func New[T SoftDeletable](kv store.KV) Repository[T] {
	return &kvRepository[T]{kv: kv}
}

func (r *kvRepository[T]) Get(ctx context.Context, id string) (*T, error) {
	doc, err := r.kv.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get %q: %w", id, err)
	}
	if doc == nil {
		return nil, nil
	}
	var item T
	if err := json.Unmarshal(doc, &item); err != nil {
		return nil, fmt.Errorf("decode %q: %w", id, err)
	}
	if item.GetDeletedAt() != nil {
		// Tombstoned items are invisible to point reads.
		return nil, nil
	}
	return &item, nil
}

func (r *kvRepository[T]) Create(ctx context.Context, item T) error {
	doc, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("encode %q: %w", item.GetID(), err)
	}
	err = r.kv.Put(ctx, item.GetID(), doc, store.ConditionKeyAbsent)
	if errors.Is(err, store.ErrConditionFailed) {
		return ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("create %q: %w", item.GetID(), err)
	}
	return nil
}

func (r *kvRepository[T]) Update(ctx context.Context, item T) error {
	doc, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("encode %q: %w", item.GetID(), err)
	}
	err = r.kv.Put(ctx, item.GetID(), doc, store.ConditionKeyActive)
	if errors.Is(err, store.ErrConditionFailed) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("update %q: %w", item.GetID(), err)
	}
	return nil
}

func (r *kvRepository[T]) UpdateFields(ctx context.Context, id string, fields map[string]any) error {
	// The tombstone pair moves together and only through SoftDelete.
	if _, ok := fields[store.AttrDeletedAt]; ok {
		return fmt.Errorf("field %q can only be set via SoftDelete", store.AttrDeletedAt)
	}
	if _, ok := fields[store.AttrDeletedBy]; ok {
		return fmt.Errorf("field %q can only be set via SoftDelete", store.AttrDeletedBy)
	}
	err := r.kv.Update(ctx, id, fields, store.ConditionKeyActive)
	if errors.Is(err, store.ErrConditionFailed) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("update fields %q: %w", id, err)
	}
	return nil
}

func (r *kvRepository[T]) Delete(ctx context.Context, id string) error {
	if err := r.kv.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete %q: %w", id, err)
	}
	return nil
}

func (r *kvRepository[T]) SoftDelete(ctx context.Context, id string, actor string) error {
	err := r.kv.Update(ctx, id, map[string]any{
		store.AttrDeletedAt: time.Now().UTC(),
		store.AttrDeletedBy: actor,
	}, store.ConditionKeyActive)
	if errors.Is(err, store.ErrConditionFailed) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("soft delete %q: %w", id, err)
	}
	return nil
}

func (r *kvRepository[T]) Scan(ctx context.Context) ([]T, error) {
	return r.scanAll(ctx, store.Filter{})
}

func (r *kvRepository[T]) DeletedItems(ctx context.Context) ([]T, error) {
	return r.scanAll(ctx, store.Filter{Deleted: true})
}

func (r *kvRepository[T]) DeletedItemsBy(ctx context.Context, actor string) ([]T, error) {
	return r.scanAll(ctx, store.Filter{Deleted: true, DeletedBy: actor})
}

// scanAll drains the store's cursor until exhaustion. Any page failure
// aborts the whole call; partial results are never returned. Page delivery
// is at-least-once (Redis SCAN can repeat keys across pages), so results are
// deduplicated by id here.
func (r *kvRepository[T]) scanAll(ctx context.Context, filter store.Filter) ([]T, error) {
	items := []T{}
	seen := make(map[string]bool)
	cursor := ""
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, err := r.kv.Scan(ctx, filter, cursor)
		if err != nil {
			return nil, fmt.Errorf("scan page: %w", err)
		}
		for _, doc := range page.Docs {
			var item T
			if err := json.Unmarshal(doc, &item); err != nil {
				return nil, fmt.Errorf("decode scanned item: %w", err)
			}
			if seen[item.GetID()] {
				continue
			}
			seen[item.GetID()] = true
			items = append(items, item)
		}
		if page.Cursor == "" {
			return items, nil
		}
		cursor = page.Cursor
	}
}
