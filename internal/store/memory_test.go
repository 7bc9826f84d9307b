package store

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func doc(t *testing.T, fields map[string]any) []byte {
	t.Helper()
	b, err := json.Marshal(fields)
	require.NoError(t, err)
	return b
}

func TestMemoryPutIfAbsent(t *testing.T) {
	s := NewMemory(0)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "a", doc(t, map[string]any{"id": "a"}), ConditionKeyAbsent))

	err := s.Put(ctx, "a", doc(t, map[string]any{"id": "a"}), ConditionKeyAbsent)
	assert.ErrorIs(t, err, ErrConditionFailed)
}

func TestMemoryPutIfActive(t *testing.T) {
	s := NewMemory(0)
	ctx := context.Background()

	// Absent key: precondition fails.
	err := s.Put(ctx, "a", doc(t, map[string]any{"id": "a"}), ConditionKeyActive)
	assert.ErrorIs(t, err, ErrConditionFailed)

	require.NoError(t, s.Put(ctx, "a", doc(t, map[string]any{"id": "a", "v": 1}), ConditionKeyAbsent))
	require.NoError(t, s.Put(ctx, "a", doc(t, map[string]any{"id": "a", "v": 2}), ConditionKeyActive))

	// Tombstoned key: precondition fails again.
	require.NoError(t, s.Update(ctx, "a", map[string]any{AttrDeletedAt: time.Now().UTC(), AttrDeletedBy: "bob"}, ConditionKeyActive))
	err = s.Put(ctx, "a", doc(t, map[string]any{"id": "a", "v": 3}), ConditionKeyActive)
	assert.ErrorIs(t, err, ErrConditionFailed)
}

func TestMemoryUpdateMergesAttributes(t *testing.T) {
	s := NewMemory(0)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "a", doc(t, map[string]any{"id": "a", "name": "Ann"}), ConditionKeyAbsent))
	require.NoError(t, s.Update(ctx, "a", map[string]any{"admin": true}, ConditionKeyActive))

	raw, err := s.Get(ctx, "a")
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, "Ann", got["name"])
	assert.Equal(t, true, got["admin"])
}

func TestMemoryUpdateAbsentKey(t *testing.T) {
	s := NewMemory(0)
	err := s.Update(context.Background(), "missing", map[string]any{"admin": true}, ConditionKeyActive)
	assert.ErrorIs(t, err, ErrConditionFailed)

	// Existence is required even without a further condition.
	err = s.Update(context.Background(), "missing", map[string]any{"admin": true}, ConditionNone)
	assert.ErrorIs(t, err, ErrConditionFailed)
}

func TestMemoryDeleteIdempotent(t *testing.T) {
	s := NewMemory(0)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "a", doc(t, map[string]any{"id": "a"}), ConditionNone))
	require.NoError(t, s.Delete(ctx, "a"))
	require.NoError(t, s.Delete(ctx, "a"))

	raw, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Nil(t, raw)
}

func TestMemoryScanFilters(t *testing.T) {
	s := NewMemory(0)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "a", doc(t, map[string]any{"id": "a"}), ConditionNone))
	require.NoError(t, s.Put(ctx, "b", doc(t, map[string]any{"id": "b"}), ConditionNone))
	require.NoError(t, s.Update(ctx, "b", map[string]any{AttrDeletedAt: time.Now().UTC(), AttrDeletedBy: "bob"}, ConditionKeyActive))
	require.NoError(t, s.Put(ctx, "c", doc(t, map[string]any{"id": "c"}), ConditionNone))
	require.NoError(t, s.Update(ctx, "c", map[string]any{AttrDeletedAt: time.Now().UTC(), AttrDeletedBy: "eve"}, ConditionKeyActive))

	page, err := s.Scan(ctx, Filter{}, "")
	require.NoError(t, err)
	require.Len(t, page.Docs, 1)
	assert.Empty(t, page.Cursor)

	page, err = s.Scan(ctx, Filter{Deleted: true}, "")
	require.NoError(t, err)
	assert.Len(t, page.Docs, 2)

	page, err = s.Scan(ctx, Filter{Deleted: true, DeletedBy: "bob"}, "")
	require.NoError(t, err)
	require.Len(t, page.Docs, 1)

	var got map[string]any
	require.NoError(t, json.Unmarshal(page.Docs[0], &got))
	assert.Equal(t, "b", got["id"])
}

func TestMemoryScanPagination(t *testing.T) {
	s := NewMemory(3)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		key := fmt.Sprintf("k%02d", i)
		require.NoError(t, s.Put(ctx, key, doc(t, map[string]any{"id": key}), ConditionKeyAbsent))
	}

	var (
		cursor string
		pages  int
		seen   = map[string]bool{}
	)
	for {
		page, err := s.Scan(ctx, Filter{}, cursor)
		require.NoError(t, err)
		pages++
		for _, raw := range page.Docs {
			var got map[string]any
			require.NoError(t, json.Unmarshal(raw, &got))
			id := got["id"].(string)
			assert.False(t, seen[id], "duplicate %s", id)
			seen[id] = true
		}
		if page.Cursor == "" {
			break
		}
		cursor = page.Cursor
	}

	assert.Len(t, seen, 10)
	assert.GreaterOrEqual(t, pages, 4)
}

func TestMemoryScanCancelled(t *testing.T) {
	s := NewMemory(0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Scan(ctx, Filter{}, "")
	assert.ErrorIs(t, err, context.Canceled)
}
