package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

const defaultPageSize = 100

// docMeta is the slice of a document the store itself inspects.
type docMeta struct {
	DeletedAt *json.RawMessage `json:"deleted_at"`
	DeletedBy string           `json:"deleted_by"`
}

func parseMeta(doc []byte) (docMeta, error) {
	var m docMeta
	if err := json.Unmarshal(doc, &m); err != nil {
		return docMeta{}, fmt.Errorf("decode document: %w", err)
	}
	return m, nil
}

func (m docMeta) matches(f Filter) bool {
	if f.Deleted {
		if m.DeletedAt == nil {
			return false
		}
		return f.DeletedBy == "" || m.DeletedBy == f.DeletedBy
	}
	return m.DeletedAt == nil
}

// Memory is an in-process KV backend guarded by a RWMutex. Used for tests
// and single-instance local runs; semantics mirror the Redis and Postgres
// backends, including bounded scan pages.
type Memory struct {
	mu       sync.RWMutex
	docs     map[string][]byte
	pageSize int
}

// NewMemory creates an in-memory store. pageSize bounds scan pages; values
// below 1 fall back to the default.
func NewMemory(pageSize int) *Memory {
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	return &Memory{
		docs:     make(map[string][]byte),
		pageSize: pageSize,
	}
}

func (s *Memory) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[key]
	if !ok {
		return nil, nil
	}
	out := make([]byte, len(doc))
	copy(out, doc)
	return out, nil
}

func (s *Memory) Put(ctx context.Context, key string, doc []byte, cond Condition) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkLocked(key, cond); err != nil {
		return err
	}
	stored := make([]byte, len(doc))
	copy(stored, doc)
	s.docs[key] = stored
	return nil
}

func (s *Memory) Update(ctx context.Context, key string, attrs map[string]any, cond Condition) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if cond == ConditionKeyAbsent {
		return fmt.Errorf("update cannot target an absent key")
	}
	if err := s.checkLocked(key, cond); err != nil {
		return err
	}
	cur, ok := s.docs[key]
	if !ok {
		// Update requires an existing document under any condition.
		return ErrConditionFailed
	}
	var fields map[string]any
	if err := json.Unmarshal(cur, &fields); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	for k, v := range attrs {
		fields[k] = v
	}
	doc, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	s.docs[key] = doc
	return nil
}

func (s *Memory) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, key)
	return nil
}

// Scan pages over keys in lexical order. The cursor is the last examined
// key; a page may contain fewer matches than the page size (or none) while
// still carrying a cursor, so callers must loop until the cursor is empty.
func (s *Memory) Scan(ctx context.Context, filter Filter, cursor string) (Page, error) {
	if err := ctx.Err(); err != nil {
		return Page{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.docs))
	for k := range s.docs {
		if cursor == "" || k > cursor {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var page Page
	for i, k := range keys {
		if i == s.pageSize {
			break
		}
		meta, err := parseMeta(s.docs[k])
		if err != nil {
			return Page{}, err
		}
		if meta.matches(filter) {
			doc := make([]byte, len(s.docs[k]))
			copy(doc, s.docs[k])
			page.Docs = append(page.Docs, doc)
		}
		page.Cursor = k
	}
	if len(keys) <= s.pageSize {
		page.Cursor = ""
	}
	return page, nil
}

// checkLocked evaluates a write condition. Caller holds the write lock, so
// the check and the following mutation are atomic.
func (s *Memory) checkLocked(key string, cond Condition) error {
	doc, exists := s.docs[key]
	switch cond {
	case ConditionNone:
		return nil
	case ConditionKeyAbsent:
		if exists {
			return ErrConditionFailed
		}
		return nil
	case ConditionKeyActive:
		if !exists {
			return ErrConditionFailed
		}
		meta, err := parseMeta(doc)
		if err != nil {
			return err
		}
		if meta.DeletedAt != nil {
			return ErrConditionFailed
		}
		return nil
	default:
		return fmt.Errorf("unknown condition %d", cond)
	}
}
