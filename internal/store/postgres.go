package store

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/gorm"
)

// Document is the single-table layout backing the Postgres store: opaque
// JSON documents keyed by id. Conditions and filters are expressed over the
// jsonb column, so every conditional write is one statement and therefore
// atomic.
type Document struct {
	ID  string `gorm:"primaryKey;column:id"`
	Doc []byte `gorm:"column:doc;type:jsonb;not null"`
}

// Postgres is a KV backend over a gorm connection. Each collection gets its
// own table, so stores built for different collections never see each
// other's documents. Table names come from code, never from user input.
type Postgres struct {
	db       *gorm.DB
	table    string
	pageSize int
}

// NewPostgres creates a Postgres-backed store over the named table and
// ensures the table exists.
func NewPostgres(db *gorm.DB, table string, pageSize int) (*Postgres, error) {
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if err := db.Table(table).AutoMigrate(&Document{}); err != nil {
		return nil, fmt.Errorf("migrate table %q: %w", table, err)
	}
	return &Postgres{db: db, table: table, pageSize: pageSize}, nil
}

func (s *Postgres) Get(ctx context.Context, key string) ([]byte, error) {
	var rows []Document
	err := s.db.WithContext(ctx).Table(s.table).
		Where("id = ?", key).
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("select document: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0].Doc, nil
}

func (s *Postgres) Put(ctx context.Context, key string, doc []byte, cond Condition) error {
	var res *gorm.DB
	switch cond {
	case ConditionNone:
		res = s.db.WithContext(ctx).Exec(fmt.Sprintf(
			`INSERT INTO %s (id, doc) VALUES (?, ?)
			 ON CONFLICT (id) DO UPDATE SET doc = EXCLUDED.doc`, s.table), key, doc)
	case ConditionKeyAbsent:
		res = s.db.WithContext(ctx).Exec(fmt.Sprintf(
			`INSERT INTO %s (id, doc) VALUES (?, ?)
			 ON CONFLICT (id) DO NOTHING`, s.table), key, doc)
	case ConditionKeyActive:
		res = s.db.WithContext(ctx).Exec(fmt.Sprintf(
			`UPDATE %s SET doc = ?
			 WHERE id = ? AND doc->>'deleted_at' IS NULL`, s.table), doc, key)
	default:
		return fmt.Errorf("unknown condition %d", cond)
	}
	if res.Error != nil {
		return fmt.Errorf("write document: %w", res.Error)
	}
	if cond != ConditionNone && res.RowsAffected == 0 {
		return ErrConditionFailed
	}
	return nil
}

// Update requires an existing row under any condition; zero rows affected
// means the existence or active predicate did not hold.
func (s *Postgres) Update(ctx context.Context, key string, attrs map[string]any, cond Condition) error {
	if cond == ConditionKeyAbsent {
		return fmt.Errorf("update cannot target an absent key")
	}
	patch, err := json.Marshal(attrs)
	if err != nil {
		return fmt.Errorf("encode attributes: %w", err)
	}

	q := fmt.Sprintf(`UPDATE %s SET doc = doc || ?::jsonb WHERE id = ?`, s.table)
	if cond == ConditionKeyActive {
		q += ` AND doc->>'deleted_at' IS NULL`
	}
	res := s.db.WithContext(ctx).Exec(q, string(patch), key)
	if res.Error != nil {
		return fmt.Errorf("update document: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrConditionFailed
	}
	return nil
}

func (s *Postgres) Delete(ctx context.Context, key string) error {
	q := fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, s.table)
	if err := s.db.WithContext(ctx).Exec(q, key).Error; err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}

// Scan uses keyset pagination: the cursor is the last id of the previous
// page. The filter runs inside the statement, so pages only carry matching
// documents here.
func (s *Postgres) Scan(ctx context.Context, filter Filter, cursor string) (Page, error) {
	q := s.db.WithContext(ctx).Table(s.table).Where("id > ?", cursor)
	if filter.Deleted {
		q = q.Where("doc->>'deleted_at' IS NOT NULL")
		if filter.DeletedBy != "" {
			q = q.Where("doc->>'deleted_by' = ?", filter.DeletedBy)
		}
	} else {
		q = q.Where("doc->>'deleted_at' IS NULL")
	}

	var rows []Document
	if err := q.Order("id").Limit(s.pageSize).Find(&rows).Error; err != nil {
		return Page{}, fmt.Errorf("scan documents: %w", err)
	}

	var page Page
	for _, row := range rows {
		page.Docs = append(page.Docs, row.Doc)
	}
	if len(rows) == s.pageSize {
		page.Cursor = rows[len(rows)-1].ID
	}
	return page, nil
}
