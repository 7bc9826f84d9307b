package model

import "time"

// Item is the demo domain record managed through the generic repository.
type Item struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Age       int        `json:"age"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
	DeletedBy string     `json:"deleted_by,omitempty"`
}

func (i Item) GetID() string { return i.ID }

func (i Item) GetDeletedAt() *time.Time { return i.DeletedAt }
