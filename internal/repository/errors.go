package repository

import "errors"

var (
	// ErrNotFound is returned when a write precondition required an active
	// item and none was there. Absent and tombstoned keys are deliberately
	// indistinguishable: a soft-deleted item is logically gone.
	ErrNotFound = errors.New("item not found")

	// ErrAlreadyExists is returned by Create when the key is already taken,
	// whether by an active or a tombstoned item.
	ErrAlreadyExists = errors.New("item already exists")
)
