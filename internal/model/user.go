package model

import "time"

// User is an application account. PasswordHash is a bcrypt hash and never
// leaves the service in API responses.
type User struct {
	ID            string     `json:"id"`
	Email         string     `json:"email"`
	Username      string     `json:"username"`
	CreatedAt     time.Time  `json:"created_at"`
	EmailVerified bool       `json:"email_verified"`
	PasswordHash  string     `json:"password_hash,omitempty"`
	Admin         bool       `json:"admin"`
	DeletedAt     *time.Time `json:"deleted_at,omitempty"`
	DeletedBy     string     `json:"deleted_by,omitempty"`
}

func (u User) GetID() string { return u.ID }

func (u User) GetDeletedAt() *time.Time { return u.DeletedAt }
