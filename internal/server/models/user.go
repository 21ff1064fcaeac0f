package models

import "time"

// User is a platform account. CurrentToken holds the only opaque session
// token accepted for the user; TenantDB binds the account to one tenant
// database. Both may be empty.
type User struct {
	ID           string
	Email        string
	CurrentToken string
	TenantDB     string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
