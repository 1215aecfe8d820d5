package domain

import "time"

type Profile struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// ProfilePatch holds optional profile changes; nil fields are left untouched.
type ProfilePatch struct {
	Email    *string
	Password *string
}
