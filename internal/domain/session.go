package domain

import "time"

type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"expires_at"`
	Username     string    `json:"username"`
}

// ExpiresIn returns the remaining lifetime at now; negative once expired.
func (s Session) ExpiresIn(now time.Time) time.Duration {
	return s.ExpiresAt.Sub(now)
}

type SessionState string

const (
	SessionStateNone       SessionState = "no_session"
	SessionStateValid      SessionState = "valid"
	SessionStateRefreshing SessionState = "refreshing"
)
