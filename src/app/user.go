package app

import "time"

// User is the identity resolved from a verified bearer token.
type User struct {
	ID string `json:"id"`

	Email string `json:"email"`

	// Metadata the identity provider returned alongside the user, if any.
	Metadata map[string]any `json:"user_metadata,omitempty"`

	// ExpiresAt is the expiry of the token the user was resolved from.
	ExpiresAt time.Time `json:"-"`
}

// Session is a token pair issued by the identity provider.
type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	User         *User  `json:"user,omitempty"`
}
