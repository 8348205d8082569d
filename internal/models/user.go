package models

import "time"

// Credentials is the registration payload. Never persisted by this service.
type Credentials struct {
	Email    string `json:"email"     validate:"email"`
	Password string `json:"password"  validate:"min=8,hasupper,haslower,hasdigit"`
	FullName string `json:"full_name" validate:"min=2"`
	// InviteCode optionally links the new profile to the invite it came from.
	InviteCode string `json:"invite_code,omitempty"`
}

// LoginRequest is the JSON body for POST /api/auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Session is what the auth provider hands back after sign-up or sign-in.
type Session struct {
	UserID       string    `json:"user_id"`
	Email        string    `json:"email"`
	AccessToken  string    `json:"access_token,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`
}

// Profile is a row of the profiles table.
type Profile struct {
	ID           string     `json:"id"`
	FullName     string     `json:"full_name"`
	AvatarURL    *string    `json:"avatar_url,omitempty"`
	InviteLinkID *string    `json:"invite_link_id,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    *time.Time `json:"updated_at,omitempty"`
}

// ProfileUpdate is a partial set of profile columns to overwrite.
type ProfileUpdate map[string]any

// ClientInfo identifies the end user's client for audit and analytics rows.
// IP may be empty, in which case the public address is looked up.
type ClientInfo struct {
	IP        string
	UserAgent string
	PageURL   string
}
