package domain

import "time"

// TokenPair is what a successful login or rotation returns: the short-lived
// signed access token and the long-lived opaque refresh token.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	TokenType    string `json:"tokenType,omitempty"` // "Bearer"
	ExpiresIn    int    `json:"expiresIn"`           // access token lifetime, seconds
}

// RefreshToken is the stored record for one issued refresh token. The raw
// token never touches the store; only its SHA-256 fingerprint does.
type RefreshToken struct {
	ID          string
	AccountID   string
	TokenHash   string
	IssuedAt    time.Time
	ExpiresAt   time.Time
	Revoked     bool
	ReplacedBy  *string // successor record ID, set on rotation
	ClientIP    string
	ClientAgent string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Active reports whether the record can still be exchanged at the given time.
func (t RefreshToken) Active(now time.Time) bool {
	return !t.Revoked && now.Before(t.ExpiresAt)
}

// ClientInfo carries request metadata recorded on each refresh token for
// audit purposes.
type ClientInfo struct {
	IP        string
	UserAgent string
}

// BackupCode is one stored single-use 2FA fallback code.
type BackupCode struct {
	ID        string
	AccountID string
	CodeHash  string
	Used      bool
	UsedAt    *time.Time
	CreatedAt time.Time
}
