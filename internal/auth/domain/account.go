package domain

import "time"

// AdminAccount is the identity record: credential, role and 2FA state.
// Accounts are provisioned out-of-band and never hard-deleted; deactivation
// flips IsActive.
type AdminAccount struct {
	ID           string
	Email        string // unique, compared case-insensitively
	PasswordHash string // argon2id, PHC encoded
	Role         Role
	IsActive     bool
	TOTPSecret   *string // base32 secret; pending until TOTPEnabled is set
	TOTPEnabled  bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TOTPPending reports whether an enrollment has been started but not yet
// confirmed. A pending secret must never satisfy the 2FA-enabled checks.
func (a AdminAccount) TOTPPending() bool {
	return !a.TOTPEnabled && a.TOTPSecret != nil && *a.TOTPSecret != ""
}

// Profile is the non-sensitive subset of an account echoed in login
// responses.
type Profile struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	Role        string `json:"role"`
	TOTPEnabled bool   `json:"totpEnabled"`
}

func (a AdminAccount) Profile() Profile {
	return Profile{
		ID:          a.ID,
		Email:       a.Email,
		Role:        a.Role.String(),
		TOTPEnabled: a.TOTPEnabled,
	}
}
