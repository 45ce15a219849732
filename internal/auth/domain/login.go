package domain

// LoginResult is the outcome of login step one or a completed second factor.
// Exactly one of two shapes is produced: tokens issued, or a two-factor
// challenge with no tokens attached.
type LoginResult struct {
	RequiresTwoFactor bool
	Tokens            *TokenPair // nil while a second factor is pending
	Account           Profile
}
