package domain

// TwoFactorEnrollment is the result of starting TOTP enrollment. The
// secret is pending until the account confirms with a valid code.
type TwoFactorEnrollment struct {
	Secret          string `json:"secret"`
	ProvisioningURI string `json:"provisioningUri"`
}
