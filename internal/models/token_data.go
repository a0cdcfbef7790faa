package models

// Categories stored alongside each ephemeral token entry. The category tag
// lets the same redis keyspace back multiple flows without ambiguity.
const (
	CategoryResetPassword = "reset_password"
	CategoryVerifyEmail   = "verify_email"
)

// TokenData is the value stored in redis under an opaque UUID token. Entries
// are created once with a TTL and never updated; PasswordHash is only set for
// signup verification entries.
type TokenData struct {
	Category     string `json:"category"`
	Email        string `json:"email"`
	OTP          string `json:"otp"`
	PasswordHash string `json:"password_hash,omitempty"`
}
