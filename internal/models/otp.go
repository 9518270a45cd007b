package models

import (
	"time"

	"github.com/google/uuid"
)

// OTP purposes
const (
	OTPPurposeVerifyEmail = "verify_email"
	OTPPurposeLogin       = "login"
)

// EmailOTP is a one-time password issued to an email address. Only the
// SHA-256 hash of the code is stored.
type EmailOTP struct {
	ID         uuid.UUID  `json:"id" db:"id"`
	Email      string     `json:"email" db:"email"`
	CodeHash   string     `json:"-" db:"code_hash"`
	Purpose    string     `json:"purpose" db:"purpose"`
	Attempts   int        `json:"attempts" db:"attempts"`
	ExpiresAt  time.Time  `json:"expires_at" db:"expires_at"`
	ConsumedAt *time.Time `json:"consumed_at" db:"consumed_at"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
}

// Expired reports whether the code can no longer be verified.
func (o *EmailOTP) Expired(now time.Time) bool {
	return !now.Before(o.ExpiresAt)
}

// OTP Request
type RequestOTPRequest struct {
	Email   string `json:"email"`
	Purpose string `json:"purpose"`
}

// OTP Verification Request
type VerifyOTPRequest struct {
	Email   string `json:"email"`
	Code    string `json:"code"`
	Purpose string `json:"purpose"`
}
