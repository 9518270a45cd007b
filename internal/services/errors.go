package services

import (
	"errors"
	"fmt"
)

// Integration error taxonomy. Callers branch on these with errors.Is;
// raw transport and parse failures never escape the services layer.
var (
	// ErrAuthorizationRequired means no usable credential exists or a
	// refresh is structurally impossible. The end user has to go through
	// the provider authorization flow again.
	ErrAuthorizationRequired = errors.New("authorization required")

	// ErrInvalidGrant means the provider rejected the authorization code
	// or refresh token as invalid, expired or revoked. Not retryable.
	ErrInvalidGrant = errors.New("invalid grant")

	// ErrProviderUnavailable covers network failures, timeouts and 5xx
	// responses. Retryable with backoff; stored state is untouched.
	ErrProviderUnavailable = errors.New("provider unavailable")
)

// ErrMalformedResponse means the provider returned a success status with an
// unparseable or incomplete body. It wraps ErrProviderUnavailable so callers
// retry it the same way, but it is logged separately for diagnosis.
var ErrMalformedResponse = fmt.Errorf("%w: malformed response", ErrProviderUnavailable)

// OTP errors
var (
	ErrOTPNotFound    = errors.New("no active code for this email")
	ErrOTPMismatch    = errors.New("incorrect code")
	ErrOTPExpired     = errors.New("code expired")
	ErrOTPTooMany     = errors.New("too many attempts")
	ErrOTPRateLimited = errors.New("too many code requests")
)
