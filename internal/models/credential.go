package models

import (
	"time"

	"github.com/google/uuid"
)

// TenantOAuthCredential is the stored OAuth2 credential for one tenant and
// one external provider. At most one record exists per (tenant, provider).
type TenantOAuthCredential struct {
	ID           uuid.UUID  `json:"id" db:"id"`
	TenantID     uuid.UUID  `json:"tenant_id" db:"tenant_id"`
	Provider     string     `json:"provider" db:"provider"`
	AccessToken  string     `json:"-" db:"access_token"` // Never return in JSON
	RefreshToken *string    `json:"-" db:"refresh_token"`
	ExpiresAt    time.Time  `json:"expires_at" db:"expires_at"`
	Scope        *string    `json:"scope" db:"scope"`
	APIDomain    *string    `json:"api_domain" db:"api_domain"`
	Renewable    bool       `json:"renewable" db:"renewable"`
	Revoked      bool       `json:"revoked" db:"revoked"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"`
}

// Expired reports whether the access token is past its expiry at the given
// instant.
func (c *TenantOAuthCredential) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// ExpiringWithin reports whether the access token expires within the given
// window of the instant (the refresh-ahead check).
func (c *TenantOAuthCredential) ExpiringWithin(now time.Time, window time.Duration) bool {
	return !now.Add(window).Before(c.ExpiresAt)
}

// ProviderTokenResponse is the JSON body the provider token endpoint returns
// for both the authorization_code and the refresh_token grants.
type ProviderTokenResponse struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token,omitempty"`
	ExpiresIn        int    `json:"expires_in"`
	TokenType        string `json:"token_type"`
	Scope            string `json:"scope,omitempty"`
	APIDomain        string `json:"api_domain,omitempty"`
	Error            string `json:"error,omitempty"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// IntegrationStatus is the connection summary exposed to clients. Tokens
// themselves are never included.
type IntegrationStatus struct {
	Provider  string     `json:"provider"`
	Connected bool       `json:"connected"`
	Renewable bool       `json:"renewable"`
	Revoked   bool       `json:"revoked"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Scope     *string    `json:"scope,omitempty"`
}
