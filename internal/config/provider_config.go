package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

// ProviderConfig represents the complete invoicing-provider configuration
type ProviderConfig struct {
	Provider ProviderIntegration `toml:"provider"`
	Refresh  RefreshConfig       `toml:"refresh"`
}

// ProviderIntegration contains OAuth client and endpoint settings for the
// external invoicing provider
type ProviderIntegration struct {
	Name         string   `toml:"name"`
	ClientID     string   `toml:"client_id"`
	ClientSecret string   `toml:"client_secret"`
	AuthorizeURL string   `toml:"authorize_url"`
	TokenURL     string   `toml:"token_url"`
	APIBaseURL   string   `toml:"api_base_url"`
	RedirectURI  string   `toml:"redirect_uri"`
	Scopes       []string `toml:"scopes"`

	// RevokedErrorCodes lists the provider's error codes that mean the
	// grant itself is dead (not a transient failure). The provider's error
	// vocabulary is configuration, never hardcoded.
	RevokedErrorCodes []string `toml:"revoked_error_codes"`
}

// RefreshConfig contains token refresh timing settings
type RefreshConfig struct {
	AheadSeconds   int `toml:"ahead_seconds"`
	TimeoutSeconds int `toml:"timeout_seconds"`
}

// LoadProviderConfig loads configuration from a TOML file
func LoadProviderConfig(filename string) (*ProviderConfig, error) {
	config := &ProviderConfig{}
	_, err := toml.DecodeFile(filename, config)
	if err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}
	config.applyDefaults()
	return config, nil
}

func (c *ProviderConfig) applyDefaults() {
	if c.Provider.Name == "" {
		c.Provider.Name = "zoho"
	}
	if len(c.Provider.RevokedErrorCodes) == 0 {
		c.Provider.RevokedErrorCodes = []string{"invalid_grant"}
	}
	if c.Refresh.AheadSeconds <= 0 {
		c.Refresh.AheadSeconds = 300
	}
	if c.Refresh.TimeoutSeconds <= 0 {
		c.Refresh.TimeoutSeconds = 15
	}
}

// RefreshAhead returns the refresh-ahead window as a duration.
func (c *ProviderConfig) RefreshAhead() time.Duration {
	return time.Duration(c.Refresh.AheadSeconds) * time.Second
}

// Timeout returns the provider request timeout as a duration.
func (c *ProviderConfig) Timeout() time.Duration {
	return time.Duration(c.Refresh.TimeoutSeconds) * time.Second
}
