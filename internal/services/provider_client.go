package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"bookero/internal/config"
	"bookero/internal/models"

	"github.com/sirupsen/logrus"
)

// ProviderClient talks to the external invoicing provider's OAuth token
// endpoint and REST API.
type ProviderClient interface {
	// ExchangeCode redeems an authorization code. redirectURI must match the
	// URI registered with the provider byte for byte.
	ExchangeCode(ctx context.Context, code, redirectURI string) (*models.ProviderTokenResponse, error)

	// Refresh exchanges a refresh token for a fresh access token.
	Refresh(ctx context.Context, refreshToken string) (*models.ProviderTokenResponse, error)

	// AuthorizeURL builds the URL the end user is redirected to. It always
	// requests offline access and forces the consent screen, since the
	// provider only issues a refresh token on a fresh consent.
	AuthorizeURL(state string) string

	// PushInvoice creates an invoice at the provider using the given bearer
	// token and returns the provider-side invoice ID.
	PushInvoice(ctx context.Context, accessToken string, invoice *models.Invoice) (string, error)
}

type providerClient struct {
	cfg        *config.ProviderIntegration
	httpClient *http.Client
}

// NewProviderClient creates a token-endpoint and API client for the
// configured provider.
func NewProviderClient(cfg *config.ProviderIntegration, timeout time.Duration) ProviderClient {
	return &providerClient{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *providerClient) AuthorizeURL(state string) string {
	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", c.cfg.ClientID)
	q.Set("redirect_uri", c.cfg.RedirectURI)
	q.Set("scope", strings.Join(c.cfg.Scopes, " "))
	q.Set("state", state)
	q.Set("access_type", "offline")
	q.Set("prompt", "consent")
	return c.cfg.AuthorizeURL + "?" + q.Encode()
}

func (c *providerClient) ExchangeCode(ctx context.Context, code, redirectURI string) (*models.ProviderTokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", redirectURI)
	form.Set("client_id", c.cfg.ClientID)
	form.Set("client_secret", c.cfg.ClientSecret)
	return c.postToken(ctx, form)
}

func (c *providerClient) Refresh(ctx context.Context, refreshToken string) (*models.ProviderTokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	form.Set("client_id", c.cfg.ClientID)
	form.Set("client_secret", c.cfg.ClientSecret)
	return c.postToken(ctx, form)
}

// postToken performs the form-encoded token request and maps every failure
// into the integration error taxonomy.
func (c *providerClient) postToken(ctx context.Context, form url.Values) (*models.ProviderTokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrProviderUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: token endpoint returned status %d", ErrProviderUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrProviderUnavailable, err)
	}

	tokenResp := &models.ProviderTokenResponse{}
	if err := json.Unmarshal(body, tokenResp); err != nil {
		logrus.WithFields(logrus.Fields{
			"provider": c.cfg.Name,
			"status":   resp.StatusCode,
		}).Warn("unparseable token endpoint response")
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	// Zoho reports errors with HTTP 200 and an error field, other providers
	// use 400. Handle both.
	if tokenResp.Error != "" {
		if c.isRevokedError(tokenResp.Error) {
			return nil, fmt.Errorf("%w: %s: %s", ErrInvalidGrant, tokenResp.Error, tokenResp.ErrorDescription)
		}
		return nil, fmt.Errorf("%w: %s: %s", ErrProviderUnavailable, tokenResp.Error, tokenResp.ErrorDescription)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: token endpoint returned status %d", ErrProviderUnavailable, resp.StatusCode)
	}

	if tokenResp.AccessToken == "" {
		logrus.WithField("provider", c.cfg.Name).Warn("token endpoint success response missing access_token")
		return nil, fmt.Errorf("%w: missing access_token", ErrMalformedResponse)
	}
	if tokenResp.ExpiresIn <= 0 {
		// A token with no lifetime would be expired the moment it is stored.
		logrus.WithField("provider", c.cfg.Name).Warn("token endpoint success response missing expires_in")
		return nil, fmt.Errorf("%w: missing or non-positive expires_in", ErrMalformedResponse)
	}
	return tokenResp, nil
}

// isRevokedError checks the error code against the configured list of codes
// that mean the grant itself is dead.
func (c *providerClient) isRevokedError(code string) bool {
	for _, revoked := range c.cfg.RevokedErrorCodes {
		if strings.EqualFold(code, revoked) {
			return true
		}
	}
	return false
}

func (c *providerClient) PushInvoice(ctx context.Context, accessToken string, invoice *models.Invoice) (string, error) {
	payload := map[string]interface{}{
		"reference_number": invoice.InvoiceNumber,
		"customer_name":    invoice.CustomerName,
		"currency_code":    invoice.Currency,
		"total":            invoice.TotalAmount,
		"date":             invoice.IssuedDate.Format("2006-01-02"),
		"due_date":         invoice.DueDate.Format("2006-01-02"),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal invoice payload: %w", err)
	}

	endpoint := c.cfg.APIBaseURL + "/invoices"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(string(data)))
	if err != nil {
		return "", fmt.Errorf("%w: build request: %v", ErrProviderUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return "", fmt.Errorf("%w: provider rejected access token", ErrAuthorizationRequired)
	case resp.StatusCode >= 500:
		return "", fmt.Errorf("%w: invoice API returned status %d", ErrProviderUnavailable, resp.StatusCode)
	case resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated:
		return "", fmt.Errorf("invoice API returned status %d: %s", resp.StatusCode, string(body))
	}

	var created struct {
		Invoice struct {
			ID string `json:"invoice_id"`
		} `json:"invoice"`
	}
	if err := json.Unmarshal(body, &created); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return created.Invoice.ID, nil
}
