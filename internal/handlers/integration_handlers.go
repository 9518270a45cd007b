package handlers

import (
	"errors"
	"net/http"
	"time"

	"bookero/internal/caching"
	"bookero/internal/common"
	"bookero/internal/services"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/random"
)

const oauthStateTTL = 10 * time.Minute

// IntegrationHandlers handles the provider connect/callback flow and
// connection management endpoints
type IntegrationHandlers struct {
	tokenSvc     services.TokenService
	provider     services.ProviderClient
	cacheSvc     caching.CacheService
	providerName string
	redirectURI  string
}

// NewIntegrationHandlers creates a new integration handlers instance
func NewIntegrationHandlers(tokenSvc services.TokenService, provider services.ProviderClient,
	cacheSvc caching.CacheService, providerName, redirectURI string) *IntegrationHandlers {
	return &IntegrationHandlers{
		tokenSvc:     tokenSvc,
		provider:     provider,
		cacheSvc:     cacheSvc,
		providerName: providerName,
		redirectURI:  redirectURI,
	}
}

// Connect handles GET /integrations/:provider/connect. It stashes an
// anti-forgery state nonce and redirects the user to the provider's consent
// screen.
func (h *IntegrationHandlers) Connect(c echo.Context) error {
	ctx := c.Request().Context()

	if c.Param("provider") != h.providerName {
		return common.SendNotFoundError(c, "provider")
	}
	tenantID, ok := common.GetTenantIDFromContext(ctx)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	state := random.String(32)
	if err := h.cacheSvc.SetOAuthState(ctx, state, tenantID, oauthStateTTL); err != nil {
		return common.SendServerError(c, "Failed to start authorization")
	}

	return c.Redirect(http.StatusFound, h.provider.AuthorizeURL(state))
}

// Callback handles GET /integrations/:provider/callback, the provider's
// redirect target. Unauthenticated; the tenant is recovered from the state
// nonce.
func (h *IntegrationHandlers) Callback(c echo.Context) error {
	ctx := c.Request().Context()

	if c.Param("provider") != h.providerName {
		return common.SendNotFoundError(c, "provider")
	}

	if providerErr := c.QueryParam("error"); providerErr != "" {
		return common.SendClientError(c, "Authorization was denied: "+providerErr)
	}

	code := c.QueryParam("code")
	state := c.QueryParam("state")
	if code == "" || state == "" {
		return common.SendValidationError(c, "code", "code and state are required")
	}

	tenantID, err := h.cacheSvc.ConsumeOAuthState(ctx, state)
	if err != nil {
		return common.SendClientError(c, "Invalid or expired state")
	}

	// The redirect URI sent here must match the one used to obtain the
	// code, byte for byte.
	cred, err := h.tokenSvc.ExchangeAuthorizationCode(ctx, tenantID, code, h.redirectURI)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidGrant):
			return common.SendClientError(c, "Authorization code was rejected by the provider")
		case errors.Is(err, services.ErrProviderUnavailable):
			return c.JSON(http.StatusBadGateway, common.CreateErrorResponse("PROVIDER_UNAVAILABLE", "Provider is temporarily unavailable, try again", nil))
		default:
			return common.SendServerError(c, "Failed to complete authorization")
		}
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"provider":  h.providerName,
		"connected": true,
		"renewable": cred.Renewable,
	})
}

// Disconnect handles DELETE /integrations/:provider
func (h *IntegrationHandlers) Disconnect(c echo.Context) error {
	ctx := c.Request().Context()

	if c.Param("provider") != h.providerName {
		return common.SendNotFoundError(c, "provider")
	}
	tenantID, ok := common.GetTenantIDFromContext(ctx)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	if err := h.tokenSvc.Disconnect(ctx, tenantID); err != nil {
		return common.SendServerError(c, "Failed to disconnect")
	}
	return c.NoContent(http.StatusNoContent)
}

// Status handles GET /integrations/:provider/status
func (h *IntegrationHandlers) Status(c echo.Context) error {
	ctx := c.Request().Context()

	if c.Param("provider") != h.providerName {
		return common.SendNotFoundError(c, "provider")
	}
	tenantID, ok := common.GetTenantIDFromContext(ctx)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	status, err := h.tokenSvc.Status(ctx, tenantID)
	if err != nil {
		return common.SendServerError(c, "Failed to load integration status")
	}
	return c.JSON(http.StatusOK, status)
}
