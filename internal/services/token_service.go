package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"bookero/internal/caching"
	"bookero/internal/models"
	"bookero/internal/repositories"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// TokenService maintains a valid provider access token per tenant,
// refreshing ahead of expiry and keeping refresh concurrency at one
// in-flight refresh per tenant.
type TokenService interface {
	// GetValidAccessToken returns an access token that is valid at the
	// moment of return, refreshing synchronously when needed. It fails with
	// ErrAuthorizationRequired when the tenant has to reconnect and with
	// ErrProviderUnavailable on transient provider failures.
	GetValidAccessToken(ctx context.Context, tenantID uuid.UUID) (string, error)

	// ExchangeAuthorizationCode redeems the code from the provider callback
	// and stores the resulting credential. redirectURI must match the URI
	// used to obtain the code exactly.
	ExchangeAuthorizationCode(ctx context.Context, tenantID uuid.UUID, code, redirectURI string) (*models.TenantOAuthCredential, error)

	// Disconnect removes the stored credential. Idempotent.
	Disconnect(ctx context.Context, tenantID uuid.UUID) error

	// Status reports the connection state without exposing tokens.
	Status(ctx context.Context, tenantID uuid.UUID) (*models.IntegrationStatus, error)

	// RefreshIfExpiring refreshes the credential when it is inside the
	// refresh-ahead window. Used by the background sweep; no-op otherwise.
	RefreshIfExpiring(ctx context.Context, tenantID uuid.UUID) error
}

type tokenService struct {
	credRepo     repositories.CredentialRepository
	provider     ProviderClient
	cacheSvc     caching.CacheService
	providerName string
	refreshAhead time.Duration

	mu          sync.Mutex
	tenantLocks map[uuid.UUID]*sync.Mutex
}

// NewTokenService creates the per-tenant token lifecycle service.
func NewTokenService(credRepo repositories.CredentialRepository, provider ProviderClient,
	cacheSvc caching.CacheService, providerName string, refreshAhead time.Duration) TokenService {
	return &tokenService{
		credRepo:     credRepo,
		provider:     provider,
		cacheSvc:     cacheSvc,
		providerName: providerName,
		refreshAhead: refreshAhead,
		tenantLocks:  make(map[uuid.UUID]*sync.Mutex),
	}
}

// lockFor returns the tenant's refresh lock, creating it lazily. Tenants
// are independent; only same-tenant refreshes serialize.
func (s *tokenService) lockFor(tenantID uuid.UUID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.tenantLocks[tenantID]
	if !ok {
		l = &sync.Mutex{}
		s.tenantLocks[tenantID] = l
	}
	return l
}

func (s *tokenService) dropLock(tenantID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tenantLocks, tenantID)
}

func (s *tokenService) GetValidAccessToken(ctx context.Context, tenantID uuid.UUID) (string, error) {
	// Fast path: the cache mirror only ever holds tokens outside the
	// refresh-ahead window, so a hit needs no expiry check.
	if token, err := s.cacheSvc.GetAccessToken(ctx, tenantID, s.providerName); err == nil && token != "" {
		return token, nil
	}

	cred, err := s.loadCredential(ctx, tenantID)
	if err != nil {
		return "", err
	}

	now := time.Now()
	if !cred.ExpiringWithin(now, s.refreshAhead) {
		s.mirrorToken(ctx, cred, now)
		return cred.AccessToken, nil
	}

	// Expiring or expired. A non-renewable credential cannot be refreshed.
	if !cred.Renewable || cred.RefreshToken == nil {
		if cred.Expired(now) {
			return "", fmt.Errorf("%w: credential is not renewable", ErrAuthorizationRequired)
		}
		// Still valid, just can't refresh ahead of time.
		return cred.AccessToken, nil
	}

	cred, err = s.refresh(ctx, tenantID)
	if err != nil {
		return "", err
	}
	return cred.AccessToken, nil
}

// refresh serializes on the tenant lock, re-checks whether a concurrent
// caller already refreshed, and performs the network exchange only if the
// stored credential is still inside the refresh-ahead window.
func (s *tokenService) refresh(ctx context.Context, tenantID uuid.UUID) (*models.TenantOAuthCredential, error) {
	lock := s.lockFor(tenantID)
	lock.Lock()
	defer lock.Unlock()

	cred, err := s.loadCredential(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if !cred.ExpiringWithin(now, s.refreshAhead) {
		// A concurrent refresh already completed while we waited.
		return cred, nil
	}
	if !cred.Renewable || cred.RefreshToken == nil {
		return nil, fmt.Errorf("%w: credential is not renewable", ErrAuthorizationRequired)
	}

	resp, err := s.provider.Refresh(ctx, *cred.RefreshToken)
	if err != nil {
		if errors.Is(err, ErrInvalidGrant) {
			// The grant itself is dead. Mark the credential revoked so no
			// further network calls are attempted until the tenant
			// reconnects.
			cred.Revoked = true
			cred.Renewable = false
			if upsertErr := s.credRepo.Upsert(ctx, cred); upsertErr != nil {
				logrus.WithError(upsertErr).WithField("tenant_id", tenantID).Error("failed to persist revoked credential")
			}
			if cacheErr := s.cacheSvc.DeleteAccessToken(ctx, tenantID, s.providerName); cacheErr != nil {
				logrus.WithError(cacheErr).WithField("tenant_id", tenantID).Warn("failed to drop cached access token")
			}
			logrus.WithFields(logrus.Fields{
				"tenant_id": tenantID,
				"provider":  s.providerName,
			}).Warn("refresh token revoked by provider")
			return nil, fmt.Errorf("%w: refresh token revoked by provider", ErrAuthorizationRequired)
		}
		// Timeout, 5xx, malformed body: stored state stays as it was and
		// the caller may retry with backoff.
		return nil, err
	}
	if resp.ExpiresIn <= 0 {
		// Expiry is recomputed from the reported lifetime; without one the
		// stored token would already be expired when returned.
		return nil, fmt.Errorf("%w: refresh response carried no token lifetime", ErrMalformedResponse)
	}

	now = time.Now()
	cred.AccessToken = resp.AccessToken
	cred.ExpiresAt = now.Add(time.Duration(resp.ExpiresIn) * time.Second)
	if resp.RefreshToken != "" {
		// Rotation: the provider issued a replacement. Otherwise the stored
		// refresh token is kept untouched.
		rt := resp.RefreshToken
		cred.RefreshToken = &rt
	}
	if resp.Scope != "" {
		scope := resp.Scope
		cred.Scope = &scope
	}
	if resp.APIDomain != "" {
		domain := resp.APIDomain
		cred.APIDomain = &domain
	}
	cred.Revoked = false

	if err := s.credRepo.Upsert(ctx, cred); err != nil {
		return nil, fmt.Errorf("failed to persist refreshed credential: %w", err)
	}
	s.mirrorToken(ctx, cred, now)

	logrus.WithFields(logrus.Fields{
		"tenant_id":  tenantID,
		"provider":   s.providerName,
		"expires_at": cred.ExpiresAt,
	}).Info("access token refreshed")
	return cred, nil
}

func (s *tokenService) ExchangeAuthorizationCode(ctx context.Context, tenantID uuid.UUID, code, redirectURI string) (*models.TenantOAuthCredential, error) {
	resp, err := s.provider.ExchangeCode(ctx, code, redirectURI)
	if err != nil {
		return nil, err
	}
	if resp.ExpiresIn <= 0 {
		return nil, fmt.Errorf("%w: exchange response carried no token lifetime", ErrMalformedResponse)
	}

	now := time.Now()
	cred := &models.TenantOAuthCredential{
		ID:          uuid.New(),
		TenantID:    tenantID,
		Provider:    s.providerName,
		AccessToken: resp.AccessToken,
		ExpiresAt:   now.Add(time.Duration(resp.ExpiresIn) * time.Second),
		Renewable:   resp.RefreshToken != "",
	}
	if resp.RefreshToken != "" {
		rt := resp.RefreshToken
		cred.RefreshToken = &rt
	} else {
		// The provider granted access without refresh capability, usually
		// because consent was not freshly presented. The credential works
		// until expiry but cannot be renewed.
		logrus.WithFields(logrus.Fields{
			"tenant_id": tenantID,
			"provider":  s.providerName,
		}).Warn("authorization succeeded without refresh token; credential is non-renewable")
	}
	if resp.Scope != "" {
		scope := resp.Scope
		cred.Scope = &scope
	}
	if resp.APIDomain != "" {
		domain := resp.APIDomain
		cred.APIDomain = &domain
	}

	if err := s.credRepo.Upsert(ctx, cred); err != nil {
		return nil, fmt.Errorf("failed to persist credential: %w", err)
	}
	s.mirrorToken(ctx, cred, now)

	logrus.WithFields(logrus.Fields{
		"tenant_id": tenantID,
		"provider":  s.providerName,
		"renewable": cred.Renewable,
	}).Info("provider connected")
	return cred, nil
}

func (s *tokenService) Disconnect(ctx context.Context, tenantID uuid.UUID) error {
	// Take the tenant's refresh lock so an in-flight refresh finishes before
	// the delete; its re-load afterwards finds nothing and cannot write the
	// credential back.
	lock := s.lockFor(tenantID)
	lock.Lock()
	defer lock.Unlock()

	if err := s.credRepo.Delete(ctx, tenantID, s.providerName); err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}
	if err := s.cacheSvc.DeleteAccessToken(ctx, tenantID, s.providerName); err != nil {
		logrus.WithError(err).WithField("tenant_id", tenantID).Warn("failed to drop cached access token")
	}
	s.dropLock(tenantID)
	return nil
}

func (s *tokenService) Status(ctx context.Context, tenantID uuid.UUID) (*models.IntegrationStatus, error) {
	cred, err := s.credRepo.Get(ctx, tenantID, s.providerName)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return &models.IntegrationStatus{Provider: s.providerName, Connected: false}, nil
		}
		return nil, err
	}
	expiresAt := cred.ExpiresAt
	return &models.IntegrationStatus{
		Provider:  s.providerName,
		Connected: !cred.Revoked,
		Renewable: cred.Renewable,
		Revoked:   cred.Revoked,
		ExpiresAt: &expiresAt,
		Scope:     cred.Scope,
	}, nil
}

func (s *tokenService) RefreshIfExpiring(ctx context.Context, tenantID uuid.UUID) error {
	cred, err := s.loadCredential(ctx, tenantID)
	if err != nil {
		return err
	}
	if !cred.ExpiringWithin(time.Now(), s.refreshAhead) || !cred.Renewable || cred.RefreshToken == nil {
		return nil
	}
	_, err = s.refresh(ctx, tenantID)
	return err
}

// loadCredential fetches the stored credential and maps missing or revoked
// records to ErrAuthorizationRequired.
func (s *tokenService) loadCredential(ctx context.Context, tenantID uuid.UUID) (*models.TenantOAuthCredential, error) {
	cred, err := s.credRepo.Get(ctx, tenantID, s.providerName)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, fmt.Errorf("%w: no credential on record", ErrAuthorizationRequired)
		}
		return nil, fmt.Errorf("failed to load credential: %w", err)
	}
	if cred.Revoked {
		return nil, fmt.Errorf("%w: credential revoked", ErrAuthorizationRequired)
	}
	return cred, nil
}

// mirrorToken caches the access token with a TTL that ends at the
// refresh-ahead threshold, so the cache never serves a token due for
// refresh.
func (s *tokenService) mirrorToken(ctx context.Context, cred *models.TenantOAuthCredential, now time.Time) {
	ttl := cred.ExpiresAt.Sub(now) - s.refreshAhead
	if ttl <= 0 {
		return
	}
	if err := s.cacheSvc.SetAccessToken(ctx, cred.TenantID, s.providerName, cred.AccessToken, ttl); err != nil {
		logrus.WithError(err).WithField("tenant_id", cred.TenantID).Warn("failed to cache access token")
	}
}
