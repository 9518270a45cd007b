package repositories

import (
	"context"
	"errors"

	"bookero/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Database is the subset of pgxpool.Pool the repositories use. pgxmock
// satisfies it in tests.
type Database interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type CredentialRepository interface {
	Get(ctx context.Context, tenantID uuid.UUID, provider string) (*models.TenantOAuthCredential, error)
	Upsert(ctx context.Context, cred *models.TenantOAuthCredential) error
	Delete(ctx context.Context, tenantID uuid.UUID, provider string) error
	ListExpiring(ctx context.Context, provider string, withinSeconds int, limit int) ([]*models.TenantOAuthCredential, error)
}

type credentialRepo struct {
	db Database
}

func NewCredentialRepo(db Database) CredentialRepository {
	return &credentialRepo{db: db}
}

func (r *credentialRepo) Get(ctx context.Context, tenantID uuid.UUID, provider string) (*models.TenantOAuthCredential, error) {
	cred := &models.TenantOAuthCredential{}
	query := `
		SELECT id, tenant_id, provider, access_token, refresh_token, expires_at, scope, api_domain, renewable, revoked, created_at, updated_at
		FROM tenant_oauth_credentials
		WHERE tenant_id = $1 AND provider = $2
	`
	err := r.db.QueryRow(ctx, query, tenantID, provider).Scan(
		&cred.ID, &cred.TenantID, &cred.Provider, &cred.AccessToken, &cred.RefreshToken,
		&cred.ExpiresAt, &cred.Scope, &cred.APIDomain, &cred.Renewable, &cred.Revoked,
		&cred.CreatedAt, &cred.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return cred, nil
}

func (r *credentialRepo) Upsert(ctx context.Context, cred *models.TenantOAuthCredential) error {
	query := `
		INSERT INTO tenant_oauth_credentials (id, tenant_id, provider, access_token, refresh_token, expires_at, scope, api_domain, renewable, revoked, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
		ON CONFLICT (tenant_id, provider) DO UPDATE
		SET access_token = EXCLUDED.access_token,
		    refresh_token = EXCLUDED.refresh_token,
		    expires_at = EXCLUDED.expires_at,
		    scope = EXCLUDED.scope,
		    api_domain = EXCLUDED.api_domain,
		    renewable = EXCLUDED.renewable,
		    revoked = EXCLUDED.revoked,
		    updated_at = NOW()
	`
	_, err := r.db.Exec(ctx, query, cred.ID, cred.TenantID, cred.Provider, cred.AccessToken,
		cred.RefreshToken, cred.ExpiresAt, cred.Scope, cred.APIDomain, cred.Renewable, cred.Revoked)
	return err
}

func (r *credentialRepo) Delete(ctx context.Context, tenantID uuid.UUID, provider string) error {
	query := `DELETE FROM tenant_oauth_credentials WHERE tenant_id = $1 AND provider = $2`
	_, err := r.db.Exec(ctx, query, tenantID, provider)
	return err
}

func (r *credentialRepo) ListExpiring(ctx context.Context, provider string, withinSeconds int, limit int) ([]*models.TenantOAuthCredential, error) {
	query := `
		SELECT id, tenant_id, provider, access_token, refresh_token, expires_at, scope, api_domain, renewable, revoked, created_at, updated_at
		FROM tenant_oauth_credentials
		WHERE provider = $1
		  AND revoked = FALSE
		  AND renewable = TRUE
		  AND expires_at < NOW() + ($2 * INTERVAL '1 second')
		ORDER BY expires_at ASC
		LIMIT $3
	`
	rows, err := r.db.Query(ctx, query, provider, withinSeconds, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var creds []*models.TenantOAuthCredential
	for rows.Next() {
		cred := &models.TenantOAuthCredential{}
		if err := rows.Scan(
			&cred.ID, &cred.TenantID, &cred.Provider, &cred.AccessToken, &cred.RefreshToken,
			&cred.ExpiresAt, &cred.Scope, &cred.APIDomain, &cred.Renewable, &cred.Revoked,
			&cred.CreatedAt, &cred.UpdatedAt,
		); err != nil {
			return nil, err
		}
		creds = append(creds, cred)
	}
	return creds, rows.Err()
}
