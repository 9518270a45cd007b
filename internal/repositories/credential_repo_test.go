package repositories

import (
	"context"
	"testing"
	"time"

	"bookero/internal/models"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

const credentialColumnsPattern = `SELECT id, tenant_id, provider, access_token, refresh_token, expires_at, scope, api_domain, renewable, revoked, created_at, updated_at`

type CredentialRepoTestSuite struct {
	suite.Suite
	mock     pgxmock.PgxPoolIface
	repo     CredentialRepository
	tenantID uuid.UUID
	context  context.Context
}

func (suite *CredentialRepoTestSuite) SetupTest() {
	mock, err := pgxmock.NewPool()
	require.NoError(suite.T(), err)
	suite.mock = mock

	suite.repo = NewCredentialRepo(mock)
	suite.tenantID = uuid.New()
	suite.context = context.Background()
}

func (suite *CredentialRepoTestSuite) TearDownTest() {
	assert.NoError(suite.T(), suite.mock.ExpectationsWereMet())
	suite.mock.Close()
}

func TestCredentialRepoTestSuite(t *testing.T) {
	suite.Run(t, new(CredentialRepoTestSuite))
}

func (suite *CredentialRepoTestSuite) credentialRows(cred *models.TenantOAuthCredential) *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "tenant_id", "provider", "access_token", "refresh_token", "expires_at",
		"scope", "api_domain", "renewable", "revoked", "created_at", "updated_at",
	}).AddRow(
		cred.ID, cred.TenantID, cred.Provider, cred.AccessToken, cred.RefreshToken,
		cred.ExpiresAt, cred.Scope, cred.APIDomain, cred.Renewable, cred.Revoked,
		cred.CreatedAt, cred.UpdatedAt,
	)
}

func (suite *CredentialRepoTestSuite) TestGet_Success() {
	refreshToken := "RT1"
	cred := &models.TenantOAuthCredential{
		ID:           uuid.New(),
		TenantID:     suite.tenantID,
		Provider:     "zoho",
		AccessToken:  "AT1",
		RefreshToken: &refreshToken,
		ExpiresAt:    time.Now().Add(time.Hour),
		Renewable:    true,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}

	suite.mock.ExpectQuery(credentialColumnsPattern).
		WithArgs(suite.tenantID, "zoho").
		WillReturnRows(suite.credentialRows(cred))

	got, err := suite.repo.Get(suite.context, suite.tenantID, "zoho")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), cred.AccessToken, got.AccessToken)
	require.NotNil(suite.T(), got.RefreshToken)
	assert.Equal(suite.T(), "RT1", *got.RefreshToken)
	assert.True(suite.T(), got.Renewable)
}

func (suite *CredentialRepoTestSuite) TestGet_NotFound() {
	suite.mock.ExpectQuery(credentialColumnsPattern).
		WithArgs(suite.tenantID, "zoho").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "tenant_id", "provider", "access_token", "refresh_token", "expires_at",
			"scope", "api_domain", "renewable", "revoked", "created_at", "updated_at",
		}))

	_, err := suite.repo.Get(suite.context, suite.tenantID, "zoho")
	assert.ErrorIs(suite.T(), err, ErrNotFound)
}

func (suite *CredentialRepoTestSuite) TestUpsert() {
	refreshToken := "RT1"
	cred := &models.TenantOAuthCredential{
		ID:           uuid.New(),
		TenantID:     suite.tenantID,
		Provider:     "zoho",
		AccessToken:  "AT1",
		RefreshToken: &refreshToken,
		ExpiresAt:    time.Now().Add(time.Hour),
		Renewable:    true,
	}

	suite.mock.ExpectExec(`INSERT INTO tenant_oauth_credentials`).
		WithArgs(cred.ID, cred.TenantID, cred.Provider, cred.AccessToken, cred.RefreshToken,
			cred.ExpiresAt, cred.Scope, cred.APIDomain, cred.Renewable, cred.Revoked).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := suite.repo.Upsert(suite.context, cred)
	assert.NoError(suite.T(), err)
}

func (suite *CredentialRepoTestSuite) TestDelete_MissingRecordIsNoError() {
	suite.mock.ExpectExec(`DELETE FROM tenant_oauth_credentials`).
		WithArgs(suite.tenantID, "zoho").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	err := suite.repo.Delete(suite.context, suite.tenantID, "zoho")
	assert.NoError(suite.T(), err)
}

func (suite *CredentialRepoTestSuite) TestListExpiring() {
	refreshToken := "RT1"
	cred := &models.TenantOAuthCredential{
		ID:           uuid.New(),
		TenantID:     suite.tenantID,
		Provider:     "zoho",
		AccessToken:  "AT1",
		RefreshToken: &refreshToken,
		ExpiresAt:    time.Now().Add(2 * time.Minute),
		Renewable:    true,
	}

	suite.mock.ExpectQuery(credentialColumnsPattern).
		WithArgs("zoho", 300, 100).
		WillReturnRows(suite.credentialRows(cred))

	creds, err := suite.repo.ListExpiring(suite.context, "zoho", 300, 100)
	require.NoError(suite.T(), err)
	require.Len(suite.T(), creds, 1)
	assert.Equal(suite.T(), suite.tenantID, creds[0].TenantID)
}
