package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"testing"
	"time"

	"bookero/internal/models"
	"bookero/internal/repositories"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type MockOTPRepository struct {
	mock.Mock
}

func (m *MockOTPRepository) Create(ctx context.Context, otp *models.EmailOTP) error {
	args := m.Called(ctx, otp)
	return args.Error(0)
}

func (m *MockOTPRepository) GetActive(ctx context.Context, email, purpose string) (*models.EmailOTP, error) {
	args := m.Called(ctx, email, purpose)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.EmailOTP), args.Error(1)
}

func (m *MockOTPRepository) IncrementAttempts(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockOTPRepository) MarkConsumed(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockOTPRepository) DeleteExpired(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

// limitedCache flips to rate-limited after a configured number of checks.
type limitedCache struct {
	nopCache
	limited bool
}

func (c *limitedCache) IsRateLimited(context.Context, string, int, time.Duration) (bool, error) {
	return c.limited, nil
}

type OTPServiceTestSuite struct {
	suite.Suite
	mockRepo *MockOTPRepository
	cache    *limitedCache
	service  OTPService
	ctx      context.Context
}

func (suite *OTPServiceTestSuite) SetupTest() {
	suite.mockRepo = &MockOTPRepository{}
	suite.cache = &limitedCache{}
	suite.service = NewOTPService(suite.mockRepo, suite.cache)
	suite.ctx = context.Background()

	suite.mockRepo.Test(suite.T())
}

func (suite *OTPServiceTestSuite) TearDownTest() {
	suite.mockRepo.AssertExpectations(suite.T())
}

func TestOTPServiceTestSuite(t *testing.T) {
	suite.Run(t, new(OTPServiceTestSuite))
}

func sha256Hex(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

func (suite *OTPServiceTestSuite) TestRequestIssuesHashedCode() {
	var stored *models.EmailOTP
	suite.mockRepo.On("Create", suite.ctx, mock.AnythingOfType("*models.EmailOTP")).Return(nil).Run(func(args mock.Arguments) {
		stored = args.Get(1).(*models.EmailOTP)
	})

	code, err := suite.service.Request(suite.ctx, " User@Example.COM ", models.OTPPurposeVerifyEmail)
	require.NoError(suite.T(), err)
	assert.Len(suite.T(), code, 6)

	require.NotNil(suite.T(), stored)
	assert.Equal(suite.T(), "user@example.com", stored.Email)
	assert.Equal(suite.T(), sha256Hex(code), stored.CodeHash)
	assert.NotEqual(suite.T(), code, stored.CodeHash)
	assert.True(suite.T(), stored.ExpiresAt.After(time.Now()))
}

func (suite *OTPServiceTestSuite) TestRequestRateLimited() {
	suite.cache.limited = true

	_, err := suite.service.Request(suite.ctx, "user@example.com", models.OTPPurposeVerifyEmail)
	assert.ErrorIs(suite.T(), err, ErrOTPRateLimited)
}

func (suite *OTPServiceTestSuite) TestVerifySuccessConsumesCode() {
	otp := &models.EmailOTP{
		ID:        uuid.New(),
		Email:     "user@example.com",
		CodeHash:  sha256Hex("123456"),
		Purpose:   models.OTPPurposeVerifyEmail,
		ExpiresAt: time.Now().Add(5 * time.Minute),
	}
	suite.mockRepo.On("GetActive", suite.ctx, "user@example.com", models.OTPPurposeVerifyEmail).Return(otp, nil)
	suite.mockRepo.On("MarkConsumed", suite.ctx, otp.ID).Return(nil)

	err := suite.service.Verify(suite.ctx, "user@example.com", "123456", models.OTPPurposeVerifyEmail)
	assert.NoError(suite.T(), err)
}

func (suite *OTPServiceTestSuite) TestVerifyWrongCodeCountsAttempt() {
	otp := &models.EmailOTP{
		ID:        uuid.New(),
		Email:     "user@example.com",
		CodeHash:  sha256Hex("123456"),
		Purpose:   models.OTPPurposeVerifyEmail,
		ExpiresAt: time.Now().Add(5 * time.Minute),
	}
	suite.mockRepo.On("GetActive", suite.ctx, "user@example.com", models.OTPPurposeVerifyEmail).Return(otp, nil)
	suite.mockRepo.On("IncrementAttempts", suite.ctx, otp.ID).Return(nil)

	err := suite.service.Verify(suite.ctx, "user@example.com", "654321", models.OTPPurposeVerifyEmail)
	assert.ErrorIs(suite.T(), err, ErrOTPMismatch)
}

func (suite *OTPServiceTestSuite) TestVerifyExpiredCode() {
	otp := &models.EmailOTP{
		ID:        uuid.New(),
		Email:     "user@example.com",
		CodeHash:  sha256Hex("123456"),
		Purpose:   models.OTPPurposeVerifyEmail,
		ExpiresAt: time.Now().Add(-time.Minute),
	}
	suite.mockRepo.On("GetActive", suite.ctx, "user@example.com", models.OTPPurposeVerifyEmail).Return(otp, nil)

	err := suite.service.Verify(suite.ctx, "user@example.com", "123456", models.OTPPurposeVerifyEmail)
	assert.ErrorIs(suite.T(), err, ErrOTPExpired)
}

func (suite *OTPServiceTestSuite) TestVerifyTooManyAttempts() {
	otp := &models.EmailOTP{
		ID:        uuid.New(),
		Email:     "user@example.com",
		CodeHash:  sha256Hex("123456"),
		Purpose:   models.OTPPurposeVerifyEmail,
		Attempts:  5,
		ExpiresAt: time.Now().Add(5 * time.Minute),
	}
	suite.mockRepo.On("GetActive", suite.ctx, "user@example.com", models.OTPPurposeVerifyEmail).Return(otp, nil)

	err := suite.service.Verify(suite.ctx, "user@example.com", "123456", models.OTPPurposeVerifyEmail)
	assert.ErrorIs(suite.T(), err, ErrOTPTooMany)
}

func (suite *OTPServiceTestSuite) TestVerifyNoActiveCode() {
	suite.mockRepo.On("GetActive", suite.ctx, "user@example.com", models.OTPPurposeVerifyEmail).Return(nil, repositories.ErrNotFound)

	err := suite.service.Verify(suite.ctx, "user@example.com", "123456", models.OTPPurposeVerifyEmail)
	assert.ErrorIs(suite.T(), err, ErrOTPNotFound)
}

func (suite *OTPServiceTestSuite) TestPurgeExpired() {
	suite.mockRepo.On("DeleteExpired", suite.ctx).Return(int64(7), nil)

	purged, err := suite.service.PurgeExpired(suite.ctx)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), int64(7), purged)
}
