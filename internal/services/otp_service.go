package services

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"bookero/internal/caching"
	"bookero/internal/models"
	"bookero/internal/repositories"

	"github.com/google/uuid"
	"github.com/labstack/gommon/random"
	"github.com/sirupsen/logrus"
)

const (
	otpLength      = 6
	otpTTL         = 10 * time.Minute
	otpMaxAttempts = 5

	// At most this many codes per email per window.
	otpRequestLimit  = 3
	otpRequestWindow = 15 * time.Minute
)

// OTPService issues and verifies email one-time passwords. Delivery of the
// code is the mailer's job; this service hands the plaintext code to the
// caller for dispatch and never stores it.
type OTPService interface {
	// Request creates a code for the email and purpose and returns the
	// plaintext code for delivery. Fails with ErrOTPRateLimited when the
	// email has requested too many codes recently.
	Request(ctx context.Context, email, purpose string) (string, error)

	// Verify checks a submitted code and consumes it on success.
	Verify(ctx context.Context, email, code, purpose string) error

	// PurgeExpired removes dead codes; driven by the background scheduler.
	PurgeExpired(ctx context.Context) (int64, error)
}

type otpService struct {
	otpRepo  repositories.OTPRepository
	cacheSvc caching.CacheService
}

func NewOTPService(otpRepo repositories.OTPRepository, cacheSvc caching.CacheService) OTPService {
	return &otpService{
		otpRepo:  otpRepo,
		cacheSvc: cacheSvc,
	}
}

func (s *otpService) Request(ctx context.Context, email, purpose string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	limited, err := s.cacheSvc.IsRateLimited(ctx, "otp:"+email, otpRequestLimit, otpRequestWindow)
	if err != nil {
		logrus.WithError(err).Warn("otp rate limit check failed, allowing request")
	} else if limited {
		return "", ErrOTPRateLimited
	}

	code := random.String(otpLength, random.Numeric)
	otp := &models.EmailOTP{
		ID:        uuid.New(),
		Email:     email,
		CodeHash:  hashOTPCode(code),
		Purpose:   purpose,
		ExpiresAt: time.Now().Add(otpTTL),
	}
	if err := s.otpRepo.Create(ctx, otp); err != nil {
		return "", fmt.Errorf("failed to store otp: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"email":   email,
		"purpose": purpose,
	}).Info("otp issued")
	return code, nil
}

func (s *otpService) Verify(ctx context.Context, email, code, purpose string) error {
	email = strings.ToLower(strings.TrimSpace(email))

	otp, err := s.otpRepo.GetActive(ctx, email, purpose)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrOTPNotFound
		}
		return fmt.Errorf("failed to load otp: %w", err)
	}

	if otp.Attempts >= otpMaxAttempts {
		return ErrOTPTooMany
	}
	if otp.Expired(time.Now()) {
		return ErrOTPExpired
	}

	if subtle.ConstantTimeCompare([]byte(otp.CodeHash), []byte(hashOTPCode(code))) != 1 {
		if err := s.otpRepo.IncrementAttempts(ctx, otp.ID); err != nil {
			logrus.WithError(err).Warn("failed to record otp attempt")
		}
		return ErrOTPMismatch
	}

	if err := s.otpRepo.MarkConsumed(ctx, otp.ID); err != nil {
		return fmt.Errorf("failed to consume otp: %w", err)
	}
	return nil
}

func (s *otpService) PurgeExpired(ctx context.Context) (int64, error) {
	return s.otpRepo.DeleteExpired(ctx)
}

func hashOTPCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}
