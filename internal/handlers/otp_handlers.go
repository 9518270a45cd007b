package handlers

import (
	"errors"
	"net/http"

	"bookero/internal/common"
	"bookero/internal/jobs"
	"bookero/internal/models"
	"bookero/internal/services"

	"github.com/hibiken/asynq"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

// OTPHandlers handles email one-time-password endpoints
type OTPHandlers struct {
	otpSvc      services.OTPService
	asynqClient *asynq.Client
}

// NewOTPHandlers creates a new OTP handlers instance
func NewOTPHandlers(otpSvc services.OTPService, asynqClient *asynq.Client) *OTPHandlers {
	return &OTPHandlers{
		otpSvc:      otpSvc,
		asynqClient: asynqClient,
	}
}

// RequestOTP handles POST /auth/otp/request
func (h *OTPHandlers) RequestOTP(c echo.Context) error {
	ctx := c.Request().Context()

	var req models.RequestOTPRequest
	if err := c.Bind(&req); err != nil {
		return common.SendClientError(c, "Invalid request data")
	}
	if err := common.ValidateEmail(req.Email, "email"); err != nil {
		return common.SendValidationError(c, "email", err.Error())
	}
	if req.Purpose == "" {
		req.Purpose = models.OTPPurposeVerifyEmail
	}

	code, err := h.otpSvc.Request(ctx, req.Email, req.Purpose)
	if err != nil {
		if errors.Is(err, services.ErrOTPRateLimited) {
			return c.JSON(http.StatusTooManyRequests, common.CreateErrorResponse("RATE_LIMITED", "Too many code requests, try again later", nil))
		}
		return common.SendServerError(c, "Failed to issue code")
	}

	task, err := jobs.NewOTPEmailTask(req.Email, code, req.Purpose)
	if err != nil {
		return common.SendServerError(c, "Failed to queue code delivery")
	}
	if _, err := h.asynqClient.Enqueue(task); err != nil {
		logrus.WithError(err).Error("failed to enqueue otp email")
		return common.SendServerError(c, "Failed to queue code delivery")
	}

	// The code travels only by email.
	return c.JSON(http.StatusAccepted, map[string]string{
		"message": "Verification code sent",
	})
}

// VerifyOTP handles POST /auth/otp/verify
func (h *OTPHandlers) VerifyOTP(c echo.Context) error {
	ctx := c.Request().Context()

	var req models.VerifyOTPRequest
	if err := c.Bind(&req); err != nil {
		return common.SendClientError(c, "Invalid request data")
	}
	if err := common.ValidateEmail(req.Email, "email"); err != nil {
		return common.SendValidationError(c, "email", err.Error())
	}
	if err := common.ValidateRequiredString(req.Code, "code"); err != nil {
		return common.SendValidationError(c, "code", err.Error())
	}
	if req.Purpose == "" {
		req.Purpose = models.OTPPurposeVerifyEmail
	}

	if err := h.otpSvc.Verify(ctx, req.Email, req.Code, req.Purpose); err != nil {
		switch {
		case errors.Is(err, services.ErrOTPNotFound), errors.Is(err, services.ErrOTPExpired):
			return common.SendClientError(c, "Code is invalid or expired, request a new one")
		case errors.Is(err, services.ErrOTPMismatch):
			return c.JSON(http.StatusUnauthorized, common.CreateErrorResponse("INVALID_CODE", "Incorrect code", nil))
		case errors.Is(err, services.ErrOTPTooMany):
			return c.JSON(http.StatusTooManyRequests, common.CreateErrorResponse("TOO_MANY_ATTEMPTS", "Too many attempts, request a new code", nil))
		default:
			return common.SendServerError(c, "Failed to verify code")
		}
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"verified": true,
	})
}
