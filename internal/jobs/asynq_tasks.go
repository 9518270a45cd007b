package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"bookero/internal/services"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
)

// Task type definitions
const (
	TypeInvoiceExport        = "invoice_export"
	TypeInvoiceExportPending = "invoice_export_pending"
	TypeOTPEmail             = "otp_email"
)

// Mailer delivers email. The actual transport lives outside this service.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// InvoiceExportPayload defines the payload for invoice export tasks
type InvoiceExportPayload struct {
	TenantID  uuid.UUID `json:"tenant_id"`
	InvoiceID uuid.UUID `json:"invoice_id"`
}

// InvoiceExportPendingPayload defines the payload for batch export tasks
type InvoiceExportPendingPayload struct {
	TenantID uuid.UUID `json:"tenant_id"`
}

// OTPEmailPayload defines the payload for OTP delivery tasks
type OTPEmailPayload struct {
	Email   string `json:"email"`
	Code    string `json:"code"`
	Purpose string `json:"purpose"`
}

// NewInvoiceExportTask creates a new invoice export task
func NewInvoiceExportTask(tenantID, invoiceID uuid.UUID) (*asynq.Task, error) {
	payload := InvoiceExportPayload{
		TenantID:  tenantID,
		InvoiceID: invoiceID,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeInvoiceExport, data), nil
}

// NewInvoiceExportPendingTask creates a task that exports every pending
// invoice for the tenant
func NewInvoiceExportPendingTask(tenantID uuid.UUID) (*asynq.Task, error) {
	payload := InvoiceExportPendingPayload{TenantID: tenantID}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeInvoiceExportPending, data), nil
}

// NewOTPEmailTask creates a new OTP delivery task
func NewOTPEmailTask(email, code, purpose string) (*asynq.Task, error) {
	payload := OTPEmailPayload{
		Email:   email,
		Code:    code,
		Purpose: purpose,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeOTPEmail, data), nil
}

// Worker holds the dependencies for background task handlers
type Worker struct {
	exportSvc services.InvoiceExportService
	mailer    Mailer
}

// NewWorker creates a new background worker
func NewWorker(exportSvc services.InvoiceExportService, mailer Mailer) *Worker {
	return &Worker{
		exportSvc: exportSvc,
		mailer:    mailer,
	}
}

// Register attaches the task handlers to an asynq mux
func (w *Worker) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeInvoiceExport, w.InvoiceExportHandler)
	mux.HandleFunc(TypeInvoiceExportPending, w.InvoiceExportPendingHandler)
	mux.HandleFunc(TypeOTPEmail, w.OTPEmailHandler)
}

// InvoiceExportHandler handles invoice export tasks
func (w *Worker) InvoiceExportHandler(ctx context.Context, t *asynq.Task) error {
	var payload InvoiceExportPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal export payload: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"tenant_id":  payload.TenantID,
		"invoice_id": payload.InvoiceID,
	}).Info("starting invoice export")

	err := w.exportSvc.ExportInvoice(ctx, payload.TenantID, payload.InvoiceID)
	if err != nil {
		if errors.Is(err, services.ErrAuthorizationRequired) || errors.Is(err, services.ErrInvalidGrant) {
			// Retrying cannot help until the tenant reconnects.
			logrus.WithError(err).WithField("tenant_id", payload.TenantID).Warn("invoice export needs tenant reconnect")
			return fmt.Errorf("tenant must reconnect provider: %w", asynq.SkipRetry)
		}
		// ErrProviderUnavailable and friends: let asynq retry with backoff.
		return err
	}
	return nil
}

// InvoiceExportPendingHandler handles batch export tasks
func (w *Worker) InvoiceExportPendingHandler(ctx context.Context, t *asynq.Task) error {
	var payload InvoiceExportPendingPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal batch export payload: %w", err)
	}

	exported, err := w.exportSvc.ExportPending(ctx, payload.TenantID)
	if err != nil {
		if errors.Is(err, services.ErrAuthorizationRequired) || errors.Is(err, services.ErrInvalidGrant) {
			logrus.WithError(err).WithField("tenant_id", payload.TenantID).Warn("batch export needs tenant reconnect")
			return fmt.Errorf("tenant must reconnect provider: %w", asynq.SkipRetry)
		}
		return err
	}

	logrus.WithFields(logrus.Fields{
		"tenant_id": payload.TenantID,
		"exported":  exported,
	}).Info("batch invoice export completed")
	return nil
}

// OTPEmailHandler handles OTP delivery tasks
func (w *Worker) OTPEmailHandler(ctx context.Context, t *asynq.Task) error {
	var payload OTPEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal otp payload: %w", err)
	}

	subject := "Your verification code"
	body := fmt.Sprintf("Your one-time code is %s. It expires in 10 minutes.", payload.Code)
	if err := w.mailer.Send(ctx, payload.Email, subject, body); err != nil {
		logrus.WithError(err).WithField("email", payload.Email).Warn("otp email delivery failed")
		return err
	}
	return nil
}

// LogMailer logs instead of sending, for development environments without
// an SMTP relay.
type LogMailer struct{}

func (LogMailer) Send(_ context.Context, to, subject, _ string) error {
	logrus.WithFields(logrus.Fields{
		"to":      to,
		"subject": subject,
	}).Info("mail suppressed (log mailer)")
	return nil
}
