package services

import (
	"context"
	"errors"
	"fmt"

	"bookero/internal/models"
	"bookero/internal/repositories"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const exportBatchSize = 50

// InvoiceExportService pushes booking invoices to the connected invoicing
// provider using the tenant's OAuth credential.
type InvoiceExportService interface {
	// ExportInvoice pushes one invoice. Fails with ErrAuthorizationRequired
	// when the tenant has to reconnect and ErrProviderUnavailable on
	// transient provider failures (retryable).
	ExportInvoice(ctx context.Context, tenantID, invoiceID uuid.UUID) error

	// ExportPending pushes the tenant's pending invoices and returns how
	// many were exported. Stops on the first reconnect-required failure.
	ExportPending(ctx context.Context, tenantID uuid.UUID) (int, error)
}

type invoiceExportService struct {
	invoiceRepo repositories.InvoiceRepository
	tokenSvc    TokenService
	provider    ProviderClient
}

func NewInvoiceExportService(invoiceRepo repositories.InvoiceRepository, tokenSvc TokenService, provider ProviderClient) InvoiceExportService {
	return &invoiceExportService{
		invoiceRepo: invoiceRepo,
		tokenSvc:    tokenSvc,
		provider:    provider,
	}
}

func (s *invoiceExportService) ExportInvoice(ctx context.Context, tenantID, invoiceID uuid.UUID) error {
	invoice, err := s.invoiceRepo.GetByID(ctx, tenantID, invoiceID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return fmt.Errorf("invoice %s not found", invoiceID)
		}
		return fmt.Errorf("failed to load invoice: %w", err)
	}

	token, err := s.tokenSvc.GetValidAccessToken(ctx, tenantID)
	if err != nil {
		return err
	}

	externalID, err := s.provider.PushInvoice(ctx, token, invoice)
	if err != nil {
		if !errors.Is(err, ErrProviderUnavailable) {
			if statusErr := s.invoiceRepo.UpdateExportStatus(ctx, tenantID, invoiceID, models.InvoiceExportFailed, nil); statusErr != nil {
				logrus.WithError(statusErr).WithField("invoice_id", invoiceID).Error("failed to mark invoice export failed")
			}
		}
		return err
	}

	if err := s.invoiceRepo.UpdateExportStatus(ctx, tenantID, invoiceID, models.InvoiceExportDone, &externalID); err != nil {
		return fmt.Errorf("invoice exported but status update failed: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"tenant_id":   tenantID,
		"invoice_id":  invoiceID,
		"external_id": externalID,
	}).Info("invoice exported")
	return nil
}

func (s *invoiceExportService) ExportPending(ctx context.Context, tenantID uuid.UUID) (int, error) {
	invoices, err := s.invoiceRepo.ListPendingExport(ctx, tenantID, exportBatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list pending invoices: %w", err)
	}

	exported := 0
	for _, invoice := range invoices {
		if err := s.ExportInvoice(ctx, tenantID, invoice.ID); err != nil {
			if errors.Is(err, ErrAuthorizationRequired) || errors.Is(err, ErrInvalidGrant) {
				// Every remaining invoice would fail the same way.
				return exported, err
			}
			logrus.WithError(err).WithField("invoice_id", invoice.ID).Warn("invoice export failed, continuing")
			continue
		}
		exported++
	}
	return exported, nil
}
