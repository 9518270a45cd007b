package handlers

import (
	"errors"
	"net/http"

	"bookero/internal/common"
	"bookero/internal/jobs"
	"bookero/internal/repositories"

	"github.com/hibiken/asynq"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

// InvoiceHandlers handles invoice export endpoints
type InvoiceHandlers struct {
	invoiceRepo repositories.InvoiceRepository
	asynqClient *asynq.Client
}

// NewInvoiceHandlers creates a new invoice handlers instance
func NewInvoiceHandlers(invoiceRepo repositories.InvoiceRepository, asynqClient *asynq.Client) *InvoiceHandlers {
	return &InvoiceHandlers{
		invoiceRepo: invoiceRepo,
		asynqClient: asynqClient,
	}
}

// ExportInvoice handles POST /invoices/:id/export (non-blocking with Asynq)
func (h *InvoiceHandlers) ExportInvoice(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID, ok := common.GetTenantIDFromContext(ctx)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	invoiceID, err := common.ValidateUUID(c.Param("id"), "invoice id")
	if err != nil {
		return common.SendValidationError(c, "id", err.Error())
	}

	if _, err := h.invoiceRepo.GetByID(ctx, tenantID, invoiceID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return common.SendNotFoundError(c, "Invoice")
		}
		return common.SendServerError(c, "Failed to load invoice")
	}

	task, err := jobs.NewInvoiceExportTask(tenantID, invoiceID)
	if err != nil {
		return common.SendServerError(c, "Failed to create export task")
	}

	info, err := h.asynqClient.Enqueue(task)
	if err != nil {
		return common.SendServerError(c, "Failed to enqueue export task")
	}

	userID, _ := common.GetUserIDFromContext(ctx)
	logrus.WithFields(logrus.Fields{
		"tenant_id":  tenantID,
		"user_id":    userID,
		"invoice_id": invoiceID,
		"job_id":     info.ID,
	}).Info("invoice export queued")

	return c.JSON(http.StatusAccepted, map[string]interface{}{
		"message": "Export job queued successfully",
		"job_id":  info.ID,
		"type":    jobs.TypeInvoiceExport,
	})
}

// ExportPending handles POST /invoices/export-pending (non-blocking with Asynq)
func (h *InvoiceHandlers) ExportPending(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID, ok := common.GetTenantIDFromContext(ctx)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	task, err := jobs.NewInvoiceExportPendingTask(tenantID)
	if err != nil {
		return common.SendServerError(c, "Failed to create export task")
	}

	info, err := h.asynqClient.Enqueue(task)
	if err != nil {
		return common.SendServerError(c, "Failed to enqueue export task")
	}

	userID, _ := common.GetUserIDFromContext(ctx)
	logrus.WithFields(logrus.Fields{
		"tenant_id": tenantID,
		"user_id":   userID,
		"job_id":    info.ID,
	}).Info("batch invoice export queued")

	return c.JSON(http.StatusAccepted, map[string]interface{}{
		"message": "Export job queued successfully",
		"job_id":  info.ID,
		"type":    jobs.TypeInvoiceExportPending,
	})
}

// ListPendingExports handles GET /invoices/pending-export
func (h *InvoiceHandlers) ListPendingExports(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID, ok := common.GetTenantIDFromContext(ctx)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	invoices, err := h.invoiceRepo.ListPendingExport(ctx, tenantID, 100)
	if err != nil {
		return common.SendServerError(c, "Failed to list pending invoices")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"invoices": invoices,
		"count":    len(invoices),
	})
}
