package repositories

import (
	"context"
	"errors"

	"bookero/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type InvoiceRepository interface {
	GetByID(ctx context.Context, tenantID, id uuid.UUID) (*models.Invoice, error)
	UpdateExportStatus(ctx context.Context, tenantID, id uuid.UUID, status string, externalID *string) error
	ListPendingExport(ctx context.Context, tenantID uuid.UUID, limit int) ([]*models.Invoice, error)
}

type invoiceRepo struct {
	db Database
}

func NewInvoiceRepo(db Database) InvoiceRepository {
	return &invoiceRepo{db: db}
}

const invoiceColumns = `id, tenant_id, booking_id, invoice_number, customer_name, customer_email, currency, total_amount, status, export_status, external_id, issued_date, due_date, last_exported_at, created_at, updated_at`

func scanInvoice(row pgx.Row) (*models.Invoice, error) {
	inv := &models.Invoice{}
	err := row.Scan(
		&inv.ID, &inv.TenantID, &inv.BookingID, &inv.InvoiceNumber, &inv.CustomerName,
		&inv.CustomerEmail, &inv.Currency, &inv.TotalAmount, &inv.Status, &inv.ExportStatus,
		&inv.ExternalID, &inv.IssuedDate, &inv.DueDate, &inv.LastExportedAt,
		&inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return inv, nil
}

func (r *invoiceRepo) GetByID(ctx context.Context, tenantID, id uuid.UUID) (*models.Invoice, error) {
	query := `
		SELECT ` + invoiceColumns + `
		FROM invoices
		WHERE tenant_id = $1 AND id = $2
	`
	inv, err := scanInvoice(r.db.QueryRow(ctx, query, tenantID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return inv, nil
}

func (r *invoiceRepo) UpdateExportStatus(ctx context.Context, tenantID, id uuid.UUID, status string, externalID *string) error {
	query := `
		UPDATE invoices
		SET export_status = $1, external_id = COALESCE($2, external_id), last_exported_at = NOW(), updated_at = NOW()
		WHERE tenant_id = $3 AND id = $4
	`
	_, err := r.db.Exec(ctx, query, status, externalID, tenantID, id)
	return err
}

func (r *invoiceRepo) ListPendingExport(ctx context.Context, tenantID uuid.UUID, limit int) ([]*models.Invoice, error) {
	query := `
		SELECT ` + invoiceColumns + `
		FROM invoices
		WHERE tenant_id = $1 AND export_status = $2
		ORDER BY issued_date ASC
		LIMIT $3
	`
	rows, err := r.db.Query(ctx, query, tenantID, models.InvoiceExportPending, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invoices []*models.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}
