package models

import (
	"time"

	"github.com/google/uuid"
)

// Invoice export statuses
const (
	InvoiceExportPending = "pending"
	InvoiceExportDone    = "exported"
	InvoiceExportFailed  = "failed"
)

type Invoice struct {
	ID             uuid.UUID  `json:"id" db:"id"`
	TenantID       uuid.UUID  `json:"tenant_id" db:"tenant_id"`
	BookingID      uuid.UUID  `json:"booking_id" db:"booking_id"`
	InvoiceNumber  string     `json:"invoice_number" db:"invoice_number"`
	CustomerName   string     `json:"customer_name" db:"customer_name"`
	CustomerEmail  *string    `json:"customer_email" db:"customer_email"`
	Currency       string     `json:"currency" db:"currency"`
	TotalAmount    float64    `json:"total_amount" db:"total_amount"`
	Status         string     `json:"status" db:"status"`
	ExportStatus   string     `json:"export_status" db:"export_status"`
	ExternalID     *string    `json:"external_id" db:"external_id"`
	IssuedDate     time.Time  `json:"issued_date" db:"issued_date"`
	DueDate        time.Time  `json:"due_date" db:"due_date"`
	LastExportedAt *time.Time `json:"last_exported_at" db:"last_exported_at"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
}
