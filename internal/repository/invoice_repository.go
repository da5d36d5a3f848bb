package repository

import (
	"context"
	"fmt"

	"github.com/vipul43/invy-worker/internal/models"
	"gorm.io/gorm"
)

type InvoiceRepository struct {
	db *gorm.DB
}

func NewInvoiceRepository(db *gorm.DB) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

// upsertInvoiceSQL keys on (owner_id, invoice_number). Repeat sightings only touch
// the mutable columns, and a missing INR amount keeps the stored one.
// xmax = 0 tells a fresh insert apart from an update.
const upsertInvoiceSQL = `
	INSERT INTO invoice (
		id, owner_id, invoice_number, company_name, status, total_amount,
		total_amount_inr, currency, category, link, mailbox_address,
		email_from, email_subject, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (owner_id, invoice_number) DO UPDATE SET
		status = EXCLUDED.status,
		total_amount = EXCLUDED.total_amount,
		total_amount_inr = COALESCE(EXCLUDED.total_amount_inr, invoice.total_amount_inr),
		currency = EXCLUDED.currency,
		category = EXCLUDED.category,
		link = EXCLUDED.link,
		updated_at = EXCLUDED.updated_at
	RETURNING (xmax = 0) AS inserted
`

// Upsert inserts the invoice or updates the existing one of the same owner and number.
// Reports whether a new row was created.
func (r *InvoiceRepository) Upsert(ctx context.Context, inv models.Invoice) (bool, error) {
	var inserted bool
	err := r.db.WithContext(ctx).Raw(upsertInvoiceSQL,
		inv.ID, inv.OwnerID, inv.InvoiceNumber, inv.CompanyName, inv.Status, inv.TotalAmount,
		inv.TotalAmountINR, inv.CurrencyOrDefault(), inv.Category, inv.Link, inv.MailboxAddress,
		inv.EmailFrom, inv.EmailSubject, inv.CreatedAt, inv.UpdatedAt,
	).Scan(&inserted).Error
	if err != nil {
		return false, fmt.Errorf("failed to upsert invoice: %w", err)
	}
	return inserted, nil
}
