package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vipul43/invy-worker/internal/currency"
	"github.com/vipul43/invy-worker/internal/extraction"
	"github.com/vipul43/invy-worker/internal/models"
)

// InvoiceUpserter maps accepted extraction results onto the invoice table
type InvoiceUpserter struct {
	invoices InvoiceStore
	now      func() time.Time
}

func NewInvoiceUpserter(invoices InvoiceStore) *InvoiceUpserter {
	return &InvoiceUpserter{
		invoices: invoices,
		now:      time.Now,
	}
}

// Source is where an extraction result came from
type Source struct {
	OwnerID        string
	MailboxAddress string
	From           string
	Subject        string
	StorageLink    string
}

// Apply stores result for the owner. Applying the same result again leaves one invoice
// whose mutable fields hold the latest values. Returns true when the invoice is new.
func (u *InvoiceUpserter) Apply(ctx context.Context, src Source, result extraction.Result) (bool, error) {
	inv := u.toInvoice(ctx, src, result)

	inserted, err := u.invoices.Upsert(ctx, inv)
	if err != nil {
		return false, fmt.Errorf("failed to upsert invoice %s: %w", inv.InvoiceNumber, err)
	}

	logger := log.WithFields(log.Fields{
		"owner":          src.OwnerID,
		"invoice_number": inv.InvoiceNumber,
		"currency":       inv.Currency,
	})
	if inserted {
		logger.Info("Invoice saved")
	} else {
		logger.Info("Invoice updated")
	}
	return inserted, nil
}

func (u *InvoiceUpserter) toInvoice(ctx context.Context, src Source, result extraction.Result) models.Invoice {
	now := u.now()

	inv := models.Invoice{
		ID:             uuid.NewString(),
		OwnerID:        src.OwnerID,
		InvoiceNumber:  result.InvoiceNumber,
		CompanyName:    result.CompanyName,
		Status:         normalizeStatus(result.Status),
		TotalAmount:    result.TotalAmount,
		Currency:       result.Currency,
		MailboxAddress: src.MailboxAddress,
		EmailFrom:      src.From,
		EmailSubject:   src.Subject,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	inv.Currency = inv.CurrencyOrDefault()

	if result.Category != "" {
		inv.Category = stringPtr(result.Category)
	}

	switch {
	case src.StorageLink != "":
		inv.Link = stringPtr(src.StorageLink)
	case result.Link != "":
		inv.Link = stringPtr(result.Link)
	}

	if rate, ok := currency.RateFrom(ctx); ok {
		amountINR := rate.ToINR(inv.TotalAmount, inv.Currency)
		inv.TotalAmountINR = &amountINR
	}

	return inv
}

func normalizeStatus(status string) string {
	status = strings.ToLower(strings.TrimSpace(status))
	if status == "" {
		return models.InvoiceStatusPending
	}
	return status
}

func stringPtr(s string) *string {
	return &s
}
