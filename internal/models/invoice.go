package models

import "time"

// Invoice status values the extraction service is expected to return
const (
	InvoiceStatusPaid    = "paid"
	InvoiceStatusUnpaid  = "unpaid"
	InvoiceStatusPending = "pending"
	InvoiceStatusOverdue = "overdue"
)

const DefaultCurrency = "USD"

// Invoice is unique per (OwnerID, InvoiceNumber).
type Invoice struct {
	ID             string    `gorm:"column:id;primaryKey"`
	OwnerID        string    `gorm:"column:owner_id;uniqueIndex:idx_invoice_owner_number"`
	InvoiceNumber  string    `gorm:"column:invoice_number;uniqueIndex:idx_invoice_owner_number"`
	CompanyName    string    `gorm:"column:company_name"`
	Status         string    `gorm:"column:status;index"`
	TotalAmount    float64   `gorm:"column:total_amount"`
	TotalAmountINR *float64  `gorm:"column:total_amount_inr"`
	Currency       string    `gorm:"column:currency"`
	Category       *string   `gorm:"column:category"`
	Link           *string   `gorm:"column:link"`
	MailboxAddress string    `gorm:"column:mailbox_address"`
	EmailFrom      string    `gorm:"column:email_from"`
	EmailSubject   string    `gorm:"column:email_subject"`
	CreatedAt      time.Time `gorm:"column:created_at"`
	UpdatedAt      time.Time `gorm:"column:updated_at"`
}

// TableName specifies the table name for GORM
func (Invoice) TableName() string {
	return "invoice"
}

// CurrencyOrDefault returns the invoice currency, USD when unknown
func (i Invoice) CurrencyOrDefault() string {
	if i.Currency == "" {
		return DefaultCurrency
	}
	return i.Currency
}
