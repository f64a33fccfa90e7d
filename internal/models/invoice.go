package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Invoice statuses. InvoiceStatusOverdue is never persisted, it is the read
// view of a pending invoice past its due date.
const (
	InvoiceStatusPending   = "pending"
	InvoiceStatusPaid      = "paid"
	InvoiceStatusOverdue   = "overdue"
	InvoiceStatusCancelled = "cancelled"
)

// Payment method tags stamped on the first transition to paid.
const (
	PaymentMethodPromptPay = "promptpay"
	PaymentMethodManual    = "manual"
)

// DefaultCurrency is used when an invoice is created without a currency.
const DefaultCurrency = "THB"

// MachineSpecs is the free-text machine specification bundle of an invoice.
type MachineSpecs struct {
	CPU       string `json:"cpu,omitempty"`
	RAM       string `json:"ram,omitempty"`
	Storage   string `json:"storage,omitempty"`
	Bandwidth string `json:"bandwidth,omitempty"`
	OS        string `json:"os,omitempty"`
	GPU       string `json:"gpu,omitempty"`
}

// IsEmpty reports whether no specification field is set.
func (s *MachineSpecs) IsEmpty() bool {
	if s == nil {
		return true
	}
	for _, v := range []string{s.CPU, s.RAM, s.Storage, s.Bandwidth, s.OS, s.GPU} {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// MachineInfo carries the optional machine type label.
type MachineInfo struct {
	Type string `json:"type,omitempty"`
}

// Invoice represents a billable charge owed by a user.
type Invoice struct {
	ID                 string          `json:"id"`
	UserID             string          `json:"user_id"`
	InvoiceNumber      string          `json:"invoice_number"`
	Amount             decimal.Decimal `json:"amount"`
	Currency           string          `json:"currency"`
	Status             string          `json:"status"`
	DueDate            time.Time       `json:"due_date"`
	Description        string          `json:"description,omitempty"`
	MachineSpecs       *MachineSpecs   `json:"machine_specs,omitempty"`
	UsageLimitPerMonth *int            `json:"usage_limit_per_month,omitempty"`
	UsageCount         int             `json:"usage_count"`
	MachineInfo        *MachineInfo    `json:"machine_info,omitempty"`
	PaymentID          *string         `json:"payment_id,omitempty"`
	TransactionID      *string         `json:"transaction_id,omitempty"`
	PaidAt             *time.Time      `json:"paid_at,omitempty"`
	PaymentMethod      *string         `json:"payment_method,omitempty"`
	CreatedBy          *string         `json:"created_by,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// DisplayStatus returns the status shown to readers: a pending invoice whose
// due date has passed is overdue, every other stored status passes through.
func (inv *Invoice) DisplayStatus(now time.Time) string {
	if inv.Status == InvoiceStatusPending && inv.DueDate.Before(now) {
		return InvoiceStatusOverdue
	}
	return inv.Status
}

// HasMachineSpecs reports whether paying this invoice provisions a service.
func (inv *Invoice) HasMachineSpecs() bool {
	return !inv.MachineSpecs.IsEmpty()
}

// InvoiceView is the wire representation of an invoice with its derived status.
type InvoiceView struct {
	*Invoice
	DisplayStatus string `json:"display_status"`
}

// NewInvoiceView derives the display status at now.
func NewInvoiceView(inv *Invoice, now time.Time) InvoiceView {
	return InvoiceView{Invoice: inv, DisplayStatus: inv.DisplayStatus(now)}
}

// InvoiceSummary is the short invoice reference attached to machine services.
type InvoiceSummary struct {
	ID            string          `json:"id"`
	InvoiceNumber string          `json:"invoice_number"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
}

// InvoiceUpdate holds the subset of fields an administrator changes.
// Nil fields are left untouched.
type InvoiceUpdate struct {
	Amount             *decimal.Decimal `json:"amount,omitempty"`
	Currency           *string          `json:"currency,omitempty"`
	DueDate            *time.Time       `json:"due_date,omitempty"`
	Description        *string          `json:"description,omitempty"`
	Status             *string          `json:"status,omitempty"`
	MachineSpecs       *MachineSpecs    `json:"machine_specs,omitempty"`
	UsageLimitPerMonth *int             `json:"usage_limit_per_month,omitempty"`
	MachineInfo        *MachineInfo     `json:"machine_info,omitempty"`
}

// IsEmpty reports whether the update changes nothing.
func (u InvoiceUpdate) IsEmpty() bool {
	return u.Amount == nil && u.Currency == nil && u.DueDate == nil && u.Description == nil &&
		u.Status == nil && u.MachineSpecs == nil && u.UsageLimitPerMonth == nil && u.MachineInfo == nil
}

// PaymentSettlement is what the gateway reports for a paid intent.
type PaymentSettlement struct {
	TransactionID string
	PaidAt        time.Time
	Method        string
}
