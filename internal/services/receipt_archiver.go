package services

import (
	"context"
	"encoding/json"
	"fmt"

	"cloudbill/internal/models"
)

// ReceiptArchive keeps the gateway settlement payload of a paid invoice.
type ReceiptArchive interface {
	Archive(ctx context.Context, inv *models.Invoice, raw []byte) error
}

type NopReceiptArchive struct{}

func (NopReceiptArchive) Archive(context.Context, *models.Invoice, []byte) error { return nil }

// ObjectUploader stores a blob under key.
type ObjectUploader interface {
	Upload(ctx context.Context, key string, body []byte, contentType string) (string, error)
}

// ReceiptArchiver writes receipts as JSON objects keyed by invoice number.
type ReceiptArchiver struct {
	uploader ObjectUploader
}

func NewReceiptArchiver(uploader ObjectUploader) *ReceiptArchiver {
	return &ReceiptArchiver{uploader: uploader}
}

type receipt struct {
	InvoiceID     string          `json:"invoice_id"`
	InvoiceNumber string          `json:"invoice_number"`
	UserID        string          `json:"user_id"`
	Amount        string          `json:"amount"`
	Currency      string          `json:"currency"`
	PaymentID     *string         `json:"payment_id,omitempty"`
	TransactionID *string         `json:"transaction_id,omitempty"`
	PaymentMethod *string         `json:"payment_method,omitempty"`
	PaidAt        string          `json:"paid_at,omitempty"`
	Gateway       json.RawMessage `json:"gateway,omitempty"`
}

func (a *ReceiptArchiver) Archive(ctx context.Context, inv *models.Invoice, raw []byte) error {
	r := receipt{
		InvoiceID:     inv.ID,
		InvoiceNumber: inv.InvoiceNumber,
		UserID:        inv.UserID,
		Amount:        inv.Amount.StringFixed(2),
		Currency:      inv.Currency,
		PaymentID:     inv.PaymentID,
		TransactionID: inv.TransactionID,
		PaymentMethod: inv.PaymentMethod,
	}
	if inv.PaidAt != nil {
		r.PaidAt = inv.PaidAt.UTC().Format("2006-01-02T15:04:05Z07:00")
	}
	if json.Valid(raw) {
		r.Gateway = json.RawMessage(raw)
	}
	body, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	key := fmt.Sprintf("%s/%s.json", inv.UserID, inv.InvoiceNumber)
	_, err = a.uploader.Upload(ctx, key, body, "application/json")
	return err
}
