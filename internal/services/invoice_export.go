package services

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"cloudbill/internal/models"
)

const exportSheet = "Invoices"

var exportHeader = []any{
	"Invoice number", "User", "Amount", "Currency", "Status", "Due date",
	"Description", "Payment method", "Transaction", "Paid at", "Created at",
}

// ExportInvoices writes every invoice, with its display status, as an XLSX
// workbook. Admin only.
func (s *InvoiceService) ExportInvoices(ctx context.Context, caller models.Caller, w io.Writer) error {
	if err := requireAdmin(caller); err != nil {
		return err
	}
	views, err := s.List(ctx, caller)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return err
	}
	if err := f.SetSheetRow(exportSheet, "A1", &exportHeader); err != nil {
		return err
	}
	for i, v := range views {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := exportRow(v)
		if err := f.SetSheetRow(exportSheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}
	return f.Write(w)
}

func exportRow(v models.InvoiceView) []any {
	amount, _ := v.Amount.Float64()
	return []any{
		v.InvoiceNumber,
		v.UserID,
		amount,
		v.Currency,
		v.DisplayStatus,
		v.DueDate.Format("2006-01-02 15:04"),
		v.Description,
		deref(v.PaymentMethod),
		deref(v.TransactionID),
		formatTimePtr(v.PaidAt),
		v.CreatedAt.Format("2006-01-02 15:04"),
	}
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02 15:04")
}
