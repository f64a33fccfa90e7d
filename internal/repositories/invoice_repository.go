package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloudbill/internal/models"
)

const invoiceColumns = `id, user_id, invoice_number, amount, currency, status, due_date, description,
	machine_specs, usage_limit_per_month, usage_count, machine_info, payment_id, transaction_id,
	paid_at, payment_method, created_by, created_at, updated_at`

type InvoiceRepository struct {
	DB      *sql.DB
	Dialect Dialect
}

func NewInvoiceRepository(db *sql.DB, dialect Dialect) *InvoiceRepository {
	return &InvoiceRepository{DB: db, Dialect: dialect}
}

// NextInvoiceNumber asks the record store for the next invoice number.
func (r *InvoiceRepository) NextInvoiceNumber(ctx context.Context) (string, error) {
	var number sql.NullString
	if err := r.DB.QueryRowContext(ctx, `SELECT generate_invoice_number()`).Scan(&number); err != nil {
		return "", err
	}
	if !number.Valid || strings.TrimSpace(number.String) == "" {
		return "", errors.New("generate_invoice_number returned empty value")
	}
	return number.String, nil
}

// Create inserts inv. A clashing invoice number yields models.ErrDuplicateRecord.
func (r *InvoiceRepository) Create(ctx context.Context, inv *models.Invoice) error {
	specs, err := jsonValue(inv.MachineSpecs, inv.MachineSpecs.IsEmpty())
	if err != nil {
		return fmt.Errorf("encode machine_specs: %w", err)
	}
	info, err := jsonValue(inv.MachineInfo, inv.MachineInfo == nil)
	if err != nil {
		return fmt.Errorf("encode machine_info: %w", err)
	}
	q := `INSERT INTO invoices (` + invoiceColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = r.DB.ExecContext(ctx, r.Dialect.Rebind(q),
		inv.ID, inv.UserID, inv.InvoiceNumber, inv.Amount, inv.Currency, inv.Status, inv.DueDate,
		inv.Description, specs, nullableInt(inv.UsageLimitPerMonth), inv.UsageCount, info,
		nullableString(inv.PaymentID), nullableString(inv.TransactionID), inv.PaidAt,
		nullableString(inv.PaymentMethod), nullableString(inv.CreatedBy), inv.CreatedAt, inv.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return models.ErrDuplicateRecord
		}
		return err
	}
	return nil
}

func (r *InvoiceRepository) Get(ctx context.Context, id string) (*models.Invoice, error) {
	q := `SELECT ` + invoiceColumns + ` FROM invoices WHERE id = ?`
	inv, err := scanInvoice(r.DB.QueryRowContext(ctx, r.Dialect.Rebind(q), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNoRecord
	}
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// List returns invoices newest first. An empty userID lists every invoice.
func (r *InvoiceRepository) List(ctx context.Context, userID string) ([]models.Invoice, error) {
	q := `SELECT ` + invoiceColumns + ` FROM invoices`
	var args []any
	if userID != "" {
		q += ` WHERE user_id = ?`
		args = append(args, userID)
	}
	q += ` ORDER BY created_at DESC`

	rows, err := r.DB.QueryContext(ctx, r.Dialect.Rebind(q), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	invoices := []models.Invoice{}
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, *inv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return invoices, nil
}

// SetPaymentID records the gateway intent id on a pending invoice.
func (r *InvoiceRepository) SetPaymentID(ctx context.Context, id, paymentID string, now time.Time) error {
	q := `UPDATE invoices SET payment_id = ?, updated_at = ? WHERE id = ? AND status = 'pending'`
	_, err := r.DB.ExecContext(ctx, r.Dialect.Rebind(q), paymentID, now, id)
	return err
}

// MarkPaid moves a pending invoice to paid in one statement. Settlement fields
// already present are kept. It reports whether this call made the transition;
// false means the invoice was not pending and the caller must re-read it.
func (r *InvoiceRepository) MarkPaid(ctx context.Context, id string, s models.PaymentSettlement, now time.Time) (bool, error) {
	q := `UPDATE invoices SET status = 'paid',
		payment_method = CASE WHEN paid_at IS NULL THEN ? ELSE payment_method END,
		transaction_id = COALESCE(transaction_id, ?),
		paid_at = COALESCE(paid_at, ?),
		updated_at = ?
		WHERE id = ? AND status = 'pending'`
	var txID any
	if s.TransactionID != "" {
		txID = s.TransactionID
	}
	res, err := r.DB.ExecContext(ctx, r.Dialect.Rebind(q), s.Method, txID, s.PaidAt, now, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Update applies the administrative change set in one statement.
func (r *InvoiceRepository) Update(ctx context.Context, id string, upd models.InvoiceUpdate, now time.Time) error {
	q, args, err := buildInvoiceUpdate(id, upd, now)
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx, r.Dialect.Rebind(q), args...)
	return err
}

func buildInvoiceUpdate(id string, upd models.InvoiceUpdate, now time.Time) (string, []any, error) {
	var sets []string
	var args []any
	add := func(expr string, vals ...any) {
		sets = append(sets, expr)
		args = append(args, vals...)
	}

	if upd.Amount != nil {
		add("amount = ?", *upd.Amount)
	}
	if upd.Currency != nil {
		add("currency = ?", *upd.Currency)
	}
	if upd.DueDate != nil {
		add("due_date = ?", *upd.DueDate)
	}
	if upd.Description != nil {
		add("description = ?", *upd.Description)
	}
	if upd.MachineSpecs != nil {
		v, err := jsonValue(upd.MachineSpecs, upd.MachineSpecs.IsEmpty())
		if err != nil {
			return "", nil, fmt.Errorf("encode machine_specs: %w", err)
		}
		add("machine_specs = ?", v)
	}
	if upd.UsageLimitPerMonth != nil {
		add("usage_limit_per_month = ?", *upd.UsageLimitPerMonth)
	}
	if upd.MachineInfo != nil {
		v, err := jsonValue(upd.MachineInfo, upd.MachineInfo.Type == "")
		if err != nil {
			return "", nil, fmt.Errorf("encode machine_info: %w", err)
		}
		add("machine_info = ?", v)
	}
	if upd.Status != nil {
		add("status = ?", *upd.Status)
		if *upd.Status == models.InvoiceStatusPaid {
			// payment_method must be assigned before paid_at for MySQL.
			add("payment_method = CASE WHEN paid_at IS NULL THEN ? ELSE payment_method END", models.PaymentMethodManual)
			add("paid_at = COALESCE(paid_at, ?)", now)
		}
	}
	if len(sets) == 0 {
		return "", nil, errors.New("empty invoice update")
	}
	add("updated_at = ?", now)
	args = append(args, id)
	return `UPDATE invoices SET ` + strings.Join(sets, ", ") + ` WHERE id = ?`, args, nil
}

// Delete removes the invoice row. Machine services are not touched.
func (r *InvoiceRepository) Delete(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, r.Dialect.Rebind(`DELETE FROM invoices WHERE id = ?`), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return models.ErrNoRecord
	}
	return nil
}

func scanInvoice(s scanner) (*models.Invoice, error) {
	var inv models.Invoice
	var (
		description, specs, info, paymentID, transactionID, method, createdBy sql.NullString
		usageLimit                                                          sql.NullInt64
		paidAt                                                              sql.NullTime
	)
	err := s.Scan(&inv.ID, &inv.UserID, &inv.InvoiceNumber, &inv.Amount, &inv.Currency, &inv.Status,
		&inv.DueDate, &description, &specs, &usageLimit, &inv.UsageCount, &info, &paymentID,
		&transactionID, &paidAt, &method, &createdBy, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		return nil, err
	}
	inv.Description = description.String
	var ms models.MachineSpecs
	if ok, err := decodeJSON(specs, &ms); err != nil {
		return nil, fmt.Errorf("decode machine_specs: %w", err)
	} else if ok {
		inv.MachineSpecs = &ms
	}
	var mi models.MachineInfo
	if ok, err := decodeJSON(info, &mi); err != nil {
		return nil, fmt.Errorf("decode machine_info: %w", err)
	} else if ok {
		inv.MachineInfo = &mi
	}
	inv.UsageLimitPerMonth = intPtr(usageLimit)
	inv.PaymentID = stringPtr(paymentID)
	inv.TransactionID = stringPtr(transactionID)
	inv.PaidAt = timePtr(paidAt)
	inv.PaymentMethod = stringPtr(method)
	inv.CreatedBy = stringPtr(createdBy)
	return &inv, nil
}
