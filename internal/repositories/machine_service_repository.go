package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"cloudbill/internal/models"
)

const machineServiceColumns = `s.id, s.user_id, s.invoice_id, s.service_name, s.machine_type, s.machine_specs,
	s.usage_limit_per_month, s.usage_count, s.start_date, s.expiry_date, s.status, s.created_at, s.updated_at`

type MachineServiceRepository struct {
	DB      *sql.DB
	Dialect Dialect
}

func NewMachineServiceRepository(db *sql.DB, dialect Dialect) *MachineServiceRepository {
	return &MachineServiceRepository{DB: db, Dialect: dialect}
}

// GetByInvoice returns the service provisioned for invoiceID or models.ErrNoRecord.
func (r *MachineServiceRepository) GetByInvoice(ctx context.Context, invoiceID string) (*models.MachineService, error) {
	q := `SELECT ` + machineServiceColumns + ` FROM machine_services s WHERE s.invoice_id = ?`
	svc, err := scanMachineService(r.DB.QueryRowContext(ctx, r.Dialect.Rebind(q), invoiceID), nil)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNoRecord
	}
	if err != nil {
		return nil, err
	}
	return svc, nil
}

// CreateIfAbsent inserts svc unless a service for the same invoice exists.
// The unique index on invoice_id makes this atomic across processes.
func (r *MachineServiceRepository) CreateIfAbsent(ctx context.Context, svc *models.MachineService) (bool, error) {
	specs, err := jsonValue(svc.MachineSpecs, false)
	if err != nil {
		return false, fmt.Errorf("encode machine_specs: %w", err)
	}
	q := `INSERT INTO machine_services (id, user_id, invoice_id, service_name, machine_type, machine_specs,
		usage_limit_per_month, usage_count, start_date, expiry_date, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = r.DB.ExecContext(ctx, r.Dialect.Rebind(q),
		svc.ID, svc.UserID, svc.InvoiceID, svc.ServiceName, svc.MachineType, specs,
		svc.UsageLimitPerMonth, svc.UsageCount, svc.StartDate, svc.ExpiryDate, svc.Status,
		svc.CreatedAt, svc.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// List returns services newest first with their invoice summary attached.
// An empty userID lists every service.
func (r *MachineServiceRepository) List(ctx context.Context, userID string) ([]models.MachineService, error) {
	q := `SELECT ` + machineServiceColumns + `, i.id, i.invoice_number, i.amount, i.currency
		FROM machine_services s
		LEFT JOIN invoices i ON i.id = s.invoice_id`
	var args []any
	if userID != "" {
		q += ` WHERE s.user_id = ?`
		args = append(args, userID)
	}
	q += ` ORDER BY s.created_at DESC`

	rows, err := r.DB.QueryContext(ctx, r.Dialect.Rebind(q), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	services := []models.MachineService{}
	for rows.Next() {
		var sum invoiceSummaryRow
		svc, err := scanMachineService(rows, &sum)
		if err != nil {
			return nil, err
		}
		svc.Invoice = sum.summary()
		services = append(services, *svc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return services, nil
}

type invoiceSummaryRow struct {
	id, number, amount, currency sql.NullString
}

func (s invoiceSummaryRow) summary() *models.InvoiceSummary {
	if !s.id.Valid {
		return nil
	}
	sum := &models.InvoiceSummary{ID: s.id.String, InvoiceNumber: s.number.String, Currency: s.currency.String}
	_ = sum.Amount.Scan(s.amount.String)
	return sum
}

func scanMachineService(s scanner, sum *invoiceSummaryRow) (*models.MachineService, error) {
	var svc models.MachineService
	var specs sql.NullString
	dest := []any{&svc.ID, &svc.UserID, &svc.InvoiceID, &svc.ServiceName, &svc.MachineType, &specs,
		&svc.UsageLimitPerMonth, &svc.UsageCount, &svc.StartDate, &svc.ExpiryDate, &svc.Status,
		&svc.CreatedAt, &svc.UpdatedAt}
	if sum != nil {
		dest = append(dest, &sum.id, &sum.number, &sum.amount, &sum.currency)
	}
	if err := s.Scan(dest...); err != nil {
		return nil, err
	}
	if _, err := decodeJSON(specs, &svc.MachineSpecs); err != nil {
		return nil, fmt.Errorf("decode machine_specs: %w", err)
	}
	return &svc, nil
}
