package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"cloudbill/internal/models"
)

const packageColumns = `id, name, description, price, currency, duration_months, machine_type,
	machine_specs, usage_limit_per_month, is_active, display_order`

type PackageRepository struct {
	DB      *sql.DB
	Dialect Dialect
}

func NewPackageRepository(db *sql.DB, dialect Dialect) *PackageRepository {
	return &PackageRepository{DB: db, Dialect: dialect}
}

// ListActive returns purchasable packages by display order, then price.
func (r *PackageRepository) ListActive(ctx context.Context) ([]models.ServicePackage, error) {
	q := `SELECT ` + packageColumns + ` FROM service_packages WHERE is_active = TRUE ORDER BY display_order, price`
	rows, err := r.DB.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	packages := []models.ServicePackage{}
	for rows.Next() {
		p, err := scanPackage(rows)
		if err != nil {
			return nil, err
		}
		packages = append(packages, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return packages, nil
}

// GetActive returns an active package or models.ErrNoRecord.
func (r *PackageRepository) GetActive(ctx context.Context, id string) (*models.ServicePackage, error) {
	q := `SELECT ` + packageColumns + ` FROM service_packages WHERE id = ? AND is_active = TRUE`
	p, err := scanPackage(r.DB.QueryRowContext(ctx, r.Dialect.Rebind(q), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNoRecord
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func scanPackage(s scanner) (*models.ServicePackage, error) {
	var p models.ServicePackage
	var description, machineType, specs sql.NullString
	var usageLimit sql.NullInt64
	err := s.Scan(&p.ID, &p.Name, &description, &p.Price, &p.Currency, &p.DurationMonths, &machineType,
		&specs, &usageLimit, &p.IsActive, &p.DisplayOrder)
	if err != nil {
		return nil, err
	}
	p.Description = description.String
	p.MachineType = machineType.String
	p.UsageLimitPerMonth = intPtr(usageLimit)
	var ms models.MachineSpecs
	if ok, err := decodeJSON(specs, &ms); err != nil {
		return nil, fmt.Errorf("decode machine_specs: %w", err)
	} else if ok {
		p.MachineSpecs = &ms
	}
	return &p, nil
}
