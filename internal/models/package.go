package models

import "github.com/shopspring/decimal"

// ServicePackage is a purchasable bundle that becomes an invoice.
type ServicePackage struct {
	ID                 string          `json:"id"`
	Name               string          `json:"name"`
	Description        string          `json:"description,omitempty"`
	Price              decimal.Decimal `json:"price"`
	Currency           string          `json:"currency"`
	DurationMonths     int             `json:"duration_months"`
	MachineType        string          `json:"machine_type,omitempty"`
	MachineSpecs       *MachineSpecs   `json:"machine_specs,omitempty"`
	UsageLimitPerMonth *int            `json:"usage_limit_per_month,omitempty"`
	IsActive           bool            `json:"is_active"`
	DisplayOrder       int             `json:"display_order"`
}
