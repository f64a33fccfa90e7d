package models

import "time"

// Machine service statuses. MachineServiceStatusExpired is derived at read time.
const (
	MachineServiceStatusActive    = "active"
	MachineServiceStatusExpired   = "expired"
	MachineServiceStatusSuspended = "suspended"
	MachineServiceStatusCancelled = "cancelled"
)

// DefaultMachineType is used when the invoice carries no machine type label.
const DefaultMachineType = "cloud-vm"

// MachineService is a time-bounded resource grant created from a paid invoice.
type MachineService struct {
	ID                 string          `json:"id"`
	UserID             string          `json:"user_id"`
	InvoiceID          string          `json:"invoice_id"`
	ServiceName        string          `json:"service_name"`
	MachineType        string          `json:"machine_type"`
	MachineSpecs       MachineSpecs    `json:"machine_specs"`
	UsageLimitPerMonth int             `json:"usage_limit_per_month"`
	UsageCount         int             `json:"usage_count"`
	StartDate          time.Time       `json:"start_date"`
	ExpiryDate         time.Time       `json:"expiry_date"`
	Status             string          `json:"status"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
	Invoice            *InvoiceSummary `json:"invoice,omitempty"`
}

// DisplayStatus reports an active service past its expiry date as expired.
func (s *MachineService) DisplayStatus(now time.Time) string {
	if s.Status == MachineServiceStatusActive && now.After(s.ExpiryDate) {
		return MachineServiceStatusExpired
	}
	return s.Status
}

// MachineServiceView is the wire representation with the derived status.
type MachineServiceView struct {
	*MachineService
	DisplayStatus string `json:"display_status"`
}

// NewMachineServiceView derives the display status at now.
func NewMachineServiceView(s *MachineService, now time.Time) MachineServiceView {
	return MachineServiceView{MachineService: s, DisplayStatus: s.DisplayStatus(now)}
}
