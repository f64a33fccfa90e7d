package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"cloudbill/internal/models"
)

// MachineServiceStore persists machine services keyed by invoice.
type MachineServiceStore interface {
	GetByInvoice(ctx context.Context, invoiceID string) (*models.MachineService, error)
	CreateIfAbsent(ctx context.Context, svc *models.MachineService) (bool, error)
	List(ctx context.Context, userID string) ([]models.MachineService, error)
}

// ProvisionerService creates the machine service granted by a paid invoice.
type ProvisionerService struct {
	services MachineServiceStore
	locker   Locker
	lockTTL  time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

func NewProvisionerService(store MachineServiceStore, locker Locker, lockTTL time.Duration, logger *slog.Logger, now func() time.Time) *ProvisionerService {
	if locker == nil {
		locker = NopLocker{}
	}
	if lockTTL <= 0 {
		lockTTL = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	return &ProvisionerService{services: store, locker: locker, lockTTL: lockTTL, logger: logger, now: now}
}

// Provision creates the machine service for inv unless one exists already.
// created reports whether this call inserted the record.
func (p *ProvisionerService) Provision(ctx context.Context, inv *models.Invoice) (*models.MachineService, bool, error) {
	logger := p.logger.With("op", "Provision", "invoice_id", inv.ID)
	if !inv.HasMachineSpecs() {
		return nil, false, nil
	}

	release, ok, err := p.locker.Acquire(ctx, "provision:"+inv.ID, p.lockTTL)
	switch {
	case err != nil:
		logger.Warn("provision lock unavailable, relying on unique invoice_id", "err", err)
	case !ok:
		logger.Info("provisioning already in progress")
		return nil, false, nil
	default:
		defer release()
	}

	existing, err := p.services.GetByInvoice(ctx, inv.ID)
	if err == nil {
		logger.Info("machine service already provisioned", "service_id", existing.ID)
		return existing, false, nil
	}
	if !errors.Is(err, models.ErrNoRecord) {
		return nil, false, persistence("lookup machine service", err)
	}

	svc := newMachineService(inv, p.now())
	created, err := p.services.CreateIfAbsent(ctx, svc)
	if err != nil {
		return nil, false, persistence("create machine service", err)
	}
	if !created {
		logger.Info("machine service created concurrently")
		return nil, false, nil
	}
	logger.Info("machine service provisioned", "service_id", svc.ID, "expiry_date", svc.ExpiryDate)
	return svc, true, nil
}

// newMachineService builds the grant for inv. The validity window starts at
// paid_at (or now) and lasts one calendar month.
func newMachineService(inv *models.Invoice, now time.Time) *models.MachineService {
	start := now
	if inv.PaidAt != nil && !inv.PaidAt.IsZero() {
		start = *inv.PaidAt
	}
	name := strings.TrimSpace(inv.Description)
	if name == "" {
		name = fmt.Sprintf("service from %s", inv.InvoiceNumber)
	}
	machineType := models.DefaultMachineType
	if inv.MachineInfo != nil && strings.TrimSpace(inv.MachineInfo.Type) != "" {
		machineType = inv.MachineInfo.Type
	}
	limit := 0
	if inv.UsageLimitPerMonth != nil {
		limit = *inv.UsageLimitPerMonth
	}
	var specs models.MachineSpecs
	if inv.MachineSpecs != nil {
		specs = *inv.MachineSpecs
	}
	return &models.MachineService{
		ID:                 uuid.NewString(),
		UserID:             inv.UserID,
		InvoiceID:          inv.ID,
		ServiceName:        name,
		MachineType:        machineType,
		MachineSpecs:       specs,
		UsageLimitPerMonth: limit,
		UsageCount:         0,
		StartDate:          start,
		ExpiryDate:         start.AddDate(0, 1, 0),
		Status:             models.MachineServiceStatusActive,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}
