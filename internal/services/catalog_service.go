package services

import (
	"context"
	"time"

	"cloudbill/internal/models"
)

// CatalogService serves the read-only package and machine service listings.
type CatalogService struct {
	packages PackageStore
	services MachineServiceStore
	now      func() time.Time
}

func NewCatalogService(packages PackageStore, services MachineServiceStore, now func() time.Time) *CatalogService {
	if now == nil {
		now = time.Now
	}
	return &CatalogService{packages: packages, services: services, now: now}
}

// Packages lists purchasable packages.
func (c *CatalogService) Packages(ctx context.Context) ([]models.ServicePackage, error) {
	pkgs, err := c.packages.ListActive(ctx)
	if err != nil {
		return nil, persistence("list packages", err)
	}
	return pkgs, nil
}

// MachineServices lists every service for admins and the caller's own otherwise.
func (c *CatalogService) MachineServices(ctx context.Context, caller models.Caller) ([]models.MachineServiceView, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	scope := caller.ID
	if caller.IsAdmin() {
		scope = ""
	}
	list, err := c.services.List(ctx, scope)
	if err != nil {
		return nil, persistence("list machine services", err)
	}
	now := c.now()
	views := make([]models.MachineServiceView, 0, len(list))
	for i := range list {
		views = append(views, models.NewMachineServiceView(&list[i], now))
	}
	return views, nil
}
