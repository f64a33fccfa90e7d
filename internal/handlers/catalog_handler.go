package handlers

import (
	"context"
	"net/http"

	"cloudbill/internal/models"
)

type Catalog interface {
	Packages(ctx context.Context) ([]models.ServicePackage, error)
	MachineServices(ctx context.Context, caller models.Caller) ([]models.MachineServiceView, error)
}

type CatalogHandler struct {
	Service Catalog
}

func NewCatalogHandler(s Catalog) *CatalogHandler {
	return &CatalogHandler{Service: s}
}

func (h *CatalogHandler) ListPackages(w http.ResponseWriter, r *http.Request) {
	pkgs, err := h.Service.Packages(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pkgs)
}

func (h *CatalogHandler) ListMachineServices(w http.ResponseWriter, r *http.Request) {
	list, err := h.Service.MachineServices(r.Context(), callerFrom(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}
