package handlers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cast"

	"cloudbill/internal/models"
	"cloudbill/internal/services"
)

// InvoiceLifecycle is the lifecycle engine surface used by InvoiceHandler.
type InvoiceLifecycle interface {
	Create(ctx context.Context, caller models.Caller, in services.CreateInvoiceInput) (models.InvoiceView, error)
	Purchase(ctx context.Context, caller models.Caller, packageID string) (models.InvoiceView, error)
	Get(ctx context.Context, caller models.Caller, id string) (models.InvoiceView, error)
	List(ctx context.Context, caller models.Caller) ([]models.InvoiceView, error)
	Update(ctx context.Context, caller models.Caller, id string, upd models.InvoiceUpdate) (models.InvoiceView, error)
	Delete(ctx context.Context, caller models.Caller, id string) error
	InitiatePayment(ctx context.Context, caller models.Caller, id string) (*services.PaymentInitiation, error)
	ReconcilePayment(ctx context.Context, caller models.Caller, id string) (*services.ReconcileResult, error)
	ExportInvoices(ctx context.Context, caller models.Caller, w io.Writer) error
}

type InvoiceHandler struct {
	Service InvoiceLifecycle
}

func NewInvoiceHandler(s InvoiceLifecycle) *InvoiceHandler {
	return &InvoiceHandler{Service: s}
}

type createInvoiceRequest struct {
	UserID             string               `json:"user_id"`
	Amount             *decimal.Decimal     `json:"amount"`
	Currency           string               `json:"currency"`
	DueDate            string               `json:"due_date"`
	DueInDays          *int                 `json:"due_in_days"`
	Description        string               `json:"description"`
	MachineSpecs       *models.MachineSpecs `json:"machine_specs"`
	UsageLimitPerMonth *int                 `json:"usage_limit_per_month"`
	MachineInfo        *models.MachineInfo  `json:"machine_info"`
	MachineType        string               `json:"machine_type"`
}

func (req createInvoiceRequest) input() (services.CreateInvoiceInput, error) {
	in := services.CreateInvoiceInput{
		UserID:             strings.TrimSpace(req.UserID),
		Amount:             req.Amount,
		Currency:           req.Currency,
		DueInDays:          req.DueInDays,
		Description:        req.Description,
		MachineSpecs:       req.MachineSpecs,
		UsageLimitPerMonth: req.UsageLimitPerMonth,
		MachineInfo:        req.MachineInfo,
	}
	if in.MachineInfo == nil && strings.TrimSpace(req.MachineType) != "" {
		in.MachineInfo = &models.MachineInfo{Type: strings.TrimSpace(req.MachineType)}
	}
	if strings.TrimSpace(req.DueDate) != "" {
		due, err := parseDate(req.DueDate)
		if err != nil {
			return in, err
		}
		in.DueDate = &due
	}
	return in, nil
}

type updateInvoiceRequest struct {
	Amount             *decimal.Decimal     `json:"amount"`
	Currency           *string              `json:"currency"`
	DueDate            *string              `json:"due_date"`
	Description        *string              `json:"description"`
	Status             *string              `json:"status"`
	MachineSpecs       *models.MachineSpecs `json:"machine_specs"`
	UsageLimitPerMonth *int                 `json:"usage_limit_per_month"`
	MachineInfo        *models.MachineInfo  `json:"machine_info"`
}

func (req updateInvoiceRequest) update() (models.InvoiceUpdate, error) {
	upd := models.InvoiceUpdate{
		Amount:             req.Amount,
		Currency:           req.Currency,
		Description:        req.Description,
		MachineSpecs:       req.MachineSpecs,
		UsageLimitPerMonth: req.UsageLimitPerMonth,
		MachineInfo:        req.MachineInfo,
	}
	if req.Status != nil {
		status := strings.ToLower(strings.TrimSpace(*req.Status))
		upd.Status = &status
	}
	if req.DueDate != nil {
		due, err := parseDate(*req.DueDate)
		if err != nil {
			return upd, err
		}
		upd.DueDate = &due
	}
	return upd, nil
}

// parseDate accepts RFC 3339 timestamps and plain dates.
func parseDate(v string) (time.Time, error) {
	t, err := cast.ToTimeE(strings.TrimSpace(v))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid due_date %q", models.ErrValidation, v)
	}
	return t, nil
}

func (h *InvoiceHandler) CreateInvoice(w http.ResponseWriter, r *http.Request) {
	var req createInvoiceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	in, err := req.input()
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	inv, err := h.Service.Create(r.Context(), callerFrom(r), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, inv)
}

func (h *InvoiceHandler) PurchasePackage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PackageID string `json:"package_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	inv, err := h.Service.Purchase(r.Context(), callerFrom(r), strings.TrimSpace(req.PackageID))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, inv)
}

func (h *InvoiceHandler) ListInvoices(w http.ResponseWriter, r *http.Request) {
	invoices, err := h.Service.List(r.Context(), callerFrom(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, invoices)
}

func (h *InvoiceHandler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	inv, err := h.Service.Get(r.Context(), callerFrom(r), pathParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

func (h *InvoiceHandler) UpdateInvoice(w http.ResponseWriter, r *http.Request) {
	var req updateInvoiceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	upd, err := req.update()
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	inv, err := h.Service.Update(r.Context(), callerFrom(r), pathParam(r, "id"), upd)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

func (h *InvoiceHandler) DeleteInvoice(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.Delete(r.Context(), callerFrom(r), pathParam(r, "id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "invoice deleted"})
}

func (h *InvoiceHandler) PayInvoice(w http.ResponseWriter, r *http.Request) {
	res, err := h.Service.InitiatePayment(r.Context(), callerFrom(r), pathParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *InvoiceHandler) CheckPayment(w http.ResponseWriter, r *http.Request) {
	res, err := h.Service.ReconcilePayment(r.Context(), callerFrom(r), pathParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *InvoiceHandler) ExportInvoices(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := h.Service.ExportInvoices(r.Context(), callerFrom(r), &buf); err != nil {
		writeServiceError(w, r, err)
		return
	}
	name := fmt.Sprintf("invoices-%s.xlsx", time.Now().Format("20060102"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
