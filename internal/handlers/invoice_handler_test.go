package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cloudbill/internal/models"
	"cloudbill/internal/services"
)

type stubLifecycle struct {
	created    services.CreateInvoiceInput
	updated    models.InvoiceUpdate
	lastID     string
	lastCaller models.Caller
	err        error
}

func (s *stubLifecycle) Create(ctx context.Context, caller models.Caller, in services.CreateInvoiceInput) (models.InvoiceView, error) {
	s.created, s.lastCaller = in, caller
	if s.err != nil {
		return models.InvoiceView{}, s.err
	}
	return models.InvoiceView{Invoice: &models.Invoice{ID: "inv-1", UserID: in.UserID, Status: models.InvoiceStatusPending}, DisplayStatus: models.InvoiceStatusPending}, nil
}

func (s *stubLifecycle) Purchase(ctx context.Context, caller models.Caller, packageID string) (models.InvoiceView, error) {
	s.lastID, s.lastCaller = packageID, caller
	return models.InvoiceView{Invoice: &models.Invoice{ID: "inv-2", UserID: caller.ID}}, s.err
}

func (s *stubLifecycle) Get(ctx context.Context, caller models.Caller, id string) (models.InvoiceView, error) {
	s.lastID, s.lastCaller = id, caller
	return models.InvoiceView{Invoice: &models.Invoice{ID: id}}, s.err
}

func (s *stubLifecycle) List(ctx context.Context, caller models.Caller) ([]models.InvoiceView, error) {
	s.lastCaller = caller
	return []models.InvoiceView{}, s.err
}

func (s *stubLifecycle) Update(ctx context.Context, caller models.Caller, id string, upd models.InvoiceUpdate) (models.InvoiceView, error) {
	s.lastID, s.updated = id, upd
	return models.InvoiceView{Invoice: &models.Invoice{ID: id}}, s.err
}

func (s *stubLifecycle) Delete(ctx context.Context, caller models.Caller, id string) error {
	s.lastID = id
	return s.err
}

func (s *stubLifecycle) InitiatePayment(ctx context.Context, caller models.Caller, id string) (*services.PaymentInitiation, error) {
	s.lastID, s.lastCaller = id, caller
	if s.err != nil {
		return nil, s.err
	}
	return &services.PaymentInitiation{PaymentID: "pay-1", QRImageBase64: "qr", Amount: "299.00", TimeOut: "900"}, nil
}

func (s *stubLifecycle) ReconcilePayment(ctx context.Context, caller models.Caller, id string) (*services.ReconcileResult, error) {
	s.lastID = id
	if s.err != nil {
		return nil, s.err
	}
	return &services.ReconcileResult{Status: services.ReconcilePending, Message: "waiting for payment"}, nil
}

func (s *stubLifecycle) ExportInvoices(ctx context.Context, caller models.Caller, w io.Writer) error {
	if s.err != nil {
		return s.err
	}
	_, err := w.Write([]byte("PK"))
	return err
}

func authed(r *http.Request, c models.Caller) *http.Request {
	return r.WithContext(WithCaller(r.Context(), c))
}

func TestStatusForError(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: amount is required", models.ErrValidation), http.StatusBadRequest},
		{models.ErrUnauthenticated, http.StatusUnauthorized},
		{fmt.Errorf("%w: admin role required", models.ErrForbidden), http.StatusForbidden},
		{fmt.Errorf("%w: %w", models.ErrNotFound, models.ErrInvoiceNotFound), http.StatusNotFound},
		{fmt.Errorf("%w: %w", models.ErrConflict, models.ErrInvoicePaid), http.StatusBadRequest},
		{fmt.Errorf("%w: timeout", models.ErrGateway), http.StatusInternalServerError},
		{fmt.Errorf("%w: insert", models.ErrPersistence), http.StatusInternalServerError},
		{errors.New("unexpected"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := statusForError(tc.err); got != tc.want {
			t.Errorf("statusForError(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestCreateInvoiceParsesDates(t *testing.T) {
	stub := &stubLifecycle{}
	h := NewInvoiceHandler(stub)
	admin := models.Caller{ID: "admin-1", Role: models.RoleAdmin}

	body := `{"user_id":"user-1","amount":299,"due_date":"2024-06-01","machine_type":"gpu-node","machine_specs":{"cpu":"4 vCPU"}}`
	req := authed(httptest.NewRequest(http.MethodPost, "/invoices", strings.NewReader(body)), admin)
	rec := httptest.NewRecorder()
	h.CreateInvoice(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	in := stub.created
	if in.DueDate == nil || !in.DueDate.Equal(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("due date = %v", in.DueDate)
	}
	if in.Amount == nil || in.Amount.String() != "299" {
		t.Fatalf("amount = %v", in.Amount)
	}
	if in.MachineInfo == nil || in.MachineInfo.Type != "gpu-node" || in.MachineSpecs.CPU != "4 vCPU" {
		t.Fatalf("machine details = %+v %+v", in.MachineInfo, in.MachineSpecs)
	}
	if stub.lastCaller != admin {
		t.Fatalf("caller = %+v", stub.lastCaller)
	}
}

func TestCreateInvoiceRejectsBadInput(t *testing.T) {
	h := NewInvoiceHandler(&stubLifecycle{})
	for name, body := range map[string]string{
		"malformed json": `{"user_id":`,
		"bad due date":   `{"user_id":"u","amount":1,"due_date":"next week"}`,
	} {
		t.Run(name, func(t *testing.T) {
			req := authed(httptest.NewRequest(http.MethodPost, "/invoices", strings.NewReader(body)), models.Caller{ID: "a", Role: models.RoleAdmin})
			rec := httptest.NewRecorder()
			h.CreateInvoice(rec, req)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d", rec.Code)
			}
			var resp map[string]string
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil || resp["error"] == "" {
				t.Fatalf("expected error body, got %s", rec.Body.String())
			}
		})
	}
}

func TestPayInvoiceMapsErrors(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{fmt.Errorf("%w: %w", models.ErrConflict, models.ErrInvoiceCancelled), http.StatusBadRequest},
		{fmt.Errorf("%w: only the invoice owner can pay it", models.ErrForbidden), http.StatusForbidden},
		{fmt.Errorf("%w: upstream", models.ErrGateway), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		stub := &stubLifecycle{err: tc.err}
		h := NewInvoiceHandler(stub)
		req := authed(httptest.NewRequest(http.MethodPost, "/invoices/inv-9/pay?:id=inv-9", nil), models.Caller{ID: "user-1", Role: models.RoleUser})
		rec := httptest.NewRecorder()
		h.PayInvoice(rec, req)
		if rec.Code != tc.want {
			t.Fatalf("err=%v: status = %d, want %d", tc.err, rec.Code, tc.want)
		}
		if stub.lastID != "inv-9" {
			t.Fatalf("id = %q", stub.lastID)
		}
	}
}

func TestUpdateInvoiceNormalisesStatus(t *testing.T) {
	stub := &stubLifecycle{}
	h := NewInvoiceHandler(stub)
	body := `{"status":" Paid ","due_date":"2024-07-01T10:00:00Z"}`
	req := authed(httptest.NewRequest(http.MethodPut, "/invoices/inv-1?:id=inv-1", strings.NewReader(body)), models.Caller{ID: "a", Role: models.RoleAdmin})
	rec := httptest.NewRecorder()
	h.UpdateInvoice(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	if stub.updated.Status == nil || *stub.updated.Status != models.InvoiceStatusPaid {
		t.Fatalf("status = %v", stub.updated.Status)
	}
	if stub.updated.DueDate == nil || stub.updated.DueDate.Hour() != 10 {
		t.Fatalf("due date = %v", stub.updated.DueDate)
	}
}

func TestCheckPaymentPassesCaller(t *testing.T) {
	stub := &stubLifecycle{}
	h := NewInvoiceHandler(stub)
	req := authed(httptest.NewRequest(http.MethodPost, "/invoices/inv-3/check-payment?:id=inv-3", nil), models.Caller{ID: "user-1", Role: models.RoleUser})
	rec := httptest.NewRecorder()
	h.CheckPayment(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var res services.ReconcileResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Status != services.ReconcilePending || stub.lastID != "inv-3" {
		t.Fatalf("unexpected result: %+v id=%s", res, stub.lastID)
	}
}

func TestExportInvoicesHeaders(t *testing.T) {
	h := NewInvoiceHandler(&stubLifecycle{})
	req := authed(httptest.NewRequest(http.MethodGet, "/invoices/export", nil), models.Caller{ID: "a", Role: models.RoleAdmin})
	rec := httptest.NewRecorder()
	h.ExportInvoices(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.Contains(ct, "spreadsheetml") {
		t.Fatalf("content type = %q", ct)
	}
	if !strings.HasPrefix(rec.Header().Get("Content-Disposition"), "attachment;") {
		t.Fatalf("missing attachment disposition")
	}
}

func TestCallerFromEmptyContext(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/invoices", nil)
	if c := callerFrom(req); c.ID != "" || c.Role != "" {
		t.Fatalf("unexpected caller %+v", c)
	}
}

type stubTokens struct {
	user, token string
}

func (s *stubTokens) Save(ctx context.Context, userID, token string) error {
	s.user, s.token = userID, token
	return nil
}

func TestRegisterDevice(t *testing.T) {
	tokens := &stubTokens{}
	h := NewDeviceHandler(tokens)

	rec := httptest.NewRecorder()
	h.RegisterDevice(rec, httptest.NewRequest(http.MethodPost, "/devices", strings.NewReader(`{"token":"t"}`)))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	req := authed(httptest.NewRequest(http.MethodPost, "/devices", strings.NewReader(`{"token":" fcm-1 "}`)), models.Caller{ID: "user-1", Role: models.RoleUser})
	h.RegisterDevice(rec, req)
	if rec.Code != http.StatusCreated || tokens.user != "user-1" || tokens.token != "fcm-1" {
		t.Fatalf("status=%d saved=%+v", rec.Code, tokens)
	}
}
