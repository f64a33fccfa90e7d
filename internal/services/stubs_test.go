package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"cloudbill/internal/models"
	"cloudbill/internal/pay"
)

// memInvoices mimics the conditional update semantics of InvoiceRepository.
type memInvoices struct {
	mu        sync.Mutex
	rows      map[string]models.Invoice
	seq       int
	numberErr error
	dupFirst  bool
	setPayErr error
}

func newMemInvoices() *memInvoices {
	return &memInvoices{rows: map[string]models.Invoice{}}
}

func (m *memInvoices) NextInvoiceNumber(ctx context.Context) (string, error) {
	if m.numberErr != nil {
		return "", m.numberErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	return fmt.Sprintf("INV-2024-%04d", m.seq), nil
}

func (m *memInvoices) Create(ctx context.Context, inv *models.Invoice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dupFirst {
		m.dupFirst = false
		return models.ErrDuplicateRecord
	}
	for _, r := range m.rows {
		if r.InvoiceNumber == inv.InvoiceNumber {
			return models.ErrDuplicateRecord
		}
	}
	m.rows[inv.ID] = *inv
	return nil
}

func (m *memInvoices) Get(ctx context.Context, id string) (*models.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.rows[id]
	if !ok {
		return nil, models.ErrNoRecord
	}
	return &inv, nil
}

func (m *memInvoices) List(ctx context.Context, userID string) ([]models.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Invoice
	for _, inv := range m.rows {
		if userID == "" || inv.UserID == userID {
			out = append(out, inv)
		}
	}
	return out, nil
}

func (m *memInvoices) SetPaymentID(ctx context.Context, id, paymentID string, now time.Time) error {
	if m.setPayErr != nil {
		return m.setPayErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.rows[id]
	if !ok || inv.Status != models.InvoiceStatusPending {
		return nil
	}
	inv.PaymentID = &paymentID
	inv.UpdatedAt = now
	m.rows[id] = inv
	return nil
}

func (m *memInvoices) MarkPaid(ctx context.Context, id string, s models.PaymentSettlement, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.rows[id]
	if !ok || inv.Status != models.InvoiceStatusPending {
		return false, nil
	}
	inv.Status = models.InvoiceStatusPaid
	if inv.PaidAt == nil {
		method := s.Method
		inv.PaymentMethod = &method
		paidAt := s.PaidAt
		inv.PaidAt = &paidAt
	}
	if inv.TransactionID == nil && s.TransactionID != "" {
		tx := s.TransactionID
		inv.TransactionID = &tx
	}
	inv.UpdatedAt = now
	m.rows[id] = inv
	return true, nil
}

func (m *memInvoices) Update(ctx context.Context, id string, upd models.InvoiceUpdate, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.rows[id]
	if !ok {
		return nil
	}
	if upd.Amount != nil {
		inv.Amount = *upd.Amount
	}
	if upd.Currency != nil {
		inv.Currency = *upd.Currency
	}
	if upd.DueDate != nil {
		inv.DueDate = *upd.DueDate
	}
	if upd.Description != nil {
		inv.Description = *upd.Description
	}
	if upd.MachineSpecs != nil {
		inv.MachineSpecs = upd.MachineSpecs
	}
	if upd.UsageLimitPerMonth != nil {
		inv.UsageLimitPerMonth = upd.UsageLimitPerMonth
	}
	if upd.MachineInfo != nil {
		inv.MachineInfo = upd.MachineInfo
	}
	if upd.Status != nil {
		inv.Status = *upd.Status
		if inv.Status == models.InvoiceStatusPaid && inv.PaidAt == nil {
			method := models.PaymentMethodManual
			inv.PaymentMethod = &method
			paidAt := now
			inv.PaidAt = &paidAt
		}
	}
	inv.UpdatedAt = now
	m.rows[id] = inv
	return nil
}

func (m *memInvoices) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[id]; !ok {
		return models.ErrNoRecord
	}
	delete(m.rows, id)
	return nil
}

type memServices struct {
	mu        sync.Mutex
	rows      map[string]models.MachineService
	inserts   int
	createErr error
}

func newMemServices() *memServices {
	return &memServices{rows: map[string]models.MachineService{}}
}

func (m *memServices) GetByInvoice(ctx context.Context, invoiceID string) (*models.MachineService, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	svc, ok := m.rows[invoiceID]
	if !ok {
		return nil, models.ErrNoRecord
	}
	return &svc, nil
}

func (m *memServices) CreateIfAbsent(ctx context.Context, svc *models.MachineService) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return false, m.createErr
	}
	if _, ok := m.rows[svc.InvoiceID]; ok {
		return false, nil
	}
	m.rows[svc.InvoiceID] = *svc
	m.inserts++
	return true, nil
}

func (m *memServices) List(ctx context.Context, userID string) ([]models.MachineService, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.MachineService
	for _, svc := range m.rows {
		if userID == "" || svc.UserID == userID {
			out = append(out, svc)
		}
	}
	return out, nil
}

func (m *memServices) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

type stubGateway struct {
	intent    *pay.Intent
	createErr error
	status    *pay.PaymentStatus
	statusErr error
	creates   int
	polls     int
	lastRef   string
	lastAmt   decimal.Decimal
}

func (g *stubGateway) CreateIntent(ctx context.Context, amount decimal.Decimal, reference string) (*pay.Intent, error) {
	g.creates++
	g.lastRef = reference
	g.lastAmt = amount
	if g.createErr != nil {
		return nil, g.createErr
	}
	return g.intent, nil
}

func (g *stubGateway) Status(ctx context.Context, id string) (*pay.PaymentStatus, error) {
	g.polls++
	if g.statusErr != nil {
		return nil, g.statusErr
	}
	return g.status, nil
}

type stubPackages struct {
	pkgs map[string]models.ServicePackage
}

func (s stubPackages) ListActive(ctx context.Context) ([]models.ServicePackage, error) {
	var out []models.ServicePackage
	for _, p := range s.pkgs {
		if p.IsActive {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s stubPackages) GetActive(ctx context.Context, id string) (*models.ServicePackage, error) {
	p, ok := s.pkgs[id]
	if !ok || !p.IsActive {
		return nil, models.ErrNoRecord
	}
	return &p, nil
}

type recordingNotifier struct {
	paid        []string
	provisioned []string
}

func (n *recordingNotifier) InvoicePaid(ctx context.Context, inv *models.Invoice) {
	n.paid = append(n.paid, inv.ID)
}

func (n *recordingNotifier) ServiceProvisioned(ctx context.Context, svc *models.MachineService) {
	n.provisioned = append(n.provisioned, svc.InvoiceID)
}

type recordingArchive struct{ archived int }

func (a *recordingArchive) Archive(ctx context.Context, inv *models.Invoice, raw []byte) error {
	a.archived++
	return nil
}

type busyLocker struct{}

func (busyLocker) Acquire(context.Context, string, time.Duration) (func(), bool, error) {
	return nil, false, nil
}

type brokenLocker struct{}

func (brokenLocker) Acquire(context.Context, string, time.Duration) (func(), bool, error) {
	return nil, false, errors.New("redis: connection refused")
}

type fixture struct {
	now      time.Time
	invoices *memInvoices
	services *memServices
	gateway  *stubGateway
	notifier *recordingNotifier
	archive  *recordingArchive
	svc      *InvoiceService
	packages stubPackages
}

func newFixture(now time.Time) *fixture {
	f := &fixture{
		now:      now,
		invoices: newMemInvoices(),
		services: newMemServices(),
		gateway:  &stubGateway{intent: &pay.Intent{ID: "pay-1", QRImageBase64: "qr", Amount: "299.00", TimeOut: "900"}},
		notifier: &recordingNotifier{},
		archive:  &recordingArchive{},
		packages: stubPackages{pkgs: map[string]models.ServicePackage{}},
	}
	clock := func() time.Time { return f.now }
	f.svc = NewInvoiceService(InvoiceServiceConfig{
		Invoices:    f.invoices,
		Packages:    f.packages,
		Gateway:     f.gateway,
		Provisioner: NewProvisionerService(f.services, nil, 0, nil, clock),
		Notifier:    f.notifier,
		Receipts:    f.archive,
		Now:         clock,
	})
	return f
}

var (
	admin = models.Caller{ID: "admin-1", Role: models.RoleAdmin}
	owner = models.Caller{ID: "user-1", Role: models.RoleUser}
	other = models.Caller{ID: "user-2", Role: models.RoleUser}
)

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func strPtr(s string) *string { return &s }
