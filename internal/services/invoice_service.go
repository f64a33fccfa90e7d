package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/exp/rand"

	"cloudbill/internal/fsm"
	"cloudbill/internal/models"
	"cloudbill/internal/pay"
)

// InvoiceStore is the record store view the lifecycle engine needs.
type InvoiceStore interface {
	NextInvoiceNumber(ctx context.Context) (string, error)
	Create(ctx context.Context, inv *models.Invoice) error
	Get(ctx context.Context, id string) (*models.Invoice, error)
	List(ctx context.Context, userID string) ([]models.Invoice, error)
	SetPaymentID(ctx context.Context, id, paymentID string, now time.Time) error
	MarkPaid(ctx context.Context, id string, s models.PaymentSettlement, now time.Time) (bool, error)
	Update(ctx context.Context, id string, upd models.InvoiceUpdate, now time.Time) error
	Delete(ctx context.Context, id string) error
}

// PackageStore looks up purchasable service packages.
type PackageStore interface {
	ListActive(ctx context.Context) ([]models.ServicePackage, error)
	GetActive(ctx context.Context, id string) (*models.ServicePackage, error)
}

// PaymentGateway creates and polls QR payment intents.
type PaymentGateway interface {
	CreateIntent(ctx context.Context, amount decimal.Decimal, reference string) (*pay.Intent, error)
	Status(ctx context.Context, id string) (*pay.PaymentStatus, error)
}

// Provisioner turns a paid invoice into a machine service at most once.
type Provisioner interface {
	Provision(ctx context.Context, inv *models.Invoice) (*models.MachineService, bool, error)
}

// InvoiceServiceConfig wires the lifecycle engine.
type InvoiceServiceConfig struct {
	Invoices    InvoiceStore
	Packages    PackageStore
	Gateway     PaymentGateway
	Provisioner Provisioner
	Notifier    Notifier
	Receipts    ReceiptArchive
	Currency    string
	Logger      *slog.Logger
	Now         func() time.Time
}

// InvoiceService owns the invoice payment lifecycle.
type InvoiceService struct {
	invoices    InvoiceStore
	packages    PackageStore
	gateway     PaymentGateway
	provisioner Provisioner
	notifier    Notifier
	receipts    ReceiptArchive
	currency    string
	logger      *slog.Logger
	now         func() time.Time
}

func NewInvoiceService(cfg InvoiceServiceConfig) *InvoiceService {
	s := &InvoiceService{
		invoices:    cfg.Invoices,
		packages:    cfg.Packages,
		gateway:     cfg.Gateway,
		provisioner: cfg.Provisioner,
		notifier:    cfg.Notifier,
		receipts:    cfg.Receipts,
		currency:    cfg.Currency,
		logger:      cfg.Logger,
		now:         cfg.Now,
	}
	if s.currency == "" {
		s.currency = models.DefaultCurrency
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.notifier == nil {
		s.notifier = NopNotifier{}
	}
	if s.receipts == nil {
		s.receipts = NopReceiptArchive{}
	}
	return s
}

// CreateInvoiceInput describes a new invoice. Either DueDate or DueInDays must be set.
type CreateInvoiceInput struct {
	UserID             string               `json:"user_id"`
	Amount             *decimal.Decimal     `json:"amount"`
	Currency           string               `json:"currency"`
	DueDate            *time.Time           `json:"due_date"`
	DueInDays          *int                 `json:"due_in_days"`
	Description        string               `json:"description"`
	MachineSpecs       *models.MachineSpecs `json:"machine_specs"`
	UsageLimitPerMonth *int                 `json:"usage_limit_per_month"`
	MachineInfo        *models.MachineInfo  `json:"machine_info"`
}

// PaymentInitiation is what a caller needs to render the QR code.
type PaymentInitiation struct {
	PaymentID     string `json:"payment_id"`
	QRImageBase64 string `json:"qr_image_base64"`
	Amount        string `json:"amount"`
	TimeOut       string `json:"time_out"`
	Message       string `json:"message"`
}

// Reconcile outcomes reported to the polling caller.
const (
	ReconcilePaid      = "paid"
	ReconcilePending   = "pending"
	ReconcileTimeout   = "timeout"
	ReconcileCancelled = "cancelled"
)

// ReconcileResult is the outcome of one reconcile poll.
type ReconcileResult struct {
	Status  string              `json:"status"`
	Message string              `json:"message"`
	Invoice *models.InvoiceView `json:"invoice,omitempty"`
	Payment *pay.PaymentStatus  `json:"payment_data,omitempty"`
}

// Create issues a new pending invoice. Admin only.
func (s *InvoiceService) Create(ctx context.Context, caller models.Caller, in CreateInvoiceInput) (models.InvoiceView, error) {
	if err := requireAdmin(caller); err != nil {
		return models.InvoiceView{}, err
	}
	if strings.TrimSpace(in.UserID) == "" {
		return models.InvoiceView{}, validationf("user_id is required")
	}
	if in.Amount == nil {
		return models.InvoiceView{}, validationf("amount is required")
	}
	if !in.Amount.IsPositive() {
		return models.InvoiceView{}, validationf("amount must be positive")
	}
	if in.UsageLimitPerMonth != nil && *in.UsageLimitPerMonth < 0 {
		return models.InvoiceView{}, validationf("usage_limit_per_month must not be negative")
	}

	now := s.now()
	var due time.Time
	switch {
	case in.DueDate != nil && !in.DueDate.IsZero():
		due = *in.DueDate
	case in.DueInDays != nil:
		due = now.AddDate(0, 0, *in.DueInDays)
	default:
		return models.InvoiceView{}, validationf("due_date is required")
	}

	currency := strings.TrimSpace(in.Currency)
	if currency == "" {
		currency = s.currency
	}
	createdBy := caller.ID
	inv := &models.Invoice{
		ID:                 uuid.NewString(),
		UserID:             in.UserID,
		Amount:             *in.Amount,
		Currency:           currency,
		Status:             models.InvoiceStatusPending,
		DueDate:            due,
		Description:        strings.TrimSpace(in.Description),
		MachineSpecs:       in.MachineSpecs,
		UsageLimitPerMonth: in.UsageLimitPerMonth,
		MachineInfo:        in.MachineInfo,
		CreatedBy:          &createdBy,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.insert(ctx, inv); err != nil {
		return models.InvoiceView{}, err
	}
	return models.NewInvoiceView(inv, now), nil
}

// Purchase creates an invoice for the caller from an active service package.
// The due date is the package duration in calendar months from now.
func (s *InvoiceService) Purchase(ctx context.Context, caller models.Caller, packageID string) (models.InvoiceView, error) {
	if err := requireCaller(caller); err != nil {
		return models.InvoiceView{}, err
	}
	if strings.TrimSpace(packageID) == "" {
		return models.InvoiceView{}, validationf("package_id is required")
	}
	pkg, err := s.packages.GetActive(ctx, packageID)
	if errors.Is(err, models.ErrNoRecord) {
		return models.InvoiceView{}, fmt.Errorf("%w: %w", models.ErrNotFound, models.ErrPackageNotFound)
	}
	if err != nil {
		return models.InvoiceView{}, persistence("load package", err)
	}

	now := s.now()
	months := pkg.DurationMonths
	if months <= 0 {
		months = 1
	}
	currency := pkg.Currency
	if currency == "" {
		currency = s.currency
	}
	description := pkg.Name
	if pkg.Description != "" {
		description = pkg.Name + " - " + pkg.Description
	}
	var info *models.MachineInfo
	if pkg.MachineType != "" {
		info = &models.MachineInfo{Type: pkg.MachineType}
	}
	createdBy := caller.ID
	inv := &models.Invoice{
		ID:                 uuid.NewString(),
		UserID:             caller.ID,
		Amount:             pkg.Price,
		Currency:           currency,
		Status:             models.InvoiceStatusPending,
		DueDate:            now.AddDate(0, months, 0),
		Description:        description,
		MachineSpecs:       pkg.MachineSpecs,
		UsageLimitPerMonth: pkg.UsageLimitPerMonth,
		MachineInfo:        info,
		CreatedBy:          &createdBy,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.insert(ctx, inv); err != nil {
		return models.InvoiceView{}, err
	}
	s.logger.Info("package purchased", "op", "Purchase", "invoice_id", inv.ID, "package_id", pkg.ID, "user_id", caller.ID)
	return models.NewInvoiceView(inv, now), nil
}

// insert assigns an invoice number and stores inv. A clash on the number is
// retried once with a timestamp derived fallback.
func (s *InvoiceService) insert(ctx context.Context, inv *models.Invoice) error {
	logger := s.logger.With("op", "insertInvoice", "invoice_id", inv.ID)

	number, err := s.invoices.NextInvoiceNumber(ctx)
	if err != nil {
		logger.Warn("invoice number generation failed, using fallback", "err", err)
		number = fallbackInvoiceNumber(s.now())
	}
	inv.InvoiceNumber = number

	err = s.invoices.Create(ctx, inv)
	if errors.Is(err, models.ErrDuplicateRecord) {
		inv.InvoiceNumber = fallbackInvoiceNumber(s.now())
		logger.Warn("invoice number taken, retrying", "number", number, "retry", inv.InvoiceNumber)
		err = s.invoices.Create(ctx, inv)
	}
	if err != nil {
		return persistence("create invoice", err)
	}
	logger.Info("invoice created", "number", inv.InvoiceNumber, "user_id", inv.UserID, "amount", inv.Amount.String())
	return nil
}

func fallbackInvoiceNumber(now time.Time) string {
	return fmt.Sprintf("INV-%d-%04d", now.UnixNano(), rand.Intn(10000))
}

// Get returns an invoice visible to the caller.
func (s *InvoiceService) Get(ctx context.Context, caller models.Caller, id string) (models.InvoiceView, error) {
	if err := requireCaller(caller); err != nil {
		return models.InvoiceView{}, err
	}
	inv, err := s.load(ctx, id)
	if err != nil {
		return models.InvoiceView{}, err
	}
	if !caller.IsAdmin() && !caller.Owns(inv.UserID) {
		return models.InvoiceView{}, fmt.Errorf("%w: invoice belongs to another user", models.ErrForbidden)
	}
	return models.NewInvoiceView(inv, s.now()), nil
}

// List returns every invoice for admins and the caller's own invoices otherwise.
func (s *InvoiceService) List(ctx context.Context, caller models.Caller) ([]models.InvoiceView, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	scope := caller.ID
	if caller.IsAdmin() {
		scope = ""
	}
	invoices, err := s.invoices.List(ctx, scope)
	if err != nil {
		return nil, persistence("list invoices", err)
	}
	now := s.now()
	views := make([]models.InvoiceView, 0, len(invoices))
	for i := range invoices {
		views = append(views, models.NewInvoiceView(&invoices[i], now))
	}
	return views, nil
}

// InitiatePayment creates a gateway payment intent for the owner's invoice.
func (s *InvoiceService) InitiatePayment(ctx context.Context, caller models.Caller, id string) (*PaymentInitiation, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	inv, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !caller.Owns(inv.UserID) {
		return nil, fmt.Errorf("%w: only the invoice owner can pay it", models.ErrForbidden)
	}
	if !fsm.AcceptsPayment(inv.Status) {
		return nil, terminalConflict(inv.Status)
	}

	logger := s.logger.With("op", "InitiatePayment", "invoice_id", inv.ID, "invoice_number", inv.InvoiceNumber)
	intent, err := s.gateway.CreateIntent(ctx, inv.Amount, inv.InvoiceNumber)
	if err != nil {
		logger.Error("create payment intent failed", "err", err)
		return nil, fmt.Errorf("%w: %w", models.ErrGateway, err)
	}

	if err := s.invoices.SetPaymentID(ctx, inv.ID, intent.ID, s.now()); err != nil {
		logger.Error("persist payment_id failed", "payment_id", intent.ID, "err", err)
	}
	logger.Info("payment intent created", "payment_id", intent.ID)

	return &PaymentInitiation{
		PaymentID:     intent.ID,
		QRImageBase64: intent.QRImageBase64,
		Amount:        intent.Amount,
		TimeOut:       intent.TimeOut,
		Message:       "QR code created",
	}, nil
}

// ReconcilePayment polls the gateway for the invoice's payment intent and
// applies the result. Every call is independently idempotent.
func (s *InvoiceService) ReconcilePayment(ctx context.Context, caller models.Caller, id string) (*ReconcileResult, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	inv, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !caller.IsAdmin() && !caller.Owns(inv.UserID) {
		return nil, fmt.Errorf("%w: invoice belongs to another user", models.ErrForbidden)
	}
	if inv.PaymentID == nil || strings.TrimSpace(*inv.PaymentID) == "" {
		return nil, fmt.Errorf("%w: %w", models.ErrValidation, models.ErrNoPaymentIntent)
	}

	logger := s.logger.With("op", "ReconcilePayment", "invoice_id", inv.ID, "payment_id", *inv.PaymentID)
	st, err := s.gateway.Status(ctx, *inv.PaymentID)
	if err != nil {
		logger.Error("payment status failed", "err", err)
		return nil, fmt.Errorf("%w: %w", models.ErrGateway, err)
	}

	switch st.Status {
	case pay.StatusPaid:
		paid, err := s.settle(ctx, inv, st)
		if err != nil {
			return nil, err
		}
		view := models.NewInvoiceView(paid, s.now())
		return &ReconcileResult{Status: ReconcilePaid, Message: "payment confirmed", Invoice: &view, Payment: st}, nil
	case pay.StatusTimeout:
		view := models.NewInvoiceView(inv, s.now())
		return &ReconcileResult{Status: ReconcileTimeout, Message: "QR code expired, create a new payment", Invoice: &view}, nil
	case pay.StatusCancelled:
		view := models.NewInvoiceView(inv, s.now())
		return &ReconcileResult{Status: ReconcileCancelled, Message: "payment was cancelled, create a new payment", Invoice: &view}, nil
	default:
		view := models.NewInvoiceView(inv, s.now())
		return &ReconcileResult{Status: ReconcilePending, Message: "waiting for payment", Invoice: &view}, nil
	}
}

// settle records a gateway-confirmed payment. Side effects of the first
// transition run once; provisioning is attempted on every call.
func (s *InvoiceService) settle(ctx context.Context, inv *models.Invoice, st *pay.PaymentStatus) (*models.Invoice, error) {
	logger := s.logger.With("op", "settle", "invoice_id", inv.ID)
	now := s.now()

	switch inv.Status {
	case models.InvoiceStatusPaid:
	case models.InvoiceStatusCancelled:
		logger.Error("gateway reports PAID for cancelled invoice", "payment_id", st.IDPay, "transaction_id", st.TransactionID)
		return nil, fmt.Errorf("%w: %w", models.ErrConflict, models.ErrInvoiceCancelled)
	default:
		paidAt, ok := st.PaidAtTime()
		if !ok {
			paidAt = now
		}
		settlement := models.PaymentSettlement{TransactionID: st.TransactionID, PaidAt: paidAt, Method: models.PaymentMethodPromptPay}
		transitioned, err := s.invoices.MarkPaid(ctx, inv.ID, settlement, now)
		if err != nil {
			return nil, persistence("mark invoice paid", err)
		}
		current, err := s.load(ctx, inv.ID)
		if err != nil {
			return nil, err
		}
		if !transitioned && current.Status != models.InvoiceStatusPaid {
			logger.Error("invoice left pending state concurrently", "status", current.Status)
			return nil, terminalConflict(current.Status)
		}
		inv = current
		if transitioned {
			logger.Info("invoice paid", "transaction_id", st.TransactionID)
			s.afterPaid(ctx, inv, st)
		}
	}

	s.provisionIfPaidAndSpecced(ctx, inv)
	return inv, nil
}

func (s *InvoiceService) afterPaid(ctx context.Context, inv *models.Invoice, st *pay.PaymentStatus) {
	if st != nil {
		if err := s.receipts.Archive(ctx, inv, st.Raw); err != nil {
			s.logger.Error("archive receipt failed", "op", "afterPaid", "invoice_id", inv.ID, "err", err)
		}
	}
	s.notifier.InvoicePaid(ctx, inv)
}

// provisionIfPaidAndSpecced is the single provisioning entry point for every
// path that can produce a paid invoice. Failures never revert the payment.
func (s *InvoiceService) provisionIfPaidAndSpecced(ctx context.Context, inv *models.Invoice) {
	if s.provisioner == nil || inv.Status != models.InvoiceStatusPaid || !inv.HasMachineSpecs() {
		return
	}
	svc, created, err := s.provisioner.Provision(ctx, inv)
	if err != nil {
		s.logger.Error("provisioning failed", "op", "provision", "invoice_id", inv.ID, "err", err)
		return
	}
	if created {
		s.notifier.ServiceProvisioned(ctx, svc)
	}
}

// Update applies an administrative change set. Admin only.
func (s *InvoiceService) Update(ctx context.Context, caller models.Caller, id string, upd models.InvoiceUpdate) (models.InvoiceView, error) {
	if err := requireAdmin(caller); err != nil {
		return models.InvoiceView{}, err
	}
	if upd.IsEmpty() {
		return models.InvoiceView{}, validationf("no fields to update")
	}
	if upd.Status != nil && !fsm.ValidAdminStatus(*upd.Status) {
		return models.InvoiceView{}, validationf("status %q cannot be stored", *upd.Status)
	}
	if upd.Amount != nil && upd.Amount.IsNegative() {
		return models.InvoiceView{}, validationf("amount must not be negative")
	}
	if upd.Currency != nil && strings.TrimSpace(*upd.Currency) == "" {
		return models.InvoiceView{}, validationf("currency must not be empty")
	}
	if upd.UsageLimitPerMonth != nil && *upd.UsageLimitPerMonth < 0 {
		return models.InvoiceView{}, validationf("usage_limit_per_month must not be negative")
	}

	before, err := s.load(ctx, id)
	if err != nil {
		return models.InvoiceView{}, err
	}
	logger := s.logger.With("op", "UpdateInvoice", "invoice_id", id, "admin_id", caller.ID)
	if upd.Status != nil && !fsm.CanTransition(before.Status, *upd.Status) {
		logger.Warn("administrative status override", "from", before.Status, "to", *upd.Status)
	}

	if err := s.invoices.Update(ctx, id, upd, s.now()); err != nil {
		return models.InvoiceView{}, persistence("update invoice", err)
	}
	after, err := s.load(ctx, id)
	if err != nil {
		return models.InvoiceView{}, err
	}
	if before.Status != models.InvoiceStatusPaid && after.Status == models.InvoiceStatusPaid {
		logger.Info("invoice marked paid manually")
		s.afterPaid(ctx, after, nil)
	}
	s.provisionIfPaidAndSpecced(ctx, after)
	return models.NewInvoiceView(after, s.now()), nil
}

// Delete hard-deletes an invoice. Provisioned services are kept. Admin only.
func (s *InvoiceService) Delete(ctx context.Context, caller models.Caller, id string) error {
	if err := requireAdmin(caller); err != nil {
		return err
	}
	err := s.invoices.Delete(ctx, id)
	if errors.Is(err, models.ErrNoRecord) {
		return fmt.Errorf("%w: %w", models.ErrNotFound, models.ErrInvoiceNotFound)
	}
	if err != nil {
		return persistence("delete invoice", err)
	}
	s.logger.Info("invoice deleted", "op", "DeleteInvoice", "invoice_id", id, "admin_id", caller.ID)
	return nil
}

func (s *InvoiceService) load(ctx context.Context, id string) (*models.Invoice, error) {
	if strings.TrimSpace(id) == "" {
		return nil, validationf("invoice id is required")
	}
	inv, err := s.invoices.Get(ctx, id)
	if errors.Is(err, models.ErrNoRecord) {
		return nil, fmt.Errorf("%w: %w", models.ErrNotFound, models.ErrInvoiceNotFound)
	}
	if err != nil {
		return nil, persistence("load invoice", err)
	}
	return inv, nil
}

func terminalConflict(status string) error {
	if status == models.InvoiceStatusCancelled {
		return fmt.Errorf("%w: %w", models.ErrConflict, models.ErrInvoiceCancelled)
	}
	return fmt.Errorf("%w: %w", models.ErrConflict, models.ErrInvoicePaid)
}
