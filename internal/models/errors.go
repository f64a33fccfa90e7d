package models

import (
	"errors"
)

// Error kinds surfaced by the billing core. Operations wrap one of these with
// a human readable message; callers classify with errors.Is.
var (
	ErrValidation      = errors.New("validation error")
	ErrUnauthenticated = errors.New("authentication required")
	ErrForbidden       = errors.New("forbidden")
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrGateway         = errors.New("payment gateway error")
	ErrPersistence     = errors.New("persistence error")
)

var (
	ErrNoRecord          = errors.New("models: no matching record found")
	ErrDuplicateRecord   = errors.New("models: duplicate record")
	ErrInvoiceNotFound   = errors.New("invoice not found")
	ErrPackageNotFound   = errors.New("package not found")
	ErrServiceNotFound   = errors.New("machine service not found")
	ErrNoPaymentIntent   = errors.New("invoice has no payment_id yet")
	ErrInvoicePaid       = errors.New("invoice is already paid")
	ErrInvoiceCancelled  = errors.New("invoice is cancelled")
	ErrInvalidTransition = errors.New("invalid status transition")
)
