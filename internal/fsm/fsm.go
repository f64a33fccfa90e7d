package fsm

import "cloudbill/internal/models"

// Stored invoice statuses. Overdue is derived and never a transition target.
const (
	StatusPending   = models.InvoiceStatusPending
	StatusPaid      = models.InvoiceStatusPaid
	StatusCancelled = models.InvoiceStatusCancelled
)

// transitions lists the moves the payment flow may perform on its own.
// Administrators may override the stored status through ValidAdminStatus.
var transitions = map[string]map[string]struct{}{
	StatusPending: {
		StatusPaid:      {},
		StatusCancelled: {},
	},
	StatusPaid:      {},
	StatusCancelled: {},
}

// CanTransition returns whether an invoice can move from the current status to the target status.
func CanTransition(from, to string) bool {
	if from == to {
		return true
	}
	allowed, ok := transitions[from]
	if !ok {
		return false
	}
	_, ok = allowed[to]
	return ok
}

// IsTerminal reports whether no further payment intents may be created.
func IsTerminal(status string) bool {
	return status == StatusPaid || status == StatusCancelled
}

// AcceptsPayment reports whether a payment intent may be created for the status.
func AcceptsPayment(status string) bool {
	return !IsTerminal(status)
}

// ValidAdminStatus reports whether an administrator may store the status.
// Overdue is rejected because it only exists as a read-time view.
func ValidAdminStatus(status string) bool {
	_, ok := transitions[status]
	return ok
}
