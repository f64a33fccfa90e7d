package fsm

import "testing"

func TestCanTransition(t *testing.T) {
	if !CanTransition(StatusPending, StatusPaid) {
		t.Fatal("expected pending -> paid to be allowed")
	}
	if !CanTransition(StatusPending, StatusCancelled) {
		t.Fatal("expected pending -> cancelled to be allowed")
	}
	if !CanTransition(StatusPaid, StatusPaid) {
		t.Fatal("expected paid -> paid to be a no-op")
	}
	if CanTransition(StatusPaid, StatusPending) {
		t.Fatal("unexpected transition allowed")
	}
	if CanTransition(StatusCancelled, StatusPaid) {
		t.Fatal("cancelled invoice must not become paid through the payment flow")
	}
	if CanTransition(StatusPending, "overdue") {
		t.Fatal("overdue is never a transition target")
	}
}

func TestAcceptsPayment(t *testing.T) {
	cases := map[string]bool{
		StatusPending:   true,
		StatusPaid:      false,
		StatusCancelled: false,
	}
	for status, want := range cases {
		if got := AcceptsPayment(status); got != want {
			t.Errorf("AcceptsPayment(%q) = %v, want %v", status, got, want)
		}
	}
}

func TestValidAdminStatus(t *testing.T) {
	for _, s := range []string{StatusPending, StatusPaid, StatusCancelled} {
		if !ValidAdminStatus(s) {
			t.Errorf("expected %q to be accepted", s)
		}
	}
	for _, s := range []string{"overdue", "", "refunded"} {
		if ValidAdminStatus(s) {
			t.Errorf("expected %q to be rejected", s)
		}
	}
}
