package paywatch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestWatchStopsOnPaid(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/invoices/inv-1/check-payment" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("missing bearer token")
		}
		n := atomic.AddInt32(&calls, 1)
		switch n {
		case 1:
			w.Write([]byte(`{"status":"pending","message":"waiting for payment"}`))
		case 2:
			w.WriteHeader(http.StatusBadGateway)
			w.Write([]byte(`{"error":"gateway down"}`))
		default:
			w.Write([]byte(`{"status":"paid","message":"payment confirmed","invoice":{"id":"inv-1"}}`))
		}
	}))
	defer srv.Close()

	p, err := NewPoller(Config{BaseURL: srv.URL + "/", Token: "tok", Interval: 5 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewPoller: %v", err)
	}
	var ticks []string
	res, err := p.Watch(context.Background(), "inv-1", func(r Result) { ticks = append(ticks, r.Status) })
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	if res.Status != StatusPaid || res.Attempt != 3 {
		t.Fatalf("result = %+v", res)
	}
	if len(ticks) != 2 || ticks[0] != StatusPending || ticks[1] != StatusPaid {
		t.Fatalf("ticks = %v", ticks)
	}
}

func TestWatchTerminalStatuses(t *testing.T) {
	for _, status := range []string{StatusTimeout, StatusCancelled} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"status":"` + status + `","message":"done"}`))
		}))
		p, _ := NewPoller(Config{BaseURL: srv.URL, Interval: time.Millisecond})
		res, err := p.Watch(context.Background(), "inv-1", nil)
		srv.Close()
		if err != nil || res.Status != status {
			t.Fatalf("%s: res=%+v err=%v", status, res, err)
		}
	}
}

func TestWatchStopsOnClientError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":"forbidden: not your invoice"}`))
	}))
	defer srv.Close()

	p, _ := NewPoller(Config{BaseURL: srv.URL, Interval: time.Millisecond})
	_, err := p.Watch(context.Background(), "inv-1", nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusForbidden || apiErr.Message != "forbidden: not your invoice" {
		t.Fatalf("err = %v", err)
	}
}

func TestWatchHonoursCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"pending"}`))
	}))
	defer srv.Close()

	p, _ := NewPoller(Config{BaseURL: srv.URL, Interval: 5 * time.Millisecond})
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := p.Watch(ctx, "inv-1", nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v", err)
	}
}

func TestNewPollerRequiresBaseURL(t *testing.T) {
	if _, err := NewPoller(Config{}); err == nil {
		t.Fatal("expected error")
	}
}
