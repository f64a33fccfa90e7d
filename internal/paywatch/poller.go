// Package paywatch polls the reconcile endpoint of an invoice until the
// payment settles, expires, or is cancelled.
package paywatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const DefaultInterval = 5 * time.Second

// Outcomes reported by the reconcile endpoint.
const (
	StatusPaid      = "paid"
	StatusPending   = "pending"
	StatusTimeout   = "timeout"
	StatusCancelled = "cancelled"
)

// Result is one reconcile response.
type Result struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Invoice json.RawMessage `json:"invoice,omitempty"`
	Attempt int             `json:"-"`
}

// Terminal reports whether polling should stop.
func (r Result) Terminal() bool {
	switch r.Status {
	case StatusPaid, StatusTimeout, StatusCancelled:
		return true
	}
	return false
}

// APIError is a 4xx answer from the server; polling stops on it.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

type Config struct {
	BaseURL  string
	Token    string
	Interval time.Duration
	Client   *http.Client
	Logger   *slog.Logger
}

type Poller struct {
	baseURL  *url.URL
	token    string
	interval time.Duration
	client   *http.Client
	logger   *slog.Logger
}

func NewPoller(cfg Config) (*Poller, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("paywatch: base url is required")
	}
	u, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("paywatch: parse base url: %w", err)
	}
	if u.Path == "" {
		u.Path = "/"
	}
	p := &Poller{baseURL: u, token: cfg.Token, interval: cfg.Interval, client: cfg.Client, logger: cfg.Logger}
	if p.interval <= 0 {
		p.interval = DefaultInterval
	}
	if p.client == nil {
		p.client = &http.Client{Timeout: 30 * time.Second}
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p, nil
}

// Watch polls invoiceID immediately and then every interval. onTick, when
// set, sees every response. Transport failures and 5xx answers are retried
// on the next tick.
func (p *Poller) Watch(ctx context.Context, invoiceID string, onTick func(Result)) (Result, error) {
	if strings.TrimSpace(invoiceID) == "" {
		return Result{}, errors.New("paywatch: invoice id is required")
	}
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for attempt := 1; ; attempt++ {
		res, err := p.Check(ctx, invoiceID)
		var apiErr *APIError
		switch {
		case errors.As(err, &apiErr):
			return Result{}, err
		case err != nil:
			if ctx.Err() != nil {
				return Result{}, ctx.Err()
			}
			p.logger.Warn("check payment failed", "invoice_id", invoiceID, "attempt", attempt, "err", err)
		default:
			res.Attempt = attempt
			if onTick != nil {
				onTick(res)
			}
			if res.Terminal() {
				return res, nil
			}
		}

		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Check performs a single reconcile call.
func (p *Poller) Check(ctx context.Context, invoiceID string) (Result, error) {
	endpoint := p.baseURL.JoinPath("invoices", invoiceID, "check-payment")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(nil))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Accept", "application/json")
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Result{}, err
	}
	if resp.StatusCode >= 400 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(body, &e)
		if e.Error == "" {
			e.Error = strings.TrimSpace(string(body))
		}
		if resp.StatusCode < 500 {
			return Result{}, &APIError{StatusCode: resp.StatusCode, Message: e.Error}
		}
		return Result{}, fmt.Errorf("server error %d: %s", resp.StatusCode, e.Error)
	}

	var res Result
	if err := json.Unmarshal(body, &res); err != nil {
		return Result{}, fmt.Errorf("decode reconcile response: %w", err)
	}
	return res, nil
}
