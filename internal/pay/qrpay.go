package pay

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
	"path"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cast"
)

// Payment intent statuses reported by the QR gateway.
const (
	StatusPending   = "PENDING"
	StatusPaid      = "PAID"
	StatusTimeout   = "TIMEOUT"
	StatusCancelled = "CANCELLED"
	StatusError     = "ERROR"
)

// ErrRejected is returned when the gateway answers but refuses to create an intent.
var ErrRejected = errors.New("qrpay: payment creation rejected")

// Config configures the QR gateway client.
type Config struct {
	// BaseURL of the gateway, e.g. http://qr.example:4000
	BaseURL string
	Client  *http.Client
	Logger  *slog.Logger
}

// Client talks to the QR-payment gateway. It never retries; callers decide
// the polling cadence.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient constructs a gateway client.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("qrpay: base_url is required")
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{baseURL: u, httpClient: client, logger: logger}, nil
}

// Intent is a freshly created payment intent and its rendering payload.
type Intent struct {
	ID            string `json:"payment_id"`
	QRImageBase64 string `json:"qr_image_base64"`
	Amount        string `json:"amount"`
	TimeOut       string `json:"time_out"`
}

type createPaymentRequest struct {
	Amount json.Number `json:"amount"`
	Ref1   string      `json:"ref1"`
}

type createPaymentResponse struct {
	Status        any    `json:"status"`
	QRImageBase64 string `json:"qr_image_base64"`
	Amount        any    `json:"amount"`
	TimeOut       any    `json:"time_out"`
	IDPay         string `json:"id_pay"`
	Message       string `json:"message"`
}

// CreateIntent creates a payment intent for amount. reference is echoed by the
// gateway as ref1 and must be the invoice number.
func (c *Client) CreateIntent(ctx context.Context, amount decimal.Decimal, reference string) (*Intent, error) {
	logger := c.logger.With("op", "CreateIntent", "ref1", reference)

	body, err := json.Marshal(createPaymentRequest{Amount: json.Number(amount.String()), Ref1: reference})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/create_payment"), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("create_payment request: %w", err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	logger.Debug("create_payment raw", "status", resp.Status, "body", trim(string(b), 512))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &GatewayError{StatusCode: resp.StatusCode, Status: resp.Status, Body: string(b)}
	}

	var out createPaymentResponse
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("decode create_payment: %w", err)
	}
	code, _ := cast.ToIntE(out.Status)
	if code != 1 || strings.TrimSpace(out.IDPay) == "" {
		msg := strings.TrimSpace(out.Message)
		if msg == "" {
			msg = "cannot create QR payment"
		}
		return nil, fmt.Errorf("%w: %s", ErrRejected, msg)
	}
	return &Intent{
		ID:            out.IDPay,
		QRImageBase64: out.QRImageBase64,
		Amount:        cast.ToString(out.Amount),
		TimeOut:       cast.ToString(out.TimeOut),
	}, nil
}

// PaymentStatus is the gateway's view of an intent.
type PaymentStatus struct {
	Status        string          `json:"status"`
	IDPay         string          `json:"id_pay"`
	Amount        string          `json:"amount"`
	Ref1          string          `json:"ref1"`
	TransactionID string          `json:"transaction_id,omitempty"`
	PaidAt        string          `json:"paid_at,omitempty"`
	BankRef       string          `json:"bank_ref,omitempty"`
	CreatedAt     string          `json:"created_at,omitempty"`
	ExpiredAt     string          `json:"expired_at,omitempty"`
	Raw           json.RawMessage `json:"-"`
}

// UnmarshalJSON tolerates numeric amounts and lower-case statuses.
func (p *PaymentStatus) UnmarshalJSON(data []byte) error {
	var raw struct {
		Status        string `json:"status"`
		IDPay         any    `json:"id_pay"`
		Amount        any    `json:"amount"`
		Ref1          string `json:"ref1"`
		TransactionID any    `json:"transaction_id"`
		PaidAt        string `json:"paid_at"`
		BankRef       string `json:"bank_ref"`
		CreatedAt     string `json:"created_at"`
		ExpiredAt     string `json:"expired_at"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	p.Status = strings.ToUpper(strings.TrimSpace(raw.Status))
	p.IDPay = strings.TrimSpace(cast.ToString(raw.IDPay))
	p.Amount = strings.TrimSpace(cast.ToString(raw.Amount))
	p.Ref1 = strings.TrimSpace(raw.Ref1)
	p.TransactionID = strings.TrimSpace(cast.ToString(raw.TransactionID))
	p.PaidAt = strings.TrimSpace(raw.PaidAt)
	p.BankRef = strings.TrimSpace(raw.BankRef)
	p.CreatedAt = strings.TrimSpace(raw.CreatedAt)
	p.ExpiredAt = strings.TrimSpace(raw.ExpiredAt)
	return nil
}

// PaidAtTime parses the settlement time. ok is false when absent or unparsable.
func (p *PaymentStatus) PaidAtTime() (time.Time, bool) {
	if p.PaidAt == "" {
		return time.Time{}, false
	}
	t, err := cast.ToTimeE(p.PaidAt)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Status polls the current state of intent id.
func (c *Client) Status(ctx context.Context, id string) (*PaymentStatus, error) {
	endpoint := c.endpoint("/api/payment_status") + "?id_pay=" + url.QueryEscape(id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("payment_status request: %w", err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &GatewayError{StatusCode: resp.StatusCode, Status: resp.Status, Body: string(b)}
	}

	var out PaymentStatus
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("decode payment_status: %w", err)
	}
	out.Raw = json.RawMessage(b)
	c.logger.Debug("payment_status", "id_pay", id, "status", out.Status)
	return &out, nil
}

func (c *Client) endpoint(p string) string {
	u := *c.baseURL
	u.Path = path.Join(u.Path, p)
	return u.String()
}

func trim(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}

// GatewayError is a non-2xx answer from the gateway.
type GatewayError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *GatewayError) Error() string {
	if e == nil {
		return "<nil>"
	}
	bt := strings.TrimSpace(e.Body)
	if bt == "" {
		return fmt.Sprintf("qrpay error: %s", e.Status)
	}
	return fmt.Sprintf("qrpay error: %s: %s", e.Status, trim(bt, 512))
}
