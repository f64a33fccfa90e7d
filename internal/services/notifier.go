package services

import (
	"context"
	"fmt"
	"log/slog"

	"firebase.google.com/go/messaging"

	"cloudbill/internal/models"
)

// Notifier delivers best-effort billing notifications. Implementations log
// their own failures; callers never wait on delivery outcome.
type Notifier interface {
	InvoicePaid(ctx context.Context, inv *models.Invoice)
	ServiceProvisioned(ctx context.Context, svc *models.MachineService)
}

type NopNotifier struct{}

func (NopNotifier) InvoicePaid(context.Context, *models.Invoice)               {}
func (NopNotifier) ServiceProvisioned(context.Context, *models.MachineService) {}

// TokenStore resolves push tokens registered by a user.
type TokenStore interface {
	TokensByUser(ctx context.Context, userID string) ([]string, error)
	DeleteToken(ctx context.Context, token string) error
}

// MessageSender is the subset of *messaging.Client used for pushes.
type MessageSender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// FCMNotifier pushes notifications to every device of the invoice owner.
type FCMNotifier struct {
	sender MessageSender
	tokens TokenStore
	logger *slog.Logger
}

func NewFCMNotifier(sender MessageSender, tokens TokenStore, logger *slog.Logger) *FCMNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &FCMNotifier{sender: sender, tokens: tokens, logger: logger}
}

func (n *FCMNotifier) InvoicePaid(ctx context.Context, inv *models.Invoice) {
	n.push(ctx, inv.UserID, "Payment received",
		fmt.Sprintf("Invoice %s (%s %s) is paid", inv.InvoiceNumber, inv.Amount.StringFixed(2), inv.Currency),
		map[string]string{"type": "invoice_paid", "invoice_id": inv.ID})
}

func (n *FCMNotifier) ServiceProvisioned(ctx context.Context, svc *models.MachineService) {
	n.push(ctx, svc.UserID, "Service ready",
		fmt.Sprintf("%s is active until %s", svc.ServiceName, svc.ExpiryDate.Format("2006-01-02")),
		map[string]string{"type": "service_provisioned", "service_id": svc.ID, "invoice_id": svc.InvoiceID})
}

func (n *FCMNotifier) push(ctx context.Context, userID, title, body string, data map[string]string) {
	logger := n.logger.With("op", "push", "user_id", userID, "type", data["type"])
	tokens, err := n.tokens.TokensByUser(ctx, userID)
	if err != nil {
		logger.Error("load device tokens failed", "err", err)
		return
	}
	for _, token := range tokens {
		msg := &messaging.Message{
			Token:        token,
			Notification: &messaging.Notification{Title: title, Body: body},
			Data:         data,
			Android: &messaging.AndroidConfig{
				Priority: "high",
			},
			APNS: &messaging.APNSConfig{
				Headers: map[string]string{"apns-priority": "10"},
				Payload: &messaging.APNSPayload{
					Aps: &messaging.Aps{
						Alert: &messaging.ApsAlert{Title: title, Body: body},
						Sound: "default",
					},
				},
			},
		}
		if _, err := n.sender.Send(ctx, msg); err != nil {
			if messaging.IsRegistrationTokenNotRegistered(err) {
				if derr := n.tokens.DeleteToken(ctx, token); derr != nil {
					logger.Warn("drop unregistered token failed", "err", derr)
				}
				continue
			}
			logger.Warn("push failed", "err", err)
		}
	}
}
