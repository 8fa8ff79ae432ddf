// Package payment verifies payments for paid activities and issues refunds.
package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	razorpay "github.com/razorpay/razorpay-go"
)

// ErrNotCaptured is returned when a payment exists but has not been captured.
var ErrNotCaptured = errors.New("payment not captured")

// Gateway is the payment provider as seen by the booking service.
type Gateway interface {
	// Verify checks paymentID and returns the captured amount in minor units.
	Verify(ctx context.Context, paymentID string) (int, error)
	// Refund returns amountCents of paymentID to the payer.
	Refund(ctx context.Context, paymentID string, amountCents int) error
}

type paymentAPI interface {
	Fetch(paymentID string, queryParams map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
	Refund(paymentID string, amount int, data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

// Razorpay implements Gateway with the Razorpay payments API.
type Razorpay struct {
	payments paymentAPI
}

// NewRazorpay constructs a Razorpay gateway.
func NewRazorpay(keyID, keySecret string) *Razorpay {
	client := razorpay.NewClient(keyID, keySecret)
	return &Razorpay{payments: client.Payment}
}

func (r *Razorpay) Verify(_ context.Context, paymentID string) (int, error) {
	p, err := r.payments.Fetch(paymentID, nil, nil)
	if err != nil {
		return 0, fmt.Errorf("fetch payment %s: %w", paymentID, err)
	}
	if status, _ := p["status"].(string); status != "captured" {
		return 0, fmt.Errorf("%w: status %q", ErrNotCaptured, status)
	}
	amount, _ := p["amount"].(float64)
	return int(amount), nil
}

func (r *Razorpay) Refund(_ context.Context, paymentID string, amountCents int) error {
	_, err := r.payments.Refund(paymentID, amountCents, map[string]interface{}{
		"speed": "normal",
		"notes": map[string]interface{}{"reason": "activity booking cancelled"},
	}, nil)
	if err != nil {
		return fmt.Errorf("refund payment %s: %w", paymentID, err)
	}
	return nil
}

// Manual records payment references collected by the host outside the
// platform. Verification trusts the reference and refunds are logged for the
// host to settle by hand.
type Manual struct {
	logger *slog.Logger
}

// NewManual constructs a Manual gateway.
func NewManual(logger *slog.Logger) *Manual {
	return &Manual{logger: logger}
}

func (m *Manual) Verify(_ context.Context, _ string) (int, error) {
	return 0, nil
}

func (m *Manual) Refund(_ context.Context, paymentID string, amountCents int) error {
	m.logger.Info("manual refund required", "payment_id", paymentID, "amount_cents", amountCents)
	return nil
}
