package payment

import (
	"context"
	"errors"
	"time"
)

type CheckoutRequest struct {
	PriceID       string
	CustomerEmail string
	SuccessURL    string
	CancelURL     string
	// Metadata is attached to the hosted checkout and returned by ListCompleted.
	Metadata map[string]string
}

type Checkout struct {
	ID  string
	URL string
}

// CompletedCheckout is a checkout the processor reports as paid.
type CompletedCheckout struct {
	ID          string
	Metadata    map[string]string
	AmountTotal int64
	Currency    string
	CreatedAt   time.Time
}

// Processor is the narrow contract to the hosted payment provider.
type Processor interface {
	CreateCheckout(ctx context.Context, req CheckoutRequest) (*Checkout, error)
	// ListCompleted returns the paid checkouts recorded for a customer email.
	ListCompleted(ctx context.Context, customerEmail string) ([]CompletedCheckout, error)
}

var (
	ErrRateLimited = errors.New("payment: rate limited")
	ErrUnavailable = errors.New("payment: processor unavailable")
)
