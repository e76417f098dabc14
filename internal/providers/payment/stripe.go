package payment

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

// listLimit caps how many checkouts are scanned per verification.
const listLimit = 100

type Stripe struct {
	api *client.API
}

func NewStripe(secretKey string) *Stripe {
	api := &client.API{}
	api.Init(secretKey, nil)
	return &Stripe{api: api}
}

func (s *Stripe) CreateCheckout(ctx context.Context, req CheckoutRequest) (*Checkout, error) {
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(req.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL:    stripe.String(req.SuccessURL),
		CancelURL:     stripe.String(req.CancelURL),
		CustomerEmail: stripe.String(req.CustomerEmail),
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: req.Metadata,
		},
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx

	cs, err := s.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, classify(err)
	}
	return &Checkout{ID: cs.ID, URL: cs.URL}, nil
}

func (s *Stripe) ListCompleted(ctx context.Context, customerEmail string) ([]CompletedCheckout, error) {
	params := &stripe.CheckoutSessionListParams{
		CustomerDetails: &stripe.CheckoutSessionListCustomerDetailsParams{
			Email: stripe.String(customerEmail),
		},
	}
	params.Limit = stripe.Int64(listLimit)
	params.Context = ctx

	var out []CompletedCheckout
	scanned := 0
	it := s.api.CheckoutSessions.List(params)
	for scanned < listLimit && it.Next() {
		scanned++
		cs := it.CheckoutSession()
		if cs.Status != stripe.CheckoutSessionStatusComplete ||
			cs.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
			continue
		}
		out = append(out, CompletedCheckout{
			ID:          cs.ID,
			Metadata:    cs.Metadata,
			AmountTotal: cs.AmountTotal,
			Currency:    string(cs.Currency),
			CreatedAt:   time.Unix(cs.Created, 0).UTC(),
		})
	}
	if err := it.Err(); err != nil {
		return nil, classify(err)
	}
	return out, nil
}

func classify(err error) error {
	var serr *stripe.Error
	if errors.As(err, &serr) {
		switch {
		case serr.HTTPStatusCode == http.StatusTooManyRequests:
			return errors.Join(ErrRateLimited, err)
		case serr.HTTPStatusCode >= 500:
			return errors.Join(ErrUnavailable, err)
		}
		return err
	}
	// no stripe.Error means the request never got an API answer
	return errors.Join(ErrUnavailable, err)
}
