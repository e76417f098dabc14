package services

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yoockh/yoscreen/internal/models"
	"github.com/yoockh/yoscreen/internal/providers/payment"
	mongorepo "github.com/yoockh/yoscreen/internal/repositories/mongo"
	pgrepo "github.com/yoockh/yoscreen/internal/repositories/postgres"
	"github.com/yoockh/yoscreen/internal/utils"
)

const (
	metaSessionID = "session_id"
	metaTestID    = "test_id"
	metaProduct   = "product"
	metaOwner     = "owner_id"
)

type PaymentGateway interface {
	// CreateCheckout returns the hosted checkout URL. reference is the session id
	// for ProductScreening and the test id for ProductTestPremium.
	CreateCheckout(ctx context.Context, acct models.Account, kind models.ProductKind, reference string) (string, error)
	// Verify reports whether the processor holds a completed checkout for the session,
	// and marks the session paid the first time it does.
	Verify(ctx context.Context, acct models.Account, sessionID string) (bool, error)
	VerifyTestPremium(ctx context.Context, acct models.Account, testID string) (bool, error)
}

type PaymentConfig struct {
	BaseURL            string
	ScreeningPriceID   string
	TestPremiumPriceID string
}

type paymentGateway struct {
	proc   payment.Processor
	repo   pgrepo.ScreeningRepository
	events mongorepo.PaymentEventRepository // optional
	cfg    PaymentConfig
	log    *logrus.Logger
	now    func() time.Time
}

func NewPaymentGateway(
	proc payment.Processor,
	repo pgrepo.ScreeningRepository,
	events mongorepo.PaymentEventRepository,
	cfg PaymentConfig,
	log *logrus.Logger,
) PaymentGateway {
	return &paymentGateway{
		proc:   proc,
		repo:   repo,
		events: events,
		cfg:    cfg,
		log:    log,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (g *paymentGateway) CreateCheckout(ctx context.Context, acct models.Account, kind models.ProductKind, reference string) (string, error) {
	const op = "PaymentGateway.CreateCheckout"

	if !acct.Authenticated() || acct.Email == "" {
		return "", utils.E(utils.CodeUnauthorized, op, "checkout requires a signed-in account with an email", nil)
	}
	if reference == "" {
		return "", utils.E(utils.CodeInvalidArgument, op, "checkout reference is required", nil)
	}

	req := payment.CheckoutRequest{
		CustomerEmail: acct.Email,
		Metadata: map[string]string{
			metaProduct: string(kind),
			metaOwner:   acct.ID,
		},
	}
	event := models.PaymentEvent{Kind: models.PaymentCheckoutCreated, Product: kind, OwnerID: acct.ID}

	switch kind {
	case models.ProductScreening:
		row, err := g.ownedSession(ctx, op, acct.ID, reference)
		if err != nil {
			return "", err
		}
		if row.Paid {
			return "", utils.E(utils.CodeConflict, op, "session is already paid", nil)
		}
		req.PriceID = g.cfg.ScreeningPriceID
		req.Metadata[metaSessionID] = row.ID
		req.SuccessURL = g.returnURL("/screening", metaSessionID, row.ID, "continue")
		req.CancelURL = g.returnURL("/screening", metaSessionID, row.ID, "canceled")
		event.SessionID = row.ID
	case models.ProductTestPremium:
		req.PriceID = g.cfg.TestPremiumPriceID
		req.Metadata[metaTestID] = reference
		req.SuccessURL = g.returnURL("/tests/premium", metaTestID, reference, "continue")
		req.CancelURL = g.returnURL("/tests/premium", metaTestID, reference, "canceled")
		event.TestID = reference
	default:
		return "", utils.E(utils.CodeInvalidArgument, op, "unknown product kind", nil)
	}
	if req.PriceID == "" {
		return "", utils.E(utils.CodeUnavailable, op, "no price configured for product", nil)
	}

	co, err := g.proc.CreateCheckout(ctx, req)
	if err != nil {
		return "", g.processorError(op, err)
	}

	event.CheckoutID = co.ID
	g.record(ctx, event)

	g.log.WithFields(logrus.Fields{
		"product":     kind,
		"owner_id":    acct.ID,
		"checkout_id": co.ID,
	}).Info("checkout created")
	return co.URL, nil
}

func (g *paymentGateway) Verify(ctx context.Context, acct models.Account, sessionID string) (bool, error) {
	const op = "PaymentGateway.Verify"

	if !acct.Authenticated() {
		return false, utils.E(utils.CodeUnauthorized, op, "unauthorized", nil)
	}
	if sessionID == "" {
		return false, utils.E(utils.CodeInvalidArgument, op, "session_id is required", nil)
	}

	row, err := g.ownedSession(ctx, op, acct.ID, sessionID)
	if err != nil {
		return false, err
	}
	if row.Paid {
		return true, nil
	}
	if acct.Email == "" {
		return false, utils.E(utils.CodeUnauthorized, op, "account has no email to match payments against", nil)
	}

	co, err := g.findCompleted(ctx, op, acct.Email, metaSessionID, sessionID)
	if err != nil {
		return false, err
	}
	if co == nil {
		g.record(ctx, models.PaymentEvent{
			Kind: models.PaymentPending, Product: models.ProductScreening, SessionID: sessionID, OwnerID: acct.ID,
		})
		return false, nil
	}

	wrote, err := g.repo.MarkPaid(ctx, sessionID)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return false, utils.E(utils.CodeNotFound, op, "session not found", err)
		}
		return false, utils.E(utils.CodeInternal, op, "failed to mark session paid", err)
	}
	if wrote {
		g.record(ctx, models.PaymentEvent{
			Kind: models.PaymentVerified, Product: models.ProductScreening,
			SessionID: sessionID, OwnerID: acct.ID, CheckoutID: co.ID,
		})
		g.log.WithFields(logrus.Fields{"session_id": sessionID, "checkout_id": co.ID}).Info("session marked paid")
	}
	return true, nil
}

func (g *paymentGateway) VerifyTestPremium(ctx context.Context, acct models.Account, testID string) (bool, error) {
	const op = "PaymentGateway.VerifyTestPremium"

	if !acct.Authenticated() || acct.Email == "" {
		return false, utils.E(utils.CodeUnauthorized, op, "unauthorized", nil)
	}
	if testID == "" {
		return false, utils.E(utils.CodeInvalidArgument, op, "test_id is required", nil)
	}

	co, err := g.findCompleted(ctx, op, acct.Email, metaTestID, testID)
	if err != nil {
		return false, err
	}
	if co == nil {
		return false, nil
	}
	g.record(ctx, models.PaymentEvent{
		Kind: models.PaymentVerified, Product: models.ProductTestPremium,
		TestID: testID, OwnerID: acct.ID, CheckoutID: co.ID,
	})
	return true, nil
}

func (g *paymentGateway) ownedSession(ctx context.Context, op, owner, id string) (*models.ScreeningSession, error) {
	row, err := g.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "session not found", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to read session", err)
	}
	if row.OwnerID != owner {
		return nil, utils.E(utils.CodeForbidden, op, "session belongs to another account", nil)
	}
	return row, nil
}

// findCompleted returns the first completed checkout whose metadata key equals value, or nil.
func (g *paymentGateway) findCompleted(ctx context.Context, op, email, key, value string) (*payment.CompletedCheckout, error) {
	done, err := g.proc.ListCompleted(ctx, email)
	if err != nil {
		return nil, g.processorError(op, err)
	}
	for i := range done {
		if done[i].Metadata[key] == value {
			return &done[i], nil
		}
	}
	return nil, nil
}

func (g *paymentGateway) processorError(op string, err error) error {
	g.log.WithError(err).WithField("op", op).Warn("payment processor call failed")
	switch {
	case errors.Is(err, payment.ErrRateLimited):
		return utils.E(utils.CodeRateLimited, op, "payment processor is busy, try again shortly", err)
	case errors.Is(err, context.DeadlineExceeded):
		return utils.E(utils.CodeTimeout, op, "payment processor timed out", err)
	}
	return utils.E(utils.CodeUnavailable, op, "payment processor unavailable", err)
}

func (g *paymentGateway) record(ctx context.Context, e models.PaymentEvent) {
	if g.events == nil {
		return
	}
	e.CreatedAt = g.now()
	if err := g.events.Insert(ctx, &e); err != nil {
		g.log.WithError(err).WithField("kind", e.Kind).Warn("failed to record payment event")
	}
}

func (g *paymentGateway) returnURL(path, key, value, marker string) string {
	q := url.Values{}
	q.Set(key, value)
	q.Set(marker, "1")
	return g.cfg.BaseURL + path + "?" + q.Encode()
}
