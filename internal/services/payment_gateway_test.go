package services

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"

	"github.com/yoockh/yoscreen/internal/logger"
	"github.com/yoockh/yoscreen/internal/models"
	"github.com/yoockh/yoscreen/internal/providers/payment"
	mongorepo "github.com/yoockh/yoscreen/internal/repositories/mongo"
	"github.com/yoockh/yoscreen/internal/utils"
)

var testAccount = models.Account{ID: "owner-1", Email: "ana@example.com", Role: models.RoleUser}

func newTestGateway(proc *fakeProcessor, repo *fakeScreeningRepo, events *fakeEventRepo) PaymentGateway {
	var er mongorepo.PaymentEventRepository
	if events != nil {
		er = events
	}
	return NewPaymentGateway(proc, repo, er, PaymentConfig{
		BaseURL:            "https://app.example",
		ScreeningPriceID:   "price_screening",
		TestPremiumPriceID: "price_test",
	}, logger.Discard())
}

func seedSession(t *testing.T, repo *fakeScreeningRepo, owner string) *models.ScreeningSession {
	t.Helper()
	store := newTestStore(repo)
	s, err := store.Create(context.Background(), owner, testProfile)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return s
}

func TestCreateCheckoutTagsSession(t *testing.T) {
	proc, repo, events := newFakeProcessor(), newFakeScreeningRepo(), &fakeEventRepo{}
	gw := newTestGateway(proc, repo, events)
	s := seedSession(t, repo, testAccount.ID)

	redirect, err := gw.CreateCheckout(context.Background(), testAccount, models.ProductScreening, s.ID)
	if err != nil {
		t.Fatalf("CreateCheckout: %v", err)
	}
	if !strings.HasPrefix(redirect, "https://checkout.example/") {
		t.Fatalf("unexpected redirect %q", redirect)
	}

	req := proc.created[0]
	if req.Metadata["session_id"] != s.ID || req.Metadata["product"] != "screening" {
		t.Fatalf("checkout not tagged: %+v", req.Metadata)
	}
	if req.PriceID != "price_screening" || req.CustomerEmail != testAccount.Email {
		t.Fatalf("unexpected request: %+v", req)
	}

	u, err := url.Parse(req.SuccessURL)
	if err != nil {
		t.Fatalf("parse success url: %v", err)
	}
	if u.Path != "/screening" || u.Query().Get("session_id") != s.ID || u.Query().Get("continue") != "1" {
		t.Fatalf("unexpected success url %q", req.SuccessURL)
	}

	if got := events.kinds(); len(got) != 1 || got[0] != models.PaymentCheckoutCreated {
		t.Fatalf("events = %v", got)
	}
}

func TestCreateCheckoutRejections(t *testing.T) {
	ctx := context.Background()
	proc, repo := newFakeProcessor(), newFakeScreeningRepo()
	gw := newTestGateway(proc, repo, nil)
	s := seedSession(t, repo, testAccount.ID)

	if _, err := gw.CreateCheckout(ctx, models.Account{ID: "owner-1"}, models.ProductScreening, s.ID); !utils.IsCode(err, utils.CodeUnauthorized) {
		t.Fatalf("no email: want UNAUTHORIZED, got %v", err)
	}
	other := models.Account{ID: "owner-2", Email: "b@example.com"}
	if _, err := gw.CreateCheckout(ctx, other, models.ProductScreening, s.ID); !utils.IsCode(err, utils.CodeForbidden) {
		t.Fatalf("foreign session: want FORBIDDEN, got %v", err)
	}
	if _, err := gw.CreateCheckout(ctx, testAccount, "gift", s.ID); !utils.IsCode(err, utils.CodeInvalidArgument) {
		t.Fatalf("unknown product: want INVALID_ARGUMENT, got %v", err)
	}
	if len(proc.created) != 0 {
		t.Fatalf("processor called %d times", len(proc.created))
	}
}

// Scenario: verify before any charge exists, then after the charge lands.
func TestVerifyScenarios(t *testing.T) {
	ctx := context.Background()
	proc, repo, events := newFakeProcessor(), newFakeScreeningRepo(), &fakeEventRepo{}
	gw := newTestGateway(proc, repo, events)
	s := seedSession(t, repo, testAccount.ID)

	if _, err := gw.CreateCheckout(ctx, testAccount, models.ProductScreening, s.ID); err != nil {
		t.Fatalf("CreateCheckout: %v", err)
	}

	paid, err := gw.Verify(ctx, testAccount, s.ID)
	if err != nil || paid {
		t.Fatalf("before payment: paid=%v err=%v", paid, err)
	}
	if row, _ := repo.GetByID(ctx, s.ID); row.Paid {
		t.Fatal("session marked paid without a charge")
	}

	proc.complete(testAccount.Email, map[string]string{"session_id": "another-session"})
	if paid, _ := gw.Verify(ctx, testAccount, s.ID); paid {
		t.Fatal("charge for another session must not unlock this one")
	}

	proc.complete(testAccount.Email, proc.created[0].Metadata)

	for i := 0; i < 2; i++ {
		paid, err := gw.Verify(ctx, testAccount, s.ID)
		if err != nil || !paid {
			t.Fatalf("verify #%d: paid=%v err=%v", i+1, paid, err)
		}
	}

	if repo.markCalls != 1 {
		t.Fatalf("paid write performed %d times, want 1", repo.markCalls)
	}
	row, _ := repo.GetByID(ctx, s.ID)
	if !row.Paid {
		t.Fatal("session not marked paid")
	}
	if proc.listCalls != 3 {
		t.Fatalf("already-paid verify must not query the processor, list calls = %d", proc.listCalls)
	}

	var verified int
	for _, k := range events.kinds() {
		if k == models.PaymentVerified {
			verified++
		}
	}
	if verified != 1 {
		t.Fatalf("verified events = %d, want 1", verified)
	}
}

func TestVerifyOwnerAndProcessorErrors(t *testing.T) {
	ctx := context.Background()
	proc, repo := newFakeProcessor(), newFakeScreeningRepo()
	gw := newTestGateway(proc, repo, nil)
	s := seedSession(t, repo, testAccount.ID)

	if _, err := gw.Verify(ctx, models.Account{ID: "owner-2", Email: "x@example.com"}, s.ID); !utils.IsCode(err, utils.CodeForbidden) {
		t.Fatalf("want FORBIDDEN, got %v", err)
	}
	if _, err := gw.Verify(ctx, testAccount, "missing"); !utils.IsCode(err, utils.CodeNotFound) {
		t.Fatalf("want NOT_FOUND, got %v", err)
	}

	proc.listErr = errors.Join(payment.ErrRateLimited, errors.New("429"))
	if _, err := gw.Verify(ctx, testAccount, s.ID); !utils.IsCode(err, utils.CodeRateLimited) {
		t.Fatalf("want RATE_LIMITED, got %v", err)
	}
	proc.listErr = errors.Join(payment.ErrUnavailable, errors.New("502"))
	if _, err := gw.Verify(ctx, testAccount, s.ID); !utils.IsCode(err, utils.CodeUnavailable) {
		t.Fatalf("want UNAVAILABLE, got %v", err)
	}
}

func TestTestPremiumCheckoutAndVerify(t *testing.T) {
	ctx := context.Background()
	proc, repo, events := newFakeProcessor(), newFakeScreeningRepo(), &fakeEventRepo{}
	gw := newTestGateway(proc, repo, events)

	redirect, err := gw.CreateCheckout(ctx, testAccount, models.ProductTestPremium, "aq10")
	if err != nil || redirect == "" {
		t.Fatalf("CreateCheckout: %q %v", redirect, err)
	}
	req := proc.created[0]
	if req.Metadata["test_id"] != "aq10" || req.PriceID != "price_test" {
		t.Fatalf("unexpected request: %+v", req)
	}
	if !strings.Contains(req.SuccessURL, "test_id=aq10") {
		t.Fatalf("unexpected success url %q", req.SuccessURL)
	}

	if paid, err := gw.VerifyTestPremium(ctx, testAccount, "aq10"); err != nil || paid {
		t.Fatalf("before payment: %v %v", paid, err)
	}
	proc.complete(testAccount.Email, req.Metadata)
	if paid, err := gw.VerifyTestPremium(ctx, testAccount, "aq10"); err != nil || !paid {
		t.Fatalf("after payment: %v %v", paid, err)
	}
	if paid, _ := gw.VerifyTestPremium(ctx, testAccount, "raads"); paid {
		t.Fatal("charge for one test must not unlock another")
	}
}
