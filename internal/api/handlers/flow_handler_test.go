package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/yoockh/yoscreen/internal/api/handlers"
	"github.com/yoockh/yoscreen/internal/api/routes"
	"github.com/yoockh/yoscreen/internal/cache"
	"github.com/yoockh/yoscreen/internal/flow"
	"github.com/yoockh/yoscreen/internal/logger"
	"github.com/yoockh/yoscreen/internal/models"
	"github.com/yoockh/yoscreen/internal/providers/payment"
	pgrepo "github.com/yoockh/yoscreen/internal/repositories/postgres"
	"github.com/yoockh/yoscreen/internal/services"
	"github.com/yoockh/yoscreen/internal/utils"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

const testSecret = "test-secret"

type stubGenerator struct{}

func (stubGenerator) Phase1(context.Context, services.Phase1Input) (*services.Phase1Output, error) {
	return &services.Phase1Output{Introduction: "Hola", Questions: []string{"q1", "q2", "q3", "q4", "q5", "q6"}}, nil
}

func (stubGenerator) Teaser(context.Context, services.TeaserInput) (*models.Teaser, error) {
	return &models.Teaser{Title: "t", Summary: "s", Patterns: []string{"a", "b"}}, nil
}

func (stubGenerator) Phase2(context.Context, services.Phase2Input) (*services.Phase2Output, error) {
	return &services.Phase2Output{
		Analysis:  models.Analysis{LeadingHypothesis: "TDAH"},
		Questions: []string{"p1", "p2", "p3", "p4"},
	}, nil
}

func (stubGenerator) FinalReport(context.Context, services.FinalReportInput) (*models.FinalReport, error) {
	return &models.FinalReport{Hypothesis: "TDAH", Disclaimer: services.ReportDisclaimer}, nil
}

type ledger struct {
	mu        sync.Mutex
	created   []payment.CheckoutRequest
	completed []payment.CompletedCheckout
}

func (l *ledger) CreateCheckout(_ context.Context, req payment.CheckoutRequest) (*payment.Checkout, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.created = append(l.created, req)
	return &payment.Checkout{ID: fmt.Sprintf("cs_%d", len(l.created)), URL: "https://checkout.example/pay"}, nil
}

func (l *ledger) ListCompleted(context.Context, string) ([]payment.CompletedCheckout, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.completed, nil
}

func (l *ledger) payLast() {
	l.mu.Lock()
	defer l.mu.Unlock()
	last := l.created[len(l.created)-1]
	l.completed = append(l.completed, payment.CompletedCheckout{ID: "cs_paid", Metadata: last.Metadata})
}

type server struct {
	engine *gin.Engine
	ledger *ledger
	flows  flow.Store
}

func newServer(t *testing.T) *server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	t.Setenv("SUPABASE_JWT_SECRET", testSecret)
	t.Setenv("SUPABASE_JWT_ISSUER", "")
	t.Setenv("SUPABASE_JWT_AUDIENCE", "")

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&models.ScreeningSession{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	log := logger.Discard()
	repo := pgrepo.NewScreeningRepo(db)
	mem := cache.NewMemoryCache()
	l := &ledger{}

	sessions := services.NewSessionStore(repo)
	payments := services.NewPaymentGateway(l, repo, nil, services.PaymentConfig{
		BaseURL:            "https://app.example",
		ScreeningPriceID:   "price_s",
		TestPremiumPriceID: "price_t",
	}, log)
	machine := flow.NewMachine(flow.Deps{
		Generator: stubGenerator{},
		Sessions:  sessions,
		Payments:  payments,
		Guests:    services.NewGuestBridge(mem, time.Hour),
	}, log)
	flows := flow.NewStore(mem, time.Hour)

	r := gin.New()
	routes.RegisterRoutes(r, routes.Deps{
		Flow:     handlers.NewFlowHandler(machine, flows, log),
		Session:  handlers.NewSessionHandler(sessions),
		Checkout: handlers.NewCheckoutHandler(payments),
		Admin:    handlers.NewAdminHandler(nil),
	})
	return &server{engine: r, ledger: l, flows: flows}
}

func bearer(t *testing.T, sub, email, role string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":          sub,
		"email":        email,
		"role":         "authenticated",
		"app_metadata": map[string]any{"role": role},
		"exp":          time.Now().Add(time.Hour).Unix(),
	})
	s, err := tok.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return "Bearer " + s
}

type flowBody struct {
	Code        utils.Code `json:"code"`
	Message     string     `json:"message"`
	Flow        *flow.Flow `json:"flow"`
	GuestToken  string     `json:"guest_token"`
	RedirectURL string     `json:"redirect_url"`
}

func (s *server) do(t *testing.T, method, path string, headers map[string]string, body any) (int, flowBody) {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	var out flowBody
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return w.Code, out
}

func TestGuestFlowMigratesAndResumesOverHTTP(t *testing.T) {
	s := newServer(t)

	code, created := s.do(t, http.MethodPost, "/flow", nil, nil)
	if code != http.StatusCreated || created.GuestToken == "" {
		t.Fatalf("create: %d %+v", code, created)
	}
	id := created.Flow.ID
	guest := map[string]string{"X-Guest-Token": created.GuestToken}

	steps := []struct {
		path string
		body any
		want flow.State
	}{
		{"/start", nil, flow.StateProfile},
		{"/profile", models.Profile{AgeBand: "18+ años", GenderLabel: "Niño/Hombre", RecipientLabel: "Para mí mismo/a"}, flow.StatePhase1},
		{"/phase1", map[string][]string{"answers": {"a1", "a2", "a3", "a4", "a5", "a6"}}, flow.StatePhase1Teaser},
		{"/teaser/continue", nil, flow.StateRegisterPrompt},
	}
	for _, st := range steps {
		code, got := s.do(t, http.MethodPost, "/flow/"+id+st.path, guest, st.body)
		if code != http.StatusOK || got.Flow.State != st.want {
			t.Fatalf("%s: %d state=%v", st.path, code, got.Flow)
		}
	}

	code, got := s.do(t, http.MethodPost, "/flow/"+id+"/register", guest, nil)
	if code != http.StatusUnauthorized || got.Code != utils.CodeAuthRequired || got.Flow.State != flow.StateRegisterPrompt {
		t.Fatalf("guest register: %d %+v", code, got)
	}

	auth := bearer(t, "owner-1", "ana@example.com", "user")
	code, got = s.do(t, http.MethodPost, "/flow/guest/resume", map[string]string{
		"Authorization": auth,
		"X-Guest-Token": created.GuestToken,
	}, nil)
	if code != http.StatusOK || got.Flow.State != flow.StatePhase1Payment || got.Flow.SessionID == "" {
		t.Fatalf("guest resume: %d %+v", code, got)
	}
	migrated := got.Flow

	other := bearer(t, "owner-2", "bruno@example.com", "user")
	if code, _ := s.do(t, http.MethodGet, "/flow/"+migrated.ID, map[string]string{"Authorization": other}, nil); code != http.StatusForbidden {
		t.Fatalf("foreign flow: want 403, got %d", code)
	}

	code, got = s.do(t, http.MethodPost, "/flow/"+migrated.ID+"/checkout", map[string]string{"Authorization": auth}, nil)
	if code != http.StatusOK || got.RedirectURL != "https://checkout.example/pay" {
		t.Fatalf("checkout: %d %+v", code, got)
	}
	if _, err := s.flows.Get(context.Background(), migrated.ID); !utils.IsCode(err, utils.CodeNotFound) {
		t.Fatalf("flow snapshot must be gone after checkout, got %v", err)
	}

	resume := "/flow/resume?session_id=" + migrated.SessionID + "&continue=1"
	code, got = s.do(t, http.MethodGet, resume, map[string]string{"Authorization": auth}, nil)
	if code != http.StatusOK || got.Flow.State != flow.StatePhase1Payment || got.Flow.LastError == nil ||
		got.Flow.LastError.Code != utils.CodePaymentNotFound {
		t.Fatalf("unpaid resume: %d %+v", code, got.Flow)
	}

	s.ledger.payLast()
	code, got = s.do(t, http.MethodGet, resume, map[string]string{"Authorization": auth}, nil)
	if code != http.StatusOK || got.Flow.State != flow.StatePhase2 || len(got.Flow.Phase2Questions) != 4 {
		t.Fatalf("paid resume: %d %+v", code, got.Flow)
	}
	if got.Flow.Profile.AgeBand != "18+ años" || len(got.Flow.Phase1Answers) != 6 {
		t.Fatalf("resumed flow lost phase 1: %+v", got.Flow)
	}

	fid := got.Flow.ID
	if code, got := s.do(t, http.MethodPost, "/flow/"+fid+"/phase2/begin", map[string]string{"Authorization": auth}, nil); code != http.StatusOK ||
		got.Flow.State != flow.StatePhase2Questions {
		t.Fatalf("phase2 begin: %d", code)
	}
	code, got = s.do(t, http.MethodPost, "/flow/"+fid+"/phase2", map[string]string{"Authorization": auth},
		map[string][]string{"answers": {"r1", "r2", "r3", "r4"}})
	if code != http.StatusOK || got.Flow.State != flow.StateComplete || got.Flow.FinalReport == nil {
		t.Fatalf("phase2 submit: %d %+v", code, got.Flow)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/screening/sessions", nil)
	req.Header.Set("Authorization", auth)
	s.engine.ServeHTTP(w, req)
	var list struct {
		Sessions []handlers.SessionSummary `json:"sessions"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil || w.Code != http.StatusOK {
		t.Fatalf("list: %d %v", w.Code, err)
	}
	if len(list.Sessions) != 1 || list.Sessions[0].Status != models.StatusComplete || !list.Sessions[0].Paid {
		t.Fatalf("list = %+v", list.Sessions)
	}
}

func TestGuestFlowNeedsItsToken(t *testing.T) {
	s := newServer(t)

	_, created := s.do(t, http.MethodPost, "/flow", nil, nil)
	code, got := s.do(t, http.MethodPost, "/flow/"+created.Flow.ID+"/start", map[string]string{"X-Guest-Token": "wrong"}, nil)
	if code != http.StatusForbidden || got.Code != utils.CodeForbidden {
		t.Fatalf("want 403, got %d %+v", code, got)
	}

	code, got = s.do(t, http.MethodPost, "/flow/"+created.Flow.ID+"/phase1", map[string]string{"X-Guest-Token": created.GuestToken},
		map[string][]string{"answers": {"a"}})
	if code != http.StatusConflict || got.Flow == nil || got.Flow.State != flow.StateIntro {
		t.Fatalf("out-of-order step: %d %+v", code, got)
	}
}

func TestSessionPatchRejectsPaid(t *testing.T) {
	s := newServer(t)
	auth := bearer(t, "owner-1", "ana@example.com", "user")

	code, _ := s.do(t, http.MethodPatch, "/screening/sessions/some-id", nil, map[string]any{"paid": true})
	if code != http.StatusUnauthorized {
		t.Fatalf("no token: want 401, got %d", code)
	}
	code, got := s.do(t, http.MethodPatch, "/screening/sessions/some-id", map[string]string{"Authorization": auth}, map[string]any{"paid": true})
	if code != http.StatusForbidden || got.Code != utils.CodeForbidden {
		t.Fatalf("paid patch: want 403, got %d %+v", code, got)
	}
}

func TestAdminRouteNeedsAdminRole(t *testing.T) {
	s := newServer(t)

	user := bearer(t, "owner-1", "ana@example.com", "user")
	if code, _ := s.do(t, http.MethodGet, "/admin/payments/events?session_id=x", map[string]string{"Authorization": user}, nil); code != http.StatusForbidden {
		t.Fatalf("user: want 403, got %d", code)
	}

	admin := bearer(t, "admin-1", "ops@example.com", "admin")
	code, got := s.do(t, http.MethodGet, "/admin/payments/events?session_id=x", map[string]string{"Authorization": admin}, nil)
	if code != http.StatusServiceUnavailable || got.Code != utils.CodeUnavailable {
		t.Fatalf("admin without audit log: %d %+v", code, got)
	}
}
