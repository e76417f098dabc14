package services

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/yoockh/yoscreen/internal/models"
	"github.com/yoockh/yoscreen/internal/providers/llm"
	"github.com/yoockh/yoscreen/internal/providers/payment"
	"github.com/yoockh/yoscreen/internal/utils"
	"gorm.io/datatypes"
)

// fakeScreeningRepo mirrors the gorm repository's version and paid semantics in memory.
type fakeScreeningRepo struct {
	mu        sync.Mutex
	rows      map[string]models.ScreeningSession
	markCalls int
	patchErr  error
}

func newFakeScreeningRepo() *fakeScreeningRepo {
	return &fakeScreeningRepo{rows: map[string]models.ScreeningSession{}}
}

func (r *fakeScreeningRepo) Create(_ context.Context, s *models.ScreeningSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[s.ID]; ok {
		return utils.ErrConflict
	}
	if s.Version == 0 {
		s.Version = 1
	}
	r.rows[s.ID] = *s
	return nil
}

func (r *fakeScreeningRepo) GetByID(_ context.Context, id string) (*models.ScreeningSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return nil, utils.ErrNotFound
	}
	return &row, nil
}

func (r *fakeScreeningRepo) ListByOwner(_ context.Context, owner string, limit int) ([]models.ScreeningSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.ScreeningSession
	for _, row := range r.rows {
		if row.OwnerID == owner {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeScreeningRepo) Patch(_ context.Context, id string, version int, cols map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.patchErr != nil {
		return r.patchErr
	}
	row, ok := r.rows[id]
	if !ok {
		return utils.ErrNotFound
	}
	if row.Version != version {
		return utils.ErrConflict
	}
	for k, v := range cols {
		switch k {
		case "phase1_questions":
			row.Phase1Questions = v.(datatypes.JSONSlice[string])
		case "phase1_answers":
			row.Phase1Answers = v.(datatypes.JSONSlice[string])
		case "teaser":
			row.Teaser = v.(datatypes.JSONType[*models.Teaser])
		case "phase2_questions":
			row.Phase2Questions = v.(datatypes.JSONSlice[string])
		case "phase2_answers":
			row.Phase2Answers = v.(datatypes.JSONSlice[string])
		case "analysis":
			row.Analysis = v.(datatypes.JSONType[*models.Analysis])
		case "final_report":
			row.FinalReport = v.(datatypes.JSONType[*models.FinalReport])
		case "status":
			row.Status = v.(models.ScreeningStatus)
		case "completed_at":
			at := v.(time.Time)
			row.CompletedAt = &at
		case "updated_at":
			row.UpdatedAt = v.(time.Time)
		}
	}
	row.Version++
	r.rows[id] = row
	return nil
}

func (r *fakeScreeningRepo) MarkPaid(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.markCalls++
	row, ok := r.rows[id]
	if !ok {
		return false, utils.ErrNotFound
	}
	if row.Paid {
		return false, nil
	}
	row.Paid = true
	row.Version++
	r.rows[id] = row
	return true, nil
}

// bumpVersion simulates a write from another request.
func (r *fakeScreeningRepo) bumpVersion(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row := r.rows[id]
	row.Version++
	r.rows[id] = row
}

// fakeLLM answers with the reply registered for the first template keyword found in the prompt.
type fakeLLM struct {
	mu      sync.Mutex
	replies map[string]string
	errs    map[string]error
	calls   []llm.Request
}

func newFakeLLM() *fakeLLM {
	return &fakeLLM{replies: map[string]string{}, errs: map[string]error{}}
}

func (f *fakeLLM) Generate(_ context.Context, req llm.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	for key, err := range f.errs {
		if strings.Contains(req.Prompt, key) {
			return "", err
		}
	}
	for key, reply := range f.replies {
		if strings.Contains(req.Prompt, key) {
			return reply, nil
		}
	}
	return "", llm.ErrEmpty
}

func (f *fakeLLM) Close() error { return nil }

func (f *fakeLLM) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// fakeProcessor is an in-memory hosted checkout ledger.
type fakeProcessor struct {
	mu        sync.Mutex
	created   []payment.CheckoutRequest
	completed map[string][]payment.CompletedCheckout
	listCalls int
	listErr   error
}

func newFakeProcessor() *fakeProcessor {
	return &fakeProcessor{completed: map[string][]payment.CompletedCheckout{}}
}

func (p *fakeProcessor) CreateCheckout(_ context.Context, req payment.CheckoutRequest) (*payment.Checkout, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.created = append(p.created, req)
	id := "cs_test_" + strings.Repeat("x", len(p.created))
	return &payment.Checkout{ID: id, URL: "https://checkout.example/" + id}, nil
}

func (p *fakeProcessor) ListCompleted(_ context.Context, email string) ([]payment.CompletedCheckout, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listCalls++
	if p.listErr != nil {
		return nil, p.listErr
	}
	return p.completed[email], nil
}

// complete records a paid checkout for email carrying metadata.
func (p *fakeProcessor) complete(email string, metadata map[string]string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.completed[email] = append(p.completed[email], payment.CompletedCheckout{
		ID:       "cs_paid_" + metadata["session_id"] + metadata["test_id"],
		Metadata: metadata,
	})
}

type fakeEventRepo struct {
	mu     sync.Mutex
	events []models.PaymentEvent
}

func (r *fakeEventRepo) Insert(_ context.Context, e *models.PaymentEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, *e)
	return nil
}

func (r *fakeEventRepo) ListBySubject(_ context.Context, sessionID, testID string, _ int64) ([]models.PaymentEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.PaymentEvent
	for _, e := range r.events {
		if (sessionID == "" || e.SessionID == sessionID) && (testID == "" || e.TestID == testID) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *fakeEventRepo) kinds() []models.PaymentEventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.PaymentEventKind, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Kind)
	}
	return out
}
