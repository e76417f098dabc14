package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/yoockh/yoscreen/internal/models"
	pgrepo "github.com/yoockh/yoscreen/internal/repositories/postgres"
	"github.com/yoockh/yoscreen/internal/utils"
	"gorm.io/datatypes"
)

type SessionStore interface {
	Create(ctx context.Context, owner string, profile models.Profile) (*models.ScreeningSession, error)
	// CreateWithPhase1 inserts a session that already carries its phase 1
	// questions, answers and teaser. Only phase 1 fields and status may be set.
	CreateWithPhase1(ctx context.Context, owner string, profile models.Profile, phase1 models.SessionPatch) (*models.ScreeningSession, error)
	// Update merges patch into the stored record and returns the merged record.
	Update(ctx context.Context, id, owner string, patch models.SessionPatch) (*models.ScreeningSession, error)
	Read(ctx context.Context, id, owner string) (*models.ScreeningSession, error)
	ListByOwner(ctx context.Context, owner string, limit int) ([]models.ScreeningSession, error)
}

type sessionStore struct {
	repo  pgrepo.ScreeningRepository
	now   func() time.Time
	newID func() string
}

func NewSessionStore(repo pgrepo.ScreeningRepository) SessionStore {
	return &sessionStore{
		repo:  repo,
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
}

func (s *sessionStore) Create(ctx context.Context, owner string, profile models.Profile) (*models.ScreeningSession, error) {
	const op = "SessionStore.Create"

	row, err := s.newRow(op, owner, profile)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, row); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to create session", err)
	}
	return row, nil
}

func (s *sessionStore) CreateWithPhase1(ctx context.Context, owner string, profile models.Profile, phase1 models.SessionPatch) (*models.ScreeningSession, error) {
	const op = "SessionStore.CreateWithPhase1"

	if phase1.Phase1Questions == nil {
		return nil, utils.E(utils.CodeInvalidArgument, op, "phase1_questions and phase1_answers are required", nil)
	}
	if phase1.Phase2Questions != nil || phase1.Phase2Answers != nil || phase1.Analysis != nil ||
		phase1.FinalReport != nil || phase1.Paid != nil || phase1.CompletedAt != nil {
		return nil, utils.E(utils.CodeInvalidArgument, op, "only phase 1 fields can be set at creation", nil)
	}

	row, err := s.newRow(op, owner, profile)
	if err != nil {
		return nil, err
	}
	// the row is new, so the merge rules run against the empty session
	empty := *row
	cols := map[string]any{}
	if err := s.mergePhase1(op, row, phase1, cols); err != nil {
		return nil, err
	}
	if err := s.mergeStatus(op, &empty, row, phase1, cols); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, row); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to create session", err)
	}
	return row, nil
}

func (s *sessionStore) newRow(op, owner string, profile models.Profile) (*models.ScreeningSession, error) {
	if owner == "" {
		return nil, utils.E(utils.CodeUnauthorized, op, "an account is required to create a session", nil)
	}
	if !profile.Complete() {
		return nil, utils.E(utils.CodeInvalidArgument, op, "age_band, gender_label and recipient_label are required", nil)
	}

	now := s.now()
	return &models.ScreeningSession{
		ID:             s.newID(),
		OwnerID:        owner,
		AgeBand:        profile.AgeBand,
		GenderLabel:    profile.GenderLabel,
		RecipientLabel: profile.RecipientLabel,
		Status:         models.StatusPhase1,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

func (s *sessionStore) Read(ctx context.Context, id, owner string) (*models.ScreeningSession, error) {
	const op = "SessionStore.Read"

	if id == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "session_id is required", nil)
	}
	if owner == "" {
		return nil, utils.E(utils.CodeUnauthorized, op, "unauthorized", nil)
	}

	row, err := s.repo.GetByID(ctx, id)
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

func (s *sessionStore) ListByOwner(ctx context.Context, owner string, limit int) ([]models.ScreeningSession, error) {
	const op = "SessionStore.ListByOwner"

	if owner == "" {
		return nil, utils.E(utils.CodeUnauthorized, op, "unauthorized", nil)
	}
	rows, err := s.repo.ListByOwner(ctx, owner, limit)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list sessions", err)
	}
	return rows, nil
}

func (s *sessionStore) Update(ctx context.Context, id, owner string, patch models.SessionPatch) (*models.ScreeningSession, error) {
	const op = "SessionStore.Update"

	if patch.Empty() {
		return nil, utils.E(utils.CodeInvalidArgument, op, "update has no fields", nil)
	}
	if patch.Paid != nil {
		return nil, utils.E(utils.CodeForbidden, op, "paid is set by payment verification only", nil)
	}

	cur, err := s.Read(ctx, id, owner)
	if err != nil {
		return nil, err
	}
	if patch.ExpectedVersion != nil && *patch.ExpectedVersion != cur.Version {
		return nil, utils.E(utils.CodeConflict, op, "session was modified by another request", utils.ErrConflict)
	}

	next := *cur
	cols := map[string]any{}

	if err := s.mergePhase1(op, &next, patch, cols); err != nil {
		return nil, err
	}
	if err := s.mergePhase2(op, &next, patch, cols); err != nil {
		return nil, err
	}
	if err := s.mergeReport(op, cur, &next, patch, cols); err != nil {
		return nil, err
	}
	if err := s.mergeStatus(op, cur, &next, patch, cols); err != nil {
		return nil, err
	}

	next.UpdatedAt = s.now()
	cols["updated_at"] = next.UpdatedAt

	if err := s.repo.Patch(ctx, id, cur.Version, cols); err != nil {
		switch {
		case errors.Is(err, utils.ErrConflict):
			return nil, utils.E(utils.CodeConflict, op, "session was modified by another request", err)
		case errors.Is(err, utils.ErrNotFound):
			return nil, utils.E(utils.CodeNotFound, op, "session not found", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to update session", err)
	}
	next.Version = cur.Version + 1
	return &next, nil
}

func (s *sessionStore) mergePhase1(op string, next *models.ScreeningSession, p models.SessionPatch, cols map[string]any) error {
	if p.Phase1Questions == nil && p.Phase1Answers == nil && p.Teaser == nil {
		return nil
	}
	if next.Status.Rank() > models.StatusTeaser.Rank() || next.Paid {
		return utils.E(utils.CodeConflict, op, "phase 1 is closed once payment or phase 2 starts", nil)
	}

	if (p.Phase1Questions == nil) != (p.Phase1Answers == nil) {
		return utils.E(utils.CodeInvalidArgument, op, "phase1_questions and phase1_answers are set together", nil)
	}
	if p.Phase1Questions != nil {
		qs, as := *p.Phase1Questions, *p.Phase1Answers
		if len(qs) == 0 || len(qs) != len(as) {
			return utils.E(utils.CodeInvalidArgument, op, "every phase 1 question needs exactly one answer", nil)
		}
		next.Phase1Questions = datatypes.NewJSONSlice(qs)
		next.Phase1Answers = datatypes.NewJSONSlice(as)
		cols["phase1_questions"] = next.Phase1Questions
		cols["phase1_answers"] = next.Phase1Answers
	}
	if p.Teaser != nil {
		t := *p.Teaser
		next.Teaser = datatypes.NewJSONType(&t)
		cols["teaser"] = next.Teaser
	}
	return nil
}

func (s *sessionStore) mergePhase2(op string, next *models.ScreeningSession, p models.SessionPatch, cols map[string]any) error {
	if p.Phase2Questions == nil && p.Phase2Answers == nil && p.Analysis == nil {
		return nil
	}
	if !next.Paid {
		return utils.E(utils.CodePaymentRequired, op, "phase 2 requires a verified payment", nil)
	}
	if next.FinalReport.Data() != nil {
		return utils.E(utils.CodeConflict, op, "session is already complete", nil)
	}

	if p.Phase2Questions != nil {
		next.Phase2Questions = datatypes.NewJSONSlice(*p.Phase2Questions)
		cols["phase2_questions"] = next.Phase2Questions
	}
	if p.Phase2Answers != nil {
		if len(next.Phase2Questions) == 0 {
			return utils.E(utils.CodeInvalidArgument, op, "phase 2 answers need phase 2 questions", nil)
		}
		if len(*p.Phase2Answers) > len(next.Phase2Questions) {
			return utils.E(utils.CodeInvalidArgument, op, "more phase 2 answers than questions", nil)
		}
		next.Phase2Answers = datatypes.NewJSONSlice(*p.Phase2Answers)
		cols["phase2_answers"] = next.Phase2Answers
	}
	if p.Analysis != nil {
		a := *p.Analysis
		next.Analysis = datatypes.NewJSONType(&a)
		cols["analysis"] = next.Analysis
	}
	return nil
}

func (s *sessionStore) mergeReport(op string, cur, next *models.ScreeningSession, p models.SessionPatch, cols map[string]any) error {
	if p.FinalReport == nil {
		return nil
	}
	if !next.Paid {
		return utils.E(utils.CodePaymentRequired, op, "final report requires a verified payment", nil)
	}
	if cur.FinalReport.Data() != nil {
		return utils.E(utils.CodeConflict, op, "final report is written once", nil)
	}
	if !next.Phase2Answered() {
		return utils.E(utils.CodeInvalidArgument, op, "final report requires every phase 2 question answered", nil)
	}
	r := *p.FinalReport
	next.FinalReport = datatypes.NewJSONType(&r)
	cols["final_report"] = next.FinalReport
	return nil
}

func (s *sessionStore) mergeStatus(op string, cur, next *models.ScreeningSession, p models.SessionPatch, cols map[string]any) error {
	if p.Status != nil {
		st := *p.Status
		if !st.Valid() {
			return utils.E(utils.CodeInvalidArgument, op, "unknown status", nil)
		}
		if st.Rank() < cur.Status.Rank() {
			return utils.E(utils.CodeInvalidArgument, op, "status cannot move backward", nil)
		}
		if st.Rank() >= models.StatusPhase2.Rank() && !next.Paid {
			return utils.E(utils.CodePaymentRequired, op, "status requires a verified payment", nil)
		}
		if st == models.StatusComplete && next.FinalReport.Data() == nil {
			return utils.E(utils.CodeInvalidArgument, op, "complete requires a final report", nil)
		}
		next.Status = st
		cols["status"] = st
	}

	if p.CompletedAt != nil {
		if next.Status != models.StatusComplete {
			return utils.E(utils.CodeInvalidArgument, op, "completed_at requires status complete", nil)
		}
		at := p.CompletedAt.UTC()
		next.CompletedAt = &at
		cols["completed_at"] = at
	}
	return nil
}
