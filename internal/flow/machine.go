package flow

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/yoockh/yoscreen/internal/models"
	"github.com/yoockh/yoscreen/internal/services"
	"github.com/yoockh/yoscreen/internal/utils"
)

type Deps struct {
	Generator services.Generator
	Sessions  services.SessionStore
	Payments  services.PaymentGateway
	Guests    services.GuestBridge
	Archive   services.ReportArchive // optional
}

// Machine drives a Flow through the screening states. It is the only caller of
// the generator, the session store, the payment gateway and the guest bridge.
//
// Every operation either completes its edge or leaves the flow in the state it
// started from, with LastError set. Session store failures that leave no
// consistent record (not found, foreign owner, internal) send the flow back to intro.
type Machine struct {
	gen      services.Generator
	sessions services.SessionStore
	payments services.PaymentGateway
	guests   services.GuestBridge
	archive  services.ReportArchive
	log      *logrus.Logger

	now   func() time.Time
	newID func() string
}

func NewMachine(d Deps, log *logrus.Logger) *Machine {
	return &Machine{
		gen:      d.Generator,
		sessions: d.Sessions,
		payments: d.Payments,
		guests:   d.Guests,
		archive:  d.Archive,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
}

// New starts an empty flow. A guest token is minted when none is given.
func (m *Machine) New(guestToken string) *Flow {
	if guestToken == "" {
		guestToken = m.newID()
	}
	return &Flow{ID: m.newID(), GuestToken: guestToken, State: StateIntro, UpdatedAt: m.now()}
}

func (m *Machine) Start(f *Flow) error {
	const op = "Machine.Start"
	if err := m.expect(op, f, StateIntro); err != nil {
		return err
	}
	m.move(f, StateProfile)
	return nil
}

func (m *Machine) SubmitProfile(ctx context.Context, f *Flow, p models.Profile) error {
	const op = "Machine.SubmitProfile"

	if err := m.expect(op, f, StateProfile); err != nil {
		return err
	}
	p = models.Profile{
		AgeBand:        strings.TrimSpace(p.AgeBand),
		GenderLabel:    strings.TrimSpace(p.GenderLabel),
		RecipientLabel: strings.TrimSpace(p.RecipientLabel),
	}
	if !p.Complete() {
		return m.fail(f, utils.E(utils.CodeInvalidArgument, op, "age band, gender and recipient are required", nil))
	}

	out, err := m.gen.Phase1(ctx, services.Phase1Input{AgeBand: p.AgeBand, GenderLabel: p.GenderLabel})
	if err != nil {
		return m.fail(f, err)
	}

	f.Profile = p
	f.Introduction = out.Introduction
	f.Disclaimer = out.Disclaimer
	f.Phase1Questions = out.Questions
	f.Phase1Answers = nil
	f.Teaser = nil
	m.move(f, StatePhase1)
	return nil
}

// SubmitPhase1 stores the answers and asks for a teaser. The teaser is optional:
// when it cannot be generated the flow goes straight through the register step.
func (m *Machine) SubmitPhase1(ctx context.Context, f *Flow, acct *models.Account, answers []string) error {
	const op = "Machine.SubmitPhase1"

	if err := m.expect(op, f, StatePhase1); err != nil {
		return err
	}
	answers = trimAll(answers)
	if !models.AllAnswered(f.Phase1Questions, answers) {
		return m.fail(f, utils.E(utils.CodeInvalidArgument, op, "every question needs an answer", nil))
	}

	teaser, err := m.gen.Teaser(ctx, services.TeaserInput{
		AgeBand:        f.Profile.AgeBand,
		GenderLabel:    f.Profile.GenderLabel,
		RecipientLabel: f.Profile.RecipientLabel,
		History:        models.History(f.Phase1Questions, answers),
	})
	f.Phase1Answers = answers

	if err != nil {
		m.log.WithError(err).WithField("flow_id", f.ID).Warn("teaser skipped")
		f.Teaser = nil
		m.move(f, StateRegisterPrompt)
		return m.Register(ctx, f, acct)
	}

	f.Teaser = teaser
	m.move(f, StatePhase1Teaser)
	return nil
}

func (m *Machine) ContinueFromTeaser(f *Flow) error {
	const op = "Machine.ContinueFromTeaser"
	if err := m.expect(op, f, StatePhase1Teaser); err != nil {
		return err
	}
	m.move(f, StateRegisterPrompt)
	return nil
}

// Register is the fork after phase 1. A signed-in account gets a persisted
// session and moves to payment. A guest's progress is parked in the guest
// bridge and AUTH_REQUIRED is returned so the caller can send them to sign in.
func (m *Machine) Register(ctx context.Context, f *Flow, acct *models.Account) error {
	const op = "Machine.Register"

	if err := m.expect(op, f, StateRegisterPrompt); err != nil {
		return err
	}

	if !acct.Authenticated() {
		if err := m.guests.Save(ctx, f.GuestToken, f.guestState()); err != nil {
			return m.fail(f, err)
		}
		m.log.WithField("flow_id", f.ID).Info("guest progress saved, sign-in required")
		return m.fail(f, utils.E(utils.CodeAuthRequired, op, "sign in to continue", nil))
	}

	if f.OwnerID != "" && f.OwnerID != acct.ID {
		return m.failStore(f, utils.E(utils.CodeForbidden, op, "flow belongs to another account", nil))
	}

	questions, answers := f.Phase1Questions, f.Phase1Answers
	patch := models.SessionPatch{
		Phase1Questions: &questions,
		Phase1Answers:   &answers,
	}
	if f.Teaser != nil {
		st := models.StatusTeaser
		patch.Teaser = f.Teaser
		patch.Status = &st
	}

	var (
		row *models.ScreeningSession
		err error
	)
	if f.SessionID == "" {
		// no session row exists without its phase 1
		row, err = m.sessions.CreateWithPhase1(ctx, acct.ID, f.Profile, patch)
	} else {
		patch.ExpectedVersion = &f.SessionVersion
		row, err = m.sessions.Update(ctx, f.SessionID, acct.ID, patch)
	}
	if err != nil {
		return m.failStore(f, err)
	}
	f.SessionID = row.ID
	f.SessionVersion = row.Version
	f.OwnerID = acct.ID
	m.dropGuestState(ctx, f)
	m.move(f, StatePhase1Payment)
	return nil
}

// OptOut abandons a guest flow at the register step. Nothing was persisted, so
// only the parked guest state (if any) is dropped.
func (m *Machine) OptOut(ctx context.Context, f *Flow) error {
	const op = "Machine.OptOut"

	if err := m.expect(op, f, StateRegisterPrompt); err != nil {
		return err
	}
	m.dropGuestState(ctx, f)
	m.reset(f)
	f.LastError = nil
	return nil
}

// ResumeGuest turns parked guest progress into a session owned by acct.
func (m *Machine) ResumeGuest(ctx context.Context, acct *models.Account, guestToken string) (*Flow, error) {
	const op = "Machine.ResumeGuest"

	if !acct.Authenticated() {
		return nil, utils.E(utils.CodeUnauthorized, op, "sign in to continue", nil)
	}
	state, err := m.guests.Consume(ctx, guestToken)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, utils.E(utils.CodeNotFound, op, "no pending guest progress", nil)
	}

	f := m.New(guestToken)
	f.State = StateRegisterPrompt
	f.Profile = state.Profile
	f.Introduction = state.Introduction
	f.Disclaimer = state.Disclaimer
	f.Phase1Questions = state.Phase1Questions
	f.Phase1Answers = state.Phase1Answers
	f.Teaser = state.Teaser

	m.log.WithFields(logrus.Fields{"flow_id": f.ID, "owner_id": acct.ID}).Info("guest progress consumed")
	return f, m.Register(ctx, f, acct)
}

// Checkout returns the hosted checkout URL. The caller must drop the flow
// snapshot before redirecting; Resume rebuilds it from the persisted session.
func (m *Machine) Checkout(ctx context.Context, f *Flow, acct *models.Account) (string, error) {
	const op = "Machine.Checkout"

	if err := m.expect(op, f, StatePhase1Payment); err != nil {
		return "", err
	}
	if !acct.Authenticated() {
		return "", m.fail(f, utils.E(utils.CodeUnauthorized, op, "sign in to continue", nil))
	}

	redirect, err := m.payments.CreateCheckout(ctx, *acct, models.ProductScreening, f.SessionID)
	if err != nil {
		return "", m.failStore(f, err)
	}
	f.CheckoutURL = redirect
	f.LastError = nil
	m.log.WithFields(logrus.Fields{"flow_id": f.ID, "session_id": f.SessionID}).Info("redirecting to checkout")
	return redirect, nil
}

// Resume re-enters the flow after checkout using only the session id from the return URL.
// An unpaid session lands back in phase1-payment with PAYMENT_NOT_FOUND recorded.
func (m *Machine) Resume(ctx context.Context, acct *models.Account, sessionID string) (*Flow, error) {
	const op = "Machine.Resume"

	if !acct.Authenticated() {
		return nil, utils.E(utils.CodeUnauthorized, op, "sign in to continue", nil)
	}
	if sessionID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "session_id is required", nil)
	}

	f := m.New("")
	f.State = StatePhase2Loading
	f.SessionID = sessionID
	f.OwnerID = acct.ID
	entry := m.log.WithFields(logrus.Fields{"flow_id": f.ID, "session_id": sessionID})

	paid, err := m.payments.Verify(ctx, *acct, sessionID)
	if err != nil {
		return f, m.failStore(f, err)
	}

	rec, err := m.sessions.Read(ctx, sessionID, acct.ID)
	if err != nil {
		return f, m.failStore(f, err)
	}
	f.hydrate(rec)

	if !paid {
		entry.Info("payment not found on return")
		f.State = StatePhase1Payment
		f.LastError = &FlowError{Code: utils.CodePaymentNotFound, Message: "no completed payment for this session yet"}
		return f, nil
	}

	switch {
	case rec.Status == models.StatusComplete && rec.FinalReport.Data() != nil:
		m.move(f, StateComplete)
		return f, nil
	case len(rec.Phase2Questions) > 0 && rec.Analysis.Data() != nil:
		entry.Info("reusing persisted phase 2")
		m.move(f, StatePhase2)
		return f, nil
	}

	out, err := m.gen.Phase2(ctx, services.Phase2Input{
		AgeBand:     rec.AgeBand,
		GenderLabel: rec.GenderLabel,
		History:     rec.Phase1History(),
	})
	if err != nil {
		return f, m.fail(f, err)
	}

	st := models.StatusPhase2
	analysis := out.Analysis
	questions := out.Questions
	updated, err := m.sessions.Update(ctx, sessionID, acct.ID, models.SessionPatch{
		Phase2Questions: &questions,
		Analysis:        &analysis,
		Status:          &st,
		ExpectedVersion: &rec.Version,
	})
	if err != nil {
		return f, m.failStore(f, err)
	}
	f.hydrate(updated)
	m.move(f, StatePhase2)
	return f, nil
}

func (m *Machine) BeginPhase2Questions(f *Flow) error {
	const op = "Machine.BeginPhase2Questions"
	if err := m.expect(op, f, StatePhase2); err != nil {
		return err
	}
	m.move(f, StatePhase2Questions)
	return nil
}

// SubmitPhase2 persists the answers first, so a failed report can be retried
// without losing them, then writes the report and completes the session.
func (m *Machine) SubmitPhase2(ctx context.Context, f *Flow, acct *models.Account, answers []string) error {
	const op = "Machine.SubmitPhase2"

	if err := m.expect(op, f, StatePhase2Questions); err != nil {
		return err
	}
	if !acct.Authenticated() {
		return m.fail(f, utils.E(utils.CodeUnauthorized, op, "sign in to continue", nil))
	}
	answers = trimAll(answers)
	if !models.AllAnswered(f.Phase2Questions, answers) {
		return m.fail(f, utils.E(utils.CodeInvalidArgument, op, "every question needs an answer", nil))
	}

	rec, err := m.sessions.Update(ctx, f.SessionID, acct.ID, models.SessionPatch{
		Phase2Answers:   &answers,
		ExpectedVersion: &f.SessionVersion,
	})
	if err != nil {
		return m.failStore(f, err)
	}
	f.Phase2Answers = answers
	f.SessionVersion = rec.Version

	var analysis models.Analysis
	if a := rec.Analysis.Data(); a != nil {
		analysis = *a
	}
	report, err := m.gen.FinalReport(ctx, services.FinalReportInput{
		AgeBand:             rec.AgeBand,
		GenderLabel:         rec.GenderLabel,
		Phase1History:       rec.Phase1History(),
		Phase2History:       rec.Phase2History(),
		PreliminaryAnalysis: analysis,
	})
	if err != nil {
		return m.fail(f, err)
	}

	st := models.StatusComplete
	done := m.now()
	final, err := m.sessions.Update(ctx, f.SessionID, acct.ID, models.SessionPatch{
		FinalReport:     report,
		Status:          &st,
		CompletedAt:     &done,
		ExpectedVersion: &f.SessionVersion,
	})
	if err != nil {
		return m.failStore(f, err)
	}
	f.hydrate(final)
	m.move(f, StateComplete)

	if m.archive != nil {
		if path, err := m.archive.Archive(ctx, final); err != nil {
			m.log.WithError(err).WithField("session_id", final.ID).Warn("report archive failed")
		} else {
			m.log.WithFields(logrus.Fields{"session_id": final.ID, "path": path}).Info("report archived")
		}
	}
	return nil
}

// Restart is allowed from any state. The persisted session, if any, is left
// untouched; progress a guest parked for sign-in is dropped.
func (m *Machine) Restart(ctx context.Context, f *Flow) {
	if f.OwnerID == "" {
		m.dropGuestState(ctx, f)
	}
	m.reset(f)
	f.LastError = nil
}

// dropGuestState removes progress parked under the flow's guest token. A
// failure is logged only; the entry still expires with its TTL.
func (m *Machine) dropGuestState(ctx context.Context, f *Flow) {
	if f.GuestToken == "" {
		return
	}
	if _, err := m.guests.Consume(ctx, f.GuestToken); err != nil {
		m.log.WithError(err).WithField("flow_id", f.ID).Warn("failed to drop guest progress")
	}
}

func (m *Machine) expect(op string, f *Flow, want State) error {
	if f.State != want {
		return utils.E(utils.CodeConflict, op, "invalid transition from "+string(f.State), nil)
	}
	return nil
}

func (m *Machine) move(f *Flow, to State) {
	m.log.WithFields(logrus.Fields{
		"flow_id":    f.ID,
		"session_id": f.SessionID,
		"from":       f.State,
		"to":         to,
	}).Info("flow transition")
	f.State = to
	f.LastError = nil
	f.UpdatedAt = m.now()
}

// fail records err on the flow without changing state.
func (m *Machine) fail(f *Flow, err error) error {
	f.LastError = &FlowError{Code: utils.CodeOf(err), Message: publicMessage(err)}
	f.UpdatedAt = m.now()
	return err
}

// failStore is fail for session store results: an inconsistent record resets the flow.
func (m *Machine) failStore(f *Flow, err error) error {
	if utils.IsPersistence(err) {
		m.log.WithError(err).WithFields(logrus.Fields{"flow_id": f.ID, "session_id": f.SessionID}).Warn("session unusable, restarting flow")
		m.reset(f)
	}
	return m.fail(f, err)
}

func (m *Machine) reset(f *Flow) {
	if f.State != StateIntro {
		m.log.WithFields(logrus.Fields{"flow_id": f.ID, "from": f.State, "to": StateIntro}).Info("flow reset")
	}
	*f = Flow{
		ID:         f.ID,
		GuestToken: f.GuestToken,
		State:      StateIntro,
		LastError:  f.LastError,
		UpdatedAt:  m.now(),
	}
}

func publicMessage(err error) string {
	var ae *utils.AppError
	if errors.As(err, &ae) && ae.Message != "" {
		return ae.Message
	}
	return "something went wrong"
}

func trimAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.TrimSpace(s)
	}
	return out
}
