package flow

import (
	"time"

	"github.com/yoockh/yoscreen/internal/models"
	"github.com/yoockh/yoscreen/internal/utils"
)

type State string

const (
	StateIntro           State = "intro"
	StateProfile         State = "profile"
	StatePhase1          State = "phase1"
	StatePhase1Teaser    State = "phase1-teaser"
	StateRegisterPrompt  State = "register-prompt"
	StatePhase1Payment   State = "phase1-payment"
	StatePhase2Loading   State = "phase2-loading"
	StatePhase2          State = "phase2"
	StatePhase2Questions State = "phase2-questions"
	StateComplete        State = "complete"
)

// FlowError is the last failure shown to the user; it is cleared by the next successful step.
type FlowError struct {
	Code    utils.Code `json:"code"`
	Message string     `json:"message"`
}

// Flow is everything the user sees of one screening attempt. It is rebuilt from the
// persisted session whenever the user comes back from checkout.
type Flow struct {
	ID         string `json:"id"`
	GuestToken string `json:"guest_token,omitempty"`
	OwnerID    string `json:"owner_id,omitempty"`
	State      State  `json:"state"`

	Profile         models.Profile `json:"profile"`
	Introduction    string         `json:"introduction,omitempty"`
	Disclaimer      string         `json:"disclaimer,omitempty"`
	Phase1Questions []string       `json:"phase1_questions,omitempty"`
	Phase1Answers   []string       `json:"phase1_answers,omitempty"`
	Teaser          *models.Teaser `json:"teaser,omitempty"`

	SessionID      string `json:"session_id,omitempty"`
	SessionVersion int    `json:"session_version,omitempty"`

	Analysis        *models.Analysis    `json:"analysis,omitempty"`
	Phase2Questions []string            `json:"phase2_questions,omitempty"`
	Phase2Answers   []string            `json:"phase2_answers,omitempty"`
	FinalReport     *models.FinalReport `json:"final_report,omitempty"`

	CheckoutURL string     `json:"checkout_url,omitempty"`
	LastError   *FlowError `json:"last_error,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// hydrate copies the persisted record into the flow.
func (f *Flow) hydrate(s *models.ScreeningSession) {
	f.OwnerID = s.OwnerID
	f.SessionID = s.ID
	f.SessionVersion = s.Version
	f.Profile = s.Profile()
	f.Phase1Questions = append([]string(nil), s.Phase1Questions...)
	f.Phase1Answers = append([]string(nil), s.Phase1Answers...)
	f.Teaser = s.Teaser.Data()
	f.Analysis = s.Analysis.Data()
	f.Phase2Questions = append([]string(nil), s.Phase2Questions...)
	f.Phase2Answers = append([]string(nil), s.Phase2Answers...)
	f.FinalReport = s.FinalReport.Data()
}

func (f *Flow) guestState() models.PendingGuestState {
	return models.PendingGuestState{
		Profile:         f.Profile,
		Introduction:    f.Introduction,
		Disclaimer:      f.Disclaimer,
		Phase1Questions: f.Phase1Questions,
		Phase1Answers:   f.Phase1Answers,
		Teaser:          f.Teaser,
	}
}
