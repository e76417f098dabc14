package models

import (
	"time"

	"gorm.io/datatypes"
)

type ScreeningStatus string

const (
	StatusPhase1   ScreeningStatus = "phase1"
	StatusTeaser   ScreeningStatus = "teaser"
	StatusPhase2   ScreeningStatus = "phase2"
	StatusComplete ScreeningStatus = "complete"
)

// Rank orders statuses; a session never moves to a lower rank.
func (s ScreeningStatus) Rank() int {
	switch s {
	case StatusPhase1:
		return 1
	case StatusTeaser:
		return 2
	case StatusPhase2:
		return 3
	case StatusComplete:
		return 4
	default:
		return 0
	}
}

func (s ScreeningStatus) Valid() bool { return s.Rank() > 0 }

type Profile struct {
	AgeBand        string `json:"age_band"`
	GenderLabel    string `json:"gender_label"`
	RecipientLabel string `json:"recipient_label"`
}

func (p Profile) Complete() bool {
	return p.AgeBand != "" && p.GenderLabel != "" && p.RecipientLabel != ""
}

type Teaser struct {
	Title       string   `json:"title"`
	Summary     string   `json:"summary"`
	Patterns    []string `json:"patterns"`
	ClosingLine string   `json:"closing_line"`
}

type Analysis struct {
	Strengths         string `json:"strengths"`
	Challenges        string `json:"challenges"`
	LeadingHypothesis string `json:"leading_hypothesis"`
	Justification     string `json:"justification"`
}

type FinalReport struct {
	Hypothesis            string   `json:"hypothesis"`
	Summary               string   `json:"summary"`
	Strengths             []string `json:"strengths"`
	Challenges            []string `json:"challenges"`
	Traits                []string `json:"traits"`
	HomeRecommendations   []string `json:"home_recommendations"`
	SchoolRecommendations []string `json:"school_recommendations"`
	ProfessionalFollowUp  string   `json:"professional_follow_up"`
	Disclaimer            string   `json:"disclaimer"`
}

// QA is one answered question, in the order it was asked.
type QA struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

func History(questions, answers []string) []QA {
	out := make([]QA, 0, len(questions))
	for i, q := range questions {
		qa := QA{Question: q}
		if i < len(answers) {
			qa.Answer = answers[i]
		}
		out = append(out, qa)
	}
	return out
}

// ScreeningSession is one attempt at the multi-phase flow, owned by one account.
type ScreeningSession struct {
	ID      string `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	OwnerID string `gorm:"column:owner_id;type:uuid;index;not null" json:"owner_id"`

	AgeBand        string `gorm:"column:age_band;type:text;not null" json:"age_band"`
	GenderLabel    string `gorm:"column:gender_label;type:text;not null" json:"gender_label"`
	RecipientLabel string `gorm:"column:recipient_label;type:text;not null" json:"recipient_label"`

	Phase1Questions datatypes.JSONSlice[string] `gorm:"column:phase1_questions" json:"phase1_questions"`
	Phase1Answers   datatypes.JSONSlice[string] `gorm:"column:phase1_answers" json:"phase1_answers"`
	Teaser          datatypes.JSONType[*Teaser] `gorm:"column:teaser" json:"teaser"`

	Phase2Questions datatypes.JSONSlice[string]      `gorm:"column:phase2_questions" json:"phase2_questions"`
	Phase2Answers   datatypes.JSONSlice[string]      `gorm:"column:phase2_answers" json:"phase2_answers"`
	Analysis        datatypes.JSONType[*Analysis]    `gorm:"column:analysis" json:"analysis"`
	FinalReport     datatypes.JSONType[*FinalReport] `gorm:"column:final_report" json:"final_report"`

	Status  ScreeningStatus `gorm:"column:status;type:text;not null" json:"status"`
	Paid    bool            `gorm:"column:paid;not null;default:false" json:"paid"`
	Version int             `gorm:"column:version;not null;default:1" json:"version"`

	CreatedAt   time.Time  `gorm:"column:created_at" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"column:updated_at" json:"updated_at"`
	CompletedAt *time.Time `gorm:"column:completed_at" json:"completed_at,omitempty"`
}

func (ScreeningSession) TableName() string { return "screening_sessions" }

func (s *ScreeningSession) Profile() Profile {
	return Profile{AgeBand: s.AgeBand, GenderLabel: s.GenderLabel, RecipientLabel: s.RecipientLabel}
}

func (s *ScreeningSession) Phase1History() []QA { return History(s.Phase1Questions, s.Phase1Answers) }
func (s *ScreeningSession) Phase2History() []QA { return History(s.Phase2Questions, s.Phase2Answers) }

// Phase2Answered is true when every phase-2 question has a non-empty answer.
func (s *ScreeningSession) Phase2Answered() bool {
	return AllAnswered(s.Phase2Questions, s.Phase2Answers)
}

func AllAnswered(questions, answers []string) bool {
	if len(questions) == 0 || len(answers) != len(questions) {
		return false
	}
	for _, a := range answers {
		if a == "" {
			return false
		}
	}
	return true
}

// SessionPatch carries the fields a client update may set. Nil means "leave as is".
type SessionPatch struct {
	Phase1Questions *[]string        `json:"phase1_questions,omitempty"`
	Phase1Answers   *[]string        `json:"phase1_answers,omitempty"`
	Teaser          *Teaser          `json:"teaser,omitempty"`
	Phase2Questions *[]string        `json:"phase2_questions,omitempty"`
	Phase2Answers   *[]string        `json:"phase2_answers,omitempty"`
	Analysis        *Analysis        `json:"analysis,omitempty"`
	FinalReport     *FinalReport     `json:"final_report,omitempty"`
	Status          *ScreeningStatus `json:"status,omitempty"`
	Paid            *bool            `json:"paid,omitempty"`
	CompletedAt     *time.Time       `json:"completed_at,omitempty"`

	// ExpectedVersion, when set, must match the stored version.
	ExpectedVersion *int `json:"expected_version,omitempty"`
}

func (p SessionPatch) Empty() bool {
	return p.Phase1Questions == nil && p.Phase1Answers == nil && p.Teaser == nil &&
		p.Phase2Questions == nil && p.Phase2Answers == nil && p.Analysis == nil &&
		p.FinalReport == nil && p.Status == nil && p.Paid == nil && p.CompletedAt == nil
}
