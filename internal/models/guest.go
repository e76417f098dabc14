package models

import "time"

// PendingGuestState is the free-phase progress of a user who has no account yet.
type PendingGuestState struct {
	Profile         Profile   `json:"profile"`
	Introduction    string    `json:"introduction,omitempty"`
	Disclaimer      string    `json:"disclaimer,omitempty"`
	Phase1Questions []string  `json:"phase1_questions"`
	Phase1Answers   []string  `json:"phase1_answers"`
	Teaser          *Teaser   `json:"teaser,omitempty"`
	SavedAt         time.Time `json:"saved_at"`
}
