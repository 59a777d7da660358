// Package preference narrows a patient's eligible trials to one recommendation
// by scoring stored trial characteristics against free-text preference answers.
package preference

import (
	"context"
	"time"
)

// Type is the kind of preference a question asks about.
type Type string

const (
	TypePhase        Type = "phase"
	TypeInvasiveness Type = "invasiveness"
	TypePriority     Type = "priority"
	TypeGeneral      Type = "general"
)

// QA is one answered preference question.
type QA struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Preference is a stored answer.
type Preference struct {
	SessionID      string    `json:"session_id"`
	QuestionNumber int       `json:"question_number"`
	Question       string    `json:"question"`
	Answer         string    `json:"answer"`
	Type           Type      `json:"preference_type"`
	CreatedAt      time.Time `json:"created_at"`
}

// TrialCharacteristics are the scoring attributes of one eligible trial.
type TrialCharacteristics struct {
	SessionID     string   `json:"session_id"`
	TrialID       string   `json:"trial_id"`
	TrialIndex    int      `json:"trial_index"`
	Title         string   `json:"title"`
	Phase         string   `json:"phase"`
	PhaseNumeric  int      `json:"phase_numeric"`
	Diseases      []string `json:"diseases"`
	Interventions []string `json:"interventions"`
	BriefSummary  string   `json:"brief_summary"`
	IsEarlyPhase  bool     `json:"is_early_phase"`
	IsLatePhase   bool     `json:"is_late_phase"`
	IsInvasive    bool     `json:"is_invasive"`
}

// TrialFilter selects stored trials by characteristic.
type TrialFilter int

const (
	AllTrials TrialFilter = iota
	EarlyPhaseTrials
	LatePhaseTrials
	NonInvasiveTrials
)

// Score is the points one preference type gave one trial.
type Score struct {
	SessionID string  `json:"session_id"`
	TrialID   string  `json:"trial_id"`
	Type      Type    `json:"preference_type"`
	Score     float64 `json:"score"`
	Reasoning string  `json:"reasoning"`
}

// Store defines the interface for preference storage operations.
type Store interface {
	// SaveTrialCharacteristics replaces the stored trials of a session.
	SaveTrialCharacteristics(ctx context.Context, sessionID string, trials []TrialCharacteristics) error

	// SavePreference stores or replaces an answer by session and question number.
	SavePreference(ctx context.Context, pref *Preference) error

	// ListPreferences returns a session's answers ordered by question number.
	ListPreferences(ctx context.Context, sessionID string) ([]*Preference, error)

	// ListTrials returns a session's trials matching the filter, in trial order.
	ListTrials(ctx context.Context, sessionID string, filter TrialFilter) ([]*TrialCharacteristics, error)

	// SaveScore stores or replaces a score by session, trial and type.
	SaveScore(ctx context.Context, score *Score) error

	// Close closes the store and releases resources.
	Close() error
}
