package preference

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/trial-matching-mcp-server/internal/domain"
)

// Points awarded per satisfied preference.
const (
	PhasePoints          = 10
	NonInvasivePoints    = 15
	SafetyPriorityPoints = 8
)

// FallbackReasoning is used when no preference favoured any trial.
const FallbackReasoning = "Based on your preferences, this trial appears to be a good match for you."

// TrialScore is the total a trial earned across all preferences.
type TrialScore struct {
	TrialID    string   `json:"trial_id"`
	TrialIndex int      `json:"trial_index"`
	Score      int      `json:"score"`
	Reasons    []string `json:"reasons"`
}

// Recommendation is the single trial picked from a patient's eligible trials.
type Recommendation struct {
	Trial     domain.TrialEvaluation `json:"trial"`
	Reasoning string                 `json:"reasoning"`
	Scores    []TrialScore           `json:"scores"`
	Fallback  bool                   `json:"fallback"`
}

// Ranker scores eligible trials against preference answers.
type Ranker struct {
	store  Store
	logger *logrus.Logger
}

// NewRanker creates a ranker backed by the given store.
func NewRanker(store Store, logger *logrus.Logger) *Ranker {
	return &Ranker{store: store, logger: logger}
}

// Narrow stores the session's trials and answers, scores every trial and
// returns the best one. Ties go to the earlier trial.
func (r *Ranker) Narrow(ctx context.Context, sessionID string, eligible []domain.TrialEvaluation, answers []QA) (*Recommendation, error) {
	if len(eligible) == 0 {
		return nil, domain.NewValidationError("eligible_trials", "no eligible trials to narrow", 0)
	}
	if sessionID == "" {
		return nil, domain.NewValidationError("session_id", "session id is required", sessionID)
	}

	chars := make([]TrialCharacteristics, len(eligible))
	for i, eval := range eligible {
		chars[i] = CharacteristicsFor(sessionID, i, eval)
	}
	if err := r.store.SaveTrialCharacteristics(ctx, sessionID, chars); err != nil {
		return nil, fmt.Errorf("failed to store trial characteristics: %w", err)
	}

	for i, qa := range answers {
		pref := &Preference{
			SessionID:      sessionID,
			QuestionNumber: i + 1,
			Question:       qa.Question,
			Answer:         qa.Answer,
			Type:           ClassifyPreferenceType(qa.Question),
		}
		if err := r.store.SavePreference(ctx, pref); err != nil {
			return nil, fmt.Errorf("failed to store preference %d: %w", i+1, err)
		}
	}

	prefs, err := r.store.ListPreferences(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	// Characteristics are stored per (session, trial id) with the last write
	// winning, so trials sharing an id score through their last occurrence and
	// earlier duplicates stay at zero.
	scores := make([]TrialScore, len(chars))
	byID := make(map[string]*TrialScore, len(chars))
	for i, tc := range chars {
		scores[i] = TrialScore{TrialID: tc.TrialID, TrialIndex: i, Reasons: []string{}}
		byID[tc.TrialID] = &scores[i]
	}

	for _, pref := range prefs {
		awarded, err := r.apply(ctx, sessionID, pref)
		if err != nil {
			return nil, err
		}
		for _, a := range awarded {
			ts, ok := byID[a.TrialID]
			if !ok {
				continue
			}
			ts.Score += int(a.Score)
			ts.Reasons = append(ts.Reasons, a.Reasoning)
			if err := r.store.SaveScore(ctx, a); err != nil {
				return nil, err
			}
		}
	}

	best := 0
	for i := range scores {
		if scores[i].Score > scores[best].Score {
			best = i
		}
	}

	rec := &Recommendation{Trial: eligible[best], Scores: rankScores(scores)}
	if scores[best].Score <= 0 {
		rec.Trial = eligible[0]
		rec.Reasoning = FallbackReasoning
		rec.Fallback = true
	} else {
		rec.Reasoning = fmt.Sprintf("Preference matching score: %d points. %s",
			scores[best].Score, strings.Join(scores[best].Reasons, " "))
	}

	r.logger.WithFields(logrus.Fields{
		"session_id":  sessionID,
		"trials":      len(eligible),
		"preferences": len(prefs),
		"trial_id":    rec.Trial.TrialID,
		"fallback":    rec.Fallback,
	}).Info("Narrowed eligible trials")

	return rec, nil
}

// apply returns the points one preference awards, one Score per favoured trial.
func (r *Ranker) apply(ctx context.Context, sessionID string, pref *Preference) ([]*Score, error) {
	answer := strings.ToLower(pref.Answer)

	var (
		filter TrialFilter
		points int
		keep   func(*TrialCharacteristics) bool
		reason func(*TrialCharacteristics) string
	)

	switch pref.Type {
	case TypePhase:
		filter = LatePhaseTrials
		if containsAny(answer, "early", "experimental", "cutting") {
			filter = EarlyPhaseTrials
		}
		points = PhasePoints
		reason = func(tc *TrialCharacteristics) string {
			return fmt.Sprintf("Matches phase preference (Phase: %s)", tc.Phase)
		}
	case TypeInvasiveness:
		if !containsAny(answer, "avoid", "non-invasive", "not invasive") {
			return nil, nil
		}
		filter = NonInvasiveTrials
		points = NonInvasivePoints
		reason = func(*TrialCharacteristics) string { return "Non-invasive approach matches preference" }
	case TypePriority:
		if !strings.Contains(answer, "safety") {
			return nil, nil
		}
		filter = AllTrials
		points = SafetyPriorityPoints
		keep = func(tc *TrialCharacteristics) bool { return tc.PhaseNumeric >= 3 }
		reason = func(*TrialCharacteristics) string { return "Later phase supports safety priority" }
	default:
		return nil, nil
	}

	trials, err := r.store.ListTrials(ctx, sessionID, filter)
	if err != nil {
		return nil, err
	}

	var out []*Score
	for _, tc := range trials {
		if keep != nil && !keep(tc) {
			continue
		}
		out = append(out, &Score{
			SessionID: sessionID,
			TrialID:   tc.TrialID,
			Type:      pref.Type,
			Score:     float64(points),
			Reasoning: reason(tc),
		})
	}
	return out, nil
}

// rankScores orders scores highest first, keeping trial order on ties.
func rankScores(scores []TrialScore) []TrialScore {
	ranked := make([]TrialScore, len(scores))
	copy(ranked, scores)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	return ranked
}

func containsAny(s string, words ...string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
