package preference

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trial-matching-mcp-server/internal/domain"
)

const (
	phaseQuestion    = "Would you prefer an early-phase trial or a later-phase trial?"
	approachQuestion = "Do you have a preferred treatment approach, for example avoiding invasive procedures?"
	priorityQuestion = "What matters most to you when choosing a trial?"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	return logger
}

func eligibleTrials() []domain.TrialEvaluation {
	infos := []*domain.TrialInfo{
		{TrialID: "NCT0", Title: "Surgical study", Phase: "Phase 1", Interventions: []string{"Surgery"}},
		{TrialID: "NCT1", Title: "Tablet study", Phase: "Phase 3", Interventions: []string{"Oral tablet"}},
		{TrialID: "NCT2", Title: "Diet study", Phase: "Phase 2", Diseases: []string{"Obesity", "Diabetes"}},
	}
	evals := make([]domain.TrialEvaluation, 0, len(infos))
	for _, info := range infos {
		trial := &domain.TrialProfile{TrialInfo: info}
		evals = append(evals, domain.NewTrialEvaluation(trial, &domain.EligibilityReasoning{Eligible: true}))
	}
	return evals
}

func TestRanker_Narrow(t *testing.T) {
	store := createTestStore(t)
	ranker := NewRanker(store, testLogger())

	answers := []QA{
		{Question: phaseQuestion, Answer: "Something experimental please"},
		{Question: approachQuestion, Answer: "I'd rather avoid surgery"},
		{Question: priorityQuestion, Answer: "Safety above all"},
	}

	rec, err := ranker.Narrow(context.Background(), "s1", eligibleTrials(), answers)
	require.NoError(t, err)

	// NCT0: 10, NCT1: 15+8, NCT2: 10+15
	assert.Equal(t, "NCT2", rec.Trial.TrialID)
	assert.False(t, rec.Fallback)
	assert.Equal(t,
		"Preference matching score: 25 points. Matches phase preference (Phase: Phase 2) Non-invasive approach matches preference",
		rec.Reasoning)

	require.Len(t, rec.Scores, 3)
	assert.Equal(t, []int{25, 23, 10}, []int{rec.Scores[0].Score, rec.Scores[1].Score, rec.Scores[2].Score})
	assert.Equal(t, "NCT1", rec.Scores[1].TrialID)

	var persisted int
	require.NoError(t, store.db.QueryRow("SELECT COUNT(*) FROM preference_scores WHERE session_id = ?", "s1").Scan(&persisted))
	assert.Equal(t, 5, persisted)
}

func TestRanker_Narrow_LatePhase(t *testing.T) {
	ranker := NewRanker(createTestStore(t), testLogger())

	rec, err := ranker.Narrow(context.Background(), "s1", eligibleTrials(), []QA{
		{Question: phaseQuestion, Answer: "A well-established one"},
	})
	require.NoError(t, err)
	assert.Equal(t, "NCT1", rec.Trial.TrialID)
}

func TestRanker_Narrow_TieKeepsTrialOrder(t *testing.T) {
	ranker := NewRanker(createTestStore(t), testLogger())

	rec, err := ranker.Narrow(context.Background(), "s1", eligibleTrials(), []QA{
		{Question: phaseQuestion, Answer: "early"},
	})
	require.NoError(t, err)
	assert.Equal(t, "NCT0", rec.Trial.TrialID)
	assert.Equal(t, 10, rec.Scores[0].Score)
	assert.Equal(t, "NCT0", rec.Scores[0].TrialID)
	assert.Equal(t, "NCT2", rec.Scores[1].TrialID)
}

func TestRanker_Narrow_DuplicateTrialIDScoresLastOccurrence(t *testing.T) {
	ranker := NewRanker(createTestStore(t), testLogger())

	eligible := eligibleTrials()
	duplicate := &domain.TrialProfile{TrialInfo: &domain.TrialInfo{TrialID: "NCT1", Title: "Tablet study, second site", Phase: "Phase 3"}}
	eligible = append(eligible, domain.NewTrialEvaluation(duplicate, &domain.EligibilityReasoning{Eligible: true}))

	rec, err := ranker.Narrow(context.Background(), "s1", eligible, []QA{
		{Question: phaseQuestion, Answer: "A well-established one"},
	})
	require.NoError(t, err)
	assert.Same(t, duplicate, rec.Trial.Trial)

	byIndex := make(map[int]int, len(rec.Scores))
	for _, s := range rec.Scores {
		byIndex[s.TrialIndex] = s.Score
	}
	assert.Equal(t, 0, byIndex[1])
	assert.Equal(t, 10, byIndex[3])
}

func TestRanker_Narrow_Fallback(t *testing.T) {
	ranker := NewRanker(createTestStore(t), testLogger())

	rec, err := ranker.Narrow(context.Background(), "s1", eligibleTrials(), []QA{
		{Question: approachQuestion, Answer: "No preference"},
		{Question: "Where do you live?", Answer: "Boston"},
	})
	require.NoError(t, err)
	assert.True(t, rec.Fallback)
	assert.Equal(t, "NCT0", rec.Trial.TrialID)
	assert.Equal(t, FallbackReasoning, rec.Reasoning)
}

func TestRanker_Narrow_SessionsIsolated(t *testing.T) {
	store := createTestStore(t)
	ranker := NewRanker(store, testLogger())
	ctx := context.Background()

	_, err := ranker.Narrow(ctx, "s1", eligibleTrials(), []QA{{Question: phaseQuestion, Answer: "early"}})
	require.NoError(t, err)

	rec, err := ranker.Narrow(ctx, "s2", eligibleTrials(), []QA{{Question: priorityQuestion, Answer: "safety"}})
	require.NoError(t, err)
	assert.Equal(t, "NCT1", rec.Trial.TrialID)
	assert.Equal(t, "Preference matching score: 8 points. Later phase supports safety priority", rec.Reasoning)
}

func TestRanker_Narrow_NoEligibleTrials(t *testing.T) {
	ranker := NewRanker(createTestStore(t), testLogger())

	_, err := ranker.Narrow(context.Background(), "s1", nil, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))
}

func TestRecommendationMessage(t *testing.T) {
	trial := &domain.TrialProfile{TrialInfo: &domain.TrialInfo{
		TrialID:       "NCT2",
		Title:         "Diet study",
		Phase:         "Phase 2",
		Diseases:      []string{"Obesity", "Diabetes", "Hypertension", "Asthma"},
		Interventions: []string{"Diet"},
	}}
	rec := &Recommendation{
		Trial:     domain.NewTrialEvaluation(trial, &domain.EligibilityReasoning{Eligible: true}),
		Reasoning: FallbackReasoning,
	}

	msg := RecommendationMessage(rec)
	assert.Contains(t, msg, "Based on your preferences, I recommend: **Diet study**")
	assert.Contains(t, msg, "• Trial ID: NCT2\n")
	assert.Contains(t, msg, "• Phase: Phase 2\n")
	assert.Contains(t, msg, "• Focus: Obesity, Diabetes, Hypertension\n")
	assert.Contains(t, msg, "• Interventions: Diet\n")
	assert.Contains(t, msg, "Direct link: https://clinicaltrials.gov/study/NCT2")
	assert.NotContains(t, msg, "Asthma")

	bare := RecommendationMessage(&Recommendation{Trial: domain.TrialEvaluation{TrialID: "NCT9"}})
	assert.Contains(t, bare, "• Phase: Not listed")
	assert.NotContains(t, bare, "Focus:")
	assert.Empty(t, RecommendationMessage(nil))
}
