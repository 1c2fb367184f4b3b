package score

import (
	"testing"

	"github.com/ppiankov/entrole/internal/model"
	"github.com/stretchr/testify/assert"
)

func TestScorer_Boundaries(t *testing.T) {
	s := NewScorer()

	tests := []struct {
		name      string
		predicted string
		gold      Gold
		want      float64
	}{
		{"both empty", "", Gold{}, 1},
		{"both empty after skipping malformed entries", "garbage|X-", Gold{Wire: " | "}, 1},
		{"no gold", "A-subject-9", Gold{}, 0},
		{"no prediction", "", Gold{Wire: "A-subject-9"}, 0},
		{"perfect match", "A-subject-9|B-filter_time-8", Gold{Wire: "B-filter_time|A-subject"}, 1},
		{"all roles wrong", "A-publisher-9", Gold{Wire: "A-subject-9"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, s.Score(tt.predicted, tt.gold).Score, 1e-9)
		})
	}
}

func TestScorer_PartialMatch(t *testing.T) {
	got := NewScorer().Score(
		"A-subject-9|B-context-5|C-subject-7",
		Gold{Wire: "A-subject-9|B-filter_time-8"},
	)

	assert.Equal(t, 1, got.Matches)
	assert.Equal(t, 3, got.Predicted)
	assert.Equal(t, 2, got.Gold)
	assert.InDelta(t, 1.0/3, got.Precision, 1e-9)
	assert.InDelta(t, 0.5, got.Recall, 1e-9)
	assert.InDelta(t, 0.4, got.Score, 1e-9)
}

func TestScorer_ConfidenceIsIgnored(t *testing.T) {
	got := NewScorer().Score("A-subject-1", Gold{Wire: "A-subject-10"})
	assert.InDelta(t, 1.0, got.Score, 1e-9)
}

func TestScorer_StructuredGoldTakesPrecedence(t *testing.T) {
	gold := Gold{
		Wire: "A-publisher-9",
		Struct: &model.EntityBundle{
			Enterprises: []model.Enterprise{{ID: "A", Name: "中信证券", Role: model.RoleSubject}},
			Times:       []model.TimeEntity{{ID: "T", Raw: "2024年"}}, // No role, not graded
		},
	}

	got := NewScorer().Score("A-subject-9", gold)
	assert.InDelta(t, 1.0, got.Score, 1e-9)
	assert.Equal(t, 1, got.Gold)
}

func TestScorer_DuplicatePredictionsLastWins(t *testing.T) {
	got := NewScorer().Score("A-publisher-3|A-subject-9", Gold{Wire: "A-subject"})
	assert.InDelta(t, 1.0, got.Score, 1e-9)
	assert.Equal(t, 1, got.Predicted)
}

func TestSummarize(t *testing.T) {
	summary := Summarize([]model.Agreement{{Score: 1}, {Score: 0.4}, {Score: 0}, {Score: 1}})
	assert.Equal(t, 4, summary.Samples)
	assert.Equal(t, 2, summary.Perfect)
	assert.Equal(t, 1, summary.Zero)
	assert.InDelta(t, 0.6, summary.MeanScore, 1e-9)

	assert.Equal(t, Summary{}, Summarize(nil))
}
