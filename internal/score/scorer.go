// Package score grades role assignments: an F1 agreement against gold, an
// LLM judge for ungraded output, human feedback, and the reward selection
// that combines them.
package score

import (
	"github.com/ppiankov/entrole/internal/codec"
	"github.com/ppiankov/entrole/internal/model"
)

// Gold is a reference assignment in either of its two forms. Struct takes
// precedence over Wire when both are set.
type Gold struct {
	Wire   string              `json:"wire,omitempty"`
	Struct *model.EntityBundle `json:"struct,omitempty"`
}

// Exists reports whether any reference was given
func (g Gold) Exists() bool {
	return g.Struct != nil || g.Wire != ""
}

// Roles returns the reference id → role mapping
func (g Gold) Roles() map[string]model.Role {
	if g.Struct != nil {
		return codec.ExtractRoles(g.Struct).Roles()
	}
	return codec.Decode(g.Wire).Roles()
}

// Scorer computes per-query micro-F1 over entity-role pairs
type Scorer struct{}

// NewScorer creates a new scorer
func NewScorer() *Scorer {
	return &Scorer{}
}

// Score compares a predicted wire string with gold
func (s *Scorer) Score(predicted string, gold Gold) model.Agreement {
	return s.Compare(codec.Decode(predicted).Roles(), gold.Roles())
}

// Compare grades two id → role mappings. Both empty scores 1, exactly one
// empty scores 0. Otherwise an id counts as a match only when both sides
// give it the same role.
func (s *Scorer) Compare(predicted, gold map[string]model.Role) model.Agreement {
	result := model.Agreement{
		Predicted: len(predicted),
		Gold:      len(gold),
	}

	switch {
	case len(predicted) == 0 && len(gold) == 0:
		result.Score, result.Precision, result.Recall = 1, 1, 1
		return result
	case len(predicted) == 0 || len(gold) == 0:
		return result
	}

	for id, role := range predicted {
		if want, ok := gold[id]; ok && want == role {
			result.Matches++
		}
	}

	result.Precision = float64(result.Matches) / float64(len(predicted))
	result.Recall = float64(result.Matches) / float64(len(gold))
	if result.Precision+result.Recall > 0 {
		result.Score = 2 * result.Precision * result.Recall / (result.Precision + result.Recall)
	}
	return result
}

// Summary aggregates agreements over a dataset
type Summary struct {
	Samples   int     `json:"samples"`
	MeanScore float64 `json:"mean_score"`
	Perfect   int     `json:"perfect"` // Samples scoring exactly 1
	Zero      int     `json:"zero"`    // Samples scoring 0
}

// Summarize computes the mean and the count of perfect and zero scores
func Summarize(agreements []model.Agreement) Summary {
	summary := Summary{Samples: len(agreements)}
	if len(agreements) == 0 {
		return summary
	}

	var total float64
	for _, a := range agreements {
		total += a.Score
		switch a.Score {
		case 1:
			summary.Perfect++
		case 0:
			summary.Zero++
		}
	}
	summary.MeanScore = total / float64(len(agreements))
	return summary
}
