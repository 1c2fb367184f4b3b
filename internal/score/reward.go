package score

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ppiankov/entrole/internal/codec"
	"github.com/ppiankov/entrole/internal/model"
)

// EvalMode selects how a reward is computed
type EvalMode string

const (
	EvalLLM   EvalMode = "llm"   // Gold F1, or self-consistency when there is no gold
	EvalHuman EvalMode = "human" // Human feedback only
	EvalJudge EvalMode = "judge" // LLM judge
)

// ParseEvalMode validates a configured eval mode; empty means EvalLLM
func ParseEvalMode(s string) (EvalMode, error) {
	switch m := EvalMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return EvalLLM, nil
	case EvalLLM, EvalHuman, EvalJudge:
		return m, nil
	default:
		return "", fmt.Errorf("unknown eval mode %q (want llm, human or judge)", s)
	}
}

// RewardInput is one graded prediction
type RewardInput struct {
	Question string
	Goal     string

	// Entities is the unannotated bundle the prediction was made for
	Entities *model.EntityBundle

	// Prediction is the model's wire string
	Prediction string

	Gold  Gold
	Human any // Raw human feedback value, if any
}

// Rewarder turns a prediction into a scalar reward
type Rewarder struct {
	mode   EvalMode
	scorer *Scorer
	judge  *Judge
}

// NewRewarder creates a rewarder. judge may be nil unless mode is EvalJudge.
func NewRewarder(mode EvalMode, judge *Judge) (*Rewarder, error) {
	if mode == EvalJudge && judge == nil {
		return nil, fmt.Errorf("eval mode %q needs a judge", mode)
	}
	return &Rewarder{mode: mode, scorer: NewScorer(), judge: judge}, nil
}

// Mode returns the configured eval mode
func (r *Rewarder) Mode() EvalMode {
	return r.mode
}

// Reward scores in according to the eval mode:
//
//	human  the clamped human score, or 0 without one
//	judge  the LLM judge
//	llm    F1 against gold when gold exists, otherwise F1 against the bundle
//	       obtained by merging the prediction into its own entities
func (r *Rewarder) Reward(ctx context.Context, in RewardInput) float64 {
	switch r.mode {
	case EvalHuman:
		score, _ := HumanScore(in.Human)
		return score
	case EvalJudge:
		return r.judge.Score(ctx, JudgeInput{
			Goal:     in.Goal,
			Question: in.Question,
			Entities: in.Entities,
			Output:   in.Prediction,
		})
	}

	if in.Gold.Exists() {
		return r.scorer.Score(in.Prediction, in.Gold).Score
	}
	return r.scorer.Score(in.Prediction, Gold{Struct: SelfGold(in.Entities, in.Prediction)}).Score
}

// SelfGold merges a prediction into a copy of entities. Scoring a prediction
// against it rewards well-formed output whose ids exist in the bundle.
func SelfGold(entities *model.EntityBundle, prediction string) *model.EntityBundle {
	merged := entities.Clone()
	if merged == nil {
		merged = model.NewEntityBundle("")
	}
	merged.ClearRoles()
	codec.Merge(merged, codec.Decode(prediction))
	return merged
}

// marshalCompact renders v as single-line JSON with CJK text unescaped
func marshalCompact(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}
