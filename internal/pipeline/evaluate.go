package pipeline

import (
	"context"
	"errors"

	"github.com/ppiankov/entrole/internal/classify"
	"github.com/ppiankov/entrole/internal/dataset"
	"github.com/ppiankov/entrole/internal/llm"
	"github.com/ppiankov/entrole/internal/model"
	"github.com/ppiankov/entrole/internal/score"
	"github.com/ppiankov/entrole/internal/worker"
)

var errSkipped = errors.New("not processed: batch cancelled")

// Evaluation is the graded rollout of one sample
type Evaluation struct {
	Question   string
	Prediction string
	Reward     float64

	// Agreement is the F1 breakdown against gold; nil without gold
	Agreement *model.Agreement
	Error     error
}

// GetError returns the rollout error
func (e *Evaluation) GetError() error {
	return e.Error
}

// Rollout runs a single generation call with tmpl (the configured generation
// template when nil) and rewards the raw output with the configured eval mode.
// Correction is not part of a rollout.
func (p *Pipeline) Rollout(ctx context.Context, sample dataset.Sample, tmpl *llm.Template) *Evaluation {
	return p.rollout(ctx, p.rolloutClassifier(tmpl), sample)
}

// Evaluate rolls out every sample on a worker pool and returns evaluations
// in sample order
func (p *Pipeline) Evaluate(ctx context.Context, samples []dataset.Sample, tmpl *llm.Template, workers int) []*Evaluation {
	c := p.rolloutClassifier(tmpl)

	pool := worker.NewPool(ctx, workers)
	pool.Start()
	for _, s := range samples {
		if !pool.Submit(&rolloutJob{p: p, c: c, sample: s}) {
			break
		}
	}
	results := pool.Wait()

	out := make([]*Evaluation, len(samples))
	for i, s := range samples {
		if i < len(results) && results[i] != nil {
			out[i] = results[i].(*Evaluation)
			continue
		}
		out[i] = &Evaluation{Question: s.Question, Error: errSkipped}
	}
	return out
}

// Rewards returns the reward of every evaluation that ran
func Rewards(evals []*Evaluation) []float64 {
	rewards := make([]float64, 0, len(evals))
	for _, e := range evals {
		if e.Error == nil {
			rewards = append(rewards, e.Reward)
		}
	}
	return rewards
}

type rolloutJob struct {
	p      *Pipeline
	c      *classify.Classifier
	sample dataset.Sample
}

func (j *rolloutJob) Execute(ctx context.Context) worker.Result {
	return j.p.rollout(ctx, j.c, j.sample)
}

func (p *Pipeline) rolloutClassifier(tmpl *llm.Template) *classify.Classifier {
	if tmpl == nil {
		tmpl = p.templates.Generation
	}
	return classify.New(nil, p.generation, p.generation, classify.Options{
		Templates:  classify.Templates{Generation: tmpl},
		Gate:       p.pacer,
		Normalizer: p.normalizer,
		Logger:     p.logger,
		Goal:       p.goal,
	})
}

func (p *Pipeline) rollout(ctx context.Context, c *classify.Classifier, sample dataset.Sample) *Evaluation {
	eval := &Evaluation{Question: sample.Question}

	entities := sample.Entities.Clone()
	entities.ClearRoles()

	run := c.NewRun(sample.Question)
	run.Entities = entities
	run.Stage = classify.StageNormalized
	if err := c.Generate(ctx, run); err != nil {
		eval.Error = err
		return eval
	}
	eval.Prediction = run.GenerationOutput

	gold := sample.Reference()
	eval.Reward = p.rewarder.Reward(ctx, score.RewardInput{
		Question:   sample.Question,
		Goal:       p.goal,
		Entities:   entities,
		Prediction: eval.Prediction,
		Gold:       gold,
		Human:      sample.HumanScore,
	})
	if gold.Exists() {
		agreement := score.NewScorer().Score(eval.Prediction, gold)
		eval.Agreement = &agreement
	}

	p.logger.Debug("rollout scored", "question", sample.Question, "prediction", eval.Prediction, "reward", eval.Reward)
	return eval
}
