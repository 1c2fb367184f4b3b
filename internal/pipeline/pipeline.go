// Package pipeline wires configuration into the NER client, the two-stage
// classifier and the scorers, and runs them over single queries or datasets.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ppiankov/entrole/internal/classify"
	"github.com/ppiankov/entrole/internal/llm"
	"github.com/ppiankov/entrole/internal/model"
	"github.com/ppiankov/entrole/internal/score"
	"github.com/ppiankov/entrole/internal/worker"
)

// Options overrides collaborators that New would otherwise build from config
type Options struct {
	Logger *slog.Logger
	NER    classify.NerSource

	Generation llm.Provider
	Correction llm.Provider
	Judge      llm.Provider
}

// Pipeline orchestrates fetch → normalize → generate → correct → score
type Pipeline struct {
	*Preparer

	config     *model.Config
	classifier *classify.Classifier
	generation classify.Profile
	templates  classify.Templates
	judge      *score.Judge
	rewarder   *score.Rewarder
	pacer      *worker.Pacer
	goal       string
	logger     *slog.Logger
}

// New creates a pipeline from cfg. Every model call, judge included, waits
// on one shared pacer.
func New(cfg *model.Config, opts Options) (*Pipeline, error) {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	logger := opts.Logger

	prompts, err := loadPrompts(cfg)
	if err != nil {
		return nil, err
	}
	templates, goal := prompts.templates, prompts.goal

	mode, err := score.ParseEvalMode(cfg.Scoring.EvalMode)
	if err != nil {
		return nil, err
	}

	generation, err := provider(opts.Generation, cfg.LLM.Generation, cfg.HTTP)
	if err != nil {
		return nil, fmt.Errorf("generation model: %w", err)
	}
	correction, err := provider(opts.Correction, cfg.LLM.Correction, cfg.HTTP)
	if err != nil {
		return nil, fmt.Errorf("correction model: %w", err)
	}

	prep := NewPreparer(cfg, opts)
	pacer := worker.NewPacerSeconds(cfg.Pacer.IntervalSeconds)

	genProfile := classify.Profile{Provider: generation, Model: cfg.LLM.Generation.Model, Temperature: cfg.LLM.Generation.Temperature}
	corProfile := classify.Profile{Provider: correction, Model: cfg.LLM.Correction.Model, Temperature: cfg.LLM.Correction.Temperature}

	classifier := classify.New(prep.ner, genProfile, corProfile, classify.Options{
		Templates:  templates,
		Gate:       pacer,
		Normalizer: prep.normalizer,
		Logger:     logger,
		Goal:       goal,
	})

	// The judge model is only required when it is the configured scorer
	var judge *score.Judge
	judgeProvider, err := provider(opts.Judge, cfg.LLM.Judge, cfg.HTTP)
	switch {
	case err == nil:
		judge = newJudge(cfg, judgeProvider, prompts.judge, pacer, logger)
	case mode == score.EvalJudge:
		return nil, fmt.Errorf("judge model: %w", err)
	default:
		logger.Debug("judge model unavailable", "error", err)
	}

	rewarder, err := score.NewRewarder(mode, judge)
	if err != nil {
		return nil, err
	}

	return &Pipeline{
		Preparer:   prep,
		config:     cfg,
		classifier: classifier,
		generation: genProfile,
		templates:  templates,
		judge:      judge,
		rewarder:   rewarder,
		pacer:      pacer,
		goal:       goal,
		logger:     logger,
	}, nil
}

// NewJudge builds only the judge, for grading without the classifier models.
// opts.Judge overrides the configured judge model.
func NewJudge(cfg *model.Config, opts Options) (*score.Judge, string, error) {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	prompts, err := loadPrompts(cfg)
	if err != nil {
		return nil, "", err
	}
	p, err := provider(opts.Judge, cfg.LLM.Judge, cfg.HTTP)
	if err != nil {
		return nil, "", fmt.Errorf("judge model: %w", err)
	}
	pacer := worker.NewPacerSeconds(cfg.Pacer.IntervalSeconds)
	return newJudge(cfg, p, prompts.judge, pacer, opts.Logger), prompts.goal, nil
}

func newJudge(cfg *model.Config, p llm.Provider, tmpl *llm.Template, gate score.Gate, logger *slog.Logger) *score.Judge {
	return score.NewJudge(p, score.JudgeOptions{
		Model:       cfg.LLM.Judge.Model,
		Temperature: cfg.LLM.Judge.Temperature,
		Template:    tmpl,
		Gate:        gate,
		Logger:      logger,
	})
}

// promptSet is the templates and goal after applying the templates file
type promptSet struct {
	templates classify.Templates
	judge     *llm.Template
	goal      string
}

func loadPrompts(cfg *model.Config) (promptSet, error) {
	out := promptSet{
		templates: classify.DefaultTemplates(),
		judge:     llm.NewTemplate("judge", score.JudgePrompt),
		goal:      cfg.Scoring.Goal,
	}
	if cfg.LLM.TemplatesFile == "" {
		return out, nil
	}

	tf, err := llm.LoadTemplateFile(cfg.LLM.TemplatesFile)
	if err != nil {
		return out, err
	}
	if tf.Generation != "" {
		out.templates.Generation = llm.NewTemplate("generation", tf.Generation)
	}
	if tf.Correction != "" {
		out.templates.Correction = llm.NewTemplate("correction", tf.Correction)
	}
	if tf.Judge != "" {
		out.judge = llm.NewTemplate("judge", tf.Judge)
	}
	if tf.Goal != "" {
		out.goal = tf.Goal
	}
	return out, nil
}

func provider(override llm.Provider, profile model.ProfileConfig, httpCfg model.HTTPConfig) (llm.Provider, error) {
	if override != nil {
		return override, nil
	}
	return llm.NewProvider(llm.ConfigFromProfile(profile, httpCfg))
}

// Classify runs the full two-stage pipeline for one query
func (p *Pipeline) Classify(ctx context.Context, query string) (*classify.Run, error) {
	return p.classifier.Classify(ctx, query)
}

// ClassifyBundle runs both stages on entities normalized earlier
func (p *Pipeline) ClassifyBundle(ctx context.Context, query string, entities *model.EntityBundle) (*classify.Run, error) {
	return p.classifier.ClassifyBundle(ctx, query, entities)
}

// Judge returns the LLM judge, or nil when no judge model is configured
func (p *Pipeline) Judge() *score.Judge {
	return p.judge
}

// Rewarder returns the configured reward selection
func (p *Pipeline) Rewarder() *score.Rewarder {
	return p.rewarder
}

// PacerInterval returns the minimum spacing between model calls
func (p *Pipeline) PacerInterval() time.Duration {
	return p.pacer.Interval()
}

// Goal returns the task goal passed to templates and the judge
func (p *Pipeline) Goal() string {
	return p.goal
}

// Config returns the configuration the pipeline was built from
func (p *Pipeline) Config() *model.Config {
	return p.config
}
