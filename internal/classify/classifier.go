// Package classify assigns query roles to normalized entities with two model
// calls: a generation pass proposes roles, a correction pass reviews them.
package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ppiankov/entrole/internal/codec"
	"github.com/ppiankov/entrole/internal/extract"
	"github.com/ppiankov/entrole/internal/llm"
	"github.com/ppiankov/entrole/internal/model"
	"github.com/ppiankov/entrole/internal/validate"
)

// ErrStage is returned when Generate or Correct is called on a run in the
// wrong state
var ErrStage = errors.New("run is not in the expected stage")

// NerSource returns the raw NER response for a query
type NerSource interface {
	Fetch(ctx context.Context, query string) ([]byte, error)
}

// Gate spaces outbound model calls; every stage waits on it once
type Gate interface {
	Wait(ctx context.Context) error
}

// Profile binds a logical model role to a provider
type Profile struct {
	Provider    llm.Provider
	Model       string
	Temperature float64
}

// Templates holds the two stage prompts
type Templates struct {
	Generation *llm.Template
	Correction *llm.Template
}

// DefaultTemplates returns the built-in prompts
func DefaultTemplates() Templates {
	return Templates{
		Generation: llm.NewTemplate("generation", GenerationPrompt),
		Correction: llm.NewTemplate("correction", CorrectionPrompt),
	}
}

// Options configures a Classifier
type Options struct {
	Templates  Templates
	Gate       Gate
	Normalizer *extract.Normalizer
	Logger     *slog.Logger

	// Goal fills the goal/task placeholders of rewritten templates
	Goal string
}

// Classifier runs the generation → correction state machine
type Classifier struct {
	ner        NerSource
	generation Profile
	correction Profile
	templates  Templates
	gate       Gate
	normalizer *extract.Normalizer
	logger     *slog.Logger
	goal       string
	newRunID   func() string
}

// New creates a classifier. ner may be nil when only ClassifyBundle is used.
func New(ner NerSource, generation, correction Profile, opts Options) *Classifier {
	defaults := DefaultTemplates()
	if opts.Templates.Generation == nil {
		opts.Templates.Generation = defaults.Generation
	}
	if opts.Templates.Correction == nil {
		opts.Templates.Correction = defaults.Correction
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Normalizer == nil {
		opts.Normalizer = extract.NewNormalizer(opts.Logger)
	}
	if opts.Gate == nil {
		opts.Gate = openGate{}
	}

	return &Classifier{
		ner:        ner,
		generation: generation,
		correction: correction,
		templates:  opts.Templates,
		gate:       opts.Gate,
		normalizer: opts.Normalizer,
		logger:     opts.Logger,
		goal:       opts.Goal,
		newRunID:   uuid.NewString,
	}
}

// Classify fetches NER output for query, normalizes it and runs both stages.
// A query without classifiable entities returns a run in StageEmpty with a
// nil Final. Any stage failure is returned; there is no fallback to the
// generation-only result.
func (c *Classifier) Classify(ctx context.Context, query string) (*Run, error) {
	if c.ner == nil {
		return nil, errors.New("classify: no NER source configured")
	}

	run := c.NewRun(query)

	raw, err := c.ner.Fetch(ctx, query)
	if err != nil {
		return run, fmt.Errorf("fetch NER: %w", err)
	}
	run.Stage = StageNerFetched

	result, err := c.normalizer.NormalizeBytes(raw)
	if err != nil {
		return run, fmt.Errorf("normalize: %w", err)
	}

	return c.classify(ctx, run, result.Bundle)
}

// ClassifyBundle runs both stages on entities that were normalized earlier
func (c *Classifier) ClassifyBundle(ctx context.Context, query string, entities *model.EntityBundle) (*Run, error) {
	if err := validate.Task(query, entities); err != nil {
		return nil, err
	}

	run := c.NewRun(query)
	return c.classify(ctx, run, entities.Clone())
}

// NewRun starts a run for query
func (c *Classifier) NewRun(query string) *Run {
	return &Run{
		ID:    c.newRunID(),
		Query: query,
		Stage: StageNew,
	}
}

func (c *Classifier) classify(ctx context.Context, run *Run, entities *model.EntityBundle) (*Run, error) {
	entities.ClearRoles()
	run.Entities = entities
	run.Stage = StageNormalized

	log := c.logger.With("run_id", run.ID)

	if entities.IsEmpty() {
		run.Stage = StageEmpty
		log.Info("no entities to classify", "query", run.Query)
		return run, nil
	}

	if err := c.Generate(ctx, run); err != nil {
		return run, err
	}
	if err := c.Correct(ctx, run); err != nil {
		return run, err
	}

	log.Info("classified query",
		"query", run.Query,
		"entities", entities.Len(),
		"output", run.Output(),
		"changed", run.Changed)

	return run, nil
}

// Generate runs the generation stage on a normalized run
func (c *Classifier) Generate(ctx context.Context, run *Run) error {
	if run.Stage != StageNormalized {
		return fmt.Errorf("generate: %w: %s", ErrStage, run.Stage)
	}
	if err := validate.Task(run.Query, run.Entities); err != nil {
		return fmt.Errorf("generate: %w", err)
	}

	entitiesJSON, err := marshalEntities(run.Entities)
	if err != nil {
		return fmt.Errorf("generate: %w", err)
	}

	prompt := c.templates.Generation.Format(c.vars(map[string]string{
		"question": run.Query,
		"entities": entitiesJSON,
	}))

	output, resp, latency, err := c.complete(ctx, c.generation, prompt)
	if err != nil {
		return fmt.Errorf("generation stage: %w", err)
	}

	bundle := run.Entities.Clone()
	assignment := codec.Decode(output)
	codec.Merge(bundle, assignment)
	c.report(run, "generation", run.Entities, assignment)

	run.GenerationOutput = output
	run.GenerationBundle = bundle
	run.GenerationModel = resp.Model
	run.GenerationLatency = latency
	run.Stage = StageGenerated

	c.logger.Debug("generation stage done", "run_id", run.ID, "output", output, "latency", latency)
	return nil
}

// Correct runs the correction stage on a generated run
func (c *Classifier) Correct(ctx context.Context, run *Run) error {
	if run.Stage != StageGenerated {
		return fmt.Errorf("correct: %w: %s", ErrStage, run.Stage)
	}

	entitiesJSON, err := marshalEntities(run.GenerationBundle)
	if err != nil {
		return fmt.Errorf("correct: %w", err)
	}

	prompt := c.templates.Correction.Format(c.vars(map[string]string{
		"question":   run.Query,
		"pre_result": run.GenerationOutput,
		"entities":   entitiesJSON,
	}))

	output, resp, latency, err := c.complete(ctx, c.correction, prompt)
	if err != nil {
		return fmt.Errorf("correction stage: %w", err)
	}

	run.CorrectionOutput = output
	run.CorrectionModel = resp.Model
	run.CorrectionLatency = latency
	run.Changed = output != run.GenerationOutput

	if run.Changed {
		final := run.Entities.Clone()
		assignment := codec.Decode(output)
		codec.Merge(final, assignment)
		c.report(run, "correction", run.Entities, assignment)
		run.Final = final
	} else {
		run.Final = run.GenerationBundle.Clone()
	}
	run.Stage = StageCorrected

	c.logger.Debug("correction stage done", "run_id", run.ID, "output", output, "changed", run.Changed, "latency", latency)
	return nil
}

func (c *Classifier) complete(ctx context.Context, p Profile, prompt string) (string, *llm.CompletionResponse, time.Duration, error) {
	if p.Provider == nil {
		return "", nil, 0, errors.New("no model provider configured")
	}
	if err := c.gate.Wait(ctx); err != nil {
		return "", nil, 0, fmt.Errorf("wait for pacer: %w", err)
	}

	start := time.Now()
	resp, err := p.Provider.Complete(ctx, llm.CompletionRequest{
		Prompt:      prompt,
		Model:       p.Model,
		Temperature: llm.Float(p.Temperature),
	})
	latency := time.Since(start)
	if err != nil {
		return "", nil, latency, err
	}
	if resp == nil {
		return "", nil, latency, llm.ErrEmptyResponse
	}

	return strings.TrimSpace(resp.Content), resp, latency, nil
}

func (c *Classifier) vars(stage map[string]string) map[string]string {
	return llm.MergeVars(llm.FallbackVars(c.goal), stage)
}

// report logs assignment diagnostics; they never change the result
func (c *Classifier) report(run *Run, stage string, bundle *model.EntityBundle, a *model.RoleAssignment) {
	for _, d := range validate.CheckAssignment(bundle, a) {
		c.logger.Warn("assignment diagnostic", "run_id", run.ID, "stage", stage, "kind", d.Kind, "id", d.ID, "role", d.Role)
	}
}

// marshalEntities renders a bundle as compact JSON with CJK text unescaped
func marshalEntities(b *model.EntityBundle) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(b); err != nil {
		return "", fmt.Errorf("marshal entities: %w", err)
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

type openGate struct{}

func (openGate) Wait(context.Context) error { return nil }
