package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ppiankov/entrole/internal/cache"
	"github.com/ppiankov/entrole/internal/classify"
	"github.com/ppiankov/entrole/internal/extract"
	"github.com/ppiankov/entrole/internal/model"
	"github.com/ppiankov/entrole/internal/worker"
)

// Preparer fetches and normalizes entities without calling a model. It needs
// no model credentials.
type Preparer struct {
	ner        classify.NerSource
	normalizer *extract.Normalizer
	logger     *slog.Logger
}

// NewPreparer builds the NER client from cfg unless opts.NER is set. The
// model fields of opts are ignored.
func NewPreparer(cfg *model.Config, opts Options) *Preparer {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	ner := opts.NER
	if ner == nil {
		limiter := worker.NewLimiter(cfg.RateLimiting.RequestsPerSecond, cfg.RateLimiting.BurstSize)
		ner = NewNerFetcherFromConfig(cfg, limiter, cache.New(cfg.Cache), logger)
	}

	return &Preparer{
		ner:        ner,
		normalizer: extract.NewNormalizer(logger),
		logger:     logger,
	}
}

// Normalize fetches and normalizes entities for query
func (p *Preparer) Normalize(ctx context.Context, query string) (*extract.Result, error) {
	raw, err := p.ner.Fetch(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("fetch NER: %w", err)
	}
	result, err := p.normalizer.NormalizeBytes(raw)
	if err != nil {
		return nil, fmt.Errorf("normalize: %w", err)
	}
	return result, nil
}

// Prepared is the normalized entities of one query
type Prepared struct {
	Query  string
	Result *extract.Result
	Error  error
}

// GetError returns the preparation error
func (r *Prepared) GetError() error {
	return r.Error
}

type normalizeJob struct {
	p     *Preparer
	query string
}

func (j *normalizeJob) Execute(ctx context.Context) worker.Result {
	result, err := j.p.Normalize(ctx, j.query)
	return &Prepared{Query: j.query, Result: result, Error: err}
}

// NormalizeQueries normalizes queries on a worker pool, for building
// unlabelled datasets. Results are in query order.
func (p *Preparer) NormalizeQueries(ctx context.Context, queries []string, workers int) []*Prepared {
	pool := worker.NewPool(ctx, workers)
	pool.Start()
	for _, q := range queries {
		if !pool.Submit(&normalizeJob{p: p, query: q}) {
			break
		}
	}
	results := pool.Wait()

	out := make([]*Prepared, len(queries))
	for i, q := range queries {
		if i < len(results) && results[i] != nil {
			out[i] = results[i].(*Prepared)
			continue
		}
		out[i] = &Prepared{Query: q, Error: errSkipped}
	}
	return out
}
