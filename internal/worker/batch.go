package worker

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ppiankov/entrole/internal/classify"
)

// errNotRun marks queries skipped because the batch was cancelled
var errNotRun = errors.New("query not processed: batch cancelled")

// Classifier runs the two-stage pipeline for one query
type Classifier interface {
	Classify(ctx context.Context, query string) (*classify.Run, error)
}

// QueryJob classifies one query
type QueryJob struct {
	Query      string
	Classifier Classifier
}

// Execute executes the classification job
func (j *QueryJob) Execute(ctx context.Context) Result {
	run, err := j.Classifier.Classify(ctx, j.Query)
	return &QueryResult{
		Query: j.Query,
		Run:   run,
		Error: err,
	}
}

// QueryResult is the outcome of one query. Run may be set alongside Error
// and then holds the state reached before the failure.
type QueryResult struct {
	Query string
	Run   *classify.Run
	Error error
}

// GetError returns the error from the query result
func (r *QueryResult) GetError() error {
	return r.Error
}

// BatchProcessor classifies many queries concurrently. Workers share the
// classifier and therefore its pacer.
type BatchProcessor struct {
	classifier  Classifier
	concurrency int
}

// NewBatchProcessor creates a new batch processor
func NewBatchProcessor(classifier Classifier, concurrency int) *BatchProcessor {
	return &BatchProcessor{
		classifier:  classifier,
		concurrency: concurrency,
	}
}

// ProcessQueries classifies queries and returns one result per query in
// input order. A failed query never stops the batch.
func (b *BatchProcessor) ProcessQueries(ctx context.Context, queries []string) []*QueryResult {
	if len(queries) == 0 {
		return []*QueryResult{}
	}

	pool := NewPool(ctx, b.concurrency)
	pool.Start()

	for _, q := range queries {
		if !pool.Submit(&QueryJob{Query: q, Classifier: b.classifier}) {
			break
		}
	}

	results := pool.Wait()

	out := make([]*QueryResult, len(queries))
	for i, q := range queries {
		if i < len(results) && results[i] != nil {
			out[i] = results[i].(*QueryResult)
			continue
		}
		err := errNotRun
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = fmt.Errorf("%w: %w", errNotRun, ctxErr)
		}
		out[i] = &QueryResult{Query: q, Error: err}
	}
	return out
}

// ProcessFile reads queries from a file and classifies them
func (b *BatchProcessor) ProcessFile(ctx context.Context, filePath string) ([]*QueryResult, error) {
	queries, err := ReadQueriesFromFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read queries: %w", err)
	}

	return b.ProcessQueries(ctx, queries), nil
}

// ReadQueriesFromFile reads one query per line. Blank lines and lines
// starting with # are skipped; repeated queries are kept once.
func ReadQueriesFromFile(filePath string) ([]string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var queries []string
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := strings.TrimSpace(strings.TrimPrefix(scanner.Text(), "\ufeff"))

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if !seen[line] {
			seen[line] = true
			queries = append(queries, line)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}

	return queries, nil
}

// Summary counts batch outcomes
type Summary struct {
	Total     int
	Corrected int // Runs that finished both stages
	Changed   int // Corrected runs where correction revised generation
	Empty     int // Queries without classifiable entities
	Failed    int
}

// Summarize counts outcomes over results
func Summarize(results []*QueryResult) Summary {
	s := Summary{Total: len(results)}
	for _, r := range results {
		switch {
		case r.Error != nil:
			s.Failed++
		case r.Run == nil:
		case r.Run.IsEmpty():
			s.Empty++
		case r.Run.Stage == classify.StageCorrected:
			s.Corrected++
			if r.Run.Changed {
				s.Changed++
			}
		}
	}
	return s
}
