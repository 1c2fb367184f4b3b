package worker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ppiankov/entrole/internal/classify"
)

// MockClassifier implements Classifier
type MockClassifier struct {
	FailOn map[string]bool
	Empty  map[string]bool
}

func (m *MockClassifier) Classify(ctx context.Context, query string) (*classify.Run, error) {
	time.Sleep(10 * time.Millisecond) // Simulate work
	run := &classify.Run{ID: "run-" + query, Query: query, Stage: classify.StageCorrected}
	switch {
	case m.FailOn[query]:
		run.Stage = classify.StageGenerated
		return run, errors.New("correction stage: upstream 503")
	case m.Empty[query]:
		run.Stage = classify.StageEmpty
	default:
		run.CorrectionOutput = "E1-subject-9"
		run.Changed = query == "changed"
	}
	return run, nil
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "queries.txt")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestBatchProcessor_ProcessQueries(t *testing.T) {
	processor := NewBatchProcessor(&MockClassifier{}, 2)

	queries := []string{"贵州茅台2024年年报", "中信证券的研报", "钟才平写的研报"}
	results := processor.ProcessQueries(context.Background(), queries)

	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}

	for i, res := range results {
		if res.Error != nil {
			t.Errorf("unexpected error for %s: %v", res.Query, res.Error)
		}
		if res.Query != queries[i] {
			t.Errorf("expected result %d for %q, got %q", i, queries[i], res.Query)
		}
		if res.Run == nil || res.Run.Output() != "E1-subject-9" {
			t.Errorf("expected corrected run for %s", res.Query)
		}
	}
}

func TestBatchProcessor_ProcessQueries_Error(t *testing.T) {
	processor := NewBatchProcessor(&MockClassifier{FailOn: map[string]bool{"bad": true}}, 2)

	results := processor.ProcessQueries(context.Background(), []string{"good", "bad", "good too"})

	if results[1].Error == nil {
		t.Error("expected error, got nil")
	}
	if results[1].Run == nil || results[1].Run.Stage != classify.StageGenerated {
		t.Error("expected partial run alongside the error")
	}
	if results[0].Error != nil || results[2].Error != nil {
		t.Error("a failed query should not affect the others")
	}
}

func TestBatchProcessor_ProcessQueries_Empty(t *testing.T) {
	processor := NewBatchProcessor(&MockClassifier{}, 2)

	results := processor.ProcessQueries(context.Background(), []string{})
	if len(results) != 0 {
		t.Errorf("expected 0 results, got %d", len(results))
	}
}

func TestBatchProcessor_ProcessQueries_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	processor := NewBatchProcessor(&MockClassifier{}, 1)
	results := processor.ProcessQueries(ctx, []string{"a", "b", "c"})

	if len(results) != 3 {
		t.Fatalf("expected one result per query, got %d", len(results))
	}
	for _, r := range results {
		if r.Error == nil && r.Run == nil {
			t.Errorf("query %q has neither a run nor an error", r.Query)
		}
	}
	if !errors.Is(results[2].Error, context.Canceled) && results[2].Run == nil {
		t.Errorf("expected skipped query to report cancellation, got %v", results[2].Error)
	}
}

func TestReadQueriesFromFile(t *testing.T) {
	content := "\ufeff最近5年恒生电子年报中关于战略的描述\n# comment\n中信证券的研报\n   \n  钟才平写的研报   "

	queries, err := ReadQueriesFromFile(writeTempFile(t, content))
	if err != nil {
		t.Fatalf("ReadQueriesFromFile failed: %v", err)
	}

	expected := []string{"最近5年恒生电子年报中关于战略的描述", "中信证券的研报", "钟才平写的研报"}
	if len(queries) != len(expected) {
		t.Fatalf("expected %d queries, got %d", len(expected), len(queries))
	}

	for i, q := range queries {
		if q != expected[i] {
			t.Errorf("expected query %s at index %d, got %s", expected[i], i, q)
		}
	}
}

func TestReadQueriesFromFile_NonExistent(t *testing.T) {
	_, err := ReadQueriesFromFile("non_existent_file.txt")
	if err == nil {
		t.Error("expected error for non-existent file, got nil")
	}
}

func TestReadQueriesFromFile_Deduplication(t *testing.T) {
	queries, err := ReadQueriesFromFile(writeTempFile(t, "中信证券的研报\n中信证券的研报\n"))
	if err != nil {
		t.Fatalf("ReadQueriesFromFile failed: %v", err)
	}

	if len(queries) != 1 {
		t.Errorf("expected 1 query after deduplication, got %d", len(queries))
	}
}

func TestQueryResult_GetError(t *testing.T) {
	r1 := &QueryResult{Query: "q", Error: nil}
	if r1.GetError() != nil {
		t.Errorf("expected nil error, got %v", r1.GetError())
	}

	expected := errors.New("classify failed")
	r2 := &QueryResult{Query: "q", Error: expected}
	if r2.GetError() != expected {
		t.Errorf("expected %v, got %v", expected, r2.GetError())
	}
}

func TestBatchProcessor_ProcessFile(t *testing.T) {
	path := writeTempFile(t, "a\nb\n# comment\n\nc\n")

	processor := NewBatchProcessor(&MockClassifier{}, 2)
	results, err := processor.ProcessFile(context.Background(), path)
	if err != nil {
		t.Fatalf("ProcessFile failed: %v", err)
	}

	if len(results) != 3 {
		t.Errorf("expected 3 results, got %d", len(results))
	}
}

func TestBatchProcessor_ProcessFile_NonExistent(t *testing.T) {
	processor := NewBatchProcessor(&MockClassifier{}, 2)

	_, err := processor.ProcessFile(context.Background(), "no_such_file.txt")
	if err == nil {
		t.Error("expected error for non-existent file, got nil")
	}
}

func TestSummarize(t *testing.T) {
	processor := NewBatchProcessor(&MockClassifier{
		FailOn: map[string]bool{"bad": true},
		Empty:  map[string]bool{"empty": true},
	}, 3)

	results := processor.ProcessQueries(context.Background(), []string{"ok", "changed", "bad", "empty"})
	s := Summarize(results)

	want := Summary{Total: 4, Corrected: 2, Changed: 1, Empty: 1, Failed: 1}
	if s != want {
		t.Errorf("expected %+v, got %+v", want, s)
	}
}
