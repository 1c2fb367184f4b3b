package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ppiankov/entrole/internal/classify"
	"github.com/ppiankov/entrole/internal/dataset"
	"github.com/ppiankov/entrole/internal/llm"
	"github.com/ppiankov/entrole/internal/model"
	"github.com/ppiankov/entrole/internal/score"
)

// fakeProvider answers every prompt through reply and records the prompts
type fakeProvider struct {
	mu      sync.Mutex
	reply   func(prompt string) string
	prompts []string
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) IsAvailable(context.Context) bool { return true }

func (f *fakeProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.prompts = append(f.prompts, req.Prompt)
	f.mu.Unlock()
	return &llm.CompletionResponse{Content: f.reply(req.Prompt), Model: req.Model}, nil
}

func (f *fakeProvider) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

func constant(s string) *fakeProvider {
	return &fakeProvider{reply: func(string) string { return s }}
}

// fakeNer returns canned bodies per query
type fakeNer struct {
	bodies map[string]string
}

func (f *fakeNer) Fetch(_ context.Context, query string) ([]byte, error) {
	body, ok := f.bodies[query]
	if !ok {
		return nil, errors.New("upstream unavailable")
	}
	return []byte(body), nil
}

const moutaiPayload = `{"data": [
	{"entity": "贵州茅台", "nerType": "enterprise", "type": "stockCN", "id": "600519.SH"},
	{"entity": "2024年", "nerType": "time"},
	{"entity": "上海", "nerType": "location"},
	{"entity": "年报", "nerType": "docType", "id": "report"}
]}`

func testConfig(mode string) *model.Config {
	cfg := model.DefaultConfig()
	cfg.Pacer.IntervalSeconds = 0
	cfg.Scoring.EvalMode = mode
	cfg.Scoring.Goal = "识别实体角色"
	return cfg
}

func newTestPipeline(t *testing.T, cfg *model.Config, opts Options) *Pipeline {
	t.Helper()
	if opts.NER == nil {
		opts.NER = &fakeNer{bodies: map[string]string{"贵州茅台2024年年报": moutaiPayload}}
	}
	p, err := New(cfg, opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return p
}

func goldSample(question, gold string) dataset.Sample {
	return dataset.Sample{
		Question: question,
		Entities: &model.EntityBundle{
			CurrentDate: "2026-01-01",
			Enterprises: []model.Enterprise{{ID: "E1", Name: "贵州茅台", Codes: []string{"600519.SH"}}},
			Times:       []model.TimeEntity{{ID: "T1", Raw: "2024年"}},
			Persons:     []model.Person{},
		},
		Gold: gold,
	}
}

func TestNew_RejectsUnknownEvalMode(t *testing.T) {
	_, err := New(testConfig("vibes"), Options{
		NER:        &fakeNer{},
		Generation: constant(""),
		Correction: constant(""),
	})
	if err == nil {
		t.Fatal("Expected error for unknown eval mode")
	}
}

func TestNew_JudgeModeRequiresJudgeModel(t *testing.T) {
	cfg := testConfig("judge")
	cfg.LLM.Judge.APIKey = ""

	_, err := New(cfg, Options{
		NER:        &fakeNer{},
		Generation: constant(""),
		Correction: constant(""),
	})
	if !errors.Is(err, llm.ErrAPIKeyRequired) {
		t.Fatalf("Expected ErrAPIKeyRequired, got %v", err)
	}
}

func TestNew_JudgeOptionalOtherwise(t *testing.T) {
	cfg := testConfig("llm")
	cfg.LLM.Judge.APIKey = ""

	p := newTestPipeline(t, cfg, Options{Generation: constant(""), Correction: constant("")})
	if p.Judge() != nil {
		t.Error("Expected no judge without judge credentials")
	}
	if p.Rewarder().Mode() != score.EvalLLM {
		t.Errorf("Expected llm mode, got %s", p.Rewarder().Mode())
	}
}

func TestNew_PacerIntervalFromConfig(t *testing.T) {
	cfg := testConfig("llm")
	cfg.Pacer.IntervalSeconds = 1.5

	p := newTestPipeline(t, cfg, Options{Generation: constant(""), Correction: constant("")})
	if got := p.PacerInterval(); got != 1500*time.Millisecond {
		t.Errorf("PacerInterval() = %v, want 1.5s", got)
	}
}

func TestNew_MissingGenerationCredentials(t *testing.T) {
	cfg := testConfig("llm")
	cfg.LLM.Generation.APIKey = ""

	_, err := New(cfg, Options{NER: &fakeNer{}, Correction: constant("")})
	if err == nil || !strings.Contains(err.Error(), "generation model") {
		t.Fatalf("Expected generation model error, got %v", err)
	}
}

func TestPipeline_Classify(t *testing.T) {
	gen := constant("")
	cor := constant("")
	p := newTestPipeline(t, testConfig("llm"), Options{Generation: gen, Correction: cor})

	run, err := p.Classify(context.Background(), "贵州茅台2024年年报")
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if run.Stage != classify.StageCorrected {
		t.Errorf("Expected corrected stage, got %s", run.Stage)
	}
	if len(run.Final.Enterprises) != 1 || len(run.Final.Times) != 1 {
		t.Errorf("Unexpected final bundle: %+v", run.Final)
	}
	if gen.calls() != 1 || cor.calls() != 1 {
		t.Errorf("Expected one call per stage, got %d/%d", gen.calls(), cor.calls())
	}
	if !strings.Contains(gen.prompts[0], "贵州茅台2024年年报") {
		t.Error("Expected the query in the generation prompt")
	}
}

func TestPipeline_ClassifyNerFailure(t *testing.T) {
	gen := constant("")
	p := newTestPipeline(t, testConfig("llm"), Options{Generation: gen, Correction: constant("")})

	_, err := p.Classify(context.Background(), "unknown query")
	if err == nil || !strings.Contains(err.Error(), "fetch NER") {
		t.Fatalf("Expected NER error, got %v", err)
	}
	if gen.calls() != 0 {
		t.Error("Expected no model call after NER failure")
	}
}

func TestPipeline_Normalize(t *testing.T) {
	p := newTestPipeline(t, testConfig("llm"), Options{Generation: constant(""), Correction: constant("")})

	result, err := p.Normalize(context.Background(), "贵州茅台2024年年报")
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}

	b := result.Bundle
	if len(b.Enterprises) != 1 || b.Enterprises[0].Name != "贵州茅台" {
		t.Errorf("Unexpected enterprises: %+v", b.Enterprises)
	}
	if len(b.Times) != 1 || b.Times[0].Raw != "2024年" {
		t.Errorf("Unexpected times: %+v", b.Times)
	}
	if len(result.Locations) != 1 || result.Locations[0].Location != "上海" {
		t.Errorf("Unexpected locations: %+v", result.Locations)
	}
	if len(result.References) == 0 || result.References[0] != "年报" {
		t.Errorf("Unexpected references: %v", result.References)
	}
}

func TestEvaluate_RewardsAgainstGold(t *testing.T) {
	gen := &fakeProvider{reply: func(prompt string) string {
		if strings.Contains(prompt, "q-perfect") {
			return "E1-subject-9|T1-filter_time-8"
		}
		return "E1-publisher-9"
	}}
	p := newTestPipeline(t, testConfig("llm"), Options{Generation: gen, Correction: constant("unused")})

	samples := []dataset.Sample{
		goldSample("q-perfect", "E1-subject-9|T1-filter_time-8"),
		goldSample("q-wrong", "E1-subject-9|T1-filter_time-8"),
		{Question: "q-missing-entities"},
	}

	evals := p.Evaluate(context.Background(), samples, nil, 2)
	if len(evals) != 3 {
		t.Fatalf("Expected 3 evaluations, got %d", len(evals))
	}

	if evals[0].Question != "q-perfect" || evals[0].Reward != 1 {
		t.Errorf("Expected perfect reward, got %+v", evals[0])
	}
	if evals[0].Agreement == nil || evals[0].Agreement.Matches != 2 {
		t.Errorf("Expected 2 matches, got %+v", evals[0].Agreement)
	}
	if evals[1].Reward != 0 {
		t.Errorf("Expected zero reward for wrong roles, got %v", evals[1].Reward)
	}
	if evals[2].Error == nil {
		t.Error("Expected error for sample without entities")
	}

	if rewards := Rewards(evals); len(rewards) != 2 {
		t.Errorf("Expected 2 rewards, got %v", rewards)
	}
	if gen.calls() != 2 {
		t.Errorf("Expected 2 generation calls, got %d", gen.calls())
	}
}

func TestRollout_IgnoresSampleRoles(t *testing.T) {
	gen := constant("E1-subject-9")
	p := newTestPipeline(t, testConfig("llm"), Options{Generation: gen, Correction: constant("")})

	sample := goldSample("q", "")
	sample.Entities.Enterprises[0].Role = model.RolePublisher

	eval := p.Rollout(context.Background(), sample, nil)
	if eval.Error != nil {
		t.Fatalf("Rollout() error = %v", eval.Error)
	}
	if strings.Contains(gen.prompts[0], `"role":`) {
		t.Error("Expected roles to be cleared before the rollout prompt")
	}
	if sample.Entities.Enterprises[0].Role != model.RolePublisher {
		t.Error("Expected the sample to be left untouched")
	}
	// No gold: the prediction is scored against itself
	if eval.Reward != 1 || eval.Agreement != nil {
		t.Errorf("Expected self-consistent reward without agreement, got %+v", eval)
	}
}

func TestRollout_CustomTemplate(t *testing.T) {
	gen := constant("E1-subject-9")
	p := newTestPipeline(t, testConfig("llm"), Options{Generation: gen, Correction: constant("")})

	tmpl := llm.NewTemplate("candidate", "目标:{goal} 问句:{question}")
	eval := p.Rollout(context.Background(), goldSample("茅台年报", "E1-subject-9"), tmpl)
	if eval.Error != nil {
		t.Fatal(eval.Error)
	}
	if gen.prompts[0] != "目标:识别实体角色 问句:茅台年报" {
		t.Errorf("Unexpected prompt: %q", gen.prompts[0])
	}
}

func TestEvaluate_HumanMode(t *testing.T) {
	p := newTestPipeline(t, testConfig("human"), Options{Generation: constant("E1-subject-9"), Correction: constant("")})

	rated := goldSample("rated", "E1-publisher-9")
	rated.HumanScore = "1.7"
	unrated := goldSample("unrated", "E1-subject-9")

	evals := p.Evaluate(context.Background(), []dataset.Sample{rated, unrated}, nil, 1)
	if evals[0].Reward != 1 {
		t.Errorf("Expected clamped human score 1, got %v", evals[0].Reward)
	}
	if evals[1].Reward != 0 {
		t.Errorf("Expected 0 without human score, got %v", evals[1].Reward)
	}
}

func TestEvaluate_JudgeMode(t *testing.T) {
	judge := constant("0.75")
	p := newTestPipeline(t, testConfig("judge"), Options{
		Generation: constant("E1-subject-9"),
		Correction: constant(""),
		Judge:      judge,
	})

	evals := p.Evaluate(context.Background(), []dataset.Sample{goldSample("q", "")}, nil, 1)
	if evals[0].Error != nil {
		t.Fatal(evals[0].Error)
	}
	if evals[0].Reward != 0.75 {
		t.Errorf("Expected judge reward 0.75, got %v", evals[0].Reward)
	}
	if judge.calls() != 1 || !strings.Contains(judge.prompts[0], "识别实体角色") {
		t.Errorf("Expected one judge call with the goal, got %v", judge.prompts)
	}
}

func TestEvaluate_Cancelled(t *testing.T) {
	p := newTestPipeline(t, testConfig("llm"), Options{Generation: constant("E1-subject-9"), Correction: constant("")})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	evals := p.Evaluate(ctx, []dataset.Sample{goldSample("a", ""), goldSample("b", "")}, nil, 1)
	for _, e := range evals {
		if e.Error == nil {
			t.Errorf("Expected error for %s after cancellation", e.Question)
		}
	}
	if len(Rewards(evals)) != 0 {
		t.Error("Expected no rewards after cancellation")
	}
}

func TestNormalizeQueries(t *testing.T) {
	p := newTestPipeline(t, testConfig("llm"), Options{Generation: constant(""), Correction: constant("")})

	queries := []string{"贵州茅台2024年年报", "unknown query", "贵州茅台2024年年报"}
	prepared := p.NormalizeQueries(context.Background(), queries, 2)
	if len(prepared) != 3 {
		t.Fatalf("Expected 3 results, got %d", len(prepared))
	}
	for i, r := range prepared {
		if r.Query != queries[i] {
			t.Errorf("Result %d out of order: %s", i, r.Query)
		}
	}
	if prepared[0].Error != nil || prepared[0].Result.Bundle.Len() != 2 {
		t.Errorf("Unexpected first result: %+v", prepared[0])
	}
	if prepared[1].Error == nil {
		t.Error("Expected error for unknown query")
	}
}

func TestNew_TemplatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "templates.yaml")
	content := "goal: 找出发布机构\ngeneration: \"{goal}|{question}\"\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := testConfig("llm")
	cfg.LLM.TemplatesFile = path
	gen := constant("")
	p := newTestPipeline(t, cfg, Options{Generation: gen, Correction: constant("")})

	if p.Goal() != "找出发布机构" {
		t.Errorf("Expected goal from file, got %q", p.Goal())
	}
	if _, err := p.Classify(context.Background(), "贵州茅台2024年年报"); err != nil {
		t.Fatal(err)
	}
	if gen.prompts[0] != "找出发布机构|贵州茅台2024年年报" {
		t.Errorf("Unexpected generation prompt: %q", gen.prompts[0])
	}
}

func TestPreparer_NeedsNoModelCredentials(t *testing.T) {
	cfg := testConfig("llm")
	cfg.LLM.Generation.APIKey = ""
	cfg.LLM.Correction.APIKey = ""

	prep := NewPreparer(cfg, Options{NER: &fakeNer{bodies: map[string]string{"q": moutaiPayload}}})
	result, err := prep.Normalize(context.Background(), "q")
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if result.Bundle.Len() != 2 {
		t.Errorf("Expected 2 entities, got %d", result.Bundle.Len())
	}
}

func TestNewJudge(t *testing.T) {
	cfg := testConfig("llm")
	cfg.LLM.Generation.APIKey = ""

	judgeModel := constant("0.4")
	judge, goal, err := NewJudge(cfg, Options{Judge: judgeModel})
	if err != nil {
		t.Fatalf("NewJudge() error = %v", err)
	}
	if goal != "识别实体角色" {
		t.Errorf("Unexpected goal: %q", goal)
	}

	got, err := judge.Evaluate(context.Background(), score.JudgeInput{Goal: goal, Question: "q", Output: "E1-subject-9"})
	if err != nil {
		t.Fatal(err)
	}
	if got != 0.4 {
		t.Errorf("Expected 0.4, got %v", got)
	}

	cfg.LLM.Judge.APIKey = ""
	if _, _, err := NewJudge(cfg, Options{}); !errors.Is(err, llm.ErrAPIKeyRequired) {
		t.Errorf("Expected ErrAPIKeyRequired, got %v", err)
	}
}
