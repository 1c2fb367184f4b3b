package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/ppiankov/entrole/internal/dataset"
	"github.com/ppiankov/entrole/internal/llm"
	"github.com/ppiankov/entrole/internal/model"
	"github.com/ppiankov/entrole/internal/pipeline"
	"github.com/ppiankov/entrole/internal/score"
	"github.com/spf13/cobra"
)

var (
	promptFile  string
	evalMode    string
	evalJSON    string
	evalTimeout time.Duration
	evalWorkers int
)

// evaluateCmd represents the evaluate command
var evaluateCmd = &cobra.Command{
	Use:   "evaluate <dataset.jsonl>",
	Short: "Roll out a generation prompt over a dataset and report rewards",
	Long: `Evaluate runs one generation call per sample (no correction) and rewards
the output with the configured eval mode:

  llm    F1 against gold, or against the prediction's own entities without gold
  human  the sample's human_score, clamped to [0,1]
  judge  the LLM judge

Use --prompt to try a candidate generation template; it receives the
placeholders {question}, {entities} and {goal}.

Example:
  entrole evaluate val.jsonl
  entrole evaluate val.jsonl --prompt candidate.txt --json rollouts.json
  entrole evaluate val.jsonl --eval-mode judge`,
	Args: cobra.ExactArgs(1),
	RunE: runEvaluate,
}

func init() {
	rootCmd.AddCommand(evaluateCmd)

	evaluateCmd.Flags().StringVar(&promptFile, "prompt", "", "candidate generation template file")
	evaluateCmd.Flags().StringVar(&evalMode, "eval-mode", "", "override scoring.eval_mode (llm, human, judge)")
	evaluateCmd.Flags().StringVar(&evalJSON, "json", "", "write per-sample rollouts as JSON to this path")
	evaluateCmd.Flags().DurationVar(&evalTimeout, "timeout", time.Hour, "total timeout")
	evaluateCmd.Flags().IntVar(&evalWorkers, "concurrency", 0, "number of concurrent workers (default: concurrency.workers)")
}

// rollout is one line of the evaluate report
type rollout struct {
	Question   string           `json:"question"`
	Prediction string           `json:"prediction"`
	Reward     float64          `json:"reward"`
	Agreement  *model.Agreement `json:"agreement,omitempty"`
	Error      string           `json:"error,omitempty"`
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), evalTimeout)
	defer cancel()

	samples, err := dataset.Load(args[0])
	if err != nil {
		return err
	}
	samples, skipped := dataset.Tasks(samples)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if evalMode != "" {
		cfg.Scoring.EvalMode = evalMode
	}
	if evalWorkers > 0 {
		cfg.Concurrency.Workers = evalWorkers
	}
	logger, closeLog, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = closeLog() }()

	var tmpl *llm.Template
	if promptFile != "" {
		text, err := os.ReadFile(promptFile)
		if err != nil {
			return fmt.Errorf("read prompt: %w", err)
		}
		tmpl = llm.NewTemplate(promptFile, string(text))
	}

	p, err := pipeline.New(cfg, pipeline.Options{Logger: logger})
	if err != nil {
		return fmt.Errorf("create pipeline: %w", err)
	}

	fmt.Fprintf(os.Stderr, "⚙️  Rolling out %d samples (%d skipped, eval mode %s, %v between model calls)...\n",
		len(samples), skipped, p.Rewarder().Mode(), p.PacerInterval())

	evals := p.Evaluate(ctx, samples, tmpl, cfg.Concurrency.Workers)

	report := make([]rollout, 0, len(evals))
	var agreements []model.Agreement
	failed := 0
	for _, e := range evals {
		r := rollout{Question: e.Question, Prediction: e.Prediction, Reward: e.Reward, Agreement: e.Agreement}
		if e.Error != nil {
			failed++
			r.Error = e.Error.Error()
			fmt.Fprintf(os.Stderr, "✗ %s: %v\n", e.Question, e.Error)
		} else if verbose {
			fmt.Fprintf(os.Stderr, "✓ %.3f  %s → %s\n", e.Reward, e.Question, e.Prediction)
		}
		if e.Agreement != nil {
			agreements = append(agreements, *e.Agreement)
		}
		report = append(report, r)
	}

	rewards := pipeline.Rewards(evals)
	var mean float64
	for _, r := range rewards {
		mean += r
	}
	if len(rewards) > 0 {
		mean /= float64(len(rewards))
	}

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Evaluation Complete\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Samples:      %d\n", len(evals))
	fmt.Fprintf(os.Stderr, "  Failures:     %d\n", failed)
	fmt.Fprintf(os.Stderr, "  Mean reward:  %.4f\n", mean)
	if len(agreements) > 0 {
		summary := score.Summarize(agreements)
		fmt.Fprintf(os.Stderr, "  Mean gold F1: %.4f (%d with gold, %d perfect)\n", summary.MeanScore, summary.Samples, summary.Perfect)
	}
	fmt.Fprintf(os.Stderr, "\n")

	if evalJSON != "" {
		return writeJSONFile(evalJSON, report)
	}
	return nil
}
