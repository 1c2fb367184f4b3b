package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ppiankov/entrole/internal/model"
	"github.com/ppiankov/entrole/internal/pipeline"
	"github.com/ppiankov/entrole/internal/score"
	"github.com/spf13/cobra"
)

var (
	judgeQuestion string
	judgeEntities string
	judgeOutput   string
	judgeTimeout  time.Duration
)

// judgeCmd represents the judge command
var judgeCmd = &cobra.Command{
	Use:   "judge",
	Short: "Grade one prediction with the LLM judge",
	Long: `Judge asks the judge model to grade a role prediction from 0 to 1 when
no gold is available. The score is printed to stdout.

Judge scores are not reproducible; prefer "entrole score" whenever gold
exists.

Example:
  entrole judge --question "贵州茅台2024年年报" --entities bundle.json --output "A1B2-subject-9"`,
	Args: cobra.NoArgs,
	RunE: runJudge,
}

func init() {
	rootCmd.AddCommand(judgeCmd)

	judgeCmd.Flags().StringVar(&judgeQuestion, "question", "", "user query")
	judgeCmd.Flags().StringVar(&judgeEntities, "entities", "", "entity bundle JSON file (- for stdin)")
	judgeCmd.Flags().StringVar(&judgeOutput, "output", "", "predicted wire string")
	judgeCmd.Flags().DurationVar(&judgeTimeout, "timeout", 5*time.Minute, "overall timeout")
	_ = judgeCmd.MarkFlagRequired("question")
	_ = judgeCmd.MarkFlagRequired("output")
}

func runJudge(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), judgeTimeout)
	defer cancel()

	var entities *model.EntityBundle
	if judgeEntities != "" {
		b, err := readBundle(judgeEntities)
		if err != nil {
			return err
		}
		entities = b
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, closeLog, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = closeLog() }()

	judge, goal, err := pipeline.NewJudge(cfg, pipeline.Options{Logger: logger})
	if err != nil {
		return err
	}

	if verbose {
		fmt.Fprintf(os.Stderr, "Judge: %s/%s\n", cfg.LLM.Judge.Provider, cfg.LLM.Judge.Model)
	}

	result, err := judge.Evaluate(ctx, score.JudgeInput{
		Goal:     goal,
		Question: judgeQuestion,
		Entities: entities,
		Output:   judgeOutput,
	})
	if err != nil {
		return fmt.Errorf("judge failed: %w", err)
	}

	fmt.Printf("%.4f\n", result)
	return nil
}

func readBundle(path string) (*model.EntityBundle, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read entities: %w", err)
	}

	var b model.EntityBundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("parse entities: %w", err)
	}
	if b.IsEmpty() && b.CurrentDate == "" {
		return nil, errors.New("parse entities: no ner_enterprise, ner_time or ner_person lists")
	}
	return &b, nil
}
