package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/ppiankov/entrole/internal/classify"
	"github.com/ppiankov/entrole/internal/pipeline"
	"github.com/ppiankov/entrole/internal/plan"
	"github.com/spf13/cobra"
)

var (
	classifyTimeout time.Duration
	classifyOut     string
	showPlan        bool
)

// classifyCmd represents the classify command
var classifyCmd = &cobra.Command{
	Use:   "classify <query>",
	Short: "Classify the entity roles of a single query",
	Long: `Classify runs one query through the full pipeline:
- Fetch entities from the NER service
- Normalize them into enterprises, times and persons
- Ask the generation model for roles
- Ask the correction model to review them

The final wire string is printed to stdout, the role-annotated entities and
the search plan to stderr.

Example:
  entrole classify "最近5年恒生电子年报中关于战略的描述"
  entrole classify "贵州茅台2024年年报" --out run.json
  entrole classify "钟才平元旦之后发布的研报" --plan=false`,
	Args: cobra.ExactArgs(1),
	RunE: runClassify,
}

func init() {
	rootCmd.AddCommand(classifyCmd)

	classifyCmd.Flags().DurationVar(&classifyTimeout, "timeout", 5*time.Minute, "overall timeout")
	classifyCmd.Flags().StringVar(&classifyOut, "out", "", "write the full run record as JSON to this path")
	classifyCmd.Flags().BoolVar(&showPlan, "plan", true, "print the search plan")
}

func runClassify(cmd *cobra.Command, args []string) error {
	query := args[0]
	ctx, cancel := context.WithTimeout(context.Background(), classifyTimeout)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, closeLog, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = closeLog() }()

	p, err := pipeline.New(cfg, pipeline.Options{Logger: logger})
	if err != nil {
		return fmt.Errorf("create pipeline: %w", err)
	}

	if verbose {
		fmt.Fprintf(os.Stderr, "Classifying: %s\n", query)
		fmt.Fprintf(os.Stderr, "Generation: %s/%s\n", cfg.LLM.Generation.Provider, cfg.LLM.Generation.Model)
		fmt.Fprintf(os.Stderr, "Correction: %s/%s\n", cfg.LLM.Correction.Provider, cfg.LLM.Correction.Model)
		fmt.Fprintln(os.Stderr)
	}

	run, err := p.Classify(ctx, query)
	if err != nil {
		return fmt.Errorf("classify failed: %w", err)
	}

	if classifyOut != "" {
		if err := writeJSONFile(classifyOut, run); err != nil {
			return err
		}
	}

	if run.IsEmpty() {
		fmt.Fprintf(os.Stderr, "✗ No classifiable entities in query\n")
		return nil
	}

	fmt.Println(run.Output())

	if verbose {
		fmt.Fprintf(os.Stderr, "\n✓ Generation (%s, %v): %s\n", run.GenerationModel, run.GenerationLatency.Round(time.Millisecond), run.GenerationOutput)
		fmt.Fprintf(os.Stderr, "✓ Correction (%s, %v): %s\n", run.CorrectionModel, run.CorrectionLatency.Round(time.Millisecond), run.CorrectionOutput)
		if run.Changed {
			fmt.Fprintf(os.Stderr, "  correction revised the generation output\n")
		}
	}

	printRoles(os.Stderr, run)
	if showPlan {
		printPlan(os.Stderr, plan.Build(run.Query, run.Final))
	}
	return nil
}

func printRoles(w io.Writer, run *classify.Run) {
	b := run.Final
	fmt.Fprintf(w, "\nEntities:\n")
	for _, e := range b.Enterprises {
		fmt.Fprintf(w, "  %s  %-18s %-10s %s\n", e.ID, orNone(string(e.Role)), "enterprise", e.Name)
	}
	for _, t := range b.Times {
		fmt.Fprintf(w, "  %s  %-18s %-10s %s\n", t.ID, orNone(string(t.Role)), "time", t.Raw)
	}
	for _, p := range b.Persons {
		fmt.Fprintf(w, "  %s  %-18s %-10s %s\n", p.ID, orNone(string(p.Role)), "person", p.Name)
	}
}

func printPlan(w io.Writer, p *plan.Plan) {
	fmt.Fprintf(w, "\nSearch plan:\n")
	if !p.HasFilters() {
		fmt.Fprintf(w, "  filters:  (none)\n")
	}

	fields := make([]string, 0, len(p.Filters))
	for field := range p.Filters {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	for _, field := range fields {
		fmt.Fprintf(w, "  %-13s %s\n", field+":", strings.Join(p.Filters[field], ", "))
	}
	fmt.Fprintf(w, "  keywords:     %s\n", strings.Join(p.KeywordTexts(), ", "))
}

func orNone(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// writeJSONFile writes v as indented JSON; "-" means stdout
func writeJSONFile(path string, v any) (err error) {
	var w io.Writer = os.Stdout
	if path != "-" {
		f, createErr := os.Create(path)
		if createErr != nil {
			return fmt.Errorf("create %s: %w", path, createErr)
		}
		defer func() {
			if closeErr := f.Close(); closeErr != nil && err == nil {
				err = fmt.Errorf("close %s: %w", path, closeErr)
			}
		}()
		w = f
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode JSON: %w", err)
	}
	return nil
}
