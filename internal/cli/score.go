package cli

import (
	"fmt"
	"os"

	"github.com/ppiankov/entrole/internal/codec"
	"github.com/ppiankov/entrole/internal/dataset"
	"github.com/ppiankov/entrole/internal/model"
	"github.com/ppiankov/entrole/internal/score"
	"github.com/spf13/cobra"
)

var (
	goldFile  string
	scoreJSON string
)

// sampleScore is one line of the score report
type sampleScore struct {
	Question   string          `json:"question"`
	Prediction string          `json:"prediction"`
	Gold       string          `json:"gold"`
	Agreement  model.Agreement `json:"agreement"`
	Missing    bool            `json:"missing,omitempty"`
}

// scoreCmd represents the score command
var scoreCmd = &cobra.Command{
	Use:   "score <predictions.jsonl>",
	Short: "Score predicted roles against a gold dataset",
	Long: `Score compares the roles in a predictions dataset with a gold dataset,
matching records by question. Each record is scored by per-id F1; the
structured gold (gold_struct / format_output) wins over the wire string
(gold / output) when both are present.

Gold questions without a prediction score 0.

Example:
  entrole score predictions.jsonl --gold gold.jsonl
  entrole score predictions.jsonl --gold gold.jsonl --json scores.json`,
	Args: cobra.ExactArgs(1),
	RunE: runScore,
}

func init() {
	rootCmd.AddCommand(scoreCmd)

	scoreCmd.Flags().StringVar(&goldFile, "gold", "", "gold dataset (.jsonl)")
	scoreCmd.Flags().StringVar(&scoreJSON, "json", "", "write per-sample scores as JSON to this path")
	_ = scoreCmd.MarkFlagRequired("gold")
}

func runScore(cmd *cobra.Command, args []string) error {
	predicted, err := dataset.Load(args[0])
	if err != nil {
		return err
	}
	gold, err := dataset.Load(goldFile)
	if err != nil {
		return err
	}

	predictions := make(map[string]string, len(predicted))
	for _, s := range predicted {
		predictions[s.Question] = predictionOf(s)
	}

	scorer := score.NewScorer()
	scores := make([]sampleScore, 0, len(gold))
	agreements := make([]model.Agreement, 0, len(gold))
	missing := 0

	for _, g := range gold {
		ref := g.Reference()
		if !ref.Exists() {
			continue
		}

		prediction, ok := predictions[g.Question]
		if !ok {
			missing++
		}
		agreement := scorer.Score(prediction, ref)
		agreements = append(agreements, agreement)
		scores = append(scores, sampleScore{
			Question:   g.Question,
			Prediction: prediction,
			Gold:       goldWire(ref),
			Agreement:  agreement,
			Missing:    !ok,
		})

		if verbose {
			fmt.Fprintf(os.Stderr, "  %.3f  %s\n", agreement.Score, g.Question)
		}
	}

	summary := score.Summarize(agreements)

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Role Agreement\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Samples:     %d\n", summary.Samples)
	fmt.Fprintf(os.Stderr, "  Mean F1:     %.4f\n", summary.MeanScore)
	fmt.Fprintf(os.Stderr, "  Perfect:     %d\n", summary.Perfect)
	fmt.Fprintf(os.Stderr, "  Zero:        %d\n", summary.Zero)
	fmt.Fprintf(os.Stderr, "  Unmatched:   %d\n", missing)
	fmt.Fprintf(os.Stderr, "\n")

	if scoreJSON != "" {
		return writeJSONFile(scoreJSON, scores)
	}
	return nil
}

// predictionOf reads the predicted wire string of a record, rebuilding it
// from the structured output when the wire string is absent
func predictionOf(s dataset.Sample) string {
	if s.Gold != "" {
		return s.Gold
	}
	return codec.EncodeBundle(s.GoldStruct)
}

func goldWire(g score.Gold) string {
	if g.Struct != nil {
		return codec.EncodeBundle(g.Struct)
	}
	return g.Wire
}
