package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/ppiankov/entrole/internal/extract"
	"github.com/spf13/cobra"
)

// normalizeCmd represents the normalize command
var normalizeCmd = &cobra.Command{
	Use:   "normalize <file|->",
	Short: "Normalize a raw NER response without calling any model",
	Long: `Normalize reads a raw NER service response (UTF-8, UTF-8 with BOM, or GBK)
and prints the typed, deduplicated entity bundle as JSON.

Example:
  entrole normalize ner.json
  curl -s -X POST $NER_URL -d @req.json | entrole normalize -`,
	Args: cobra.ExactArgs(1),
	RunE: runNormalize,
}

func init() {
	rootCmd.AddCommand(normalizeCmd)
}

func runNormalize(cmd *cobra.Command, args []string) error {
	var (
		raw []byte
		err error
	)
	if args[0] == "-" {
		raw, err = io.ReadAll(os.Stdin)
	} else {
		raw, err = os.ReadFile(args[0])
	}
	if err != nil {
		return fmt.Errorf("read input: %w", err)
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

	result, err := extract.NewNormalizer(logger).NormalizeBytes(raw)
	if err != nil {
		return fmt.Errorf("normalize failed: %w", err)
	}

	if err := writeJSONFile("-", result.Bundle); err != nil {
		return err
	}

	if verbose {
		fmt.Fprintf(os.Stderr, "✓ %d enterprises, %d times, %d persons\n",
			len(result.Bundle.Enterprises), len(result.Bundle.Times), len(result.Bundle.Persons))
		for _, loc := range result.Locations {
			fmt.Fprintf(os.Stderr, "  location:  %s (%s)\n", loc.Location, loc.ID)
		}
		for _, ref := range result.References {
			fmt.Fprintf(os.Stderr, "  reference: %s\n", ref)
		}
	}
	return nil
}
