package dataset

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"strings"

	"github.com/ppiankov/entrole/internal/classify"
	"github.com/ppiankov/entrole/internal/model"
)

// ErrNotJSONL is returned for output paths without a .jsonl suffix
var ErrNotJSONL = errors.New("output file must end in .jsonl")

// Input is the task half of a written record
type Input struct {
	Question string              `json:"question"`
	Entities *model.EntityBundle `json:"entities"`
}

// Unlabelled is a training record without reference output
type Unlabelled struct {
	Input Input `json:"input"`
}

// Labelled is a record whose output came from the two-stage classifier.
// Legacy holds the generation result when correction changed it.
type Labelled struct {
	Input        Input               `json:"input"`
	Output       string              `json:"output"`
	FormatOutput *model.EntityBundle `json:"format_output"`
	Legacy       *Legacy             `json:"legacy,omitempty"`
}

// Legacy is the superseded generation-stage result
type Legacy struct {
	Entities     *model.EntityBundle `json:"entities"`
	Output       string              `json:"output"`
	FormatOutput *model.EntityBundle `json:"format_output"`
}

// LabelledFromRun builds a record from a corrected run. Runs that ended
// empty or failed before correction report false.
func LabelledFromRun(run *classify.Run) (Labelled, bool) {
	if run == nil || run.Stage != classify.StageCorrected {
		return Labelled{}, false
	}

	rec := Labelled{
		Input:        Input{Question: run.Query, Entities: run.Entities},
		Output:       run.CorrectionOutput,
		FormatOutput: run.Final,
	}
	if run.Changed {
		rec.Legacy = &Legacy{
			Entities:     run.Entities,
			Output:       run.GenerationOutput,
			FormatOutput: run.GenerationBundle,
		}
	}
	return rec, true
}

// Encoder writes one JSON value per line with CJK text unescaped
type Encoder struct {
	w   *bufio.Writer
	enc *json.Encoder
}

// NewEncoder creates a JSONL encoder
func NewEncoder(w io.Writer) *Encoder {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	enc.SetEscapeHTML(false)
	return &Encoder{w: bw, enc: enc}
}

// Encode writes v followed by a newline
func (e *Encoder) Encode(v any) error {
	return e.enc.Encode(v)
}

// Flush writes buffered lines
func (e *Encoder) Flush() error {
	return e.w.Flush()
}

// WriteUnlabelled writes {"input": ...} records to a .jsonl file
func WriteUnlabelled(path string, records []Unlabelled) error {
	if err := checkJSONL(path); err != nil {
		return err
	}
	return writeJSONL(path, records)
}

// WriteLabelled writes records to a .jsonl file and the same records as an
// indented JSON array next to it (name.view.json) for reading
func WriteLabelled(path string, records []Labelled) error {
	if err := checkJSONL(path); err != nil {
		return err
	}
	if err := writeJSONL(path, records); err != nil {
		return err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if records == nil {
		records = []Labelled{}
	}
	if err := enc.Encode(records); err != nil {
		return fmt.Errorf("encode view: %w", err)
	}

	if err := os.WriteFile(ViewPath(path), buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write view: %w", err)
	}
	return nil
}

// ViewPath returns the readable companion of a .jsonl path
func ViewPath(path string) string {
	return strings.TrimSuffix(path, ".jsonl") + ".view.json"
}

// Split shuffles queries and cuts them at ratio into train and validation
// sets. A nil rng leaves the order unchanged.
func Split(queries []string, ratio float64, rng *rand.Rand) (train, val []string) {
	shuffled := append([]string(nil), queries...)
	if rng != nil {
		rng.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})
	}

	switch {
	case ratio < 0:
		ratio = 0
	case ratio > 1:
		ratio = 1
	}
	cut := int(float64(len(shuffled)) * ratio)
	return shuffled[:cut], shuffled[cut:]
}

// SampleQueries picks up to n queries. With an rng the pick is random, otherwise it
// is the first n. n <= 0 keeps everything.
func SampleQueries(queries []string, n int, rng *rand.Rand) []string {
	if n <= 0 || n >= len(queries) {
		return queries
	}
	if rng == nil {
		return queries[:n]
	}

	picked := make([]string, 0, n)
	for _, i := range rng.Perm(len(queries))[:n] {
		picked = append(picked, queries[i])
	}
	return picked
}

func checkJSONL(path string) error {
	if !strings.HasSuffix(path, ".jsonl") {
		return fmt.Errorf("%s: %w", path, ErrNotJSONL)
	}
	return nil
}

func writeJSONL[T any](path string, records []T) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}

	enc := NewEncoder(f)
	for i := range records {
		if err := enc.Encode(records[i]); err != nil {
			f.Close()
			return fmt.Errorf("encode record %d: %w", i, err)
		}
	}
	if err := enc.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("write output: %w", err)
	}
	return f.Close()
}
