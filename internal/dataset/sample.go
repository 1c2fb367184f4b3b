// Package dataset reads and writes the JSONL files that carry questions,
// their entities and reference role assignments.
package dataset

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ppiankov/entrole/internal/model"
	"github.com/ppiankov/entrole/internal/score"
)

const maxLineBytes = 16 << 20

// Sample is one task with optional references
type Sample struct {
	Question string              `json:"question"`
	Entities *model.EntityBundle `json:"entities"`

	// Gold is a reference wire string (from "gold", else "output")
	Gold string `json:"gold,omitempty"`
	// GoldStruct is a role-annotated bundle (from "gold_struct", else "format_output")
	GoldStruct *model.EntityBundle `json:"gold_struct,omitempty"`
	// HumanScore is the raw feedback value, read with score.HumanScore
	HumanScore any `json:"human_score,omitempty"`
}

// Reference returns the sample's gold in scorer form
func (s *Sample) Reference() score.Gold {
	return score.Gold{Wire: s.Gold, Struct: s.GoldStruct}
}

// rawSample accepts both the nested {"input": {...}} and the flat layout
type rawSample struct {
	Input *struct {
		Question *string         `json:"question"`
		Entities json.RawMessage `json:"entities"`
	} `json:"input"`

	Question     *string         `json:"question"`
	Entities     json.RawMessage `json:"entities"`
	Gold         *string         `json:"gold"`
	Output       *string         `json:"output"`
	GoldStruct   json.RawMessage `json:"gold_struct"`
	FormatOutput json.RawMessage `json:"format_output"`
	HumanScore   json.RawMessage `json:"human_score"`
}

// Load reads samples from a JSONL file
func Load(path string) ([]Sample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	samples, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return samples, nil
}

// Read parses JSONL samples; blank lines are skipped
func Read(r io.Reader) ([]Sample, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var samples []Sample
	line := 0
	for scanner.Scan() {
		line++
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 {
			continue
		}

		sample, err := ParseSample(text)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		samples = append(samples, *sample)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	return samples, nil
}

// ParseSample decodes one JSONL line. Values inside "input" win over
// top-level ones; gold falls back to output and gold_struct to format_output.
func ParseSample(data []byte) (*Sample, error) {
	var raw rawSample
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse sample: %w", err)
	}

	s := &Sample{}
	question, entities := raw.Question, raw.Entities
	if raw.Input != nil {
		if raw.Input.Question != nil && *raw.Input.Question != "" {
			question = raw.Input.Question
		}
		if !isNull(raw.Input.Entities) {
			entities = raw.Input.Entities
		}
	}
	if question != nil {
		s.Question = *question
	}

	var err error
	if s.Entities, err = bundle(entities); err != nil {
		return nil, fmt.Errorf("entities: %w", err)
	}

	switch {
	case raw.Gold != nil:
		s.Gold = *raw.Gold
	case raw.Output != nil:
		s.Gold = *raw.Output
	}

	goldStruct := raw.GoldStruct
	if isNull(goldStruct) {
		goldStruct = raw.FormatOutput
	}
	if s.GoldStruct, err = bundle(goldStruct); err != nil {
		return nil, fmt.Errorf("gold_struct: %w", err)
	}

	if !isNull(raw.HumanScore) {
		dec := json.NewDecoder(bytes.NewReader(raw.HumanScore))
		dec.UseNumber()
		if err := dec.Decode(&s.HumanScore); err != nil {
			return nil, fmt.Errorf("human_score: %w", err)
		}
	}

	return s, nil
}

// Tasks turns samples into the question/entities pairs a classifier needs,
// dropping samples without a question or entities
func Tasks(samples []Sample) (valid []Sample, skipped int) {
	for _, s := range samples {
		if s.Question == "" || s.Entities == nil {
			skipped++
			continue
		}
		valid = append(valid, s)
	}
	return valid, skipped
}

// ErrNotBundle is returned when an entities field is not an object
var ErrNotBundle = errors.New("expected an entity object")

func bundle(raw json.RawMessage) (*model.EntityBundle, error) {
	if isNull(raw) {
		return nil, nil
	}
	raw = bytes.TrimSpace(raw)
	if raw[0] != '{' {
		return nil, ErrNotBundle
	}

	var b model.EntityBundle
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func isNull(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}
