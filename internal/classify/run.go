package classify

import (
	"time"

	"github.com/ppiankov/entrole/internal/model"
)

// Stage is a step of the classification state machine:
//
//	ner_fetched → normalized → (empty) | generated → corrected
type Stage string

const (
	StageNew        Stage = "new"
	StageNerFetched Stage = "ner_fetched"
	StageNormalized Stage = "normalized"
	StageEmpty      Stage = "empty" // Terminal, nothing to classify
	StageGenerated  Stage = "generated"
	StageCorrected  Stage = "corrected" // Terminal
)

// Run is the serializable state of one query moving through the classifier.
// Each stage only adds fields, so a Run can be persisted between stages and
// resumed with Generate or Correct.
type Run struct {
	ID    string `json:"id"`
	Query string `json:"query"`
	Stage Stage  `json:"stage"`

	// Entities is the normalized bundle without roles
	Entities *model.EntityBundle `json:"entities,omitempty"`

	GenerationOutput string              `json:"generation_output,omitempty"`
	GenerationBundle *model.EntityBundle `json:"generation_bundle,omitempty"`
	GenerationModel  string              `json:"generation_model,omitempty"`

	CorrectionOutput string `json:"correction_output,omitempty"`
	CorrectionModel  string `json:"correction_model,omitempty"`

	// Final is the role-annotated bundle; nil until the run is corrected
	Final *model.EntityBundle `json:"final,omitempty"`

	// Changed reports whether correction revised the generation output
	Changed bool `json:"changed"`

	GenerationLatency time.Duration `json:"generation_latency,omitempty"`
	CorrectionLatency time.Duration `json:"correction_latency,omitempty"`
}

// IsEmpty reports whether the run ended without entities to classify
func (r *Run) IsEmpty() bool {
	return r.Stage == StageEmpty
}

// Output returns the final wire string: the correction if present, otherwise
// the generation output
func (r *Run) Output() string {
	if r.Stage == StageCorrected {
		return r.CorrectionOutput
	}
	return r.GenerationOutput
}
