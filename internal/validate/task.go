package validate

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ppiankov/entrole/internal/model"
)

// ErrMissingField is returned when a task lacks a field needed before any
// model call
var ErrMissingField = errors.New("missing required field")

// Task checks that a classification task carries a question and an entity
// bundle. An empty bundle is allowed; a nil one is not.
func Task(question string, entities *model.EntityBundle) error {
	if strings.TrimSpace(question) == "" {
		return fmt.Errorf("%w: question", ErrMissingField)
	}
	if entities == nil {
		return fmt.Errorf("%w: entities", ErrMissingField)
	}
	return nil
}
