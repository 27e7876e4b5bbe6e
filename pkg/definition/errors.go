package definition

import (
	"errors"
	"fmt"
)

// ErrMalformedDefinition indicates the workflow definition document cannot be
// turned into a model. It is the only fatal, run-aborting condition: nothing
// executes when parsing fails.
var ErrMalformedDefinition = errors.New("malformed definition")

// DefinitionError wraps a parse failure with the location it was found at.
type DefinitionError struct {
	Workflow string // Workflow ID if applicable
	Job      string // Job ID if applicable
	Step     int    // Step index within the job, -1 when not step-scoped
	Message  string
}

func (e *DefinitionError) Error() string {
	switch {
	case e.Job != "" && e.Step >= 0:
		return fmt.Sprintf("malformed definition: job %s step %d: %s", e.Job, e.Step, e.Message)
	case e.Job != "":
		return fmt.Sprintf("malformed definition: job %s: %s", e.Job, e.Message)
	case e.Workflow != "":
		return fmt.Sprintf("malformed definition: workflow %s: %s", e.Workflow, e.Message)
	default:
		return "malformed definition: " + e.Message
	}
}

func (e *DefinitionError) Unwrap() error {
	return ErrMalformedDefinition
}

// IsMalformedDefinition checks if an error indicates an unusable definition.
func IsMalformedDefinition(err error) bool {
	return errors.Is(err, ErrMalformedDefinition)
}
