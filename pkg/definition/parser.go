// Package definition parses workflow definition documents into the in-memory
// workflow model. Parsing is a pure transformation: it has no side effects
// and fails with ErrMalformedDefinition on any structural problem.
package definition

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/xeipuuv/gojsonschema"

	"github.com/dukex/conveyor/pkg/models"
)

type document struct {
	Workflows map[string]workflowDocument `json:"workflows"`
	Jobs      map[string]jobDocument      `json:"jobs"`
}

type workflowDocument struct {
	Jobs        []string `json:"jobs"`
	Concurrency int      `json:"concurrency"`
}

type jobDocument struct {
	Environment    map[string]string `json:"environment"`
	Steps          []*models.Step    `json:"steps"`
	Requires       []string          `json:"requires"`
	TimeoutSeconds int               `json:"timeout_seconds"`
}

// Parse turns a definition document into workflow models, one per workflow
// declared in the document, ordered by workflow identifier.
func Parse(data []byte) ([]*models.Workflow, error) {
	err := validateSchema(data)
	if err != nil {
		return nil, err
	}

	var doc document

	err = json.Unmarshal(data, &doc)
	if err != nil {
		return nil, &DefinitionError{Step: -1, Message: err.Error()}
	}

	for jobID, job := range doc.Jobs {
		err = validateJob(jobID, job)
		if err != nil {
			return nil, err
		}
	}

	workflowIDs := make([]string, 0, len(doc.Workflows))
	for id := range doc.Workflows {
		workflowIDs = append(workflowIDs, id)
	}

	sort.Strings(workflowIDs)

	validate := validator.New()
	workflows := make([]*models.Workflow, 0, len(workflowIDs))

	for _, workflowID := range workflowIDs {
		workflow, err := buildWorkflow(workflowID, doc.Workflows[workflowID], doc.Jobs)
		if err != nil {
			return nil, err
		}

		err = validate.Struct(workflow)
		if err != nil {
			return nil, &DefinitionError{Workflow: workflowID, Step: -1, Message: err.Error()}
		}

		workflows = append(workflows, workflow)
	}

	return workflows, nil
}

func validateSchema(data []byte) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(documentSchema),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return &DefinitionError{Step: -1, Message: err.Error()}
	}

	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, resultError := range result.Errors() {
			details = append(details, resultError.String())
		}

		return &DefinitionError{Step: -1, Message: strings.Join(details, "; ")}
	}

	return nil
}

func validateJob(jobID string, job jobDocument) error {
	if len(job.Steps) == 0 {
		return &DefinitionError{Job: jobID, Step: -1, Message: "step sequence is empty"}
	}

	for index, step := range job.Steps {
		err := validateStep(jobID, index, step)
		if err != nil {
			return err
		}
	}

	return nil
}

// validateStep enforces that a step carries the parameters its kind requires.
func validateStep(jobID string, index int, step *models.Step) error {
	if !step.KnownKind() {
		return &DefinitionError{
			Job:     jobID,
			Step:    index,
			Message: fmt.Sprintf("unknown step kind %q", step.Kind),
		}
	}

	missing := func(field string) error {
		return &DefinitionError{
			Job:     jobID,
			Step:    index,
			Message: fmt.Sprintf("%s step requires %q", step.Kind, field),
		}
	}

	switch step.Kind {
	case models.StepKindRunCommand:
		if step.Command == "" {
			return missing("command")
		}
	case models.StepKindRestoreCache:
		if step.Key == "" {
			return missing("key")
		}
	case models.StepKindSaveCache:
		if step.Key == "" {
			return missing("key")
		}

		if len(step.Paths) == 0 {
			return missing("paths")
		}
	case models.StepKindStoreTestResults:
		if step.Path == "" {
			return missing("path")
		}
	case models.StepKindStoreArtifacts:
		if step.Path == "" {
			return missing("path")
		}

		if step.Destination == "" {
			return missing("destination")
		}
	case models.StepKindCheckout:
		// No parameters.
	}

	return nil
}

func buildWorkflow(workflowID string, wf workflowDocument, jobs map[string]jobDocument) (*models.Workflow, error) {
	seen := make(map[string]bool, len(wf.Jobs))
	built := make([]*models.Job, 0, len(wf.Jobs))

	for _, jobID := range wf.Jobs {
		if seen[jobID] {
			return nil, &DefinitionError{
				Workflow: workflowID,
				Step:     -1,
				Message:  fmt.Sprintf("job identifier %q listed twice", jobID),
			}
		}

		seen[jobID] = true

		doc, ok := jobs[jobID]
		if !ok {
			return nil, &DefinitionError{
				Workflow: workflowID,
				Step:     -1,
				Message:  fmt.Sprintf("job %q is not defined", jobID),
			}
		}

		built = append(built, &models.Job{
			ID:             jobID,
			Environment:    doc.Environment,
			Steps:          doc.Steps,
			Requires:       doc.Requires,
			TimeoutSeconds: doc.TimeoutSeconds,
		})
	}

	for _, job := range built {
		for _, required := range job.Requires {
			if !seen[required] {
				return nil, &DefinitionError{
					Workflow: workflowID,
					Job:      job.ID,
					Step:     -1,
					Message:  fmt.Sprintf("requires unknown job %q", required),
				}
			}
		}
	}

	err := checkAcyclic(workflowID, built)
	if err != nil {
		return nil, err
	}

	return &models.Workflow{
		ID:          workflowID,
		Jobs:        built,
		Concurrency: wf.Concurrency,
	}, nil
}

// checkAcyclic rejects dependency cycles with a depth-first walk over the
// requires edges.
func checkAcyclic(workflowID string, jobs []*models.Job) error {
	const (
		visiting = 1
		done     = 2
	)

	byID := make(map[string]*models.Job, len(jobs))
	for _, job := range jobs {
		byID[job.ID] = job
	}

	state := make(map[string]int, len(jobs))

	var visit func(id string) error

	visit = func(id string) error {
		switch state[id] {
		case visiting:
			return &DefinitionError{
				Workflow: workflowID,
				Job:      id,
				Step:     -1,
				Message:  "dependency cycle detected",
			}
		case done:
			return nil
		}

		state[id] = visiting

		for _, required := range byID[id].Requires {
			err := visit(required)
			if err != nil {
				return err
			}
		}

		state[id] = done

		return nil
	}

	for _, job := range jobs {
		err := visit(job.ID)
		if err != nil {
			return err
		}
	}

	return nil
}
