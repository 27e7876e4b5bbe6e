package models

// StepKind identifies the action a step performs.
type StepKind string

const (
	StepKindCheckout         StepKind = "checkout"
	StepKindRestoreCache     StepKind = "restore-cache"
	StepKindRunCommand       StepKind = "run-command"
	StepKindSaveCache        StepKind = "save-cache"
	StepKindStoreTestResults StepKind = "store-test-results"
	StepKindStoreArtifacts   StepKind = "store-artifacts"
)

// KnownStepKinds lists every step kind the engine understands.
var KnownStepKinds = []StepKind{
	StepKindCheckout,
	StepKindRestoreCache,
	StepKindRunCommand,
	StepKindSaveCache,
	StepKindStoreTestResults,
	StepKindStoreArtifacts,
}

// Step is a single action within a job. Only the parameters matching the
// step's kind are set; the definition parser enforces that.
//
// A best-effort step executes even after an earlier step failed, and its own
// failure does not fail the job.
type Step struct {
	Name       string   `json:"name,omitempty"`
	Kind       StepKind `json:"kind" validate:"required"`
	BestEffort bool     `json:"best_effort,omitempty"`

	// run-command
	Command        string `json:"command,omitempty"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty" validate:"gte=0"`

	// restore-cache / save-cache. Key is a cache key template, for example
	// "deps-v1-{{ checksum \"environment.yml\" }}".
	Key   string   `json:"key,omitempty"`
	Paths []string `json:"paths,omitempty"`

	// store-test-results / store-artifacts
	Path        string `json:"path,omitempty"`
	Destination string `json:"destination,omitempty"`
}

// DisplayName returns the step's name, falling back to its kind.
func (s *Step) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}

	return string(s.Kind)
}

// KnownKind reports whether the step's kind is one the engine understands.
func (s *Step) KnownKind() bool {
	for _, kind := range KnownStepKinds {
		if s.Kind == kind {
			return true
		}
	}

	return false
}
