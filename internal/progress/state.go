package progress

import (
	"encoding/json"
	"time"

	"github.com/dusk-indust/studyprogress/internal/pipeline"
)

// RunStatus is the coarse machine state of a run.
type RunStatus string

const (
	RunIdle       RunStatus = "idle"
	RunStarting   RunStatus = "starting"
	RunUploading  RunStatus = "uploading"
	RunAnalyzing  RunStatus = "analyzing"
	RunGenerating RunStatus = "generating"
	RunCompleted  RunStatus = "completed"
	RunFailed     RunStatus = "error"
)

// Valid reports whether s is a known run status.
func (s RunStatus) Valid() bool {
	switch s {
	case RunIdle, RunStarting, RunUploading, RunAnalyzing, RunGenerating, RunCompleted, RunFailed:
		return true
	}
	return false
}

// IsTerminal returns true once the run has finished, successfully or not.
func (s RunStatus) IsTerminal() bool {
	return s == RunCompleted || s == RunFailed
}

// FileType is the kind of document being processed.
type FileType string

const (
	FileImage FileType = "image"
	FilePDF   FileType = "pdf"
)

// Valid reports whether t is a known file type.
func (t FileType) Valid() bool {
	return t == FileImage || t == FilePDF
}

// StepProgress is the status of one stage within a run.
type StepProgress struct {
	Status pipeline.Status `json:"status"`
	Order  int             `json:"order"`

	// Revision counts accepted transitions for this stage.
	Revision int `json:"revision"`
}

// AnalysisProgress is the per-run record owned by the Reducer.
type AnalysisProgress struct {
	Status      RunStatus                       `json:"status"`
	Filename    string                          `json:"filename,omitempty"`
	FileType    FileType                        `json:"fileType,omitempty"`
	StartedAt   time.Time                       `json:"startedAt"`
	CompletedAt *time.Time                      `json:"completedAt,omitempty"`
	Error       string                          `json:"error,omitempty"`
	Steps       map[pipeline.Stage]StepProgress `json:"steps"`

	// LastStage is the most recently changed stage; empty before any change.
	LastStage pipeline.Stage `json:"lastStage,omitempty"`
}

// State is the full reducer state for one workspace.
type State struct {
	// Run is incremented by every Reset.
	Run       int
	Analysis  AnalysisProgress
	Errors    []string
	Artifacts Artifacts

	// Revision counts every accepted change since the state was created.
	Revision int
}

// NewState returns the empty initial state: every stage pending, run idle.
func NewState() *State {
	return &State{Analysis: newAnalysis()}
}

func newAnalysis() AnalysisProgress {
	steps := make(map[pipeline.Stage]StepProgress, len(pipeline.Stages))
	for _, s := range pipeline.Stages {
		steps[s] = StepProgress{Status: pipeline.StatusPending, Order: s.Rank()}
	}
	return AnalysisProgress{Status: RunIdle, Steps: steps}
}

// StepStatus returns the status of stage, pending when unknown.
func (s *State) StepStatus(stage pipeline.Stage) pipeline.Status {
	if sp, ok := s.Analysis.Steps[stage]; ok {
		return sp.Status
	}
	return pipeline.StatusPending
}

// clone returns a deep copy of s.
func (s *State) clone() *State {
	dst := *s

	dst.Analysis.Steps = make(map[pipeline.Stage]StepProgress, len(s.Analysis.Steps))
	for k, v := range s.Analysis.Steps {
		dst.Analysis.Steps[k] = v
	}

	if s.Analysis.CompletedAt != nil {
		t := *s.Analysis.CompletedAt
		dst.Analysis.CompletedAt = &t
	}

	if s.Errors != nil {
		dst.Errors = make([]string, len(s.Errors))
		copy(dst.Errors, s.Errors)
	}

	dst.Artifacts = s.Artifacts.Clone()
	return &dst
}

// LoadingState is the render-ready view exposed to UI collaborators.
type LoadingState struct {
	IsAnalyzing        bool                             `json:"isAnalyzing"`
	CurrentStep        string                           `json:"currentStep"`
	Progress           map[pipeline.Stage]bool          `json:"progress"`
	Errors             []string                         `json:"errors"`
	CompletedArtifacts map[ArtifactKind]json.RawMessage `json:"completedArtifacts"`
}

// EmptyLoadingState is the view of NewState.
func EmptyLoadingState() LoadingState {
	return NewState().Loading()
}

// Loading derives the externally observed view from s.
func (s *State) Loading() LoadingState {
	done := make(map[pipeline.Stage]bool, len(pipeline.Stages))
	for _, st := range pipeline.Stages {
		done[st] = s.StepStatus(st).Done()
	}

	errs := make([]string, len(s.Errors))
	copy(errs, s.Errors)

	return LoadingState{
		IsAnalyzing:        s.isAnalyzing(),
		CurrentStep:        s.currentStep(),
		Progress:           done,
		Errors:             errs,
		CompletedArtifacts: s.Artifacts.All(),
	}
}

func (s *State) isAnalyzing() bool {
	run := s.Analysis.Status
	if run.IsTerminal() {
		return false
	}
	if run != RunIdle {
		return true
	}

	// No run-level status yet: infer from the stages.
	touched, allTerminal := false, true
	for _, st := range pipeline.Stages {
		status := s.StepStatus(st)
		if status != pipeline.StatusPending {
			touched = true
		}
		if !status.IsTerminal() {
			allTerminal = false
		}
	}
	return touched && !allTerminal
}

// currentStep is the label of the furthest in-progress stage, falling back to
// the most recently changed one.
func (s *State) currentStep() string {
	best := -1
	var label string
	for _, st := range pipeline.Stages {
		if s.StepStatus(st) != pipeline.StatusInProgress {
			continue
		}
		if r := st.Rank(); r > best {
			best = r
			label = st.Label()
		}
	}
	if best >= 0 {
		return label
	}
	if s.Analysis.LastStage != "" {
		return s.Analysis.LastStage.Label()
	}
	return ""
}
