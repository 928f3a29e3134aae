package pipeline

// Stage identifies one step of the remote document-processing pipeline.
type Stage string

const (
	StageFileUpload   Stage = "fileUpload"
	StageFileAnalysis Stage = "fileAnalysis"
	StageStudyGuide   Stage = "studyGuide"
	StageFlashcards   Stage = "flashcards"
	StageWorksheet    Stage = "worksheet"
	StageCleanup      Stage = "cleanup"
)

// Stages lists every stage in rank order.
var Stages = [...]Stage{
	StageFileUpload,
	StageFileAnalysis,
	StageStudyGuide,
	StageFlashcards,
	StageWorksheet,
	StageCleanup,
}

var stageLabels = map[Stage]string{
	StageFileUpload:   "Uploading file",
	StageFileAnalysis: "Analyzing content",
	StageStudyGuide:   "Generating study guide",
	StageFlashcards:   "Generating flashcards",
	StageWorksheet:    "Generating worksheet",
	StageCleanup:      "Cleaning up",
}

// Rank returns the fixed display position of the stage (0-5), or -1 for an
// unknown stage. Rank is presentation only.
func (s Stage) Rank() int {
	for i, st := range Stages {
		if st == s {
			return i
		}
	}
	return -1
}

// Valid reports whether s is one of the known stages.
func (s Stage) Valid() bool {
	return s.Rank() >= 0
}

// Label returns the human-readable label shown while the stage runs.
func (s Stage) Label() string {
	if l, ok := stageLabels[s]; ok {
		return l
	}
	return "unknown"
}

func (s Stage) String() string {
	return string(s)
}

// Status is the state of a single stage within a run.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusSkipped    Status = "skipped"
	StatusError      Status = "error"
)

// Rank orders statuses along pending < in_progress < {completed, skipped, error}.
// The three terminal statuses share a rank. Unknown statuses rank -1.
func (s Status) Rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusInProgress:
		return 1
	case StatusCompleted, StatusSkipped, StatusError:
		return 2
	default:
		return -1
	}
}

// IsTerminal returns true if the status is a final state for the stage.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusSkipped, StatusError:
		return true
	}
	return false
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	return s.Rank() >= 0
}

// Done reports whether the stage finished without needing further work.
func (s Status) Done() bool {
	return s == StatusCompleted || s == StatusSkipped
}

// StageRank is the package-level form of Stage.Rank.
func StageRank(s Stage) int {
	return s.Rank()
}

// IsTerminal is the package-level form of Status.IsTerminal.
func IsTerminal(s Status) bool {
	return s.IsTerminal()
}
