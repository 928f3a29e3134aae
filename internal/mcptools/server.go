package mcptools

// --- MCP Tool Types for the progress server mode (serve-mcp) ---
// These tools let an assistant follow a study-material run the same way the
// UI overlay does: bind to a workspace, read the loading state, reset it, or
// dismiss the overlay.

// ObserveWorkspaceInput is the input for the observe_workspace MCP tool.
type ObserveWorkspaceInput struct {
	WorkspaceID string `json:"workspaceId" jsonschema:"workspace to follow; empty stops observing"`
}

// GetProgressInput is the input for the get_progress MCP tool.
type GetProgressInput struct{}

// ResetProgressInput is the input for the reset_progress MCP tool.
type ResetProgressInput struct{}

// DismissOverlayInput is the input for the dismiss_overlay MCP tool.
type DismissOverlayInput struct{}

// ProgressOutput is the result shared by every progress tool.
type ProgressOutput struct {
	Workspace   string          `json:"workspace"`
	Visible     bool            `json:"visible"`
	IsAnalyzing bool            `json:"isAnalyzing"`
	CurrentStep string          `json:"currentStep"`
	RunStatus   string          `json:"runStatus"`
	Filename    string          `json:"filename,omitempty"`
	Steps       []StepSummary   `json:"steps"`
	Errors      []string        `json:"errors"`
	Artifacts   []ArtifactEntry `json:"artifacts"`
}

// StepSummary is one pipeline stage in display order.
type StepSummary struct {
	Stage  string `json:"stage"`
	Label  string `json:"label"`
	Status string `json:"status"`
	Done   bool   `json:"done"`
}

// ArtifactEntry describes a completed artifact without its payload.
type ArtifactEntry struct {
	Kind  string `json:"kind"`
	Bytes int    `json:"bytes"`
}
