package mcptools

import (
	"context"
	"fmt"
	"sort"

	"github.com/dusk-indust/studyprogress/internal/observer"
	"github.com/dusk-indust/studyprogress/internal/pipeline"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// ProgressService handles MCP tool calls against one Observer.
type ProgressService struct {
	obs *observer.Observer
}

// NewProgressService creates a ProgressService over obs.
func NewProgressService(obs *observer.Observer) *ProgressService {
	return &ProgressService{obs: obs}
}

// ObserveWorkspace binds the observer to a workspace and returns its state.
func (s *ProgressService) ObserveWorkspace(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ObserveWorkspaceInput,
) (*mcp.CallToolResult, ProgressOutput, error) {
	if _, err := s.obs.Observe(ctx, input.WorkspaceID); err != nil {
		return nil, ProgressOutput{}, fmt.Errorf("observe %s: %w", input.WorkspaceID, err)
	}
	return nil, s.output(), nil
}

// GetProgress returns the current loading state.
func (s *ProgressService) GetProgress(
	_ context.Context,
	_ *mcp.CallToolRequest,
	_ GetProgressInput,
) (*mcp.CallToolResult, ProgressOutput, error) {
	return nil, s.output(), nil
}

// ResetProgress starts a fresh run for the observed workspace.
func (s *ProgressService) ResetProgress(
	_ context.Context,
	_ *mcp.CallToolRequest,
	_ ResetProgressInput,
) (*mcp.CallToolResult, ProgressOutput, error) {
	s.obs.Reset()
	return nil, s.output(), nil
}

// DismissOverlay hides the overlay until the next event.
func (s *ProgressService) DismissOverlay(
	_ context.Context,
	_ *mcp.CallToolRequest,
	_ DismissOverlayInput,
) (*mcp.CallToolResult, ProgressOutput, error) {
	s.obs.Dismiss()
	return nil, s.output(), nil
}

func (s *ProgressService) output() ProgressOutput {
	view, run := s.obs.SnapshotWithRun()

	out := ProgressOutput{
		Workspace:   view.Workspace,
		Visible:     view.Visible,
		IsAnalyzing: view.State.IsAnalyzing,
		CurrentStep: view.State.CurrentStep,
		RunStatus:   string(run.Status),
		Filename:    run.Filename,
		Steps:       make([]StepSummary, 0, len(pipeline.Stages)),
		Errors:      append([]string{}, view.State.Errors...),
		Artifacts:   make([]ArtifactEntry, 0, len(view.State.CompletedArtifacts)),
	}
	for _, st := range pipeline.Stages {
		status := pipeline.StatusPending
		if sp, ok := run.Steps[st]; ok {
			status = sp.Status
		}
		out.Steps = append(out.Steps, StepSummary{
			Stage:  string(st),
			Label:  st.Label(),
			Status: string(status),
			Done:   view.State.Progress[st],
		})
	}

	for kind, payload := range view.State.CompletedArtifacts {
		out.Artifacts = append(out.Artifacts, ArtifactEntry{Kind: string(kind), Bytes: len(payload)})
	}
	sort.Slice(out.Artifacts, func(i, j int) bool {
		return out.Artifacts[i].Kind < out.Artifacts[j].Kind
	})
	return out
}
