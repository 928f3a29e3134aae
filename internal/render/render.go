// Package render formats loading state for terminal output.
package render

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/dusk-indust/studyprogress/internal/observer"
	"github.com/dusk-indust/studyprogress/internal/pipeline"
	"github.com/dusk-indust/studyprogress/internal/progress"
)

// FormatStep formats one stage for display:
//
//	○ Uploading file (pending)
//	● Analyzing content...
//	✓ Generating study guide complete
func FormatStep(stage pipeline.Stage, status pipeline.Status) string {
	switch status {
	case pipeline.StatusPending:
		return fmt.Sprintf("  ○ %s (pending)", stage.Label())
	case pipeline.StatusInProgress:
		return fmt.Sprintf("  ● %s...", stage.Label())
	case pipeline.StatusCompleted:
		return fmt.Sprintf("  ✓ %s complete", stage.Label())
	case pipeline.StatusSkipped:
		return fmt.Sprintf("  - %s skipped", stage.Label())
	case pipeline.StatusError:
		return fmt.Sprintf("  ✗ %s failed", stage.Label())
	default:
		return fmt.Sprintf("  ? %s (unknown status)", stage.Label())
	}
}

// FormatHeader formats the workspace header line.
// Returns: "[{workspace}] {runStatus}: {currentStep}"
func FormatHeader(workspace string, run progress.RunStatus, currentStep string) string {
	if workspace == "" {
		workspace = "-"
	}
	if currentStep == "" {
		return fmt.Sprintf("[%s] %s", workspace, run)
	}
	return fmt.Sprintf("[%s] %s: %s", workspace, run, currentStep)
}

// View writes the full progress block for v. run supplies the per-stage
// statuses and run metadata.
func View(w io.Writer, v observer.View, run progress.AnalysisProgress) error {
	var b strings.Builder

	b.WriteString(FormatHeader(v.Workspace, run.Status, v.State.CurrentStep))
	b.WriteByte('\n')
	if run.Filename != "" {
		fmt.Fprintf(&b, "  file: %s", run.Filename)
		if run.FileType != "" {
			fmt.Fprintf(&b, " (%s)", run.FileType)
		}
		b.WriteByte('\n')
	}

	for _, st := range pipeline.Stages {
		status := pipeline.StatusPending
		if sp, ok := run.Steps[st]; ok {
			status = sp.Status
		}
		b.WriteString(FormatStep(st, status))
		b.WriteByte('\n')
	}

	if kinds := artifactKinds(v.State); len(kinds) > 0 {
		fmt.Fprintf(&b, "  artifacts: %s\n", strings.Join(kinds, ", "))
	}
	for _, e := range v.State.Errors {
		fmt.Fprintf(&b, "  error: %s\n", e)
	}
	if !v.Visible {
		b.WriteString("  (overlay hidden)\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func artifactKinds(ls progress.LoadingState) []string {
	kinds := make([]string, 0, len(ls.CompletedArtifacts))
	for k := range ls.CompletedArtifacts {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)
	return kinds
}
