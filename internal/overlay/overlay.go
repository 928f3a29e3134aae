// Package overlay decides whether the progress overlay is shown.
package overlay

import "github.com/dusk-indust/studyprogress/internal/progress"

// ShouldShow reports whether ls has anything worth showing: a run in flight,
// an error, or a completed artifact. A finished run stays visible until it is
// dismissed or reset.
func ShouldShow(ls progress.LoadingState) bool {
	return ls.IsAnalyzing || len(ls.Errors) > 0 || len(ls.CompletedArtifacts) > 0
}

// Visible combines ShouldShow with the facade's dismissed flag.
func Visible(ls progress.LoadingState, dismissed bool) bool {
	return ShouldShow(ls) && !dismissed
}
