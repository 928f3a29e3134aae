package progress

import (
	"errors"
	"fmt"

	"github.com/dusk-indust/studyprogress/internal/diag"
	"github.com/dusk-indust/studyprogress/internal/pipeline"
)

// Reducer applies events to a State. It never mutates its input: a no-op
// event returns the same *State, any accepted change returns a new one.
type Reducer struct {
	sink diag.Sink
}

// NewReducer creates a Reducer reporting malformed events to sink.
// A nil sink discards reports.
func NewReducer(sink diag.Sink) *Reducer {
	if sink == nil {
		sink = diag.Nop{}
	}
	return &Reducer{sink: sink}
}

// Validate reports why ev cannot be applied to any state, or nil when the
// reducer would accept it.
func Validate(ev Event) error {
	switch ev := ev.(type) {
	case StageUpdate:
		if !ev.Stage.Valid() {
			return fmt.Errorf("%s: unknown stage %q", ev.Name(), ev.Stage)
		}
		if !ev.Status.Valid() {
			return fmt.Errorf("%s: unknown status %q for stage %s", ev.Name(), ev.Status, ev.Stage)
		}
	case OverallUpdate:
		if ev.Status != "" && !ev.Status.Valid() {
			return fmt.Errorf("%s: unknown run status %q", ev.Name(), ev.Status)
		}
		if ev.FileType != nil && !ev.FileType.Valid() {
			return fmt.Errorf("%s: unknown file type %q", ev.Name(), *ev.FileType)
		}
	case ArtifactReady:
		if !ev.Kind.Valid() {
			return fmt.Errorf("%s: unknown artifact kind %q", ev.Name(), ev.Kind)
		}
	case RunError, Reset:
	case nil:
		return errors.New("nil event")
	default:
		return fmt.Errorf("unsupported event %T", ev)
	}
	return nil
}

// Apply returns the state that results from delivering ev on top of s.
// A nil s is treated as NewState(). Events rejected by Validate are reported
// and leave s untouched.
func (r *Reducer) Apply(s *State, ev Event) *State {
	if s == nil {
		s = NewState()
	}
	if err := Validate(ev); err != nil {
		r.sink.Report(diag.KindMalformedEvent, err.Error())
		return s
	}

	switch ev := ev.(type) {
	case StageUpdate:
		return r.applyStage(s, ev)
	case OverallUpdate:
		return r.applyOverall(s, ev)
	case ArtifactReady:
		return r.applyArtifact(s, ev)
	case RunError:
		next := s.clone()
		next.Errors = append(next.Errors, ev.Message)
		next.Revision++
		return next
	default:
		next := NewState()
		next.Run = s.Run + 1
		next.Revision = s.Revision + 1
		return next
	}
}

// applyStage enforces monotonicity: a stage only moves to a strictly higher
// status rank, so the first terminal status delivered wins. ev is already
// validated.
func (r *Reducer) applyStage(s *State, ev StageUpdate) *State {
	cur, ok := s.Analysis.Steps[ev.Stage]
	if !ok {
		cur = StepProgress{Status: pipeline.StatusPending, Order: ev.Stage.Rank()}
	}
	if ev.Status.Rank() <= cur.Status.Rank() {
		return s
	}

	next := s.clone()
	cur.Status = ev.Status
	if ev.Order != nil {
		cur.Order = *ev.Order
	}
	cur.Revision++
	next.Analysis.Steps[ev.Stage] = cur
	next.Analysis.LastStage = ev.Stage
	next.Revision++
	return next
}

func (r *Reducer) applyOverall(s *State, ev OverallUpdate) *State {
	next := s.clone()
	a := &next.Analysis
	changed := false

	if ev.Filename != nil && *ev.Filename != a.Filename {
		a.Filename = *ev.Filename
		changed = true
	}
	if ev.FileType != nil && *ev.FileType != a.FileType {
		a.FileType = *ev.FileType
		changed = true
	}
	if ev.StartedAt != nil && !ev.StartedAt.Equal(a.StartedAt) {
		a.StartedAt = *ev.StartedAt
		changed = true
	}
	if ev.CompletedAt != nil && (a.CompletedAt == nil || !ev.CompletedAt.Equal(*a.CompletedAt)) {
		t := *ev.CompletedAt
		a.CompletedAt = &t
		changed = true
	}

	switch {
	case ev.Error != nil && *ev.Error != "":
		// An authoritative failure is terminal and logged even when repeated.
		a.Status = RunFailed
		a.Error = *ev.Error
		next.Errors = append(next.Errors, *ev.Error)
		changed = true
	case ev.Status != "" && ev.Status != a.Status && !a.Status.IsTerminal():
		a.Status = ev.Status
		changed = true
	}

	if !changed {
		return s
	}
	next.Revision++
	return next
}

func (r *Reducer) applyArtifact(s *State, ev ArtifactReady) *State {
	if s.Artifacts.Has(ev.Kind, ev.Payload) {
		return s
	}
	next := s.clone()
	next.Artifacts.Put(ev.Kind, ev.Payload)
	next.Revision++
	return next
}

// ApplyAll folds events over s from left to right.
func (r *Reducer) ApplyAll(s *State, events ...Event) *State {
	for _, ev := range events {
		s = r.Apply(s, ev)
	}
	return s
}
