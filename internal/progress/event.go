package progress

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dusk-indust/studyprogress/internal/pipeline"
)

// Wire names of the events delivered on a workspace channel.
const (
	EventStageUpdate   = "stage-update"
	EventOverallUpdate = "overall-update"
	EventArtifactReady = "artifact-ready"
	EventRunError      = "run-error"
	EventReset         = "reset"
)

// EventNames lists every event name a session binds a handler for.
var EventNames = [...]string{
	EventStageUpdate,
	EventOverallUpdate,
	EventArtifactReady,
	EventRunError,
	EventReset,
}

// ErrUnknownEvent is returned by Decode for an event name outside EventNames.
var ErrUnknownEvent = errors.New("progress: unknown event")

// Event is a single notification about a run. The set of implementations is
// closed; the caller will typically switch on the concrete type:
//
//	switch ev := event.(type) {
//	case StageUpdate:
//	case OverallUpdate:
//	case ArtifactReady:
//	case RunError:
//	case Reset:
//	}
type Event interface {
	// Name returns the wire name of the event.
	Name() string
	event()
}

// StageUpdate changes the status of exactly one stage.
type StageUpdate struct {
	Stage  pipeline.Stage  `json:"stage"`
	Status pipeline.Status `json:"status"`
	Order  *int            `json:"order,omitempty"`
}

// OverallUpdate carries run-level metadata. Nil fields are left unchanged.
type OverallUpdate struct {
	Status      RunStatus  `json:"status,omitempty"`
	Filename    *string    `json:"filename,omitempty"`
	FileType    *FileType  `json:"fileType,omitempty"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	Error       *string    `json:"error,omitempty"`
}

// ArtifactReady announces a completed output. Payload is opaque.
type ArtifactReady struct {
	Kind    ArtifactKind    `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// RunError appends a message to the run's error log.
type RunError struct {
	Message string `json:"message"`
}

// Reset starts a fresh logical run.
type Reset struct{}

func (StageUpdate) Name() string   { return EventStageUpdate }
func (OverallUpdate) Name() string { return EventOverallUpdate }
func (ArtifactReady) Name() string { return EventArtifactReady }
func (RunError) Name() string      { return EventRunError }
func (Reset) Name() string         { return EventReset }

func (StageUpdate) event()   {}
func (OverallUpdate) event() {}
func (ArtifactReady) event() {}
func (RunError) event()      {}
func (Reset) event()         {}

// Decode turns a named wire message into an Event. Structural problems
// (unknown name, invalid JSON) are errors; semantic checks such as unknown
// stages are left to the Reducer.
func Decode(name string, data []byte) (Event, error) {
	switch name {
	case EventStageUpdate:
		var ev StageUpdate
		return decodeInto(name, data, &ev)
	case EventOverallUpdate:
		var ev OverallUpdate
		return decodeInto(name, data, &ev)
	case EventArtifactReady:
		var ev ArtifactReady
		return decodeInto(name, data, &ev)
	case EventRunError:
		var ev RunError
		return decodeInto(name, data, &ev)
	case EventReset:
		return Reset{}, nil
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownEvent, name)
	}
}

func decodeInto[T Event](name string, data []byte, ev *T) (Event, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("progress: decode %s: empty payload", name)
	}
	if err := json.Unmarshal(data, ev); err != nil {
		return nil, fmt.Errorf("progress: decode %s: %w", name, err)
	}
	return *ev, nil
}

// Encode marshals the event payload for publishing on a channel.
func Encode(ev Event) ([]byte, error) {
	if _, ok := ev.(Reset); ok {
		return []byte("{}"), nil
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("progress: encode %s: %w", ev.Name(), err)
	}
	return data, nil
}
