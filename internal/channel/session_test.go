package channel

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/dusk-indust/studyprogress/internal/diag"
	"github.com/dusk-indust/studyprogress/internal/pipeline"
	"github.com/dusk-indust/studyprogress/internal/progress"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// eventLog collects events delivered by a session.
type eventLog struct {
	mu     sync.Mutex
	events []progress.Event
	spaces []string
}

func (l *eventLog) record(workspaceID string, ev progress.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
	l.spaces = append(l.spaces, workspaceID)
}

func (l *eventLog) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

func stageMsg(t *testing.T, s pipeline.Stage, status pipeline.Status) Message {
	t.Helper()
	data, err := json.Marshal(progress.StageUpdate{Stage: s, Status: status})
	require.NoError(t, err)
	return Message{Name: progress.EventStageUpdate, Data: data}
}

func TestSession_OpenDeliversDecodedEvents(t *testing.T) {
	hub := NewHub()
	sess := NewSession(hub)
	var log eventLog

	require.NoError(t, sess.Open(context.Background(), "w1", log.record))
	assert.Equal(t, StateOpen, sess.State())
	assert.Equal(t, "w1", sess.Workspace())
	assert.Equal(t, 1, hub.Subscribers("workspace-w1"))

	n, err := hub.Publish("workspace-w1", stageMsg(t, pipeline.StageFileUpload, pipeline.StatusInProgress))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.Equal(t, 1, log.len())
	assert.Equal(t, progress.StageUpdate{Stage: pipeline.StageFileUpload, Status: pipeline.StatusInProgress}, log.events[0])
	assert.Equal(t, "w1", log.spaces[0])
}

func TestSession_OpenSameWorkspaceIsNoop(t *testing.T) {
	hub := NewHub()
	sess := NewSession(hub)
	var log eventLog

	require.NoError(t, sess.Open(context.Background(), "w1", log.record))
	require.NoError(t, sess.Open(context.Background(), "w1", log.record))

	assert.Equal(t, 1, hub.Subscribers("workspace-w1"), "no duplicate subscription")
	_, _ = hub.Publish("workspace-w1", stageMsg(t, pipeline.StageFileUpload, pipeline.StatusCompleted))
	assert.Equal(t, 1, log.len())
}

func TestSession_SwitchWorkspaceTearsDownFirst(t *testing.T) {
	hub := NewHub()
	sess := NewSession(hub)
	var log eventLog

	require.NoError(t, sess.Open(context.Background(), "w1", log.record))
	require.NoError(t, sess.Open(context.Background(), "w2", log.record))

	assert.Equal(t, 0, hub.Subscribers("workspace-w1"))
	assert.Equal(t, 1, hub.Subscribers("workspace-w2"))

	n, _ := hub.Publish("workspace-w1", stageMsg(t, pipeline.StageFileUpload, pipeline.StatusCompleted))
	assert.Equal(t, 0, n)
	_, _ = hub.Publish("workspace-w2", stageMsg(t, pipeline.StageFileUpload, pipeline.StatusCompleted))
	require.Equal(t, 1, log.len())
	assert.Equal(t, "w2", log.spaces[0])
}

func TestSession_CloseIsIdempotent(t *testing.T) {
	hub := NewHub()
	sess := NewSession(hub)

	require.NoError(t, sess.Close())
	require.NoError(t, sess.Open(context.Background(), "w1", func(string, progress.Event) {}))
	require.NoError(t, sess.Close())
	require.NoError(t, sess.Close())

	assert.Equal(t, StateIdle, sess.State())
	assert.Equal(t, "", sess.Workspace())
	assert.Equal(t, 0, hub.Subscribers("workspace-w1"))
}

func TestSession_StaleHandlerDiscarded(t *testing.T) {
	hub := NewHub()
	sess := NewSession(hub)
	var log eventLog

	require.NoError(t, sess.Open(context.Background(), "w1", log.record))
	stale := sess.handler(sess.gen)
	require.NoError(t, sess.Open(context.Background(), "w2", log.record))

	stale(stageMsg(t, pipeline.StageFileUpload, pipeline.StatusCompleted))
	assert.Equal(t, 0, log.len())
}

func TestSession_SubscribeFailureReportedAndIdle(t *testing.T) {
	hub := NewHub()
	var rec diag.Recorder
	sess := NewSession(hub, WithSink(&rec))
	hub.FailNextSubscribe(errors.New("connection refused"))

	err := sess.Open(context.Background(), "w1", func(string, progress.Event) {})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, StateIdle, sess.State())
	assert.Equal(t, 1, rec.Count(diag.KindTransportError))

	// The caller decides to retry.
	require.NoError(t, sess.Open(context.Background(), "w1", func(string, progress.Event) {}))
	assert.Equal(t, StateOpen, sess.State())
}

func TestSession_MalformedMessageReported(t *testing.T) {
	hub := NewHub()
	var rec diag.Recorder
	sess := NewSession(hub, WithSink(&rec))
	var log eventLog
	require.NoError(t, sess.Open(context.Background(), "w1", log.record))

	_, _ = hub.Publish("workspace-w1", Message{Name: progress.EventStageUpdate, Data: json.RawMessage(`{"stage":`)})
	_, _ = hub.Publish("workspace-w1", Message{Name: "progress-tick", Data: json.RawMessage(`{}`)})

	assert.Equal(t, 0, log.len())
	assert.Equal(t, 1, rec.Count(diag.KindMalformedEvent), "unbound names never reach the session")
}

func TestSession_ReconnectRebindsHandlers(t *testing.T) {
	hub := NewHub()
	var rec diag.Recorder
	sess := NewSession(hub, WithSink(&rec))
	var log eventLog
	require.NoError(t, sess.Open(context.Background(), "w1", log.record))

	hub.SimulateError("workspace-w1", errors.New("stream reset"))
	hub.SimulateReconnect("workspace-w1")

	_, _ = hub.Publish("workspace-w1", Message{Name: progress.EventRunError, Data: json.RawMessage(`{"message":"x"}`)})
	assert.Equal(t, 1, log.len())
	assert.Equal(t, StateOpen, sess.State())
	assert.Equal(t, 1, rec.Count(diag.KindTransportError))
}

func TestSession_CustomPrefix(t *testing.T) {
	hub := NewHub()
	sess := NewSession(hub, WithPrefix("private-ws."))
	require.NoError(t, sess.Open(context.Background(), "abc", func(string, progress.Event) {}))
	assert.Equal(t, 1, hub.Subscribers("private-ws.abc"))
}

func TestSessionState_String(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "opening", StateOpening.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "closing", StateClosing.String())
	assert.Equal(t, "unknown", SessionState(42).String())
}
