package observer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/dusk-indust/studyprogress/internal/channel"
	"github.com/dusk-indust/studyprogress/internal/diag"
	"github.com/dusk-indust/studyprogress/internal/pipeline"
	"github.com/dusk-indust/studyprogress/internal/progress"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func publish(t *testing.T, hub *channel.Hub, workspaceID string, ev progress.Event) int {
	t.Helper()
	data, err := progress.Encode(ev)
	require.NoError(t, err)
	n, err := hub.Publish(channel.ChannelName(channel.DefaultPrefix, workspaceID), channel.Message{Name: ev.Name(), Data: data})
	require.NoError(t, err)
	return n
}

func stage(s pipeline.Stage, status pipeline.Status) progress.StageUpdate {
	return progress.StageUpdate{Stage: s, Status: status}
}

func strPtr(s string) *string { return &s }

func newObserved(t *testing.T, workspaceID string, opts ...Option) (*Observer, *channel.Hub) {
	t.Helper()
	hub := channel.NewHub()
	o := New(hub, opts...)
	_, err := o.Observe(context.Background(), workspaceID)
	require.NoError(t, err)
	t.Cleanup(func() { _ = o.Close() })
	return o, hub
}

func TestObserver_InitialState(t *testing.T) {
	o := New(channel.NewHub())
	v := o.Snapshot()
	assert.Equal(t, "", v.Workspace)
	assert.Equal(t, progress.EmptyLoadingState(), v.State)
	assert.False(t, v.Visible)
}

func TestObserver_Scenario_DuplicateCompletion(t *testing.T) {
	o, hub := newObserved(t, "w1")

	publish(t, hub, "w1", stage(pipeline.StageFileUpload, pipeline.StatusInProgress))
	publish(t, hub, "w1", stage(pipeline.StageFileUpload, pipeline.StatusCompleted))
	publish(t, hub, "w1", stage(pipeline.StageFileUpload, pipeline.StatusCompleted))

	run := o.Run()
	assert.Equal(t, pipeline.StatusCompleted, run.Steps[pipeline.StageFileUpload].Status)
	assert.Equal(t, 2, run.Steps[pipeline.StageFileUpload].Revision)
	assert.True(t, o.State().Progress[pipeline.StageFileUpload])
}

func TestObserver_Scenario_OutOfOrder(t *testing.T) {
	o, hub := newObserved(t, "w1")

	publish(t, hub, "w1", stage(pipeline.StageFileAnalysis, pipeline.StatusCompleted))
	publish(t, hub, "w1", stage(pipeline.StageFileAnalysis, pipeline.StatusInProgress))

	assert.Equal(t, pipeline.StatusCompleted, o.Run().Steps[pipeline.StageFileAnalysis].Status)
}

func TestObserver_Scenario_OverallError(t *testing.T) {
	o, hub := newObserved(t, "w1")

	publish(t, hub, "w1", stage(pipeline.StageFileUpload, pipeline.StatusCompleted))
	publish(t, hub, "w1", stage(pipeline.StageFileAnalysis, pipeline.StatusInProgress))
	publish(t, hub, "w1", progress.OverallUpdate{Error: strPtr("timeout")})

	run := o.Run()
	assert.Equal(t, progress.RunFailed, run.Status)
	assert.Equal(t, pipeline.StatusInProgress, run.Steps[pipeline.StageFileAnalysis].Status)
	assert.Equal(t, []string{"timeout"}, o.State().Errors)
	assert.True(t, o.Visible(), "errors keep the overlay up")
}

func TestObserver_Scenario_ArtifactRegenerated(t *testing.T) {
	o, hub := newObserved(t, "w1")

	publish(t, hub, "w1", progress.ArtifactReady{Kind: progress.ArtifactStudyGuide, Payload: json.RawMessage(`"X"`)})
	publish(t, hub, "w1", progress.ArtifactReady{Kind: progress.ArtifactStudyGuide, Payload: json.RawMessage(`"Y"`)})

	assert.JSONEq(t, `"Y"`, string(o.State().CompletedArtifacts[progress.ArtifactStudyGuide]))
}

func TestObserver_Scenario_IsolationOnSwitch(t *testing.T) {
	o, hub := newObserved(t, "w1")
	publish(t, hub, "w1", stage(pipeline.StageFileUpload, pipeline.StatusInProgress))
	oldGen := o.gen
	require.True(t, o.State().IsAnalyzing)

	v, err := o.Observe(context.Background(), "w2")
	require.NoError(t, err)
	assert.Equal(t, "w2", v.Workspace)
	assert.Equal(t, progress.EmptyLoadingState(), v.State, "no stale state after switching")

	assert.Equal(t, 0, publish(t, hub, "w1", stage(pipeline.StageFileAnalysis, pipeline.StatusInProgress)))

	// A delivery already in flight from the old subscription is discarded too.
	o.deliver(oldGen, "w1", progress.RunError{Message: "late"})

	assert.Equal(t, progress.EmptyLoadingState(), o.State())
}

func TestObserver_Scenario_DismissThenEvent(t *testing.T) {
	o, hub := newObserved(t, "w1")
	publish(t, hub, "w1", stage(pipeline.StageFileUpload, pipeline.StatusInProgress))
	require.True(t, o.Visible())

	o.Dismiss()
	assert.False(t, o.Visible())
	assert.True(t, o.State().IsAnalyzing, "dismiss leaves the loading state alone")

	publish(t, hub, "w1", stage(pipeline.StageFileUpload, pipeline.StatusInProgress)) // duplicate, still activity
	assert.True(t, o.Visible())
}

func TestObserver_MalformedEventKeepsOverlayDismissed(t *testing.T) {
	o, hub := newObserved(t, "w1")
	publish(t, hub, "w1", stage(pipeline.StageFileUpload, pipeline.StatusInProgress))
	o.Dismiss()
	require.False(t, o.Visible())

	o.mu.Lock()
	gen := o.gen
	o.mu.Unlock()
	bogus := progress.FileType("docx")
	o.deliver(gen, "w1", stage("thumbnails", pipeline.StatusCompleted))
	o.deliver(gen, "w1", progress.OverallUpdate{FileType: &bogus})
	o.deliver(gen, "w1", nil)
	assert.False(t, o.Visible())

	o.deliver(gen, "w1", progress.RunError{Message: "x"})
	assert.True(t, o.Visible())
}

func TestObserver_SnapshotWithRunIsConsistent(t *testing.T) {
	o, hub := newObserved(t, "w1")
	publish(t, hub, "w1", progress.OverallUpdate{Status: progress.RunAnalyzing, Filename: strPtr("notes.pdf")})
	publish(t, hub, "w1", stage(pipeline.StageFileUpload, pipeline.StatusCompleted))

	v, run := o.SnapshotWithRun()
	assert.Equal(t, "w1", v.Workspace)
	assert.Equal(t, progress.RunAnalyzing, run.Status)
	assert.Equal(t, "notes.pdf", run.Filename)
	assert.Equal(t, pipeline.StatusCompleted, run.Steps[pipeline.StageFileUpload].Status)
	assert.Equal(t, o.Snapshot(), v)

	// The copy is detached from later events.
	publish(t, hub, "w1", stage(pipeline.StageFileAnalysis, pipeline.StatusInProgress))
	assert.Equal(t, pipeline.StatusPending, run.Steps[pipeline.StageFileAnalysis].Status)
}

func TestObserver_ResetClearsStateAndDismissal(t *testing.T) {
	o, hub := newObserved(t, "w1")
	publish(t, hub, "w1", progress.RunError{Message: "boom"})
	publish(t, hub, "w1", progress.ArtifactReady{Kind: progress.ArtifactFlashcards, Payload: json.RawMessage(`[]`)})
	o.Dismiss()

	o.Reset()

	ls := o.State()
	assert.Empty(t, ls.Errors)
	assert.Empty(t, ls.CompletedArtifacts)
	assert.False(t, ls.IsAnalyzing)
	assert.False(t, o.Visible())
	assert.False(t, o.dismissed)

	// Still subscribed after a local reset.
	publish(t, hub, "w1", stage(pipeline.StageFileUpload, pipeline.StatusInProgress))
	assert.True(t, o.Visible())
}

func TestObserver_RemoteResetEvent(t *testing.T) {
	o, hub := newObserved(t, "w1")
	publish(t, hub, "w1", stage(pipeline.StageCleanup, pipeline.StatusCompleted))
	publish(t, hub, "w1", progress.Reset{})
	assert.Equal(t, pipeline.StatusPending, o.Run().Steps[pipeline.StageCleanup].Status)
}

func TestObserver_ObserveSameWorkspaceKeepsState(t *testing.T) {
	o, hub := newObserved(t, "w1")
	publish(t, hub, "w1", progress.RunError{Message: "x"})

	v, err := o.Observe(context.Background(), "w1")
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, v.State.Errors)
	assert.Equal(t, 1, hub.Subscribers("workspace-w1"))
}

func TestObserver_EmptyWorkspaceStopsObserving(t *testing.T) {
	o, hub := newObserved(t, "w1")
	publish(t, hub, "w1", progress.RunError{Message: "x"})

	v, err := o.Observe(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, progress.EmptyLoadingState(), v.State)
	assert.Equal(t, 0, hub.Subscribers("workspace-w1"))
}

func TestObserver_SubscribeFailureThenRetry(t *testing.T) {
	hub := channel.NewHub()
	var rec diag.Recorder
	o := New(hub, WithSink(&rec))
	defer o.Close()

	hub.FailNextSubscribe(errors.New("503"))
	_, err := o.Observe(context.Background(), "w1")
	require.Error(t, err)
	assert.Equal(t, 1, rec.Count(diag.KindTransportError))
	assert.False(t, o.Visible(), "transport errors are not user-visible")

	_, err = o.Observe(context.Background(), "w1")
	require.NoError(t, err)
	assert.Equal(t, 1, hub.Subscribers("workspace-w1"))
}

func TestObserver_CloseDiscardsLaterEvents(t *testing.T) {
	hub := channel.NewHub()
	o := New(hub)
	_, err := o.Observe(context.Background(), "w1")
	require.NoError(t, err)
	gen := o.gen

	require.NoError(t, o.Close())
	require.NoError(t, o.Close())

	o.deliver(gen, "w1", progress.RunError{Message: "after close"})
	assert.Empty(t, o.State().Errors)
	assert.Equal(t, 0, hub.Subscribers("workspace-w1"))
}

func TestObserver_UpdatesBroadcast(t *testing.T) {
	o, hub := newObserved(t, "w1")
	updates := o.Updates()

	// Drain the view published by Observe.
	select {
	case v := <-updates:
		assert.Equal(t, "w1", v.Workspace)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for initial view")
	}

	publish(t, hub, "w1", stage(pipeline.StageStudyGuide, pipeline.StatusInProgress))

	select {
	case v := <-updates:
		assert.True(t, v.Visible)
		assert.Equal(t, "Generating study guide", v.State.CurrentStep)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for update")
	}
}

func TestObserver_UpdatesNeverBlock(t *testing.T) {
	o, hub := newObserved(t, "w1", WithUpdateBuffer(1))

	msg := channel.Message{Name: progress.EventRunError, Data: json.RawMessage(`{"message":"again"}`)}
	done := make(chan struct{})
	go func() {
		for i := 0; i < 20; i++ {
			_, _ = hub.Publish("workspace-w1", msg)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publishing blocked on a full update buffer")
	}
	assert.Len(t, o.State().Errors, 20)
}

func TestObserver_MalformedEventsCounted(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := diag.NewMetrics(reg)
	var rec diag.Recorder
	o, hub := newObserved(t, "w1", WithSink(&rec), WithMetrics(m))

	publish(t, hub, "w1", progress.StageUpdate{Stage: "thumbnails", Status: pipeline.StatusCompleted})

	assert.Equal(t, 1, rec.Count(diag.KindMalformedEvent))
	assert.Equal(t, progress.EmptyLoadingState(), o.State())

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "studyprogress_diagnostics_total")
	assert.Contains(t, names, "studyprogress_sessions_open")
}
