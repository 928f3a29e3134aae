// Package observer is the single entry point a UI layer uses to follow the
// progress of one workspace at a time.
package observer

import (
	"context"
	"sync"

	"github.com/dusk-indust/studyprogress/internal/channel"
	"github.com/dusk-indust/studyprogress/internal/diag"
	"github.com/dusk-indust/studyprogress/internal/overlay"
	"github.com/dusk-indust/studyprogress/internal/pipeline"
	"github.com/dusk-indust/studyprogress/internal/progress"
	"github.com/rs/zerolog"
)

// View is what callers render: the loading state of the observed workspace and
// whether the overlay is visible.
type View struct {
	Workspace string                `json:"workspace"`
	State     progress.LoadingState `json:"state"`
	Visible   bool                  `json:"visible"`
}

// Observer owns one channel session and the reducer state of the workspace it
// is bound to.
type Observer struct {
	session *channel.Session
	reducer *progress.Reducer
	metrics *diag.Metrics
	log     zerolog.Logger

	// lifecycle serializes Observe and Close so the session always follows
	// the most recent call.
	lifecycle sync.Mutex

	mu        sync.Mutex
	workspace string
	gen       uint64
	state     *progress.State
	dismissed bool

	updates chan View
}

// Option configures an Observer.
type Option func(*config)

type config struct {
	sink       diag.Sink
	metrics    *diag.Metrics
	prefix     string
	bufferSize int
	log        zerolog.Logger
}

// WithSink sets the diagnostic sink shared by the session and the reducer.
func WithSink(sink diag.Sink) Option {
	return func(c *config) {
		c.sink = sink
	}
}

// WithMetrics records reduced events and open sessions in m.
func WithMetrics(m *diag.Metrics) Option {
	return func(c *config) {
		c.metrics = m
	}
}

// WithChannelPrefix overrides channel.DefaultPrefix.
func WithChannelPrefix(prefix string) Option {
	return func(c *config) {
		c.prefix = prefix
	}
}

// WithUpdateBuffer sets the capacity of the Updates channel (default 64).
func WithUpdateBuffer(n int) Option {
	return func(c *config) {
		c.bufferSize = n
	}
}

// WithLogger sets the logger used for lifecycle debug output.
func WithLogger(log zerolog.Logger) Option {
	return func(c *config) {
		c.log = log
	}
}

// New creates an Observer over transport. It observes nothing until Observe.
func New(transport channel.Transport, opts ...Option) *Observer {
	cfg := config{
		sink:       diag.Nop{},
		prefix:     channel.DefaultPrefix,
		bufferSize: 64,
		log:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	sink := cfg.sink
	if cfg.metrics != nil {
		sink = diag.Multi{cfg.sink, cfg.metrics}
	}

	sessOpts := []channel.SessionOption{channel.WithPrefix(cfg.prefix), channel.WithSink(sink)}
	if cfg.metrics != nil {
		sessOpts = append(sessOpts, channel.WithMetrics(cfg.metrics))
	}

	return &Observer{
		session: channel.NewSession(transport, sessOpts...),
		reducer: progress.NewReducer(sink),
		metrics: cfg.metrics,
		log:     cfg.log.With().Str("component", "observer").Logger(),
		state:   progress.NewState(),
		updates: make(chan View, cfg.bufferSize),
	}
}

// Observe binds the observer to workspaceID. Observing the current workspace
// again is a no-op. Switching workspace discards the previous state before the
// new subscription opens, so stale state is never visible. An empty id stops
// observing.
//
// A subscribe failure is returned; the observer keeps the new workspace's
// empty state and the caller may call Observe again to retry.
func (o *Observer) Observe(ctx context.Context, workspaceID string) (View, error) {
	o.lifecycle.Lock()
	defer o.lifecycle.Unlock()

	o.mu.Lock()
	if workspaceID == o.workspace && (workspaceID == "" || o.session.Workspace() == workspaceID) {
		v := o.viewLocked()
		o.mu.Unlock()
		return v, nil
	}

	o.gen++
	gen := o.gen
	o.workspace = workspaceID
	o.state = progress.NewState()
	o.dismissed = false
	v := o.viewLocked()
	o.publishLocked(v)
	o.mu.Unlock()

	o.log.Debug().Str("workspace", workspaceID).Uint64("generation", gen).Msg("observe")

	if workspaceID == "" {
		return v, o.session.Close()
	}

	err := o.session.Open(ctx, workspaceID, func(ws string, ev progress.Event) {
		o.deliver(gen, ws, ev)
	})
	return v, err
}

// deliver reduces ev if it belongs to the current generation.
func (o *Observer) deliver(gen uint64, workspaceID string, ev progress.Event) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if gen != o.gen || workspaceID != o.workspace {
		return
	}
	if o.metrics != nil {
		o.metrics.EventReduced(ev.Name())
	}

	// Any valid event re-surfaces a dismissed overlay; a malformed one is
	// invisible.
	wasDismissed := o.dismissed
	if progress.Validate(ev) == nil {
		o.dismissed = false
	}

	next := o.reducer.Apply(o.state, ev)
	if next == o.state && wasDismissed == o.dismissed {
		return
	}
	o.state = next
	o.publishLocked(o.viewLocked())
}

// Snapshot returns the current view.
func (o *Observer) Snapshot() View {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.viewLocked()
}

// State returns the current loading state.
func (o *Observer) State() progress.LoadingState {
	return o.Snapshot().State
}

// Visible reports whether the overlay should be shown.
func (o *Observer) Visible() bool {
	return o.Snapshot().Visible
}

// Workspace returns the observed workspace id.
func (o *Observer) Workspace() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.workspace
}

// Run returns a copy of the run-level record, including metadata that
// LoadingState does not carry.
func (o *Observer) Run() progress.AnalysisProgress {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.runLocked()
}

// SnapshotWithRun returns the current view and run record taken together, so
// the two always describe the same state.
func (o *Observer) SnapshotWithRun() (View, progress.AnalysisProgress) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.viewLocked(), o.runLocked()
}

func (o *Observer) runLocked() progress.AnalysisProgress {
	out := o.state.Analysis
	out.Steps = make(map[pipeline.Stage]progress.StepProgress, len(o.state.Analysis.Steps))
	for k, v := range o.state.Analysis.Steps {
		out.Steps[k] = v
	}
	if out.CompletedAt != nil {
		t := *out.CompletedAt
		out.CompletedAt = &t
	}
	return out
}

// Reset starts a fresh run locally, without a round trip to the channel, and
// clears the dismissed flag.
func (o *Observer) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state = o.reducer.Apply(o.state, progress.Reset{})
	o.dismissed = false
	o.publishLocked(o.viewLocked())
}

// Dismiss hides the overlay until the next event or Reset. The loading state
// itself is unchanged.
func (o *Observer) Dismiss() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.dismissed {
		return
	}
	o.dismissed = true
	o.publishLocked(o.viewLocked())
}

// Updates returns a channel that receives a View after every change. Sends
// never block; a consumer that falls behind misses intermediate views.
func (o *Observer) Updates() <-chan View {
	return o.updates
}

// Close stops observing and tears down the session. The Updates channel stays
// open; Close may be followed by another Observe.
func (o *Observer) Close() error {
	o.lifecycle.Lock()
	defer o.lifecycle.Unlock()

	o.mu.Lock()
	o.gen++
	o.workspace = ""
	o.state = progress.NewState()
	o.dismissed = false
	o.mu.Unlock()
	return o.session.Close()
}

func (o *Observer) viewLocked() View {
	ls := o.state.Loading()
	return View{
		Workspace: o.workspace,
		State:     ls,
		Visible:   overlay.Visible(ls, o.dismissed),
	}
}

// publishLocked sends v without blocking, dropping it when the buffer is full.
func (o *Observer) publishLocked(v View) {
	select {
	case o.updates <- v:
	default:
	}
}
