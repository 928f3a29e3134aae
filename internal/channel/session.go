package channel

import (
	"context"
	"fmt"
	"sync"

	"github.com/dusk-indust/studyprogress/internal/diag"
	"github.com/dusk-indust/studyprogress/internal/progress"
)

// SessionState is the lifecycle state of a Session.
type SessionState int

const (
	StateIdle SessionState = iota
	StateOpening
	StateOpen
	StateClosing
)

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOpening:
		return "opening"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// EventFunc receives decoded events for the workspace a session is open on.
type EventFunc func(workspaceID string, ev progress.Event)

// Session owns at most one subscription to a workspace channel. Switching
// workspace fully tears down the old subscription before subscribing again.
//
// Every Open bumps a generation counter; handlers capture the generation they
// were bound under and drop anything delivered after it changed.
type Session struct {
	transport Transport
	prefix    string
	sink      diag.Sink
	metrics   *diag.Metrics

	mu        sync.Mutex
	state     SessionState
	workspace string
	gen       uint64
	sub       Subscription
	onEvent   EventFunc
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithPrefix overrides DefaultPrefix.
func WithPrefix(prefix string) SessionOption {
	return func(s *Session) {
		s.prefix = prefix
	}
}

// WithSink sets the diagnostic sink for malformed messages and transport errors.
func WithSink(sink diag.Sink) SessionOption {
	return func(s *Session) {
		s.sink = sink
	}
}

// WithMetrics tracks open sessions in m.
func WithMetrics(m *diag.Metrics) SessionOption {
	return func(s *Session) {
		s.metrics = m
	}
}

// NewSession creates an idle Session over transport.
func NewSession(transport Transport, opts ...SessionOption) *Session {
	s := &Session{
		transport: transport,
		prefix:    DefaultPrefix,
		sink:      diag.Nop{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Workspace returns the workspace the session is opening or open on, or "".
func (s *Session) Workspace() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.workspace
}

// Open subscribes to workspaceID's channel and delivers its events to onEvent.
// Opening the workspace that is already open (or opening) is a no-op. Opening a
// different workspace closes the current subscription first.
//
// A transport failure is reported to the sink, returned, and leaves the session
// idle. Open does not retry.
func (s *Session) Open(ctx context.Context, workspaceID string, onEvent EventFunc) error {
	s.mu.Lock()
	if (s.state == StateOpen || s.state == StateOpening) && s.workspace == workspaceID {
		s.mu.Unlock()
		return nil
	}
	s.teardownLocked()

	s.gen++
	gen := s.gen
	s.state = StateOpening
	s.workspace = workspaceID
	s.onEvent = onEvent
	s.mu.Unlock()

	name := ChannelName(s.prefix, workspaceID)
	sub, err := s.transport.Subscribe(ctx, name, Hooks{
		OnReconnect: func() { s.rebind(gen) },
		OnError:     func(err error) { s.transportError(gen, err) },
	})

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		diag.Reportf(s.sink, diag.KindTransportError, "subscribe %s: %v", name, err)
		if s.gen == gen {
			s.state = StateIdle
			s.workspace = ""
			s.onEvent = nil
		}
		return fmt.Errorf("channel: subscribe %s: %w", name, err)
	}

	if s.gen != gen {
		// Closed or re-opened while subscribing; this subscription is stale.
		_ = sub.Disconnect()
		return nil
	}

	s.sub = sub
	s.state = StateOpen
	s.bindLocked(gen)
	if s.metrics != nil {
		s.metrics.SessionOpened()
	}
	return nil
}

// Close unbinds every handler, then disconnects. Closing an idle session is a
// no-op.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.teardownLocked()
}

// teardownLocked moves the session to idle, invalidating the current
// generation. Callers must hold s.mu.
func (s *Session) teardownLocked() error {
	if s.state == StateIdle {
		return nil
	}
	s.gen++

	var err error
	if s.sub != nil {
		s.state = StateClosing
		for _, name := range progress.EventNames {
			s.sub.Unbind(name)
		}
		err = s.sub.Disconnect()
		s.sub = nil
		if s.metrics != nil {
			s.metrics.SessionClosed()
		}
	}

	s.state = StateIdle
	s.workspace = ""
	s.onEvent = nil
	if err != nil {
		return fmt.Errorf("channel: disconnect: %w", err)
	}
	return nil
}

// bindLocked attaches one handler per event name. Callers must hold s.mu.
func (s *Session) bindLocked(gen uint64) {
	for _, name := range progress.EventNames {
		s.sub.Bind(name, s.handler(gen))
	}
}

// rebind re-attaches handlers after the transport reconnected.
func (s *Session) rebind(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen || s.state != StateOpen {
		return
	}
	for _, name := range progress.EventNames {
		s.sub.Unbind(name)
	}
	s.bindLocked(gen)
}

func (s *Session) transportError(gen uint64, err error) {
	s.mu.Lock()
	current := s.gen == gen
	workspace := s.workspace
	s.mu.Unlock()
	if !current {
		return
	}
	diag.Reportf(s.sink, diag.KindTransportError, "workspace %s: %v", workspace, err)
}

func (s *Session) handler(gen uint64) func(Message) {
	return func(msg Message) {
		s.mu.Lock()
		if s.gen != gen || s.state != StateOpen {
			s.mu.Unlock()
			return
		}
		workspace, onEvent := s.workspace, s.onEvent
		s.mu.Unlock()

		ev, err := progress.Decode(msg.Name, msg.Data)
		if err != nil {
			diag.Reportf(s.sink, diag.KindMalformedEvent, "workspace %s: %v", workspace, err)
			return
		}
		if onEvent != nil {
			onEvent(workspace, ev)
		}
	}
}
