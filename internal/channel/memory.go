package channel

import (
	"context"
	"sync"
)

// Hub is an in-process Transport. Publish delivers synchronously on the
// caller's goroutine, in publish order, to every subscriber of the channel.
type Hub struct {
	mu     sync.Mutex
	subs   map[string]map[*hubSub]struct{}
	closed bool

	// failNext, when set, makes the next Subscribe return it.
	failNext error
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[*hubSub]struct{})}
}

// Subscribe implements Transport.
func (h *Hub) Subscribe(ctx context.Context, channel string, hooks Hooks) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrClosed
	}
	if err := h.failNext; err != nil {
		h.failNext = nil
		return nil, err
	}

	sub := &hubSub{hub: h, channel: channel, hooks: hooks, handlers: make(map[string]func(Message))}
	if h.subs[channel] == nil {
		h.subs[channel] = make(map[*hubSub]struct{})
	}
	h.subs[channel][sub] = struct{}{}
	return sub, nil
}

// FailNextSubscribe makes the next Subscribe call fail with err.
func (h *Hub) FailNextSubscribe(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failNext = err
}

// Publish delivers msg to the current subscribers of channel and returns how
// many handlers ran.
func (h *Hub) Publish(channel string, msg Message) (int, error) {
	msg.Channel = channel

	var fns []func(Message)
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return 0, ErrClosed
	}
	for sub := range h.subs[channel] {
		if fn := sub.handler(msg.Name); fn != nil {
			fns = append(fns, fn)
		}
	}
	h.mu.Unlock()

	// Handlers run unlocked so they may call back into the hub.
	for _, fn := range fns {
		fn(msg)
	}
	return len(fns), nil
}

// Subscribers returns the number of live subscriptions on channel.
func (h *Hub) Subscribers(channel string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[channel])
}

// SimulateReconnect fires OnReconnect for every subscription on channel.
func (h *Hub) SimulateReconnect(channel string) {
	for _, sub := range h.snapshot(channel) {
		if sub.hooks.OnReconnect != nil {
			sub.hooks.OnReconnect()
		}
	}
}

// SimulateError fires OnError for every subscription on channel.
func (h *Hub) SimulateError(channel string, err error) {
	for _, sub := range h.snapshot(channel) {
		if sub.hooks.OnError != nil {
			sub.hooks.OnError(err)
		}
	}
}

// Close disconnects every subscriber. Further Publish and Subscribe calls fail.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	h.subs = make(map[string]map[*hubSub]struct{})
}

func (h *Hub) snapshot(channel string) []*hubSub {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*hubSub, 0, len(h.subs[channel]))
	for sub := range h.subs[channel] {
		out = append(out, sub)
	}
	return out
}

type hubSub struct {
	hub     *Hub
	channel string
	hooks   Hooks

	mu       sync.Mutex
	handlers map[string]func(Message)
}

func (s *hubSub) handler(event string) func(Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handlers[event]
}

func (s *hubSub) Bind(event string, fn func(Message)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[event] = fn
}

func (s *hubSub) Unbind(event string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.handlers, event)
}

func (s *hubSub) Disconnect() error {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	if subs, ok := s.hub.subs[s.channel]; ok {
		delete(subs, s)
		if len(subs) == 0 {
			delete(s.hub.subs, s.channel)
		}
	}
	return nil
}
