package channel

import (
	"context"
	"encoding/json"
	"errors"
)

// DefaultPrefix is prepended to a workspace id to form its channel name.
const DefaultPrefix = "workspace-"

// ErrClosed is returned when publishing on, or subscribing through, a closed
// transport.
var ErrClosed = errors.New("channel: transport closed")

// ChannelName returns the channel a workspace's events are published on.
func ChannelName(prefix, workspaceID string) string {
	return prefix + workspaceID
}

// Message is one named event delivered on a channel.
type Message struct {
	Channel string          `json:"channel,omitempty"`
	Name    string          `json:"event"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Hooks are connection-level callbacks a transport fires for a subscription.
// Either may be nil.
type Hooks struct {
	// OnReconnect is called after the transport re-established a dropped
	// connection on its own.
	OnReconnect func()

	// OnError is called for connection errors after a successful Subscribe.
	OnError func(error)
}

// Subscription is a live subscription to one channel.
type Subscription interface {
	// Bind registers fn for messages with the given event name, replacing any
	// handler already bound to that name.
	Bind(event string, fn func(Message))

	// Unbind removes the handler for event. Unbinding an unknown name is a no-op.
	Unbind(event string)

	// Disconnect ends the subscription. Messages published after it returns
	// are never delivered.
	Disconnect() error
}

// Transport is the named-channel publish/subscribe service.
type Transport interface {
	// Subscribe opens a subscription to channel. Handlers are bound
	// separately on the returned Subscription.
	Subscribe(ctx context.Context, channel string, hooks Hooks) (Subscription, error)
}
