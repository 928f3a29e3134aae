package sse

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dusk-indust/studyprogress/internal/channel"
	"github.com/rs/zerolog"
)

// Compile-time interface check.
var _ channel.Transport = (*Client)(nil)

// errStreamClosed is reported when the relay ends a stream without an error.
var errStreamClosed = errors.New("sse: stream closed by relay")

// Client subscribes to relay channels over SSE and publishes to them over
// HTTP POST. A dropped stream is re-established by the client itself.
type Client struct {
	baseURL    string
	http       *http.Client
	minBackoff time.Duration
	maxBackoff time.Duration
	log        zerolog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying *http.Client entirely. Streaming
// requests need a client without an overall Timeout.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.http = hc
	}
}

// WithBackoff sets the reconnect delay bounds. The delay grows exponentially
// after each failed attempt, capped at max, and starts over at min for the
// next dropped stream.
func WithBackoff(min, max time.Duration) ClientOption {
	return func(c *Client) {
		c.minBackoff = min
		c.maxBackoff = max
	}
}

// WithLogger sets the logger for reconnect attempts.
func WithLogger(log zerolog.Logger) ClientOption {
	return func(c *Client) {
		c.log = log
	}
}

// NewClient creates a Client for the relay at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		http:       &http.Client{},
		minBackoff: 500 * time.Millisecond,
		maxBackoff: 30 * time.Second,
		log:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// newBackOff returns the reconnect schedule for one dropped stream.
func (c *Client) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.minBackoff
	b.MaxInterval = c.maxBackoff
	b.Multiplier = 2
	b.MaxElapsedTime = 0
	return b
}

func (c *Client) channelURL(name string) string {
	return c.baseURL + "/channels/" + url.PathEscape(name) + "/events"
}

// Subscribe implements channel.Transport. The first connection is made before
// Subscribe returns, so an unreachable relay is reported as an error here.
// ctx bounds only that first connection; the stream itself lives until
// Disconnect.
func (c *Client) Subscribe(ctx context.Context, name string, hooks channel.Hooks) (channel.Subscription, error) {
	streamCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(ctx, cancel)
	body, err := c.connect(streamCtx, name)
	if !stop() {
		if err == nil {
			body.Close()
		}
		cancel()
		return nil, fmt.Errorf("sse: subscribe %s: %w", name, ctx.Err())
	}
	if err != nil {
		cancel()
		return nil, err
	}

	sub := &clientSub{
		client:   c,
		channel:  name,
		hooks:    hooks,
		cancel:   cancel,
		handlers: make(map[string]func(channel.Message)),
	}
	go sub.run(streamCtx, body)
	return sub, nil
}

// connect opens the SSE stream for name and returns its body.
func (c *Client) connect(ctx context.Context, name string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.channelURL(name), nil)
	if err != nil {
		return nil, fmt.Errorf("sse: create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sse: subscribe %s: %w", name, err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("sse: subscribe %s: HTTP %d: %s", name, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return resp.Body, nil
}

// PublishResult is the relay's answer to a publish.
type PublishResult struct {
	Delivered int `json:"delivered"`
}

// Publish posts msg to the relay channel name.
func (c *Client) Publish(ctx context.Context, name string, msg channel.Message) (*PublishResult, error) {
	payload, err := json.Marshal(channel.Message{Name: msg.Name, Data: msg.Data})
	if err != nil {
		return nil, fmt.Errorf("sse: marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.channelURL(name), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("sse: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sse: publish %s: %w", name, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("sse: read response: %w", err)
	}
	if resp.StatusCode != http.StatusAccepted {
		return nil, fmt.Errorf("sse: publish %s: HTTP %d: %s", name, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var result PublishResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("sse: decode publish result: %w", err)
	}
	return &result, nil
}

type clientSub struct {
	client  *Client
	channel string
	hooks   channel.Hooks
	cancel  context.CancelFunc

	mu       sync.Mutex
	handlers map[string]func(channel.Message)
}

func (s *clientSub) Bind(event string, fn func(channel.Message)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[event] = fn
}

func (s *clientSub) Unbind(event string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.handlers, event)
}

// Disconnect cancels the stream. It does not wait for the reader goroutine,
// which may be blocked inside a handler that is itself waiting on the caller.
func (s *clientSub) Disconnect() error {
	s.cancel()
	return nil
}

func (s *clientSub) dispatch(msg channel.Message) {
	s.mu.Lock()
	fn := s.handlers[msg.Name]
	s.mu.Unlock()
	if fn != nil {
		msg.Channel = s.channel
		fn(msg)
	}
}

// run reads the stream until ctx is cancelled, reconnecting whenever the
// relay drops it.
func (s *clientSub) run(ctx context.Context, body io.ReadCloser) {
	log := s.client.log.With().Str("channel", s.channel).Logger()

	for {
		err := s.consume(ctx, body)
		if ctx.Err() != nil {
			return
		}
		if s.hooks.OnError != nil {
			s.hooks.OnError(err)
		}

		body = s.reconnect(ctx, log)
		if body == nil {
			return
		}
		if s.hooks.OnReconnect != nil {
			s.hooks.OnReconnect()
		}
	}
}

// consume dispatches frames from one stream and returns why it ended.
func (s *clientSub) consume(ctx context.Context, body io.ReadCloser) error {
	for f := range ReadMessages(ctx, body) {
		if f.Err != nil {
			// A broken read ends the stream; a bad frame is skipped.
			if errors.Is(f.Err, ErrStreamBroken) {
				return f.Err
			}
			if s.hooks.OnError != nil {
				s.hooks.OnError(f.Err)
			}
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.dispatch(f.Message)
	}
	return errStreamClosed
}

// reconnect retries connect with exponential backoff until it succeeds or ctx
// is cancelled, in which case it returns nil.
func (s *clientSub) reconnect(ctx context.Context, log zerolog.Logger) io.ReadCloser {
	b := s.client.newBackOff()

	// Wait one interval before the first attempt.
	wait := time.NewTimer(b.InitialInterval)
	select {
	case <-ctx.Done():
		wait.Stop()
		return nil
	case <-wait.C:
	}

	var body io.ReadCloser
	attempt := 0
	err := backoff.RetryNotify(func() error {
		attempt++
		rc, err := s.client.connect(ctx, s.channel)
		if err != nil {
			return err
		}
		body = rc
		return nil
	}, backoff.WithContext(b, ctx), func(err error, delay time.Duration) {
		log.Debug().Err(err).Int("attempt", attempt).Dur("delay", delay).Msg("reconnect failed")
	})
	if err != nil {
		return nil
	}
	log.Info().Int("attempt", attempt).Msg("stream reconnected")
	return body
}
