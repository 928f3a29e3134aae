package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/dusk-indust/studyprogress/internal/channel"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Relay is the publish/subscribe side of the SSE transport. Each channel fans
// published messages out to every connected stream. Slow streams drop
// messages rather than block publishers.
type Relay struct {
	log       zerolog.Logger
	buffer    int
	keepAlive time.Duration

	mu   sync.RWMutex
	subs map[string]map[string]chan channel.Message // channel -> subscriber id -> queue
}

// RelayOption configures a Relay.
type RelayOption func(*Relay)

// WithRelayLogger sets the relay logger.
func WithRelayLogger(log zerolog.Logger) RelayOption {
	return func(r *Relay) {
		r.log = log
	}
}

// WithStreamBuffer sets the per-stream queue length (default 64).
func WithStreamBuffer(n int) RelayOption {
	return func(r *Relay) {
		r.buffer = n
	}
}

// WithKeepAlive sets the interval between keep-alive comments (default 15s).
func WithKeepAlive(d time.Duration) RelayOption {
	return func(r *Relay) {
		r.keepAlive = d
	}
}

// NewRelay creates a Relay with no subscribers.
func NewRelay(opts ...RelayOption) *Relay {
	r := &Relay{
		log:       zerolog.Nop(),
		buffer:    64,
		keepAlive: 15 * time.Second,
		subs:      make(map[string]map[string]chan channel.Message),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Handler returns the relay's HTTP routes.
func (r *Relay) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /channels/{name}/events", r.handleStream)
	mux.HandleFunc("POST /channels/{name}/events", r.handlePublish)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return mux
}

// ListenAndServe serves the relay on addr until ctx is cancelled.
func (r *Relay) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	r.log.Info().Str("addr", addr).Msg("relay listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("sse: relay: %w", err)
	}
	return nil
}

// Publish queues msg for every stream on name and returns how many streams
// accepted it.
func (r *Relay) Publish(name string, msg channel.Message) int {
	msg.Channel = name

	r.mu.RLock()
	defer r.mu.RUnlock()

	delivered := 0
	for id, q := range r.subs[name] {
		select {
		case q <- msg:
			delivered++
		default:
			r.log.Warn().Str("channel", name).Str("subscriber", id).Str("event", msg.Name).Msg("stream queue full, message dropped")
		}
	}
	return delivered
}

// Subscribers returns the number of open streams on name.
func (r *Relay) Subscribers(name string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs[name])
}

func (r *Relay) register(name string) (string, chan channel.Message) {
	id := uuid.NewString()
	q := make(chan channel.Message, r.buffer)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.subs[name] == nil {
		r.subs[name] = make(map[string]chan channel.Message)
	}
	r.subs[name][id] = q
	return id, q
}

func (r *Relay) unregister(name, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.subs[name], id)
	if len(r.subs[name]) == 0 {
		delete(r.subs, name)
	}
}

// handleStream serves one SSE subscriber until the client goes away.
func (r *Relay) handleStream(w http.ResponseWriter, req *http.Request) {
	name := req.PathValue("name")
	id, q := r.register(name)
	defer r.unregister(name, id)

	log := r.log.With().Str("channel", name).Str("subscriber", id).Logger()
	log.Debug().Msg("stream opened")
	defer log.Debug().Msg("stream closed")

	sw := NewWriter(w)
	sw.Init()

	ticker := time.NewTicker(r.keepAlive)
	defer ticker.Stop()

	ctx := req.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-q:
			if err := sw.WriteMessage(msg); err != nil {
				log.Warn().Err(err).Str("event", msg.Name).Msg("write failed")
				if ctx.Err() != nil {
					return
				}
			}
		case <-ticker.C:
			if err := sw.WriteComment("keep-alive"); err != nil {
				return
			}
		}
	}
}

// handlePublish accepts {"event": name, "data": {...}} and fans it out.
func (r *Relay) handlePublish(w http.ResponseWriter, req *http.Request) {
	name := req.PathValue("name")
	w.Header().Set("Content-Type", "application/json")

	var msg channel.Message
	if err := json.NewDecoder(http.MaxBytesReader(w, req.Body, 1<<20)).Decode(&msg); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	if msg.Name == "" {
		writeJSONError(w, http.StatusBadRequest, "event is required")
		return
	}
	if len(msg.Data) > 0 && !json.Valid(msg.Data) {
		writeJSONError(w, http.StatusBadRequest, "data must be JSON")
		return
	}

	n := r.Publish(name, msg)
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(PublishResult{Delivered: n})
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
