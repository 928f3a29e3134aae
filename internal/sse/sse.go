// Package sse carries workspace channels over Server-Sent Events: a relay
// that fans published events out to subscribers, and a client that implements
// channel.Transport against it.
package sse

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/dusk-indust/studyprogress/internal/channel"
)

// Writer writes Server-Sent Events to an http.ResponseWriter.
// Call Init once before writing any events to set the required headers.
type Writer struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewWriter creates a new Writer wrapping the given ResponseWriter.
// The ResponseWriter must implement http.Flusher for streaming to work;
// if it does not, writes will still succeed but may be buffered.
func NewWriter(w http.ResponseWriter) *Writer {
	f, _ := w.(http.Flusher)
	return &Writer{
		w:       w,
		flusher: f,
	}
}

// Init sets the SSE response headers and flushes them to the client.
func (sw *Writer) Init() {
	h := sw.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	sw.w.WriteHeader(http.StatusOK)
	sw.flush()
}

// WriteMessage writes msg as one SSE frame:
//
//	event: <name>
//	data: <json>
//
// Data that is not valid JSON is rejected so a frame never spans lines.
func (sw *Writer) WriteMessage(msg channel.Message) error {
	if msg.Name == "" || strings.ContainsAny(msg.Name, "\r\n") {
		return fmt.Errorf("sse: invalid event name %q", msg.Name)
	}
	data := []byte("{}")
	if len(msg.Data) > 0 {
		var compact bytes.Buffer
		if err := json.Compact(&compact, msg.Data); err != nil {
			return fmt.Errorf("sse: event %s: %w", msg.Name, err)
		}
		data = compact.Bytes()
	}
	if _, err := fmt.Fprintf(sw.w, "event: %s\ndata: %s\n\n", msg.Name, data); err != nil {
		return fmt.Errorf("sse: write event: %w", err)
	}
	sw.flush()
	return nil
}

// WriteComment writes an SSE comment line, used as a keep-alive.
func (sw *Writer) WriteComment(text string) error {
	if _, err := fmt.Fprintf(sw.w, ": %s\n\n", text); err != nil {
		return fmt.Errorf("sse: write comment: %w", err)
	}
	sw.flush()
	return nil
}

func (sw *Writer) flush() {
	if sw.flusher != nil {
		sw.flusher.Flush()
	}
}

// ErrStreamBroken wraps read errors that end a stream.
var ErrStreamBroken = errors.New("sse: read stream")

// Frame is one parsed SSE event, or a parse error.
type Frame struct {
	Message channel.Message
	Err     error
}

// ReadMessages reads SSE frames from body and delivers them on the returned
// channel. The channel is closed when the body is exhausted, an unrecoverable
// read error occurs, or ctx is cancelled. The body is closed when reading
// finishes.
//
// SSE format rules applied:
//   - "event:" sets the message name for the current frame.
//   - "data:" lines carry the JSON payload; several are joined with newlines.
//   - Lines starting with ":" are comments and are ignored, as are "id:" and
//     "retry:".
//   - An empty line ends the frame.
//   - Read errors are delivered wrapping ErrStreamBroken and end the stream;
//     malformed frames are delivered as errors and reading continues.
//   - A frame without an event name must carry a {"event":..,"data":..}
//     envelope in its data.
func ReadMessages(ctx context.Context, body io.ReadCloser) <-chan Frame {
	ch := make(chan Frame)
	go func() {
		defer close(ch)
		defer body.Close()

		// Unblock a pending read when ctx is cancelled.
		stop := context.AfterFunc(ctx, func() { body.Close() })
		defer stop()

		scanner := bufio.NewScanner(body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		var (
			name    string
			dataBuf strings.Builder
		)
		flush := func() bool {
			if dataBuf.Len() == 0 && name == "" {
				return true
			}
			ok := send(ctx, ch, parseFrame(name, dataBuf.String()))
			name = ""
			dataBuf.Reset()
			return ok
		}

		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			if !scanner.Scan() {
				if err := scanner.Err(); err != nil && ctx.Err() == nil {
					send(ctx, ch, Frame{Err: fmt.Errorf("%w: %w", ErrStreamBroken, err)})
					return
				}
				flush()
				return
			}

			line := scanner.Text()
			field, value := splitField(line)

			switch {
			case line == "":
				if !flush() {
					return
				}
			case strings.HasPrefix(line, ":"):
				// Comment or keep-alive.
			case field == "event":
				name = value
			case field == "data":
				if dataBuf.Len() > 0 {
					dataBuf.WriteByte('\n')
				}
				dataBuf.WriteString(value)
			default:
				// id, retry and unknown fields are ignored.
			}
		}
	}()
	return ch
}

// splitField splits "field: value" per the SSE grammar; a single space after
// the colon is dropped.
func splitField(line string) (string, string) {
	field, value, found := strings.Cut(line, ":")
	if !found {
		return line, ""
	}
	return field, strings.TrimPrefix(value, " ")
}

func parseFrame(name, data string) Frame {
	if name != "" {
		msg := channel.Message{Name: name}
		if data != "" {
			if !json.Valid([]byte(data)) {
				return Frame{Err: fmt.Errorf("sse: event %s: invalid JSON data", name)}
			}
			msg.Data = json.RawMessage(data)
		}
		return Frame{Message: msg}
	}

	var msg channel.Message
	if err := json.Unmarshal([]byte(data), &msg); err != nil {
		return Frame{Err: fmt.Errorf("sse: unmarshal envelope: %w", err)}
	}
	if msg.Name == "" {
		return Frame{Err: errors.New("sse: frame without event name")}
	}
	return Frame{Message: msg}
}

// send delivers f on ch unless ctx is cancelled first.
func send(ctx context.Context, ch chan<- Frame, f Frame) bool {
	select {
	case ch <- f:
		return true
	case <-ctx.Done():
		return false
	}
}
