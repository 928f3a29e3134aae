// Package diag is the observability boundary: malformed events and transport
// failures are reported here and never affect the displayed progress state.
package diag

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// Kind classifies a diagnostic report.
type Kind string

const (
	// KindMalformedEvent covers unknown event names, stages, statuses,
	// artifact kinds and undecodable payloads.
	KindMalformedEvent Kind = "malformed-event"

	// KindTransportError covers subscribe failures and stream errors.
	KindTransportError Kind = "transport-error"
)

// Sink receives fire-and-forget diagnostic reports.
type Sink interface {
	Report(kind Kind, detail string)
}

// Reportf formats detail and reports it to sink. A nil sink is ignored.
func Reportf(sink Sink, kind Kind, format string, args ...any) {
	if sink == nil {
		return
	}
	sink.Report(kind, fmt.Sprintf(format, args...))
}

// Nop discards every report.
type Nop struct{}

// Report implements Sink.
func (Nop) Report(Kind, string) {}

// LogSink writes reports to a zerolog logger at warn level.
type LogSink struct {
	log zerolog.Logger
}

// NewLogSink creates a LogSink writing to log.
func NewLogSink(log zerolog.Logger) *LogSink {
	return &LogSink{log: log.With().Str("component", "diag").Logger()}
}

// Report implements Sink.
func (s *LogSink) Report(kind Kind, detail string) {
	s.log.Warn().Str("kind", string(kind)).Msg(detail)
}

// Multi fans a report out to several sinks.
type Multi []Sink

// Report implements Sink.
func (m Multi) Report(kind Kind, detail string) {
	for _, s := range m {
		if s != nil {
			s.Report(kind, detail)
		}
	}
}

// Entry is one recorded report.
type Entry struct {
	Kind   Kind
	Detail string
}

// Recorder keeps every report in memory. It is safe for concurrent use.
type Recorder struct {
	mu      sync.Mutex
	entries []Entry
}

// Report implements Sink.
func (r *Recorder) Report(kind Kind, detail string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, Entry{Kind: kind, Detail: detail})
}

// Entries returns a copy of the recorded reports.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Count returns how many reports of the given kind were recorded.
func (r *Recorder) Count(kind Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.entries {
		if e.Kind == kind {
			n++
		}
	}
	return n
}
