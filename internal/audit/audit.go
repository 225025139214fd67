// Package audit provides the append-only event log for security decisions
// and execution transitions. Sinks are write-only: nothing in the engine
// reads audit events back for control flow.
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/NSvoltage/secureflow/pkg/types"
)

// Sink receives audit events. Implementations must be safe for concurrent
// use.
type Sink interface {
	Record(event types.AuditEvent) error
	Close() error
}

// NewEvent builds an audit event with a fresh id and the current timestamp.
// The detail string is sanitized before it is stored.
func NewEvent(executionID, stepID, principal string, category types.AuditCategory, outcome types.AuditOutcome, detail string) types.AuditEvent {
	return types.AuditEvent{
		ID:          uuid.NewString(),
		Timestamp:   time.Now().UTC(),
		ExecutionID: executionID,
		StepID:      stepID,
		Principal:   principal,
		Category:    category,
		Outcome:     outcome,
		Detail:      SanitizeDetail(detail),
	}
}

// SanitizeDetail strips control characters that would allow forging extra
// log lines and truncates oversized details.
func SanitizeDetail(detail string) string {
	detail = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == '\t' {
			return ' '
		}
		if r < 0x20 {
			return -1
		}
		return r
	}, detail)
	const maxDetail = 2048
	if len(detail) > maxDetail {
		detail = detail[:maxDetail] + "..."
	}
	return detail
}

// MemorySink retains events in memory. Used in tests and by the dry-run
// path.
type MemorySink struct {
	mu     sync.Mutex
	events []types.AuditEvent
}

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Record(event types.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *MemorySink) Close() error { return nil }

// Events returns a copy of all recorded events in append order.
func (s *MemorySink) Events() []types.AuditEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.AuditEvent, len(s.events))
	copy(out, s.events)
	return out
}

// ByCategory returns recorded events matching the given category.
func (s *MemorySink) ByCategory(category types.AuditCategory) []types.AuditEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []types.AuditEvent
	for _, e := range s.events {
		if e.Category == category {
			out = append(out, e)
		}
	}
	return out
}

// FileSink appends events as JSON lines to a file. The file is opened in
// append-only mode; the sink never rewrites earlier content.
type FileSink struct {
	mu   sync.Mutex
	file *os.File
}

// NewFileSink opens (or creates) the audit log at path.
func NewFileSink(path string) (*FileSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening audit log: %w", err)
	}
	return &FileSink{file: f}, nil
}

func (s *FileSink) Record(event types.AuditEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding audit event: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("writing audit event: %w", err)
	}
	return nil
}

func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}

// MultiSink fans an event out to several sinks. The first error wins but
// every sink still sees the event.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink combines sinks into one.
func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

func (s *MultiSink) Record(event types.AuditEvent) error {
	var firstErr error
	for _, sink := range s.sinks {
		if err := sink.Record(event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (s *MultiSink) Close() error {
	var firstErr error
	for _, sink := range s.sinks {
		if err := sink.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// NopSink discards every event.
type NopSink struct{}

func (NopSink) Record(types.AuditEvent) error { return nil }
func (NopSink) Close() error                  { return nil }
