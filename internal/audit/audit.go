// Package audit records one entry per completed conversion.
// Entries are kept for the lifetime of the process only.
package audit

import (
	"context"
	"fmt"
	"sync"
)

// Status is the outcome recorded for a conversion.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Entry is one audit record.
type Entry struct {
	TraceID   string   `json:"trace_id"`
	InputText string   `json:"input_text"`
	State     []string `json:"state"`
	Status    Status   `json:"status"`
	Timestamp string   `json:"timestamp"`
	Error     string   `json:"error,omitempty"`
}

// Clone returns a deep copy of e.
func (e Entry) Clone() Entry {
	if e.State != nil {
		e.State = append([]string(nil), e.State...)
	}
	return e
}

// Sink stores audit entries. Implementations must be safe for concurrent use
// and must hand out copies so callers cannot reach stored state.
type Sink interface {
	// Save appends an entry.
	Save(ctx context.Context, e Entry) error
	// Last returns the most recent entry, or nil if nothing has been saved.
	Last(ctx context.Context) (*Entry, error)
	// Recent returns up to n entries, newest first.
	Recent(ctx context.Context, n int) ([]Entry, error)
}

// MemorySink is an unbounded in-process Sink. Every operation holds a single
// mutex for its whole duration.
type MemorySink struct {
	mu      sync.Mutex
	entries []Entry
}

// NewMemorySink returns an empty MemorySink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Save implements Sink.
func (s *MemorySink) Save(_ context.Context, e Entry) error {
	cp := e.Clone()
	s.mu.Lock()
	s.entries = append(s.entries, cp)
	s.mu.Unlock()
	return nil
}

// Last implements Sink.
func (s *MemorySink) Last(_ context.Context) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.entries) == 0 {
		return nil, nil
	}
	e := s.entries[len(s.entries)-1].Clone()
	return &e, nil
}

// Recent implements Sink.
func (s *MemorySink) Recent(_ context.Context, n int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n <= 0 || len(s.entries) == 0 {
		return []Entry{}, nil
	}
	n = min(n, len(s.entries))
	out := make([]Entry, 0, n)
	for i := len(s.entries) - 1; i >= len(s.entries)-n; i-- {
		out = append(out, s.entries[i].Clone())
	}
	return out, nil
}

// Len returns the number of stored entries.
func (s *MemorySink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Open returns the Sink for backend ("memory" or "sqlite") and a function
// that releases it.
func Open(ctx context.Context, backend string) (Sink, func() error, error) {
	switch backend {
	case "", "memory":
		return NewMemorySink(), func() error { return nil }, nil
	case "sqlite":
		s, err := OpenSQLite(ctx)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown audit backend %q", backend)
	}
}
