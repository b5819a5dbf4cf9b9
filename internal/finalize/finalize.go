// Package finalize stamps validated records with a trace identifier and a
// generation timestamp and forces every action binding into dry-run mode.
package finalize

import (
	"time"

	"github.com/google/uuid"

	"github.com/hpungsan/stateintent/internal/errors"
	"github.com/hpungsan/stateintent/internal/record"
	"github.com/hpungsan/stateintent/internal/validate"
)

// Finalizer produces final records. The zero value is not usable; use New.
type Finalizer struct {
	now   func() time.Time
	newID func() string
}

// Option configures a Finalizer.
type Option func(*Finalizer)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(f *Finalizer) { f.now = now }
}

// WithIDGenerator overrides the trace identifier source.
func WithIDGenerator(newID func() string) Option {
	return func(f *Finalizer) { f.newID = newID }
}

// New returns a Finalizer using UUIDv4 trace ids and the system clock.
func New(opts ...Option) *Finalizer {
	f := &Finalizer{
		now:   time.Now,
		newID: NewTraceID,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// NewTraceID returns a random UUID string.
func NewTraceID() string {
	return uuid.NewString()
}

// Finalize returns a deep copy of r with a fresh trace id, an RFC 3339 UTC
// generation time, and dry_run forced true on every binding. Nil bindings
// are dropped. Nothing else is touched.
//
// Finalize refuses a failing outcome even though the controller never passes
// one.
func (f *Finalizer) Finalize(r *record.Record, outcome validate.Outcome) (*record.Record, error) {
	if !outcome.OK {
		return nil, errors.NewFinalization(outcome.Issues)
	}

	out := r.Clone()
	if out == nil {
		out = &record.Record{}
	}
	out.TraceID = f.newID()
	out.GeneratedAt = f.now().UTC().Format(time.RFC3339Nano)

	bindings := make([]*record.ActionBinding, 0, len(out.ActionBindings))
	for _, b := range out.ActionBindings {
		if b == nil {
			continue
		}
		b.DryRun = true
		bindings = append(bindings, b)
	}
	out.ActionBindings = bindings

	return out, nil
}
