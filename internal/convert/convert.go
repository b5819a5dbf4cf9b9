// Package convert drives the extraction, validation, and finalization
// pipeline that turns free-form text into a state-intent record.
package convert

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/hpungsan/stateintent/internal/audit"
	"github.com/hpungsan/stateintent/internal/contract"
	"github.com/hpungsan/stateintent/internal/errors"
	"github.com/hpungsan/stateintent/internal/extract"
	"github.com/hpungsan/stateintent/internal/finalize"
	"github.com/hpungsan/stateintent/internal/record"
	"github.com/hpungsan/stateintent/internal/validate"
)

// Extractor turns text into raw state phrases.
type Extractor interface {
	Extract(ctx context.Context, text string) ([]string, error)
}

// Validator checks a candidate record.
type Validator interface {
	Validate(r *record.Record) validate.Outcome
}

// Finalizer turns a validated candidate into the returned record.
type Finalizer interface {
	Finalize(r *record.Record, outcome validate.Outcome) (*record.Record, error)
}

// Controller runs the pipeline in a fixed order: extract, build, validate,
// and on a passing outcome finalize. Validation failures are retried up to
// maxRetries times. Every call that reaches a terminal outcome (success or
// exhaustion) appends exactly one audit entry.
//
// A Controller holds no per-request state and is safe for concurrent use as
// long as its collaborators are.
type Controller struct {
	extractor  Extractor
	validator  Validator
	finalizer  Finalizer
	sink       audit.Sink
	maxRetries int
	maxChars   int

	defaults  contract.Defaults
	minStates int
	newID     func() string
	now       func() time.Time
	logger    *zap.Logger
}

// Option configures a Controller.
type Option func(*Controller)

// WithExtractor replaces the default extractor.
func WithExtractor(e Extractor) Option { return func(c *Controller) { c.extractor = e } }

// WithValidator replaces the default validator.
func WithValidator(v Validator) Option { return func(c *Controller) { c.validator = v } }

// WithFinalizer replaces the default finalizer.
func WithFinalizer(f Finalizer) Option { return func(c *Controller) { c.finalizer = f } }

// WithAuditSink replaces the default in-memory audit sink.
func WithAuditSink(s audit.Sink) Option { return func(c *Controller) { c.sink = s } }

// WithMaxRetries sets the retry bound. Total attempts = n + 1.
func WithMaxRetries(n int) Option { return func(c *Controller) { c.maxRetries = n } }

// WithMaxInputChars rejects input longer than n runes (after trimming).
// Zero means no limit.
func WithMaxInputChars(n int) Option { return func(c *Controller) { c.maxChars = n } }

// WithDefaults replaces the Phase-0 fixed content.
func WithDefaults(d contract.Defaults) Option { return func(c *Controller) { c.defaults = d } }

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option { return func(c *Controller) { c.logger = l } }

// WithClock overrides the audit timestamp source.
func WithClock(now func() time.Time) Option { return func(c *Controller) { c.now = now } }

// WithIDGenerator overrides trace ids for intermediate records and failure
// audit entries.
func WithIDGenerator(newID func() string) Option { return func(c *Controller) { c.newID = newID } }

// DefaultMaxRetries is used when WithMaxRetries is not given.
const DefaultMaxRetries = 2

// New builds a Controller. Collaborators not supplied get the standard
// implementations.
func New(opts ...Option) (*Controller, error) {
	constraints, err := contract.LoadConstraints()
	if err != nil {
		return nil, err
	}
	defaults, err := contract.LoadDefaults()
	if err != nil {
		return nil, err
	}

	c := &Controller{
		maxRetries: DefaultMaxRetries,
		defaults:   defaults,
		minStates:  constraints.StateMinItems,
		newID:      finalize.NewTraceID,
		now:        time.Now,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.maxRetries < 0 {
		return nil, fmt.Errorf("max retries must be non-negative, got %d", c.maxRetries)
	}
	if c.maxChars < 0 {
		return nil, fmt.Errorf("max input chars must be non-negative, got %d", c.maxChars)
	}
	if c.extractor == nil {
		c.extractor = extract.New(nil)
	}
	if c.validator == nil {
		c.validator = validate.New(constraints)
	}
	if c.finalizer == nil {
		c.finalizer = finalize.New()
	}
	if c.sink == nil {
		c.sink = audit.NewMemorySink()
	}
	return c, nil
}

// Audit returns the sink entries are written to.
func (c *Controller) Audit() audit.Sink { return c.sink }

// Convert turns text into a final record.
//
// Text is trimmed before anything else sees it. Empty text fails with
// INVALID_INPUT and oversized text with INPUT_TOO_LARGE, both before anything
// runs. Extraction and finalization errors are returned as-is, are not
// retried, and are not audited. When every attempt fails validation the
// result is MAX_RETRIES_EXCEEDED carrying the last attempt's issues.
func (c *Controller) Convert(ctx context.Context, text string) (*record.Record, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, errors.NewInvalidInput("text must not be empty")
	}
	if c.maxChars > 0 {
		if n := utf8.RuneCountInString(trimmed); n > c.maxChars {
			return nil, errors.NewInputTooLarge(c.maxChars, n)
		}
	}

	attempts := c.maxRetries + 1
	var (
		lastState   []string
		lastOutcome = validate.Failed("validation not executed")
	)

	for attempt := 1; attempt <= attempts; attempt++ {
		raw, err := c.extractor.Extract(ctx, trimmed)
		if err != nil {
			c.logger.Error("extraction failed", zap.Int("attempt", attempt), zap.Error(err))
			return nil, err
		}

		states := record.NormalizeStates(raw, c.defaults.FallbackStates, c.minStates)
		candidate := c.defaults.Build(states, c.newID())
		outcome := c.validator.Validate(candidate)
		lastState, lastOutcome = states, outcome

		if !outcome.OK {
			c.logger.Debug("validation failed",
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", attempts),
				zap.Strings("issues", outcome.Issues))
			continue
		}

		final, err := c.finalizer.Finalize(candidate, outcome)
		if err != nil {
			c.logger.Error("finalization failed", zap.Int("attempt", attempt), zap.Error(err))
			return nil, err
		}

		traceID := final.TraceID
		if traceID == "" {
			traceID = c.newID()
		}
		if err := c.record(ctx, audit.Entry{
			TraceID:   traceID,
			InputText: trimmed,
			State:     states,
			Status:    audit.StatusSuccess,
			Timestamp: c.timestamp(),
		}); err != nil {
			return nil, err
		}

		c.logger.Info("conversion succeeded",
			zap.String("trace_id", traceID),
			zap.Int("attempts", attempt))
		return final, nil
	}

	summary := errors.MaxRetriesSummary(lastOutcome.Issues)
	traceID := c.newID()
	if err := c.record(ctx, audit.Entry{
		TraceID:   traceID,
		InputText: trimmed,
		State:     lastState,
		Status:    audit.StatusFailed,
		Timestamp: c.timestamp(),
		Error:     summary,
	}); err != nil {
		return nil, err
	}

	c.logger.Warn("conversion exhausted retries",
		zap.String("trace_id", traceID),
		zap.Int("attempts", attempts),
		zap.Strings("issues", lastOutcome.Issues))
	return nil, errors.NewMaxRetriesExceeded(attempts, lastOutcome.Issues)
}

// record writes an audit entry. The write is detached from ctx cancellation
// so a caller hanging up cannot drop the entry.
func (c *Controller) record(ctx context.Context, e audit.Entry) error {
	if err := c.sink.Save(context.WithoutCancel(ctx), e); err != nil {
		c.logger.Error("audit save failed", zap.String("trace_id", e.TraceID), zap.Error(err))
		return errors.NewInternal(fmt.Errorf("save audit entry: %w", err))
	}
	return nil
}

func (c *Controller) timestamp() string {
	return c.now().UTC().Format(time.RFC3339Nano)
}
