// Package validate checks candidate records against the structural rules.
package validate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/hpungsan/stateintent/internal/contract"
	"github.com/hpungsan/stateintent/internal/errors"
	"github.com/hpungsan/stateintent/internal/record"
)

// Outcome is the result of one validation call. Issues is empty iff OK.
type Outcome struct {
	OK     bool     `json:"ok"`
	Issues []string `json:"issues"`
}

// Passed returns a passing outcome.
func Passed() Outcome {
	return Outcome{OK: true, Issues: []string{}}
}

// Failed returns a failing outcome with the given issues.
func Failed(issues ...string) Outcome {
	return Outcome{OK: false, Issues: append([]string{}, issues...)}
}

// Validator applies the structural rules. It is stateless and safe for
// concurrent use.
type Validator struct {
	c contract.Constraints
}

// New returns a Validator using c.
func New(c contract.Constraints) *Validator {
	return &Validator{c: c}
}

// Default returns a Validator built from the embedded constraints document.
func Default() *Validator {
	return New(contract.MustConstraints())
}

// Validate checks r and never fails; every problem is reported as an issue.
func (v *Validator) Validate(r *record.Record) Outcome {
	return v.ValidatePayload(payloadOf(r))
}

// ValidatePayload applies the rules to a decoded JSON object. Rules are
// evaluated independently in a fixed order; a missing or empty payload stops
// at the first issue. Values of the wrong type fail the rule for their field.
func (v *Validator) ValidatePayload(p map[string]any) Outcome {
	if len(p) == 0 {
		return Failed("payload is empty")
	}

	var issues []string

	state, ok := p["state"].([]any)
	if !ok || len(state) < v.c.StateMinItems {
		issues = append(issues, fmt.Sprintf("state must contain at least %d items", v.c.StateMinItems))
	} else if v.c.StateUnique && hasDuplicates(state) {
		issues = append(issues, "state contains duplicate values")
	}

	if _, ok := p["intent"].(string); !ok {
		issues = append(issues, "intent is required")
	}

	if next, ok := p["next_actions"].([]any); !ok || len(next) < v.c.NextActionsMinItems {
		issues = append(issues, fmt.Sprintf("next_actions must contain at least %d items", v.c.NextActionsMinItems))
	}

	if f, ok := number(p["confidence"]); !ok || !inRange(f, v.c.ConfidenceMin, v.c.ConfidenceMax) {
		issues = append(issues, fmt.Sprintf("confidence must be between %s and %s",
			formatBound(v.c.ConfidenceMin), formatBound(v.c.ConfidenceMax)))
	}

	if bindings, ok := p["action_bindings"].([]any); !ok || len(bindings) < v.c.ActionBindingsMinItems {
		noun := "items"
		if v.c.ActionBindingsMinItems == 1 {
			noun = "item"
		}
		issues = append(issues, fmt.Sprintf("action_bindings must contain at least %d %s", v.c.ActionBindingsMinItems, noun))
	}

	if len(issues) == 0 {
		return Passed()
	}
	return Failed(issues...)
}

// ValidateJSON decodes a record document and validates it. Only bytes that
// are not JSON fail with INVALID_INPUT; a document that is not an object
// fails as an empty payload, and wrong field types are reported as issues.
func (v *Validator) ValidateJSON(data []byte) (Outcome, error) {
	p, err := decodePayload(data)
	if err != nil {
		return Outcome{}, err
	}
	return v.ValidatePayload(p), nil
}

// StrictJSON is ValidateJSON followed, once the rules pass, by a check of the
// document against the full constraints schema. Schema violations are
// reported as issues.
func (v *Validator) StrictJSON(data []byte) (Outcome, error) {
	out, err := v.ValidateJSON(data)
	if err != nil || !out.OK {
		return out, err
	}
	issues, err := contract.Conform(data)
	if err != nil {
		return Outcome{}, errors.NewInternal(err)
	}
	if len(issues) > 0 {
		return Failed(issues...), nil
	}
	return Passed(), nil
}

func decodePayload(data []byte) (map[string]any, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, errors.NewInvalidInput("record is required")
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.NewInvalidInput("record is not valid JSON")
	}
	p, _ := doc.(map[string]any)
	return p, nil
}

// payloadOf renders r the way it would decode from JSON, leaving absent
// fields out.
func payloadOf(r *record.Record) map[string]any {
	if r == nil {
		return nil
	}
	p := make(map[string]any)
	if r.State != nil {
		p["state"] = toAny(r.State)
	}
	if r.Intent != nil {
		p["intent"] = *r.Intent
	}
	if r.NextActions != nil {
		p["next_actions"] = toAny(r.NextActions)
	}
	if r.Confidence != nil {
		p["confidence"] = *r.Confidence
	}
	if r.TraceID != "" {
		p["trace_id"] = r.TraceID
	}
	if r.GeneratedAt != "" {
		p["generated_at"] = r.GeneratedAt
	}
	if r.RollbackPlan != "" {
		p["rollback_plan"] = r.RollbackPlan
	}
	if r.ActionBindings != nil {
		bindings := make([]any, len(r.ActionBindings))
		for i, b := range r.ActionBindings {
			bindings[i] = b
		}
		p["action_bindings"] = bindings
	}
	return p
}

func toAny(values []string) []any {
	out := make([]any, len(values))
	for i, s := range values {
		out[i] = s
	}
	return out
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// hasDuplicates compares entries by their JSON encoding so that any decoded
// value can be keyed.
func hasDuplicates(values []any) bool {
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		key, err := json.Marshal(v)
		if err != nil {
			key = []byte(fmt.Sprintf("%#v", v))
		}
		seen[string(key)] = struct{}{}
	}
	return len(seen) != len(values)
}

func inRange(f, lo, hi float64) bool {
	return !math.IsNaN(f) && f >= lo && f <= hi
}

func formatBound(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
