package contract

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hpungsan/stateintent/internal/record"
)

//go:embed defaults.json
var defaultsJSON []byte

// Defaults is the Phase-0 fixed content every intermediate record is built
// from. Intent and next-action inference are not implemented yet; these
// values are static configuration, not derived from the input.
type Defaults struct {
	Intent         string                 `json:"intent"`
	NextActions    []string               `json:"next_actions"`
	Confidence     float64                `json:"confidence"`
	RollbackPlan   string                 `json:"rollback_plan"`
	ActionBindings []record.ActionBinding `json:"action_bindings"`
	FallbackStates []string               `json:"fallback_states"`
}

// LoadDefaults decodes the embedded Phase-0 content.
func LoadDefaults() (Defaults, error) {
	return ParseDefaults(defaultsJSON)
}

// ParseDefaults decodes and checks a defaults document.
func ParseDefaults(data []byte) (Defaults, error) {
	var d Defaults
	if err := json.Unmarshal(data, &d); err != nil {
		return Defaults{}, fmt.Errorf("parse defaults: %w", err)
	}
	if strings.TrimSpace(d.Intent) == "" {
		return Defaults{}, fmt.Errorf("defaults: intent is empty")
	}
	if strings.TrimSpace(d.RollbackPlan) == "" {
		return Defaults{}, fmt.Errorf("defaults: rollback_plan is empty")
	}
	if len(d.ActionBindings) == 0 {
		return Defaults{}, fmt.Errorf("defaults: at least one action binding is required")
	}
	if len(d.FallbackStates) == 0 {
		return Defaults{}, fmt.Errorf("defaults: fallback_states is empty")
	}
	return d, nil
}

// Build returns a fresh intermediate record holding states plus the fixed
// content. Nothing in the result aliases d.
func (d Defaults) Build(states []string, traceID string) *record.Record {
	bindings := make([]*record.ActionBinding, len(d.ActionBindings))
	for i := range d.ActionBindings {
		b := d.ActionBindings[i]
		bindings[i] = &b
	}
	return &record.Record{
		State:          append([]string(nil), states...),
		Intent:         record.String(d.Intent),
		NextActions:    append([]string(nil), d.NextActions...),
		Confidence:     record.Float(d.Confidence),
		TraceID:        traceID,
		RollbackPlan:   d.RollbackPlan,
		ActionBindings: bindings,
	}
}
