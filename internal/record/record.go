// Package record defines the state-intent document that flows through the
// conversion pipeline, from intermediate candidate to final output.
package record

import "strings"

// ActionBinding associates a recommended action with an external API.
// Bindings are never executed; DryRun is forced true on finalization.
type ActionBinding struct {
	Action string `json:"action"`
	API    string `json:"api"`
	DryRun bool   `json:"dry_run"`
}

// Record is a state-intent document. Optional fields are pointers or nil
// slices so that absence can be told apart from zero values when a record is
// decoded from caller-supplied JSON.
type Record struct {
	State          []string         `json:"state"`
	Intent         *string          `json:"intent,omitempty"`
	NextActions    []string         `json:"next_actions"`
	Confidence     *float64         `json:"confidence,omitempty"`
	TraceID        string           `json:"trace_id"`
	GeneratedAt    string           `json:"generated_at,omitempty"`
	RollbackPlan   string           `json:"rollback_plan"`
	ActionBindings []*ActionBinding `json:"action_bindings"`
}

// IsEmpty reports whether r carries no fields at all.
func (r *Record) IsEmpty() bool {
	if r == nil {
		return true
	}
	return r.State == nil &&
		r.Intent == nil &&
		r.NextActions == nil &&
		r.Confidence == nil &&
		r.TraceID == "" &&
		r.GeneratedAt == "" &&
		r.RollbackPlan == "" &&
		r.ActionBindings == nil
}

// Clone returns a deep copy of r. Nil stays nil, and nil entries in
// ActionBindings are preserved.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := &Record{
		State:        cloneStrings(r.State),
		NextActions:  cloneStrings(r.NextActions),
		TraceID:      r.TraceID,
		GeneratedAt:  r.GeneratedAt,
		RollbackPlan: r.RollbackPlan,
	}
	if r.Intent != nil {
		out.Intent = String(*r.Intent)
	}
	if r.Confidence != nil {
		out.Confidence = Float(*r.Confidence)
	}
	if r.ActionBindings != nil {
		out.ActionBindings = make([]*ActionBinding, len(r.ActionBindings))
		for i, b := range r.ActionBindings {
			if b == nil {
				continue
			}
			cp := *b
			out.ActionBindings[i] = &cp
		}
	}
	return out
}

// NormalizeStates trims, drops empties, removes duplicates (keeping first
// occurrence), then pads from fallback until the list holds at least min
// entries. Fallback values already present are skipped. The result is stable
// under repeated application.
func NormalizeStates(states, fallback []string, min int) []string {
	out := make([]string, 0, max(len(states), min))
	seen := make(map[string]bool, len(states))

	for _, s := range states {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}

	for _, f := range fallback {
		if len(out) >= min {
			break
		}
		f = strings.TrimSpace(f)
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}

	return out
}

// String returns a pointer to s.
func String(s string) *string { return &s }

// Float returns a pointer to f.
func Float(f float64) *float64 { return &f }

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
