// Package contract holds the static documents the pipeline is built against:
// the structural constraints schema, the Phase-0 fixed content, and the
// catalog of example inputs.
package contract

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/hpungsan/stateintent/internal/record"
)

//go:embed state_intent.schema.json
var schemaJSON []byte

// schemaURL matches the document's $id.
const schemaURL = "https://stateintent.local/contracts/state_intent.schema.json"

// schemaNode is the part of the document LoadConstraints reads.
type schemaNode struct {
	Required    []string               `json:"required"`
	Properties  map[string]*schemaNode `json:"properties"`
	Items       *schemaNode            `json:"items"`
	MinItems    *int                   `json:"minItems"`
	UniqueItems bool                   `json:"uniqueItems"`
	Minimum     *float64               `json:"minimum"`
	Maximum     *float64               `json:"maximum"`
}

var loadSchema = sync.OnceValues(func() (*schemaNode, error) {
	var root schemaNode
	if err := json.Unmarshal(schemaJSON, &root); err != nil {
		return nil, fmt.Errorf("parse state_intent schema: %w", err)
	}
	return &root, nil
})

// Constraints are the numeric and structural bounds from the schema that the
// structural validator enforces.
type Constraints struct {
	Required               []string
	StateMinItems          int
	StateUnique            bool
	NextActionsMinItems    int
	ConfidenceMin          float64
	ConfidenceMax          float64
	ActionBindingsMinItems int
	ActionBindingRequired  []string
}

// LoadConstraints decodes Constraints from the embedded schema.
func LoadConstraints() (Constraints, error) {
	root, err := loadSchema()
	if err != nil {
		return Constraints{}, err
	}

	prop := func(name string) (*schemaNode, error) {
		p, ok := root.Properties[name]
		if !ok || p == nil {
			return nil, fmt.Errorf("schema: property %q missing", name)
		}
		return p, nil
	}
	minItems := func(name string) (int, error) {
		p, err := prop(name)
		if err != nil {
			return 0, err
		}
		if p.MinItems == nil {
			return 0, fmt.Errorf("schema: %s.minItems missing", name)
		}
		return *p.MinItems, nil
	}

	c := Constraints{Required: append([]string(nil), root.Required...)}

	if c.StateMinItems, err = minItems("state"); err != nil {
		return Constraints{}, err
	}
	if c.NextActionsMinItems, err = minItems("next_actions"); err != nil {
		return Constraints{}, err
	}
	if c.ActionBindingsMinItems, err = minItems("action_bindings"); err != nil {
		return Constraints{}, err
	}

	state, _ := prop("state")
	c.StateUnique = state.UniqueItems

	conf, err := prop("confidence")
	if err != nil {
		return Constraints{}, err
	}
	if conf.Minimum == nil || conf.Maximum == nil {
		return Constraints{}, fmt.Errorf("schema: confidence range missing")
	}
	c.ConfidenceMin, c.ConfidenceMax = *conf.Minimum, *conf.Maximum

	bindings, _ := prop("action_bindings")
	if bindings.Items != nil {
		c.ActionBindingRequired = append([]string(nil), bindings.Items.Required...)
	}

	return c, nil
}

// MustConstraints is LoadConstraints for building default validators; the embedded
// document is fixed at build time, so a failure is a build defect.
func MustConstraints() Constraints {
	c, err := LoadConstraints()
	if err != nil {
		panic(err)
	}
	return c
}

var compileSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("parse state_intent schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	c.DefaultDraft(jsonschema.Draft7)
	c.AssertFormat()
	if err := c.AddResource(schemaURL, doc); err != nil {
		return nil, fmt.Errorf("add state_intent schema: %w", err)
	}
	sch, err := c.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile state_intent schema: %w", err)
	}
	return sch, nil
})

var issuePrinter = message.NewPrinter(language.English)

// ConformRecord checks r against the full schema document and returns every
// violation found. An empty result means r conforms.
func ConformRecord(r *record.Record) ([]string, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return Conform(data)
}

// Conform checks a JSON document against the full schema. Each issue is the
// JSON pointer of the offending value followed by the violation, sorted.
func Conform(doc []byte) ([]string, error) {
	sch, err := compileSchema()
	if err != nil {
		return nil, err
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(doc))
	if err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}

	err = sch.Validate(inst)
	if err == nil {
		return nil, nil
	}
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return nil, err
	}
	var issues []string
	collectIssues(verr, &issues)
	sort.Strings(issues)
	return issues, nil
}

// collectIssues flattens the leaves of a validation error tree.
func collectIssues(e *jsonschema.ValidationError, issues *[]string) {
	if len(e.Causes) == 0 {
		loc := "/" + strings.Join(e.InstanceLocation, "/")
		*issues = append(*issues, loc+": "+e.ErrorKind.LocalizedString(issuePrinter))
		return
	}
	for _, c := range e.Causes {
		collectIssues(c, issues)
	}
}
