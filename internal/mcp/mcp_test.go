package mcp

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/hpungsan/stateintent/internal/audit"
	"github.com/hpungsan/stateintent/internal/config"
	"github.com/hpungsan/stateintent/internal/convert"
	"github.com/hpungsan/stateintent/internal/errors"
	"github.com/hpungsan/stateintent/internal/extract"
	"github.com/hpungsan/stateintent/internal/record"
	"github.com/hpungsan/stateintent/internal/validate"
)

const presetText = "最近来店が減っている。値引きには反応しないが、限定感には反応する。"

// testSetup creates handlers around a fresh controller and in-memory sink.
func testSetup(t *testing.T, opts ...convert.Option) (*Handlers, *audit.MemorySink) {
	t.Helper()
	sink := audit.NewMemorySink()
	conv, err := convert.New(append([]convert.Option{convert.WithAuditSink(sink)}, opts...)...)
	if err != nil {
		t.Fatalf("convert.New: %v", err)
	}
	return NewHandlers(conv, zap.NewNop()), sink
}

// makeRequest creates a CallToolRequest with the given arguments.
func makeRequest(args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Arguments: args,
		},
	}
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("result has no content")
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content[0] is %T, want mcp.TextContent", result.Content[0])
	}
	return text.Text
}

type errorPayload struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Status  int            `json:"status"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func decodeErrorPayload(t *testing.T, result *mcp.CallToolResult) errorPayload {
	t.Helper()
	if !result.IsError {
		t.Fatalf("expected error result, got %s", resultText(t, result))
	}
	var p errorPayload
	if err := json.Unmarshal([]byte(resultText(t, result)), &p); err != nil {
		t.Fatalf("decode error payload: %v", err)
	}
	return p
}

type alwaysFail struct{}

func (alwaysFail) Validate(*record.Record) validate.Outcome {
	return validate.Failed("state不足")
}

// --- state_intent_convert ---

func TestHandleConvert(t *testing.T) {
	h, sink := testSetup(t)

	result, err := h.HandleConvert(context.Background(), makeRequest(map[string]any{"text": presetText}))
	if err != nil {
		t.Fatalf("HandleConvert: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", resultText(t, result))
	}

	var got record.Record
	if err := json.Unmarshal([]byte(resultText(t, result)), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.State) < 3 {
		t.Errorf("state = %v, want >= 3 entries", got.State)
	}
	for i, b := range got.ActionBindings {
		if !b.DryRun {
			t.Errorf("action_bindings[%d].dry_run = false", i)
		}
	}
	if sink.Len() != 1 {
		t.Errorf("audit entries = %d, want 1", sink.Len())
	}
}

func TestHandleConvert_Errors(t *testing.T) {
	tests := []struct {
		name     string
		opts     []convert.Option
		args     map[string]any
		wantCode errors.ErrorCode
		wantMsg  string
	}{
		{
			name:     "missing text",
			args:     map[string]any{},
			wantCode: errors.ErrInvalidInput,
		},
		{
			name:     "blank text",
			args:     map[string]any{"text": "  "},
			wantCode: errors.ErrInvalidInput,
		},
		{
			name:     "wrong type",
			args:     map[string]any{"text": 7},
			wantCode: errors.ErrInvalidInput,
		},
		{
			name:     "unknown argument",
			args:     map[string]any{"text": "x", "mode": "fast"},
			wantCode: errors.ErrInvalidInput,
		},
		{
			name:     "too large",
			opts:     []convert.Option{convert.WithMaxInputChars(3)},
			args:     map[string]any{"text": "abcd"},
			wantCode: errors.ErrInputTooLarge,
		},
		{
			name:     "retries exhausted",
			opts:     []convert.Option{convert.WithValidator(alwaysFail{})},
			args:     map[string]any{"text": presetText},
			wantCode: errors.ErrMaxRetriesExceeded,
			wantMsg:  "validation failed after max retries: state不足",
		},
		{
			name: "extraction failure is masked",
			opts: []convert.Option{convert.WithExtractor(extract.New(extract.SourceFunc(
				func(context.Context, string) ([]string, error) {
					return nil, stderrors.New("secret upstream detail")
				})))},
			args:     map[string]any{"text": presetText},
			wantCode: errors.ErrExtractionFailed,
			wantMsg:  "an internal error occurred",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := testSetup(t, tt.opts...)
			result, err := h.HandleConvert(context.Background(), makeRequest(tt.args))
			if err != nil {
				t.Fatalf("HandleConvert: %v", err)
			}
			p := decodeErrorPayload(t, result)
			if p.Error.Code != string(tt.wantCode) {
				t.Errorf("code = %q, want %q", p.Error.Code, tt.wantCode)
			}
			if tt.wantMsg != "" && p.Error.Message != tt.wantMsg {
				t.Errorf("message = %q, want %q", p.Error.Message, tt.wantMsg)
			}
			if strings.Contains(resultText(t, result), "secret") {
				t.Error("error payload leaks collaborator detail")
			}
		})
	}
}

func TestHandleConvert_MaxRetriesSurfacesSummaryOnly(t *testing.T) {
	h, _ := testSetup(t, convert.WithValidator(alwaysFail{}), convert.WithMaxRetries(1))
	result, _ := h.HandleConvert(context.Background(), makeRequest(map[string]any{"text": presetText}))

	p := decodeErrorPayload(t, result)
	if p.Error.Code != string(errors.ErrMaxRetriesExceeded) {
		t.Errorf("code = %q", p.Error.Code)
	}
	if !strings.HasPrefix(p.Error.Message, "validation failed after max retries: ") {
		t.Errorf("message = %q", p.Error.Message)
	}
	if p.Error.Details != nil {
		t.Errorf("details surfaced: %v", p.Error.Details)
	}
}

// --- state_intent_validate ---

func TestHandleValidate(t *testing.T) {
	valid := map[string]any{
		"state":         []any{"a", "b", "c"},
		"intent":        "x",
		"next_actions":  []any{"1", "2", "3"},
		"confidence":    0.9,
		"trace_id":      "t",
		"rollback_plan": "r",
		"action_bindings": []any{
			map[string]any{"action": "a", "api": "b", "dry_run": true},
		},
	}

	tests := []struct {
		name       string
		record     any
		wantOK     bool
		wantIssues []string
	}{
		{name: "valid", record: valid, wantOK: true, wantIssues: []string{}},
		{name: "empty", record: map[string]any{}, wantIssues: []string{"payload is empty"}},
		{
			name:   "short state and bad confidence",
			record: map[string]any{"state": []any{"a"}, "intent": "x", "next_actions": []any{"1", "2", "3"}, "confidence": 1.5, "action_bindings": []any{map[string]any{}}},
			wantIssues: []string{
				"state must contain at least 3 items",
				"confidence must be between 0 and 1",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := testSetup(t)
			result, err := h.HandleValidate(context.Background(), makeRequest(map[string]any{"record": tt.record}))
			if err != nil {
				t.Fatalf("HandleValidate: %v", err)
			}
			if result.IsError {
				t.Fatalf("unexpected error: %s", resultText(t, result))
			}

			var out validate.Outcome
			if err := json.Unmarshal([]byte(resultText(t, result)), &out); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if out.OK != tt.wantOK {
				t.Errorf("ok = %v, want %v", out.OK, tt.wantOK)
			}
			if fmt.Sprint(out.Issues) != fmt.Sprint(tt.wantIssues) {
				t.Errorf("issues = %v, want %v", out.Issues, tt.wantIssues)
			}
		})
	}
}

func TestHandleValidate_MissingRecord(t *testing.T) {
	for name, args := range map[string]map[string]any{
		"missing":     {},
		"unknown arg": {"record": map[string]any{}, "mode": "x"},
	} {
		t.Run(name, func(t *testing.T) {
			h, _ := testSetup(t)
			result, _ := h.HandleValidate(context.Background(), makeRequest(args))
			p := decodeErrorPayload(t, result)
			if p.Error.Code != string(errors.ErrInvalidInput) {
				t.Errorf("code = %q", p.Error.Code)
			}
		})
	}
}

func TestHandleValidate_WrongShapesAreIssues(t *testing.T) {
	tests := []struct {
		name   string
		record any
		want   string
	}{
		{"string record", "text", "payload is empty"},
		{"state not a list", map[string]any{"state": "a"}, "state must contain at least 3 items"},
		{"intent not a string", map[string]any{"intent": 5}, "intent is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := testSetup(t)
			result, _ := h.HandleValidate(context.Background(), makeRequest(map[string]any{"record": tt.record}))
			if result.IsError {
				t.Fatalf("unexpected error: %s", resultText(t, result))
			}
			var out validate.Outcome
			if err := json.Unmarshal([]byte(resultText(t, result)), &out); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if out.OK || len(out.Issues) == 0 || !contains(out.Issues, tt.want) {
				t.Errorf("issues = %v, want %q among them", out.Issues, tt.want)
			}
		})
	}
}

func TestHandleValidate_Strict(t *testing.T) {
	record := map[string]any{
		"state":           []any{"a", "b", "c"},
		"intent":          "x",
		"next_actions":    []any{"1", "2", "3"},
		"confidence":      0.9,
		"trace_id":        "t",
		"rollback_plan":   "r",
		"action_bindings": []any{map[string]any{"action": "a", "api": "b"}},
	}

	for _, strict := range []bool{false, true} {
		h, _ := testSetup(t)
		result, _ := h.HandleValidate(context.Background(), makeRequest(map[string]any{"record": record, "strict": strict}))
		if result.IsError {
			t.Fatalf("strict=%v: unexpected error: %s", strict, resultText(t, result))
		}
		var out validate.Outcome
		if err := json.Unmarshal([]byte(resultText(t, result)), &out); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if out.OK == strict {
			t.Errorf("strict=%v: ok = %v (binding lacks dry_run)", strict, out.OK)
		}
		if strict && !strings.Contains(strings.Join(out.Issues, " "), "dry_run") {
			t.Errorf("strict issues = %v, want dry_run mentioned", out.Issues)
		}
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// --- presets_list ---

func TestHandlePresets(t *testing.T) {
	h, _ := testSetup(t)
	result, err := h.HandlePresets(context.Background(), makeRequest(nil))
	if err != nil || result.IsError {
		t.Fatalf("HandlePresets: %v", err)
	}

	var out struct {
		Presets []struct {
			Label string `json:"label"`
			Text  string `json:"text"`
		} `json:"presets"`
	}
	if err := json.Unmarshal([]byte(resultText(t, result)), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Presets) == 0 || out.Presets[0].Text != presetText {
		t.Errorf("presets = %+v", out.Presets)
	}
}

// --- audit_last / audit_recent ---

func TestHandleAuditLast(t *testing.T) {
	h, _ := testSetup(t)
	ctx := context.Background()

	result, err := h.HandleAuditLast(ctx, makeRequest(nil))
	if err != nil || result.IsError {
		t.Fatalf("HandleAuditLast: %v", err)
	}
	var empty map[string]any
	if err := json.Unmarshal([]byte(resultText(t, result)), &empty); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if v, ok := empty["entry"]; !ok || v != nil {
		t.Errorf("empty sink = %v, want entry: null", empty)
	}

	convResult, _ := h.HandleConvert(ctx, makeRequest(map[string]any{"text": presetText}))
	var final record.Record
	if err := json.Unmarshal([]byte(resultText(t, convResult)), &final); err != nil {
		t.Fatalf("decode: %v", err)
	}

	result, _ = h.HandleAuditLast(ctx, makeRequest(nil))
	var out struct {
		Entry *audit.Entry `json:"entry"`
	}
	if err := json.Unmarshal([]byte(resultText(t, result)), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Entry == nil {
		t.Fatal("entry is null after a conversion")
	}
	if out.Entry.TraceID != final.TraceID {
		t.Errorf("trace_id = %q, want %q", out.Entry.TraceID, final.TraceID)
	}
	if out.Entry.Status != audit.StatusSuccess {
		t.Errorf("status = %q", out.Entry.Status)
	}
}

func TestHandleAuditRecent(t *testing.T) {
	h, _ := testSetup(t)
	ctx := context.Background()
	for i := 0; i < 12; i++ {
		text := fmt.Sprintf("入力%d。理由%d", i, i)
		if r, _ := h.HandleConvert(ctx, makeRequest(map[string]any{"text": text})); r.IsError {
			t.Fatalf("convert %d: %s", i, resultText(t, r))
		}
	}

	tests := []struct {
		name  string
		args  map[string]any
		count int
	}{
		{"default limit", nil, defaultAuditLimit},
		{"explicit limit", map[string]any{"limit": 3}, 3},
		{"limit above stored", map[string]any{"limit": 50}, 12},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := h.HandleAuditRecent(ctx, makeRequest(tt.args))
			if err != nil || result.IsError {
				t.Fatalf("HandleAuditRecent: %v", err)
			}
			var out struct {
				Entries []audit.Entry `json:"entries"`
			}
			if err := json.Unmarshal([]byte(resultText(t, result)), &out); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if len(out.Entries) != tt.count {
				t.Fatalf("entries = %d, want %d", len(out.Entries), tt.count)
			}
			if out.Entries[0].InputText != "入力11。理由11" {
				t.Errorf("newest entry = %q", out.Entries[0].InputText)
			}
		})
	}
}

func TestHandleAuditRecent_InvalidLimit(t *testing.T) {
	h, _ := testSetup(t)
	for _, limit := range []any{0, -5, "ten"} {
		result, _ := h.HandleAuditRecent(context.Background(), makeRequest(map[string]any{"limit": limit}))
		p := decodeErrorPayload(t, result)
		if p.Error.Code != string(errors.ErrInvalidInput) {
			t.Errorf("limit %v: code = %q", limit, p.Error.Code)
		}
	}
}

// --- errorResult ---

func TestErrorResult_PlainErrorIsMasked(t *testing.T) {
	result := errorResult(stderrors.New("sql: database is closed"))
	p := decodeErrorPayload(t, result)
	if p.Error.Code != "INTERNAL" || p.Error.Status != 500 {
		t.Errorf("payload = %+v", p.Error)
	}
	if p.Error.Message != "an internal error occurred" {
		t.Errorf("message = %q", p.Error.Message)
	}
}

func TestErrorResult_PublicOmitsDetails(t *testing.T) {
	p := decodeErrorPayload(t, errorResult(errors.NewInputTooLarge(5, 9)))
	if p.Error.Code != string(errors.ErrInputTooLarge) || p.Error.Status != 413 {
		t.Errorf("error = %+v", p.Error)
	}
	if p.Error.Details != nil {
		t.Errorf("details surfaced: %v", p.Error.Details)
	}
}

func TestErrorResult_InternalOmitsDetails(t *testing.T) {
	e := errors.NewInternal(stderrors.New("boom"))
	e.Details = map[string]any{"path": "/etc/secret"}
	p := decodeErrorPayload(t, errorResult(e))
	if p.Error.Details != nil {
		t.Errorf("details leaked: %v", p.Error.Details)
	}
}

// --- registration ---

func TestServerRegistration(t *testing.T) {
	conv, err := convert.New()
	if err != nil {
		t.Fatalf("convert.New: %v", err)
	}
	s := NewServer(conv, config.DefaultConfig(), "test", nil)

	tools := s.ListTools()
	want := []string{"state_intent_convert", "state_intent_validate", "presets_list", "audit_last", "audit_recent"}
	if len(tools) != len(want) {
		t.Errorf("registered tool count = %d, want %d", len(tools), len(want))
	}
	for _, name := range want {
		if _, ok := tools[name]; !ok {
			t.Errorf("tool %q not registered", name)
		}
	}
}

func TestServerRegistration_DisabledTools(t *testing.T) {
	conv, _ := convert.New()
	cfg := config.DefaultConfig()
	cfg.DisabledTools = []string{"audit_last", "audit_recent", "no_such_tool"}

	tools := NewServer(conv, cfg, "test", nil).ListTools()
	if len(tools) != 3 {
		t.Errorf("registered tool count = %d, want 3", len(tools))
	}
	for _, name := range []string{"audit_last", "audit_recent"} {
		if _, ok := tools[name]; ok {
			t.Errorf("disabled tool %q should not be registered", name)
		}
	}
}

func TestServerRegistration_AllToolsDisabled(t *testing.T) {
	conv, _ := convert.New()
	cfg := config.DefaultConfig()
	cfg.DisabledTools = AllToolNames()

	if tools := NewServer(conv, cfg, "test", nil).ListTools(); len(tools) != 0 {
		t.Errorf("registered tool count = %d, want 0 (all disabled)", len(tools))
	}
}

func TestValidateDisabledTools(t *testing.T) {
	unknown := ValidateDisabledTools([]string{"presets_list", "store_record", "bogus"})
	if fmt.Sprint(unknown) != "[store_record bogus]" {
		t.Errorf("unknown = %v", unknown)
	}
}
