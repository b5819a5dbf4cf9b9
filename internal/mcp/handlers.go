package mcp

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/hpungsan/stateintent/internal/audit"
	"github.com/hpungsan/stateintent/internal/contract"
	"github.com/hpungsan/stateintent/internal/convert"
	"github.com/hpungsan/stateintent/internal/errors"
	"github.com/hpungsan/stateintent/internal/validate"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	conv      *convert.Controller
	validator *validate.Validator
	logger    *zap.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(conv *convert.Controller, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		conv:      conv,
		validator: validate.Default(),
		logger:    logger,
	}
}

// ConvertRequest represents the arguments for state_intent_convert.
type ConvertRequest struct {
	Text string `json:"text"`
}

// ValidateRequest represents the arguments for state_intent_validate.
type ValidateRequest struct {
	Record json.RawMessage `json:"record"`
	Strict bool            `json:"strict,omitempty"`
}

// AuditRecentRequest represents the arguments for audit_recent.
type AuditRecentRequest struct {
	Limit *int `json:"limit,omitempty"`
}

// HandleConvert handles the state_intent_convert tool call.
func (h *Handlers) HandleConvert(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ConvertRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidInput(err.Error())), nil
	}

	final, err := h.conv.Convert(ctx, input.Text)
	if err != nil {
		h.logFailure("state_intent_convert", err)
		return errorResult(err), nil
	}
	return successResult(final)
}

// HandleValidate handles the state_intent_validate tool call.
func (h *Handlers) HandleValidate(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ValidateRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidInput(err.Error())), nil
	}

	check := h.validator.ValidateJSON
	if input.Strict {
		check = h.validator.StrictJSON
	}
	outcome, err := check(input.Record)
	if err != nil {
		h.logFailure("state_intent_validate", err)
		return errorResult(err), nil
	}
	return successResult(outcome)
}

// HandlePresets handles the presets_list tool call.
func (h *Handlers) HandlePresets(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	presets, err := contract.LoadPresets()
	if err != nil {
		h.logFailure("presets_list", err)
		return errorResult(errors.NewInternal(err)), nil
	}
	return successResult(map[string]any{"presets": presets})
}

// HandleAuditLast handles the audit_last tool call.
func (h *Handlers) HandleAuditLast(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	entry, err := h.conv.Audit().Last(ctx)
	if err != nil {
		h.logFailure("audit_last", err)
		return errorResult(errors.NewInternal(err)), nil
	}
	return successResult(map[string]*audit.Entry{"entry": entry})
}

// HandleAuditRecent handles the audit_recent tool call.
func (h *Handlers) HandleAuditRecent(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[AuditRecentRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidInput(err.Error())), nil
	}

	limit := defaultAuditLimit
	if input.Limit != nil {
		if *input.Limit < 1 {
			return errorResult(errors.NewInvalidInput("limit must be at least 1")), nil
		}
		limit = min(*input.Limit, maxAuditLimit)
	}

	entries, err := h.conv.Audit().Recent(ctx, limit)
	if err != nil {
		h.logFailure("audit_recent", err)
		return errorResult(errors.NewInternal(err)), nil
	}
	return successResult(map[string]any{"entries": entries})
}

func (h *Handlers) logFailure(tool string, err error) {
	if e, ok := errors.As(err); ok && e.Public() && e.Status < 500 {
		return
	}
	h.logger.Error("tool failed", zap.String("tool", tool), zap.Error(err))
}

func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	if e, ok := errors.As(err); ok {
		message := e.Message
		if !e.Public() {
			message = "an internal error occurred"
		}
		// Same shape as the HTTP error body; Details stay server-side.
		payload = map[string]any{
			"error": map[string]any{
				"code":    e.Code,
				"message": message,
				"status":  e.Status,
			},
		}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    errors.ErrInternal,
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
