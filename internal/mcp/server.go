package mcp

import (
	"sort"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/hpungsan/stateintent/internal/config"
	"github.com/hpungsan/stateintent/internal/convert"
)

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"state_intent_convert": {
		def:     convertToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleConvert },
	},
	"state_intent_validate": {
		def:     validateToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleValidate },
	},
	"presets_list": {
		def:     presetsToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandlePresets },
	},
	"audit_last": {
		def:     auditLastToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleAuditLast },
	},
	"audit_recent": {
		def:     auditRecentToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleAuditRecent },
	},
}

// AllToolNames returns every tool name, sorted.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidateDisabledTools returns a list of unknown tool names from the given list.
func ValidateDisabledTools(names []string) []string {
	unknown := make([]string, 0)
	for _, name := range names {
		if _, ok := toolRegistry[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// enabledTools returns the registry names not listed in disabled, sorted.
func enabledTools(disabled []string) []string {
	skip := make(map[string]bool, len(disabled))
	for _, name := range disabled {
		skip[name] = true
	}
	var names []string
	for _, name := range AllToolNames() {
		if !skip[name] {
			names = append(names, name)
		}
	}
	return names
}

// NewServer creates a new MCP server with the conversion tools registered.
// Tools listed in cfg.DisabledTools are excluded from registration.
func NewServer(conv *convert.Controller, cfg *config.Config, version string, logger *zap.Logger) *server.MCPServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := server.NewMCPServer(
		"stateintent",
		version,
		server.WithToolCapabilities(true),
	)

	if unknown := ValidateDisabledTools(cfg.DisabledTools); len(unknown) > 0 {
		logger.Warn("ignoring unknown disabled tools", zap.Strings("tools", unknown))
	}

	h := NewHandlers(conv, logger)
	for _, name := range enabledTools(cfg.DisabledTools) {
		entry := toolRegistry[name]
		s.AddTool(entry.def, entry.handler(h))
	}
	return s
}

// Run starts the MCP server using stdio transport.
func Run(conv *convert.Controller, cfg *config.Config, version string, logger *zap.Logger) error {
	s := NewServer(conv, cfg, version, logger)
	return server.ServeStdio(s)
}
