package mcp

import "github.com/mark3labs/mcp-go/mcp"

// Tool limits.
const (
	defaultAuditLimit = 10
	maxAuditLimit     = 100
)

var convertToolDef = mcp.NewTool("state_intent_convert",
	mcp.WithDescription("Convert a free-form description of a customer situation into a state-intent record. "+
		"Action bindings in the result are always dry-run."),
	mcp.WithString("text",
		mcp.Required(),
		mcp.Description("Natural-language description of the customer situation"),
	),
)

var validateToolDef = mcp.NewTool("state_intent_validate",
	mcp.WithDescription("Check a state-intent record against the structural rules and report every issue found."),
	mcp.WithObject("record",
		mcp.Required(),
		mcp.Description("The record to check"),
	),
	mcp.WithBoolean("strict",
		mcp.Description("Once the structural rules pass, also check the record against the full constraints schema"),
	),
)

var presetsToolDef = mcp.NewTool("presets_list",
	mcp.WithDescription("List the catalog of example inputs."),
)

var auditLastToolDef = mcp.NewTool("audit_last",
	mcp.WithDescription("Return the most recent audit entry, or null when nothing has been converted yet."),
)

var auditRecentToolDef = mcp.NewTool("audit_recent",
	mcp.WithDescription("Return recent audit entries, newest first."),
	mcp.WithNumber("limit",
		mcp.Description("Maximum entries to return (default 10, max 100)"),
	),
)
