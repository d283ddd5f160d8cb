package mcp

import (
	"context"
	"database/sql"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hpungsan/herd/internal/config"
)

// KnownTypes lists all valid type names.
var KnownTypes = []string{"campaign", "token", "account", "filter", "ledger"}

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"campaign_start": {
		def:     campaignStartToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleCampaignStart },
	},
	"campaign_stop": {
		def:     campaignStopToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleCampaignStop },
	},
	"campaign_status": {
		def:     campaignStatusToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleCampaignStatus },
	},
	"campaign_list": {
		def:     campaignListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleCampaignList },
	},
	"token_add": {
		def:     tokenAddToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleTokenAdd },
	},
	"token_list": {
		def:     tokenListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleTokenList },
	},
	"token_activate": {
		def:     tokenActivateToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleTokenActivate },
	},
	"token_delete": {
		def:     tokenDeleteToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleTokenDelete },
	},
	"account_select": {
		def:     accountSelectToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleAccountSelect },
	},
	"filter_set": {
		def:     filterSetToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleFilterSet },
	},
	"filter_get": {
		def:     filterGetToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleFilterGet },
	},
	"ledger_clear": {
		def:     ledgerClearToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleLedgerClear },
	},
	"ledger_stats": {
		def:     ledgerStatsToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleLedgerStats },
	},
}

// AllToolNames returns a list of all valid tool names.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
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

// ValidateDisabledTypes returns a list of unknown type names from the given list.
func ValidateDisabledTypes(names []string) []string {
	known := make(map[string]bool, len(KnownTypes))
	for _, t := range KnownTypes {
		known[t] = true
	}

	unknown := make([]string, 0)
	for _, name := range names {
		if !known[name] {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// GetTypeForTool extracts the type name from a tool name.
// Tool names follow the pattern "type_action" (e.g., "campaign_start" → "campaign").
func GetTypeForTool(toolName string) string {
	if idx := strings.Index(toolName, "_"); idx > 0 {
		return toolName[:idx]
	}
	return ""
}

// ExpandTypesToTools returns all tool names belonging to the given types.
func ExpandTypesToTools(types []string) []string {
	if len(types) == 0 {
		return nil
	}

	typeSet := make(map[string]bool, len(types))
	for _, t := range types {
		typeSet[t] = true
	}

	tools := make([]string, 0)
	for name := range toolRegistry {
		if typeSet[GetTypeForTool(name)] {
			tools = append(tools, name)
		}
	}
	return tools
}

// NewServer creates a new MCP server with Herd tools registered.
// Tools listed in cfg.DisabledTools or belonging to cfg.DisabledTypes
// are excluded from registration.
func NewServer(db *sql.DB, cfg *config.Config, deps Deps, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"herd",
		version,
		server.WithToolCapabilities(true),
	)

	h := NewHandlers(db, cfg, deps)

	// Build set of disabled tools: first expand types, then add individual tools
	disabled := make(map[string]bool)
	for _, tool := range ExpandTypesToTools(cfg.DisabledTypes) {
		disabled[tool] = true
	}
	for _, name := range cfg.DisabledTools {
		disabled[name] = true
	}

	for name, entry := range toolRegistry {
		if disabled[name] {
			continue
		}
		s.AddTool(entry.def, entry.handler(h))
	}

	return s
}

// Run starts the MCP server using stdio transport.
func Run(db *sql.DB, cfg *config.Config, deps Deps, version string) error {
	s := NewServer(db, cfg, deps, version)
	return server.ServeStdio(s)
}

// ToolHandlerFunc is the signature for tool handlers.
type ToolHandlerFunc func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
