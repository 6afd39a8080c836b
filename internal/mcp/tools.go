// ABOUTME: MCP tool definitions and registration for the sitjournal server
// ABOUTME: Exposes the practice lookups plus journaling actions to LLM agents over stdio
package mcp

import (
	"github.com/harper/sitjournal/internal/core"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// Journal action tool names
const (
	ToolLogReflection = "log_reflection"
	ToolGetNudges     = "get_nudges"
	ToolGetGuidance   = "get_guidance"
	ToolAdvanceSkill  = "advance_skill"
	ToolAskQuestion   = "ask_question"
)

// RegisterTools registers every tool with the server, acting on behalf of userID
func RegisterTools(server *mcpserver.MCPServer, pipeline *core.Pipeline, userID string) *Handlers {
	handlers := NewHandlers(pipeline, userID)
	server.AddTools(handlers.Tools()...)
	return handlers
}

// Tools lists the server tools backed by these handlers
func (h *Handlers) Tools() []mcpserver.ServerTool {
	var tools []mcpserver.ServerTool

	// Lookups share one schema source with the in-app advisor
	for _, spec := range h.pipeline.Lookups.Tools() {
		tools = append(tools, mcpserver.ServerTool{
			Tool: mcp.Tool{
				Name:        spec.Name,
				Description: spec.Description,
				InputSchema: inputSchema(spec.Parameters),
			},
			Handler: h.Lookup(spec.Name),
		})
	}

	skillParam := map[string]interface{}{
		"type":        "string",
		"description": "Two-digit skill id, e.g. \"03\" (defaults to the current skill)",
	}

	tools = append(tools,
		mcpserver.ServerTool{
			Tool: mcp.Tool{
				Name:        ToolLogReflection,
				Description: "Save a post-sit reflection. Signals are extracted in the background.",
				InputSchema: mcp.ToolInputSchema{
					Type: "object",
					Properties: map[string]interface{}{
						"content": map[string]interface{}{
							"type":        "string",
							"description": "Free-text reflection on the sit",
						},
						"skill_id": skillParam,
						"track_progress": map[string]interface{}{
							"type":        "boolean",
							"description": "Count toward advancement (default: true)",
							"default":     true,
						},
						"entry_date": map[string]interface{}{
							"type":        "string",
							"description": "Backdate as YYYY-MM-DD (default: today)",
						},
					},
					Required: []string{"content"},
				},
			},
			Handler: h.LogReflection,
		},
		mcpserver.ServerTool{
			Tool: mcp.Tool{
				Name:        ToolGetNudges,
				Description: "Up to four short reflection prompts, ranked, drawn from recent practice history.",
				InputSchema: mcp.ToolInputSchema{
					Type:       "object",
					Properties: map[string]interface{}{"skill_id": skillParam},
				},
			},
			Handler: h.GetNudges,
		},
		mcpserver.ServerTool{
			Tool: mcp.Tool{
				Name:        ToolGetGuidance,
				Description: "Pre-sit guidance: frontier skill, reading material, recurring hindrances and markers.",
				InputSchema: mcp.ToolInputSchema{
					Type:       "object",
					Properties: map[string]interface{}{},
				},
			},
			Handler: h.GetGuidance,
		},
		mcpserver.ServerTool{
			Tool: mcp.Tool{
				Name:        ToolAdvanceSkill,
				Description: "Advance to the next skill. Readiness is re-checked and the request is refused when criteria are unmet.",
				InputSchema: mcp.ToolInputSchema{
					Type: "object",
					Properties: map[string]interface{}{
						"current_skill_id": map[string]interface{}{
							"type":        "string",
							"description": "The skill the caller believes is current",
						},
					},
					Required: []string{"current_skill_id"},
				},
			},
			Handler: h.AdvanceSkill,
		},
		mcpserver.ServerTool{
			Tool: mcp.Tool{
				Name:        ToolAskQuestion,
				Description: "Ask a practice question. The answer is grounded in the practitioner's own history.",
				InputSchema: mcp.ToolInputSchema{
					Type: "object",
					Properties: map[string]interface{}{
						"question": map[string]interface{}{
							"type":        "string",
							"description": "The question to answer",
						},
					},
					Required: []string{"question"},
				},
			},
			Handler: h.AskQuestion,
		},
	)

	return tools
}

func inputSchema(params map[string]any) mcp.ToolInputSchema {
	schema := mcp.ToolInputSchema{Type: "object", Properties: map[string]interface{}{}}
	if props, ok := params["properties"].(map[string]any); ok {
		schema.Properties = props
	}
	if required, ok := params["required"].([]string); ok {
		schema.Required = required
	}
	return schema
}
