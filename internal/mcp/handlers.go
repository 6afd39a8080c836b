// ABOUTME: MCP tool handler implementations for the sitjournal server
// ABOUTME: Tool failures come back as error results so the agent can read them
package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/harper/sitjournal/internal/core"
	"github.com/harper/sitjournal/internal/logging"
	"github.com/harper/sitjournal/internal/models"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// Handlers contains the handler functions for all MCP tools
type Handlers struct {
	pipeline *core.Pipeline
	userID   string
	log      *logging.Logger
}

// NewHandlers binds the tools to one practitioner
func NewHandlers(pipeline *core.Pipeline, userID string) *Handlers {
	return &Handlers{
		pipeline: pipeline,
		userID:   userID,
		log:      pipeline.Deps().Logger.Named("mcp"),
	}
}

// Lookup returns the handler for one read-only lookup
func (h *Handlers) Lookup(name string) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		raw, err := json.Marshal(request.Params.Arguments)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}
		payload, err := h.pipeline.Lookups.Dispatch(ctx, h.userID, name, raw)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("%s failed: %v", name, err)), nil
		}
		return mcp.NewToolResultText(payload), nil
	}
}

// LogReflection handles the log_reflection tool
func (h *Handlers) LogReflection(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	content, err := request.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError("content argument is required and must be a string"), nil
	}
	track := request.GetBool("track_progress", true)

	entry, err := h.pipeline.CreateEntry(ctx, core.NewEntryInput{
		UserID:        h.userID,
		Type:          models.EntryReflect,
		Content:       content,
		SkillID:       request.GetString("skill_id", ""),
		TrackProgress: &track,
		EntryDate:     request.GetString("entry_date", ""),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to save reflection: %v", err)), nil
	}

	return jsonResult(map[string]interface{}{
		"entry_id":       entry.ID,
		"entry_date":     entry.EntryDate,
		"skill_id":       entry.SkillID,
		"track_progress": entry.TrackProgress,
		"message":        "Reflection saved. Signals will be extracted shortly.",
	})
}

// GetNudges handles the get_nudges tool
func (h *Handlers) GetNudges(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	nudges, err := h.pipeline.Nudges.Generate(ctx, h.userID, request.GetString("skill_id", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to build nudges: %v", err)), nil
	}
	return jsonResult(map[string]interface{}{
		"nudges": nudges,
		"count":  len(nudges),
	})
}

// GetGuidance handles the get_guidance tool
func (h *Handlers) GetGuidance(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	profile, err := h.pipeline.Lookups.UserProfile(ctx, h.userID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to load profile: %v", err)), nil
	}
	if profile.Guidance == nil {
		return mcp.NewToolResultText("No guidance yet. It appears after the first reflection has been analyzed."), nil
	}
	return jsonResult(profile.Guidance)
}

// AdvanceSkill handles the advance_skill tool
func (h *Handlers) AdvanceSkill(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	current, err := request.RequireString("current_skill_id")
	if err != nil {
		return mcp.NewToolResultError("current_skill_id argument is required and must be a string"), nil
	}
	res, err := h.pipeline.Advance(ctx, h.userID, current)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("advance failed: %v", err)), nil
	}
	if res.Advanced {
		h.log.Info("skill advanced via mcp", "user", h.userID, "from", res.PreviousSkillID, "to", res.NewSkillID)
	}
	return jsonResult(res)
}

// AskQuestion handles the ask_question tool
func (h *Handlers) AskQuestion(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question, err := request.RequireString("question")
	if err != nil {
		return mcp.NewToolResultError("question argument is required and must be a string"), nil
	}
	res, err := h.pipeline.Ask(ctx, h.userID, question)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("ask failed: %v", err)), nil
	}
	return jsonResult(map[string]interface{}{
		"entry_id": res.Entry.ID,
		"answer":   res.Answer,
	})
}

// Shutdown waits for background extraction and recomputation to drain
func (h *Handlers) Shutdown(ctx context.Context) error {
	type drainer interface {
		Shutdown(ctx context.Context) error
	}
	if d, ok := h.pipeline.Deps().Executor.(drainer); ok {
		return d.Shutdown(ctx)
	}
	return nil
}

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
