package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	mcpmcp "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/alanyang/job-dispatch/internal/apperr"
	"github.com/alanyang/job-dispatch/internal/domain/distribution"
	"github.com/alanyang/job-dispatch/internal/service/orchestrator"
	"github.com/alanyang/job-dispatch/internal/service/tracker"
)

// RegisterTools registers the agent-facing tools on the server.
// [SRP] Tool registration only.
// [OCP] Add a new tool by adding a new AddTool call; server.go never changes.
func RegisterTools(s *mcpserver.MCPServer, orch *orchestrator.Service, tr *tracker.Service) {
	s.AddTool(mcpmcp.NewTool("get_assignment",
		mcpmcp.WithDescription("Returns this agent's assignment within a distribution: status, progress, result and timestamps."),
		distributionArg(), agentArg(),
	), getAssignmentHandler(tr))

	s.AddTool(mcpmcp.NewTool("report_progress",
		mcpmcp.WithDescription("Report progress on an assignment. The first report moves it from assigned to working."),
		distributionArg(), agentArg(),
		mcpmcp.WithNumber("progress", mcpmcp.Required(), mcpmcp.Description("Percent complete, 0-100"), mcpmcp.Min(0), mcpmcp.Max(100)),
	), reportProgressHandler(orch))

	s.AddTool(mcpmcp.NewTool("submit_result",
		mcpmcp.WithDescription("Submit the finished result of an assignment. May resolve the distribution; the response says whether this agent won."),
		distributionArg(), agentArg(),
		mcpmcp.WithString("result", mcpmcp.Required(), mcpmcp.Description("The work product")),
	), submitResultHandler(orch))

	s.AddTool(mcpmcp.NewTool("report_failure",
		mcpmcp.WithDescription("Give up on an assignment with an error message."),
		distributionArg(), agentArg(),
		mcpmcp.WithString("error", mcpmcp.Required(), mcpmcp.Description("Why the work failed")),
	), reportFailureHandler(orch))
}

func distributionArg() mcpmcp.ToolOption {
	return mcpmcp.WithString("distribution_id", mcpmcp.Required(), mcpmcp.Description("Distribution UUID from the dispatch payload"))
}

func agentArg() mcpmcp.ToolOption {
	return mcpmcp.WithString("agent_id", mcpmcp.Required(), mcpmcp.Description("Agent UUID from the dispatch payload"))
}

// ── Tool handlers ─────────────────────────────────────────────────────────

func getAssignmentHandler(tr *tracker.Service) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcpmcp.CallToolRequest) (*mcpmcp.CallToolResult, error) {
		key, msg := parseKey(req)
		if msg != "" {
			return mcpmcp.NewToolResultText(msg), nil
		}
		a, err := tr.Get(ctx, key)
		if err != nil {
			return errorResult(ctx, "get_assignment", err), nil
		}
		return jsonResult(a), nil
	}
}

func reportProgressHandler(orch *orchestrator.Service) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcpmcp.CallToolRequest) (*mcpmcp.CallToolResult, error) {
		key, msg := parseKey(req)
		if msg != "" {
			return mcpmcp.NewToolResultText(msg), nil
		}
		progress := mcpmcp.ParseInt(req, "progress", -1)
		if progress < 0 || progress > 100 {
			return mcpmcp.NewToolResultText("error: progress must be between 0 and 100"), nil
		}
		a, err := orch.OnProgress(ctx, key, progress)
		if err != nil {
			return errorResult(ctx, "report_progress", err), nil
		}
		return jsonResult(a), nil
	}
}

func submitResultHandler(orch *orchestrator.Service) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcpmcp.CallToolRequest) (*mcpmcp.CallToolResult, error) {
		key, msg := parseKey(req)
		if msg != "" {
			return mcpmcp.NewToolResultText(msg), nil
		}
		res, err := orch.OnResult(ctx, key, mcpmcp.ParseString(req, "result", ""))
		if err != nil {
			return errorResult(ctx, "submit_result", err), nil
		}
		return jsonResult(callbackView(key, res)), nil
	}
}

func reportFailureHandler(orch *orchestrator.Service) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcpmcp.CallToolRequest) (*mcpmcp.CallToolResult, error) {
		key, msg := parseKey(req)
		if msg != "" {
			return mcpmcp.NewToolResultText(msg), nil
		}
		errMsg := mcpmcp.ParseString(req, "error", "")
		if errMsg == "" {
			return mcpmcp.NewToolResultText("error: error message is required"), nil
		}
		res, err := orch.OnFailure(ctx, key, errMsg)
		if err != nil {
			return errorResult(ctx, "report_failure", err), nil
		}
		return jsonResult(callbackView(key, res)), nil
	}
}

// ── helpers ───────────────────────────────────────────────────────────────

type callbackResult struct {
	Assignment distribution.Assignment `json:"assignment"`
	Resolved   bool                    `json:"resolved"`
	Won        bool                    `json:"won"`
}

func callbackView(key distribution.Key, res orchestrator.CallbackResult) callbackResult {
	out := callbackResult{Assignment: res.Assignment}
	if sel := res.Selection; sel != nil {
		out.Resolved = sel.Resolved || sel.AlreadyResolved
		out.Won = sel.Winner != nil && sel.Winner.AgentID == key.AgentID
	}
	return out
}

func parseKey(req mcpmcp.CallToolRequest) (distribution.Key, string) {
	distID, err := uuid.Parse(mcpmcp.ParseString(req, "distribution_id", ""))
	if err != nil {
		return distribution.Key{}, "error: invalid distribution_id"
	}
	agentID, err := uuid.Parse(mcpmcp.ParseString(req, "agent_id", ""))
	if err != nil {
		return distribution.Key{}, "error: invalid agent_id"
	}
	return distribution.Key{DistributionID: distID, AgentID: agentID}, ""
}

// errorResult reports categorised failures as tool text; internal detail stays in the log.
func errorResult(ctx context.Context, tool string, err error) *mcpmcp.CallToolResult {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return mcpmcp.NewToolResultText("error: assignment not found")
	case errors.Is(err, tracker.ErrStaleTransition):
		return mcpmcp.NewToolResultText("error: assignment already finished")
	case errors.Is(err, apperr.ErrConflict), errors.Is(err, apperr.ErrValidation):
		return mcpmcp.NewToolResultText(fmt.Sprintf("error: %s", err))
	}
	slog.ErrorContext(ctx, "mcp tool failed", "tool", tool, "error", err)
	return mcpmcp.NewToolResultText("error: internal error")
}

func jsonResult(v any) *mcpmcp.CallToolResult {
	data, err := json.Marshal(v)
	if err != nil {
		return mcpmcp.NewToolResultText("error: internal error")
	}
	return mcpmcp.NewToolResultText(string(data))
}
