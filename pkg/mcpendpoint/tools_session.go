package mcpendpoint

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/sandoak/gsdharness/pkg/apierr"
	"github.com/sandoak/gsdharness/pkg/types"
)

// staleAfter marks a session stale in list_sessions once it has gone this
// long without a get_output/get_pending poll — the same threshold the
// supervisor's watchdog uses to decide when to terminate it.
const staleAfter = 10 * time.Minute

type sessionView struct {
	*types.Session
	Stale bool `json:"stale"`
}

func (e *Endpoint) startSessionTool() mcp.Tool {
	return mcp.Tool{
		Name: "start_session",
		Description: "Start a session. Prefer phase/plan to run a declared plan through " +
			"scheduler admission; supply work_dir/command directly for an ad hoc session " +
			"that bypasses plan admission entirely.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"project":  map[string]any{"type": "string"},
				"phase":    map[string]any{"type": "number"},
				"plan":     map[string]any{"type": "number"},
				"work_dir": map[string]any{"type": "string"},
				"command":  map[string]any{"type": "string"},
			},
		},
	}
}

func (e *Endpoint) handleStartSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := argsOf(req)

	if project, ok := stringArg(args, "project"); ok {
		phase, _ := intArg(args, "phase")
		plan, _ := intArg(args, "plan")
		sess, err := e.sched.AdmitPlan(ctx, project, types.PlanID{Phase: phase, Plan: plan})
		if err != nil {
			return errorResult(err)
		}
		return jsonResult(sess)
	}

	workDir, ok := stringArg(args, "work_dir")
	if !ok {
		return errorResult(apierr.InvalidArgumentf("missing_argument", "start_session requires either project/phase/plan or work_dir/command"))
	}
	command, ok := stringArg(args, "command")
	if !ok {
		return errorResult(apierr.InvalidArgumentf("missing_argument", "start_session requires a command"))
	}
	sess, err := e.super.Spawn(ctx, workDir, command)
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(sess)
}

func (e *Endpoint) listSessionsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "list_sessions",
		Description: "List every session known to the store, each flagged stale if it has gone unpolled past the session timeout.",
		InputSchema: mcp.ToolInputSchema{Type: "object"},
	}
}

func (e *Endpoint) handleListSessions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessions, err := e.store.ListSessions(ctx)
	if err != nil {
		return errorResult(err)
	}
	views := make([]sessionView, 0, len(sessions))
	for _, s := range sessions {
		stale := s.Status.Active() && time.Since(s.LastPolled) > staleAfter
		views = append(views, sessionView{Session: s, Stale: stale})
	}
	return jsonResult(views)
}

func (e *Endpoint) endSessionTool() mcp.Tool {
	return mcp.Tool{
		Name:        "end_session",
		Description: "Terminate a session's child process. A running session transitions to failed.",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]any{"session_id": map[string]any{"type": "string"}},
			Required:   []string{"session_id"},
		},
	}
}

func (e *Endpoint) handleEndSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := argsOf(req)
	sessionID, ok := stringArg(args, "session_id")
	if !ok {
		return errorResult(apierr.InvalidArgumentf("missing_argument", "end_session requires session_id"))
	}
	sess, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return errorResult(err)
	}
	if !sess.Status.Active() {
		return jsonResult(sess)
	}
	if err := e.super.EndSession(sessionID); err != nil {
		return errorResult(err)
	}
	return jsonResult(map[string]string{"session_id": sessionID, "status": "terminating"})
}

func (e *Endpoint) getOutputTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_output",
		Description: "Read a session's output: pass since to get every chunk after that sequence number, or lines for the last N lines.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"session_id": map[string]any{"type": "string"},
				"since":      map[string]any{"type": "number"},
				"lines":      map[string]any{"type": "number"},
			},
			Required: []string{"session_id"},
		},
	}
}

func (e *Endpoint) handleGetOutput(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := argsOf(req)
	sessionID, ok := stringArg(args, "session_id")
	if !ok {
		return errorResult(apierr.InvalidArgumentf("missing_argument", "get_output requires session_id"))
	}
	if _, err := e.store.GetSession(ctx, sessionID); err != nil {
		return errorResult(err)
	}
	if err := e.store.TouchSession(ctx, sessionID); err != nil {
		return errorResult(err)
	}

	var afterSeq int64
	if since, ok := intArg(args, "since"); ok {
		afterSeq = int64(since)
	}
	chunks, err := e.store.ListOutputChunks(ctx, sessionID, afterSeq)
	if err != nil {
		return errorResult(err)
	}

	if n, ok := intArg(args, "lines"); ok && afterSeq == 0 {
		chunks = tailLines(chunks, n)
	}
	return jsonResult(chunks)
}

// tailLines returns the suffix of chunks whose combined data holds the last
// n newline-delimited lines, without re-splitting chunk boundaries.
func tailLines(chunks []*types.OutputChunk, n int) []*types.OutputChunk {
	if n <= 0 || len(chunks) == 0 {
		return chunks
	}
	lineCount := 0
	start := len(chunks)
	for start > 0 {
		c := chunks[start-1]
		for _, b := range c.Data {
			if b == '\n' {
				lineCount++
			}
		}
		start--
		if lineCount >= n {
			break
		}
	}
	return chunks[start:]
}

func (e *Endpoint) resizeTool() mcp.Tool {
	return mcp.Tool{
		Name:        "resize",
		Description: "Resize a running session's pty window.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"session_id": map[string]any{"type": "string"},
				"cols":       map[string]any{"type": "number"},
				"rows":       map[string]any{"type": "number"},
			},
			Required: []string{"session_id", "cols", "rows"},
		},
	}
}

func (e *Endpoint) handleResize(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := argsOf(req)
	sessionID, ok := stringArg(args, "session_id")
	if !ok {
		return errorResult(apierr.InvalidArgumentf("missing_argument", "resize requires session_id"))
	}
	cols, _ := intArg(args, "cols")
	rows, _ := intArg(args, "rows")
	if err := e.super.Resize(sessionID, cols, rows); err != nil {
		return errorResult(err)
	}
	return jsonResult(map[string]string{"session_id": sessionID, "status": "resized"})
}
