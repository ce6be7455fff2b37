package mcpendpoint

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/sandoak/gsdharness/pkg/apierr"
	"github.com/sandoak/gsdharness/pkg/types"
)

const pollInterval = 200 * time.Millisecond

func (e *Endpoint) workerReportTool() mcp.Tool {
	return mcp.Tool{
		Name:        "worker_report",
		Description: "Post a message from a worker about its session. Informational types return immediately; response-required types return a message id to worker_await on.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"session_id": map[string]any{"type": "string"},
				"type":       map[string]any{"type": "string"},
				"payload":    map[string]any{"type": "object"},
			},
			Required: []string{"session_id", "type", "payload"},
		},
	}
}

func (e *Endpoint) handleWorkerReport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := argsOf(req)
	sessionID, ok := stringArg(args, "session_id")
	if !ok {
		return errorResult(apierr.InvalidArgumentf("missing_argument", "worker_report requires session_id"))
	}
	msgType, ok := stringArg(args, "type")
	if !ok {
		return errorResult(apierr.InvalidArgumentf("missing_argument", "worker_report requires type"))
	}
	if _, err := e.store.GetSession(ctx, sessionID); err != nil {
		return errorResult(err)
	}
	payload := payloadBytes(args)

	msg, err := e.ch.Report(ctx, sessionID, types.WorkerMessageType(msgType), payload)
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(map[string]string{"message_id": msg.ID})
}

func (e *Endpoint) workerAwaitTool() mcp.Tool {
	return mcp.Tool{
		Name:        "worker_await",
		Description: "Long-poll as a worker until a response exists for the latest response-required message on this session, or the await timeout elapses.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"session_id":     map[string]any{"type": "string"},
				"timeout_second": map[string]any{"type": "number"},
			},
			Required: []string{"session_id"},
		},
	}
}

func (e *Endpoint) handleWorkerAwait(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := argsOf(req)
	sessionID, ok := stringArg(args, "session_id")
	if !ok {
		return errorResult(apierr.InvalidArgumentf("missing_argument", "worker_await requires session_id"))
	}
	if _, err := e.store.GetSession(ctx, sessionID); err != nil {
		return errorResult(err)
	}

	deadline := e.awaitTimeout
	if secs, ok := intArg(args, "timeout_second"); ok && time.Duration(secs)*time.Second < deadline {
		deadline = time.Duration(secs) * time.Second
	}

	waitCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		msg, err := e.store.LatestResponseRequiredMessage(waitCtx, sessionID)
		if err != nil {
			return errorResult(err)
		}
		if msg != nil && msg.Status == types.WorkerMsgResponded {
			return jsonResult(map[string]any{
				"message_id":       msg.ID,
				"response_type":    msg.ResponseType,
				"response_payload": msg.ResponsePayload,
			})
		}
		if msg != nil && msg.Status == types.WorkerMsgExpired {
			return jsonResult(map[string]any{"message_id": msg.ID, "expired": true})
		}

		select {
		case <-waitCtx.Done():
			return jsonResult(map[string]any{"timed_out": true})
		case <-ticker.C:
		}
	}
}

func (e *Endpoint) respondTool() mcp.Tool {
	return mcp.Tool{
		Name:        "respond",
		Description: "Answer a pending worker message: writes an orchestrator message, marks the worker message responded, and unblocks worker_await.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"message_id": map[string]any{"type": "string"},
				"type":       map[string]any{"type": "string"},
				"payload":    map[string]any{"type": "object"},
			},
			Required: []string{"message_id", "type", "payload"},
		},
	}
}

func (e *Endpoint) handleRespond(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := argsOf(req)
	messageID, ok := stringArg(args, "message_id")
	if !ok {
		return errorResult(apierr.InvalidArgumentf("missing_argument", "respond requires message_id"))
	}
	responseType, ok := stringArg(args, "type")
	if !ok {
		return errorResult(apierr.InvalidArgumentf("missing_argument", "respond requires type"))
	}
	payload := payloadBytes(args)

	if err := e.ch.Respond(ctx, messageID, types.OrchestratorMsgType(responseType), payload); err != nil {
		return errorResult(err)
	}
	return jsonResult(map[string]string{"message_id": messageID, "status": "responded"})
}

func (e *Endpoint) getPendingTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_pending",
		Description: "List pending response-required messages, oldest first. Omit session_id to aggregate across every session.",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]any{"session_id": map[string]any{"type": "string"}},
		},
	}
}

func (e *Endpoint) handleGetPending(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := argsOf(req)
	if sessionID, ok := stringArg(args, "session_id"); ok {
		if _, err := e.store.GetSession(ctx, sessionID); err != nil {
			return errorResult(err)
		}
		if err := e.store.TouchSession(ctx, sessionID); err != nil {
			return errorResult(err)
		}
		pending, err := e.ch.Pending(ctx, sessionID)
		if err != nil {
			return errorResult(err)
		}
		return jsonResult(pending)
	}

	sessions, err := e.store.ListSessions(ctx)
	if err != nil {
		return errorResult(err)
	}
	var all []*types.WorkerMessage
	for _, s := range sessions {
		if err := e.store.TouchSession(ctx, s.ID); err != nil {
			return errorResult(err)
		}
		pending, err := e.ch.Pending(ctx, s.ID)
		if err != nil {
			return errorResult(err)
		}
		all = append(all, pending...)
	}
	return jsonResult(all)
}

func (e *Endpoint) getCheckpointTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_checkpoint",
		Description: "Return the current (oldest pending) response-required message for a session, if any.",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]any{"session_id": map[string]any{"type": "string"}},
			Required:   []string{"session_id"},
		},
	}
}

func (e *Endpoint) handleGetCheckpoint(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := argsOf(req)
	sessionID, ok := stringArg(args, "session_id")
	if !ok {
		return errorResult(apierr.InvalidArgumentf("missing_argument", "get_checkpoint requires session_id"))
	}
	if _, err := e.store.GetSession(ctx, sessionID); err != nil {
		return errorResult(err)
	}
	cp, err := e.ch.Checkpoint(ctx, sessionID)
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(cp)
}

func payloadBytes(args map[string]interface{}) []byte {
	raw, ok := args["payload"]
	if !ok {
		return []byte("{}")
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return []byte("{}")
	}
	return data
}
