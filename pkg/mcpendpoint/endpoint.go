// Package mcpendpoint exposes the harness's closed operation set as an MCP
// tool server: start/list/end session, read output and resize a pty, post
// and poll worker messages, answer checkpoints, and read/reconcile/adjust a
// project's execution state. Every handler returns a structured rejection
// code (apierr.Code) rather than a bare error string, so an orchestrator
// client can switch on it instead of matching text.
package mcpendpoint

import (
	"encoding/json"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/sandoak/gsdharness/pkg/apierr"
	"github.com/sandoak/gsdharness/pkg/channel"
	"github.com/sandoak/gsdharness/pkg/events"
	"github.com/sandoak/gsdharness/pkg/protocoldir"
	"github.com/sandoak/gsdharness/pkg/ptysup"
	"github.com/sandoak/gsdharness/pkg/scheduler"
	"github.com/sandoak/gsdharness/pkg/storage"
)

// DefaultAwaitTimeout bounds worker_await and wait_for_state_change when the
// caller does not supply a shorter one.
const DefaultAwaitTimeout = 10 * time.Minute

// Config wires an Endpoint to the rest of the harness.
type Config struct {
	Store        storage.Store
	Supervisor   *ptysup.Supervisor
	Scheduler    *scheduler.Scheduler
	Channel      *channel.Channel
	Events       *events.Broker
	Mirror       *protocoldir.Mirror
	AwaitTimeout time.Duration
}

// Endpoint implements every Tool-Call Endpoint operation as an MCP tool
// handler method, registered onto a mark3labs/mcp-go server.
type Endpoint struct {
	store        storage.Store
	super        *ptysup.Supervisor
	sched        *scheduler.Scheduler
	ch           *channel.Channel
	events       *events.Broker
	mirror       *protocoldir.Mirror
	awaitTimeout time.Duration
	logger       zerolog.Logger
}

// New builds an Endpoint. Call Register to attach its tools to a server.
func New(cfg Config, logger zerolog.Logger) *Endpoint {
	timeout := cfg.AwaitTimeout
	if timeout <= 0 {
		timeout = DefaultAwaitTimeout
	}
	return &Endpoint{
		store:        cfg.Store,
		super:        cfg.Supervisor,
		sched:        cfg.Scheduler,
		ch:           cfg.Channel,
		events:       cfg.Events,
		mirror:       cfg.Mirror,
		awaitTimeout: timeout,
		logger:       logger,
	}
}

// Register adds every operation to s as an mcp.Tool.
func (e *Endpoint) Register(s *mcpserver.MCPServer) {
	s.AddTool(e.startSessionTool(), e.handleStartSession)
	s.AddTool(e.listSessionsTool(), e.handleListSessions)
	s.AddTool(e.endSessionTool(), e.handleEndSession)
	s.AddTool(e.getOutputTool(), e.handleGetOutput)
	s.AddTool(e.resizeTool(), e.handleResize)

	s.AddTool(e.workerReportTool(), e.handleWorkerReport)
	s.AddTool(e.workerAwaitTool(), e.handleWorkerAwait)
	s.AddTool(e.respondTool(), e.handleRespond)
	s.AddTool(e.getPendingTool(), e.handleGetPending)
	s.AddTool(e.getCheckpointTool(), e.handleGetCheckpoint)

	s.AddTool(e.getProjectStateTool(), e.handleGetProjectState)
	s.AddTool(e.syncStateTool(), e.handleSyncState)
	s.AddTool(e.setExecutionStateTool(), e.handleSetExecutionState)
	s.AddTool(e.markPhaseVerifiedTool(), e.handleMarkPhaseVerified)
	s.AddTool(e.waitForStateChangeTool(), e.handleWaitForStateChange)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError("failed to encode result: " + err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// errorResult renders err as a tool error whose text leads with its
// apierr.Code when one is present, so clients can parse a stable token
// before the human-readable message.
func errorResult(err error) (*mcp.CallToolResult, error) {
	if code, ok := apierr.CodeOf(err); ok {
		return mcp.NewToolResultError(code + ": " + err.Error()), nil
	}
	return mcp.NewToolResultError(err.Error()), nil
}

func argsOf(req mcp.CallToolRequest) (map[string]interface{}, bool) {
	args, ok := req.Params.Arguments.(map[string]interface{})
	return args, ok
}

func stringArg(args map[string]interface{}, key string) (string, bool) {
	v, ok := args[key].(string)
	return v, ok && v != ""
}

func intArg(args map[string]interface{}, key string) (int, bool) {
	switch v := args[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	default:
		return 0, false
	}
}

func boolArg(args map[string]interface{}, key string) bool {
	v, _ := args[key].(bool)
	return v
}

func stringSliceArg(args map[string]interface{}, key string) []string {
	raw, ok := args[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
