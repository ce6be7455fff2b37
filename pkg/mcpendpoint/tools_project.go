package mcpendpoint

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/sandoak/gsdharness/pkg/apierr"
	"github.com/sandoak/gsdharness/pkg/plandoc"
	"github.com/sandoak/gsdharness/pkg/types"
)

func (e *Endpoint) getProjectStateTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_project_state",
		Description: "Return a project's parsed execution state (highest executed/verified phase, active phase/plan, pending verify phase).",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]any{"project": map[string]any{"type": "string"}},
			Required:   []string{"project"},
		},
	}
}

func (e *Endpoint) handleGetProjectState(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := argsOf(req)
	project, ok := stringArg(args, "project")
	if !ok {
		return errorResult(apierr.InvalidArgumentf("missing_argument", "get_project_state requires project"))
	}
	state, err := e.store.GetProjectState(ctx, project)
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(state)
}

func (e *Endpoint) syncStateTool() mcp.Tool {
	return mcp.Tool{
		Name: "sync_state",
		Description: "Rescan a project's PLAN documents under spec_dir and reconcile them into the store: new plans " +
			"are added as planned, declared dependencies/file sets/manifests are refreshed, and a plan's own status " +
			"is never downgraded — a phase-level VERIFICATION.md is the only filesystem signal that can move an " +
			"executed plan to verified during this reconciliation.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"project":  map[string]any{"type": "string"},
				"spec_dir": map[string]any{"type": "string"},
			},
			Required: []string{"project", "spec_dir"},
		},
	}
}

func (e *Endpoint) handleSyncState(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := argsOf(req)
	project, ok := stringArg(args, "project")
	if !ok {
		return errorResult(apierr.InvalidArgumentf("missing_argument", "sync_state requires project"))
	}
	specDir, ok := stringArg(args, "spec_dir")
	if !ok {
		return errorResult(apierr.InvalidArgumentf("missing_argument", "sync_state requires spec_dir"))
	}

	scanned, err := plandoc.Scan(specDir)
	if err != nil {
		return errorResult(apierr.Wrap(apierr.IOFailure, "scan_failed", "failed to scan spec directory", err))
	}

	verifiedPhases := map[int]bool{}
	added, updated := 0, 0

	now := time.Now().UTC()
	for _, sp := range scanned {
		plan := sp.FrontMatter.ToPlan(project)
		plan.UpdatedAt = now

		existing, gerr := e.store.GetPlan(ctx, project, plan.ID())
		if gerr != nil {
			plan.CreatedAt = now
			if err := e.store.UpsertPlan(ctx, plan); err != nil {
				return errorResult(err)
			}
			added++
		} else {
			plan.Status = existing.Status
			plan.CreatedAt = existing.CreatedAt
			if err := e.store.UpsertPlan(ctx, plan); err != nil {
				return errorResult(err)
			}
			updated++
		}

		if sp.Verified {
			verifiedPhases[sp.Phase] = true
		}
	}

	for phase := range verifiedPhases {
		if err := e.sched.VerifyPhase(ctx, project, phase); err != nil {
			return errorResult(err)
		}
	}

	plans, err := e.store.ListPlans(ctx, project)
	if err != nil {
		return errorResult(err)
	}
	if e.mirror != nil {
		if err := e.mirror.WriteDependencyGraph(plans); err != nil {
			e.logger.Error().Err(err).Str("project", project).Msg("refresh dependency graph mirror after sync")
		}
	}

	return jsonResult(map[string]any{"added": added, "updated": updated, "plans": len(plans)})
}

func (e *Endpoint) setExecutionStateTool() mcp.Tool {
	return mcp.Tool{
		Name: "set_execution_state",
		Description: "Operator reconciliation of a project's highest_executed counter. With force_reset, every " +
			"plan at or beyond the new phase is rewritten back to planned, bypassing the normal never-downgrade rule.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"project":          map[string]any{"type": "string"},
				"highest_executed": map[string]any{"type": "number"},
				"force_reset":      map[string]any{"type": "boolean"},
			},
			Required: []string{"project", "highest_executed"},
		},
	}
}

func (e *Endpoint) handleSetExecutionState(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := argsOf(req)
	project, ok := stringArg(args, "project")
	if !ok {
		return errorResult(apierr.InvalidArgumentf("missing_argument", "set_execution_state requires project"))
	}
	highestExecuted, ok := intArg(args, "highest_executed")
	if !ok {
		return errorResult(apierr.InvalidArgumentf("missing_argument", "set_execution_state requires highest_executed"))
	}

	if boolArg(args, "force_reset") {
		if err := e.sched.ForceReset(ctx, project, highestExecuted+1); err != nil {
			return errorResult(err)
		}
	} else {
		state, err := e.store.GetProjectState(ctx, project)
		if err != nil {
			return errorResult(err)
		}
		state.HighestExecuted = highestExecuted
		state.UpdatedAt = time.Now().UTC()
		if err := e.store.SaveProjectState(ctx, state); err != nil {
			return errorResult(err)
		}
	}

	state, err := e.store.GetProjectState(ctx, project)
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(state)
}

func (e *Endpoint) markPhaseVerifiedTool() mcp.Tool {
	return mcp.Tool{
		Name:        "mark_phase_verified",
		Description: "Move every plan in a phase to verified and clear pending_verify_phase if it names this phase.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"project": map[string]any{"type": "string"},
				"phase":   map[string]any{"type": "number"},
			},
			Required: []string{"project", "phase"},
		},
	}
}

func (e *Endpoint) handleMarkPhaseVerified(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := argsOf(req)
	project, ok := stringArg(args, "project")
	if !ok {
		return errorResult(apierr.InvalidArgumentf("missing_argument", "mark_phase_verified requires project"))
	}
	phase, ok := intArg(args, "phase")
	if !ok {
		return errorResult(apierr.InvalidArgumentf("missing_argument", "mark_phase_verified requires phase"))
	}
	if err := e.sched.VerifyPhase(ctx, project, phase); err != nil {
		return errorResult(err)
	}
	state, err := e.store.GetProjectState(ctx, project)
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(state)
}

func (e *Endpoint) waitForStateChangeTool() mcp.Tool {
	return mcp.Tool{
		Name:        "wait_for_state_change",
		Description: "Long-poll across a set of sessions; returns as soon as any one of them transitions status, or on timeout.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"session_ids":    map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				"timeout_second": map[string]any{"type": "number"},
			},
			Required: []string{"session_ids"},
		},
	}
}

func (e *Endpoint) handleWaitForStateChange(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := argsOf(req)
	sessionIDs := stringSliceArg(args, "session_ids")
	if len(sessionIDs) == 0 {
		return errorResult(apierr.InvalidArgumentf("missing_argument", "wait_for_state_change requires session_ids"))
	}

	initial := make(map[string]types.SessionStatus, len(sessionIDs))
	for _, id := range sessionIDs {
		sess, err := e.store.GetSession(ctx, id)
		if err != nil {
			return errorResult(err)
		}
		initial[id] = sess.Status
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
		for _, id := range sessionIDs {
			sess, err := e.store.GetSession(waitCtx, id)
			if err != nil {
				continue
			}
			if sess.Status != initial[id] {
				return jsonResult(sess)
			}
		}

		select {
		case <-waitCtx.Done():
			return jsonResult(map[string]any{"timed_out": true})
		case <-ticker.C:
		}
	}
}
