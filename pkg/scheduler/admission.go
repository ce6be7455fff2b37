package scheduler

import (
	"sort"

	"github.com/sandoak/gsdharness/pkg/apierr"
	"github.com/sandoak/gsdharness/pkg/types"
)

// eligiblePlans returns every Planned plan that passes the deps-met,
// verify-gate, and plan-lookahead rules, deterministically ordered by the
// tie-break (lower phase first, then lower plan number). File-conflict and
// slot-availability are evaluated by the caller against live state, since
// admitting one candidate can change whether the next is still eligible.
func eligiblePlans(plans []*types.Plan, byID map[types.PlanID]*types.Plan, state *types.ProjectExecutionState, lookahead int) []*types.Plan {
	var out []*types.Plan
	for _, p := range plans {
		if p.Status != types.PlanPlanned {
			continue
		}
		if !depsMet(p, byID) {
			continue
		}
		if !passesVerifyGate(p, state) {
			continue
		}
		if !withinLookahead(p, state, lookahead) {
			continue
		}
		out = append(out, p)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].ID().Less(out[j].ID())
	})
	return out
}

// depsMet reports whether every plan p depends on has reached at least
// Executed status (a plan need not be Verified for its dependents to start,
// only actually run).
func depsMet(p *types.Plan, byID map[types.PlanID]*types.Plan) bool {
	for _, dep := range p.DependsOn {
		d, ok := byID[dep]
		if !ok {
			return false
		}
		if d.Status != types.PlanExecuted && d.Status != types.PlanVerified {
			return false
		}
	}
	return true
}

// passesVerifyGate enforces that once a phase is executed and awaiting
// verification, no later phase may get more than one phase ahead of it: the
// gate is inapplicable when nothing is pending verification (PendingVerifyPhase
// is nil), not a permanent ceiling tied to HighestVerified.
func passesVerifyGate(p *types.Plan, state *types.ProjectExecutionState) bool {
	return state.PendingVerifyPhase == nil || p.Phase <= *state.PendingVerifyPhase+1
}

// withinLookahead enforces the planning lookahead window: a plan can't
// start more than lookahead phases beyond the project's current active
// phase, so a large backlog of declared-but-unplanned-in-detail phases
// doesn't get scheduled all at once.
func withinLookahead(p *types.Plan, state *types.ProjectExecutionState, lookahead int) bool {
	return p.Phase <= state.ActivePhase+lookahead
}

// conflicts reports whether admitting p would violate file-conflict
// exclusion against the currently active file claims: a write claim
// excludes any other claim (read or write) on the same path, and a read
// claim only excludes a concurrent write claim on the same path.
func conflicts(p *types.Plan, active []*types.ActiveFileEntry) bool {
	held := make(map[string]types.FileMode, len(active))
	for _, e := range active {
		if m, ok := held[e.Path]; !ok || (ok && m != types.FileWrite) {
			held[e.Path] = e.Mode
		} else {
			held[e.Path] = types.FileWrite
		}
	}

	for _, path := range p.FilesWritten {
		if _, taken := held[path]; taken {
			return true
		}
	}
	for _, path := range p.FilesRead {
		if mode, taken := held[path]; taken && mode == types.FileWrite {
			return true
		}
	}
	return false
}

func isSlotFull(err error) bool {
	code, ok := apierr.CodeOf(err)
	return ok && code == "rejected_slot_full"
}
