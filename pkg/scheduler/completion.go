package scheduler

import (
	"context"
	"time"

	"github.com/sandoak/gsdharness/pkg/types"
)

// CompletePlan transitions a plan from Executing to Executed once its
// session finishes successfully, and advances the project's
// highest_executed / pending_verify_phase bookkeeping. If every plan in the
// phase is now Executed or further along, the phase becomes eligible for
// verification (pending_verify_phase is set) unless it already was.
func (s *Scheduler) CompletePlan(ctx context.Context, project string, id types.PlanID) error {
	if err := s.store.UpdatePlanStatus(ctx, project, id, types.PlanExecuted); err != nil {
		return err
	}

	state, err := s.store.GetProjectState(ctx, project)
	if err != nil {
		return err
	}
	if id.Phase > state.HighestExecuted {
		state.HighestExecuted = id.Phase
	}

	plans, err := s.store.ListPlans(ctx, project)
	if err != nil {
		return err
	}
	if phaseFullyExecuted(plans, id.Phase) && state.PendingVerifyPhase == nil {
		phase := id.Phase
		state.PendingVerifyPhase = &phase
	}
	state.UpdatedAt = time.Now().UTC()

	return s.store.SaveProjectState(ctx, state)
}

// VerifyPhase marks a phase verified: every plan in the phase that is not
// already Verified moves to Verified, whatever its current status, and
// highest_verified advances. Plans already Verified are left as they are.
// No status write path here or in the store consults PlanStatus.Downgrade.
func (s *Scheduler) VerifyPhase(ctx context.Context, project string, phase int) error {
	plans, err := s.store.ListPlans(ctx, project)
	if err != nil {
		return err
	}
	for _, p := range plans {
		if p.Phase != phase || p.Status == types.PlanVerified {
			continue
		}
		if err := s.store.UpdatePlanStatus(ctx, project, p.ID(), types.PlanVerified); err != nil {
			return err
		}
	}

	state, err := s.store.GetProjectState(ctx, project)
	if err != nil {
		return err
	}
	if phase > state.HighestVerified {
		state.HighestVerified = phase
	}
	if state.PendingVerifyPhase != nil && *state.PendingVerifyPhase == phase {
		state.PendingVerifyPhase = nil
	}
	state.UpdatedAt = time.Now().UTC()

	return s.store.SaveProjectState(ctx, state)
}

// ForceReset rewrites every plan at or after fromPhase back to Planned,
// bypassing the ordinary never-downgrade rule. Use only for an explicit
// operator-directed restart of a phase; an ordinary sync that merely lacks
// a plan's summary must leave an Executed plan Executed rather than calling
// this.
func (s *Scheduler) ForceReset(ctx context.Context, project string, fromPhase int) error {
	plans, err := s.store.ListPlans(ctx, project)
	if err != nil {
		return err
	}
	for _, p := range plans {
		if p.Phase < fromPhase {
			continue
		}
		if err := s.store.UpdatePlanStatus(ctx, project, p.ID(), types.PlanPlanned); err != nil {
			return err
		}
	}

	state, err := s.store.GetProjectState(ctx, project)
	if err != nil {
		return err
	}
	if fromPhase <= state.HighestExecuted {
		state.HighestExecuted = fromPhase - 1
	}
	if fromPhase <= state.HighestVerified {
		state.HighestVerified = fromPhase - 1
	}
	state.PendingVerifyPhase = nil
	state.ActivePhase = fromPhase
	state.ActivePlan = 0
	state.UpdatedAt = time.Now().UTC()

	return s.store.SaveProjectState(ctx, state)
}

func phaseFullyExecuted(plans []*types.Plan, phase int) bool {
	found := false
	for _, p := range plans {
		if p.Phase != phase {
			continue
		}
		found = true
		if p.Status != types.PlanExecuted && p.Status != types.PlanVerified {
			return false
		}
	}
	return found
}
