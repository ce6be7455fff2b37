// Package scheduler implements the Dependency-Graph Scheduler: it decides,
// every tick, which planned plans are eligible to start a session, honoring
// declared dependencies, the phase verification gate, the planning
// lookahead window, and file-conflict exclusion, then asks a Spawner to run
// the winners.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sandoak/gsdharness/pkg/apierr"
	"github.com/sandoak/gsdharness/pkg/events"
	"github.com/sandoak/gsdharness/pkg/protocoldir"
	"github.com/sandoak/gsdharness/pkg/storage"
	"github.com/sandoak/gsdharness/pkg/types"
)

// DefaultPlanLookahead bounds how many phases beyond the active phase a plan
// may start executing in, even with its dependencies satisfied.
const DefaultPlanLookahead = 5

// Spawner starts the session that will execute a plan. pkg/ptysup.Supervisor
// satisfies this.
type Spawner interface {
	Spawn(ctx context.Context, workDir, command string) (*types.Session, error)
}

// CommandBuilder renders the shell command used to execute a plan, and the
// working directory a session should run it in.
type CommandBuilder func(project string, id types.PlanID) (workDir, command string)

// Config configures a Scheduler.
type Config struct {
	Store         storage.Store
	Spawner       Spawner
	Events        *events.Broker
	Mirror        *protocoldir.Mirror
	PlanLookahead int
	BuildCommand  CommandBuilder
}

// Scheduler assigns sessions to planned plans based on the admission rules
// in admission.go.
type Scheduler struct {
	store         storage.Store
	spawner       Spawner
	events        *events.Broker
	mirror        *protocoldir.Mirror
	logger        zerolog.Logger
	planLookahead int
	buildCommand  CommandBuilder

	mu     sync.Mutex
	stopCh chan struct{}
}

// New creates a Scheduler.
func New(cfg Config, logger zerolog.Logger) *Scheduler {
	lookahead := cfg.PlanLookahead
	if lookahead <= 0 {
		lookahead = DefaultPlanLookahead
	}
	return &Scheduler{
		store:         cfg.Store,
		spawner:       cfg.Spawner,
		events:        cfg.Events,
		mirror:        cfg.Mirror,
		logger:        logger,
		planLookahead: lookahead,
		buildCommand:  cfg.BuildCommand,
		stopCh:        make(chan struct{}),
	}
}

// Start begins the scheduler's periodic admission loop for project.
func (s *Scheduler) Start(project string) {
	go s.run(project)
}

// Stop halts the scheduler loop.
func (s *Scheduler) Stop() {
	close(s.stopCh)
}

func (s *Scheduler) run(project string) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := s.Tick(context.Background(), project); err != nil {
				s.logger.Error().Err(err).Str("project", project).Msg("scheduling cycle failed")
			}
		case <-s.stopCh:
			return
		}
	}
}

// Tick runs one admission cycle: it computes the eligible, deterministically
// ordered set of planned plans and spawns a session for each until a slot is
// unavailable. It returns the plans it admitted.
func (s *Scheduler) Tick(ctx context.Context, project string) ([]*types.Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	plans, err := s.store.ListPlans(ctx, project)
	if err != nil {
		return nil, err
	}
	state, err := s.store.GetProjectState(ctx, project)
	if err != nil {
		return nil, err
	}
	activeFiles, err := s.store.ListActiveFiles(ctx, project)
	if err != nil {
		return nil, err
	}

	byID := make(map[types.PlanID]*types.Plan, len(plans))
	for _, p := range plans {
		byID[p.ID()] = p
	}

	candidates := eligiblePlans(plans, byID, state, s.planLookahead)

	var admitted []*types.Plan
	for _, p := range candidates {
		if conflicts(p, activeFiles) {
			s.logger.Debug().Str("project", project).Str("plan", p.ID().String()).Msg("plan rejected: file conflict")
			continue
		}

		sess, err := s.admit(ctx, project, p)
		if err != nil {
			if isSlotFull(err) {
				break // no point trying further candidates this tick
			}
			s.logger.Error().Err(err).Str("plan", p.ID().String()).Msg("failed to admit plan")
			continue
		}

		for _, path := range p.FilesWritten {
			activeFiles = append(activeFiles, &types.ActiveFileEntry{Path: path, SessionID: sess.ID, Project: project, Phase: p.Phase, Plan: p.Plan, Mode: types.FileWrite})
		}
		for _, path := range p.FilesRead {
			activeFiles = append(activeFiles, &types.ActiveFileEntry{Path: path, SessionID: sess.ID, Project: project, Phase: p.Phase, Plan: p.Plan, Mode: types.FileRead})
		}

		admitted = append(admitted, p)
	}

	return admitted, nil
}

// AdmitPlan runs the same admission rules as a Tick cycle against a single
// named plan, immediately, rather than waiting for the next periodic pass.
// This is what the Tool-Call Endpoint's start_session operation calls: the
// orchestrator names the plan it wants run, and gets back either a spawned
// session or the structured rejection naming the first rule the plan
// failed.
func (s *Scheduler) AdmitPlan(ctx context.Context, project string, id types.PlanID) (*types.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	plans, err := s.store.ListPlans(ctx, project)
	if err != nil {
		return nil, err
	}
	byID := make(map[types.PlanID]*types.Plan, len(plans))
	for _, p := range plans {
		byID[p.ID()] = p
	}

	p, ok := byID[id]
	if !ok {
		return nil, apierr.NotFoundf("plan_not_found", "no plan %s in project %s", id, project)
	}
	if p.Status != types.PlanPlanned {
		return nil, apierr.Conflictf("plan_not_planned", "plan %s is %s, not planned", id, p.Status)
	}

	state, err := s.store.GetProjectState(ctx, project)
	if err != nil {
		return nil, err
	}
	if !depsMet(p, byID) {
		return nil, apierr.New(apierr.PreconditionFailed, "rejected_deps_not_met", fmt.Sprintf("plan %s has unmet dependencies", id))
	}
	if !passesVerifyGate(p, state) {
		return nil, apierr.New(apierr.PreconditionFailed, "rejected_verify_gate", fmt.Sprintf("pending_verify_phase=%d blocks phase %d", *state.PendingVerifyPhase, p.Phase))
	}
	if !withinLookahead(p, state, s.planLookahead) {
		return nil, apierr.New(apierr.PreconditionFailed, "rejected_plan_lookahead", fmt.Sprintf("phase %d exceeds lookahead window from active phase %d", p.Phase, state.ActivePhase))
	}

	activeFiles, err := s.store.ListActiveFiles(ctx, project)
	if err != nil {
		return nil, err
	}
	if conflicts(p, activeFiles) {
		return nil, apierr.New(apierr.Conflict, "rejected_file_conflict", fmt.Sprintf("plan %s conflicts with an active file claim", id))
	}

	return s.admit(ctx, project, p)
}

func (s *Scheduler) admit(ctx context.Context, project string, p *types.Plan) (*types.Session, error) {
	workDir, command := s.buildCommand(project, p.ID())

	sess, err := s.spawner.Spawn(ctx, workDir, command)
	if err != nil {
		return nil, err
	}

	if err := s.store.UpdatePlanStatus(ctx, project, p.ID(), types.PlanExecuting); err != nil {
		return nil, err
	}
	for _, path := range p.FilesWritten {
		if err := s.store.ClaimFile(ctx, &types.ActiveFileEntry{
			Path: path, SessionID: sess.ID, Project: project, Phase: p.Phase, Plan: p.Plan,
			Mode: types.FileWrite, StartedAt: time.Now().UTC(),
		}); err != nil {
			s.logger.Error().Err(err).Str("path", path).Msg("claim write file")
		}
	}
	for _, path := range p.FilesRead {
		if err := s.store.ClaimFile(ctx, &types.ActiveFileEntry{
			Path: path, SessionID: sess.ID, Project: project, Phase: p.Phase, Plan: p.Plan,
			Mode: types.FileRead, StartedAt: time.Now().UTC(),
		}); err != nil {
			s.logger.Error().Err(err).Str("path", path).Msg("claim read file")
		}
	}

	s.mirrorActiveFiles(ctx, project)

	s.logger.Info().Str("project", project).Str("plan", p.ID().String()).Str("session_id", sess.ID).Msg("admitted plan")
	return sess, nil
}

// mirrorActiveFiles best-effort refreshes the Protocol Directory's
// active-files.json after a plan's file claims change. A nil Mirror (e.g.
// in tests that don't wire one) makes this a no-op.
func (s *Scheduler) mirrorActiveFiles(ctx context.Context, project string) {
	if s.mirror == nil {
		return
	}
	active, err := s.store.ListActiveFiles(ctx, project)
	if err != nil {
		s.logger.Error().Err(err).Msg("list active files to refresh mirror")
		return
	}
	if err := s.mirror.WriteActiveFiles(active); err != nil {
		s.logger.Error().Err(err).Msg("mirror active files")
	}
}
