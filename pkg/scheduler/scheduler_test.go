package scheduler

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/sandoak/gsdharness/pkg/apierr"
	"github.com/sandoak/gsdharness/pkg/storage"
	"github.com/sandoak/gsdharness/pkg/types"
)

type fakeSpawner struct {
	freeSlots int
	spawned   []string
}

func (f *fakeSpawner) Spawn(ctx context.Context, workDir, command string) (*types.Session, error) {
	if f.freeSlots <= 0 {
		return nil, apierr.New(apierr.Conflict, "rejected_slot_full", "no free slots")
	}
	f.freeSlots--
	f.spawned = append(f.spawned, command)
	return &types.Session{ID: uuid.NewString(), Status: types.SessionRunning, StartedAt: time.Now().UTC()}, nil
}

func newTestScheduler(t *testing.T, spawner Spawner) (*Scheduler, storage.Store) {
	t.Helper()
	store, err := storage.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	sched := New(Config{
		Store:   store,
		Spawner: spawner,
		BuildCommand: func(project string, id types.PlanID) (string, string) {
			return t.TempDir(), fmt.Sprintf("run %s/%s", project, id)
		},
	}, zerolog.Nop())
	return sched, store
}

func TestTickAdmitsEligiblePlansInOrder(t *testing.T) {
	spawner := &fakeSpawner{freeSlots: 10}
	sched, store := newTestScheduler(t, spawner)
	ctx := context.Background()

	require.NoError(t, store.UpsertPlan(ctx, &types.Plan{Project: "acme", Phase: 1, Plan: 2, Status: types.PlanPlanned}))
	require.NoError(t, store.UpsertPlan(ctx, &types.Plan{Project: "acme", Phase: 1, Plan: 1, Status: types.PlanPlanned}))
	require.NoError(t, store.SaveProjectState(ctx, &types.ProjectExecutionState{Project: "acme", HighestVerified: 5}))

	admitted, err := sched.Tick(ctx, "acme")
	require.NoError(t, err)
	require.Len(t, admitted, 2)
	require.Equal(t, types.PlanID{Phase: 1, Plan: 1}, admitted[0].ID())
	require.Equal(t, types.PlanID{Phase: 1, Plan: 2}, admitted[1].ID())

	got, err := store.GetPlan(ctx, "acme", types.PlanID{Phase: 1, Plan: 1})
	require.NoError(t, err)
	require.Equal(t, types.PlanExecuting, got.Status)
}

func TestTickStopsAtSlotFull(t *testing.T) {
	spawner := &fakeSpawner{freeSlots: 1}
	sched, store := newTestScheduler(t, spawner)
	ctx := context.Background()

	require.NoError(t, store.UpsertPlan(ctx, &types.Plan{Project: "acme", Phase: 1, Plan: 1, Status: types.PlanPlanned}))
	require.NoError(t, store.UpsertPlan(ctx, &types.Plan{Project: "acme", Phase: 1, Plan: 2, Status: types.PlanPlanned}))
	require.NoError(t, store.SaveProjectState(ctx, &types.ProjectExecutionState{Project: "acme", HighestVerified: 5}))

	admitted, err := sched.Tick(ctx, "acme")
	require.NoError(t, err)
	require.Len(t, admitted, 1)
}

func TestTickRespectsFileConflictAcrossCandidates(t *testing.T) {
	spawner := &fakeSpawner{freeSlots: 10}
	sched, store := newTestScheduler(t, spawner)
	ctx := context.Background()

	require.NoError(t, store.UpsertPlan(ctx, &types.Plan{Project: "acme", Phase: 1, Plan: 1, Status: types.PlanPlanned, FilesWritten: []string{"main.go"}}))
	require.NoError(t, store.UpsertPlan(ctx, &types.Plan{Project: "acme", Phase: 1, Plan: 2, Status: types.PlanPlanned, FilesWritten: []string{"main.go"}}))
	require.NoError(t, store.SaveProjectState(ctx, &types.ProjectExecutionState{Project: "acme", HighestVerified: 5}))

	admitted, err := sched.Tick(ctx, "acme")
	require.NoError(t, err)
	require.Len(t, admitted, 1, "second plan conflicts on main.go with the first admitted in this tick")
}

func TestCompleteAndVerifyPhase(t *testing.T) {
	spawner := &fakeSpawner{freeSlots: 10}
	sched, store := newTestScheduler(t, spawner)
	ctx := context.Background()

	id := types.PlanID{Phase: 1, Plan: 1}
	require.NoError(t, store.UpsertPlan(ctx, &types.Plan{Project: "acme", Phase: 1, Plan: 1, Status: types.PlanExecuting}))
	require.NoError(t, store.SaveProjectState(ctx, &types.ProjectExecutionState{Project: "acme"}))

	require.NoError(t, sched.CompletePlan(ctx, "acme", id))

	got, err := store.GetPlan(ctx, "acme", id)
	require.NoError(t, err)
	require.Equal(t, types.PlanExecuted, got.Status)

	state, err := store.GetProjectState(ctx, "acme")
	require.NoError(t, err)
	require.NotNil(t, state.PendingVerifyPhase)
	require.Equal(t, 1, *state.PendingVerifyPhase)

	require.NoError(t, sched.VerifyPhase(ctx, "acme", 1))

	got, err = store.GetPlan(ctx, "acme", id)
	require.NoError(t, err)
	require.Equal(t, types.PlanVerified, got.Status)

	state, err = store.GetProjectState(ctx, "acme")
	require.NoError(t, err)
	require.Equal(t, 1, state.HighestVerified)
	require.Nil(t, state.PendingVerifyPhase)
}

func TestAdmitPlanImmediate(t *testing.T) {
	spawner := &fakeSpawner{freeSlots: 10}
	sched, store := newTestScheduler(t, spawner)
	ctx := context.Background()

	id := types.PlanID{Phase: 1, Plan: 1}
	require.NoError(t, store.UpsertPlan(ctx, &types.Plan{Project: "acme", Phase: 1, Plan: 1, Status: types.PlanPlanned}))
	require.NoError(t, store.SaveProjectState(ctx, &types.ProjectExecutionState{Project: "acme", HighestVerified: 5}))

	sess, err := sched.AdmitPlan(ctx, "acme", id)
	require.NoError(t, err)
	require.NotEmpty(t, sess.ID)

	got, err := store.GetPlan(ctx, "acme", id)
	require.NoError(t, err)
	require.Equal(t, types.PlanExecuting, got.Status)
}

func TestAdmitPlanRejectsVerifyGate(t *testing.T) {
	spawner := &fakeSpawner{freeSlots: 10}
	sched, store := newTestScheduler(t, spawner)
	ctx := context.Background()

	id := types.PlanID{Phase: 5, Plan: 1}
	require.NoError(t, store.UpsertPlan(ctx, &types.Plan{Project: "acme", Phase: 5, Plan: 1, Status: types.PlanPlanned}))
	phase := 3
	require.NoError(t, store.SaveProjectState(ctx, &types.ProjectExecutionState{Project: "acme", HighestVerified: 2, PendingVerifyPhase: &phase}))

	_, err := sched.AdmitPlan(ctx, "acme", id)
	require.Error(t, err)
	code, ok := apierr.CodeOf(err)
	require.True(t, ok)
	require.Equal(t, "rejected_verify_gate", code)
}

func TestAdmitPlanRejectsFileConflict(t *testing.T) {
	spawner := &fakeSpawner{freeSlots: 10}
	sched, store := newTestScheduler(t, spawner)
	ctx := context.Background()

	id := types.PlanID{Phase: 1, Plan: 2}
	require.NoError(t, store.UpsertPlan(ctx, &types.Plan{Project: "acme", Phase: 1, Plan: 2, Status: types.PlanPlanned, FilesWritten: []string{"main.go"}}))
	require.NoError(t, store.SaveProjectState(ctx, &types.ProjectExecutionState{Project: "acme", HighestVerified: 5}))
	holder := &types.Session{ID: uuid.NewString(), Status: types.SessionRunning, StartedAt: time.Now().UTC(), LastPolled: time.Now().UTC()}
	require.NoError(t, store.CreateSession(ctx, holder))
	require.NoError(t, store.ClaimFile(ctx, &types.ActiveFileEntry{Path: "main.go", SessionID: holder.ID, Project: "acme", Phase: 1, Plan: 1, Mode: types.FileWrite}))

	_, err := sched.AdmitPlan(ctx, "acme", id)
	require.Error(t, err)
	code, ok := apierr.CodeOf(err)
	require.True(t, ok)
	require.Equal(t, "rejected_file_conflict", code)
}

func TestAdmitPlanRejectsUnknownPlan(t *testing.T) {
	spawner := &fakeSpawner{freeSlots: 10}
	sched, _ := newTestScheduler(t, spawner)
	ctx := context.Background()

	_, err := sched.AdmitPlan(ctx, "acme", types.PlanID{Phase: 9, Plan: 9})
	require.Error(t, err)
	kind, ok := apierr.KindOf(err)
	require.True(t, ok)
	require.Equal(t, apierr.NotFound, kind)
}
