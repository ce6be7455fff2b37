package storage

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/sandoak/gsdharness/pkg/types"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSessionRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	sess := &types.Session{
		ID: uuid.NewString(), Slot: 0, WorkDir: "/tmp/work", Command: "claude",
		Status: types.SessionRunning, StartedAt: time.Now().UTC(), LastPolled: time.Now().UTC(),
	}
	require.NoError(t, store.CreateSession(ctx, sess))

	got, err := store.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	require.Equal(t, sess.Command, got.Command)
	require.Equal(t, types.SessionRunning, got.Status)

	active, err := store.ListActiveSessions(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)

	got.Status = types.SessionCompleted
	now := time.Now().UTC()
	got.EndedAt = &now
	require.NoError(t, store.UpdateSession(ctx, got))

	active, err = store.ListActiveSessions(ctx)
	require.NoError(t, err)
	require.Empty(t, active)

	_, err = store.GetSession(ctx, "does-not-exist")
	require.Error(t, err)
}

func TestOutputChunkOrdering(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	sess := &types.Session{ID: uuid.NewString(), Status: types.SessionRunning, StartedAt: time.Now().UTC(), LastPolled: time.Now().UTC()}
	require.NoError(t, store.CreateSession(ctx, sess))

	for i := int64(1); i <= 3; i++ {
		require.NoError(t, store.AppendOutputChunk(ctx, &types.OutputChunk{
			SessionID: sess.ID, Seq: i, Stream: types.StreamStdout, Data: []byte("chunk"), CreatedAt: time.Now().UTC(),
		}))
	}

	chunks, err := store.ListOutputChunks(ctx, sess.ID, 1)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	require.Equal(t, int64(2), chunks[0].Seq)
	require.Equal(t, int64(3), chunks[1].Seq)
}

func TestWorkerMessageRespond(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	sess := &types.Session{ID: uuid.NewString(), Status: types.SessionRunning, StartedAt: time.Now().UTC(), LastPolled: time.Now().UTC()}
	require.NoError(t, store.CreateSession(ctx, sess))

	msg := &types.WorkerMessage{
		ID: uuid.NewString(), SessionID: sess.ID, Type: types.MsgDecisionNeeded,
		Payload: []byte(`{"question":"proceed?"}`), Status: types.WorkerMsgPending, CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, store.CreateWorkerMessage(ctx, msg))

	cp, err := store.OldestPendingCheckpoint(ctx, sess.ID)
	require.NoError(t, err)
	require.NotNil(t, cp)
	require.Equal(t, msg.ID, cp.ID)

	require.NoError(t, store.RespondToWorkerMessage(ctx, msg.ID, types.OrchDecisionMade, []byte(`{"proceed":true}`)))

	err = store.RespondToWorkerMessage(ctx, msg.ID, types.OrchDecisionMade, []byte(`{}`))
	require.Error(t, err)

	cp, err = store.OldestPendingCheckpoint(ctx, sess.ID)
	require.NoError(t, err)
	require.Nil(t, cp)
}

func TestLatestResponseRequiredMessage(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	sess := &types.Session{ID: uuid.NewString(), Status: types.SessionRunning, StartedAt: time.Now().UTC(), LastPolled: time.Now().UTC()}
	require.NoError(t, store.CreateSession(ctx, sess))

	none, err := store.LatestResponseRequiredMessage(ctx, sess.ID)
	require.NoError(t, err)
	require.Nil(t, none)

	require.NoError(t, store.CreateWorkerMessage(ctx, &types.WorkerMessage{
		ID: uuid.NewString(), SessionID: sess.ID, Type: types.MsgProgressUpdate,
		Payload: []byte(`{}`), Status: types.WorkerMsgPending, CreatedAt: time.Now().UTC(),
	}))

	first := &types.WorkerMessage{
		ID: uuid.NewString(), SessionID: sess.ID, Type: types.MsgDecisionNeeded,
		Payload: []byte(`{"n":1}`), Status: types.WorkerMsgPending, CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, store.CreateWorkerMessage(ctx, first))

	second := &types.WorkerMessage{
		ID: uuid.NewString(), SessionID: sess.ID, Type: types.MsgVerificationNeeded,
		Payload: []byte(`{"n":2}`), Status: types.WorkerMsgPending, CreatedAt: time.Now().UTC().Add(time.Second),
	}
	require.NoError(t, store.CreateWorkerMessage(ctx, second))

	latest, err := store.LatestResponseRequiredMessage(ctx, sess.ID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	require.Equal(t, second.ID, latest.ID)
}

func TestPlanLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	plan := &types.Plan{
		Project: "acme", Phase: 1, Plan: 1, Status: types.PlanPlanned,
		DependsOn: []types.PlanID{}, FilesWritten: []string{"main.go"}, FilesRead: []string{},
		CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC(),
	}
	require.NoError(t, store.UpsertPlan(ctx, plan))

	got, err := store.GetPlan(ctx, "acme", plan.ID())
	require.NoError(t, err)
	require.Equal(t, []string{"main.go"}, got.FilesWritten)

	require.NoError(t, store.UpdatePlanStatus(ctx, "acme", plan.ID(), types.PlanExecuted))
	got, err = store.GetPlan(ctx, "acme", plan.ID())
	require.NoError(t, err)
	require.Equal(t, types.PlanExecuted, got.Status)

	plans, err := store.ListPlans(ctx, "acme")
	require.NoError(t, err)
	require.Len(t, plans, 1)
}

func TestActiveFileClaims(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	sess := &types.Session{ID: uuid.NewString(), Status: types.SessionRunning, StartedAt: time.Now().UTC(), LastPolled: time.Now().UTC()}
	require.NoError(t, store.CreateSession(ctx, sess))

	require.NoError(t, store.ClaimFile(ctx, &types.ActiveFileEntry{
		Path: "main.go", SessionID: sess.ID, Project: "acme", Phase: 1, Plan: 1, Mode: types.FileWrite, StartedAt: time.Now().UTC(),
	}))

	active, err := store.ListActiveFiles(ctx, "acme")
	require.NoError(t, err)
	require.Len(t, active, 1)

	require.NoError(t, store.ReleaseFilesForSession(ctx, sess.ID))
	active, err = store.ListActiveFiles(ctx, "acme")
	require.NoError(t, err)
	require.Empty(t, active)
}
