package ptysup

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/sandoak/gsdharness/pkg/events"
	"github.com/sandoak/gsdharness/pkg/storage"
)

func newTestSupervisor(t *testing.T) (*Supervisor, storage.Store) {
	t.Helper()
	store, err := storage.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	bus := events.NewBroker()
	bus.Start()
	t.Cleanup(bus.Stop)

	sup := New(Config{Slots: 2, Store: store, Events: bus}, zerolog.Nop())
	sup.Start()
	t.Cleanup(sup.Stop)
	return sup, store
}

func TestSpawnRunsCommandToCompletion(t *testing.T) {
	sup, store := newTestSupervisor(t)
	ctx := context.Background()

	sess, err := sup.Spawn(ctx, t.TempDir(), "echo hello-world")
	require.NoError(t, err)
	require.NotNil(t, sess.PID)

	require.Eventually(t, func() bool {
		got, err := store.GetSession(ctx, sess.ID)
		return err == nil && got.Status.Terminal()
	}, 5*time.Second, 50*time.Millisecond)

	got, err := store.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	require.NotNil(t, got.EndedAt)
}

func TestSpawnRejectsWhenSlotsFull(t *testing.T) {
	sup, _ := newTestSupervisor(t)
	ctx := context.Background()

	_, err := sup.Spawn(ctx, t.TempDir(), "sleep 2")
	require.NoError(t, err)
	_, err = sup.Spawn(ctx, t.TempDir(), "sleep 2")
	require.NoError(t, err)

	_, err = sup.Spawn(ctx, t.TempDir(), "sleep 2")
	require.Error(t, err)
}

func TestWriteInputToRunningSession(t *testing.T) {
	sup, store := newTestSupervisor(t)
	ctx := context.Background()

	sess, err := sup.Spawn(ctx, t.TempDir(), "cat")
	require.NoError(t, err)

	require.NoError(t, sup.WriteInput(sess.ID, []byte("ping\n")))

	require.Eventually(t, func() bool {
		chunks, err := store.ListOutputChunks(ctx, sess.ID, 0)
		if err != nil {
			return false
		}
		for _, c := range chunks {
			if string(c.Data) != "" {
				return true
			}
		}
		return false
	}, 2*time.Second, 20*time.Millisecond)

	require.NoError(t, sup.WriteInput(sess.ID, []byte{4})) // EOF (Ctrl-D) to let cat exit
}
