package dashboard

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/sandoak/gsdharness/pkg/events"
	"github.com/sandoak/gsdharness/pkg/ptysup"
	"github.com/sandoak/gsdharness/pkg/storage"
	"github.com/sandoak/gsdharness/pkg/types"
)

func newTestServer(t *testing.T) (*Server, storage.Store, *events.Broker) {
	t.Helper()
	store, err := storage.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	bus := events.NewBroker()
	bus.Start()
	t.Cleanup(bus.Stop)

	sup := ptysup.New(ptysup.Config{Slots: 1, Store: store, Events: bus}, zerolog.Nop())
	sup.Start()
	t.Cleanup(sup.Stop)

	return New(Config{Store: store, Events: bus, Supervisor: sup}, zerolog.Nop()), store, bus
}

func TestWebsocketInitialStateSnapshot(t *testing.T) {
	s, store, _ := newTestServer(t)
	require.NoError(t, store.CreateSession(context.Background(), &types.Session{
		ID: "sess-1", Status: types.SessionRunning, StartedAt: time.Now().UTC(), LastPolled: time.Now().UTC(),
	}))

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	var snapshot map[string]interface{}
	require.NoError(t, conn.ReadJSON(&snapshot))
	require.Equal(t, "initial-state", snapshot["type"])
	require.Len(t, snapshot["sessions"], 1)
}

func TestWebsocketForwardsBusEvents(t *testing.T) {
	s, _, bus := newTestServer(t)

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	var snapshot map[string]interface{}
	require.NoError(t, conn.ReadJSON(&snapshot))

	require.Eventually(t, func() bool { return s.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	bus.Publish(&events.Event{Type: events.EventSessionCompleted, SessionID: "sess-1", Message: "done"})

	var forwarded map[string]interface{}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, conn.ReadJSON(&forwarded))
	require.Equal(t, string(events.EventSessionCompleted), forwarded["type"])
	require.Equal(t, "sess-1", forwarded["sessionId"])
}

func TestResizeEndpoint(t *testing.T) {
	s, store, _ := newTestServer(t)
	ctx := context.Background()

	workDir := t.TempDir()
	sup := s.super
	sess, err := sup.Spawn(ctx, workDir, "sleep 5")
	require.NoError(t, err)

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/sessions/"+sess.ID+"/resize", "application/json",
		strings.NewReader(`{"cols":120,"rows":40}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, sup.EndSession(sess.ID))
	_ = store
}

func TestResizeEndpointUnknownSession(t *testing.T) {
	s, _, _ := newTestServer(t)

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/sessions/does-not-exist/resize", "application/json",
		strings.NewReader(`{"cols":80,"rows":24}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NotEqual(t, http.StatusOK, resp.StatusCode)
}
