package gateway

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBroadcaster_OnlySubscribersReceive(t *testing.T) {
	subConn, subClient, cleanupSub := websocketConnPair(t)
	defer cleanupSub()
	simConn, _, cleanupSim := websocketConnPair(t)
	defer cleanupSim()

	registry := NewClientRegistry()
	registry.Add(&Client{ID: "subscriber", Kind: ClientEvents, Conn: subConn})
	registry.Add(&Client{ID: "simulation", Kind: ClientSimulation, Conn: simConn})

	broadcaster := NewEventBroadcaster(registry, zerolog.Nop())
	delivered := broadcaster.Broadcast(EventPlanCompleted, "trace-1", PlanEvent{ID: "p1", Status: "SAFE", Waypoints: 4})
	assert.Equal(t, 1, delivered)

	var event EventMessage
	require.NoError(t, subClient.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, subClient.ReadJSON(&event))

	assert.Equal(t, "event", event.Type)
	assert.Equal(t, EventPlanCompleted, event.Event)
	assert.Equal(t, "trace-1", event.TraceID)
	assert.NotZero(t, event.Timestamp)
	data := event.Data.(map[string]interface{})
	assert.Equal(t, "p1", data["id"])
}

func TestEventBroadcaster_SequenceIncreases(t *testing.T) {
	serverConn, clientConn, cleanup := websocketConnPair(t)
	defer cleanup()

	registry := NewClientRegistry()
	registry.Add(&Client{ID: "client-1", Kind: ClientEvents, Conn: serverConn})

	broadcaster := NewEventBroadcaster(registry, zerolog.Nop())
	broadcaster.Broadcast(EventPlanCompleted, "", map[string]interface{}{"n": 1})
	broadcaster.Broadcast(EventPlanCompleted, "", map[string]interface{}{"n": 2})

	var first, second EventMessage
	require.NoError(t, clientConn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, clientConn.ReadJSON(&first))
	require.NoError(t, clientConn.ReadJSON(&second))

	assert.NotZero(t, first.Seq)
	assert.Greater(t, second.Seq, first.Seq)
}

func TestEventBroadcaster_NoSubscribers(t *testing.T) {
	broadcaster := NewEventBroadcaster(NewClientRegistry(), zerolog.Nop())
	assert.Equal(t, 0, broadcaster.Broadcast(EventPlanCompleted, "", nil))
}

func TestClientRegistry(t *testing.T) {
	registry := NewClientRegistry()
	past := time.Now().Add(-10 * time.Minute)
	registry.Add(&Client{ID: "a", Kind: ClientEvents, LastActivity: past})
	registry.Add(&Client{ID: "b", Kind: ClientSimulation, LastActivity: time.Now()})

	assert.Equal(t, 2, registry.Count())
	assert.Len(t, registry.OfKind(ClientSimulation), 1)

	infos := registry.Infos()
	require.Len(t, infos, 2)
	for _, info := range infos {
		assert.Equal(t, info.ID == "a", info.Idle)
	}

	registry.Touch("a")
	c, ok := registry.Get("a")
	require.True(t, ok)
	assert.True(t, c.LastActivity.After(past))

	registry.Remove("a")
	_, ok = registry.Get("a")
	assert.False(t, ok)
	assert.Len(t, registry.All(), 1)
}

func websocketConnPair(t *testing.T) (*websocket.Conn, *websocket.Conn, func()) {
	t.Helper()

	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	serverConnCh := make(chan *websocket.Conn, 1)
	errCh := make(chan error, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			errCh <- err
			return
		}
		serverConnCh <- conn
	}))

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	clientConn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)

	var serverConn *websocket.Conn
	select {
	case serverConn = <-serverConnCh:
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for server websocket connection")
	}

	cleanup := func() {
		_ = clientConn.Close()
		_ = serverConn.Close()
		srv.Close()
	}

	return serverConn, clientConn, cleanup
}
