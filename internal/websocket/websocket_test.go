package websocket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func dial(t *testing.T, srv *httptest.Server, user string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?user=" + user
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	var hello WSMessage
	require.NoError(t, conn.ReadJSON(&hello))
	require.Equal(t, "connected", hello.Type)
	return conn
}

func waitForConnections(t *testing.T, wsm *WebSocketManager, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return wsm.GetConnectionCount() == n }, time.Second, 5*time.Millisecond)
}

func TestSendToUser_OnlyReachesThatUser(t *testing.T) {
	wsm := NewWebSocketManager("*", zap.NewNop())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wsm.HandleConnection(w, r, r.URL.Query().Get("user"))
	}))
	defer srv.Close()

	alice := dial(t, srv, "alice")
	bob := dial(t, srv, "bob")
	waitForConnections(t, wsm, 2)

	wsm.SendToUser("alice", "job_progress", map[string]interface{}{"progress": 50.0})
	wsm.BroadcastMessage("notice", "hello")

	var msg WSMessage
	require.NoError(t, alice.ReadJSON(&msg))
	assert.Equal(t, "job_progress", msg.Type)
	require.NoError(t, alice.ReadJSON(&msg))
	assert.Equal(t, "notice", msg.Type)

	require.NoError(t, bob.ReadJSON(&msg))
	assert.Equal(t, "notice", msg.Type, "bob skips alice's progress")
}

func TestPingPongAndDisconnect(t *testing.T) {
	wsm := NewWebSocketManager("*", zap.NewNop())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wsm.HandleConnection(w, r, "carol")
	}))
	defer srv.Close()

	conn := dial(t, srv, "carol")
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))

	var msg WSMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "pong", msg.Type)

	conn.Close()
	waitForConnections(t, wsm, 0)
}

func TestCheckOrigin(t *testing.T) {
	wsm := NewWebSocketManager("https://app.example.com", zap.NewNop())
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	req.Header.Set("Origin", "https://app.example.com")
	assert.True(t, wsm.upgrader.CheckOrigin(req))
	req.Header.Set("Origin", "https://evil.example.com")
	assert.False(t, wsm.upgrader.CheckOrigin(req))
}
