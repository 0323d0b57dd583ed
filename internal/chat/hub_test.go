package chat

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	mu    sync.Mutex
	seen  []string
	reply error
}

func (r *recordingHandler) HandleCommand(text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, text)
	return r.reply
}

func (r *recordingHandler) commands() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.seen...)
}

func startHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(HubConf{})
	srv := httptest.NewServer(hub.Router())
	t.Cleanup(func() {
		hub.Shutdown()
		srv.Close()
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return hub.ClientCount() == n }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_BroadcastsText(t *testing.T) {
	hub, srv := startHub(t)
	a := dial(t, srv, "")
	b := dial(t, srv, "")
	waitClients(t, hub, 2)

	hub.Emit("Group: Rich Boys has 1 members!")

	for _, conn := range []*websocket.Conn{a, b} {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		kind, data, err := conn.ReadMessage()
		require.NoError(t, err)
		assert.Equal(t, websocket.TextMessage, kind)
		assert.Equal(t, "[bot] Group: Rich Boys has 1 members!", string(data))
	}
}

func TestHub_ProtoClientsGetBinaryFrames(t *testing.T) {
	hub, srv := startHub(t)
	conn := dial(t, srv, "?format=proto")
	waitClients(t, hub, 1)

	hub.Emit("hello")

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	kind, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, kind)

	text, at, err := DecodeFrame(data)
	require.NoError(t, err)
	assert.Equal(t, "[bot] hello", text)
	assert.WithinDuration(t, time.Now(), at, time.Minute)
}

func TestHub_RoutesCommands(t *testing.T) {
	hub, srv := startHub(t)
	h := &recordingHandler{}
	hub.SetCommandHandler(h)

	conn := dial(t, srv, "")
	waitClients(t, hub, 1)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("just chatting")))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("[bot] echo")))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("!refresh")))

	require.Eventually(t, func() bool { return len(h.commands()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"!refresh"}, h.commands())
}

func TestHub_CommandErrorsAreBroadcast(t *testing.T) {
	hub, srv := startHub(t)
	hub.SetCommandHandler(&recordingHandler{reply: errors.New("unknown command. try !help")})

	conn := dial(t, srv, "")
	waitClients(t, hub, 1)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("!nope")))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "[bot] err: unknown command. try !help", string(data))
}

func TestHub_HTTPEndpoints(t *testing.T) {
	hub, srv := startHub(t)
	hub.Emit("first")
	hub.Emit("second")

	resp, err := http.Get(srv.URL + "/api/summary")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Lines []string `json:"lines"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, []string{"first", "second"}, body.Lines)

	health, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer health.Body.Close()
	assert.Equal(t, http.StatusOK, health.StatusCode)
}

func TestHub_DisconnectRemovesClient(t *testing.T) {
	hub, srv := startHub(t)
	conn := dial(t, srv, "")
	waitClients(t, hub, 1)

	require.NoError(t, conn.Close())
	waitClients(t, hub, 0)
}

func TestSinks(t *testing.T) {
	short := NewRecorder(2)
	long := NewRecorder(10)
	sink := MultiSink{short, long, nil, LogSink{}}

	sink.Emit("a")
	sink.Emit("b")
	sink.Emit("c")

	assert.Equal(t, []string{"b", "c"}, short.Lines())
	assert.Equal(t, []string{"a", "b", "c"}, long.Lines())
}

func TestHub_ListenAfterShutdownReturns(t *testing.T) {
	hub := NewHub(HubConf{Listen: "127.0.0.1:0"})
	hub.Shutdown()

	assert.NoError(t, hub.ListenAndServe())
}
