package ws

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

func TestRingBufferKeepsLatest(t *testing.T) {
	r := newRingBuffer(2)
	for i := uint64(1); i <= 3; i++ {
		r.add(Message{Topic: "prices", Seq: i})
	}
	msgs := r.getSince(0)
	require.Len(t, msgs, 2)
	assert.Equal(t, uint64(2), msgs[0].Seq)
	assert.Equal(t, uint64(3), msgs[1].Seq)
	assert.Len(t, r.getSince(2), 1)
}

func dial(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWS(w, r, r.RemoteAddr, "prices")
	}))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHubDeliversBroadcast(t *testing.T) {
	hub := NewHub(4, 1, zap.NewNop())
	defer hub.Close()

	conn := dial(t, hub)
	hub.Broadcast("prices", []byte(`{"buy_price":"3000000"}`))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"buy_price":"3000000"}`, string(data))
}

func TestHubReplaysLatestToNewClients(t *testing.T) {
	hub := NewHub(1, 1, zap.NewNop())
	defer hub.Close()

	hub.Broadcast("prices", []byte(`"old"`))
	hub.Broadcast("prices", []byte(`"new"`))
	require.Eventually(t, func() bool {
		msgs := hub.Replay("prices", 0)
		return len(msgs) == 1 && string(msgs[0].Data) == `"new"`
	}, 5*time.Second, 10*time.Millisecond)

	conn := dial(t, hub)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, `"new"`, string(data))
}
