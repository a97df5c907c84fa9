package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cevents "github.com/radieske/riskbridge/pkg/contracts/events"
)

const alice = "0x00000000000000000000000000000000000A11cE"

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func (h *Hub) subscribers(key string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[key])
}

func TestHubDeliversToSubscribers(t *testing.T) {
	hub := NewHub(func(*http.Request) bool { return true })
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	c := dial(t, srv)
	require.NoError(t, c.WriteJSON(ClientMsg{Type: "subscribe", User: alice}))
	require.Eventually(t, func() bool { return hub.subscribers(strings.ToLower(alice)) == 1 }, time.Second, 10*time.Millisecond)

	pub := hub.Publisher(40245)
	require.NoError(t, pub.Publish(context.Background(), cevents.Deposited{User: "0x0000000000000000000000000000000000000b0b", Amount: 1}))
	require.NoError(t, pub.Publish(context.Background(), cevents.Deposited{User: alice, Amount: 7}))

	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := c.ReadMessage()
	require.NoError(t, err)

	var env cevents.Envelope
	require.NoError(t, json.Unmarshal(raw, &env))
	assert.Equal(t, cevents.NameDeposited, env.Type)
	assert.Equal(t, uint32(40245), env.ChainID)
	assert.JSONEq(t, `{"user":"`+alice+`","amount":7}`, string(env.Data))
}

func TestHubPingAndUnsubscribe(t *testing.T) {
	hub := NewHub(func(*http.Request) bool { return true })
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	c := dial(t, srv)
	require.NoError(t, c.WriteJSON(ClientMsg{Type: "subscribe", User: AllUsers}))
	require.NoError(t, c.WriteJSON(ClientMsg{Type: "ping"}))

	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := c.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"pong"}`, string(raw))
	assert.Equal(t, 1, hub.subscribers(AllUsers))

	require.NoError(t, c.WriteJSON(ClientMsg{Type: "unsubscribe", User: AllUsers}))
	require.Eventually(t, func() bool { return hub.subscribers(AllUsers) == 0 }, time.Second, 10*time.Millisecond)
}
