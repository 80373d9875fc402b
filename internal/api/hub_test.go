package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"traderelay/internal/model"
)

func TestHub_BroadcastDuringDisconnect(t *testing.T) {
	h := NewHub(nil)

	const n = 500
	clients := make([]*wsClient, n)
	for i := range clients {
		c := &wsClient{send: make(chan []byte, 1)}
		clients[i] = c
		h.mu.Lock()
		h.clients[c] = true
		h.mu.Unlock()
	}

	res := &model.HMAResult{CurrentHMA: 123.45, LastUpdate: time.Now()}

	// Disconnect every client while broadcasts are in flight. A send on a
	// closed channel panics, so surviving the loop is the assertion.
	done := make(chan struct{})
	go func() {
		for _, c := range clients {
			h.drop(c)
		}
		close(done)
	}()
	for {
		select {
		case <-done:
			assert.Equal(t, 0, h.ClientCount())
			return
		default:
			h.BroadcastHMA("NSE:NIFTY50-INDEX", res)
		}
	}
}

func TestHub_DropIsIdempotent(t *testing.T) {
	h := NewHub(nil)
	c := &wsClient{send: make(chan []byte, 1)}
	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()

	h.drop(c)
	h.drop(c) // second drop must not close the channel again
	assert.Equal(t, 0, h.ClientCount())
}

func TestHub_ReplaysLatestToNewClient(t *testing.T) {
	h := NewHub(nil)
	h.BroadcastHMA("NSE:SBIN-EQ", &model.HMAResult{
		CurrentHMA: 812.35,
		LastUpdate: time.Unix(1772500000, 0),
	})

	srv := httptest.NewServer(http.HandlerFunc(h.HandleWS))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(msg, &got))
	assert.Equal(t, "hma_update", got["type"])
	assert.Equal(t, "NSE:SBIN-EQ", got["symbol"])
	assert.InDelta(t, 812.35, got["hma"].(float64), 1e-9)
}
