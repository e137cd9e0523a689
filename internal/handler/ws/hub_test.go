package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"EntryGate/internal/domain/models"
)

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/decisions" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return h.Clients() == n }, 2*time.Second, 10*time.Millisecond)
}

func TestHubStreamsDecisions(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := NewHub(nil)
	go h.Run(ctx)

	e := echo.New()
	h.RegisterRoutes(e)
	srv := httptest.NewServer(e)
	defer srv.Close()

	all := dial(t, srv, "")
	eth := dial(t, srv, "?symbol=ethusdt")
	waitClients(t, h, 2)

	h.Broadcast(&models.Evaluation{ID: "1", Symbol: "BTCUSDT", Decision: models.DecisionLong})
	h.Broadcast(&models.Evaluation{ID: "2", Symbol: "ETHUSDT", Decision: models.DecisionShort})

	read := func(conn *websocket.Conn) models.Evaluation {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var ev models.Evaluation
		require.NoError(t, json.Unmarshal(data, &ev))
		return ev
	}

	assert.Equal(t, "1", read(all).ID)
	assert.Equal(t, "2", read(all).ID)
	got := read(eth)
	assert.Equal(t, "2", got.ID)
	assert.Equal(t, models.DecisionShort, got.Decision)
}

func TestHubDropsClosedClient(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := NewHub(nil)
	go h.Run(ctx)

	e := echo.New()
	h.RegisterRoutes(e)
	srv := httptest.NewServer(e)
	defer srv.Close()

	conn := dial(t, srv, "")
	waitClients(t, h, 1)
	conn.Close()
	waitClients(t, h, 0)
}
