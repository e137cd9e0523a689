package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"EntryGate/internal/domain/models"
)

type recordingSink struct {
	mu    sync.Mutex
	snaps []*models.IndicatorSnapshot
	err   error
}

func (s *recordingSink) Process(_ context.Context, snap *models.IndicatorSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps = append(s.snaps, snap)
	return s.err
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.snaps)
}

// upstream accepts connections, records subscriptions and writes frames.
type upstream struct {
	mu     sync.Mutex
	subs   []string
	tokens []string
	conns  int
	frames []string
}

func (u *upstream) handler() http.HandlerFunc {
	up := websocket.Upgrader{}
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		u.mu.Lock()
		u.conns++
		u.tokens = append(u.tokens, r.URL.Query().Get("token"))
		frames := u.frames
		u.mu.Unlock()

		var sub map[string]string
		if err := conn.ReadJSON(&sub); err != nil {
			return
		}
		u.mu.Lock()
		u.subs = append(u.subs, sub["symbol"])
		u.mu.Unlock()

		for _, f := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		// Hold the connection until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestClientForwardsSnapshotFrames(t *testing.T) {
	u := &upstream{frames: []string{
		`not json`,
		`{"type":"ping"}`,
		`{"type":"error","msg":"rate limited"}`,
		`{"type":"snapshot","data":[{"symbol":"BTCUSDT","candle_closed":true,"states":{"rsi_trend":"up"}},{"symbol":"ETHUSDT","states":{}}]}`,
	}}
	srv := httptest.NewServer(u.handler())
	defer srv.Close()

	sink := &recordingSink{}
	c := NewClient(wsURL(srv), []string{"btcusdt"}, sink, WithToken("secret"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.Eventually(t, func() bool { return sink.count() == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.True(t, c.IsConnected())

	sink.mu.Lock()
	assert.Equal(t, "BTCUSDT", sink.snaps[0].Symbol)
	assert.True(t, sink.snaps[0].CandleClosed)
	assert.Equal(t, "up", sink.snaps[0].States["rsi_trend"])
	assert.Equal(t, "ETHUSDT", sink.snaps[1].Symbol)
	sink.mu.Unlock()

	u.mu.Lock()
	assert.Equal(t, []string{"BTCUSDT"}, u.subs)
	assert.Equal(t, []string{"secret"}, u.tokens)
	u.mu.Unlock()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.False(t, c.IsConnected())
}

func TestClientUsesDecoder(t *testing.T) {
	u := &upstream{frames: []string{`{"type":"snapshot","data":[{"symbol":"x"}]}`}}
	srv := httptest.NewServer(u.handler())
	defer srv.Close()

	sink := &recordingSink{}
	c := NewClient(wsURL(srv), []string{"X"}, sink, WithDecoder(func([]byte) (*models.IndicatorSnapshot, error) {
		return &models.IndicatorSnapshot{Symbol: "DECODED"}, nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	require.Eventually(t, func() bool { return sink.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	sink.mu.Lock()
	assert.Equal(t, "DECODED", sink.snaps[0].Symbol)
	sink.mu.Unlock()
}

func TestClientReconnectsAfterDrop(t *testing.T) {
	var mu sync.Mutex
	conns := 0
	up := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		mu.Lock()
		conns++
		n := conns
		mu.Unlock()
		_ = conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"type":"snapshot","data":[{"symbol":"BTCUSDT"}]}`))
		if n == 1 {
			conn.Close()
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	sink := &recordingSink{err: models.ErrDuplicateTick}
	c := NewClient(wsURL(srv), nil, sink, WithReconnectDelay(10*time.Millisecond, 50*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	require.Eventually(t, func() bool { return sink.count() >= 2 }, 3*time.Second, 10*time.Millisecond)
	mu.Lock()
	assert.GreaterOrEqual(t, conns, 2)
	mu.Unlock()
}

func TestClientStopsOnUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(wsURL(srv), nil, &recordingSink{}, WithReconnectDelay(time.Millisecond, time.Millisecond))
	err := c.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unauthorized")
}
