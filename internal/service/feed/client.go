package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"EntryGate/internal/domain/models"
	"EntryGate/pkg/logger"
)

// Sink receives decoded snapshots.
type Sink interface {
	Process(ctx context.Context, snap *models.IndicatorSnapshot) error
}

// DecodeFunc turns one snapshot object into a model.
type DecodeFunc func([]byte) (*models.IndicatorSnapshot, error)

// Client streams indicator snapshots from an upstream websocket and hands
// them to a Sink. It reconnects with exponential backoff until its context
// ends.
type Client struct {
	url          string
	token        string
	symbols      []string
	sink         Sink
	decode       DecodeFunc
	pingInterval time.Duration
	minDelay     time.Duration
	maxDelay     time.Duration
	dialer       *websocket.Dialer
	log          *logger.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
}

type Option func(*Client)

func WithToken(token string) Option { return func(c *Client) { c.token = token } }

func WithDecoder(fn DecodeFunc) Option { return func(c *Client) { c.decode = fn } }

func WithPingInterval(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.pingInterval = d
		}
	}
}

// WithReconnectDelay bounds the backoff between dial attempts.
func WithReconnectDelay(lo, hi time.Duration) Option {
	return func(c *Client) {
		if lo > 0 {
			c.minDelay = lo
		}
		if hi >= c.minDelay {
			c.maxDelay = hi
		}
	}
}

func WithLogger(l *logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l.With("feed")
		}
	}
}

func NewClient(url string, symbols []string, sink Sink, opts ...Option) *Client {
	c := &Client{
		url:          url,
		symbols:      symbols,
		sink:         sink,
		decode:       decodePlain,
		pingInterval: 30 * time.Second,
		minDelay:     time.Second,
		maxDelay:     30 * time.Second,
		dialer:       websocket.DefaultDialer,
		log:          logger.Nop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func decodePlain(b []byte) (*models.IndicatorSnapshot, error) {
	var s models.IndicatorSnapshot
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// frame is the envelope the upstream sends. Only "snapshot" frames carry data.
type frame struct {
	Type string            `json:"type"`
	Data []json.RawMessage `json:"data"`
	Msg  string            `json:"msg,omitempty"`
}

// Connect dials the upstream and subscribes to every configured symbol.
func (c *Client) Connect(ctx context.Context) error {
	u := c.url
	if c.token != "" {
		sep := "?"
		if strings.Contains(u, "?") {
			sep = "&"
		}
		u = u + sep + "token=" + c.token
	}
	conn, resp, err := c.dialer.DialContext(ctx, u, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return backoff.Permanent(fmt.Errorf("feed connect: unauthorized"))
		}
		return fmt.Errorf("feed connect: %w", err)
	}
	for _, s := range c.symbols {
		msg := map[string]string{"type": "subscribe", "symbol": strings.ToUpper(s)}
		if err := conn.WriteJSON(msg); err != nil {
			conn.Close()
			return fmt.Errorf("subscribe %s: %w", s, err)
		}
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()
	c.log.Info("feed connected", logger.String("url", c.url), logger.Strings("symbols", c.symbols))
	return nil
}

// Run connects and reads until ctx ends, reconnecting on read errors.
func (c *Client) Run(ctx context.Context) error {
	for {
		eb := backoff.NewExponentialBackOff()
		eb.InitialInterval = c.minDelay
		eb.MaxInterval = c.maxDelay
		eb.MaxElapsedTime = 0
		err := backoff.RetryNotify(func() error {
			return c.Connect(ctx)
		}, backoff.WithContext(eb, ctx), func(err error, d time.Duration) {
			c.log.Warn("feed dial failed", logger.Error(err), logger.Duration("retry_in", d))
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		err = c.read(ctx)
		c.Close()
		if ctx.Err() != nil {
			return nil
		}
		c.log.Warn("feed disconnected", logger.Error(err))
	}
}

func (c *Client) read(ctx context.Context) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	done := make(chan struct{})
	defer close(done)
	go func() {
		t := time.NewTicker(c.pingInterval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				// Unblocks ReadMessage.
				conn.Close()
				return
			case <-done:
				return
			case <-t.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, b, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("feed read: %w", err)
		}
		c.handle(ctx, b)
	}
}

func (c *Client) handle(ctx context.Context, b []byte) {
	var f frame
	if err := json.Unmarshal(b, &f); err != nil {
		c.log.Debug("ignoring non-json frame", logger.Int("bytes", len(b)))
		return
	}
	switch f.Type {
	case "snapshot":
	case "error":
		c.log.Warn("feed error frame", logger.String("msg", f.Msg))
		return
	default:
		return
	}
	for _, raw := range f.Data {
		snap, err := c.decode(raw)
		if err != nil {
			c.log.Warn("dropping undecodable snapshot", logger.Error(err))
			continue
		}
		err = c.sink.Process(ctx, snap)
		if err == nil || errors.Is(err, models.ErrDuplicateTick) {
			continue
		}
		if _, ok := models.AsSchemaError(err); ok {
			c.log.Warn("dropping invalid snapshot", logger.String("symbol", snap.Symbol), logger.Error(err))
			continue
		}
		c.log.Error("snapshot processing failed", logger.String("symbol", snap.Symbol), logger.Error(err))
	}
}

// Close closes the current connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}
