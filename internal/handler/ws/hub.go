package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"EntryGate/internal/domain/models"
	xlogger "EntryGate/pkg/logger"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type message struct {
	symbol string
	data   []byte
}

type client struct {
	conn   *websocket.Conn
	symbol string // empty subscribes to every symbol
	send   chan []byte
}

// Hub streams evaluations to websocket clients. A client that cannot keep
// up is disconnected rather than allowed to stall the others.
type Hub struct {
	log       *xlogger.Logger
	broadcast chan message

	lock    sync.Mutex
	clients map[*client]struct{}
}

func NewHub(l *xlogger.Logger) *Hub {
	if l == nil {
		l = xlogger.Nop()
	}
	return &Hub{
		log:       l.With("ws"),
		broadcast: make(chan message, 256),
		clients:   make(map[*client]struct{}),
	}
}

func (h *Hub) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws/decisions", h.Serve)
}

// Run fans broadcasts out until ctx ends, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.lock.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.lock.Unlock()
			return
		case m := <-h.broadcast:
			h.lock.Lock()
			for c := range h.clients {
				if c.symbol != "" && c.symbol != m.symbol {
					continue
				}
				select {
				case c.send <- m.data:
				default:
					close(c.send)
					delete(h.clients, c)
				}
			}
			h.lock.Unlock()
		}
	}
}

// Broadcast queues ev for delivery. It never blocks; when the queue is full
// the evaluation is dropped for live viewers.
func (h *Hub) Broadcast(ev *models.Evaluation) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.log.Warn("ws encode failed", xlogger.Error(err))
		return
	}
	select {
	case h.broadcast <- message{symbol: ev.Symbol, data: data}:
	default:
		h.log.Warn("ws broadcast queue full", xlogger.String("symbol", ev.Symbol))
	}
}

// Clients reports connected clients.
func (h *Hub) Clients() int {
	h.lock.Lock()
	defer h.lock.Unlock()
	return len(h.clients)
}

// Serve upgrades the request. ?symbol= narrows the stream to one symbol.
func (h *Hub) Serve(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", xlogger.Error(err))
		return nil
	}
	cl := &client{
		conn:   conn,
		symbol: strings.ToUpper(strings.TrimSpace(c.QueryParam("symbol"))),
		send:   make(chan []byte, sendBuffer),
	}
	h.lock.Lock()
	h.clients[cl] = struct{}{}
	h.lock.Unlock()
	h.log.Debug("ws client connected", xlogger.String("symbol", cl.symbol), xlogger.String("remote", c.RealIP()))

	go h.writePump(cl)
	h.readPump(cl)
	return nil
}

func (h *Hub) remove(cl *client) {
	h.lock.Lock()
	if _, ok := h.clients[cl]; ok {
		close(cl.send)
		delete(h.clients, cl)
	}
	h.lock.Unlock()
}

// readPump discards client frames and notices disconnects.
func (h *Hub) readPump(cl *client) {
	defer func() {
		h.remove(cl)
		cl.conn.Close()
	}()
	cl.conn.SetReadLimit(512)
	_ = cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	cl.conn.SetPongHandler(func(string) error {
		return cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := cl.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(cl *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		cl.conn.Close()
	}()
	for {
		select {
		case data, ok := <-cl.send:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = cl.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := cl.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
