package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/uhyunpark/matchcore/pkg/broadcast"
	"github.com/uhyunpark/matchcore/pkg/cqrs"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins (CORS handled by main server)
		return true
	},
}

// Hub tracks the live event-stream connections.
type Hub struct {
	mu      sync.Mutex
	clients map[*Client]struct{}
	log     *zap.SugaredLogger
}

func NewHub(log *zap.SugaredLogger) *Hub {
	return &Hub{clients: make(map[*Client]struct{}), log: log}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.log.Infow("ws_client_connected", "client", c.id, "instrument", c.instrument, "total", n)
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()
	if ok {
		h.log.Infow("ws_client_disconnected", "client", c.id, "instrument", c.instrument, "total", n)
	}
}

func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// CloseAll ends every stream; each client receives a close frame.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.sub.Close()
	}
}

// Client streams one instrument's events over a WebSocket connection.
type Client struct {
	hub        *Hub
	conn       *websocket.Conn
	sub        *broadcast.Subscription[cqrs.Event]
	id         string
	instrument string
}

// readPump only services control frames; the stream is one-way.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.sub.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Debugw("ws_read_error", "client", c.id, "err", err)
			}
			return
		}
	}
}

// writePump forwards stream events as JSON envelopes.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.sub.C():
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "stream closed"))
				return
			}
			msg, err := cqrs.Marshal(ev)
			if err != nil {
				c.hub.log.Errorw("ws_encode_failed", "client", c.id, "type", ev.Type(), "err", err)
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.sub.Close()
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.sub.Close()
				return
			}
		}
	}
}

// handleEvents upgrades to a WebSocket and streams every event of the
// instrument published from now on.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	instrument := mux.Vars(r)["instrument"]

	sub, err := s.registry.Subscribe(instrument)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid instrument", err.Error())
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		sub.Close()
		s.log.Warnw("ws_upgrade_failed", "instrument", instrument, "err", err)
		return
	}

	client := &Client{
		hub:        s.hub,
		conn:       conn,
		sub:        sub,
		id:         conn.RemoteAddr().String(),
		instrument: instrument,
	}
	s.hub.register(client)

	go client.writePump()
	go client.readPump()
}
