package control

import (
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/roman-kulish/impedance-sweeper/internal/ad5933"
)

const (
	clientBufferSize = 256
	writeTimeout     = 5 * time.Second
)

type streamClient struct {
	conn *websocket.Conn
	send chan ad5933.Sample
}

// writePump pumps samples from the hub to the websocket connection.
func (c *streamClient) writePump() {
	defer c.conn.Close()

	for sample := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteJSON(sample); err != nil {
			return
		}
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// Hub fans samples out to websocket clients. Publish never blocks: a client
// that falls behind loses samples.
type Hub struct {
	mu       sync.RWMutex
	clients  map[*streamClient]struct{}
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewHub creates a Hub. A nil logger discards output.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Hub{
		clients: make(map[*streamClient]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		logger: logger,
	}
}

// Publish sends sample to every connected client. It is safe to use as an
// ad5933.WithSampleHandler callback.
func (h *Hub) Publish(sample ad5933.Sample) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		select {
		case c.send <- sample:
		default:
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &streamClient{conn: conn, send: make(chan ad5933.Sample, clientBufferSize)}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	h.logger.Debug("stream client connected", slog.String("remote", r.RemoteAddr))

	go c.writePump()

	// the read loop only detects disconnects
	for {
		if _, _, err = conn.NextReader(); err != nil {
			break
		}
	}

	h.remove(c)
	h.logger.Debug("stream client disconnected", slog.String("remote", r.RemoteAddr))
}

func (h *Hub) remove(c *streamClient) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; ok {
		close(c.send)
		delete(h.clients, c)
	}
}
