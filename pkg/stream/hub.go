// Package stream broadcasts tessellated meshes to websocket clients so a
// browser can watch a pipeline run as it progresses.
package stream

import (
	"net/http"
	"sync"
	"time"

	"github.com/chazu/facet/pkg/kernel"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Frame is one mesh snapshot as sent over the wire.
type Frame struct {
	Type     string    `json:"type"`
	RunID    string    `json:"runId"`
	Name     string    `json:"name"`
	Seq      uint64    `json:"seq"`
	Time     time.Time `json:"time"`
	Vertices []float32 `json:"vertices"`
	Normals  []float32 `json:"normals"`
	Indices  []uint32  `json:"indices"`
}

// NewFrame wraps a render buffer. Seq is assigned by Hub.Publish.
func NewFrame(runID, name string, m *kernel.Mesh) Frame {
	return Frame{
		Type:     "mesh",
		RunID:    runID,
		Name:     name,
		Time:     time.Now().UTC(),
		Vertices: m.Vertices,
		Normals:  m.Normals,
		Indices:  m.Indices,
	}
}

// DefaultWriteTimeout bounds a single frame write to one client.
const DefaultWriteTimeout = 10 * time.Second

// Option configures a Hub.
type Option func(*Hub)

// WithLogger routes connection events to l. A nil logger is ignored.
func WithLogger(l *zap.Logger) Option {
	return func(h *Hub) {
		if l != nil {
			h.log = l
		}
	}
}

// WithWriteTimeout sets how long a frame write may block on a slow client
// before that client is dropped. Non-positive values are ignored.
func WithWriteTimeout(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.writeTimeout = d
		}
	}
}

// WithOriginCheck replaces the default same-origin policy.
func WithOriginCheck(fn func(*http.Request) bool) Option {
	return func(h *Hub) { h.upgrader.CheckOrigin = fn }
}

// Hub tracks connected clients and the latest published frame. Writes to
// a connection are serialized by its own mutex.
type Hub struct {
	upgrader     websocket.Upgrader
	log          *zap.Logger
	writeTimeout time.Duration

	mu      sync.RWMutex
	clients map[*websocket.Conn]*sync.Mutex
	latest  *Frame
	seq     uint64
}

// NewHub returns a Hub with no clients.
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		log:          zap.NewNop(),
		writeTimeout: DefaultWriteTimeout,
		clients:      make(map[*websocket.Conn]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ServeHTTP upgrades the request, sends the latest frame if there is one,
// and then reads until the client goes away. Incoming messages are ignored.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.String("remote", r.RemoteAddr), zap.Error(err))
		return
	}
	defer conn.Close()

	connMu := &sync.Mutex{}
	h.mu.Lock()
	h.clients[conn] = connMu
	latest := h.latest
	h.mu.Unlock()
	h.log.Info("client connected", zap.String("remote", r.RemoteAddr))
	defer h.drop(conn)

	if latest != nil {
		if err := h.write(conn, connMu, latest); err != nil {
			h.log.Warn("initial frame write failed", zap.Error(err))
			return
		}
	}

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.log.Debug("client gone", zap.String("remote", r.RemoteAddr), zap.Error(err))
			return
		}
	}
}

// write sends v to conn under its mutex, giving up after the write timeout.
func (h *Hub) write(conn *websocket.Conn, connMu *sync.Mutex, v any) error {
	connMu.Lock()
	defer connMu.Unlock()
	if err := conn.SetWriteDeadline(time.Now().Add(h.writeTimeout)); err != nil {
		return err
	}
	return conn.WriteJSON(v)
}

func (h *Hub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, conn)
	h.mu.Unlock()
}

// Publish stamps f with the next sequence number, stores it as the latest
// frame and sends it to every client. Writes happen outside the hub lock,
// so a slow client delays only this call, and only up to the write timeout.
// Clients whose write fails are closed and dropped. It returns the number
// of clients that received the frame.
func (h *Hub) Publish(f Frame) int {
	type client struct {
		conn *websocket.Conn
		mu   *sync.Mutex
	}
	h.mu.Lock()
	h.seq++
	f.Seq = h.seq
	h.latest = &f
	clients := make([]client, 0, len(h.clients))
	for conn, connMu := range h.clients {
		clients = append(clients, client{conn, connMu})
	}
	h.mu.Unlock()

	var failed []*websocket.Conn
	sent := 0
	for _, c := range clients {
		conn := c.conn
		if err := h.write(conn, c.mu, &f); err != nil {
			h.log.Warn("frame write failed", zap.String("remote", conn.RemoteAddr().String()), zap.Error(err))
			conn.Close()
			failed = append(failed, conn)
			continue
		}
		sent++
	}

	for _, conn := range failed {
		h.drop(conn)
	}
	h.log.Debug("published frame",
		zap.String("run", f.RunID),
		zap.String("name", f.Name),
		zap.Uint64("seq", f.Seq),
		zap.Int("clients", sent))
	return sent
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Latest returns the most recently published frame.
func (h *Hub) Latest() (Frame, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.latest == nil {
		return Frame{}, false
	}
	return *h.latest, true
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		conn.Close()
		delete(h.clients, conn)
	}
}
