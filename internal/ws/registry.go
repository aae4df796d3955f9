package ws

import (
	"context"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
)

// Conn is one live authenticated connection. Writes to the socket are
// serialized through Send so the message loop and the transcript forwarder
// never interleave frames.
type Conn struct {
	// ID identifies this connection within the registry.
	ID uuid.UUID

	// UserID is the local user resolved during the handshake.
	UserID uuid.UUID

	sock    *websocket.Conn
	writeMu sync.Mutex
}

func newConn(sock *websocket.Conn, userID uuid.UUID) *Conn {
	return &Conn{
		ID:     uuid.New(),
		UserID: userID,
		sock:   sock,
	}
}

// Send writes one JSON message to the client.
func (c *Conn) Send(ctx context.Context, msg ServerMessage) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return wsjson.Write(ctx, c.sock, msg)
}

// Registry tracks live connections. The lock guards only insert, remove, and
// snapshot; message delivery happens outside it.
type Registry struct {
	mu    sync.Mutex
	conns map[uuid.UUID]*Conn
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[uuid.UUID]*Conn)}
}

// Add registers a connection.
func (r *Registry) Add(c *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[c.ID] = c
}

// Remove deregisters a connection. Removing an unknown ID is a no-op.
func (r *Registry) Remove(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, id)
}

// Len reports the number of live connections.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// Broadcast sends msg to every live connection. Send errors are ignored; a
// dying connection cleans itself up through its own teardown path.
func (r *Registry) Broadcast(ctx context.Context, msg ServerMessage) {
	r.mu.Lock()
	snapshot := make([]*Conn, 0, len(r.conns))
	for _, c := range r.conns {
		snapshot = append(snapshot, c)
	}
	r.mu.Unlock()

	for _, c := range snapshot {
		_ = c.Send(ctx, msg)
	}
}
