package ws

import (
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/pesocareers/support-chat/internal/auth"
	"github.com/pesocareers/support-chat/internal/realtime"
)

// Connection represents a single widget WebSocket connection: the
// authenticated requester, the underlying socket, and the realtime
// subscription for the chat session attached to this socket.
type Connection struct {
	ID        string        // connection id (UUID), not a chat session id
	Identity  auth.Identity // requester authenticated at upgrade time
	Conn      net.Conn      // underlying TCP connection
	Fd        int           // file descriptor for epoll lookups
	CreatedAt time.Time     // when the connection was established
	LastPing  time.Time     // last heartbeat received from the client

	writeMu    sync.Mutex // serializes writes to this connection
	processing int32      // atomic flag: 0 = idle, 1 = being read by handleConn

	subMu     sync.Mutex
	sub       *realtime.Subscription // nil until a chat session is attached
	sessionID string                 // chat session bound to this socket
}

// WriteMessage sends a WebSocket text frame to this connection. The write
// mutex ensures that concurrent goroutines do not interleave frame bytes.
func (c *Connection) WriteMessage(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return wsutil.WriteServerMessage(c.Conn, ws.OpText, data)
}

// WritePing sends a WebSocket protocol-level ping frame (opcode 0x9) on the
// connection. The write mutex ensures this does not interleave with other
// outbound frames.
func (c *Connection) WritePing() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return ws.WriteFrame(c.Conn, ws.NewPingFrame(nil))
}

// AttachSession binds a chat session's realtime subscription to this
// connection, releasing any previously attached one. A socket carries at
// most one live chat session at a time.
func (c *Connection) AttachSession(sessionID string, sub *realtime.Subscription) {
	c.subMu.Lock()
	prev := c.sub
	c.sub = sub
	c.sessionID = sessionID
	c.subMu.Unlock()

	if prev != nil {
		prev.Close()
	}
}

// SessionID returns the chat session currently bound to this socket, or ""
// if none is attached.
func (c *Connection) SessionID() string {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	return c.sessionID
}

// DetachSession releases the attached realtime subscription, if any. Safe
// to call repeatedly; the subscription's Close is idempotent.
func (c *Connection) DetachSession() {
	c.subMu.Lock()
	sub := c.sub
	c.sub = nil
	c.sessionID = ""
	c.subMu.Unlock()

	if sub != nil {
		sub.Close()
	}
}

// Close releases the realtime subscription and closes the underlying
// network connection.
func (c *Connection) Close() error {
	c.DetachSession()
	return c.Conn.Close()
}

// ConnectionManager is a thread-safe registry that maps connection IDs and
// file descriptors to their respective Connection objects. It supports O(1)
// lookups by both id and fd.
type ConnectionManager struct {
	mu   sync.RWMutex
	byID map[string]*Connection // connection id -> Connection
	byFd map[int]*Connection    // fd -> Connection
}

// NewConnectionManager creates an empty ConnectionManager ready for use.
func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{
		byID: make(map[string]*Connection),
		byFd: make(map[int]*Connection),
	}
}

// Add registers a new connection in both the ID and fd lookup maps.
func (cm *ConnectionManager) Add(conn *Connection) {
	cm.mu.Lock()
	cm.byID[conn.ID] = conn
	cm.byFd[conn.Fd] = conn
	cm.mu.Unlock()
}

// Remove removes a connection by id, closes the underlying network
// connection, and removes it from both lookup maps. Returns true if the
// connection was found and removed, false if it was already gone.
func (cm *ConnectionManager) Remove(id string) bool {
	cm.mu.Lock()
	conn, ok := cm.byID[id]
	if ok {
		delete(cm.byID, id)
		delete(cm.byFd, conn.Fd)
	}
	cm.mu.Unlock()

	if ok {
		conn.Close()
	}
	return ok
}

// Get returns the connection for the given id, or nil if not found.
func (cm *ConnectionManager) Get(id string) *Connection {
	cm.mu.RLock()
	conn := cm.byID[id]
	cm.mu.RUnlock()
	return conn
}

// GetByFd returns the connection for the given file descriptor, or nil if
// not found.
func (cm *ConnectionManager) GetByFd(fd int) *Connection {
	cm.mu.RLock()
	conn := cm.byFd[fd]
	cm.mu.RUnlock()
	return conn
}

// GetByConn returns the connection for the given net.Conn by extracting
// its file descriptor. Returns nil if not found.
func (cm *ConnectionManager) GetByConn(c net.Conn) *Connection {
	fd := socketFD(c)
	return cm.GetByFd(fd)
}

// Count returns the current number of active connections.
func (cm *ConnectionManager) Count() int {
	cm.mu.RLock()
	n := len(cm.byID)
	cm.mu.RUnlock()
	return n
}

// All returns a snapshot of all current connections. The returned slice is
// safe to iterate without holding the lock.
func (cm *ConnectionManager) All() []*Connection {
	cm.mu.RLock()
	conns := make([]*Connection, 0, len(cm.byID))
	for _, conn := range cm.byID {
		conns = append(conns, conn)
	}
	cm.mu.RUnlock()
	return conns
}
