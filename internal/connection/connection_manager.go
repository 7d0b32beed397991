// Package connection tracks the broker's live client connections and the
// topics their subscribe channels listen on.
package connection

import (
	"errors"
	"io"
	"net"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/life-stream-dev/life-stream-go-contacts-broker/internal/ipc"
	"github.com/life-stream-dev/life-stream-go-contacts-broker/internal/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

// Connection is one accepted client socket.
type Connection struct {
	Conn   net.Conn
	ConnID string
	Socket string

	writeMu sync.Mutex

	mu          sync.RWMutex
	credentials *ipc.Credentials
	handles     map[string]struct{}
}

func NewConnection(conn net.Conn, socket string) *Connection {
	return &Connection{
		Conn:    conn,
		ConnID:  uuid.NewString(),
		Socket:  socket,
		handles: make(map[string]struct{}),
	}
}

// Send writes one frame. Responses and publishes may come from different
// goroutines, so writes are serialized.
func (c *Connection) Send(frame *ipc.Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := ipc.WriteFrame(c.Conn, frame); err != nil {
		logger.ErrorF("[%s] Fail to send %s frame, details: %v", c.ConnID, frame.Kind, err)
		return err
	}
	logger.DebugF("[%s] Send %s frame %d", c.ConnID, frame.Kind, frame.ID)
	return nil
}

// Attach records h against the credentials presented with it. Every handle
// of one connection must come from the same client.
func (c *Connection) Attach(handle string, creds ipc.Credentials) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.credentials != nil && *c.credentials != creds {
		return ipc.ErrPermissionDenied
	}
	if c.credentials == nil {
		c.credentials = &creds
	}
	c.handles[handle] = struct{}{}
	return nil
}

// Detach forgets handle and reports whether it was attached.
func (c *Connection) Detach(handle string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.handles[handle]; !ok {
		return false
	}
	delete(c.handles, handle)
	return true
}

func (c *Connection) HandleCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.handles)
}

// Credentials returns the identity presented on connect, if any.
func (c *Connection) Credentials() (ipc.Credentials, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.credentials == nil {
		return ipc.Credentials{}, false
	}
	return *c.credentials, true
}

// Manager holds every live connection keyed by connection id.
type Manager struct {
	connections *xsync.MapOf[string, *Connection]
}

func NewManager() *Manager {
	return &Manager{connections: xsync.NewMapOf[string, *Connection]()}
}

func (m *Manager) AddConnection(conn *Connection) {
	m.connections.Store(conn.ConnID, conn)
	logger.DebugF("[%s] Client connected on %s", conn.ConnID, conn.Socket)
}

func (m *Manager) RemoveConnection(connID string) {
	if _, ok := m.connections.LoadAndDelete(connID); ok {
		logger.DebugF("[%s] Client disconnected", connID)
	}
}

func (m *Manager) GetConnection(connID string) (*Connection, bool) {
	return m.connections.Load(connID)
}

func (m *Manager) Count() int {
	return m.connections.Size()
}

// CloseAll closes every live socket; their handlers then exit on read error.
func (m *Manager) CloseAll() {
	m.connections.Range(func(id string, conn *Connection) bool {
		if err := conn.Conn.Close(); err != nil && !IsNetClosedError(err) {
			logger.WarnF("[%s] Error occured while closing connection, details: %v", id, err)
		}
		return true
	})
}

func IsNetClosedError(err error) bool {
	if errors.Is(err, net.ErrClosed) {
		return true
	}
	var opErr *net.OpError
	ok := errors.As(err, &opErr)
	return ok && opErr.Timeout()
}

func HandleReadError(connID string, err error) {
	switch {
	case errors.Is(err, io.EOF):
		logger.InfoF("[%s] Client close connection", connID)
	case os.IsTimeout(err):
		logger.WarnF("[%s] Reading timeout", connID)
	case IsNetClosedError(err):
		logger.DebugF("[%s] Connection closed locally", connID)
	default:
		logger.ErrorF("[%s] Error occured while reading frame, details: %v", connID, err)
	}
}
