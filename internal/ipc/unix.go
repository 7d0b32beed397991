package ipc

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/life-stream-dev/life-stream-go-contacts-broker/internal/logger"
)

const publishQueueSize = 256

// UnixTransport dials the broker's unix domain sockets.
type UnixTransport struct {
	DialTimeout time.Duration
}

func NewUnixTransport(dialTimeout time.Duration) *UnixTransport {
	return &UnixTransport{DialTimeout: dialTimeout}
}

func (t *UnixTransport) Open(address string) (Channel, error) {
	d := net.Dialer{Timeout: t.DialTimeout}
	conn, err := d.Dial("unix", address)
	if err != nil {
		return nil, fmt.Errorf("%w: unable to open %s: %v", ErrTransport, address, err)
	}
	logger.DebugF("[%s] Channel opened", address)
	return NewChannel(conn, address), nil
}

type connChannel struct {
	conn    net.Conn
	name    string
	writeMu sync.Mutex

	mu           sync.Mutex
	nextID       uint64
	pending      map[uint64]chan *Frame
	broken       error
	onDisconnect func()
	onPublish    func(Topic, []byte)

	closed    atomic.Bool
	publishes chan *Frame
}

// NewChannel wraps an established connection. It starts a reader goroutine
// that routes responses to their callers and a dispatcher goroutine that hands
// publish frames to the publish callback in order.
func NewChannel(conn net.Conn, name string) Channel {
	c := &connChannel{
		conn:      conn,
		name:      name,
		pending:   make(map[uint64]chan *Frame),
		publishes: make(chan *Frame, publishQueueSize),
	}
	go c.readLoop()
	go c.dispatchLoop()
	return c
}

func (c *connChannel) Call(module, function string, payload []byte) (*Response, error) {
	c.mu.Lock()
	if c.broken != nil {
		err := c.broken
		c.mu.Unlock()
		return nil, err
	}
	c.nextID++
	id := c.nextID
	wait := make(chan *Frame, 1)
	c.pending[id] = wait
	c.mu.Unlock()

	c.writeMu.Lock()
	err := WriteFrame(c.conn, &Frame{
		Kind:     KindRequest,
		ID:       id,
		Module:   module,
		Function: function,
		Payload:  payload,
	})
	c.writeMu.Unlock()
	if err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %s/%s: %v", ErrTransport, module, function, err)
	}

	frame, ok := <-wait
	if !ok {
		c.mu.Lock()
		err := c.broken
		c.mu.Unlock()
		return nil, err
	}
	return &Response{Result: frame.Result, Payload: frame.Payload, Version: frame.Version}, nil
}

func (c *connChannel) OnDisconnect(cb func()) {
	c.mu.Lock()
	c.onDisconnect = cb
	c.mu.Unlock()
}

func (c *connChannel) OnPublish(cb func(Topic, []byte)) {
	c.mu.Lock()
	c.onPublish = cb
	c.mu.Unlock()
}

// Close does not wait for the goroutines, so it is safe to call from inside a
// publish callback.
func (c *connChannel) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := c.conn.Close()
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("%w: closing %s: %v", ErrTransport, c.name, err)
	}
	logger.DebugF("[%s] Channel closed", c.name)
	return nil
}

func (c *connChannel) readLoop() {
	defer close(c.publishes)
	for {
		frame, err := ReadFrame(c.conn)
		if err != nil {
			c.fail(err)
			return
		}
		switch frame.Kind {
		case KindResponse:
			c.mu.Lock()
			wait := c.pending[frame.ID]
			delete(c.pending, frame.ID)
			c.mu.Unlock()
			if wait == nil {
				logger.WarnF("[%s] Response for unknown request %d dropped", c.name, frame.ID)
				continue
			}
			wait <- frame
		case KindPublish:
			c.publishes <- frame
		default:
			logger.WarnF("[%s] Unexpected %s frame dropped", c.name, frame.Kind)
		}
	}
}

func (c *connChannel) dispatchLoop() {
	for frame := range c.publishes {
		if c.closed.Load() {
			continue
		}
		c.mu.Lock()
		cb := c.onPublish
		c.mu.Unlock()
		if cb != nil {
			cb(Topic(frame.Topic), frame.Payload)
		}
	}
}

func (c *connChannel) fail(cause error) {
	c.mu.Lock()
	if c.broken == nil {
		c.broken = fmt.Errorf("%w: %s: %v", ErrTransport, c.name, cause)
	}
	for id, wait := range c.pending {
		close(wait)
		delete(c.pending, id)
	}
	cb := c.onDisconnect
	c.mu.Unlock()

	if c.closed.Load() {
		return
	}
	logger.WarnF("[%s] Peer disconnected, details: %v", c.name, cause)
	if cb != nil {
		cb()
	}
}
