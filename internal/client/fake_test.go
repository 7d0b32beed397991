package client

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/life-stream-dev/life-stream-go-contacts-broker/internal/ipc"
)

const (
	rpcAddr = "rpc"
	subAddr = "subscribe"
)

// fakeBroker is an in-memory Transport that answers the core module and any
// feature call with a fresh version.
type fakeBroker struct {
	mu       sync.Mutex
	events   []string
	opened   map[string]int
	channels []*fakeChannel
	version  int64
	granted  bool
	openErr  error
	override func(module, function string) *ipc.Response
	delay    time.Duration

	inflight    atomic.Int32
	maxInflight atomic.Int32
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{opened: make(map[string]int), granted: true}
}

func (b *fakeBroker) record(event string) {
	b.mu.Lock()
	b.events = append(b.events, event)
	b.mu.Unlock()
}

func (b *fakeBroker) Events() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.events...)
}

func (b *fakeBroker) Opened(address string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.opened[address]
}

func (b *fakeBroker) last(address string) *fakeChannel {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := len(b.channels) - 1; i >= 0; i-- {
		if b.channels[i].address == address {
			return b.channels[i]
		}
	}
	return nil
}

func (b *fakeBroker) Open(address string) (ipc.Channel, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.openErr != nil {
		return nil, b.openErr
	}
	b.opened[address]++
	b.events = append(b.events, "open:"+address)
	ch := &fakeChannel{broker: b, address: address}
	b.channels = append(b.channels, ch)
	return ch, nil
}

func (b *fakeBroker) answer(module, function string) *ipc.Response {
	b.mu.Lock()
	override := b.override
	b.mu.Unlock()
	if override != nil {
		if resp := override(module, function); resp != nil {
			return resp
		}
	}
	if module == ipc.ModuleCore {
		if function == ipc.FuncCheckPermission {
			b.mu.Lock()
			granted := b.granted
			b.mu.Unlock()
			payload, _ := ipc.Encode(&ipc.PermissionResponse{Granted: granted})
			return &ipc.Response{Result: ipc.ResultOK, Payload: payload}
		}
		return &ipc.Response{Result: ipc.ResultOK}
	}
	b.mu.Lock()
	b.version++
	v := b.version
	b.mu.Unlock()
	return &ipc.Response{Result: ipc.ResultOK, Version: &v}
}

type fakeChannel struct {
	broker  *fakeBroker
	address string

	mu     sync.Mutex
	onDisc func()
	onPub  func(ipc.Topic, []byte)
	closed bool
	broken bool
}

func (c *fakeChannel) Call(module, function string, _ []byte) (*ipc.Response, error) {
	c.mu.Lock()
	dead := c.closed || c.broken
	c.mu.Unlock()
	if dead {
		return nil, fmt.Errorf("%w: %s is down", ipc.ErrTransport, c.address)
	}

	n := c.broker.inflight.Add(1)
	for {
		m := c.broker.maxInflight.Load()
		if n <= m || c.broker.maxInflight.CompareAndSwap(m, n) {
			break
		}
	}
	if c.broker.delay > 0 {
		time.Sleep(c.broker.delay)
	}
	c.broker.inflight.Add(-1)

	c.broker.record("call:" + module + "/" + function)
	return c.broker.answer(module, function), nil
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.broker.record("close:" + c.address)
	return nil
}

func (c *fakeChannel) OnDisconnect(cb func()) {
	c.mu.Lock()
	c.onDisc = cb
	c.mu.Unlock()
	if cb == nil {
		c.broker.record("unregister:" + c.address)
	}
}

func (c *fakeChannel) OnPublish(cb func(ipc.Topic, []byte)) {
	c.mu.Lock()
	c.onPub = cb
	c.mu.Unlock()
}

// drop simulates the broker going away.
func (c *fakeChannel) drop() {
	c.mu.Lock()
	c.broken = true
	cb := c.onDisc
	c.mu.Unlock()
	if cb != nil {
		cb()
	}
}

func (c *fakeChannel) publish(topic ipc.Topic, payload []byte) {
	c.mu.Lock()
	cb := c.onPub
	c.mu.Unlock()
	if cb != nil {
		cb(topic, payload)
	}
}

func newTestRegistry(b *fakeBroker) *Registry {
	return NewRegistry(b, Options{
		Address:          rpcAddr,
		SubscribeAddress: subAddr,
		Credentials:      ipc.Credentials{Name: "test", PID: 1, UID: 1},
	})
}
