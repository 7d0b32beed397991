// Package client is the client side of the contacts broker: shared sessions,
// the RPC gateway every feature module goes through, recovery after the
// broker drops, change versions and change subscriptions.
package client

import (
	"fmt"
	"os"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/life-stream-dev/life-stream-go-contacts-broker/internal/ipc"
	"github.com/life-stream-dev/life-stream-go-contacts-broker/internal/logger"
)

// Key identifies the caller a Session belongs to. Callers that want an
// isolated connection use their own key (one per goroutine or worker);
// everything else shares ProcessKey.
type Key string

const ProcessKey Key = "process"

// Handle is the client-visible token of one connect/disconnect pair.
type Handle struct {
	id       string
	key      Key
	version  atomic.Int64
	attached atomic.Bool
}

func NewHandle(key Key) *Handle {
	return &Handle{id: uuid.NewString(), key: key}
}

func (h *Handle) ID() string { return h.id }

func (h *Handle) Key() Key { return h.key }

// Session is the transport shared by every handle connected under one key.
type Session struct {
	key Key
	// callMu keeps one request in flight on a shared session.
	callMu sync.Mutex

	mu      sync.RWMutex
	channel ipc.Channel
	handles []*Handle
}

func (s *Session) Key() Key { return s.key }

func (s *Session) conn() ipc.Channel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.channel
}

// Handles returns a copy of the attachment list.
func (s *Session) Handles() []*Handle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.handles)
}

func (s *Session) call(module, function string, payload []byte, serialize bool) (*ipc.Response, error) {
	if serialize {
		s.callMu.Lock()
		defer s.callMu.Unlock()
	}
	resp, err := s.conn().Call(module, function, payload)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (s *Session) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	// unregister first so tearing the channel down is not seen as a broker drop
	s.channel.OnDisconnect(nil)
	err := s.channel.Close()
	for _, h := range s.handles {
		h.attached.Store(false)
	}
	s.handles = nil
	return err
}

type Options struct {
	Address          string
	SubscribeAddress string
	Credentials      ipc.Credentials
}

// Registry owns every Session of one client process, the disconnect state and
// the change subscriptions. Independent registries do not share state.
type Registry struct {
	transport ipc.Transport
	opts      Options

	mu       sync.Mutex
	sessions map[Key]*Session

	discMu       sync.Mutex
	disconnected bool

	subs *subscriptions
}

func NewRegistry(transport ipc.Transport, opts Options) *Registry {
	if opts.Credentials.PID == 0 {
		opts.Credentials.PID = os.Getpid()
		opts.Credentials.UID = os.Getuid()
	}
	r := &Registry{
		transport: transport,
		opts:      opts,
		sessions:  make(map[Key]*Session),
	}
	r.subs = newSubscriptions(r)
	return r
}

func (r *Registry) markDisconnected() {
	r.discMu.Lock()
	r.disconnected = true
	r.discMu.Unlock()
	logger.Warn("Broker connection lost, recovery scheduled for the next call")
}

// Disconnected reports whether a broker drop is waiting to be recovered.
func (r *Registry) Disconnected() bool {
	r.discMu.Lock()
	defer r.discMu.Unlock()
	return r.disconnected
}

func (r *Registry) takeDisconnected() bool {
	r.discMu.Lock()
	defer r.discMu.Unlock()
	was := r.disconnected
	r.disconnected = false
	return was
}

func (r *Registry) openChannel(address string) (ipc.Channel, error) {
	ch, err := r.transport.Open(address)
	if err != nil {
		return nil, err
	}
	ch.OnDisconnect(r.markDisconnected)
	return ch, nil
}

// Session returns the Session registered for key, if any.
func (r *Registry) Session(key Key) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[key]
	return s, ok
}

func (r *Registry) SessionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Connect attaches h to the Session for key, creating the Session and its
// channel on first use. A failed credential exchange leaves a newly created
// Session registered.
func (r *Registry) Connect(key Key, h *Handle) error {
	if h == nil {
		return fmt.Errorf("%w: nil handle", ipc.ErrInvalidParameter)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[key]
	if !ok {
		ch, err := r.openChannel(r.opts.Address)
		if err != nil {
			logger.ErrorF("[%s] Fail to open session channel, details: %v", key, err)
			return err
		}
		s = &Session{key: key, channel: ch}
		r.sessions[key] = s
		logger.DebugF("[%s] Session created", key)
	}

	if err := r.connectHandle(s, h); err != nil {
		logger.ErrorF("[%s] Fail to connect handle %s, details: %v", key, h.id, err)
		return err
	}

	s.mu.Lock()
	s.handles = append(s.handles, h)
	s.mu.Unlock()
	h.attached.Store(true)
	return nil
}

func (r *Registry) connectHandle(s *Session, h *Handle) error {
	payload, err := ipc.Encode(&ipc.ConnectRequest{Handle: h.id, Credentials: r.opts.Credentials})
	if err != nil {
		return err
	}
	resp, err := s.call(ipc.ModuleCore, ipc.FuncConnect, payload, true)
	if err != nil {
		return err
	}
	return resp.Err()
}

// Disconnect detaches h. remaining is the caller's count of attachments
// before this call; the Session is torn down when it is 1.
func (r *Registry) Disconnect(key Key, h *Handle, remaining int) error {
	if h == nil {
		return fmt.Errorf("%w: nil handle", ipc.ErrInvalidParameter)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[key]
	if !ok {
		return fmt.Errorf("%w: no session for %s", ipc.ErrNotConnected, key)
	}

	payload, err := ipc.Encode(&ipc.DisconnectRequest{Handle: h.id})
	if err != nil {
		return err
	}
	resp, err := s.call(ipc.ModuleCore, ipc.FuncDisconnect, payload, true)
	if err != nil {
		logger.ErrorF("[%s] Fail to disconnect handle %s, details: %v", key, h.id, err)
		return err
	}
	if err := resp.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.handles = slices.DeleteFunc(s.handles, func(other *Handle) bool { return other == h })
	s.mu.Unlock()
	h.attached.Store(false)

	if remaining == 1 {
		if err := s.close(); err != nil {
			logger.WarnF("[%s] Error occured while closing session, details: %v", key, err)
		}
		delete(r.sessions, key)
		logger.DebugF("[%s] Session closed", key)
	}
	return nil
}

// Close disconnects h, tearing its Session down when h is the last handle
// attached to it.
func (r *Registry) Close(h *Handle) error {
	if h == nil {
		return fmt.Errorf("%w: nil handle", ipc.ErrInvalidParameter)
	}
	s, ok := r.Session(h.key)
	if !ok {
		return fmt.Errorf("%w: no session for %s", ipc.ErrNotConnected, h.key)
	}
	return r.Disconnect(h.key, h, len(s.Handles()))
}

// Shutdown drops every Session and the subscribe channel without telling the
// broker. Registered subscriptions are forgotten.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	for key, s := range r.sessions {
		if err := s.close(); err != nil {
			logger.WarnF("[%s] Error occured while closing session, details: %v", key, err)
		}
		delete(r.sessions, key)
	}
	r.mu.Unlock()

	r.subs.opMu.Lock()
	defer r.subs.opMu.Unlock()
	r.subs.mu.Lock()
	clear(r.subs.topics)
	r.subs.mu.Unlock()
	r.subs.releaseChannel(true)
}
