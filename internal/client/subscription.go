package client

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"sync"

	"github.com/life-stream-dev/life-stream-go-contacts-broker/internal/ipc"
	"github.com/life-stream-dev/life-stream-go-contacts-broker/internal/logger"
)

// ChangeCallback receives the undecoded change payload of one publish.
// ipc.DecodeChangeSet turns it into a ChangeSet.
type ChangeCallback func(topic ipc.Topic, payload []byte, userData any)

type listener struct {
	cb       ChangeCallback
	fn       uintptr
	userData any
}

func (l listener) same(fn uintptr, userData any) bool {
	return l.fn == fn && sameUserData(l.userData, userData)
}

func sameUserData(a, b any) (equal bool) {
	defer func() {
		// uncomparable user data (slices, maps) never matches
		if recover() != nil {
			equal = false
		}
	}()
	return a == b
}

// subscriptions multiplexes every topic over one refcounted channel.
type subscriptions struct {
	reg *Registry

	refMu   sync.Mutex
	refs    int
	channel ipc.Channel

	// opMu orders subscribe/unsubscribe/replay RPCs; mu only guards topics
	// so dispatch never waits behind an RPC.
	opMu   sync.Mutex
	mu     sync.Mutex
	topics map[ipc.Topic][]listener
}

func newSubscriptions(reg *Registry) *subscriptions {
	return &subscriptions{reg: reg, topics: make(map[ipc.Topic][]listener)}
}

func (s *subscriptions) acquireChannel() (ipc.Channel, error) {
	s.refMu.Lock()
	defer s.refMu.Unlock()
	if s.refs > 0 {
		s.refs++
		return s.channel, nil
	}
	ch, err := s.open()
	if err != nil {
		return nil, err
	}
	s.channel = ch
	s.refs = 1
	logger.Debug("Subscribe channel opened")
	return ch, nil
}

func (s *subscriptions) open() (ipc.Channel, error) {
	ch, err := s.reg.openChannel(s.reg.opts.SubscribeAddress)
	if err != nil {
		return nil, err
	}
	ch.OnPublish(s.dispatch)
	return ch, nil
}

func (s *subscriptions) releaseChannel(force bool) {
	s.refMu.Lock()
	defer s.refMu.Unlock()
	if s.refs == 0 {
		return
	}
	if force {
		s.refs = 0
	} else {
		s.refs--
	}
	if s.refs > 0 {
		return
	}
	s.channel.OnDisconnect(nil)
	if err := s.channel.Close(); err != nil {
		logger.WarnF("Error occured while closing subscribe channel, details: %v", err)
	}
	s.channel = nil
	logger.Debug("Subscribe channel closed")
}

func (s *subscriptions) current() ipc.Channel {
	s.refMu.Lock()
	defer s.refMu.Unlock()
	return s.channel
}

func (s *subscriptions) refCount() int {
	s.refMu.Lock()
	defer s.refMu.Unlock()
	return s.refs
}

func (s *subscriptions) topicRPC(ch ipc.Channel, function string, topic ipc.Topic) error {
	if ch == nil {
		return fmt.Errorf("%w: subscribe channel closed", ipc.ErrTransport)
	}
	payload, err := ipc.Encode(&ipc.SubscribeRequest{Topic: topic})
	if err != nil {
		return err
	}
	resp, err := ch.Call(ipc.ModuleCore, function, payload)
	if err != nil {
		return err
	}
	return resp.Err()
}

func (s *subscriptions) dispatch(topic ipc.Topic, payload []byte) {
	s.mu.Lock()
	listeners := slices.Clone(s.topics[topic])
	s.mu.Unlock()

	if len(listeners) == 0 {
		logger.DebugF("No subscriber for %s change, dropped", topic)
		return
	}
	for _, l := range listeners {
		l.cb(topic, payload, l.userData)
	}
}

func (s *subscriptions) recover() error {
	s.refMu.Lock()
	if s.refs == 0 {
		s.refMu.Unlock()
		return nil
	}
	s.channel.OnDisconnect(nil)
	if err := s.channel.Close(); err != nil {
		logger.DebugF("Error occured while closing stale subscribe channel, details: %v", err)
	}
	ch, err := s.open()
	if err != nil {
		s.refMu.Unlock()
		return fmt.Errorf("subscribe channel: %w", err)
	}
	s.channel = ch
	s.refMu.Unlock()

	s.opMu.Lock()
	defer s.opMu.Unlock()
	s.mu.Lock()
	topics := make([]ipc.Topic, 0, len(s.topics))
	for topic := range s.topics {
		topics = append(topics, topic)
	}
	s.mu.Unlock()

	for _, topic := range topics {
		if err := s.topicRPC(ch, ipc.FuncSubscribe, topic); err != nil {
			logger.WarnF("Fail to resubscribe %s, details: %v", topic, err)
		}
	}
	logger.InfoF("Subscribe channel recovered with %d topics", len(topics))
	return nil
}

// Subscribe registers cb for changes on topic. key selects the session the
// permission check runs on. The same (cb, userData) pair may only be
// registered once per topic.
func (r *Registry) Subscribe(key Key, topic ipc.Topic, cb ChangeCallback, userData any) error {
	if cb == nil {
		return fmt.Errorf("%w: nil callback", ipc.ErrInvalidParameter)
	}
	if _, err := ipc.ParseTopic(string(topic)); err != nil {
		return err
	}

	granted, err := r.CheckPermission(key, topic.Permission())
	if err != nil {
		return err
	}
	if !granted {
		return fmt.Errorf("%w: %s requires %s", ipc.ErrPermissionDenied, topic, topic.Permission())
	}

	s := r.subs
	if _, err := s.acquireChannel(); err != nil {
		return err
	}

	fn := reflect.ValueOf(cb).Pointer()

	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	list, exists := s.topics[topic]
	duplicate := slices.ContainsFunc(list, func(l listener) bool { return l.same(fn, userData) })
	s.mu.Unlock()

	if duplicate {
		s.releaseChannel(false)
		return fmt.Errorf("%w: callback already subscribed to %s", ipc.ErrInvalidParameter, topic)
	}
	if !exists {
		if err := s.topicRPC(s.current(), ipc.FuncSubscribe, topic); err != nil {
			s.releaseChannel(false)
			logger.ErrorF("Fail to subscribe %s, details: %v", topic, err)
			return err
		}
	}

	s.mu.Lock()
	s.topics[topic] = append(s.topics[topic], listener{cb: cb, fn: fn, userData: userData})
	s.mu.Unlock()
	return nil
}

// Unsubscribe removes the (cb, userData) pair from topic. The broker is told
// once the last callback of a topic is gone.
func (r *Registry) Unsubscribe(topic ipc.Topic, cb ChangeCallback, userData any) error {
	if cb == nil {
		return fmt.Errorf("%w: nil callback", ipc.ErrInvalidParameter)
	}
	if _, err := ipc.ParseTopic(string(topic)); err != nil {
		return err
	}
	fn := reflect.ValueOf(cb).Pointer()

	s := r.subs
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	list := s.topics[topic]
	idx := slices.IndexFunc(list, func(l listener) bool { return l.same(fn, userData) })
	if idx < 0 {
		s.mu.Unlock()
		return fmt.Errorf("%w: callback not subscribed to %s", ipc.ErrInvalidParameter, topic)
	}
	list = slices.Delete(list, idx, idx+1)
	empty := len(list) == 0
	if empty {
		delete(s.topics, topic)
	} else {
		s.topics[topic] = list
	}
	s.mu.Unlock()

	var err error
	if empty {
		if err = s.topicRPC(s.current(), ipc.FuncUnsubscribe, topic); err != nil {
			logger.WarnF("Fail to unsubscribe %s, details: %v", topic, err)
		}
	}
	s.releaseChannel(false)
	if err != nil && !errors.Is(err, ipc.ErrTransport) {
		return err
	}
	return nil
}

// SubscriberCount reports how many callbacks are registered on topic.
func (r *Registry) SubscriberCount(topic ipc.Topic) int {
	r.subs.mu.Lock()
	defer r.subs.mu.Unlock()
	return len(r.subs.topics[topic])
}
