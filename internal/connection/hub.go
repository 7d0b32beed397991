package connection

import (
	"errors"
	"fmt"

	"github.com/life-stream-dev/life-stream-go-contacts-broker/internal/ipc"
	"github.com/life-stream-dev/life-stream-go-contacts-broker/internal/logger"
	"github.com/life-stream-dev/life-stream-go-contacts-broker/internal/metrics"
	"github.com/puzpuzpuz/xsync/v3"
)

// Hub maps each topic to the subscribe connections listening on it and
// fans change payloads out to them.
type Hub struct {
	topics *xsync.MapOf[ipc.Topic, *xsync.MapOf[string, *Connection]]
}

func NewHub() *Hub {
	h := &Hub{topics: xsync.NewMapOf[ipc.Topic, *xsync.MapOf[string, *Connection]]()}
	for _, topic := range ipc.Topics() {
		h.topics.Store(topic, xsync.NewMapOf[string, *Connection]())
	}
	return h
}

func (h *Hub) subscribers(topic ipc.Topic) (*xsync.MapOf[string, *Connection], error) {
	subs, ok := h.topics.Load(topic)
	if !ok {
		return nil, fmt.Errorf("%w: topic %q", ipc.ErrNotSupported, topic)
	}
	return subs, nil
}

// Subscribe adds conn to topic. Subscribing twice is not an error.
func (h *Hub) Subscribe(topic ipc.Topic, conn *Connection) error {
	subs, err := h.subscribers(topic)
	if err != nil {
		return err
	}
	if _, loaded := subs.LoadOrStore(conn.ConnID, conn); !loaded {
		logger.DebugF("[%s] Subscribed to %s", conn.ConnID, topic)
	}
	metrics.SetSubscribers(string(topic), subs.Size())
	return nil
}

func (h *Hub) Unsubscribe(topic ipc.Topic, conn *Connection) error {
	subs, err := h.subscribers(topic)
	if err != nil {
		return err
	}
	if _, ok := subs.LoadAndDelete(conn.ConnID); ok {
		logger.DebugF("[%s] Unsubscribed from %s", conn.ConnID, topic)
	}
	metrics.SetSubscribers(string(topic), subs.Size())
	return nil
}

// RemoveConnection drops conn from every topic.
func (h *Hub) RemoveConnection(conn *Connection) {
	h.topics.Range(func(topic ipc.Topic, subs *xsync.MapOf[string, *Connection]) bool {
		if _, ok := subs.LoadAndDelete(conn.ConnID); ok {
			metrics.SetSubscribers(string(topic), subs.Size())
		}
		return true
	})
}

func (h *Hub) Subscribers(topic ipc.Topic) int {
	subs, err := h.subscribers(topic)
	if err != nil {
		return 0
	}
	return subs.Size()
}

// Publish sends payload to every subscriber of topic. A failed send does not
// stop delivery to the others.
func (h *Hub) Publish(topic ipc.Topic, payload []byte) error {
	subs, err := h.subscribers(topic)
	if err != nil {
		return err
	}
	var errs []error
	subs.Range(func(id string, conn *Connection) bool {
		err := conn.Send(&ipc.Frame{Kind: ipc.KindPublish, Topic: string(topic), Payload: payload})
		metrics.RecordPublish(string(topic), err == nil)
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: publish to %s: %v", ipc.ErrTransport, id, err))
		}
		return true
	})
	return errors.Join(errs...)
}
