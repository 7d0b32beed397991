// Package notify collects what a request changed and announces it when the
// request commits: legacy per-category signals and per-topic publishes.
package notify

import (
	"errors"
	"fmt"

	"github.com/life-stream-dev/life-stream-go-contacts-broker/internal/ipc"
	"github.com/life-stream-dev/life-stream-go-contacts-broker/internal/logger"
)

// Category is a legacy change-notification category.
type Category int

const (
	CategoryContact Category = iota
	CategoryPerson
	CategoryGroup
	CategoryGroupRelation
	CategoryEmail
	CategoryPhoneLog
	categoryCount
)

var categoryNames = [categoryCount]string{
	CategoryContact:       "CONTACT",
	CategoryPerson:        "PERSON",
	CategoryGroup:         "GROUP",
	CategoryGroupRelation: "GROUP_REL",
	CategoryEmail:         "EMAIL",
	CategoryPhoneLog:      "PLOG",
}

func (c Category) String() string {
	if c < 0 || c >= categoryCount {
		return fmt.Sprintf("CATEGORY(%d)", int(c))
	}
	return categoryNames[c]
}

// Signaler performs the legacy per-category notification.
type Signaler interface {
	Signal(category Category) error
}

// Publisher sends one change payload to the subscribers of a topic.
type Publisher interface {
	Publish(topic ipc.Topic, payload []byte) error
}

const initialBufferCap = 8

// changeBuffer doubles its capacity whenever it fills up.
type changeBuffer struct {
	entries []ipc.Change
}

func (b *changeBuffer) add(c ipc.Change) {
	if len(b.entries) == cap(b.entries) {
		newCap := cap(b.entries) * 2
		if newCap == 0 {
			newCap = initialBufferCap
		}
		grown := make([]ipc.Change, len(b.entries), newCap)
		copy(grown, b.entries)
		b.entries = grown
	}
	b.entries = append(b.entries, c)
}

func (b *changeBuffer) reset() {
	b.entries = b.entries[:0]
}

// Txn is the change state of one request. It is owned by the goroutine
// handling that request and is not safe for concurrent use.
type Txn struct {
	dirty   [categoryCount]bool
	buffers map[ipc.Topic]*changeBuffer
}

func NewTxn() *Txn {
	return &Txn{buffers: make(map[ipc.Topic]*changeBuffer)}
}

func (t *Txn) MarkDirty(category Category) {
	if category < 0 || category >= categoryCount {
		logger.WarnF("Unknown notification category %d ignored", int(category))
		return
	}
	t.dirty[category] = true
}

func (t *Txn) Dirty(category Category) bool {
	if category < 0 || category >= categoryCount {
		return false
	}
	return t.dirty[category]
}

func (t *Txn) RecordChange(topic ipc.Topic, kind ipc.ChangeKind, id int64) error {
	if !topic.Supported() {
		return fmt.Errorf("%w: topic %q", ipc.ErrNotSupported, topic)
	}
	if id <= 0 {
		return fmt.Errorf("%w: record id %d", ipc.ErrInvalidParameter, id)
	}
	buf, ok := t.buffers[topic]
	if !ok {
		buf = &changeBuffer{}
		t.buffers[topic] = buf
	}
	buf.add(ipc.Change{Kind: kind, ID: id})
	return nil
}

// Pending returns a copy of the changes recorded for topic.
func (t *Txn) Pending(topic ipc.Topic) []ipc.Change {
	buf, ok := t.buffers[topic]
	if !ok {
		return nil
	}
	return append([]ipc.Change(nil), buf.entries...)
}

// FlushDirtyFlags signals every dirty category once. Flags are cleared even
// when the signal fails, so a retried commit does not signal twice.
func (t *Txn) FlushDirtyFlags(s Signaler) error {
	var errs []error
	for i := range t.dirty {
		if !t.dirty[i] {
			continue
		}
		t.dirty[i] = false
		if s == nil {
			continue
		}
		if err := s.Signal(Category(i)); err != nil {
			logger.WarnF("Fail to signal %s change, details: %v", Category(i), err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PublishChanges sends one payload per topic with recorded changes and
// clears the buffers whether or not the publish succeeded. There is no
// redelivery; a subscriber that misses a publish catches up through the
// change version.
func (t *Txn) PublishChanges(p Publisher) error {
	var errs []error
	for _, topic := range ipc.Topics() {
		buf, ok := t.buffers[topic]
		if !ok || len(buf.entries) == 0 {
			continue
		}
		payload, err := ipc.Encode(&ipc.ChangeSet{Topic: topic, Changes: buf.entries})
		buf.reset()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if p == nil {
			continue
		}
		if err := p.Publish(topic, payload); err != nil {
			logger.WarnF("Fail to publish %s changes, details: %v", topic, err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Commit announces everything the request changed.
func (t *Txn) Commit(s Signaler, p Publisher) error {
	return errors.Join(t.FlushDirtyFlags(s), t.PublishChanges(p))
}

// Abort forgets everything the request recorded.
func (t *Txn) Abort() {
	t.dirty = [categoryCount]bool{}
	for _, buf := range t.buffers {
		buf.reset()
	}
}
