package client

import (
	"testing"

	"github.com/life-stream-dev/life-stream-go-contacts-broker/internal/ipc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type delivery struct {
	name     string
	payload  string
	userData any
}

func connectedRegistry(t *testing.T, b *fakeBroker) *Registry {
	t.Helper()
	r := newTestRegistry(b)
	require.NoError(t, r.Connect(ProcessKey, NewHandle(ProcessKey)))
	return r
}

func countEvents(events []string, want string) int {
	n := 0
	for _, e := range events {
		if e == want {
			n++
		}
	}
	return n
}

func TestPublishFansOutInSubscribeOrder(t *testing.T) {
	b := newFakeBroker()
	r := connectedRegistry(t, b)

	var got []delivery
	cbA := func(_ ipc.Topic, payload []byte, userData any) {
		got = append(got, delivery{"A", string(payload), userData})
	}
	cbB := func(_ ipc.Topic, payload []byte, userData any) {
		got = append(got, delivery{"B", string(payload), userData})
	}
	require.NoError(t, r.Subscribe(ProcessKey, ipc.TopicPerson, cbA, "a"))
	require.NoError(t, r.Subscribe(ProcessKey, ipc.TopicPerson, cbB, "b"))

	b.last(subAddr).publish(ipc.TopicPerson, []byte("changes"))

	assert.Equal(t, []delivery{{"A", "changes", "a"}, {"B", "changes", "b"}}, got)
	assert.Equal(t, 1, b.Opened(subAddr))
	assert.Equal(t, 1, countEvents(b.Events(), "call:ipc/subscribe"))
	assert.Equal(t, 2, r.subs.refCount())
}

func TestDuplicateSubscribeRejected(t *testing.T) {
	b := newFakeBroker()
	r := connectedRegistry(t, b)

	calls := 0
	cb := func(ipc.Topic, []byte, any) { calls++ }
	require.NoError(t, r.Subscribe(ProcessKey, ipc.TopicCallLog, cb, 7))

	err := r.Subscribe(ProcessKey, ipc.TopicCallLog, cb, 7)
	assert.ErrorIs(t, err, ipc.ErrInvalidParameter)
	assert.Equal(t, 1, r.SubscriberCount(ipc.TopicCallLog))
	assert.Equal(t, 1, r.subs.refCount())

	b.last(subAddr).publish(ipc.TopicCallLog, []byte("x"))
	assert.Equal(t, 1, calls)

	// same callback with other user data is a distinct subscription
	require.NoError(t, r.Subscribe(ProcessKey, ipc.TopicCallLog, cb, 8))
	b.last(subAddr).publish(ipc.TopicCallLog, []byte("x"))
	assert.Equal(t, 3, calls)
}

func TestSubscribeValidation(t *testing.T) {
	b := newFakeBroker()
	r := connectedRegistry(t, b)
	cb := func(ipc.Topic, []byte, any) {}

	assert.ErrorIs(t, r.Subscribe(ProcessKey, "group", cb, nil), ipc.ErrNotSupported)
	assert.ErrorIs(t, r.Subscribe(ProcessKey, "", cb, nil), ipc.ErrInvalidParameter)
	assert.ErrorIs(t, r.Subscribe(ProcessKey, ipc.TopicPerson, nil, nil), ipc.ErrInvalidParameter)

	b.granted = false
	assert.ErrorIs(t, r.Subscribe(ProcessKey, ipc.TopicPerson, cb, nil), ipc.ErrPermissionDenied)
	assert.Equal(t, 0, b.Opened(subAddr))
}

func TestSubscribeRequiresSession(t *testing.T) {
	r := newTestRegistry(newFakeBroker())
	err := r.Subscribe(ProcessKey, ipc.TopicPerson, func(ipc.Topic, []byte, any) {}, nil)
	assert.ErrorIs(t, err, ipc.ErrNotConnected)
}

func TestUnsubscribeReleasesChannel(t *testing.T) {
	b := newFakeBroker()
	r := connectedRegistry(t, b)

	cbA := func(ipc.Topic, []byte, any) {}
	cbB := func(ipc.Topic, []byte, any) {}
	require.NoError(t, r.Subscribe(ProcessKey, ipc.TopicPerson, cbA, nil))
	require.NoError(t, r.Subscribe(ProcessKey, ipc.TopicPerson, cbB, nil))

	require.NoError(t, r.Unsubscribe(ipc.TopicPerson, cbA, nil))
	assert.Equal(t, 0, countEvents(b.Events(), "call:ipc/unsubscribe"))
	assert.Equal(t, 1, r.subs.refCount())

	assert.ErrorIs(t, r.Unsubscribe(ipc.TopicPerson, cbA, nil), ipc.ErrInvalidParameter)

	require.NoError(t, r.Unsubscribe(ipc.TopicPerson, cbB, nil))
	assert.Equal(t, 1, countEvents(b.Events(), "call:ipc/unsubscribe"))
	assert.Equal(t, 0, r.subs.refCount())
	assert.Nil(t, r.subs.current())
	assert.Equal(t, 0, r.SubscriberCount(ipc.TopicPerson))
}

func TestRecoveryReplaysSubscriptions(t *testing.T) {
	b := newFakeBroker()
	r := connectedRegistry(t, b)

	var got []string
	cb := func(topic ipc.Topic, payload []byte, _ any) {
		got = append(got, string(topic)+":"+string(payload))
	}
	require.NoError(t, r.Subscribe(ProcessKey, ipc.TopicPerson, cb, nil))
	require.NoError(t, r.Subscribe(ProcessKey, ipc.TopicCallLog, cb, nil))

	b.last(subAddr).drop()
	require.True(t, r.Disconnected())

	_, err := r.Call(ProcessKey, "db", "get_current_version", nil)
	require.NoError(t, err)

	assert.Equal(t, 2, b.Opened(subAddr))
	assert.Equal(t, 4, countEvents(b.Events(), "call:ipc/subscribe"))
	assert.Equal(t, 2, r.subs.refCount())

	b.last(subAddr).publish(ipc.TopicCallLog, []byte("1"))
	assert.Equal(t, []string{"call-log:1"}, got)
}

func TestCallbackMayUnsubscribeItself(t *testing.T) {
	b := newFakeBroker()
	r := connectedRegistry(t, b)

	calls := 0
	var cb ChangeCallback
	cb = func(topic ipc.Topic, _ []byte, userData any) {
		calls++
		assert.NoError(t, r.Unsubscribe(topic, cb, userData))
	}
	require.NoError(t, r.Subscribe(ProcessKey, ipc.TopicPerson, cb, nil))

	ch := b.last(subAddr)
	ch.publish(ipc.TopicPerson, []byte("a"))
	ch.publish(ipc.TopicPerson, []byte("b"))
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, r.subs.refCount())
}
