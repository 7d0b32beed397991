package client

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/life-stream-dev/life-stream-go-contacts-broker/internal/ipc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionSharedPerKey(t *testing.T) {
	b := newFakeBroker()
	r := newTestRegistry(b)

	h1, h2, h3 := NewHandle("t1"), NewHandle("t1"), NewHandle("t2")
	require.NoError(t, r.Connect("t1", h1))
	require.NoError(t, r.Connect("t1", h2))
	require.NoError(t, r.Connect("t2", h3))

	s1, ok := r.Session("t1")
	require.True(t, ok)
	s2, ok := r.Session("t2")
	require.True(t, ok)

	assert.NotSame(t, s1, s2)
	assert.Equal(t, []*Handle{h1, h2}, s1.Handles())
	assert.Equal(t, []*Handle{h3}, s2.Handles())
	assert.Equal(t, 2, b.Opened(rpcAddr))
	assert.Equal(t, 2, r.SessionCount())
}

func TestSessionRemovedWithLastHandle(t *testing.T) {
	b := newFakeBroker()
	r := newTestRegistry(b)

	handles := []*Handle{NewHandle(ProcessKey), NewHandle(ProcessKey), NewHandle(ProcessKey)}
	for _, h := range handles {
		require.NoError(t, r.Connect(ProcessKey, h))
	}

	require.NoError(t, r.Disconnect(ProcessKey, handles[0], 3))
	require.NoError(t, r.Disconnect(ProcessKey, handles[1], 2))
	_, ok := r.Session(ProcessKey)
	assert.True(t, ok, "session must survive until the last handle leaves")

	require.NoError(t, r.Disconnect(ProcessKey, handles[2], 1))
	_, ok = r.Session(ProcessKey)
	assert.False(t, ok)
	assert.Equal(t, 1, b.Opened(rpcAddr))

	events := b.Events()
	require.GreaterOrEqual(t, len(events), 2)
	assert.Equal(t, []string{"unregister:" + rpcAddr, "close:" + rpcAddr}, events[len(events)-2:])
	assert.Equal(t, InvalidVersion, r.GetVersion(handles[2]))
}

func TestCloseComputesRemaining(t *testing.T) {
	r := newTestRegistry(newFakeBroker())
	h1, h2 := NewHandle("worker"), NewHandle("worker")
	require.NoError(t, r.Connect("worker", h1))
	require.NoError(t, r.Connect("worker", h2))

	require.NoError(t, r.Close(h1))
	assert.Equal(t, 1, r.SessionCount())
	require.NoError(t, r.Close(h2))
	assert.Equal(t, 0, r.SessionCount())

	assert.ErrorIs(t, r.Close(h2), ipc.ErrNotConnected)
}

func TestDisconnectWithoutSession(t *testing.T) {
	r := newTestRegistry(newFakeBroker())
	err := r.Disconnect("nobody", NewHandle("nobody"), 1)
	assert.ErrorIs(t, err, ipc.ErrNotConnected)
}

func TestConnectOpenFailure(t *testing.T) {
	b := newFakeBroker()
	b.openErr = errors.New("permission denied on socket")
	r := newTestRegistry(b)

	err := r.Connect(ProcessKey, NewHandle(ProcessKey))
	assert.Error(t, err)
	assert.Equal(t, 0, r.SessionCount())
}

func TestConnectCredentialFailureKeepsSession(t *testing.T) {
	b := newFakeBroker()
	b.override = func(module, function string) *ipc.Response {
		if function == ipc.FuncConnect {
			return &ipc.Response{Result: ipc.ResultPermissionDenied}
		}
		return nil
	}
	r := newTestRegistry(b)
	h := NewHandle(ProcessKey)

	err := r.Connect(ProcessKey, h)
	assert.ErrorIs(t, err, ipc.ErrPermissionDenied)
	s, ok := r.Session(ProcessKey)
	require.True(t, ok)
	assert.Empty(t, s.Handles())
	assert.Equal(t, InvalidVersion, r.GetVersion(h))
}

func TestCallWithoutSession(t *testing.T) {
	r := newTestRegistry(newFakeBroker())
	_, err := r.Call("t1", "group", "group_add_contact", nil)
	assert.ErrorIs(t, err, ipc.ErrNotConnected)
}

func TestCallFallsBackToProcessSession(t *testing.T) {
	b := newFakeBroker()
	r := newTestRegistry(b)
	require.NoError(t, r.Connect(ProcessKey, NewHandle(ProcessKey)))

	resp, err := r.Call("some-worker", "person", "insert", nil)
	require.NoError(t, err)
	require.NotNil(t, resp.Version)
	assert.Equal(t, int64(1), *resp.Version)
}

func TestCallReturnsResultError(t *testing.T) {
	b := newFakeBroker()
	b.override = func(module, function string) *ipc.Response {
		if module == "person" {
			return &ipc.Response{Result: ipc.ResultNoData}
		}
		return nil
	}
	r := newTestRegistry(b)
	require.NoError(t, r.Connect(ProcessKey, NewHandle(ProcessKey)))

	resp, err := r.Call(ProcessKey, "person", "get", nil)
	assert.ErrorIs(t, err, ipc.ErrNoData)
	require.NotNil(t, resp)
	assert.Equal(t, ipc.ResultNoData, resp.Result)
}

func TestSharedSessionSerializesCalls(t *testing.T) {
	b := newFakeBroker()
	b.delay = 2 * time.Millisecond
	r := newTestRegistry(b)
	require.NoError(t, r.Connect(ProcessKey, NewHandle(ProcessKey)))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Call(ProcessKey, "person", "update", nil)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), b.maxInflight.Load())
}

func TestDisconnectTriggersRecoveryBeforeCall(t *testing.T) {
	b := newFakeBroker()
	b.version = 4
	r := newTestRegistry(b)
	h1 := NewHandle("t1")
	require.NoError(t, r.Connect("t1", h1))

	require.NoError(t, r.CallMutating(h1, "group", "group_add_contact", nil, nil))
	assert.Equal(t, int64(5), r.GetVersion(h1))

	b.last(rpcAddr).drop()
	assert.True(t, r.Disconnected())

	before := len(b.Events())
	require.NoError(t, r.CallMutating(h1, "group", "group_remove_contact", nil, nil))
	assert.False(t, r.Disconnected())

	assert.Equal(t, []string{
		"unregister:" + rpcAddr,
		"close:" + rpcAddr,
		"open:" + rpcAddr,
		"call:ipc/connect",
		"call:group/group_remove_contact",
	}, b.Events()[before:])
	assert.Equal(t, 2, b.Opened(rpcAddr))
	assert.Equal(t, int64(6), r.GetVersion(h1))
}

func TestRecoveryRebuildsEverySessionOnce(t *testing.T) {
	b := newFakeBroker()
	r := newTestRegistry(b)
	for _, key := range []Key{"t1", "t2", ProcessKey} {
		require.NoError(t, r.Connect(key, NewHandle(key)))
		require.NoError(t, r.Connect(key, NewHandle(key)))
	}
	b.last(rpcAddr).drop()

	_, err := r.Call("t1", "db", "get_current_version", nil)
	require.NoError(t, err)

	assert.Equal(t, 6, b.Opened(rpcAddr))
	connects := 0
	for _, e := range b.Events() {
		if e == "call:ipc/connect" {
			connects++
		}
	}
	assert.Equal(t, 12, connects, "six initial connects plus six replays")
}

func TestRecoveryFailureIsRetriedOnNextCall(t *testing.T) {
	b := newFakeBroker()
	r := newTestRegistry(b)
	require.NoError(t, r.Connect(ProcessKey, NewHandle(ProcessKey)))
	b.last(rpcAddr).drop()

	b.mu.Lock()
	b.openErr = errors.New("broker not up yet")
	b.mu.Unlock()

	_, err := r.Call(ProcessKey, "person", "get", nil)
	assert.ErrorIs(t, err, ipc.ErrTransport)
	assert.True(t, r.Disconnected())

	b.mu.Lock()
	b.openErr = nil
	b.mu.Unlock()

	_, err = r.Call(ProcessKey, "person", "get", nil)
	assert.NoError(t, err)
	assert.False(t, r.Disconnected())
}

func TestVersionNeverDecreases(t *testing.T) {
	r := newTestRegistry(newFakeBroker())
	h := NewHandle(ProcessKey)
	require.NoError(t, r.Connect(ProcessKey, h))

	assert.Equal(t, int64(0), r.GetVersion(h))
	r.SetVersion(h, 5)
	r.SetVersion(h, 3)
	assert.Equal(t, int64(5), r.GetVersion(h))

	prev := r.GetVersion(h)
	for i := 0; i < 5; i++ {
		require.NoError(t, r.CallMutating(h, "person", "update", nil, nil))
		v := r.GetVersion(h)
		assert.GreaterOrEqual(t, v, prev)
		prev = v
	}

	assert.Equal(t, InvalidVersion, r.GetVersion(nil))
}

func TestShutdownClosesEverything(t *testing.T) {
	b := newFakeBroker()
	r := newTestRegistry(b)
	h := NewHandle(ProcessKey)
	require.NoError(t, r.Connect(ProcessKey, h))
	require.NoError(t, r.Subscribe(ProcessKey, ipc.TopicPerson, func(ipc.Topic, []byte, any) {}, nil))

	r.Shutdown()
	assert.Equal(t, 0, r.SessionCount())
	assert.Equal(t, 0, r.subs.refCount())
	assert.Equal(t, 0, r.SubscriberCount(ipc.TopicPerson))
	assert.Equal(t, InvalidVersion, r.GetVersion(h))
}
