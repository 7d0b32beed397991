package database

import (
	"context"
	"testing"

	"github.com/life-stream-dev/life-stream-go-contacts-broker/internal/ipc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStorePersons(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	id1, err := store.InsertPerson(ctx, &Person{Name: "Ada", Phones: []string{"100"}})
	require.NoError(t, err)
	id2, err := store.InsertPerson(ctx, &Person{Name: "Grace"})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, []int64{id1, id2})

	p, err := store.GetPerson(ctx, id1)
	require.NoError(t, err)
	assert.Equal(t, "Ada", p.Name)

	p.Phones[0] = "999"
	again, err := store.GetPerson(ctx, id1)
	require.NoError(t, err)
	assert.Equal(t, []string{"100"}, again.Phones, "callers get copies")

	require.NoError(t, store.UpdatePerson(ctx, &Person{ID: id2, Name: "Grace H."}))
	assert.ErrorIs(t, store.UpdatePerson(ctx, &Person{ID: 42}), ipc.ErrNoData)

	require.NoError(t, store.DeletePerson(ctx, id1))
	_, err = store.GetPerson(ctx, id1)
	assert.ErrorIs(t, err, ipc.ErrNoData)
	assert.ErrorIs(t, store.DeletePerson(ctx, id1), ipc.ErrNoData)
}

func TestMemoryStoreGroupMembers(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	id, err := store.InsertPerson(ctx, &Person{Name: "Ada"})
	require.NoError(t, err)

	assert.ErrorIs(t, store.AddGroupMember(ctx, 1, 77), ipc.ErrNoData)
	require.NoError(t, store.AddGroupMember(ctx, 1, id))
	require.NoError(t, store.RemoveGroupMember(ctx, 1, id))
	assert.ErrorIs(t, store.RemoveGroupMember(ctx, 1, id), ipc.ErrNoData)

	require.NoError(t, store.AddGroupMember(ctx, 2, id))
	require.NoError(t, store.DeletePerson(ctx, id))
	assert.ErrorIs(t, store.RemoveGroupMember(ctx, 2, id), ipc.ErrNoData, "membership goes with the person")
}

func TestMemoryStoreChangeLog(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	v0, err := store.CurrentVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), v0)

	for i := int64(1); i <= 3; i++ {
		v, err := store.NextVersion(ctx)
		require.NoError(t, err)
		require.NoError(t, store.AppendChanges(ctx, ChangeRecord{Version: v, Topic: ipc.TopicPerson, Kind: ipc.ChangeInserted, ID: i}))
	}
	v, err := store.NextVersion(ctx)
	require.NoError(t, err)
	require.NoError(t, store.AppendChanges(ctx, ChangeRecord{Version: v, Topic: ipc.TopicCallLog, Kind: ipc.ChangeInserted, ID: 1}))

	changes, err := store.ChangesSince(ctx, ipc.TopicPerson, 1)
	require.NoError(t, err)
	require.Len(t, changes, 2)
	assert.Equal(t, int64(2), changes[0].Version)
	assert.Equal(t, int64(3), changes[1].ID)

	current, err := store.CurrentVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), current)
}

func TestMemoryStorePhoneLogs(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	id, err := store.InsertPhoneLog(ctx, &PhoneLog{Number: "555", Duration: 30})
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)
	require.NoError(t, store.DeletePhoneLog(ctx, id))
	assert.ErrorIs(t, store.DeletePhoneLog(ctx, id), ipc.ErrNoData)
}
