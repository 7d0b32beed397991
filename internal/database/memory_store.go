package database

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/life-stream-dev/life-stream-go-contacts-broker/internal/ipc"
	"github.com/life-stream-dev/life-stream-go-contacts-broker/internal/logger"
)

// MemoryStore keeps everything in process memory. It backs tests and the
// "memory" driver.
type MemoryStore struct {
	ids *IDAllocator

	mu        sync.RWMutex
	persons   map[int64]*Person
	members   map[GroupMember]struct{}
	phoneLogs map[int64]*PhoneLog
	changes   []ChangeRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		ids:       NewIDAllocator(),
		persons:   make(map[int64]*Person),
		members:   make(map[GroupMember]struct{}),
		phoneLogs: make(map[int64]*PhoneLog),
	}
}

func (ms *MemoryStore) NextVersion(context.Context) (int64, error) {
	return ms.ids.Next(versionCounter), nil
}

func (ms *MemoryStore) CurrentVersion(context.Context) (int64, error) {
	return ms.ids.Current(versionCounter), nil
}

func clonePerson(p *Person) *Person {
	c := *p
	c.Phones = append([]string(nil), p.Phones...)
	c.Emails = append([]string(nil), p.Emails...)
	return &c
}

func (ms *MemoryStore) InsertPerson(_ context.Context, p *Person) (int64, error) {
	if p == nil {
		return 0, ipc.ErrInvalidParameter
	}
	stored := clonePerson(p)
	stored.ID = ms.ids.Next(personCounter)
	ms.mu.Lock()
	ms.persons[stored.ID] = stored
	ms.mu.Unlock()
	return stored.ID, nil
}

func (ms *MemoryStore) UpdatePerson(_ context.Context, p *Person) error {
	if p == nil {
		return ipc.ErrInvalidParameter
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if _, ok := ms.persons[p.ID]; !ok {
		return fmt.Errorf("%w: person %d", ipc.ErrNoData, p.ID)
	}
	ms.persons[p.ID] = clonePerson(p)
	return nil
}

func (ms *MemoryStore) DeletePerson(_ context.Context, id int64) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if _, ok := ms.persons[id]; !ok {
		return fmt.Errorf("%w: person %d", ipc.ErrNoData, id)
	}
	delete(ms.persons, id)
	for m := range ms.members {
		if m.PersonID == id {
			delete(ms.members, m)
		}
	}
	return nil
}

func (ms *MemoryStore) GetPerson(_ context.Context, id int64) (*Person, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	p, ok := ms.persons[id]
	if !ok {
		logger.DebugF("Person %d does not exist", id)
		return nil, fmt.Errorf("%w: person %d", ipc.ErrNoData, id)
	}
	return clonePerson(p), nil
}

func (ms *MemoryStore) AddGroupMember(_ context.Context, groupID, personID int64) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if _, ok := ms.persons[personID]; !ok {
		return fmt.Errorf("%w: person %d", ipc.ErrNoData, personID)
	}
	ms.members[GroupMember{GroupID: groupID, PersonID: personID}] = struct{}{}
	return nil
}

func (ms *MemoryStore) RemoveGroupMember(_ context.Context, groupID, personID int64) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	key := GroupMember{GroupID: groupID, PersonID: personID}
	if _, ok := ms.members[key]; !ok {
		return fmt.Errorf("%w: person %d not in group %d", ipc.ErrNoData, personID, groupID)
	}
	delete(ms.members, key)
	return nil
}

func (ms *MemoryStore) InsertPhoneLog(_ context.Context, l *PhoneLog) (int64, error) {
	if l == nil {
		return 0, ipc.ErrInvalidParameter
	}
	stored := *l
	stored.ID = ms.ids.Next(phoneLogCounter)
	ms.mu.Lock()
	ms.phoneLogs[stored.ID] = &stored
	ms.mu.Unlock()
	return stored.ID, nil
}

func (ms *MemoryStore) DeletePhoneLog(_ context.Context, id int64) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if _, ok := ms.phoneLogs[id]; !ok {
		return fmt.Errorf("%w: phone log %d", ipc.ErrNoData, id)
	}
	delete(ms.phoneLogs, id)
	return nil
}

func (ms *MemoryStore) AppendChanges(_ context.Context, changes ...ChangeRecord) error {
	ms.mu.Lock()
	ms.changes = append(ms.changes, changes...)
	ms.mu.Unlock()
	return nil
}

func (ms *MemoryStore) ChangesSince(_ context.Context, topic ipc.Topic, version int64) ([]ChangeRecord, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	var out []ChangeRecord
	for _, c := range ms.changes {
		if c.Topic == topic && c.Version > version {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

func (ms *MemoryStore) Invoke(context.Context) error {
	return nil
}
