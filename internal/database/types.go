package database

import (
	"context"

	"github.com/life-stream-dev/life-stream-go-contacts-broker/internal/ipc"
)

const (
	PersonCollectionName      = "persons"
	GroupMemberCollectionName = "group_members"
	PhoneLogCollectionName    = "phone_logs"
	ChangeCollectionName      = "changes"
	CounterCollectionName     = "counters"
)

var collectionsList = []string{
	PersonCollectionName,
	GroupMemberCollectionName,
	PhoneLogCollectionName,
	ChangeCollectionName,
	CounterCollectionName,
}

// counter names
const (
	versionCounter  = "version"
	personCounter   = "person"
	phoneLogCounter = "phone_log"
)

type Person struct {
	ID       int64    `bson:"_id"`
	Name     string   `bson:"name"`
	Phones   []string `bson:"phones,omitempty"`
	Emails   []string `bson:"emails,omitempty"`
	Favorite bool     `bson:"favorite"`
}

type GroupMember struct {
	GroupID  int64 `bson:"group_id"`
	PersonID int64 `bson:"person_id"`
}

type PhoneLog struct {
	ID       int64  `bson:"_id"`
	Number   string `bson:"number"`
	Type     int32  `bson:"type"`
	Duration int32  `bson:"duration"`
	Time     int64  `bson:"time"`
}

// ChangeRecord is one entry of the change log, stamped with the version of
// the mutation that produced it.
type ChangeRecord struct {
	Version int64          `bson:"version"`
	Topic   ipc.Topic      `bson:"topic"`
	Kind    ipc.ChangeKind `bson:"kind"`
	ID      int64          `bson:"record_id"`
}

// Store is the storage engine behind the feature handlers. Lookups of
// missing records fail with ipc.ErrNoData, engine failures wrap
// ipc.ErrDatabase.
type Store interface {
	NextVersion(ctx context.Context) (int64, error)
	CurrentVersion(ctx context.Context) (int64, error)

	InsertPerson(ctx context.Context, p *Person) (int64, error)
	UpdatePerson(ctx context.Context, p *Person) error
	DeletePerson(ctx context.Context, id int64) error
	GetPerson(ctx context.Context, id int64) (*Person, error)

	AddGroupMember(ctx context.Context, groupID, personID int64) error
	RemoveGroupMember(ctx context.Context, groupID, personID int64) error

	InsertPhoneLog(ctx context.Context, l *PhoneLog) (int64, error)
	DeletePhoneLog(ctx context.Context, id int64) error

	AppendChanges(ctx context.Context, changes ...ChangeRecord) error
	// ChangesSince lists the changes of topic with a version above version,
	// oldest first.
	ChangesSince(ctx context.Context, topic ipc.Topic, version int64) ([]ChangeRecord, error)

	Invoke(ctx context.Context) error
}
