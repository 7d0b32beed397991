package ipc

import "fmt"

// Topic is a change-notification category routed over the subscribe channel.
type Topic string

const (
	TopicPerson  Topic = "person"
	TopicCallLog Topic = "call-log"
)

const (
	PermissionContactsRead = "contacts.read"
	PermissionCallLogRead  = "calllog.read"
)

var topicPermissions = map[Topic]string{
	TopicPerson:  PermissionContactsRead,
	TopicCallLog: PermissionCallLogRead,
}

// Topics lists every supported topic.
func Topics() []Topic {
	return []Topic{TopicPerson, TopicCallLog}
}

func (t Topic) Supported() bool {
	_, ok := topicPermissions[t]
	return ok
}

// Permission returns the read permission a subscriber of t must hold.
func (t Topic) Permission() string {
	return topicPermissions[t]
}

func ParseTopic(name string) (Topic, error) {
	t := Topic(name)
	if name == "" {
		return t, fmt.Errorf("%w: empty topic", ErrInvalidParameter)
	}
	if !t.Supported() {
		return t, fmt.Errorf("%w: topic %q", ErrNotSupported, name)
	}
	return t, nil
}

// ChangeKind says what happened to a record.
type ChangeKind int32

const (
	ChangeInserted ChangeKind = iota + 1
	ChangeUpdated
	ChangeDeleted
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeInserted:
		return "inserted"
	case ChangeUpdated:
		return "updated"
	case ChangeDeleted:
		return "deleted"
	}
	return fmt.Sprintf("kind(%d)", int32(k))
}

type Change struct {
	Kind ChangeKind `bson:"kind"`
	ID   int64      `bson:"id"`
}

// ChangeSet is the payload of one publish frame.
type ChangeSet struct {
	Topic   Topic    `bson:"topic"`
	Changes []Change `bson:"changes"`
}

// DecodeChangeSet is the helper subscribers use on the raw publish payload.
func DecodeChangeSet(payload []byte) (*ChangeSet, error) {
	set := &ChangeSet{}
	if err := Decode(payload, set); err != nil {
		return nil, err
	}
	return set, nil
}
