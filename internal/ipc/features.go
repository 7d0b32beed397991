package ipc

// Feature modules served next to the core module.
const (
	ModulePerson   = "person"
	ModuleGroup    = "group"
	ModulePhoneLog = "phone_log"
	ModuleDB       = "db"

	FuncInsert = "insert"
	FuncUpdate = "update"
	FuncDelete = "delete"
	FuncGet    = "get"

	FuncGroupAddContact    = "group_add_contact"
	FuncGroupRemoveContact = "group_remove_contact"

	FuncGetChangesByVersion = "get_changes_by_version"
	FuncGetCurrentVersion   = "get_current_version"
)

// Write permissions required by the mutating feature calls.
const (
	PermissionContactsWrite = "contacts.write"
	PermissionCallLogWrite  = "calllog.write"
)

type Person struct {
	ID       int64    `bson:"id"`
	Name     string   `bson:"name"`
	Phones   []string `bson:"phones,omitempty"`
	Emails   []string `bson:"emails,omitempty"`
	Favorite bool     `bson:"favorite"`
}

type PhoneLog struct {
	ID       int64  `bson:"id"`
	Number   string `bson:"number"`
	Type     int32  `bson:"type"`
	Duration int32  `bson:"duration"`
	Time     int64  `bson:"time"`
}

type IDRequest struct {
	ID int64 `bson:"id"`
}

// IDResponse answers inserts with the id of the new record.
type IDResponse struct {
	ID int64 `bson:"id"`
}

type GroupMemberRequest struct {
	GroupID  int64 `bson:"group_id"`
	PersonID int64 `bson:"person_id"`
}

type ChangesRequest struct {
	Topic   Topic `bson:"topic"`
	Version int64 `bson:"version"`
}

// VersionedChange is one change-log entry.
type VersionedChange struct {
	Version int64      `bson:"version"`
	Kind    ChangeKind `bson:"kind"`
	ID      int64      `bson:"id"`
}

type ChangesResponse struct {
	Changes []VersionedChange `bson:"changes"`
	// Current is the latest version at the time of the query.
	Current int64 `bson:"current"`
}

type VersionResponse struct {
	Version int64 `bson:"version"`
}
