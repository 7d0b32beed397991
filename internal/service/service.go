// Package service holds the contacts feature handlers served by the broker.
package service

import (
	"github.com/life-stream-dev/life-stream-go-contacts-broker/internal/database"
	"github.com/life-stream-dev/life-stream-go-contacts-broker/internal/ipc"
	"github.com/life-stream-dev/life-stream-go-contacts-broker/internal/logger"
	"github.com/life-stream-dev/life-stream-go-contacts-broker/internal/notify"
	"github.com/life-stream-dev/life-stream-go-contacts-broker/internal/server"
)

type Service struct {
	store database.Store
}

func New(store database.Store) *Service {
	return &Service{store: store}
}

// Register installs every feature handler on r.
func (s *Service) Register(r *server.Router) {
	r.Handle(ipc.ModulePerson, ipc.FuncInsert, ipc.PermissionContactsWrite, s.insertPerson)
	r.Handle(ipc.ModulePerson, ipc.FuncUpdate, ipc.PermissionContactsWrite, s.updatePerson)
	r.Handle(ipc.ModulePerson, ipc.FuncDelete, ipc.PermissionContactsWrite, s.deletePerson)
	r.Handle(ipc.ModulePerson, ipc.FuncGet, ipc.PermissionContactsRead, s.getPerson)

	r.Handle(ipc.ModuleGroup, ipc.FuncGroupAddContact, ipc.PermissionContactsWrite, s.groupAddContact)
	r.Handle(ipc.ModuleGroup, ipc.FuncGroupRemoveContact, ipc.PermissionContactsWrite, s.groupRemoveContact)

	r.Handle(ipc.ModulePhoneLog, ipc.FuncInsert, ipc.PermissionCallLogWrite, s.insertPhoneLog)
	r.Handle(ipc.ModulePhoneLog, ipc.FuncDelete, ipc.PermissionCallLogWrite, s.deletePhoneLog)

	r.Handle(ipc.ModuleDB, ipc.FuncGetChangesByVersion, "", s.getChangesByVersion)
	r.Handle(ipc.ModuleDB, ipc.FuncGetCurrentVersion, "", s.getCurrentVersion)
}

// mutation describes what one successful write changed.
type mutation struct {
	topic      ipc.Topic
	kind       ipc.ChangeKind
	id         int64
	categories []notify.Category
}

// commit stamps m with a fresh version, appends it to the change log and
// records it on the request transaction. reply may carry a payload already.
func (s *Service) commit(c *server.Context, m mutation, reply *server.Reply) (*server.Reply, error) {
	version, err := s.store.NextVersion(c.Ctx)
	if err != nil {
		return nil, err
	}
	record := database.ChangeRecord{Version: version, Topic: m.topic, Kind: m.kind, ID: m.id}
	if err := s.store.AppendChanges(c.Ctx, record); err != nil {
		return nil, err
	}
	if err := c.Txn.RecordChange(m.topic, m.kind, m.id); err != nil {
		logger.WarnF("[%s] Change of %s %d not recorded, details: %v", c.Conn.ConnID, m.topic, m.id, err)
	}
	for _, category := range m.categories {
		c.Txn.MarkDirty(category)
	}
	if reply == nil {
		reply = &server.Reply{}
	}
	reply.Version = &version
	return reply, nil
}
