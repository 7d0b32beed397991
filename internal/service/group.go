package service

import (
	"fmt"

	"github.com/life-stream-dev/life-stream-go-contacts-broker/internal/ipc"
	"github.com/life-stream-dev/life-stream-go-contacts-broker/internal/notify"
	"github.com/life-stream-dev/life-stream-go-contacts-broker/internal/server"
)

var groupCategories = []notify.Category{notify.CategoryGroup, notify.CategoryGroupRelation}

func decodeMember(c *server.Context) (*ipc.GroupMemberRequest, error) {
	var req ipc.GroupMemberRequest
	if err := c.Decode(&req); err != nil {
		return nil, err
	}
	if req.GroupID <= 0 || req.PersonID <= 0 {
		return nil, fmt.Errorf("%w: group %d person %d", ipc.ErrInvalidParameter, req.GroupID, req.PersonID)
	}
	return &req, nil
}

// Membership changes are announced as updates of the person.
func (s *Service) groupAddContact(c *server.Context) (*server.Reply, error) {
	req, err := decodeMember(c)
	if err != nil {
		return nil, err
	}
	if err := s.store.AddGroupMember(c.Ctx, req.GroupID, req.PersonID); err != nil {
		return nil, err
	}
	return s.commit(c, mutation{topic: ipc.TopicPerson, kind: ipc.ChangeUpdated, id: req.PersonID, categories: groupCategories}, nil)
}

func (s *Service) groupRemoveContact(c *server.Context) (*server.Reply, error) {
	req, err := decodeMember(c)
	if err != nil {
		return nil, err
	}
	if err := s.store.RemoveGroupMember(c.Ctx, req.GroupID, req.PersonID); err != nil {
		return nil, err
	}
	return s.commit(c, mutation{topic: ipc.TopicPerson, kind: ipc.ChangeUpdated, id: req.PersonID, categories: groupCategories}, nil)
}
