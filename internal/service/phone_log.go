package service

import (
	"fmt"

	"github.com/life-stream-dev/life-stream-go-contacts-broker/internal/database"
	"github.com/life-stream-dev/life-stream-go-contacts-broker/internal/ipc"
	"github.com/life-stream-dev/life-stream-go-contacts-broker/internal/notify"
	"github.com/life-stream-dev/life-stream-go-contacts-broker/internal/server"
)

var phoneLogCategories = []notify.Category{notify.CategoryPhoneLog}

func (s *Service) insertPhoneLog(c *server.Context) (*server.Reply, error) {
	var l ipc.PhoneLog
	if err := c.Decode(&l); err != nil {
		return nil, err
	}
	if l.Number == "" {
		return nil, fmt.Errorf("%w: phone log without number", ipc.ErrInvalidParameter)
	}
	id, err := s.store.InsertPhoneLog(c.Ctx, &database.PhoneLog{
		Number:   l.Number,
		Type:     l.Type,
		Duration: l.Duration,
		Time:     l.Time,
	})
	if err != nil {
		return nil, err
	}
	reply, err := server.NewReply(&ipc.IDResponse{ID: id})
	if err != nil {
		return nil, err
	}
	return s.commit(c, mutation{topic: ipc.TopicCallLog, kind: ipc.ChangeInserted, id: id, categories: phoneLogCategories}, reply)
}

func (s *Service) deletePhoneLog(c *server.Context) (*server.Reply, error) {
	id, err := decodeID(c)
	if err != nil {
		return nil, err
	}
	if err := s.store.DeletePhoneLog(c.Ctx, id); err != nil {
		return nil, err
	}
	return s.commit(c, mutation{topic: ipc.TopicCallLog, kind: ipc.ChangeDeleted, id: id, categories: phoneLogCategories}, nil)
}
