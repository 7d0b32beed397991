package service

import (
	"fmt"

	"github.com/life-stream-dev/life-stream-go-contacts-broker/internal/database"
	"github.com/life-stream-dev/life-stream-go-contacts-broker/internal/ipc"
	"github.com/life-stream-dev/life-stream-go-contacts-broker/internal/notify"
	"github.com/life-stream-dev/life-stream-go-contacts-broker/internal/server"
)

var personCategories = []notify.Category{notify.CategoryContact, notify.CategoryPerson}

func toRecord(p *ipc.Person) *database.Person {
	return &database.Person{ID: p.ID, Name: p.Name, Phones: p.Phones, Emails: p.Emails, Favorite: p.Favorite}
}

func fromRecord(p *database.Person) *ipc.Person {
	return &ipc.Person{ID: p.ID, Name: p.Name, Phones: p.Phones, Emails: p.Emails, Favorite: p.Favorite}
}

func validatePerson(p *ipc.Person) error {
	if p.Name == "" && len(p.Phones) == 0 && len(p.Emails) == 0 {
		return fmt.Errorf("%w: empty person", ipc.ErrInvalidParameter)
	}
	return nil
}

func decodeID(c *server.Context) (int64, error) {
	var req ipc.IDRequest
	if err := c.Decode(&req); err != nil {
		return 0, err
	}
	if req.ID <= 0 {
		return 0, fmt.Errorf("%w: id %d", ipc.ErrInvalidParameter, req.ID)
	}
	return req.ID, nil
}

func (s *Service) insertPerson(c *server.Context) (*server.Reply, error) {
	var p ipc.Person
	if err := c.Decode(&p); err != nil {
		return nil, err
	}
	if err := validatePerson(&p); err != nil {
		return nil, err
	}
	id, err := s.store.InsertPerson(c.Ctx, toRecord(&p))
	if err != nil {
		return nil, err
	}
	reply, err := server.NewReply(&ipc.IDResponse{ID: id})
	if err != nil {
		return nil, err
	}
	return s.commit(c, mutation{topic: ipc.TopicPerson, kind: ipc.ChangeInserted, id: id, categories: personCategories}, reply)
}

func (s *Service) updatePerson(c *server.Context) (*server.Reply, error) {
	var p ipc.Person
	if err := c.Decode(&p); err != nil {
		return nil, err
	}
	if p.ID <= 0 {
		return nil, fmt.Errorf("%w: id %d", ipc.ErrInvalidParameter, p.ID)
	}
	if err := validatePerson(&p); err != nil {
		return nil, err
	}
	if err := s.store.UpdatePerson(c.Ctx, toRecord(&p)); err != nil {
		return nil, err
	}
	return s.commit(c, mutation{topic: ipc.TopicPerson, kind: ipc.ChangeUpdated, id: p.ID, categories: personCategories}, nil)
}

func (s *Service) deletePerson(c *server.Context) (*server.Reply, error) {
	id, err := decodeID(c)
	if err != nil {
		return nil, err
	}
	if err := s.store.DeletePerson(c.Ctx, id); err != nil {
		return nil, err
	}
	categories := append([]notify.Category{notify.CategoryGroupRelation}, personCategories...)
	return s.commit(c, mutation{topic: ipc.TopicPerson, kind: ipc.ChangeDeleted, id: id, categories: categories}, nil)
}

func (s *Service) getPerson(c *server.Context) (*server.Reply, error) {
	id, err := decodeID(c)
	if err != nil {
		return nil, err
	}
	p, err := s.store.GetPerson(c.Ctx, id)
	if err != nil {
		return nil, err
	}
	return server.NewReply(fromRecord(p))
}
