package service

import (
	"github.com/life-stream-dev/life-stream-go-contacts-broker/internal/ipc"
	"github.com/life-stream-dev/life-stream-go-contacts-broker/internal/server"
)

func (s *Service) getChangesByVersion(c *server.Context) (*server.Reply, error) {
	var req ipc.ChangesRequest
	if err := c.Decode(&req); err != nil {
		return nil, err
	}
	topic, err := ipc.ParseTopic(string(req.Topic))
	if err != nil {
		return nil, err
	}
	current, err := s.store.CurrentVersion(c.Ctx)
	if err != nil {
		return nil, err
	}
	records, err := s.store.ChangesSince(c.Ctx, topic, req.Version)
	if err != nil {
		return nil, err
	}
	resp := &ipc.ChangesResponse{Current: current, Changes: make([]ipc.VersionedChange, 0, len(records))}
	for _, r := range records {
		if r.Version > current {
			continue
		}
		resp.Changes = append(resp.Changes, ipc.VersionedChange{Version: r.Version, Kind: r.Kind, ID: r.ID})
	}
	return server.NewReply(resp)
}

func (s *Service) getCurrentVersion(c *server.Context) (*server.Reply, error) {
	current, err := s.store.CurrentVersion(c.Ctx)
	if err != nil {
		return nil, err
	}
	return server.NewReply(&ipc.VersionResponse{Version: current})
}
