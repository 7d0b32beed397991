package server

import (
	"fmt"

	"github.com/life-stream-dev/life-stream-go-contacts-broker/internal/ipc"
	"github.com/life-stream-dev/life-stream-go-contacts-broker/internal/logger"
)

// registerCore installs the ipc module every client talks to.
func (s *Server) registerCore() {
	s.router.Handle(ipc.ModuleCore, ipc.FuncConnect, "", s.handleConnect)
	s.router.Handle(ipc.ModuleCore, ipc.FuncDisconnect, "", s.handleDisconnect)
	s.router.Handle(ipc.ModuleCore, ipc.FuncCheckPermission, "", s.handleCheckPermission)
	s.router.Handle(ipc.ModuleCore, ipc.FuncSubscribe, "", s.handleSubscribe)
	s.router.Handle(ipc.ModuleCore, ipc.FuncUnsubscribe, "", s.handleUnsubscribe)
}

func (s *Server) handleConnect(c *Context) (*Reply, error) {
	var req ipc.ConnectRequest
	if err := c.Decode(&req); err != nil {
		return nil, err
	}
	if req.Handle == "" {
		return nil, fmt.Errorf("%w: empty handle", ipc.ErrInvalidParameter)
	}
	if err := c.Conn.Attach(req.Handle, req.Credentials); err != nil {
		logger.WarnF("[%s] Rejected handle %s from %s (pid %d)", c.Conn.ConnID, req.Handle, req.Credentials.Name, req.Credentials.PID)
		return nil, err
	}
	logger.InfoF("[%s] Handle %s connected for %s (pid %d, uid %d)",
		c.Conn.ConnID, req.Handle, req.Credentials.Name, req.Credentials.PID, req.Credentials.UID)
	return &Reply{}, nil
}

func (s *Server) handleDisconnect(c *Context) (*Reply, error) {
	var req ipc.DisconnectRequest
	if err := c.Decode(&req); err != nil {
		return nil, err
	}
	if !c.Conn.Detach(req.Handle) {
		return nil, fmt.Errorf("%w: unknown handle %q", ipc.ErrInvalidParameter, req.Handle)
	}
	logger.InfoF("[%s] Handle %s disconnected", c.Conn.ConnID, req.Handle)
	return &Reply{}, nil
}

func (s *Server) handleCheckPermission(c *Context) (*Reply, error) {
	var req ipc.PermissionRequest
	if err := c.Decode(&req); err != nil {
		return nil, err
	}
	creds, ok := c.Conn.Credentials()
	if !ok {
		return nil, ipc.ErrNotConnected
	}
	granted := s.router.permissions.Granted(creds.Name, req.Permission)
	logger.DebugF("[%s] Permission %s for %s: %v", c.Conn.ConnID, req.Permission, creds.Name, granted)
	return NewReply(&ipc.PermissionResponse{Granted: granted})
}

func (s *Server) topicRequest(c *Context) (ipc.Topic, error) {
	if c.Conn.Socket != SocketSubscribe {
		return "", fmt.Errorf("%w: %s outside the subscribe socket", ipc.ErrNotSupported, c.Function)
	}
	var req ipc.SubscribeRequest
	if err := c.Decode(&req); err != nil {
		return "", err
	}
	return ipc.ParseTopic(string(req.Topic))
}

func (s *Server) handleSubscribe(c *Context) (*Reply, error) {
	topic, err := s.topicRequest(c)
	if err != nil {
		return nil, err
	}
	if err := s.hub.Subscribe(topic, c.Conn); err != nil {
		return nil, err
	}
	return &Reply{}, nil
}

func (s *Server) handleUnsubscribe(c *Context) (*Reply, error) {
	topic, err := s.topicRequest(c)
	if err != nil {
		return nil, err
	}
	if err := s.hub.Unsubscribe(topic, c.Conn); err != nil {
		return nil, err
	}
	return &Reply{}, nil
}

