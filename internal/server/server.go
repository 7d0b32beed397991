// Package server is the broker side of the contacts service: it accepts
// clients on the request and subscribe sockets, routes request frames to
// handlers and commits each request's changes.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"sync/atomic"

	"github.com/life-stream-dev/life-stream-go-contacts-broker/internal/connection"
	"github.com/life-stream-dev/life-stream-go-contacts-broker/internal/logger"
	"github.com/life-stream-dev/life-stream-go-contacts-broker/internal/metrics"
	"github.com/life-stream-dev/life-stream-go-contacts-broker/internal/notify"
)

// socket labels
const (
	SocketRPC       = "rpc"
	SocketSubscribe = "subscribe"
)

type Options struct {
	SocketPath          string
	SubscribeSocketPath string
	MaxConnections      int
}

type Server struct {
	opts     Options
	router   *Router
	manager  *connection.Manager
	hub      *connection.Hub
	signaler notify.Signaler

	ctx    context.Context
	cancel context.CancelFunc

	sem       chan struct{}
	listeners []net.Listener
	wg        sync.WaitGroup
	closed    atomic.Bool
}

// New builds a server around router. The core ipc module is registered on
// router; feature handlers are expected to be registered already.
func New(opts Options, router *Router, signaler notify.Signaler) *Server {
	if opts.MaxConnections <= 0 {
		opts.MaxConnections = 1024
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		opts:     opts,
		router:   router,
		manager:  connection.NewManager(),
		hub:      connection.NewHub(),
		signaler: countingSignaler{signaler},
		ctx:      ctx,
		cancel:   cancel,
		sem:      make(chan struct{}, opts.MaxConnections),
	}
	s.registerCore()
	return s
}

func (s *Server) Hub() *connection.Hub { return s.hub }

func (s *Server) Manager() *connection.Manager { return s.manager }

func listenUnix(path string) (net.Listener, error) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("remove stale socket %s: %w", path, err)
	}
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, err
	}
	if err := os.Chmod(path, 0o666); err != nil {
		logger.WarnF("Fail to open up permissions of %s, details: %v", path, err)
	}
	return ln, nil
}

// Start listens on both sockets and serves them in the background.
func (s *Server) Start() error {
	for _, sock := range []struct{ label, path string }{
		{SocketRPC, s.opts.SocketPath},
		{SocketSubscribe, s.opts.SubscribeSocketPath},
	} {
		ln, err := listenUnix(sock.path)
		if err != nil {
			s.closeListeners()
			return fmt.Errorf("contacts broker start error: %w", err)
		}
		s.listeners = append(s.listeners, ln)
		logger.InfoF("Contacts broker %s socket listen on %s", sock.label, sock.path)
		s.wg.Add(1)
		go s.acceptLoop(ln, sock.label)
	}
	return nil
}

func (s *Server) acceptLoop(ln net.Listener, socket string) {
	defer s.wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.closed.Load() {
				return
			}
			logger.ErrorF("Accept connection error: %v", err)
			if connection.IsNetClosedError(err) {
				return
			}
			continue
		}

		s.sem <- struct{}{}
		c := connection.NewConnection(conn, socket)
		logger.DebugF("[%s] Accepted new connection on %s socket", c.ConnID, socket)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			handler := &ConnectionHandler{conn: c, server: s}
			handler.handleConnection()
			<-s.sem
		}()
	}
}

func (s *Server) closeListeners() {
	for _, ln := range s.listeners {
		if err := ln.Close(); err != nil && !connection.IsNetClosedError(err) {
			logger.ErrorF("Server close error: %v", err)
		}
	}
}

// Invoke stops accepting, closes every client connection and waits for
// their handlers until ctx expires.
func (s *Server) Invoke(ctx context.Context) error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	logger.Info("Stopping contacts broker")
	s.cancel()
	s.closeListeners()
	s.manager.CloseAll()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("contacts broker stop: %w", ctx.Err())
	}
}

type countingSignaler struct {
	inner notify.Signaler
}

func (c countingSignaler) Signal(category notify.Category) error {
	metrics.RecordSignal(category.String())
	if c.inner == nil {
		return nil
	}
	return c.inner.Signal(category)
}
