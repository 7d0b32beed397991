package server

import (
	"errors"
	"time"

	"github.com/life-stream-dev/life-stream-go-contacts-broker/internal/connection"
	"github.com/life-stream-dev/life-stream-go-contacts-broker/internal/ipc"
	"github.com/life-stream-dev/life-stream-go-contacts-broker/internal/logger"
	"github.com/life-stream-dev/life-stream-go-contacts-broker/internal/metrics"
	"github.com/life-stream-dev/life-stream-go-contacts-broker/internal/notify"
)

type ConnectionHandler struct {
	conn   *connection.Connection
	server *Server
}

func (h *ConnectionHandler) handleConnection() {
	s := h.server
	s.manager.AddConnection(h.conn)
	metrics.ConnectionOpened(h.conn.Socket)
	defer func() {
		s.hub.RemoveConnection(h.conn)
		s.manager.RemoveConnection(h.conn.ConnID)
		metrics.ConnectionClosed(h.conn.Socket)
		logger.DebugF("[%s] Connection closed", h.conn.ConnID)
		if err := h.conn.Conn.Close(); err != nil && !connection.IsNetClosedError(err) {
			logger.WarnF("[%s] Error occured while closing connection, details: %v", h.conn.ConnID, err)
		}
	}()

	for {
		frame, err := ipc.ReadFrame(h.conn.Conn)
		if err != nil {
			connection.HandleReadError(h.conn.ConnID, err)
			return
		}

		logger.DebugF("[%s] Receive %s frame %d %s/%s", h.conn.ConnID, frame.Kind, frame.ID, frame.Module, frame.Function)

		if frame.Kind != ipc.KindRequest {
			logger.WarnF("[%s] %s frame has not been supported", h.conn.ConnID, frame.Kind)
			return
		}
		if err := h.handleRequest(frame); err != nil {
			return
		}
	}
}

// handleRequest runs one request inside its own change transaction. Changes
// are announced before the response goes out.
func (h *ConnectionHandler) handleRequest(frame *ipc.Frame) error {
	start := time.Now()
	txn := notify.NewTxn()
	c := &Context{
		Ctx:      h.server.ctx,
		Conn:     h.conn,
		Module:   frame.Module,
		Function: frame.Function,
		Payload:  frame.Payload,
		Txn:      txn,
	}

	reply, err := h.server.router.serve(c)
	if err != nil {
		txn.Abort()
	} else if cerr := txn.Commit(h.server.signaler, h.server.hub); cerr != nil {
		logger.WarnF("[%s] Changes of %s/%s not fully announced, details: %v", h.conn.ConnID, frame.Module, frame.Function, cerr)
	}

	resp := &ipc.Frame{Kind: ipc.KindResponse, ID: frame.ID, Result: ipc.CodeOf(err)}
	if err == nil && reply != nil {
		resp.Payload = reply.Payload
		resp.Version = reply.Version
		if reply.Version != nil {
			metrics.SetVersion(*reply.Version)
		}
	}
	logResult(h.conn.ConnID, frame, resp.Result, err)
	metrics.RecordRequest(frame.Module, frame.Function, resp.Result.String(), time.Since(start))
	return h.conn.Send(resp)
}

func logResult(connID string, frame *ipc.Frame, code ipc.ResultCode, err error) {
	switch {
	case err == nil:
		return
	case errors.Is(err, ipc.ErrDatabase), code == ipc.ResultSystem:
		logger.ErrorF("[%s] %s/%s failed with %s, details: %v", connID, frame.Module, frame.Function, code, err)
	default:
		logger.DebugF("[%s] %s/%s answered %s: %v", connID, frame.Module, frame.Function, code, err)
	}
}
