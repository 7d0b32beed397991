package client

import (
	"fmt"

	"github.com/life-stream-dev/life-stream-go-contacts-broker/internal/ipc"
	"github.com/life-stream-dev/life-stream-go-contacts-broker/internal/logger"
)

// resolve finds the Session a call under key runs on. dedicated is true when
// key owns its own Session rather than falling back to the process one.
func (r *Registry) resolve(key Key) (s *Session, dedicated bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if key != ProcessKey {
		if s, ok := r.sessions[key]; ok {
			return s, true
		}
	}
	return r.sessions[ProcessKey], false
}

// Call is the single path every feature module uses to reach the broker.
// A pending broker drop is recovered first. Calls on the shared process
// Session are serialized; dedicated Sessions skip the lock. A non-OK result
// code comes back as its sentinel error together with the response.
func (r *Registry) Call(key Key, module, function string, payload []byte) (*ipc.Response, error) {
	if r.takeDisconnected() {
		if err := r.recover(); err != nil {
			logger.ErrorF("Recovery after broker drop incomplete, details: %v", err)
		}
	}

	s, dedicated := r.resolve(key)
	if s == nil {
		return nil, fmt.Errorf("%w: no session for %s", ipc.ErrNotConnected, key)
	}

	resp, err := s.call(module, function, payload, !dedicated)
	if err != nil {
		logger.ErrorF("[%s] %s/%s failed, details: %v", key, module, function, err)
		return nil, err
	}
	if err := resp.Err(); err != nil {
		return resp, err
	}
	return resp, nil
}

// CallQuery encodes req, calls module/function on h's key and decodes the
// reply into out when out is not nil.
func (r *Registry) CallQuery(h *Handle, module, function string, req, out any) error {
	if h == nil {
		return fmt.Errorf("%w: nil handle", ipc.ErrInvalidParameter)
	}
	payload, err := ipc.Encode(req)
	if err != nil {
		return err
	}
	resp, err := r.Call(h.key, module, function, payload)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return resp.Decode(out)
}

// CallMutating is CallQuery for calls that change the database: on success
// the trailing version of the response is stored on h.
func (r *Registry) CallMutating(h *Handle, module, function string, req, out any) error {
	if h == nil {
		return fmt.Errorf("%w: nil handle", ipc.ErrInvalidParameter)
	}
	payload, err := ipc.Encode(req)
	if err != nil {
		return err
	}
	resp, err := r.Call(h.key, module, function, payload)
	if err != nil {
		return err
	}
	if resp.Version != nil {
		r.SetVersion(h, *resp.Version)
	}
	if out == nil || len(resp.Payload) == 0 {
		return nil
	}
	return resp.Decode(out)
}

// CheckPermission asks the broker whether this process holds permission.
func (r *Registry) CheckPermission(key Key, permission string) (bool, error) {
	payload, err := ipc.Encode(&ipc.PermissionRequest{Permission: permission})
	if err != nil {
		return false, err
	}
	resp, err := r.Call(key, ipc.ModuleCore, ipc.FuncCheckPermission, payload)
	if err != nil {
		return false, err
	}
	var out ipc.PermissionResponse
	if err := resp.Decode(&out); err != nil {
		return false, err
	}
	return out.Granted, nil
}
