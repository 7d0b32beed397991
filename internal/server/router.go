package server

import (
	"context"
	"fmt"
	"slices"

	"github.com/life-stream-dev/life-stream-go-contacts-broker/internal/connection"
	"github.com/life-stream-dev/life-stream-go-contacts-broker/internal/ipc"
	"github.com/life-stream-dev/life-stream-go-contacts-broker/internal/notify"
)

// Context is what a handler gets for one request.
type Context struct {
	Ctx      context.Context
	Conn     *connection.Connection
	Module   string
	Function string
	Payload  []byte
	// Txn collects the changes of this request. It is committed when the
	// handler succeeds and aborted otherwise.
	Txn *notify.Txn
}

// Decode unmarshals the request payload into v.
func (c *Context) Decode(v any) error {
	return ipc.Decode(c.Payload, v)
}

// Reply is a successful handler result. Version is set by mutating handlers.
type Reply struct {
	Payload []byte
	Version *int64
}

// NewReply encodes v as the reply payload.
func NewReply(v any) (*Reply, error) {
	payload, err := ipc.Encode(v)
	if err != nil {
		return nil, err
	}
	return &Reply{Payload: payload}, nil
}

// Versioned is an empty reply carrying the change version.
func Versioned(version int64) *Reply {
	return &Reply{Version: &version}
}

type HandlerFunc func(c *Context) (*Reply, error)

type route struct {
	handler    HandlerFunc
	permission string
}

// Router maps module/function pairs to handlers.
type Router struct {
	routes      map[string]route
	permissions Permissions
}

func NewRouter(permissions Permissions) *Router {
	return &Router{routes: make(map[string]route), permissions: permissions}
}

func routeKey(module, function string) string {
	return module + "/" + function
}

// Handle registers h. A non-empty permission must be granted to the client
// that connected the calling connection.
func (r *Router) Handle(module, function, permission string, h HandlerFunc) {
	r.routes[routeKey(module, function)] = route{handler: h, permission: permission}
}

// Routes lists the registered module/function pairs, sorted.
func (r *Router) Routes() []string {
	keys := make([]string, 0, len(r.routes))
	for k := range r.routes {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func (r *Router) serve(c *Context) (*Reply, error) {
	rt, ok := r.routes[routeKey(c.Module, c.Function)]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ipc.ErrNotSupported, c.Module, c.Function)
	}
	if c.Module != ipc.ModuleCore {
		if c.Conn.Socket != SocketRPC {
			return nil, fmt.Errorf("%w: %s/%s on %s socket", ipc.ErrNotSupported, c.Module, c.Function, c.Conn.Socket)
		}
		if c.Conn.HandleCount() == 0 {
			return nil, ipc.ErrNotConnected
		}
	}
	if rt.permission != "" {
		creds, ok := c.Conn.Credentials()
		if !ok {
			return nil, ipc.ErrNotConnected
		}
		if !r.permissions.Granted(creds.Name, rt.permission) {
			return nil, fmt.Errorf("%w: %s requires %s", ipc.ErrPermissionDenied, c.Function, rt.permission)
		}
	}
	return rt.handler(c)
}

// Permissions maps client names to granted permission ids. Grants under "*"
// apply to every client.
type Permissions map[string][]string

func (p Permissions) Granted(client, permission string) bool {
	return slices.Contains(p[client], permission) || slices.Contains(p["*"], permission)
}
