package ipc

// Core module and function names every broker understands.
const (
	ModuleCore = "ipc"

	FuncConnect         = "connect"
	FuncDisconnect      = "disconnect"
	FuncCheckPermission = "check_permission"
	FuncSubscribe       = "subscribe"
	FuncUnsubscribe     = "unsubscribe"
)

// Transport opens channels to the broker.
type Transport interface {
	Open(address string) (Channel, error)
}

// Channel is one point-to-point request/response connection with an
// out-of-band disconnect signal.
type Channel interface {
	// Call blocks until the broker answers or the channel breaks. A broken
	// channel yields an error wrapping ErrTransport.
	Call(module, function string, payload []byte) (*Response, error)
	Close() error
	// OnDisconnect registers the callback fired once when the peer goes away.
	// Passing nil unregisters it; Close never fires it.
	OnDisconnect(cb func())
	// OnPublish registers the receiver of publish frames. Frames are delivered
	// one at a time in arrival order.
	OnPublish(cb func(topic Topic, payload []byte))
}

// Credentials travel with the connect call.
type Credentials struct {
	Name string `bson:"name"`
	PID  int    `bson:"pid"`
	UID  int    `bson:"uid"`
}

type ConnectRequest struct {
	Handle      string      `bson:"handle"`
	Credentials Credentials `bson:"credentials"`
}

type DisconnectRequest struct {
	Handle string `bson:"handle"`
}

type PermissionRequest struct {
	Permission string `bson:"permission"`
}

type PermissionResponse struct {
	Granted bool `bson:"granted"`
}

type SubscribeRequest struct {
	Topic Topic `bson:"topic"`
}
