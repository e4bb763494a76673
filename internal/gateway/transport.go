package gateway

import "errors"

// Handlers are the transport's delivery callbacks. They may be invoked from
// the transport's own I/O goroutine, concurrently with Tick; the client
// guards all shared state accordingly.
type Handlers struct {
	OnOpen    func()
	OnClose   func(err error)
	OnMessage func(data []byte)
}

// Transport is a persistent framed text connection to the gateway. The
// client owns exactly one transport and always closes before reopening.
type Transport interface {
	// SetHandlers registers delivery callbacks. Must be called before Open.
	SetHandlers(h Handlers)
	// Open dials the endpoint. OnOpen fires once the link is established.
	Open(ep Endpoint) error
	// Close tears the connection down. Idempotent; OnClose fires if a
	// connection was up.
	Close() error
	// Send writes one text frame. Fails fast when the link is not open.
	Send(data []byte) error
}

// ErrNotConfigured is returned by NullTransport for every operation.
var ErrNotConfigured = errors.New("gateway: transport not configured")

// NullTransport is the capability-absent transport: a build without
// networking support wires this in and every operation reports "not
// configured" instead of panicking on a nil handle.
type NullTransport struct{}

func (NullTransport) SetHandlers(Handlers) {}
func (NullTransport) Open(Endpoint) error  { return ErrNotConfigured }
func (NullTransport) Close() error         { return nil }
func (NullTransport) Send([]byte) error    { return ErrNotConfigured }

var _ Transport = NullTransport{}
