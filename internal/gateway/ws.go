package gateway

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const wsHandshakeTimeout = 10 * time.Second

// WSTransport implements Transport over gorilla/websocket.
type WSTransport struct {
	mu       sync.Mutex
	handlers Handlers
	conn     *websocket.Conn
	writeMu  sync.Mutex
}

// NewWSTransport creates an unconnected websocket transport.
func NewWSTransport() *WSTransport {
	return &WSTransport{}
}

func (t *WSTransport) SetHandlers(h Handlers) {
	t.mu.Lock()
	t.handlers = h
	t.mu.Unlock()
}

func (t *WSTransport) Open(ep Endpoint) error {
	if err := t.Close(); err != nil {
		return err
	}

	dialer := websocket.Dialer{HandshakeTimeout: wsHandshakeTimeout}
	conn, _, err := dialer.Dial(ep.URL(), nil)
	if err != nil {
		return fmt.Errorf("gateway: dial %s: %w", ep.URL(), err)
	}

	t.mu.Lock()
	t.conn = conn
	handlers := t.handlers
	t.mu.Unlock()

	go t.readPump(conn)

	if handlers.OnOpen != nil {
		handlers.OnOpen()
	}
	return nil
}

func (t *WSTransport) Close() error {
	t.mu.Lock()
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (t *WSTransport) Send(data []byte) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()

	if conn == nil {
		return fmt.Errorf("gateway: send: transport is not open")
	}

	// gorilla/websocket permits one concurrent writer.
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, data)
}

// readPump delivers inbound frames until the connection drops. Binary
// frames are passed through; the client's decoder rejects what it cannot
// parse.
func (t *WSTransport) readPump(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.mu.Lock()
			if t.conn == conn {
				t.conn = nil
			}
			handlers := t.handlers
			t.mu.Unlock()

			if handlers.OnClose != nil {
				handlers.OnClose(err)
			}
			return
		}

		t.mu.Lock()
		handlers := t.handlers
		t.mu.Unlock()
		if handlers.OnMessage != nil {
			handlers.OnMessage(data)
		}
	}
}

// IsTLSError reports whether an error came from certificate or TLS
// negotiation rather than the network path, for the client's TLS failure
// streak counter.
func IsTLSError(err error) bool {
	if err == nil {
		return false
	}
	var recordErr tls.RecordHeaderError
	var certErr *tls.CertificateVerificationError
	var unknownAuthority x509.UnknownAuthorityError
	var hostnameErr x509.HostnameError
	if errors.As(err, &recordErr) || errors.As(err, &certErr) ||
		errors.As(err, &unknownAuthority) || errors.As(err, &hostnameErr) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "tls:") || strings.Contains(msg, "x509:")
}

var _ Transport = (*WSTransport)(nil)
