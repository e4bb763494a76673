package ble

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// mockCharacteristic records subscriptions and lets tests push reports.
type mockCharacteristic struct {
	mu          sync.Mutex
	canNotify   bool
	canIndicate bool
	failSub     bool
	subscribed  bool
	usedNotify  bool
	callback    func([]byte)
}

func (c *mockCharacteristic) CanNotify() bool   { return c.canNotify }
func (c *mockCharacteristic) CanIndicate() bool { return c.canIndicate }

func (c *mockCharacteristic) Subscribe(notify bool, cb func([]byte)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failSub {
		return fmt.Errorf("mock: subscribe refused")
	}
	c.subscribed = true
	c.usedNotify = notify
	c.callback = cb
	return nil
}

// SimulateReport delivers a notification to the subscriber.
func (c *mockCharacteristic) SimulateReport(data []byte) {
	c.mu.Lock()
	cb := c.callback
	c.mu.Unlock()
	if cb != nil {
		cb(data)
	}
}

// mockConnection simulates a BLE connection with a characteristic table
// keyed by "serviceUUID/charUUID".
type mockConnection struct {
	mu        sync.Mutex
	chars     map[string]*mockCharacteristic
	connected bool
	rssi      int
}

func newMockConnection(rssi int) *mockConnection {
	return &mockConnection{
		chars:     make(map[string]*mockCharacteristic),
		connected: true,
		rssi:      rssi,
	}
}

func (c *mockConnection) addCharacteristic(serviceUUID, charUUID string, chr *mockCharacteristic) {
	c.chars[strings.ToLower(serviceUUID+"/"+charUUID)] = chr
}

func (c *mockConnection) Characteristic(serviceUUID, charUUID string) (Characteristic, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	chr, ok := c.chars[strings.ToLower(serviceUUID+"/"+charUUID)]
	if !ok {
		return nil, fmt.Errorf("mock: characteristic %s not found", charUUID)
	}
	return chr, nil
}

func (c *mockConnection) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	return nil
}

func (c *mockConnection) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *mockConnection) RSSI() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rssi
}

// SimulateDisconnect drops the transport-level link without the session's
// involvement, as a peer-initiated disconnect would.
func (c *mockConnection) SimulateDisconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
}

// mockAdapter simulates the BLE hardware adapter.
type mockAdapter struct {
	mu             sync.Mutex
	advertisements []Advertisement
	enableErr      error
	scanErr        error
	connections    []*mockConnection
	nextConn       *mockConnection
	connectErr     error
	failPublic     bool // force the public-address attempt to fail
	connectHook    func(ctx context.Context, kind AddressKind) error
	connectKinds   []AddressKind
	connectCount   int
}

func newMockAdapter(advs []Advertisement) *mockAdapter {
	return &mockAdapter{advertisements: advs}
}

func (a *mockAdapter) Enable() error { return a.enableErr }

func (a *mockAdapter) Scan(ctx context.Context, timeout time.Duration) ([]Advertisement, error) {
	if a.scanErr != nil {
		return nil, a.scanErr
	}
	return a.advertisements, nil
}

func (a *mockAdapter) Connect(ctx context.Context, address string, kind AddressKind) (Connection, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.connectCount++
	a.connectKinds = append(a.connectKinds, kind)

	if a.connectErr != nil {
		return nil, a.connectErr
	}
	if a.failPublic && kind == AddressPublic {
		return nil, fmt.Errorf("mock: public address connect refused")
	}
	if a.connectHook != nil {
		if err := a.connectHook(ctx, kind); err != nil {
			return nil, err
		}
	}

	conn := a.nextConn
	if conn == nil {
		conn = newMockConnection(-50)
	}
	a.connections = append(a.connections, conn)
	return conn, nil
}

func (a *mockAdapter) latestConnection() *mockConnection {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.connections) == 0 {
		return nil
	}
	return a.connections[len(a.connections)-1]
}

// keyboardConnection builds a connection exposing the HID service with a
// notifiable boot keyboard input characteristic.
func keyboardConnection(rssi int) (*mockConnection, *mockCharacteristic) {
	conn := newMockConnection(rssi)
	chr := &mockCharacteristic{canNotify: true}
	conn.addCharacteristic(HIDServiceUUID, BootKeyboardInputUUID, chr)
	return conn, chr
}
