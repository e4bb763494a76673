package ble

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"tinygo.org/x/bluetooth"
)

// TinyGoAdapter wraps tinygo-org/bluetooth behind the Adapter interface.
// On macOS the address strings are CoreBluetooth UUIDs rather than MAC
// addresses; the Session treats them as opaque either way.
type TinyGoAdapter struct {
	adapter *bluetooth.Adapter

	// mu protects connections and scanRSSI.
	mu          sync.Mutex
	connections map[string]*tinyGoConnection // keyed by lowercase address
	scanRSSI    map[string]int               // last scan RSSI per address
}

// NewTinyGoAdapter creates a BLE adapter backed by the platform default.
func NewTinyGoAdapter() *TinyGoAdapter {
	return &TinyGoAdapter{
		adapter:     bluetooth.DefaultAdapter,
		connections: make(map[string]*tinyGoConnection),
		scanRSSI:    make(map[string]int),
	}
}

func (a *TinyGoAdapter) Enable() error {
	if err := a.adapter.Enable(); err != nil {
		return err
	}

	// The stack fires this callback (connected=false) when a peripheral
	// drops, which is the only disconnect signal tinygo/bluetooth exposes.
	a.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		id := strings.ToLower(device.Address.String())
		a.mu.Lock()
		conn, ok := a.connections[id]
		a.mu.Unlock()
		if ok {
			conn.setConnected(connected)
		}
	})

	return nil
}

func (a *TinyGoAdapter) Scan(ctx context.Context, timeout time.Duration) ([]Advertisement, error) {
	var mu sync.Mutex
	var results []Advertisement
	seen := make(map[string]bool)

	hidUUID, err := bluetooth.ParseUUID(HIDServiceUUID)
	if err != nil {
		return nil, fmt.Errorf("ble: parse HID service UUID: %w", err)
	}

	scanCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		select {
		case <-scanCtx.Done():
			a.adapter.StopScan()
		case <-done:
		}
	}()

	err = a.adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
		address := result.Address.String()
		if address == "" {
			return
		}
		key := strings.ToLower(address)

		mu.Lock()
		defer mu.Unlock()
		if seen[key] {
			return
		}
		seen[key] = true

		adv := Advertisement{
			Address: address,
			Name:    result.LocalName(),
			RSSI:    int(result.RSSI),
		}
		// tinygo/bluetooth exposes membership checks rather than the full
		// advertised service list; the HID service is the only one the
		// classifier needs.
		if result.HasServiceUUID(hidUUID) {
			adv.ServiceUUIDs = []string{HIDServiceUUID}
		}
		results = append(results, adv)

		a.mu.Lock()
		a.scanRSSI[key] = int(result.RSSI)
		a.mu.Unlock()
	})
	close(done)

	if err != nil && scanCtx.Err() == nil {
		return nil, fmt.Errorf("ble: scan: %w", err)
	}
	return results, nil
}

func (a *TinyGoAdapter) Connect(ctx context.Context, address string, kind AddressKind) (Connection, error) {
	// The address kind is best-effort here: tinygo/bluetooth resolves the
	// address type from the advertisement on platforms that track it, so a
	// random-address retry re-dials the same parsed address.
	var addr bluetooth.Address
	addr.Set(address)

	// tinygo/bluetooth's Connect blocks internally with its own timeout.
	// Wrap it so our ctx deadline is also respected.
	type connectResult struct {
		device bluetooth.Device
		err    error
	}
	ch := make(chan connectResult, 1)
	go func() {
		device, err := a.adapter.Connect(addr, bluetooth.ConnectionParams{})
		ch <- connectResult{device, err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("ble: connect to %s: %w", address, ctx.Err())
	case result := <-ch:
		if result.err != nil {
			return nil, fmt.Errorf("ble: connect to %s: %w", address, result.err)
		}

		key := strings.ToLower(address)
		a.mu.Lock()
		rssi := a.scanRSSI[key]
		conn := &tinyGoConnection{device: &result.device, connected: true, rssi: rssi}
		a.connections[key] = conn
		a.mu.Unlock()

		return conn, nil
	}
}

// Compile-time check that TinyGoAdapter implements Adapter.
var _ Adapter = (*TinyGoAdapter)(nil)

type tinyGoConnection struct {
	device *bluetooth.Device

	mu        sync.Mutex
	connected bool
	rssi      int
}

func (c *tinyGoConnection) setConnected(connected bool) {
	c.mu.Lock()
	c.connected = connected
	c.mu.Unlock()
}

func (c *tinyGoConnection) Characteristic(serviceUUID, charUUID string) (Characteristic, error) {
	svcUUID, err := bluetooth.ParseUUID(serviceUUID)
	if err != nil {
		return nil, err
	}
	chrUUID, err := bluetooth.ParseUUID(charUUID)
	if err != nil {
		return nil, err
	}

	svcs, err := c.device.DiscoverServices([]bluetooth.UUID{svcUUID})
	if err != nil {
		return nil, fmt.Errorf("ble: discover services: %w", err)
	}
	if len(svcs) == 0 {
		return nil, fmt.Errorf("ble: service %s not found", serviceUUID)
	}

	chars, err := svcs[0].DiscoverCharacteristics([]bluetooth.UUID{chrUUID})
	if err != nil {
		return nil, fmt.Errorf("ble: discover characteristics: %w", err)
	}
	if len(chars) == 0 {
		return nil, fmt.Errorf("ble: characteristic %s not found", charUUID)
	}

	return &tinyGoCharacteristic{char: &chars[0]}, nil
}

func (c *tinyGoConnection) Disconnect() error {
	c.setConnected(false)
	return c.device.Disconnect()
}

func (c *tinyGoConnection) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *tinyGoConnection) RSSI() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rssi
}

type tinyGoCharacteristic struct {
	char *bluetooth.DeviceCharacteristic
}

// tinygo/bluetooth does not expose characteristic property flags, and its
// EnableNotifications handles the notify/indicate distinction internally.
func (c *tinyGoCharacteristic) CanNotify() bool   { return true }
func (c *tinyGoCharacteristic) CanIndicate() bool { return false }

func (c *tinyGoCharacteristic) Subscribe(notify bool, callback func(data []byte)) error {
	return c.char.EnableNotifications(func(buf []byte) {
		callback(buf)
	})
}
