// Package ble manages the link session to one BLE peer: scanning and
// classifying nearby devices, connecting with public/random address fallback,
// subscribing to HID keyboard input reports, and monitoring liveness.
package ble

import (
	"context"
	"time"
)

// Standard Bluetooth SIG UUIDs and appearance values for HID devices.
const (
	HIDServiceUUID        = "00001812-0000-1000-8000-00805f9b34fb"
	BootKeyboardInputUUID = "00002a22-0000-1000-8000-00805f9b34fb"
	HIDReportUUID         = "00002a4d-0000-1000-8000-00805f9b34fb"

	AppearanceGenericHID uint16 = 0x03c0
	AppearanceKeyboard   uint16 = 0x03c1
)

// AddressKind selects the BLE address type for a connection attempt.
type AddressKind int

const (
	AddressPublic AddressKind = iota
	AddressRandom
)

// Advertisement is one scan result.
type Advertisement struct {
	Address      string
	Name         string
	RSSI         int
	ServiceUUIDs []string
	Appearance   uint16
}

// Characteristic represents a BLE GATT characteristic.
type Characteristic interface {
	// CanNotify reports whether the characteristic supports notifications.
	CanNotify() bool
	// CanIndicate reports whether the characteristic supports indications.
	CanIndicate() bool
	// Subscribe registers a callback for value updates. notify selects
	// notifications over indications. The callback may be invoked from the
	// adapter's own delivery context.
	Subscribe(notify bool, callback func(data []byte)) error
}

// Connection represents an active BLE connection to a peripheral.
type Connection interface {
	// Characteristic finds a characteristic by UUID within a service.
	Characteristic(serviceUUID, charUUID string) (Characteristic, error)
	// Disconnect terminates the connection.
	Disconnect() error
	// IsConnected reports the transport-level link state.
	IsConnected() bool
	// RSSI returns the last known signal strength for the peer.
	RSSI() int
}

// Adapter abstracts the BLE hardware adapter for testing.
type Adapter interface {
	// Enable powers on the BLE adapter.
	Enable() error
	// Scan discovers advertising peripherals for up to timeout.
	Scan(ctx context.Context, timeout time.Duration) ([]Advertisement, error)
	// Connect establishes a connection using the given address kind.
	Connect(ctx context.Context, address string, kind AddressKind) (Connection, error)
}
