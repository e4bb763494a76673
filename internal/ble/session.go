package ble

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kvasirlabs/handlink/internal/config"
	"github.com/kvasirlabs/handlink/internal/hid"
)

const (
	defaultScanTimeout    = 5 * time.Second
	defaultConnectTimeout = 5 * time.Second
)

// Status is a snapshot of the link session for the UI.
type Status struct {
	Connected     bool
	DeviceName    string
	DeviceAddress string
	RSSI          int
	Profile       string
	HIDDevice     bool
	HIDKeyboard   bool
	LikelyAudio   bool
	KeyboardText  string
	PairingHint   string
	LastError     string
}

// Session tracks a single logical connection to one BLE peer. It owns the
// transport handle exclusively: starting a new connection attempt always
// tears down the previous one first.
type Session struct {
	adapter Adapter

	mu          sync.Mutex
	initialized bool
	cfg         config.BLEConfig

	conn             Connection
	connected        bool
	connectedAddress string
	connectedName    string
	connectedRSSI    int

	profile     string
	isHID       bool
	isKeyboard  bool
	likelyAudio bool
	pairingHint string
	lastError   string

	keyboard hid.InputState

	scanTimeout    time.Duration
	connectTimeout time.Duration
}

// NewSession creates a link session using the given adapter.
func NewSession(adapter Adapter) *Session {
	return &Session{
		adapter:        adapter,
		scanTimeout:    defaultScanTimeout,
		connectTimeout: defaultConnectTimeout,
	}
}

// Begin performs lazy adapter initialization. Safe to call more than once.
func (s *Session) Begin() error {
	return s.ensureInitialized()
}

// Configure swaps the saved peer. Changing the saved address while connected
// to a different peer tears the current session down.
func (s *Session) Configure(cfg config.BLEConfig) {
	s.mu.Lock()
	prevSaved := s.cfg.DeviceAddress
	s.cfg = cfg
	disconnect := s.connected &&
		!strings.EqualFold(prevSaved, cfg.DeviceAddress) &&
		!strings.EqualFold(s.connectedAddress, cfg.DeviceAddress)
	s.mu.Unlock()

	if disconnect {
		s.DisconnectNow()
	}
}

// ScanDevices discovers nearby peers, deduplicated by address, classified,
// and sorted by signal strength descending (name ascending on ties). An
// empty result returns an error but is recoverable.
func (s *Session) ScanDevices() ([]DeviceInfo, error) {
	if err := s.ensureInitialized(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.scanTimeout)
	defer cancel()

	advs, err := s.adapter.Scan(ctx, s.scanTimeout)
	if err != nil {
		s.setError("BLE scan failed")
		return nil, fmt.Errorf("ble: scan: %w", err)
	}

	var devices []DeviceInfo
	seen := make(map[string]bool)
	for _, adv := range advs {
		if adv.Address == "" {
			continue
		}
		key := strings.ToLower(adv.Address)
		if seen[key] {
			continue
		}
		seen[key] = true
		devices = append(devices, classify(adv))
	}

	sort.Slice(devices, func(i, j int) bool {
		if devices[i].RSSI == devices[j].RSSI {
			return devices[i].Name < devices[j].Name
		}
		return devices[i].RSSI > devices[j].RSSI
	})

	if len(devices) == 0 {
		s.setError("No BLE devices found")
		return nil, fmt.Errorf("ble: no BLE devices found")
	}

	s.setError("")
	return devices, nil
}

// ConnectToDevice connects to the given peer, tearing down any existing
// session first. A public-address attempt falls back to a random-address
// attempt. On success the connected profile is analyzed; a missing HID
// service is not an error.
func (s *Session) ConnectToDevice(address, name string) error {
	if err := s.ensureInitialized(); err != nil {
		return err
	}

	if address == "" {
		s.setError("BLE address is empty")
		return fmt.Errorf("ble: address is empty")
	}

	s.DisconnectNow()

	conn, err := s.connectWithTimeout(address, AddressPublic)
	if err != nil {
		// The public attempt may have run its deadline out entirely, so
		// the fallback gets a fresh one.
		conn, err = s.connectWithTimeout(address, AddressRandom)
	}
	if err != nil {
		s.setError("BLE connect failed")
		return fmt.Errorf("ble: connect to %s: %w", address, err)
	}

	s.mu.Lock()
	s.conn = conn
	s.connected = true
	s.connectedAddress = address
	s.connectedName = name
	if s.connectedName == "" {
		s.connectedName = address
	}
	s.connectedRSSI = conn.RSSI()
	s.mu.Unlock()

	s.analyzeConnectedProfile(conn)

	s.mu.Lock()
	switch {
	case s.isKeyboard:
		s.lastError = "BLE keyboard connected"
	case s.likelyAudio:
		s.pairingHint = "Audio streaming is unsupported on this BLE stack"
		s.lastError = "Connected, but audio stream profile is unsupported"
	case s.isHID:
		s.lastError = "HID device connected"
	default:
		s.lastError = ""
	}
	s.mu.Unlock()

	slog.Info("[BLE] connected", "address", address, "profile", s.Status().Profile)
	return nil
}

// DisconnectNow tears down the current session. Idempotent.
func (s *Session) DisconnectNow() {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.connected = false
	s.connectedRSSI = 0
	s.connectedName = ""
	s.connectedAddress = ""
	s.resetSessionStateLocked()
	s.mu.Unlock()

	if conn != nil && conn.IsConnected() {
		_ = conn.Disconnect()
	}
}

// Tick detects asynchronous transport-level disconnection and refreshes the
// signal strength. Call periodically from the main loop.
func (s *Session) Tick() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return
	}

	if !s.conn.IsConnected() {
		if s.connected {
			s.connected = false
			s.connectedRSSI = 0
			s.resetSessionStateLocked()
			if s.lastError == "" {
				s.lastError = "BLE device disconnected"
			}
			slog.Warn("[BLE] device disconnected")
		}
		return
	}

	s.connected = true
	s.connectedRSSI = s.conn.RSSI()
}

// IsConnected reports the session state.
func (s *Session) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// LastError returns the last recorded error or status line.
func (s *Session) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastError
}

// Status returns a snapshot of the session.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		Connected:     s.connected,
		DeviceName:    s.cfg.DeviceName,
		DeviceAddress: s.cfg.DeviceAddress,
		RSSI:          s.connectedRSSI,
		Profile:       s.profile,
		HIDDevice:     s.isHID,
		HIDKeyboard:   s.isKeyboard,
		LikelyAudio:   s.likelyAudio,
		KeyboardText:  s.keyboard.Text(),
		PairingHint:   s.pairingHint,
		LastError:     s.lastError,
	}
	if s.connected {
		st.DeviceName = s.connectedName
		st.DeviceAddress = s.connectedAddress
	}
	return st
}

// ClearKeyboardInput discards the accumulated keyboard text.
func (s *Session) ClearKeyboardInput() {
	s.keyboard.Reset()
}

// KeyboardInputText returns the accumulated keyboard text.
func (s *Session) KeyboardInputText() string {
	return s.keyboard.Text()
}

func (s *Session) connectWithTimeout(address string, kind AddressKind) (Connection, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.connectTimeout)
	defer cancel()
	return s.adapter.Connect(ctx, address, kind)
}

func (s *Session) ensureInitialized() error {
	s.mu.Lock()
	if s.initialized {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	if err := s.adapter.Enable(); err != nil {
		s.setError("Failed to initialize BLE adapter")
		return fmt.Errorf("ble: enable adapter: %w", err)
	}

	s.mu.Lock()
	s.initialized = true
	s.mu.Unlock()
	return nil
}

// analyzeConnectedProfile inspects the connected peer for the HID service
// and subscribes to keyboard input reports when available.
func (s *Session) analyzeConnectedProfile(conn Connection) {
	s.mu.Lock()
	s.resetSessionStateLocked()
	s.likelyAudio = likelyAudioName(s.connectedName)
	s.profile = profileLabel(false, false, s.likelyAudio)
	s.mu.Unlock()

	if !conn.IsConnected() {
		return
	}

	// Probing for the HID service doubles as the service lookup: a peer
	// without it stays connected with the generic profile.
	if _, err := conn.Characteristic(HIDServiceUUID, BootKeyboardInputUUID); err != nil {
		if _, err := conn.Characteristic(HIDServiceUUID, HIDReportUUID); err != nil {
			return
		}
	}

	keyboard := s.subscribeKeyboardInput(conn)

	s.mu.Lock()
	s.isHID = true
	s.isKeyboard = keyboard
	s.profile = profileLabel(true, keyboard, s.likelyAudio)
	if !keyboard && s.pairingHint == "" {
		s.pairingHint = "HID connected but no keyboard input report found"
	}
	s.mu.Unlock()
}

// subscribeKeyboardInput subscribes to the boot keyboard input report,
// falling back to the generic HID report, preferring notify over indicate.
func (s *Session) subscribeKeyboardInput(conn Connection) bool {
	for _, uuid := range []string{BootKeyboardInputUUID, HIDReportUUID} {
		chr, err := conn.Characteristic(HIDServiceUUID, uuid)
		if err != nil {
			continue
		}
		if !chr.CanNotify() && !chr.CanIndicate() {
			continue
		}

		useNotify := chr.CanNotify()
		if err := chr.Subscribe(useNotify, s.keyboard.HandleReport); err != nil {
			continue
		}

		s.keyboard.Reset()
		s.mu.Lock()
		s.pairingHint = ""
		s.mu.Unlock()
		return true
	}

	s.mu.Lock()
	s.pairingHint = "If pairing is requested, enter passkey 123456 on keyboard"
	s.mu.Unlock()
	return false
}

func (s *Session) setError(message string) {
	s.mu.Lock()
	s.lastError = message
	s.mu.Unlock()
}

// resetSessionStateLocked clears profile and keyboard state. Caller holds mu.
func (s *Session) resetSessionStateLocked() {
	s.profile = ""
	s.isHID = false
	s.isKeyboard = false
	s.likelyAudio = false
	s.pairingHint = ""
	s.keyboard.Reset()
}
