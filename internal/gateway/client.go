// Package gateway implements the persistent client protocol to the remote
// gateway: an authenticated connect handshake with nonce signing, request
// correlation, inbound event dispatch into a bounded inbox, and a
// retry-timer reconnect policy driven by a cooperative tick.
package gateway

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kvasirlabs/handlink/internal/config"
)

const (
	// reconnectInterval gates transport-open attempts: at most one per
	// interval, whether triggered by Tick or by an explicit reconnect.
	reconnectInterval = 5 * time.Second

	// handshakeTimeout bounds the wait for the connect response before the
	// in-flight guard is cleared and a fresh attempt is permitted.
	handshakeTimeout = 10 * time.Second

	// telemetryInterval is the period of the injected telemetry builder.
	telemetryInterval = 30 * time.Second
)

// Inbound event names the client recognizes.
const (
	eventText       = "msg.text"
	eventVoiceMeta  = "msg.voice.meta"
	eventVoiceChunk = "msg.voice.chunk"
	eventInvoke     = "invoke.request"
)

// Status is a snapshot of the gateway session.
type Status struct {
	ShouldConnect      bool
	WSConnected        bool
	GatewayReady       bool
	LastError          string
	LastConnectAttempt time.Time
	LastConnectOK      time.Time
	TLSFailStreak      int
}

// InvokeHandler receives remote invoke requests pushed by the gateway.
type InvokeHandler func(invokeID, nodeID, command string, params map[string]any)

// TelemetryBuilder appends caller-defined fields to the periodic telemetry
// event. Injected; the client owns only the schedule.
type TelemetryBuilder func(payload map[string]any)

// ChunkHandler receives inbound voice chunk events for reassembly.
type ChunkHandler func(payload map[string]any)

// Client maintains the session to one gateway over an injected transport.
// Transport callbacks may fire on the transport's I/O goroutine while Tick
// runs on the main loop, so all session state is mutex-guarded.
type Client struct {
	transport Transport
	now       func() time.Time

	mu  sync.Mutex
	cfg config.GatewayConfig

	initialized   bool
	shouldConnect bool
	wsStarted     bool
	wsConnected   bool
	gatewayReady  bool

	connectRequestID string
	reqCounter       uint32
	lastError        string

	lastConnectAttempt time.Time
	lastConnectOK      time.Time
	lastTelemetry      time.Time

	connectNonce           string
	connectChallengeMs     int64
	connectSent            bool
	connectSentAt          time.Time
	connectUsedDeviceToken bool
	connectCanFallback     bool
	tlsFailStreak          int

	invokeHandler    InvokeHandler
	telemetryBuilder TelemetryBuilder
	chunkHandler     ChunkHandler

	inbox Inbox
}

// NewClient creates a gateway client over the given transport.
func NewClient(transport Transport) *Client {
	return &Client{
		transport: transport,
		now:       time.Now,
	}
}

// Begin registers the transport callbacks. Safe to call more than once.
func (c *Client) Begin() {
	c.mu.Lock()
	if c.initialized {
		c.mu.Unlock()
		return
	}
	c.initialized = true
	c.mu.Unlock()

	c.transport.SetHandlers(Handlers{
		OnOpen:    c.handleOpen,
		OnClose:   c.handleClose,
		OnMessage: c.handleMessage,
	})
}

// SetInvokeHandler registers the remote invoke callback.
func (c *Client) SetInvokeHandler(h InvokeHandler) {
	c.mu.Lock()
	c.invokeHandler = h
	c.mu.Unlock()
}

// SetTelemetryBuilder registers the periodic telemetry hook.
func (c *Client) SetTelemetryBuilder(b TelemetryBuilder) {
	c.mu.Lock()
	c.telemetryBuilder = b
	c.mu.Unlock()
}

// SetChunkHandler registers the inbound voice chunk callback.
func (c *Client) SetChunkHandler(h ChunkHandler) {
	c.mu.Lock()
	c.chunkHandler = h
	c.mu.Unlock()
}

// Configure swaps endpoint and credentials. It never reconnects on its own:
// the caller decides whether the new config warrants ConnectNow or
// DisconnectNow.
func (c *Client) Configure(cfg config.GatewayConfig) {
	c.mu.Lock()
	c.cfg = cfg
	c.mu.Unlock()
}

// ConnectNow marks the session as wanted and attempts a transport open,
// subject to the reconnect interval.
func (c *Client) ConnectNow() {
	c.Begin()

	c.mu.Lock()
	c.shouldConnect = true
	c.mu.Unlock()

	c.tryOpen()
}

// DisconnectNow closes the transport and clears the connection intent.
func (c *Client) DisconnectNow() {
	c.mu.Lock()
	c.shouldConnect = false
	c.wsStarted = false
	c.wsConnected = false
	c.gatewayReady = false
	c.connectSent = false
	c.connectRequestID = ""
	c.mu.Unlock()

	_ = c.transport.Close()
}

// ReconnectNow closes any current transport and re-arms the connect intent.
// The actual open attempt is still gated by the reconnect interval, so two
// calls within one window produce a single attempt.
func (c *Client) ReconnectNow() {
	c.mu.Lock()
	wasConnected := c.wsConnected || c.wsStarted
	c.wsStarted = false
	c.wsConnected = false
	c.gatewayReady = false
	c.connectSent = false
	c.connectRequestID = ""
	c.shouldConnect = true
	c.mu.Unlock()

	if wasConnected {
		_ = c.transport.Close()
	}

	c.Begin()
	c.tryOpen()
}

// Tick drives the retry timer, the handshake timeout, and the telemetry
// period. Call periodically from the main loop.
func (c *Client) Tick() {
	now := c.now()

	c.mu.Lock()
	retry := c.shouldConnect && !c.wsStarted &&
		now.Sub(c.lastConnectAttempt) >= reconnectInterval
	handshakeTimedOut := c.connectSent && !c.gatewayReady &&
		now.Sub(c.connectSentAt) >= handshakeTimeout
	if handshakeTimedOut {
		// The link is half-open: the gateway accepted the socket but never
		// answered. Drop it so the retry timer can dial fresh.
		c.connectSent = false
		c.connectRequestID = ""
		c.wsStarted = false
		c.wsConnected = false
		c.lastError = "Gateway handshake timed out"
	}
	telemetryDue := c.gatewayReady && c.telemetryBuilder != nil &&
		now.Sub(c.lastTelemetry) >= telemetryInterval
	if telemetryDue {
		c.lastTelemetry = now
	}
	c.mu.Unlock()

	if handshakeTimedOut {
		slog.Warn("[GW] handshake timed out")
		_ = c.transport.Close()
	}
	if retry {
		c.tryOpen()
	}
	if telemetryDue {
		c.sendTelemetry()
	}
}

// IsReady reports whether the handshake has completed.
func (c *Client) IsReady() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gatewayReady
}

// LastError returns the last recorded error string.
func (c *Client) LastError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastError
}

// Status returns a snapshot of the session.
func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		ShouldConnect:      c.shouldConnect,
		WSConnected:        c.wsConnected,
		GatewayReady:       c.gatewayReady,
		LastError:          c.lastError,
		LastConnectAttempt: c.lastConnectAttempt,
		LastConnectOK:      c.lastConnectOK,
		TLSFailStreak:      c.tlsFailStreak,
	}
}

// SendNodeEvent pushes one named event with the given payload. Fails fast
// when the transport is not open.
func (c *Client) SendNodeEvent(name string, payload map[string]any) bool {
	c.mu.Lock()
	open := c.wsConnected
	c.mu.Unlock()
	if !open {
		return false
	}

	data, err := encodeFrame(outFrame{Event: name, Payload: payload})
	if err != nil {
		return false
	}
	if err := c.transport.Send(data); err != nil {
		c.setError("Gateway send failed")
		return false
	}
	return true
}

// SendInvokeOK reports a successful remote invoke.
func (c *Client) SendInvokeOK(invokeID, nodeID string, payload map[string]any) bool {
	return c.SendNodeEvent("invoke.result", map[string]any{
		"invokeId": invokeID,
		"nodeId":   nodeID,
		"ok":       true,
		"payload":  payload,
	})
}

// SendInvokeError reports a failed remote invoke.
func (c *Client) SendInvokeError(invokeID, nodeID, code, message string) bool {
	return c.SendNodeEvent("invoke.result", map[string]any{
		"invokeId": invokeID,
		"nodeId":   nodeID,
		"ok":       false,
		"error":    map[string]any{"code": code, "message": message},
	})
}

// InboxCount returns the number of messages in the inbox.
func (c *Client) InboxCount() int { return c.inbox.Count() }

// InboxMessage returns the message at logical index i (0 = oldest).
func (c *Client) InboxMessage(i int) (InboxMessage, bool) { return c.inbox.Get(i) }

// ClearInbox empties the inbox.
func (c *Client) ClearInbox() { c.inbox.Clear() }

// tryOpen attempts a transport open when the retry window permits one.
func (c *Client) tryOpen() {
	now := c.now()

	c.mu.Lock()
	if !c.shouldConnect || c.wsStarted ||
		now.Sub(c.lastConnectAttempt) < reconnectInterval {
		c.mu.Unlock()
		return
	}
	if !c.cfg.HasCredentials() {
		c.lastError = "Gateway credentials are not configured"
		c.mu.Unlock()
		return
	}

	ep, err := ParseEndpoint(c.cfg.URL)
	if err != nil {
		c.lastError = "Gateway URL is invalid"
		c.mu.Unlock()
		return
	}

	c.lastConnectAttempt = now
	c.wsStarted = true
	c.mu.Unlock()

	if err := c.transport.Open(ep); err != nil {
		c.mu.Lock()
		c.wsStarted = false
		c.lastError = "Gateway connect failed"
		if IsTLSError(err) {
			c.tlsFailStreak++
		}
		c.mu.Unlock()
		slog.Warn("[GW] transport open failed", "error", err)
	}
}

func (c *Client) handleOpen() {
	c.mu.Lock()
	c.wsConnected = true
	c.tlsFailStreak = 0
	c.lastConnectOK = c.now()
	c.mu.Unlock()

	slog.Info("[GW] transport connected")
	c.sendConnectRequest(true)
}

func (c *Client) handleClose(err error) {
	c.mu.Lock()
	wasReady := c.gatewayReady
	c.wsConnected = false
	c.wsStarted = false
	c.gatewayReady = false
	c.connectSent = false
	c.connectRequestID = ""
	if err != nil {
		if c.lastError == "" {
			c.lastError = "Gateway connection closed"
		}
		if IsTLSError(err) {
			c.tlsFailStreak++
		}
	}
	c.mu.Unlock()

	if wasReady {
		slog.Warn("[GW] connection lost", "error", err)
	}
}

// sendConnectRequest issues the handshake. Device-token auth is preferred
// when a device identity exists; useDeviceToken selects that first attempt
// versus the shared-credential fallback. The connectSent guard keeps a
// single handshake in flight.
func (c *Client) sendConnectRequest(useDeviceToken bool) {
	c.mu.Lock()
	if c.connectSent || !c.wsConnected {
		c.mu.Unlock()
		return
	}
	cfg := c.cfg
	c.mu.Unlock()

	nonce, err := newNonce()
	if err != nil {
		c.setError("Gateway nonce generation failed")
		return
	}
	signedAt := c.now().UnixMilli()

	params := map[string]any{
		"nonce": nonce,
		"ts":    signedAt,
	}

	usedDevice := false
	canFallback := false
	if useDeviceToken && cfg.HasDeviceIdentity() {
		sig, err := signConnectPayload(cfg.DeviceID, cfg.DeviceToken, nonce, signedAt)
		if err != nil {
			c.setError("Gateway auth signature failed")
			return
		}
		params["auth"] = map[string]any{"mode": "device-token"}
		params["device"] = map[string]any{
			"id":        cfg.DeviceID,
			"signedAt":  signedAt,
			"signature": sig,
		}
		usedDevice = true
		canFallback = hasSharedCredential(cfg)
	} else {
		auth := map[string]any{"mode": cfg.AuthMode}
		if cfg.AuthMode == config.AuthModePassword {
			auth["password"] = cfg.Password
		} else {
			auth["token"] = cfg.Token
		}
		params["auth"] = auth
	}

	c.mu.Lock()
	c.reqCounter++
	id := fmt.Sprintf("connect-%d", c.reqCounter)
	c.connectRequestID = id
	c.connectNonce = nonce
	c.connectChallengeMs = signedAt
	c.connectSent = true
	c.connectSentAt = c.now()
	c.connectUsedDeviceToken = usedDevice
	c.connectCanFallback = canFallback
	c.mu.Unlock()

	data, err := encodeFrame(outFrame{Method: "connect", ID: id, Params: params})
	if err != nil {
		c.clearConnectGuard()
		return
	}
	if err := c.transport.Send(data); err != nil {
		c.clearConnectGuard()
		c.setError("Gateway handshake send failed")
		return
	}

	slog.Info("[GW] handshake sent", "id", id, "deviceAuth", usedDevice)
}

func (c *Client) clearConnectGuard() {
	c.mu.Lock()
	c.connectSent = false
	c.connectRequestID = ""
	c.mu.Unlock()
}

func (c *Client) handleMessage(data []byte) {
	f, ok := decodeFrame(data)
	if !ok {
		// Malformed frames are dropped, never fatal.
		return
	}

	switch {
	case f.isResponse():
		c.handleResponse(f)
	case f.Event != "":
		c.handleEvent(f)
	}
}

func (c *Client) handleResponse(f *inFrame) {
	c.mu.Lock()
	isConnect := f.ID == c.connectRequestID && c.connectRequestID != ""
	usedDevice := c.connectUsedDeviceToken
	canFallback := c.connectCanFallback
	c.mu.Unlock()

	if !isConnect {
		// Unmatched or late response.
		return
	}

	if f.accepted() {
		c.mu.Lock()
		c.gatewayReady = true
		c.connectSent = false
		c.connectRequestID = ""
		c.lastError = ""
		// First telemetry goes out one full period after readiness.
		c.lastTelemetry = c.now()
		c.mu.Unlock()
		slog.Info("[GW] gateway ready")
		return
	}

	c.clearConnectGuard()

	// Device-token auth rejected: fall back to the shared credential once,
	// when one is configured.
	if usedDevice && canFallback {
		slog.Warn("[GW] device token rejected, retrying with shared credential")
		c.sendConnectRequest(false)
		return
	}

	msg := f.errorMessage()
	if msg == "" {
		msg = "Gateway rejected connect"
	}
	c.setError(msg)
}

func (c *Client) handleEvent(f *inFrame) {
	payload := decodePayload(f.Payload)

	switch f.Event {
	case eventText, eventVoiceMeta:
		c.inbox.Push(normalizeMessage(f.Event, payload))
	case eventVoiceChunk:
		c.mu.Lock()
		h := c.chunkHandler
		c.mu.Unlock()
		if h != nil {
			h(payload)
		}
	case eventInvoke:
		c.mu.Lock()
		h := c.invokeHandler
		c.mu.Unlock()
		if h != nil {
			var params map[string]any
			if p, ok := payload["params"].(map[string]any); ok {
				params = p
			}
			h(payloadString(payload, "invokeId", "id"),
				payloadString(payload, "nodeId", "node"),
				payloadString(payload, "command", "cmd"),
				params)
		}
	default:
		// Unrecognized events are ignored without error.
	}
}

// normalizeMessage maps an event payload onto the inbox schema, tolerating
// the field-name variants gateways emit.
func normalizeMessage(event string, payload map[string]any) InboxMessage {
	msgType := payloadString(payload, "type")
	if msgType == "" {
		if event == eventVoiceMeta {
			msgType = "voice"
		} else {
			msgType = "text"
		}
	}

	return InboxMessage{
		ID:          payloadString(payload, "id", "messageId"),
		Event:       event,
		Type:        msgType,
		From:        payloadString(payload, "from", "sender"),
		To:          payloadString(payload, "to", "target"),
		Text:        payloadString(payload, "text", "message", "body"),
		FileName:    payloadString(payload, "fileName", "filename", "name"),
		ContentType: payloadString(payload, "contentType", "mime"),
		VoiceBytes:  uint32(payloadUint(payload, "size", "bytes")),
		TimestampMs: payloadUint(payload, "ts", "timestamp"),
	}
}

func (c *Client) sendTelemetry() {
	c.mu.Lock()
	builder := c.telemetryBuilder
	c.mu.Unlock()
	if builder == nil {
		return
	}

	payload := map[string]any{"ts": c.now().UnixMilli()}
	builder(payload)
	c.SendNodeEvent("node.telemetry", payload)
}

func (c *Client) setError(message string) {
	c.mu.Lock()
	c.lastError = message
	c.mu.Unlock()
}

func hasSharedCredential(cfg config.GatewayConfig) bool {
	if cfg.AuthMode == config.AuthModePassword {
		return cfg.Password != ""
	}
	return cfg.Token != ""
}
