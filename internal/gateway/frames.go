package gateway

import "encoding/json"

// The wire protocol is JSON text frames with a method/event discriminator.
// Requests carry a correlation id; responses echo it with ok/error; events
// are uncorrelated pushes. All frames are built and parsed here so field
// names and correlation handling live in one place.

type frameError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// outFrame is an outbound request or event.
type outFrame struct {
	Method  string         `json:"method,omitempty"`
	Event   string         `json:"event,omitempty"`
	ID      string         `json:"id,omitempty"`
	Params  map[string]any `json:"params,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`
}

// inFrame is a decoded inbound frame. Exactly one of Method/Event/ID
// identifies its kind: an id without a method is a response.
type inFrame struct {
	Method  string          `json:"method,omitempty"`
	Event   string          `json:"event,omitempty"`
	ID      string          `json:"id,omitempty"`
	OK      *bool           `json:"ok,omitempty"`
	Error   *frameError     `json:"error,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func (f *inFrame) isResponse() bool {
	return f.ID != "" && f.Method == "" && f.Event == ""
}

// accepted reports whether a response frame indicates success. A missing ok
// field with no error object counts as success.
func (f *inFrame) accepted() bool {
	if f.OK != nil {
		return *f.OK
	}
	return f.Error == nil
}

func (f *inFrame) errorMessage() string {
	if f.Error == nil {
		return ""
	}
	if f.Error.Message != "" {
		return f.Error.Message
	}
	return f.Error.Code
}

func encodeFrame(f outFrame) ([]byte, error) {
	return json.Marshal(f)
}

// decodeFrame parses one inbound frame. Malformed frames return false and
// are dropped by the caller.
func decodeFrame(data []byte) (*inFrame, bool) {
	var f inFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, false
	}
	if f.Method == "" && f.Event == "" && f.ID == "" {
		return nil, false
	}
	return &f, true
}

// decodePayload parses an event payload into a generic object for field
// normalization. A nil or malformed payload yields an empty map.
func decodePayload(raw json.RawMessage) map[string]any {
	out := make(map[string]any)
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &out)
	}
	return out
}

// payloadString returns the first present non-empty string among the given
// keys. Gateways differ on field naming, so each attribute tolerates a few
// aliases.
func payloadString(payload map[string]any, keys ...string) string {
	for _, key := range keys {
		if v, ok := payload[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// payloadUint returns the first present numeric value among the given keys.
func payloadUint(payload map[string]any, keys ...string) uint64 {
	for _, key := range keys {
		if v, ok := payload[key].(float64); ok && v > 0 {
			return uint64(v)
		}
	}
	return 0
}
