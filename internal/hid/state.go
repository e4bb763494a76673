package hid

import "sync"

// MaxBufferBytes bounds the accumulated text. When exceeded, the oldest
// bytes are trimmed from the front.
const MaxBufferBytes = 256

// InputState accumulates decoded text across reports and tracks the previous
// report's key codes for rollover edge detection. Reports arrive on the BLE
// stack's notification goroutine while Text/Clear run on the caller's tick
// loop, so all state is mutex-guarded.
type InputState struct {
	mu       sync.Mutex
	buf      []byte
	lastKeys [6]byte
}

// HandleReport decodes one raw notification. Reports shorter than 8 bytes
// are ignored; longer ones are assumed to carry a report-id prefix and only
// the trailing 8 bytes are used.
func (s *InputState) HandleReport(report []byte) {
	if len(report) < reportLen {
		return
	}
	report = report[len(report)-reportLen:]

	shift := report[0]&shiftMask != 0

	var current [6]byte
	copy(current[:], report[2:reportLen])

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, code := range current {
		if code == 0 {
			continue
		}
		// Held keys repeat across polling intervals; only a key absent
		// from the previous report is a fresh press.
		if containsKey(s.lastKeys, code) {
			continue
		}

		if code == keyBackspace {
			if len(s.buf) > 0 {
				s.buf = s.buf[:len(s.buf)-1]
			}
			continue
		}

		if c, ok := Translate(code, shift); ok {
			s.buf = append(s.buf, c)
		}
	}

	s.lastKeys = current

	if len(s.buf) > MaxBufferBytes {
		s.buf = s.buf[len(s.buf)-MaxBufferBytes:]
	}
}

// Text returns the accumulated input.
func (s *InputState) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return string(s.buf)
}

// Reset clears the buffer and the rollover snapshot. Called when a session
// reconnects or the user clears the capture.
func (s *InputState) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf = s.buf[:0]
	s.lastKeys = [6]byte{}
}

func containsKey(keys [6]byte, code byte) bool {
	for _, k := range keys {
		if k == code {
			return true
		}
	}
	return false
}
