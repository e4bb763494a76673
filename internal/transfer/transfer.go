// Package transfer sends text and chunked voice messages over a gateway
// connection and reassembles inbound voice transfers.
package transfer

import (
	"encoding/base64"
	"fmt"
	"path"
	"strings"
	"sync/atomic"
	"time"
)

const (
	// ChunkBytes is the raw payload size per voice chunk before encoding.
	ChunkBytes = 360
	// MaxVoiceBytes caps a single voice transfer at 256 KiB.
	MaxVoiceBytes = 262144
)

// Sender delivers one named node event. gateway.Client satisfies it.
type Sender interface {
	SendNodeEvent(name string, payload map[string]any) bool
}

// VoiceMessage describes one outbound voice transfer.
type VoiceMessage struct {
	From        string
	To          string
	FileName    string
	ContentType string
	Caption     string
	Data        []byte
}

var messageSeq atomic.Uint32

// makeMessageID builds a locally unique id like "voice-1712345678901-3".
func makeMessageID(prefix string) string {
	return fmt.Sprintf("%s-%d-%d", prefix, time.Now().UnixMilli(), messageSeq.Add(1))
}

// SendText sends a single msg.text event. The recipient is optional.
func SendText(s Sender, from, to, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("transfer: message text is empty")
	}

	payload := map[string]any{
		"id":   makeMessageID("txt"),
		"from": from,
		"type": "text",
		"text": text,
		"ts":   uint64(time.Now().UnixMilli()),
	}
	if to != "" {
		payload["to"] = to
	}
	if !s.SendNodeEvent("msg.text", payload) {
		return fmt.Errorf("transfer: text send failed")
	}
	return nil
}

// SendVoice sends a voice payload as one msg.voice.meta event followed by
// base64 msg.voice.chunk events in strict 1..N order. tick, when non-nil,
// runs after every chunk so the caller can service other work during a long
// transfer. A failure before chunk 1 leaves the receiver with no partial
// state; a failure mid-stream is reported as incomplete.
func SendVoice(s Sender, m VoiceMessage, tick func()) error {
	size := len(m.Data)
	if size == 0 {
		return fmt.Errorf("transfer: voice payload is empty")
	}
	if size > MaxVoiceBytes {
		return fmt.Errorf("transfer: voice payload is %d bytes, max %d", size, MaxVoiceBytes)
	}

	contentType := m.ContentType
	if contentType == "" {
		contentType = DetectAudioMIME(m.FileName)
	}
	totalChunks := (size + ChunkBytes - 1) / ChunkBytes
	messageID := makeMessageID("voice")

	meta := map[string]any{
		"id":          messageID,
		"from":        m.From,
		"type":        "voice",
		"fileName":    path.Base(m.FileName),
		"contentType": contentType,
		"size":        uint32(size),
		"chunks":      totalChunks,
		"ts":          uint64(time.Now().UnixMilli()),
	}
	if m.To != "" {
		meta["to"] = m.To
	}
	if m.Caption != "" {
		meta["text"] = m.Caption
	}
	if !s.SendNodeEvent("msg.voice.meta", meta) {
		return fmt.Errorf("transfer: voice send failed before starting")
	}

	for seq := 1; seq <= totalChunks; seq++ {
		start := (seq - 1) * ChunkBytes
		end := start + ChunkBytes
		if end > size {
			end = size
		}

		chunk := map[string]any{
			"id":     messageID,
			"from":   m.From,
			"seq":    seq,
			"chunks": totalChunks,
			"last":   seq == totalChunks,
			"data":   base64.StdEncoding.EncodeToString(m.Data[start:end]),
			"ts":     uint64(time.Now().UnixMilli()),
		}
		if m.To != "" {
			chunk["to"] = m.To
		}
		if !s.SendNodeEvent("msg.voice.chunk", chunk) {
			return fmt.Errorf("transfer: voice send incomplete, chunk %d of %d rejected", seq, totalChunks)
		}
		if tick != nil {
			tick()
		}
	}
	return nil
}

// DetectAudioMIME maps an audio file extension to its MIME type, falling
// back to application/octet-stream.
func DetectAudioMIME(filePath string) string {
	switch strings.ToLower(path.Ext(filePath)) {
	case ".wav":
		return "audio/wav"
	case ".mp3":
		return "audio/mpeg"
	case ".m4a":
		return "audio/mp4"
	case ".aac":
		return "audio/aac"
	case ".opus":
		return "audio/opus"
	case ".ogg":
		return "audio/ogg"
	default:
		return "application/octet-stream"
	}
}
