package transfer

import (
	"bytes"
	"encoding/base64"
	"strings"
	"testing"
)

type sentEvent struct {
	name    string
	payload map[string]any
}

// mockSender records node events and can reject the nth send (1-based).
type mockSender struct {
	sent   []sentEvent
	failAt int
}

func (m *mockSender) SendNodeEvent(name string, payload map[string]any) bool {
	m.sent = append(m.sent, sentEvent{name: name, payload: payload})
	return m.failAt == 0 || len(m.sent) != m.failAt
}

func TestSendText(t *testing.T) {
	s := &mockSender{}
	if err := SendText(s, "node-host", "peer-1", "  hello there  "); err != nil {
		t.Fatalf("SendText: %v", err)
	}
	if len(s.sent) != 1 {
		t.Fatalf("sent %d events, want 1", len(s.sent))
	}

	ev := s.sent[0]
	if ev.name != "msg.text" {
		t.Fatalf("event = %q, want msg.text", ev.name)
	}
	if ev.payload["text"] != "hello there" {
		t.Fatalf("text = %v, want trimmed input", ev.payload["text"])
	}
	if ev.payload["from"] != "node-host" || ev.payload["to"] != "peer-1" {
		t.Fatalf("addressing = %v/%v", ev.payload["from"], ev.payload["to"])
	}
	id, _ := ev.payload["id"].(string)
	if !strings.HasPrefix(id, "txt-") {
		t.Fatalf("id = %q, want txt- prefix", id)
	}
}

func TestSendTextEmpty(t *testing.T) {
	s := &mockSender{}
	if err := SendText(s, "node-host", "", "   "); err == nil {
		t.Fatal("blank text should fail")
	}
	if len(s.sent) != 0 {
		t.Fatalf("sent %d events, want 0", len(s.sent))
	}
}

func TestSendTextOmitsEmptyRecipient(t *testing.T) {
	s := &mockSender{}
	if err := SendText(s, "node-host", "", "hi"); err != nil {
		t.Fatalf("SendText: %v", err)
	}
	if _, ok := s.sent[0].payload["to"]; ok {
		t.Fatal("empty recipient should be omitted")
	}
}

func TestSendVoiceChunking(t *testing.T) {
	data := make([]byte, 1000)
	for i := range data {
		data[i] = byte(i)
	}

	s := &mockSender{}
	ticks := 0
	err := SendVoice(s, VoiceMessage{
		From:     "node-host",
		To:       "peer-1",
		FileName: "/rec/voice.wav",
		Caption:  "check this",
		Data:     data,
	}, func() { ticks++ })
	if err != nil {
		t.Fatalf("SendVoice: %v", err)
	}

	// 1000 bytes at 360 per chunk is one meta plus three chunks.
	if len(s.sent) != 4 {
		t.Fatalf("sent %d events, want 4", len(s.sent))
	}
	if ticks != 3 {
		t.Fatalf("ticks = %d, want one per chunk", ticks)
	}

	meta := s.sent[0]
	if meta.name != "msg.voice.meta" {
		t.Fatalf("first event = %q, want msg.voice.meta", meta.name)
	}
	if meta.payload["fileName"] != "voice.wav" {
		t.Fatalf("fileName = %v, want base name", meta.payload["fileName"])
	}
	if meta.payload["contentType"] != "audio/wav" {
		t.Fatalf("contentType = %v", meta.payload["contentType"])
	}
	if meta.payload["size"] != uint32(1000) || meta.payload["chunks"] != 3 {
		t.Fatalf("size/chunks = %v/%v", meta.payload["size"], meta.payload["chunks"])
	}
	if meta.payload["text"] != "check this" {
		t.Fatalf("caption = %v", meta.payload["text"])
	}
	messageID, _ := meta.payload["id"].(string)
	if !strings.HasPrefix(messageID, "voice-") {
		t.Fatalf("id = %q, want voice- prefix", messageID)
	}

	var assembled []byte
	wantSizes := []int{360, 360, 280}
	for i, ev := range s.sent[1:] {
		seq := i + 1
		if ev.name != "msg.voice.chunk" {
			t.Fatalf("event %d = %q, want msg.voice.chunk", seq, ev.name)
		}
		if ev.payload["id"] != messageID {
			t.Fatalf("chunk %d id = %v, want %q", seq, ev.payload["id"], messageID)
		}
		if ev.payload["seq"] != seq || ev.payload["chunks"] != 3 {
			t.Fatalf("chunk %d seq/chunks = %v/%v", seq, ev.payload["seq"], ev.payload["chunks"])
		}
		if ev.payload["last"] != (seq == 3) {
			t.Fatalf("chunk %d last = %v", seq, ev.payload["last"])
		}
		raw, err := base64.StdEncoding.DecodeString(ev.payload["data"].(string))
		if err != nil {
			t.Fatalf("chunk %d data: %v", seq, err)
		}
		if len(raw) != wantSizes[i] {
			t.Fatalf("chunk %d is %d bytes, want %d", seq, len(raw), wantSizes[i])
		}
		assembled = append(assembled, raw...)
	}
	if !bytes.Equal(assembled, data) {
		t.Fatal("reassembled chunks do not match the payload")
	}
}

func TestSendVoiceSingleChunk(t *testing.T) {
	s := &mockSender{}
	err := SendVoice(s, VoiceMessage{From: "node-host", FileName: "a.ogg", Data: []byte("short")}, nil)
	if err != nil {
		t.Fatalf("SendVoice: %v", err)
	}
	if len(s.sent) != 2 {
		t.Fatalf("sent %d events, want meta plus one chunk", len(s.sent))
	}
	chunk := s.sent[1]
	if chunk.payload["seq"] != 1 || chunk.payload["last"] != true {
		t.Fatalf("seq/last = %v/%v", chunk.payload["seq"], chunk.payload["last"])
	}
}

func TestSendVoiceRejectsEmptyAndOversize(t *testing.T) {
	s := &mockSender{}
	if err := SendVoice(s, VoiceMessage{From: "node-host"}, nil); err == nil {
		t.Fatal("empty payload should fail")
	}
	big := VoiceMessage{From: "node-host", Data: make([]byte, MaxVoiceBytes+1)}
	if err := SendVoice(s, big, nil); err == nil {
		t.Fatal("oversize payload should fail")
	}
	if len(s.sent) != 0 {
		t.Fatalf("sent %d events, want 0", len(s.sent))
	}
}

func TestSendVoiceMetaFailure(t *testing.T) {
	s := &mockSender{failAt: 1}
	err := SendVoice(s, VoiceMessage{From: "node-host", Data: make([]byte, 800)}, nil)
	if err == nil || !strings.Contains(err.Error(), "before starting") {
		t.Fatalf("err = %v, want failed before starting", err)
	}
	if len(s.sent) != 1 {
		t.Fatalf("sent %d events, want meta only", len(s.sent))
	}
}

func TestSendVoiceChunkFailureAborts(t *testing.T) {
	s := &mockSender{failAt: 3}
	ticks := 0
	err := SendVoice(s, VoiceMessage{From: "node-host", Data: make([]byte, 1000)}, func() { ticks++ })
	if err == nil || !strings.Contains(err.Error(), "incomplete") {
		t.Fatalf("err = %v, want incomplete", err)
	}
	// Meta, chunk 1, rejected chunk 2. Chunk 3 never goes out.
	if len(s.sent) != 3 {
		t.Fatalf("sent %d events, want 3", len(s.sent))
	}
	if ticks != 1 {
		t.Fatalf("ticks = %d, want 1", ticks)
	}
}

func TestDetectAudioMIME(t *testing.T) {
	cases := []struct {
		path string
		want string
	}{
		{"/rec/voice.wav", "audio/wav"},
		{"clip.MP3", "audio/mpeg"},
		{"memo.m4a", "audio/mp4"},
		{"memo.aac", "audio/aac"},
		{"memo.opus", "audio/opus"},
		{"memo.ogg", "audio/ogg"},
		{"memo.txt", "application/octet-stream"},
		{"noext", "application/octet-stream"},
	}
	for _, tc := range cases {
		if got := DetectAudioMIME(tc.path); got != tc.want {
			t.Errorf("DetectAudioMIME(%q) = %q, want %q", tc.path, got, tc.want)
		}
	}
}
