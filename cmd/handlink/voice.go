package main

import (
	"log"
	"os"
	"path/filepath"

	"github.com/kvasirlabs/handlink/internal/gateway"
	"github.com/kvasirlabs/handlink/internal/transfer"
)

// voiceSink reassembles inbound voice transfers into files. Chunk callbacks
// all arrive on the transport's delivery goroutine, so no locking is needed
// here.
type voiceSink struct {
	gw  *gateway.Client
	dir string

	asm  *transfer.Assembler
	file *os.File
	path string
}

func newVoiceSink(gw *gateway.Client, dir string) *voiceSink {
	return &voiceSink{gw: gw, dir: dir}
}

func (s *voiceSink) handleChunk(payload map[string]any) {
	id := stringField(payload, "id")
	chunk := transfer.Chunk{
		ID:     id,
		Seq:    intField(payload, "seq"),
		Chunks: intField(payload, "chunks"),
		Last:   boolField(payload, "last"),
		Data:   stringField(payload, "data"),
	}

	if s.asm == nil || !s.asm.Active() {
		if err := s.begin(id, chunk.Chunks); err != nil {
			log.Printf("Voice transfer %s dropped: %v", id, err)
			return
		}
	}

	done, err := s.asm.AddChunk(chunk)
	if err != nil {
		log.Printf("Voice transfer %s failed: %v", id, err)
		s.discard()
		return
	}
	if done {
		name := s.path
		s.file.Close()
		s.file = nil
		log.Printf("Voice message saved to %s", name)
	}
}

// begin looks up the announcement for id in the inbox and opens the output
// file. The meta event always precedes its chunks, so a miss means the
// announcement was evicted or never arrived.
func (s *voiceSink) begin(id string, chunks int) error {
	var meta *gateway.InboxMessage
	for i := 0; i < s.gw.InboxCount(); i++ {
		msg, ok := s.gw.InboxMessage(i)
		if ok && msg.ID == id && msg.Event == "msg.voice.meta" {
			meta = &msg
			break
		}
	}
	if meta == nil {
		return os.ErrNotExist
	}

	name := meta.FileName
	if name == "" {
		name = id + ".bin"
	}
	path := filepath.Join(s.dir, filepath.Base(name))
	file, err := os.Create(path)
	if err != nil {
		return err
	}

	s.file = file
	s.path = path
	s.asm = transfer.NewAssembler(file)
	err = s.asm.BeginMeta(transfer.Meta{
		ID:          id,
		From:        meta.From,
		FileName:    name,
		ContentType: meta.ContentType,
		Size:        meta.VoiceBytes,
		Chunks:      chunks,
	})
	if err != nil {
		s.discard()
		return err
	}
	return nil
}

func (s *voiceSink) discard() {
	if s.file != nil {
		s.file.Close()
		os.Remove(s.path)
		s.file = nil
	}
}

func stringField(payload map[string]any, key string) string {
	v, _ := payload[key].(string)
	return v
}

func intField(payload map[string]any, key string) int {
	switch v := payload[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

func boolField(payload map[string]any, key string) bool {
	v, _ := payload[key].(bool)
	return v
}
