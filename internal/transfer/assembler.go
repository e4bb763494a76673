package transfer

import (
	"encoding/base64"
	"fmt"
	"io"
)

// Meta is the announcement that opens an inbound voice transfer.
type Meta struct {
	ID          string
	From        string
	To          string
	FileName    string
	ContentType string
	Caption     string
	Size        uint32
	Chunks      int
	TimestampMs uint64
}

// Chunk is one inbound voice fragment.
type Chunk struct {
	ID          string
	Seq         int
	Chunks      int
	Last        bool
	Data        string
	TimestampMs uint64
}

// Assembler validates and reassembles one voice transfer at a time, writing
// decoded bytes to the injected sink. Storage of the result is the caller's
// concern. A new BeginMeta discards any transfer still in flight.
type Assembler struct {
	sink     io.Writer
	meta     Meta
	active   bool
	nextSeq  int
	received uint32
}

// NewAssembler returns an assembler that writes decoded chunk bytes to sink.
func NewAssembler(sink io.Writer) *Assembler {
	return &Assembler{sink: sink}
}

// Active reports whether a transfer has been announced and not yet finished.
func (a *Assembler) Active() bool {
	return a.active
}

// CurrentMeta returns the announcement for the transfer in flight.
func (a *Assembler) CurrentMeta() Meta {
	return a.meta
}

// BeginMeta starts a transfer from its announcement.
func (a *Assembler) BeginMeta(meta Meta) error {
	if meta.ID == "" {
		return fmt.Errorf("transfer: voice meta has no id")
	}
	if meta.Chunks < 1 {
		return fmt.Errorf("transfer: voice meta %q announces %d chunks", meta.ID, meta.Chunks)
	}
	if meta.Size == 0 || meta.Size > MaxVoiceBytes {
		return fmt.Errorf("transfer: voice meta %q announces %d bytes, max %d", meta.ID, meta.Size, MaxVoiceBytes)
	}

	a.meta = meta
	a.active = true
	a.nextSeq = 1
	a.received = 0
	return nil
}

// AddChunk validates and appends one fragment. Sequence numbers are 1-based
// and must arrive contiguously, and the last flag must be set on exactly the
// final fragment. Returns done=true once the transfer is complete. Any
// validation or sink failure abandons the transfer.
func (a *Assembler) AddChunk(c Chunk) (done bool, err error) {
	if !a.active {
		return false, fmt.Errorf("transfer: voice chunk %q without a transfer in flight", c.ID)
	}
	if c.ID != a.meta.ID {
		return false, fmt.Errorf("transfer: voice chunk id %q does not match transfer %q", c.ID, a.meta.ID)
	}
	if c.Chunks != a.meta.Chunks {
		a.reset()
		return false, fmt.Errorf("transfer: voice chunk announces %d chunks, meta said %d", c.Chunks, a.meta.Chunks)
	}
	if c.Seq != a.nextSeq {
		a.reset()
		return false, fmt.Errorf("transfer: voice chunk seq %d, want %d", c.Seq, a.nextSeq)
	}
	final := c.Seq == a.meta.Chunks
	if c.Last != final {
		a.reset()
		return false, fmt.Errorf("transfer: voice chunk %d of %d has last=%v", c.Seq, a.meta.Chunks, c.Last)
	}

	raw, err := base64.StdEncoding.DecodeString(c.Data)
	if err != nil {
		a.reset()
		return false, fmt.Errorf("transfer: voice chunk %d: %w", c.Seq, err)
	}
	if a.received+uint32(len(raw)) > a.meta.Size {
		a.reset()
		return false, fmt.Errorf("transfer: voice transfer %q exceeds announced %d bytes", a.meta.ID, a.meta.Size)
	}
	if _, err := a.sink.Write(raw); err != nil {
		a.reset()
		return false, fmt.Errorf("transfer: voice sink: %w", err)
	}
	a.received += uint32(len(raw))

	if !final {
		a.nextSeq++
		return false, nil
	}
	if a.received != a.meta.Size {
		a.reset()
		return false, fmt.Errorf("transfer: voice transfer %q assembled %d bytes, announced %d", a.meta.ID, a.received, a.meta.Size)
	}
	a.reset()
	return true, nil
}

func (a *Assembler) reset() {
	a.active = false
	a.nextSeq = 0
	a.received = 0
}
