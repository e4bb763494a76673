package gateway

import "sync"

// InboxCapacity is the fixed size of the message ring.
const InboxCapacity = 24

// InboxMessage is one normalized inbound message for display.
type InboxMessage struct {
	ID          string
	Event       string
	Type        string
	From        string
	To          string
	Text        string
	FileName    string
	ContentType string
	VoiceBytes  uint32
	TimestampMs uint64
}

// Inbox is a fixed-capacity ring of inbound messages. Push never blocks:
// at capacity the oldest entry is overwritten. It is written from the
// transport's delivery goroutine and read from the UI tick loop, so all
// access is serialized by a mutex.
type Inbox struct {
	mu    sync.Mutex
	slots [InboxCapacity]InboxMessage
	start int
	count int
}

// Push appends a message, evicting the oldest entry when full.
func (b *Inbox) Push(msg InboxMessage) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count < InboxCapacity {
		b.slots[(b.start+b.count)%InboxCapacity] = msg
		b.count++
		return
	}
	b.slots[b.start] = msg
	b.start = (b.start + 1) % InboxCapacity
}

// Count returns the number of occupied slots.
func (b *Inbox) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Get returns the message at logical index i, where 0 is the oldest
// remaining entry. Returns false for an out-of-range index.
func (b *Inbox) Get(i int) (InboxMessage, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if i < 0 || i >= b.count {
		return InboxMessage{}, false
	}
	return b.slots[(b.start+i)%InboxCapacity], true
}

// Clear empties the ring without deallocating.
func (b *Inbox) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.start = 0
	b.count = 0
}
