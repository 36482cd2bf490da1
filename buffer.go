package relay

import (
	"sync"

	"github.com/bt-bridge/convai-relay/shared"
)

// PendingBuffer holds agent audio payloads that arrived before the telephony
// stream token. Drain empties it in arrival order and seals it permanently; a
// sealed buffer rejects further appends.
type PendingBuffer struct {
	mu     sync.Mutex
	frames []string
	limit  int
	sealed bool
}

func NewPendingBuffer(limit int) *PendingBuffer {
	if limit <= 0 {
		limit = defaultMaxPendingFrames
	}
	return &PendingBuffer{limit: limit}
}

func (b *PendingBuffer) Append(payload string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sealed {
		return shared.ErrSessionClosed
	}
	if len(b.frames) >= b.limit {
		return shared.ErrBufferOverflow
	}
	b.frames = append(b.frames, payload)
	return nil
}

func (b *PendingBuffer) Drain() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sealed = true
	frames := b.frames
	b.frames = nil
	return frames
}

func (b *PendingBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.frames)
}
