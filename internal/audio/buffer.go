package audio

import (
	"io"
	"sync"
)

// SampleBuffer is a bounded byte queue between a device callback and a
// blocking reader. When full, the oldest bytes are discarded so the reader
// always sees the most recent audio.
type SampleBuffer struct {
	mu      sync.Mutex
	cond    *sync.Cond
	buf     []byte
	limit   int
	align   int
	dropped int
	closed  bool
}

// NewSampleBuffer keeps at most limit bytes; discards happen in multiples of
// align so that sample boundaries are never split.
func NewSampleBuffer(limit, align int) *SampleBuffer {
	if align <= 0 {
		align = 1
	}
	if limit < align {
		limit = align
	}
	b := &SampleBuffer{buf: make([]byte, 0, limit), limit: limit - limit%align, align: align}
	b.cond = sync.NewCond(&b.mu)
	return b
}

func (b *SampleBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0, io.ErrClosedPipe
	}

	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.limit; over > 0 {
		if rem := over % b.align; rem != 0 {
			over += b.align - rem
		}
		b.buf = append(b.buf[:0], b.buf[over:]...)
		b.dropped += over
	}
	b.cond.Signal()
	return len(p), nil
}

// Read blocks until data is available or the buffer is closed and drained.
func (b *SampleBuffer) Read(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for len(b.buf) == 0 && !b.closed {
		b.cond.Wait()
	}
	if len(b.buf) == 0 {
		return 0, io.EOF
	}

	n := copy(p, b.buf)
	b.buf = b.buf[n:]
	return n, nil
}

// Dropped reports how many bytes were discarded on overflow.
func (b *SampleBuffer) Dropped() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

func (b *SampleBuffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.cond.Broadcast()
	return nil
}
