package audio

import (
	"errors"
	"io"
	"testing"
	"time"
)

func TestSampleBufferReadWrite(t *testing.T) {
	t.Parallel()

	b := NewSampleBuffer(16, 4)
	if _, err := b.Write([]byte{1, 2, 3, 4, 5, 6, 7, 8}); err != nil {
		t.Fatalf("write: %v", err)
	}

	p := make([]byte, 6)
	n, err := b.Read(p)
	if err != nil || n != 6 {
		t.Fatalf("unexpected read n=%d err=%v", n, err)
	}
	n, err = b.Read(p)
	if err != nil || n != 2 || p[0] != 7 || p[1] != 8 {
		t.Fatalf("unexpected second read n=%d err=%v p=%v", n, err, p[:n])
	}
}

func TestSampleBufferDropsOldestAligned(t *testing.T) {
	t.Parallel()

	b := NewSampleBuffer(8, 4)
	_, _ = b.Write([]byte{1, 2, 3, 4, 5, 6})
	_, _ = b.Write([]byte{7, 8, 9, 10, 11, 12})

	if b.Dropped() != 4 {
		t.Fatalf("expected 4 dropped bytes, got %d", b.Dropped())
	}
	p := make([]byte, 16)
	n, _ := b.Read(p)
	if n != 8 || p[0] != 5 || p[7] != 12 {
		t.Fatalf("unexpected contents: %v", p[:n])
	}
}

func TestSampleBufferCloseUnblocksReader(t *testing.T) {
	t.Parallel()

	b := NewSampleBuffer(8, 1)
	done := make(chan error, 1)
	go func() {
		_, err := b.Read(make([]byte, 4))
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	_ = b.Close()

	select {
	case err := <-done:
		if !errors.Is(err, io.EOF) {
			t.Fatalf("expected EOF, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("reader did not unblock")
	}

	if _, err := b.Write([]byte{1}); err == nil {
		t.Fatalf("expected write after close to fail")
	}
}

func TestSampleBufferDrainsBeforeEOF(t *testing.T) {
	t.Parallel()

	b := NewSampleBuffer(8, 1)
	_, _ = b.Write([]byte{9})
	_ = b.Close()

	p := make([]byte, 4)
	if n, err := b.Read(p); n != 1 || err != nil {
		t.Fatalf("expected buffered byte before EOF, got n=%d err=%v", n, err)
	}
	if _, err := b.Read(p); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF, got %v", err)
	}
}
