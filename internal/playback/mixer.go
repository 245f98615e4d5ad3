package playback

import (
	"encoding/binary"
	"io"
	"math"
	"sync"
	"time"

	"nora/internal/pcm"
)

// Mixer is a pull-based Pipeline. Its clock advances by the frames read from
// it, and it renders interleaved float32 little-endian samples, which is what
// the speaker player consumes.
type Mixer struct {
	sampleRate int
	channels   int

	mu      sync.Mutex
	frame   int64
	sources map[*mixerSource]struct{}
	closed  bool
}

type mixerSource struct {
	mixer   *Mixer
	buf     pcm.Buffer
	start   int64
	onEnded func()
}

func NewMixer(sampleRate, channels int) *Mixer {
	if sampleRate <= 0 {
		sampleRate = pcm.PlaybackSampleRate
	}
	if channels <= 0 {
		channels = 1
	}
	return &Mixer{
		sampleRate: sampleRate,
		channels:   channels,
		sources:    make(map[*mixerSource]struct{}),
	}
}

// CurrentTime is the amount of audio rendered so far.
func (m *Mixer) CurrentTime() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return time.Duration(m.frame) * time.Second / time.Duration(m.sampleRate)
}

func (m *Mixer) Start(buf pcm.Buffer, at time.Duration, onEnded func()) (Source, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	source := &mixerSource{mixer: m, buf: buf, start: m.frameAt(at), onEnded: onEnded}
	m.sources[source] = struct{}{}
	return source, nil
}

// frameAt rounds to the nearest frame so that durations truncated to whole
// nanoseconds still land buffers exactly back-to-back.
func (m *Mixer) frameAt(at time.Duration) int64 {
	if at <= 0 {
		return 0
	}
	return (int64(at)*int64(m.sampleRate) + int64(time.Second)/2) / int64(time.Second)
}

func (m *Mixer) Read(p []byte) (int, error) {
	frameBytes := 4 * m.channels
	frames := len(p) / frameBytes
	if frames == 0 {
		return 0, nil
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return 0, io.EOF
	}

	for f := 0; f < frames; f++ {
		abs := m.frame + int64(f)
		for ch := 0; ch < m.channels; ch++ {
			var sum float32
			for source := range m.sources {
				sum += source.sampleAt(abs, ch)
			}
			if sum > 1 {
				sum = 1
			} else if sum < -1 {
				sum = -1
			}
			binary.LittleEndian.PutUint32(p[(f*m.channels+ch)*4:], math.Float32bits(sum))
		}
	}
	m.frame += int64(frames)

	var finished []func()
	for source := range m.sources {
		if source.start+int64(source.buf.Frames()) <= m.frame {
			delete(m.sources, source)
			if source.onEnded != nil {
				finished = append(finished, source.onEnded)
			}
		}
	}
	m.mu.Unlock()

	for _, fn := range finished {
		fn()
	}
	return frames * frameBytes, nil
}

// Close stops rendering; readers get io.EOF afterwards.
func (m *Mixer) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.sources = make(map[*mixerSource]struct{})
	return nil
}

func (s *mixerSource) sampleAt(frame int64, ch int) float32 {
	offset := frame - s.start
	if offset < 0 || offset >= int64(s.buf.Frames()) || len(s.buf.Channels) == 0 {
		return 0
	}
	return s.buf.Channels[ch%len(s.buf.Channels)][offset]
}

// Stop removes the source without firing its end callback.
func (s *mixerSource) Stop() {
	s.mixer.mu.Lock()
	defer s.mixer.mu.Unlock()
	delete(s.mixer.sources, s)
}
