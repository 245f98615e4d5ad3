// Package pcm converts between normalized float samples and the 16-bit
// little-endian PCM carried by the live transport.
package pcm

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"
)

const (
	// CaptureSampleRate is the fixed microphone rate sent upstream.
	CaptureSampleRate = 16000
	// PlaybackSampleRate is the fixed rate of audio received from the agent.
	PlaybackSampleRate = 24000

	scale = 32768.0
)

var (
	ErrOddLength       = errors.New("pcm: byte length is not a multiple of 2")
	ErrChannelMismatch = errors.New("pcm: sample count is not a multiple of the channel count")
	ErrInvalidFormat   = errors.New("pcm: sample rate and channel count must be positive")
)

// Buffer is decoded, de-interleaved audio ready for playback.
type Buffer struct {
	SampleRate int
	Channels   [][]float32
}

// Frames returns the number of sample frames per channel.
func (b Buffer) Frames() int {
	if len(b.Channels) == 0 {
		return 0
	}
	return len(b.Channels[0])
}

// Duration is the playback length of the buffer.
func (b Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(b.Frames()) * time.Second / time.Duration(b.SampleRate)
}

// EncodeSamples scales each sample by 32768 and writes it as a 16-bit signed
// little-endian integer. Values outside [-1, 1) are not clamped: they wrap the
// way an integer truncation does, so 1.0 becomes -32768.
func EncodeSamples(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(toInt16(float64(s)*scale)))
	}
	return out
}

func toInt16(v float64) int16 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return int16(int32(math.Mod(math.Trunc(v), 65536)))
}

// DecodeBytes interprets data as interleaved 16-bit little-endian samples and
// returns one normalized slice per channel.
func DecodeBytes(data []byte, sampleRate, channels int) (Buffer, error) {
	if sampleRate <= 0 || channels <= 0 {
		return Buffer{}, ErrInvalidFormat
	}
	if len(data)%2 != 0 {
		return Buffer{}, ErrOddLength
	}
	total := len(data) / 2
	if total%channels != 0 {
		return Buffer{}, ErrChannelMismatch
	}

	frames := total / channels
	buf := Buffer{SampleRate: sampleRate, Channels: make([][]float32, channels)}
	for ch := range buf.Channels {
		buf.Channels[ch] = make([]float32, frames)
	}
	for i := 0; i < frames; i++ {
		for ch := 0; ch < channels; ch++ {
			offset := (i*channels + ch) * 2
			sample := int16(binary.LittleEndian.Uint16(data[offset:]))
			buf.Channels[ch][i] = float32(float64(sample) / scale)
		}
	}
	return buf, nil
}

// DecodeFloat32LE reads 32-bit float little-endian samples, as produced by the
// capture backends. Trailing bytes that do not form a full sample are ignored.
func DecodeFloat32LE(data []byte) []float32 {
	out := make([]float32, len(data)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return out
}

// TextEncode is the transport-safe text form of a byte payload.
func TextEncode(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// TextDecode reverses TextEncode and rejects malformed input.
func TextDecode(text string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return nil, fmt.Errorf("pcm: decode text payload: %w", err)
	}
	return data, nil
}

// MIMEType labels raw PCM at the given rate for the live transport.
func MIMEType(sampleRate int) string {
	return fmt.Sprintf("audio/pcm;rate=%d", sampleRate)
}
