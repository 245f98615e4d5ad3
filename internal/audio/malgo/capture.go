// Package malgo captures the microphone through miniaudio.
package malgo

import (
	"context"
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"

	"nora/internal/audio"
	"nora/internal/pcm"
	"nora/internal/ports"
)

// bufferSeconds bounds how much unread audio is kept per session.
const bufferSeconds = 2

// Capture implements ports.AudioCapture with a malgo capture device yielding
// float32 little-endian samples.
type Capture struct{}

func NewCapture() *Capture {
	return &Capture{}
}

func (c *Capture) Start(ctx context.Context, cfg ports.CaptureConfig) (ports.AudioSession, error) {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = pcm.CaptureSampleRate
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}

	contextConfig := malgo.ContextConfig{ThreadPriority: malgo.ThreadPriorityRealtime}
	malgoCtx, err := malgo.InitContext(nil, contextConfig, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to init audio context: %w", err)
	}

	frameBytes := 4 * cfg.Channels
	session := &session{
		malgoCtx: malgoCtx,
		buffer:   audio.NewSampleBuffer(cfg.SampleRate*frameBytes*bufferSeconds, frameBytes),
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = uint32(cfg.Channels)
	deviceConfig.SampleRate = uint32(cfg.SampleRate)
	deviceConfig.PeriodSizeInMilliseconds = 20

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			_, _ = session.buffer.Write(input)
		},
	}

	device, err := malgo.InitDevice(malgoCtx.Context, deviceConfig, callbacks)
	if err != nil {
		session.release()
		return nil, fmt.Errorf("microphone unavailable: %w", err)
	}
	session.device = device

	if err := device.Start(); err != nil {
		session.release()
		return nil, fmt.Errorf("microphone unavailable: %w", err)
	}

	session.stopCtx = context.AfterFunc(ctx, func() { _ = session.Stop() })
	return session, nil
}

type session struct {
	malgoCtx *malgo.AllocatedContext
	device   *malgo.Device
	buffer   *audio.SampleBuffer
	stopCtx  func() bool

	stopOnce sync.Once
}

func (s *session) Read(p []byte) (int, error) {
	return s.buffer.Read(p)
}

func (s *session) Close() error {
	return s.Stop()
}

func (s *session) Stop() error {
	s.stopOnce.Do(func() {
		if s.stopCtx != nil {
			s.stopCtx()
		}
		s.release()
	})
	return nil
}

func (s *session) release() {
	if s.device != nil {
		_ = s.device.Stop()
		s.device.Uninit()
		s.device = nil
	}
	_ = s.buffer.Close()
	if s.malgoCtx != nil {
		_ = s.malgoCtx.Uninit()
		s.malgoCtx.Free()
		s.malgoCtx = nil
	}
}
