package usecase

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"nora/internal/domain"
	"nora/internal/pcm"
	"nora/internal/ports"
)

// pumpMicrophone forwards fixed-size capture frames to the live session as
// base64 PCM16. Frames captured before the remote is attached are dropped.
func (c *VoiceController) pumpMicrophone(s *voiceSession, mic ports.AudioSession) {
	defer close(s.pumpDone)

	frame := make([]byte, c.cfg.FrameSize*4)
	mimeType := pcm.MIMEType(c.cfg.Capture.SampleRate)
	for {
		if _, err := io.ReadFull(mic, frame); err != nil {
			if s.isFinished() {
				return
			}
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				err = errors.New("capture stream ended")
			}
			c.logger.Warn("microphone failed mid-call", slog.String("session", s.id), slog.Any("err", err))
			c.finish(s, domain.SessionStateError, domain.SessionReasonMicrophoneFailed,
				domain.ErrorCodeMicrophone, fmt.Errorf("microphone capture failed: %w", err))
			return
		}

		remote := s.link()
		if remote == nil {
			c.metrics.RecordMicFrame(false)
			if s.isFinished() {
				return
			}
			continue
		}

		blob := domain.MediaBlob{
			MIMEType: mimeType,
			Data:     pcm.TextEncode(pcm.EncodeSamples(pcm.DecodeFloat32LE(frame))),
		}
		if err := remote.SendAudio(blob); err != nil {
			c.metrics.RecordMicFrame(false)
			c.logger.Debug("mic frame dropped", slog.String("session", s.id), slog.Any("err", err))
			continue
		}
		c.metrics.RecordMicFrame(true)
	}
}
