// Package speaker plays agent audio through oto.
package speaker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"nora/internal/pcm"
	"nora/internal/playback"
	"nora/internal/ports"
)

// Output implements ports.AudioOutput. oto allows a single context per
// process, so the first Open fixes the device format; each Open returns a
// fresh pipeline with its own player and clock.
type Output struct {
	mu         sync.Mutex
	otoCtx     *oto.Context
	ready      chan struct{}
	sampleRate int
	channels   int
}

func NewOutput() *Output {
	return &Output{}
}

func (o *Output) Open(ctx context.Context, cfg ports.OutputConfig) (playback.Pipeline, error) {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = pcm.PlaybackSampleRate
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}

	otoCtx, err := o.context(ctx, cfg)
	if err != nil {
		return nil, err
	}

	mixer := playback.NewMixer(cfg.SampleRate, cfg.Channels)
	player := otoCtx.NewPlayer(mixer)
	player.Play()
	return &pipeline{mixer: mixer, player: player}, nil
}

func (o *Output) context(ctx context.Context, cfg ports.OutputConfig) (*oto.Context, error) {
	o.mu.Lock()
	if o.otoCtx == nil {
		otoCtx, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   cfg.SampleRate,
			ChannelCount: cfg.Channels,
			Format:       oto.FormatFloat32LE,
			BufferSize:   100 * time.Millisecond,
		})
		if err != nil {
			o.mu.Unlock()
			return nil, fmt.Errorf("failed to init speaker: %w", err)
		}
		o.otoCtx = otoCtx
		o.ready = ready
		o.sampleRate = cfg.SampleRate
		o.channels = cfg.Channels
	}
	otoCtx, ready := o.otoCtx, o.ready
	sampleRate, channels := o.sampleRate, o.channels
	o.mu.Unlock()

	if sampleRate != cfg.SampleRate || channels != cfg.Channels {
		return nil, fmt.Errorf("speaker already opened at %d Hz x%d", sampleRate, channels)
	}

	select {
	case <-ready:
		return otoCtx, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type pipeline struct {
	mixer  *playback.Mixer
	player *oto.Player

	closeOnce sync.Once
}

func (p *pipeline) CurrentTime() time.Duration {
	return p.mixer.CurrentTime()
}

func (p *pipeline) Start(buf pcm.Buffer, at time.Duration, onEnded func()) (playback.Source, error) {
	return p.mixer.Start(buf, at, onEnded)
}

func (p *pipeline) Close() error {
	var err error
	p.closeOnce.Do(func() {
		_ = p.mixer.Close()
		p.player.Pause()
		err = p.player.Close()
	})
	return err
}
