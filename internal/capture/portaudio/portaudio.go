//go:build portaudio

// Package portaudio captures utterances from the default input device. It
// needs cgo and the portaudio headers and is only built with the portaudio tag.
package portaudio

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gordonklaus/portaudio"
	"github.com/loqalabs/akira/internal/capture"
)

type Config struct {
	SampleRate      int
	FramesPerBuffer int
	QuietPeriod     time.Duration
	MaxUtterance    time.Duration
}

type Capturer struct {
	cfg    Config
	logger *slog.Logger
}

func New(cfg Config, log *slog.Logger) *Capturer {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.FramesPerBuffer <= 0 {
		cfg.FramesPerBuffer = 8196
	}
	return &Capturer{cfg: cfg, logger: log.With(slog.String("component", "capture"))}
}

// Capture opens the microphone, waits for speech and returns once the
// speaker goes quiet. The device is released before returning.
func (c *Capturer) Capture(ctx context.Context) (capture.Utterance, error) {
	if err := portaudio.Initialize(); err != nil {
		return capture.Utterance{}, fmt.Errorf("initialize portaudio: %w", err)
	}
	defer portaudio.Terminate()

	in := make([]int16, c.cfg.FramesPerBuffer)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(c.cfg.SampleRate), len(in), in)
	if err != nil {
		return capture.Utterance{}, fmt.Errorf("open input stream: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return capture.Utterance{}, fmt.Errorf("start input stream: %w", err)
	}
	defer stream.Stop()

	seg := capture.NewSegmenter(capture.SegmenterConfig{
		SampleRate:   c.cfg.SampleRate,
		QuietPeriod:  c.cfg.QuietPeriod,
		MaxUtterance: c.cfg.MaxUtterance,
		PreRoll:      c.cfg.FramesPerBuffer,
	})
	c.logger.Debug("listening for speech")

	for {
		if err := ctx.Err(); err != nil {
			return capture.Utterance{}, err
		}
		if err := stream.Read(); err != nil {
			// Overflow drops a frame but the stream stays usable.
			if err == portaudio.InputOverflowed {
				c.logger.Warn("input overflowed")
				continue
			}
			return capture.Utterance{}, fmt.Errorf("read input stream: %w", err)
		}
		frame := make([]int16, len(in))
		copy(frame, in)
		if u, done := seg.Push(frame); done {
			c.logger.Debug("utterance captured", slog.Duration("duration", u.Duration()))
			return u, nil
		}
	}
}
