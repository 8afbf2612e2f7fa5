package tts

import (
	"context"
	"io"
	"strings"
	"time"
)

type mockSynth struct {
	sampleRate int
	channels   int
}

// NewMockSynth renders silence whose length follows the configured speaking rate.
func NewMockSynth(sampleRate, channels int) Synthesizer {
	return &mockSynth{sampleRate: sampleRate, channels: channels}
}

func (m *mockSynth) Synthesize(ctx context.Context, req SynthRequest, out io.WriteSeeker) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	d := speakingTime(req.Text, req.Rate)
	frames := int(d.Seconds() * float64(m.sampleRate))
	pcm := make([]byte, frames*m.channels*2)
	return writePCMToWav(out, pcm, m.sampleRate, m.channels)
}

// speakingTime estimates how long text takes at rate words per minute.
func speakingTime(text string, rate int) time.Duration {
	if rate <= 0 {
		rate = 150
	}
	words := len(strings.Fields(text))
	d := time.Duration(words) * time.Minute / time.Duration(rate)
	if d < 250*time.Millisecond {
		d = 250 * time.Millisecond
	}
	return d
}
