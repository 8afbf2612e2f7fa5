package tts

import (
	"context"
	"io"
)

// SynthRequest contains parameters to synthesize speech.
type SynthRequest struct {
	Text  string
	Voice int
	Rate  int
}

// Synthesizer is the contract for producing audio. Implementations write a
// complete WAV rendering to out and return only once writing has finished.
type Synthesizer interface {
	Synthesize(ctx context.Context, req SynthRequest, out io.WriteSeeker) error
}
