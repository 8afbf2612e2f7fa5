package capture

import (
	"context"
	"encoding/binary"
	"time"
)

// Utterance is one bounded segment of captured mono 16-bit speech.
type Utterance struct {
	SampleRate int
	PCM        []int16
}

// Bytes returns the samples as little-endian LINEAR16.
func (u Utterance) Bytes() []byte {
	out := make([]byte, len(u.PCM)*2)
	for i, s := range u.PCM {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// Duration is the length of the utterance.
func (u Utterance) Duration() time.Duration {
	if u.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(u.PCM)) * time.Second / time.Duration(u.SampleRate)
}

// Capturer blocks until the audio source yields one complete utterance.
type Capturer interface {
	Capture(ctx context.Context) (Utterance, error)
}
