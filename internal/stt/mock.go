package stt

import (
	"context"
	"fmt"
	"math"
)

// silenceRMS is the normalized level under which a chunk counts as silence.
const silenceRMS = 0.01

type mockEngine struct{}

// NewMockEngine returns an engine that reports how much voiced audio it heard
// and nothing for silence.
func NewMockEngine() Engine {
	return mockEngine{}
}

func (mockEngine) NewDecoder(sampleRate int) (Decoder, error) {
	return &mockDecoder{sampleRate: sampleRate}, nil
}

type mockDecoder struct {
	sampleRate int
	voiced     int
	segment    int
	last       string
}

func (m *mockDecoder) AcceptWaveform(samples []int) (bool, error) {
	if rms(samples) >= silenceRMS {
		m.voiced += len(samples)
		m.segment += len(samples)
		return false, nil
	}
	if m.segment == 0 {
		return false, nil
	}
	m.last = fmt.Sprintf("[partial transcript length=%d]", m.segment)
	m.segment = 0
	return true, nil
}

func (m *mockDecoder) Result() string { return m.last }

func (m *mockDecoder) FinalResult(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if m.voiced == 0 {
		return "", nil
	}
	return fmt.Sprintf("[final transcript length=%d]", m.voiced), nil
}

func rms(samples []int) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s) / 32768.0
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}
