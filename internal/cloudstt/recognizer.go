// Package cloudstt sends captured utterances to a remote recognizer.
package cloudstt

import (
	"context"
	"errors"
	"sync"

	"github.com/loqalabs/akira/internal/capture"
)

// ErrNoSpeech is returned when the service heard nothing it could transcribe.
var ErrNoSpeech = errors.New("speech not recognized")

type Recognizer interface {
	Recognize(ctx context.Context, u capture.Utterance) (string, error)
}

// Result is one scripted Mock outcome.
type Result struct {
	Text string
	Err  error
}

// Mock returns scripted results in order and ErrNoSpeech once they run out.
type Mock struct {
	mu      sync.Mutex
	results []Result
	heard   []capture.Utterance
}

func NewMock(results ...Result) *Mock {
	return &Mock{results: results}
}

func (m *Mock) Recognize(ctx context.Context, u capture.Utterance) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.heard = append(m.heard, u)
	if len(m.results) == 0 {
		return "", ErrNoSpeech
	}
	r := m.results[0]
	m.results = m.results[1:]
	return r.Text, r.Err
}

// Heard returns the utterances passed to Recognize so far.
func (m *Mock) Heard() []capture.Utterance {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]capture.Utterance(nil), m.heard...)
}
