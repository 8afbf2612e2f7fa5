package capture

import (
	"context"
	"sync"
)

// Step is one scripted Capture outcome.
type Step struct {
	Utterance Utterance
	Err       error
}

// Mock replays scripted steps, then blocks until the context ends.
type Mock struct {
	mu    sync.Mutex
	steps []Step
	calls int
}

func NewMock(steps ...Step) *Mock {
	return &Mock{steps: steps}
}

func (m *Mock) Capture(ctx context.Context) (Utterance, error) {
	m.mu.Lock()
	m.calls++
	if len(m.steps) > 0 {
		step := m.steps[0]
		m.steps = m.steps[1:]
		m.mu.Unlock()
		return step.Utterance, step.Err
	}
	m.mu.Unlock()

	<-ctx.Done()
	return Utterance{}, ctx.Err()
}

// Calls reports how many times Capture was invoked.
func (m *Mock) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
