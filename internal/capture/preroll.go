package capture

// preroll remembers the last samples heard while idle so the onset of an
// utterance is not clipped. Until it has filled up it only returns what it has
// actually seen.
type preroll struct {
	samples []int16
	next    int
	filled  int
}

func newPreroll(size int) *preroll {
	if size < 0 {
		size = 0
	}
	return &preroll{samples: make([]int16, size)}
}

func (p *preroll) push(frame []int16) {
	size := len(p.samples)
	if size == 0 {
		return
	}
	if len(frame) >= size {
		copy(p.samples, frame[len(frame)-size:])
		p.next = 0
		p.filled = size
		return
	}
	n := copy(p.samples[p.next:], frame)
	copy(p.samples, frame[n:])
	p.next = (p.next + len(frame)) % size
	p.filled = min(p.filled+len(frame), size)
}

// snapshot returns the remembered samples, oldest first.
func (p *preroll) snapshot() []int16 {
	out := make([]int16, 0, p.filled)
	start := p.next - p.filled
	if start < 0 {
		out = append(out, p.samples[len(p.samples)+start:]...)
		start = 0
	}
	return append(out, p.samples[start:p.next]...)
}

func (p *preroll) reset() {
	p.next = 0
	p.filled = 0
}
