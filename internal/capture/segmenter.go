package capture

import "time"

type SegmenterConfig struct {
	SampleRate   int
	QuietPeriod  time.Duration
	MaxUtterance time.Duration
	PreRoll      int
	Ratio        float64
	MinLevel     float64
}

func (c SegmenterConfig) withDefaults() SegmenterConfig {
	if c.SampleRate <= 0 {
		c.SampleRate = 16000
	}
	if c.QuietPeriod <= 0 {
		c.QuietPeriod = 200 * time.Millisecond
	}
	if c.Ratio <= 0 {
		c.Ratio = 1.75
	}
	if c.MinLevel <= 0 {
		c.MinLevel = 0.002
	}
	if c.PreRoll < 0 {
		c.PreRoll = 0
	}
	return c
}

// Segmenter turns a stream of fixed-size frames into utterances bounded by
// silence.
type Segmenter struct {
	cfg          SegmenterConfig
	detector     *Detector
	preroll      *preroll
	quietSamples int
	maxSamples   int

	active bool
	quiet  int
	buf    []int16
}

func NewSegmenter(cfg SegmenterConfig) *Segmenter {
	cfg = cfg.withDefaults()
	s := &Segmenter{
		cfg:          cfg,
		detector:     NewDetector(cfg.SampleRate, cfg.Ratio, cfg.MinLevel),
		preroll:      newPreroll(cfg.PreRoll),
		quietSamples: int(cfg.QuietPeriod.Seconds() * float64(cfg.SampleRate)),
	}
	if cfg.MaxUtterance > 0 {
		s.maxSamples = int(cfg.MaxUtterance.Seconds() * float64(cfg.SampleRate))
	}
	return s
}

// Push feeds one frame. It returns a completed utterance once speech was
// followed by QuietPeriod of silence or MaxUtterance was reached.
func (s *Segmenter) Push(frame []int16) (Utterance, bool) {
	speech := s.detector.IsSpeech(frame)
	if !s.active {
		if !speech {
			s.preroll.push(frame)
			return Utterance{}, false
		}
		s.active = true
		s.quiet = 0
		s.buf = append(s.buf, s.preroll.snapshot()...)
		s.buf = append(s.buf, frame...)
		return s.checkMax()
	}

	s.buf = append(s.buf, frame...)
	if speech {
		s.quiet = 0
	} else {
		s.quiet += len(frame)
	}
	if s.quiet >= s.quietSamples {
		return s.flush(), true
	}
	return s.checkMax()
}

func (s *Segmenter) checkMax() (Utterance, bool) {
	if s.maxSamples > 0 && len(s.buf) >= s.maxSamples {
		return s.flush(), true
	}
	return Utterance{}, false
}

func (s *Segmenter) flush() Utterance {
	u := Utterance{SampleRate: s.cfg.SampleRate, PCM: s.buf}
	s.Reset()
	return u
}

// Reset drops any partial utterance.
func (s *Segmenter) Reset() {
	s.active = false
	s.quiet = 0
	s.buf = nil
	s.preroll.reset()
}
