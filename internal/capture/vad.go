package capture

import (
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
)

const (
	speechLowHz  = 300
	speechHighHz = 3400
)

// Detector classifies frames as speech by comparing their speech-band
// spectral level against an adaptive noise floor.
type Detector struct {
	sampleRate int
	ratio      float64
	minLevel   float64
	floor      float64
}

func NewDetector(sampleRate int, ratio, minLevel float64) *Detector {
	return &Detector{sampleRate: sampleRate, ratio: ratio, minLevel: minLevel}
}

// Level returns the mean magnitude of the speech band, normalized so that a
// full-scale tone sits near 0.25.
func (d *Detector) Level(frame []int16) float64 {
	n := len(frame)
	if n == 0 {
		return 0
	}
	x := make([]float64, n)
	for i, s := range frame {
		x[i] = float64(s) / 32768.0
	}
	window.Apply(x, window.Hann)
	spectrum := fft.FFTReal(x)

	lo := speechLowHz * n / d.sampleRate
	hi := speechHighHz * n / d.sampleRate
	if hi > n/2 {
		hi = n / 2
	}
	if lo < 1 {
		lo = 1
	}
	if hi <= lo {
		return 0
	}
	var sum float64
	for k := lo; k <= hi; k++ {
		sum += cmplx.Abs(spectrum[k])
	}
	return sum / float64(n)
}

// IsSpeech reports whether frame carries speech and updates the noise floor
// from frames that do not.
func (d *Detector) IsSpeech(frame []int16) bool {
	level := d.Level(frame)
	speech := level >= d.minLevel && level >= d.floor*d.ratio
	if !speech {
		d.floor = 0.9*d.floor + 0.1*level
	}
	return speech
}
