package capture

import (
	"math"
	"testing"
	"time"
)

const (
	testRate  = 16000
	frameSize = 512
)

func toneFrame(offset int) []int16 {
	frame := make([]int16, frameSize)
	for i := range frame {
		v := 0.5 * math.Sin(2*math.Pi*1000*float64(offset+i)/testRate)
		frame[i] = int16(v * math.MaxInt16)
	}
	return frame
}

func silenceFrame() []int16 {
	return make([]int16, frameSize)
}

func TestDetectorSeparatesToneFromSilence(t *testing.T) {
	d := NewDetector(testRate, 1.75, 0.002)
	if d.IsSpeech(silenceFrame()) {
		t.Fatal("silence classified as speech")
	}
	if !d.IsSpeech(toneFrame(0)) {
		t.Fatalf("tone not classified as speech, level=%f", d.Level(toneFrame(0)))
	}
}

func TestSegmenterEndsAfterQuietPeriod(t *testing.T) {
	seg := NewSegmenter(SegmenterConfig{
		SampleRate:  testRate,
		QuietPeriod: 200 * time.Millisecond,
		PreRoll:     256,
	})

	for i := 0; i < 3; i++ {
		if _, done := seg.Push(silenceFrame()); done {
			t.Fatal("utterance emitted before any speech")
		}
	}
	for i := 0; i < 10; i++ {
		if _, done := seg.Push(toneFrame(i * frameSize)); done {
			t.Fatalf("utterance emitted during speech at frame %d", i)
		}
	}

	// 200ms at 16kHz is 3200 samples, reached on the seventh silent frame.
	var (
		u    Utterance
		done bool
	)
	pushes := 0
	for !done && pushes < 20 {
		u, done = seg.Push(silenceFrame())
		pushes++
	}
	if !done {
		t.Fatal("expected utterance after quiet period")
	}
	if pushes != 7 {
		t.Fatalf("expected utterance after 7 quiet frames, got %d", pushes)
	}
	if want := 256 + 17*frameSize; len(u.PCM) != want {
		t.Fatalf("expected %d samples, got %d", want, len(u.PCM))
	}
	if u.SampleRate != testRate {
		t.Fatalf("expected sample rate %d, got %d", testRate, u.SampleRate)
	}
}

func TestSegmenterCapsUtteranceLength(t *testing.T) {
	seg := NewSegmenter(SegmenterConfig{
		SampleRate:   testRate,
		MaxUtterance: 100 * time.Millisecond,
	})

	for i := 0; i < 3; i++ {
		if _, done := seg.Push(toneFrame(i * frameSize)); done {
			t.Fatalf("utterance emitted early at frame %d", i)
		}
	}
	u, done := seg.Push(toneFrame(3 * frameSize))
	if !done {
		t.Fatal("expected max length to close the utterance")
	}
	if len(u.PCM) != 4*frameSize {
		t.Fatalf("expected %d samples, got %d", 4*frameSize, len(u.PCM))
	}
}

func TestSegmenterResetDropsPartial(t *testing.T) {
	seg := NewSegmenter(SegmenterConfig{SampleRate: testRate})
	seg.Push(toneFrame(0))
	seg.Reset()
	for i := 0; i < 10; i++ {
		if _, done := seg.Push(silenceFrame()); done {
			t.Fatal("reset segmenter emitted an utterance from silence")
		}
	}
}

func TestUtteranceBytesLittleEndian(t *testing.T) {
	u := Utterance{SampleRate: testRate, PCM: []int16{1, -1, 0x0102}}
	got := u.Bytes()
	want := []byte{0x01, 0x00, 0xff, 0xff, 0x02, 0x01}
	if len(got) != len(want) {
		t.Fatalf("expected %d bytes, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("byte %d: expected %#x, got %#x", i, want[i], got[i])
		}
	}
	if d := u.Duration(); d != 187500*time.Nanosecond {
		t.Fatalf("unexpected duration %v", d)
	}
}
