//go:build whisper

// Package whisper adapts whisper.cpp to the offline stt.Engine contract.
// It requires cgo and libwhisper and is only built with the whisper tag.
package whisper

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
	"github.com/loqalabs/akira/internal/stt"
)

const modelRate = 16000

type Engine struct {
	model    whisper.Model
	language string
	mu       sync.Mutex
}

// Load opens the ggml model at path.
func Load(path, language string) (*Engine, error) {
	model, err := whisper.New(path)
	if err != nil {
		return nil, fmt.Errorf("load whisper model: %w", err)
	}
	return &Engine{model: model, language: language}, nil
}

func (e *Engine) Close() error {
	return e.model.Close()
}

func (e *Engine) NewDecoder(sampleRate int) (stt.Decoder, error) {
	if !stt.SupportedRate(sampleRate) {
		return nil, fmt.Errorf("unsupported sample rate %d", sampleRate)
	}
	return &decoder{engine: e, sampleRate: sampleRate}, nil
}

type decoder struct {
	engine     *Engine
	sampleRate int
	samples    []float32
}

// AcceptWaveform buffers audio; whisper decodes a whole utterance at once.
func (d *decoder) AcceptWaveform(samples []int) (bool, error) {
	d.samples = append(d.samples, stt.Normalize(samples)...)
	return false, nil
}

func (d *decoder) Result() string { return "" }

func (d *decoder) FinalResult(ctx context.Context) (string, error) {
	if len(d.samples) == 0 {
		return "", nil
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data := stt.Resample(d.samples, d.sampleRate, modelRate)

	d.engine.mu.Lock()
	defer d.engine.mu.Unlock()

	wctx, err := d.engine.model.NewContext()
	if err != nil {
		return "", err
	}
	if d.engine.language != "" {
		if err := wctx.SetLanguage(d.engine.language); err != nil {
			return "", fmt.Errorf("set language: %w", err)
		}
	}
	if err := wctx.Process(data, nil); err != nil {
		return "", err
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		text := strings.TrimSpace(segment.Text)
		// bracketed segments are non-speech annotations such as [BLANK_AUDIO]
		if text == "" || strings.HasPrefix(text, "[") || strings.HasPrefix(text, "(") {
			continue
		}
		parts = append(parts, text)
	}
	return strings.Join(parts, " "), nil
}
