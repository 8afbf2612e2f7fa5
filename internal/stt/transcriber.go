package stt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/loqalabs/akira/internal/apperr"
	"github.com/loqalabs/akira/internal/config"
	"github.com/spf13/afero"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const formatMessage = "Audio file must be WAV format with 16kHz mono audio."

// SupportedRate reports whether the offline path accepts sampleRate.
func SupportedRate(sampleRate int) bool {
	return sampleRate == 8000 || sampleRate == 16000
}

// Transcriber is the offline recognition adapter behind the speech-to-text endpoint.
type Transcriber struct {
	cfg      config.STTConfig
	engine   Engine
	fs       afero.Fs
	logger   *slog.Logger
	requests metric.Int64Counter
	latency  metric.Float64Histogram
}

func NewTranscriber(cfg config.STTConfig, engine Engine, fs afero.Fs, log *slog.Logger) *Transcriber {
	t := &Transcriber{
		cfg:    cfg,
		engine: engine,
		fs:     fs,
		logger: log.With(slog.String("component", "stt-transcriber")),
	}
	meter := otel.Meter("github.com/loqalabs/akira/stt")
	counter, err := meter.Int64Counter("akira.stt.requests")
	if err != nil {
		t.logger.Warn("failed to create stt counter", slogError(err))
	}
	t.requests = counter
	latency, err := meter.Float64Histogram("akira.stt.transcribe.duration", metric.WithUnit("s"))
	if err != nil {
		t.logger.Warn("failed to create stt histogram", slogError(err))
	}
	t.latency = latency
	return t
}

// TranscribeUpload stages src in a temporary file, transcribes it and removes
// the file on every exit path.
func (t *Transcriber) TranscribeUpload(ctx context.Context, src io.Reader) (text string, err error) {
	start := time.Now()
	defer func() { t.record(ctx, start, err) }()

	dir := t.cfg.UploadDir
	if dir != "" {
		if err := t.fs.MkdirAll(dir, 0o755); err != nil {
			return "", apperr.Wrap(apperr.KindProcessing, "Error processing audio", err)
		}
	}
	tmp, err := afero.TempFile(t.fs, dir, "akira_upload_*.wav")
	if err != nil {
		return "", apperr.Wrap(apperr.KindProcessing, "Error processing audio", err)
	}
	defer func() {
		tmp.Close()
		if rmErr := t.fs.Remove(tmp.Name()); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			t.logger.Warn("failed to remove upload", slog.String("file", tmp.Name()), slogError(rmErr))
		}
	}()

	if _, err := io.Copy(tmp, src); err != nil {
		return "", apperr.Wrap(apperr.KindProcessing, "Error processing audio", err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return "", apperr.Wrap(apperr.KindProcessing, "Error processing audio", err)
	}
	return t.Transcribe(ctx, tmp)
}

// Transcribe validates the WAV layout in r and feeds its samples to a fresh
// decoder in fixed-size chunks.
func (t *Transcriber) Transcribe(ctx context.Context, r io.ReadSeeker) (string, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return "", apperr.New(apperr.KindUnsupportedFormat, formatMessage)
	}
	if dec.NumChans != 1 || dec.BitDepth != 16 || !SupportedRate(int(dec.SampleRate)) {
		return "", apperr.New(apperr.KindUnsupportedFormat, formatMessage)
	}
	// a header without a data chunk is not a usable recording
	if err := dec.FwdToPCM(); err != nil {
		t.logger.Debug("wav has no pcm data", slogError(err))
		return "", apperr.New(apperr.KindUnsupportedFormat, formatMessage)
	}
	if t.engine == nil {
		return "", apperr.New(apperr.KindEngineUnavailable, "Speech recognition engine not initialized properly")
	}

	decoder, err := t.engine.NewDecoder(int(dec.SampleRate))
	if err != nil {
		return "", apperr.Wrap(apperr.KindProcessing, "Error processing audio", err)
	}

	chunk := t.cfg.ChunkSamples
	if chunk <= 0 {
		chunk = 4000
	}
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: int(dec.SampleRate)},
		Data:           make([]int, chunk),
		SourceBitDepth: 16,
	}
	var partial string
	for {
		if err := ctx.Err(); err != nil {
			return "", apperr.Wrap(apperr.KindProcessing, "Error processing audio", err)
		}
		n, err := dec.PCMBuffer(buf)
		if err != nil {
			return "", apperr.Wrap(apperr.KindProcessing, "Error processing audio", err)
		}
		if n == 0 {
			break
		}
		done, err := decoder.AcceptWaveform(buf.Data[:n])
		if err != nil {
			return "", apperr.Wrap(apperr.KindProcessing, "Error processing audio", err)
		}
		if done {
			partial = decoder.Result()
			t.logger.Debug("intermediate result", slog.String("text", partial))
		}
	}

	text, err := decoder.FinalResult(ctx)
	if err != nil {
		return "", apperr.Wrap(apperr.KindProcessing, "Error processing audio", err)
	}
	return text, nil
}

func (t *Transcriber) record(ctx context.Context, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = apperr.KindOf(err).String()
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	if t.requests != nil {
		t.requests.Add(ctx, 1, attrs)
	}
	if t.latency != nil {
		t.latency.Record(ctx, time.Since(start).Seconds(), attrs)
	}
}

// NewEngine builds the engine for the pure-Go modes. The whisper engine lives
// in its own package and is selected by the caller.
func NewEngine(cfg config.STTConfig) (Engine, error) {
	switch cfg.Mode {
	case "mock", "":
		return NewMockEngine(), nil
	case "exec":
		return NewExecEngine(cfg)
	default:
		return nil, fmt.Errorf("stt mode %q is not built by stt.NewEngine", cfg.Mode)
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
