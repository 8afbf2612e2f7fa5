package tts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/loqalabs/akira/internal/apperr"
	"github.com/loqalabs/akira/internal/config"
	"github.com/spf13/afero"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// SpeechName is the fixed file the farewell utterances are written to.
const SpeechName = "temp_speech"

// stagingPrefix marks files that are still being written and are never served.
const stagingPrefix = "."

// Ledger tracks generated files until their single download.
type Ledger interface {
	Register(ctx context.Context, name string) error
	Claim(ctx context.Context, name string) (bool, error)
	Adopt(ctx context.Context, name string, created time.Time) error
	Expired(ctx context.Context, cutoff time.Time) ([]string, error)
}

// Artifact is a generated audio file.
type Artifact struct {
	Name string
	Path string
}

// Service is the synthesis adapter: it owns the output directory and the
// engine, and hands out uniquely named files.
type Service struct {
	cfg      config.TTSConfig
	synth    Synthesizer
	initErr  error
	fs       afero.Fs
	ledger   Ledger
	logger   *slog.Logger
	mu       sync.Mutex
	serveMu  sync.Mutex
	serving  map[string]bool
	newName  func() string
	clock    func() time.Time
	requests metric.Int64Counter
	latency  metric.Float64Histogram
}

// NewService wires the adapter. initErr is the error returned when the engine
// was built at startup; when set every synthesis fails with EngineUnavailable.
func NewService(cfg config.TTSConfig, synth Synthesizer, initErr error, fs afero.Fs, ledger Ledger, log *slog.Logger) (*Service, error) {
	if err := fs.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	s := &Service{
		cfg:     cfg,
		synth:   synth,
		initErr: initErr,
		fs:      fs,
		ledger:  ledger,
		serving: make(map[string]bool),
		logger:  log.With(slog.String("component", "tts-service")),
		newName: func() string { return strings.ReplaceAll(uuid.NewString(), "-", "") },
		clock:   time.Now,
	}
	meter := otel.Meter("github.com/loqalabs/akira/tts")
	counter, err := meter.Int64Counter("akira.tts.requests")
	if err != nil {
		s.logger.Warn("failed to create tts counter", slogError(err))
	}
	s.requests = counter
	latency, err := meter.Float64Histogram("akira.tts.synthesis.duration", metric.WithUnit("s"))
	if err != nil {
		s.logger.Warn("failed to create tts histogram", slogError(err))
	}
	s.latency = latency
	return s, nil
}

// Available reports whether the engine initialized.
func (s *Service) Available() bool {
	return s.synth != nil && s.initErr == nil
}

func (s *Service) checkEngine() error {
	if s.Available() {
		return nil
	}
	return apperr.Wrap(apperr.KindEngineUnavailable, "Text-to-speech engine not initialized properly", s.initErr)
}

// Synthesize renders text to a new uniquely named file and blocks until it is written.
func (s *Service) Synthesize(ctx context.Context, text string) (Artifact, error) {
	start := time.Now()
	art, err := s.synthesize(ctx, text, s.newName()+s.cfg.Extension)
	s.record(ctx, start, err)
	return art, err
}

// Speak renders a farewell or status utterance to SpeechName, replacing any
// previous one.
func (s *Service) Speak(ctx context.Context, text string) (Artifact, error) {
	return s.synthesize(ctx, text, SpeechName+s.cfg.Extension)
}

func (s *Service) synthesize(ctx context.Context, text, name string) (Artifact, error) {
	if err := s.checkEngine(); err != nil {
		return Artifact{}, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return Artifact{}, apperr.Validation("No text provided")
	}

	if s.cfg.TimeoutMS > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(s.cfg.TimeoutMS)*time.Millisecond)
		defer cancel()
	}

	path := filepath.Join(s.cfg.OutputDir, name)
	if err := s.write(ctx, path, SynthRequest{Text: text, Voice: s.cfg.Voice, Rate: s.cfg.Rate}); err != nil {
		return Artifact{}, apperr.Wrap(apperr.KindProcessing, "Error saving audio file", err)
	}

	if s.ledger != nil {
		if err := s.ledger.Register(ctx, name); err != nil {
			_ = s.fs.Remove(path)
			return Artifact{}, apperr.Wrap(apperr.KindProcessing, "Error registering audio file", err)
		}
	}
	s.logger.Debug("audio generated", slog.String("file", name))
	return Artifact{Name: name, Path: path}, nil
}

// write renders into a hidden staging file and renames it over path, so
// readers only ever see complete renderings.
func (s *Service) write(ctx context.Context, path string, req SynthRequest) error {
	// the engine is not reentrant
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := afero.TempFile(s.fs, filepath.Dir(path), stagingPrefix+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	staged := f.Name()
	err = s.synth.Synthesize(ctx, req, f)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = s.fs.Chmod(staged, 0o644)
	}
	if err == nil {
		err = s.fs.Rename(staged, path)
	}
	if err != nil {
		if rmErr := s.fs.Remove(staged); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			s.logger.Warn("failed to remove partial audio file", slog.String("file", staged), slogError(rmErr))
		}
	}
	return err
}

// ValidName reports whether name could have been produced by this service.
func (s *Service) ValidName(name string) bool {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, stagingPrefix) || strings.Contains(name, "..") {
		return false
	}
	return strings.HasSuffix(name, s.cfg.Extension) && len(name) > len(s.cfg.Extension)
}

// Claim hands out the single download of name. Closing the returned file
// deletes it. A file on disk that the ledger does not know, such as one left
// by an earlier run, is served once as well.
func (s *Service) Claim(ctx context.Context, name string) (afero.File, error) {
	notFound := apperr.NotFound(fmt.Sprintf("File %s not found", name))
	if !s.ValidName(name) {
		return nil, notFound
	}
	ok, err := s.take(ctx, name, true)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindProcessing, "Error serving audio", err)
	}
	if !ok {
		return nil, notFound
	}
	f, err := s.fs.Open(filepath.Join(s.cfg.OutputDir, name))
	if err != nil {
		s.release(name)
		if errors.Is(err, os.ErrNotExist) {
			return nil, notFound
		}
		return nil, apperr.Wrap(apperr.KindProcessing, "Error serving audio", err)
	}
	return &download{File: f, svc: s, name: name}, nil
}

// take marks name as being served. Registered names are claimed from the
// ledger; with untracked set, a file present on disk but missing from the
// ledger is taken too.
func (s *Service) take(ctx context.Context, name string, untracked bool) (bool, error) {
	s.serveMu.Lock()
	defer s.serveMu.Unlock()
	if s.serving[name] {
		return false, nil
	}
	ok := s.ledger == nil
	if s.ledger != nil {
		claimed, err := s.ledger.Claim(ctx, name)
		if err != nil {
			return false, err
		}
		ok = claimed
	}
	if !ok && untracked {
		exists, err := afero.Exists(s.fs, filepath.Join(s.cfg.OutputDir, name))
		if err != nil {
			return false, err
		}
		ok = exists
	}
	if ok {
		s.serving[name] = true
	}
	return ok, nil
}

func (s *Service) release(name string) {
	s.serveMu.Lock()
	delete(s.serving, name)
	s.serveMu.Unlock()
}

type download struct {
	afero.File
	svc  *Service
	name string
}

// Close releases the file and deletes it.
func (d *download) Close() error {
	err := d.File.Close()
	rmErr := d.svc.Remove(d.name)
	d.svc.release(d.name)
	if err == nil && rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
		err = rmErr
	}
	return err
}

// Remove deletes a served or abandoned file.
func (s *Service) Remove(name string) error {
	if !s.ValidName(name) {
		return apperr.NotFound(fmt.Sprintf("File %s not found", name))
	}
	return s.fs.Remove(filepath.Join(s.cfg.OutputDir, name))
}

// Recover prepares the output directory after a restart: staging leftovers
// are deleted and finished files are recorded with their modification time so
// the sweeper can expire them.
func (s *Service) Recover(ctx context.Context) (int, error) {
	entries, err := afero.ReadDir(s.fs, s.cfg.OutputDir)
	if err != nil {
		return 0, fmt.Errorf("read output dir: %w", err)
	}
	adopted := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, stagingPrefix) {
			if err := s.fs.Remove(filepath.Join(s.cfg.OutputDir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
				s.logger.Warn("failed to remove staging file", slog.String("file", name), slogError(err))
			}
			continue
		}
		if !s.ValidName(name) || s.ledger == nil {
			continue
		}
		if err := s.ledger.Adopt(ctx, name, entry.ModTime()); err != nil {
			return adopted, fmt.Errorf("adopt %s: %w", name, err)
		}
		adopted++
	}
	if adopted > 0 {
		s.logger.Info("recovered unserved audio files", slog.Int("count", adopted))
	}
	return adopted, nil
}

// Sweep deletes files that were generated more than ttl ago and never fetched.
func (s *Service) Sweep(ctx context.Context, ttl time.Duration) (int, error) {
	if s.ledger == nil || ttl <= 0 {
		return 0, nil
	}
	names, err := s.ledger.Expired(ctx, s.clock().Add(-ttl))
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, name := range names {
		ok, err := s.take(ctx, name, false)
		if err != nil || !ok {
			continue
		}
		err = s.Remove(name)
		s.release(name)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("failed to remove orphaned audio", slog.String("file", name), slogError(err))
			continue
		}
		removed++
	}
	if removed > 0 {
		s.logger.Info("swept orphaned audio files", slog.Int("count", removed))
	}
	return removed, nil
}

func (s *Service) record(ctx context.Context, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = apperr.KindOf(err).String()
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	if s.requests != nil {
		s.requests.Add(ctx, 1, attrs)
	}
	if s.latency != nil {
		s.latency.Record(ctx, time.Since(start).Seconds(), attrs)
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
