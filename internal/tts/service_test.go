package tts

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-audio/wav"
	"github.com/loqalabs/akira/internal/apperr"
	"github.com/loqalabs/akira/internal/artifacts"
	"github.com/loqalabs/akira/internal/config"
	"github.com/spf13/afero"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testConfig() config.TTSConfig {
	cfg := config.Default().TTS
	cfg.OutputDir = "/audio"
	return cfg
}

func newTestService(t *testing.T, synth Synthesizer, initErr error) (*Service, afero.Fs) {
	t.Helper()
	ledger, err := artifacts.Open(context.Background(), config.ArtifactsConfig{Mode: "ephemeral"}, newLogger())
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	fs := afero.NewMemMapFs()
	cfg := testConfig()
	svc, err := NewService(cfg, synth, initErr, fs, ledger, newLogger())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, fs
}

type failingSynth struct{}

func (failingSynth) Synthesize(_ context.Context, _ SynthRequest, out io.WriteSeeker) error {
	_, _ = out.Write([]byte("RIFF partial"))
	return errors.New("disk full")
}

func countFiles(t *testing.T, fs afero.Fs) int {
	t.Helper()
	entries, err := afero.ReadDir(fs, "/audio")
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	return len(entries)
}

func TestSynthesizeWritesValidWav(t *testing.T) {
	svc, fs := newTestService(t, NewMockSynth(16000, 1), nil)

	art, err := svc.Synthesize(context.Background(), "  hello there  ")
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if filepath.Ext(art.Name) != ".wav" || len(art.Name) != 32+len(".wav") {
		t.Fatalf("unexpected artifact name %q", art.Name)
	}

	f, err := fs.Open(art.Path)
	if err != nil {
		t.Fatalf("open artifact: %v", err)
	}
	defer f.Close()
	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		t.Fatalf("expected a valid wav file")
	}
	if dec.NumChans != 1 || dec.SampleRate != 16000 {
		t.Fatalf("unexpected format: chans=%d rate=%d", dec.NumChans, dec.SampleRate)
	}
}

func TestSynthesizeUniqueNames(t *testing.T) {
	svc, fs := newTestService(t, NewMockSynth(16000, 1), nil)
	seen := map[string]bool{}
	for i := 0; i < 5; i++ {
		art, err := svc.Synthesize(context.Background(), "again")
		if err != nil {
			t.Fatalf("synthesize: %v", err)
		}
		if seen[art.Name] {
			t.Fatalf("duplicate name %s", art.Name)
		}
		seen[art.Name] = true
	}
	if n := countFiles(t, fs); n != 5 {
		t.Fatalf("expected 5 files, got %d", n)
	}
}

func TestSynthesizeEmptyText(t *testing.T) {
	svc, fs := newTestService(t, NewMockSynth(16000, 1), nil)
	for _, text := range []string{"", "   ", "\n\t"} {
		_, err := svc.Synthesize(context.Background(), text)
		if !apperr.Is(err, apperr.KindValidation) {
			t.Fatalf("expected validation error for %q, got %v", text, err)
		}
	}
	if n := countFiles(t, fs); n != 0 {
		t.Fatalf("expected no files, got %d", n)
	}
}

func TestSynthesizeEngineUnavailable(t *testing.T) {
	svc, _ := newTestService(t, nil, errors.New("no espeak"))
	if svc.Available() {
		t.Fatal("expected engine unavailable")
	}
	for i := 0; i < 2; i++ {
		_, err := svc.Synthesize(context.Background(), "hello")
		if !apperr.Is(err, apperr.KindEngineUnavailable) {
			t.Fatalf("attempt %d: expected engine unavailable, got %v", i, err)
		}
	}
}

func TestSynthesizeWriteErrorLeavesNoFile(t *testing.T) {
	svc, fs := newTestService(t, failingSynth{}, nil)
	_, err := svc.Synthesize(context.Background(), "hello")
	if !apperr.Is(err, apperr.KindProcessing) {
		t.Fatalf("expected processing error, got %v", err)
	}
	if n := countFiles(t, fs); n != 0 {
		t.Fatalf("expected partial file removed, got %d files", n)
	}
}

func TestClaimOnce(t *testing.T) {
	svc, fs := newTestService(t, NewMockSynth(16000, 1), nil)
	art, err := svc.Synthesize(context.Background(), "hello")
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}

	f, err := svc.Claim(context.Background(), art.Name)
	if err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if _, err := svc.Claim(context.Background(), art.Name); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found while the first download is open, got %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close download: %v", err)
	}
	if exists, _ := afero.Exists(fs, art.Path); exists {
		t.Fatal("expected file deleted after serve")
	}

	if _, err := svc.Claim(context.Background(), art.Name); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found on second claim, got %v", err)
	}
}

func TestClaimRejectsTraversal(t *testing.T) {
	svc, _ := newTestService(t, NewMockSynth(16000, 1), nil)
	for _, name := range []string{"../secret.wav", "a/b.wav", "..wav", ".wav", ".temp_speech.wav.123", "file.mp3", ""} {
		if _, err := svc.Claim(context.Background(), name); !apperr.Is(err, apperr.KindNotFound) {
			t.Fatalf("expected not found for %q, got %v", name, err)
		}
	}
}

func TestClaimUntrackedFileOnce(t *testing.T) {
	svc, fs := newTestService(t, NewMockSynth(16000, 1), nil)
	if err := afero.WriteFile(fs, "/audio/0123abcd.wav", []byte("RIFF left over"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	f, err := svc.Claim(context.Background(), "0123abcd.wav")
	if err != nil {
		t.Fatalf("expected untracked file to be served, got %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close download: %v", err)
	}
	if n := countFiles(t, fs); n != 0 {
		t.Fatalf("expected file deleted after serve, %d left", n)
	}
	if _, err := svc.Claim(context.Background(), "0123abcd.wav"); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found on second claim, got %v", err)
	}
}

func TestRecoverAdoptsLeftovers(t *testing.T) {
	svc, fs := newTestService(t, NewMockSynth(16000, 1), nil)
	for _, name := range []string{"/audio/old.wav", "/audio/.temp_speech.wav.42"} {
		if err := afero.WriteFile(fs, name, []byte("RIFF"), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	past := time.Now().Add(-3 * time.Hour)
	if err := fs.Chtimes("/audio/old.wav", past, past); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	adopted, err := svc.Recover(context.Background())
	if err != nil || adopted != 1 {
		t.Fatalf("expected one file adopted: adopted=%d err=%v", adopted, err)
	}
	if exists, _ := afero.Exists(fs, "/audio/.temp_speech.wav.42"); exists {
		t.Fatal("expected staging leftover removed")
	}

	removed, err := svc.Sweep(context.Background(), time.Hour)
	if err != nil || removed != 1 {
		t.Fatalf("expected adopted file swept: removed=%d err=%v", removed, err)
	}
	if n := countFiles(t, fs); n != 0 {
		t.Fatalf("expected empty output dir, %d left", n)
	}
}

// gatedSynth writes one payload per text; the text named in hold blocks until
// release is closed.
type gatedSynth struct {
	hold    string
	entered chan struct{}
	release chan struct{}
}

func (g *gatedSynth) Synthesize(_ context.Context, req SynthRequest, out io.WriteSeeker) error {
	if req.Text == g.hold {
		close(g.entered)
		<-g.release
	}
	_, err := out.Write([]byte(req.Text))
	return err
}

func TestConcurrentSpeakKeepsWholeRendering(t *testing.T) {
	long := strings.Repeat("L", 100)
	synth := &gatedSynth{hold: long, entered: make(chan struct{}), release: make(chan struct{})}
	svc, fs := newTestService(t, synth, nil)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if _, err := svc.Speak(context.Background(), long); err != nil {
			t.Errorf("long speak: %v", err)
		}
	}()
	<-synth.entered
	go func() {
		defer wg.Done()
		if _, err := svc.Speak(context.Background(), "SHORT"); err != nil {
			t.Errorf("short speak: %v", err)
		}
	}()
	close(synth.release)
	wg.Wait()

	data, err := afero.ReadFile(fs, "/audio/"+SpeechName+".wav")
	if err != nil {
		t.Fatalf("read speech file: %v", err)
	}
	if string(data) != "SHORT" {
		t.Fatalf("expected the later rendering intact, got len=%d %q", len(data), data)
	}
	if n := countFiles(t, fs); n != 1 {
		t.Fatalf("expected no staging files left, got %d files", n)
	}
}

func TestSweepRemovesOrphans(t *testing.T) {
	svc, fs := newTestService(t, NewMockSynth(16000, 1), nil)
	art, err := svc.Synthesize(context.Background(), "forgotten")
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}

	removed, err := svc.Sweep(context.Background(), time.Hour)
	if err != nil || removed != 0 {
		t.Fatalf("fresh file must survive sweep: removed=%d err=%v", removed, err)
	}

	svc.clock = func() time.Time { return time.Now().Add(2 * time.Hour) }
	removed, err = svc.Sweep(context.Background(), time.Hour)
	if err != nil || removed != 1 {
		t.Fatalf("expected one orphan removed: removed=%d err=%v", removed, err)
	}
	if exists, _ := afero.Exists(fs, art.Path); exists {
		t.Fatal("expected orphan deleted")
	}
}

func TestSpeakOverwritesFixedFile(t *testing.T) {
	svc, fs := newTestService(t, NewMockSynth(16000, 1), nil)
	for _, text := range []string{"Goodbye!", "Assistant deactivated."} {
		art, err := svc.Speak(context.Background(), text)
		if err != nil {
			t.Fatalf("speak: %v", err)
		}
		if art.Name != SpeechName+".wav" {
			t.Fatalf("unexpected speech name %q", art.Name)
		}
	}
	if n := countFiles(t, fs); n != 1 {
		t.Fatalf("expected a single speech file, got %d", n)
	}
}

func TestSpeakingTime(t *testing.T) {
	if d := speakingTime("one two three", 180); d != time.Second {
		t.Fatalf("expected 1s, got %v", d)
	}
	if d := speakingTime("", 150); d != 250*time.Millisecond {
		t.Fatalf("expected minimum duration, got %v", d)
	}
}
