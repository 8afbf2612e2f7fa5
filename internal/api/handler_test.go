package api

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/loqalabs/akira/internal/artifacts"
	"github.com/loqalabs/akira/internal/assistant"
	"github.com/loqalabs/akira/internal/capture"
	"github.com/loqalabs/akira/internal/cloudstt"
	"github.com/loqalabs/akira/internal/config"
	"github.com/loqalabs/akira/internal/notify"
	"github.com/loqalabs/akira/internal/stt"
	"github.com/loqalabs/akira/internal/tts"
	"github.com/spf13/afero"
)

type fixture struct {
	router    http.Handler
	fs        afero.Fs
	assistant *assistant.Assistant
}

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newFixture(t *testing.T, ttsInitErr error) *fixture {
	t.Helper()
	log := newLogger()
	cfg := config.Default()
	cfg.TTS.OutputDir = "/audio"
	cfg.STT.UploadDir = "/uploads"

	fs := afero.NewMemMapFs()
	ledger, err := artifacts.Open(context.Background(), cfg.Artifacts, log)
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	var synth tts.Synthesizer
	if ttsInitErr == nil {
		synth = tts.NewMockSynth(cfg.TTS.SampleRate, cfg.TTS.Channels)
	}
	speech, err := tts.NewService(cfg.TTS, synth, ttsInitErr, fs, ledger, log)
	if err != nil {
		t.Fatalf("new tts service: %v", err)
	}
	transcriber := stt.NewTranscriber(cfg.STT, stt.NewMockEngine(), fs, log)

	var session assistant.Session
	sink := notify.NewLogSink(log)
	listener := assistant.NewListener(&session, capture.NewMock(), cloudstt.NewMock(), speech, sink, assistant.ListenerOptions{}, log)
	asst := assistant.New(context.Background(), &session, listener, speech, sink, cfg.Listener.StopFarewell, log)
	t.Cleanup(func() {
		asst.Stop(context.Background())
		asst.Wait()
	})

	h := NewHandler(cfg.HTTP, asst, speech, transcriber, log)
	return &fixture{router: h.Router(), fs: fs, assistant: asst}
}

func (f *fixture) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) count(t *testing.T, dir string) int {
	t.Helper()
	entries, err := afero.ReadDir(f.fs, dir)
	if err != nil {
		t.Fatalf("read %s: %v", dir, err)
	}
	return len(entries)
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return v
}

func encodeWav(t *testing.T, sampleRate, channels int, samples []int) []byte {
	t.Helper()
	mem := afero.NewMemMapFs()
	f, err := mem.Create("/fixture.wav")
	if err != nil {
		t.Fatalf("create fixture: %v", err)
	}
	enc := wav.NewEncoder(f, sampleRate, 16, channels, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           samples,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("close encoder: %v", err)
	}
	f.Close()
	data, err := afero.ReadFile(mem, "/fixture.wav")
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	return data
}

func uploadRequest(t *testing.T, field string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile(field, "clip.wav")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/speech-to-text", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestTextToSpeechServesOnce(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, httptest.NewRequest(http.MethodPost, "/text-to-speech", strings.NewReader(`{"text":"hello there"}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decode[struct {
		AudioURL string `json:"audioUrl"`
	}](t, rec)
	prefix := "http://127.0.0.1:5001/static/audio/"
	if !strings.HasPrefix(resp.AudioURL, prefix) || !strings.HasSuffix(resp.AudioURL, ".wav") {
		t.Fatalf("unexpected audio url %q", resp.AudioURL)
	}
	path := strings.TrimPrefix(resp.AudioURL, "http://127.0.0.1:5001")

	first := f.do(t, httptest.NewRequest(http.MethodGet, path, nil))
	if first.Code != http.StatusOK {
		t.Fatalf("expected first fetch to succeed, got %d: %s", first.Code, first.Body.String())
	}
	if ct := first.Header().Get("Content-Type"); ct != "audio/wav" {
		t.Fatalf("expected audio/wav, got %q", ct)
	}
	if !bytes.HasPrefix(first.Body.Bytes(), []byte("RIFF")) {
		t.Fatal("expected WAV bytes")
	}
	if n := f.count(t, "/audio"); n != 0 {
		t.Fatalf("expected file deleted after serving, %d left", n)
	}

	second := f.do(t, httptest.NewRequest(http.MethodGet, path, nil))
	if second.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on second fetch, got %d", second.Code)
	}
	body := decode[struct {
		Error string `json:"error"`
	}](t, second)
	if !strings.Contains(body.Error, "not found") {
		t.Fatalf("unexpected error body %q", body.Error)
	}
}

func TestTextToSpeechRejectsBlankText(t *testing.T) {
	f := newFixture(t, nil)

	for _, payload := range []string{`{"text":""}`, `{"text":"   \t"}`, `{}`} {
		rec := f.do(t, httptest.NewRequest(http.MethodPost, "/text-to-speech", strings.NewReader(payload)))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("payload %s: expected 400, got %d", payload, rec.Code)
		}
		body := decode[struct {
			Error string `json:"error"`
		}](t, rec)
		if body.Error != "No text provided" {
			t.Fatalf("payload %s: unexpected error %q", payload, body.Error)
		}
	}
	if n := f.count(t, "/audio"); n != 0 {
		t.Fatalf("expected no files, found %d", n)
	}
}

func TestTextToSpeechEngineUnavailable(t *testing.T) {
	f := newFixture(t, errors.New("no voices installed"))

	rec := f.do(t, httptest.NewRequest(http.MethodPost, "/text-to-speech", strings.NewReader(`{"text":"hi"}`)))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	body := decode[struct {
		Error string `json:"error"`
	}](t, rec)
	if body.Error != "Text-to-speech engine not initialized properly" {
		t.Fatalf("unexpected error %q", body.Error)
	}
}

func TestServeAudioMissing(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/static/audio/deadbeef.wav", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestServeAudioUntrackedFileOnce(t *testing.T) {
	f := newFixture(t, nil)
	if err := afero.WriteFile(f.fs, "/audio/0123abcd.wav", []byte("RIFF from an earlier run"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	first := f.do(t, httptest.NewRequest(http.MethodGet, "/static/audio/0123abcd.wav", nil))
	if first.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", first.Code, first.Body.String())
	}
	if n := f.count(t, "/audio"); n != 0 {
		t.Fatalf("expected file deleted after serving, %d left", n)
	}
	second := f.do(t, httptest.NewRequest(http.MethodGet, "/static/audio/0123abcd.wav", nil))
	if second.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on second fetch, got %d", second.Code)
	}
}

func TestSpeechToTextSilence(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, uploadRequest(t, "audio", encodeWav(t, 16000, 1, make([]int, 16000))))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decode[struct {
		Text *string `json:"text"`
	}](t, rec)
	if body.Text == nil || *body.Text != "" {
		t.Fatalf("expected empty transcript, got %v", body.Text)
	}
	if n := f.count(t, "/uploads"); n != 0 {
		t.Fatalf("expected upload removed, %d left", n)
	}
}

func TestSpeechToTextRejects44100(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, uploadRequest(t, "audio", encodeWav(t, 44100, 1, make([]int, 4410))))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	body := decode[struct {
		Error string `json:"error"`
	}](t, rec)
	if body.Error != "Audio file must be WAV format with 16kHz mono audio." {
		t.Fatalf("unexpected error %q", body.Error)
	}
	if n := f.count(t, "/uploads"); n != 0 {
		t.Fatalf("expected upload removed, %d left", n)
	}
}

func TestSpeechToTextRejectsMissingDataChunk(t *testing.T) {
	f := newFixture(t, nil)

	var wavHeader bytes.Buffer
	wavHeader.WriteString("RIFF")
	_ = binary.Write(&wavHeader, binary.LittleEndian, uint32(28))
	wavHeader.WriteString("WAVEfmt ")
	_ = binary.Write(&wavHeader, binary.LittleEndian, []uint32{16})
	_ = binary.Write(&wavHeader, binary.LittleEndian, []uint16{1, 1})
	_ = binary.Write(&wavHeader, binary.LittleEndian, []uint32{16000, 32000})
	_ = binary.Write(&wavHeader, binary.LittleEndian, []uint16{2, 16})

	rec := f.do(t, uploadRequest(t, "audio", wavHeader.Bytes()))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
	if n := f.count(t, "/uploads"); n != 0 {
		t.Fatalf("expected upload removed, %d left", n)
	}
}

func TestSpeechToTextMissingFile(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, uploadRequest(t, "recording", []byte("RIFF")))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	body := decode[struct {
		Error string `json:"error"`
	}](t, rec)
	if body.Error != "No audio file provided" {
		t.Fatalf("unexpected error %q", body.Error)
	}
}

func TestStartStopAssistant(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, httptest.NewRequest(http.MethodPost, "/start-assistant", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("start: expected 200, got %d", rec.Code)
	}
	if msg := decode[struct {
		Message string `json:"message"`
	}](t, rec); msg.Message != "Assistant started" {
		t.Fatalf("unexpected start message %q", msg.Message)
	}

	status := decode[struct {
		State string `json:"state"`
	}](t, f.do(t, httptest.NewRequest(http.MethodGet, "/assistant/status", nil)))
	if status.State != "running" {
		t.Fatalf("expected running, got %q", status.State)
	}

	for i := 0; i < 2; i++ {
		rec := f.do(t, httptest.NewRequest(http.MethodPost, "/stop-assistant", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("stop %d: expected 200, got %d", i+1, rec.Code)
		}
		if msg := decode[struct {
			Message string `json:"message"`
		}](t, rec); msg.Message != "Assistant stopped" {
			t.Fatalf("unexpected stop message %q", msg.Message)
		}
	}
	f.assistant.Wait()

	status = decode[struct {
		State string `json:"state"`
	}](t, f.do(t, httptest.NewRequest(http.MethodGet, "/assistant/status", nil)))
	if status.State != "stopped" {
		t.Fatalf("expected stopped, got %q", status.State)
	}
}
