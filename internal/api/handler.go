package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/loqalabs/akira/internal/apperr"
	"github.com/loqalabs/akira/internal/config"
	"github.com/loqalabs/akira/internal/protocol"
	"github.com/loqalabs/akira/internal/tts"
	"github.com/spf13/afero"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const audioPath = "/static/audio/"

type Assistant interface {
	Start() bool
	Stop(ctx context.Context) bool
	Status() protocol.AssistantStatus
}

// Speech is the synthesis side; *tts.Service satisfies it.
type Speech interface {
	Available() bool
	Synthesize(ctx context.Context, text string) (tts.Artifact, error)
	// Claim returns the single download of name; closing it deletes the file.
	Claim(ctx context.Context, name string) (afero.File, error)
}

// Transcriber is the offline recognition side; *stt.Transcriber satisfies it.
type Transcriber interface {
	TranscribeUpload(ctx context.Context, src io.Reader) (string, error)
}

type Handler struct {
	cfg         config.HTTPConfig
	assistant   Assistant
	speech      Speech
	transcriber Transcriber
	logger      *slog.Logger
	tracer      trace.Tracer
	served      metric.Int64Counter
}

func NewHandler(cfg config.HTTPConfig, assistant Assistant, speech Speech, transcriber Transcriber, log *slog.Logger) *Handler {
	h := &Handler{
		cfg:         cfg,
		assistant:   assistant,
		speech:      speech,
		transcriber: transcriber,
		logger:      log.With(slog.String("component", "http")),
		tracer:      otel.Tracer("github.com/loqalabs/akira/api"),
	}
	counter, err := otel.Meter("github.com/loqalabs/akira/api").Int64Counter("akira.audio.served")
	if err != nil {
		h.logger.Warn("failed to create audio counter", slogError(err))
	}
	h.served = counter
	return h
}

func (h *Handler) StartAssistant(w http.ResponseWriter, r *http.Request) {
	h.assistant.Start()
	writeJSON(w, http.StatusOK, protocol.MessageResponse{Message: "Assistant started"})
}

func (h *Handler) StopAssistant(w http.ResponseWriter, r *http.Request) {
	h.assistant.Stop(r.Context())
	writeJSON(w, http.StatusOK, protocol.MessageResponse{Message: "Assistant stopped"})
}

func (h *Handler) AssistantStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.assistant.Status())
}

func (h *Handler) TextToSpeech(w http.ResponseWriter, r *http.Request) {
	if !h.speech.Available() {
		h.writeError(w, r, apperr.New(apperr.KindEngineUnavailable, "Text-to-speech engine not initialized properly"))
		return
	}

	var req protocol.SynthesisRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.writeError(w, r, apperr.Wrap(apperr.KindValidation, "Invalid request body", err))
		return
	}

	ctx, span := h.tracer.Start(r.Context(), "tts.synthesize", trace.WithAttributes(attribute.Int("text.length", len(req.Text))))
	art, err := h.speech.Synthesize(ctx, req.Text)
	endSpan(span, err)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, protocol.SynthesisResponse{AudioURL: h.audioURL(art.Name)})
}

func (h *Handler) SpeechToText(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadBytes)
	file, _, err := r.FormFile("audio")
	if r.MultipartForm != nil {
		defer func() { _ = r.MultipartForm.RemoveAll() }()
	}
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, r, apperr.Validation("Audio file too large"))
			return
		}
		h.writeError(w, r, apperr.Validation("No audio file provided"))
		return
	}
	defer file.Close()

	ctx, span := h.tracer.Start(r.Context(), "stt.transcribe")
	text, err := h.transcriber.TranscribeUpload(ctx, file)
	endSpan(span, err)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, protocol.TranscriptResponse{Text: text})
}

// ServeAudio streams a generated file once and deletes it.
func (h *Handler) ServeAudio(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "filename")
	f, err := h.speech.Claim(r.Context(), name)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	defer func() {
		if err := f.Close(); err != nil {
			h.logger.Warn("failed to delete served audio", slog.String("file", name), slogError(err))
			return
		}
		h.logger.Debug("deleted audio after serving", slog.String("file", name))
	}()

	info, err := f.Stat()
	if err != nil {
		h.writeError(w, r, apperr.Wrap(apperr.KindProcessing, "Error serving audio", err))
		return
	}
	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Cache-Control", "no-store")
	http.ServeContent(w, r, name, info.ModTime(), f)
	if h.served != nil {
		h.served.Add(r.Context(), 1)
	}
}

func (h *Handler) audioURL(name string) string {
	return strings.TrimRight(h.cfg.PublicBaseURL, "/") + audioPath + name
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.Status(err)
	attrs := []any{
		slog.String("path", r.URL.Path),
		slog.String("kind", apperr.KindOf(err).String()),
		slog.Int("status", status),
		slogError(err),
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", attrs...)
	} else {
		h.logger.Info("request rejected", attrs...)
	}
	writeJSON(w, status, protocol.ErrorResponse{Error: err.Error()})
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, apperr.KindOf(err).String())
	}
	span.End()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
