package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loqalabs/akira/internal/api"
	"github.com/loqalabs/akira/internal/artifacts"
	"github.com/loqalabs/akira/internal/assistant"
	"github.com/loqalabs/akira/internal/bus"
	"github.com/loqalabs/akira/internal/config"
	"github.com/loqalabs/akira/internal/stt"
	"github.com/loqalabs/akira/internal/tts"
	cronlib "github.com/robfig/cron/v3"
	"github.com/spf13/afero"
)

type Runtime struct {
	cfg           config.Config
	logger        *slog.Logger
	httpServer    *http.Server
	metricsServer *http.Server
	telemetry     *telemetry
	bus           *bus.Client
	closers       []io.Closer
	ready         atomic.Bool
	wg            sync.WaitGroup
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	tel, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.telemetry = tel
	defer r.closeAll()

	ledger, err := artifacts.Open(ctx, r.cfg.Artifacts, r.logger.With(slog.String("component", "artifacts")))
	if err != nil {
		return fmt.Errorf("failed to open artifact ledger: %w", err)
	}
	r.closers = append(r.closers, ledger)
	if err := tel.observePending(ledger); err != nil {
		r.logger.Warn("failed to register pending audio gauge", slogError(err))
	}

	sink, err := r.setupNotify(ctx)
	if err != nil {
		return err
	}

	synth, synthCloser, synthErr := tts.NewEngine(r.cfg.TTS)
	if synthErr != nil {
		// The service keeps running; synthesis requests report EngineUnavailable.
		r.logger.Error("text-to-speech engine failed to initialize", slogError(synthErr))
	}
	if synthCloser != nil {
		r.closers = append(r.closers, synthCloser)
	}
	speech, err := tts.NewService(r.cfg.TTS, synth, synthErr, afero.NewOsFs(), ledger, r.logger)
	if err != nil {
		return err
	}
	if _, err := speech.Recover(ctx); err != nil {
		r.logger.Warn("failed to recover audio from a previous run", slogError(err))
	}

	engine, err := r.buildSTTEngine()
	if err != nil {
		return err
	}
	transcriber := stt.NewTranscriber(r.cfg.STT, engine, afero.NewOsFs(), r.logger)

	capturer, err := r.buildCapturer()
	if err != nil {
		return err
	}
	recognizer, err := r.buildRecognizer()
	if err != nil {
		return err
	}

	session := &assistant.Session{}
	listener := assistant.NewListener(session, capturer, recognizer, speech, sink, assistant.ListenerOptions{
		ExitFarewell:     r.cfg.Listener.ExitFarewell,
		FailureBackoff:   time.Duration(r.cfg.Listener.FailureBackoffMS) * time.Millisecond,
		RecognizeTimeout: time.Duration(r.cfg.Listener.RecognizeTimeoutMS) * time.Millisecond,
	}, r.logger)
	asst := assistant.New(ctx, session, listener, speech, sink, r.cfg.Listener.StopFarewell, r.logger)

	router := api.NewHandler(r.cfg.HTTP, asst, speech, transcriber, r.logger).Router()
	router.Get("/healthz", r.handleHealth)
	router.Get("/readyz", r.handleReady)

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	r.serve(r.httpServer, "http")

	if tel.metrics != nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", tel.metrics)
		r.metricsServer = &http.Server{
			Addr:              r.cfg.Telemetry.PrometheusBind,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		r.serve(r.metricsServer, "metrics")
	}

	r.startSweeper(ctx, speech)

	r.ready.Store(true)
	r.logger.Info("runtime started", slog.String("addr", addr), slog.String("public_url", r.cfg.HTTP.PublicBaseURL))

	<-ctx.Done()
	r.ready.Store(false)
	r.logger.Info("runtime stopping")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slogError(err))
	}
	if r.metricsServer != nil {
		if err := r.metricsServer.Shutdown(shutdownCtx); err != nil {
			r.logger.Error("metrics shutdown error", slogError(err))
		}
	}
	if err := asst.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("assistant shutdown error", slogError(err))
	}
	r.wg.Wait()

	if r.telemetry != nil {
		if err := r.telemetry.shutdown(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slogError(err))
		}
	}

	return nil
}

func (r *Runtime) serve(srv *http.Server, name string) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.logger.Error(name+" server failed", slogError(err))
		}
	}()
}

// startSweeper removes generated audio that nobody fetched.
func (r *Runtime) startSweeper(ctx context.Context, speech *tts.Service) {
	ttl := time.Duration(r.cfg.Artifacts.OrphanTTLMinutes) * time.Minute
	interval := time.Duration(r.cfg.Artifacts.SweepIntervalSeconds) * time.Second
	if ttl <= 0 || interval <= 0 {
		return
	}
	scheduler := cronlib.New()
	_, err := scheduler.AddFunc("@every "+interval.String(), func() {
		if _, err := speech.Sweep(ctx, ttl); err != nil && ctx.Err() == nil {
			r.logger.Warn("orphan sweep failed", slogError(err))
		}
	})
	if err != nil {
		r.logger.Warn("failed to schedule orphan sweep", slogError(err))
		return
	}
	scheduler.Start()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		<-ctx.Done()
		<-scheduler.Stop().Done()
	}()
}

func (r *Runtime) closeAll() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i].Close(); err != nil {
			r.logger.Warn("close failed", slogError(err))
		}
	}
	r.closers = nil
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if !r.ready.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
		return
	}
	if r.bus != nil && !r.bus.Healthy() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("bus disconnected"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
