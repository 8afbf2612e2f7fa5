package runtime

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/loqalabs/akira/internal/bus"
	"github.com/loqalabs/akira/internal/capture"
	"github.com/loqalabs/akira/internal/cloudstt"
	"github.com/loqalabs/akira/internal/natsserver"
	"github.com/loqalabs/akira/internal/notify"
	"github.com/loqalabs/akira/internal/stt"
)

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// setupNotify always logs navigation commands and, with the bus enabled, also
// publishes them.
func (r *Runtime) setupNotify(ctx context.Context) (notify.Sink, error) {
	sinks := notify.Multi{notify.NewLogSink(r.logger)}
	if !r.cfg.Bus.Enabled {
		return sinks, nil
	}

	busCfg := r.cfg.Bus
	embedded, err := natsserver.Start(busCfg, r.logger.With(slog.String("component", "nats")))
	if err != nil {
		return nil, fmt.Errorf("failed to start embedded NATS: %w", err)
	}
	if embedded != nil {
		r.closers = append(r.closers, closerFunc(func() error {
			embedded.Shutdown()
			return nil
		}))
		busCfg.Servers = []string{embedded.ClientURL()}
	}

	client, err := bus.Connect(ctx, busCfg, r.logger.With(slog.String("component", "bus")))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to bus: %w", err)
	}
	r.closers = append(r.closers, closerFunc(func() error {
		client.Close()
		return nil
	}))
	r.bus = client
	return append(sinks, notify.NewBusSink(client, busCfg.NavigationSubject)), nil
}

func (r *Runtime) buildSTTEngine() (stt.Engine, error) {
	if r.cfg.STT.Mode != "whisper" {
		engine, err := stt.NewEngine(r.cfg.STT)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize speech-to-text engine: %w", err)
		}
		return engine, nil
	}
	engine, closer, err := loadWhisper(r.cfg.STT)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize speech-to-text engine: %w", err)
	}
	r.closers = append(r.closers, closer)
	r.logger.Info("whisper model loaded", slog.String("model", r.cfg.STT.ModelPath))
	return engine, nil
}

func (r *Runtime) buildCapturer() (capture.Capturer, error) {
	if r.cfg.Listener.Capture == "portaudio" {
		c, err := openMicrophone(r.cfg.Listener, r.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize microphone: %w", err)
		}
		return c, nil
	}
	// Without a microphone the listener idles until stopped.
	return capture.NewMock(), nil
}

func (r *Runtime) buildRecognizer() (cloudstt.Recognizer, error) {
	lc := r.cfg.Listener
	if lc.Recognizer != "yandex" {
		return cloudstt.NewMock(), nil
	}
	y, err := cloudstt.NewYandex(cloudstt.YandexConfig{
		Endpoint: lc.YandexEndpoint,
		IAMToken: lc.YandexIAMToken,
		FolderID: lc.YandexFolderID,
		Language: lc.Language,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cloud recognizer: %w", err)
	}
	r.closers = append(r.closers, y)
	return y, nil
}
