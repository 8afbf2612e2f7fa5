package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/loqalabs/akira/internal/capture"
	"github.com/loqalabs/akira/internal/cloudstt"
	"github.com/loqalabs/akira/internal/command"
	"github.com/loqalabs/akira/internal/notify"
	"github.com/loqalabs/akira/internal/protocol"
	"github.com/loqalabs/akira/internal/tts"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var errExit = errors.New("exit requested")

// Speaker renders a spoken reply. *tts.Service satisfies it.
type Speaker interface {
	Speak(ctx context.Context, text string) (tts.Artifact, error)
}

type ListenerOptions struct {
	ExitFarewell     string
	FailureBackoff   time.Duration
	RecognizeTimeout time.Duration
}

// Listener captures utterances, recognizes them and dispatches the resulting
// commands until its session stops.
type Listener struct {
	session    *Session
	capturer   capture.Capturer
	recognizer cloudstt.Recognizer
	speaker    Speaker
	sink       notify.Sink
	opts       ListenerOptions
	logger     *slog.Logger
	commands   metric.Int64Counter
	now        func() time.Time
}

func NewListener(session *Session, capturer capture.Capturer, recognizer cloudstt.Recognizer, speaker Speaker, sink notify.Sink, opts ListenerOptions, log *slog.Logger) *Listener {
	if opts.ExitFarewell == "" {
		opts.ExitFarewell = "Goodbye!"
	}
	l := &Listener{
		session:    session,
		capturer:   capturer,
		recognizer: recognizer,
		speaker:    speaker,
		sink:       sink,
		opts:       opts,
		logger:     log.With(slog.String("component", "listener")),
		now:        time.Now,
	}
	counter, err := otel.Meter("github.com/loqalabs/akira/assistant").Int64Counter("akira.listener.commands")
	if err != nil {
		l.logger.Warn("failed to create command counter", slogError(err))
	}
	l.commands = counter
	return l
}

// Run loops until ctx is cancelled, the session stops, or an exit phrase is
// heard. Failures inside an iteration are logged and never end the loop.
func (l *Listener) Run(ctx context.Context, id uint64) {
	logger := l.logger.With(slog.Uint64("session_id", id))
	logger.Info("listener started")
	defer logger.Info("listener stopped")

	for {
		if ctx.Err() != nil || !l.session.Running() {
			return
		}
		err := l.iterate(ctx, id, logger)
		if errors.Is(err, errExit) {
			return
		}
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			return
		}
		logger.Warn("listener iteration failed", slogError(err))
		if l.opts.FailureBackoff > 0 {
			timer := time.NewTimer(l.opts.FailureBackoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
		}
	}
}

func (l *Listener) iterate(ctx context.Context, id uint64, logger *slog.Logger) error {
	logger.Debug("listening for command")
	utterance, err := l.capturer.Capture(ctx)
	if err != nil {
		return fmt.Errorf("capture: %w", err)
	}

	phrase, err := l.recognize(ctx, utterance)
	if errors.Is(err, cloudstt.ErrNoSpeech) {
		logger.Info("could not understand audio")
		return nil
	}
	if err != nil {
		return fmt.Errorf("recognize: %w", err)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	action := command.Interpret(phrase)
	l.record(ctx, action)
	logger.Info("command heard", slog.String("phrase", phrase), slog.String("action", action.String()))

	switch {
	case action == command.ExitAssistant:
		if _, err := l.speaker.Speak(ctx, l.opts.ExitFarewell); err != nil {
			logger.Warn("failed to speak farewell", slogError(err))
		}
		if l.session.end(id) {
			l.publishStopped(ctx, id, logger)
		}
		return errExit
	case action.IsNavigation():
		ev := protocol.NavigationEvent{
			Command:   action.String(),
			Phrase:    phrase,
			SessionID: id,
			Timestamp: l.now().UTC(),
		}
		if err := l.sink.Navigation(ctx, ev); err != nil {
			logger.Warn("failed to deliver navigation command", slog.String("command", ev.Command), slogError(err))
		}
	default:
		logger.Info("unrecognized command", slog.String("phrase", phrase))
	}
	return nil
}

func (l *Listener) recognize(ctx context.Context, u capture.Utterance) (string, error) {
	if l.opts.RecognizeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.opts.RecognizeTimeout)
		defer cancel()
	}
	return l.recognizer.Recognize(ctx, u)
}

func (l *Listener) publishStopped(ctx context.Context, id uint64, logger *slog.Logger) {
	st := protocol.AssistantStatus{State: Stopped.String(), SessionID: id, Timestamp: l.now().UTC()}
	if err := l.sink.Status(context.WithoutCancel(ctx), st); err != nil {
		logger.Warn("failed to publish status", slogError(err))
	}
}

func (l *Listener) record(ctx context.Context, action command.Action) {
	if l.commands == nil {
		return
	}
	name := action.String()
	if name == "" {
		name = "unrecognized"
	}
	l.commands.Add(ctx, 1, metric.WithAttributes(attribute.String("action", name)))
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
