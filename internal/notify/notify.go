// Package notify delivers assistant events to whoever drives the UI.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/loqalabs/akira/internal/protocol"
)

type Sink interface {
	Navigation(ctx context.Context, ev protocol.NavigationEvent) error
	Status(ctx context.Context, st protocol.AssistantStatus) error
}

// LogSink writes events to the structured log.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(log *slog.Logger) *LogSink {
	return &LogSink{logger: log.With(slog.String("component", "notify"))}
}

func (s *LogSink) Navigation(ctx context.Context, ev protocol.NavigationEvent) error {
	s.logger.InfoContext(ctx, "navigation command",
		slog.String("command", ev.Command),
		slog.String("phrase", ev.Phrase),
		slog.Uint64("session_id", ev.SessionID),
	)
	return nil
}

func (s *LogSink) Status(ctx context.Context, st protocol.AssistantStatus) error {
	s.logger.InfoContext(ctx, "assistant status",
		slog.String("state", st.State),
		slog.Uint64("session_id", st.SessionID),
	)
	return nil
}

// Publisher is satisfied by *bus.Client.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// BusSink publishes JSON-encoded events.
type BusSink struct {
	pub               Publisher
	navigationSubject string
}

func NewBusSink(pub Publisher, navigationSubject string) *BusSink {
	if navigationSubject == "" {
		navigationSubject = protocol.SubjectNavigation
	}
	return &BusSink{pub: pub, navigationSubject: navigationSubject}
}

func (s *BusSink) Navigation(ctx context.Context, ev protocol.NavigationEvent) error {
	return s.publish(ctx, s.navigationSubject, ev)
}

func (s *BusSink) Status(ctx context.Context, st protocol.AssistantStatus) error {
	return s.publish(ctx, protocol.SubjectStatus, st)
}

func (s *BusSink) publish(ctx context.Context, subject string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", subject, err)
	}
	return s.pub.Publish(ctx, subject, data)
}

// Multi fans out to every sink and joins their errors.
type Multi []Sink

func (m Multi) Navigation(ctx context.Context, ev protocol.NavigationEvent) error {
	var errs []error
	for _, s := range m {
		if err := s.Navigation(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Status(ctx context.Context, st protocol.AssistantStatus) error {
	var errs []error
	for _, s := range m {
		if err := s.Status(ctx, st); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
