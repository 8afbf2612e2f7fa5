// Package assistant owns the voice listener and its start/stop lifecycle.
package assistant

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/loqalabs/akira/internal/notify"
	"github.com/loqalabs/akira/internal/protocol"
)

type Assistant struct {
	base         context.Context
	session      *Session
	listener     *Listener
	speaker      Speaker
	sink         notify.Sink
	stopFarewell string
	logger       *slog.Logger
	wg           sync.WaitGroup
}

// New builds an assistant whose listener periods derive from base; cancelling
// base stops any running listener.
func New(base context.Context, session *Session, listener *Listener, speaker Speaker, sink notify.Sink, stopFarewell string, log *slog.Logger) *Assistant {
	if stopFarewell == "" {
		stopFarewell = "Assistant deactivated."
	}
	return &Assistant{
		base:         base,
		session:      session,
		listener:     listener,
		speaker:      speaker,
		sink:         sink,
		stopFarewell: stopFarewell,
		logger:       log.With(slog.String("component", "assistant")),
	}
}

// Start spawns the listener unless one is already running. It reports whether
// a new listener was spawned.
func (a *Assistant) Start() bool {
	ctx, id, ok := a.session.Start(a.base)
	if !ok {
		a.logger.Info("assistant already running", slog.Uint64("session_id", a.session.ID()))
		return false
	}
	a.logger.Info("assistant started", slog.Uint64("session_id", id))
	a.publish(ctx, Running, id)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.listener.Run(ctx, id)
	}()
	return true
}

// Stop clears the activity flag and speaks the deactivation message. It is
// safe to call when already stopped and reports whether a listener was
// running.
func (a *Assistant) Stop(ctx context.Context) bool {
	id, stopped := a.session.Stop()
	if stopped {
		a.logger.Info("assistant stopped", slog.Uint64("session_id", id))
		a.publish(ctx, Stopped, id)
	}
	if _, err := a.speaker.Speak(ctx, a.stopFarewell); err != nil {
		a.logger.Warn("failed to speak deactivation message", slogError(err))
	}
	return stopped
}

// Status reports the current state.
func (a *Assistant) Status() protocol.AssistantStatus {
	st := protocol.AssistantStatus{State: a.session.State().String(), Timestamp: time.Now().UTC()}
	if a.session.Running() {
		st.SessionID = a.session.ID()
	}
	return st
}

// Shutdown stops any running listener without speaking and waits for it to
// return or for ctx to end.
func (a *Assistant) Shutdown(ctx context.Context) error {
	if id, ok := a.session.Stop(); ok {
		a.publish(ctx, Stopped, id)
	}
	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait blocks until every spawned listener has returned.
func (a *Assistant) Wait() {
	a.wg.Wait()
}

func (a *Assistant) publish(ctx context.Context, state State, id uint64) {
	st := protocol.AssistantStatus{State: state.String(), SessionID: id, Timestamp: time.Now().UTC()}
	if err := a.sink.Status(context.WithoutCancel(ctx), st); err != nil {
		a.logger.Warn("failed to publish status", slogError(err))
	}
}
