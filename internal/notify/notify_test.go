package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/loqalabs/akira/internal/protocol"
)

type recordingPublisher struct {
	subjects []string
	payloads [][]byte
	err      error
}

func (p *recordingPublisher) Publish(_ context.Context, subject string, data []byte) error {
	p.subjects = append(p.subjects, subject)
	p.payloads = append(p.payloads, data)
	return p.err
}

func TestLogSinkWritesCommand(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogSink(slog.New(slog.NewJSONHandler(&buf, nil)))

	err := sink.Navigation(context.Background(), protocol.NavigationEvent{Command: "scroll_down", Phrase: "go down", SessionID: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, `"command":"scroll_down"`) || !strings.Contains(out, `"component":"notify"`) {
		t.Fatalf("unexpected log line %s", out)
	}
}

func TestBusSinkPublishesJSON(t *testing.T) {
	pub := &recordingPublisher{}
	sink := NewBusSink(pub, "")
	ev := protocol.NavigationEvent{Command: "home", Phrase: "take me home", SessionID: 1, Timestamp: time.Unix(0, 0).UTC()}

	if err := sink.Navigation(context.Background(), ev); err != nil {
		t.Fatalf("navigation: %v", err)
	}
	if err := sink.Status(context.Background(), protocol.AssistantStatus{State: "running"}); err != nil {
		t.Fatalf("status: %v", err)
	}
	if len(pub.subjects) != 2 || pub.subjects[0] != protocol.SubjectNavigation || pub.subjects[1] != protocol.SubjectStatus {
		t.Fatalf("unexpected subjects %v", pub.subjects)
	}
	var decoded protocol.NavigationEvent
	if err := json.Unmarshal(pub.payloads[0], &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Command != "home" || decoded.Phrase != "take me home" {
		t.Fatalf("unexpected event %+v", decoded)
	}
}

func TestMultiJoinsErrors(t *testing.T) {
	boom := errors.New("bus down")
	good := &recordingPublisher{}
	bad := &recordingPublisher{err: boom}
	m := Multi{NewBusSink(bad, "nav"), NewBusSink(good, "nav")}

	err := m.Navigation(context.Background(), protocol.NavigationEvent{Command: "about"})
	if !errors.Is(err, boom) {
		t.Fatalf("expected joined error, got %v", err)
	}
	if len(good.subjects) != 1 || good.subjects[0] != "nav" {
		t.Fatalf("expected later sinks to still receive the event, got %v", good.subjects)
	}
}
