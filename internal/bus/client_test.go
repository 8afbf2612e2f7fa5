package bus

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/loqalabs/akira/internal/config"
	"github.com/loqalabs/akira/internal/natsserver"
	"github.com/loqalabs/akira/internal/protocol"
	"github.com/nats-io/nats.go"
)

func TestPublishStoresEventInStream(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.BusConfig{
		Enabled:           true,
		Embedded:          true,
		Port:              -1,
		StoreDir:          t.TempDir(),
		ConnectTimeout:    2000,
		NavigationSubject: protocol.SubjectNavigation,
	}
	srv, err := natsserver.Start(cfg, log)
	if err != nil {
		t.Fatalf("start embedded server: %v", err)
	}
	t.Cleanup(srv.Shutdown)
	cfg.Servers = []string{srv.ClientURL()}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := Connect(ctx, cfg, log)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(client.Close)
	if !client.Healthy() {
		t.Fatal("expected healthy connection")
	}

	if err := client.Publish(ctx, protocol.SubjectNavigation, []byte(`{"command":"home"}`)); err != nil {
		t.Fatalf("publish: %v", err)
	}

	sub, err := client.js.SubscribeSync(protocol.SubjectNavigation, nats.DeliverAll())
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	msg, err := sub.NextMsg(2 * time.Second)
	if err != nil {
		t.Fatalf("next message: %v", err)
	}
	if string(msg.Data) != `{"command":"home"}` {
		t.Fatalf("unexpected payload %s", msg.Data)
	}
}

func TestConnectWithoutServers(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	if _, err := Connect(context.Background(), config.BusConfig{}, log); err == nil {
		t.Fatal("expected error without servers")
	}
}
