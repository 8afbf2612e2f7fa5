package bus

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/loqalabs/akira/internal/config"
	"github.com/loqalabs/akira/internal/protocol"
	"github.com/nats-io/nats.go"
)

// StreamName retains assistant events so late subscribers can catch up.
const StreamName = "ASSISTANT"

// Client wraps the NATS connection and JetStream context used for assistant
// events.
type Client struct {
	conn *nats.Conn
	js   nats.JetStreamContext
	log  *slog.Logger
}

func Connect(ctx context.Context, cfg config.BusConfig, log *slog.Logger) (*Client, error) {
	servers := cfg.Servers
	if len(servers) == 0 && cfg.Embedded {
		servers = []string{fmt.Sprintf("nats://127.0.0.1:%d", cfg.Port)}
	}
	if len(servers) == 0 {
		return nil, errors.New("no NATS servers configured")
	}

	options := []nats.Option{
		nats.Name("akira-assistant"),
		nats.Timeout(time.Duration(cfg.ConnectTimeout) * time.Millisecond),
	}

	if cfg.Username != "" || cfg.Password != "" {
		options = append(options, nats.UserInfo(cfg.Username, cfg.Password))
	}
	if cfg.Token != "" {
		options = append(options, nats.Token(cfg.Token))
	}
	if cfg.TLSInsecure {
		options = append(options, nats.Secure(&tls.Config{InsecureSkipVerify: true}))
	}

	url := strings.Join(servers, ",")
	conn, err := nats.Connect(url, options...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}

	c := &Client{conn: conn, js: js, log: log}
	if err := c.ensureStream(cfg.NavigationSubject); err != nil {
		conn.Close()
		return nil, err
	}

	log.Info("connected to NATS", slog.String("servers", url))
	return c, nil
}

func (c *Client) ensureStream(navigationSubject string) error {
	subjects := []string{protocol.SubjectStatus}
	if navigationSubject != "" && navigationSubject != protocol.SubjectStatus {
		subjects = append(subjects, navigationSubject)
	}
	_, err := c.js.StreamInfo(StreamName)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("lookup stream: %w", err)
	}
	_, err = c.js.AddStream(&nats.StreamConfig{
		Name:     StreamName,
		Subjects: subjects,
		Storage:  nats.FileStorage,
		MaxAge:   time.Hour,
	})
	if err != nil {
		return fmt.Errorf("create stream: %w", err)
	}
	c.log.Info("created assistant stream", slog.String("stream", StreamName), slog.Any("subjects", subjects))
	return nil
}

// Publish stores data on subject through JetStream.
func (c *Client) Publish(ctx context.Context, subject string, data []byte) error {
	if _, err := c.js.Publish(subject, data, nats.Context(ctx)); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

func (c *Client) Close() {
	if c == nil {
		return
	}
	c.log.Info("closing NATS connection")
	c.conn.Drain()
	c.conn.Close()
}

// Healthy reports whether the connection is up; readiness depends on it.
func (c *Client) Healthy() bool {
	return c != nil && c.conn != nil && c.conn.Status() == nats.CONNECTED
}
