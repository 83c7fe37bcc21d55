package services

import (
	"autoservice/internal/models"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSSink forwards progress events to NATS JetStream under
// <subject>.<event type>
type NATSSink struct {
	nc      *nats.Conn
	js      nats.JetStreamContext
	subject string
}

func NewNATSSink(url, subject string) (*NATSSink, error) {
	nc, err := nats.Connect(url,
		nats.Name("autoservice"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(10),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to get JetStream context: %w", err)
	}
	if subject == "" {
		subject = "autoservice.events"
	}
	slog.Info("connected to NATS", "url", url, "subject", subject)
	return &NATSSink{nc: nc, js: js, subject: subject}, nil
}

// Forward publishes event asynchronously
func (s *NATSSink) Forward(_ context.Context, event models.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if _, err := s.js.PublishAsync(s.subject+"."+string(event.Type), data); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Close waits briefly for pending publishes and closes the connection
func (s *NATSSink) Close() error {
	select {
	case <-s.js.PublishAsyncComplete():
	case <-time.After(5 * time.Second):
		slog.Warn("NATS close: pending publishes dropped")
	}
	s.nc.Close()
	return nil
}
