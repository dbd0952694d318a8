package clients

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"

	"relay-backend/internal/config"
	"relay-backend/internal/events"
	"relay-backend/internal/metrics"
)

// NATSClient publishes relay events to JetStream.
type NATSClient struct {
	conn   *nats.Conn
	js     nats.JetStreamContext
	stream string
}

// NewNATSClient connects to NATS and ensures the relay event stream exists.
func NewNATSClient(cfg config.NATSConfig) (*NATSClient, error) {
	timeout := 10 * time.Second
	if cfg.Timeout > 0 {
		timeout = time.Duration(cfg.Timeout) * time.Second
	}

	conn, err := nats.Connect(cfg.URL,
		nats.Timeout(timeout),
		nats.ReconnectWait(5*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Printf("⚠️ NATS disconnected: %v", err)
			metrics.NATSConnectionStatus.Set(0)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("🔄 NATS reconnected to %s", nc.ConnectedUrl())
			metrics.NATSConnectionStatus.Set(1)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.URL, err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	client := &NATSClient{
		conn:   conn,
		js:     js,
		stream: cfg.StreamName,
	}
	if client.stream == "" {
		client.stream = "RELAY_EVENTS"
	}

	if err := client.ensureStream(); err != nil {
		conn.Close()
		return nil, err
	}

	metrics.NATSConnectionStatus.Set(1)
	log.Printf("✅ NATS connected: %s (stream=%s)", cfg.URL, client.stream)
	return client, nil
}

func (c *NATSClient) ensureStream() error {
	_, err := c.js.StreamInfo(c.stream)
	if err == nil {
		return nil
	}

	_, err = c.js.AddStream(&nats.StreamConfig{
		Name:      c.stream,
		Subjects:  []string{"relay.>"},
		Retention: nats.LimitsPolicy,
		MaxAge:    24 * time.Hour,
		Storage:   nats.FileStorage,
	})
	if err != nil {
		return fmt.Errorf("failed to create stream %s: %w", c.stream, err)
	}

	log.Printf("📦 Created JetStream stream: %s", c.stream)
	return nil
}

// PublishTransactionSubmitted publishes a relayed transaction event.
func (c *NATSClient) PublishTransactionSubmitted(evt events.TransactionSubmittedEvent) error {
	return c.publish(events.SubjectTransactionSubmitted, evt)
}

// PublishUserOpStatus publishes a user operation status change.
func (c *NATSClient) PublishUserOpStatus(evt events.UserOpStatusEvent) error {
	return c.publish(events.SubjectUserOpStatusChanged, evt)
}

// PublishIdentityBlocked publishes a security block event.
func (c *NATSClient) PublishIdentityBlocked(evt events.IdentityBlockedEvent) error {
	return c.publish(events.SubjectIdentityBlocked, evt)
}

func (c *NATSClient) publish(subject string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	if _, err := c.js.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}

	return nil
}

// Close drains the connection.
func (c *NATSClient) Close() {
	if c.conn != nil {
		c.conn.Close()
		metrics.NATSConnectionStatus.Set(0)
	}
}
