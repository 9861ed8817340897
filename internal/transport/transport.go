// Package transport moves normalized records over NATS, so the decode and
// harvest halves of the pipeline can run as separate processes.
package transport

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"fisb_decode/internal/products"
)

// Config holds the NATS connection settings.
type Config struct {
	// URL is the server to connect to. Empty disables the transport.
	URL string `toml:"url"`

	// Subject is where records are published.
	Subject string `toml:"subject"`
}

// DefaultConfig returns local-server settings.
func DefaultConfig() Config {
	return Config{
		URL:     nats.DefaultURL,
		Subject: "fisb.records",
	}
}

// Publisher sends records to a NATS subject as JSON.
type Publisher struct {
	log     *logrus.Logger
	conn    *nats.Conn
	subject string
}

// NewPublisher connects to the server and returns a Publisher.
func NewPublisher(log *logrus.Logger, cfg Config) (*Publisher, error) {
	conn, err := connect(log, cfg)
	if err != nil {
		return nil, err
	}
	return &Publisher{log: log, conn: conn, subject: cfg.Subject}, nil
}

// Publish sends one record.
func (p *Publisher) Publish(r *products.Record) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	if err := p.conn.Publish(p.subject, payload); err != nil {
		return fmt.Errorf("publish record: %w", err)
	}
	return nil
}

// Close flushes pending messages and drops the connection.
func (p *Publisher) Close() error {
	if err := p.conn.Drain(); err != nil {
		return fmt.Errorf("drain connection: %w", err)
	}
	return nil
}

// Subscriber receives records from a NATS subject.
type Subscriber struct {
	log  *logrus.Logger
	conn *nats.Conn
	sub  *nats.Subscription
}

// NewSubscriber connects and subscribes, delivering each decoded record to
// handle. Records that fail to decode are logged and skipped.
func NewSubscriber(log *logrus.Logger, cfg Config, handle func(*products.Record)) (*Subscriber, error) {
	conn, err := connect(log, cfg)
	if err != nil {
		return nil, err
	}

	sub, err := conn.Subscribe(cfg.Subject, func(msg *nats.Msg) {
		var r products.Record
		if err := json.Unmarshal(msg.Data, &r); err != nil {
			log.WithError(err).Warn("dropping undecodable record")
			return
		}
		handle(&r)
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("subscribe %s: %w", cfg.Subject, err)
	}

	return &Subscriber{log: log, conn: conn, sub: sub}, nil
}

// Close drains the subscription and drops the connection.
func (s *Subscriber) Close() error {
	if err := s.conn.Drain(); err != nil {
		return fmt.Errorf("drain connection: %w", err)
	}
	return nil
}

func connect(log *logrus.Logger, cfg Config) (*nats.Conn, error) {
	conn, err := nats.Connect(cfg.URL,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.WithError(err).Warn("nats disconnected")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.WithField("url", c.ConnectedUrl()).Info("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.URL, err)
	}
	return conn, nil
}
