// Package events publishes rep completions over NATS, optionally running an embedded server.
package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

// SubjectPrefix is prepended to the exercise name to form the rep subject.
const SubjectPrefix = "repsense.reps."

// SubjectAllReps matches rep events for every exercise.
const SubjectAllReps = SubjectPrefix + ">"

// RepEvent is published once per counted rep.
type RepEvent struct {
	SessionID   string `json:"session_id"`
	Exercise    string `json:"exercise"`
	TotalReps   int    `json:"total_reps"`
	TimestampMs int64  `json:"timestamp_ms"`
}

// Subject returns the subject the event is published on.
func (e RepEvent) Subject() string {
	return SubjectPrefix + e.Exercise
}

// Publisher delivers rep events to interested consumers.
type Publisher interface {
	PublishRep(e RepEvent) error
}

// Nop discards every event. It is used when the event bus is disabled.
type Nop struct{}

// PublishRep implements Publisher.
func (Nop) PublishRep(RepEvent) error { return nil }

// Config configures an embedded bus.
type Config struct {
	// Host for the NATS server (default: 127.0.0.1)
	Host string
	// Port for the NATS server, -1 picks a random free port
	Port int
}

// Bus publishes rep events over a NATS connection.
type Bus struct {
	server *server.Server // nil when connected to an external server
	conn   *nats.Conn
	logger *slog.Logger

	subsMu sync.Mutex
	subs   []*nats.Subscription
}

// NewEmbedded starts an in-process NATS server and connects to it.
func NewEmbedded(cfg Config, logger *slog.Logger) (*Bus, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = server.DEFAULT_PORT
	}

	opts := &server.Options{
		Host:   cfg.Host,
		Port:   cfg.Port,
		NoSigs: true,
		NoLog:  true, // We'll use our own logger
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create NATS server: %w", err)
	}

	go ns.Start()

	if !ns.ReadyForConnections(2 * time.Second) {
		ns.Shutdown()
		return nil, fmt.Errorf("NATS server not ready after 2 seconds (port %d)", cfg.Port)
	}

	nc, err := nats.Connect(ns.ClientURL())
	if err != nil {
		ns.Shutdown()
		return nil, fmt.Errorf("failed to connect to embedded NATS: %w", err)
	}

	b := &Bus{
		server: ns,
		conn:   nc,
		logger: logger.With("component", "events"),
	}
	b.logger.Info("Event bus started", "url", ns.ClientURL())

	return b, nil
}

// Connect joins an external NATS server.
func Connect(url string, logger *slog.Logger) (*Bus, error) {
	if logger == nil {
		logger = slog.Default()
	}

	nc, err := nats.Connect(url, nats.Name("repsense"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}

	b := &Bus{
		conn:   nc,
		logger: logger.With("component", "events"),
	}
	b.logger.Info("Event bus connected", "url", url)

	return b, nil
}

// ClientURL returns the URL clients use to reach the bus.
func (b *Bus) ClientURL() string {
	if b.server != nil {
		return b.server.ClientURL()
	}
	return b.conn.ConnectedUrl()
}

// PublishRep implements Publisher.
func (b *Bus) PublishRep(e RepEvent) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal rep event: %w", err)
	}
	return b.conn.Publish(e.Subject(), payload)
}

// Subscribe delivers rep events matching subject, such as SubjectAllReps.
// Malformed payloads are logged and dropped.
func (b *Bus) Subscribe(subject string, handler func(RepEvent)) (*nats.Subscription, error) {
	sub, err := b.conn.Subscribe(subject, func(msg *nats.Msg) {
		var e RepEvent
		if err := json.Unmarshal(msg.Data, &e); err != nil {
			b.logger.Error("Failed to unmarshal rep event", "subject", msg.Subject, "error", err)
			return
		}
		handler(e)
	})
	if err != nil {
		return nil, err
	}

	b.subsMu.Lock()
	b.subs = append(b.subs, sub)
	b.subsMu.Unlock()

	return sub, nil
}

// Flush blocks until every published message has reached the server.
func (b *Bus) Flush() error {
	return b.conn.Flush()
}

// Close drains the connection and stops the embedded server, if any.
func (b *Bus) Close() {
	b.subsMu.Lock()
	for _, sub := range b.subs {
		_ = sub.Unsubscribe()
	}
	b.subs = nil
	b.subsMu.Unlock()

	_ = b.conn.Drain()
	if b.server != nil {
		b.server.Shutdown()
	}

	b.logger.Info("Event bus stopped")
}
