// Package publish streams completed run results to NATS subjects.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"

	"knapsweep/internal/experiment"
)

const DefaultSubject = "knapsweep.runs"

// Publisher is the subset of *nats.Conn the sink needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

type flusher interface {
	Flush() error
}

// Sink publishes each run as JSON to <subject>.<group>.
type Sink struct {
	pub     Publisher
	subject string
}

func NewSink(pub Publisher, subject string) (*Sink, error) {
	if pub == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	subject = strings.TrimSuffix(strings.TrimSpace(subject), ".")
	if subject == "" {
		subject = DefaultSubject
	}
	return &Sink{pub: pub, subject: subject}, nil
}

func (s *Sink) Subject(group experiment.Group) string {
	return s.subject + "." + string(group)
}

func (s *Sink) Write(_ context.Context, result experiment.RunResult) error {
	b, err := json.Marshal(result.Record())
	if err != nil {
		return fmt.Errorf("marshal run result: %w", err)
	}
	subject := s.Subject(result.Group)
	if err := s.pub.Publish(subject, b); err != nil {
		return fmt.Errorf("publish to %s: %w", subject, err)
	}
	return nil
}

// Close flushes buffered messages when the publisher supports it. The
// connection itself stays open.
func (s *Sink) Close() error {
	if f, ok := s.pub.(flusher); ok {
		return f.Flush()
	}
	return nil
}

// Connect dials a NATS server with the client name set for monitoring.
func Connect(url, name string) (*nats.Conn, error) {
	if url == "" {
		url = nats.DefaultURL
	}
	nc, err := nats.Connect(url, nats.Name(name))
	if err != nil {
		return nil, fmt.Errorf("connect to nats %s: %w", url, err)
	}
	return nc, nil
}
