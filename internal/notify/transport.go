// Package notify delivers the completion email of a run.
package notify

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// ErrInvalidMessage marks a message no transport can deliver. Retrying it
// is pointless.
var ErrInvalidMessage = errors.New("invalid message")

// Message is an HTML email.
type Message struct {
	To       string
	Subject  string
	HTMLBody string
}

// Validate checks the recipient address and subject.
func (m Message) Validate() error {
	if strings.TrimSpace(m.To) == "" {
		return fmt.Errorf("%w: empty recipient", ErrInvalidMessage)
	}
	if _, err := mail.ParseAddress(m.To); err != nil {
		return fmt.Errorf("%w: recipient %q: %v", ErrInvalidMessage, m.To, err)
	}
	if strings.TrimSpace(m.Subject) == "" {
		return fmt.Errorf("%w: empty subject", ErrInvalidMessage)
	}
	return nil
}

// Transport sends messages.
type Transport interface {
	Send(ctx context.Context, msg Message) error
}

// LogTransport logs messages instead of sending them and keeps a copy of
// each one. Used for dry runs and tests.
type LogTransport struct {
	logger *zap.Logger

	mu   sync.Mutex
	sent []Message
}

// NewLogTransport creates a LogTransport. A nil logger discards output.
func NewLogTransport(logger *zap.Logger) *LogTransport {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogTransport{logger: logger}
}

// Send validates and records msg.
func (t *LogTransport) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := msg.Validate(); err != nil {
		return err
	}

	t.mu.Lock()
	t.sent = append(t.sent, msg)
	t.mu.Unlock()

	t.logger.Info("email (not sent)",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.Int("body_bytes", len(msg.HTMLBody)),
	)
	return nil
}

// Sent returns copies of the recorded messages in send order.
func (t *LogTransport) Sent() []Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Message(nil), t.sent...)
}
