package notify

import (
	"context"
	"fmt"
	"time"

	gomail "github.com/wneessen/go-mail"
	"go.uber.org/zap"

	"github.com/aristath/etlrun/internal/config"
)

// SMTPTransport sends HTML email through an SMTP relay.
type SMTPTransport struct {
	cfg     config.SMTPConfig
	from    string
	timeout time.Duration
	logger  *zap.Logger
}

// NewSMTPTransport creates an SMTP transport sending as from.
func NewSMTPTransport(cfg config.SMTPConfig, from string, timeout time.Duration, logger *zap.Logger) (*SMTPTransport, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("smtp host must not be empty")
	}
	if from == "" {
		return nil, fmt.Errorf("smtp sender must not be empty")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SMTPTransport{cfg: cfg, from: from, timeout: timeout, logger: logger}, nil
}

// Send builds the MIME message and delivers it in one SMTP session.
func (t *SMTPTransport) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}

	m, err := t.build(msg)
	if err != nil {
		return err
	}

	client, err := gomail.NewClient(t.cfg.Host, t.clientOptions()...)
	if err != nil {
		return fmt.Errorf("creating smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("sending email to %s via %s:%d: %w", msg.To, t.cfg.Host, t.cfg.Port, err)
	}

	t.logger.Info("email sent", zap.String("to", msg.To), zap.String("subject", msg.Subject))
	return nil
}

func (t *SMTPTransport) build(msg Message) (*gomail.Msg, error) {
	m := gomail.NewMsg()
	if err := m.From(t.from); err != nil {
		return nil, fmt.Errorf("%w: sender %q: %v", ErrInvalidMessage, t.from, err)
	}
	if err := m.To(msg.To); err != nil {
		return nil, fmt.Errorf("%w: recipient %q: %v", ErrInvalidMessage, msg.To, err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(gomail.TypeTextHTML, msg.HTMLBody)
	return m, nil
}

func (t *SMTPTransport) clientOptions() []gomail.Option {
	opts := []gomail.Option{}
	if t.cfg.Port > 0 {
		opts = append(opts, gomail.WithPort(t.cfg.Port))
	}
	if t.timeout > 0 {
		opts = append(opts, gomail.WithTimeout(t.timeout))
	}

	switch t.cfg.TLS {
	case "none":
		opts = append(opts, gomail.WithTLSPolicy(gomail.NoTLS))
	case "tls":
		opts = append(opts, gomail.WithSSL())
	default:
		opts = append(opts, gomail.WithTLSPolicy(gomail.TLSMandatory))
	}

	if t.cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(t.cfg.Username),
			gomail.WithPassword(t.cfg.Password),
		)
	}
	return opts
}
