package notify

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/aristath/etlrun/internal/config"
)

// New builds the transport selected by cfg.Transport. SMTP delivery is
// wrapped with Resilient; the log transport is returned as is.
func New(cfg config.MailConfig, logger *zap.Logger) (Transport, error) {
	switch cfg.Transport {
	case "log", "":
		return NewLogTransport(logger), nil
	case "smtp":
		smtp, err := NewSMTPTransport(cfg.SMTP, cfg.From, cfg.Timeout.Std(), logger)
		if err != nil {
			return nil, err
		}
		retry := DefaultRetryConfig()
		retry.MaxRetries = cfg.Retries
		return Resilient(smtp, retry, logger), nil
	default:
		return nil, fmt.Errorf("unknown mail transport %q", cfg.Transport)
	}
}
