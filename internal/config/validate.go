package config

import "fmt"

// Validate rejects settings no component can act on.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case "memory", "sqlite", "redis":
	default:
		return fmt.Errorf("unknown store backend %q (want memory, sqlite or redis)", c.Store.Backend)
	}

	switch c.Mail.Transport {
	case "smtp", "log":
	default:
		return fmt.Errorf("unknown mail transport %q (want smtp or log)", c.Mail.Transport)
	}

	switch c.Mail.SMTP.TLS {
	case "none", "starttls", "tls":
	default:
		return fmt.Errorf("unknown smtp tls mode %q (want none, starttls or tls)", c.Mail.SMTP.TLS)
	}

	if c.Workflow.Concurrency < 1 {
		return fmt.Errorf("workflow concurrency must be at least 1, got %d", c.Workflow.Concurrency)
	}
	// Run history is kept in SQLite whatever the exchange backend
	if c.Store.SQLitePath == "" {
		return fmt.Errorf("store sqlite_path must be set")
	}
	return nil
}
