package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// ApplyEnv overrides cfg with ETLRUN_* variables found by lookup.
func ApplyEnv(cfg *Config, lookup LookupFunc) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}

	str("STORE_BACKEND", &cfg.Store.Backend)
	str("SQLITE_PATH", &cfg.Store.SQLitePath)
	str("REDIS_ADDR", &cfg.Store.Redis.Addr)
	str("REDIS_PASSWORD", &cfg.Store.Redis.Password)
	str("MAIL_TRANSPORT", &cfg.Mail.Transport)
	str("MAIL_FROM", &cfg.Mail.From)
	str("MAIL_TO", &cfg.Mail.To)
	str("SMTP_HOST", &cfg.Mail.SMTP.Host)
	str("SMTP_USERNAME", &cfg.Mail.SMTP.Username)
	str("SMTP_PASSWORD", &cfg.Mail.SMTP.Password)
	str("SMTP_TLS", &cfg.Mail.SMTP.TLS)
	str("LOG_LEVEL", &cfg.Log.Level)
	str("LOG_FORMAT", &cfg.Log.Format)
	str("API_ADDR", &cfg.API.Addr)

	if v, ok := lookup(EnvPrefix + "SMTP_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sSMTP_PORT: %w", EnvPrefix, err)
		}
		cfg.Mail.SMTP.Port = port
	}

	if v, ok := lookup(EnvPrefix + "STORE_RETAIN"); ok {
		retain, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sSTORE_RETAIN: %w", EnvPrefix, err)
		}
		cfg.Store.Retain = retain
	}

	if v, ok := lookup(EnvPrefix + "TASK_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%sTASK_TIMEOUT: %w", EnvPrefix, err)
		}
		cfg.Workflow.TaskTimeout = Duration(d)
	}

	if v, ok := lookup(EnvPrefix + "DATA"); ok {
		data, err := ParseData(v)
		if err != nil {
			return fmt.Errorf("%sDATA: %w", EnvPrefix, err)
		}
		cfg.Workflow.Data = data
	}

	return nil
}

// ParseData parses a comma separated list of numbers. An empty or blank
// string is an empty sequence.
func ParseData(s string) ([]float64, error) {
	data := []float64{}
	if strings.TrimSpace(s) == "" {
		return data, nil
	}

	for _, field := range strings.Split(s, ",") {
		v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", field)
		}
		data = append(data, v)
	}
	return data, nil
}
