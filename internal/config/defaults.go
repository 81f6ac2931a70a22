package config

import "time"

// DefaultConfig returns the configuration used when no file overrides it.
func DefaultConfig() *Config {
	return &Config{
		Workflow: WorkflowConfig{
			Data:        []float64{10, 20, 30, 40, 50},
			Concurrency: 4,
			Retries:     1,
			TaskTimeout: Duration(30 * time.Second),
			Backoff: RetryConfig{
				InitialInterval: Duration(100 * time.Millisecond),
				MaxInterval:     Duration(10 * time.Second),
				Multiplier:      2.0,
			},
		},
		Store: StoreConfig{
			Backend:    "memory",
			SQLitePath: ".etlrun/etlrun.db",
			Redis: RedisConfig{
				Addr:   "localhost:6379",
				Prefix: "etlrun:xcom:",
			},
		},
		Mail: MailConfig{
			Transport: "log",
			From:      "etlrun@localhost",
			To:        "etl-reports@localhost",
			Timeout:   Duration(15 * time.Second),
			Retries:   3,
			SMTP: SMTPConfig{
				Host: "localhost",
				Port: 587,
				TLS:  "starttls",
			},
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "console",
			Output:     "stdout",
			FilePath:   ".etlrun/etlrun.log",
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     7,
		},
		Tracing: TracingConfig{
			ServiceName: "etlrun",
			Output:      "stdout",
		},
		API: APIConfig{
			Addr: ":8080",
		},
	}
}
