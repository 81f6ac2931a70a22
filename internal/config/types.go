package config

import (
	"encoding/json"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration written as "250ms", "5s" in config files.
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		// Bare numbers are nanoseconds
		var n int64
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("duration must be a string like \"5s\": %s", data)
		}
		*d = Duration(n)
		return nil
	}
	return d.parse(s)
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	return d.parse(node.Value)
}

func (d *Duration) parse(s string) error {
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// WorkflowConfig tunes the ETL workflow and the runner executing it.
type WorkflowConfig struct {
	Data        []float64   `json:"data" yaml:"data"`               // Sequence the extract task emits
	Concurrency int         `json:"concurrency" yaml:"concurrency"` // Max tasks per wave
	Retries     uint64      `json:"retries" yaml:"retries"`         // Extra attempts per task
	TaskTimeout Duration    `json:"task_timeout" yaml:"task_timeout"`
	Backoff     RetryConfig `json:"backoff" yaml:"backoff"`
}

// RetryConfig is the exponential backoff between attempts.
type RetryConfig struct {
	InitialInterval Duration `json:"initial_interval" yaml:"initial_interval"`
	MaxInterval     Duration `json:"max_interval" yaml:"max_interval"`
	Multiplier      float64  `json:"multiplier" yaml:"multiplier"`
}

// StoreConfig selects the exchange backend.
type StoreConfig struct {
	Backend    string      `json:"backend" yaml:"backend"` // "memory", "sqlite", "redis"
	SQLitePath string      `json:"sqlite_path" yaml:"sqlite_path"`
	Retain     bool        `json:"retain" yaml:"retain"` // Keep entries after a run ends
	Redis      RedisConfig `json:"redis" yaml:"redis"`
}

// RedisConfig addresses the Redis exchange backend.
type RedisConfig struct {
	Addr     string   `json:"addr" yaml:"addr"`
	Password string   `json:"password,omitempty" yaml:"password,omitempty"`
	DB       int      `json:"db" yaml:"db"`
	Prefix   string   `json:"prefix" yaml:"prefix"`
	TTL      Duration `json:"ttl" yaml:"ttl"`
}

// MailConfig configures the completion email.
type MailConfig struct {
	Transport string     `json:"transport" yaml:"transport"` // "smtp" or "log"
	From      string     `json:"from" yaml:"from"`
	To        string     `json:"to" yaml:"to"`
	Timeout   Duration   `json:"timeout" yaml:"timeout"`
	Retries   uint64     `json:"retries" yaml:"retries"`
	SMTP      SMTPConfig `json:"smtp" yaml:"smtp"`
}

// SMTPConfig is the outgoing mail server.
type SMTPConfig struct {
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	Username string `json:"username,omitempty" yaml:"username,omitempty"`
	Password string `json:"password,omitempty" yaml:"password,omitempty"`
	TLS      string `json:"tls" yaml:"tls"` // "none", "starttls", "tls"
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level      string `json:"level" yaml:"level"`   // debug, info, warn, error
	Format     string `json:"format" yaml:"format"` // console, json
	Output     string `json:"output" yaml:"output"` // stdout, file, both
	FilePath   string `json:"file_path" yaml:"file_path"`
	MaxSize    int    `json:"max_size" yaml:"max_size"` // MB
	MaxBackups int    `json:"max_backups" yaml:"max_backups"`
	MaxAge     int    `json:"max_age" yaml:"max_age"` // days
}

// TracingConfig enables OpenTelemetry spans.
type TracingConfig struct {
	Enabled     bool   `json:"enabled" yaml:"enabled"`
	ServiceName string `json:"service_name" yaml:"service_name"`
	Output      string `json:"output" yaml:"output"` // "stdout" or a file path
}

// APIConfig configures the inspection server.
type APIConfig struct {
	Addr string `json:"addr" yaml:"addr"`
}

// Config is the top-level configuration.
type Config struct {
	Workflow WorkflowConfig `json:"workflow" yaml:"workflow"`
	Store    StoreConfig    `json:"store" yaml:"store"`
	Mail     MailConfig     `json:"mail" yaml:"mail"`
	Log      LogConfig      `json:"log" yaml:"log"`
	Tracing  TracingConfig  `json:"tracing" yaml:"tracing"`
	API      APIConfig      `json:"api" yaml:"api"`
}
