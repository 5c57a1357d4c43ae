package config

import "time"

// Config is the top-level configuration structure for ddtcms.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Execution ExecutionConfig `yaml:"execution"`
	Catalog   CatalogConfig   `yaml:"catalog"`
}

// ServerConfig locates the management server the client talks to.
type ServerConfig struct {
	Endpoint string        `yaml:"endpoint,omitempty"` // e.g. "http://localhost:8085/api"
	Timeout  time.Duration `yaml:"timeout,omitempty"`  // per-request timeout
}

// ExecutionConfig tunes the run poll loop and names the environments a run
// can target.
type ExecutionConfig struct {
	PollInterval       time.Duration `yaml:"pollInterval,omitempty"`
	FailureBackoff     time.Duration `yaml:"failureBackoff,omitempty"`
	MaxAttempts        int           `yaml:"maxAttempts,omitempty"`
	Environments       []string      `yaml:"environments,omitempty"`
	DefaultEnvironment string        `yaml:"defaultEnvironment,omitempty"`
}

// CatalogConfig locates the local catalog of releases and test sets.
type CatalogConfig struct {
	Dir string `yaml:"dir,omitempty"`
}
