package config

import "time"

// GetDefaultConfig returns the compiled-in configuration baseline. User and
// project configuration files override it field by field.
func GetDefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Endpoint: "http://localhost:8085/api",
			Timeout:  15 * time.Second,
		},
		Execution: ExecutionConfig{
			PollInterval:       3 * time.Second,
			FailureBackoff:     2 * time.Second,
			MaxAttempts:        120,
			Environments:       []string{"qa"},
			DefaultEnvironment: "qa",
		},
		Catalog: CatalogConfig{
			Dir: ".ddtcms/catalog",
		},
	}
}
