package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// For mocking in tests
var osUserHomeDir = os.UserHomeDir
var osGetwd = os.Getwd

const (
	userConfigDir    = ".config/ddtcms"
	projectConfigDir = ".ddtcms"
	configFileName   = "config.yaml"
)

// LoadConfig loads the ddtcms configuration by layering default, user, and
// project settings.
func LoadConfig() (Config, error) {
	// 1. Start with the default configuration
	config := GetDefaultConfig()

	// 2. Overlay the user-specific configuration, when present
	userConfigPath, err := getUserConfigPath()
	if err != nil {
		// User config is optional; keep going.
		fmt.Fprintf(os.Stderr, "Warning: could not determine user config path: %v\n", err)
	} else {
		if _, err := os.Stat(userConfigPath); !os.IsNotExist(err) {
			userConfig, err := loadConfigFromFile(userConfigPath)
			if err != nil {
				return Config{}, fmt.Errorf("error loading user config from %s: %w", userConfigPath, err)
			}
			config = mergeConfigs(config, userConfig)
		}
	}

	// 3. Overlay the project-specific configuration, when present
	projectConfigPath, err := getProjectConfigPath()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not determine project config path: %v\n", err)
	} else {
		if _, err := os.Stat(projectConfigPath); !os.IsNotExist(err) {
			projectConfig, err := loadConfigFromFile(projectConfigPath)
			if err != nil {
				return Config{}, fmt.Errorf("error loading project config from %s: %w", projectConfigPath, err)
			}
			config = mergeConfigs(config, projectConfig)
		}
	}

	return config, nil
}

var getUserConfigPath = func() (string, error) {
	homeDir, err := osUserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, userConfigDir, configFileName), nil
}

var getProjectConfigPath = func() (string, error) {
	wd, err := osGetwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, projectConfigDir, configFileName), nil
}

// loadConfigFromFile loads a Config from a YAML file.
func loadConfigFromFile(filePath string) (Config, error) {
	var config Config
	data, err := os.ReadFile(filePath)
	if err != nil {
		return Config{}, err
	}
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return Config{}, err
	}
	return config, nil
}

// mergeConfigs merges 'overlay' config into 'base' config, field by field.
// Zero values in the overlay leave the base value in place.
func mergeConfigs(base, overlay Config) Config {
	merged := base

	if overlay.Server.Endpoint != "" {
		merged.Server.Endpoint = overlay.Server.Endpoint
	}
	if overlay.Server.Timeout != 0 {
		merged.Server.Timeout = overlay.Server.Timeout
	}

	if overlay.Execution.PollInterval != 0 {
		merged.Execution.PollInterval = overlay.Execution.PollInterval
	}
	if overlay.Execution.FailureBackoff != 0 {
		merged.Execution.FailureBackoff = overlay.Execution.FailureBackoff
	}
	if overlay.Execution.MaxAttempts != 0 {
		merged.Execution.MaxAttempts = overlay.Execution.MaxAttempts
	}
	if len(overlay.Execution.Environments) > 0 {
		merged.Execution.Environments = overlay.Execution.Environments
	}
	if overlay.Execution.DefaultEnvironment != "" {
		merged.Execution.DefaultEnvironment = overlay.Execution.DefaultEnvironment
	}

	if overlay.Catalog.Dir != "" {
		merged.Catalog.Dir = overlay.Catalog.Dir
	}

	return merged
}
