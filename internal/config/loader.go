package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"csgate/pkg/logging"

	"gopkg.in/yaml.v3"
)

const (
	userConfigDir  = ".cybershuttle"
	configFileName = "config.yaml"
)

// GetDefaultConfigPathOrPanic returns ~/.cybershuttle, panicking when the
// home directory cannot be determined. Called during CLI bootstrap only.
func GetDefaultConfigPathOrPanic() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		panic(fmt.Errorf("could not determine user config directory: %w", err))
	}

	return filepath.Join(homeDir, userConfigDir)
}

// LoadConfig loads configuration from the specified directory.
// A missing config.yaml is not an error: defaults are returned.
func LoadConfig(configPath string) (Config, error) {
	configFilePath := filepath.Join(configPath, configFileName)
	config := GetDefaultConfig()
	// Token cache lives next to the config unless overridden
	config.Auth.TokenFile = filepath.Join(configPath, "token.json")

	data, err := os.ReadFile(configFilePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logging.Info("Config", "No config.yaml found at %s, using defaults", configFilePath)
			return config, nil
		}
		logging.Info("Config", "Error loading config.yaml from %s: %s", configFilePath, err)
		return Config{}, err
	}
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		// config malformed
		return Config{}, fmt.Errorf("error loading config from %s: %w", configFilePath, err)
	}

	logging.Info("Config", "Loaded configuration from %s", configFilePath)
	return config, nil
}
