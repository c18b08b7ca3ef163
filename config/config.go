// Package config provides configuration management for the OpenVPN
// management client. It handles loading, saving, and validating settings.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yllada/openvpn-management/common"
)

// Config represents the application configuration.
// All settings are persisted to a YAML file in the user's config directory.
type Config struct {
	// LogLevel is one of "debug", "info", "warn" or "error".
	LogLevel string `yaml:"log_level"`
	// LogToFile enables the rotating log file.
	LogToFile bool `yaml:"log_to_file"`
	// Management holds settings for the management channel.
	Management ManagementConfig `yaml:"management"`
	// Timeouts bound connect and reconnect attempts.
	Timeouts TimeoutConfig `yaml:"timeouts"`
	// WatchNetwork holds the tunnel until NetworkManager reports global
	// connectivity.
	WatchNetwork bool `yaml:"watch_network"`
	// HistoryPath is the SQLite journal location. Empty disables the journal.
	HistoryPath string `yaml:"history_path,omitempty"`
}

// ManagementConfig configures the management listener.
type ManagementConfig struct {
	// ListenAddress must be a loopback address.
	ListenAddress string `yaml:"listen_address"`
}

// TimeoutConfig configures connect timeouts.
type TimeoutConfig struct {
	Connect          time.Duration `yaml:"connect"`
	ReconnectOffline time.Duration `yaml:"reconnect_offline"`
	ReconnectTLS     time.Duration `yaml:"reconnect_tls_error"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		LogLevel:  "info",
		LogToFile: false,
		Management: ManagementConfig{
			ListenAddress: common.LoopbackAddress,
		},
		Timeouts: TimeoutConfig{
			Connect:          common.ConnectTimeout,
			ReconnectOffline: common.ReconnectOfflineTimeout,
			ReconnectTLS:     common.ReconnectTLSErrorTimeout,
		},
		WatchNetwork: true,
	}
}

// Load loads the configuration from the default config file.
// If the file doesn't exist, it creates one with default values.
func Load() (*Config, error) {
	configPath, err := getConfigPath()
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		if err := cfg.SaveTo(configPath); err != nil {
			return cfg, err
		}
		return cfg, nil
	}

	return LoadFrom(configPath)
}

// LoadFrom loads the configuration from path. Fields missing from the
// file keep their default values.
func LoadFrom(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrConfigLoad, err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true) // Strict validation: reject unknown fields

	config := DefaultConfig()
	if err := decoder.Decode(config); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: parsing %s: %v", common.ErrConfigLoad, path, err)
	}

	config.validate()
	return config, nil
}

// validate replaces invalid values with their defaults.
func (c *Config) validate() {
	defaults := DefaultConfig()

	if !common.IsLoopback(c.Management.ListenAddress) {
		common.LogWarn("Config: listen address %q is not loopback, using %s",
			c.Management.ListenAddress, defaults.Management.ListenAddress)
		c.Management.ListenAddress = defaults.Management.ListenAddress
	}
	if c.Timeouts.Connect <= 0 {
		c.Timeouts.Connect = defaults.Timeouts.Connect
	}
	if c.Timeouts.ReconnectOffline <= 0 {
		c.Timeouts.ReconnectOffline = defaults.Timeouts.ReconnectOffline
	}
	if c.Timeouts.ReconnectTLS <= 0 {
		c.Timeouts.ReconnectTLS = defaults.Timeouts.ReconnectTLS
	}

	validLevels := []string{"debug", "info", "warn", "error"}
	isValidLevel := false
	for _, l := range validLevels {
		if c.LogLevel == l {
			isValidLevel = true
			break
		}
	}
	if !isValidLevel {
		c.LogLevel = defaults.LogLevel
	}
}

// LogConfig converts the logging settings into a common.LogConfig.
func (c *Config) LogConfig() common.LogConfig {
	return common.LogConfig{
		Level:      common.ParseLevel(c.LogLevel),
		EnableFile: c.LogToFile,
	}
}

// Save saves the configuration to the default file.
func (c *Config) Save() error {
	configPath, err := getConfigPath()
	if err != nil {
		return err
	}
	return c.SaveTo(configPath)
}

// SaveTo saves the configuration to path.
func (c *Config) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("%w: creating config directory: %v", common.ErrConfigSave, err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("%w: serializing: %v", common.ErrConfigSave, err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("%w: %v", common.ErrConfigSave, err)
	}

	return nil
}

func getConfigPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("error getting home directory: %w", err)
	}

	return filepath.Join(homeDir, ".config", common.ConfigDirName, common.ConfigFileName), nil
}
