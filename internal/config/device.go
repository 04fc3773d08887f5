// Tallyboard - Live Donation Intake and Broadcast
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tallyboard

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/v2"
)

// DeviceEnvPrefix prefixes every field queue environment variable.
const DeviceEnvPrefix = "FIELDQUEUE_"

// DeviceConfig configures the staff field queue CLI.
type DeviceConfig struct {
	// ServerURL is the Tallyboard base URL, e.g. https://tally.example.org.
	ServerURL string `koanf:"server_url"`

	// StaffToken is a bearer token issued by /api/v1/auth/login.
	StaffToken string `koanf:"staff_token"`

	// QueuePath is the local Badger directory.
	QueuePath string `koanf:"queue_path"`

	SyncInterval   time.Duration `koanf:"sync_interval"`
	MaxBackoff     time.Duration `koanf:"max_backoff"`
	HealthInterval time.Duration `koanf:"health_interval"`
	SubmitTimeout  time.Duration `koanf:"submit_timeout"`

	Logging LoggingConfig `koanf:"logging"`
}

func defaultDeviceConfig() *DeviceConfig {
	return &DeviceConfig{
		ServerURL:      "http://localhost:8080",
		QueuePath:      "fieldqueue-data",
		SyncInterval:   30 * time.Second,
		MaxBackoff:     5 * time.Minute,
		HealthInterval: 10 * time.Second,
		SubmitTimeout:  15 * time.Second,
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// LoadDevice loads the field queue configuration from defaults, the optional
// YAML file at path and FIELDQUEUE_* environment variables. Command line
// flags are applied by the caller afterwards.
func LoadDevice(path string) (*DeviceConfig, error) {
	k := koanf.New(".")

	if err := loadLayers(k, defaultDeviceConfig(), path, deviceEnvTransformFunc, nil); err != nil {
		return nil, err
	}

	cfg := &DeviceConfig{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal device configuration: %w", err)
	}
	return cfg, nil
}

// deviceEnvTransformFunc maps FIELDQUEUE_SERVER_URL to server_url and
// FIELDQUEUE_LOG_LEVEL to logging.level. Other variables are skipped.
func deviceEnvTransformFunc(key string) string {
	if !strings.HasPrefix(key, DeviceEnvPrefix) {
		return ""
	}
	name := strings.ToLower(strings.TrimPrefix(key, DeviceEnvPrefix))
	switch name {
	case "log_level":
		return "logging.level"
	case "log_format":
		return "logging.format"
	case "server_url", "staff_token", "queue_path", "sync_interval",
		"max_backoff", "health_interval", "submit_timeout":
		return name
	}
	return ""
}

// Validate checks the device configuration after flags are applied.
func (c *DeviceConfig) Validate() error {
	if err := validateHTTPURL(c.ServerURL, "server_url"); err != nil {
		return err
	}
	if c.QueuePath == "" {
		return fmt.Errorf("queue_path is required")
	}
	if c.SyncInterval <= 0 {
		return fmt.Errorf("sync_interval must be positive")
	}
	if c.MaxBackoff < c.SyncInterval {
		return fmt.Errorf("max_backoff must be at least sync_interval")
	}
	if c.SubmitTimeout <= 0 {
		return fmt.Errorf("submit_timeout must be positive")
	}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("log level must be one of: trace, debug, info, warn, error")
	}
	return nil
}
