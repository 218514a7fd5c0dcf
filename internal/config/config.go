// Package config loads the agent configuration. The file is read once at
// startup; the session reads broker credentials from the loaded value when
// it starts, so edits take effect on the next session, not mid-run.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config is the on-disk agent configuration. Fields omitted from the JSON
// file keep their default values, so partial configs are safe.
type Config struct {
	// BrokerURL selects the collector endpoint; an ssl:// or tls:// scheme
	// selects a secure channel.
	BrokerURL string `json:"broker_url"`
	// Username and Password are optional broker credentials; both are left
	// out of the handshake when Username is blank.
	Username string `json:"username"`
	Password string `json:"password"`
	// Topic is the single fixed topic all frames are published to.
	Topic    string `json:"topic"`
	ClientID string `json:"client_id"`
	// QoS is the MQTT delivery mode; 1 requests at-least-once.
	QoS byte `json:"qos"`

	// ArchivePath is the local SQLite frame archive.
	ArchivePath string `json:"archive_path"`

	// GPSDevice is a serial NMEA receiver path (e.g. /dev/ttyUSB0); blank
	// disables the serial location source.
	GPSDevice string `json:"gps_device"`
	GPSBaud   int    `json:"gps_baud"`
}

// Default returns the configuration used when no file is supplied.
func Default() Config {
	return Config{
		BrokerURL:   "tcp://localhost:1883",
		Topic:       "telematics/data",
		ClientID:    "telematics-agent",
		QoS:         1,
		ArchivePath: "telematics.db",
		GPSBaud:     9600,
	}
}

// Load reads a JSON config file over the defaults. The file is validated to
// have a .json extension and to be under the max file size.
func Load(path string) (Config, error) {
	cfg := Default()

	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return cfg, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return cfg, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return cfg, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks field ranges that would otherwise fail deep inside the
// transport.
func (c Config) Validate() error {
	if c.BrokerURL == "" {
		return fmt.Errorf("broker_url is required")
	}
	if c.Topic == "" {
		return fmt.Errorf("topic is required")
	}
	if c.QoS > 2 {
		return fmt.Errorf("qos must be 0, 1 or 2, got %d", c.QoS)
	}
	return nil
}
