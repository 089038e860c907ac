package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration loaded from file/env.
type Config struct {
	Namespace          string `json:"namespace" yaml:"namespace"`
	NamespaceNameRegex string `json:"namespaceNameRegex" yaml:"namespaceNameRegex"`
	DataDir            string `json:"dataDir" yaml:"dataDir"`

	Fsync           string `json:"fsync" yaml:"fsync"`
	FsyncIntervalMs int    `json:"fsyncIntervalMs" yaml:"fsyncIntervalMs"`

	GRPCAddr string `json:"grpcAddr" yaml:"grpcAddr"`
	HTTPAddr string `json:"httpAddr" yaml:"httpAddr"`

	// NATSURL selects the live channel: empty for none, "embedded" to run a
	// server in-process, otherwise a nats:// URL.
	NATSURL          string `json:"natsURL" yaml:"natsURL"`
	EmbeddedNATSPort int    `json:"embeddedNATSPort" yaml:"embeddedNATSPort"`

	Subscribe    SubscribeDefaults `json:"subscribe" yaml:"subscribe"`
	ConsumeLimit int               `json:"consumeLimit" yaml:"consumeLimit"`

	Log LogConfig `json:"log" yaml:"log"`
}

// SubscribeDefaults are the client-side paging and buffering defaults.
type SubscribeDefaults struct {
	PageLimit       int `json:"pageLimit" yaml:"pageLimit"`
	PollIntervalMs  int `json:"pollIntervalMs" yaml:"pollIntervalMs"`
	MaxBuffer       int `json:"maxBuffer" yaml:"maxBuffer"`
	BufferTimeoutMs int `json:"bufferTimeoutMs" yaml:"bufferTimeoutMs"`
}

// LogConfig selects the process logger.
type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// EmbeddedNATS is the NATSURL value that starts an in-process server.
const EmbeddedNATS = "embedded"

// Default returns built-in defaults.
func Default() Config {
	return Config{
		Namespace:          "default",
		NamespaceNameRegex: "[a-z0-9-_]{1,64}",
		Fsync:              "interval",
		FsyncIntervalMs:    5,
		GRPCAddr:           ":7070",
		HTTPAddr:           ":7071",
		EmbeddedNATSPort:   4222,
		Subscribe: SubscribeDefaults{
			PageLimit:       1000,
			PollIntervalMs:  1000,
			MaxBuffer:       10000,
			BufferTimeoutMs: 30000,
		},
		ConsumeLimit: 4000,
		Log:          LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads configuration from a JSON or YAML file (by extension). If path is empty, returns defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: %s: %w", path, err)
		}
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail late.
func (c Config) Validate() error {
	re, err := regexp.Compile("^(?:" + c.NamespaceNameRegex + ")$")
	if err != nil {
		return fmt.Errorf("config: namespaceNameRegex: %w", err)
	}
	if !re.MatchString(c.Namespace) {
		return fmt.Errorf("config: namespace %q does not match %q", c.Namespace, c.NamespaceNameRegex)
	}
	if c.Subscribe.PageLimit < 0 || c.Subscribe.MaxBuffer < 0 || c.ConsumeLimit < 0 {
		return fmt.Errorf("config: negative limit")
	}
	return nil
}

// FsyncInterval returns the interval fsync period.
func (c Config) FsyncInterval() time.Duration {
	return time.Duration(c.FsyncIntervalMs) * time.Millisecond
}

// PollInterval returns the subscribe poll interval.
func (s SubscribeDefaults) PollInterval() time.Duration {
	return time.Duration(s.PollIntervalMs) * time.Millisecond
}

// BufferTimeout returns the handover buffer timeout.
func (s SubscribeDefaults) BufferTimeout() time.Duration {
	return time.Duration(s.BufferTimeoutMs) * time.Millisecond
}
