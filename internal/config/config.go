// Package config loads lorecore configuration from defaults, an
// optional lorecore.toml file, LORECORE_* environment variables, and
// command-line flags, in that order of increasing priority.
package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// Config holds all configuration for the lorecored server.
type Config struct {
	Port     int           `koanf:"port"`
	Verbose  int           `koanf:"verbose"`
	JSONLogs bool          `koanf:"jsonlogs"`
	Storage  StorageConfig `koanf:"storage"`
	Media    MediaConfig   `koanf:"media"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	Driver string `koanf:"driver"` // memory|sqlite|postgres
	Path   string `koanf:"path"`   // sqlite file location
	DSN    string `koanf:"dsn"`    // postgres connection string
}

// MediaConfig selects the attachment store backend. The credential
// fields are optional; when unset, the s3 driver falls back to the
// default AWS chain.
type MediaConfig struct {
	Driver       string `koanf:"driver"` // fs|s3|memory
	Root         string `koanf:"root"`   // fs root directory
	Bucket       string `koanf:"bucket"`
	Region       string `koanf:"region"`
	Endpoint     string `koanf:"endpoint"`
	AccessKey    string `koanf:"accesskey"`
	SecretKey    string `koanf:"secretkey"`
	SessionToken string `koanf:"sessiontoken"`
	PathStyle    bool   `koanf:"pathstyle"`
}

const (
	envPrefix  = "LORECORE_"
	configFile = "lorecore.toml"
)

// Load resolves configuration with priority: flags > env > file > defaults.
func Load(f *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	defaults := map[string]interface{}{
		"port":     8080,
		"verbose":  0,
		"jsonlogs": false,
		"storage": map[string]interface{}{
			"driver": "sqlite",
			"path":   "lorecore.db",
			"dsn":    "",
		},
		"media": map[string]interface{}{
			"driver":       "fs",
			"root":         "media",
			"bucket":       "",
			"region":       "",
			"endpoint":     "",
			"accesskey":    "",
			"secretkey":    "",
			"sessiontoken": "",
			"pathstyle":    false,
		},
	}
	if err := k.Load(makeMapProvider(defaults), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Config file is optional; a missing file is not an error.
	_ = k.Load(file.Provider(configFile), toml.Parser())

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(
			strings.TrimPrefix(s, envPrefix)), "_", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if f != nil {
		if err := k.Load(posflag.Provider(f, ".", k), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Helper to use map as a provider
type mapProvider struct {
	m map[string]interface{}
}

func makeMapProvider(m map[string]interface{}) *mapProvider {
	return &mapProvider{m: m}
}

func (p *mapProvider) Read() (map[string]interface{}, error) {
	return p.m, nil
}

func (p *mapProvider) ReadBytes() ([]byte, error) {
	return nil, fmt.Errorf("not implemented")
}
