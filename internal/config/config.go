// Package config resolves service settings from defaults, an optional TOML
// file and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/mcuadros/go-defaults"

	"github.com/Brownie44l1/wound-api/internal/logging"
	"github.com/Brownie44l1/wound-api/internal/model"
)

const (
	EnvAddr          = "WOUND_ADDR"
	EnvPort          = "PORT"
	EnvAllowedOrigin = "WOUND_ALLOWED_ORIGIN"
	EnvModelPath     = "WOUND_MODEL_PATH"
	EnvORTLibrary    = "WOUND_ORT_LIBRARY"
	EnvCatalogPath   = "WOUND_CATALOG"
	EnvLogLevel      = "WOUND_LOG_LEVEL"
	EnvLogFile       = "WOUND_LOG_FILE"
)

type Config struct {
	Server ServerConfig   `toml:"server"`
	Model  model.Config   `toml:"model"`
	Log    logging.Config `toml:"log"`

	// Catalog overrides the embedded label and suggestion table.
	Catalog string `toml:"catalog"`
}

type ServerConfig struct {
	Addr            string `toml:"addr" default:"localhost:8000"`
	AllowedOrigin   string `toml:"allowed_origin" default:"http://localhost:3000"`
	MaxUploadBytes  int64  `toml:"max_upload_bytes" default:"10485760"`
	ShutdownSeconds int    `toml:"shutdown_seconds" default:"5"`
}

// Default returns a Config with every default applied.
func Default() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load applies defaults, then path (if not empty), then the environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if port := os.Getenv(EnvPort); port != "" {
		c.Server.Addr = ":" + port
	}
	setFromEnv(&c.Server.Addr, EnvAddr)
	setFromEnv(&c.Server.AllowedOrigin, EnvAllowedOrigin)
	setFromEnv(&c.Model.Path, EnvModelPath)
	setFromEnv(&c.Model.Library, EnvORTLibrary)
	setFromEnv(&c.Catalog, EnvCatalogPath)
	setFromEnv(&c.Log.Level, EnvLogLevel)
	setFromEnv(&c.Log.File, EnvLogFile)
}

func setFromEnv(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

// Validate checks settings that would otherwise fail at request time. The
// model path is left alone: a missing artifact only disables /predict.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Server.Addr) == "" {
		errs = append(errs, errors.New("server.addr must not be empty"))
	}
	if !strings.HasPrefix(c.Server.AllowedOrigin, "http://") && !strings.HasPrefix(c.Server.AllowedOrigin, "https://") {
		errs = append(errs, fmt.Errorf("server.allowed_origin must be an http(s) origin, got %q", c.Server.AllowedOrigin))
	}
	if c.Server.MaxUploadBytes <= 0 {
		errs = append(errs, fmt.Errorf("server.max_upload_bytes must be positive, got %d", c.Server.MaxUploadBytes))
	}
	if c.Server.ShutdownSeconds < 0 {
		errs = append(errs, fmt.Errorf("server.shutdown_seconds must not be negative, got %d", c.Server.ShutdownSeconds))
	}
	if _, err := model.ParseLayout(c.Model.Layout); err != nil {
		errs = append(errs, fmt.Errorf("model.layout: %w", err))
	}
	if c.Model.PixelScale <= 0 {
		errs = append(errs, fmt.Errorf("model.pixel_scale must be positive, got %v", c.Model.PixelScale))
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}

	return errors.Join(errs...)
}
