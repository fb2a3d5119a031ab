package config

import (
	"bytes"
	"encoding/json"
	"io"
	"os"

	"github.com/a8m/envsubst"
	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"

	"go.viam.com/slrig/logging"
)

// Read reads a config from the given file, substituting environment variables first.
func Read(filePath string, logger logging.Logger) (*Config, error) {
	buf, err := envsubst.ReadFile(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read config file %q", filePath)
	}
	cfg, err := FromReader(bytes.NewReader(buf), logger)
	if err != nil {
		return nil, errors.Wrapf(err, "config file %q", filePath)
	}
	return cfg, nil
}

// FromReader reads a config from the given reader, applies defaults and validates it.
func FromReader(r io.Reader, logger logging.Logger) (*Config, error) {
	var raw map[string]interface{}
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, errors.Wrap(err, "cannot parse config")
	}
	var cfg Config
	if err := decode(raw, &cfg); err != nil {
		return nil, err
	}
	sessionSet := cfg.Session != ""
	cfg.ApplyDefaults()
	if !sessionSet {
		logger.Infow("no session configured, using a generated one", "session", cfg.Session)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func decode(raw map[string]interface{}, cfg *Config) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           cfg,
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(raw); err != nil {
		return errors.Wrap(err, "cannot decode config")
	}
	return nil
}

// Write writes cfg as indented JSON.
func Write(filePath string, cfg *Config) error {
	md, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	//nolint:gosec
	return os.WriteFile(filePath, md, 0o644)
}
