package config

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/a8m/envsubst"
	"github.com/pkg/errors"

	"github.com/bledrive/bledrive/logging"
)

// Read reads a config from the given file. ${VAR} references are expanded from the environment
// before the file is parsed.
func Read(filePath string, logger logging.Logger) (*Config, error) {
	buf, err := envsubst.ReadFile(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read config file %q", filePath)
	}

	cfg, err := FromReader(bytes.NewReader(buf), logger)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid config file %q", filePath)
	}
	cfg.ConfigFilePath = filePath
	return cfg, nil
}

// FromReader reads a config from the given reader, applies defaults, and validates it.
func FromReader(r io.Reader, logger logging.Logger) (*Config, error) {
	var cfg Config
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, errors.Wrap(err, "cannot parse config")
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger.Debugw("config loaded", "link", cfg.Link.Type, "listen", cfg.Web.Listen, "radius", cfg.Joystick.Radius)
	return &cfg, nil
}

// Default returns a config with every default applied.
func Default() *Config {
	var cfg Config
	cfg.ApplyDefaults()
	return &cfg
}
