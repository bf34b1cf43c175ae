package config

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type LoggingConfig struct {
	Format   string `yaml:"format"`
	MinLevel string `yaml:"min_level"`
}

// Level parses MinLevel. Empty means debug.
func (c LoggingConfig) Level() (zerolog.Level, error) {
	if strings.TrimSpace(c.MinLevel) == "" {
		return zerolog.DebugLevel, nil
	}
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(c.MinLevel)))
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("logging.min_level: %w", err)
	}
	return level, nil
}

// NewLogger builds the root logger writing to w.
func (c LoggingConfig) NewLogger(w io.Writer) (zerolog.Logger, error) {
	level, err := c.Level()
	if err != nil {
		return zerolog.Nop(), err
	}
	switch strings.ToLower(c.Format) {
	case "json":
	case "", "pretty":
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.DateTime}
	default:
		return zerolog.Nop(), fmt.Errorf("logging.format: unknown format %q", c.Format)
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger(), nil
}
