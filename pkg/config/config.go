package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.mau.fi/util/configupgrade"
	"gopkg.in/yaml.v3"

	"github.com/beeper/persona-bridge/pkg/cron"
	"github.com/beeper/persona-bridge/pkg/persona"
	"github.com/beeper/persona-bridge/pkg/shared/stringutil"
)

//go:embed example-config.yaml
var ExampleConfig string

// MaxEnvPersonas is the highest persona ID whose key can be set from the environment.
const MaxEnvPersonas = 10

const (
	EnvAPIKey        = "SHAPESINC_API_KEY"
	EnvToken         = "REVOLT_TOKEN"
	EnvOwner         = "BOT_OWNER_ID"
	EnvMediaURL      = "REVOLT_SERVER_URL"
	EnvPersonaKeyFmt = "SHAPESINC_SHAPE_USERNAME_%d"
)

var (
	ErrMissingToken  = errors.New("revolt token is not set (revolt.token or " + EnvToken + ")")
	ErrMissingAPIKey = errors.New("shapes API key is not set (shapes.api_key or " + EnvAPIKey + ")")
	ErrMissingOwner  = errors.New("no bot owner configured (bot.owners or " + EnvOwner + ")")
)

type Config struct {
	Revolt   RevoltConfig          `yaml:"revolt"`
	Shapes   ShapesConfig          `yaml:"shapes"`
	Bot      BotConfig             `yaml:"bot"`
	Personas map[int]PersonaConfig `yaml:"personas"`
	Logging  LoggingConfig         `yaml:"logging"`
	Metrics  MetricsConfig         `yaml:"metrics"`
}

type RevoltConfig struct {
	Token               string        `yaml:"token"`
	APIURL              string        `yaml:"api_url"`
	StreamURL           string        `yaml:"stream_url"`
	MediaURL            string        `yaml:"media_url"`
	PingInterval        time.Duration `yaml:"ping_interval"`
	ReconnectDelay      time.Duration `yaml:"reconnect_delay"`
	HandshakeRetryDelay time.Duration `yaml:"handshake_retry_delay"`
	MaxMissedPongs      int           `yaml:"max_missed_pongs"`
}

type ShapesConfig struct {
	APIKey         string        `yaml:"api_key"`
	BaseURL        string        `yaml:"base_url"`
	ModelPrefix    string        `yaml:"model_prefix"`
	Temperature    float64       `yaml:"temperature"`
	MaxTokens      int           `yaml:"max_tokens"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	MaxRetries     int           `yaml:"max_retries"`
}

// BotConfig controls persona selection and message delivery.
type BotConfig struct {
	Owners   []string `yaml:"owners"`
	Scope    string   `yaml:"scope"`
	Identity string   `yaml:"identity"`

	ChunkLimit         int           `yaml:"chunk_limit"`
	MenuCleanupDelay   time.Duration `yaml:"menu_cleanup_delay"`
	NoticeCleanupDelay time.Duration `yaml:"notice_cleanup_delay"`
	AlternateCooldown  time.Duration `yaml:"alternate_cooldown"`
	IdentityThrottle   time.Duration `yaml:"identity_throttle"`
	ReactionDelay      time.Duration `yaml:"reaction_delay"`

	InboundCacheSize     int `yaml:"inbound_cache_size"`
	OutboundCacheSize    int `yaml:"outbound_cache_size"`
	CorrelationCacheSize int `yaml:"correlation_cache_size"`

	AvatarRefresh string `yaml:"avatar_refresh"`
}

// PersonaConfig is one persona entry. Key selects the backend identity; the
// remaining fields describe how the persona is displayed.
type PersonaConfig struct {
	Key            string `yaml:"key"`
	Glyph          string `yaml:"glyph"`
	Name           string `yaml:"name"`
	Colour         string `yaml:"colour"`
	Avatar         string `yaml:"avatar"`
	FallbackAvatar string `yaml:"fallback_avatar"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

func upgradeConfig(helper configupgrade.Helper) {
	helper.Copy(configupgrade.Str, "revolt", "token")
	helper.Copy(configupgrade.Str, "revolt", "api_url")
	helper.Copy(configupgrade.Str, "revolt", "stream_url")
	helper.Copy(configupgrade.Str, "revolt", "media_url")
	helper.Copy(configupgrade.Str, "revolt", "ping_interval")
	helper.Copy(configupgrade.Str, "revolt", "reconnect_delay")
	helper.Copy(configupgrade.Str, "revolt", "handshake_retry_delay")
	helper.Copy(configupgrade.Int, "revolt", "max_missed_pongs")

	helper.Copy(configupgrade.Str, "shapes", "api_key")
	helper.Copy(configupgrade.Str, "shapes", "base_url")
	helper.Copy(configupgrade.Str, "shapes", "model_prefix")
	helper.Copy(configupgrade.Float|configupgrade.Int, "shapes", "temperature")
	helper.Copy(configupgrade.Int, "shapes", "max_tokens")
	helper.Copy(configupgrade.Str, "shapes", "request_timeout")
	helper.Copy(configupgrade.Int, "shapes", "max_retries")

	helper.Copy(configupgrade.List, "bot", "owners")
	helper.Copy(configupgrade.Str, "bot", "scope")
	helper.Copy(configupgrade.Str, "bot", "identity")
	helper.Copy(configupgrade.Int, "bot", "chunk_limit")
	helper.Copy(configupgrade.Str, "bot", "menu_cleanup_delay")
	helper.Copy(configupgrade.Str, "bot", "notice_cleanup_delay")
	helper.Copy(configupgrade.Str, "bot", "alternate_cooldown")
	helper.Copy(configupgrade.Str, "bot", "identity_throttle")
	helper.Copy(configupgrade.Str, "bot", "reaction_delay")
	helper.Copy(configupgrade.Int, "bot", "inbound_cache_size")
	helper.Copy(configupgrade.Int, "bot", "outbound_cache_size")
	helper.Copy(configupgrade.Int, "bot", "correlation_cache_size")
	helper.Copy(configupgrade.Str, "bot", "avatar_refresh")

	// The persona table is replaced as a whole so entries can be removed.
	helper.Copy(configupgrade.Map, "personas")

	helper.Copy(configupgrade.Str, "logging", "format")
	helper.Copy(configupgrade.Str, "logging", "min_level")

	helper.Copy(configupgrade.Bool, "metrics", "enabled")
	helper.Copy(configupgrade.Str, "metrics", "listen")
}

// Upgrader merges a config file into the embedded example config.
var Upgrader = &configupgrade.StructUpgrader{
	SimpleUpgrader: upgradeConfig,
	Base:           ExampleConfig,
}

// Load reads the config at path, fills in fields missing from it with the
// example defaults and writes the result back when save is set.
func Load(path string, save bool) (*Config, error) {
	data, _, err := configupgrade.Do(path, save, Upgrader)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

// Generate writes the example config to path. Existing files are left alone.
func Generate(path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if _, err = f.WriteString(ExampleConfig); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

// ApplyEnv overrides secrets and persona keys from environment variables.
func (c *Config) ApplyEnv(getenv func(string) string) {
	c.Revolt.Token = stringutil.EnvOr(c.Revolt.Token, getenv(EnvToken))
	c.Shapes.APIKey = stringutil.EnvOr(c.Shapes.APIKey, getenv(EnvAPIKey))
	c.Revolt.MediaURL = stringutil.EnvOr(c.Revolt.MediaURL, getenv(EnvMediaURL))
	if owner := strings.TrimSpace(getenv(EnvOwner)); owner != "" {
		c.Bot.Owners = append(c.Bot.Owners, owner)
	}
	for id := 1; id <= MaxEnvPersonas; id++ {
		key := strings.TrimSpace(getenv(fmt.Sprintf(EnvPersonaKeyFmt, id)))
		if key == "" {
			continue
		}
		if c.Personas == nil {
			c.Personas = make(map[int]PersonaConfig)
		}
		entry := c.Personas[id]
		entry.Key = key
		c.Personas[id] = entry
	}
}

// PersonaKeys returns the backend keys of all personas that have one.
func (c *Config) PersonaKeys() map[int]string {
	keys := make(map[int]string, len(c.Personas))
	for id, entry := range c.Personas {
		if key := strings.TrimSpace(entry.Key); key != "" {
			keys[id] = key
		}
	}
	return keys
}

// PersonaDisplays returns the display definitions of all personas with a glyph and a name.
func (c *Config) PersonaDisplays() map[int]persona.Display {
	displays := make(map[int]persona.Display, len(c.Personas))
	for id, entry := range c.Personas {
		if strings.TrimSpace(entry.Glyph) == "" || strings.TrimSpace(entry.Name) == "" {
			continue
		}
		displays[id] = persona.Display{
			Glyph:          strings.TrimSpace(entry.Glyph),
			Name:           strings.TrimSpace(entry.Name),
			Colour:         entry.Colour,
			Avatar:         entry.Avatar,
			FallbackAvatar: stringutil.FirstNonEmpty(entry.FallbackAvatar, entry.Avatar),
		}
	}
	return displays
}

// Validate reports every problem that prevents the bridge from starting.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Revolt.Token) == "" {
		errs = append(errs, ErrMissingToken)
	}
	if strings.TrimSpace(c.Shapes.APIKey) == "" {
		errs = append(errs, ErrMissingAPIKey)
	}
	if len(nonEmpty(c.Bot.Owners)) == 0 {
		errs = append(errs, ErrMissingOwner)
	}
	if len(c.PersonaKeys()) == 0 {
		errs = append(errs, persona.ErrNoPersonas)
	}
	if _, err := persona.ParseScopeMode(c.Bot.Scope); err != nil {
		errs = append(errs, fmt.Errorf("bot.scope: %w", err))
	}
	if _, err := persona.ParseIdentityMode(c.Bot.Identity); err != nil {
		errs = append(errs, fmt.Errorf("bot.identity: %w", err))
	}
	if c.Bot.ChunkLimit <= 0 {
		errs = append(errs, fmt.Errorf("bot.chunk_limit must be positive, got %d", c.Bot.ChunkLimit))
	}
	if err := cron.ValidateSchedule(c.Bot.AvatarRefresh); err != nil {
		errs = append(errs, fmt.Errorf("bot.avatar_refresh: %w", err))
	}
	if _, err := c.Logging.Level(); err != nil {
		errs = append(errs, err)
	}
	for id := range c.Personas {
		if id <= 0 {
			errs = append(errs, fmt.Errorf("personas: invalid ID %d", id))
		}
	}
	return errors.Join(errs...)
}

func nonEmpty(values []string) []string {
	var out []string
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			out = append(out, value)
		}
	}
	return out
}
