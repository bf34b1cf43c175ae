package config

import (
	"github.com/beeper/persona-bridge/pkg/aiprovider"
	"github.com/beeper/persona-bridge/pkg/delivery"
	"github.com/beeper/persona-bridge/pkg/gateway"
	"github.com/beeper/persona-bridge/pkg/persona"
)

func (c *Config) GatewayConfig() gateway.Config {
	return gateway.Config{
		URL:                 c.Revolt.StreamURL,
		Token:               c.Revolt.Token,
		PingInterval:        c.Revolt.PingInterval,
		ReconnectDelay:      c.Revolt.ReconnectDelay,
		HandshakeRetryDelay: c.Revolt.HandshakeRetryDelay,
		MaxMissedPongs:      c.Revolt.MaxMissedPongs,
	}
}

func (c *Config) ShapesConfig() aiprovider.ShapesConfig {
	return aiprovider.ShapesConfig{
		APIKey:      c.Shapes.APIKey,
		BaseURL:     c.Shapes.BaseURL,
		ModelPrefix: c.Shapes.ModelPrefix,
		Temperature: c.Shapes.Temperature,
		MaxTokens:   c.Shapes.MaxTokens,
		Timeout:     c.Shapes.RequestTimeout,
		MaxRetries:  c.Shapes.MaxRetries,
	}
}

func (c *Config) PipelineConfig() delivery.Config {
	return delivery.Config{
		ChunkLimit:          c.Bot.ChunkLimit,
		OutboundCapacity:    c.Bot.OutboundCacheSize,
		CorrelationCapacity: c.Bot.CorrelationCacheSize,
	}
}

// MachineConfig converts the bot section. Modes are validated by Validate.
func (c *Config) MachineConfig() (persona.Config, error) {
	scope, err := persona.ParseScopeMode(c.Bot.Scope)
	if err != nil {
		return persona.Config{}, err
	}
	identity, err := persona.ParseIdentityMode(c.Bot.Identity)
	if err != nil {
		return persona.Config{}, err
	}
	return persona.Config{
		Scope:              scope,
		Identity:           identity,
		MenuCleanupDelay:   c.Bot.MenuCleanupDelay,
		NoticeCleanupDelay: c.Bot.NoticeCleanupDelay,
		AlternateCooldown:  c.Bot.AlternateCooldown,
		IdentityThrottle:   c.Bot.IdentityThrottle,
		ReactionDelay:      c.Bot.ReactionDelay,
		InboundCapacity:    c.Bot.InboundCacheSize,
	}, nil
}
