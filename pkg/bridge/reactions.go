package bridge

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"go.mau.fi/util/variationselector"

	"github.com/beeper/persona-bridge/pkg/delivery"
	"github.com/beeper/persona-bridge/pkg/persona"
	"github.com/beeper/persona-bridge/pkg/revolt"
)

func (b *Bridge) handleReaction(ctx context.Context, evt *revolt.ReactEvent) {
	log := zerolog.Ctx(ctx).With().
		Str("message_id", evt.MessageID).
		Str("channel_id", evt.ChannelID).
		Str("actor_id", evt.UserID).
		Str("glyph", evt.Emoji).
		Logger()
	ctx = log.WithContext(ctx)
	if evt.Emoji == "" {
		return
	}

	if variationselector.Remove(evt.Emoji) == delivery.RetryGlyph {
		b.handleRetry(ctx, evt)
		return
	}

	if b.personas.IsAlternateMenu(evt.MessageID) {
		directive, err := b.personas.ResolveAlternateSelection(ctx, evt.MessageID, evt.Emoji, evt.UserID)
		switch {
		case errors.Is(err, persona.ErrNoMatch):
			log.Debug().Msg("Reaction on alternate menu matches no persona")
			return
		case err != nil:
			log.Warn().Err(err).Msg("Failed to resolve alternate persona")
			return
		}
		b.processMessage(ctx, directive.Message, directive.Persona)
		b.personas.Restore(directive.Scope, directive.Previous)
		return
	}

	scope := b.personas.ScopeFor(evt.ChannelID, evt.UserID)
	if _, err := b.personas.ResolveSelection(ctx, scope, evt.Emoji, evt.UserID); err != nil && !errors.Is(err, persona.ErrNoMatch) {
		log.Warn().Err(err).Msg("Failed to resolve persona selection")
	}
}

// handleRetry offers another persona for the message a bot reply answered.
func (b *Bridge) handleRetry(ctx context.Context, evt *revolt.ReactEvent) {
	log := zerolog.Ctx(ctx)
	inboundID, ok := b.pipeline.InboundFor(evt.MessageID)
	if !ok {
		log.Debug().Msg("Retry reaction on a message that answered nothing")
		return
	}

	scope := b.personas.ScopeFor(evt.ChannelID, evt.UserID)
	err := b.personas.RequestAlternatePersona(ctx, scope, inboundID)
	switch {
	case errors.Is(err, persona.ErrCooldown):
		log.Debug().Msg("Alternate persona requested during cooldown")
	case errors.Is(err, persona.ErrNoCandidates):
		log.Debug().Msg("No other persona to offer")
	case err != nil:
		log.Warn().Err(err).Msg("Failed to offer alternate personas")
	}

	if err = b.transport.RemoveReaction(ctx, evt.ChannelID, evt.MessageID, evt.Emoji, evt.UserID); err != nil {
		log.Warn().Err(err).Msg("Failed to remove retry reaction")
	}
}
