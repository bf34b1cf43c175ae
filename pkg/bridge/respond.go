package bridge

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/beeper/persona-bridge/pkg/aierrors"
	"github.com/beeper/persona-bridge/pkg/aiprovider"
	"github.com/beeper/persona-bridge/pkg/commandregistry"
	"github.com/beeper/persona-bridge/pkg/delivery"
	"github.com/beeper/persona-bridge/pkg/persona"
	"github.com/beeper/persona-bridge/pkg/revolt"
	"github.com/beeper/persona-bridge/pkg/shared/media"
)

const (
	GreetingText     = "Hello! How can I help you today?"
	DescribeText     = "Please describe this"
	ErrorText        = "Sorry, I encountered an error while processing your request."
	CommandErrorText = "❌ Command failed."
)

const (
	headerUserID    = "X-User-Id"
	headerChannelID = "X-Channel-Id"
)

// processMessage answers msg as p.
func (b *Bridge) processMessage(ctx context.Context, msg revolt.Message, p persona.Persona) {
	log := zerolog.Ctx(ctx).With().Str("persona", p.DisplayName()).Logger()

	text := strings.TrimSpace(msg.Content)
	if self := b.SelfID(); self != "" {
		text = strings.TrimSpace(strings.ReplaceAll(text, mentionToken(self), ""))
	}
	attachments := media.Normalize(msg.Descriptors(), b.cfg.MediaBase)

	if text == "" && attachments.Empty() {
		b.reply(ctx, msg.Channel, GreetingText, p, "")
		return
	}
	if text == "" {
		text = DescribeText
	}
	b.personas.RememberInbound(msg)

	prompt := aiprovider.NewTextMessage(aiprovider.RoleUser, text)
	if !attachments.Empty() {
		prompt = aiprovider.NewMediaMessage(text, attachments.ImageURL, attachments.AudioURL)
	}
	answer, err := b.complete(ctx, msg, p, prompt)
	if err != nil {
		log.Err(err).Str("error_code", string(aierrors.Classify(err))).Msg("Failed to generate reply")
		b.reply(ctx, msg.Channel, ErrorText, p, "")
		return
	}
	b.reply(ctx, msg.Channel, answer, p, msg.ID)
}

func (b *Bridge) complete(ctx context.Context, msg revolt.Message, p persona.Persona, prompt aiprovider.UnifiedMessage) (string, error) {
	answer, err := b.completer.Complete(ctx, aiprovider.CompletionRequest{
		PersonaKey: p.Key,
		Messages:   []aiprovider.UnifiedMessage{prompt},
		Headers: map[string]string{
			headerUserID:    b.transport.DisplayName(ctx, msg.Author),
			headerChannelID: msg.Channel,
		},
	})
	result := string(aierrors.Classify(err))
	if err == nil {
		result = "ok"
	}
	b.metrics.Completions.WithLabelValues(result).Inc()
	return answer, err
}

// reply delivers text under the persona overlay. A non-empty correlateWith
// links the reply to the inbound message it answers.
func (b *Bridge) reply(ctx context.Context, channelID, text string, p persona.Persona, correlateWith string) {
	_, err := b.pipeline.Deliver(ctx, delivery.Request{
		ChannelID:     channelID,
		Text:          text,
		Overlay:       b.personas.Overlay(ctx, p),
		CorrelateWith: correlateWith,
	})
	if err != nil {
		zerolog.Ctx(ctx).Err(err).Msg("Failed to deliver reply")
	}
}

func (b *Bridge) handleCommand(ctx context.Context, msg revolt.Message) {
	log := zerolog.Ctx(ctx)
	isOwner := b.cfg.Owners.IsOwner(msg.Author)

	var def *commandregistry.Definition
	inv, ok := commandregistry.Parse(msg.Content)
	if ok {
		def = b.commands.Get(inv.Name)
	}
	if def == nil || def.Local() {
		b.sendHelp(ctx, msg.Channel, isOwner)
		return
	}

	active := b.personas.Active(b.personas.ScopeFor(msg.Channel, msg.Author))
	if !b.cfg.Owners.Allowed(def, msg.Author) {
		log.Info().Str("command", def.Name).Msg("Denied owner-only command")
		b.reply(ctx, msg.Channel, commandregistry.DeniedText, active, "")
		return
	}

	log.Debug().Str("command", def.Name).Msg("Running command")
	answer, err := b.complete(ctx, msg, active, aiprovider.NewTextMessage(aiprovider.RoleUser, def.Prompt(inv.Args)))
	if err != nil {
		log.Err(err).Str("command", def.Name).Str("error_code", string(aierrors.Classify(err))).Msg("Command failed")
		b.reply(ctx, msg.Channel, CommandErrorText, active, "")
		return
	}
	b.reply(ctx, msg.Channel, answer, active, "")
}

func (b *Bridge) sendHelp(ctx context.Context, channelID string, isOwner bool) {
	if _, err := b.pipeline.Deliver(ctx, delivery.Request{
		ChannelID: channelID,
		Text:      b.commands.Help(isOwner),
	}); err != nil {
		zerolog.Ctx(ctx).Err(err).Msg("Failed to send help")
	}
}
