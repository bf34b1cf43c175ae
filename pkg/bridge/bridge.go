package bridge

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/xid"
	"github.com/rs/zerolog"

	"github.com/beeper/persona-bridge/pkg/aiprovider"
	"github.com/beeper/persona-bridge/pkg/commandregistry"
	"github.com/beeper/persona-bridge/pkg/delivery"
	"github.com/beeper/persona-bridge/pkg/metrics"
	"github.com/beeper/persona-bridge/pkg/persona"
	"github.com/beeper/persona-bridge/pkg/revolt"
	"github.com/beeper/persona-bridge/pkg/shared/boundedcache"
)

const defaultChannelKindCapacity = 1024

// Transport is the REST surface the dispatcher needs beyond sending messages.
type Transport interface {
	ChannelKind(ctx context.Context, channelID string) (revolt.ChannelKind, error)
	DisplayName(ctx context.Context, userID string) string
	RemoveReaction(ctx context.Context, channelID, messageID, emoji, userID string) error
}

type Config struct {
	// MediaBase is the file server for attachments that only carry an ID.
	MediaBase string
	Owners    commandregistry.Owners
	// ChannelKindCapacity bounds the channel type cache used for direct message detection.
	ChannelKindCapacity int
}

// Bridge routes realtime events to the persona machine and the response pipeline.
type Bridge struct {
	cfg       Config
	transport Transport
	completer aiprovider.Completer
	pipeline  *delivery.Pipeline
	personas  *persona.Machine
	commands  *commandregistry.Registry
	log       zerolog.Logger
	metrics   *metrics.Metrics

	mu           sync.RWMutex
	selfID       string
	channelKinds *boundedcache.Map[string, revolt.ChannelKind]
}

func New(
	cfg Config,
	transport Transport,
	completer aiprovider.Completer,
	pipeline *delivery.Pipeline,
	personas *persona.Machine,
	log zerolog.Logger,
	m *metrics.Metrics,
) *Bridge {
	if cfg.ChannelKindCapacity <= 0 {
		cfg.ChannelKindCapacity = defaultChannelKindCapacity
	}
	b := &Bridge{
		cfg:          cfg,
		transport:    transport,
		completer:    completer,
		pipeline:     pipeline,
		personas:     personas,
		commands:     commandregistry.Default(),
		log:          log.With().Str("component", "bridge").Logger(),
		metrics:      metrics.OrNop(m),
		channelKinds: boundedcache.NewMap[string, revolt.ChannelKind](cfg.ChannelKindCapacity),
	}
	b.metrics.GaugeFunc("outbound_index_size", "Messages in the recent-outbound index.", func() float64 {
		return float64(pipeline.OutboundLen())
	})
	b.metrics.GaugeFunc("inbound_cache_size", "Messages in the recent-inbound cache.", func() float64 {
		return float64(personas.InboundLen())
	})
	return b
}

// SetSelfID records the bot's own user ID. It is called before every stream connection.
func (b *Bridge) SetSelfID(id string) {
	b.mu.Lock()
	b.selfID = id
	b.mu.Unlock()
	b.personas.SetSelfID(id)
}

func (b *Bridge) SelfID() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.selfID
}

func (b *Bridge) isSelf(userID string) bool {
	self := b.SelfID()
	return self != "" && userID == self
}

// HandleEvent processes one realtime event to completion.
func (b *Bridge) HandleEvent(ctx context.Context, evt revolt.Event) {
	log := b.log.With().Str("event_id", xid.New().String()).Str("event_type", string(evt.Type())).Logger()
	ctx = log.WithContext(ctx)
	defer func() {
		if r := recover(); r != nil {
			log.Error().Any("panic", r).Msg("Event handler panicked")
		}
	}()

	switch e := evt.(type) {
	case *revolt.MessageEvent:
		if b.isSelf(e.Author) {
			return
		}
		b.handleMessage(ctx, e.Message)
	case *revolt.ReactEvent:
		if b.isSelf(e.UserID) {
			return
		}
		b.handleReaction(ctx, e)
	case *revolt.ReadyEvent, *revolt.PingEvent, *revolt.PongEvent, *revolt.AuthenticatedEvent, *revolt.ErrorEvent:
		log.Trace().Msg("Ignoring stream control event")
	case *revolt.UnknownEvent:
		log.Trace().Msg("Ignoring unknown event")
	default:
		log.Warn().Msg("Unhandled event variant")
	}
}

func (b *Bridge) handleMessage(ctx context.Context, msg revolt.Message) {
	log := zerolog.Ctx(ctx).With().
		Str("message_id", msg.ID).
		Str("channel_id", msg.Channel).
		Str("author_id", msg.Author).
		Logger()
	ctx = log.WithContext(ctx)

	switch {
	case commandregistry.IsMenuRequest(msg.Content):
		scope := b.personas.ScopeFor(msg.Channel, msg.Author)
		if _, err := b.personas.PostSelectionMenu(ctx, scope, msg.ID); err != nil {
			log.Err(err).Msg("Failed to post persona menu")
		}
	case commandregistry.IsCommand(msg.Content):
		b.handleCommand(ctx, msg)
	case b.shouldRespond(ctx, msg):
		scope := b.personas.ScopeFor(msg.Channel, msg.Author)
		b.processMessage(ctx, msg, b.personas.Active(scope))
	default:
		log.Trace().Msg("Message not addressed to the bot")
	}
}

// shouldRespond reports whether the message mentions the bot, is a direct
// message or replies to something the bot sent.
func (b *Bridge) shouldRespond(ctx context.Context, msg revolt.Message) bool {
	if self := b.SelfID(); self != "" && strings.Contains(msg.Content, mentionToken(self)) {
		return true
	}
	if b.pipeline.IsReplyToSelf(msg.Replies) {
		return true
	}
	return b.isDirectMessage(ctx, msg.Channel)
}

func (b *Bridge) isDirectMessage(ctx context.Context, channelID string) bool {
	if kind, ok := b.channelKinds.Get(channelID); ok {
		return kind == revolt.ChannelKindDirectMessage
	}
	kind, err := b.transport.ChannelKind(ctx, channelID)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("Failed to check channel type")
		return false
	}
	b.channelKinds.Put(channelID, kind)
	return kind == revolt.ChannelKindDirectMessage
}

func mentionToken(userID string) string {
	return "<@" + userID + ">"
}
