package delivery

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/beeper/persona-bridge/pkg/metrics"
	"github.com/beeper/persona-bridge/pkg/revolt"
	"github.com/beeper/persona-bridge/pkg/shared/boundedcache"
)

const (
	// RetryGlyph is attached to correlated replies; reacting with it asks another persona.
	RetryGlyph = "🔄"

	DefaultOutboundCapacity    = 100
	DefaultCorrelationCapacity = 500
)

// Control messages are bot-authored status texts that never get the retry affordance.
var controlPrefixes = []string{"🎭", "⏳", "🔄", "❌"}

// IsControlText reports whether text is a menu, notice or confirmation rather than a reply.
func IsControlText(text string) bool {
	trimmed := strings.TrimSpace(text)
	for _, prefix := range controlPrefixes {
		if strings.HasPrefix(trimmed, prefix) {
			return true
		}
	}
	return false
}

// Transport is the subset of the REST client the pipeline sends through.
type Transport interface {
	SendMessage(ctx context.Context, channelID string, params revolt.SendMessageParams) (*revolt.Message, error)
	AddReaction(ctx context.Context, channelID, messageID, emoji string) error
}

// Config controls chunking and index sizes.
type Config struct {
	ChunkLimit          int
	OutboundCapacity    int
	CorrelationCapacity int
}

func (c Config) withDefaults() Config {
	if c.ChunkLimit <= 0 {
		c.ChunkLimit = DefaultChunkLimit
	}
	if c.OutboundCapacity <= 0 {
		c.OutboundCapacity = DefaultOutboundCapacity
	}
	if c.CorrelationCapacity <= 0 {
		c.CorrelationCapacity = DefaultCorrelationCapacity
	}
	return c
}

// Request is one outbound text.
type Request struct {
	ChannelID string
	Text      string
	Overlay   *revolt.Masquerade
	// CorrelateWith is the inbound message the text answers. When set, the
	// chunks are linked to it and the last one gets the retry affordance.
	CorrelateWith string
}

// Pipeline sends chunked messages and remembers what the bot has sent.
type Pipeline struct {
	transport   Transport
	cfg         Config
	outbound    *boundedcache.Set[string]
	correlation *boundedcache.Map[string, string]
	log         zerolog.Logger
	metrics     *metrics.Metrics
}

// NewPipeline creates a delivery pipeline.
func NewPipeline(transport Transport, cfg Config, log zerolog.Logger, m *metrics.Metrics) *Pipeline {
	cfg = cfg.withDefaults()
	return &Pipeline{
		transport:   transport,
		cfg:         cfg,
		outbound:    boundedcache.NewSet[string](cfg.OutboundCapacity),
		correlation: boundedcache.NewMap[string, string](cfg.CorrelationCapacity),
		log:         log.With().Str("component", "delivery").Logger(),
		metrics:     metrics.OrNop(m),
	}
}

// Deliver sends req.Text split into chunks and returns the IDs of the sent
// messages in order. Blank chunks are skipped. On a send failure the IDs sent
// so far are returned together with the error.
func (p *Pipeline) Deliver(ctx context.Context, req Request) ([]string, error) {
	chunks := SplitMessage(req.Text, p.cfg.ChunkLimit)
	ids := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		if strings.TrimSpace(chunk) == "" {
			continue
		}
		msg, err := p.transport.SendMessage(ctx, req.ChannelID, revolt.SendMessageParams{
			Content:    chunk,
			Masquerade: req.Overlay,
		})
		if err != nil {
			return ids, fmt.Errorf("failed to send chunk %d/%d: %w", len(ids)+1, len(chunks), err)
		}
		p.metrics.MessagesSent.Inc()
		p.outbound.Add(msg.ID)
		if req.CorrelateWith != "" {
			p.correlation.Put(msg.ID, req.CorrelateWith)
		}
		ids = append(ids, msg.ID)
	}

	if req.CorrelateWith != "" && len(ids) > 0 && !IsControlText(req.Text) {
		last := ids[len(ids)-1]
		if err := p.transport.AddReaction(ctx, req.ChannelID, last, RetryGlyph); err != nil {
			p.log.Warn().Err(err).Str("message_id", last).Msg("Failed to add retry reaction")
		}
	}
	return ids, nil
}

// Remember records an ID sent outside Deliver, such as a menu, as bot-authored.
func (p *Pipeline) Remember(messageID string) {
	if messageID != "" {
		p.outbound.Add(messageID)
	}
}

// IsOwnMessage reports whether messageID is in the recent-outbound index.
func (p *Pipeline) IsOwnMessage(messageID string) bool {
	return p.outbound.Has(messageID)
}

// IsReplyToSelf reports whether any of the replied-to IDs was sent by the bot.
func (p *Pipeline) IsReplyToSelf(replyIDs []string) bool {
	return p.outbound.HasAny(replyIDs...)
}

// InboundFor returns the inbound message an outbound message answered.
func (p *Pipeline) InboundFor(outboundID string) (string, bool) {
	return p.correlation.Get(outboundID)
}

// OutboundLen returns the size of the recent-outbound index.
func (p *Pipeline) OutboundLen() int {
	return p.outbound.Len()
}
