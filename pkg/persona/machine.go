package persona

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/beeper/persona-bridge/pkg/delivery"
	"github.com/beeper/persona-bridge/pkg/metrics"
	"github.com/beeper/persona-bridge/pkg/revolt"
	"github.com/beeper/persona-bridge/pkg/shared/boundedcache"
)

var (
	ErrNoMatch        = errors.New("no persona matches glyph")
	ErrNoPrompt       = errors.New("no alternate prompt for message")
	ErrCooldown       = errors.New("alternate persona requested too soon")
	ErrNoCandidates   = errors.New("no personas to offer")
	ErrInboundEvicted = errors.New("original message is no longer cached")
)

// IdentityMode decides how a persona is shown: per message, or by editing the bot profile too.
type IdentityMode string

const (
	IdentityMasquerade IdentityMode = "masquerade"
	IdentityProfile    IdentityMode = "profile"
)

// ParseIdentityMode validates a configured identity mode. Empty means IdentityMasquerade.
func ParseIdentityMode(value string) (IdentityMode, error) {
	switch IdentityMode(value) {
	case "", IdentityMasquerade:
		return IdentityMasquerade, nil
	case IdentityProfile:
		return IdentityProfile, nil
	default:
		return "", fmt.Errorf("unknown identity mode %q", value)
	}
}

const (
	MenuHeader = "🎭 **Choose a persona:**\n\n"
	MenuFooter = "\n*React to pick a persona*"

	CooldownNotice = "⏳ Please wait a moment before asking another persona."
)

// Config holds the machine's timings and modes. Zero values take the defaults.
type Config struct {
	Scope    ScopeMode
	Identity IdentityMode

	MenuCleanupDelay   time.Duration
	NoticeCleanupDelay time.Duration
	AlternateCooldown  time.Duration
	IdentityThrottle   time.Duration
	ReactionDelay      time.Duration
	InboundCapacity    int

	Now func() time.Time
}

func (c Config) withDefaults() Config {
	if c.Scope == "" {
		c.Scope = ScopeUser
	}
	if c.Identity == "" {
		c.Identity = IdentityMasquerade
	}
	if c.MenuCleanupDelay <= 0 {
		c.MenuCleanupDelay = 60 * time.Second
	}
	if c.NoticeCleanupDelay <= 0 {
		c.NoticeCleanupDelay = 5 * time.Second
	}
	if c.AlternateCooldown <= 0 {
		c.AlternateCooldown = 30 * time.Second
	}
	if c.IdentityThrottle <= 0 {
		c.IdentityThrottle = 10 * time.Second
	}
	if c.ReactionDelay <= 0 {
		c.ReactionDelay = 200 * time.Millisecond
	}
	if c.InboundCapacity <= 0 {
		c.InboundCapacity = 50
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Poster sends bot messages.
type Poster interface {
	Deliver(ctx context.Context, req delivery.Request) ([]string, error)
}

// Transport is the REST surface used for reactions and profile edits.
type Transport interface {
	AddReaction(ctx context.Context, channelID, messageID, emoji string) error
	EditSelf(ctx context.Context, params revolt.EditSelfParams) error
}

// DeletionScheduler schedules delayed cleanup of control messages.
type DeletionScheduler interface {
	Schedule(key, channelID string, messageIDs []string, delay time.Duration)
}

// AvatarSource resolves the avatar URL shown for a persona.
type AvatarSource interface {
	Resolve(ctx context.Context, p Persona) string
}

// Deps are the machine's collaborators.
type Deps struct {
	Poster    Poster
	Transport Transport
	Deletions DeletionScheduler
	Avatars   AvatarSource
	Metrics   *metrics.Metrics
}

// Reprocess asks the caller to answer Message again as Persona, then restore Previous for Scope.
type Reprocess struct {
	Message  revolt.Message
	Persona  Persona
	Previous Persona
	Scope    Scope
}

// Machine owns persona assignments and the reaction-driven selection protocol.
type Machine struct {
	reg  *Registry
	cfg  Config
	deps Deps
	log  zerolog.Logger

	mu         sync.Mutex
	selfID     string
	active     map[string]int
	sessions   map[string]*session
	alternates map[string]*AlternatePrompt
	cooldowns  *cooldowns

	inbound  *boundedcache.Map[string, revolt.Message]
	identity *throttle
	pacing   *rate.Limiter
	metrics  *metrics.Metrics
}

// NewMachine creates a persona state machine.
func NewMachine(reg *Registry, cfg Config, deps Deps, log zerolog.Logger) *Machine {
	cfg = cfg.withDefaults()
	return &Machine{
		reg:        reg,
		cfg:        cfg,
		deps:       deps,
		log:        log.With().Str("component", "persona").Logger(),
		active:     make(map[string]int),
		sessions:   make(map[string]*session),
		alternates: make(map[string]*AlternatePrompt),
		cooldowns:  newCooldowns(cfg.AlternateCooldown, cfg.Now),
		inbound:    boundedcache.NewMap[string, revolt.Message](cfg.InboundCapacity),
		identity:   newThrottle(cfg.IdentityThrottle, cfg.Now),
		pacing:     rate.NewLimiter(rate.Every(cfg.ReactionDelay), 1),
		metrics:    metrics.OrNop(deps.Metrics),
	}
}

func (m *Machine) Registry() *Registry {
	return m.reg
}

// ScopeFor returns the scope of userID acting in channelID.
func (m *Machine) ScopeFor(channelID, userID string) Scope {
	return m.cfg.Scope.For(channelID, userID)
}

// SetSelfID records the bot's own user ID so its reactions are ignored.
func (m *Machine) SetSelfID(id string) {
	m.mu.Lock()
	m.selfID = id
	m.mu.Unlock()
}

func (m *Machine) isSelf(actorID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.selfID != "" && actorID == m.selfID
}

// Active returns the persona assigned to scope, or the default persona.
func (m *Machine) Active(scope Scope) Persona {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeLocked(scope)
}

func (m *Machine) activeLocked(scope Scope) Persona {
	if id, ok := m.active[scope.Key]; ok {
		if p, ok := m.reg.Get(id); ok {
			return p
		}
	}
	return m.reg.Default()
}

// Restore reassigns previous to scope after a one-shot alternate reply.
func (m *Machine) Restore(scope Scope, previous Persona) {
	m.mu.Lock()
	m.active[scope.Key] = previous.ID
	m.mu.Unlock()
	m.log.Debug().Str("scope", scope.Key).Str("persona", previous.DisplayName()).Msg("Restored previous persona")
}

// State returns the selection protocol state of scope.
func (m *Machine) State(scope Scope) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sess, ok := m.sessions[scope.Key]; ok && sess.state != "" {
		return sess.state
	}
	return StateIdle
}

// PrimaryPrompt returns the outstanding selection menu of scope, if any.
func (m *Machine) PrimaryPrompt(scope Scope) *Prompt {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sess, ok := m.sessions[scope.Key]; ok && sess.primary != nil {
		prompt := *sess.primary
		return &prompt
	}
	return nil
}

func (m *Machine) sessionLocked(scope Scope) *session {
	sess, ok := m.sessions[scope.Key]
	if !ok {
		sess = &session{state: StateIdle}
		m.sessions[scope.Key] = sess
	}
	return sess
}

// RememberInbound caches a message snapshot so it can be answered again by another persona.
func (m *Machine) RememberInbound(msg revolt.Message) {
	if msg.ID != "" {
		m.inbound.Put(msg.ID, msg)
	}
}

// Inbound returns a cached inbound message.
func (m *Machine) Inbound(messageID string) (revolt.Message, bool) {
	return m.inbound.Get(messageID)
}

// InboundLen returns the size of the inbound cache.
func (m *Machine) InboundLen() int {
	return m.inbound.Len()
}

// Overlay renders p as a per-message display override.
func (m *Machine) Overlay(ctx context.Context, p Persona) *revolt.Masquerade {
	overlay := &revolt.Masquerade{Name: p.DisplayName(), Colour: p.Colour}
	if m.deps.Avatars != nil {
		overlay.Avatar = m.deps.Avatars.Resolve(ctx, p)
	}
	return overlay
}

// MenuText renders a selection menu.
func MenuText(personas []Persona) string {
	var sb strings.Builder
	sb.WriteString(MenuHeader)
	for _, p := range personas {
		fmt.Fprintf(&sb, "%s - %s\n", p.Glyph, p.Name)
	}
	sb.WriteString(MenuFooter)
	return sb.String()
}

// ConfirmationText is posted after a successful selection.
func ConfirmationText(p Persona) string {
	return fmt.Sprintf("🎭 Your persona is now **%s** %s", p.DisplayName(), p.Glyph)
}

// AnsweringText is posted when an alternate persona takes over a message.
func AnsweringText(p Persona) string {
	return fmt.Sprintf("🔄 **%s** is now answering...", p.DisplayName())
}

// PostSelectionMenu posts the persona menu for scope and returns its message ID.
// The menu supersedes any prompt the scope already had.
func (m *Machine) PostSelectionMenu(ctx context.Context, scope Scope, triggerID string) (string, error) {
	personas := m.reg.Selectable()
	if len(personas) == 0 {
		return "", ErrNoCandidates
	}
	menuID, err := m.postMenu(ctx, scope, personas)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	sess := m.sessionLocked(scope)
	if err = sess.apply(TriggerMenuPosted); err != nil {
		m.mu.Unlock()
		return menuID, err
	}
	m.dropAlternateLocked(sess)
	sess.primary = &Prompt{MessageID: menuID, TriggerID: triggerID}
	m.mu.Unlock()

	m.log.Debug().Str("scope", scope.Key).Str("menu_id", menuID).Msg("Posted persona menu")
	m.attachReactions(ctx, scope.ChannelID, menuID, personas)
	return menuID, nil
}

// ResolveSelection assigns the persona matching glyph to scope. It returns
// ErrNoMatch without side effects when the glyph is unknown or the actor is the bot.
func (m *Machine) ResolveSelection(ctx context.Context, scope Scope, glyph, actorID string) (Persona, error) {
	if m.isSelf(actorID) {
		return Persona{}, ErrNoMatch
	}
	p, ok := m.reg.ByGlyph(glyph)
	if !ok {
		return Persona{}, ErrNoMatch
	}

	m.mu.Lock()
	m.active[scope.Key] = p.ID
	sess := m.sessionLocked(scope)
	if err := sess.apply(TriggerGlyphResolved); err != nil {
		m.log.Warn().Err(err).Str("scope", scope.Key).Msg("Unexpected selection transition")
	}
	prompt := sess.primary
	sess.primary = nil
	m.mu.Unlock()

	m.metrics.PersonaSwitches.WithLabelValues("primary").Inc()
	m.log.Info().Str("scope", scope.Key).Str("persona", p.DisplayName()).Str("actor_id", actorID).Msg("Persona selected")

	if _, err := m.deps.Poster.Deliver(ctx, delivery.Request{
		ChannelID: scope.ChannelID,
		Text:      ConfirmationText(p),
		Overlay:   m.Overlay(ctx, p),
	}); err != nil {
		m.log.Warn().Err(err).Str("scope", scope.Key).Msg("Failed to post selection confirmation")
	}
	if m.cfg.Identity == IdentityProfile {
		m.mutateIdentity(ctx, p)
	}
	if prompt != nil {
		ids := []string{prompt.MessageID}
		if prompt.TriggerID != "" {
			ids = append(ids, prompt.TriggerID)
		}
		m.deps.Deletions.Schedule(scope.menuDeletionKey(), scope.ChannelID, ids, m.cfg.MenuCleanupDelay)
	}
	return p, nil
}

// RequestAlternatePersona offers the personas other than the active one for
// answering inboundID again. Within the cooldown only a short-lived notice is posted.
func (m *Machine) RequestAlternatePersona(ctx context.Context, scope Scope, inboundID string) error {
	m.mu.Lock()
	allowed := m.cooldowns.allow(scope.Key)
	active := m.activeLocked(scope)
	m.mu.Unlock()

	if !allowed {
		m.metrics.CooldownRejections.Inc()
		ids, err := m.deps.Poster.Deliver(ctx, delivery.Request{ChannelID: scope.ChannelID, Text: CooldownNotice})
		if err != nil {
			m.log.Warn().Err(err).Str("scope", scope.Key).Msg("Failed to post cooldown notice")
		} else {
			m.deps.Deletions.Schedule(scope.noticeDeletionKey(), scope.ChannelID, ids, m.cfg.NoticeCleanupDelay)
		}
		return ErrCooldown
	}

	candidates := m.reg.Except(active.ID)
	if len(candidates) == 0 {
		return ErrNoCandidates
	}
	menuID, err := m.postMenu(ctx, scope, candidates)
	if err != nil {
		return err
	}

	m.mu.Lock()
	sess := m.sessionLocked(scope)
	if err = sess.apply(TriggerAlternatePosted); err != nil {
		m.mu.Unlock()
		return err
	}
	sess.primary = nil
	m.dropAlternateLocked(sess)
	prompt := &AlternatePrompt{MessageID: menuID, Scope: scope, InboundID: inboundID}
	sess.alternate = prompt
	m.alternates[menuID] = prompt
	m.mu.Unlock()

	m.log.Debug().Str("scope", scope.Key).Str("menu_id", menuID).Str("inbound_id", inboundID).Msg("Posted alternate persona menu")
	m.attachReactions(ctx, scope.ChannelID, menuID, candidates)
	return nil
}

// IsAlternateMenu reports whether messageID is an outstanding alternate menu.
func (m *Machine) IsAlternateMenu(messageID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.alternates[messageID]
	return ok
}

// ResolveAlternateSelection consumes the alternate menu menuID and returns the
// message to answer again. ErrNoPrompt means menuID is not an alternate menu.
func (m *Machine) ResolveAlternateSelection(ctx context.Context, menuID, glyph, actorID string) (*Reprocess, error) {
	if m.isSelf(actorID) {
		return nil, ErrNoMatch
	}

	m.mu.Lock()
	prompt, ok := m.alternates[menuID]
	if !ok {
		m.mu.Unlock()
		return nil, ErrNoPrompt
	}
	p, ok := m.reg.ByGlyph(glyph)
	if !ok {
		m.mu.Unlock()
		return nil, ErrNoMatch
	}
	original, ok := m.inbound.Get(prompt.InboundID)
	if !ok {
		m.mu.Unlock()
		return nil, ErrInboundEvicted
	}
	scope := prompt.Scope
	previous := m.activeLocked(scope)
	m.active[scope.Key] = p.ID
	sess := m.sessionLocked(scope)
	if err := sess.apply(TriggerAlternateResolved); err != nil {
		m.log.Warn().Err(err).Str("scope", scope.Key).Msg("Unexpected selection transition")
	}
	sess.alternate = nil
	delete(m.alternates, menuID)
	m.mu.Unlock()

	m.metrics.PersonaSwitches.WithLabelValues("alternate").Inc()
	m.log.Info().
		Str("scope", scope.Key).
		Str("persona", p.DisplayName()).
		Str("previous", previous.DisplayName()).
		Str("inbound_id", prompt.InboundID).
		Msg("Alternate persona selected")

	if _, err := m.deps.Poster.Deliver(ctx, delivery.Request{
		ChannelID: scope.ChannelID,
		Text:      AnsweringText(p),
		Overlay:   m.Overlay(ctx, p),
	}); err != nil {
		m.log.Warn().Err(err).Str("scope", scope.Key).Msg("Failed to post answering notice")
	}
	if m.cfg.Identity == IdentityProfile {
		m.mutateIdentity(ctx, p)
	}
	m.deps.Deletions.Schedule(scope.alternateDeletionKey(), scope.ChannelID, []string{menuID}, m.cfg.MenuCleanupDelay)

	return &Reprocess{Message: original, Persona: p, Previous: previous, Scope: scope}, nil
}

func (m *Machine) dropAlternateLocked(sess *session) {
	if sess.alternate != nil {
		delete(m.alternates, sess.alternate.MessageID)
		sess.alternate = nil
	}
}

func (m *Machine) postMenu(ctx context.Context, scope Scope, personas []Persona) (string, error) {
	ids, err := m.deps.Poster.Deliver(ctx, delivery.Request{ChannelID: scope.ChannelID, Text: MenuText(personas)})
	if err != nil {
		return "", fmt.Errorf("failed to post persona menu: %w", err)
	}
	if len(ids) == 0 {
		return "", errors.New("persona menu was not sent")
	}
	return ids[0], nil
}

// attachReactions adds one reaction per persona, paced to stay under rate limits.
func (m *Machine) attachReactions(ctx context.Context, channelID, messageID string, personas []Persona) {
	for _, p := range personas {
		if err := m.pacing.Wait(ctx); err != nil {
			return
		}
		if err := m.deps.Transport.AddReaction(ctx, channelID, messageID, p.Glyph); err != nil {
			m.log.Warn().Err(err).Str("message_id", messageID).Str("glyph", p.Glyph).Msg("Failed to add menu reaction")
		}
	}
}

func (m *Machine) mutateIdentity(ctx context.Context, p Persona) {
	if !m.identity.allow() {
		m.metrics.IdentityMutations.WithLabelValues("throttled").Inc()
		m.log.Debug().Str("persona", p.DisplayName()).Msg("Skipping profile update, throttled")
		return
	}
	params := revolt.EditSelfParams{DisplayName: p.DisplayName()}
	if m.deps.Avatars != nil {
		params.Avatar = m.deps.Avatars.Resolve(ctx, p)
	}
	if err := m.deps.Transport.EditSelf(ctx, params); err != nil {
		m.metrics.IdentityMutations.WithLabelValues("failed").Inc()
		m.log.Warn().Err(err).Str("persona", p.DisplayName()).Msg("Failed to update bot profile")
		return
	}
	m.metrics.IdentityMutations.WithLabelValues("updated").Inc()
}
