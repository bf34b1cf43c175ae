package persona

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"

	"github.com/beeper/persona-bridge/pkg/delivery"
	"github.com/beeper/persona-bridge/pkg/revolt"
)

type fakePoster struct {
	mu       sync.Mutex
	requests []delivery.Request
}

func (f *fakePoster) Deliver(_ context.Context, req delivery.Request) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	return []string{fmt.Sprintf("bot%d", len(f.requests))}, nil
}

func (f *fakePoster) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.requests))
	for i, req := range f.requests {
		out[i] = req.Text
	}
	return out
}

type fakeTransport struct {
	mu        sync.Mutex
	reactions []string
	edits     []revolt.EditSelfParams
	editErr   error
}

func (f *fakeTransport) AddReaction(_ context.Context, _, messageID, emoji string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reactions = append(f.reactions, messageID+":"+emoji)
	return nil
}

func (f *fakeTransport) EditSelf(_ context.Context, params revolt.EditSelfParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, params)
	return f.editErr
}

type scheduledDeletion struct {
	Key       string
	ChannelID string
	IDs       []string
	Delay     time.Duration
}

type fakeDeletions struct {
	scheduled []scheduledDeletion
}

func (f *fakeDeletions) Schedule(key, channelID string, ids []string, delay time.Duration) {
	f.scheduled = append(f.scheduled, scheduledDeletion{key, channelID, ids, delay})
}

type fixedAvatars struct{}

func (fixedAvatars) Resolve(_ context.Context, p Persona) string {
	return "https://avatars/" + p.Key
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

type harness struct {
	machine   *Machine
	poster    *fakePoster
	transport *fakeTransport
	deletions *fakeDeletions
	clock     *fakeClock
}

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	reg, err := NewRegistry(
		map[int]string{1: "cat", 2: "dog", 3: "raccoon"},
		map[int]Display{
			1: {Glyph: "🐱", Name: "Cat", Colour: "#FF6B6B"},
			2: {Glyph: "🐕", Name: "Dog", Colour: "#45B7D1"},
			3: {Glyph: "🦝", Name: "Raccoon", Colour: "#96CEB4"},
		},
		zerolog.Nop(),
	)
	if err != nil {
		t.Fatalf("Failed to build registry: %v", err)
	}
	return reg
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	h := &harness{
		poster:    &fakePoster{},
		transport: &fakeTransport{},
		deletions: &fakeDeletions{},
		clock:     &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
	}
	cfg.Now = h.clock.Now
	cfg.ReactionDelay = time.Millisecond
	h.machine = NewMachine(testRegistry(t), cfg, Deps{
		Poster:    h.poster,
		Transport: h.transport,
		Deletions: h.deletions,
		Avatars:   fixedAvatars{},
	}, zerolog.Nop())
	h.machine.SetSelfID("bot")
	return h
}

func TestMachine_DefaultPersona(t *testing.T) {
	h := newHarness(t, Config{})
	scope := h.machine.ScopeFor("c1", "u1")
	if got := h.machine.Active(scope); got.Key != "cat" {
		t.Errorf("Expected default persona cat, got %s", got.Key)
	}
}

func TestMachine_PostSelectionMenu(t *testing.T) {
	h := newHarness(t, Config{})
	scope := h.machine.ScopeFor("c1", "u1")

	menuID, err := h.machine.PostSelectionMenu(context.Background(), scope, "trigger1")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	want := "🎭 **Choose a persona:**\n\n🐱 - Cat\n🐕 - Dog\n🦝 - Raccoon\n\n*React to pick a persona*"
	if diff := cmp.Diff([]string{want}, h.poster.texts()); diff != "" {
		t.Errorf("Unexpected menu (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{menuID + ":🐱", menuID + ":🐕", menuID + ":🦝"}, h.transport.reactions); diff != "" {
		t.Errorf("Unexpected reactions (-want +got):\n%s", diff)
	}
	if h.machine.State(scope) != StatePrimaryPending {
		t.Errorf("Expected primary-pending, got %s", h.machine.State(scope))
	}
	if diff := cmp.Diff(&Prompt{MessageID: menuID, TriggerID: "trigger1"}, h.machine.PrimaryPrompt(scope)); diff != "" {
		t.Errorf("Unexpected prompt (-want +got):\n%s", diff)
	}
}

func TestMachine_ResolveSelectionScenario(t *testing.T) {
	h := newHarness(t, Config{})
	ctx := context.Background()
	scope := h.machine.ScopeFor("c1", "u1")

	menuID, _ := h.machine.PostSelectionMenu(ctx, scope, "trigger1")
	p, err := h.machine.ResolveSelection(ctx, scope, "🐕", "u1")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if p.Key != "dog" || h.machine.Active(scope).Key != "dog" {
		t.Errorf("Expected dog to be active, got %s", h.machine.Active(scope).Key)
	}
	last := h.poster.requests[len(h.poster.requests)-1]
	if last.Text != "🎭 Your persona is now **Dog** 🐕" {
		t.Errorf("Unexpected confirmation %q", last.Text)
	}
	if last.Overlay == nil || last.Overlay.Name != "Dog" || last.Overlay.Colour != "#45B7D1" || last.Overlay.Avatar != "https://avatars/dog" {
		t.Errorf("Confirmation should carry the persona overlay, got %+v", last.Overlay)
	}
	if h.machine.PrimaryPrompt(scope) != nil || h.machine.State(scope) != StateIdle {
		t.Error("Prompt should be cleared after selection")
	}
	want := []scheduledDeletion{{Key: "c1:u1", ChannelID: "c1", IDs: []string{menuID, "trigger1"}, Delay: 60 * time.Second}}
	if diff := cmp.Diff(want, h.deletions.scheduled); diff != "" {
		t.Errorf("Unexpected deletions (-want +got):\n%s", diff)
	}
	if len(h.transport.edits) != 0 {
		t.Error("Masquerade mode should not edit the profile")
	}
}

func TestMachine_ResolveSelectionWithoutPrompt(t *testing.T) {
	h := newHarness(t, Config{})
	scope := h.machine.ScopeFor("c1", "u1")

	if _, err := h.machine.ResolveSelection(context.Background(), scope, "🐱", "u1"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(h.deletions.scheduled) != 0 {
		t.Error("Nothing should be scheduled for deletion without a prompt")
	}
}

func TestMachine_UnmatchedGlyphChangesNothing(t *testing.T) {
	h := newHarness(t, Config{})
	ctx := context.Background()
	scope := h.machine.ScopeFor("c1", "u1")
	_, _ = h.machine.ResolveSelection(ctx, scope, "🦝", "u1")
	posted := len(h.poster.requests)

	_, err := h.machine.ResolveSelection(ctx, scope, "🍕", "u1")
	if !errors.Is(err, ErrNoMatch) {
		t.Errorf("Expected ErrNoMatch, got %v", err)
	}
	if h.machine.Active(scope).Key != "raccoon" {
		t.Error("Assignment should be unchanged")
	}
	if len(h.poster.requests) != posted {
		t.Error("No confirmation should be posted")
	}
}

func TestMachine_SelfReactionIgnored(t *testing.T) {
	h := newHarness(t, Config{})
	scope := h.machine.ScopeFor("c1", "u1")
	if _, err := h.machine.ResolveSelection(context.Background(), scope, "🐕", "bot"); !errors.Is(err, ErrNoMatch) {
		t.Errorf("Expected self reaction to be ignored, got %v", err)
	}
	if h.machine.Active(scope).Key != "cat" || len(h.poster.requests) != 0 {
		t.Error("Self reaction should have no effect")
	}
}

func TestMachine_GlyphIgnoresVariationSelector(t *testing.T) {
	h := newHarness(t, Config{})
	scope := h.machine.ScopeFor("c1", "u1")
	if _, err := h.machine.ResolveSelection(context.Background(), scope, "\U0001F415\uFE0F", "u1"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if h.machine.Active(scope).Key != "dog" {
		t.Error("Expected dog to be selected")
	}
}

func TestMachine_ScopesAreIndependent(t *testing.T) {
	h := newHarness(t, Config{})
	ctx := context.Background()
	alice := h.machine.ScopeFor("c1", "alice")
	bob := h.machine.ScopeFor("c1", "bob")

	_, _ = h.machine.ResolveSelection(ctx, alice, "🐕", "alice")
	if h.machine.Active(bob).Key != "cat" {
		t.Error("User scopes should not share assignments")
	}

	channelMode := newHarness(t, Config{Scope: ScopeChannel})
	_, _ = channelMode.machine.ResolveSelection(ctx, channelMode.machine.ScopeFor("c1", "alice"), "🐕", "alice")
	if channelMode.machine.Active(channelMode.machine.ScopeFor("c1", "bob")).Key != "dog" {
		t.Error("Channel scope should be shared")
	}
}

func TestMachine_AlternateCooldown(t *testing.T) {
	h := newHarness(t, Config{})
	ctx := context.Background()
	scope := h.machine.ScopeFor("c1", "u1")

	if err := h.machine.RequestAlternatePersona(ctx, scope, "in1"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	menus := len(h.poster.requests)

	h.clock.now = h.clock.now.Add(10 * time.Second)
	err := h.machine.RequestAlternatePersona(ctx, scope, "in1")
	if !errors.Is(err, ErrCooldown) {
		t.Fatalf("Expected ErrCooldown, got %v", err)
	}
	texts := h.poster.texts()
	if len(texts) != menus+1 || texts[len(texts)-1] != CooldownNotice {
		t.Errorf("Only the cooldown notice should be posted, got %v", texts[menus:])
	}
	notice := h.deletions.scheduled[len(h.deletions.scheduled)-1]
	if notice.Key != "c1:u1|notice" || notice.Delay != 5*time.Second {
		t.Errorf("Unexpected notice deletion %+v", notice)
	}

	h.clock.now = h.clock.now.Add(25 * time.Second)
	if err = h.machine.RequestAlternatePersona(ctx, scope, "in1"); err != nil {
		t.Errorf("Expected request after cooldown to pass, got %v", err)
	}
}

func TestMachine_AlternateMenuExcludesActive(t *testing.T) {
	h := newHarness(t, Config{})
	ctx := context.Background()
	scope := h.machine.ScopeFor("c1", "u1")
	_, _ = h.machine.ResolveSelection(ctx, scope, "🐕", "u1")

	if err := h.machine.RequestAlternatePersona(ctx, scope, "in1"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	texts := h.poster.texts()
	menu := texts[len(texts)-1]
	if strings.Contains(menu, "Dog") || !strings.Contains(menu, "🐱 - Cat") || !strings.Contains(menu, "🦝 - Raccoon") {
		t.Errorf("Unexpected alternate menu %q", menu)
	}
	if h.machine.State(scope) != StateAlternatePending {
		t.Errorf("Expected alternate-pending, got %s", h.machine.State(scope))
	}
}

func TestMachine_ResolveAlternateSelection(t *testing.T) {
	h := newHarness(t, Config{})
	ctx := context.Background()
	scope := h.machine.ScopeFor("c1", "u1")
	original := revolt.Message{ID: "in1", Channel: "c1", Author: "u1", Content: "tell me a story"}
	h.machine.RememberInbound(original)

	if err := h.machine.RequestAlternatePersona(ctx, scope, "in1"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	menuID := fmt.Sprintf("bot%d", len(h.poster.requests))
	if !h.machine.IsAlternateMenu(menuID) {
		t.Fatal("Expected alternate menu to be tracked")
	}

	directive, err := h.machine.ResolveAlternateSelection(ctx, menuID, "🦝", "u1")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if directive.Persona.Key != "raccoon" || directive.Previous.Key != "cat" {
		t.Errorf("Unexpected directive personas %s/%s", directive.Persona.Key, directive.Previous.Key)
	}
	if diff := cmp.Diff(original, directive.Message); diff != "" {
		t.Errorf("Unexpected original message (-want +got):\n%s", diff)
	}
	texts := h.poster.texts()
	if texts[len(texts)-1] != "🔄 **Raccoon** is now answering..." {
		t.Errorf("Unexpected notice %q", texts[len(texts)-1])
	}
	last := h.deletions.scheduled[len(h.deletions.scheduled)-1]
	if last.Key != "c1:u1|alt" || last.Delay != 60*time.Second || last.IDs[0] != menuID {
		t.Errorf("Unexpected menu deletion %+v", last)
	}
	if h.machine.IsAlternateMenu(menuID) || h.machine.State(scope) != StateIdle {
		t.Error("Alternate prompt should be consumed")
	}

	h.machine.Restore(directive.Scope, directive.Previous)
	if h.machine.Active(scope).Key != "cat" {
		t.Error("Previous persona should be restored")
	}
}

func TestMachine_ResolveAlternateEvictedInbound(t *testing.T) {
	h := newHarness(t, Config{})
	ctx := context.Background()
	scope := h.machine.ScopeFor("c1", "u1")
	_ = h.machine.RequestAlternatePersona(ctx, scope, "gone")
	menuID := fmt.Sprintf("bot%d", len(h.poster.requests))
	posted := len(h.poster.requests)

	if _, err := h.machine.ResolveAlternateSelection(ctx, menuID, "🦝", "u1"); !errors.Is(err, ErrInboundEvicted) {
		t.Errorf("Expected ErrInboundEvicted, got %v", err)
	}
	if h.machine.Active(scope).Key != "cat" || len(h.poster.requests) != posted {
		t.Error("Evicted inbound should leave state untouched")
	}
}

func TestMachine_ResolveAlternateUnknownMenu(t *testing.T) {
	h := newHarness(t, Config{})
	if _, err := h.machine.ResolveAlternateSelection(context.Background(), "nope", "🦝", "u1"); !errors.Is(err, ErrNoPrompt) {
		t.Errorf("Expected ErrNoPrompt, got %v", err)
	}
}

func TestMachine_NewMenuSupersedesAlternate(t *testing.T) {
	h := newHarness(t, Config{})
	ctx := context.Background()
	scope := h.machine.ScopeFor("c1", "u1")
	_ = h.machine.RequestAlternatePersona(ctx, scope, "in1")
	altID := fmt.Sprintf("bot%d", len(h.poster.requests))

	_, _ = h.machine.PostSelectionMenu(ctx, scope, "")
	if h.machine.IsAlternateMenu(altID) {
		t.Error("Primary menu should supersede the alternate one")
	}
	if h.machine.State(scope) != StatePrimaryPending {
		t.Errorf("Expected primary-pending, got %s", h.machine.State(scope))
	}
}

func TestMachine_InboundCacheBounded(t *testing.T) {
	h := newHarness(t, Config{})
	for i := 0; i <= 50; i++ {
		h.machine.RememberInbound(revolt.Message{ID: fmt.Sprintf("in%d", i)})
	}
	if h.machine.InboundLen() != 50 {
		t.Errorf("Expected 50 cached messages, got %d", h.machine.InboundLen())
	}
	if _, ok := h.machine.Inbound("in0"); ok {
		t.Error("Oldest message should be evicted")
	}
	if _, ok := h.machine.Inbound("in50"); !ok {
		t.Error("Newest message should be present")
	}
}

func TestMachine_ProfileIdentityThrottled(t *testing.T) {
	h := newHarness(t, Config{Identity: IdentityProfile})
	ctx := context.Background()
	alice := h.machine.ScopeFor("c1", "alice")
	bob := h.machine.ScopeFor("c1", "bob")

	_, _ = h.machine.ResolveSelection(ctx, alice, "🐕", "alice")
	h.clock.now = h.clock.now.Add(2 * time.Second)
	_, _ = h.machine.ResolveSelection(ctx, bob, "🦝", "bob")

	want := []revolt.EditSelfParams{{DisplayName: "Dog", Avatar: "https://avatars/dog"}}
	if diff := cmp.Diff(want, h.transport.edits); diff != "" {
		t.Errorf("Second update should be throttled (-want +got):\n%s", diff)
	}
	if h.machine.Active(bob).Key != "raccoon" {
		t.Error("Throttled update must not affect the assignment")
	}

	h.clock.now = h.clock.now.Add(11 * time.Second)
	h.transport.editErr = errors.New("forbidden")
	_, _ = h.machine.ResolveSelection(ctx, alice, "🐱", "alice")
	if len(h.transport.edits) != 2 {
		t.Errorf("Expected update after throttle window, got %d", len(h.transport.edits))
	}
	if h.machine.Active(alice).Key != "cat" {
		t.Error("Failed update must not roll back the assignment")
	}
}
