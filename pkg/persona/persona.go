package persona

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"go.mau.fi/util/variationselector"
)

var (
	ErrNoPersonas     = errors.New("no personas configured")
	ErrDuplicateGlyph = errors.New("duplicate persona glyph")
)

// Persona is a synthetic identity the bot can answer as.
type Persona struct {
	ID     int
	Key    string
	Glyph  string
	Name   string
	Colour string
	// Avatar is the preferred avatar URL, FallbackAvatar is used when it is unreachable.
	Avatar         string
	FallbackAvatar string
}

// Selectable reports whether the persona can be offered in a menu.
func (p Persona) Selectable() bool {
	return p.Glyph != "" && p.Name != ""
}

// DisplayName returns the name, or the backend key for personas without a display definition.
func (p Persona) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return p.Key
}

// Display is the presentation half of a persona definition.
type Display struct {
	Glyph          string
	Name           string
	Colour         string
	Avatar         string
	FallbackAvatar string
}

// Registry is the immutable set of configured personas, ordered by ID.
type Registry struct {
	personas []Persona
	byID     map[int]int
}

// NewRegistry joins backend keys with display definitions. Every ID with a key
// is a valid persona; displays without a key are ignored with a warning.
func NewRegistry(keys map[int]string, displays map[int]Display, log zerolog.Logger) (*Registry, error) {
	ids := make([]int, 0, len(keys))
	for id, key := range keys {
		if strings.TrimSpace(key) != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, ErrNoPersonas
	}
	sort.Ints(ids)

	for id := range displays {
		if _, ok := keys[id]; !ok {
			log.Warn().Int("persona_id", id).Msg("Persona display has no backend key, ignoring")
		}
	}

	reg := &Registry{byID: make(map[int]int, len(ids))}
	seenGlyphs := make(map[string]int)
	for _, id := range ids {
		p := Persona{ID: id, Key: strings.TrimSpace(keys[id])}
		if display, ok := displays[id]; ok {
			p.Glyph = display.Glyph
			p.Name = display.Name
			p.Colour = display.Colour
			p.Avatar = display.Avatar
			p.FallbackAvatar = display.FallbackAvatar
		} else {
			log.Warn().Int("persona_id", id).Str("key", p.Key).Msg("Persona has no display definition, it won't appear in menus")
		}
		if p.Glyph != "" {
			norm := variationselector.Remove(p.Glyph)
			if other, dup := seenGlyphs[norm]; dup {
				return nil, fmt.Errorf("%w %s on personas %d and %d", ErrDuplicateGlyph, p.Glyph, other, id)
			}
			seenGlyphs[norm] = id
		}
		reg.byID[id] = len(reg.personas)
		reg.personas = append(reg.personas, p)
	}
	return reg, nil
}

// All returns every persona in ID order.
func (r *Registry) All() []Persona {
	return append([]Persona(nil), r.personas...)
}

// Default returns the persona with the lowest ID.
func (r *Registry) Default() Persona {
	return r.personas[0]
}

func (r *Registry) Get(id int) (Persona, bool) {
	idx, ok := r.byID[id]
	if !ok {
		return Persona{}, false
	}
	return r.personas[idx], true
}

// ByGlyph finds the selectable persona whose glyph matches, ignoring variation selectors.
func (r *Registry) ByGlyph(glyph string) (Persona, bool) {
	norm := variationselector.Remove(strings.TrimSpace(glyph))
	if norm == "" {
		return Persona{}, false
	}
	for _, p := range r.personas {
		if p.Selectable() && variationselector.Remove(p.Glyph) == norm {
			return p, true
		}
	}
	return Persona{}, false
}

// Selectable returns the personas that can be offered in a menu.
func (r *Registry) Selectable() []Persona {
	return r.Except(0)
}

// Except returns the selectable personas other than excludeID.
func (r *Registry) Except(excludeID int) []Persona {
	out := make([]Persona, 0, len(r.personas))
	for _, p := range r.personas {
		if p.Selectable() && p.ID != excludeID {
			out = append(out, p)
		}
	}
	return out
}

// Len returns the number of configured personas.
func (r *Registry) Len() int {
	return len(r.personas)
}
