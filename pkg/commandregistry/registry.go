package commandregistry

import (
	"cmp"
	"slices"
	"sync"
)

// Section groups commands in the help text.
type Section struct {
	Name  string
	Order int
}

var (
	SectionCreative = Section{Name: "Creative", Order: 10}
	SectionSearch   = Section{Name: "Search", Order: 20}
	SectionInfo     = Section{Name: "Info", Order: 30}
	SectionOwner    = Section{Name: "🔒 Owner commands", Order: 40}
)

// Definition describes a chat subcommand.
type Definition struct {
	Name        string
	Description string
	Args        string
	Aliases     []string
	Section     Section

	// OwnerOnly commands are refused for everyone but the bot owner.
	OwnerOnly bool
	// BackendCommand is forwarded to the persona as a chat message. Empty
	// means the command is answered locally.
	BackendCommand string
	// DefaultArgs are appended when the user gives none.
	DefaultArgs string
}

// Prompt renders the text sent to the backend for this command.
func (d Definition) Prompt(args string) string {
	if args == "" {
		args = d.DefaultArgs
	}
	if args == "" {
		return d.BackendCommand
	}
	return d.BackendCommand + " " + args
}

// Local reports whether the command is answered without the backend.
func (d Definition) Local() bool {
	return d.BackendCommand == ""
}

// Registry collects command definitions.
type Registry struct {
	mu      sync.RWMutex
	defs    map[string]*Definition
	aliases map[string]string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		defs:    make(map[string]*Definition),
		aliases: make(map[string]string),
	}
}

// Register adds a command definition to the registry and returns it.
func (r *Registry) Register(def Definition) *Definition {
	if def.Name == "" {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := def
	r.defs[def.Name] = &stored
	for _, alias := range def.Aliases {
		r.aliases[alias] = def.Name
	}
	return &stored
}

// Get retrieves a definition by name or alias.
func (r *Registry) Get(name string) *Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if canonical, ok := r.aliases[name]; ok {
		name = canonical
	}
	return r.defs[name]
}

// All returns all definitions sorted by section, then name.
func (r *Registry) All() []*Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]*Definition, 0, len(r.defs))
	for _, def := range r.defs {
		defs = append(defs, def)
	}

	slices.SortFunc(defs, func(a, b *Definition) int {
		if c := cmp.Compare(a.Section.Order, b.Section.Order); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})
	return defs
}

// Names returns all registered command names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.defs))
	for name := range r.defs {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
