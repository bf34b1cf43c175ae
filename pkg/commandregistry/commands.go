package commandregistry

import (
	"fmt"
	"regexp"
	"strings"
)

// Prefix starts every bot command.
const Prefix = "!shaper"

const HelpCommand = "help"

var commandPattern = regexp.MustCompile(`^!shaper\s+(\w+)(?:\s+(.+))?$`)

// Invocation is a parsed subcommand.
type Invocation struct {
	Name string
	Args string
}

// IsMenuRequest reports whether text is the bare prefix, which opens the persona menu.
func IsMenuRequest(text string) bool {
	return strings.TrimSpace(text) == Prefix
}

// IsCommand reports whether text is a prefixed subcommand.
func IsCommand(text string) bool {
	return strings.HasPrefix(strings.TrimSpace(text), Prefix+" ")
}

// Parse extracts the subcommand and its arguments.
func Parse(text string) (Invocation, bool) {
	match := commandPattern.FindStringSubmatch(strings.TrimSpace(text))
	if match == nil {
		return Invocation{}, false
	}
	return Invocation{Name: match[1], Args: strings.TrimSpace(match[2])}, true
}

// Default returns the registry with the persona backend commands.
func Default() *Registry {
	r := NewRegistry()
	r.Register(Definition{
		Name: "imagine", Args: "[description]", Description: "Generate an image",
		Section: SectionCreative, BackendCommand: "!imagine", DefaultArgs: "a beautiful landscape",
	})
	r.Register(Definition{
		Name: "web", Args: "[query]", Description: "Search the web",
		Section: SectionSearch, BackendCommand: "!web", DefaultArgs: "latest news",
	})
	r.Register(Definition{
		Name: "info", Description: "Show information about the persona",
		Section: SectionInfo, BackendCommand: "!info",
	})
	r.Register(Definition{
		Name: HelpCommand, Description: "Show this help",
		Section: SectionInfo,
	})
	r.Register(Definition{
		Name: "reset", Description: "Reset long-term memory",
		Section: SectionOwner, OwnerOnly: true, BackendCommand: "!reset",
	})
	r.Register(Definition{
		Name: "wack", Description: "Reset short-term memory",
		Section: SectionOwner, OwnerOnly: true, BackendCommand: "!wack",
	})
	r.Register(Definition{
		Name: "sleep", Description: "Force a memory save",
		Section: SectionOwner, OwnerOnly: true, BackendCommand: "!sleep",
	})
	r.Register(Definition{
		Name: "dashboard", Description: "Link to the control dashboard",
		Section: SectionOwner, OwnerOnly: true, BackendCommand: "!dashboard",
	})
	return r
}

// Help renders the command list. Owner-only commands are listed only for the owner.
func (r *Registry) Help(isOwner bool) string {
	var sb strings.Builder
	sb.WriteString("🤖 **Available " + Prefix + " commands:**")
	current := Section{Order: -1}
	for _, def := range r.All() {
		if def.OwnerOnly && !isOwner {
			continue
		}
		if def.Section != current {
			current = def.Section
			fmt.Fprintf(&sb, "\n\n**%s:**", current.Name)
		}
		usage := Prefix + " " + def.Name
		if def.Args != "" {
			usage += " " + def.Args
		}
		fmt.Fprintf(&sb, "\n• `%s` - %s", usage, def.Description)
	}
	if !isOwner {
		sb.WriteString("\n\n*Some commands are only available to the bot owner.*")
	}
	sb.WriteString("\n\n*Commands run as the currently active persona.*")
	return sb.String()
}
