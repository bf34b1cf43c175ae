package commandregistry

import "strings"

// DeniedText is sent when a non-owner invokes an owner-only command.
const DeniedText = "❌ **Access denied!** This command is only available to the bot owner."

func normalizeOwnerEntry(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(strings.ToLower(trimmed), "revolt:") {
		trimmed = strings.TrimSpace(trimmed[len("revolt:"):])
	}
	return trimmed
}

// Owners is the set of user IDs allowed to run owner-only commands.
type Owners struct {
	allowAny bool
	allowed  map[string]struct{}
}

// NewOwners builds an owner set. "*" allows everyone; an empty set allows no one.
func NewOwners(entries ...string) Owners {
	owners := Owners{allowed: make(map[string]struct{})}
	for _, entry := range entries {
		normalized := normalizeOwnerEntry(entry)
		if normalized == "" {
			continue
		}
		if normalized == "*" {
			owners.allowAny = true
			continue
		}
		owners.allowed[normalized] = struct{}{}
	}
	return owners
}

func (o Owners) IsOwner(userID string) bool {
	if o.allowAny {
		return true
	}
	normalized := normalizeOwnerEntry(userID)
	if normalized == "" {
		return false
	}
	_, ok := o.allowed[normalized]
	return ok
}

// Allowed reports whether userID may run def.
func (o Owners) Allowed(def *Definition, userID string) bool {
	return def == nil || !def.OwnerOnly || o.IsOwner(userID)
}
