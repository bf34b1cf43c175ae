package persona

import "fmt"

// ScopeMode decides whether persona assignments are shared per channel or kept per user.
type ScopeMode string

const (
	ScopeUser    ScopeMode = "user"
	ScopeChannel ScopeMode = "channel"
)

// ParseScopeMode validates a configured scope mode. Empty means ScopeUser.
func ParseScopeMode(value string) (ScopeMode, error) {
	switch ScopeMode(value) {
	case "", ScopeUser:
		return ScopeUser, nil
	case ScopeChannel:
		return ScopeChannel, nil
	default:
		return "", fmt.Errorf("unknown scope mode %q", value)
	}
}

// Scope identifies where a persona assignment applies.
type Scope struct {
	ChannelID string
	Key       string
}

// For builds the scope of a user acting in a channel.
func (m ScopeMode) For(channelID, userID string) Scope {
	if m == ScopeChannel || userID == "" {
		return Scope{ChannelID: channelID, Key: channelID}
	}
	return Scope{ChannelID: channelID, Key: channelID + ":" + userID}
}

func (s Scope) String() string {
	return s.Key
}

// Deletion keys are namespaced so unrelated cleanups in one scope never cancel each other.
func (s Scope) menuDeletionKey() string      { return s.Key }
func (s Scope) alternateDeletionKey() string { return s.Key + "|alt" }
func (s Scope) noticeDeletionKey() string    { return s.Key + "|notice" }
