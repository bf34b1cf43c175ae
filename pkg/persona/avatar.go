package persona

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/beeper/persona-bridge/pkg/shared/httputil"
)

const avatarCheckTimeout = 3 * time.Second

// AvatarResolver picks a reachable avatar URL for each persona and caches the choice.
type AvatarResolver struct {
	client *http.Client
	log    zerolog.Logger

	mu    sync.Mutex
	cache map[int]string
}

func NewAvatarResolver(client *http.Client, log zerolog.Logger) *AvatarResolver {
	if client == nil {
		client = &http.Client{Timeout: avatarCheckTimeout}
	}
	return &AvatarResolver{
		client: client,
		log:    log.With().Str("component", "avatars").Logger(),
		cache:  make(map[int]string),
	}
}

// Resolve returns the persona's avatar if a HEAD request to it succeeds, and
// the fallback otherwise.
func (a *AvatarResolver) Resolve(ctx context.Context, p Persona) string {
	a.mu.Lock()
	cached, ok := a.cache[p.ID]
	a.mu.Unlock()
	if ok {
		return cached
	}

	resolved := p.FallbackAvatar
	if p.Avatar != "" {
		checkCtx, cancel := context.WithTimeout(ctx, avatarCheckTimeout)
		status, err := httputil.Head(checkCtx, a.client, p.Avatar)
		cancel()
		switch {
		case err != nil:
			a.log.Debug().Err(err).Int("persona_id", p.ID).Msg("Avatar check failed, using fallback")
		case status >= 200 && status < 400:
			resolved = p.Avatar
		default:
			a.log.Debug().Int("status", status).Int("persona_id", p.ID).Msg("Avatar unavailable, using fallback")
		}
		if resolved == "" {
			resolved = p.Avatar
		}
	}

	a.mu.Lock()
	a.cache[p.ID] = resolved
	a.mu.Unlock()
	return resolved
}

// Reset drops cached results so the next Resolve checks again.
func (a *AvatarResolver) Reset() {
	a.mu.Lock()
	n := len(a.cache)
	clear(a.cache)
	a.mu.Unlock()
	a.log.Debug().Int("entries", n).Msg("Cleared avatar cache")
}
