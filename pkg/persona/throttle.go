package persona

import (
	"time"

	"golang.org/x/time/rate"

	"github.com/beeper/persona-bridge/pkg/shared/boundedcache"
)

const cooldownCapacity = 1024

// cooldowns admits one action per key per window. Rejected attempts don't
// consume the window.
type cooldowns struct {
	window   time.Duration
	limiters *boundedcache.Map[string, *rate.Limiter]
	now      func() time.Time
}

func newCooldowns(window time.Duration, now func() time.Time) *cooldowns {
	return &cooldowns{
		window:   window,
		limiters: boundedcache.NewMap[string, *rate.Limiter](cooldownCapacity),
		now:      now,
	}
}

func (c *cooldowns) allow(key string) bool {
	lim, ok := c.limiters.Get(key)
	if !ok {
		lim = rate.NewLimiter(rate.Every(c.window), 1)
		c.limiters.Put(key, lim)
	}
	return lim.AllowN(c.now(), 1)
}

// throttle is a single global cooldown.
type throttle struct {
	lim *rate.Limiter
	now func() time.Time
}

func newThrottle(window time.Duration, now func() time.Time) *throttle {
	return &throttle{lim: rate.NewLimiter(rate.Every(window), 1), now: now}
}

func (t *throttle) allow() bool {
	return t.lim.AllowN(t.now(), 1)
}
