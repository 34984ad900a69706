package admin

import (
	"sync"

	"golang.org/x/time/rate"
)

// maxTrackedKeys bounds the rate limiter's memory under a rotating or
// spoofed RemoteAddr, the same bound the teacher's WebhookRateLimiter
// enforces in internal/channels/ratelimit.go, reached here through
// golang.org/x/time/rate's token bucket instead of a hand-rolled sliding
// window since the teacher's own hand-rolled limiter is channel-webhook
// specific and not reused here.
const maxTrackedKeys = 4096

const (
	adminRateLimitPerSecond = 5
	adminRateLimitBurst     = 20
)

// keyedLimiter bounds admin request rate per remote address. Safe for
// concurrent use.
type keyedLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func newKeyedLimiter() *keyedLimiter {
	return &keyedLimiter{limiters: make(map[string]*rate.Limiter)}
}

// Allow reports whether key may proceed, creating its bucket on first use
// and evicting arbitrary entries once the tracked-key cap is reached.
func (k *keyedLimiter) Allow(key string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()

	l, ok := k.limiters[key]
	if !ok {
		if len(k.limiters) >= maxTrackedKeys {
			for evict := range k.limiters {
				delete(k.limiters, evict)
				break
			}
		}
		l = rate.NewLimiter(rate.Limit(adminRateLimitPerSecond), adminRateLimitBurst)
		k.limiters[key] = l
	}
	return l.Allow()
}
