/*
Package limiter provides keyed token-bucket rate limiting for HTTP endpoints.

Each key (a client IP, a principal uid) gets its own rate.Limiter. Buckets that have
been idle long enough to refill completely are dropped by a background sweep, so the
map only holds clients that are currently spending tokens.
*/
package limiter

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"

	"roomchat/internal/pkg/errs"
	"roomchat/internal/pkg/logx"
	"roomchat/internal/pkg/resp"
)

// sweepInterval is how often idle buckets are dropped.
const sweepInterval = 3 * time.Minute

// KeyFunc picks the bucket a request spends from.
type KeyFunc func(r *http.Request) string

// ByIP keys requests by the remote address without its port.
func ByIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		ip = r.RemoteAddr
	}
	if ip == "" {
		return "unknown_ip"
	}
	return ip
}

// Limiter is a set of token buckets, one per key.
type Limiter struct {
	name  string
	key   KeyFunc
	clock clockwork.Clock
	r     rate.Limit
	b     int

	mu      sync.Mutex
	buckets map[string]*rate.Limiter
}

// New returns a Limiter allowing r events per second with bursts of b per key.
// Idle buckets are swept until ctx is cancelled.
func New(ctx context.Context, name string, clock clockwork.Clock, r rate.Limit, b int, key KeyFunc) *Limiter {
	if key == nil {
		key = ByIP
	}
	l := &Limiter{
		name:    name,
		key:     key,
		clock:   clock,
		r:       r,
		b:       b,
		buckets: make(map[string]*rate.Limiter),
	}

	go l.sweepLoop(ctx)

	return l
}

func (l *Limiter) bucket(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.buckets[key]
	if !ok {
		lim = rate.NewLimiter(l.r, l.b)
		l.buckets[key] = lim
	}
	return lim
}

// Allow spends one token from the bucket of r.
func (l *Limiter) Allow(r *http.Request) bool {
	return l.AllowKey(l.key(r))
}

// AllowKey spends one token from the bucket of key.
func (l *Limiter) AllowKey(key string) bool {
	return l.bucket(key).AllowN(l.clock.Now(), 1)
}

// Len reports how many buckets are held.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Sweep drops every bucket that has refilled to its burst and reports how many it removed.
func (l *Limiter) Sweep() int {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, lim := range l.buckets {
		if lim.TokensAt(now) >= float64(lim.Burst()) {
			delete(l.buckets, key)
			removed++
		}
	}
	return removed
}

func (l *Limiter) sweepLoop(ctx context.Context) {
	ticker := l.clock.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
		}

		removed := l.Sweep()
		logx.Debug("Rate limiter sweep finished.", "limiter", l.name, "removed", removed, "remaining", l.Len())
	}
}

// Middleware rejects requests whose bucket is empty with ErrRateLimitExceeded.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(r) {
			logx.FromRequest(r).Warn().Str("limiter", l.name).Msg("Rate limit exceeded.")
			resp.RespondError(w, r, errs.NewError(errs.ErrRateLimitExceeded))
			return
		}

		next.ServeHTTP(w, r)
	})
}
