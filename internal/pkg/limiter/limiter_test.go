package limiter_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"roomchat/internal/pkg/errs"
	"roomchat/internal/pkg/limiter"
)

func newRequest(remote string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/api/rooms", nil)
	r.RemoteAddr = remote
	return r
}

func TestLimiter_BurstThenRefill(t *testing.T) {
	req := require.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	clock := clockwork.NewFakeClock()

	// Given one token per second with a burst of two
	l := limiter.New(ctx, "test", clock, 1, 2, nil)

	// When a client spends its burst
	req.True(l.Allow(newRequest("198.51.100.1:1000")))
	req.True(l.Allow(newRequest("198.51.100.1:2000")))

	// Then the next request is refused, while other clients are unaffected
	req.False(l.Allow(newRequest("198.51.100.1:3000")))
	req.True(l.Allow(newRequest("198.51.100.2:1000")))

	// And one second later a token is back
	clock.Advance(time.Second)
	req.True(l.Allow(newRequest("198.51.100.1:4000")))
}

func TestLimiter_SweepDropsRefilledBuckets(t *testing.T) {
	req := require.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	clock := clockwork.NewFakeClock()

	l := limiter.New(ctx, "test", clock, 1, 2, nil)
	req.True(l.AllowKey("a"))
	req.True(l.AllowKey("b"))
	req.True(l.AllowKey("b"))
	req.Equal(2, l.Len())

	clock.Advance(time.Second)
	req.Equal(1, l.Sweep())
	req.Equal(1, l.Len())

	clock.Advance(time.Second)
	req.Equal(1, l.Sweep())
	req.Zero(l.Len())
}

func TestLimiter_MiddlewareUsesKeyFunc(t *testing.T) {
	req := require.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	byUser := func(r *http.Request) string { return r.Header.Get("X-User") }
	l := limiter.New(ctx, "create", clockwork.NewFakeClock(), 0.01, 1, byUser)
	h := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	call := func(user string) *httptest.ResponseRecorder {
		r := newRequest("198.51.100.1:1000")
		r.Header.Set("X-User", user)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)
		return rec
	}

	req.Equal(http.StatusNoContent, call("u1").Code)
	req.Equal(http.StatusNoContent, call("u2").Code)

	rec := call("u1")
	req.Equal(http.StatusTooManyRequests, rec.Code)
	var body struct {
		Code int `json:"code"`
	}
	req.NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	req.Equal(errs.ErrRateLimitExceeded, body.Code)
}
