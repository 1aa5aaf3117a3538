/*
Package logx provides a structured logging wrapper based on zerolog.

This file holds the request-scoped side: a chi middleware that puts a per-request logger
into the context and writes one completion line per request, helpers to reach that logger
from handlers and to tag it with the resolved principal, and client IP anonymization.
*/
package logx

import (
	"net"
	"net/http"
	"net/netip"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// anonymizeIP keeps the /24 of an IPv4 address and the /64 of an IPv6 address.
func anonymizeIP(remoteAddr string) string {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}

	addr, err := netip.ParseAddr(host)
	if err != nil {
		return "unknown_ip"
	}
	addr = addr.Unmap()

	if addr.IsLoopback() {
		return addr.String()
	}

	bits := 64
	if addr.Is4() {
		bits = 24
	}
	prefix, err := addr.Prefix(bits)
	if err != nil {
		return "unknown_ip"
	}
	return prefix.Addr().String()
}

// FromRequest returns the logger of the request, or the global logger outside RequestLogger.
func FromRequest(r *http.Request) *zerolog.Logger {
	if l := zerolog.Ctx(r.Context()); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return Logger()
}

// TagPrincipal adds the caller's identity to the request logger, so the completion line
// and every later handler log carry it.
func TagPrincipal(r *http.Request, uid, kind string) {
	l := zerolog.Ctx(r.Context())
	if l.GetLevel() == zerolog.Disabled {
		return
	}
	l.UpdateContext(func(c zerolog.Context) zerolog.Context {
		return c.Str("uid", uid).Str("principal_kind", kind)
	})
}

// RequestLogger returns a middleware that injects a per-request logger and logs the outcome
// of every request. WebSocket upgrades are logged once when the upgrade is handed over.
func RequestLogger() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger := Logger().With().
				Str("component", "http").
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("remote_ip", anonymizeIP(r.RemoteAddr)).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Logger()
			r = r.WithContext(logger.WithContext(r.Context()))
			l := zerolog.Ctx(r.Context())

			// Hijacked connections have no status to report.
			if r.Header.Get("Upgrade") == "websocket" {
				l.Debug().Msg("WebSocket upgrade requested")
				next.ServeHTTP(w, r)
				return
			}

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			status := ww.Status()
			var ev *zerolog.Event
			switch {
			case status >= http.StatusInternalServerError:
				ev = l.Error()
			case status >= http.StatusBadRequest:
				ev = l.Warn()
			default:
				ev = l.Info()
			}

			ev.Int("status", status).
				Int("bytes", ww.BytesWritten()).
				Dur("latency", time.Since(start)).
				Msg("Request completed")
		})
	}
}
