package logx

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/require"
)

func TestAnonymizeIP(t *testing.T) {
	cases := map[string]string{
		"203.0.113.57:4321":         "203.0.113.0",
		"203.0.113.57":              "203.0.113.0",
		"[2001:db8:1:2:3:4:5:6]:80": "2001:db8:1:2::",
		"127.0.0.1:9000":            "127.0.0.1",
		"[::ffff:198.51.100.9]:1":   "198.51.100.0",
		"not-an-ip":                 "unknown_ip",
	}
	for in, want := range cases {
		require.Equal(t, want, anonymizeIP(in), in)
	}
}

func TestRequestLogger_TagsPrincipal(t *testing.T) {
	req := require.New(t)

	// Given a global logger writing JSON into a buffer
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = prev })

	// When a handler tags the request with a principal
	h := RequestLogger()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		TagPrincipal(r, "u1", "user")
		w.WriteHeader(http.StatusTeapot)
	}))
	r := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	r.RemoteAddr = "203.0.113.57:4321"
	h.ServeHTTP(httptest.NewRecorder(), r)

	// Then the completion line carries the principal and the anonymised address
	var line map[string]any
	req.NoError(json.Unmarshal(buf.Bytes(), &line))
	req.Equal("u1", line["uid"])
	req.Equal("user", line["principal_kind"])
	req.Equal("203.0.113.0", line["remote_ip"])
	req.Equal(float64(http.StatusTeapot), line["status"])
	req.Equal("warn", line["level"])
}

func TestFromRequest_FallsBackToGlobal(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	require.Same(t, Logger(), FromRequest(r))
}
