package jwt

import (
	"net/http"
	"strings"
)

// TokenFromRequest extracts a bearer credential from the Authorization header,
// falling back to the "token" query parameter used by browser WebSocket clients.
func TokenFromRequest(r *http.Request) string {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && parts[0] == "Bearer" {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	return r.URL.Query().Get("token")
}
