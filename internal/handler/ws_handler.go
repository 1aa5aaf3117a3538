/*
Package handler provides the HTTP handler function for WebSocket connection upgrading and initialization.

This file contains the HandleWebSocket function, which is responsible for rate limiting, resolving
the bearer credential, upgrading the HTTP connection to WebSocket, and initiating the client lifecycle.
*/
package handler

import (
	"net/http"

	"github.com/gorilla/websocket"

	"roomchat/internal/app/chat"
	"roomchat/internal/pkg/auth/jwt"
	"roomchat/internal/pkg/errs"
	"roomchat/internal/pkg/limiter"
	"roomchat/internal/pkg/logx"
	"roomchat/internal/pkg/resp"
)

// HandleWebSocket creates an HTTP HandlerFunc to process WebSocket connection requests.
// The credential is resolved before the upgrade, so an unauthenticated client never
// gets a connection.
func HandleWebSocket(upgrader websocket.Upgrader, rateLimiter *limiter.Limiter, deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !rateLimiter.Allow(r) {
			logx.FromRequest(r).Warn().Msg("WebSocket connection rejected: rate limit exceeded.")
			resp.RespondError(w, r, errs.NewError(errs.ErrRateLimitExceeded))
			return
		}

		principal, err := deps.Identity.Resolve(r.Context(), jwt.TokenFromRequest(r))
		if err != nil {
			ce := errs.Wrap(err)
			logx.FromRequest(r).Info().Int("code", ce.Code).Msg("WebSocket connection rejected: credential did not resolve.")

			status := ce.Status
			if ce.Kind == errs.KindAuth {
				status = http.StatusUnauthorized
			}
			resp.RespondJSON(w, r, status, resp.JSONResponse{Code: ce.Code, Message: ce.Message})
			return
		}

		logx.TagPrincipal(r, principal.UID, string(principal.Kind))

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logx.FromRequest(r).Error().Err(err).Msg("Failed to upgrade connection to WebSocket")
			return
		}

		client := chat.NewClient(deps.Hub, conn, principal)

		logx.FromRequest(r).Info().Str("conn_id", client.ID()).Msg("WebSocket connection established")

		client.Run()
	}
}
