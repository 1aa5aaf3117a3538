/*
Package handler provides the HTTP handlers and routing setup for the chat server.

This file defines the main Router, applying necessary middleware like logging, CORS,
and rate limiting before delegating requests to specific handlers (API and WebSocket).
*/
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/cors"
	"golang.org/x/time/rate"

	"roomchat/internal/pkg/limiter"
	"roomchat/internal/pkg/logx"
	"roomchat/internal/pkg/resp"
)

const (
	CreateRate  = 0.05
	CreateBurst = 2
	JoinRate    = 0.2
	JoinBurst   = 5
	EnterRate   = 0.1
	EnterBurst  = 3
)

// Router sets up the main HTTP routing table (chi.Router) for the application.
// Room creation is rate limited per principal, connection and anonymous entry per IP.
// The limiters' background cleanup stops when ctx is cancelled.
func Router(ctx context.Context, deps *AppDeps) http.Handler {
	clock := clockwork.NewRealClock()
	createLimiter := limiter.New(ctx, "create-room", clock, rate.Limit(CreateRate), CreateBurst, byPrincipal)
	joinLimiter := limiter.New(ctx, "ws-connect", clock, rate.Limit(JoinRate), JoinBurst, limiter.ByIP)
	enterLimiter := limiter.New(ctx, "anonymous-enter", clock, rate.Limit(EnterRate), EnterBurst, limiter.ByIP)

	r := chi.NewRouter()

	allowedOrigins := make(map[string]struct{})
	for _, origin := range deps.Config.AllowedOrigins {
		allowedOrigins[origin] = struct{}{}
	}

	var wsUpgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if deps.Config.IsDevelopment() {
				return true
			}

			origin := r.Header.Get("Origin")
			if _, ok := allowedOrigins[origin]; ok {
				return true
			}

			logx.Warn("WebSocket connection rejected: Origin not allowed.", "origin", origin)
			return false
		},
	}

	corsAllowedOrigins := []string{}
	if deps.Config.IsDevelopment() {
		corsAllowedOrigins = []string{"*"}
	} else if len(deps.Config.AllowedOrigins) > 0 {
		corsAllowedOrigins = deps.Config.AllowedOrigins
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   corsAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-PoW-Token"},
		ExposedHeaders:   []string{},
		AllowCredentials: true,
		MaxAge:           300,
	})
	r.Use(c.Handler)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logx.RequestLogger())
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		data := map[string]any{
			"status":  "ok",
			"service": "RoomChat Server",
			"online":  deps.Hub.Registry().TotalOnline(),
		}
		resp.RespondSuccess(w, r, data)
	})

	r.Route("/api", func(api chi.Router) {
		api.Get("/pow/challenge", HandlePowChallenge(deps))
		api.Post("/pow/verify", HandlePowVerify(deps))
		api.With(enterLimiter.Middleware).Post("/anonymous/enter", HandleEnterAnonymous(deps))

		api.Group(func(authed chi.Router) {
			authed.Use(RequirePrincipal(deps.Identity))

			authed.Get("/me", HandleGetProfile(deps))

			authed.With(createLimiter.Middleware).Post("/rooms", HandleCreateRoom(deps))

			authed.Route("/rooms/{roomId}", func(rm chi.Router) {
				rm.Get("/", HandleGetRoom(deps))
				rm.Patch("/", HandleRenameRoom(deps))
				rm.Delete("/", HandleDissolveRoom(deps))

				rm.Get("/members", HandleListMembers(deps))
				rm.Get("/online", HandleListOnline(deps))
				rm.Get("/messages", HandleListMessages(deps))

				rm.Get("/admins", HandleListAdmins(deps))
				rm.Put("/admins/{uid}", HandleSetAdmin(deps, true))
				rm.Delete("/admins/{uid}", HandleSetAdmin(deps, false))

				rm.Get("/mutes", HandleListMutes(deps))
				rm.Post("/mutes", HandleMute(deps))
				rm.Get("/mutes/{uid}", HandleMuteStatus(deps))
				rm.Delete("/mutes/{uid}", HandleUnmute(deps))

				rm.Post("/kick/{uid}", HandleKick(deps))
				rm.Delete("/users/{uid}/messages", HandleDeleteUserMessages(deps))
			})

			authed.Get("/messages/{id}", HandleGetMessage(deps))
			authed.Delete("/messages/{id}", HandleDeleteMessage(deps))

			authed.Post("/files/presign-upload", HandlePresignUploadURL(deps))
			authed.Get("/files/{id}/download", HandlePresignDownloadURL(deps))
		})
	})

	r.Get("/ws", HandleWebSocket(wsUpgrader, joinLimiter, deps))

	return r
}
