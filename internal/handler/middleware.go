package handler

import (
	"context"
	"net/http"

	"roomchat/internal/app/identity"
	"roomchat/internal/pkg/auth/jwt"
	"roomchat/internal/pkg/logx"
	"roomchat/internal/pkg/resp"
)

type contextKey string

// ContextPrincipalKey is the key used to store the resolved identity.Principal in the request Context.
const ContextPrincipalKey contextKey = "principal"

// RequirePrincipal resolves the bearer credential against durable state and injects the
// Principal into the Context. Requests without a live principal are rejected.
func RequirePrincipal(ids *identity.Service) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := ids.Resolve(r.Context(), jwt.TokenFromRequest(r))
			if err != nil {
				logx.FromRequest(r).Debug().Err(err).Msg("Request rejected: credential did not resolve.")
				resp.RespondErr(w, r, err)
				return
			}

			logx.TagPrincipal(r, p.UID, string(p.Kind))
			ctx := context.WithValue(r.Context(), ContextPrincipalKey, p)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// principalFrom extracts the Principal injected by RequirePrincipal.
func principalFrom(r *http.Request) identity.Principal {
	p, _ := r.Context().Value(ContextPrincipalKey).(identity.Principal)
	return p
}

// byPrincipal keys rate limits by the resolved uid. Only valid behind RequirePrincipal.
func byPrincipal(r *http.Request) string {
	return "uid:" + principalFrom(r).UID
}
