/*
Package handler provides HTTP handler functions for the proof-of-work challenge and anonymous entry.
*/
package handler

import (
	"net/http"

	"roomchat/internal/app/identity"
	"roomchat/internal/pkg/auth/jwt"
	"roomchat/internal/pkg/errs"
	"roomchat/internal/pkg/logx"
	"roomchat/internal/pkg/req"
	"roomchat/internal/pkg/resp"
)

// HandlePowChallenge issues a fresh nonce to solve.
func HandlePowChallenge(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp.RespondSuccess(w, r, map[string]any{
			"nonce":      deps.Pow.GenerateNonce(),
			"difficulty": deps.Pow.Difficulty(),
		})
	}
}

type PowVerifyInput struct {
	Nonce   string `json:"nonce" validate:"required"`
	Counter string `json:"counter" validate:"required"`
}

// HandlePowVerify exchanges a solved challenge for a short-lived proof token.
func HandlePowVerify(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input PowVerifyInput
		if customErr := req.BindAndValidate(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		token, err := deps.Pow.ValidateProof(input.Nonce, input.Counter)
		if err != nil {
			logx.FromRequest(r).Warn().Err(err).Msg("PoW verification failed")
			resp.RespondError(w, r, errs.NewError(errs.ErrPowChallengeInvalid))
			return
		}

		resp.RespondSuccess(w, r, map[string]any{"token": token})
	}
}

type EnterAnonymousInput struct {
	RoomID   string `json:"roomId" validate:"required"`
	Nickname string `json:"nickname,omitempty"`

	// PreviousToken is the credential an earlier session of the same guest received.
	PreviousToken string `json:"previousToken,omitempty"`
}

// HandleEnterAnonymous creates or reactivates an anonymous principal for a room and issues
// its credential. A solved proof-of-work token is required. Reactivation needs the guest's
// previous credential, from the body or the Authorization header.
func HandleEnterAnonymous(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !deps.Pow.ConsumeProofToken(r) {
			resp.RespondError(w, r, errs.NewError(errs.ErrPowChallengeRequired))
			return
		}

		var input EnterAnonymousInput
		if customErr := req.BindAndValidate(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if _, err := deps.Rooms.RequireActive(r.Context(), input.RoomID); err != nil {
			resp.RespondErr(w, r, err)
			return
		}

		previous := input.PreviousToken
		if previous == "" {
			previous = jwt.TokenFromRequest(r)
		}

		p, err := deps.Identity.EnterAnonymous(r.Context(), input.RoomID, previous, input.Nickname)
		if err != nil {
			resp.RespondErr(w, r, err)
			return
		}

		token, err := jwt.GenerateToken(&jwt.Payload{
			UID:      p.UID,
			Kind:     jwt.KindAnonymous,
			Nickname: p.Nickname,
		}, deps.Config.JWTSecret, deps.Config.AnonSessionTTL)
		if err != nil {
			logx.FromRequest(r).Error().Err(err).Str("uid", p.UID).Msg("Failed to sign anonymous credential")
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"token":     token,
			"principal": profileOf(p),
		})
	}
}

func profileOf(p identity.Principal) map[string]any {
	out := map[string]any{
		"uid":      p.UID,
		"nickname": p.Nickname,
		"avatar":   p.AvatarRef,
		"kind":     p.Kind,
		"joinTime": p.JoinTime,
	}
	if p.IsAnonymous() && !p.MuteUntil.IsZero() {
		out["muteUntil"] = p.MuteUntil
	}
	return out
}

// HandleGetProfile returns the caller's resolved principal.
func HandleGetProfile(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp.RespondSuccess(w, r, map[string]any{"principal": profileOf(principalFrom(r))})
	}
}
