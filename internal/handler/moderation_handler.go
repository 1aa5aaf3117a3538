package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"

	"roomchat/internal/app/db"
	"roomchat/internal/app/moderation"
	"roomchat/internal/pkg/req"
	"roomchat/internal/pkg/resp"
)

type MuteInput struct {
	UID             string `json:"uid" validate:"required"`
	DurationSeconds int64  `json:"durationSeconds" validate:"required,gt=0"`
	Reason          string `json:"reason,omitempty"`
}

type muteView struct {
	ID        string    `json:"id"`
	UID       string    `json:"uid"`
	MutedBy   string    `json:"mutedBy"`
	Reason    string    `json:"reason,omitempty"`
	MuteUntil time.Time `json:"muteUntil"`
	CreatedAt time.Time `json:"createdAt"`
}

func muteViewOf(m db.Mute) muteView {
	return muteView{
		ID:        m.ID,
		UID:       m.TargetUID,
		MutedBy:   m.MutedBy,
		Reason:    m.Reason,
		MuteUntil: time.UnixMilli(m.MuteUntil),
		CreatedAt: time.UnixMilli(m.CreatedAt),
	}
}

// HandleMute mutes a member of the room for a duration. Admins only.
func HandleMute(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input MuteInput
		if customErr := req.BindAndValidate(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		m, err := deps.Hub.Mute(r.Context(), moderation.MuteParams{
			RoomID:    chi.URLParam(r, "roomId"),
			ActorUID:  principalFrom(r).UID,
			TargetUID: input.UID,
			Duration:  time.Duration(input.DurationSeconds) * time.Second,
			Reason:    input.Reason,
		})
		if err != nil {
			resp.RespondErr(w, r, err)
			return
		}

		resp.RespondSuccess(w, r, muteViewOf(m))
	}
}

// HandleUnmute clears every active mute of a member. Admins only.
func HandleUnmute(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := deps.Hub.Unmute(r.Context(), chi.URLParam(r, "roomId"), principalFrom(r).UID, chi.URLParam(r, "uid"))
		if err != nil {
			resp.RespondErr(w, r, err)
			return
		}

		resp.RespondSuccess(w, r, nil)
	}
}

// HandleMuteStatus reports whether a member is currently muted.
func HandleMuteStatus(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, err := deps.Moderation.CheckMuted(r.Context(), chi.URLParam(r, "roomId"), chi.URLParam(r, "uid"))
		if err != nil {
			resp.RespondErr(w, r, err)
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"status":      status,
			"remainingMs": status.RemainingMs(),
		})
	}
}

// HandleListMutes lists the active mutes of a room. Admins only.
func HandleListMutes(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID := chi.URLParam(r, "roomId")
		if _, err := deps.Moderation.RequireRole(r.Context(), roomID, principalFrom(r).UID, moderation.RoleAdmin); err != nil {
			resp.RespondErr(w, r, err)
			return
		}

		mutes, err := deps.Moderation.ListMutes(r.Context(), roomID)
		if err != nil {
			resp.RespondErr(w, r, err)
			return
		}

		resp.RespondSuccess(w, r, map[string]any{"mutes": lo.Map(mutes, func(m db.Mute, _ int) muteView { return muteViewOf(m) })})
	}
}

// HandleListAdmins lists the explicit admin grants of a room.
func HandleListAdmins(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		grants, err := deps.Moderation.ListAdmins(r.Context(), chi.URLParam(r, "roomId"))
		if err != nil {
			resp.RespondErr(w, r, err)
			return
		}

		admins := lo.Map(grants, func(g db.AdminGrant, _ int) map[string]any {
			return map[string]any{
				"uid":       g.UID,
				"grantedBy": g.GrantedBy,
				"grantedAt": time.UnixMilli(g.CreatedAt),
			}
		})
		resp.RespondSuccess(w, r, map[string]any{"admins": admins})
	}
}

// HandleSetAdmin grants or revokes admin rights. Creator only.
func HandleSetAdmin(deps *AppDeps, grant bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := deps.Hub.SetAdmin(r.Context(), chi.URLParam(r, "roomId"), principalFrom(r).UID, chi.URLParam(r, "uid"), grant)
		if err != nil {
			resp.RespondErr(w, r, err)
			return
		}

		resp.RespondSuccess(w, r, nil)
	}
}

// HandleKick removes a member and evicts its connection. Creator only.
func HandleKick(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := deps.Hub.Kick(r.Context(), chi.URLParam(r, "roomId"), principalFrom(r).UID, chi.URLParam(r, "uid"))
		if err != nil {
			resp.RespondErr(w, r, err)
			return
		}

		resp.RespondSuccess(w, r, nil)
	}
}
