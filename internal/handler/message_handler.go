package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"roomchat/internal/pkg/resp"
)

// HandleGetMessage returns one live message to a reader of its room.
func HandleGetMessage(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view, err := deps.Hub.Message(r.Context(), chi.URLParam(r, "id"), principalFrom(r).UID)
		if err != nil {
			resp.RespondErr(w, r, err)
			return
		}

		resp.RespondSuccess(w, r, view)
	}
}

// HandleDeleteMessage deletes one message. The sender or a room admin may do it.
func HandleDeleteMessage(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Hub.Delete(r.Context(), chi.URLParam(r, "id"), principalFrom(r).UID); err != nil {
			resp.RespondErr(w, r, err)
			return
		}

		resp.RespondSuccess(w, r, nil)
	}
}

// HandleDeleteUserMessages deletes every message a member sent in the room. Admins only.
func HandleDeleteUserMessages(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ids, err := deps.Hub.DeleteByUser(r.Context(), chi.URLParam(r, "roomId"), chi.URLParam(r, "uid"), principalFrom(r).UID)
		if err != nil {
			resp.RespondErr(w, r, err)
			return
		}

		resp.RespondSuccess(w, r, map[string]any{"deleted": ids})
	}
}
