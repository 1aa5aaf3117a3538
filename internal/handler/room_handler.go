/*
Package handler provides HTTP handler functions for room creation, queries and room-level moderation.
*/
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"roomchat/internal/app/chat"
	"roomchat/internal/pkg/req"
	"roomchat/internal/pkg/resp"
)

type CreateRoomInput struct {
	Name     string `json:"name" validate:"required,max=200"`
	Password string `json:"password,omitempty" validate:"max=72"`
}

// HandleCreateRoom creates an HTTP HandlerFunc to process room creation requests.
func HandleCreateRoom(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input CreateRoomInput
		if customErr := req.BindAndValidate(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		info, err := deps.Rooms.Create(r.Context(), principalFrom(r), input.Name, input.Password)
		if err != nil {
			resp.RespondErr(w, r, err)
			return
		}

		resp.RespondCreated(w, r, info)
	}
}

// HandleGetRoom returns the public info of a room.
func HandleGetRoom(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		info, err := deps.Rooms.Get(r.Context(), chi.URLParam(r, "roomId"))
		if err != nil {
			resp.RespondErr(w, r, err)
			return
		}

		resp.RespondSuccess(w, r, info)
	}
}

type RenameRoomInput struct {
	Name string `json:"name" validate:"required,max=200"`
}

// HandleRenameRoom changes a room's name. Admins only.
func HandleRenameRoom(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input RenameRoomInput
		if customErr := req.BindAndValidate(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		info, err := deps.Hub.Rename(r.Context(), chi.URLParam(r, "roomId"), principalFrom(r).UID, input.Name)
		if err != nil {
			resp.RespondErr(w, r, err)
			return
		}

		resp.RespondSuccess(w, r, info)
	}
}

// HandleDissolveRoom closes a room for good. Creator only.
func HandleDissolveRoom(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Hub.Dissolve(r.Context(), chi.URLParam(r, "roomId"), principalFrom(r).UID); err != nil {
			resp.RespondErr(w, r, err)
			return
		}

		resp.RespondSuccess(w, r, nil)
	}
}

// HandleListMembers lists everyone who has not left the room.
func HandleListMembers(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		members, err := deps.Hub.Members(r.Context(), chi.URLParam(r, "roomId"))
		if err != nil {
			resp.RespondErr(w, r, err)
			return
		}

		resp.RespondSuccess(w, r, map[string]any{"members": members})
	}
}

// HandleListOnline lists the principals currently connected to the room.
func HandleListOnline(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		online, err := deps.Hub.OnlineUsers(r.Context(), chi.URLParam(r, "roomId"))
		if err != nil {
			resp.RespondErr(w, r, err)
			return
		}

		resp.RespondSuccess(w, r, map[string]any{"onlineUsers": online})
	}
}

// HandleListMessages returns a page of history, newest first, optionally filtered by keyword.
func HandleListMessages(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, customErr := req.QueryInt(r, "page", 1)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}
		limit, customErr := req.QueryInt(r, "limit", chat.DefaultPageSize)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		history, err := deps.Hub.History(r.Context(), chi.URLParam(r, "roomId"), principalFrom(r).UID, chat.HistoryQuery{
			Page:  page,
			Limit: limit,
			Query: r.URL.Query().Get("q"),
		})
		if err != nil {
			resp.RespondErr(w, r, err)
			return
		}

		resp.RespondSuccess(w, r, history)
	}
}
