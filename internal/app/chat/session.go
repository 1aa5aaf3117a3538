package chat

import (
	"context"

	"roomchat/internal/app/db"
	"roomchat/internal/app/identity"
	"roomchat/internal/app/moderation"
	"roomchat/internal/app/presence"
	"roomchat/internal/app/room"
	"roomchat/internal/pkg/errs"
)

// JoinResult is what the joiner receives.
type JoinResult struct {
	Room        room.Info
	OnlineUsers []OnlineUser
}

// Join admits p into roomID over handle. It checks the room and password, then, under the
// room lock, confirms the room is still active, marks the membership online, registers presence, sends room-joined to the joiner and
// user-joined to everyone else. A previous connection of p in the room is replaced
// and closed.
func (h *Hub) Join(ctx context.Context, roomID string, p identity.Principal, password string, handle presence.Handle) (JoinResult, error) {
	info, err := h.rooms.CheckAccess(ctx, roomID, p.UID, password)
	if err != nil {
		return JoinResult{}, err
	}

	st := h.lockRoom(roomID)
	defer st.mu.Unlock()

	// The room may have been dissolved while the password was being checked.
	if _, err := h.rooms.RequireActive(ctx, roomID); err != nil {
		return JoinResult{}, err
	}

	if err := h.store.UpsertMembership(ctx, roomID, p.UID, db.MembershipOnline, h.clock.Now().UnixMilli()); err != nil {
		return JoinResult{}, errs.Store(err)
	}

	if prev := h.registry.Register(roomID, p, handle); prev != nil {
		h.sendTo(prev, EventError, errorPayload(errs.NewError(errs.ErrSessionReplaced)))
		prev.Close("session replaced")
	}

	online, err := h.onlineUsers(ctx, roomID)
	if err != nil {
		h.registry.Unregister(roomID, p.UID, handle)
		return JoinResult{}, err
	}

	self, _ := findOnline(online, p.UID)

	h.sendTo(handle, EventRoomJoined, RoomJoinedPayload{RoomID: roomID, RoomInfo: info, OnlineUsers: online})
	h.emit(roomID, EventUserJoined, UserPresencePayload{RoomID: roomID, User: self, OnlineUsers: online}, p.UID)

	h.logger.Info().
		Str("room_id", roomID).
		Str("uid", p.UID).
		Str("conn_id", handle.ID()).
		Int("online", len(online)).
		Msg("Principal joined room.")

	return JoinResult{Room: info, OnlineUsers: online}, nil
}

// Leave removes p's handle from roomID. An explicit leave marks the membership left,
// a disconnect marks it offline. Leaving twice, or with a handle that has already been
// replaced, is a no-op and reports false.
func (h *Hub) Leave(ctx context.Context, roomID string, p identity.Principal, handle presence.Handle, explicit bool) bool {
	st := h.lockRoom(roomID)
	defer st.mu.Unlock()

	entry, ok := h.registry.Lookup(roomID, p.UID)
	if !ok || !h.registry.Unregister(roomID, p.UID, handle) {
		return false
	}

	status := db.MembershipOffline
	if explicit {
		status = db.MembershipLeft
	}
	if _, err := h.store.SetMembershipStatus(ctx, roomID, p.UID, status, h.clock.Now().UnixMilli()); err != nil {
		h.logger.Error().Err(err).Str("room_id", roomID).Str("uid", p.UID).Msg("Failed to update membership on leave.")
	}

	online, err := h.onlineUsers(ctx, roomID)
	if err != nil {
		h.logger.Error().Err(err).Str("room_id", roomID).Msg("Failed to build online list on leave.")
		online = h.plainOnline(roomID)
	}

	h.emit(roomID, EventUserLeft, UserPresencePayload{
		RoomID:      roomID,
		User:        onlineUser(entry.Principal, moderation.Flags{}),
		OnlineUsers: online,
	}, "")

	h.logger.Info().
		Str("room_id", roomID).
		Str("uid", p.UID).
		Bool("explicit", explicit).
		Int("online", len(online)).
		Msg("Principal left room.")
	return true
}

// Typing relays a typing indicator to everyone else in the room.
func (h *Hub) Typing(roomID string, p identity.Principal, isTyping bool) error {
	if !h.registry.IsOnline(roomID, p.UID) {
		return errs.NewError(errs.ErrNotInRoom)
	}

	h.emit(roomID, EventUserTyping, UserTypingPayload{
		RoomID:   roomID,
		UID:      p.UID,
		Nickname: p.Nickname,
		IsTyping: isTyping,
	}, p.UID)
	return nil
}

// OnlineUsers returns the decorated presence list of an existing room.
func (h *Hub) OnlineUsers(ctx context.Context, roomID string) ([]OnlineUser, error) {
	if _, err := h.rooms.Get(ctx, roomID); err != nil {
		return nil, err
	}
	return h.onlineUsers(ctx, roomID)
}

// plainOnline is the presence list without moderation flags, used when flags cannot be read.
func (h *Hub) plainOnline(roomID string) []OnlineUser {
	entries := h.registry.ListOnline(roomID)
	out := make([]OnlineUser, 0, len(entries))
	for _, e := range entries {
		out = append(out, onlineUser(e.Principal, moderation.Flags{}))
	}
	return out
}

func findOnline(list []OnlineUser, uid string) (OnlineUser, bool) {
	for _, u := range list {
		if u.UID == uid {
			return u, true
		}
	}
	return OnlineUser{}, false
}

func errorPayload(e *errs.CustomError) ErrorPayload {
	return ErrorPayload{Code: e.Code, Message: e.Message, Meta: e.Meta}
}
