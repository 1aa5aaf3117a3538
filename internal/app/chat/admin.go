package chat

import (
	"context"

	"roomchat/internal/app/db"
	"roomchat/internal/app/moderation"
	"roomchat/internal/app/room"
)

// Mute applies a mute and tells the room.
func (h *Hub) Mute(ctx context.Context, p moderation.MuteParams) (db.Mute, error) {
	st := h.lockRoom(p.RoomID)
	defer st.mu.Unlock()

	m, err := h.moderation.Mute(ctx, p)
	if err != nil {
		return db.Mute{}, err
	}

	h.emit(p.RoomID, EventUserMuted, UserMutedPayload{
		RoomID:    p.RoomID,
		UID:       p.TargetUID,
		MutedBy:   p.ActorUID,
		Reason:    m.Reason,
		MuteUntil: m.MuteUntil,
	}, "")
	return m, nil
}

// Unmute clears target's mutes and tells the room.
func (h *Hub) Unmute(ctx context.Context, roomID, actorUID, targetUID string) error {
	st := h.lockRoom(roomID)
	defer st.mu.Unlock()

	if err := h.moderation.Unmute(ctx, roomID, actorUID, targetUID); err != nil {
		return err
	}

	h.emit(roomID, EventUserUnmuted, UserUnmutedPayload{RoomID: roomID, UID: targetUID}, "")
	return nil
}

// SetAdmin grants or revokes admin rights and tells the room.
func (h *Hub) SetAdmin(ctx context.Context, roomID, actorUID, targetUID string, grant bool) error {
	st := h.lockRoom(roomID)
	defer st.mu.Unlock()

	var err error
	if grant {
		err = h.moderation.SetAdmin(ctx, roomID, actorUID, targetUID)
	} else {
		err = h.moderation.RevokeAdmin(ctx, roomID, actorUID, targetUID)
	}
	if err != nil {
		return err
	}

	h.emit(roomID, EventAdminUpdated, AdminUpdatedPayload{RoomID: roomID, UID: targetUID, IsAdmin: grant}, "")
	return nil
}

// Kick removes target from the room and evicts its live connection. The target receives
// user-kicked before its connection is closed.
func (h *Hub) Kick(ctx context.Context, roomID, actorUID, targetUID string) error {
	st := h.lockRoom(roomID)
	defer st.mu.Unlock()

	// Under the lock, no join can re-mark the target online between the transition to
	// left and the eviction.
	if err := h.moderation.Kick(ctx, roomID, actorUID, targetUID); err != nil {
		return err
	}

	entry, present := h.registry.Lookup(roomID, targetUID)
	if present {
		h.registry.Unregister(roomID, targetUID, entry.Handle)
	}

	online, err := h.onlineUsers(ctx, roomID)
	if err != nil {
		h.logger.Warn().Err(err).Str("room_id", roomID).Msg("Failed to build online list after kick.")
		online = h.plainOnline(roomID)
	}

	payload := UserKickedPayload{RoomID: roomID, UID: targetUID, KickedBy: actorUID, OnlineUsers: online}
	h.emit(roomID, EventUserKicked, payload, "")

	if present {
		h.sendTo(entry.Handle, EventUserKicked, payload)
		entry.Handle.Close("kicked")
	}

	h.logger.Info().Str("room_id", roomID).Str("target_uid", targetUID).Bool("was_online", present).Msg("Kick applied.")
	return nil
}

// Rename changes the room name. Admins only.
func (h *Hub) Rename(ctx context.Context, roomID, actorUID, name string) (room.Info, error) {
	if _, err := h.moderation.RequireRole(ctx, roomID, actorUID, moderation.RoleAdmin); err != nil {
		return room.Info{}, err
	}

	st := h.lockRoom(roomID)
	defer st.mu.Unlock()

	info, err := h.rooms.Rename(ctx, roomID, name)
	if err != nil {
		return room.Info{}, err
	}

	h.emit(roomID, EventRoomNameUpdated, RoomNameUpdatedPayload{RoomID: roomID, Name: info.Name}, "")
	return info, nil
}

// Dissolve closes the room, retires its messages and evicts everyone present. Creator only.
func (h *Hub) Dissolve(ctx context.Context, roomID, actorUID string) error {
	if _, err := h.moderation.RequireRole(ctx, roomID, actorUID, moderation.RoleCreator); err != nil {
		return err
	}

	st := h.lockRoom(roomID)
	defer st.mu.Unlock()

	if _, err := h.rooms.Dissolve(ctx, roomID); err != nil {
		return err
	}

	frame, err := encode(EventRoomDissolved, RoomDissolvedPayload{RoomID: roomID})
	if err != nil {
		return err
	}

	now := h.clock.Now().UnixMilli()
	for _, e := range h.registry.RemoveRoom(roomID) {
		if _, err := h.store.SetMembershipStatus(ctx, roomID, e.Principal.UID, db.MembershipOffline, now); err != nil {
			h.logger.Warn().Err(err).Str("room_id", roomID).Str("uid", e.Principal.UID).Msg("Failed to mark member offline on dissolve.")
		}
		if err := e.Handle.Send(frame); err != nil {
			h.logger.Debug().Err(err).Str("uid", e.Principal.UID).Msg("Could not deliver room-dissolved.")
		}
		e.Handle.Close("room dissolved")
	}
	st.loaded = false

	return nil
}
