package chat

import (
	"encoding/json"

	"roomchat/internal/app/identity"
	"roomchat/internal/app/moderation"
	"roomchat/internal/app/room"
)

// EventType names a frame on the real-time connection.
type EventType string

// Client to server.
const (
	EventJoinRoom       EventType = "join-room"
	EventSendMessage    EventType = "send-message"
	EventTypingStart    EventType = "typing-start"
	EventTypingStop     EventType = "typing-stop"
	EventLeaveRoom      EventType = "leave-room"
	EventGetOnlineUsers EventType = "get-online-users"
)

// Server to client.
const (
	EventRoomJoined      EventType = "room-joined"
	EventUserJoined      EventType = "user-joined"
	EventUserLeft        EventType = "user-left"
	EventNewMessage      EventType = "new-message"
	EventMessageAck      EventType = "message-ack"
	EventUserTyping      EventType = "user-typing"
	EventOnlineUsers     EventType = "online-users"
	EventError           EventType = "error"
	EventUserMuted       EventType = "user-muted"
	EventUserUnmuted     EventType = "user-unmuted"
	EventUserKicked      EventType = "user-kicked"
	EventAdminUpdated    EventType = "admin-updated"
	EventRoomDissolved   EventType = "room-dissolved"
	EventRoomNameUpdated EventType = "room-name-updated"
	EventMessageDeleted  EventType = "message-deleted"
)

// Envelope is the JSON frame exchanged in both directions.
type Envelope struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// encode builds a frame for t carrying payload.
func encode(t EventType, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: t, Payload: raw})
}

// OnlineUser is a present principal decorated with live moderation flags.
type OnlineUser struct {
	UID      string        `json:"uid"`
	Nickname string        `json:"nickname"`
	Avatar   string        `json:"avatar,omitempty"`
	Kind     identity.Kind `json:"kind"`
	moderation.Flags
}

func onlineUser(p identity.Principal, f moderation.Flags) OnlineUser {
	return OnlineUser{UID: p.UID, Nickname: p.Nickname, Avatar: p.AvatarRef, Kind: p.Kind, Flags: f}
}

// Inbound payloads.

type JoinRoomPayload struct {
	RoomID   string `json:"roomId"`
	Password string `json:"password,omitempty"`
}

type SendMessagePayload struct {
	RoomID           string          `json:"roomId"`
	Content          json.RawMessage `json:"content"`
	ReplyToMessageID string          `json:"replyToMessageId,omitempty"`
	TempID           string          `json:"tempId,omitempty"`
}

type RoomPayload struct {
	RoomID string `json:"roomId"`
}

// Outbound payloads.

type RoomJoinedPayload struct {
	RoomID      string       `json:"roomId"`
	RoomInfo    room.Info    `json:"roomInfo"`
	OnlineUsers []OnlineUser `json:"onlineUsers"`
}

type UserPresencePayload struct {
	RoomID      string       `json:"roomId"`
	User        OnlineUser   `json:"user"`
	OnlineUsers []OnlineUser `json:"onlineUsers"`
}

type MessageAckPayload struct {
	TempID    string `json:"tempId"`
	ID        string `json:"id"`
	CreatedAt int64  `json:"createdAt"`
}

type UserTypingPayload struct {
	RoomID   string `json:"roomId"`
	UID      string `json:"uid"`
	Nickname string `json:"nickname"`
	IsTyping bool   `json:"isTyping"`
}

type OnlineUsersPayload struct {
	RoomID string       `json:"roomId"`
	List   []OnlineUser `json:"list"`
}

type ErrorPayload struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Meta    map[string]any `json:"meta,omitempty"`
}

type UserMutedPayload struct {
	RoomID    string `json:"roomId"`
	UID       string `json:"uid"`
	MutedBy   string `json:"mutedBy"`
	Reason    string `json:"reason,omitempty"`
	MuteUntil int64  `json:"muteUntil"`
}

type UserUnmutedPayload struct {
	RoomID string `json:"roomId"`
	UID    string `json:"uid"`
}

type UserKickedPayload struct {
	RoomID      string       `json:"roomId"`
	UID         string       `json:"uid"`
	KickedBy    string       `json:"kickedBy"`
	OnlineUsers []OnlineUser `json:"onlineUsers"`
}

type AdminUpdatedPayload struct {
	RoomID  string `json:"roomId"`
	UID     string `json:"uid"`
	IsAdmin bool   `json:"isAdmin"`
}

type RoomDissolvedPayload struct {
	RoomID string `json:"roomId"`
}

type RoomNameUpdatedPayload struct {
	RoomID string `json:"roomId"`
	Name   string `json:"name"`
}

type MessageDeletedPayload struct {
	RoomID    string   `json:"roomId"`
	IDs       []string `json:"ids"`
	DeletedBy string   `json:"deletedBy"`
}
