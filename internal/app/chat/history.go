package chat

import (
	"context"
	"time"

	"github.com/samber/lo"

	"roomchat/internal/app/db"
	"roomchat/internal/app/identity"
	"roomchat/internal/app/moderation"
	"roomchat/internal/pkg/errs"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 100
)

// HistoryQuery selects a page of room history.
type HistoryQuery struct {
	Page  int
	Limit int
	Query string
}

// HistoryPage is a reverse-chronological page of messages.
type HistoryPage struct {
	Messages []MessageView `json:"messages"`
	Total    int64         `json:"total"`
	Page     int           `json:"page"`
	Limit    int           `json:"limit"`
	HasMore  bool          `json:"hasMore"`
}

// MemberView is a durable membership decorated with live presence and flags.
type MemberView struct {
	OnlineUser
	Status     string    `json:"status"`
	Online     bool      `json:"online"`
	JoinTime   time.Time `json:"joinTime"`
	LastActive time.Time `json:"lastActive"`
}

// requireReader fails unless uid created roomID or holds a membership that has not left.
func (h *Hub) requireReader(ctx context.Context, roomID, uid string) error {
	isCreator, err := h.moderation.CheckCreator(ctx, uid, roomID)
	if err != nil || isCreator {
		return err
	}

	m, err := h.store.GetMembership(ctx, roomID, uid)
	if err != nil {
		if db.IsNotFound(err) {
			return errs.NewError(errs.ErrNotInRoom)
		}
		return errs.Store(err)
	}
	if m.Status == db.MembershipLeft {
		return errs.NewError(errs.ErrNotInRoom)
	}
	return nil
}

// History returns messages of roomID newest first, optionally filtered by a
// case-insensitive keyword. Retired messages are never listed.
func (h *Hub) History(ctx context.Context, roomID, requesterUID string, q HistoryQuery) (HistoryPage, error) {
	if err := h.requireReader(ctx, roomID, requesterUID); err != nil {
		return HistoryPage{}, err
	}

	if q.Limit <= 0 {
		q.Limit = DefaultPageSize
	}
	q.Limit = min(q.Limit, MaxPageSize)
	q.Page = max(q.Page, 1)

	rows, err := h.store.ListRoomMessages(ctx, db.ListMessagesParams{
		RoomID: roomID,
		Query:  q.Query,
		Limit:  q.Limit,
		Offset: (q.Page - 1) * q.Limit,
	})
	if err != nil {
		return HistoryPage{}, errs.Store(err)
	}
	total, err := h.store.CountRoomMessages(ctx, roomID, q.Query)
	if err != nil {
		return HistoryPage{}, errs.Store(err)
	}

	senders := lo.Uniq(lo.Map(rows, func(r db.MessageRow, _ int) string { return r.SenderUID }))
	flags, err := h.moderation.Flags(ctx, roomID, senders)
	if err != nil {
		return HistoryPage{}, err
	}

	views := make([]MessageView, 0, len(rows))
	for _, r := range rows {
		v, err := viewOf(r, flags[r.SenderUID])
		if err != nil {
			h.logger.Warn().Err(err).Str("message_id", r.ID).Msg("Skipping unreadable message.")
			continue
		}
		views = append(views, v)
	}

	return HistoryPage{
		Messages: views,
		Total:    total,
		Page:     q.Page,
		Limit:    q.Limit,
		HasMore:  int64(q.Page*q.Limit) < total,
	}, nil
}

// viewOf rebuilds a MessageView from a stored row. A reply whose target has since been
// deleted loses its preview.
func viewOf(r db.MessageRow, f moderation.Flags) (MessageView, error) {
	content, reply, err := decodeStored(r.Variant, r.Payload)
	if err != nil {
		return MessageView{}, err
	}
	if !r.ReplyToID.Valid {
		reply = nil
	}

	return MessageView{
		ID:     r.ID,
		RoomID: r.RoomID,
		Sender: SenderView{
			UID:      r.SenderUID,
			Nickname: r.SenderNickname,
			Avatar:   r.SenderAvatar,
			Kind:     identity.Kind(r.SenderKind),
			Flags:    f,
		},
		Content:   content,
		ReplyTo:   reply,
		CreatedAt: r.CreatedAt,
	}, nil
}

// Members lists everyone who has not left roomID, in join order, with presence and flags.
func (h *Hub) Members(ctx context.Context, roomID string) ([]MemberView, error) {
	if _, err := h.rooms.Get(ctx, roomID); err != nil {
		return nil, err
	}

	rows, err := h.store.ListMembers(ctx, roomID)
	if err != nil {
		return nil, errs.Store(err)
	}

	flags, err := h.moderation.Flags(ctx, roomID, lo.Map(rows, func(m db.MemberRow, _ int) string { return m.UID }))
	if err != nil {
		return nil, err
	}

	return lo.Map(rows, func(m db.MemberRow, _ int) MemberView {
		return MemberView{
			OnlineUser: OnlineUser{
				UID:      m.UID,
				Nickname: m.Nickname,
				Avatar:   m.AvatarRef,
				Kind:     identity.Kind(m.Kind),
				Flags:    flags[m.UID],
			},
			Status:     m.Status,
			Online:     h.registry.IsOnline(roomID, m.UID),
			JoinTime:   time.UnixMilli(m.JoinTime),
			LastActive: time.UnixMilli(m.LastActive),
		}
	}), nil
}

// Message loads one live message as a view. The requester must be able to read its room.
func (h *Hub) Message(ctx context.Context, messageID, requesterUID string) (MessageView, error) {
	row, err := h.store.GetMessage(ctx, messageID)
	if err != nil {
		if db.IsNotFound(err) {
			return MessageView{}, errs.NewError(errs.ErrMessageNotFound)
		}
		return MessageView{}, errs.Store(err)
	}
	if err := h.requireReader(ctx, row.RoomID, requesterUID); err != nil {
		return MessageView{}, err
	}

	flags, err := h.moderation.Flags(ctx, row.RoomID, []string{row.SenderUID})
	if err != nil {
		return MessageView{}, err
	}
	return viewOf(row, flags[row.SenderUID])
}
