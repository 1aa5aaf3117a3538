package chat

import (
	"context"
	"database/sql"
	"encoding/json"
	"html"

	"github.com/samber/lo"

	"roomchat/internal/app/db"
	"roomchat/internal/app/identity"
	"roomchat/internal/app/moderation"
	"roomchat/internal/pkg/errs"
	"roomchat/internal/pkg/randx"
)

// idAttempts bounds message id generation before surfacing a conflict.
const idAttempts = 3

// SendRequest is a message submission.
type SendRequest struct {
	RoomID    string
	Sender    identity.Principal
	Content   json.RawMessage
	ReplyToID string
}

// SenderView is the sender of a message with live moderation flags.
type SenderView struct {
	UID      string        `json:"uid"`
	Nickname string        `json:"nickname"`
	Avatar   string        `json:"avatar,omitempty"`
	Kind     identity.Kind `json:"kind"`
	moderation.Flags
}

// ReplyPreview is a denormalized summary of the message being replied to.
type ReplyPreview struct {
	ID             string  `json:"id"`
	SenderUID      string  `json:"senderUid"`
	SenderNickname string  `json:"senderNickname"`
	Variant        Variant `json:"variant"`
	Summary        string  `json:"summary"`
}

// MessageView is a fully enriched message as broadcast and listed in history.
type MessageView struct {
	ID        string        `json:"id"`
	RoomID    string        `json:"roomId"`
	Sender    SenderView    `json:"sender"`
	Content   Content       `json:"content"`
	ReplyTo   *ReplyPreview `json:"replyTo,omitempty"`
	CreatedAt int64         `json:"createdAt"`
}

// storedPayload is the JSON persisted in messages.payload.
type storedPayload struct {
	Content json.RawMessage `json:"content"`
	Reply   *ReplyPreview   `json:"reply,omitempty"`
}

// Send runs a message through the pipeline: membership and mute checks, validation,
// sanitizing, reply threading, persistence and broadcast to the whole room. Admission is
// checked again under the room lock, so nothing is persisted into a dissolved room or by a
// sender muted or kicked in the meantime.
func (h *Hub) Send(ctx context.Context, r SendRequest) (MessageView, error) {
	if err := h.admitSender(ctx, r.RoomID, r.Sender.UID); err != nil {
		return MessageView{}, err
	}

	content, err := ParseContent(r.Content)
	if err != nil {
		return MessageView{}, err
	}
	content.sanitize()

	if fc, ok := content.(*FileContent); ok {
		if err := h.resolveFile(ctx, r, fc); err != nil {
			return MessageView{}, err
		}
	}

	st := h.lockRoom(r.RoomID)
	defer st.mu.Unlock()

	// Presence, room state and mutes may have changed while the content was checked.
	if err := h.admitSender(ctx, r.RoomID, r.Sender.UID); err != nil {
		return MessageView{}, err
	}

	var reply *ReplyPreview
	if r.ReplyToID != "" {
		reply, err = h.replyPreview(ctx, r.RoomID, r.ReplyToID)
		if err != nil {
			return MessageView{}, err
		}
	}

	view, err := h.persist(ctx, st, r, content, reply)
	if err != nil {
		return MessageView{}, err
	}

	flags, err := h.moderation.Flags(ctx, r.RoomID, []string{r.Sender.UID})
	if err != nil {
		h.logger.Warn().Err(err).Str("room_id", r.RoomID).Msg("Failed to re-read sender flags, broadcasting without them.")
	} else {
		view.Sender.Flags = flags[r.Sender.UID]
	}

	h.emit(r.RoomID, EventNewMessage, view, "")

	h.logger.Debug().
		Str("room_id", r.RoomID).
		Str("uid", r.Sender.UID).
		Str("message_id", view.ID).
		Str("variant", string(content.Variant())).
		Msg("Message sent.")
	return view, nil
}

// admitSender fails unless uid is present in an active roomID and not muted there.
func (h *Hub) admitSender(ctx context.Context, roomID, uid string) error {
	if !h.registry.IsOnline(roomID, uid) {
		return errs.NewError(errs.ErrNotInRoom)
	}
	if _, err := h.rooms.RequireActive(ctx, roomID); err != nil {
		return err
	}

	mute, err := h.moderation.CheckMuted(ctx, roomID, uid)
	if err != nil {
		return err
	}
	if mute.IsMuted {
		return errs.Muted(mute.Remaining, mute.MuteUntil)
	}
	return nil
}

// resolveFile checks that the referenced file was issued to the sender for this room,
// is unexpired and unused, and copies its metadata into the content.
func (h *Hub) resolveFile(ctx context.Context, r SendRequest, fc *FileContent) error {
	f, err := h.store.GetFile(ctx, fc.FileID)
	if err != nil {
		if db.IsNotFound(err) {
			return errs.NewError(errs.ErrFileNotFound)
		}
		return errs.Store(err)
	}

	if f.OwnerUID != r.Sender.UID || f.RoomID != r.RoomID {
		return errs.NewError(errs.ErrFileNotFound)
	}
	if f.Status != db.FileActive || f.ExpiresAt <= h.clock.Now().UnixMilli() {
		return errs.NewError(errs.ErrFileExpired)
	}
	if f.MessageID.Valid {
		return errs.NewError(errs.ErrFileAlreadyAttached)
	}
	if h.files != nil {
		if err := h.files.ConfirmUpload(ctx, f); err != nil {
			return err
		}
	}

	fc.Name = f.Name
	fc.MimeType = f.MimeType
	fc.Size = f.Size
	fc.sanitize()
	return nil
}

func (h *Hub) replyPreview(ctx context.Context, roomID, replyToID string) (*ReplyPreview, error) {
	target, err := h.store.GetMessage(ctx, replyToID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, errs.NewError(errs.ErrReplyTargetMissing)
		}
		return nil, errs.Store(err)
	}
	if target.RoomID != roomID {
		return nil, errs.NewError(errs.ErrReplyTargetMissing)
	}

	content, _, err := decodeStored(target.Variant, target.Payload)
	if err != nil {
		return nil, errs.NewError(errs.ErrUnknown, err)
	}

	return &ReplyPreview{
		ID:             target.ID,
		SenderUID:      target.SenderUID,
		SenderNickname: target.SenderNickname,
		Variant:        content.Variant(),
		Summary:        content.Summary(),
	}, nil
}

// persist stores the message with a fresh time-ordered id and a creation time that never
// goes backwards within the room. A file reference is attached in the same transaction.
func (h *Hub) persist(ctx context.Context, st *roomState, r SendRequest, content Content, reply *ReplyPreview) (MessageView, error) {
	if !st.loaded {
		last, err := h.store.LastMessageTime(ctx, r.RoomID)
		if err != nil {
			return MessageView{}, errs.Store(err)
		}
		st.lastTime, st.loaded = last, true
	}
	createdAt := max(h.clock.Now().UnixMilli(), st.lastTime+1)

	contentJSON, err := json.Marshal(content)
	if err != nil {
		return MessageView{}, errs.NewError(errs.ErrUnknown, err)
	}
	payload, err := json.Marshal(storedPayload{Content: contentJSON, Reply: reply})
	if err != nil {
		return MessageView{}, errs.NewError(errs.ErrUnknown, err)
	}

	arg := db.InsertMessageParams{
		RoomID:     r.RoomID,
		SenderUID:  r.Sender.UID,
		SenderKind: string(r.Sender.Kind),
		Variant:    string(content.Variant()),
		Payload:    string(payload),
		SearchText: html.UnescapeString(content.searchText()), // keywords match what users typed
		CreatedAt:  createdAt,
	}
	if reply != nil {
		arg.ReplyToID = sql.NullString{String: reply.ID, Valid: true}
	}
	fc, isFile := content.(*FileContent)
	if isFile {
		arg.FileID = sql.NullString{String: fc.FileID, Valid: true}
	}

	for attempt := 1; ; attempt++ {
		id, err := randx.MessageID()
		if err != nil {
			return MessageView{}, errs.NewError(errs.ErrUnknown, err)
		}
		arg.ID = id

		err = h.store.InTx(ctx, func(q *db.Queries) error {
			if err := q.InsertMessage(ctx, arg); err != nil {
				return err
			}
			if !isFile {
				return nil
			}
			n, err := q.AttachFile(ctx, fc.FileID, id)
			if err != nil {
				return err
			}
			if n == 0 {
				return errs.NewError(errs.ErrFileAlreadyAttached)
			}
			return nil
		})
		if err == nil {
			break
		}
		if !db.IsUniqueViolation(err) {
			return MessageView{}, errs.Store(err)
		}
		if attempt == idAttempts {
			return MessageView{}, errs.NewError(errs.ErrIdentifierConflict)
		}
		h.logger.Warn().Str("room_id", r.RoomID).Int("attempt", attempt).Msg("Message id collision, retrying.")
	}

	st.lastTime = createdAt

	return MessageView{
		ID:     arg.ID,
		RoomID: r.RoomID,
		Sender: SenderView{
			UID:      r.Sender.UID,
			Nickname: r.Sender.Nickname,
			Avatar:   r.Sender.AvatarRef,
			Kind:     r.Sender.Kind,
		},
		Content:   content,
		ReplyTo:   reply,
		CreatedAt: createdAt,
	}, nil
}

// Delete removes one message. The sender or a room admin may delete it. Replies are
// orphaned rather than removed, an attached file is released, and the row is deleted,
// all in one transaction.
func (h *Hub) Delete(ctx context.Context, messageID, requesterUID string) error {
	msg, err := h.store.GetMessage(ctx, messageID)
	if err != nil {
		if db.IsNotFound(err) {
			return errs.NewError(errs.ErrMessageNotFound)
		}
		return errs.Store(err)
	}

	if msg.SenderUID != requesterUID {
		isAdmin, err := h.moderation.CheckAdmin(ctx, requesterUID, msg.RoomID)
		if err != nil {
			return err
		}
		if !isAdmin {
			return errs.NewError(errs.ErrForbidden)
		}
	}

	st := h.lockRoom(msg.RoomID)
	defer st.mu.Unlock()

	err = h.store.InTx(ctx, func(q *db.Queries) error {
		return deleteMessage(ctx, q, msg.Message)
	})
	if err != nil {
		return errs.Store(err)
	}

	h.emit(msg.RoomID, EventMessageDeleted, MessageDeletedPayload{
		RoomID:    msg.RoomID,
		IDs:       []string{msg.ID},
		DeletedBy: requesterUID,
	}, "")

	if msg.FileID.Valid {
		h.removeFiles([]string{msg.FileID.String})
	}

	h.logger.Info().Str("room_id", msg.RoomID).Str("message_id", msg.ID).Str("requester_uid", requesterUID).Msg("Message deleted.")
	return nil
}

// DeleteByUser removes every live message targetUID sent in roomID. Admins only. Messages
// sent by the room creator are never included, whoever asks.
func (h *Hub) DeleteByUser(ctx context.Context, roomID, targetUID, requesterUID string) ([]string, error) {
	if _, err := h.moderation.RequireRole(ctx, roomID, requesterUID, moderation.RoleAdmin); err != nil {
		return nil, err
	}

	st := h.lockRoom(roomID)
	defer st.mu.Unlock()

	var deleted []db.Message
	err := h.store.InTx(ctx, func(q *db.Queries) error {
		msgs, err := q.ListMessagesBySender(ctx, roomID, targetUID)
		if err != nil {
			return err
		}
		for _, m := range msgs {
			if err := deleteMessage(ctx, q, m); err != nil {
				return err
			}
		}
		deleted = msgs
		return nil
	})
	if err != nil {
		return nil, errs.Store(err)
	}

	ids := lo.Map(deleted, func(m db.Message, _ int) string { return m.ID })
	if len(ids) == 0 {
		return ids, nil
	}

	h.emit(roomID, EventMessageDeleted, MessageDeletedPayload{RoomID: roomID, IDs: ids, DeletedBy: requesterUID}, "")

	h.removeFiles(lo.FilterMap(deleted, func(m db.Message, _ int) (string, bool) {
		return m.FileID.String, m.FileID.Valid
	}))

	h.logger.Info().
		Str("room_id", roomID).
		Str("target_uid", targetUID).
		Str("requester_uid", requesterUID).
		Int("deleted", len(ids)).
		Msg("Messages deleted by user.")
	return ids, nil
}

// deleteMessage orphans replies, releases an attached file and removes the row.
func deleteMessage(ctx context.Context, q *db.Queries, m db.Message) error {
	if _, err := q.ClearReplyReferences(ctx, m.ID); err != nil {
		return err
	}
	if m.FileID.Valid {
		if _, err := q.ReleaseFile(ctx, m.FileID.String); err != nil {
			return err
		}
	}
	n, err := q.DeleteMessage(ctx, m.ID)
	if err != nil {
		return err
	}
	if n == 0 {
		return errs.NewError(errs.ErrMessageNotFound)
	}
	return nil
}

// decodeStored parses a persisted payload.
func decodeStored(variant, payload string) (Content, *ReplyPreview, error) {
	var sp storedPayload
	if err := json.Unmarshal([]byte(payload), &sp); err != nil {
		return nil, nil, err
	}

	c := newContent(Variant(variant))
	if c == nil {
		return nil, nil, errs.NewError(errs.ErrUnsupportedVariant)
	}
	if len(sp.Content) > 0 {
		if err := json.Unmarshal(sp.Content, c); err != nil {
			return nil, nil, err
		}
	}
	return c, sp.Reply, nil
}
