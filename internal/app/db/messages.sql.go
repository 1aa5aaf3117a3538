package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

const messageColumns = `m.id, m.room_id, m.sender_uid, m.sender_kind, m.variant, m.payload, m.search_text,
       m.reply_to_id, m.file_id, m.created_at, m.deleted_at`

func scanMessage(row interface{ Scan(...any) error }, extra ...any) (Message, error) {
	var m Message
	dest := []any{&m.ID, &m.RoomID, &m.SenderUID, &m.SenderKind, &m.Variant, &m.Payload, &m.SearchText,
		&m.ReplyToID, &m.FileID, &m.CreatedAt, &m.DeletedAt}
	err := row.Scan(append(dest, extra...)...)
	return m, err
}

type InsertMessageParams struct {
	ID         string
	RoomID     string
	SenderUID  string
	SenderKind string
	Variant    string
	Payload    string
	SearchText string
	ReplyToID  sql.NullString
	FileID     sql.NullString
	CreatedAt  int64
}

const insertMessage = `INSERT INTO messages (id, room_id, sender_uid, sender_kind, variant, payload, search_text, reply_to_id, file_id, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

func (q *Queries) InsertMessage(ctx context.Context, arg InsertMessageParams) error {
	_, err := q.db.ExecContext(ctx, insertMessage, arg.ID, arg.RoomID, arg.SenderUID, arg.SenderKind,
		arg.Variant, arg.Payload, arg.SearchText, arg.ReplyToID, arg.FileID, arg.CreatedAt)
	return err
}

const getMessage = `SELECT ` + messageColumns + `, COALESCE(p.nickname, ''), COALESCE(p.avatar_ref, '')
FROM messages m LEFT JOIN principals p ON p.uid = m.sender_uid
WHERE m.id = $1 AND m.deleted_at IS NULL`

// GetMessage loads a live (not retired) message with its sender's display fields.
func (q *Queries) GetMessage(ctx context.Context, id string) (MessageRow, error) {
	var r MessageRow
	m, err := scanMessage(q.db.QueryRowContext(ctx, getMessage, id), &r.SenderNickname, &r.SenderAvatar)
	r.Message = m
	return r, err
}

const clearReplyReferences = `UPDATE messages SET reply_to_id = NULL WHERE reply_to_id = $1`

// ClearReplyReferences orphans every reply pointing at id.
func (q *Queries) ClearReplyReferences(ctx context.Context, id string) (int64, error) {
	return affected(q.db.ExecContext(ctx, clearReplyReferences, id))
}

const deleteMessage = `DELETE FROM messages WHERE id = $1`

func (q *Queries) DeleteMessage(ctx context.Context, id string) (int64, error) {
	return affected(q.db.ExecContext(ctx, deleteMessage, id))
}

const listMessagesBySender = `SELECT ` + messageColumns + `
FROM messages m
JOIN rooms r ON r.room_id = m.room_id
WHERE m.room_id = $1 AND m.sender_uid = $2 AND m.sender_uid <> r.creator_uid AND m.deleted_at IS NULL
ORDER BY m.created_at ASC, m.id ASC`

// ListMessagesBySender returns a sender's live messages in a room. Messages sent by the
// room creator are never returned, whoever asks.
func (q *Queries) ListMessagesBySender(ctx context.Context, roomID, senderUID string) ([]Message, error) {
	return q.listMessages(ctx, listMessagesBySender, roomID, senderUID)
}

type ListMessagesParams struct {
	RoomID string
	Query  string
	Limit  int
	Offset int
}

// ListRoomMessages returns a page of live messages newest first, optionally filtered by a
// case-insensitive keyword over the searchable text.
func (q *Queries) ListRoomMessages(ctx context.Context, arg ListMessagesParams) ([]MessageRow, error) {
	stmt := `SELECT ` + messageColumns + `, COALESCE(p.nickname, ''), COALESCE(p.avatar_ref, '')
FROM messages m LEFT JOIN principals p ON p.uid = m.sender_uid
WHERE m.room_id = $1 AND m.deleted_at IS NULL`
	args := []any{arg.RoomID}

	if arg.Query != "" {
		stmt += ` AND LOWER(m.search_text) LIKE $2 ESCAPE '\'`
		args = append(args, "%"+escapeLike(strings.ToLower(arg.Query))+"%")
	}
	stmt += fmt.Sprintf(` ORDER BY m.created_at DESC, m.id DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, arg.Limit, arg.Offset)

	rows, err := q.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []MessageRow
	for rows.Next() {
		var r MessageRow
		m, err := scanMessage(rows, &r.SenderNickname, &r.SenderAvatar)
		if err != nil {
			return nil, err
		}
		r.Message = m
		items = append(items, r)
	}
	return items, rows.Err()
}

// CountRoomMessages counts live messages matching the same filter as ListRoomMessages.
func (q *Queries) CountRoomMessages(ctx context.Context, roomID, query string) (int64, error) {
	stmt := `SELECT COUNT(*) FROM messages m WHERE m.room_id = $1 AND m.deleted_at IS NULL`
	args := []any{roomID}
	if query != "" {
		stmt += ` AND LOWER(m.search_text) LIKE $2 ESCAPE '\'`
		args = append(args, "%"+escapeLike(strings.ToLower(query))+"%")
	}

	var n int64
	err := q.db.QueryRowContext(ctx, stmt, args...).Scan(&n)
	return n, err
}

const lastMessageTime = `SELECT COALESCE(MAX(created_at), 0) FROM messages WHERE room_id = $1`

func (q *Queries) LastMessageTime(ctx context.Context, roomID string) (int64, error) {
	var ts int64
	err := q.db.QueryRowContext(ctx, lastMessageTime, roomID).Scan(&ts)
	return ts, err
}

const retireRoomMessages = `UPDATE messages SET deleted_at = $2 WHERE room_id = $1 AND deleted_at IS NULL`

// RetireRoomMessages soft-deletes every live message of a room; the retention sweep purges them later.
func (q *Queries) RetireRoomMessages(ctx context.Context, roomID string, now int64) (int64, error) {
	return affected(q.db.ExecContext(ctx, retireRoomMessages, roomID, now))
}

const listRetiredBefore = `SELECT ` + messageColumns + `
FROM messages m
WHERE m.deleted_at IS NOT NULL AND m.deleted_at < $1
ORDER BY m.deleted_at ASC, m.id ASC
LIMIT $2`

// ListRetiredBefore returns up to limit retired messages whose retirement predates cutoff.
func (q *Queries) ListRetiredBefore(ctx context.Context, cutoff int64, limit int) ([]Message, error) {
	return q.listMessages(ctx, listRetiredBefore, cutoff, limit)
}

func (q *Queries) listMessages(ctx context.Context, stmt string, args ...any) ([]Message, error) {
	rows, err := q.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	return items, rows.Err()
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
