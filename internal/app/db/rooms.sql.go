package db

import (
	"context"
	"database/sql"
)

const roomColumns = `room_id, name, password_hash, creator_uid, active, created_at`

func scanRoom(row interface{ Scan(...any) error }) (Room, error) {
	var r Room
	err := row.Scan(&r.RoomID, &r.Name, &r.PasswordHash, &r.CreatorUID, &r.Active, &r.CreatedAt)
	return r, err
}

type CreateRoomParams struct {
	RoomID       string
	Name         string
	PasswordHash sql.NullString
	CreatorUID   string
	CreatedAt    int64
}

const createRoom = `INSERT INTO rooms (room_id, name, password_hash, creator_uid, active, created_at)
VALUES ($1, $2, $3, $4, TRUE, $5)`

func (q *Queries) CreateRoom(ctx context.Context, arg CreateRoomParams) error {
	_, err := q.db.ExecContext(ctx, createRoom, arg.RoomID, arg.Name, arg.PasswordHash, arg.CreatorUID, arg.CreatedAt)
	return err
}

const getRoom = `SELECT ` + roomColumns + ` FROM rooms WHERE room_id = $1`

func (q *Queries) GetRoom(ctx context.Context, roomID string) (Room, error) {
	return scanRoom(q.db.QueryRowContext(ctx, getRoom, roomID))
}

const updateRoomName = `UPDATE rooms SET name = $2 WHERE room_id = $1 AND active`

func (q *Queries) UpdateRoomName(ctx context.Context, roomID, name string) (int64, error) {
	return affected(q.db.ExecContext(ctx, updateRoomName, roomID, name))
}

const closeRoom = `UPDATE rooms SET active = FALSE WHERE room_id = $1 AND active`

func (q *Queries) CloseRoom(ctx context.Context, roomID string) (int64, error) {
	return affected(q.db.ExecContext(ctx, closeRoom, roomID))
}
