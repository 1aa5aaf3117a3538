package db

import "context"

const muteColumns = `id, room_id, target_uid, muted_by, reason, mute_until, active, created_at`

func scanMute(row interface{ Scan(...any) error }) (Mute, error) {
	var m Mute
	err := row.Scan(&m.ID, &m.RoomID, &m.TargetUID, &m.MutedBy, &m.Reason, &m.MuteUntil, &m.Active, &m.CreatedAt)
	return m, err
}

const insertMute = `INSERT INTO mutes (id, room_id, target_uid, muted_by, reason, mute_until, active, created_at)
VALUES ($1, $2, $3, $4, $5, $6, TRUE, $7)`

func (q *Queries) InsertMute(ctx context.Context, m Mute) error {
	_, err := q.db.ExecContext(ctx, insertMute, m.ID, m.RoomID, m.TargetUID, m.MutedBy, m.Reason, m.MuteUntil, m.CreatedAt)
	return err
}

const getCurrentMute = `SELECT ` + muteColumns + ` FROM mutes
WHERE room_id = $1 AND target_uid = $2 AND active
ORDER BY created_at DESC, id DESC
LIMIT 1`

// GetCurrentMute returns the most recently created active mute record for target in room.
func (q *Queries) GetCurrentMute(ctx context.Context, roomID, targetUID string) (Mute, error) {
	return scanMute(q.db.QueryRowContext(ctx, getCurrentMute, roomID, targetUID))
}

const listActiveMutes = `SELECT ` + muteColumns + ` FROM mutes
WHERE room_id = $1 AND active
ORDER BY created_at DESC, id DESC`

// ListActiveMutes returns every active record of a room, newest first.
func (q *Queries) ListActiveMutes(ctx context.Context, roomID string) ([]Mute, error) {
	rows, err := q.db.QueryContext(ctx, listActiveMutes, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Mute
	for rows.Next() {
		m, err := scanMute(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	return items, rows.Err()
}

const deactivateMutes = `UPDATE mutes SET active = FALSE WHERE room_id = $1 AND target_uid = $2 AND active`

func (q *Queries) DeactivateMutes(ctx context.Context, roomID, targetUID string) (int64, error) {
	return affected(q.db.ExecContext(ctx, deactivateMutes, roomID, targetUID))
}

const latestMuteUntil = `SELECT COALESCE(MAX(m.mute_until), 0) FROM mutes m
WHERE m.target_uid = $1 AND m.active AND m.mute_until > $2
AND NOT EXISTS (
	SELECT 1 FROM mutes n
	WHERE n.room_id = m.room_id AND n.target_uid = m.target_uid AND n.active
	AND (n.created_at > m.created_at OR (n.created_at = m.created_at AND n.id > m.id))
)`

// LatestMuteUntil returns the furthest deadline among target's current, unexpired mutes
// across all rooms, or 0 when none is in force at now.
func (q *Queries) LatestMuteUntil(ctx context.Context, targetUID string, now int64) (int64, error) {
	var until int64
	err := q.db.QueryRowContext(ctx, latestMuteUntil, targetUID, now).Scan(&until)
	return until, err
}

const restampMute = `UPDATE mutes SET created_at = $2, mute_until = $3 WHERE id = $1`

// RestampMute restarts a mute at createdAt, keeping it active until muteUntil.
func (q *Queries) RestampMute(ctx context.Context, id string, createdAt, muteUntil int64) error {
	_, err := q.db.ExecContext(ctx, restampMute, id, createdAt, muteUntil)
	return err
}

const grantAdmin = `INSERT INTO admins (room_id, uid, granted_by, created_at) VALUES ($1, $2, $3, $4)
ON CONFLICT (room_id, uid) DO NOTHING`

func (q *Queries) GrantAdmin(ctx context.Context, g AdminGrant) error {
	_, err := q.db.ExecContext(ctx, grantAdmin, g.RoomID, g.UID, g.GrantedBy, g.CreatedAt)
	return err
}

const revokeAdmin = `DELETE FROM admins WHERE room_id = $1 AND uid = $2`

func (q *Queries) RevokeAdmin(ctx context.Context, roomID, uid string) (int64, error) {
	return affected(q.db.ExecContext(ctx, revokeAdmin, roomID, uid))
}

const hasAdminGrant = `SELECT COUNT(*) FROM admins WHERE room_id = $1 AND uid = $2`

func (q *Queries) HasAdminGrant(ctx context.Context, roomID, uid string) (bool, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, hasAdminGrant, roomID, uid).Scan(&n)
	return n > 0, err
}

const listAdmins = `SELECT room_id, uid, granted_by, created_at FROM admins WHERE room_id = $1 ORDER BY created_at ASC, uid ASC`

func (q *Queries) ListAdmins(ctx context.Context, roomID string) ([]AdminGrant, error) {
	rows, err := q.db.QueryContext(ctx, listAdmins, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []AdminGrant
	for rows.Next() {
		var g AdminGrant
		if err := rows.Scan(&g.RoomID, &g.UID, &g.GrantedBy, &g.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, g)
	}
	return items, rows.Err()
}
