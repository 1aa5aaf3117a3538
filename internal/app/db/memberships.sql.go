package db

import "context"

const upsertMembership = `INSERT INTO memberships (room_id, uid, status, join_time, last_active)
VALUES ($1, $2, $3, $4, $4)
ON CONFLICT (room_id, uid) DO UPDATE SET status = excluded.status, join_time = excluded.join_time, last_active = excluded.last_active`

// UpsertMembership creates the (room, uid) membership or transitions the existing one.
func (q *Queries) UpsertMembership(ctx context.Context, roomID, uid, status string, now int64) error {
	_, err := q.db.ExecContext(ctx, upsertMembership, roomID, uid, status, now)
	return err
}

const setMembershipStatus = `UPDATE memberships SET status = $3, last_active = $4 WHERE room_id = $1 AND uid = $2`

func (q *Queries) SetMembershipStatus(ctx context.Context, roomID, uid, status string, now int64) (int64, error) {
	return affected(q.db.ExecContext(ctx, setMembershipStatus, roomID, uid, status, now))
}

const getMembership = `SELECT room_id, uid, status, join_time, last_active FROM memberships WHERE room_id = $1 AND uid = $2`

func (q *Queries) GetMembership(ctx context.Context, roomID, uid string) (Membership, error) {
	var m Membership
	err := q.db.QueryRowContext(ctx, getMembership, roomID, uid).
		Scan(&m.RoomID, &m.UID, &m.Status, &m.JoinTime, &m.LastActive)
	return m, err
}

const listMembers = `SELECT m.room_id, m.uid, m.status, m.join_time, m.last_active,
       COALESCE(p.nickname, ''), COALESCE(p.avatar_ref, ''), COALESCE(p.kind, '')
FROM memberships m
LEFT JOIN principals p ON p.uid = m.uid
WHERE m.room_id = $1 AND m.status <> 'left'
ORDER BY m.join_time ASC, m.uid ASC`

// ListMembers returns the room's non-departed members in join order.
func (q *Queries) ListMembers(ctx context.Context, roomID string) ([]MemberRow, error) {
	rows, err := q.db.QueryContext(ctx, listMembers, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []MemberRow
	for rows.Next() {
		var m MemberRow
		if err := rows.Scan(&m.RoomID, &m.UID, &m.Status, &m.JoinTime, &m.LastActive,
			&m.Nickname, &m.AvatarRef, &m.Kind); err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	return items, rows.Err()
}

const resetOnlineMemberships = `UPDATE memberships SET status = 'offline' WHERE status = 'online'`

// ResetOnlineMemberships marks every online membership offline. Presence is empty after
// a restart, so leftover "online" rows only describe connections that no longer exist.
func (q *Queries) ResetOnlineMemberships(ctx context.Context) (int64, error) {
	return affected(q.db.ExecContext(ctx, resetOnlineMemberships))
}
