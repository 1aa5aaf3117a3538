package db

import (
	"context"
)

const principalColumns = `uid, kind, nickname, avatar_ref, active, join_time, mute_until, created_at`

func scanPrincipal(row interface{ Scan(...any) error }) (Principal, error) {
	var p Principal
	err := row.Scan(&p.UID, &p.Kind, &p.Nickname, &p.AvatarRef, &p.Active, &p.JoinTime, &p.MuteUntil, &p.CreatedAt)
	return p, err
}

type CreatePrincipalParams struct {
	UID       string
	Kind      string
	Nickname  string
	AvatarRef string
	JoinTime  int64
}

const createPrincipal = `INSERT INTO principals (uid, kind, nickname, avatar_ref, active, join_time, mute_until, created_at)
VALUES ($1, $2, $3, $4, TRUE, $5, 0, $5)`

func (q *Queries) CreatePrincipal(ctx context.Context, arg CreatePrincipalParams) error {
	_, err := q.db.ExecContext(ctx, createPrincipal, arg.UID, arg.Kind, arg.Nickname, arg.AvatarRef, arg.JoinTime)
	return err
}

const getPrincipal = `SELECT ` + principalColumns + ` FROM principals WHERE uid = $1`

func (q *Queries) GetPrincipal(ctx context.Context, uid string) (Principal, error) {
	return scanPrincipal(q.db.QueryRowContext(ctx, getPrincipal, uid))
}

// GetPrincipals loads several principals at once; missing uids are simply absent.
func (q *Queries) GetPrincipals(ctx context.Context, uids []string) ([]Principal, error) {
	if len(uids) == 0 {
		return nil, nil
	}

	args := make([]any, len(uids))
	for i, uid := range uids {
		args[i] = uid
	}

	rows, err := q.db.QueryContext(ctx,
		`SELECT `+principalColumns+` FROM principals WHERE uid IN (`+placeholders(1, len(uids))+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Principal
	for rows.Next() {
		p, err := scanPrincipal(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

const reactivateAnonymous = `UPDATE principals SET active = TRUE, join_time = $2, nickname = $3
WHERE uid = $1 AND kind = 'anonymous'`

func (q *Queries) ReactivateAnonymous(ctx context.Context, uid string, joinTime int64, nickname string) (int64, error) {
	return affected(q.db.ExecContext(ctx, reactivateAnonymous, uid, joinTime, nickname))
}

const deactivatePrincipal = `UPDATE principals SET active = FALSE WHERE uid = $1 AND active`

func (q *Queries) DeactivatePrincipal(ctx context.Context, uid string) (int64, error) {
	return affected(q.db.ExecContext(ctx, deactivatePrincipal, uid))
}

const setPrincipalMuteUntil = `UPDATE principals SET mute_until = $2 WHERE uid = $1`

func (q *Queries) SetPrincipalMuteUntil(ctx context.Context, uid string, muteUntil int64) error {
	_, err := q.db.ExecContext(ctx, setPrincipalMuteUntil, uid, muteUntil)
	return err
}

const expireAnonymousBefore = `UPDATE principals SET active = FALSE
WHERE kind = 'anonymous' AND active AND join_time < $1`

// ExpireAnonymousBefore deactivates anonymous principals that joined before cutoff.
func (q *Queries) ExpireAnonymousBefore(ctx context.Context, cutoff int64) (int64, error) {
	return affected(q.db.ExecContext(ctx, expireAnonymousBefore, cutoff))
}
