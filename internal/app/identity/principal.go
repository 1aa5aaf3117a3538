/*
Package identity turns bearer credentials into live principals.

Claims in a credential are never trusted on their own: every resolution re-reads the
principal from the durable store, so deactivation and anonymous session expiry take
effect on the next connection.
*/
package identity

import (
	"time"

	"roomchat/internal/app/db"
)

// Kind distinguishes persistent users from session-scoped anonymous principals.
type Kind string

const (
	KindUser      Kind = "user"
	KindAnonymous Kind = "anonymous"
)

// Principal is an authenticated actor.
type Principal struct {
	UID       string    `json:"uid"`
	Nickname  string    `json:"nickname"`
	AvatarRef string    `json:"avatar,omitempty"`
	Kind      Kind      `json:"kind"`
	JoinTime  time.Time `json:"-"`
	MuteUntil time.Time `json:"-"`
}

// IsAnonymous reports whether p is a session-scoped anonymous principal.
func (p Principal) IsAnonymous() bool {
	return p.Kind == KindAnonymous
}

// FromRow converts a durable principal row.
func FromRow(row db.Principal) Principal {
	p := Principal{
		UID:       row.UID,
		Nickname:  row.Nickname,
		AvatarRef: row.AvatarRef,
		Kind:      Kind(row.Kind),
		JoinTime:  time.UnixMilli(row.JoinTime),
	}
	if row.MuteUntil > 0 {
		p.MuteUntil = time.UnixMilli(row.MuteUntil)
	}
	return p
}
