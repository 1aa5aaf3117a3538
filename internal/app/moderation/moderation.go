/*
Package moderation is the single source of truth for per-room roles and mutes.

Every component that needs to know whether an actor may do something in a room asks
this package, so creator, admin and mute answers are consistent everywhere.
*/
package moderation

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"roomchat/internal/app/db"
	"roomchat/internal/pkg/errs"
	"roomchat/internal/pkg/logx"
	"roomchat/internal/pkg/randx"
)

// Role orders moderation privileges within a room.
type Role int

const (
	RoleNormal Role = iota
	RoleAdmin
	RoleCreator
)

func (r Role) String() string {
	switch r {
	case RoleCreator:
		return "creator"
	case RoleAdmin:
		return "admin"
	default:
		return "normal"
	}
}

const (
	// MaxMuteDuration caps a single mute.
	MaxMuteDuration = 30 * 24 * time.Hour

	// MaxReasonLength bounds mute reasons, in characters.
	MaxReasonLength = 200
)

// MuteStatus is the answer to "is uid muted in room right now".
type MuteStatus struct {
	IsMuted   bool          `json:"isMuted"`
	MuteUntil time.Time     `json:"muteUntil,omitzero"`
	Remaining time.Duration `json:"-"`
	Reason    string        `json:"reason,omitempty"`
	MutedBy   string        `json:"mutedBy,omitempty"`
}

// RemainingMs is Remaining in whole milliseconds.
func (m MuteStatus) RemainingMs() int64 {
	return m.Remaining.Milliseconds()
}

// Flags decorate a principal in online lists and message views.
type Flags struct {
	IsCreator bool `json:"isCreator"`
	IsAdmin   bool `json:"isAdmin"`
	IsMuted   bool `json:"isMuted"`
}

// MuteParams describes a mute request.
type MuteParams struct {
	RoomID    string
	ActorUID  string
	TargetUID string
	Duration  time.Duration
	Reason    string
}

// Service answers role and mute queries and applies moderation actions.
type Service struct {
	store  *db.Store
	clock  clockwork.Clock
	logger zerolog.Logger
}

func NewService(store *db.Store, clock clockwork.Clock) *Service {
	return &Service{store: store, clock: clock, logger: logx.Component("Moderation")}
}

func (s *Service) room(ctx context.Context, roomID string) (db.Room, error) {
	r, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		if db.IsNotFound(err) {
			return db.Room{}, errs.NewError(errs.ErrRoomNotFound)
		}
		return db.Room{}, errs.Store(err)
	}
	return r, nil
}

// RoleOf returns uid's role in roomID.
func (s *Service) RoleOf(ctx context.Context, roomID, uid string) (Role, error) {
	r, err := s.room(ctx, roomID)
	if err != nil {
		return RoleNormal, err
	}
	if r.CreatorUID == uid {
		return RoleCreator, nil
	}

	ok, err := s.store.HasAdminGrant(ctx, roomID, uid)
	if err != nil {
		return RoleNormal, errs.Store(err)
	}
	if ok {
		return RoleAdmin, nil
	}
	return RoleNormal, nil
}

// CheckAdmin reports whether uid holds admin rights in roomID. The creator always does.
func (s *Service) CheckAdmin(ctx context.Context, uid, roomID string) (bool, error) {
	role, err := s.RoleOf(ctx, roomID, uid)
	return role >= RoleAdmin, err
}

// CheckCreator reports whether uid created roomID.
func (s *Service) CheckCreator(ctx context.Context, uid, roomID string) (bool, error) {
	r, err := s.room(ctx, roomID)
	if err != nil {
		return false, err
	}
	return r.CreatorUID == uid, nil
}

// RequireRole fails with ErrForbidden unless uid holds at least min in roomID.
func (s *Service) RequireRole(ctx context.Context, roomID, uid string, min Role) (Role, error) {
	role, err := s.RoleOf(ctx, roomID, uid)
	if err != nil {
		return role, err
	}
	if role < min {
		return role, errs.NewError(errs.ErrForbidden)
	}
	return role, nil
}

// CheckMuted reads the current mute of uid in roomID: the most recently created active record.
func (s *Service) CheckMuted(ctx context.Context, roomID, uid string) (MuteStatus, error) {
	m, err := s.store.GetCurrentMute(ctx, roomID, uid)
	if err != nil {
		if db.IsNotFound(err) {
			return MuteStatus{}, nil
		}
		return MuteStatus{}, errs.Store(err)
	}
	return s.statusOf(m), nil
}

func (s *Service) statusOf(m db.Mute) MuteStatus {
	until := time.UnixMilli(m.MuteUntil)
	remaining := until.Sub(s.clock.Now())
	if !m.Active || remaining <= 0 {
		return MuteStatus{}
	}
	return MuteStatus{
		IsMuted:   true,
		MuteUntil: until,
		Remaining: remaining,
		Reason:    m.Reason,
		MutedBy:   m.MutedBy,
	}
}

// Flags computes creator, admin and mute flags for several uids of one room.
func (s *Service) Flags(ctx context.Context, roomID string, uids []string) (map[string]Flags, error) {
	r, err := s.room(ctx, roomID)
	if err != nil {
		return nil, err
	}

	admins, err := s.store.ListAdmins(ctx, roomID)
	if err != nil {
		return nil, errs.Store(err)
	}
	mutes, err := s.store.ListActiveMutes(ctx, roomID)
	if err != nil {
		return nil, errs.Store(err)
	}

	adminSet := lo.SliceToMap(admins, func(g db.AdminGrant) (string, struct{}) { return g.UID, struct{}{} })
	// ListActiveMutes is newest first, so the first record per target is the current one.
	current := lo.KeyBy(lo.UniqBy(mutes, func(m db.Mute) string { return m.TargetUID }),
		func(m db.Mute) string { return m.TargetUID })

	out := make(map[string]Flags, len(uids))
	for _, uid := range uids {
		_, isAdmin := adminSet[uid]
		isCreator := r.CreatorUID == uid
		f := Flags{IsCreator: isCreator, IsAdmin: isAdmin || isCreator}
		if m, ok := current[uid]; ok {
			f.IsMuted = s.statusOf(m).IsMuted
		}
		out[uid] = f
	}
	return out, nil
}

// Mute restricts target from sending in the room. Any admin or the creator may mute any
// non-creator target. Earlier active records are left in place.
func (s *Service) Mute(ctx context.Context, p MuteParams) (db.Mute, error) {
	p.Reason = strings.TrimSpace(p.Reason)
	if p.Duration <= 0 || p.Duration > MaxMuteDuration || utf8.RuneCountInString(p.Reason) > MaxReasonLength {
		return db.Mute{}, errs.NewError(errs.ErrInvalidMute)
	}
	if p.ActorUID == p.TargetUID {
		return db.Mute{}, errs.NewError(errs.ErrCannotTargetSelf)
	}

	if _, err := s.RequireRole(ctx, p.RoomID, p.ActorUID, RoleAdmin); err != nil {
		return db.Mute{}, err
	}
	if err := s.guardCreator(ctx, p.RoomID, p.TargetUID); err != nil {
		return db.Mute{}, err
	}

	now := s.clock.Now()
	m := db.Mute{
		ID:        randx.ID(),
		RoomID:    p.RoomID,
		TargetUID: p.TargetUID,
		MutedBy:   p.ActorUID,
		Reason:    p.Reason,
		MuteUntil: now.Add(p.Duration).UnixMilli(),
		Active:    true,
		CreatedAt: now.UnixMilli(),
	}

	err := s.store.InTx(ctx, func(q *db.Queries) error {
		if err := q.InsertMute(ctx, m); err != nil {
			return err
		}
		return s.syncPrincipalMute(ctx, q, p.TargetUID)
	})
	if err != nil {
		return db.Mute{}, errs.Store(err)
	}

	s.logger.Info().
		Str("room_id", p.RoomID).
		Str("target_uid", p.TargetUID).
		Str("actor_uid", p.ActorUID).
		Dur("duration", p.Duration).
		Msg("Principal muted.")
	return m, nil
}

// syncPrincipalMute mirrors the furthest deadline of uid's mutes still in force in any room
// onto anonymous principals, which carry it across reactivation.
func (s *Service) syncPrincipalMute(ctx context.Context, q *db.Queries, uid string) error {
	p, err := q.GetPrincipal(ctx, uid)
	if err != nil {
		if db.IsNotFound(err) {
			return nil
		}
		return err
	}
	if p.Kind != "anonymous" {
		return nil
	}

	until, err := q.LatestMuteUntil(ctx, uid, s.clock.Now().UnixMilli())
	if err != nil {
		return err
	}
	return q.SetPrincipalMuteUntil(ctx, uid, until)
}

func (s *Service) guardCreator(ctx context.Context, roomID, targetUID string) error {
	isCreator, err := s.CheckCreator(ctx, targetUID, roomID)
	if err != nil {
		return err
	}
	if isCreator {
		return errs.NewError(errs.ErrCannotTargetCreator)
	}
	return nil
}

// Unmute deactivates every active mute record of target in the room.
func (s *Service) Unmute(ctx context.Context, roomID, actorUID, targetUID string) error {
	if _, err := s.RequireRole(ctx, roomID, actorUID, RoleAdmin); err != nil {
		return err
	}

	err := s.store.InTx(ctx, func(q *db.Queries) error {
		if _, err := q.DeactivateMutes(ctx, roomID, targetUID); err != nil {
			return err
		}
		return s.syncPrincipalMute(ctx, q, targetUID)
	})
	if err != nil {
		return errs.Store(err)
	}

	s.logger.Info().Str("room_id", roomID).Str("target_uid", targetUID).Str("actor_uid", actorUID).Msg("Principal unmuted.")
	return nil
}

// SetAdmin grants admin rights. Only the creator may grant.
func (s *Service) SetAdmin(ctx context.Context, roomID, actorUID, targetUID string) error {
	if err := s.creatorActingOnOther(ctx, roomID, actorUID, targetUID); err != nil {
		return err
	}

	err := s.store.GrantAdmin(ctx, db.AdminGrant{
		RoomID:    roomID,
		UID:       targetUID,
		GrantedBy: actorUID,
		CreatedAt: s.clock.Now().UnixMilli(),
	})
	if err != nil {
		return errs.Store(err)
	}

	s.logger.Info().Str("room_id", roomID).Str("target_uid", targetUID).Msg("Admin granted.")
	return nil
}

// RevokeAdmin removes admin rights. Only the creator may revoke.
func (s *Service) RevokeAdmin(ctx context.Context, roomID, actorUID, targetUID string) error {
	if err := s.creatorActingOnOther(ctx, roomID, actorUID, targetUID); err != nil {
		return err
	}

	if _, err := s.store.RevokeAdmin(ctx, roomID, targetUID); err != nil {
		return errs.Store(err)
	}

	s.logger.Info().Str("room_id", roomID).Str("target_uid", targetUID).Msg("Admin revoked.")
	return nil
}

// Kick removes target from the room: membership becomes left, any admin grant is revoked
// and every mute record is cleared. Only the creator may kick, and never themselves.
func (s *Service) Kick(ctx context.Context, roomID, actorUID, targetUID string) error {
	if err := s.creatorActingOnOther(ctx, roomID, actorUID, targetUID); err != nil {
		return err
	}

	now := s.clock.Now().UnixMilli()
	err := s.store.InTx(ctx, func(q *db.Queries) error {
		if _, err := q.SetMembershipStatus(ctx, roomID, targetUID, db.MembershipLeft, now); err != nil {
			return err
		}
		if _, err := q.RevokeAdmin(ctx, roomID, targetUID); err != nil {
			return err
		}
		if _, err := q.DeactivateMutes(ctx, roomID, targetUID); err != nil {
			return err
		}
		return s.syncPrincipalMute(ctx, q, targetUID)
	})
	if err != nil {
		return errs.Store(err)
	}

	s.logger.Info().Str("room_id", roomID).Str("target_uid", targetUID).Msg("Principal kicked.")
	return nil
}

func (s *Service) creatorActingOnOther(ctx context.Context, roomID, actorUID, targetUID string) error {
	if actorUID == targetUID {
		return errs.NewError(errs.ErrCannotTargetSelf)
	}
	_, err := s.RequireRole(ctx, roomID, actorUID, RoleCreator)
	return err
}

// ListAdmins returns the explicit admin grants of a room, oldest first.
func (s *Service) ListAdmins(ctx context.Context, roomID string) ([]db.AdminGrant, error) {
	if _, err := s.room(ctx, roomID); err != nil {
		return nil, err
	}
	grants, err := s.store.ListAdmins(ctx, roomID)
	if err != nil {
		return nil, errs.Store(err)
	}
	return grants, nil
}

// ListMutes returns every active, unexpired mute record of a room, newest first.
func (s *Service) ListMutes(ctx context.Context, roomID string) ([]db.Mute, error) {
	mutes, err := s.store.ListActiveMutes(ctx, roomID)
	if err != nil {
		return nil, errs.Store(err)
	}
	now := s.clock.Now().UnixMilli()
	return lo.Filter(mutes, func(m db.Mute, _ int) bool { return m.MuteUntil > now }), nil
}
