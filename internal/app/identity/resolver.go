package identity

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"roomchat/internal/app/db"
	"roomchat/internal/pkg/auth/jwt"
	"roomchat/internal/pkg/errs"
	"roomchat/internal/pkg/logx"
	"roomchat/internal/pkg/randx"
)

// MaxNicknameLength bounds anonymous nicknames, in characters.
const MaxNicknameLength = 20

// CredentialValidator checks a bearer token and returns its claims, or nil.
type CredentialValidator interface {
	Validate(token string) *jwt.Payload
	// ValidateSignature accepts expired tokens, so a lapsed guest can prove who it was.
	ValidateSignature(token string) *jwt.Payload
}

// Service resolves credentials and manages anonymous principals.
type Service struct {
	validator  CredentialValidator
	store      *db.Store
	clock      clockwork.Clock
	sessionTTL time.Duration
	logger     zerolog.Logger
}

// NewService wires a Service. sessionTTL bounds how long an anonymous session stays valid
// after its last (re)activation.
func NewService(validator CredentialValidator, store *db.Store, clock clockwork.Clock, sessionTTL time.Duration) *Service {
	return &Service{
		validator:  validator,
		store:      store,
		clock:      clock,
		sessionTTL: sessionTTL,
		logger:     logx.Component("Identity"),
	}
}

// Resolve turns a bearer credential into a live Principal, re-checked against the store.
func (s *Service) Resolve(ctx context.Context, credential string) (Principal, error) {
	if strings.TrimSpace(credential) == "" {
		return Principal{}, errs.NewError(errs.ErrMissingCredential)
	}

	claims := s.validator.Validate(credential)
	if claims == nil {
		return Principal{}, errs.NewError(errs.ErrInvalidCredential)
	}

	row, err := s.store.GetPrincipal(ctx, claims.UID)
	if err != nil {
		if db.IsNotFound(err) {
			return Principal{}, errs.NewError(errs.ErrPrincipalNotFound)
		}
		return Principal{}, errs.Store(err)
	}

	if row.Kind != claims.Kind {
		s.logger.Warn().Str("uid", row.UID).Str("claimed_kind", claims.Kind).Msg("Credential kind does not match stored principal.")
		return Principal{}, errs.NewError(errs.ErrInvalidCredential)
	}

	if row.Kind == string(KindAnonymous) {
		return s.checkAnonymous(ctx, row)
	}

	if !row.Active {
		return Principal{}, errs.NewError(errs.ErrPrincipalNotFound)
	}

	return FromRow(row), nil
}

// checkAnonymous enforces the session TTL, deactivating the record when it has lapsed.
func (s *Service) checkAnonymous(ctx context.Context, row db.Principal) (Principal, error) {
	if !row.Active {
		return Principal{}, errs.NewError(errs.ErrAnonymousSessionExpired)
	}

	if s.clock.Now().Sub(time.UnixMilli(row.JoinTime)) > s.sessionTTL {
		if _, err := s.store.DeactivatePrincipal(ctx, row.UID); err != nil {
			s.logger.Error().Err(err).Str("uid", row.UID).Msg("Failed to deactivate expired anonymous principal.")
		}
		return Principal{}, errs.NewError(errs.ErrAnonymousSessionExpired)
	}

	return FromRow(row), nil
}

// EnterAnonymous creates a new anonymous principal for roomID, or reactivates the guest that
// previous was issued to. previous must be a credential this server signed for an anonymous
// principal; it may have expired. Anything else falls through to a fresh principal, so a
// bare uid never grants its identity. Reactivation restarts the session clock and re-stamps
// an unexpired mute in that room so it runs its full duration again from now.
func (s *Service) EnterAnonymous(ctx context.Context, roomID, previous, nickname string) (Principal, error) {
	nickname = strings.TrimSpace(nickname)
	if utf8.RuneCountInString(nickname) > MaxNicknameLength {
		return Principal{}, errs.NewError(errs.ErrInvalidParams)
	}

	now := s.clock.Now()

	if uid := s.previousGuest(previous); uid != "" {
		p, ok, err := s.reactivate(ctx, roomID, uid, nickname, now)
		if err != nil {
			return Principal{}, err
		}
		if ok {
			return p, nil
		}
	}

	if nickname == "" {
		generated, err := randx.GuestNickname()
		if err != nil {
			return Principal{}, errs.NewError(errs.ErrUnknown, err)
		}
		nickname = generated
	}

	for range 3 {
		newUID, err := randx.AnonymousID()
		if err != nil {
			return Principal{}, errs.NewError(errs.ErrUnknown, err)
		}

		err = s.store.CreatePrincipal(ctx, db.CreatePrincipalParams{
			UID:      newUID,
			Kind:     string(KindAnonymous),
			Nickname: nickname,
			JoinTime: now.UnixMilli(),
		})
		if err == nil {
			s.logger.Info().Str("uid", newUID).Str("room_id", roomID).Msg("Anonymous principal created.")
			return Principal{UID: newUID, Nickname: nickname, Kind: KindAnonymous, JoinTime: time.UnixMilli(now.UnixMilli())}, nil
		}
		if !db.IsUniqueViolation(err) {
			return Principal{}, errs.Store(err)
		}
	}

	return Principal{}, errs.NewError(errs.ErrIdentifierConflict)
}

// previousGuest returns the anonymous uid previous was signed for, or "".
func (s *Service) previousGuest(previous string) string {
	if strings.TrimSpace(previous) == "" {
		return ""
	}
	claims := s.validator.ValidateSignature(previous)
	if claims == nil || claims.Kind != jwt.KindAnonymous || !randx.IsValidAnonymousID(claims.UID) {
		s.logger.Debug().Msg("Previous guest credential rejected, creating a fresh principal.")
		return ""
	}
	return claims.UID
}

func (s *Service) reactivate(ctx context.Context, roomID, uid, nickname string, now time.Time) (Principal, bool, error) {
	var out Principal
	found := false

	err := s.store.InTx(ctx, func(q *db.Queries) error {
		row, err := q.GetPrincipal(ctx, uid)
		if err != nil {
			if db.IsNotFound(err) {
				return nil
			}
			return err
		}
		if row.Kind != string(KindAnonymous) {
			return nil
		}
		found = true

		if nickname == "" {
			nickname = row.Nickname
		}
		if _, err := q.ReactivateAnonymous(ctx, uid, now.UnixMilli(), nickname); err != nil {
			return err
		}
		row.Active = true
		row.JoinTime = now.UnixMilli()
		row.Nickname = nickname

		mute, err := q.GetCurrentMute(ctx, roomID, uid)
		switch {
		case db.IsNotFound(err):
		case err != nil:
			return err
		case mute.MuteUntil > now.UnixMilli():
			fresh := now.UnixMilli() + (mute.MuteUntil - mute.CreatedAt)
			if err := q.RestampMute(ctx, mute.ID, now.UnixMilli(), fresh); err != nil {
				return err
			}
			until, err := q.LatestMuteUntil(ctx, uid, now.UnixMilli())
			if err != nil {
				return err
			}
			if err := q.SetPrincipalMuteUntil(ctx, uid, until); err != nil {
				return err
			}
			row.MuteUntil = until
		}

		out = FromRow(row)
		return nil
	})
	if err != nil {
		return Principal{}, false, errs.Store(err)
	}

	if found {
		s.logger.Info().Str("uid", uid).Str("room_id", roomID).Msg("Anonymous principal reactivated.")
	}
	return out, found, nil
}
