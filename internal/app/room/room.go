/*
Package room manages the durable room catalogue: creation with generated room codes,
password checks on entry, renaming and dissolution.

Authorization for rename and dissolve is decided by the moderation package; this
package only applies the state change.
*/
package room

import (
	"context"
	"database/sql"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"roomchat/internal/app/db"
	"roomchat/internal/app/identity"
	"roomchat/internal/pkg/errs"
	"roomchat/internal/pkg/logx"
	"roomchat/internal/pkg/randx"
)

const (
	// MaxNameLength bounds room names, in characters.
	MaxNameLength = 50

	// MaxPasswordLength is the longest password bcrypt accepts.
	MaxPasswordLength = 72

	// codeAttempts bounds room code generation before giving up.
	codeAttempts = 5
)

// Info is the public view of a room.
type Info struct {
	RoomID      string    `json:"roomId"`
	Name        string    `json:"name"`
	CreatorUID  string    `json:"creatorUid"`
	HasPassword bool      `json:"hasPassword"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"createdAt"`
}

func infoFromRow(r db.Room) Info {
	return Info{
		RoomID:      r.RoomID,
		Name:        r.Name,
		CreatorUID:  r.CreatorUID,
		HasPassword: r.PasswordHash.Valid && r.PasswordHash.String != "",
		Active:      r.Active,
		CreatedAt:   time.UnixMilli(r.CreatedAt),
	}
}

// Service owns room rows.
type Service struct {
	store  *db.Store
	clock  clockwork.Clock
	logger zerolog.Logger
}

func NewService(store *db.Store, clock clockwork.Clock) *Service {
	return &Service{store: store, clock: clock, logger: logx.Component("Rooms")}
}

func normalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if n := utf8.RuneCountInString(name); n == 0 || n > MaxNameLength {
		return "", errs.NewError(errs.ErrRoomNameInvalid, MaxNameLength)
	}
	return name, nil
}

// Create opens a new room owned by creator. Only registered users may create rooms.
func (s *Service) Create(ctx context.Context, creator identity.Principal, name, password string) (Info, error) {
	if creator.IsAnonymous() {
		return Info{}, errs.NewError(errs.ErrForbidden)
	}

	name, err := normalizeName(name)
	if err != nil {
		return Info{}, err
	}
	if len(password) > MaxPasswordLength {
		return Info{}, errs.NewError(errs.ErrInvalidParams)
	}

	var hash sql.NullString
	if password != "" {
		hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return Info{}, errs.NewError(errs.ErrUnknown, err)
		}
		hash = sql.NullString{String: string(hashed), Valid: true}
	}

	now := s.clock.Now().UnixMilli()

	for attempt := 1; attempt <= codeAttempts; attempt++ {
		code, err := randx.RoomCode()
		if err != nil {
			return Info{}, errs.NewError(errs.ErrUnknown, err)
		}

		arg := db.CreateRoomParams{
			RoomID:       code,
			Name:         name,
			PasswordHash: hash,
			CreatorUID:   creator.UID,
			CreatedAt:    now,
		}

		err = s.store.InTx(ctx, func(q *db.Queries) error {
			if err := q.CreateRoom(ctx, arg); err != nil {
				return err
			}
			return q.UpsertMembership(ctx, code, creator.UID, db.MembershipOffline, now)
		})
		if err == nil {
			s.logger.Info().Str("room_id", code).Str("creator_uid", creator.UID).Msg("Room created.")
			return infoFromRow(db.Room{
				RoomID: code, Name: name, PasswordHash: hash, CreatorUID: creator.UID, Active: true, CreatedAt: now,
			}), nil
		}
		if !db.IsUniqueViolation(err) {
			return Info{}, errs.Store(err)
		}

		s.logger.Warn().Str("room_id", code).Int("attempt", attempt).Msg("Room code collision, retrying.")
	}

	return Info{}, errs.NewError(errs.ErrRoomCodeExhausted)
}

// Get loads a room, open or closed.
func (s *Service) Get(ctx context.Context, roomID string) (Info, error) {
	row, err := s.load(ctx, roomID)
	if err != nil {
		return Info{}, err
	}
	return infoFromRow(row), nil
}

func (s *Service) load(ctx context.Context, roomID string) (db.Room, error) {
	if !randx.IsValidRoomCode(roomID) {
		return db.Room{}, errs.NewError(errs.ErrRoomNotFound)
	}

	row, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		if db.IsNotFound(err) {
			return db.Room{}, errs.NewError(errs.ErrRoomNotFound)
		}
		return db.Room{}, errs.Store(err)
	}
	return row, nil
}

// CheckAccess verifies that uid may enter roomID with the given password. The creator
// never needs the password.
func (s *Service) CheckAccess(ctx context.Context, roomID, uid, password string) (Info, error) {
	row, err := s.load(ctx, roomID)
	if err != nil {
		return Info{}, err
	}
	if !row.Active {
		return Info{}, errs.NewError(errs.ErrRoomClosed)
	}

	if row.PasswordHash.Valid && row.PasswordHash.String != "" && row.CreatorUID != uid {
		if password == "" {
			return Info{}, errs.NewError(errs.ErrPasswordRequired)
		}
		if err := bcrypt.CompareHashAndPassword([]byte(row.PasswordHash.String), []byte(password)); err != nil {
			return Info{}, errs.NewError(errs.ErrRoomPasswordWrong)
		}
	}

	return infoFromRow(row), nil
}

// RequireActive loads roomID and fails when it is missing or closed.
func (s *Service) RequireActive(ctx context.Context, roomID string) (Info, error) {
	row, err := s.load(ctx, roomID)
	if err != nil {
		return Info{}, err
	}
	if !row.Active {
		return Info{}, errs.NewError(errs.ErrRoomClosed)
	}
	return infoFromRow(row), nil
}

// Rename changes an active room's display name.
func (s *Service) Rename(ctx context.Context, roomID, name string) (Info, error) {
	name, err := normalizeName(name)
	if err != nil {
		return Info{}, err
	}

	n, err := s.store.UpdateRoomName(ctx, roomID, name)
	if err != nil {
		return Info{}, errs.Store(err)
	}
	if n == 0 {
		return Info{}, errs.NewError(errs.ErrRoomClosed)
	}

	return s.Get(ctx, roomID)
}

// Dissolve closes roomID and retires its messages in one transaction. Retired messages
// disappear from history and are purged by the retention sweep. It returns the number
// of messages retired.
func (s *Service) Dissolve(ctx context.Context, roomID string) (int64, error) {
	var retired int64

	err := s.store.InTx(ctx, func(q *db.Queries) error {
		n, err := q.CloseRoom(ctx, roomID)
		if err != nil {
			return err
		}
		if n == 0 {
			return errs.NewError(errs.ErrRoomClosed)
		}

		retired, err = q.RetireRoomMessages(ctx, roomID, s.clock.Now().UnixMilli())
		return err
	})
	if err != nil {
		return 0, errs.Store(err)
	}

	s.logger.Info().Str("room_id", roomID).Int64("retired", retired).Msg("Room dissolved.")
	return retired, nil
}
