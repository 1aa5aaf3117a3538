package db_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"roomchat/internal/app/db"
	"roomchat/internal/app/db/dbtest"
)

func seedRoom(t *testing.T, s *db.Store, roomID, creator string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.CreatePrincipal(ctx, db.CreatePrincipalParams{UID: creator, Kind: "user", Nickname: creator, JoinTime: 1}))
	require.NoError(t, s.CreateRoom(ctx, db.CreateRoomParams{RoomID: roomID, Name: "room", CreatorUID: creator, CreatedAt: 1}))
}

func TestOpen_RejectsUnknownScheme(t *testing.T) {
	_, err := db.Open(context.Background(), "mysql://localhost")
	require.ErrorContains(t, err, "unsupported")
}

func TestIsUniqueViolation(t *testing.T) {
	req := require.New(t)
	s := dbtest.New(t)
	ctx := context.Background()

	req.Equal(db.DialectSQLite, s.Dialect())
	seedRoom(t, s, "ABCD1234", "creator")

	err := s.CreateRoom(ctx, db.CreateRoomParams{RoomID: "ABCD1234", Name: "dup", CreatorUID: "creator", CreatedAt: 2})
	req.Error(err)
	req.True(db.IsUniqueViolation(err))
	req.False(db.IsUniqueViolation(errors.New("boom")))
}

func TestInTx_RollsBackOnError(t *testing.T) {
	req := require.New(t)
	s := dbtest.New(t)
	ctx := context.Background()
	seedRoom(t, s, "ABCD1234", "creator")

	boom := errors.New("boom")
	err := s.InTx(ctx, func(q *db.Queries) error {
		if _, err := q.UpdateRoomName(ctx, "ABCD1234", "renamed"); err != nil {
			return err
		}
		return boom
	})
	req.ErrorIs(err, boom)

	room, err := s.GetRoom(ctx, "ABCD1234")
	req.NoError(err)
	req.Equal("room", room.Name)
}

func TestUpsertMembership_TransitionsExistingRow(t *testing.T) {
	req := require.New(t)
	s := dbtest.New(t)
	ctx := context.Background()
	seedRoom(t, s, "ABCD1234", "creator")

	req.NoError(s.UpsertMembership(ctx, "ABCD1234", "creator", db.MembershipOnline, 10))
	req.NoError(s.UpsertMembership(ctx, "ABCD1234", "creator", db.MembershipOffline, 20))

	m, err := s.GetMembership(ctx, "ABCD1234", "creator")
	req.NoError(err)
	req.Equal(db.MembershipOffline, m.Status)
	req.Equal(int64(20), m.LastActive)
}

func TestListRoomMessages_NewestFirstWithSearch(t *testing.T) {
	req := require.New(t)
	s := dbtest.New(t)
	ctx := context.Background()
	seedRoom(t, s, "ABCD1234", "creator")

	for i, text := range []string{"hello world", "50% off", "Hello again"} {
		req.NoError(s.InsertMessage(ctx, db.InsertMessageParams{
			ID:         string(rune('a' + i)),
			RoomID:     "ABCD1234",
			SenderUID:  "creator",
			SenderKind: "user",
			Variant:    "text",
			Payload:    `{}`,
			SearchText: text,
			CreatedAt:  int64(100 + i),
		}))
	}

	page, err := s.ListRoomMessages(ctx, db.ListMessagesParams{RoomID: "ABCD1234", Limit: 10})
	req.NoError(err)
	req.Len(page, 3)
	req.Equal("c", page[0].ID)
	req.Equal("creator", page[0].SenderNickname)

	page, err = s.ListRoomMessages(ctx, db.ListMessagesParams{RoomID: "ABCD1234", Query: "HELLO", Limit: 10})
	req.NoError(err)
	req.Len(page, 2)

	n, err := s.CountRoomMessages(ctx, "ABCD1234", "50%")
	req.NoError(err)
	req.Equal(int64(1), n)
}

func TestGetCurrentMute_MostRecentActive(t *testing.T) {
	req := require.New(t)
	s := dbtest.New(t)
	ctx := context.Background()

	req.NoError(s.InsertMute(ctx, db.Mute{ID: "m1", RoomID: "R", TargetUID: "u", MutedBy: "a", MuteUntil: 500, CreatedAt: 1}))
	req.NoError(s.InsertMute(ctx, db.Mute{ID: "m2", RoomID: "R", TargetUID: "u", MutedBy: "a", MuteUntil: 200, CreatedAt: 2}))

	cur, err := s.GetCurrentMute(ctx, "R", "u")
	req.NoError(err)
	req.Equal("m2", cur.ID)

	n, err := s.DeactivateMutes(ctx, "R", "u")
	req.NoError(err)
	req.Equal(int64(2), n)

	_, err = s.GetCurrentMute(ctx, "R", "u")
	req.ErrorIs(err, sql.ErrNoRows)
}
