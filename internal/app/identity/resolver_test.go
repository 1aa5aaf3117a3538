package identity_test

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"roomchat/internal/app/db"
	"roomchat/internal/app/db/dbtest"
	"roomchat/internal/app/identity"
	"roomchat/internal/pkg/auth/jwt"
	"roomchat/internal/pkg/errs"
)

const testSecret = "test-secret"

func newService(t *testing.T) (*identity.Service, *db.Store, *clockwork.FakeClock) {
	t.Helper()
	store := dbtest.New(t)
	clock := clockwork.NewFakeClockAt(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	svc := identity.NewService(jwt.NewValidator(testSecret), store, clock, 24*time.Hour)
	return svc, store, clock
}

func tokenFor(t *testing.T, uid, kind string) string {
	t.Helper()
	token, err := jwt.GenerateToken(&jwt.Payload{UID: uid, Kind: kind}, testSecret, time.Hour)
	require.NoError(t, err)
	return token
}

func TestResolve_Failures(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Resolve(ctx, "")
	require.True(t, errs.HasCode(err, errs.ErrMissingCredential))

	_, err = svc.Resolve(ctx, "not-a-token")
	require.True(t, errs.HasCode(err, errs.ErrInvalidCredential))

	_, err = svc.Resolve(ctx, tokenFor(t, "ghost", jwt.KindUser))
	require.True(t, errs.HasCode(err, errs.ErrPrincipalNotFound))
	require.Equal(t, errs.KindAuth, errs.KindOf(err))
}

func TestResolve_UserReadsDurableState(t *testing.T) {
	req := require.New(t)
	svc, store, clock := newService(t)
	ctx := context.Background()

	req.NoError(store.CreatePrincipal(ctx, db.CreatePrincipalParams{
		UID: "u1", Kind: jwt.KindUser, Nickname: "Alice", JoinTime: clock.Now().UnixMilli(),
	}))

	p, err := svc.Resolve(ctx, tokenFor(t, "u1", jwt.KindUser))
	req.NoError(err)
	req.Equal("Alice", p.Nickname)
	req.Equal(identity.KindUser, p.Kind)
	req.False(p.IsAnonymous())

	_, err = svc.Resolve(ctx, tokenFor(t, "u1", jwt.KindAnonymous))
	req.True(errs.HasCode(err, errs.ErrInvalidCredential))
}

func TestResolve_AnonymousSessionExpires(t *testing.T) {
	req := require.New(t)
	svc, store, clock := newService(t)
	ctx := context.Background()

	p, err := svc.EnterAnonymous(ctx, "ABCD1234", "", "")
	req.NoError(err)
	req.True(p.IsAnonymous())
	req.Contains(p.Nickname, "Guest_")

	token := tokenFor(t, p.UID, jwt.KindAnonymous)

	resolved, err := svc.Resolve(ctx, token)
	req.NoError(err)
	req.Equal(p.UID, resolved.UID)

	clock.Advance(25 * time.Hour)

	_, err = svc.Resolve(ctx, token)
	req.True(errs.HasCode(err, errs.ErrAnonymousSessionExpired))

	row, err := store.GetPrincipal(ctx, p.UID)
	req.NoError(err)
	req.False(row.Active)
}

func TestEnterAnonymous_ReactivatesAndRestampsMute(t *testing.T) {
	req := require.New(t)
	svc, store, clock := newService(t)
	ctx := context.Background()

	p, err := svc.EnterAnonymous(ctx, "ABCD1234", "", "Bob")
	req.NoError(err)
	req.Equal("Bob", p.Nickname)

	created := clock.Now().UnixMilli()
	req.NoError(store.InsertMute(ctx, db.Mute{
		ID: "m1", RoomID: "ABCD1234", TargetUID: p.UID, MutedBy: "admin",
		MuteUntil: created + (10 * time.Minute).Milliseconds(), CreatedAt: created,
	}))
	_, err = store.DeactivatePrincipal(ctx, p.UID)
	req.NoError(err)

	clock.Advance(5 * time.Minute)

	expired, err := jwt.GenerateToken(&jwt.Payload{UID: p.UID, Kind: jwt.KindAnonymous}, testSecret, -time.Minute)
	req.NoError(err)

	again, err := svc.EnterAnonymous(ctx, "ABCD1234", expired, "")
	req.NoError(err)
	req.Equal(p.UID, again.UID)
	req.Equal("Bob", again.Nickname)

	mute, err := store.GetCurrentMute(ctx, "ABCD1234", p.UID)
	req.NoError(err)
	req.Equal(clock.Now().UnixMilli()+(10*time.Minute).Milliseconds(), mute.MuteUntil)

	row, err := store.GetPrincipal(ctx, p.UID)
	req.NoError(err)
	req.True(row.Active)
	req.Equal(clock.Now().UnixMilli(), row.JoinTime)
	req.Equal(mute.MuteUntil, row.MuteUntil)
}

func TestEnterAnonymous_UnknownIDCreatesFresh(t *testing.T) {
	svc, _, _ := newService(t)

	p, err := svc.EnterAnonymous(context.Background(), "ABCD1234", tokenFor(t, "anon_AAAAAAAAAAAA", jwt.KindAnonymous), "Carol")
	require.NoError(t, err)
	require.NotEqual(t, "anon_AAAAAAAAAAAA", p.UID)
	require.Equal(t, "Carol", p.Nickname)
}

func TestEnterAnonymous_RequiresOwnershipToReactivate(t *testing.T) {
	req := require.New(t)
	svc, store, _ := newService(t)
	ctx := context.Background()

	// Given a guest whose uid is visible to everyone in the room
	victim, err := svc.EnterAnonymous(ctx, "ABCD1234", "", "victim")
	req.NoError(err)

	forged, err := jwt.GenerateToken(&jwt.Payload{UID: victim.UID, Kind: jwt.KindAnonymous}, "other-secret", time.Hour)
	req.NoError(err)

	// When someone presents the bare uid, a forged token or a user token for it
	for _, previous := range []string{victim.UID, forged, tokenFor(t, victim.UID, jwt.KindUser)} {
		got, err := svc.EnterAnonymous(ctx, "ABCD1234", previous, "")

		// Then they get a fresh principal, never the victim's identity
		req.NoError(err)
		req.NotEqual(victim.UID, got.UID)
		req.NotEqual("victim", got.Nickname)
	}

	row, err := store.GetPrincipal(ctx, victim.UID)
	req.NoError(err)
	req.Equal("victim", row.Nickname)
}

func TestEnterAnonymous_RejectsLongNickname(t *testing.T) {
	svc, _, _ := newService(t)

	_, err := svc.EnterAnonymous(context.Background(), "ABCD1234", "", "abcdefghijklmnopqrstuvwxyz")
	require.True(t, errs.HasCode(err, errs.ErrInvalidParams))
}
