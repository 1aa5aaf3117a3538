package sweeper_test

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"roomchat/internal/app/db"
	"roomchat/internal/app/db/dbtest"
	"roomchat/internal/app/sweeper"
)

const roomID = "ABCD1234"

type fakeFiles struct {
	mu      sync.Mutex
	removed []string
	expired int64
}

func (f *fakeFiles) ExpireUnused(context.Context) (int64, error) { return f.expired, nil }

func (f *fakeFiles) RemovePending(context.Context, int) (int, error) { return 0, nil }

func (f *fakeFiles) RemoveByID(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, id)
	return nil
}

var cfg = sweeper.Config{
	AnonSessionTTL:         24 * time.Hour,
	AnonSweepInterval:      10 * time.Minute,
	RetentionWindow:        30 * 24 * time.Hour,
	RetentionSweepInterval: time.Hour,
}

func setup(t *testing.T) (*sweeper.Sweeper, *db.Store, *clockwork.FakeClock, *fakeFiles) {
	t.Helper()
	store := dbtest.New(t)
	clock := clockwork.NewFakeClockAt(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	files := &fakeFiles{}
	return sweeper.New(store, files, clock, cfg), store, clock, files
}

func TestExpireAnonymous(t *testing.T) {
	req := require.New(t)
	s, store, clock, _ := setup(t)
	ctx := context.Background()
	now := clock.Now().UnixMilli()

	req.NoError(store.CreatePrincipal(ctx, db.CreatePrincipalParams{UID: "a-old", Kind: "anonymous", Nickname: "old", JoinTime: now - (25 * time.Hour).Milliseconds()}))
	req.NoError(store.CreatePrincipal(ctx, db.CreatePrincipalParams{UID: "a-new", Kind: "anonymous", Nickname: "new", JoinTime: now - time.Hour.Milliseconds()}))
	req.NoError(store.CreatePrincipal(ctx, db.CreatePrincipalParams{UID: "u-old", Kind: "user", Nickname: "user", JoinTime: 1}))

	n, err := s.ExpireAnonymous(ctx)
	req.NoError(err)
	req.EqualValues(1, n)

	for uid, active := range map[string]bool{"a-old": false, "a-new": true, "u-old": true} {
		p, err := store.GetPrincipal(ctx, uid)
		req.NoError(err)
		req.Equal(active, p.Active, uid)
	}

	n, err = s.ExpireAnonymous(ctx)
	req.NoError(err)
	req.Zero(n, "a second run finds nothing to do")
}

func TestPurgeRetired(t *testing.T) {
	req := require.New(t)
	s, store, clock, files := setup(t)
	ctx := context.Background()
	now := clock.Now().UnixMilli()

	req.NoError(store.CreateRoom(ctx, db.CreateRoomParams{RoomID: roomID, Name: "room", CreatorUID: "u-1", CreatedAt: now}))
	req.NoError(store.CreateFile(ctx, db.File{
		ID: "f-1", OwnerUID: "u-1", RoomID: roomID, StorageKey: "k", Name: "a.png",
		MimeType: "image/png", Size: 1, Status: db.FileActive, CreatedAt: now, ExpiresAt: now + 60_000,
	}))
	req.NoError(store.InsertMessage(ctx, db.InsertMessageParams{
		ID: "m-1", RoomID: roomID, SenderUID: "u-1", SenderKind: "user", Variant: "text", Payload: `{}`, CreatedAt: now,
	}))
	req.NoError(store.InsertMessage(ctx, db.InsertMessageParams{
		ID: "m-2", RoomID: roomID, SenderUID: "u-1", SenderKind: "user", Variant: "file", Payload: `{}`,
		FileID: sql.NullString{String: "f-1", Valid: true}, CreatedAt: now + 1,
	}))
	_, err := store.AttachFile(ctx, "f-1", "m-2")
	req.NoError(err)

	_, err = store.RetireRoomMessages(ctx, roomID, now)
	req.NoError(err)

	n, err := s.PurgeRetired(ctx)
	req.NoError(err)
	req.Zero(n, "retired messages stay until the retention window passes")

	clock.Advance(31 * 24 * time.Hour)
	n, err = s.PurgeRetired(ctx)
	req.NoError(err)
	req.EqualValues(2, n)
	req.Equal([]string{"f-1"}, files.removed)

	_, err = store.GetMessage(ctx, "m-1")
	req.True(db.IsNotFound(err))
	f, err := store.GetFile(ctx, "f-1")
	req.NoError(err)
	req.Equal(db.FileExpired, f.Status)
}

func TestRunTicksJobs(t *testing.T) {
	req := require.New(t)
	s, store, clock, _ := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req.NoError(store.CreatePrincipal(ctx, db.CreatePrincipalParams{UID: "a-old", Kind: "anonymous", Nickname: "old", JoinTime: clock.Now().UnixMilli()}))

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Run(ctx)
	}()

	req.NoError(clock.BlockUntilContext(ctx, 3))
	clock.Advance(25 * time.Hour)

	req.Eventually(func() bool {
		p, err := store.GetPrincipal(ctx, "a-old")
		return err == nil && !p.Active
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	<-done
}
