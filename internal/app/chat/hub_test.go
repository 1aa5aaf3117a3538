package chat_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"roomchat/internal/app/chat"
	"roomchat/internal/app/db"
	"roomchat/internal/app/db/dbtest"
	"roomchat/internal/app/identity"
	"roomchat/internal/app/moderation"
	"roomchat/internal/app/presence"
	"roomchat/internal/app/room"
	"roomchat/internal/pkg/errs"
)

const roomID = "ABCD1234"

var (
	creator = identity.Principal{UID: "u-creator", Nickname: "Creator", Kind: identity.KindUser}
	alice   = identity.Principal{UID: "u-alice", Nickname: "Alice", Kind: identity.KindUser}
	guest   = identity.Principal{UID: "a-guest", Nickname: "Guest", Kind: identity.KindAnonymous}
)

// fakeHandle records every frame it is sent.
type fakeHandle struct {
	id string

	mu     sync.Mutex
	frames []chat.Envelope
	closed string
}

func newHandle(id string) *fakeHandle {
	return &fakeHandle{id: id}
}

func (f *fakeHandle) ID() string { return f.id }

func (f *fakeHandle) Send(frame []byte) error {
	var env chat.Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, env)
	return nil
}

func (f *fakeHandle) Close(reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = reason
}

func (f *fakeHandle) events(t chat.EventType) []chat.Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []chat.Envelope
	for _, e := range f.frames {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func (f *fakeHandle) closeReason() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// fakeFiles treats every upload as present and records removals.
type fakeFiles struct {
	mu      sync.Mutex
	removed []string
}

func (f *fakeFiles) ConfirmUpload(context.Context, db.File) error { return nil }

func (f *fakeFiles) RemoveByID(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, id)
	return nil
}

type fixture struct {
	hub   *chat.Hub
	store *db.Store
	clock *clockwork.FakeClock
}

func setup(t *testing.T) fixture {
	t.Helper()
	store := dbtest.New(t)
	clock := clockwork.NewFakeClockAt(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	ctx := context.Background()

	for _, p := range []identity.Principal{creator, alice, guest} {
		require.NoError(t, store.CreatePrincipal(ctx, db.CreatePrincipalParams{
			UID: p.UID, Kind: string(p.Kind), Nickname: p.Nickname, JoinTime: clock.Now().UnixMilli(),
		}))
	}
	require.NoError(t, store.CreateRoom(ctx, db.CreateRoomParams{
		RoomID: roomID, Name: "Lobby", CreatorUID: creator.UID, CreatedAt: clock.Now().UnixMilli(),
	}))

	hub := chat.NewHub(chat.Deps{
		Store:      store,
		Registry:   presence.NewRegistry(clock),
		Rooms:      room.NewService(store, clock),
		Moderation: moderation.NewService(store, clock),
		Files:      &fakeFiles{},
		Clock:      clock,
	})
	t.Cleanup(hub.Shutdown)

	return fixture{hub: hub, store: store, clock: clock}
}

func text(s string) json.RawMessage {
	raw, _ := json.Marshal(map[string]string{"variant": "text", "text": s})
	return raw
}

func (fx fixture) join(t *testing.T, p identity.Principal) *fakeHandle {
	t.Helper()
	h := newHandle("conn-" + p.UID)
	_, err := fx.hub.Join(context.Background(), roomID, p, "", h)
	require.NoError(t, err)
	return h
}

func TestJoinAndLeave(t *testing.T) {
	req := require.New(t)
	fx := setup(t)
	ctx := context.Background()

	ch := fx.join(t, creator)
	ah := fx.join(t, alice)

	req.Len(ah.events(chat.EventRoomJoined), 1)
	req.Len(ch.events(chat.EventUserJoined), 1, "existing members are told about the joiner")
	req.Empty(ah.events(chat.EventUserJoined), "the joiner is not told about itself")

	var joined chat.RoomJoinedPayload
	req.NoError(json.Unmarshal(ah.events(chat.EventRoomJoined)[0].Payload, &joined))
	req.Equal("Lobby", joined.RoomInfo.Name)
	req.Len(joined.OnlineUsers, 2)
	req.Equal(creator.UID, joined.OnlineUsers[0].UID)
	req.True(joined.OnlineUsers[0].IsCreator)

	req.True(fx.hub.Leave(ctx, roomID, alice, ah, true))
	req.False(fx.hub.Leave(ctx, roomID, alice, ah, true), "leaving twice is a no-op")
	req.Len(ch.events(chat.EventUserLeft), 1)

	m, err := fx.store.GetMembership(ctx, roomID, alice.UID)
	req.NoError(err)
	req.Equal(db.MembershipLeft, m.Status)

	_, err = fx.hub.Join(ctx, "ZZZZ9999", alice, "", newHandle("x"))
	req.True(errs.HasCode(err, errs.ErrRoomNotFound))
}

func TestJoinReplacesPreviousConnection(t *testing.T) {
	req := require.New(t)
	fx := setup(t)
	ctx := context.Background()

	first := fx.join(t, alice)
	second := newHandle("conn-2")
	_, err := fx.hub.Join(ctx, roomID, alice, "", second)
	req.NoError(err)

	req.Equal("session replaced", first.closeReason())
	req.Len(first.events(chat.EventError), 1)
	req.Len(fx.hub.Registry().ListOnline(roomID), 1)

	// The stale connection's disconnect must not remove the new one
	req.False(fx.hub.Leave(ctx, roomID, alice, first, false))
	req.True(fx.hub.Registry().IsOnline(roomID, alice.UID))
}

func TestConcurrentJoins(t *testing.T) {
	req := require.New(t)
	fx := setup(t)
	ctx := context.Background()

	const n = 16
	var wg sync.WaitGroup
	for i := range n {
		p := identity.Principal{UID: fmt.Sprintf("u-%02d", i), Nickname: fmt.Sprintf("user %d", i), Kind: identity.KindUser}
		req.NoError(fx.store.CreatePrincipal(ctx, db.CreatePrincipalParams{UID: p.UID, Kind: "user", Nickname: p.Nickname, JoinTime: 1}))

		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := fx.hub.Join(ctx, roomID, p, "", newHandle("conn-"+p.UID))
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	online, err := fx.hub.OnlineUsers(ctx, roomID)
	req.NoError(err)
	req.Len(online, n)
}

func TestSendToRoom(t *testing.T) {
	req := require.New(t)
	fx := setup(t)
	ctx := context.Background()

	ch := fx.join(t, creator)
	gh := fx.join(t, guest)

	view, err := fx.hub.Send(ctx, chat.SendRequest{RoomID: roomID, Sender: guest, Content: text("  hello <b>world</b>  ")})
	req.NoError(err)
	req.NotEmpty(view.ID)

	for _, h := range []*fakeHandle{ch, gh} {
		got := h.events(chat.EventNewMessage)
		req.Len(got, 1, "the sender receives its own message too")

		var msg struct {
			Content struct {
				Variant string `json:"variant"`
				Text    string `json:"text"`
			} `json:"content"`
			Sender chat.SenderView `json:"sender"`
		}
		req.NoError(json.Unmarshal(got[0].Payload, &msg))
		req.Equal("text", msg.Content.Variant)
		req.Equal("hello &lt;b&gt;world&lt;/b&gt;", msg.Content.Text)
		req.Equal(guest.UID, msg.Sender.UID)
	}

	_, err = fx.hub.Send(ctx, chat.SendRequest{RoomID: roomID, Sender: alice, Content: text("hi")})
	req.True(errs.HasCode(err, errs.ErrNotInRoom))
}

func TestMutedSenderIsRejectedUntilExpiry(t *testing.T) {
	req := require.New(t)
	fx := setup(t)
	ctx := context.Background()

	ch := fx.join(t, creator)
	fx.join(t, guest)

	_, err := fx.hub.Mute(ctx, moderation.MuteParams{RoomID: roomID, ActorUID: creator.UID, TargetUID: guest.UID, Duration: 60 * time.Second})
	req.NoError(err)
	req.Len(ch.events(chat.EventUserMuted), 1)

	_, err = fx.hub.Send(ctx, chat.SendRequest{RoomID: roomID, Sender: guest, Content: text("let me talk")})
	ce, ok := errs.As(err)
	req.True(ok)
	req.Equal(errs.ErrMuted, ce.Code)
	req.EqualValues(60000, ce.Meta["remainingMs"])
	n, err := fx.store.CountRoomMessages(ctx, roomID, "")
	req.NoError(err)
	req.Zero(n, "a rejected send stores nothing")

	fx.clock.Advance(61 * time.Second)
	_, err = fx.hub.Send(ctx, chat.SendRequest{RoomID: roomID, Sender: guest, Content: text("finally")})
	req.NoError(err)
}

func TestCreatedAtIsMonotonic(t *testing.T) {
	req := require.New(t)
	fx := setup(t)
	ctx := context.Background()
	fx.join(t, alice)

	// The clock does not move, yet each message must be strictly later than the last
	var last int64
	for i := range 5 {
		v, err := fx.hub.Send(ctx, chat.SendRequest{RoomID: roomID, Sender: alice, Content: text(fmt.Sprint(i))})
		req.NoError(err)
		req.Greater(v.CreatedAt, last)
		last = v.CreatedAt
	}
}

func TestConcurrentSendersSeeHistoryOrder(t *testing.T) {
	req := require.New(t)
	fx := setup(t)
	ctx := context.Background()

	observer := fx.join(t, creator)
	fx.join(t, alice)
	fx.join(t, guest)

	// Given three members sending at the same time
	const perSender = 8
	var wg sync.WaitGroup
	for _, p := range []identity.Principal{creator, alice, guest} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range perSender {
				_, err := fx.hub.Send(ctx, chat.SendRequest{RoomID: roomID, Sender: p, Content: text(fmt.Sprint(p.UID, " ", i))})
				require.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	// Then every connection saw the messages in the order history stores them
	var delivered []string
	for _, e := range observer.events(chat.EventNewMessage) {
		var v struct {
			ID string `json:"id"`
		}
		req.NoError(json.Unmarshal(e.Payload, &v))
		delivered = append(delivered, v.ID)
	}
	req.Len(delivered, 3*perSender)

	page, err := fx.hub.History(ctx, roomID, creator.UID, chat.HistoryQuery{Limit: chat.MaxPageSize})
	req.NoError(err)
	req.Len(page.Messages, 3*perSender)

	stored := make([]string, 0, len(page.Messages))
	for i := len(page.Messages) - 1; i >= 0; i-- {
		stored = append(stored, page.Messages[i].ID)
	}
	req.Equal(stored, delivered)
}

func TestReplyIsOrphanedWhenTargetDeleted(t *testing.T) {
	req := require.New(t)
	fx := setup(t)
	ctx := context.Background()
	fx.join(t, creator)
	ah := fx.join(t, alice)

	target, err := fx.hub.Send(ctx, chat.SendRequest{RoomID: roomID, Sender: alice, Content: text("original")})
	req.NoError(err)

	reply, err := fx.hub.Send(ctx, chat.SendRequest{RoomID: roomID, Sender: creator, Content: text("answer"), ReplyToID: target.ID})
	req.NoError(err)
	req.NotNil(reply.ReplyTo)
	req.Equal("original", reply.ReplyTo.Summary)
	req.Equal("Alice", reply.ReplyTo.SenderNickname)

	req.NoError(fx.hub.Delete(ctx, target.ID, alice.UID))
	req.Len(ah.events(chat.EventMessageDeleted), 1)

	got, err := fx.hub.Message(ctx, reply.ID, alice.UID)
	req.NoError(err)
	req.Nil(got.ReplyTo, "the preview goes away with its target")

	_, err = fx.hub.Send(ctx, chat.SendRequest{RoomID: roomID, Sender: creator, Content: text("late"), ReplyToID: target.ID})
	req.True(errs.HasCode(err, errs.ErrReplyTargetMissing))
}

func TestDeleteAuthorization(t *testing.T) {
	req := require.New(t)
	fx := setup(t)
	ctx := context.Background()
	fx.join(t, creator)
	fx.join(t, alice)
	fx.join(t, guest)

	m, err := fx.hub.Send(ctx, chat.SendRequest{RoomID: roomID, Sender: alice, Content: text("mine")})
	req.NoError(err)

	req.True(errs.HasCode(fx.hub.Delete(ctx, m.ID, guest.UID), errs.ErrForbidden))
	req.NoError(fx.hub.Delete(ctx, m.ID, creator.UID), "admins may delete anyone's message")
	req.True(errs.HasCode(fx.hub.Delete(ctx, m.ID, creator.UID), errs.ErrMessageNotFound))
}

func TestDeleteByUserSkipsCreator(t *testing.T) {
	req := require.New(t)
	fx := setup(t)
	ctx := context.Background()
	fx.join(t, creator)
	fx.join(t, guest)

	for i := range 3 {
		_, err := fx.hub.Send(ctx, chat.SendRequest{RoomID: roomID, Sender: guest, Content: text(fmt.Sprint("spam ", i))})
		req.NoError(err)
	}
	_, err := fx.hub.Send(ctx, chat.SendRequest{RoomID: roomID, Sender: creator, Content: text("stop")})
	req.NoError(err)

	_, err = fx.hub.DeleteByUser(ctx, roomID, creator.UID, guest.UID)
	req.True(errs.HasCode(err, errs.ErrForbidden))

	ids, err := fx.hub.DeleteByUser(ctx, roomID, guest.UID, creator.UID)
	req.NoError(err)
	req.Len(ids, 3)

	page, err := fx.hub.History(ctx, roomID, creator.UID, chat.HistoryQuery{})
	req.NoError(err)
	req.EqualValues(1, page.Total)
	req.Equal(creator.UID, page.Messages[0].Sender.UID)
}

func TestFileMessage(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()
	fx.join(t, alice)

	newFile := func(id string) {
		now := fx.clock.Now().UnixMilli()
		require.NoError(t, fx.store.CreateFile(ctx, db.File{
			ID: id, OwnerUID: alice.UID, RoomID: roomID, StorageKey: "k/" + id, Name: "notes.pdf",
			MimeType: "application/pdf", Size: 42, Status: db.FileActive, CreatedAt: now,
			ExpiresAt: now + (30 * time.Minute).Milliseconds(),
		}))
	}
	fileContent := func(id string) json.RawMessage {
		raw, _ := json.Marshal(map[string]string{"variant": "file", "fileId": id})
		return raw
	}

	t.Run("should fill metadata from the file record and attach it once", func(t *testing.T) {
		req := require.New(t)
		newFile("f-1")

		v, err := fx.hub.Send(ctx, chat.SendRequest{RoomID: roomID, Sender: alice, Content: fileContent("f-1")})
		req.NoError(err)
		fc, ok := v.Content.(*chat.FileContent)
		req.True(ok)
		req.Equal("notes.pdf", fc.Name)
		req.EqualValues(42, fc.Size)

		_, err = fx.hub.Send(ctx, chat.SendRequest{RoomID: roomID, Sender: alice, Content: fileContent("f-1")})
		req.True(errs.HasCode(err, errs.ErrFileAlreadyAttached))
	})

	t.Run("should reject a file after its validity window", func(t *testing.T) {
		req := require.New(t)
		newFile("f-2")
		fx.clock.Advance(31 * time.Minute)

		_, err := fx.hub.Send(ctx, chat.SendRequest{RoomID: roomID, Sender: alice, Content: fileContent("f-2")})
		req.True(errs.HasCode(err, errs.ErrFileExpired))
	})

	t.Run("should not expose someone else's file", func(t *testing.T) {
		req := require.New(t)
		fx.join(t, guest)
		newFile("f-3")

		_, err := fx.hub.Send(ctx, chat.SendRequest{RoomID: roomID, Sender: guest, Content: fileContent("f-3")})
		req.True(errs.HasCode(err, errs.ErrFileNotFound))
	})
}

func TestDeleteRollsBackWhenFileReleaseFails(t *testing.T) {
	req := require.New(t)
	fx := setup(t)
	ctx := context.Background()
	fx.join(t, alice)

	now := fx.clock.Now().UnixMilli()
	req.NoError(fx.store.CreateFile(ctx, db.File{
		ID: "f-1", OwnerUID: alice.UID, RoomID: roomID, StorageKey: "k", Name: "a.png",
		MimeType: "image/png", Size: 1, Status: db.FileActive, CreatedAt: now, ExpiresAt: now + 60_000,
	}))
	raw, _ := json.Marshal(map[string]string{"variant": "file", "fileId": "f-1"})
	m, err := fx.hub.Send(ctx, chat.SendRequest{RoomID: roomID, Sender: alice, Content: raw})
	req.NoError(err)

	_, err = fx.store.DB().ExecContext(ctx,
		`CREATE TRIGGER fail_release BEFORE UPDATE ON files BEGIN SELECT RAISE(ABORT, 'release failed'); END;`)
	req.NoError(err)

	err = fx.hub.Delete(ctx, m.ID, alice.UID)
	req.True(errs.HasCode(err, errs.ErrStoreUnavailable))

	_, err = fx.hub.Message(ctx, m.ID, alice.UID)
	req.NoError(err, "the message survives a failed delete")
	f, err := fx.store.GetFile(ctx, "f-1")
	req.NoError(err)
	req.True(f.MessageID.Valid)
}

func TestKickEvictsTarget(t *testing.T) {
	req := require.New(t)
	fx := setup(t)
	ctx := context.Background()
	ch := fx.join(t, creator)
	gh := fx.join(t, guest)

	req.True(errs.HasCode(fx.hub.Kick(ctx, roomID, guest.UID, creator.UID), errs.ErrForbidden))
	req.NoError(fx.hub.Kick(ctx, roomID, creator.UID, guest.UID))

	req.Equal("kicked", gh.closeReason())
	req.Len(gh.events(chat.EventUserKicked), 1)
	req.Len(ch.events(chat.EventUserKicked), 1)
	req.False(fx.hub.Registry().IsOnline(roomID, guest.UID))

	// The evicted connection's own disconnect is a no-op
	req.False(fx.hub.Leave(ctx, roomID, guest, gh, false))
}

func TestDissolveEvictsEveryone(t *testing.T) {
	req := require.New(t)
	fx := setup(t)
	ctx := context.Background()
	ch := fx.join(t, creator)
	ah := fx.join(t, alice)

	_, err := fx.hub.Send(ctx, chat.SendRequest{RoomID: roomID, Sender: alice, Content: text("bye")})
	req.NoError(err)

	req.True(errs.HasCode(fx.hub.Dissolve(ctx, roomID, alice.UID), errs.ErrForbidden))
	req.NoError(fx.hub.Dissolve(ctx, roomID, creator.UID))

	for _, h := range []*fakeHandle{ch, ah} {
		req.Len(h.events(chat.EventRoomDissolved), 1)
		req.Equal("room dissolved", h.closeReason())
	}
	req.Empty(fx.hub.Registry().ListOnline(roomID))

	_, err = fx.hub.Join(ctx, roomID, alice, "", newHandle("again"))
	req.True(errs.HasCode(err, errs.ErrRoomClosed))
}

// blockedUntil runs fn in the background and asserts it is still waiting after a short while.
func blockedUntil(t *testing.T, fn func() error) <-chan error {
	t.Helper()
	result := make(chan error, 1)
	started := make(chan struct{})
	go func() {
		close(started)
		result <- fn()
	}()
	<-started

	require.Never(t, func() bool { return len(result) > 0 }, 50*time.Millisecond, 5*time.Millisecond)
	return result
}

func TestJoinDuringDissolveIsRejected(t *testing.T) {
	req := require.New(t)
	fx := setup(t)
	ctx := context.Background()

	// Given a join that passed the access check and now waits on the room lock
	release := fx.hub.HoldRoom(roomID)
	ah := newHandle("conn-alice")
	result := blockedUntil(t, func() error {
		_, err := fx.hub.Join(ctx, roomID, alice, "", ah)
		return err
	})

	// When the room is dissolved before the join gets the lock
	_, err := room.NewService(fx.store, fx.clock).Dissolve(ctx, roomID)
	req.NoError(err)
	release()

	// Then the join fails and leaves neither presence nor an online membership behind
	req.True(errs.HasCode(<-result, errs.ErrRoomClosed))
	req.False(fx.hub.Registry().IsOnline(roomID, alice.UID))
	req.Empty(ah.events(chat.EventRoomJoined))

	_, err = fx.store.GetMembership(ctx, roomID, alice.UID)
	req.True(db.IsNotFound(err))
}

func TestSendDuringDissolvePersistsNothing(t *testing.T) {
	req := require.New(t)
	fx := setup(t)
	ctx := context.Background()
	fx.join(t, alice)

	// Given a send that passed admission and now waits on the room lock
	release := fx.hub.HoldRoom(roomID)
	result := blockedUntil(t, func() error {
		_, err := fx.hub.Send(ctx, chat.SendRequest{RoomID: roomID, Sender: alice, Content: text("too late")})
		return err
	})

	// When the room is closed in the meantime
	_, err := room.NewService(fx.store, fx.clock).Dissolve(ctx, roomID)
	req.NoError(err)
	release()

	// Then the send is refused and nothing is stored
	req.True(errs.HasCode(<-result, errs.ErrRoomClosed))
	n, err := fx.store.CountRoomMessages(ctx, roomID, "")
	req.NoError(err)
	req.Zero(n)
}

func TestKickWinsOverQueuedSend(t *testing.T) {
	req := require.New(t)
	fx := setup(t)
	ctx := context.Background()
	fx.join(t, creator)
	fx.join(t, guest)

	// Given a send by guest queued behind the room lock
	release := fx.hub.HoldRoom(roomID)
	result := blockedUntil(t, func() error {
		_, err := fx.hub.Send(ctx, chat.SendRequest{RoomID: roomID, Sender: guest, Content: text("still here?")})
		return err
	})

	// When guest is kicked as soon as the lock is free
	kicked := make(chan error, 1)
	go func() { kicked <- fx.hub.Kick(ctx, roomID, creator.UID, guest.UID) }()
	release()
	req.NoError(<-kicked)
	sendErr := <-result

	// Then either the send landed before the kick or it was refused, never stored after it
	n, err := fx.store.CountRoomMessages(ctx, roomID, "")
	req.NoError(err)
	if sendErr != nil {
		req.True(errs.HasCode(sendErr, errs.ErrNotInRoom))
		req.Zero(n)
	} else {
		req.EqualValues(1, n)
	}

	m, err := fx.store.GetMembership(ctx, roomID, guest.UID)
	req.NoError(err)
	req.Equal(db.MembershipLeft, m.Status)
}

func TestTypingIsRelayedToOthers(t *testing.T) {
	req := require.New(t)
	fx := setup(t)
	ch := fx.join(t, creator)
	ah := fx.join(t, alice)

	req.NoError(fx.hub.Typing(roomID, alice, true))
	req.Len(ch.events(chat.EventUserTyping), 1)
	req.Empty(ah.events(chat.EventUserTyping))

	req.True(errs.HasCode(fx.hub.Typing(roomID, guest, true), errs.ErrNotInRoom))
}

func TestHistoryPaging(t *testing.T) {
	req := require.New(t)
	fx := setup(t)
	ctx := context.Background()
	fx.join(t, alice)

	for i := range 5 {
		_, err := fx.hub.Send(ctx, chat.SendRequest{RoomID: roomID, Sender: alice, Content: text(fmt.Sprint("message ", i))})
		req.NoError(err)
	}

	page, err := fx.hub.History(ctx, roomID, alice.UID, chat.HistoryQuery{Page: 1, Limit: 2})
	req.NoError(err)
	req.EqualValues(5, page.Total)
	req.True(page.HasMore)
	req.Len(page.Messages, 2)
	req.Greater(page.Messages[0].CreatedAt, page.Messages[1].CreatedAt, "newest first")

	page, err = fx.hub.History(ctx, roomID, alice.UID, chat.HistoryQuery{Query: "MESSAGE 3"})
	req.NoError(err)
	req.EqualValues(1, page.Total)

	_, err = fx.hub.History(ctx, roomID, guest.UID, chat.HistoryQuery{})
	req.True(errs.HasCode(err, errs.ErrNotInRoom))
}

func TestMessageRequiresReader(t *testing.T) {
	req := require.New(t)
	fx := setup(t)
	ctx := context.Background()
	ah := fx.join(t, alice)

	m, err := fx.hub.Send(ctx, chat.SendRequest{RoomID: roomID, Sender: alice, Content: text("members only")})
	req.NoError(err)

	// Given a member, the creator and an outsider who never joined
	_, err = fx.hub.Message(ctx, m.ID, alice.UID)
	req.NoError(err)
	_, err = fx.hub.Message(ctx, m.ID, creator.UID)
	req.NoError(err)

	// Then the outsider cannot read the message by id
	_, err = fx.hub.Message(ctx, m.ID, guest.UID)
	req.True(errs.HasCode(err, errs.ErrNotInRoom))

	// And neither can the member once they have left
	req.True(fx.hub.Leave(ctx, roomID, alice, ah, true))
	_, err = fx.hub.Message(ctx, m.ID, alice.UID)
	req.True(errs.HasCode(err, errs.ErrNotInRoom))
}

func TestHistorySearchMatchesTypedText(t *testing.T) {
	req := require.New(t)
	fx := setup(t)
	ctx := context.Background()
	fx.join(t, alice)

	// Given a message with markup characters, which is escaped for display
	v, err := fx.hub.Send(ctx, chat.SendRequest{RoomID: roomID, Sender: alice, Content: text("a < b && c > \"d\"")})
	req.NoError(err)

	// Then searching for what was typed finds it
	for _, q := range []string{"<", "a < b", "&&", `"d"`} {
		page, err := fx.hub.History(ctx, roomID, alice.UID, chat.HistoryQuery{Query: q})
		req.NoError(err)
		req.Len(page.Messages, 1, q)
		req.Equal(v.ID, page.Messages[0].ID)
	}

	// And the escaped entities are not themselves searchable
	page, err := fx.hub.History(ctx, roomID, alice.UID, chat.HistoryQuery{Query: "&lt;"})
	req.NoError(err)
	req.Empty(page.Messages)
}
