package presence_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"

	"roomchat/internal/app/identity"
	"roomchat/internal/app/presence"
)

type fakeHandle struct {
	id     string
	mu     sync.Mutex
	frames [][]byte
	closed string
}

func (h *fakeHandle) ID() string { return h.id }

func (h *fakeHandle) Send(frame []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.frames = append(h.frames, frame)
	return nil
}

func (h *fakeHandle) Close(reason string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = reason
}

func principal(uid string) identity.Principal {
	return identity.Principal{UID: uid, Nickname: uid, Kind: identity.KindUser}
}

func uids(entries []presence.Entry) []string {
	return lo.Map(entries, func(e presence.Entry, _ int) string { return e.Principal.UID })
}

func TestRegistry_RegisterUnregister(t *testing.T) {
	req := require.New(t)
	r := presence.NewRegistry(clockwork.NewFakeClock())

	// Given two principals in insertion order
	a, b := &fakeHandle{id: "c1"}, &fakeHandle{id: "c2"}
	req.Nil(r.Register("ROOM0001", principal("alice"), a))
	req.Nil(r.Register("ROOM0001", principal("bob"), b))

	req.Equal([]string{"alice", "bob"}, uids(r.ListOnline("ROOM0001")))
	req.Equal(2, r.TotalOnline())
	req.True(r.IsOnline("ROOM0001", "alice"))

	// When alice leaves twice
	req.True(r.Unregister("ROOM0001", "alice", a))
	req.False(r.Unregister("ROOM0001", "alice", a))

	// Then only bob remains
	req.Equal([]string{"bob"}, uids(r.ListOnline("ROOM0001")))
	req.Equal(1, r.TotalOnline())

	req.True(r.Unregister("ROOM0001", "bob", b))
	req.Empty(r.ListOnline("ROOM0001"))
	req.Empty(r.Rooms())
}

func TestRegistry_ReplaceKeepsPositionAndIgnoresStaleHandle(t *testing.T) {
	req := require.New(t)
	r := presence.NewRegistry(clockwork.NewFakeClock())

	old, other, fresh := &fakeHandle{id: "c1"}, &fakeHandle{id: "c2"}, &fakeHandle{id: "c3"}
	r.Register("ROOM0001", principal("alice"), old)
	r.Register("ROOM0001", principal("bob"), other)

	prev := r.Register("ROOM0001", principal("alice"), fresh)
	req.Equal(old, prev)
	req.Equal([]string{"alice", "bob"}, uids(r.ListOnline("ROOM0001")))

	// The old connection's disconnect must not evict the new one
	req.False(r.Unregister("ROOM0001", "alice", old))

	entry, ok := r.Lookup("ROOM0001", "alice")
	req.True(ok)
	req.Equal("c3", entry.Handle.ID())

	// Re-registering the same handle reports no previous handle
	req.Nil(r.Register("ROOM0001", principal("alice"), fresh))
}

func TestRegistry_ConcurrentJoins(t *testing.T) {
	req := require.New(t)
	r := presence.NewRegistry(clockwork.NewFakeClock())

	const n = 64
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			uid := fmt.Sprintf("u%02d", i)
			r.Register("ROOM0001", principal(uid), &fakeHandle{id: "conn-" + uid})
		}()
	}
	wg.Wait()

	online := uids(r.ListOnline("ROOM0001"))
	req.Len(online, n)
	req.Len(lo.Uniq(online), n)
	req.Equal(n, r.TotalOnline())
}

func TestRegistry_ConcurrentJoinAndLeaveAcrossEmptyRoom(t *testing.T) {
	req := require.New(t)
	r := presence.NewRegistry(clockwork.NewFakeClock())

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(2)
		h := &fakeHandle{id: fmt.Sprintf("tmp-%d", i)}
		go func() {
			defer wg.Done()
			r.Register("ROOM0001", principal(h.id), h)
			r.Unregister("ROOM0001", h.id, h)
		}()
		go func() {
			defer wg.Done()
			uid := fmt.Sprintf("stay-%d", i)
			r.Register("ROOM0001", principal(uid), &fakeHandle{id: uid})
		}()
	}
	wg.Wait()

	req.Len(r.ListOnline("ROOM0001"), 50)
}

func TestRegistry_RemoveRoom(t *testing.T) {
	req := require.New(t)
	r := presence.NewRegistry(clockwork.NewFakeClock())

	r.Register("ROOM0001", principal("alice"), &fakeHandle{id: "c1"})
	r.Register("ROOM0001", principal("bob"), &fakeHandle{id: "c2"})
	r.Register("ROOM0002", principal("carol"), &fakeHandle{id: "c3"})

	removed := r.RemoveRoom("ROOM0001")
	req.Equal([]string{"alice", "bob"}, uids(removed))
	req.Empty(r.ListOnline("ROOM0001"))
	req.Equal([]string{"ROOM0002"}, r.Rooms())
	req.Nil(r.RemoveRoom("ROOM0001"))
}

func TestRegistry_JoinedAtKeptAcrossReplacement(t *testing.T) {
	req := require.New(t)
	clock := clockwork.NewFakeClockAt(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	r := presence.NewRegistry(clock)

	// Given alice joined at the current clock time
	req.Nil(r.Register("ROOM0001", principal("alice"), &fakeHandle{id: "c1"}))
	joined := clock.Now()

	// When she reconnects a minute later
	clock.Advance(time.Minute)
	req.NotNil(r.Register("ROOM0001", principal("alice"), &fakeHandle{id: "c2"}))

	// Then the entry keeps the original join time
	e, ok := r.Lookup("ROOM0001", "alice")
	req.True(ok)
	req.Equal("c2", e.Handle.ID())
	req.True(joined.Equal(e.JoinedAt))
}
