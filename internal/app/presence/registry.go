/*
Package presence tracks which principals currently hold an open connection in each room.

The Registry is an in-memory cache of live connections. It is never persisted and starts
empty on every process start; durable membership lives in the store.
*/
package presence

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"roomchat/internal/app/identity"
	"roomchat/internal/pkg/logx"
)

// Handle is a live connection the registry can deliver frames to.
type Handle interface {
	// ID uniquely identifies the connection.
	ID() string

	// Send queues a frame without blocking.
	Send(frame []byte) error

	// Close terminates the connection after flushing what is queued.
	Close(reason string)
}

// Entry is one present principal in a room.
type Entry struct {
	Principal identity.Principal
	Handle    Handle
	JoinedAt  time.Time
}

// roomSet holds a room's entries in insertion order.
type roomSet struct {
	mu      sync.RWMutex
	order   []string
	entries map[string]Entry
}

// Registry is the per-room set of connected principals.
type Registry struct {
	mu     sync.Mutex
	rooms  map[string]*roomSet
	clock  clockwork.Clock
	logger zerolog.Logger
}

// NewRegistry returns an empty Registry stamping join times from clock.
func NewRegistry(clock clockwork.Clock) *Registry {
	return &Registry{
		rooms:  make(map[string]*roomSet),
		clock:  clock,
		logger: logx.Component("Registry"),
	}
}

func (r *Registry) set(roomID string) *roomSet {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rooms[roomID]
}

// lockSet returns roomID's set write-locked. The set is locked before the registry
// lock is released so it cannot be dropped in between.
func (r *Registry) lockSet(roomID string, create bool) *roomSet {
	r.mu.Lock()
	defer r.mu.Unlock()

	rs, ok := r.rooms[roomID]
	if !ok {
		if !create {
			return nil
		}
		rs = &roomSet{entries: make(map[string]Entry)}
		r.rooms[roomID] = rs
	}
	rs.mu.Lock()
	return rs
}

// Register adds p to roomID with handle h. When p is already present the new handle
// replaces the old one in place and the previous handle is returned so the caller can
// close it.
func (r *Registry) Register(roomID string, p identity.Principal, h Handle) Handle {
	rs := r.lockSet(roomID, true)
	defer rs.mu.Unlock()

	prev, exists := rs.entries[p.UID]
	if !exists {
		rs.order = append(rs.order, p.UID)
		rs.entries[p.UID] = Entry{Principal: p, Handle: h, JoinedAt: r.clock.Now()}
		return nil
	}

	rs.entries[p.UID] = Entry{Principal: p, Handle: h, JoinedAt: prev.JoinedAt}
	if prev.Handle == nil || prev.Handle.ID() == h.ID() {
		return nil
	}

	r.logger.Info().
		Str("room_id", roomID).
		Str("uid", p.UID).
		Str("stale_conn_id", prev.Handle.ID()).
		Msg("Connection replaced by a newer one.")
	return prev.Handle
}

// Unregister removes uid from roomID, but only while h is still its current handle.
// It reports whether anything was removed.
func (r *Registry) Unregister(roomID, uid string, h Handle) bool {
	rs := r.lockSet(roomID, false)
	if rs == nil {
		return false
	}

	entry, ok := rs.entries[uid]
	if !ok {
		rs.mu.Unlock()
		return false
	}
	if h != nil && entry.Handle != nil && entry.Handle.ID() != h.ID() {
		rs.mu.Unlock()
		r.logger.Debug().Str("room_id", roomID).Str("uid", uid).Msg("Ignoring unregister for stale connection.")
		return false
	}

	delete(rs.entries, uid)
	for i, id := range rs.order {
		if id == uid {
			rs.order = append(rs.order[:i], rs.order[i+1:]...)
			break
		}
	}
	empty := len(rs.entries) == 0
	rs.mu.Unlock()

	if empty {
		r.dropIfEmpty(roomID, rs)
	}
	return true
}

func (r *Registry) dropIfEmpty(roomID string, rs *roomSet) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rs.mu.RLock()
	empty := len(rs.entries) == 0
	rs.mu.RUnlock()

	if empty && r.rooms[roomID] == rs {
		delete(r.rooms, roomID)
	}
}

// RemoveRoom drops every entry of roomID and returns them in insertion order.
func (r *Registry) RemoveRoom(roomID string) []Entry {
	r.mu.Lock()
	rs, ok := r.rooms[roomID]
	delete(r.rooms, roomID)
	r.mu.Unlock()

	if !ok {
		return nil
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()

	out := make([]Entry, 0, len(rs.order))
	for _, uid := range rs.order {
		out = append(out, rs.entries[uid])
	}
	rs.order = nil
	rs.entries = make(map[string]Entry)
	return out
}

// ListOnline returns a copy of roomID's entries in insertion order.
func (r *Registry) ListOnline(roomID string) []Entry {
	rs := r.set(roomID)
	if rs == nil {
		return []Entry{}
	}

	rs.mu.RLock()
	defer rs.mu.RUnlock()

	out := make([]Entry, 0, len(rs.order))
	for _, uid := range rs.order {
		out = append(out, rs.entries[uid])
	}
	return out
}

// Lookup returns uid's entry in roomID.
func (r *Registry) Lookup(roomID, uid string) (Entry, bool) {
	rs := r.set(roomID)
	if rs == nil {
		return Entry{}, false
	}

	rs.mu.RLock()
	defer rs.mu.RUnlock()

	e, ok := rs.entries[uid]
	return e, ok
}

// IsOnline reports whether uid has a live connection in roomID.
func (r *Registry) IsOnline(roomID, uid string) bool {
	_, ok := r.Lookup(roomID, uid)
	return ok
}

// TotalOnline counts entries across all rooms.
func (r *Registry) TotalOnline() int {
	r.mu.Lock()
	sets := make([]*roomSet, 0, len(r.rooms))
	for _, rs := range r.rooms {
		sets = append(sets, rs)
	}
	r.mu.Unlock()

	total := 0
	for _, rs := range sets {
		rs.mu.RLock()
		total += len(rs.entries)
		rs.mu.RUnlock()
	}
	return total
}

// Rooms lists the ids of rooms with at least one present principal.
func (r *Registry) Rooms() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.rooms))
	for id := range r.rooms {
		ids = append(ids, id)
	}
	return ids
}
