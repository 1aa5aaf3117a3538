/*
Package chat coordinates real-time participation in rooms: the join/leave protocol, the
message pipeline, moderation pushes and the WebSocket clients that drive them.

All mutations of one room (join, leave, send-then-broadcast, delete, kick, dissolve)
run under that room's lock, so online-list snapshots and broadcast order always match
what was persisted. Different rooms never wait on each other.
*/
package chat

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"roomchat/internal/app/db"
	"roomchat/internal/app/moderation"
	"roomchat/internal/app/presence"
	"roomchat/internal/app/room"
	"roomchat/internal/pkg/logx"
)

// fileRemovalTimeout bounds the background removal of released file objects.
const fileRemovalTimeout = 30 * time.Second

// FileStore confirms uploaded file bodies and physically removes released ones.
type FileStore interface {
	ConfirmUpload(ctx context.Context, file db.File) error
	RemoveByID(ctx context.Context, fileID string) error
}

// Deps are the collaborators of a Hub.
type Deps struct {
	Store      *db.Store
	Registry   *presence.Registry
	Rooms      *room.Service
	Moderation *moderation.Service
	Files      FileStore
	Clock      clockwork.Clock
}

// roomState serializes one room's mutations and tracks its last message time.
type roomState struct {
	mu       sync.Mutex
	loaded   bool
	lastTime int64
}

// Hub is the Room Session Coordinator and Message Pipeline.
type Hub struct {
	store      *db.Store
	registry   *presence.Registry
	rooms      *room.Service
	moderation *moderation.Service
	files      FileStore
	clock      clockwork.Clock

	// mu protects the states map.
	mu     sync.Mutex
	states map[string]*roomState

	// wg tracks background file removals.
	wg sync.WaitGroup

	logger zerolog.Logger
}

// NewHub constructs a Hub from its collaborators.
func NewHub(deps Deps) *Hub {
	clock := deps.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &Hub{
		store:      deps.Store,
		registry:   deps.Registry,
		rooms:      deps.Rooms,
		moderation: deps.Moderation,
		files:      deps.Files,
		clock:      clock,
		states:     make(map[string]*roomState),
		logger:     logx.Component("Hub"),
	}
}

// lockRoom returns roomID's state with its lock held. Callers must unlock it.
func (h *Hub) lockRoom(roomID string) *roomState {
	h.mu.Lock()
	st, ok := h.states[roomID]
	if !ok {
		st = &roomState{}
		h.states[roomID] = st
	}
	h.mu.Unlock()

	st.mu.Lock()
	return st
}

// Registry exposes the presence registry for read-only queries.
func (h *Hub) Registry() *presence.Registry {
	return h.registry
}

// broadcast delivers frame to every present connection of roomID except excludeUID.
// A connection whose queue is full is closed; its disconnect path cleans it up.
func (h *Hub) broadcast(roomID string, frame []byte, excludeUID string) {
	for _, e := range h.registry.ListOnline(roomID) {
		if e.Principal.UID == excludeUID {
			continue
		}
		if err := e.Handle.Send(frame); err != nil {
			h.logger.Warn().
				Err(err).
				Str("room_id", roomID).
				Str("uid", e.Principal.UID).
				Msg("Client send queue full or closed, dropping connection.")
			e.Handle.Close("send queue full")
		}
	}
}

// emit encodes and broadcasts an event.
func (h *Hub) emit(roomID string, t EventType, payload any, excludeUID string) {
	frame, err := encode(t, payload)
	if err != nil {
		h.logger.Error().Err(err).Str("room_id", roomID).Str("event", string(t)).Msg("Failed to encode event.")
		return
	}
	h.broadcast(roomID, frame, excludeUID)
}

// sendTo encodes and delivers an event to a single connection.
func (h *Hub) sendTo(handle presence.Handle, t EventType, payload any) {
	frame, err := encode(t, payload)
	if err != nil {
		h.logger.Error().Err(err).Str("event", string(t)).Msg("Failed to encode event.")
		return
	}
	if err := handle.Send(frame); err != nil {
		h.logger.Warn().Err(err).Str("conn_id", handle.ID()).Str("event", string(t)).Msg("Failed to queue event.")
	}
}

// onlineUsers returns the decorated presence list of roomID in join order.
func (h *Hub) onlineUsers(ctx context.Context, roomID string) ([]OnlineUser, error) {
	entries := h.registry.ListOnline(roomID)
	if len(entries) == 0 {
		return []OnlineUser{}, nil
	}

	uids := lo.Map(entries, func(e presence.Entry, _ int) string { return e.Principal.UID })
	flags, err := h.moderation.Flags(ctx, roomID, uids)
	if err != nil {
		return nil, err
	}

	return lo.Map(entries, func(e presence.Entry, _ int) OnlineUser {
		return onlineUser(e.Principal, flags[e.Principal.UID])
	}), nil
}

// removeFiles removes released file objects in the background. Failures stay pending
// for the sweeper.
func (h *Hub) removeFiles(fileIDs []string) {
	if h.files == nil || len(fileIDs) == 0 {
		return
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), fileRemovalTimeout)
		defer cancel()

		for _, id := range fileIDs {
			if err := h.files.RemoveByID(ctx, id); err != nil {
				h.logger.Warn().Err(err).Str("file_id", id).Msg("File removal failed, leaving it to the sweeper.")
			}
		}
	}()
}

// Shutdown closes every live connection and waits for background work to finish.
func (h *Hub) Shutdown() {
	h.logger.Info().Msg("Shutting down Hub...")

	for _, roomID := range h.registry.Rooms() {
		for _, e := range h.registry.ListOnline(roomID) {
			e.Handle.Close("server shutting down")
		}
	}

	h.wg.Wait()
	h.logger.Info().Msg("Hub shutdown complete.")
}
