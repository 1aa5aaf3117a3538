package chat

// HoldRoom takes roomID's lock and returns its release.
func (h *Hub) HoldRoom(roomID string) func() {
	st := h.lockRoom(roomID)
	return st.mu.Unlock
}
