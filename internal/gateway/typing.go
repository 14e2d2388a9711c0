package gateway

import (
	"log/slog"
	"sync"
)

// DefaultRoom is the fallback scope for typing events whose payload omits a
// room. Room membership itself has no implicit default.
const DefaultRoom = "general"

// TypingTracker keeps a per-room set of users currently flagged as typing.
// Entries are removed only by an explicit stop signal, by leaving the room,
// or by a full disconnect; the tracker schedules no expiry of its own.
type TypingTracker struct {
	mu sync.RWMutex

	// room ID -> set of user IDs
	rooms map[string]map[string]struct{}

	logger *slog.Logger
}

func NewTypingTracker(logger *slog.Logger) *TypingTracker {
	return &TypingTracker{
		rooms:  make(map[string]map[string]struct{}),
		logger: logger.With("component", "typing_tracker"),
	}
}

// StartTyping flags a user as typing in a room. Idempotent.
func (t *TypingTracker) StartTyping(roomID, userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.rooms[roomID] == nil {
		t.rooms[roomID] = make(map[string]struct{})
	}
	t.rooms[roomID][userID] = struct{}{}
}

// StopTyping removes the typing flag. Idempotent.
func (t *TypingTracker) StopTyping(roomID, userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.remove(roomID, userID)
}

// Clear removes the flag if present. Invoked by RoomMembership when a
// connection leaves a room, so typing state never outlives membership.
func (t *TypingTracker) Clear(userID, roomID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.remove(roomID, userID)
}

// ClearUser removes the user's typing flag from every room. Invoked during
// disconnect teardown: typing can target rooms the connection never joined
// (the default-room fallback), so the membership cascade alone is not enough.
func (t *TypingTracker) ClearUser(userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for roomID := range t.rooms {
		t.remove(roomID, userID)
	}
}

func (t *TypingTracker) remove(roomID, userID string) {
	users, ok := t.rooms[roomID]
	if !ok {
		return
	}
	delete(users, userID)
	if len(users) == 0 {
		delete(t.rooms, roomID)
	}
}

// TypingUsersIn returns the set of users currently typing in a room.
func (t *TypingTracker) TypingUsersIn(roomID string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	users := t.rooms[roomID]
	result := make([]string, 0, len(users))
	for userID := range users {
		result = append(result, userID)
	}
	return result
}
