package gateway

import (
	"log/slog"
	"sync"
)

// UserResolver resolves the user a connection belongs to. RoomMembership
// needs it to cascade typing cleanup, which is keyed by user rather than by
// connection.
type UserResolver interface {
	UserFor(connID string) (string, bool)
}

// RoomMembership tracks which connections are subscribed to which rooms.
// It holds back-references only; connection lifetime is owned by the
// registry. Leaving a room clears the member's typing flag for that room.
type RoomMembership struct {
	mu sync.RWMutex

	// room ID -> set of connection IDs
	rooms map[string]map[string]struct{}

	// connection ID -> set of room IDs
	memberships map[string]map[string]struct{}

	typing *TypingTracker
	users  UserResolver
	logger *slog.Logger
}

func NewRoomMembership(typing *TypingTracker, users UserResolver, logger *slog.Logger) *RoomMembership {
	return &RoomMembership{
		rooms:       make(map[string]map[string]struct{}),
		memberships: make(map[string]map[string]struct{}),
		typing:      typing,
		users:       users,
		logger:      logger.With("component", "room_membership"),
	}
}

// Join adds a connection to a room. Idempotent.
func (m *RoomMembership) Join(connID, roomID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.rooms[roomID] == nil {
		m.rooms[roomID] = make(map[string]struct{})
	}
	m.rooms[roomID][connID] = struct{}{}

	if m.memberships[connID] == nil {
		m.memberships[connID] = make(map[string]struct{})
	}
	m.memberships[connID][roomID] = struct{}{}

	m.logger.Debug("connection joined room", "connID", connID, "roomID", roomID)
}

// Leave removes a connection from a room and clears the member's typing
// state in that room. Idempotent.
func (m *RoomMembership) Leave(connID, roomID string) {
	m.mu.Lock()
	m.removeMembership(connID, roomID)
	m.mu.Unlock()

	m.clearTyping(connID, roomID)
}

// LeaveAll removes the connection from every room it belongs to and returns
// the rooms left. Used during full disconnect teardown.
func (m *RoomMembership) LeaveAll(connID string) []string {
	m.mu.Lock()
	roomIDs := make([]string, 0, len(m.memberships[connID]))
	for roomID := range m.memberships[connID] {
		roomIDs = append(roomIDs, roomID)
	}
	for _, roomID := range roomIDs {
		m.removeMembership(connID, roomID)
	}
	m.mu.Unlock()

	for _, roomID := range roomIDs {
		m.clearTyping(connID, roomID)
	}
	return roomIDs
}

// removeMembership must be called with the lock held.
func (m *RoomMembership) removeMembership(connID, roomID string) {
	if conns, ok := m.rooms[roomID]; ok {
		delete(conns, connID)
		if len(conns) == 0 {
			delete(m.rooms, roomID)
		}
	}
	if rooms, ok := m.memberships[connID]; ok {
		delete(rooms, roomID)
		if len(rooms) == 0 {
			delete(m.memberships, connID)
		}
	}
}

func (m *RoomMembership) clearTyping(connID, roomID string) {
	if userID, ok := m.users.UserFor(connID); ok {
		m.typing.Clear(userID, roomID)
	}
}

// MembersOf returns the connections currently subscribed to a room.
func (m *RoomMembership) MembersOf(roomID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conns := m.rooms[roomID]
	result := make([]string, 0, len(conns))
	for connID := range conns {
		result = append(result, connID)
	}
	return result
}

// RoomsOf returns the rooms a connection is subscribed to.
func (m *RoomMembership) RoomsOf(connID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rooms := m.memberships[connID]
	result := make([]string, 0, len(rooms))
	for roomID := range rooms {
		result = append(result, roomID)
	}
	return result
}

// IsMember reports whether a connection is subscribed to a room.
func (m *RoomMembership) IsMember(connID, roomID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.rooms[roomID][connID]
	return ok
}
