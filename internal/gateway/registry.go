package gateway

import (
	"log/slog"
	"sync"
)

// RemovalResult reports the outcome of unregistering a connection.
// WasLastConnectionForUser drives presence transitions.
type RemovalResult struct {
	UserID                   string
	WasLastConnectionForUser bool
}

// ConnectionRegistry maps user identity to one-or-many live connections.
// A user with multiple devices holds multiple entries; all mutation happens
// under a single registry-local mutex.
type ConnectionRegistry struct {
	mu sync.RWMutex

	// connection ID -> user ID
	users map[string]string

	// user ID -> set of connection IDs
	connections map[string]map[string]struct{}

	logger *slog.Logger
}

func NewConnectionRegistry(logger *slog.Logger) *ConnectionRegistry {
	return &ConnectionRegistry{
		users:       make(map[string]string),
		connections: make(map[string]map[string]struct{}),
		logger:      logger.With("component", "connection_registry"),
	}
}

// Register associates a connection with a user. Registering the same pair
// twice is idempotent; re-registering a connection under a different user is
// a no-op.
func (r *ConnectionRegistry) Register(connID, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.users[connID]; ok {
		if existing != userID {
			r.logger.Warn("connection already registered to another user",
				"connID", connID, "userID", userID, "existingUserID", existing)
		}
		return
	}

	r.users[connID] = userID
	if r.connections[userID] == nil {
		r.connections[userID] = make(map[string]struct{})
	}
	r.connections[userID][connID] = struct{}{}

	r.logger.Debug("connection registered", "connID", connID, "userID", userID)
}

// Unregister removes the mapping and reports whether this was the user's
// last active connection. Unregistering an unknown connection returns an
// empty result, so disconnect-before-auth never errors.
func (r *ConnectionRegistry) Unregister(connID string) RemovalResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok := r.users[connID]
	if !ok {
		return RemovalResult{}
	}
	delete(r.users, connID)

	conns := r.connections[userID]
	delete(conns, connID)
	last := len(conns) == 0
	if last {
		delete(r.connections, userID)
	}

	r.logger.Debug("connection unregistered", "connID", connID, "userID", userID, "last", last)
	return RemovalResult{UserID: userID, WasLastConnectionForUser: last}
}

// ConnectionsFor returns the connection IDs for a user. The result is a
// copy; an offline user yields an empty slice, never an error.
func (r *ConnectionRegistry) ConnectionsFor(userID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := r.connections[userID]
	result := make([]string, 0, len(conns))
	for connID := range conns {
		result = append(result, connID)
	}
	return result
}

// UserFor resolves the user a connection is registered to.
func (r *ConnectionRegistry) UserFor(connID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	userID, ok := r.users[connID]
	return userID, ok
}

// OnlineUsers returns every user with at least one live connection.
func (r *ConnectionRegistry) OnlineUsers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]string, 0, len(r.connections))
	for userID := range r.connections {
		result = append(result, userID)
	}
	return result
}

// ConnectionCount reports the number of live connections for a user.
func (r *ConnectionRegistry) ConnectionCount(userID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.connections[userID])
}
