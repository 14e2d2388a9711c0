package gateway

import (
	"log/slog"
	"sync"
)

// PresenceTransition is an online/offline edge for one user.
type PresenceTransition struct {
	UserID string
	Online bool
}

// PresenceCoordinator derives presence transitions from registry population
// changes. For any interleaving of connects and disconnects it emits strictly
// alternating online/offline transitions per user: a second device coming up
// or the first of two devices dropping produces nothing.
type PresenceCoordinator struct {
	mu sync.Mutex

	// user ID -> live connection count as observed by this coordinator
	counts map[string]int

	// user ID -> whether an online transition is currently outstanding
	online map[string]bool

	logger *slog.Logger
}

func NewPresenceCoordinator(logger *slog.Logger) *PresenceCoordinator {
	return &PresenceCoordinator{
		counts: make(map[string]int),
		online: make(map[string]bool),
		logger: logger.With("component", "presence_coordinator"),
	}
}

// OnConnectionAdded must be called after ConnectionRegistry.Register. It
// returns an online transition only when this was the user's first
// connection.
func (p *PresenceCoordinator) OnConnectionAdded(userID string) *PresenceTransition {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.counts[userID]++
	if p.online[userID] {
		return nil
	}
	p.online[userID] = true

	p.logger.Debug("user transitioned online", "userID", userID)
	return &PresenceTransition{UserID: userID, Online: true}
}

// OnConnectionRemoved must be called after ConnectionRegistry.Unregister.
// It returns an offline transition only when the removed connection was the
// user's last and an online transition is outstanding.
func (p *PresenceCoordinator) OnConnectionRemoved(userID string, wasLastConnectionForUser bool) *PresenceTransition {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.counts[userID] > 0 {
		p.counts[userID]--
	}
	if p.counts[userID] == 0 {
		delete(p.counts, userID)
	}

	if !wasLastConnectionForUser || !p.online[userID] {
		return nil
	}
	delete(p.online, userID)

	p.logger.Debug("user transitioned offline", "userID", userID)
	return &PresenceTransition{UserID: userID, Online: false}
}

// IsOnline reports whether an online transition is outstanding for a user.
func (p *PresenceCoordinator) IsOnline(userID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.online[userID]
}
