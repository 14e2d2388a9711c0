// Package gateway implements the real-time presence and message fan-out
// core: per-connection identity, room membership and typing state, presence
// transitions, and bounded broadcast of chat events to the connections that
// should see them.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"chat-gateway/internal/auth"
	"chat-gateway/internal/store"
)

// PresenceMirror receives best-effort copies of presence transitions so the
// rest of the system can answer presence queries without a live connection.
// Mirror failures never affect gateway state.
type PresenceMirror interface {
	SetOnline(ctx context.Context, userID string) error
	SetOffline(ctx context.Context, userID string) error
}

// Hub owns the registry, membership, and typing state, authenticates
// incoming connections, routes inbound events to handlers, and performs
// outbound broadcast and unicast delivery.
//
// Inbound events are handled synchronously on the connection's read
// goroutine, which gives per-connection FIFO ordering and confines the
// blocking persistence call to the issuing connection.
type Hub struct {
	registry   *ConnectionRegistry
	rooms      *RoomMembership
	typing     *TypingTracker
	presence   *PresenceCoordinator
	dispatcher *BroadcastDispatcher

	messages store.MessageStore
	verifier auth.Verifier
	mirror   PresenceMirror

	mu       sync.RWMutex
	sessions map[string]*Session

	logger *slog.Logger
}

// NewHub wires the gateway core. mirror and sink may be nil when the Redis
// mirror or the Kafka audit stream are not configured.
func NewHub(messages store.MessageStore, verifier auth.Verifier, mirror PresenceMirror, sink EventSink, logger *slog.Logger) *Hub {
	registry := NewConnectionRegistry(logger)
	typing := NewTypingTracker(logger)

	return &Hub{
		registry:   registry,
		rooms:      NewRoomMembership(typing, registry, logger),
		typing:     typing,
		presence:   NewPresenceCoordinator(logger),
		dispatcher: NewBroadcastDispatcher(sink, logger),
		messages:   messages,
		verifier:   verifier,
		mirror:     mirror,
		sessions:   make(map[string]*Session),
		logger:     logger.With("component", "hub"),
	}
}

// Connect admits a new transport connection in the Connecting state. The
// connection cannot join rooms, send messages, or appear in presence or
// typing state until it authenticates.
func (h *Hub) Connect(sender Sender) *Session {
	sess := newSession(sender)

	h.mu.Lock()
	h.sessions[sess.ID()] = sess
	h.mu.Unlock()

	h.logger.Info("connection accepted", "connID", sess.ID())
	return sess
}

// Authenticate verifies connection credentials and, on success, registers
// the connection, emits the presence transition if this is the user's first
// connection, and acks the connection.
func (h *Hub) Authenticate(ctx context.Context, sess *Session, token, claimedUserID string) error {
	if sess.State() != StateConnecting {
		return errors.New("connection already authenticated")
	}

	userID, err := h.verifier.Verify(token, claimedUserID)
	if err != nil {
		h.logger.Warn("authentication failed", "connID", sess.ID(), "error", err)
		return err
	}
	sess.setAuthenticated(userID)

	h.registry.Register(sess.ID(), userID)
	sess.setState(StateActive)

	if tr := h.presence.OnConnectionAdded(userID); tr != nil {
		h.broadcastPresence(ctx, tr)
	}

	h.dispatcher.Unicast(NewConnectedEvent(sess.ID(), userID), sess.sender)
	h.logger.Info("connection authenticated", "connID", sess.ID(), "userID", userID)
	return nil
}

// HandleInbound validates and dispatches one raw frame from a connection.
// Every failure produces at most one scoped error event back to the sender
// and never touches any other connection.
func (h *Hub) HandleInbound(ctx context.Context, sess *Session, raw []byte) {
	var event Event
	if err := json.Unmarshal(raw, &event); err != nil {
		h.sendError(sess, CodeValidationError, "invalid event format")
		return
	}
	if !event.Type.IsInbound() {
		h.sendError(sess, CodeValidationError, "unknown event type: "+event.Type.String())
		return
	}

	// Never trust a client-supplied identity.
	event.UserID = sess.UserID()

	if event.Type == EventAuthenticate {
		h.handleAuthenticate(ctx, sess, &event)
		return
	}

	if sess.State() != StateActive {
		h.sendError(sess, CodeUnauthenticated, "authentication required")
		return
	}

	switch event.Type {
	case EventJoinRoom:
		h.handleJoinRoom(sess, &event)
	case EventLeaveRoom:
		h.handleLeaveRoom(sess, &event)
	case EventSendMessage:
		h.handleSendMessage(ctx, sess, &event)
	case EventTyping:
		h.handleTyping(sess, &event)
	case EventGetOnlineUsers:
		h.handleGetOnlineUsers(sess)
	}
}

// Disconnect runs the full teardown for a connection. It is idempotent and
// safe to invoke even if authentication never completed: membership first so
// typing state cannot outlive it, then the registry, then presence.
func (h *Hub) Disconnect(ctx context.Context, sess *Session) {
	if !sess.beginTeardown() {
		return
	}

	connID := sess.ID()
	leftRooms := h.rooms.LeaveAll(connID)
	for _, roomID := range leftRooms {
		h.broadcastToRoom(roomID, NewRoomNoticeEvent(EventUserLeftRoom, sess.UserID(), roomID), connID)
	}

	// Typing can target rooms the connection never joined, so LeaveAll's
	// cascade does not cover everything.
	if userID := sess.UserID(); userID != "" {
		h.typing.ClearUser(userID)
	}

	result := h.registry.Unregister(connID)

	h.mu.Lock()
	delete(h.sessions, connID)
	h.mu.Unlock()
	sess.setState(StateDisconnected)

	if result.UserID != "" {
		if tr := h.presence.OnConnectionRemoved(result.UserID, result.WasLastConnectionForUser); tr != nil {
			h.broadcastPresence(ctx, tr)
		}
	}

	h.logger.Info("connection torn down",
		"connID", connID, "userID", result.UserID, "roomsLeft", len(leftRooms))
}

// BroadcastMessageUpdate is the outward-facing hook the message service
// calls after mutating a persisted message out of band.
func (h *Hub) BroadcastMessageUpdate(messageID, content, authorID string) {
	event := NewEvent(EventMessageUpdated, authorID, map[string]any{
		"messageId": messageID,
		"content":   content,
		"authorId":  authorID,
	})
	h.broadcastGlobal(event, "")
}

// BroadcastMessageDelete mirrors BroadcastMessageUpdate for deletions.
func (h *Hub) BroadcastMessageDelete(messageID, authorID string) {
	event := NewEvent(EventMessageDeleted, authorID, map[string]any{
		"messageId": messageID,
		"authorId":  authorID,
	})
	h.broadcastGlobal(event, "")
}

// OnlineUsers returns every user with at least one live connection.
func (h *Hub) OnlineUsers() []string {
	return h.registry.OnlineUsers()
}

// TypingUsersIn exposes the typing set for a room.
func (h *Hub) TypingUsersIn(roomID string) []string {
	return h.typing.TypingUsersIn(roomID)
}

func (h *Hub) handleAuthenticate(ctx context.Context, sess *Session, event *Event) {
	if sess.State() != StateConnecting {
		h.sendError(sess, CodeValidationError, "already authenticated")
		return
	}

	var payload AuthenticatePayload
	if err := decodePayload(event.Data, &payload); err != nil || payload.Token == "" {
		h.sendError(sess, CodeValidationError, "token is required")
		return
	}

	if err := h.Authenticate(ctx, sess, payload.Token, payload.UserID); err != nil {
		h.sendError(sess, CodeUnauthenticated, "invalid credentials")
	}
}

func (h *Hub) handleJoinRoom(sess *Session, event *Event) {
	var payload JoinRoomPayload
	if err := decodePayload(event.Data, &payload); err != nil {
		h.sendError(sess, CodeValidationError, "invalid joinRoom payload")
		return
	}
	if err := validateRoomID(payload.RoomID); err != nil {
		h.sendError(sess, CodeValidationError, err.Error())
		return
	}

	h.rooms.Join(sess.ID(), payload.RoomID)
	h.broadcastToRoom(payload.RoomID,
		NewRoomNoticeEvent(EventUserJoinedRoom, sess.UserID(), payload.RoomID), sess.ID())
}

func (h *Hub) handleLeaveRoom(sess *Session, event *Event) {
	var payload JoinRoomPayload
	if err := decodePayload(event.Data, &payload); err != nil {
		h.sendError(sess, CodeValidationError, "invalid leaveRoom payload")
		return
	}
	if err := validateRoomID(payload.RoomID); err != nil {
		h.sendError(sess, CodeValidationError, err.Error())
		return
	}

	h.rooms.Leave(sess.ID(), payload.RoomID)
	h.broadcastToRoom(payload.RoomID,
		NewRoomNoticeEvent(EventUserLeftRoom, sess.UserID(), payload.RoomID), sess.ID())
}

func (h *Hub) handleSendMessage(ctx context.Context, sess *Session, event *Event) {
	var payload SendMessagePayload
	if err := decodePayload(event.Data, &payload); err != nil {
		h.sendError(sess, CodeValidationError, "invalid sendMessage payload")
		return
	}
	if err := validateContent(payload.Content); err != nil {
		h.sendError(sess, CodeValidationError, err.Error())
		return
	}

	// The author is always the connection's verified identity.
	msg, err := h.messages.CreateMessage(ctx, sess.UserID(), payload.Content, payload.ParentMessageID)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrInvalidParent):
			h.sendError(sess, CodeNotFound, "parent message not found")
		default:
			h.logger.Error("message persistence failed",
				"connID", sess.ID(), "userID", sess.UserID(), "error", err)
			h.sendError(sess, CodeUpstreamFailure, "message could not be saved")
		}
		return
	}

	h.broadcastGlobal(NewEvent(EventNewMessage, msg.AuthorID, map[string]any{
		"id":              msg.ID,
		"authorId":        msg.AuthorID,
		"content":         msg.Content,
		"parentMessageId": msg.ParentMessageID,
		"createdAt":       msg.CreatedAt,
	}), "")

	if msg.ParentMessageID != "" {
		h.notifyParentAuthor(ctx, sess, msg)
	}
}

// notifyParentAuthor unicasts a reply notification to every connection of
// the parent message's author. Best effort: a missing parent at this point
// only costs the notice, never the already-broadcast message.
func (h *Hub) notifyParentAuthor(ctx context.Context, sess *Session, msg *store.Message) {
	parent, err := h.messages.GetMessageByID(ctx, msg.ParentMessageID)
	if err != nil {
		h.logger.Warn("parent lookup for reply notice failed",
			"parentMessageId", msg.ParentMessageID, "error", err)
		return
	}
	if parent.AuthorID == msg.AuthorID {
		return
	}

	event := NewEvent(EventMessageReply, msg.AuthorID, map[string]any{
		"messageId":       msg.ID,
		"parentMessageId": parent.ID,
		"authorId":        msg.AuthorID,
		"content":         msg.Content,
	})
	h.dispatcher.Deliver(event, h.sendersFor(h.registry.ConnectionsFor(parent.AuthorID), ""))
}

func (h *Hub) handleTyping(sess *Session, event *Event) {
	var payload TypingPayload
	if err := decodePayload(event.Data, &payload); err != nil {
		h.sendError(sess, CodeValidationError, "invalid typing payload")
		return
	}
	roomID := payload.RoomID
	if roomID == "" {
		roomID = DefaultRoom
	}
	if err := validateRoomID(roomID); err != nil {
		h.sendError(sess, CodeValidationError, err.Error())
		return
	}

	if payload.IsTyping {
		h.typing.StartTyping(roomID, sess.UserID())
	} else {
		h.typing.StopTyping(roomID, sess.UserID())
	}
	h.broadcastToRoom(roomID, NewTypingEvent(sess.UserID(), roomID, payload.IsTyping), sess.ID())
}

func (h *Hub) handleGetOnlineUsers(sess *Session) {
	h.dispatcher.Unicast(NewOnlineUsersEvent(sess.UserID(), h.registry.OnlineUsers()), sess.sender)
}

func (h *Hub) broadcastPresence(ctx context.Context, tr *PresenceTransition) {
	h.broadcastGlobal(NewPresenceEvent(tr.UserID, tr.Online), "")

	if h.mirror == nil {
		return
	}
	var err error
	if tr.Online {
		err = h.mirror.SetOnline(ctx, tr.UserID)
	} else {
		err = h.mirror.SetOffline(ctx, tr.UserID)
	}
	if err != nil {
		h.logger.Warn("presence mirror update failed",
			"userID", tr.UserID, "online", tr.Online, "error", err)
	}
}

// broadcastGlobal delivers to every active connection. Connections that have
// not authenticated are invisible and receive nothing.
func (h *Hub) broadcastGlobal(event *Event, excludeConnID string) {
	h.mu.RLock()
	targets := make([]Sender, 0, len(h.sessions))
	for connID, sess := range h.sessions {
		if connID == excludeConnID || sess.State() != StateActive {
			continue
		}
		targets = append(targets, sess.sender)
	}
	h.mu.RUnlock()

	h.dispatcher.Deliver(event, targets)
}

func (h *Hub) broadcastToRoom(roomID string, event *Event, excludeConnID string) {
	h.dispatcher.Deliver(event, h.sendersFor(h.rooms.MembersOf(roomID), excludeConnID))
}

func (h *Hub) sendersFor(connIDs []string, excludeConnID string) []Sender {
	h.mu.RLock()
	defer h.mu.RUnlock()

	targets := make([]Sender, 0, len(connIDs))
	for _, connID := range connIDs {
		if connID == excludeConnID {
			continue
		}
		if sess, ok := h.sessions[connID]; ok {
			targets = append(targets, sess.sender)
		}
	}
	return targets
}

func (h *Hub) sendError(sess *Session, code, message string) {
	h.dispatcher.Unicast(NewErrorEvent(sess.UserID(), code, message), sess.sender)
}
