package gateway

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// EventType identifies a WebSocket event using a custom enum type for better type safety
type EventType string

// Inbound event types sent by clients
const (
	EventAuthenticate   EventType = "authenticate"
	EventJoinRoom       EventType = "joinRoom"
	EventLeaveRoom      EventType = "leaveRoom"
	EventSendMessage    EventType = "sendMessage"
	EventTyping         EventType = "typing"
	EventGetOnlineUsers EventType = "getOnlineUsers"
)

// Outbound event types emitted by the gateway
const (
	EventConnected         EventType = "connected"
	EventUserJoinedRoom    EventType = "userJoinedRoom"
	EventUserLeftRoom      EventType = "userLeftRoom"
	EventNewMessage        EventType = "newMessage"
	EventMessageReply      EventType = "messageReply"
	EventMessageUpdated    EventType = "messageUpdated"
	EventMessageDeleted    EventType = "messageDeleted"
	EventUserTyping        EventType = "userTyping"
	EventUserStoppedTyping EventType = "userStoppedTyping"
	EventOnlineUsers       EventType = "onlineUsers"
	EventUserOnline        EventType = "userOnline"
	EventUserOffline       EventType = "userOffline"
	EventError             EventType = "error"
)

// String returns the string representation of the EventType
func (et EventType) String() string {
	return string(et)
}

// IsInbound checks if the EventType is one a client is allowed to send
func (et EventType) IsInbound() bool {
	switch et {
	case EventAuthenticate, EventJoinRoom, EventLeaveRoom,
		EventSendMessage, EventTyping, EventGetOnlineUsers:
		return true
	default:
		return false
	}
}

// Event is the wire envelope shared by every inbound and outbound frame
type Event struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Data      map[string]any `json:"data"`
	Timestamp int64          `json:"timestamp"`
	UserID    string         `json:"userId,omitempty"`
}

// NewEvent creates a new event with the specified type and data
func NewEvent(eventType EventType, userID string, data map[string]any) *Event {
	if data == nil {
		data = make(map[string]any)
	}
	return &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now().Unix(),
		UserID:    userID,
	}
}

// NewErrorEvent creates a scoped error event for the sender only
func NewErrorEvent(userID, code, message string) *Event {
	return NewEvent(EventError, userID, map[string]any{
		"code":    code,
		"message": message,
	})
}

// NewConnectedEvent acknowledges a successful registration to the new connection
func NewConnectedEvent(connectionID, userID string) *Event {
	return NewEvent(EventConnected, userID, map[string]any{
		"connectionId": connectionID,
		"status":       "connected",
	})
}

// NewRoomNoticeEvent builds userJoinedRoom/userLeftRoom notices
func NewRoomNoticeEvent(eventType EventType, userID, roomID string) *Event {
	return NewEvent(eventType, userID, map[string]any{
		"userId": userID,
		"roomId": roomID,
	})
}

// NewTypingEvent builds userTyping/userStoppedTyping notices
func NewTypingEvent(userID, roomID string, isTyping bool) *Event {
	eventType := EventUserTyping
	if !isTyping {
		eventType = EventUserStoppedTyping
	}
	return NewEvent(eventType, userID, map[string]any{
		"userId": userID,
		"roomId": roomID,
	})
}

// NewPresenceEvent builds userOnline/userOffline broadcasts
func NewPresenceEvent(userID string, online bool) *Event {
	eventType := EventUserOnline
	if !online {
		eventType = EventUserOffline
	}
	return NewEvent(eventType, userID, map[string]any{
		"userId": userID,
	})
}

// NewOnlineUsersEvent answers a getOnlineUsers request
func NewOnlineUsersEvent(userID string, users []string) *Event {
	if users == nil {
		users = []string{}
	}
	return NewEvent(EventOnlineUsers, userID, map[string]any{
		"users": users,
	})
}

// Payload limits enforced before dispatching to a handler
const (
	maxContentRunes = 2000
	maxRoomIDLength = 64
)

// JoinRoomPayload is the payload of joinRoom and leaveRoom events
type JoinRoomPayload struct {
	RoomID string `json:"roomId"`
}

// SendMessagePayload is the payload of sendMessage events
type SendMessagePayload struct {
	Content         string `json:"content"`
	ParentMessageID string `json:"parentMessageId,omitempty"`
}

// TypingPayload is the payload of typing events. RoomID falls back to the
// default room when omitted.
type TypingPayload struct {
	RoomID   string `json:"roomId,omitempty"`
	IsTyping bool   `json:"isTyping"`
}

// AuthenticatePayload carries connection credentials for the grace-period
// authentication path.
type AuthenticatePayload struct {
	Token  string `json:"token"`
	UserID string `json:"userId,omitempty"`
}

// decodePayload converts the envelope's generic data map into a typed payload
func decodePayload(data map[string]any, dest any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}

func validateRoomID(roomID string) error {
	if strings.TrimSpace(roomID) == "" {
		return fmt.Errorf("roomId is required")
	}
	if utf8.RuneCountInString(roomID) > maxRoomIDLength {
		return fmt.Errorf("roomId exceeds %d characters", maxRoomIDLength)
	}
	return nil
}

func validateContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("content is required")
	}
	if utf8.RuneCountInString(content) > maxContentRunes {
		return fmt.Errorf("content exceeds %d characters", maxContentRunes)
	}
	return nil
}
