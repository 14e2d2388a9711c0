// Package store defines the contract with the external message-persistence
// service. The gateway never owns storage; it creates and reads messages
// exclusively through this interface.
package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when the target message does not exist.
	ErrNotFound = errors.New("message not found")

	// ErrInvalidParent is returned when a parentMessageId references a
	// message that cannot be replied to.
	ErrInvalidParent = errors.New("invalid parent message")
)

// Message is the persistence service's view of a chat message.
type Message struct {
	ID              string    `json:"id"`
	AuthorID        string    `json:"authorId"`
	Content         string    `json:"content"`
	ParentMessageID string    `json:"parentMessageId,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

// MessageStore is the narrow persistence interface the hub consumes.
type MessageStore interface {
	CreateMessage(ctx context.Context, authorID, content, parentMessageID string) (*Message, error)
	GetMessageByID(ctx context.Context, id string) (*Message, error)
}
