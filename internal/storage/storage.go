package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Status is the persisted presence status of a user.
type Status string

const (
	StatusOnline       Status = "online"
	StatusOffline      Status = "offline"
	StatusDisconnected Status = "disconnected"
)

// User represents a persisted presence record.
type User struct {
	Username     string
	Status       Status
	ConnectionID string
	UpdatedAt    time.Time
}

// ChatMessage is a durable one-to-one chat record.
type ChatMessage struct {
	ID        uint
	Sender    string
	Receiver  string
	Body      string
	CreatedAt time.Time
	Delivered bool
}

// Store defines persistence operations used by the server.
type Store interface {
	Close() error
	Migrate(ctx context.Context) error

	// CreateMessage stores msg as undelivered and fills its ID and CreatedAt.
	CreateMessage(ctx context.Context, msg *ChatMessage) error
	// MarkDelivered flags exactly the given rows as delivered.
	MarkDelivered(ctx context.Context, ids ...uint) error
	// FindUndelivered lists undelivered messages for receiver, oldest first.
	FindUndelivered(ctx context.Context, receiver string) ([]ChatMessage, error)
	GetMessage(ctx context.Context, id uint) (*ChatMessage, error)

	// UpsertUserStatus records status for username. An empty connectionID is stored as null.
	UpsertUserStatus(ctx context.Context, username string, status Status, connectionID string) error
	GetUser(ctx context.Context, username string) (*User, error)
}
