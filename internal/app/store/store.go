/*
Package store defines the data-access contracts the realtime server depends on,
plus the shapes of the externally persisted entities it reads and writes.

The marketplace web tier owns most of the schema (users, products, notification
preferences, push subscriptions); this core only queries those tables. Chat
messages are the one entity the realtime server owns end to end.
*/
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("not found")

// ChatMessage is a persisted chat message. Messages are immutable once stored
// and are never deleted by the realtime server.
type ChatMessage struct {
	ID         string
	Content    string
	AuthorID   string
	AuthorNick string
	RoomID     string
	IsPrivate  bool

	// ProductID scopes a private message to a listing; empty for the general
	// room and for product-less private threads.
	ProductID string

	CreatedAt time.Time
}

// NotificationPrefs is a user's opt-in/opt-out rule set, read-only here.
type NotificationPrefs struct {
	// ReceiveAll delivers every notification type regardless of allow-lists.
	ReceiveAll bool

	// AllowedNicknames delivers notifications triggered by these actors.
	AllowedNicknames []string

	// AllowedKeywords delivers notifications whose product name contains one
	// of these keywords (case-insensitive substring).
	AllowedKeywords []string

	// EnabledTypes, when non-empty, restricts delivery to these notification types.
	EnabledTypes []string
}

// PushSubscription is a browser push endpoint registered by the web tier.
type PushSubscription struct {
	ID       int64
	Endpoint string
	P256dh   string
	Auth     string
}

// MessageStore persists and replays chat messages.
type MessageStore interface {
	// SaveMessage stores the message and fills in its CreatedAt from the
	// database commit timestamp.
	SaveMessage(ctx context.Context, m *ChatMessage) error

	// GeneralHistory returns the most recent limit general-room messages in
	// ascending creation order.
	GeneralHistory(ctx context.Context, limit int) ([]ChatMessage, error)

	// PrivateHistory returns every message of the given private room in
	// ascending creation order.
	PrivateHistory(ctx context.Context, roomID string) ([]ChatMessage, error)
}

// UserDirectory resolves marketplace identities and product ownership.
type UserDirectory interface {
	// UserIDByNickname resolves a nickname to a userId, ErrNotFound when unknown.
	UserIDByNickname(ctx context.Context, nickname string) (string, error)

	// NicknameByUserID resolves a userId to its nickname, ErrNotFound when unknown.
	NicknameByUserID(ctx context.Context, userID string) (string, error)

	// OwnsProduct reports whether the product exists and is owned by userID.
	OwnsProduct(ctx context.Context, userID, productID string) (bool, error)
}

// NotificationStore reads notification preferences and manages push subscriptions.
type NotificationStore interface {
	// Preferences returns the user's notification preferences, or nil when the
	// user never configured any.
	Preferences(ctx context.Context, userID string) (*NotificationPrefs, error)

	// PushSubscriptions returns every push endpoint registered for the user.
	PushSubscriptions(ctx context.Context, userID string) ([]PushSubscription, error)

	// DeletePushSubscription removes a subscription the push provider reported gone.
	DeletePushSubscription(ctx context.Context, id int64) error
}

// Store is the full data-access surface consumed by the realtime server.
type Store interface {
	MessageStore
	UserDirectory
	NotificationStore
}
