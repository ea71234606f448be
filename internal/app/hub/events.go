/*
Package hub contains the core logic of the realtime server: the identity and
presence registry, room addressing, and the chat protocol engine.

This file defines the wire protocol: the event envelope exchanged with clients
and the payload shapes of every client-to-server and server-to-client event.
*/
package hub

import (
	"encoding/json"
	"time"
)

// Client-to-server event names.
const (
	EventJoinGeneral         = "join-general"
	EventGeneralMessage      = "general-message"
	EventJoinPrivate         = "join-private"
	EventLoadPrivateMessages = "load-private-messages"
	EventPrivateMessage      = "private-message"
)

// Server-to-client event names.
const (
	EventLoadMessages      = "load-messages"
	EventOnlineUsers       = "online-users"
	EventSessionTerminated = "session-terminated"
	EventAppNotification   = "app-notification"
	EventProductState      = "product-state"
)

// Envelope is the frame exchanged over the socket in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// marshalEvent builds a serialized Envelope for the given event and payload.
func marshalEvent(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

// GeneralMessagePayload is the body of a general-message send.
type GeneralMessagePayload struct {
	Content string `json:"content"`
}

// TargetPayload addresses a private-chat counterpart. Either an explicit
// nickname or userId can be supplied; the generic Target field accepts either
// and is classified by UUID shape.
type TargetPayload struct {
	TargetNickname string `json:"targetNickname,omitempty"`
	TargetUserID   string `json:"targetUserId,omitempty"`
	Target         string `json:"target,omitempty"`
	ProductID      string `json:"productId,omitempty"`
}

// PrivateMessagePayload is the body of a private-message send.
type PrivateMessagePayload struct {
	TargetPayload
	Content string `json:"content"`
}

// ChatMessageView is the client-facing projection of a stored message.
type ChatMessageView struct {
	ID           string    `json:"id"`
	Content      string    `json:"content"`
	UserNickname string    `json:"userNickname"`
	CreatedAt    time.Time `json:"createdAt"`
	ProductID    string    `json:"productId,omitempty"`
}

// PrivateHistoryView is the reply to a load-private-messages request.
type PrivateHistoryView struct {
	Messages  []ChatMessageView `json:"messages"`
	ProductID string            `json:"productId,omitempty"`
}

// SessionTerminatedPayload tells an evicted socket why it is being closed.
type SessionTerminatedPayload struct {
	Message string `json:"message"`
}

// AppNotification is a targeted in-app notification pushed by the bridge.
// It carries both literal and translation-key variants so the client can
// localize.
type AppNotification struct {
	Type             string         `json:"type"`
	Title            string         `json:"title"`
	Message          string         `json:"message"`
	TitleKey         string         `json:"titleKey,omitempty"`
	MessageKey       string         `json:"messageKey,omitempty"`
	Params           map[string]any `json:"params,omitempty"`
	Action           string         `json:"action,omitempty"`
	NotificationType string         `json:"notificationType,omitempty"`
	OwnerReserve     bool           `json:"ownerReserve,omitempty"`
}

// ProductState is the payload fanned out to every socket when a listing's
// reservation or loan state changes.
type ProductState struct {
	ProductID  string `json:"productId"`
	Reserved   bool   `json:"reserved"`
	ReservedBy string `json:"reservedBy,omitempty"`
	Prestec    bool   `json:"prestec,omitempty"`
}
