/*
Package hub contains the core logic of the realtime server.

This file defines the Hub struct: the identity and presence registry plus the
event-driven chat protocol engine. The Hub owns the only in-memory shared
mutable state of the process (user/socket/roster maps and room membership);
this is a single-instance design, running several hubs behind a load balancer
would split presence state.
*/
package hub

import (
	"context"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"trocchat/internal/app/store"
	"trocchat/internal/pkg/logx"
)

// MaxContentChars is the maximum length of a chat message in characters.
const MaxContentChars = 1000

// Hub is the central registry of live connections and the chat protocol engine.
// One Hub exists per process; every handler and the notification bridge go
// through it.
type Hub struct {
	// mu protects all four maps. Mutation and the follow-up roster snapshot
	// happen under the same critical section, so a roster broadcast always
	// reflects the registry state that produced it.
	mu sync.RWMutex

	// byUser maps userId to its single live connection.
	byUser map[string]*Client

	// identities maps every live connection back to its identity.
	identities map[*Client]Identity

	// roster maps userId to nickname for presence broadcasts.
	roster map[string]string

	// rooms maps a room id to its member set.
	rooms map[string]map[*Client]struct{}

	store store.Store

	historyLimit int

	logger zerolog.Logger
}

// NewHub constructs a Hub backed by the given store. historyLimit caps the
// general-room replay on join.
func NewHub(st store.Store, historyLimit int) *Hub {
	return &Hub{
		byUser:       make(map[string]*Client),
		identities:   make(map[*Client]Identity),
		roster:       make(map[string]string),
		rooms:        make(map[string]map[*Client]struct{}),
		store:        st,
		historyLimit: historyLimit,
		logger:       logx.With("hub"),
	}
}

// Register records a new connection for its identity. A prior connection for
// the same userId is evicted: it receives a session-terminated event followed
// by a close frame with CloseCodeSessionReplaced. Exactly one roster broadcast
// follows, reflecting the post-eviction state.
func (h *Hub) Register(c *Client) {
	identity := c.identity

	h.mu.Lock()

	if prev, ok := h.byUser[identity.UserID]; ok && prev != c {
		h.logger.Warn().
			Str("user_id", identity.UserID).
			Msg("Identity already connected. Evicting previous session.")

		h.evictLocked(prev)
	}

	h.byUser[identity.UserID] = c
	h.identities[c] = identity
	h.roster[identity.UserID] = identity.Nickname

	frame := h.rosterFrameLocked()
	h.mu.Unlock()

	h.broadcastFrame(frame)

	h.logger.Info().
		Str("user_id", identity.UserID).
		Str("nickname", identity.Nickname).
		Msg("Client registered.")
}

// evictLocked terminates a replaced session. Caller holds h.mu.
func (h *Hub) evictLocked(prev *Client) {
	prev.emit(EventSessionTerminated, SessionTerminatedPayload{
		Message: "Session replaced by a new connection.",
	})
	prev.closeSend(CloseCodeSessionReplaced, "session replaced")

	delete(h.byUser, prev.identity.UserID)
	delete(h.roster, prev.identity.UserID)
	delete(h.identities, prev)
	h.leaveAllRoomsLocked(prev)
}

// Unregister removes a connection from the registry. The userId mapping is
// only cleared when it still points at this exact connection, which guards
// against a stale disconnect racing a newer registration. One roster broadcast
// follows.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()

	if _, known := h.identities[c]; !known {
		h.mu.Unlock()
		return
	}

	if current, ok := h.byUser[c.identity.UserID]; ok && current == c {
		delete(h.byUser, c.identity.UserID)
		delete(h.roster, c.identity.UserID)
	} else {
		h.logger.Info().
			Str("user_id", c.identity.UserID).
			Msg("Ignoring registry removal for stale connection.")
	}

	delete(h.identities, c)
	h.leaveAllRoomsLocked(c)

	frame := h.rosterFrameLocked()
	h.mu.Unlock()

	h.broadcastFrame(frame)

	h.logger.Info().Str("user_id", c.identity.UserID).Msg("Client unregistered.")
}

// LookupClient returns the live connection for a userId, or nil.
func (h *Hub) LookupClient(userID string) *Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.byUser[userID]
}

// OnlineNicknames returns the current presence roster, sorted.
func (h *Hub) OnlineNicknames() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.nicknamesLocked()
}

func (h *Hub) nicknamesLocked() []string {
	nicknames := make([]string, 0, len(h.roster))
	for _, nickname := range h.roster {
		nicknames = append(nicknames, nickname)
	}
	sort.Strings(nicknames)
	return nicknames
}

// rosterFrameLocked serializes the online-users event for the current roster.
// Caller holds h.mu.
func (h *Hub) rosterFrameLocked() []byte {
	frame, err := marshalEvent(EventOnlineUsers, h.nicknamesLocked())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to marshal roster broadcast.")
		return nil
	}
	return frame
}

// broadcastFrame delivers a serialized frame to every live connection.
func (h *Hub) broadcastFrame(frame []byte) {
	if frame == nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.identities {
		c.enqueue(frame)
	}
}

// joinRoom adds the client to a room's member set.
func (h *Hub) joinRoom(c *Client, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.rooms[roomID]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[roomID] = members
	}
	members[c] = struct{}{}
}

// leaveAllRoomsLocked removes the client from every room, dropping rooms that
// become empty. Caller holds h.mu.
func (h *Hub) leaveAllRoomsLocked(c *Client) {
	for roomID, members := range h.rooms {
		if _, ok := members[c]; ok {
			delete(members, c)
			if len(members) == 0 {
				delete(h.rooms, roomID)
			}
		}
	}
}

// broadcastToRoom delivers an event to every member of a room.
func (h *Hub) broadcastToRoom(roomID, event string, data any) {
	frame, err := marshalEvent(event, data)
	if err != nil {
		h.logger.Error().Err(err).Str("event", event).Msg("Failed to marshal room broadcast.")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.rooms[roomID] {
		c.enqueue(frame)
	}
}

// EmitToUser delivers an event directly to a user's live connection. Returns
// false when the user has no connection; that is a normal branch, not an error.
func (h *Hub) EmitToUser(userID, event string, data any) bool {
	h.mu.RLock()
	c, ok := h.byUser[userID]
	h.mu.RUnlock()

	if !ok {
		return false
	}
	c.emit(event, data)
	return true
}

// BroadcastAll delivers an event to every connected socket, whether or not it
// joined any room.
func (h *Hub) BroadcastAll(event string, data any) {
	frame, err := marshalEvent(event, data)
	if err != nil {
		h.logger.Error().Err(err).Str("event", event).Msg("Failed to marshal broadcast.")
		return
	}
	h.broadcastFrame(frame)
}

// Shutdown closes every live connection, typically during graceful stop.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.identities))
	for c := range h.identities {
		clients = append(clients, c)
	}
	h.byUser = make(map[string]*Client)
	h.identities = make(map[*Client]Identity)
	h.roster = make(map[string]string)
	h.rooms = make(map[string]map[*Client]struct{})
	h.mu.Unlock()

	for _, c := range clients {
		c.closeSend(CloseCodeSessionReplaced, "server shutting down")
	}

	h.logger.Info().Int("clients", len(clients)).Msg("Hub shutdown complete.")
}

// --- Chat protocol engine ---

// validContent trims the content and enforces the length limit. The empty
// string result signals the event should be dropped.
func validContent(content string) (string, bool) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" || utf8.RuneCountInString(trimmed) > MaxContentChars {
		return "", false
	}
	return trimmed, true
}

// messageView projects a stored message for clients.
func messageView(m store.ChatMessage) ChatMessageView {
	return ChatMessageView{
		ID:           m.ID,
		Content:      m.Content,
		UserNickname: m.AuthorNick,
		CreatedAt:    m.CreatedAt,
		ProductID:    m.ProductID,
	}
}

// HandleJoinGeneral subscribes the client to the general room and replays the
// most recent history to the requesting socket only.
func (h *Hub) HandleJoinGeneral(ctx context.Context, c *Client) {
	h.joinRoom(c, GeneralRoom)

	history, err := h.store.GeneralHistory(ctx, h.historyLimit)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to load general history.")
		return
	}

	views := make([]ChatMessageView, 0, len(history))
	for _, m := range history {
		views = append(views, messageView(m))
	}

	c.emit(EventLoadMessages, views)
}

// HandleGeneralMessage validates, persists and broadcasts a general-room
// message. Invalid content is dropped without any reply.
func (h *Hub) HandleGeneralMessage(ctx context.Context, c *Client, payload GeneralMessagePayload) {
	content, ok := validContent(payload.Content)
	if !ok {
		h.logger.Warn().Str("user_id", c.identity.UserID).Msg("Dropping invalid general message.")
		return
	}

	message := store.ChatMessage{
		ID:         uuid.NewString(),
		Content:    content,
		AuthorID:   c.identity.UserID,
		AuthorNick: c.identity.Nickname,
		RoomID:     GeneralRoom,
		IsPrivate:  false,
	}

	if err := h.store.SaveMessage(ctx, &message); err != nil {
		h.logger.Error().Err(err).Msg("Failed to persist general message.")
		return
	}

	h.broadcastToRoom(GeneralRoom, EventGeneralMessage, messageView(message))
}

// HandleJoinPrivate subscribes the client to the derived private room. An
// unresolvable target is dropped silently.
func (h *Hub) HandleJoinPrivate(ctx context.Context, c *Client, payload TargetPayload) {
	target, ok := h.resolveTarget(ctx, payload)
	if !ok {
		h.logger.Warn().Str("user_id", c.identity.UserID).Msg("Dropping join-private with unresolvable target.")
		return
	}

	h.joinRoom(c, PrivateRoomID(c.identity.UserID, target.UserID, target.ProductID))
}

// HandleLoadPrivateMessages replays the private thread with the resolved
// target (scoped to the supplied productId) to the requesting socket.
func (h *Hub) HandleLoadPrivateMessages(ctx context.Context, c *Client, payload TargetPayload) {
	target, ok := h.resolveTarget(ctx, payload)
	if !ok {
		h.logger.Warn().Str("user_id", c.identity.UserID).Msg("Dropping load-private-messages with unresolvable target.")
		return
	}

	roomID := PrivateRoomID(c.identity.UserID, target.UserID, target.ProductID)

	history, err := h.store.PrivateHistory(ctx, roomID)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to load private history.")
		return
	}

	views := make([]ChatMessageView, 0, len(history))
	for _, m := range history {
		views = append(views, messageView(m))
	}

	c.emit(EventLoadPrivateMessages, PrivateHistoryView{
		Messages:  views,
		ProductID: target.ProductID,
	})
}

// HandlePrivateMessage validates, persists and delivers a private message. It
// is echoed to the sender's socket and, when the target is online, delivered
// directly to the target's socket. It is never a room broadcast, so stale
// room members cannot observe it.
func (h *Hub) HandlePrivateMessage(ctx context.Context, c *Client, payload PrivateMessagePayload) {
	target, ok := h.resolveTarget(ctx, payload.TargetPayload)
	if !ok {
		h.logger.Warn().Str("user_id", c.identity.UserID).Msg("Dropping private message with unresolvable target.")
		return
	}

	content, ok := validContent(payload.Content)
	if !ok {
		h.logger.Warn().Str("user_id", c.identity.UserID).Msg("Dropping invalid private message.")
		return
	}

	message := store.ChatMessage{
		ID:         uuid.NewString(),
		Content:    content,
		AuthorID:   c.identity.UserID,
		AuthorNick: c.identity.Nickname,
		RoomID:     PrivateRoomID(c.identity.UserID, target.UserID, target.ProductID),
		IsPrivate:  true,
		ProductID:  target.ProductID,
	}

	if err := h.store.SaveMessage(ctx, &message); err != nil {
		h.logger.Error().Err(err).Msg("Failed to persist private message.")
		return
	}

	view := messageView(message)
	c.emit(EventPrivateMessage, view)
	h.EmitToUser(target.UserID, EventPrivateMessage, view)
}
