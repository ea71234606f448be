/*
Package hub contains the core logic of the realtime server.

This file defines the Client struct, representing one live socket bound to one
identity. It manages the connection lifecycle and the message pumps (ReadPump
and WritePump), and dispatches inbound protocol events to the Hub.
*/
package hub

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"trocchat/internal/pkg/logx"
)

const (
	// timeout duration for writing to the WebSocket connection.
	writeWait = 10 * time.Second

	// maximum time allowed for the server to wait for a Pong message from the client.
	pongWait = 60 * time.Second

	// frequency at which the server sends a Ping message.
	pingPeriod = (pongWait * 9) / 10

	// maximum allowed size (in bytes) of a frame sent by the client.
	maxMessageSize = 8192

	// send channel capacity per client.
	sendQueueSize = 256

	// CloseCodeSessionReplaced is a custom WebSocket Close Code (4000-4999
	// range) signalling that the session was replaced by a newer connection.
	CloseCodeSessionReplaced = 4100
)

// Identity is the authenticated {userId, nickname} pair a connection belongs
// to. It is immutable for the lifetime of the connection.
type Identity struct {
	UserID   string
	Nickname string
}

// wsConn is the subset of *websocket.Conn the client needs. Tests substitute
// an in-memory implementation.
type wsConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Client represents an active socket connection and its associated identity.
type Client struct {
	hub *Hub

	conn wsConn

	identity Identity

	// send queues outbound frames for WritePump.
	send chan []byte

	// closeCode/closeReason are written before closing send so WritePump can
	// emit a meaningful close frame.
	closeCode   int
	closeReason string

	closeOnce sync.Once

	logger zerolog.Logger
}

// NewClient constructs a Client for an upgraded connection.
func NewClient(h *Hub, conn wsConn, identity Identity) *Client {
	clientLogger := logx.Logger().With().
		Str("component", "client").
		Str("user_id", identity.UserID).
		Logger()

	return &Client{
		hub:         h,
		conn:        conn,
		identity:    identity,
		send:        make(chan []byte, sendQueueSize),
		closeCode:   websocket.CloseNormalClosure,
		closeReason: "",
		logger:      clientLogger,
	}
}

// Identity returns the identity this connection authenticated as.
func (c *Client) Identity() Identity {
	return c.identity
}

// enqueue queues a serialized frame for delivery, dropping it when the queue
// is full so one slow client cannot stall the event flow.
func (c *Client) enqueue(frame []byte) {
	defer func() {
		// Losing the race against closeSend is harmless; the frame is dropped.
		_ = recover()
	}()

	select {
	case c.send <- frame:
	default:
		c.logger.Warn().Int("queue_len", len(c.send)).Msg("Client send queue full, dropping frame")
	}
}

// emit marshals and queues an event for this client.
func (c *Client) emit(event string, data any) {
	frame, err := marshalEvent(event, data)
	if err != nil {
		c.logger.Error().Err(err).Str("event", event).Msg("Failed to marshal outbound event")
		return
	}
	c.enqueue(frame)
}

// closeSend closes the outbound queue exactly once, after recording the close
// frame WritePump should end with.
func (c *Client) closeSend(code int, reason string) {
	c.closeOnce.Do(func() {
		c.closeCode = code
		c.closeReason = reason
		close(c.send)
	})
}

// ReadPump reads frames from the connection, maintains the Pong deadline, and
// dispatches protocol events until the connection drops.
func (c *Client) ReadPump() {
	defer c.cleanupOnDisconnect()

	c.conn.SetReadLimit(maxMessageSize)

	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set read deadline")
		return
	}

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info().Err(err).Msg("Error reading frame (client close/going away)")
			}
			break
		}

		c.dispatch(frame)
	}
}

// cleanupOnDisconnect unregisters the client and closes the connection when
// ReadPump terminates.
func (c *Client) cleanupOnDisconnect() {
	c.logger.Info().Msg("Client connection cleanup starting.")

	c.hub.Unregister(c)
	c.closeSend(websocket.CloseNormalClosure, "")

	if err := c.conn.Close(); err != nil {
		c.logger.Debug().Err(err).Msg("Client connection close error")
	}
}

// dispatch parses an inbound envelope and routes it to the protocol engine.
// Unknown events and malformed payloads are dropped without a reply.
func (c *Client) dispatch(frame []byte) {
	var envelope Envelope
	if err := json.Unmarshal(frame, &envelope); err != nil {
		c.logger.Warn().Err(err).Msg("Client sent invalid JSON")
		return
	}

	ctx := context.Background()

	switch envelope.Event {
	case EventJoinGeneral:
		c.hub.HandleJoinGeneral(ctx, c)

	case EventGeneralMessage:
		var payload GeneralMessagePayload
		if err := json.Unmarshal(envelope.Data, &payload); err != nil {
			c.logger.Warn().Err(err).Msg("Client sent invalid general-message payload")
			return
		}
		c.hub.HandleGeneralMessage(ctx, c, payload)

	case EventJoinPrivate:
		var payload TargetPayload
		if err := json.Unmarshal(envelope.Data, &payload); err != nil {
			c.logger.Warn().Err(err).Msg("Client sent invalid join-private payload")
			return
		}
		c.hub.HandleJoinPrivate(ctx, c, payload)

	case EventLoadPrivateMessages:
		var payload TargetPayload
		if err := json.Unmarshal(envelope.Data, &payload); err != nil {
			c.logger.Warn().Err(err).Msg("Client sent invalid load-private-messages payload")
			return
		}
		c.hub.HandleLoadPrivateMessages(ctx, c, payload)

	case EventPrivateMessage:
		var payload PrivateMessagePayload
		if err := json.Unmarshal(envelope.Data, &payload); err != nil {
			c.logger.Warn().Err(err).Msg("Client sent invalid private-message payload")
			return
		}
		c.hub.HandlePrivateMessage(ctx, c, payload)

	default:
		c.logger.Warn().Str("event", envelope.Event).Msg("Client sent unsupported event")
	}
}

// WritePump writes queued frames to the connection and keeps the heartbeat
// alive with periodic pings. When the send queue is closed it emits the
// recorded close frame and shuts the connection down.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()

		if err := c.conn.Close(); err != nil {
			c.logger.Debug().Err(err).Msg("Client connection close error in WritePump")
		}
	}()

	for {
		select {
		case frame, ok := <-c.send:
			if !c.writeQueuedFrame(frame, ok) {
				return
			}

		case <-ticker.C:
			if !c.writePing() {
				return
			}
		}
	}
}

// writeQueuedFrame writes one frame pulled from the send queue. Returns false
// when the WritePump loop should terminate.
func (c *Client) writeQueuedFrame(frame []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline")
		return false
	}

	if !ok {
		closeFrame := websocket.FormatCloseMessage(c.closeCode, c.closeReason)
		if err := c.conn.WriteMessage(websocket.CloseMessage, closeFrame); err != nil {
			c.logger.Debug().Err(err).Msg("Error writing close frame")
		}
		return false
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		c.logger.Error().Err(err).Msg("Error writing frame")
		return false
	}

	return true
}

// writePing sends a heartbeat ping. Returns false on write failure.
func (c *Client) writePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline on ping")
		return false
	}

	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.logger.Error().Err(err).Msg("Error writing ping")
		return false
	}

	return true
}
