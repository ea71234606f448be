/*
Package handler provides the HTTP handlers and routing setup for the realtime server.

This file contains the WebSocket handshake: rate limiting, session token
verification (with the relaxed development fallback), connection upgrading and
client lifecycle start.
*/
package handler

import (
	"net"
	"net/http"

	"github.com/gorilla/websocket"

	"trocchat/internal/app/hub"
	"trocchat/internal/pkg/errs"
	"trocchat/internal/pkg/limiter"
	"trocchat/internal/pkg/logx"
	"trocchat/internal/pkg/resp"
)

// SessionCookieName is the cookie the web tier stores the session token in.
const SessionCookieName = "troc_session"

// handshakeToken extracts the session token from the request: query parameter
// first, then the session cookie.
func handshakeToken(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	if cookie, err := r.Cookie(SessionCookieName); err == nil {
		return cookie.Value
	}
	return ""
}

// HandleWebSocket creates the HandlerFunc that processes WebSocket connection requests.
func HandleWebSocket(upgrader websocket.Upgrader, rateLimiter *limiter.IPRateLimiter, deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = r.RemoteAddr
		}
		if ip == "" {
			ip = "unknown_ip"
		}

		if !rateLimiter.GetLimiter(ip).Allow() {
			logx.Warn("WebSocket connection rejected: rate limit exceeded.", "ip", ip)
			resp.RespondError(w, r, errs.NewError(errs.ErrRateLimitExceeded))
			return
		}

		var identity hub.Identity

		if tokenString := handshakeToken(r); tokenString != "" {
			payload, err := deps.Verifier.Verify(tokenString)
			if err != nil {
				logx.Warn("WebSocket connection rejected: invalid session token.", "error", err.Error())
				resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
				return
			}
			identity = hub.Identity{UserID: payload.UserID, Nickname: payload.Nickname}
		} else if deps.Config.IsDevelopment() {
			// Unauthenticated development fallback: raw identity via query
			// parameters, never accepted in production.
			query := r.URL.Query()
			userID := query.Get("userId")
			nickname := query.Get("nickname")
			if userID == "" || nickname == "" {
				logx.Warn("WebSocket request rejected: missing token and dev identity parameters")
				resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
				return
			}
			identity = hub.Identity{UserID: userID, Nickname: nickname}
		} else {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logx.Error(err, "Failed to upgrade connection to WebSocket")
			return
		}

		client := hub.NewClient(deps.Hub, conn, identity)

		go client.WritePump()

		deps.Hub.Register(client)

		logx.Info("WebSocket connection established", "user_id", identity.UserID)

		client.ReadPump()
	}
}
