/*
Package handler provides the HTTP handlers and routing setup for the realtime server.

This file defines the routers: the main router carrying the health endpoint and
the WebSocket transport, and the bridge routes that either share the main
listener or run on a dedicated one (split topology). Middleware covers logging,
CORS and IP-based rate limiting.
*/
package handler

import (
	"fmt"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"golang.org/x/time/rate"

	"trocchat/internal/pkg/limiter"
	"trocchat/internal/pkg/logx"
	"trocchat/internal/pkg/resp"
)

const (
	// HandshakeRate limits WebSocket handshakes per IP per second.
	HandshakeRate = 1.0

	// HandshakeBurst is the handshake token-bucket capacity per IP.
	HandshakeBurst = 5

	// devOriginPorts are the local frontend ports whitelisted automatically in
	// development, for same-network mobile testing against a dev machine.
	devOriginPort1 = 3000
	devOriginPort2 = 5173
)

// allowedOrigins builds the origin allow-list: the configured origins plus, in
// development, generated localhost and LAN-IP variants.
func allowedOrigins(configured []string, isDevelopment bool) []string {
	origins := append([]string{}, configured...)

	if !isDevelopment {
		return origins
	}

	hosts := []string{"localhost", "127.0.0.1"}

	if addrs, err := net.InterfaceAddrs(); err == nil {
		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok || ipNet.IP.IsLoopback() {
				continue
			}
			if v4 := ipNet.IP.To4(); v4 != nil {
				hosts = append(hosts, v4.String())
			}
		}
	}

	for _, host := range hosts {
		for _, port := range []int{devOriginPort1, devOriginPort2} {
			origins = append(origins, fmt.Sprintf("http://%s:%d", host, port))
		}
	}

	return origins
}

// corsMiddleware builds the CORS handler shared by both listeners. The bridge
// is called cross-origin by the web tier, so the notify secret header must be
// allowed through preflight.
func corsMiddleware(origins []string) func(http.Handler) http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Notify-Token"},
		AllowCredentials: true,
		MaxAge:           300,
	})
	return c.Handler
}

// mountBridge attaches the notification bridge endpoints to a router.
func mountBridge(r chi.Router, deps *AppDeps) {
	r.Post("/notify", HandleNotify(deps))
	r.Post("/broadcast-product-state", HandleBroadcastProductState(deps))
}

// baseRouter applies the middleware stack common to both listeners.
func baseRouter(origins []string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(corsMiddleware(origins))
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logx.RequestLogger())
	r.Use(middleware.Recoverer)

	return r
}

// Router sets up the main HTTP routing table for the realtime server. When
// withBridge is true (single-port topology) the bridge endpoints share this
// listener; otherwise they live on the BridgeRouter.
func Router(deps *AppDeps, withBridge bool) http.Handler {
	handshakeLimiter := limiter.NewIPRateLimiter(rate.Limit(HandshakeRate), HandshakeBurst)

	origins := allowedOrigins(deps.Config.AllowedOrigins, deps.Config.IsDevelopment())
	originSet := make(map[string]struct{}, len(origins))
	for _, origin := range origins {
		originSet[origin] = struct{}{}
	}

	wsUpgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				// Non-browser clients send no Origin header.
				return true
			}
			if _, ok := originSet[origin]; ok {
				return true
			}

			logx.Warn("WebSocket connection rejected: origin not allowed.", "origin", origin)
			return false
		},
	}

	r := baseRouter(origins)

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		resp.RespondSuccess(w, req, map[string]string{
			"status":  "ok",
			"service": "trocchat-realtime",
		})
	})

	r.Get("/ws", HandleWebSocket(wsUpgrader, handshakeLimiter, deps))

	if withBridge {
		mountBridge(r, deps)
	}

	return r
}

// BridgeRouter sets up the standalone bridge listener used by the split-port
// topology. Handler logic is shared with the single-port setup.
func BridgeRouter(deps *AppDeps) http.Handler {
	origins := allowedOrigins(deps.Config.AllowedOrigins, deps.Config.IsDevelopment())

	r := baseRouter(origins)
	mountBridge(r, deps)

	return r
}
