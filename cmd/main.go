/*
Package main is the entry point for the trocchat realtime server.

It loads configuration, initializes the global logging system, connects the
message store, wires the hub and the notification bridge, starts the HTTP
listener(s) — one port for everything, or a dedicated bridge port in the split
topology — and handles operating system interrupt signals for a graceful
shutdown.
*/
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"trocchat/internal/app/db"
	"trocchat/internal/app/hub"
	"trocchat/internal/app/notify"
	"trocchat/internal/app/push"
	"trocchat/internal/app/store"
	"trocchat/internal/configs"
	"trocchat/internal/handler"
	"trocchat/internal/pkg/logx"
	"trocchat/internal/pkg/token"
)

func main() {
	// Load configuration from environment variables
	cfg, err := configs.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize global logger
	logx.InitGlobalLogger(cfg.IsDevelopment())
	logx.Logger().Info().
		Str("environment", cfg.Environment).
		Int("port", cfg.Port).
		Int("bridge_port", cfg.BridgePort).
		Strs("allowed_origins", cfg.AllowedOrigins).
		Msg("Configuration loaded successfully")

	// Create a context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Connect the message store and run migrations.
	pool, err := db.NewPool(cfg.DatabaseDSN)
	if err != nil {
		logx.Fatal(err, "Failed to connect to database")
	}
	defer pool.Close()

	dataStore := store.NewPostgresStore(pool)

	// Wire the hub and the notification bridge.
	realtimeHub := hub.NewHub(dataStore, cfg.HistoryLimit)

	pushSender := push.NewWebPushSender(cfg.VAPIDPublicKey, cfg.VAPIDPrivateKey, cfg.VAPIDSubject)
	if pushSender == nil {
		logx.Warn("VAPID keys not configured; web-push delivery for offline users is disabled.")
	}

	deps := &handler.AppDeps{
		Hub:      realtimeHub,
		Notify:   notify.NewService(realtimeHub, dataStore, senderOrNil(pushSender)),
		Config:   cfg,
		Verifier: token.NewVerifier(cfg.SessionSecret),
	}

	splitTopology := cfg.BridgePort != 0

	servers := []*http.Server{
		newServer(cfg.Port, handler.Router(deps, !splitTopology)),
	}
	if splitTopology {
		servers = append(servers, newServer(cfg.BridgePort, handler.BridgeRouter(deps)))
	}

	for _, server := range servers {
		go func(server *http.Server) {
			logx.Info(fmt.Sprintf("Realtime server listening on http://localhost%s", server.Addr))
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logx.Fatal(err, "Server failed to start")
			}
		}(server)
	}

	// Wait for interrupt signal to gracefully shutdown with a timeout.
	<-ctx.Done()
	logx.Info("Received shutdown signal. Starting graceful shutdown...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	for _, server := range servers {
		if err := server.Shutdown(shutdownCtx); err != nil {
			logx.Error(err, "Server forced to shutdown")
		}
	}

	realtimeHub.Shutdown()

	logx.Info("Server gracefully stopped.")
}

// newServer builds an HTTP server with the shared timeouts. WriteTimeout stays
// unset because WebSocket connections outlive any fixed response window.
func newServer(port int, h http.Handler) *http.Server {
	return &http.Server{
		Addr:        fmt.Sprintf(":%d", port),
		Handler:     h,
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 120 * time.Second,
	}
}

// senderOrNil keeps a typed-nil *WebPushSender from hiding inside a non-nil
// interface value.
func senderOrNil(s *push.WebPushSender) push.Sender {
	if s == nil {
		return nil
	}
	return s
}
