package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"marketchat/internal/api"
	"marketchat/internal/config"
	"marketchat/internal/database"
	"marketchat/internal/hub"
	"marketchat/internal/relay"
	"marketchat/internal/session"
	"marketchat/internal/websocket"
	"marketchat/pkg/interfaces"
)

// Application holds the wired components in dependency order:
// store, session manager, registry, relay, hub, HTTP server.
type Application struct {
	config     *config.Config
	store      interfaces.ChatStore
	chatHub    *hub.Hub
	httpServer *http.Server
}

// openStore opens the configured primary store. A SQLite open failure
// falls back to the bolt store next to the configured path, so the chat
// endpoints stay available on machines without a usable SQLite file.
func openStore(cfg *config.Config) (interfaces.ChatStore, error) {
	if cfg.Database.Driver == "bolt" {
		return database.NewFallbackStore(cfg.Database.Path)
	}

	store, err := database.NewManager(cfg.Database.Path, cfg.Database.BusyTimeout)
	if err == nil {
		return store, nil
	}
	log.Printf("primary database unavailable (%v), using fallback store", err)

	fallbackPath := strings.TrimSuffix(cfg.Database.Path, ".db") + ".bolt"
	return database.NewFallbackStore(fallbackPath)
}

// NewApplication wires all components.
func NewApplication(cfg *config.Config) (*Application, error) {
	store, err := openStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open chat store: %w", err)
	}

	sessionManager := session.NewManager(store)
	registry := websocket.NewRegistry()
	limiter := relay.NewSenderLimiter(cfg.WebSocket.SendPerMinute, cfg.WebSocket.SendBurst)
	chatRelay := relay.New(registry, limiter)
	chatHub := hub.NewHub(registry, chatRelay)

	wsHandler := websocket.NewHandler(chatHub, websocket.Options{
		PingInterval: cfg.WebSocket.PingInterval,
		ReadTimeout:  cfg.WebSocket.ReadTimeout,
		SendBuffer:   cfg.WebSocket.SendBuffer,
	})
	server := api.NewServer(sessionManager, registry, wsHandler.HandleWebSocket)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      server,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:     cfg,
		store:      store,
		chatHub:    chatHub,
		httpServer: httpServer,
	}, nil
}

// Start runs the hub and the HTTP server until ctx is cancelled or the
// server fails.
func (app *Application) Start(ctx context.Context) error {
	log.Printf("starting marketchat on %s", app.httpServer.Addr)

	if err := app.chatHub.Start(ctx); err != nil {
		return fmt.Errorf("failed to start hub: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := app.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
		return nil
	}
}

// Shutdown stops the components in reverse order.
func (app *Application) Shutdown() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown error: %v", err)
	}
	if err := app.chatHub.Stop(); err != nil {
		log.Printf("hub shutdown error: %v", err)
	}
	if err := app.store.Close(); err != nil {
		log.Printf("store shutdown error: %v", err)
	}
	log.Println("marketchat stopped")
}

func main() {
	configPath := flag.String("config", "", "path to JSON config file")
	flag.Parse()

	// A missing .env is fine; the environment still applies.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("configuration error: %v", err)
	}

	app, err := NewApplication(cfg)
	if err != nil {
		log.Fatalf("startup error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("received %s, shutting down", sig)
		cancel()
	}()

	if err := app.Start(ctx); err != nil {
		log.Printf("runtime error: %v", err)
	}
	app.Shutdown()
}
