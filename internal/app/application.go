package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"lingocast/internal/api"
	"lingocast/internal/config"
	"lingocast/internal/database"
	"lingocast/internal/hub"
	"lingocast/internal/session"
	"lingocast/internal/transcript"
	"lingocast/internal/translation"
	"lingocast/internal/websocket"
	pkgdatabase "lingocast/pkg/database"
)

// Application wires the components in dependency order:
// Database -> Transcript Log -> Translation Cache -> Registry -> Hub ->
// Session Manager -> API -> WebSocket Handler -> HTTP.
type Application struct {
	config         *config.Config
	dbManager      *database.Manager
	transcriptLog  *transcript.Log
	cache          *translation.Cache
	registry       *websocket.Registry
	broadcastHub   *hub.Hub
	sessionManager *session.Manager
	apiServer      *api.Server
	httpServer     *http.Server

	backgroundCancel context.CancelFunc
}

func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	dbConfig := &pkgdatabase.Config{
		DatabasePath:    cfg.Database.Path,
		MaxConnections:  10,
		ConnMaxLifetime: cfg.Database.Timeout,
		ConnMaxIdleTime: cfg.Database.Timeout / 3,
	}

	dbManager, err := database.NewManager(dbConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database manager: %w", err)
	}

	transcriptLog := transcript.NewLogWithWindow(cfg.Session.ReplayWindow, cfg.Session.ReplayBatch)

	translator := translation.NewHTTPTranslator(cfg.Translation.Endpoint)
	cache := translation.NewCache(translator, cfg.Translation.Timeout)

	registry := websocket.NewRegistry()

	broadcastHub := hub.NewHub(registry, transcriptLog, cache)

	sessionManager := session.NewManager(dbManager, transcriptLog, cache, broadcastHub, registry, session.Config{
		DrainBudget:   cfg.Session.DrainBudget,
		IdleTimeout:   cfg.Session.IdleTimeout,
		EndedGrace:    cfg.Session.EndedGrace,
		SweepInterval: cfg.Session.SweepInterval,
	})
	if err := sessionManager.LoadActiveSessions(context.Background()); err != nil {
		dbManager.Close()
		return nil, fmt.Errorf("failed to load active sessions: %w", err)
	}

	apiServer := api.NewServer(sessionManager, dbManager, registry, cfg.Session.IngestRateLimit)

	wsHandler := websocket.NewHandler(registry, sessionManager, transcriptLog, broadcastHub, websocket.HandlerConfig{
		PingInterval: cfg.WebSocket.PingInterval,
		ReadTimeout:  cfg.WebSocket.ReadTimeout,
		SendBuffer:   cfg.WebSocket.SendBuffer,
	})

	mux := http.NewServeMux()
	mux.Handle("/api/", apiServer)
	mux.Handle("/health", apiServer)
	mux.HandleFunc("/ws", wsHandler.HandleJoin)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      mux,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:         cfg,
		dbManager:      dbManager,
		transcriptLog:  transcriptLog,
		cache:          cache,
		registry:       registry,
		broadcastHub:   broadcastHub,
		sessionManager: sessionManager,
		apiServer:      apiServer,
		httpServer:     httpServer,
	}, nil
}

// Start brings up background processing before the HTTP listener so no
// accepted request races component readiness.
func (app *Application) Start(ctx context.Context) error {
	log.Printf("Starting lingocast on %s", app.httpServer.Addr)

	if err := app.broadcastHub.Start(ctx); err != nil {
		return fmt.Errorf("failed to start broadcast hub: %w", err)
	}

	backgroundCtx, cancel := context.WithCancel(context.Background())
	app.backgroundCancel = cancel
	app.sessionManager.StartSweeper(backgroundCtx)
	app.apiServer.StartCleanup(backgroundCtx)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := app.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	select {
	case err := <-serverErrCh:
		cancel()
		app.broadcastHub.Stop()
		return err
	case <-time.After(100 * time.Millisecond):
		log.Printf("lingocast started")
		return nil
	case <-ctx.Done():
		cancel()
		app.broadcastHub.Stop()
		return ctx.Err()
	}
}

// Stop shuts components down in reverse dependency order:
// HTTP -> background loops -> Hub -> Database.
func (app *Application) Stop(ctx context.Context) error {
	log.Printf("Shutting down lingocast")

	if err := app.httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	if app.backgroundCancel != nil {
		app.backgroundCancel()
	}

	if err := app.broadcastHub.Stop(); err != nil {
		log.Printf("Broadcast hub shutdown error: %v", err)
	}

	if err := app.dbManager.Close(); err != nil {
		log.Printf("Database shutdown error: %v", err)
	}

	log.Printf("lingocast shutdown complete")
	return nil
}

// GetAddr returns the server address for external connections.
func (app *Application) GetAddr() string {
	return app.httpServer.Addr
}
