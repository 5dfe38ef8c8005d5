package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tgforward-web/internal/config"
	"tgforward-web/internal/database"
	"tgforward-web/internal/event"
	"tgforward-web/internal/handler"
	"tgforward-web/internal/metrics"
	"tgforward-web/internal/repository"
	"tgforward-web/internal/router"
	"tgforward-web/internal/session"
	"tgforward-web/internal/websocket"
)

type App struct {
	server       *http.Server
	cleanupFuncs []func()
}

func New(cfg *config.Config) (*App, error) {
	sealer, err := session.NewSealer(cfg.SessionSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize session sealer: %w", err)
	}

	var (
		db   *database.DB
		repo session.Repository
	)
	if cfg.DatabaseURL != "" {
		slog.Info("connecting to PostgreSQL")
		db, err = database.New(context.Background(), cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		if err := db.EnsureSchema(context.Background()); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to ensure database schema: %w", err)
		}
		repo = repository.NewSessionRepository(db.Pool)
		slog.Info("database ready")
	} else {
		slog.Warn("DATABASE_URL not set; sessions are kept in memory only")
		repo = repository.NewMemorySessionRepository()
	}

	closeDB := func() {
		if db != nil {
			db.Close()
		}
	}

	recorder := metrics.New()
	bus := event.NewBus()
	hub := websocket.NewHub(bus)

	sessions, err := session.NewManager(session.Config{
		APIBaseURL:     cfg.APIBaseURL,
		RequestTimeout: cfg.RequestTimeout,
		RefreshTimeout: cfg.RefreshTimeout,
		CookieSecure:   cfg.SessionCookieSecure,
		TTL:            cfg.SessionTTL,
		AnonymousTTL:   cfg.SessionAnonymousTTL,
	}, repo, sealer, bus, session.WithMetrics(recorder))
	if err != nil {
		closeDB()
		return nil, fmt.Errorf("failed to initialize session manager: %w", err)
	}

	pages, err := handler.NewRenderer()
	if err != nil {
		closeDB()
		return nil, fmt.Errorf("failed to load page templates: %w", err)
	}

	appRouter := router.New(cfg, sessions, router.Handlers{
		Auth:  handler.NewAuthHandler(sessions, pages),
		User:  handler.NewUserHandler(pages, bus),
		Admin: handler.NewAdminHandler(pages),
		Live:  handler.NewLiveHandler(hub),
	}, recorder.Handler(), handler.Health(db))

	backgroundCtx, backgroundCancel := context.WithCancel(context.Background())
	go hub.Run(backgroundCtx)
	go sessions.StartCleanupTicker(backgroundCtx, cfg.SessionCleanupInterval)

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           appRouter,
		ReadHeaderTimeout: cfg.ServerReadHeaderTimeout,
		WriteTimeout:      cfg.ServerWriteTimeout,
		IdleTimeout:       cfg.ServerIdleTimeout,
	}

	return &App{
		server: server,
		cleanupFuncs: []func(){
			backgroundCancel,
			bus.Close,
			closeDB,
		},
	}, nil
}

func (a *App) Run() error {
	go func() {
		slog.Info("server starting", "addr", a.server.Addr)
		if serveErr := a.server.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			slog.Error("server failed", "error", serveErr)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	shutdownErr := a.server.Shutdown(ctx)

	// Background work and the pool go after in-flight requests have drained.
	for _, cleanup := range a.cleanupFuncs {
		cleanup()
	}

	if shutdownErr != nil {
		return fmt.Errorf("graceful shutdown failed: %w", shutdownErr)
	}

	slog.Info("server stopped")
	return nil
}
