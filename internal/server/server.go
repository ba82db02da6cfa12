// Package server is the composition root: it builds every dependency,
// mounts the routes and runs the HTTP server with graceful shutdown.
//
// DEPENDENCY CHAIN:
//
//	config.Config
//	  → sqlite.DB (users + friends repositories)
//	  → github.Client (+ metrics)
//	  → UserService, FriendService
//	  → UserHandler
//	  → chi router
//
// Everything is wired here and nowhere else, so tests can build the same
// stack with New and drive it through Handler.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/github-explorer/internal/config"
	"github.com/sakif/github-explorer/internal/github"
	"github.com/sakif/github-explorer/internal/handler"
	"github.com/sakif/github-explorer/internal/middleware"
	"github.com/sakif/github-explorer/internal/monitoring"
	sqliteRepo "github.com/sakif/github-explorer/internal/repository/sqlite"
	"github.com/sakif/github-explorer/internal/service"
)

// shutdownTimeout is how long in-flight requests get to finish after
// SIGINT/SIGTERM. A friends request walks GitHub sequentially, so it is
// generous.
const shutdownTimeout = 30 * time.Second

// Server owns the router and the database connection.
type Server struct {
	router  *chi.Mux
	config  *config.Config
	logger  *slog.Logger
	db      *sqliteRepo.DB
	metrics *monitoring.Metrics
}

// New opens the database (creating its directory if needed), runs
// migrations and wires all routes.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	db, err := OpenDB(cfg.DB.Path)
	if err != nil {
		return nil, err
	}

	metrics := monitoring.New()
	gh := github.New(
		github.WithBaseURL(cfg.GitHub.BaseURL),
		github.WithToken(cfg.GitHub.Token),
		github.WithUserAgent(cfg.GitHub.UserAgent),
		github.WithTimeout(cfg.GitHub.TimeoutDuration()),
		github.WithMetrics(metrics),
	)

	s := &Server{
		router:  chi.NewRouter(),
		config:  cfg,
		logger:  logger,
		db:      db,
		metrics: metrics,
	}
	s.setupRoutes(gh)

	return s, nil
}

// OpenDB opens and migrates the database at path, creating the parent
// directory of a file database first.
func OpenDB(path string) (*sqliteRepo.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}
	db, err := sqliteRepo.New(path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return db, nil
}

// setupRoutes mounts:
//
//	GET    /health
//	GET    /metrics
//	GET    /api/users                    ?sort_by=&order=
//	GET    /api/users/search             ?query=
//	GET    /api/users/{username}
//	PATCH  /api/users/{username}
//	DELETE /api/users/{username}
//	GET    /api/users/{username}/friends
//	GET    /api/users/{username}/repos
//
// MIDDLEWARE ORDER:
// RequestID first so every later middleware can log it; Recoverer inside
// Logger and Metrics so a panic is still logged and counted as a 500.
func (s *Server) setupRoutes(gh *github.Client) {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(middleware.Metrics(s.metrics))
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.CORS())

	s.router.Get("/health", handler.HandleHealth(s.logger))
	s.router.Handle("/metrics", s.metrics.Handler())

	userService := service.NewUserService(s.db, gh, s.logger)
	friendService := service.NewFriendService(s.db, s.db, gh, s.metrics, s.logger)
	userHandler := handler.NewUserHandler(userService, friendService, s.logger)

	s.router.Route("/api/users", userHandler.Routes)
}

// Handler exposes the fully wired router, for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the database.
func (s *Server) Close() error {
	return s.db.Close()
}

// Start serves until SIGINT/SIGTERM, then drains in-flight requests and
// closes the database.
func (s *Server) Start() error {
	defer s.db.Close()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.App.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Friends requests make one GitHub call per mutual friend, so the
		// write deadline has to outlast many upstream round trips.
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.String("app", s.config.App.Name),
			slog.Int("port", s.config.App.Port),
			slog.String("database", s.config.DB.Path),
			slog.String("github", s.config.GitHub.BaseURL),
			slog.Bool("github_token", s.config.GitHub.Token != ""),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
