// Package server wires the dependency graph and owns the HTTP lifecycle.
//
// This is the composition root: the database, token service, password
// hasher, Google provider, auth service, and handlers are all constructed
// here and nowhere else. Each layer receives only the interface it needs —
// handlers get the service, the service gets the repository, and nothing
// below this package knows about routing.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/skywatch/internal/auth"
	"github.com/sakif/skywatch/internal/config"
	"github.com/sakif/skywatch/internal/handler"
	"github.com/sakif/skywatch/internal/middleware"
	sqliteRepo "github.com/sakif/skywatch/internal/repository/sqlite"
	"github.com/sakif/skywatch/internal/service"
)

// Server holds the router and the resources it owns. The database handle is
// closed during graceful shutdown to flush the WAL and release the file lock.
type Server struct {
	router *chi.Mux
	cfg    *config.Config
	logger *slog.Logger
	db     *sqliteRepo.DB
}

// New assembles the full dependency chain and registers all routes.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	tokens, err := auth.NewTokenService(cfg.JWTSecret)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating token service: %w", err)
	}

	passwords := auth.NewPasswordHasher(cfg.HashWorkers)
	google := auth.NewGoogleProvider(
		cfg.GoogleClientID,
		cfg.GoogleClientSecret,
		cfg.GoogleRedirectURL,
		cfg.GoogleTimeout,
	)

	authSvc := service.NewAuthService(
		db,
		tokens,
		passwords,
		google,
		cfg.AccessTTL,
		cfg.RefreshTTL,
		logger,
	)

	s := &Server{
		router: chi.NewRouter(),
		cfg:    cfg,
		logger: logger,
		db:     db,
	}

	s.setupRoutes(authSvc)

	return s, nil
}

// setupRoutes registers middleware and the auth endpoints.
//
// Middleware order: RequestID → RealIP → Recoverer → request logger, all
// global. RequireIdentity guards only the routes that need an authenticated
// caller; register/login/google must stay reachable without a token.
func (s *Server) setupRoutes(authSvc service.AuthService) {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))

	authHandler := handler.NewAuthHandler(authSvc, s.logger)

	s.router.Route("/auth", func(r chi.Router) {
		r.Post("/register", authHandler.HandleRegister)
		r.Post("/login", authHandler.HandleLogin)

		if s.cfg.GoogleClientID != "" {
			r.Get("/google/login", authHandler.HandleGoogleLogin)
			r.Get("/google", authHandler.HandleGoogleCallback)
		} else {
			s.logger.Warn("GOOGLE_OAUTH_CLIENT_ID not set, google login routes are disabled")
		}

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireIdentity(authSvc))
			r.Post("/refresh", authHandler.HandleRefresh)
			r.Get("/me", authHandler.HandleMe)
			r.Post("/change-password", authHandler.HandleChangePassword)
		})
	})
}

// Start runs the HTTP server until SIGINT/SIGTERM, then shuts down
// gracefully: stop accepting connections, give in-flight requests 30s to
// finish, close the database.
func (s *Server) Start() error {
	defer s.db.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.cfg.Port),
			slog.String("database", s.cfg.DBPath),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
