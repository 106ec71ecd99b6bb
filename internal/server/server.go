// Package server is the composition root: it opens the store, connects the
// broker, builds services and handlers, and mounts the routes.
//
// DEPENDENCY FLOW:
//
//	config.Config ─┬→ sqlstore.Store ─→ AuthService / DeviceService
//	               ├→ mqtt.Client ───→ relay.Relay ─→ CommandService
//	               │                 ↘ TelemetryListener
//	               └→ chi router ←── handlers
//
// Handlers never see the database, services never see HTTP.
package server

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

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/garirakho/gate-backend/internal/auth"
	"github.com/garirakho/gate-backend/internal/config"
	"github.com/garirakho/gate-backend/internal/handler"
	"github.com/garirakho/gate-backend/internal/middleware"
	"github.com/garirakho/gate-backend/internal/mqtt"
	"github.com/garirakho/gate-backend/internal/relay"
	"github.com/garirakho/gate-backend/internal/repository/sqlstore"
	"github.com/garirakho/gate-backend/internal/service"
)

// Server owns the HTTP router and the resources it closes on shutdown.
type Server struct {
	router *chi.Mux
	config *config.Config
	logger *slog.Logger
	store  *sqlstore.Store
	broker *mqtt.Client // nil when MQTT_HOST is empty
}

// New opens the database (running migrations), connects to the broker when
// one is configured and wires every route.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	driver, dsn, err := cfg.Database.Select()
	if err != nil {
		return nil, fmt.Errorf("selecting database: %w", err)
	}
	if driver == config.DriverSQLite {
		logger.Warn("using SQLite fallback database", slog.String("path", dsn))
	}

	store, err := sqlstore.Open(ctx, sqlstore.Config{Driver: driver, DSN: dsn}, logger)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		store:  store,
	}

	if cfg.MQTT.Enabled() {
		broker, err := mqtt.Connect(cfg.MQTT, logger)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("connecting to broker: %w", err)
		}
		s.broker = broker
	} else {
		logger.Warn("MQTT_HOST not set, device commands will fail with 502")
	}

	if err := s.setupRoutes(); err != nil {
		s.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

// setupRoutes configures middleware and route handlers.
//
// ROUTES:
// GET    /healthz                  → database and broker status
// GET    /logout                   → clear cookie, redirect to /login
// POST   /api/signup               → create account + session cookie
// POST   /api/login                → session cookie
// POST   /api/logout               → clear cookie
// GET    /api/me                   → current user             [login]
// GET    /api/devices              → device list              [login]
// POST   /api/ingest               → device reading           [x-api-key]
// POST   /api/cmd/open-gate        → {"openGate": true}       [admin]
// POST   /api/cmd/exit-approved    → {"exitApproved": bool}   [admin]
// POST   /api/cmd/book-slots       → {"slotNBooked": bool}    [admin]
func (s *Server) setupRoutes() error {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)

	if origins := s.config.Server.AllowedOrigins; len(origins) > 0 {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   origins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"Content-Type", middleware.APIKeyHeader},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	sessions, err := auth.NewSessionCodec(s.config.Session.Secret, auth.SessionPurpose, s.config.Session.TTL)
	if err != nil {
		return fmt.Errorf("creating session codec: %w", err)
	}

	// A nil *mqtt.Client stored in an interface is not a nil interface;
	// only assign when the broker exists.
	var (
		publisher relay.Publisher
		messaging handler.HealthChecker
	)
	if s.broker != nil {
		publisher = s.broker
		messaging = s.broker
	}

	qos := byte(s.config.MQTT.QoS)
	authService := service.NewAuthService(s.store, sessions, auth.NewPasswordService(), s.logger)
	deviceService := service.NewDeviceService(s.store, nil, s.logger)
	commandService := service.NewCommandService(authService,
		relay.New(publisher, s.config.MQTT.TopicPrefix, qos, s.logger), s.logger)

	authHandler := handler.NewAuthHandler(authService, s.config.Session.TTL, s.config.Session.CookieSecure, s.logger)
	deviceHandler := handler.NewDeviceHandler(deviceService, authService, s.logger)
	commandHandler := handler.NewCommandHandler(commandService, s.logger)
	healthHandler := handler.NewHealthHandler(s.store, messaging, s.logger)

	if s.broker != nil {
		listener := handler.NewTelemetryListener(deviceService, mqtt.Topics{Prefix: s.config.MQTT.TopicPrefix}, s.logger)
		if err := listener.Register(s.broker, qos); err != nil {
			return err
		}
	}

	s.router.Get("/healthz", healthHandler.HandleHealth)
	s.router.Get("/logout", authHandler.HandleLogout)

	s.router.Route("/api", func(r chi.Router) {
		r.Post("/signup", authHandler.HandleSignup)
		r.Post("/login", authHandler.HandleLogin)
		r.Post("/logout", authHandler.HandleLogout)
		r.Get("/me", authHandler.HandleMe)
		r.Get("/devices", deviceHandler.HandleList)

		r.With(middleware.RequireAPIKey(s.config.Ingest.APIKey, s.logger)).
			Post("/ingest", deviceHandler.HandleIngest)

		r.Route("/cmd", func(r chi.Router) {
			r.Post("/open-gate", commandHandler.HandleOpenGate)
			r.Post("/exit-approved", commandHandler.HandleExitApproved)
			r.Post("/book-slots", commandHandler.HandleBookSlots)
		})
	})

	return nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves HTTP until SIGINT/SIGTERM, then shuts down gracefully:
//  1. stop accepting connections and let in-flight requests finish (30s)
//  2. disconnect from the broker
//  3. close the database
func (s *Server) Start() error {
	defer s.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Server.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Server.Port),
			slog.String("database", s.store.Driver()),
			slog.Bool("mqtt", s.broker != nil),
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

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}

// Close releases the broker connection and then the database, so no
// telemetry handler runs against a closed store. Start calls it on return.
func (s *Server) Close() {
	if s.broker != nil {
		if err := s.broker.Close(); err != nil {
			s.logger.Warn("closing broker connection", slog.String("error", err.Error()))
		}
	}
	if err := s.store.Close(); err != nil {
		s.logger.Warn("closing database", slog.String("error", err.Error()))
	}
}
