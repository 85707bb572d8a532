// Package server is the composition root: it opens the store, builds every
// service and handler, mounts the routes and runs the HTTP server.
//
// DEPENDENCY FLOW:
//
//	config.Config → sqldb.DB ─┐
//	              → redis ────┼→ cache.ReadThrough → services → handlers → routes
//	              → events.Hub┘
//
// Each layer only receives what it needs: services get repository
// interfaces (satisfied by *sqldb.DB), handlers get services.
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
	"github.com/redis/go-redis/v9"

	"github.com/mikahagenbeek692/MovieManager/internal/auth"
	"github.com/mikahagenbeek692/MovieManager/internal/cache"
	"github.com/mikahagenbeek692/MovieManager/internal/config"
	"github.com/mikahagenbeek692/MovieManager/internal/events"
	"github.com/mikahagenbeek692/MovieManager/internal/handler"
	"github.com/mikahagenbeek692/MovieManager/internal/middleware"
	"github.com/mikahagenbeek692/MovieManager/internal/repository/sqldb"
	"github.com/mikahagenbeek692/MovieManager/internal/service"
)

// Server owns the router and every long-lived resource. Start closes them
// on shutdown; tests call Close.
type Server struct {
	router *chi.Mux
	config *config.Config
	logger *slog.Logger

	db     *sqldb.DB
	redis  *redis.Client // nil when REDIS_URL is unset
	hub    *events.Hub
	tokens *auth.TokenService

	limiter middleware.Limiter
	cache   *cache.ReadThrough

	services services
}

type services struct {
	auth            *service.AuthService
	watchlists      *service.WatchlistService
	users           *service.UserService
	friends         *service.FriendService
	movies          *service.MovieService
	recommendations *service.RecommendationService
}

// New builds the server. Nothing listens until Start.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		hub:    events.NewHub(),
	}

	if err := s.openDatabase(); err != nil {
		return nil, err
	}
	if err := s.setupCache(); err != nil {
		s.Close()
		return nil, err
	}

	tokens, err := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("creating token service: %w", err)
	}
	s.tokens = tokens

	s.setupServices()

	if cfg.CatalogPath != "" {
		n, err := s.services.movies.ImportFile(context.Background(), cfg.CatalogPath)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("importing catalog %s: %w", cfg.CatalogPath, err)
		}
		logger.Info("catalog loaded", slog.String("path", cfg.CatalogPath), slog.Int("movies", n))
	}

	s.setupRoutes()
	return s, nil
}

func (s *Server) openDatabase() error {
	dialect := sqldb.Dialect(s.config.DB.Driver)

	// A SQLite file lives in a directory that may not exist yet (data/).
	if dialect == sqldb.DialectSQLite && s.config.DB.DSN != ":memory:" {
		dir := filepath.Dir(s.config.DB.DSN)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating database directory %s: %w", dir, err)
		}
	}

	db, err := sqldb.Open(dialect, s.config.DB.DSN)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	s.db = db
	return nil
}

// setupCache picks the shared backends when Redis is configured and the
// in-process ones otherwise. The cache and the login limiter always move
// together: a multi-instance deployment needs both shared.
func (s *Server) setupCache() error {
	var store cache.Store
	if s.config.Redis.Enabled() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		client, err := cache.Connect(ctx, s.config.Redis.URL)
		if err != nil {
			return err
		}
		s.redis = client
		store = cache.NewRedis(client, "")
		s.limiter = middleware.NewRedisLimiter(client, s.config.LoginRateLimit, s.config.LoginRateWindow)
		s.logger.Info("using redis for cache and rate limiting")
	} else {
		store = cache.NewMemory()
		s.limiter = middleware.NewMemoryLimiter(s.config.LoginRateLimit, s.config.LoginRateWindow)
	}

	s.cache = cache.New(store, s.config.CacheTTL, s.logger)
	return nil
}

func (s *Server) setupServices() {
	db, rt, logger := s.db, s.cache, s.logger

	movies := service.NewMovieService(db, rt, logger)
	s.services = services{
		auth:            service.NewAuthService(db, s.tokens, auth.NewPasswordService(), rt, logger),
		watchlists:      service.NewWatchlistService(db, db, db, rt, logger),
		users:           service.NewUserService(db, db, db, rt, logger),
		friends:         service.NewFriendService(db, db, rt, logger),
		movies:          movies,
		recommendations: service.NewRecommendationService(db, db, movies, rt, logger),
	}
}

// setupRoutes mounts every endpoint.
//
// ROUTES:
//
//	POST /register, /login (rate limited), /logout
//	GET  /me, /home, /csrf-token
//	GET  /auth/github/login, /auth/github/callback   (when configured)
//	GET  /ws/events?channel=
//	GET  /api/movies
//	     everything else under /api and /saveWatchList needs a session;
//	     the mutating ones also need the CSRF header.
//
// MIDDLEWARE ORDER MATTERS:
// RequestID first so the logger can print it, RealIP before the rate limiter
// keys on the client address, Recoverer innermost of the global chain so a
// panicking handler is still logged as a 500.
func (s *Server) setupRoutes() {
	r := s.router
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(s.logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(s.config.AllowedOrigin))

	var github *auth.GitHubProvider
	if s.config.Auth.GitHubEnabled() {
		github = auth.NewGitHubProvider(
			s.config.Auth.GitHubClientID,
			s.config.Auth.GitHubClientSecret,
			s.config.Auth.GitHubCallbackURL,
		)
	}

	authH := handler.NewAuthHandler(s.services.auth, s.tokens, github, s.hub, s.logger)
	watchlistH := handler.NewWatchlistHandler(s.services.watchlists, s.hub, s.logger)
	userH := handler.NewUserHandler(s.services.users, s.logger)
	friendH := handler.NewFriendHandler(s.services.friends, s.logger)
	movieH := handler.NewMovieHandler(s.services.movies, s.services.recommendations, s.logger)

	requireAuth := auth.RequireAuth(s.tokens)

	// === Session ===
	r.Post("/register", authH.HandleRegister)
	r.With(middleware.RateLimit(s.limiter, "login", s.logger)).Post("/login", authH.HandleLogin)
	r.With(auth.OptionalAuth(s.tokens)).Post("/logout", authH.HandleLogout)
	r.Get("/csrf-token", authH.HandleCSRFToken)
	r.With(requireAuth).Get("/me", authH.HandleMe)
	r.With(requireAuth).Get("/home", authH.HandleHome)

	if github != nil {
		r.Get("/auth/github/login", authH.HandleGitHubLogin)
		r.Get("/auth/github/callback", authH.HandleGitHubCallback)
	}

	// === Event stream ===
	r.Method(http.MethodGet, "/ws/events", events.NewHandler(s.hub, s.config.AllowedOrigin, s.logger))

	// === Catalog (public) ===
	r.Get("/api/movies", movieH.HandleList)

	// === Authenticated ===
	r.Group(func(r chi.Router) {
		r.Use(requireAuth)

		r.Get("/api/getWatchList", watchlistH.HandleGet)
		r.Get("/api/users", userH.HandleList)
		r.Get("/api/usersWithWatchlists", userH.HandleListWithWatchlists)
		r.Get("/api/profile/{username}", userH.HandleProfile)
		r.Get("/api/watchlistPrivacy", userH.HandleGetPrivacy)
		r.Get("/api/userProfile", userH.HandleGetBio)
		r.Get("/api/friends", friendH.HandleListFriends)
		r.Get("/api/friendRequests", friendH.HandleListRequests)
		r.Get("/api/sentFriendRequests", friendH.HandleListSent)
		r.Get("/api/friendStatus", friendH.HandleStatus)
		r.Get("/api/recommendations", movieH.HandleRecommendations)

		r.Group(func(r chi.Router) {
			r.Use(middleware.CSRF)

			r.Post("/saveWatchList", watchlistH.HandleSave)
			r.Post("/api/updateWatchlistPrivacy", userH.HandleUpdatePrivacy)
			r.Post("/api/updateProfileDescription", userH.HandleUpdateBio)
			r.Post("/api/sendFriendRequest", friendH.HandleSend)
			r.Post("/api/acceptFriendRequest", friendH.HandleAccept)
			r.Post("/api/rejectFriendRequest", friendH.HandleReject)
			r.Post("/api/cancelFriendRequest", friendH.HandleCancel)
			r.Post("/api/deleteFriend", friendH.HandleDelete)
		})
	})

	// === Frontend ===
	if s.config.StaticDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(s.config.StaticDir)))
	}
}

// Handler exposes the router, for tests and for embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the database and Redis connections.
func (s *Server) Close() error {
	var errs []error
	if s.db != nil {
		errs = append(errs, s.db.Close())
	}
	if s.redis != nil {
		errs = append(errs, s.redis.Close())
	}
	return errors.Join(errs...)
}

// Start runs the HTTP server until SIGINT/SIGTERM, then shuts down
// gracefully.
//
// GRACEFUL SHUTDOWN:
//  1. Stop accepting new connections
//  2. Wait up to 30s for in-flight requests
//  3. Close the database (flushes the WAL) and Redis
func (s *Server) Start() error {
	defer s.Close()

	srv := &http.Server{
		Addr:        fmt.Sprintf(":%d", s.config.Port),
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: it would cut /ws/events streams. Handlers that
		// write bodies finish well within ReadTimeout + IdleTimeout.
		IdleTimeout: 60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.String("dbDriver", s.config.DB.Driver),
			slog.Bool("redis", s.redis != nil),
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
