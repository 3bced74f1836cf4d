package services

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
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/osiprototype/backend/forms"
	"github.com/osiprototype/backend/repository"
	ws "github.com/osiprototype/backend/websocket"
)

// pinger is anything that can report database reachability
type pinger interface {
	Ping(ctx context.Context) error
}

// Server holds all server dependencies
type Server struct {
	config        *Config
	db            pinger
	users         *repository.GORMRepository
	lookup        forms.UserLookup // uniqueness checks of the register and edit forms
	conversations *repository.ConversationRepository
	authService   *AuthService
	renderer      *Renderer
	photos        *PhotoStorage
	wsHub         *ws.Hub
	upgrader      websocket.Upgrader
}

// NewServer wires repositories and services around an open database.
func NewServer(config *Config, db *repository.Database, flashes FlashStore) (*Server, error) {
	if config.JWT.Secret == "" {
		return nil, fmt.Errorf("jwt secret is not configured")
	}

	renderer, err := NewRenderer(flashes)
	if err != nil {
		return nil, err
	}
	photos, err := NewPhotoStorage(config.Uploads.Dir, config.Uploads.MaxSize)
	if err != nil {
		return nil, err
	}

	users := repository.NewGORMRepository(db.DB)
	s := &Server{
		config:        config,
		db:            db,
		users:         users,
		lookup:        users,
		conversations: repository.NewConversationRepository(db.DB),
		authService:   NewAuthService(users, config.JWT.Secret, config.Server.Production()),
		renderer:      renderer,
		photos:        photos,
		wsHub:         ws.NewHub(),
	}
	s.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return CheckOrigin(r, config.WebSocket.AllowedOrigins)
		},
	}
	return s, nil
}

// StartHub runs the notification hub until ctx is cancelled.
func (s *Server) StartHub(ctx context.Context) {
	go s.wsHub.Run(ctx)
}

// SetupRoutes configures all HTTP routes
func (s *Server) SetupRoutes() *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(FlashSession(s.config.Server.Production()))
	r.Use(CSRF(splitOrigins(s.config.CSRF.AllowedOrigins)))

	r.Get("/health", s.healthHandler)
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/profile/", http.StatusFound)
	})

	r.Get("/register/", s.registerHandler)
	r.Post("/register/", s.registerHandler)
	r.Get("/login/", s.loginHandler)
	r.Post("/login/", s.loginHandler)
	r.Handle(photoURLPrefix+"*", s.photos.Handler())

	// Login required
	r.Group(func(r chi.Router) {
		r.Use(s.authService.Middleware)

		r.Post("/logout/", s.logoutHandler)
		r.Get("/profile/", s.profileHandler)
		r.Post("/profile/edit", s.editProfileHandler)
		r.Get("/messages/", s.messagesHandler)
		r.Get("/messages/{to_username}", s.messageThreadHandler)
		r.Post("/messages/{to_username}", s.messageThreadHandler)
		r.Post("/upload/", s.uploadHandler)
		r.Get("/ws", s.websocketHandler)
	})

	return r
}

// Start starts the HTTP server and blocks until SIGINT/SIGTERM
func (s *Server) Start() {
	port := s.config.Server.Port
	if port == "" {
		port = "8080"
	}

	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	s.StartHub(hubCtx)

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           s.SetupRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	go func() {
		slog.Info("Starting server", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down server...")
	stopHub()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	slog.Info("Server exited")
}

// CheckOrigin validates the origin of WebSocket connections against a
// comma-separated allow list. An empty list denies everything.
func CheckOrigin(r *http.Request, allowedOriginsStr string) bool {
	origin := r.Header.Get("Origin")

	if allowedOriginsStr == "" {
		slog.Warn("WebSocket connection rejected: no allowed origins configured", "origin", origin)
		return false
	}

	for _, allowed := range splitOrigins(allowedOriginsStr) {
		if allowed == origin {
			slog.Info("WebSocket connection accepted", "origin", origin)
			return true
		}
	}

	slog.Warn("WebSocket connection rejected: origin not allowed", "origin", origin, "allowed_origins", allowedOriginsStr)
	return false
}

type healthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Database: "not configured"}

	if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.db.Ping(ctx); err != nil {
			slog.Error("Database ping failed", "error", err)
			resp.Status = "degraded"
			resp.Database = "down"
		} else {
			resp.Database = "up"
		}
	}

	writeJSON(w, resp)
	slog.Info("Health check", "status", resp.Status, "database", resp.Database)
}

// websocketHandler upgrades an authenticated request and subscribes the
// socket to the user's notifications.
func (s *Server) websocketHandler(w http.ResponseWriter, r *http.Request) {
	user := CurrentUser(r.Context())

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("WebSocket upgrade failed", "error", err)
		return
	}

	slog.Info("WebSocket connection established", "user_id", user.ID, "username", user.Username)

	client := s.wsHub.RegisterClient(conn, user.ID)
	go client.WritePump()
	client.ReadPump()
}
