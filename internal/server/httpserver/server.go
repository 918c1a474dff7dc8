// Package httpserver собирает маршруты API и управляет жизненным циклом HTTP-сервера.
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/iudanet/doccollab/internal/config"
	"github.com/iudanet/doccollab/internal/server/collab"
	"github.com/iudanet/doccollab/internal/server/handlers"
	"github.com/iudanet/doccollab/internal/server/middleware"
)

// APIPrefix префикс всех маршрутов
const APIPrefix = "/api/v1"

// HealthPath путь health check
const HealthPath = APIPrefix + "/health"

// Deps зависимости роутера
type Deps struct {
	Logger  *slog.Logger
	Service collab.Service
	DB      handlers.Pinger
	JWT     handlers.JWTConfig
	Limiter *middleware.RateLimiter // nil отключает лимит на отправку операций
	Version string
}

// NewRouter регистрирует маршруты API.
// Все маршруты, кроме health, требуют bearer-токен.
func NewRouter(d Deps) *mux.Router {
	collabHandler := handlers.NewCollabHandler(d.Logger, d.Service)
	healthHandler := handlers.NewHealthHandler(d.Logger, d.DB, d.Version)

	r := mux.NewRouter()
	r.Use(middleware.RecoveryMiddleware(d.Logger))
	r.Use(middleware.LoggingWithSkip(d.Logger, []string{HealthPath}))

	api := r.PathPrefix(APIPrefix).Subrouter()
	api.HandleFunc("/health", healthHandler.Health).Methods(http.MethodGet)

	authed := api.NewRoute().Subrouter()
	authed.Use(middleware.AuthMiddleware(d.Logger, d.JWT))

	authed.HandleFunc("/documents", collabHandler.CreateDocument).Methods(http.MethodPost)
	authed.HandleFunc("/documents/{id}/editors", collabHandler.GrantEdit).Methods(http.MethodPost)
	authed.HandleFunc("/documents/{id}/state", collabHandler.State).Methods(http.MethodGet)
	authed.HandleFunc("/documents/{id}/resume", collabHandler.Resume).Methods(http.MethodPost)

	authed.HandleFunc("/sessions", collabHandler.StartSession).Methods(http.MethodPost)
	authed.HandleFunc("/sessions/{id}", collabHandler.EndSession).Methods(http.MethodDelete)

	submit := http.Handler(http.HandlerFunc(collabHandler.SubmitOperation))
	if d.Limiter != nil {
		submit = middleware.RateLimitMiddleware(d.Limiter, middleware.ByActor, d.Logger)(submit)
	}
	authed.Handle("/sessions/{id}/operations", submit).Methods(http.MethodPost)

	authed.HandleFunc("/locks", collabHandler.AcquireLock).Methods(http.MethodPost)
	authed.HandleFunc("/locks/{id}", collabHandler.ReleaseLock).Methods(http.MethodDelete)

	return r
}

// Server HTTP-сервер с graceful shutdown
type Server struct {
	http            *http.Server
	limiter         *middleware.RateLimiter
	logger          *slog.Logger
	shutdownTimeout time.Duration
}

// New создает сервер по конфигурации
func New(cfg config.ServerConfig, d Deps) *Server {
	if d.Limiter == nil && cfg.RateLimit > 0 {
		d.Limiter = middleware.NewRateLimiter(cfg.RateLimit, cfg.RateWindow, d.Logger)
	}

	return &Server{
		http: &http.Server{
			Addr:              cfg.Address,
			Handler:           NewRouter(d),
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: cfg.ReadTimeout,
			WriteTimeout:      cfg.WriteTimeout,
		},
		limiter:         d.Limiter,
		logger:          d.Logger,
		shutdownTimeout: cfg.ShutdownTimeout,
	}
}

// Handler возвращает корневой обработчик
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Run обслуживает запросы до отмены ctx, затем корректно останавливает сервер
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "address", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		s.stopLimiter()
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down HTTP server", "timeout", s.shutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	err := s.http.Shutdown(shutdownCtx)
	s.stopLimiter()
	if err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return nil
}

func (s *Server) stopLimiter() {
	if s.limiter != nil {
		s.limiter.Stop()
	}
}
