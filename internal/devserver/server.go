// Package devserver is a stub WormChat backend for local development and
// contract tests. It speaks the PostWormAPI wire format, assigns conversation
// ids and answers through a Responder; it never calls an AI model.
package devserver

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"wormchat/internal/transport"
)

// MaxChatTextRunes bounds chatText.
const MaxChatTextRunes = 4000

// postRequest mirrors transport.Request with validation rules.
type postRequest struct {
	ID          string `json:"id"`
	MailAddress string `json:"mailAddress" validate:"required,email"`
	ChatText    string `json:"chatText" validate:"required,max=4000"`
}

// Config configures a Server.
type Config struct {
	APIKey    string // when set, requests must carry it in x-functions-key
	Responder Responder
	Logger    *zap.Logger
	Registry  *prometheus.Registry
}

// Server is the stub backend.
type Server struct {
	apiKey    string
	responder Responder
	logger    *zap.Logger
	registry  *prometheus.Registry
	metrics   *metrics
	validate  *validator.Validate
	router    chi.Router

	mu            sync.RWMutex
	conversations map[string]*conversation
}

type conversation struct {
	Email     string
	Turns     int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// New creates a Server. Zero-valued Config fields get defaults.
func New(cfg Config) *Server {
	if cfg.Responder == nil {
		cfg.Responder = EchoResponder{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Registry == nil {
		cfg.Registry = prometheus.NewRegistry()
	}

	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	s := &Server{
		apiKey:        cfg.APIKey,
		responder:     cfg.Responder,
		logger:        cfg.Logger,
		registry:      cfg.Registry,
		metrics:       newMetrics(cfg.Registry),
		validate:      v,
		conversations: make(map[string]*conversation),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(s.requestLogger)
	r.Use(chimw.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", transport.HeaderFunctionsKey},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	r.Post(transport.PostPath, s.handlePost)

	return r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("stub backend listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.logger.Info("stub backend shutting down")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errCh
		return nil
	}
}

// ConversationTurns returns the number of turns recorded for id.
func (s *Server) ConversationTurns(id string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.conversations[id]; ok {
		return c.Turns
	}
	return 0
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", chimw.GetReqID(r.Context())),
		)
	})
}
