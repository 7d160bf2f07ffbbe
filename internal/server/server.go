package server

import (
	"context"
	"log/slog"
	"net/http"

	gymmcp "github.com/claude/gymrats/internal/mcp"
	"github.com/claude/gymrats/internal/session"
	"github.com/claude/gymrats/internal/storage"
	"github.com/claude/gymrats/internal/templates"
	"github.com/go-chi/chi/v5"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Options configures a Server.
type Options struct {
	// APIKey, when set, is required as X-API-Key on /api/v1 and /mcp.
	APIKey string
	// DefaultScope is used for requests without a tailnet identity.
	DefaultScope storage.Scope
	// DefaultRestSeconds is the rest countdown when a toggle names none.
	DefaultRestSeconds int
	Version            string
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	sessions  *session.Manager
	templates *templates.Store
	opts      Options
	log       *slog.Logger
	whois     WhoIser
	router    chi.Router
}

// New creates a new Server with all routes configured.
func New(sessions *session.Manager, store *templates.Store, opts Options, log *slog.Logger) *Server {
	s := &Server{
		sessions:  sessions,
		templates: store,
		opts:      opts,
		log:       log,
		router:    chi.NewRouter(),
	}
	s.routes()
	return s
}

// SetTailscale enables identity lookup of tailnet peers. The login name of
// the caller becomes its persistence scope.
func (s *Server) SetTailscale(lc WhoIser) {
	s.whois = lc
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.Use(RequestLogging(s.log))
	s.router.Use(CORS)

	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Group(func(r chi.Router) {
		r.Use(s.identity)
		if s.opts.APIKey != "" {
			r.Use(APIKeyAuth(s.opts.APIKey))
		}

		r.Get("/api/v1/me", s.handleMe)

		r.Route("/api/v1/session", func(r chi.Router) {
			r.Get("/", s.handleGetSession)
			r.Post("/start", s.handleStartSession)
			r.Post("/exercises", s.handleAddExercise)
			r.Put("/exercises/{ex}/sets/{set}", s.handleUpdateSet)
			r.Post("/exercises/{ex}/rest", s.handleToggleRest)
			r.Post("/finish", s.handleFinish)
			r.Post("/cancel", s.handleCancel)
		})
		r.Get("/api/v1/events", s.handleEvents)

		r.Route("/api/v1/templates", func(r chi.Router) {
			r.Get("/", s.handleListTemplates)
			r.Post("/", s.handleCreateTemplate)
			r.Get("/{id}", s.handleGetTemplate)
			r.Put("/{id}", s.handleUpdateTemplate)
			r.Delete("/{id}", s.handleDeleteTemplate)
		})

		r.Get("/api/v1/history", s.handleHistory)

		mcpSrv := gymmcp.New(gymmcp.NewLocal(s.sessions, s.templates, s.opts.DefaultRestSeconds), s.opts.Version, s.log)
		r.Handle("/mcp", mcpserver.NewStreamableHTTPServer(mcpSrv,
			mcpserver.WithHTTPContextFunc(func(ctx context.Context, r *http.Request) context.Context {
				return gymmcp.WithScope(ctx, scopeFromRequest(r))
			}),
		))
	})
}

func (s *Server) controller(r *http.Request) *session.Controller {
	return s.sessions.Get(r.Context(), scopeFromRequest(r))
}
