package app

import (
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	audithttp "github.com/noteguard/noteguard/internal/audit/http"
	"github.com/noteguard/noteguard/internal/auth"
	"github.com/noteguard/noteguard/internal/observability"
	"github.com/noteguard/noteguard/internal/pipeline"
	"github.com/noteguard/noteguard/internal/sessions"
	"github.com/noteguard/noteguard/internal/shared"
	"github.com/noteguard/noteguard/internal/view"
	"github.com/noteguard/noteguard/jobs"
	"github.com/noteguard/noteguard/web"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	Templates      *view.Engine
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	Guard          *pipeline.Guard
	Registry       *sessions.Registry
	AuthService    *auth.Service
	AuthHandler    *auth.Handler
	Metrics        *observability.Metrics
	Jobs           *jobs.Handler
	Audit          *audithttp.Handler
	// AccessLog enables chi's request logger.
	AccessLog bool
}

// NewRouter constructs the chi.Router with noteguard defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	if params.AccessLog {
		r.Use(chimw.Logger)
	}
	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Guard:          params.Guard,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	window := 60
	if params.Config != nil && params.Config.LoginRateWindow > 0 {
		window = int(params.Config.LoginRateWindow.Seconds())
	}
	p := &pages{
		logger:    params.Logger,
		templates: params.Templates,
		csrf:      params.CSRFManager,
		service:   params.AuthService,
		registry:  params.Registry,
		guard:     params.Guard,
		window:    window,
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/hello", hello)
	r.Get("/headers", echoHeaders)

	r.Get("/", p.home)
	params.AuthHandler.MountRoutes(r)
	r.Get("/notes", p.notes)
	r.Get("/user", p.user)
	r.Get("/admin", p.admin)
	if params.Audit != nil {
		r.Route("/admin/audit", params.Audit.MountRoutes)
	}
	if params.Jobs != nil {
		r.Route("/admin/jobs", params.Jobs.MountRoutes)
	}
	r.Get("/forbidden", p.forbidden)
	r.Get("/rate-limit", p.rateLimit)
	r.Post("/rate-limit", p.rateLimit)
	r.Get("/error", p.errorPage)

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	staticFS, err := fs.Sub(web.Static, "static")
	if err != nil {
		params.Logger.Error("create static sub filesystem", slog.Any("error", err))
	} else {
		fileServer := http.StripPrefix("/static/", http.FileServer(http.FS(staticFS)))
		r.Handle("/static/*", staticCacheHandler(fileServer))
	}

	return r
}

// staticCacheHandler wraps a file server with Cache-Control headers.
func staticCacheHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		next.ServeHTTP(w, r)
	})
}
