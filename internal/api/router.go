package api

import (
	"context"
	"net/http"
	"os"
	"path"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/openblog/backend/internal/auth"
	"github.com/openblog/backend/internal/comments"
	apperrors "github.com/openblog/backend/internal/errors"
	"github.com/openblog/backend/internal/health"
	"github.com/openblog/backend/internal/images"
	"github.com/openblog/backend/internal/logger"
	"github.com/openblog/backend/internal/metrics"
	"github.com/openblog/backend/internal/middleware"
	"github.com/openblog/backend/internal/posts"
	"github.com/openblog/backend/internal/websocket"
)

// Deps are the handlers and shared services the router mounts.
type Deps struct {
	Log                *logger.Logger
	Metrics            *metrics.Metrics
	Validator          auth.TokenValidator
	AuthHandlers       *auth.Handlers
	PostHandlers       *posts.Handlers
	CommentHandlers    *comments.Handlers
	ImageHandlers      *images.Handlers
	FeedHandler        *websocket.Handler
	HealthHandler      *health.Handler
	CORSAllowedOrigins []string
	// StaticDir, when it exists, serves the single-page client.
	StaticDir string
}

type Router struct {
	mux *chi.Mux
	log *logger.Logger
}

func NewRouter(d *Deps) *Router {
	log := d.Log
	if log == nil {
		log = logger.Default()
	}
	r := &Router{
		mux: chi.NewRouter(),
		log: log.WithComponent("http"),
	}
	r.setupRoutes(d)
	return r
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// report logs every server-side failure with its cause. Client errors are
// already covered by the access log.
func (r *Router) report(req *http.Request, err *apperrors.AppError) {
	if err.HTTPStatus >= http.StatusInternalServerError {
		r.log.Error(req.Context(), err.Message, err.Cause, map[string]any{
			"code":   err.Code,
			"method": req.Method,
			"path":   req.URL.Path,
		})
		return
	}
	r.log.Debug(req.Context(), "request rejected", map[string]any{
		"code":  err.Code,
		"field": err.Field,
		"path":  req.URL.Path,
	})
}

func (r *Router) handle(h apperrors.Handler) http.HandlerFunc {
	return apperrors.HandleFunc(h, r.report)
}

func (r *Router) setupRoutes(d *Deps) {
	m := r.mux

	m.Use(apperrors.RequestIDMiddleware)
	m.Use(chimw.RealIP)
	m.Use(middleware.Logging(r.log))
	m.Use(middleware.Recoverer(r.log))
	m.Use(middleware.Timing(r.log))
	if d.Metrics != nil {
		m.Use(metrics.MetricsMiddleware(d.Metrics))
	}
	m.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", apperrors.RequestIDHeader},
		ExposedHeaders:   []string{apperrors.RequestIDHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	m.Use(chimw.Compress(5))

	m.NotFound(r.notFound(d.StaticDir))
	m.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		apperrors.WriteError(w, apperrors.GetRequestID(req.Context()),
			apperrors.New(apperrors.CodeInvalidRequest, "method not allowed", apperrors.CategoryClient, http.StatusMethodNotAllowed))
	})

	// Operational
	if d.HealthHandler != nil {
		m.Get("/health", d.HealthHandler.HealthHandler)
		m.Get("/health/live", d.HealthHandler.LivenessHandler)
		m.Get("/health/ready", d.HealthHandler.ReadinessHandler)
	}
	if d.Metrics != nil {
		m.Get("/metrics", d.Metrics.Handler())
	}

	// Auth (no token required)
	m.Post("/signup", r.handle(d.AuthHandlers.Signup))
	m.Post("/login", r.handle(d.AuthHandlers.Login))
	m.Post("/token", r.handle(d.AuthHandlers.Refresh))
	m.Post("/logout", r.handle(d.AuthHandlers.Logout))

	// Public so that <img src> works without a token.
	m.Get("/file/{filename}", r.handle(d.ImageHandlers.Serve))

	// The feed checks its own ?token= parameter.
	if d.FeedHandler != nil {
		m.Get("/ws/posts/{id}", d.FeedHandler.ServeWS)
	}

	m.Group(func(p chi.Router) {
		p.Use(auth.Middleware(d.Validator))

		p.Post("/create", r.handle(d.PostHandlers.Create))
		p.With(middleware.ETag).Get("/posts", r.handle(d.PostHandlers.List))
		p.With(middleware.ETag).Get("/post/{id}", r.handle(d.PostHandlers.Get))
		p.Put("/update/{id}", r.handle(d.PostHandlers.Update))
		p.Delete("/delete/{id}", r.handle(d.PostHandlers.Delete))

		p.Post("/comment/new", r.handle(d.CommentHandlers.New))
		p.With(middleware.ETag).Get("/comments/{id}", r.handle(d.CommentHandlers.List))
		p.Delete("/comment/delete/{id}", r.handle(d.CommentHandlers.Delete))

		p.Post("/file/upload", r.handle(d.ImageHandlers.Upload))
	})
}

// notFound answers unknown routes with a JSON 404, or with the client app
// when a static directory is configured.
func (r *Router) notFound(staticDir string) http.HandlerFunc {
	jsonNotFound := func(w http.ResponseWriter, req *http.Request) {
		apperrors.WriteError(w, apperrors.GetRequestID(req.Context()), apperrors.NotFound("route"))
	}

	if staticDir == "" {
		return jsonNotFound
	}
	if info, err := os.Stat(staticDir); err != nil || !info.IsDir() {
		r.log.Warn(context.Background(), "static directory unavailable, serving API only", map[string]any{"dir": staticDir})
		return jsonNotFound
	}

	files := http.FileServer(http.Dir(staticDir))
	index := filepath.Join(staticDir, "index.html")

	return func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet && req.Method != http.MethodHead {
			jsonNotFound(w, req)
			return
		}

		name := filepath.Join(staticDir, filepath.FromSlash(path.Clean("/"+req.URL.Path)))
		if info, err := os.Stat(name); err == nil && !info.IsDir() {
			files.ServeHTTP(w, req)
			return
		}
		// Client-side routes fall back to the app shell.
		http.ServeFile(w, req, index)
	}
}
