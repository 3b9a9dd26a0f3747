package http

import (
	"bytes"
	"context"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"carbontrack/internal/log"
	"carbontrack/internal/metrics"
	"carbontrack/internal/middleware/ratelimit"
	"carbontrack/internal/middleware/security"
	"carbontrack/internal/middleware/trace"
	"carbontrack/internal/services"
	"carbontrack/internal/store"
	"carbontrack/internal/totals"
	appweb "carbontrack/web"
)

// StatsProvider reports the state of the usage snapshot.
type StatsProvider interface {
	Stats() store.Stats
}

// Dependencies are the collaborators the handlers call into.
type Dependencies struct {
	Auth       *services.AuthService
	Aggregator *totals.Aggregator
	Stats      StatsProvider
	// Ready checks backend connectivity for /readyz. Nil means always ready.
	Ready   func(ctx context.Context) error
	Metrics *metrics.Metrics
	Logger  *log.Logger
}

// Options tune cookies, rate limits and client IP resolution.
type Options struct {
	SecureCookies  bool
	SessionTTL     time.Duration
	LoginRateLimit int
	// TrustedProxies are CIDRs trusted to set X-Forwarded-For, in addition
	// to loopback.
	TrustedProxies []string
}

// Server serves the dashboard, auth pages and operational endpoints.
type Server struct {
	http.Server

	auth       *services.AuthService
	aggregator *totals.Aggregator
	stats      StatsProvider
	ready      func(ctx context.Context) error
	metrics    *metrics.Metrics
	templates  *template.Template
	opts       Options
	started    time.Time

	logger       *log.Logger
	detector     *security.Detector
	loginLimiter *ratelimit.Limiter
	tracer       *trace.Middleware

	shutdownOnce sync.Once
}

// NewServer configures routes and templates, returning a ready-to-run http.Server.
func NewServer(addr string, deps Dependencies, opts Options) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 24 * time.Hour
	}

	s := &Server{
		auth:       deps.Auth,
		aggregator: deps.Aggregator,
		stats:      deps.Stats,
		ready:      deps.Ready,
		metrics:    deps.Metrics,
		opts:       opts,
		started:    time.Now(),
		logger:     logger.WithComponent(log.ComponentHTTP),
		detector:   security.NewDetector(logger),
		loginLimiter: ratelimit.NewLimiter(ratelimit.Config{
			Requests: opts.LoginRateLimit,
			Window:   time.Minute,
		}),
	}
	for _, cidr := range opts.TrustedProxies {
		if err := s.detector.AddTrustedProxy(cidr); err != nil {
			s.logger.Warn("Ignoring trusted proxy", log.FieldError, err)
		}
	}
	s.tracer = trace.NewMiddleware(logger, s.detector.ExtractClientIP)

	t, err := template.New("carbontrack").Funcs(templateFuncs()).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		s.logger.Error("Failed parsing templates",
			log.FieldError, err,
			log.FieldComponent, log.ComponentTemplate)
	} else {
		s.templates = t
	}

	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	handle := func(pattern, route string, h http.HandlerFunc) {
		mux.Handle(pattern, s.metrics.WrapHandler(route, h))
	}

	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("GET /static/", security.StaticAssetMiddleware(3600)(static))
	} else {
		s.logger.Warn("Failed to mount embedded static FS", log.FieldError, err)
	}

	handle("GET /healthz", "/healthz", s.handleHealth)
	handle("GET /readyz", "/readyz", s.handleReady)
	mux.Handle("GET /metrics", s.metrics.Handler())

	loginLimit := s.loginLimiter.Middleware(s.detector.ExtractClientIP, s.handleLoginLimited, http.MethodPost)
	handle("GET /login", "/login", s.handleLoginPage)
	mux.Handle("POST /login", s.metrics.WrapHandler("/login", loginLimit(http.HandlerFunc(s.handleLogin))))
	handle("GET /admin-login", "/admin-login", s.handleAdminLoginPage)
	mux.Handle("POST /admin-login", s.metrics.WrapHandler("/admin-login", loginLimit(http.HandlerFunc(s.handleAdminLogin))))
	handle("GET /signup", "/signup", s.handleSignupPage)
	mux.Handle("POST /signup", s.metrics.WrapHandler("/signup", loginLimit(http.HandlerFunc(s.handleSignup))))
	handle("POST /logout", "/logout", s.requireSession(s.handleLogout))

	handle("GET /{$}", "/", s.requireSession(s.handleDashboard))
	handle("GET /ui/kpis", "/ui/kpis", s.requireSession(s.handleKPIs))
	handle("GET /ui/departments", "/ui/departments", s.requireSession(s.handleDepartments))
	handle("GET /api/departments", "/api/departments", s.requireSession(s.handleDepartmentsJSON))
	handle("POST /ui/theme", "/ui/theme", s.requireSession(s.handleToggleTheme))

	handle("GET /admin", "/admin", s.requireAdmin(s.handleAdmin))
	handle("GET /admin-panel", "/admin-panel", func(w http.ResponseWriter, r *http.Request) {
		redirect(w, r, "/admin")
	})

	var h http.Handler = mux
	h = security.NoStore(h)
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	h = s.detector.Middleware(h)
	h = s.tracer.Middleware(h)
	return h
}

// Shutdown stops background workers and gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.loginLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// render executes a named template into a buffer and writes it with status.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	if s.templates == nil {
		s.logger.ErrorContext(r.Context(), "Templates not loaded",
			log.FieldPath, r.URL.Path,
			"error_type", log.ErrorTypeConfiguration)
		InternalServerError(r.Context(), "Templates not loaded").Write(w)
		return
	}
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Template execution failed",
			log.FieldError, err,
			"template", name,
			log.FieldOperation, log.OpRender)
		InternalServerError(r.Context(), "Render failed").Write(w)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}
