package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/dental-agenda/internal/agenda"
	httpmiddleware "github.com/wolfman30/dental-agenda/internal/http/middleware"
	"github.com/wolfman30/dental-agenda/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	AgendaHandler      *agenda.Handler
	MetricsHandler     http.Handler
	MetricsToken       string
	CORSAllowedOrigins []string

	// AuthSecret, when set, makes the agenda reject bearer tokens that do
	// not verify as HMAC-signed JWTs.
	AuthSecret string

	// MutationLimiter throttles agenda writes per caller (optional).
	MutationLimiter *httpmiddleware.RateLimiter
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	var agendaRoutes chi.Router
	if cfg.AgendaHandler != nil {
		agendaRoutes = cfg.AgendaHandler.Routes()
	}
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(httpmiddleware.CORSConfig{
			Origins: cfg.CORSAllowedOrigins,
			Methods: routeMethods(agendaRoutes),
		}))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints
	r.Group(func(public chi.Router) {
		public.Get("/health", healthCheck)
		if cfg.MetricsHandler != nil {
			public.With(requireMetricsToken(cfg.MetricsToken)).Handle("/metrics", cfg.MetricsHandler)
		}
	})

	// Agenda routes act on behalf of the bearer of the request.
	if agendaRoutes != nil {
		r.Group(func(ag chi.Router) {
			ag.Use(httpmiddleware.BearerSession(cfg.AuthSecret, cfg.Logger))
			if cfg.MutationLimiter != nil {
				ag.Use(limitMutations(httpmiddleware.RateLimit(cfg.MutationLimiter)))
			}
			ag.Mount("/agenda", agendaRoutes)
		})
	}

	return r
}

func healthCheck(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// routeMethods lists the methods served by routes, for CORS preflights.
func routeMethods(routes chi.Routes) []string {
	methods := []string{http.MethodGet}
	if routes == nil {
		return methods
	}
	_ = chi.Walk(routes, func(method, _ string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		methods = append(methods, method)
		return nil
	})
	return methods
}
