package server

import (
	"net/http"

	"github.com/taskify/auth-server/auth"
	"github.com/taskify/auth-server/internal/config"
)

// Server is the HTTP surface over the auth service. Routing uses the stdlib
// mux with method-qualified patterns.
type Server struct {
	env         string
	mux         *http.ServeMux
	routes      []string
	auth        *auth.Service
	corsOrigins []string
}

func New(cfg *config.Config, authService *auth.Service) *Server {
	s := &Server{
		env:         cfg.Env,
		mux:         http.NewServeMux(),
		auth:        authService,
		corsOrigins: cfg.CORSOrigins,
	}
	s.initRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) initRoutes() {
	api := s.APIMiddleware()

	s.RegisterRouteFunc("POST /auth/register", ChainMiddleware(s.RegisterHandler(), api...))
	s.RegisterRouteFunc("POST /auth/login", ChainMiddleware(s.LoginHandler(), api...))
	s.RegisterRouteFunc("POST /auth/refresh", ChainMiddleware(s.RefreshHandler(), api...))
	s.RegisterRouteFunc("POST /auth/logout", ChainMiddleware(s.LogoutHandler(), api...))

	s.RegisterRouteFunc("GET /auth/{provider}", ChainMiddleware(s.AuthorizeHandler(), api...))
	s.RegisterRouteFunc("GET /auth/{provider}/callback", ChainMiddleware(s.CallbackHandler(), api...))

	// Method-qualified patterns do not match preflight requests, so OPTIONS
	// gets its own catch-all; the CORS middleware answers it.
	s.RegisterRouteFunc("OPTIONS /", ChainMiddleware(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}, api...))

	s.RegisterRouteFunc("GET /healthz", s.HealthzHandler())
}
