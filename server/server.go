package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	"github.com/sprintdeck/sprintdeck-auth/authflow"
	"github.com/sprintdeck/sprintdeck-auth/clients"
	"github.com/sprintdeck/sprintdeck-auth/identity"
	"github.com/sprintdeck/sprintdeck-auth/internal/config"
	"github.com/sprintdeck/sprintdeck-auth/pending"
)

// Pinger is implemented by request stores with a reachable backend.
// The health endpoint reports degraded when the ping fails.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	env      string
	mux      *http.ServeMux
	routes   []string
	config   config.Config
	flow     *authflow.AuthorizationService
	provider identity.Provider
	pinger   Pinger
}

func New(cfg config.Config, requests pending.Repo, provider identity.Provider, registry *clients.Registry) (*Server, error) {
	flow, err := authflow.NewAuthorizationService(requests, provider, registry, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "[Server New] failed to create authorization service")
	}

	s := &Server{
		mux:      http.NewServeMux(),
		config:   cfg,
		flow:     flow,
		provider: provider,
	}
	s.env = cfg.GetEnv()
	if p, ok := requests.(Pinger); ok {
		s.pinger = p
	}

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

// Flow exposes the authorization service for the janitor ticker.
func (s *Server) Flow() *authflow.AuthorizationService {
	return s.flow
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}

func logRoute(method, path string) {
	var displayMethod string
	paddedMethod := fmt.Sprintf(" %-7s", method)
	if color, ok := methodColors[method]; ok {
		displayMethod = color + paddedMethod + ResetColor
	} else {
		displayMethod = Gray + paddedMethod + ResetColor
	}
	log.Printf("[%-19s] %s\n", displayMethod, path)
}
