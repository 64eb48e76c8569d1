package server

import (
	"encoding/json"
	"net/http"
)

// WellKnownAuthorizationServer serves the RFC 8414 authorization server
// metadata document.
func (s *Server) WellKnownAuthorizationServer() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		baseURL := s.config.GetBaseURL()

		resp := map[string]any{
			"issuer":                 baseURL,
			"authorization_endpoint": baseURL + RouteAuthorize,
			"token_endpoint":         baseURL + RouteToken,
			"revocation_endpoint":    baseURL + RouteRevoke,

			"response_types_supported": []string{"code"},
			"response_modes_supported": []string{"query"},

			"grant_types_supported": []string{
				"authorization_code",
				"refresh_token",
			},

			// Public clients only; the code itself is the proof.
			"token_endpoint_auth_methods_supported": []string{"none"},

			// PKCE support
			"code_challenge_methods_supported": []string{"S256", "plain"},

			"scopes_supported": []string{
				"projects:read",
				"projects:write",
				"tasks:read",
				"tasks:write",
				"sprints:read",
				"sprints:write",
				"offline_access",
			},
		}

		w.Header().Set("Content-Type", contentTypeJSON)
		w.Header().Set("Cache-Control", "public, max-age=3600") // Cache for 1 hour
		_ = json.NewEncoder(w).Encode(resp)
	}
}

// HealthzHandler reports liveness, including store reachability when the
// request store has a backend.
func (s *Server) HealthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := "ok"
		httpStatus := http.StatusOK

		if s.pinger != nil {
			if err := s.pinger.Ping(r.Context()); err != nil {
				status = "degraded"
				httpStatus = http.StatusServiceUnavailable
			}
		}

		w.Header().Set("Content-Type", contentTypeJSON)
		w.WriteHeader(httpStatus)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status":  status,
			"service": s.config.GetAppName(),
		})
	}
}
