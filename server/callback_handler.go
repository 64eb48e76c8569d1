package server

import (
	"embed"
	"html/template"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"
)

//go:embed templates/*.html
var templateFiles embed.FS

var callbackTemplate = template.Must(template.ParseFS(templateFiles, "templates/callback.html"))

type callbackPageData struct {
	AppName   string
	TargetURL string
	Code      string
}

// OAuthCallbackHandler renders the bounce page for custom-scheme redirect
// targets. Browsers will not follow a 3xx to cursor:// reliably, so the
// page triggers the scheme handler from script and shows the code for
// manual copy as a fallback.
func (s *Server) OAuthCallbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// The documented parameter is redirectUri; redirect_uri is accepted
		// as an alias for symmetry with the other endpoints.
		redirectURI := r.URL.Query().Get("redirectUri")
		if redirectURI == "" {
			redirectURI = r.URL.Query().Get("redirect_uri")
		}
		code := r.URL.Query().Get("code")
		state := r.URL.Query().Get("state")

		if redirectURI == "" || code == "" {
			http.Error(w, "missing redirectUri or code", http.StatusBadRequest)
			return
		}

		u, err := url.Parse(redirectURI)
		if err != nil || u.Scheme == "" {
			http.Error(w, "invalid redirect_uri", http.StatusBadRequest)
			return
		}

		// HTTP targets never land here through the authorize flow; if one
		// does, a plain redirect is both safe and correct.
		switch strings.ToLower(u.Scheme) {
		case "http", "https":
			target, err := appendCodeToRedirect(redirectURI, code, state)
			if err != nil {
				http.Error(w, "invalid redirect_uri", http.StatusBadRequest)
				return
			}
			http.Redirect(w, r, target, http.StatusFound)
			return
		}

		target, err := appendCodeToRedirect(redirectURI, code, state)
		if err != nil {
			http.Error(w, "invalid redirect_uri", http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", contentTypeHTML)
		w.Header().Set("Cache-Control", "no-store")
		if err := callbackTemplate.Execute(w, callbackPageData{
			AppName:   s.config.GetAppName(),
			TargetURL: target,
			Code:      code,
		}); err != nil {
			log.Err(err).Msg("Failed to render callback page")
		}
	}
}
