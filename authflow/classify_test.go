package authflow_test

import (
	"testing"

	"github.com/sprintdeck/sprintdeck-auth/authflow"
	"github.com/sprintdeck/sprintdeck-auth/clients"
	"github.com/sprintdeck/sprintdeck-auth/oauth2"
	"github.com/stretchr/testify/require"
)

func TestProgrammatic(t *testing.T) {
	tests := []struct {
		name        string
		redirectURI string
		userAgent   string
		client      *clients.Client
		want        bool
	}{
		{"browser with https redirect", testWebRedirect, browserUA, nil, false},
		{"custom scheme redirect", testRedirectURI, browserUA, nil, true},
		{"vscode scheme redirect", "vscode://publisher.extension/auth", browserUA, nil, true},
		{"agent user agent with https redirect", testWebRedirect, agentUA, nil, true},
		{"jetbrains user agent", testWebRedirect, "JetBrains Rider/2025.1", nil, true},
		{"curl", testWebRedirect, "curl/8.4.0", nil, true},
		{"electron shell", testWebRedirect, "Mozilla/5.0 Electron/28.0", nil, true},
		{"no user agent", testWebRedirect, "", nil, true},
		{"native registration overrides browser signals", testWebRedirect, browserUA, &clients.Client{ID: "x", Native: true}, true},
		{"non-native registration keeps heuristics", testWebRedirect, browserUA, &clients.Client{ID: "x"}, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := authflow.Programmatic(&oauth2.AuthorizationParameters{
				RedirectURI: tc.redirectURI,
				UserAgent:   tc.userAgent,
			}, tc.client)
			require.Equal(t, tc.want, got)
		})
	}
}
