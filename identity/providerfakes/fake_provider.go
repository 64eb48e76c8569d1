package providerfakes

import (
	"context"
	"net/http"
	"sync"

	"github.com/pkg/errors"
	"github.com/sprintdeck/sprintdeck-auth/identity"
)

var _ identity.Provider = (*FakeProvider)(nil)

// FakeProvider is an in-memory identity.Provider for tests. A session is
// keyed by the value of the "sprintdeck_session" cookie; refresh tokens
// map to the pair they mint.
type FakeProvider struct {
	lock sync.RWMutex

	sessions     map[string]*identity.Session // cookie value -> session
	refreshPairs map[string]*identity.TokenPair

	probeErr   error
	refreshErr error
	revokeErr  error

	revoked []string
}

// SessionCookieName is the cookie the fake keys sessions on.
const SessionCookieName = "sprintdeck_session"

func NewFakeProvider() *FakeProvider {
	return &FakeProvider{
		sessions:     make(map[string]*identity.Session),
		refreshPairs: make(map[string]*identity.TokenPair),
	}
}

// AddSession registers a session reachable with the given cookie value.
func (p *FakeProvider) AddSession(cookieValue string, session *identity.Session) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.sessions[cookieValue] = session
}

// AddRefreshPair registers the pair minted for a refresh token.
func (p *FakeProvider) AddRefreshPair(refreshToken string, pair *identity.TokenPair) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.refreshPairs[refreshToken] = pair
}

// FailProbe makes SessionFromRequest return err.
func (p *FakeProvider) FailProbe(err error) { p.probeErr = err }

// FailRefresh makes Refresh return err.
func (p *FakeProvider) FailRefresh(err error) { p.refreshErr = err }

// FailRevoke makes Revoke return err.
func (p *FakeProvider) FailRevoke(err error) { p.revokeErr = err }

// RevokedTokens returns every token passed to Revoke.
func (p *FakeProvider) RevokedTokens() []string {
	p.lock.RLock()
	defer p.lock.RUnlock()
	return append([]string(nil), p.revoked...)
}

func (p *FakeProvider) SessionFromRequest(_ context.Context, r *http.Request) (*identity.Session, error) {
	if p.probeErr != nil {
		return nil, p.probeErr
	}

	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		return nil, nil
	}

	p.lock.RLock()
	defer p.lock.RUnlock()
	session, ok := p.sessions[cookie.Value]
	if !ok {
		return nil, nil
	}
	clone := *session
	return &clone, nil
}

func (p *FakeProvider) Refresh(_ context.Context, refreshToken string) (*identity.TokenPair, error) {
	if p.refreshErr != nil {
		return nil, p.refreshErr
	}

	p.lock.RLock()
	defer p.lock.RUnlock()
	pair, ok := p.refreshPairs[refreshToken]
	if !ok {
		return nil, errors.New("unknown refresh token")
	}
	clone := *pair
	return &clone, nil
}

func (p *FakeProvider) Revoke(_ context.Context, token, _ string) error {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.revoked = append(p.revoked, token)
	return p.revokeErr
}
