// Package clients holds the static allow-list of OAuth client identifiers.
// There is no dynamic registration: the set of IDE/agent integrations that
// may request Sprintdeck credentials is small and configured at startup.
package clients

import (
	"strings"

	"github.com/pkg/errors"
)

// ErrUnknownClient is returned when a client ID is not on the allow-list.
var ErrUnknownClient = errors.New("client is not on the allow-list")

// Client is one allow-listed integration.
type Client struct {
	ID          string `json:"id"`
	Description string `json:"description,omitempty"`

	// Native, when set, pins the caller classification for this client and
	// takes precedence over the per-request scheme/user-agent heuristic.
	Native bool `json:"native,omitempty"`
}

// Registry is the explicit allow-list object, built once at startup and
// injected wherever client lookups are needed. Deliberately not a package
// global: multi-instance deployments must be explicit about what is not
// shared process state.
type Registry struct {
	byID map[string]*Client
}

// NewRegistry builds a registry from the configured clients.
func NewRegistry(allowed []Client) *Registry {
	byID := make(map[string]*Client, len(allowed))
	for i := range allowed {
		c := allowed[i]
		byID[c.ID] = &c
	}
	return &Registry{byID: byID}
}

// NewRegistryFromIDs builds a registry from a comma-separated ID list, the
// shape the ALLOWED_CLIENT_IDS env var uses. An ID may carry a ":native"
// suffix to pin the client's caller classification, e.g.
// "cursor-ide:native,sprintdeck-web".
func NewRegistryFromIDs(idList string) *Registry {
	var allowed []Client
	for _, entry := range strings.Split(idList, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		id, flag, _ := strings.Cut(entry, ":")
		allowed = append(allowed, Client{
			ID:     strings.TrimSpace(id),
			Native: strings.EqualFold(strings.TrimSpace(flag), "native"),
		})
	}
	return NewRegistry(allowed)
}

// Get returns the allow-listed client or ErrUnknownClient.
func (r *Registry) Get(clientID string) (*Client, error) {
	client, ok := r.byID[clientID]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownClient, "client %q", clientID)
	}
	return client, nil
}

// Empty reports whether no clients are configured. An empty registry
// disables allow-list enforcement so local development works without
// configuration.
func (r *Registry) Empty() bool {
	return len(r.byID) == 0
}
