// Package pending persists authorization requests that arrive before the
// user has a login session. A row bridges the unauthenticated authorize
// call to the later authenticated one, and lets a polling client observe
// success without handling a browser redirect itself.
package pending

import (
	"context"
	"time"
)

// Status of a pending authorization request.
type Status string

const (
	// StatusPending means no user has completed login for this request yet.
	StatusPending Status = "pending"
	// StatusAuthorized means the request carries an issued authorization code.
	StatusAuthorized Status = "authorized"
)

// Lifetime is how long a pending request stays redeemable.
const Lifetime = 10 * time.Minute

// Request is the durable record for one in-flight authorization.
// The live-row invariant is one unexpired row per ClientID; repeated
// authorize calls before login update the row in place, so a client's
// newest challenge is the only one that can be promoted.
type Request struct {
	ID                  string
	ClientID            string
	CodeChallenge       string
	CodeChallengeMethod string
	RedirectURI         string
	State               string
	Scope               string
	UserID              string
	AuthorizationCode   string
	Status              Status
	ExpiresAt           time.Time
	CreatedAt           time.Time
}

// Expired reports whether the row should be invisible to lookups.
func (r *Request) Expired(now time.Time) bool {
	return !r.ExpiresAt.After(now)
}

// Repo is the single-row conditional access the flow needs. No method spans
// more than one row and no multi-row transaction is assumed; expired rows
// must never be returned by the lookup methods.
type Repo interface {
	// Upsert inserts a new row for the client or overwrites its live one in
	// place, challenge included. Last write wins. Returns the stored row.
	Upsert(ctx context.Context, req *Request) (*Request, error)

	// GetByChallenge returns the live row for (clientID, codeChallenge),
	// or ErrNotFound.
	GetByChallenge(ctx context.Context, clientID, codeChallenge string) (*Request, error)

	// Promote marks the row authorized, binding the user and issued code.
	Promote(ctx context.Context, id, userID, authorizationCode string) error

	// GetByCode returns the live row carrying the given authorization code,
	// or ErrNotFound.
	GetByCode(ctx context.Context, authorizationCode string) (*Request, error)

	// Delete removes the row. Deleting a missing row is not an error.
	Delete(ctx context.Context, id string) error

	// DeleteExpired reaps rows whose deadline has passed, returning the
	// number removed.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}
