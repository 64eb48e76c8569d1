package pending

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ErrNotFound is returned when no live row matches a lookup.
var ErrNotFound = errors.New("pending request not found")

// InMemoryRepo is a thread-safe in-memory implementation of Repo. It backs
// tests and single-instance deployments; production uses repopg.
type InMemoryRepo struct {
	mu       sync.RWMutex
	requests map[string]*Request // id -> row
	nowTime  func() time.Time
}

// InMemoryRepoOption configures an InMemoryRepo.
type InMemoryRepoOption func(*InMemoryRepo)

// WithNowTime sets the now time function (primarily for testing).
func WithNowTime(nowFunc func() time.Time) InMemoryRepoOption {
	return func(r *InMemoryRepo) {
		r.nowTime = nowFunc
	}
}

// NewInMemoryRepo creates a new in-memory pending request repository.
func NewInMemoryRepo(options ...InMemoryRepoOption) *InMemoryRepo {
	repo := &InMemoryRepo{
		requests: make(map[string]*Request),
		nowTime:  time.Now,
	}
	for _, opt := range options {
		opt(repo)
	}
	return repo
}

// Upsert inserts or overwrites the live row for the client. A client has
// at most one live row; a new challenge replaces the old one, so only the
// most recent authorize attempt is ever promotable.
func (r *InMemoryRepo) Upsert(_ context.Context, req *Request) (*Request, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}
	if req.ClientID == "" || req.CodeChallenge == "" {
		return nil, errors.New("client ID and code challenge are required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.nowTime()
	existing := r.liveByClientLocked(req.ClientID, now)

	stored := copyRequest(req)
	if existing != nil {
		// Update in place: keep identity and creation time, refresh the rest.
		stored.ID = existing.ID
		stored.CreatedAt = existing.CreatedAt
	} else {
		stored.ID = uuid.New().String()
		stored.CreatedAt = now
	}
	if stored.Status == "" {
		stored.Status = StatusPending
	}
	if stored.ExpiresAt.IsZero() {
		stored.ExpiresAt = now.Add(Lifetime)
	}

	r.requests[stored.ID] = stored
	return copyRequest(stored), nil
}

// GetByChallenge returns the live row for (clientID, codeChallenge).
func (r *InMemoryRepo) GetByChallenge(_ context.Context, clientID, codeChallenge string) (*Request, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	row := r.liveByChallengeLocked(clientID, codeChallenge, r.nowTime())
	if row == nil {
		return nil, ErrNotFound
	}
	return copyRequest(row), nil
}

// Promote binds the authenticated user and issued code to the row.
func (r *InMemoryRepo) Promote(_ context.Context, id, userID, authorizationCode string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	row, ok := r.requests[id]
	if !ok || row.Expired(r.nowTime()) {
		return ErrNotFound
	}
	row.UserID = userID
	row.AuthorizationCode = authorizationCode
	row.Status = StatusAuthorized
	return nil
}

// GetByCode returns the live row carrying the given authorization code.
func (r *InMemoryRepo) GetByCode(_ context.Context, authorizationCode string) (*Request, error) {
	if authorizationCode == "" {
		return nil, ErrNotFound
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	now := r.nowTime()
	for _, row := range r.requests {
		if row.AuthorizationCode == authorizationCode && !row.Expired(now) {
			return copyRequest(row), nil
		}
	}
	return nil, ErrNotFound
}

// Delete removes a row. Missing rows are not an error.
func (r *InMemoryRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.requests, id)
	return nil
}

// DeleteExpired reaps rows whose deadline has passed.
func (r *InMemoryRepo) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, row := range r.requests {
		if row.Expired(now) {
			delete(r.requests, id)
			removed++
		}
	}
	return removed, nil
}

func (r *InMemoryRepo) liveByClientLocked(clientID string, now time.Time) *Request {
	for _, row := range r.requests {
		if row.ClientID == clientID && !row.Expired(now) {
			return row
		}
	}
	return nil
}

func (r *InMemoryRepo) liveByChallengeLocked(clientID, codeChallenge string, now time.Time) *Request {
	row := r.liveByClientLocked(clientID, now)
	if row == nil || row.CodeChallenge != codeChallenge {
		return nil
	}
	return row
}

// copyRequest prevents external mutation of stored rows.
func copyRequest(req *Request) *Request {
	clone := *req
	return &clone
}

var _ Repo = (*InMemoryRepo)(nil)
