// Package repopg is the Postgres-backed implementation of pending.Repo.
// Every method is a single-row statement; the live-row filter
// (expires_at > now) is applied in SQL so expired rows never satisfy a
// lookup regardless of the sweep cadence.
package repopg

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/sprintdeck/sprintdeck-auth/pending"
)

// Schema for the single record type this repo manages.
const Schema = `
CREATE TABLE IF NOT EXISTS pending_authorization_requests (
	id                    UUID PRIMARY KEY,
	client_id             TEXT NOT NULL,
	code_challenge        TEXT NOT NULL,
	code_challenge_method TEXT NOT NULL DEFAULT 'S256',
	redirect_uri          TEXT NOT NULL,
	state                 TEXT,
	scope                 TEXT,
	user_id               TEXT,
	authorization_code    TEXT,
	status                TEXT NOT NULL DEFAULT 'pending',
	expires_at            TIMESTAMPTZ NOT NULL,
	created_at            TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_pending_auth_client
	ON pending_authorization_requests (client_id);
CREATE INDEX IF NOT EXISTS idx_pending_auth_code
	ON pending_authorization_requests (authorization_code);
`

const columns = `id, client_id, code_challenge, code_challenge_method, redirect_uri,
	state, scope, user_id, authorization_code, status, expires_at, created_at`

// Repo implements pending.Repo against a pgx connection pool.
type Repo struct {
	pool    *pgxpool.Pool
	nowTime func() time.Time
}

// RepoOption configures a Repo.
type RepoOption func(*Repo)

// WithNowTime sets the now time function (primarily for testing).
func WithNowTime(nowFunc func() time.Time) RepoOption {
	return func(r *Repo) {
		r.nowTime = nowFunc
	}
}

// New creates a Postgres pending request repository.
func New(pool *pgxpool.Pool, options ...RepoOption) *Repo {
	repo := &Repo{pool: pool, nowTime: time.Now}
	for _, opt := range options {
		opt(repo)
	}
	return repo
}

// Migrate creates the backing table if it does not exist.
func (r *Repo) Migrate(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, Schema); err != nil {
		return errors.Wrap(err, "[repopg.Migrate] exec schema")
	}
	return nil
}

// Ping reports whether the store is reachable.
func (r *Repo) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Upsert updates the client's live row in place, or inserts a new one. A
// fresh code_challenge overwrites the old one, so only the most recent
// authorize attempt stays promotable. The update and insert are separate
// statements on purpose: the store's single-row atomicity is the only
// serialization the flow relies on, and a lost race here is
// last-write-wins.
func (r *Repo) Upsert(ctx context.Context, req *pending.Request) (*pending.Request, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}
	if req.ClientID == "" || req.CodeChallenge == "" {
		return nil, errors.New("client ID and code challenge are required")
	}

	now := r.nowTime()
	expiresAt := req.ExpiresAt
	if expiresAt.IsZero() {
		expiresAt = now.Add(pending.Lifetime)
	}
	status := req.Status
	if status == "" {
		status = pending.StatusPending
	}

	row := r.pool.QueryRow(ctx, `
		UPDATE pending_authorization_requests
		SET code_challenge = $2, code_challenge_method = $3, redirect_uri = $4,
			state = $5, scope = $6, status = $7, expires_at = $8,
			user_id = NULL, authorization_code = NULL
		WHERE client_id = $1 AND expires_at > $9
		RETURNING `+columns,
		req.ClientID, req.CodeChallenge, req.CodeChallengeMethod, req.RedirectURI,
		nullable(req.State), nullable(req.Scope), status, expiresAt, now)

	stored, err := scanRequest(row)
	if err == nil {
		return stored, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Wrap(err, "[repopg.Upsert] update")
	}

	row = r.pool.QueryRow(ctx, `
		INSERT INTO pending_authorization_requests
			(id, client_id, code_challenge, code_challenge_method, redirect_uri,
			 state, scope, status, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING `+columns,
		uuid.New().String(), req.ClientID, req.CodeChallenge, req.CodeChallengeMethod,
		req.RedirectURI, nullable(req.State), nullable(req.Scope), status, expiresAt, now)

	stored, err = scanRequest(row)
	if err != nil {
		return nil, errors.Wrap(err, "[repopg.Upsert] insert")
	}
	return stored, nil
}

// GetByChallenge returns the live row for (clientID, codeChallenge).
func (r *Repo) GetByChallenge(ctx context.Context, clientID, codeChallenge string) (*pending.Request, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+columns+`
		FROM pending_authorization_requests
		WHERE client_id = $1 AND code_challenge = $2 AND expires_at > $3`,
		clientID, codeChallenge, r.nowTime())

	stored, err := scanRequest(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, pending.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "[repopg.GetByChallenge] query")
	}
	return stored, nil
}

// Promote binds the authenticated user and issued code to the row.
func (r *Repo) Promote(ctx context.Context, id, userID, authorizationCode string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE pending_authorization_requests
		SET user_id = $2, authorization_code = $3, status = $4
		WHERE id = $1 AND expires_at > $5`,
		id, userID, authorizationCode, pending.StatusAuthorized, r.nowTime())
	if err != nil {
		return errors.Wrap(err, "[repopg.Promote] exec")
	}
	if tag.RowsAffected() == 0 {
		return pending.ErrNotFound
	}
	return nil
}

// GetByCode returns the live row carrying the given authorization code.
func (r *Repo) GetByCode(ctx context.Context, authorizationCode string) (*pending.Request, error) {
	if authorizationCode == "" {
		return nil, pending.ErrNotFound
	}

	row := r.pool.QueryRow(ctx, `
		SELECT `+columns+`
		FROM pending_authorization_requests
		WHERE authorization_code = $1 AND expires_at > $2`,
		authorizationCode, r.nowTime())

	stored, err := scanRequest(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, pending.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "[repopg.GetByCode] query")
	}
	return stored, nil
}

// Delete removes a row. Missing rows are not an error.
func (r *Repo) Delete(ctx context.Context, id string) error {
	if _, err := r.pool.Exec(ctx,
		`DELETE FROM pending_authorization_requests WHERE id = $1`, id); err != nil {
		return errors.Wrap(err, "[repopg.Delete] exec")
	}
	return nil
}

// DeleteExpired reaps rows whose deadline has passed.
func (r *Repo) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM pending_authorization_requests WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, errors.Wrap(err, "[repopg.DeleteExpired] exec")
	}
	return int(tag.RowsAffected()), nil
}

func scanRequest(row pgx.Row) (*pending.Request, error) {
	var (
		req          pending.Request
		state, scope *string
		user, code   *string
	)
	err := row.Scan(&req.ID, &req.ClientID, &req.CodeChallenge, &req.CodeChallengeMethod,
		&req.RedirectURI, &state, &scope, &user, &code, &req.Status,
		&req.ExpiresAt, &req.CreatedAt)
	if err != nil {
		return nil, err
	}
	req.State = deref(state)
	req.Scope = deref(scope)
	req.UserID = deref(user)
	req.AuthorizationCode = deref(code)
	return &req, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

var _ pending.Repo = (*Repo)(nil)
