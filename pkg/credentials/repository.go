package credentials

import (
	"context"
	"database/sql"
	stderrors "errors"
	"time"

	"github.com/jmoiron/sqlx"

	errs "github.com/fightinglucida/FastMP/pkg/errors"
)

// ErrNotFound is returned when no record matches the given token.
var ErrNotFound = stderrors.New("credential not found")

const schema = `
CREATE TABLE IF NOT EXISTS credentials (
	token           TEXT PRIMARY KEY,
	fingerprint     TEXT NOT NULL,
	account_name    TEXT NOT NULL DEFAULT '',
	owner           TEXT NOT NULL DEFAULT '',
	is_current      INTEGER NOT NULL DEFAULT 0,
	request_count   INTEGER NOT NULL DEFAULT 0,
	window_reset_at TIMESTAMP NOT NULL,
	created_at      TIMESTAMP NOT NULL,
	expires_at      TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_credentials_owner ON credentials(owner);
CREATE INDEX IF NOT EXISTS idx_credentials_expires_at ON credentials(expires_at);
`

// Repository is the durable store for credential records. One row per
// token; cookie material lives in the secret store, not here.
type Repository struct {
	db *sqlx.DB
}

// NewRepository creates the repository and ensures its schema exists.
func NewRepository(db *sqlx.DB) (*Repository, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, err
	}
	return &Repository{db: db}, nil
}

// Save inserts or replaces the record for cred.Token.
func (r *Repository) Save(ctx context.Context, cred *Credential) error {
	query := `
		INSERT INTO credentials (
			token, fingerprint, account_name, owner, is_current,
			request_count, window_reset_at, created_at, expires_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (token) DO UPDATE SET
			fingerprint     = excluded.fingerprint,
			account_name    = excluded.account_name,
			owner           = excluded.owner,
			is_current      = excluded.is_current,
			request_count   = excluded.request_count,
			window_reset_at = excluded.window_reset_at,
			expires_at      = excluded.expires_at`

	_, err := r.db.ExecContext(ctx, query,
		cred.Token,
		cred.Fingerprint,
		cred.AccountName,
		cred.Owner,
		cred.Current,
		cred.RequestCount,
		cred.WindowResetAt,
		cred.CreatedAt,
		cred.ExpiresAt,
	)
	return err
}

// Get returns the record for the given token.
func (r *Repository) Get(ctx context.Context, token string) (*Credential, error) {
	var cred Credential
	err := r.db.GetContext(ctx, &cred, `SELECT * FROM credentials WHERE token = ?`, token)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &cred, nil
}

// List returns records for one owner, or every record when owner is empty,
// newest first.
func (r *Repository) List(ctx context.Context, owner string) ([]Credential, error) {
	var creds []Credential
	var err error
	if owner == "" {
		err = r.db.SelectContext(ctx, &creds,
			`SELECT * FROM credentials ORDER BY created_at DESC`)
	} else {
		err = r.db.SelectContext(ctx, &creds,
			`SELECT * FROM credentials WHERE owner = ? ORDER BY created_at DESC`, owner)
	}
	return creds, err
}

// Current returns the owner's current record, if any.
func (r *Repository) Current(ctx context.Context, owner string) (*Credential, error) {
	var cred Credential
	err := r.db.GetContext(ctx, &cred,
		`SELECT * FROM credentials WHERE owner = ? AND is_current = 1`, owner)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &cred, nil
}

// SetCurrent marks one token current for its owner and unsets every other
// record of that owner in the same transaction, so at most one current
// record per owner is ever observable.
func (r *Repository) SetCurrent(ctx context.Context, owner, token string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE credentials SET is_current = 0 WHERE owner = ? AND token != ?`,
		owner, token); err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE credentials SET is_current = 1 WHERE token = ? AND owner = ?`,
		token, owner)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}

	return tx.Commit()
}

// Delete removes the record for the given token.
func (r *Repository) Delete(ctx context.Context, token string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM credentials WHERE token = ?`, token)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateUsage adds n requests to the token's current window. A lapsed
// window is reset before counting, so the triggering request is never
// lost: reset to zero, advance the window, then add n.
func (r *Repository) UpdateUsage(ctx context.Context, token string, n int, now time.Time) (*Credential, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var cred Credential
	if err := tx.GetContext(ctx, &cred,
		`SELECT * FROM credentials WHERE token = ?`, token); err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if !now.Before(cred.WindowResetAt) {
		cred.RequestCount = 0
		cred.WindowResetAt = now.Add(time.Hour)
	}
	cred.RequestCount += n

	if _, err := tx.ExecContext(ctx,
		`UPDATE credentials SET request_count = ?, window_reset_at = ? WHERE token = ?`,
		cred.RequestCount, cred.WindowResetAt, cred.Token); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &cred, nil
}

// SweepExpired deletes every record past its validity.
func (r *Repository) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM credentials WHERE expires_at <= ?`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CheckCurrentInvariant verifies that no owner holds more than one current
// record. A violation is a programming error surfaced as an integrity error.
func (r *Repository) CheckCurrentInvariant(ctx context.Context) error {
	var owners []string
	err := r.db.SelectContext(ctx, &owners, `
		SELECT owner FROM credentials
		WHERE is_current = 1
		GROUP BY owner HAVING COUNT(*) > 1`)
	if err != nil {
		return err
	}
	if len(owners) > 0 {
		return errs.New(errs.ErrorTypeIntegrity, 0,
			"multiple current credentials for owner %q", owners[0])
	}
	return nil
}
