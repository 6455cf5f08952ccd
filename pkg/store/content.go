package store

import (
	"context"
	"database/sql"
	stderrors "errors"
	"time"

	"github.com/jmoiron/sqlx"
)

// ErrAccountNotFound is returned when no account matches the given name.
var ErrAccountNotFound = stderrors.New("account not found")

// Account is one mirrored official account. BackfillDone records whether
// the initial full backfill has completed; incremental syncs only make
// sense after it has.
type Account struct {
	CanonicalName string    `db:"canonical_name" json:"canonical_name"`
	ExternalID    string    `db:"external_id" json:"external_id"`
	Owner         string    `db:"owner" json:"owner,omitempty"`
	AvatarURL     string    `db:"avatar_url" json:"avatar_url,omitempty"`
	Signature     string    `db:"signature" json:"signature,omitempty"`
	ArticleCount  int       `db:"article_count" json:"article_count"`
	BackfillDone  bool      `db:"backfill_done" json:"backfill_done"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// Article is one mirrored content item. ItemKind is a pointer because the
// provider's zero classification is meaningful and must stay distinct
// from an absent field.
type Article struct {
	ID           int64      `db:"id" json:"id"`
	AccountName  string     `db:"account_name" json:"account_name"`
	CanonicalURL string     `db:"canonical_url" json:"canonical_url"`
	Title        string     `db:"title" json:"title"`
	CoverURL     string     `db:"cover_url" json:"cover_url,omitempty"`
	PublishedAt  *time.Time `db:"published_at" json:"published_at,omitempty"`
	ItemKind     *int       `db:"item_kind" json:"item_kind,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
}

const contentSchema = `
CREATE TABLE IF NOT EXISTS mp_accounts (
	canonical_name TEXT PRIMARY KEY,
	external_id    TEXT NOT NULL,
	owner          TEXT NOT NULL DEFAULT '',
	avatar_url     TEXT NOT NULL DEFAULT '',
	signature      TEXT NOT NULL DEFAULT '',
	article_count  INTEGER NOT NULL DEFAULT 0,
	backfill_done  INTEGER NOT NULL DEFAULT 0,
	created_at     TIMESTAMP NOT NULL,
	updated_at     TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS mp_articles (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	account_name   TEXT NOT NULL REFERENCES mp_accounts(canonical_name),
	canonical_url  TEXT NOT NULL UNIQUE,
	title          TEXT NOT NULL,
	cover_url      TEXT NOT NULL DEFAULT '',
	published_at   TIMESTAMP,
	item_kind      INTEGER,
	created_at     TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_mp_articles_account
	ON mp_articles(account_name, published_at DESC);
`

// ContentStore is the durable store for mirrored accounts and articles.
type ContentStore struct {
	db *sqlx.DB
}

// NewContentStore creates the store and ensures its schema exists.
func NewContentStore(db *sqlx.DB) (*ContentStore, error) {
	if _, err := db.Exec(contentSchema); err != nil {
		return nil, err
	}
	return &ContentStore{db: db}, nil
}

// UpsertAccount creates the account or refreshes its provider-confirmed
// metadata. Reports whether a record existed before this call, which
// decides full-backfill versus incremental mode.
func (s *ContentStore) UpsertAccount(ctx context.Context, acc *Account) (existedBefore bool, err error) {
	existing, err := s.GetAccount(ctx, acc.CanonicalName)
	if err != nil && !stderrors.Is(err, ErrAccountNotFound) {
		return false, err
	}

	now := time.Now().UTC()
	if existing == nil {
		acc.CreatedAt = now
		acc.UpdatedAt = now
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO mp_accounts (
				canonical_name, external_id, owner, avatar_url, signature,
				article_count, backfill_done, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, 0, 0, ?, ?)`,
			acc.CanonicalName, acc.ExternalID, acc.Owner,
			acc.AvatarURL, acc.Signature, acc.CreatedAt, acc.UpdatedAt)
		return false, err
	}

	// Re-confirmed search: refresh the provider metadata only.
	_, err = s.db.ExecContext(ctx, `
		UPDATE mp_accounts
		SET external_id = ?, avatar_url = ?, signature = ?, updated_at = ?
		WHERE canonical_name = ?`,
		acc.ExternalID, acc.AvatarURL, acc.Signature, now, acc.CanonicalName)
	if err != nil {
		return true, err
	}

	acc.ArticleCount = existing.ArticleCount
	acc.BackfillDone = existing.BackfillDone
	acc.CreatedAt = existing.CreatedAt
	acc.UpdatedAt = now
	return true, nil
}

// GetAccount returns one account by canonical name.
func (s *ContentStore) GetAccount(ctx context.Context, name string) (*Account, error) {
	var acc Account
	err := s.db.GetContext(ctx, &acc,
		`SELECT * FROM mp_accounts WHERE canonical_name = ?`, name)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &acc, nil
}

// ListAccounts returns every mirrored account, most recently synced first.
func (s *ContentStore) ListAccounts(ctx context.Context) ([]Account, error) {
	var accounts []Account
	err := s.db.SelectContext(ctx, &accounts,
		`SELECT * FROM mp_accounts ORDER BY updated_at DESC`)
	return accounts, err
}

// SetBackfillDone flips the account's backfill flag.
func (s *ContentStore) SetBackfillDone(ctx context.Context, name string, done bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE mp_accounts SET backfill_done = ? WHERE canonical_name = ?`, done, name)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// InsertArticle stores one article unless its canonical URL is already
// present. Reports whether the row was genuinely added.
func (s *ContentStore) InsertArticle(ctx context.Context, article *Article) (added bool, err error) {
	if article.CreatedAt.IsZero() {
		article.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO mp_articles (
			account_name, canonical_url, title, cover_url,
			published_at, item_kind, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (canonical_url) DO NOTHING`,
		article.AccountName, article.CanonicalURL, article.Title,
		article.CoverURL, article.PublishedAt, article.ItemKind, article.CreatedAt)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// ExistsByURL reports whether an article with this canonical URL is stored.
func (s *ContentStore) ExistsByURL(ctx context.Context, canonicalURL string) (bool, error) {
	var one int
	err := s.db.GetContext(ctx, &one,
		`SELECT 1 FROM mp_articles WHERE canonical_url = ?`, canonicalURL)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// CountByAccount returns how many articles the account has stored.
func (s *ContentStore) CountByAccount(ctx context.Context, name string) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM mp_articles WHERE account_name = ?`, name)
	return count, err
}

// RefreshArticleCount recomputes and persists the account's cached count.
func (s *ContentStore) RefreshArticleCount(ctx context.Context, name string) (int, error) {
	count, err := s.CountByAccount(ctx, name)
	if err != nil {
		return 0, err
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE mp_accounts SET article_count = ?, updated_at = ? WHERE canonical_name = ?`,
		count, time.Now().UTC(), name)
	return count, err
}

// TopByAccount returns the account's newest articles, publish time
// descending then insertion order descending. limit <= 0 returns all.
func (s *ContentStore) TopByAccount(ctx context.Context, name string, limit int) ([]Article, error) {
	query := `
		SELECT * FROM mp_articles
		WHERE account_name = ?
		ORDER BY published_at DESC NULLS LAST, created_at DESC, id DESC`
	var articles []Article
	var err error
	if limit > 0 {
		err = s.db.SelectContext(ctx, &articles, query+` LIMIT ?`, name, limit)
	} else {
		err = s.db.SelectContext(ctx, &articles, query, name)
	}
	return articles, err
}

// ListArticles pages through the account's articles for the read API.
func (s *ContentStore) ListArticles(ctx context.Context, name string, offset, limit int) ([]Article, error) {
	if limit <= 0 {
		limit = 50
	}
	var articles []Article
	err := s.db.SelectContext(ctx, &articles, `
		SELECT * FROM mp_articles
		WHERE account_name = ?
		ORDER BY published_at DESC NULLS LAST, created_at DESC, id DESC
		LIMIT ? OFFSET ?`, name, limit, offset)
	return articles, err
}

// DeleteArticle removes one article by canonical URL. Administrative only;
// the synchronizer never deletes.
func (s *ContentStore) DeleteArticle(ctx context.Context, canonicalURL string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM mp_articles WHERE canonical_url = ?`, canonicalURL)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteAccount removes an account and its articles. Administrative only.
func (s *ContentStore) DeleteAccount(ctx context.Context, name string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM mp_articles WHERE account_name = ?`, name); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx,
		`DELETE FROM mp_accounts WHERE canonical_name = ?`, name)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrAccountNotFound
	}
	return tx.Commit()
}
