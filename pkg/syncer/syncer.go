package syncer

import (
	"context"
	"time"

	"github.com/fightinglucida/FastMP/pkg/config"
	"github.com/fightinglucida/FastMP/pkg/credentials"
	errs "github.com/fightinglucida/FastMP/pkg/errors"
	"github.com/fightinglucida/FastMP/pkg/logger"
	"github.com/fightinglucida/FastMP/pkg/retry"
	"github.com/fightinglucida/FastMP/pkg/store"
	"github.com/fightinglucida/FastMP/pkg/wechat"
)

// Provider is the slice of the listing API one sync run needs.
// *wechat.Client satisfies it; tests substitute a scripted fake.
type Provider interface {
	SearchAccount(ctx context.Context, token, query string) (*wechat.AccountEntry, error)
	FetchPublishPage(ctx context.Context, token, fakeID string, begin, count int) (*wechat.PublishPage, error)
	RegenerateFingerprint() string
}

// UsageRecorder reports consumed provider requests back to the credential
// pool. The scheduler implements it.
type UsageRecorder interface {
	RecordUsage(ctx context.Context, token string, n int) (*credentials.Credential, error)
}

// Syncer mirrors an official account's published articles into the
// content store, emitting an ordered event sequence per run. Runs for
// different accounts are independent and may execute concurrently.
type Syncer struct {
	content   *store.ContentStore
	usage     UsageRecorder
	newClient func(cred credentials.View) Provider
	pageSize  int
	delay     time.Duration
	retries   int
	backoff   retry.BackoffStrategy
	logger    logger.Logger
}

// New wires a syncer against the content store and usage recorder.
func New(content *store.ContentStore, usage UsageRecorder, cfg *config.Config, log logger.Logger) *Syncer {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Syncer{
		content: content,
		usage:   usage,
		newClient: func(cred credentials.View) Provider {
			client := wechat.NewClientFromCookies(
				cfg.Provider.BaseURL, cred.CookieMaterial, cfg.Provider.RequestTimeout, log)
			if cfg.Provider.UserAgent != "" {
				client.SetHeader("User-Agent", cfg.Provider.UserAgent)
			}
			if cred.Fingerprint != "" {
				client.SetFingerprint(cred.Fingerprint)
			}
			return client
		},
		pageSize: cfg.Sync.PageSize,
		delay:    cfg.Sync.InterRequestDelay,
		retries:  cfg.Sync.MaxRetries,
		backoff:  &retry.ConstantBackoff{Delay: cfg.Sync.RetryDelay},
		logger:   log,
	}
}

// Sync resolves accountName, then mirrors its articles: a full backfill
// for accounts whose backfill never completed, an incremental pass
// bounded by the first already-known URL otherwise. Events arrive on the
// returned channel as each page completes; the channel closes after the
// terminal Done or Error event. Cancelling ctx stops further page
// fetches without rolling back items already stored.
func (s *Syncer) Sync(ctx context.Context, cred credentials.View, accountName string, maxItems int) <-chan Event {
	events := make(chan Event)
	go func() {
		defer close(events)
		s.run(ctx, cred, accountName, maxItems, events)
	}()
	return events
}

// emit delivers one event unless the consumer is gone.
func (s *Syncer) emit(ctx context.Context, events chan<- Event, ev Event) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *Syncer) run(ctx context.Context, cred credentials.View, accountName string, maxItems int, events chan<- Event) {
	client := s.newClient(cred)

	entry, err := s.searchAccount(ctx, client, cred.Token, accountName)
	if err != nil {
		s.emit(ctx, events, errorEvent(err.Error()))
		return
	}

	canonicalName := entry.Nickname
	if canonicalName == "" {
		canonicalName = accountName
	}

	account := &store.Account{
		CanonicalName: canonicalName,
		ExternalID:    entry.FakeID,
		AvatarURL:     entry.RoundHeadImg,
		Signature:     entry.Signature,
	}
	existedBefore, err := s.content.UpsertAccount(ctx, account)
	if err != nil {
		s.emit(ctx, events, errorEvent("failed to upsert account: "+err.Error()))
		return
	}

	if !s.emit(ctx, events, accountEvent(account)) {
		return
	}

	// A fresh account, or one whose backfill was interrupted, gets the
	// full walk; only a completed backfill makes boundary detection sound.
	fullBackfill := !existedBefore || !account.BackfillDone

	s.logger.InfoWithFields("sync started", map[string]interface{}{
		"account":       canonicalName,
		"external_id":   entry.FakeID,
		"full_backfill": fullBackfill,
	})

	totalStored, completed, err := s.pageLoop(ctx, client, cred.Token, account, fullBackfill, maxItems, events)
	if err != nil {
		s.emit(ctx, events, errorEvent(err.Error()))
		return
	}
	if !completed {
		return
	}

	if fullBackfill {
		if err := s.content.SetBackfillDone(ctx, canonicalName, true); err != nil {
			s.emit(ctx, events, errorEvent("failed to mark backfill done: "+err.Error()))
			return
		}
	}

	snapshot, err := s.content.TopByAccount(ctx, canonicalName, maxItems)
	if err != nil {
		s.emit(ctx, events, errorEvent("failed to read snapshot: "+err.Error()))
		return
	}

	s.logger.InfoWithFields("sync finished", map[string]interface{}{
		"account":      canonicalName,
		"total_stored": totalStored,
	})
	s.emit(ctx, events, doneEvent(DoneStats{TotalStored: totalStored, Snapshot: snapshot}))
}

// pageLoop walks listing pages in increasing offset order. It reports the
// final stored count and whether the walk ran to its natural end (false
// means the consumer cancelled).
func (s *Syncer) pageLoop(ctx context.Context, client Provider, token string, account *store.Account, fullBackfill bool, maxItems int, events chan<- Event) (totalStored int, completed bool, err error) {
	begin := 0
	pageNumber := 1

	for {
		if ctx.Err() != nil {
			return totalStored, false, nil
		}

		page, err := s.fetchPage(ctx, client, token, account.ExternalID, begin)
		if err != nil {
			return totalStored, false, err
		}

		articles, err := page.Articles()
		if err != nil {
			return totalStored, false, errs.New(errs.ErrorTypeParsing, 0, "%v", err)
		}

		newlyAdded, boundaryFound, err := s.ingestPage(ctx, account.CanonicalName, articles, fullBackfill)
		if err != nil {
			return totalStored, false, err
		}

		totalStored, err = s.content.RefreshArticleCount(ctx, account.CanonicalName)
		if err != nil {
			return totalStored, false, err
		}

		snapshot, err := s.content.TopByAccount(ctx, account.CanonicalName, maxItems)
		if err != nil {
			return totalStored, false, err
		}

		hasMore := s.morePages(begin, page.TotalCount, len(articles))
		if boundaryFound {
			hasMore = false
		}

		if !s.emit(ctx, events, pageEvent(PageStats{
			PageNumber:  pageNumber,
			NewlyAdded:  newlyAdded,
			TotalStored: totalStored,
			HasMore:     hasMore,
			Snapshot:    snapshot,
		})) {
			return totalStored, false, nil
		}

		if !hasMore {
			return totalStored, true, nil
		}

		begin += s.pageSize
		pageNumber++

		if err := retry.Wait(ctx, s.delay); err != nil {
			return totalStored, false, nil
		}
	}
}

// ingestPage stores a page's articles. In incremental mode the first
// already-known URL is the boundary: everything before it is new, the
// boundary and everything after it is discarded and paging stops.
func (s *Syncer) ingestPage(ctx context.Context, accountName string, articles []wechat.ArticleMeta, fullBackfill bool) (newlyAdded int, boundaryFound bool, err error) {
	for _, meta := range articles {
		canonicalURL := wechat.CanonicalArticleURL(meta.Link)

		if !fullBackfill {
			exists, err := s.content.ExistsByURL(ctx, canonicalURL)
			if err != nil {
				return newlyAdded, false, err
			}
			if exists {
				return newlyAdded, true, nil
			}
		}

		article := &store.Article{
			AccountName:  accountName,
			CanonicalURL: canonicalURL,
			Title:        meta.Title,
			CoverURL:     meta.Cover,
			ItemKind:     meta.ItemShowType,
		}
		if meta.UpdateTime > 0 {
			publishedAt := time.Unix(meta.UpdateTime, 0).UTC()
			article.PublishedAt = &publishedAt
		}

		added, err := s.content.InsertArticle(ctx, article)
		if err != nil {
			return newlyAdded, false, err
		}
		if added {
			newlyAdded++
		}
	}
	return newlyAdded, false, nil
}

// morePages decides whether another page follows the current window. A
// provider that omits the total is walked until a page comes back empty.
func (s *Syncer) morePages(begin, totalCount, pageLen int) bool {
	if totalCount > 0 {
		return wechat.HasMore(begin, s.pageSize, totalCount)
	}
	return pageLen > 0
}

// searchAccount resolves the account with bounded retries. Every attempt
// consumes provider quota; a fingerprint rejection mints a fresh token
// before the next attempt.
func (s *Syncer) searchAccount(ctx context.Context, client Provider, token, query string) (*wechat.AccountEntry, error) {
	return retry.DoWithResult(func() (*wechat.AccountEntry, error) {
		s.recordUsage(ctx, token)
		return client.SearchAccount(ctx, token, query)
	}, s.retryConfig(ctx, client))
}

// fetchPage retrieves one listing page with the same retry discipline.
func (s *Syncer) fetchPage(ctx context.Context, client Provider, token, fakeID string, begin int) (*wechat.PublishPage, error) {
	return retry.DoWithResult(func() (*wechat.PublishPage, error) {
		s.recordUsage(ctx, token)
		return client.FetchPublishPage(ctx, token, fakeID, begin, s.pageSize)
	}, s.retryConfig(ctx, client))
}

func (s *Syncer) retryConfig(ctx context.Context, client Provider) *retry.Config {
	return &retry.Config{
		MaxAttempts: s.retries,
		Backoff:     s.backoff,
		Context:     ctx,
		Logger:      s.logger,
		RetryIf:     errs.IsTransient,
		OnRetry: func(attempt int, err error, delay time.Duration) {
			if errs.TypeOf(err) == errs.ErrorTypeFingerprint {
				client.RegenerateFingerprint()
			}
		},
	}
}

// recordUsage reports one consumed request. Bookkeeping failures are
// logged, not fatal: losing a count is better than losing the page.
func (s *Syncer) recordUsage(ctx context.Context, token string) {
	if s.usage == nil {
		return
	}
	if _, err := s.usage.RecordUsage(ctx, token, 1); err != nil {
		s.logger.WarnWithFields("failed to record credential usage", map[string]interface{}{
			"token": token,
			"error": err.Error(),
		})
	}
}
