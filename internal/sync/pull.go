// Package sync implements the cursor-paged pull engine (C7) and the
// long-lived Jetstream push engine (C8) that feed normalized bsky.Post
// values into the event store.
package sync

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"skygent.dev/skygent/internal/bsky"
	"skygent.dev/skygent/internal/errs"
	"skygent.dev/skygent/internal/ratelimit"
	"skygent.dev/skygent/internal/store"
)

// SourceKind, Page, and PullSource are defined in package bsky: the
// protocol layer owns what a "pull source" looks like, and this engine
// only drives it.
type SourceKind = bsky.SourceKind
type Page = bsky.Page
type PullSource = bsky.PullSource

const (
	SourceTimeline      = bsky.SourceTimeline
	SourceFeed          = bsky.SourceFeed
	SourceList          = bsky.SourceList
	SourceAuthor        = bsky.SourceAuthor
	SourceThread        = bsky.SourceThread
	SourceNotifications = bsky.SourceNotifications
)

// Progress reports pull-sync progress after each page.
type Progress struct {
	Source      SourceKind
	PagesPulled int
	PostsPulled int
	Cursor      string
}

// ProgressFunc receives a Progress update after each fetched page.
type ProgressFunc func(Progress)

// PullEngine drives repeated paged fetches against a PullSource, persisting
// each page to the event store and checkpointing the cursor so a later run
// resumes where this one left off.
type PullEngine struct {
	source  PullSource
	store   *store.Store
	limiter *ratelimit.Limiter
	log     *logrus.Logger
}

// NewPullEngine builds a PullEngine.
func NewPullEngine(source PullSource, st *store.Store, limiter *ratelimit.Limiter, log *logrus.Logger) *PullEngine {
	return &PullEngine{source: source, store: st, limiter: limiter, log: log}
}

// checkpointKey namespaces a sync_checkpoint row by source kind and param,
// so e.g. pulling two different lists doesn't share one cursor.
func checkpointKey(kind SourceKind, param string) string {
	if param == "" {
		return string(kind)
	}
	return string(kind) + ":" + param
}

// Run pulls pages from cursor (or the stored checkpoint, if cursor is
// empty) until the source reports no further pages, or maxPages is reached
// (0 means unbounded). dryRun fetches and reports progress without writing
// to the store or advancing the checkpoint.
func (e *PullEngine) Run(ctx context.Context, kind SourceKind, param string, limit, maxPages int, dryRun bool, onProgress ProgressFunc) error {
	key := checkpointKey(kind, param)

	cursor, err := e.store.GetSyncCheckpoint(ctx, key)
	if err != nil {
		return errs.NewSyncError(errs.StageSource, err)
	}

	pages := 0
	totalPosts := 0
	for {
		if maxPages > 0 && pages >= maxPages {
			return nil
		}

		var page Page
		fetchErr := e.limiter.Do(ctx, func(ctx context.Context) error {
			var err error
			page, err = e.source.Fetch(ctx, kind, param, cursor, limit)
			return err
		})
		if fetchErr != nil {
			return errs.NewSyncError(errs.StageSource, fetchErr)
		}

		if !dryRun {
			for _, post := range page.Posts {
				if err := e.persist(ctx, post); err != nil {
					return err
				}
			}
			if err := e.store.SetSyncCheckpoint(ctx, key, page.NextCursor); err != nil {
				return errs.NewSyncError(errs.StageStore, err)
			}
		}

		pages++
		totalPosts += len(page.Posts)
		cursor = page.NextCursor

		if onProgress != nil {
			onProgress(Progress{Source: kind, PagesPulled: pages, PostsPulled: totalPosts, Cursor: cursor})
		}
		if e.log != nil {
			e.log.WithFields(logrus.Fields{"source": kind, "page": pages, "posts": len(page.Posts)}).Debug("pulled page")
		}

		if page.NextCursor == "" || len(page.Posts) == 0 {
			return nil
		}
	}
}

func (e *PullEngine) persist(ctx context.Context, post *bsky.Post) error {
	payload, err := encodePost(post)
	if err != nil {
		return errs.NewSyncError(errs.StageParse, err)
	}
	if _, err := e.store.AppendUpsert(ctx, string(post.URI), string(post.CID), post.CreatedAt, payload); err != nil {
		return errs.NewSyncError(errs.StageStore, err)
	}
	return nil
}

// Watch runs Run repeatedly at interval until ctx is canceled, for
// continuous polling of sources with no push counterpart (lists, author
// feeds, notifications).
func (e *PullEngine) Watch(ctx context.Context, kind SourceKind, param string, limit int, interval time.Duration, onProgress ProgressFunc) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := e.Run(ctx, kind, param, limit, 0, false, onProgress); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
