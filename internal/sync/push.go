package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"skygent.dev/skygent/internal/bsky"
	"skygent.dev/skygent/internal/errs"
	"skygent.dev/skygent/internal/store"
)

// JetstreamEvent is one JSON-framed message from the Jetstream endpoint:
// app.bsky.feed.post commit events carry Commit, identity/account events
// carry Kind only and are skipped by the push engine.
type JetstreamEvent struct {
	DID    string           `json:"did"`
	Kind   string           `json:"kind"`
	TimeUS int64            `json:"time_us"`
	Commit *JetstreamCommit `json:"commit,omitempty"`
}

// JetstreamCommit is the commit payload of a "commit" kind event.
type JetstreamCommit struct {
	Rev        string          `json:"rev"`
	Operation  string          `json:"operation"`
	Collection string          `json:"collection"`
	RKey       string          `json:"rkey"`
	CID        string          `json:"cid,omitempty"`
	Record     json.RawMessage `json:"record,omitempty"`
}

// postCollection is the only lexicon collection the push engine persists;
// likes/follows/etc are ignored.
const postCollection = "app.bsky.feed.post"

// BatchPolicy controls how many events the push engine accumulates before
// flushing a batch to the store.
type BatchPolicy struct {
	MaxSize     int
	MaxWait     time.Duration
	Concurrency int

	// StrictMode: when true, any single event's parse/store failure aborts
	// the whole run. When false, failures are counted and the run aborts
	// only once MaxErrors is exceeded (0 means unlimited).
	StrictMode bool
	MaxErrors  int
}

// PushEngine consumes a Jetstream websocket connection and persists
// app.bsky.feed.post commits to the event store in batches.
type PushEngine struct {
	endpoint string
	store    *store.Store
	policy   BatchPolicy
	log      *logrus.Logger
}

// NewPushEngine builds a PushEngine. endpoint is a full Jetstream
// subscription URL (wss://.../subscribe?wantedCollections=app.bsky.feed.post).
func NewPushEngine(endpoint string, st *store.Store, policy BatchPolicy, log *logrus.Logger) *PushEngine {
	if policy.MaxSize <= 0 {
		policy.MaxSize = 100
	}
	if policy.MaxWait <= 0 {
		policy.MaxWait = time.Second
	}
	if policy.Concurrency <= 0 {
		policy.Concurrency = 8
	}
	return &PushEngine{endpoint: endpoint, store: st, policy: policy, log: log}
}

// Run connects to the Jetstream endpoint (resuming from the stored
// checkpoint's cursor, a time_us value, when present) and streams commits
// until ctx is canceled or the error budget is exhausted. On return, the
// last successfully processed cursor is always checkpointed first.
func (e *PushEngine) Run(ctx context.Context) error {
	cursor, err := e.store.GetSyncCheckpoint(ctx, "jetstream")
	if err != nil {
		return errs.NewSyncError(errs.StageSource, err)
	}

	url := e.endpoint
	if cursor != "" {
		url = fmt.Sprintf("%s&cursor=%s", e.endpoint, cursor)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return errs.NewBskyError("jetstream.dial", 0, err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	var (
		batch      []JetstreamEvent
		errCount   int
		lastCursor string
		mu         sync.Mutex
	)

	flush := func(ctx context.Context) error {
		mu.Lock()
		pending := batch
		batch = nil
		mu.Unlock()
		if len(pending) == 0 {
			return nil
		}
		n, err := e.processBatch(ctx, pending)
		errCount += n
		if e.policy.MaxErrors > 0 && errCount > e.policy.MaxErrors {
			return errs.NewSyncError(errs.StageStore, fmt.Errorf("exceeded max errors (%d)", e.policy.MaxErrors))
		}
		if err != nil {
			return err
		}
		if lastCursor != "" {
			if cpErr := e.store.SetSyncCheckpoint(ctx, "jetstream", lastCursor); cpErr != nil {
				return errs.NewSyncError(errs.StageStore, cpErr)
			}
		}
		return nil
	}

	ticker := time.NewTicker(e.policy.MaxWait)
	defer ticker.Stop()

	msgCh := make(chan []byte)
	errCh := make(chan error, 1)
	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				errCh <- err
				return
			}
			msgCh <- data
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return flush(context.WithoutCancel(ctx))

		case err := <-errCh:
			if flushErr := flush(context.WithoutCancel(ctx)); flushErr != nil {
				return flushErr
			}
			return errs.NewBskyError("jetstream.read", 0, err)

		case data := <-msgCh:
			var evt JetstreamEvent
			if err := json.Unmarshal(data, &evt); err != nil {
				if e.policy.StrictMode {
					if flushErr := flush(ctx); flushErr != nil {
						return flushErr
					}
					return errs.NewParseError(string(errs.StageParse), "jetstream.event", err)
				}
				errCount++
				continue
			}
			lastCursor = fmt.Sprintf("%d", evt.TimeUS)
			mu.Lock()
			batch = append(batch, evt)
			shouldFlush := len(batch) >= e.policy.MaxSize
			mu.Unlock()
			if shouldFlush {
				if err := flush(ctx); err != nil {
					return err
				}
			}

		case <-ticker.C:
			if err := flush(ctx); err != nil {
				return err
			}
		}
	}
}

func (e *PushEngine) processBatch(ctx context.Context, events []JetstreamEvent) (errCount int, err error) {
	sem := make(chan struct{}, e.policy.Concurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for _, evt := range events {
		if evt.Kind != "commit" || evt.Commit == nil || evt.Commit.Collection != postCollection {
			continue
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(evt JetstreamEvent) {
			defer wg.Done()
			defer func() { <-sem }()
			if perr := e.processOne(ctx, evt); perr != nil {
				mu.Lock()
				errCount++
				if firstErr == nil {
					firstErr = perr
				}
				mu.Unlock()
				if e.log != nil {
					e.log.WithError(perr).Warn("jetstream: failed to process commit")
				}
			}
		}(evt)
	}
	wg.Wait()

	if e.policy.StrictMode && firstErr != nil {
		return errCount, firstErr
	}
	return errCount, nil
}

func (e *PushEngine) processOne(ctx context.Context, evt JetstreamEvent) error {
	uri := fmt.Sprintf("at://%s/%s/%s", evt.DID, evt.Commit.Collection, evt.Commit.RKey)

	if evt.Commit.Operation == "delete" {
		eventTime := time.UnixMicro(evt.TimeUS).UTC()
		_, err := e.store.AppendDelete(ctx, uri, eventTime)
		return err
	}

	var raw bsky.RawRecord
	if err := json.Unmarshal(evt.Commit.Record, &raw); err != nil {
		return errs.NewParseError(string(errs.StageParse), uri, err)
	}

	rawView := bsky.RawFeedViewPost{}
	rawView.Post.URI = uri
	rawView.Post.CID = evt.Commit.CID
	rawView.Post.Author = bsky.RawAuthorRef{DID: evt.DID}
	rawView.Post.Record = raw
	rawView.Post.IndexedAt = raw.CreatedAt

	post, err := bsky.NormalizeFeedViewPost(rawView)
	if err != nil {
		return err
	}

	payload, err := encodePost(post)
	if err != nil {
		return err
	}
	_, err = e.store.AppendUpsert(ctx, uri, evt.Commit.CID, post.CreatedAt, payload)
	return err
}
