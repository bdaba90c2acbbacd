package sync

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skygent.dev/skygent/internal/bsky"
	"skygent.dev/skygent/internal/ratelimit"
	"skygent.dev/skygent/internal/store"
)

type fakeSource struct {
	pages []Page
	calls int
}

func (f *fakeSource) Fetch(ctx context.Context, kind SourceKind, param, cursor string, limit int) (Page, error) {
	if f.calls >= len(f.pages) {
		return Page{}, nil
	}
	page := f.pages[f.calls]
	f.calls++
	return page, nil
}

func post(uri string) *bsky.Post {
	return &bsky.Post{URI: bsky.URI(uri), CID: "cid", AuthorHandle: "alice.bsky.social", CreatedAt: time.Now().UTC()}
}

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestPullEngineRunPersistsPagesAndCheckpoints(t *testing.T) {
	st := openTestStore(t)
	source := &fakeSource{pages: []Page{
		{Posts: []*bsky.Post{post("at://a/app.bsky.feed.post/1")}, NextCursor: "c1"},
		{Posts: []*bsky.Post{post("at://a/app.bsky.feed.post/2")}, NextCursor: ""},
	}}
	engine := NewPullEngine(source, st, ratelimit.New(0, time.Millisecond, 1), nil)

	var progress []Progress
	err := engine.Run(context.Background(), SourceTimeline, "", 50, 0, false, func(p Progress) {
		progress = append(progress, p)
	})
	require.NoError(t, err)
	require.Len(t, progress, 2)
	assert.Equal(t, 2, progress[1].PostsPulled)

	ev, err := st.GetByURI(context.Background(), "at://a/app.bsky.feed.post/1")
	require.NoError(t, err)
	require.NotNil(t, ev)

	cp, err := st.GetSyncCheckpoint(context.Background(), checkpointKey(SourceTimeline, ""))
	require.NoError(t, err)
	assert.Equal(t, "", cp, "checkpoint reflects the final empty NextCursor")
}

func TestPullEngineDryRunDoesNotWrite(t *testing.T) {
	st := openTestStore(t)
	source := &fakeSource{pages: []Page{
		{Posts: []*bsky.Post{post("at://a/app.bsky.feed.post/1")}, NextCursor: ""},
	}}
	engine := NewPullEngine(source, st, ratelimit.New(0, time.Millisecond, 1), nil)

	err := engine.Run(context.Background(), SourceTimeline, "", 50, 0, true, nil)
	require.NoError(t, err)

	ev, err := st.GetByURI(context.Background(), "at://a/app.bsky.feed.post/1")
	require.NoError(t, err)
	assert.Nil(t, ev, "dry run never persists")
}

func TestPullEngineStopsAtMaxPages(t *testing.T) {
	st := openTestStore(t)
	source := &fakeSource{pages: []Page{
		{Posts: []*bsky.Post{post("at://a/app.bsky.feed.post/1")}, NextCursor: "c1"},
		{Posts: []*bsky.Post{post("at://a/app.bsky.feed.post/2")}, NextCursor: "c2"},
	}}
	engine := NewPullEngine(source, st, ratelimit.New(0, time.Millisecond, 1), nil)

	pages := 0
	err := engine.Run(context.Background(), SourceTimeline, "", 50, 1, false, func(p Progress) { pages++ })
	require.NoError(t, err)
	assert.Equal(t, 1, pages)
}

func TestCheckpointKeyNamespacesByParam(t *testing.T) {
	assert.Equal(t, "timeline", checkpointKey(SourceTimeline, ""))
	assert.Equal(t, "list:at://a/app.bsky.graph.list/1", checkpointKey(SourceList, "at://a/app.bsky.graph.list/1"))
}
