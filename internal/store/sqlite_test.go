package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "events.db")
	st, err := Open(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestAppendUpsertAndGetByURI(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	seq, err := st.AppendUpsert(ctx, "at://a/app.bsky.feed.post/1", "cid1", now, []byte(`{"text":"hi"}`))
	require.NoError(t, err)
	assert.NotZero(t, seq)

	ev, err := st.GetByURI(ctx, "at://a/app.bsky.feed.post/1")
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, "cid1", ev.CID)
	assert.Equal(t, EventUpsert, ev.Kind)
}

func TestAppendUpsertRetainsHistoryForSameURI(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := st.AppendUpsert(ctx, "at://a/app.bsky.feed.post/1", "cid1", now, []byte("v1"))
	require.NoError(t, err)
	_, err = st.AppendUpsert(ctx, "at://a/app.bsky.feed.post/1", "cid2", now, []byte("v2"))
	require.NoError(t, err)

	ev, err := st.GetByURI(ctx, "at://a/app.bsky.feed.post/1")
	require.NoError(t, err)
	assert.Equal(t, "cid2", ev.CID, "uri_index reflects the latest revision")
	assert.Equal(t, []byte("v2"), ev.Payload)

	result, err := st.ScanSince(ctx, 0, 100)
	require.NoError(t, err)
	assert.Len(t, result.Events, 2, "event_log is append-only: both revisions survive")
	assert.Equal(t, []byte("v1"), result.Events[0].Payload)
	assert.Equal(t, []byte("v2"), result.Events[1].Payload)
}

func TestAppendUpsertIfMissingIsNoOpWhenSameCIDPresent(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := st.AppendUpsert(ctx, "at://a/app.bsky.feed.post/1", "cid1", now, []byte("v1"))
	require.NoError(t, err)

	seq, err := st.AppendUpsertIfMissing(ctx, "at://a/app.bsky.feed.post/1", "cid1", now, []byte("v1-again"))
	require.NoError(t, err)
	assert.Zero(t, seq, "no-op returns 0, never a real event_seq")

	ev, err := st.GetByURI(ctx, "at://a/app.bsky.feed.post/1")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), ev.Payload, "existing row untouched")
}

func TestAppendUpsertIfMissingAppendsOnNewCID(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := st.AppendUpsert(ctx, "at://a/app.bsky.feed.post/1", "cid1", now, []byte("v1"))
	require.NoError(t, err)

	seq, err := st.AppendUpsertIfMissing(ctx, "at://a/app.bsky.feed.post/1", "cid2", now, []byte("v2"))
	require.NoError(t, err)
	assert.NotZero(t, seq, "a genuine edit (new cid) is not treated as already present")

	ev, err := st.GetByURI(ctx, "at://a/app.bsky.feed.post/1")
	require.NoError(t, err)
	assert.Equal(t, "cid2", ev.CID)
}

func TestAppendDeleteTombstones(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := st.AppendUpsert(ctx, "at://a/app.bsky.feed.post/1", "cid1", now, []byte("v1"))
	require.NoError(t, err)
	_, err = st.AppendDelete(ctx, "at://a/app.bsky.feed.post/1", now)
	require.NoError(t, err)

	ev, err := st.GetByURI(ctx, "at://a/app.bsky.feed.post/1")
	require.NoError(t, err)
	assert.Equal(t, EventDelete, ev.Kind)

	present, err := st.IndexPresent(ctx, "at://a/app.bsky.feed.post/1")
	require.NoError(t, err)
	assert.False(t, present, "a tombstoned uri is no longer present in the index")
}

func TestGetByURIMissingReturnsNil(t *testing.T) {
	st := openTestStore(t)
	ev, err := st.GetByURI(context.Background(), "at://does/not/exist")
	require.NoError(t, err)
	assert.Nil(t, ev)

	present, err := st.IndexPresent(context.Background(), "at://does/not/exist")
	require.NoError(t, err)
	assert.False(t, present)
}

func TestScanSinceOrdersAscendingAndReportsTruncation(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for i := 0; i < 5; i++ {
		_, err := st.AppendUpsert(ctx, "at://a/app.bsky.feed.post/"+string(rune('1'+i)), "cid", now, []byte("v"))
		require.NoError(t, err)
	}

	full, err := st.ScanSince(ctx, 0, 100)
	require.NoError(t, err)
	require.Len(t, full.Events, 5)
	assert.Less(t, full.Events[0].Seq, full.Events[4].Seq, "ascending order")
	assert.False(t, full.Truncated)

	partial, err := st.ScanSince(ctx, 0, 3)
	require.NoError(t, err)
	assert.Len(t, partial.Events, 3)
	assert.True(t, partial.Truncated)

	resumed, err := st.ScanSince(ctx, partial.Events[2].Seq, 100)
	require.NoError(t, err)
	assert.Len(t, resumed.Events, 2)
}

func TestSyncCheckpointRoundTrip(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	cursor, err := st.GetSyncCheckpoint(ctx, "timeline")
	require.NoError(t, err)
	assert.Equal(t, "", cursor)

	require.NoError(t, st.SetSyncCheckpoint(ctx, "timeline", "cursor-1"))
	cursor, err = st.GetSyncCheckpoint(ctx, "timeline")
	require.NoError(t, err)
	assert.Equal(t, "cursor-1", cursor)
}

func TestViewCheckpointRoundTrip(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	cp, err := st.GetViewCheckpoint(ctx, "raw")
	require.NoError(t, err)
	assert.Nil(t, cp)

	require.NoError(t, st.SetViewCheckpoint(ctx, "raw", 42, "sig1", "derive_time"))
	cp, err = st.GetViewCheckpoint(ctx, "raw")
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, "raw", cp.SourceStore)
	assert.Equal(t, int64(42), cp.LastSourceSeq)
	assert.Equal(t, "sig1", cp.FilterHash)
	assert.Equal(t, "derive_time", cp.EvaluationMode)

	require.NoError(t, st.DeleteViewCheckpoint(ctx, "raw"))
	cp, err = st.GetViewCheckpoint(ctx, "raw")
	require.NoError(t, err)
	assert.Nil(t, cp)
}

func TestViewCheckpointTracksMultipleSourcesIndependently(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.SetViewCheckpoint(ctx, "sourceA", 1, "sigA", "derive_time"))
	require.NoError(t, st.SetViewCheckpoint(ctx, "sourceB", 2, "sigB", "event_time"))

	cpA, err := st.GetViewCheckpoint(ctx, "sourceA")
	require.NoError(t, err)
	require.NotNil(t, cpA)
	assert.Equal(t, int64(1), cpA.LastSourceSeq)

	cpB, err := st.GetViewCheckpoint(ctx, "sourceB")
	require.NoError(t, err)
	require.NotNil(t, cpB)
	assert.Equal(t, int64(2), cpB.LastSourceSeq)
}

func TestResetProjectionClearsLogAndIndex(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := st.AppendUpsert(ctx, "at://a/app.bsky.feed.post/1", "cid1", now, []byte("v1"))
	require.NoError(t, err)

	require.NoError(t, st.ResetProjection(ctx))

	ev, err := st.GetByURI(ctx, "at://a/app.bsky.feed.post/1")
	require.NoError(t, err)
	assert.Nil(t, ev)

	result, err := st.ScanSince(ctx, 0, 100)
	require.NoError(t, err)
	assert.Empty(t, result.Events)
}

func TestConfigRoundTrip(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	_, ok, err := st.GetConfig(ctx, "name")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, st.SetConfig(ctx, "name", "myrepo"))
	val, ok, err := st.GetConfig(ctx, "name")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "myrepo", val)
}
