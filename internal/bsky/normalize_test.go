package bsky

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseRaw() RawFeedViewPost {
	var raw RawFeedViewPost
	raw.Post.URI = "at://did:plc:alice/app.bsky.feed.post/1"
	raw.Post.CID = "cid1"
	raw.Post.Author = RawAuthorRef{DID: "did:plc:alice", Handle: "alice.bsky.social"}
	raw.Post.Record = RawRecord{
		Text:      "hello #golang world",
		CreatedAt: "2026-01-15T12:00:00Z",
		Langs:     []string{"en"},
	}
	raw.Post.IndexedAt = "2026-01-15T12:00:05Z"
	return raw
}

func TestNormalizeFeedViewPostBasicFields(t *testing.T) {
	raw := baseRaw()
	post, err := NormalizeFeedViewPost(raw)
	require.NoError(t, err)
	assert.Equal(t, URI("at://did:plc:alice/app.bsky.feed.post/1"), post.URI)
	assert.Equal(t, "alice.bsky.social", post.AuthorHandle)
	assert.Equal(t, []string{"golang"}, post.Hashtags)
	assert.True(t, post.IsOriginal())
}

func TestNormalizeFeedViewPostFallsBackToIndexedAtWhenCreatedAtMissing(t *testing.T) {
	raw := baseRaw()
	raw.Post.Record.CreatedAt = ""
	post, err := NormalizeFeedViewPost(raw)
	require.NoError(t, err)
	assert.Equal(t, post.IndexedAt, post.CreatedAt)
}

func TestNormalizeFeedViewPostRejectsMissingBothTimestamps(t *testing.T) {
	raw := baseRaw()
	raw.Post.Record.CreatedAt = ""
	raw.Post.IndexedAt = ""
	_, err := NormalizeFeedViewPost(raw)
	assert.Error(t, err)
}

func TestNormalizeFeedViewPostFallsBackIndexedAt(t *testing.T) {
	raw := baseRaw()
	raw.Post.IndexedAt = "not-a-time"
	post, err := NormalizeFeedViewPost(raw)
	require.NoError(t, err)
	assert.Equal(t, post.CreatedAt, post.IndexedAt)
}

func TestExtractHashtagsPrefersFacets(t *testing.T) {
	raw := baseRaw()
	raw.Post.Record.Text = "no hash markers here"
	raw.Post.Record.Facets = []RawFacet{
		{Features: []RawFacetFeature{{Type: "app.bsky.richtext.facet#tag", Tag: "Rust"}}},
		{Features: []RawFacetFeature{{Type: "app.bsky.richtext.facet#tag", Tag: "rust"}}},
	}
	post, err := NormalizeFeedViewPost(raw)
	require.NoError(t, err)
	assert.Equal(t, []string{"rust"}, post.Hashtags, "facet tags are lowercased and deduped")
}

func TestExtractLinksFromFacetsAndExternalEmbed(t *testing.T) {
	raw := baseRaw()
	raw.Post.Record.Facets = []RawFacet{
		{Features: []RawFacetFeature{{Type: "app.bsky.richtext.facet#link", URI: "https://a.example"}}},
	}
	raw.Post.Record.Embed = &RawEmbed{
		Type:     "app.bsky.embed.external#view",
		External: &RawExternal{URI: "https://a.example", Title: "dup"},
	}
	post, err := NormalizeFeedViewPost(raw)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.example"}, post.Links, "dedupes facet link vs external embed URI")
}

func TestNormalizeEmbedUnknownTypePreserved(t *testing.T) {
	raw := baseRaw()
	raw.Post.Record.Embed = &RawEmbed{Type: "app.bsky.embed.somethingNew#view"}
	post, err := NormalizeFeedViewPost(raw)
	require.NoError(t, err)
	require.NotNil(t, post.Embed)
	assert.Equal(t, EmbedUnknown, post.Embed.Kind)
	assert.Equal(t, "app.bsky.embed.somethingNew#view", post.Embed.RawType)
}

func TestNormalizeEmbedRecordWithMediaNestsMedia(t *testing.T) {
	raw := baseRaw()
	raw.Post.Record.Embed = &RawEmbed{
		Type:   "app.bsky.embed.recordWithMedia#view",
		Record: &RawRef{URI: "at://did:plc:bob/app.bsky.feed.post/2", CID: "cid2"},
		Media: &RawEmbed{
			Type:   "app.bsky.embed.images#view",
			Images: []RawImageEmbed{{Alt: "a cat"}},
		},
	}
	post, err := NormalizeFeedViewPost(raw)
	require.NoError(t, err)
	require.NotNil(t, post.Embed)
	assert.Equal(t, EmbedRecordWithMedia, post.Embed.Kind)
	require.NotNil(t, post.Embed.Media)
	assert.Equal(t, EmbedImages, post.Embed.Media.Kind)
	assert.True(t, post.HasImages())
	assert.True(t, post.IsQuote())
}

func TestNormalizeReasonRepost(t *testing.T) {
	raw := baseRaw()
	raw.Reason = &RawFeedReason{
		Type:      "app.bsky.feed.defs#reasonRepost",
		By:        &RawAuthorRef{Handle: "carol.bsky.social"},
		IndexedAt: "2026-01-15T13:00:00Z",
	}
	post, err := NormalizeFeedViewPost(raw)
	require.NoError(t, err)
	require.NotNil(t, post.Reason)
	assert.Equal(t, ReasonRepost, post.Reason.Kind)
	assert.Equal(t, "carol.bsky.social", post.Reason.By)
	assert.True(t, post.IsRepost())
}

func TestNormalizeNotification(t *testing.T) {
	raw := RawNotification{
		URI:    "at://did:plc:alice/app.bsky.feed.post/1",
		CID:    "cid1",
		Author: RawAuthorRef{DID: "did:plc:alice", Handle: "alice.bsky.social"},
		Record: RawRecord{Text: "hi", CreatedAt: "2026-01-15T12:00:00Z"},
	}
	post, err := NormalizeNotification(raw)
	require.NoError(t, err)
	assert.Equal(t, "alice.bsky.social", post.AuthorHandle)
	assert.Nil(t, post.Reason)
}
