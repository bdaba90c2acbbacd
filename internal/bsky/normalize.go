package bsky

import (
	"regexp"
	"strings"
	"time"

	"skygent.dev/skygent/internal/errs"
)

// hashtagPattern is the fallback hashtag extractor used when a post carries
// no tag facets: a leading '#' followed by word characters, not preceded by
// another word character.
var hashtagPattern = regexp.MustCompile(`(?:^|[^\w&/])#(\w+)`)

// NormalizeFeedViewPost converts one RawFeedViewPost (as returned by
// timeline/feed/list/author/thread endpoints) into a canonical Post.
func NormalizeFeedViewPost(raw RawFeedViewPost) (*Post, error) {
	indexedAt, indexedErr := parseTime(raw.Post.IndexedAt)

	createdAt, err := parseTime(raw.Post.Record.CreatedAt)
	if err != nil {
		if indexedErr != nil {
			return nil, errs.NewParseError("parse", "post.record.createdAt", err)
		}
		createdAt = indexedAt
	}
	if indexedErr != nil {
		indexedAt = createdAt
	}

	p := &Post{
		URI:          URI(raw.Post.URI),
		CID:          CID(raw.Post.CID),
		AuthorHandle: raw.Post.Author.Handle,
		AuthorDID:    raw.Post.Author.DID,
		CreatedAt:    createdAt,
		IndexedAt:    indexedAt,
		Text:         raw.Post.Record.Text,
		Langs:        raw.Post.Record.Langs,
		Hashtags:     extractHashtags(raw.Post.Record),
		Links:        extractLinks(raw.Post.Record),
		Embed:        normalizeEmbed(raw.Post.Record.Embed),
		Reply:        normalizeReply(raw.Post.Record.Reply),
		Reason:       normalizeReason(raw.Reason),
		Metrics: Metrics{
			ReplyCount:    raw.Post.ReplyCount,
			RepostCount:   raw.Post.RepostCount,
			LikeCount:     raw.Post.LikeCount,
			QuoteCount:    raw.Post.QuoteCount,
			BookmarkCount: raw.Post.BookmarkCount,
		},
		Labels: labelValues(raw.Post.Labels),
		Viewer: raw.Post.Viewer,
	}
	return p, nil
}

// NormalizeNotification converts a RawNotification into a canonical Post.
// Notifications carry no engagement metrics or feed reason.
func NormalizeNotification(raw RawNotification) (*Post, error) {
	createdAt, err := parseTime(raw.Record.CreatedAt)
	if err != nil {
		return nil, errs.NewParseError("parse", "notification.record.createdAt", err)
	}
	indexedAt, err := parseTime(raw.IndexedAt)
	if err != nil {
		indexedAt = createdAt
	}

	return &Post{
		URI:          URI(raw.URI),
		CID:          CID(raw.CID),
		AuthorHandle: raw.Author.Handle,
		AuthorDID:    raw.Author.DID,
		CreatedAt:    createdAt,
		IndexedAt:    indexedAt,
		Text:         raw.Record.Text,
		Langs:        raw.Record.Langs,
		Hashtags:     extractHashtags(raw.Record),
		Links:        extractLinks(raw.Record),
		Embed:        normalizeEmbed(raw.Record.Embed),
		Reply:        normalizeReply(raw.Record.Reply),
	}, nil
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, errs.NewParseError("parse", "timestamp", nil)
	}
	return time.Parse(time.RFC3339, s)
}

// extractHashtags collects facet-derived tags first, then tags found by a
// text scan, lowercased and deduplicated in first-seen order.
func extractHashtags(rec RawRecord) []string {
	seen := make(map[string]bool)
	var tags []string

	for _, facet := range rec.Facets {
		for _, feat := range facet.Features {
			if feat.Type == "app.bsky.richtext.facet#tag" && feat.Tag != "" {
				tag := strings.ToLower(feat.Tag)
				if !seen[tag] {
					seen[tag] = true
					tags = append(tags, tag)
				}
			}
		}
	}

	for _, m := range hashtagPattern.FindAllStringSubmatch(rec.Text, -1) {
		tag := strings.ToLower(m[1])
		if !seen[tag] {
			seen[tag] = true
			tags = append(tags, tag)
		}
	}
	return tags
}

// extractLinks collects facet-derived link URIs plus any External embed URI,
// deduplicated in first-seen order.
func extractLinks(rec RawRecord) []string {
	seen := make(map[string]bool)
	var links []string

	add := func(uri string) {
		if uri != "" && !seen[uri] {
			seen[uri] = true
			links = append(links, uri)
		}
	}

	for _, facet := range rec.Facets {
		for _, feat := range facet.Features {
			if feat.Type == "app.bsky.richtext.facet#link" {
				add(feat.URI)
			}
		}
	}

	if rec.Embed != nil {
		if rec.Embed.External != nil {
			add(rec.Embed.External.URI)
		}
		if rec.Embed.Media != nil && rec.Embed.Media.External != nil {
			add(rec.Embed.Media.External.URI)
		}
	}

	return links
}

// normalizeEmbed maps a RawEmbed's $type to a typed EmbedKind, preserving
// the raw type string for anything this normalizer doesn't recognize rather
// than dropping the embed.
func normalizeEmbed(raw *RawEmbed) *Embed {
	if raw == nil {
		return nil
	}

	switch raw.Type {
	case "app.bsky.embed.images#view", "app.bsky.embed.images":
		return &Embed{Kind: EmbedImages, Images: normalizeImages(raw.Images)}

	case "app.bsky.embed.external#view", "app.bsky.embed.external":
		if raw.External == nil {
			return &Embed{Kind: EmbedUnknown, RawType: raw.Type}
		}
		return &Embed{Kind: EmbedExternal, External: &External{
			URI:         raw.External.URI,
			Title:       raw.External.Title,
			Description: raw.External.Description,
		}}

	case "app.bsky.embed.video#view", "app.bsky.embed.video":
		if raw.Video == nil {
			return &Embed{Kind: EmbedUnknown, RawType: raw.Type}
		}
		return &Embed{Kind: EmbedVideo, Video: &Video{CID: raw.Video.CID, Playlist: raw.Video.Playlist}}

	case "app.bsky.embed.record#view", "app.bsky.embed.record":
		if raw.Record == nil {
			return &Embed{Kind: EmbedUnknown, RawType: raw.Type}
		}
		return &Embed{Kind: EmbedRecord, Record: &RecordRef{URI: URI(raw.Record.URI), CID: CID(raw.Record.CID)}}

	case "app.bsky.embed.recordWithMedia#view", "app.bsky.embed.recordWithMedia":
		e := &Embed{Kind: EmbedRecordWithMedia}
		if raw.Record != nil {
			e.Record = &RecordRef{URI: URI(raw.Record.URI), CID: CID(raw.Record.CID)}
		}
		if raw.Media != nil {
			e.Media = normalizeEmbed(raw.Media)
		}
		return e

	default:
		return &Embed{Kind: EmbedUnknown, RawType: raw.Type}
	}
}

func normalizeImages(raw []RawImageEmbed) []Image {
	if len(raw) == 0 {
		return nil
	}
	images := make([]Image, 0, len(raw))
	for _, ri := range raw {
		img := Image{Alt: ri.Alt}
		if ri.AspectRatio != nil {
			img.AspectRatio = &Aspect{Width: ri.AspectRatio.Width, Height: ri.AspectRatio.Height}
		}
		images = append(images, img)
	}
	return images
}

func normalizeReply(raw *RawReply) *ReplyRef {
	if raw == nil {
		return nil
	}
	return &ReplyRef{Root: URI(raw.Root.URI), Parent: URI(raw.Parent.URI)}
}

// normalizeReason maps a RawFeedReason's $type to a typed FeedReasonKind.
func normalizeReason(raw *RawFeedReason) *FeedReason {
	if raw == nil {
		return nil
	}
	switch raw.Type {
	case "app.bsky.feed.defs#reasonRepost":
		r := &FeedReason{Kind: ReasonRepost}
		if raw.By != nil {
			r.By = raw.By.Handle
			if r.By == "" {
				r.By = raw.By.DID
			}
		}
		if t, err := parseTime(raw.IndexedAt); err == nil {
			r.At = t
		}
		return r
	case "app.bsky.feed.defs#reasonPin":
		return &FeedReason{Kind: ReasonPin}
	default:
		return &FeedReason{Kind: ReasonUnknown}
	}
}

func labelValues(raw []RawLabel) []string {
	if len(raw) == 0 {
		return nil
	}
	vals := make([]string, 0, len(raw))
	for _, l := range raw {
		vals = append(vals, l.Val)
	}
	return vals
}
