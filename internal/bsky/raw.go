// Package bsky normalizes raw AT Protocol / Bluesky payloads into the
// canonical Post type the filter runtime and event store operate on (C4),
// and provides the XRPC pull client used by pull sync (C7). The push
// engine's websocket transport lives in package sync (C8).
package bsky

// Raw wire shapes. These mirror the lexicon JSON the upstream protocol
// adapter hands the engine core; field names match the wire exactly so
// json.Unmarshal needs no custom hooks for the common case.

// RawRecord is the record body of an app.bsky.feed.post.
type RawRecord struct {
	Type      string     `json:"$type"`
	Text      string     `json:"text"`
	CreatedAt string     `json:"createdAt"`
	Langs     []string   `json:"langs,omitempty"`
	Facets    []RawFacet `json:"facets,omitempty"`
	Reply     *RawReply  `json:"reply,omitempty"`
	Embed     *RawEmbed  `json:"embed,omitempty"`
}

// RawFacet describes a rich-text annotation (link, mention, or tag).
type RawFacet struct {
	Index    RawByteSlice     `json:"index"`
	Features []RawFacetFeature `json:"features"`
}

// RawByteSlice marks the byte range of a facet within the post text.
type RawByteSlice struct {
	ByteStart int `json:"byteStart"`
	ByteEnd   int `json:"byteEnd"`
}

// RawFacetFeature selects a facet variant by its $type: link sets URI,
// mention sets DID, tag sets Tag.
type RawFacetFeature struct {
	Type string `json:"$type"`
	URI  string `json:"uri,omitempty"`
	DID  string `json:"did,omitempty"`
	Tag  string `json:"tag,omitempty"`
}

// RawReply holds root/parent references for a threaded reply.
type RawReply struct {
	Root   RawRef `json:"root"`
	Parent RawRef `json:"parent"`
}

// RawRef is a CID+URI pair identifying an AT Protocol record.
type RawRef struct {
	URI string `json:"uri"`
	CID string `json:"cid"`
}

// RawEmbed is the union of every embed shape a post record may carry,
// discriminated by Type. Unrecognized Type values are preserved verbatim
// by the normalizer rather than dropped.
type RawEmbed struct {
	Type     string          `json:"$type"`
	Images   []RawImageEmbed `json:"images,omitempty"`
	External *RawExternal    `json:"external,omitempty"`
	Video    *RawVideo       `json:"video,omitempty"`
	Record   *RawRef         `json:"record,omitempty"`
	Media    *RawEmbed       `json:"media,omitempty"`
}

// RawImageEmbed is one image within an Images embed.
type RawImageEmbed struct {
	Alt          string        `json:"alt,omitempty"`
	AspectRatio  *RawAspect    `json:"aspectRatio,omitempty"`
}

// RawAspect is an image's width/height ratio hint.
type RawAspect struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// RawExternal is a link-card embed.
type RawExternal struct {
	URI         string `json:"uri"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// RawVideo is a video embed.
type RawVideo struct {
	CID      string `json:"cid"`
	Playlist string `json:"playlist,omitempty"`
}

// RawFeedReason indicates why a post appears in a feed response.
// The $type selects the variant: reasonRepost sets By+IndexedAt; reasonPin has none.
type RawFeedReason struct {
	Type      string        `json:"$type"`
	By        *RawAuthorRef `json:"by,omitempty"`
	IndexedAt string        `json:"indexedAt,omitempty"`
}

// RawAuthorRef holds basic author info as it appears embedded in feed/notification payloads.
type RawAuthorRef struct {
	DID         string `json:"did"`
	Handle      string `json:"handle"`
	DisplayName string `json:"displayName,omitempty"`
}

// RawMetrics carries the engagement counters attached to a feed view post.
type RawMetrics struct {
	ReplyCount    *int `json:"replyCount,omitempty"`
	RepostCount   *int `json:"repostCount,omitempty"`
	LikeCount     *int `json:"likeCount,omitempty"`
	QuoteCount    *int `json:"quoteCount,omitempty"`
	BookmarkCount *int `json:"bookmarkCount,omitempty"`
}

// RawFeedViewPost is one entry in a timeline/feed/list/author response:
// the post envelope plus why it's present (repost/pin) and its engagement counts.
type RawFeedViewPost struct {
	Post struct {
		URI       string         `json:"uri"`
		CID       string         `json:"cid"`
		Author    RawAuthorRef   `json:"author"`
		Record    RawRecord      `json:"record"`
		IndexedAt string         `json:"indexedAt"`
		Labels    []RawLabel     `json:"labels,omitempty"`
		Viewer    map[string]any `json:"viewer,omitempty"`
		RawMetrics
	} `json:"post"`
	Reason *RawFeedReason `json:"reason,omitempty"`
}

// RawLabel is a moderation label attached to a post.
type RawLabel struct {
	Val string `json:"val"`
}

// RawNotification is a single entry from app.bsky.notification.listNotifications.
type RawNotification struct {
	URI       string       `json:"uri"`
	CID       string       `json:"cid"`
	Author    RawAuthorRef `json:"author"`
	Reason    string       `json:"reason"`
	Record    RawRecord    `json:"record"`
	IsRead    bool         `json:"isRead"`
	IndexedAt string       `json:"indexedAt"`
}
