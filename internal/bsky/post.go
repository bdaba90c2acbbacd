package bsky

import "time"

// EmbedKind tags a normalized embed variant. Call sites must switch on this
// typed constant rather than comparing raw $type strings, so a future
// lexicon addition fails loudly instead of silently falling through.
type EmbedKind string

const (
	EmbedImages          EmbedKind = "Images"
	EmbedExternal        EmbedKind = "External"
	EmbedVideo           EmbedKind = "Video"
	EmbedRecord          EmbedKind = "Record"
	EmbedRecordWithMedia EmbedKind = "RecordWithMedia"
	EmbedUnknown         EmbedKind = "Unknown"
)

// Image is one image within an Images embed.
type Image struct {
	Alt         string
	AspectRatio *Aspect
}

// Aspect is an image's declared width/height ratio.
type Aspect struct {
	Width  int
	Height int
}

// External is a link-card embed.
type External struct {
	URI         string
	Title       string
	Description string
}

// Video is a video embed.
type Video struct {
	CID      string
	Playlist string
}

// Embed is the normalized embed tagged union.
type Embed struct {
	Kind EmbedKind

	Images   []Image   // Kind == EmbedImages
	External *External // Kind == EmbedExternal
	Video    *Video    // Kind == EmbedVideo
	Record   *RecordRef // Kind == EmbedRecord or EmbedRecordWithMedia

	// Media holds the media side of a RecordWithMedia embed: its Kind is
	// one of EmbedImages, EmbedExternal, or EmbedVideo.
	Media *Embed

	// RawType preserves the original $type string for EmbedUnknown.
	RawType string
}

// RecordRef identifies the quoted/embedded record of a Record or
// RecordWithMedia embed.
type RecordRef struct {
	URI URI
	CID CID
}

// URI and CID are re-declared locally (not imported from package filter) so
// that package bsky has no dependency on package filter; the filter runtime
// imports bsky instead, keeping C4 below C3 in the dependency order.
type URI string
type CID string

// FeedReasonKind tags why a post appears in a feed response.
type FeedReasonKind string

const (
	ReasonRepost  FeedReasonKind = "Repost"
	ReasonPin     FeedReasonKind = "Pin"
	ReasonUnknown FeedReasonKind = "Unknown"
)

// FeedReason is the normalized feed-context reason tagged union.
type FeedReason struct {
	Kind FeedReasonKind
	By   string    // Kind == ReasonRepost: reposting author's handle/DID
	At   time.Time // Kind == ReasonRepost: repost timestamp
}

// ReplyRef holds root/parent references for a threaded reply.
type ReplyRef struct {
	Root   URI
	Parent URI
}

// Metrics carries the engagement counters attached to a post, each optional
// (nil means "not reported by the upstream view", distinct from zero).
type Metrics struct {
	ReplyCount    *int
	RepostCount   *int
	LikeCount     *int
	QuoteCount    *int
	BookmarkCount *int
}

// Post is the canonical, protocol-independent record the filter runtime and
// event store operate on.
type Post struct {
	URI          URI
	CID          CID
	AuthorHandle string
	AuthorDID    string
	CreatedAt    time.Time
	IndexedAt    time.Time
	Text         string
	Hashtags     []string
	Links        []string
	Langs        []string
	Embed        *Embed
	Reply        *ReplyRef
	Reason       *FeedReason
	Metrics      Metrics
	Labels       []string
	Viewer       map[string]any
}

// IsQuote reports whether the post embeds or quote-embeds another record.
func (p *Post) IsQuote() bool {
	return p.Embed != nil && (p.Embed.Kind == EmbedRecord || p.Embed.Kind == EmbedRecordWithMedia)
}

// IsReply reports whether the post is a reply.
func (p *Post) IsReply() bool { return p.Reply != nil }

// IsRepost reports whether the post surfaced in the feed because of a repost.
func (p *Post) IsRepost() bool { return p.Reason != nil && p.Reason.Kind == ReasonRepost }

// IsOriginal reports whether the post is neither a reply, quote, nor repost.
func (p *Post) IsOriginal() bool { return !p.IsReply() && !p.IsQuote() && !p.IsRepost() }

// HasImages reports whether the post's embed is (or contains, via
// RecordWithMedia) an Images embed.
func (p *Post) HasImages() bool {
	e := p.mediaEmbed()
	return e != nil && e.Kind == EmbedImages && len(e.Images) > 0
}

// HasVideo reports whether the post's embed is (or contains) a Video embed.
func (p *Post) HasVideo() bool {
	e := p.mediaEmbed()
	return e != nil && e.Kind == EmbedVideo
}

// hasExternalEmbed reports an External embed, directly or via RecordWithMedia.
func (p *Post) hasExternalEmbed() bool {
	e := p.mediaEmbed()
	return e != nil && e.Kind == EmbedExternal
}

// mediaEmbed returns the media-bearing embed: the top-level embed itself, or
// the Media side of a RecordWithMedia embed.
func (p *Post) mediaEmbed() *Embed {
	if p.Embed == nil {
		return nil
	}
	if p.Embed.Kind == EmbedRecordWithMedia {
		return p.Embed.Media
	}
	return p.Embed
}

// HasMedia reports HasImages || HasVideo || an external embed/link is present.
func (p *Post) HasMedia() bool {
	return p.HasImages() || p.HasVideo() || p.hasExternalEmbed() || len(p.Links) > 0
}

// HasLinks reports whether the post carries any extracted outbound link.
func (p *Post) HasLinks() bool { return len(p.Links) > 0 }

// HasEmbed reports whether any embed variant is present.
func (p *Post) HasEmbed() bool { return p.Embed != nil }
