package bsky

import "context"

// SourceKind selects which upstream endpoint a pull run reads from.
type SourceKind string

const (
	SourceTimeline      SourceKind = "timeline"
	SourceFeed          SourceKind = "feed"
	SourceList          SourceKind = "list"
	SourceAuthor        SourceKind = "author"
	SourceThread        SourceKind = "thread"
	SourceNotifications SourceKind = "notifications"
)

// Page is one cursor-paged response from a pull source.
type Page struct {
	Posts      []*Post
	NextCursor string
}

// PullSource fetches one page of a given source. param carries the
// source-specific selector (feed URI, list URI, author handle, thread root
// URI); it's unused for timeline/notifications.
type PullSource interface {
	Fetch(ctx context.Context, kind SourceKind, param, cursor string, limit int) (Page, error)
}
