package bookmark

import (
	"context"
	"time"
)

// BookmarkRepository persists bookmark records. Implementations report a
// missing record with ErrNotFound and a uniqueness violation with ErrDuplicate.
type BookmarkRepository interface {
	InsertBookmark(ctx context.Context, b Bookmark) error
	GetBookmark(ctx context.Context, id string) (Bookmark, error)
	FindBookmarkByURL(ctx context.Context, userID, url string) (Bookmark, error)
	// ListBookmarks returns matches ordered by created_at descending.
	ListBookmarks(ctx context.Context, filter ListFilter) ([]Bookmark, error)
	// SearchBookmarks returns the user's bookmarks whose title, description or
	// tags contain any of the lower-cased terms, ordered by created_at descending.
	SearchBookmarks(ctx context.Context, userID string, terms []string) ([]Bookmark, error)
	UpdateBookmark(ctx context.Context, b Bookmark) error
	DeleteBookmark(ctx context.Context, id string) error
	// UnlinkCollection clears the collection reference of every bookmark in it.
	UnlinkCollection(ctx context.Context, collectionID string, at time.Time) (int64, error)
}

// CollectionRepository persists collection records.
type CollectionRepository interface {
	InsertCollection(ctx context.Context, c Collection) error
	GetCollection(ctx context.Context, id string) (Collection, error)
	FindCollectionByName(ctx context.Context, userID, name string) (Collection, error)
	// ListCollections returns the user's collections ordered by name ascending.
	ListCollections(ctx context.Context, userID string) ([]Collection, error)
	UpdateCollection(ctx context.Context, c Collection) error
	DeleteCollection(ctx context.Context, id string) error
}

// Store is the full persistence surface.
type Store interface {
	BookmarkRepository
	CollectionRepository
	Ping(ctx context.Context) error
	Close()
}

// Publisher pushes change events to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces record IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
