package bookmark

import "time"

// DefaultCollectionColor is applied when a collection is created without a color.
const DefaultCollectionColor = "#3498db"

// Bookmark is a URL saved by one user. CollectionID is empty when the bookmark
// belongs to no collection; Snapshot holds the archive URI of the page, if any.
type Bookmark struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user"`
	URL          string    `json:"url"`
	Title        string    `json:"title"`
	Description  string    `json:"description,omitempty"`
	Tags         []string  `json:"tags"`
	CollectionID string    `json:"collection,omitempty"`
	Favicon      string    `json:"favicon,omitempty"`
	Thumbnail    string    `json:"thumbnail,omitempty"`
	Snapshot     string    `json:"snapshot,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Collection is a named grouping of one user's bookmarks.
type Collection struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Color       string    `json:"color"`
	CreatedAt   time.Time `json:"created_at"`
}

// CreateBookmarkInput carries the caller-supplied fields of a new bookmark.
type CreateBookmarkInput struct {
	URL          string   `json:"url" validate:"required"`
	Title        string   `json:"title" validate:"required"`
	Description  string   `json:"description"`
	Tags         []string `json:"tags"`
	CollectionID string   `json:"collection"`
	Favicon      string   `json:"favicon"`
	Thumbnail    string   `json:"thumbnail"`
	Snapshot     string   `json:"-"`
}

// BookmarkPatch lists the mutable bookmark fields. A nil field is absent.
type BookmarkPatch struct {
	Title        *string   `json:"title"`
	Description  *string   `json:"description"`
	Tags         *[]string `json:"tags"`
	CollectionID *string   `json:"collection"`
}

// CreateCollectionInput carries the caller-supplied fields of a new collection.
type CreateCollectionInput struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
	Color       string `json:"color" validate:"omitempty,hexcolor"`
}

// CollectionPatch lists the mutable collection fields. A nil field is absent.
type CollectionPatch struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Color       *string `json:"color"`
}

// ListFilter narrows a bookmark listing. UserID is always required.
type ListFilter struct {
	UserID       string
	CollectionID string
}
