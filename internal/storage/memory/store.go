// Package memory contains in-memory persistence for development and tests.
package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/JakeFAU/bookmarks/internal/bookmark"
)

// Store implements bookmark.Store with maps guarded by a single lock, so the
// uniqueness checks on insert and update are atomic.
type Store struct {
	mu          sync.RWMutex
	bookmarks   map[string]bookmark.Bookmark
	collections map[string]bookmark.Collection
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{
		bookmarks:   make(map[string]bookmark.Bookmark),
		collections: make(map[string]bookmark.Collection),
	}
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close() {}

// InsertBookmark adds b unless its (user, url) pair is taken.
func (s *Store) InsertBookmark(_ context.Context, b bookmark.Bookmark) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.bookmarks[b.ID]; exists {
		return bookmark.ErrDuplicate
	}
	if s.bookmarkURLTaken(b.UserID, b.URL, b.ID) {
		return bookmark.ErrDuplicate
	}
	s.bookmarks[b.ID] = cloneBookmark(b)
	return nil
}

// GetBookmark fetches a bookmark by ID.
func (s *Store) GetBookmark(_ context.Context, id string) (bookmark.Bookmark, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bookmarks[id]
	if !ok {
		return bookmark.Bookmark{}, bookmark.ErrNotFound
	}
	return cloneBookmark(b), nil
}

// FindBookmarkByURL fetches the user's bookmark for url.
func (s *Store) FindBookmarkByURL(_ context.Context, userID, url string) (bookmark.Bookmark, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, b := range s.bookmarks {
		if b.UserID == userID && b.URL == url {
			return cloneBookmark(b), nil
		}
	}
	return bookmark.Bookmark{}, bookmark.ErrNotFound
}

// ListBookmarks returns bookmarks matching filter, newest first.
func (s *Store) ListBookmarks(_ context.Context, filter bookmark.ListFilter) ([]bookmark.Bookmark, error) {
	return s.collectBookmarks(func(b bookmark.Bookmark) bool {
		if b.UserID != filter.UserID {
			return false
		}
		return filter.CollectionID == "" || b.CollectionID == filter.CollectionID
	}), nil
}

// SearchBookmarks returns the user's bookmarks matching any term, newest first.
func (s *Store) SearchBookmarks(_ context.Context, userID string, terms []string) ([]bookmark.Bookmark, error) {
	return s.collectBookmarks(func(b bookmark.Bookmark) bool {
		return b.UserID == userID && bookmark.MatchesTerms(b, terms)
	}), nil
}

// UpdateBookmark replaces the stored record with b.
func (s *Store) UpdateBookmark(_ context.Context, b bookmark.Bookmark) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.bookmarks[b.ID]; !ok {
		return bookmark.ErrNotFound
	}
	if s.bookmarkURLTaken(b.UserID, b.URL, b.ID) {
		return bookmark.ErrDuplicate
	}
	s.bookmarks[b.ID] = cloneBookmark(b)
	return nil
}

// DeleteBookmark removes a bookmark by ID.
func (s *Store) DeleteBookmark(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.bookmarks[id]; !ok {
		return bookmark.ErrNotFound
	}
	delete(s.bookmarks, id)
	return nil
}

// UnlinkCollection clears collectionID from every bookmark referencing it.
func (s *Store) UnlinkCollection(_ context.Context, collectionID string, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, b := range s.bookmarks {
		if b.CollectionID != collectionID {
			continue
		}
		b.CollectionID = ""
		b.UpdatedAt = at
		s.bookmarks[id] = b
		n++
	}
	return n, nil
}

// InsertCollection adds c unless its (user, name) pair is taken.
func (s *Store) InsertCollection(_ context.Context, c bookmark.Collection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.collections[c.ID]; exists {
		return bookmark.ErrDuplicate
	}
	if s.collectionNameTaken(c.UserID, c.Name, c.ID) {
		return bookmark.ErrDuplicate
	}
	s.collections[c.ID] = c
	return nil
}

// GetCollection fetches a collection by ID.
func (s *Store) GetCollection(_ context.Context, id string) (bookmark.Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[id]
	if !ok {
		return bookmark.Collection{}, bookmark.ErrNotFound
	}
	return c, nil
}

// FindCollectionByName fetches the user's collection called name.
func (s *Store) FindCollectionByName(_ context.Context, userID, name string) (bookmark.Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.collections {
		if c.UserID == userID && c.Name == name {
			return c, nil
		}
	}
	return bookmark.Collection{}, bookmark.ErrNotFound
}

// ListCollections returns the user's collections ordered by name.
func (s *Store) ListCollections(_ context.Context, userID string) ([]bookmark.Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]bookmark.Collection, 0)
	for _, c := range s.collections {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	slices.SortFunc(out, func(a, b bookmark.Collection) int {
		return strings.Compare(a.Name, b.Name)
	})
	return out, nil
}

// UpdateCollection replaces the stored record with c.
func (s *Store) UpdateCollection(_ context.Context, c bookmark.Collection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[c.ID]; !ok {
		return bookmark.ErrNotFound
	}
	if s.collectionNameTaken(c.UserID, c.Name, c.ID) {
		return bookmark.ErrDuplicate
	}
	s.collections[c.ID] = c
	return nil
}

// DeleteCollection removes a collection by ID.
func (s *Store) DeleteCollection(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[id]; !ok {
		return bookmark.ErrNotFound
	}
	delete(s.collections, id)
	return nil
}

func (s *Store) collectBookmarks(match func(bookmark.Bookmark) bool) []bookmark.Bookmark {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]bookmark.Bookmark, 0)
	for _, b := range s.bookmarks {
		if match(b) {
			out = append(out, cloneBookmark(b))
		}
	}
	slices.SortFunc(out, func(a, b bookmark.Bookmark) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})
	return out
}

// bookmarkURLTaken must be called with the lock held.
func (s *Store) bookmarkURLTaken(userID, url, exceptID string) bool {
	for id, b := range s.bookmarks {
		if id != exceptID && b.UserID == userID && b.URL == url {
			return true
		}
	}
	return false
}

// collectionNameTaken must be called with the lock held.
func (s *Store) collectionNameTaken(userID, name, exceptID string) bool {
	for id, c := range s.collections {
		if id != exceptID && c.UserID == userID && c.Name == name {
			return true
		}
	}
	return false
}

func cloneBookmark(b bookmark.Bookmark) bookmark.Bookmark {
	b.Tags = append([]string{}, b.Tags...)
	return b
}
