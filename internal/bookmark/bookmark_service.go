package bookmark

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Dependencies wires a service to its collaborators.
type Dependencies struct {
	Bookmarks   BookmarkRepository
	Collections CollectionRepository
	IDs         IDGenerator
	Clock       Clock
	// Publisher is optional; when nil no events are emitted.
	Publisher Publisher
	Topic     string
	Logger    *zap.Logger
}

func (d Dependencies) validate() error {
	switch {
	case d.Bookmarks == nil:
		return errors.New("bookmark repository is required")
	case d.Collections == nil:
		return errors.New("collection repository is required")
	case d.IDs == nil:
		return errors.New("id generator is required")
	case d.Clock == nil:
		return errors.New("clock is required")
	}
	return nil
}

func (d Dependencies) logger() *zap.Logger {
	if d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger
}

// BookmarkService implements the bookmark operations scoped to an owning user.
type BookmarkService struct {
	bookmarks   BookmarkRepository
	collections CollectionRepository
	ids         IDGenerator
	clock       Clock
	events      eventSink
	validator   inputValidator
	logger      *zap.Logger
}

// NewBookmarkService constructs a BookmarkService.
func NewBookmarkService(deps Dependencies) (*BookmarkService, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	logger := deps.logger()
	return &BookmarkService{
		bookmarks:   deps.Bookmarks,
		collections: deps.Collections,
		ids:         deps.IDs,
		clock:       deps.Clock,
		events:      eventSink{publisher: deps.Publisher, topic: deps.Topic, logger: logger},
		validator:   newInputValidator(),
		logger:      logger,
	}, nil
}

// List returns every bookmark owned by userID, newest first.
func (s *BookmarkService) List(ctx context.Context, userID string) ([]Bookmark, error) {
	out, err := s.bookmarks.ListBookmarks(ctx, ListFilter{UserID: userID})
	if err != nil {
		return nil, storageErr("list bookmarks", err)
	}
	return nonNil(out), nil
}

// Create stores a new bookmark. A second bookmark for the same (user, url)
// fails with ErrDuplicate, whether caught by the pre-check or by the storage
// uniqueness constraint.
func (s *BookmarkService) Create(ctx context.Context, userID string, in CreateBookmarkInput) (Bookmark, error) {
	if strings.TrimSpace(userID) == "" {
		return Bookmark{}, validationErr("user is required")
	}
	in.URL = strings.TrimSpace(in.URL)
	in.Title = strings.TrimSpace(in.Title)
	in.CollectionID = strings.TrimSpace(in.CollectionID)
	if err := s.validator.check(in); err != nil {
		return Bookmark{}, err
	}
	if in.CollectionID != "" {
		if err := s.checkCollection(ctx, userID, in.CollectionID); err != nil {
			return Bookmark{}, err
		}
	}

	_, err := s.bookmarks.FindBookmarkByURL(ctx, userID, in.URL)
	switch {
	case err == nil:
		return Bookmark{}, fmt.Errorf("bookmark %q: %w", in.URL, ErrDuplicate)
	case !errors.Is(err, ErrNotFound):
		return Bookmark{}, storageErr("find bookmark", err)
	}

	id, err := s.ids.NewID()
	if err != nil {
		return Bookmark{}, fmt.Errorf("generate bookmark id: %w", err)
	}
	now := s.clock.Now()
	b := Bookmark{
		ID:           id,
		UserID:       userID,
		URL:          in.URL,
		Title:        in.Title,
		Description:  in.Description,
		Tags:         NormalizeTags(in.Tags),
		CollectionID: in.CollectionID,
		Favicon:      in.Favicon,
		Thumbnail:    in.Thumbnail,
		Snapshot:     in.Snapshot,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.bookmarks.InsertBookmark(ctx, b); err != nil {
		return Bookmark{}, storageErr("insert bookmark", err)
	}
	s.logger.Debug("bookmark created", zap.String("id", b.ID), zap.String("user", userID))
	s.events.emit(ctx, EventBookmarkCreated, userID, b.ID, now)
	return b, nil
}

// Get loads a bookmark the caller owns.
func (s *BookmarkService) Get(ctx context.Context, userID, id string) (Bookmark, error) {
	b, err := s.bookmarks.GetBookmark(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Bookmark{}, fmt.Errorf("bookmark %s: %w", id, ErrNotFound)
		}
		return Bookmark{}, storageErr("get bookmark", err)
	}
	if b.UserID != userID {
		return Bookmark{}, fmt.Errorf("bookmark %s: %w", id, ErrUnauthorized)
	}
	return b, nil
}

// Update applies patch to a bookmark the caller owns. Absent and empty values
// keep the stored value; updated_at is always refreshed.
func (s *BookmarkService) Update(ctx context.Context, userID, id string, patch BookmarkPatch) (Bookmark, error) {
	b, err := s.Get(ctx, userID, id)
	if err != nil {
		return Bookmark{}, err
	}
	if v := trimmed(patch.Title); v != "" {
		b.Title = v
	}
	if patch.Description != nil && *patch.Description != "" {
		b.Description = *patch.Description
	}
	if patch.Tags != nil {
		if tags := NormalizeTags(*patch.Tags); len(tags) > 0 {
			b.Tags = tags
		}
	}
	if v := trimmed(patch.CollectionID); v != "" && v != b.CollectionID {
		if err := s.checkCollection(ctx, userID, v); err != nil {
			return Bookmark{}, err
		}
		b.CollectionID = v
	}
	b.UpdatedAt = s.clock.Now()
	if err := s.bookmarks.UpdateBookmark(ctx, b); err != nil {
		return Bookmark{}, storageErr("update bookmark", err)
	}
	s.events.emit(ctx, EventBookmarkUpdated, userID, b.ID, b.UpdatedAt)
	return b, nil
}

// Delete removes a bookmark the caller owns.
func (s *BookmarkService) Delete(ctx context.Context, userID, id string) error {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return err
	}
	if err := s.bookmarks.DeleteBookmark(ctx, id); err != nil {
		return storageErr("delete bookmark", err)
	}
	s.events.emit(ctx, EventBookmarkDeleted, userID, id, s.clock.Now())
	return nil
}

// Search returns the caller's bookmarks matching any token of query, newest first.
func (s *BookmarkService) Search(ctx context.Context, userID, query string) ([]Bookmark, error) {
	terms := SearchTerms(query)
	if len(terms) == 0 {
		return []Bookmark{}, nil
	}
	out, err := s.bookmarks.SearchBookmarks(ctx, userID, terms)
	if err != nil {
		return nil, storageErr("search bookmarks", err)
	}
	return nonNil(out), nil
}

// checkCollection requires collectionID to name one of userID's collections.
func (s *BookmarkService) checkCollection(ctx context.Context, userID, collectionID string) error {
	c, err := s.collections.GetCollection(ctx, collectionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return validationErr("collection %s does not exist", collectionID)
		}
		return storageErr("get collection", err)
	}
	if c.UserID != userID {
		return validationErr("collection %s does not exist", collectionID)
	}
	return nil
}

func trimmed(p *string) string {
	if p == nil {
		return ""
	}
	return strings.TrimSpace(*p)
}

func nonNil[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
