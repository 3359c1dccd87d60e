package bookmark

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// CollectionService implements the collection operations scoped to an owning user.
type CollectionService struct {
	bookmarks   BookmarkRepository
	collections CollectionRepository
	ids         IDGenerator
	clock       Clock
	events      eventSink
	validator   inputValidator
	logger      *zap.Logger
}

// NewCollectionService constructs a CollectionService.
func NewCollectionService(deps Dependencies) (*CollectionService, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	logger := deps.logger()
	return &CollectionService{
		bookmarks:   deps.Bookmarks,
		collections: deps.Collections,
		ids:         deps.IDs,
		clock:       deps.Clock,
		events:      eventSink{publisher: deps.Publisher, topic: deps.Topic, logger: logger},
		validator:   newInputValidator(),
		logger:      logger,
	}, nil
}

// List returns the caller's collections ordered by name.
func (s *CollectionService) List(ctx context.Context, userID string) ([]Collection, error) {
	out, err := s.collections.ListCollections(ctx, userID)
	if err != nil {
		return nil, storageErr("list collections", err)
	}
	return nonNil(out), nil
}

// Create stores a new collection; (user, name) must be unique.
func (s *CollectionService) Create(ctx context.Context, userID string, in CreateCollectionInput) (Collection, error) {
	if strings.TrimSpace(userID) == "" {
		return Collection{}, validationErr("user is required")
	}
	in.Name = strings.TrimSpace(in.Name)
	in.Color = strings.TrimSpace(in.Color)
	if err := s.validator.check(in); err != nil {
		return Collection{}, err
	}
	if err := s.ensureNameFree(ctx, userID, in.Name); err != nil {
		return Collection{}, err
	}
	id, err := s.ids.NewID()
	if err != nil {
		return Collection{}, fmt.Errorf("generate collection id: %w", err)
	}
	color := in.Color
	if color == "" {
		color = DefaultCollectionColor
	}
	c := Collection{
		ID:          id,
		UserID:      userID,
		Name:        in.Name,
		Description: in.Description,
		Color:       color,
		CreatedAt:   s.clock.Now(),
	}
	if err := s.collections.InsertCollection(ctx, c); err != nil {
		return Collection{}, storageErr("insert collection", err)
	}
	s.events.emit(ctx, EventCollectionCreated, userID, c.ID, c.CreatedAt)
	return c, nil
}

// Get loads a collection the caller owns.
func (s *CollectionService) Get(ctx context.Context, userID, id string) (Collection, error) {
	c, err := s.collections.GetCollection(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Collection{}, fmt.Errorf("collection %s: %w", id, ErrNotFound)
		}
		return Collection{}, storageErr("get collection", err)
	}
	if c.UserID != userID {
		return Collection{}, fmt.Errorf("collection %s: %w", id, ErrUnauthorized)
	}
	return c, nil
}

// Update applies patch to a collection the caller owns. Absent and empty values
// keep the stored value.
func (s *CollectionService) Update(ctx context.Context, userID, id string, patch CollectionPatch) (Collection, error) {
	c, err := s.Get(ctx, userID, id)
	if err != nil {
		return Collection{}, err
	}
	if v := trimmed(patch.Color); v != "" {
		if err := s.validator.validate.Var(v, "hexcolor"); err != nil {
			return Collection{}, validationErr("color must be a hex color")
		}
		c.Color = v
	}
	if v := trimmed(patch.Name); v != "" && v != c.Name {
		if err := s.ensureNameFree(ctx, userID, v); err != nil {
			return Collection{}, err
		}
		c.Name = v
	}
	if patch.Description != nil && *patch.Description != "" {
		c.Description = *patch.Description
	}
	if err := s.collections.UpdateCollection(ctx, c); err != nil {
		return Collection{}, storageErr("update collection", err)
	}
	s.events.emit(ctx, EventCollectionUpdated, userID, c.ID, s.clock.Now())
	return c, nil
}

// Delete unlinks every bookmark from the collection, then removes it.
func (s *CollectionService) Delete(ctx context.Context, userID, id string) error {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return err
	}
	now := s.clock.Now()
	unlinked, err := s.bookmarks.UnlinkCollection(ctx, id, now)
	if err != nil {
		return storageErr("unlink collection", err)
	}
	if err := s.collections.DeleteCollection(ctx, id); err != nil {
		return storageErr("delete collection", err)
	}
	s.logger.Debug("collection deleted", zap.String("id", id), zap.Int64("unlinked", unlinked))
	s.events.emit(ctx, EventCollectionDeleted, userID, id, now)
	return nil
}

// ListBookmarks returns the caller's bookmarks in collectionID, newest first.
// A collection the caller does not own is reported as ErrNotFound.
func (s *CollectionService) ListBookmarks(ctx context.Context, userID, collectionID string) ([]Bookmark, error) {
	c, err := s.collections.GetCollection(ctx, collectionID)
	switch {
	case errors.Is(err, ErrNotFound), err == nil && c.UserID != userID:
		return nil, fmt.Errorf("collection %s: %w", collectionID, ErrNotFound)
	case err != nil:
		return nil, storageErr("get collection", err)
	}
	out, err := s.bookmarks.ListBookmarks(ctx, ListFilter{UserID: userID, CollectionID: collectionID})
	if err != nil {
		return nil, storageErr("list collection bookmarks", err)
	}
	return nonNil(out), nil
}

func (s *CollectionService) ensureNameFree(ctx context.Context, userID, name string) error {
	_, err := s.collections.FindCollectionByName(ctx, userID, name)
	switch {
	case err == nil:
		return fmt.Errorf("collection %q: %w", name, ErrDuplicate)
	case errors.Is(err, ErrNotFound):
		return nil
	default:
		return storageErr("find collection", err)
	}
}
