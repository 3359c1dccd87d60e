package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/bookmarks/internal/bookmark"
)

const collectionColumns = `id::text, user_id, name, description, color, created_at`

// InsertCollection stores a new collection row.
func (s *Store) InsertCollection(ctx context.Context, c bookmark.Collection) (err error) {
	defer func(start time.Time) { observe("insert_collection", start, err) }(time.Now())
	_, err = s.pool.Exec(ctx,
		`INSERT INTO collections (id, user_id, name, description, color, created_at) VALUES ($1,$2,$3,$4,$5,$6)`,
		c.ID, c.UserID, c.Name, c.Description, c.Color, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert collection: %w", translate(err))
	}
	return nil
}

// GetCollection loads a collection by id.
func (s *Store) GetCollection(ctx context.Context, id string) (c bookmark.Collection, err error) {
	defer func(start time.Time) { observe("get_collection", start, err) }(time.Now())
	c, err = scanCollection(s.pool.QueryRow(ctx,
		`SELECT `+collectionColumns+` FROM collections WHERE id = $1`, id))
	if err != nil {
		return bookmark.Collection{}, fmt.Errorf("get collection: %w", translate(err))
	}
	return c, nil
}

// FindCollectionByName loads the user's collection called name.
func (s *Store) FindCollectionByName(ctx context.Context, userID, name string) (c bookmark.Collection, err error) {
	defer func(start time.Time) { observe("find_collection", start, err) }(time.Now())
	c, err = scanCollection(s.pool.QueryRow(ctx,
		`SELECT `+collectionColumns+` FROM collections WHERE user_id = $1 AND name = $2`, userID, name))
	if err != nil {
		return bookmark.Collection{}, fmt.Errorf("find collection: %w", translate(err))
	}
	return c, nil
}

// ListCollections returns the user's collections ordered by name.
func (s *Store) ListCollections(ctx context.Context, userID string) (out []bookmark.Collection, err error) {
	defer func(start time.Time) { observe("list_collections", start, err) }(time.Now())
	rows, err := s.pool.Query(ctx,
		`SELECT `+collectionColumns+` FROM collections WHERE user_id = $1 ORDER BY name ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", translate(err))
	}
	defer rows.Close()
	out = []bookmark.Collection{}
	for rows.Next() {
		c, err := scanCollection(rows)
		if err != nil {
			return nil, fmt.Errorf("scan collection: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list collections: %w", translate(err))
	}
	return out, nil
}

// UpdateCollection overwrites name, description and color.
func (s *Store) UpdateCollection(ctx context.Context, c bookmark.Collection) (err error) {
	defer func(start time.Time) { observe("update_collection", start, err) }(time.Now())
	tag, err := s.pool.Exec(ctx,
		`UPDATE collections SET name = $2, description = $3, color = $4 WHERE id = $1`,
		c.ID, c.Name, c.Description, c.Color)
	if err != nil {
		return fmt.Errorf("update collection: %w", translate(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update collection %s: %w", c.ID, bookmark.ErrNotFound)
	}
	return nil
}

// DeleteCollection removes a collection row. The foreign key clears any
// bookmark reference the caller did not unlink first.
func (s *Store) DeleteCollection(ctx context.Context, id string) (err error) {
	defer func(start time.Time) { observe("delete_collection", start, err) }(time.Now())
	tag, err := s.pool.Exec(ctx, `DELETE FROM collections WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete collection: %w", translate(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete collection %s: %w", id, bookmark.ErrNotFound)
	}
	return nil
}

func scanCollection(row pgx.Row) (bookmark.Collection, error) {
	var c bookmark.Collection
	if err := row.Scan(&c.ID, &c.UserID, &c.Name, &c.Description, &c.Color, &c.CreatedAt); err != nil {
		return bookmark.Collection{}, err
	}
	c.CreatedAt = c.CreatedAt.UTC()
	return c, nil
}
