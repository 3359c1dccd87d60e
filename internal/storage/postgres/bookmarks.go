package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/bookmarks/internal/bookmark"
)

const bookmarkColumns = `id::text, user_id, url, title, description, tags,
	COALESCE(collection_id::text, ''), favicon, thumbnail, snapshot, created_at, updated_at`

// InsertBookmark stores a new bookmark row.
func (s *Store) InsertBookmark(ctx context.Context, b bookmark.Bookmark) (err error) {
	defer func(start time.Time) { observe("insert_bookmark", start, err) }(time.Now())
	query := `
INSERT INTO bookmarks (
	id, user_id, url, title, description, tags, collection_id,
	favicon, thumbnail, snapshot, created_at, updated_at, search
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,to_tsvector('simple', $13)
)`
	_, err = s.pool.Exec(ctx, query,
		b.ID,
		b.UserID,
		b.URL,
		b.Title,
		b.Description,
		tagsOrEmpty(b.Tags),
		nullable(b.CollectionID),
		b.Favicon,
		b.Thumbnail,
		b.Snapshot,
		b.CreatedAt,
		b.UpdatedAt,
		searchDocument(b),
	)
	if err != nil {
		return fmt.Errorf("insert bookmark: %w", translate(err))
	}
	return nil
}

// GetBookmark loads a bookmark by id.
func (s *Store) GetBookmark(ctx context.Context, id string) (b bookmark.Bookmark, err error) {
	defer func(start time.Time) { observe("get_bookmark", start, err) }(time.Now())
	row := s.pool.QueryRow(ctx, `SELECT `+bookmarkColumns+` FROM bookmarks WHERE id = $1`, id)
	b, err = scanBookmark(row)
	if err != nil {
		return bookmark.Bookmark{}, fmt.Errorf("get bookmark: %w", translate(err))
	}
	return b, nil
}

// FindBookmarkByURL loads the user's bookmark for url.
func (s *Store) FindBookmarkByURL(ctx context.Context, userID, url string) (b bookmark.Bookmark, err error) {
	defer func(start time.Time) { observe("find_bookmark", start, err) }(time.Now())
	row := s.pool.QueryRow(ctx,
		`SELECT `+bookmarkColumns+` FROM bookmarks WHERE user_id = $1 AND url = $2`, userID, url)
	b, err = scanBookmark(row)
	if err != nil {
		return bookmark.Bookmark{}, fmt.Errorf("find bookmark: %w", translate(err))
	}
	return b, nil
}

// ListBookmarks returns the filter's bookmarks, newest first.
func (s *Store) ListBookmarks(ctx context.Context, filter bookmark.ListFilter) (out []bookmark.Bookmark, err error) {
	defer func(start time.Time) { observe("list_bookmarks", start, err) }(time.Now())
	query := `SELECT ` + bookmarkColumns + ` FROM bookmarks WHERE user_id = $1`
	args := []any{filter.UserID}
	if filter.CollectionID != "" {
		query += ` AND collection_id = $2`
		args = append(args, filter.CollectionID)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	out, err = s.queryBookmarks(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list bookmarks: %w", err)
	}
	return out, nil
}

// SearchBookmarks matches any term against the indexed title, description and tags.
func (s *Store) SearchBookmarks(ctx context.Context, userID string, terms []string) (out []bookmark.Bookmark, err error) {
	defer func(start time.Time) { observe("search_bookmarks", start, err) }(time.Now())
	if len(terms) == 0 {
		return []bookmark.Bookmark{}, nil
	}
	query := `SELECT ` + bookmarkColumns + ` FROM bookmarks
WHERE user_id = $1 AND search @@ to_tsquery('simple', $2)
ORDER BY created_at DESC, id DESC`
	out, err = s.queryBookmarks(ctx, query, userID, tsQuery(terms))
	if err != nil {
		return nil, fmt.Errorf("search bookmarks: %w", err)
	}
	return out, nil
}

// UpdateBookmark overwrites the mutable columns of an existing row.
func (s *Store) UpdateBookmark(ctx context.Context, b bookmark.Bookmark) (err error) {
	defer func(start time.Time) { observe("update_bookmark", start, err) }(time.Now())
	query := `
UPDATE bookmarks SET
	title = $2,
	description = $3,
	tags = $4,
	collection_id = $5,
	favicon = $6,
	thumbnail = $7,
	snapshot = $8,
	updated_at = $9,
	search = to_tsvector('simple', $10)
WHERE id = $1`
	tag, err := s.pool.Exec(ctx, query,
		b.ID,
		b.Title,
		b.Description,
		tagsOrEmpty(b.Tags),
		nullable(b.CollectionID),
		b.Favicon,
		b.Thumbnail,
		b.Snapshot,
		b.UpdatedAt,
		searchDocument(b),
	)
	if err != nil {
		return fmt.Errorf("update bookmark: %w", translate(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update bookmark %s: %w", b.ID, bookmark.ErrNotFound)
	}
	return nil
}

// DeleteBookmark removes a row by id.
func (s *Store) DeleteBookmark(ctx context.Context, id string) (err error) {
	defer func(start time.Time) { observe("delete_bookmark", start, err) }(time.Now())
	tag, err := s.pool.Exec(ctx, `DELETE FROM bookmarks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete bookmark: %w", translate(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete bookmark %s: %w", id, bookmark.ErrNotFound)
	}
	return nil
}

// UnlinkCollection clears collection_id on every bookmark in the collection.
func (s *Store) UnlinkCollection(ctx context.Context, collectionID string, at time.Time) (n int64, err error) {
	defer func(start time.Time) { observe("unlink_collection", start, err) }(time.Now())
	tag, err := s.pool.Exec(ctx,
		`UPDATE bookmarks SET collection_id = NULL, updated_at = $2 WHERE collection_id = $1`,
		collectionID, at)
	if err != nil {
		return 0, fmt.Errorf("unlink collection: %w", translate(err))
	}
	return tag.RowsAffected(), nil
}

func (s *Store) queryBookmarks(ctx context.Context, query string, args ...any) ([]bookmark.Bookmark, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()
	out := []bookmark.Bookmark{}
	for rows.Next() {
		b, err := scanBookmark(rows)
		if err != nil {
			return nil, fmt.Errorf("scan bookmark: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, translate(err)
	}
	return out, nil
}

func scanBookmark(row pgx.Row) (bookmark.Bookmark, error) {
	var b bookmark.Bookmark
	err := row.Scan(
		&b.ID,
		&b.UserID,
		&b.URL,
		&b.Title,
		&b.Description,
		&b.Tags,
		&b.CollectionID,
		&b.Favicon,
		&b.Thumbnail,
		&b.Snapshot,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		return bookmark.Bookmark{}, err
	}
	b.CreatedAt = b.CreatedAt.UTC()
	b.UpdatedAt = b.UpdatedAt.UTC()
	return b, nil
}

func tagsOrEmpty(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
