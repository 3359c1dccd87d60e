package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/bookmarks/internal/bookmark"
)

var (
	bookmarkCols = []string{
		"id", "user_id", "url", "title", "description", "tags",
		"collection_id", "favicon", "thumbnail", "snapshot", "created_at", "updated_at",
	}
	collectionCols = []string{"id", "user_id", "name", "description", "color", "created_at"}
)

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	store, err := NewStoreWithPool(mock)
	require.NoError(t, err)
	return store, mock
}

func TestNewStoreWithPoolRequiresPool(t *testing.T) {
	t.Parallel()

	_, err := NewStoreWithPool(nil)
	require.Error(t, err)
}

func TestNewRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), Config{})
	require.Error(t, err)
}

func TestEnsureSchemaAppliesEmbeddedDDL(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS collections").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertBookmarkWritesRow(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	now := time.Unix(1700000000, 0).UTC()
	b := bookmark.Bookmark{
		ID:        "0190a6a4-0000-7000-8000-000000000001",
		UserID:    "u1",
		URL:       "https://example.com",
		Title:     "Example Domain",
		Tags:      []string{"ref", "Docs"},
		CreatedAt: now,
		UpdatedAt: now,
	}

	mock.ExpectExec("INSERT INTO bookmarks").
		WithArgs(
			b.ID, b.UserID, b.URL, b.Title, "", b.Tags, (*string)(nil),
			"", "", "", now, now, "example domain ref docs",
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.InsertBookmark(context.Background(), b))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertBookmarkUniqueViolation(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec("INSERT INTO bookmarks").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "bookmarks_user_id_url_key"})

	err := store.InsertBookmark(context.Background(), bookmark.Bookmark{ID: "x", UserID: "u1", URL: "https://a.com"})
	require.ErrorIs(t, err, bookmark.ErrDuplicate)
}

func TestGetBookmarkScansRow(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	created := time.Unix(1700000000, 0).UTC()
	rows := pgxmock.NewRows(bookmarkCols).AddRow(
		"b1", "u1", "https://a.com", "A", "desc", []string{"x"},
		"c1", "https://a.com/favicon.ico", "", "", created, created,
	)
	mock.ExpectQuery("SELECT (.+) FROM bookmarks WHERE id").WithArgs("b1").WillReturnRows(rows)

	got, err := store.GetBookmark(context.Background(), "b1")
	require.NoError(t, err)
	require.Equal(t, "c1", got.CollectionID)
	require.Equal(t, []string{"x"}, got.Tags)
	require.Equal(t, created, got.CreatedAt)
}

func TestGetBookmarkNotFound(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
	}{
		{name: "no rows", err: pgx.ErrNoRows},
		{name: "malformed id", err: &pgconn.PgError{Code: "22P02"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store, mock := newMockStore(t)
			mock.ExpectQuery("SELECT (.+) FROM bookmarks WHERE id").WithArgs("nope").WillReturnError(tc.err)

			_, err := store.GetBookmark(context.Background(), "nope")
			require.ErrorIs(t, err, bookmark.ErrNotFound)
		})
	}
}

func TestListBookmarksFiltersByCollection(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	now := time.Unix(1700000000, 0).UTC()
	rows := pgxmock.NewRows(bookmarkCols).
		AddRow("b2", "u1", "https://b.com", "B", "", []string{}, "c1", "", "", "", now.Add(time.Minute), now).
		AddRow("b1", "u1", "https://a.com", "A", "", []string{}, "c1", "", "", "", now, now)
	mock.ExpectQuery("FROM bookmarks WHERE user_id = \\$1 AND collection_id = \\$2 ORDER BY created_at DESC").
		WithArgs("u1", "c1").
		WillReturnRows(rows)

	got, err := store.ListBookmarks(context.Background(), bookmark.ListFilter{UserID: "u1", CollectionID: "c1"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "b2", got[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSearchBookmarksBuildsOrQuery(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("search @@ to_tsquery").
		WithArgs("u1", "golang | rust").
		WillReturnRows(pgxmock.NewRows(bookmarkCols))

	got, err := store.SearchBookmarks(context.Background(), "u1", []string{"golang", "rust"})
	require.NoError(t, err)
	require.Empty(t, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSearchBookmarksWithoutTermsSkipsQuery(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	got, err := store.SearchBookmarks(context.Background(), "u1", nil)
	require.NoError(t, err)
	require.Empty(t, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateBookmarkMissingRow(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec("UPDATE bookmarks SET").WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := store.UpdateBookmark(context.Background(), bookmark.Bookmark{ID: "b1"})
	require.ErrorIs(t, err, bookmark.ErrNotFound)
}

func TestDeleteBookmark(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec("DELETE FROM bookmarks").WithArgs("b1").WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec("DELETE FROM bookmarks").WithArgs("b1").WillReturnResult(pgxmock.NewResult("DELETE", 0))

	require.NoError(t, store.DeleteBookmark(context.Background(), "b1"))
	require.ErrorIs(t, store.DeleteBookmark(context.Background(), "b1"), bookmark.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUnlinkCollectionReportsAffectedRows(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	at := time.Unix(1700000000, 0).UTC()
	mock.ExpectExec("UPDATE bookmarks SET collection_id = NULL").
		WithArgs("c1", at).
		WillReturnResult(pgxmock.NewResult("UPDATE", 3))

	n, err := store.UnlinkCollection(context.Background(), "c1", at)
	require.NoError(t, err)
	require.EqualValues(t, 3, n)
}

func TestCollectionRoundTrip(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	now := time.Unix(1700000000, 0).UTC()
	c := bookmark.Collection{ID: "c1", UserID: "u1", Name: "work", Color: "#3498db", CreatedAt: now}

	mock.ExpectExec("INSERT INTO collections").
		WithArgs(c.ID, c.UserID, c.Name, c.Description, c.Color, c.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery("FROM collections WHERE user_id = \\$1 ORDER BY name").
		WithArgs("u1").
		WillReturnRows(pgxmock.NewRows(collectionCols).AddRow(c.ID, c.UserID, c.Name, "", c.Color, now))
	mock.ExpectQuery("FROM collections WHERE user_id = \\$1 AND name = \\$2").
		WithArgs("u1", "home").
		WillReturnError(pgx.ErrNoRows)

	ctx := context.Background()
	require.NoError(t, store.InsertCollection(ctx, c))
	list, err := store.ListCollections(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, []bookmark.Collection{c}, list)
	_, err = store.FindCollectionByName(ctx, "u1", "home")
	require.ErrorIs(t, err, bookmark.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteCollectionMissingRow(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec("DELETE FROM collections").WithArgs("c1").WillReturnResult(pgxmock.NewResult("DELETE", 0))

	require.ErrorIs(t, store.DeleteCollection(context.Background(), "c1"), bookmark.ErrNotFound)
}

func TestDriverErrorsPassThrough(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	boom := errors.New("connection reset")
	mock.ExpectQuery("FROM collections WHERE id").WillReturnError(boom)

	_, err := store.GetCollection(context.Background(), "c1")
	require.ErrorIs(t, err, boom)
	require.NotErrorIs(t, err, bookmark.ErrNotFound)
}

func TestSearchDocumentTokenizesFields(t *testing.T) {
	t.Parallel()

	doc := searchDocument(bookmark.Bookmark{Title: "Go, Go!", Description: "rust-lang", Tags: []string{"Web Dev"}})
	require.Equal(t, "go rust lang web dev", doc)
}
