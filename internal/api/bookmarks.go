package api

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/bookmarks/internal/bookmark"
)

// createBookmarkRequest accepts the bookmark fields plus a flag asking the
// server to fill blank fields from the page itself.
type createBookmarkRequest struct {
	bookmark.CreateBookmarkInput
	Extract bool `json:"extract"`
}

type metadataRequest struct {
	URL string `json:"url"`
}

func (s *Server) listBookmarks(w http.ResponseWriter, r *http.Request) {
	out, err := s.bookmarks.List(r.Context(), userFrom(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) createBookmark(w http.ResponseWriter, r *http.Request) {
	var req createBookmarkRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx := r.Context()
	user := userFrom(ctx)
	in := req.CreateBookmarkInput
	wantsMetadata := req.Extract || strings.TrimSpace(in.Title) == ""
	if wantsMetadata && s.extractor != nil && strings.TrimSpace(in.URL) != "" {
		s.enrich(ctx, user, &in)
	}
	created, err := s.bookmarks.Create(ctx, user, in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// enrich fills the blank fields of in from the page and archives the page
// body when an archiver is configured. Neither step can fail the request.
func (s *Server) enrich(ctx context.Context, user string, in *bookmark.CreateBookmarkInput) {
	pageURL := strings.TrimSpace(in.URL)
	res := s.extractor.Extract(ctx, pageURL)
	if strings.TrimSpace(in.Title) == "" {
		in.Title = res.Title
	}
	if strings.TrimSpace(in.Description) == "" {
		in.Description = res.Description
	}
	if in.Favicon == "" {
		in.Favicon = res.Favicon
	}
	if in.Thumbnail == "" {
		in.Thumbnail = res.Thumbnail
	}
	if s.archiver == nil || len(res.Body) == 0 {
		return
	}
	uri, err := s.archiver.Save(ctx, user, pageURL, res.Body)
	if err != nil {
		s.logger.Warn("snapshot failed", zap.String("url", pageURL), zap.Error(err))
		return
	}
	in.Snapshot = uri
}

func (s *Server) searchBookmarks(w http.ResponseWriter, r *http.Request) {
	query := chi.URLParam(r, "query")
	// chi matches on RawPath when it is set, leaving the parameter escaped.
	if r.URL.RawPath != "" {
		if unescaped, err := url.PathUnescape(query); err == nil {
			query = unescaped
		}
	}
	if query == "" {
		query = r.URL.Query().Get("q")
	}
	out, err := s.bookmarks.Search(r.Context(), userFrom(r.Context()), query)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getBookmark(w http.ResponseWriter, r *http.Request) {
	b, err := s.bookmarks.Get(r.Context(), userFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) updateBookmark(w http.ResponseWriter, r *http.Request) {
	var patch bookmark.BookmarkPatch
	if err := decodeJSON(r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	b, err := s.bookmarks.Update(r.Context(), userFrom(r.Context()), chi.URLParam(r, "id"), patch)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) deleteBookmark(w http.ResponseWriter, r *http.Request) {
	if err := s.bookmarks.Delete(r.Context(), userFrom(r.Context()), chi.URLParam(r, "id")); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "bookmark removed"})
}

func (s *Server) extractMetadata(w http.ResponseWriter, r *http.Request) {
	if s.extractor == nil {
		writeError(w, http.StatusServiceUnavailable, "metadata extraction disabled")
		return
	}
	var req metadataRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		writeError(w, http.StatusBadRequest, "url required")
		return
	}
	writeJSON(w, http.StatusOK, s.extractor.Extract(r.Context(), strings.TrimSpace(req.URL)))
}
