package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/bookmarks/internal/bookmark"
	"github.com/JakeFAU/bookmarks/internal/config"
	"github.com/JakeFAU/bookmarks/internal/metadata"
	"github.com/JakeFAU/bookmarks/internal/metrics"
)

const (
	defaultUserHeader = "X-User-ID"
	requestTimeout    = 60 * time.Second
)

// BookmarkStore is the bookmark surface the handlers depend on.
type BookmarkStore interface {
	List(ctx context.Context, userID string) ([]bookmark.Bookmark, error)
	Create(ctx context.Context, userID string, in bookmark.CreateBookmarkInput) (bookmark.Bookmark, error)
	Get(ctx context.Context, userID, id string) (bookmark.Bookmark, error)
	Update(ctx context.Context, userID, id string, patch bookmark.BookmarkPatch) (bookmark.Bookmark, error)
	Delete(ctx context.Context, userID, id string) error
	Search(ctx context.Context, userID, query string) ([]bookmark.Bookmark, error)
}

// CollectionStore is the collection surface the handlers depend on.
type CollectionStore interface {
	List(ctx context.Context, userID string) ([]bookmark.Collection, error)
	Create(ctx context.Context, userID string, in bookmark.CreateCollectionInput) (bookmark.Collection, error)
	Get(ctx context.Context, userID, id string) (bookmark.Collection, error)
	Update(ctx context.Context, userID, id string, patch bookmark.CollectionPatch) (bookmark.Collection, error)
	Delete(ctx context.Context, userID, id string) error
	ListBookmarks(ctx context.Context, userID, collectionID string) ([]bookmark.Bookmark, error)
}

// Archiver stores a snapshot of a page and returns its URI.
type Archiver interface {
	Save(ctx context.Context, userID, pageURL string, body []byte) (string, error)
}

// Pinger reports whether a downstream dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependencies lists the collaborators of a Server. Extractor, Archiver and
// Ready are optional.
type Dependencies struct {
	Bookmarks   BookmarkStore
	Collections CollectionStore
	Extractor   metadata.Source
	Archiver    Archiver
	Ready       Pinger
}

// Server wires HTTP handlers to the bookmark and collection stores.
type Server struct {
	router      chi.Router
	bookmarks   BookmarkStore
	collections CollectionStore
	extractor   metadata.Source
	archiver    Archiver
	ready       Pinger
	userHeader  string
	logger      *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(deps Dependencies, cfg config.AuthConfig, logger *zap.Logger) (*Server, error) {
	if deps.Bookmarks == nil || deps.Collections == nil {
		return nil, errors.New("bookmark and collection stores are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		bookmarks:   deps.Bookmarks,
		collections: deps.Collections,
		extractor:   deps.Extractor,
		archiver:    deps.Archiver,
		ready:       deps.Ready,
		userHeader:  cfg.UserHeader,
		logger:      logger,
	}
	if s.userHeader == "" {
		s.userHeader = defaultUserHeader
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(requestTimeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if cfg.Enabled {
			r.Use(apiKeyMiddleware(cfg.APIKey))
		}
		r.Use(identityMiddleware(s.userHeader))

		r.Route("/bookmarks", func(r chi.Router) {
			r.Get("/", s.listBookmarks)
			r.Post("/", s.createBookmark)
			r.Get("/search", s.searchBookmarks)
			r.Get("/search/{query}", s.searchBookmarks)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.getBookmark)
				r.Put("/", s.updateBookmark)
				r.Delete("/", s.deleteBookmark)
			})
		})
		r.Route("/collections", func(r chi.Router) {
			r.Get("/", s.listCollections)
			r.Post("/", s.createCollection)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.getCollection)
				r.Put("/", s.updateCollection)
				r.Delete("/", s.deleteCollection)
				r.Get("/bookmarks", s.listCollectionBookmarks)
			})
		})
		r.Post("/metadata", s.extractMetadata)
	})

	s.router = r
	return s, nil
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready.Ping(ctx); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// fail maps a store error onto a response. Anything that is not a known
// outcome is logged and reported as a bare server error.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", requestIDFrom(r.Context())),
			zap.Error(err),
		)
		writeError(w, status, "server error")
		return
	}
	writeError(w, status, err.Error())
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, bookmark.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, bookmark.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, bookmark.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, bookmark.ErrDuplicate):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errors.New("invalid JSON")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
