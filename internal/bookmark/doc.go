// Package bookmark holds the domain model of the bookmark service: bookmarks,
// collections, the error taxonomy and the two stores that enforce per-user
// uniqueness and ownership on top of an injected repository. It must not import
// database drivers or HTTP packages; implementations live under internal/storage.
package bookmark
