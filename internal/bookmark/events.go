package bookmark

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// EventType names a lifecycle change.
type EventType string

// Lifecycle events published after a successful mutation.
const (
	EventBookmarkCreated   EventType = "bookmark.created"
	EventBookmarkUpdated   EventType = "bookmark.updated"
	EventBookmarkDeleted   EventType = "bookmark.deleted"
	EventCollectionCreated EventType = "collection.created"
	EventCollectionUpdated EventType = "collection.updated"
	EventCollectionDeleted EventType = "collection.deleted"
)

// Event is the payload published for every mutation.
type Event struct {
	Type   EventType `json:"type"`
	UserID string    `json:"user"`
	ID     string    `json:"id"`
	At     time.Time `json:"at"`
}

// eventSink publishes events without ever failing the caller.
type eventSink struct {
	publisher Publisher
	topic     string
	logger    *zap.Logger
}

func (s eventSink) emit(ctx context.Context, typ EventType, userID, id string, at time.Time) {
	if s.publisher == nil {
		return
	}
	evt := Event{Type: typ, UserID: userID, ID: id, At: at}
	if _, err := s.publisher.Publish(ctx, s.topic, evt); err != nil {
		s.logger.Warn("publish event failed",
			zap.String("type", string(typ)),
			zap.String("id", id),
			zap.Error(err),
		)
	}
}

// Attributes exposes routing attributes for brokers that support filtering.
func (e Event) Attributes() map[string]string {
	return map[string]string{"type": string(e.Type), "user": e.UserID}
}
