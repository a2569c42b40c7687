// Package realtime pushes server events to connected browsers over websockets,
// optionally fanned out across instances through Redis pub/sub.
package realtime

import (
	"context"
	"encoding/json"
	"log"
)

// Event types pushed to clients
const (
	EventSubmissionUpdated  = "submission.updated"
	EventLessonProgress     = "lesson.progress"
	EventLevelUp            = "profile.level_up"
	EventLeaderboardUpdated = "leaderboard.updated"
)

// Event is a message for a set of connected clients. With no UserID and no
// OrganizationCode it is delivered to everyone.
type Event struct {
	Type             string          `json:"type"`
	UserID           int64           `json:"user_id,omitempty"`
	OrganizationCode string          `json:"organization_code,omitempty"`
	Data             json.RawMessage `json:"data,omitempty"`
}

// NewEvent builds an event with data encoded as JSON
func NewEvent(eventType string, data any) Event {
	evt := Event{Type: eventType}
	if data == nil {
		return evt
	}
	raw, err := json.Marshal(data)
	if err != nil {
		log.Printf("Error marshaling %s event data: %v", eventType, err)
		return evt
	}
	evt.Data = raw
	return evt
}

// ForUser addresses the event to a single user
func (e Event) ForUser(userID int64) Event {
	e.UserID = userID
	return e
}

// ForOrganization addresses the event to the reviewers of an organization
func (e Event) ForOrganization(code string) Event {
	e.OrganizationCode = code
	return e
}

// Broadcast reports whether the event has no audience restriction
func (e Event) Broadcast() bool {
	return e.UserID == 0 && e.OrganizationCode == ""
}

// Publisher hands events to the hubs that deliver them
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

// Discard is a Publisher that drops every event
type Discard struct{}

// Publish drops evt
func (Discard) Publish(ctx context.Context, evt Event) error { return nil }

// PublishAll publishes each event and logs failures; realtime delivery is best effort
func PublishAll(ctx context.Context, p Publisher, events ...Event) {
	if p == nil {
		return
	}
	for _, evt := range events {
		if err := p.Publish(ctx, evt); err != nil {
			log.Printf("Failed to publish %s event: %v", evt.Type, err)
		}
	}
}
