package publishers

import (
	"time"

	"github.com/google/uuid"

	"github.com/samvad-hq/userloader/internal/domain"
)

// EventTypeUsersLoaded is the type of events emitted after a successful load.
const EventTypeUsersLoaded = "users.loaded"

// Event represents the payload published downstream.
type Event struct {
	ID         string        `json:"id"`
	Type       string        `json:"type"`
	Source     string        `json:"source"`
	Method     string        `json:"method"`
	StatusCode int           `json:"status_code"`
	Count      int           `json:"count"`
	Users      []domain.User `json:"users"`
	LoadedAt   time.Time     `json:"loaded_at"`
}

// NewEvent constructs a users.loaded Event for a settled request.
func NewEvent(source, method string, statusCode int, users []domain.User) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       EventTypeUsersLoaded,
		Source:     source,
		Method:     method,
		StatusCode: statusCode,
		Count:      len(users),
		Users:      users,
		LoadedAt:   time.Now().UTC(),
	}
}
