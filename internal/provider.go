package internal

import (
	"context"
	"encoding/json"
)

// Operation names understood by the calendar backend.
const (
	OpCreateEvent    = "create-event"
	OpListEvents     = "list-events"
	OpSearchEvents   = "search-events"
	OpUpdateEvent    = "update-event"
	OpDeleteEvent    = "delete-event"
	OpListCalendars  = "list-calendars"
	OpListColors     = "list-colors"
	OpGetCurrentTime = "get-current-time"
	OpGetFreeBusy    = "get-freebusy"
)

// Args is the flat argument bag of an operation: primitives and arrays only.
type Args map[string]any

// Client is the narrow protocol to the calendar backend.
type Client interface {
	Connect(context.Context) error
	Ready() bool
	Call(_ context.Context, op string, _ Args) (json.RawMessage, error)
	Disconnect() error
}
