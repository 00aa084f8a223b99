package google

import (
	"google.golang.org/api/calendar/v3"

	"github.com/guilherme-santos/calcmd/internal"
)

type eventOrError struct {
	e   *calendar.Event
	err error
}

type eventIterator struct {
	events  chan eventOrError
	current eventOrError
}

func newEventIterator() *eventIterator {
	return &eventIterator{
		events: make(chan eventOrError),
	}
}

func (it *eventIterator) Next() (ok bool) {
	it.current, ok = <-it.events
	if it.current.err != nil {
		return false
	}
	return ok
}

func (it *eventIterator) Event() *calendar.Event {
	c := it.current
	if c.e == nil && c.err == nil {
		panic("google: Event() called before Next()")
	}
	return c.e
}

func (it *eventIterator) Err() error {
	return it.current.err
}

// newGoogleEvent copies the event fields present in args. Absent fields stay
// empty so a patch leaves them untouched.
func newGoogleEvent(args internal.Args) *calendar.Event {
	event := &calendar.Event{
		Summary:     str(args, "summary"),
		Description: str(args, "description"),
		Location:    str(args, "location"),
		ColorId:     str(args, "colorId"),
	}
	zone := str(args, "timeZone")
	if v := str(args, "start"); v != "" {
		event.Start = &calendar.EventDateTime{DateTime: v, TimeZone: zone}
	}
	if v := str(args, "end"); v != "" {
		event.End = &calendar.EventDateTime{DateTime: v, TimeZone: zone}
	}
	if emails, ok := args["attendees"].([]string); ok {
		for _, email := range emails {
			event.Attendees = append(event.Attendees, &calendar.EventAttendee{Email: email})
		}
	}
	if rules, ok := args["recurrence"].([]string); ok {
		event.Recurrence = rules
	}
	return event
}
