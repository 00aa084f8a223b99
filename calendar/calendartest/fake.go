// Package calendartest provides an in-memory calendar transport.
package calendartest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/guilherme-santos/calcmd/calendar"
	"github.com/guilherme-santos/calcmd/internal"
)

type Call struct {
	Op   string
	Args internal.Args
}

type eventTime struct {
	DateTime string `json:"dateTime"`
}

type attendee struct {
	Email string `json:"email"`
}

// event mirrors the Google Calendar resource so the fake returns what a real
// backend would.
type event struct {
	ID          string     `json:"id"`
	CalendarID  string     `json:"-"`
	Summary     string     `json:"summary"`
	Description string     `json:"description,omitempty"`
	Location    string     `json:"location,omitempty"`
	Start       eventTime  `json:"start"`
	End         eventTime  `json:"end"`
	Attendees   []attendee `json:"attendees,omitempty"`
	ColorID     string     `json:"colorId,omitempty"`
	Recurrence  []string   `json:"recurrence,omitempty"`
}

// Fake is a calendar.Transport backed by memory. Canned responses and errors
// take precedence over the built-in behaviour.
type Fake struct {
	mu        sync.Mutex
	responses map[string]json.RawMessage
	errs      map[string]error
	events    []*event
	calls     []Call
	opens     int
	open      bool

	OpenErr   error
	OpenDelay time.Duration
	Now       func() time.Time
}

var _ calendar.Transport = (*Fake)(nil)

func NewFake() *Fake {
	return &Fake{
		responses: make(map[string]json.RawMessage),
		errs:      make(map[string]error),
		Now:       time.Now,
	}
}

// Respond makes op return v, marshaled to JSON unless it already is JSON.
func (f *Fake) Respond(op string, v any) {
	var raw json.RawMessage
	switch t := v.(type) {
	case json.RawMessage:
		raw = t
	case string:
		raw = json.RawMessage(t)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			panic(fmt.Sprintf("calendartest: marshaling response: %v", err))
		}
		raw = data
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[op] = raw
}

func (f *Fake) Fail(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[op] = err
}

// AddEvent seeds the calendar and returns the new event id.
func (f *Fake) AddEvent(calendarID, title, start, end string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	e := &event{
		ID:         strings.ReplaceAll(uuid.NewString(), "-", ""),
		CalendarID: calendarID,
		Summary:    title,
		Start:      eventTime{DateTime: start},
		End:        eventTime{DateTime: end},
	}
	f.events = append(f.events, e)
	return e.ID
}

func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// Ops returns the operation names called so far, in order.
func (f *Fake) Ops() []string {
	calls := f.Calls()
	ops := make([]string, len(calls))
	for i, c := range calls {
		ops[i] = c.Op
	}
	return ops
}

func (f *Fake) Opens() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opens
}

func (f *Fake) Open(ctx context.Context) error {
	f.mu.Lock()
	f.opens++
	delay, openErr := f.OpenDelay, f.OpenErr
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if openErr != nil {
		return openErr
	}
	f.mu.Lock()
	f.open = true
	f.mu.Unlock()
	return nil
}

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.open = false
	return nil
}

func (f *Fake) Invoke(_ context.Context, op string, args internal.Args) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.open {
		return nil, calendar.ErrClosed
	}
	f.calls = append(f.calls, Call{Op: op, Args: args})
	if err, ok := f.errs[op]; ok {
		return nil, err
	}
	if raw, ok := f.responses[op]; ok {
		return raw, nil
	}

	var res any
	switch op {
	case internal.OpCreateEvent:
		e := &event{
			ID:         strings.ReplaceAll(uuid.NewString(), "-", ""),
			CalendarID: str(args, "calendarId"),
		}
		apply(e, args)
		f.events = append(f.events, e)
		res = map[string]any{"event": e}
	case internal.OpListEvents:
		res = map[string]any{"events": f.find(args, "")}
	case internal.OpSearchEvents:
		res = map[string]any{"events": f.find(args, str(args, "query"))}
	case internal.OpUpdateEvent:
		e := f.byID(str(args, "eventId"))
		if e == nil {
			return nil, &calendar.RemoteError{Code: "notFound", Message: "event not found"}
		}
		apply(e, args)
		res = map[string]any{"event": e}
	case internal.OpDeleteEvent:
		id := str(args, "eventId")
		if f.byID(id) == nil {
			return nil, &calendar.RemoteError{Code: "notFound", Message: "event not found"}
		}
		kept := f.events[:0]
		for _, e := range f.events {
			if e.ID != id {
				kept = append(kept, e)
			}
		}
		f.events = kept
		res = map[string]any{"message": "Event deleted successfully"}
	case internal.OpListCalendars:
		res = map[string]any{"calendars": []map[string]any{
			{"id": "primary", "summary": "Primary", "primary": true, "timeZone": "UTC"},
		}}
	case internal.OpListColors:
		res = map[string]any{"event": map[string]any{
			"1": map[string]string{"background": "#a4bdfc", "foreground": "#1d1d1d"},
			"2": map[string]string{"background": "#7ae7bf", "foreground": "#1d1d1d"},
		}}
	case internal.OpGetCurrentTime:
		zone := str(args, "timeZone")
		if zone == "" {
			zone = "UTC"
		}
		loc, err := time.LoadLocation(zone)
		if err != nil {
			return nil, &calendar.RemoteError{Code: "invalid", Message: err.Error()}
		}
		res = map[string]any{
			"currentTime": f.Now().In(loc).Format(time.RFC3339),
			"timeZone":    zone,
		}
	case internal.OpGetFreeBusy:
		cals := map[string]any{}
		ids, _ := args["calendars"].([]string)
		for _, id := range ids {
			busy := []map[string]string{}
			for _, e := range f.find(internal.Args{"calendarId": id, "timeMin": args["timeMin"], "timeMax": args["timeMax"]}, "") {
				busy = append(busy, map[string]string{"start": e.Start.DateTime, "end": e.End.DateTime})
			}
			cals[id] = map[string]any{"busy": busy}
		}
		res = map[string]any{"calendars": cals}
	default:
		return nil, &calendar.RemoteError{Code: "unknownOperation", Message: op}
	}
	return json.Marshal(res)
}

func (f *Fake) find(args internal.Args, query string) []*event {
	cal := str(args, "calendarId")
	from, _ := time.Parse(time.RFC3339, str(args, "timeMin"))
	to, _ := time.Parse(time.RFC3339, str(args, "timeMax"))
	query = strings.ToLower(query)

	found := []*event{}
	for _, e := range f.events {
		if cal != "" && e.CalendarID != "" && e.CalendarID != cal {
			continue
		}
		start, _ := time.Parse(time.RFC3339, e.Start.DateTime)
		end, _ := time.Parse(time.RFC3339, e.End.DateTime)
		if !from.IsZero() && !end.After(from) {
			continue
		}
		if !to.IsZero() && !start.Before(to) {
			continue
		}
		if query != "" && !strings.Contains(strings.ToLower(e.Summary+" "+e.Description), query) {
			continue
		}
		found = append(found, e)
	}
	sort.SliceStable(found, func(i, j int) bool {
		return found[i].Start.DateTime < found[j].Start.DateTime
	})
	return found
}

func (f *Fake) byID(id string) *event {
	for _, e := range f.events {
		if e.ID == id {
			return e
		}
	}
	return nil
}

func apply(e *event, args internal.Args) {
	if v, ok := args["summary"].(string); ok {
		e.Summary = v
	}
	if v, ok := args["description"].(string); ok {
		e.Description = v
	}
	if v, ok := args["location"].(string); ok {
		e.Location = v
	}
	if v, ok := args["start"].(string); ok {
		e.Start.DateTime = v
	}
	if v, ok := args["end"].(string); ok {
		e.End.DateTime = v
	}
	if v, ok := args["colorId"].(string); ok {
		e.ColorID = v
	}
	if v, ok := args["recurrence"].([]string); ok {
		e.Recurrence = v
	}
	if v, ok := args["attendees"].([]string); ok {
		e.Attendees = e.Attendees[:0]
		for _, email := range v {
			e.Attendees = append(e.Attendees, attendee{Email: email})
		}
	}
}

func str(args internal.Args, key string) string {
	v, _ := args[key].(string)
	return v
}

// ErrUnavailable simulates a backend outage.
var ErrUnavailable = errors.New("calendartest: backend unavailable")
