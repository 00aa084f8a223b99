package response

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/guilherme-santos/calcmd/internal"
	"github.com/guilherme-santos/calcmd/internal/datetime"
)

// ErrBackend is returned when the backend answered with an error payload
// instead of failing the call.
var ErrBackend = errors.New("calendar backend reported an error")

const untitled = "(No title)"

// payload is what a raw backend result boils down to: structured data, a
// human readable message, both, or neither.
type payload struct {
	data    gjson.Result
	message string
}

// Normalize turns whatever the backend returned for kind into the canonical
// data map of that kind.
func Normalize(kind internal.Kind, raw json.RawMessage) (map[string]any, error) {
	p, err := unwrap(raw)
	if err != nil {
		return nil, err
	}

	switch kind {
	case internal.KindCreate, internal.KindUpdate:
		return single(p), nil
	case internal.KindDelete:
		out := map[string]any{"deleted": true}
		if p.message != "" {
			out["message"] = p.message
		}
		return out, nil
	case internal.KindList, internal.KindSearch, internal.KindAvailability:
		events, _ := Events(raw)
		out := map[string]any{"events": events}
		if len(events) == 0 && p.message != "" {
			out["message"] = p.message
		}
		return out, nil
	case internal.KindListCalendars:
		return calendars(p), nil
	case internal.KindListColors:
		return colors(p), nil
	case internal.KindCurrentTime:
		return currentTime(p), nil
	case internal.KindFreeBusy:
		return freeBusy(p), nil
	default:
		return nil, fmt.Errorf("%w: %q", internal.ErrUnknownKind, kind)
	}
}

// Events extracts the event list of a raw result. It falls back to reading
// the message text when the backend only answered in prose.
func Events(raw json.RawMessage) ([]internal.Event, error) {
	p, err := unwrap(raw)
	if err != nil {
		return nil, err
	}
	if list, ok := firstArray(p.data, "events", "items", "data.events", "result.events"); ok {
		return eventsFrom(list), nil
	}
	if p.message != "" {
		return ParseEvents(p.message), nil
	}
	return []internal.Event{}, nil
}

func unwrap(raw json.RawMessage) (payload, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return payload{}, nil
	}
	if !gjson.ValidBytes(raw) {
		return payload{message: strings.TrimSpace(string(raw))}, nil
	}

	root := gjson.ParseBytes(raw)
	if root.Type == gjson.String {
		return fromText(root.String()), nil
	}
	if !root.IsObject() {
		return payload{data: root}, nil
	}

	// MCP tool result envelope.
	content := root.Get("content")
	if content.IsArray() || root.Get("structuredContent").Exists() {
		var texts []string
		for _, item := range content.Array() {
			if t := item.Get("text"); t.Type == gjson.String && strings.TrimSpace(t.String()) != "" {
				texts = append(texts, strings.TrimSpace(t.String()))
			}
		}
		text := strings.Join(texts, "\n\n")
		if root.Get("isError").Bool() {
			if text == "" {
				text = "unknown error"
			}
			return payload{}, fmt.Errorf("%w: %s", ErrBackend, text)
		}
		if sc := root.Get("structuredContent"); sc.IsObject() || sc.IsArray() {
			p := payload{data: sc}
			p.message = messageOf(sc)
			if p.message == "" {
				p.message = text
			}
			return p, nil
		}
		return fromText(text), nil
	}

	if e := root.Get("error"); e.Exists() && !root.Get("ok").Bool() && !root.Get("success").Bool() {
		msg := e.Get("message").String()
		if msg == "" {
			msg = e.String()
		}
		return payload{}, fmt.Errorf("%w: %s", ErrBackend, msg)
	}
	return payload{data: root, message: messageOf(root)}, nil
}

// fromText handles text that may itself be a JSON document.
func fromText(text string) payload {
	text = strings.TrimSpace(text)
	if text == "" {
		return payload{}
	}
	if (strings.HasPrefix(text, "{") || strings.HasPrefix(text, "[")) && gjson.Valid(text) {
		data := gjson.Parse(text)
		return payload{data: data, message: messageOf(data)}
	}
	return payload{message: text}
}

func messageOf(r gjson.Result) string {
	if !r.IsObject() {
		return ""
	}
	for _, key := range []string{"message", "text", "result", "summary"} {
		if v := r.Get(key); v.Type == gjson.String {
			return strings.TrimSpace(v.String())
		}
	}
	return ""
}

func firstArray(r gjson.Result, paths ...string) (gjson.Result, bool) {
	if !r.Exists() {
		return gjson.Result{}, false
	}
	if r.IsArray() {
		return r, true
	}
	for _, path := range paths {
		if v := r.Get(path); v.IsArray() {
			return v, true
		}
	}
	return gjson.Result{}, false
}

func firstObject(r gjson.Result, paths ...string) (gjson.Result, bool) {
	if !r.Exists() {
		return gjson.Result{}, false
	}
	for _, path := range paths {
		if v := r.Get(path); v.IsObject() {
			return v, true
		}
	}
	return gjson.Result{}, false
}

func single(p payload) map[string]any {
	if obj, ok := firstObject(p.data, "event", "data.event", "result.event", "data"); ok {
		if e, ok := eventFrom(obj); ok {
			return map[string]any{"event": e}
		}
	}
	if looksLikeEvent(p.data) {
		if e, ok := eventFrom(p.data); ok {
			return map[string]any{"event": e}
		}
	}
	if p.message != "" {
		if events := ParseEvents(p.message); len(events) > 0 {
			return map[string]any{"event": events[0], "message": p.message}
		}
		return map[string]any{"message": p.message}
	}
	return map[string]any{}
}

func looksLikeEvent(r gjson.Result) bool {
	return r.IsObject() && (r.Get("id").Exists() || r.Get("summary").Exists() || r.Get("title").Exists()) &&
		(r.Get("start").Exists() || r.Get("id").Exists())
}

func eventsFrom(list gjson.Result) []internal.Event {
	events := []internal.Event{}
	for _, item := range list.Array() {
		if e, ok := eventFrom(item); ok {
			events = append(events, e)
		}
	}
	return events
}

// eventFrom reads both the Google resource shape (summary, start.dateTime)
// and the flat shape (title, start). Records with unreadable times are
// dropped.
func eventFrom(r gjson.Result) (internal.Event, bool) {
	if !r.IsObject() {
		return internal.Event{}, false
	}
	e := internal.Event{
		ID:          r.Get("id").String(),
		Title:       strings.TrimSpace(firstString(r, "summary", "title", "name")),
		Description: firstString(r, "description"),
		Location:    firstString(r, "location"),
		ColorID:     firstString(r, "colorId"),
		CalendarID:  firstString(r, "calendarId", "organizer.email"),
		Attendees:   []string{},
	}
	if e.ID == "" && e.Title == "" {
		return internal.Event{}, false
	}
	if e.Title == "" {
		e.Title = untitled
	}

	var ok bool
	if e.Start, ok = timeOf(r.Get("start")); !ok {
		return internal.Event{}, false
	}
	if e.End, ok = timeOf(r.Get("end")); !ok {
		return internal.Event{}, false
	}

	for _, a := range r.Get("attendees").Array() {
		email := a.String()
		if a.IsObject() {
			email = a.Get("email").String()
		}
		if email = strings.TrimSpace(email); email != "" {
			e.Attendees = append(e.Attendees, email)
		}
	}
	return e, true
}

// timeOf accepts "..." or {"dateTime": "..."} or {"date": "..."}. A missing
// value is fine, an unreadable one is not.
func timeOf(r gjson.Result) (string, bool) {
	if !r.Exists() || r.Type == gjson.Null {
		return "", true
	}
	v := r.String()
	if r.IsObject() {
		v = firstString(r, "dateTime", "date")
		if v == "" {
			return "", true
		}
	}
	s, err := datetime.Normalize(v)
	if err != nil {
		if s, ok := parseHumanTime(v); ok {
			return s, true
		}
		return "", false
	}
	return s, true
}

func firstString(r gjson.Result, paths ...string) string {
	for _, path := range paths {
		if v := r.Get(path); v.Exists() && v.Type != gjson.Null {
			return v.String()
		}
	}
	return ""
}

func calendars(p payload) map[string]any {
	list, ok := firstArray(p.data, "calendars", "items", "data.calendars")
	if !ok {
		if p.message != "" {
			return map[string]any{"calendars": ParseCalendars(p.message)}
		}
		return map[string]any{"calendars": []internal.Calendar{}}
	}
	cals := []internal.Calendar{}
	for _, item := range list.Array() {
		c := internal.Calendar{
			ID:       item.Get("id").String(),
			Summary:  firstString(item, "summaryOverride", "summary", "name"),
			Primary:  item.Get("primary").Bool(),
			TimeZone: item.Get("timeZone").String(),
		}
		if c.ID == "" {
			continue
		}
		cals = append(cals, c)
	}
	return map[string]any{"calendars": cals}
}

func colors(p payload) map[string]any {
	obj, ok := firstObject(p.data, "event", "colors.event", "colors")
	if !ok {
		return messageOrEmpty(p)
	}
	palette := map[string]internal.Color{}
	obj.ForEach(func(key, value gjson.Result) bool {
		if value.IsObject() {
			palette[key.String()] = internal.Color{
				Background: value.Get("background").String(),
				Foreground: value.Get("foreground").String(),
			}
		}
		return true
	})
	if len(palette) == 0 {
		return messageOrEmpty(p)
	}
	return map[string]any{"colors": palette}
}

func currentTime(p payload) map[string]any {
	now := firstString(p.data, "currentTime", "dateTime", "datetime", "time", "now")
	if now == "" {
		return messageOrEmpty(p)
	}
	out := map[string]any{"currentTime": now}
	if s, err := datetime.Normalize(now); err == nil {
		out["utc"] = s
	}
	if zone := firstString(p.data, "timeZone", "timezone", "zone"); zone != "" {
		out["timeZone"] = zone
	}
	return out
}

func freeBusy(p payload) map[string]any {
	obj, ok := firstObject(p.data, "calendars", "data.calendars")
	if !ok {
		return messageOrEmpty(p)
	}
	busy := map[string][]internal.Interval{}
	obj.ForEach(func(key, value gjson.Result) bool {
		intervals := []internal.Interval{}
		for _, b := range value.Get("busy").Array() {
			start, err1 := datetime.Normalize(b.Get("start").String())
			end, err2 := datetime.Normalize(b.Get("end").String())
			if err1 != nil || err2 != nil {
				continue
			}
			intervals = append(intervals, internal.Interval{Start: start, End: end})
		}
		sort.Slice(intervals, func(i, j int) bool { return intervals[i].Start < intervals[j].Start })
		busy[key.String()] = intervals
		return true
	})
	return map[string]any{"calendars": busy}
}

func messageOrEmpty(p payload) map[string]any {
	if p.message != "" {
		return map[string]any{"message": p.message}
	}
	return map[string]any{}
}
