package dispatcher

import (
	"fmt"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/guilherme-santos/calcmd/internal"
	"github.com/guilherme-santos/calcmd/internal/datetime"
	"github.com/guilherme-santos/calcmd/internal/sanitize"
)

// Accepted spellings of each parameter, canonical name first.
var (
	titleKeys       = []string{"title", "summary", "name"}
	descriptionKeys = []string{"description", "details", "notes"}
	locationKeys    = []string{"location", "where"}
	startKeys       = []string{"start", "startTime", "timeMin", "from"}
	endKeys         = []string{"end", "endTime", "timeMax", "to"}
	zoneKeys        = []string{"timeZone", "timezone", "tz"}
	attendeeKeys    = []string{"attendees", "guests", "participants"}
	colorKeys       = []string{"colorId", "color"}
	recurrenceKeys  = []string{"recurrence", "rrule"}
	calendarKeys    = []string{"calendarId", "calendar"}
	eventIDKeys     = []string{"eventId", "id", "targetId"}
	searchKeys      = []string{"searchQuery", "query", "q"}
	queryKeys       = []string{"query", "searchQuery", "q"}
)

func stringParam(cmd *Command, field string, required bool, names ...string) (string, error) {
	v, _ := cmd.Param(names...)
	return sanitize.String(v, field, required)
}

func (d *Dispatcher) calendar(cmd *Command) (string, error) {
	id, err := stringParam(cmd, "calendarId", false, calendarKeys...)
	if err != nil {
		return "", err
	}
	if id == "" {
		id = d.calendarID
	}
	return id, nil
}

func (d *Dispatcher) timeZone(cmd *Command) (string, error) {
	name, err := stringParam(cmd, "timeZone", false, zoneKeys...)
	if err != nil {
		return "", err
	}
	_, zone, err := datetime.LoadZone(name, d.zone)
	return zone, err
}

// window reads the time range of list-like commands. Missing bounds default
// to now and now plus horizon; a lone start gets start plus horizon.
func (d *Dispatcher) window(cmd *Command, horizon time.Duration) (Window, error) {
	zone, err := d.timeZone(cmd)
	if err != nil {
		return Window{}, err
	}
	startV, hasStart := cmd.Param(startKeys...)
	endV, hasEnd := cmd.Param(endKeys...)

	now := d.Now()
	var start, end any = now, now.Add(horizon)
	if hasStart {
		from, err := datetime.Parse(startV)
		if err != nil {
			return Window{}, fmt.Errorf("start: %w", err)
		}
		start, end = from, from.Add(horizon)
	}
	if hasEnd {
		end = endV
	}
	return datetime.NormalizeWindow(start, end, zone, d.zone)
}

// recurrence validates RRULE lines and prefixes them the way calendar
// backends expect. EXDATE and RDATE lines pass through.
func recurrence(v any) ([]string, error) {
	lines, err := sanitize.Strings(v, "recurrence")
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		upper := strings.ToUpper(line)
		if strings.HasPrefix(upper, "EXDATE") || strings.HasPrefix(upper, "RDATE") {
			out = append(out, line)
			continue
		}
		body := line
		if strings.HasPrefix(upper, "RRULE:") {
			body = line[len("RRULE:"):]
		}
		if _, err := rrule.StrToRRule(body); err != nil {
			return nil, &sanitize.FieldError{Field: "recurrence", Reason: fmt.Sprintf("has an invalid rule %q: %v", line, err)}
		}
		out = append(out, "RRULE:"+body)
	}
	return out, nil
}

// eventFields reads the writable event fields present on cmd into args.
// Required fields are only enforced on create.
func (d *Dispatcher) eventFields(cmd *Command, create bool) (internal.Args, error) {
	args := internal.Args{}

	title, err := stringParam(cmd, "title", create, titleKeys...)
	if err != nil {
		return nil, err
	}
	if title != "" {
		args["summary"] = title
	}

	for field, keys := range map[string][]string{
		"description": descriptionKeys,
		"location":    locationKeys,
		"colorId":     colorKeys,
	} {
		v, ok := cmd.Param(keys...)
		if !ok {
			if create && field != "colorId" {
				args[field] = ""
			}
			continue
		}
		s, err := sanitize.String(v, field, false)
		if err != nil {
			return nil, err
		}
		args[field] = s
	}

	if v, ok := cmd.Param(attendeeKeys...); ok {
		emails, err := sanitize.Emails(v, "attendees")
		if err != nil {
			return nil, err
		}
		args["attendees"] = emails
	} else if create {
		args["attendees"] = []string{}
	}

	if v, ok := cmd.Param(recurrenceKeys...); ok {
		rules, err := recurrence(v)
		if err != nil {
			return nil, err
		}
		if len(rules) > 0 {
			args["recurrence"] = rules
		}
	}

	zone, err := d.timeZone(cmd)
	if err != nil {
		return nil, err
	}

	startV, hasStart := cmd.Param(startKeys...)
	endV, hasEnd := cmd.Param(endKeys...)
	switch {
	case create && !hasStart:
		return nil, &sanitize.FieldError{Field: "start", Reason: "is required"}
	case create && !hasEnd:
		return nil, &sanitize.FieldError{Field: "end", Reason: "is required"}
	case hasStart && hasEnd:
		w, err := datetime.NormalizeWindow(startV, endV, zone, d.zone)
		if err != nil {
			return nil, err
		}
		args["start"], args["end"] = w.Start, w.End
	case hasStart:
		s, err := datetime.Normalize(startV)
		if err != nil {
			return nil, fmt.Errorf("start: %w", err)
		}
		args["start"] = s
	case hasEnd:
		s, err := datetime.Normalize(endV)
		if err != nil {
			return nil, fmt.Errorf("end: %w", err)
		}
		args["end"] = s
	}
	if create || hasStart || hasEnd {
		args["timeZone"] = zone
	}
	return args, nil
}

// searchWindow is the window the resolver searches in: searchStart and
// searchEnd, or the whole of date in the configured zone. Nil means today.
func (d *Dispatcher) searchWindow(cmd *Command) (*Window, error) {
	startV, hasStart := cmd.Param("searchStart", "searchFrom")
	endV, hasEnd := cmd.Param("searchEnd", "searchTo")
	if hasStart || hasEnd {
		if !hasStart || !hasEnd {
			return nil, &sanitize.FieldError{Field: "searchStart", Reason: "and searchEnd must be given together"}
		}
		w, err := datetime.NormalizeWindow(startV, endV, "", d.zone)
		if err != nil {
			return nil, err
		}
		return &w, nil
	}

	v, ok := cmd.Param("date", "day")
	if !ok {
		return nil, nil
	}
	s, err := sanitize.String(v, "date", true)
	if err != nil {
		return nil, err
	}
	day, err := internal.ParseDate(s, d.loc)
	if err != nil {
		return nil, fmt.Errorf("date: %w: %q", datetime.ErrDateTimeInvalid, s)
	}
	w := datetime.DayOf(day)
	return &w, nil
}
