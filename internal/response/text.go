package response

import (
	"regexp"
	"strings"
	"time"

	"github.com/guilherme-santos/calcmd/internal"
	"github.com/guilherme-santos/calcmd/internal/datetime"
)

var (
	numberedRe = regexp.MustCompile(`^\d+[.)]\s+`)
	bulletRe   = regexp.MustCompile(`^[-*•]\s+`)
	labelRe    = regexp.MustCompile(`^([A-Za-z][A-Za-z ]{0,20}?)\s*:\s*(.*)$`)
	headerRe   = regexp.MustCompile(`(?i)^(event|title|summary|event name)\s*:`)
	zoneRe     = regexp.MustCompile(`\s*\(([A-Za-z_]+(?:/[A-Za-z_+\-0-9]+)+|UTC)\)\s*$`)
	calLineRe  = regexp.MustCompile(`^(.+?)\s*\(([^()\s]+)\)\s*(?:[-,].*)?$`)
	eventIDRe  = regexp.MustCompile(`^[a-zA-Z0-9_]{5,}$`)
)

var humanLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"1/2/2006, 3:04:05 PM",
	"1/2/2006, 3:04 PM",
	"1/2/2006 3:04 PM",
	"Mon, Jan 2, 2006, 3:04 PM",
	"Mon, Jan 2, 2006 3:04 PM",
	"Monday, January 2, 2006, 3:04 PM",
	"Monday, January 2, 2006 at 3:04 PM",
	"Jan 2, 2006 3:04 PM",
	"Jan 2, 2006, 3:04 PM",
	"January 2, 2006 3:04 PM",
	"January 2, 2006 at 3:04 PM",
	"January 2, 2006",
	"Jan 2, 2006",
}

var fieldLabels = map[string]string{
	"id":          "id",
	"event id":    "id",
	"event":       "title",
	"title":       "title",
	"summary":     "title",
	"event name":  "title",
	"name":        "title",
	"start":       "start",
	"starts":      "start",
	"start time":  "start",
	"end":         "end",
	"ends":        "end",
	"end time":    "end",
	"location":    "location",
	"where":       "location",
	"description": "description",
	"details":     "description",
	"attendees":   "attendees",
	"guests":      "attendees",
	"color":       "colorId",
	"color id":    "colorId",
	"colorid":     "colorId",
	"calendar":    "calendarId",
	"calendar id": "calendarId",
}

// ParseEvents reads event records out of the human readable listings some
// backends return. Records are separated by blank lines or by a header line
// (a numbered line or a title label). A block is kept when it carries an id,
// or a title together with a start time. Blocks whose times cannot be read
// are skipped.
func ParseEvents(text string) []internal.Event {
	events := []internal.Event{}
	for _, block := range blocks(text) {
		if e, ok := parseBlock(block); ok {
			events = append(events, e)
		}
	}
	return events
}

func blocks(text string) [][]string {
	var (
		out      [][]string
		cur      []string
		hasTitle bool
	)
	flush := func() {
		if len(cur) > 0 {
			out = append(out, cur)
			cur = nil
		}
		hasTitle = false
	}
	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			flush()
			continue
		}
		header := headerRe.MatchString(stripBullet(line))
		if numberedRe.MatchString(line) || (header && hasTitle) {
			flush()
		}
		hasTitle = hasTitle || header || numberedRe.MatchString(line)
		cur = append(cur, line)
	}
	flush()
	return out
}

func stripBullet(line string) string {
	line = numberedRe.ReplaceAllString(line, "")
	return bulletRe.ReplaceAllString(line, "")
}

func parseBlock(lines []string) (internal.Event, bool) {
	e := internal.Event{Attendees: []string{}}
	var hasStart bool

	for _, raw := range lines {
		line := stripBullet(raw)
		m := labelRe.FindStringSubmatch(line)
		if m == nil {
			// An unlabeled first line of a numbered record is its title.
			if e.Title == "" && numberedRe.MatchString(raw) && !strings.HasSuffix(line, ":") {
				e.Title, e.ID = splitTrailingID(line, e.ID)
			}
			continue
		}
		field, ok := fieldLabels[strings.ToLower(strings.TrimSpace(m[1]))]
		if !ok {
			continue
		}
		value := strings.TrimSpace(m[2])
		switch field {
		case "id":
			e.ID = strings.Trim(value, "`\"'")
		case "title":
			e.Title, e.ID = splitTrailingID(value, e.ID)
		case "start":
			s, ok := parseHumanTime(value)
			if !ok {
				return internal.Event{}, false
			}
			e.Start, hasStart = s, true
		case "end":
			s, ok := parseHumanTime(value)
			if !ok {
				return internal.Event{}, false
			}
			e.End = s
		case "location":
			e.Location = value
		case "description":
			e.Description = value
		case "attendees":
			for _, a := range strings.FieldsFunc(value, func(r rune) bool { return r == ',' || r == ';' }) {
				if a = strings.TrimSpace(a); strings.Contains(a, "@") {
					e.Attendees = append(e.Attendees, a)
				}
			}
		case "colorId":
			e.ColorID = value
		case "calendarId":
			e.CalendarID = value
		}
	}

	if e.ID == "" && (e.Title == "" || !hasStart) {
		return internal.Event{}, false
	}
	if e.Title == "" {
		e.Title = untitled
	}
	return e, true
}

// splitTrailingID handles "Team sync (abc123)", returning the title and id.
func splitTrailingID(value, id string) (string, string) {
	if id != "" {
		return value, id
	}
	if m := calLineRe.FindStringSubmatch(value); m != nil && eventIDRe.MatchString(m[2]) && strings.ContainsAny(m[2], "0123456789") {
		return strings.TrimSpace(m[1]), m[2]
	}
	return value, id
}

// parseHumanTime reads a timestamp in one of the formats backends use when
// they print events for people. A trailing "(Area/City)" names the zone the
// time is in, otherwise it is UTC.
func parseHumanTime(value string) (string, bool) {
	value = strings.TrimSpace(value)
	loc := time.UTC
	if m := zoneRe.FindStringSubmatch(value); m != nil {
		if l, err := time.LoadLocation(m[1]); err == nil {
			loc = l
			value = strings.TrimSpace(value[:len(value)-len(m[0])])
		}
	}
	if loc == time.UTC {
		if s, err := datetime.Normalize(value); err == nil {
			return s, true
		}
	}
	for _, layout := range humanLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return datetime.Format(t), true
		}
	}
	return "", false
}

// ParseCalendars reads calendar lines such as "Work (work@example.com)" or
// "- Personal (primary)".
func ParseCalendars(text string) []internal.Calendar {
	cals := []internal.Calendar{}
	var cur *internal.Calendar
	push := func() {
		if cur != nil && cur.ID != "" {
			if cur.Summary == "" {
				cur.Summary = cur.ID
			}
			cals = append(cals, *cur)
		}
		cur = nil
	}

	for _, line := range strings.Split(text, "\n") {
		line = stripBullet(strings.TrimSpace(line))
		if line == "" {
			push()
			continue
		}
		if m := labelRe.FindStringSubmatch(line); m != nil {
			value := strings.TrimSpace(m[2])
			switch strings.ToLower(strings.TrimSpace(m[1])) {
			case "id", "calendar id":
				if cur != nil && cur.ID != "" {
					push()
				}
				if cur == nil {
					cur = &internal.Calendar{}
				}
				cur.ID = value
				cur.Primary = cur.Primary || value == "primary"
				continue
			case "name", "summary", "calendar":
				if cur != nil && cur.Summary != "" {
					push()
				}
				if cur == nil {
					cur = &internal.Calendar{}
				}
				cur.Summary = value
				continue
			case "time zone", "timezone":
				if cur != nil {
					cur.TimeZone = value
				}
				continue
			}
		}
		m := calLineRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		push()
		c := internal.Calendar{Summary: strings.TrimSpace(m[1]), ID: m[2]}
		c.Primary = c.ID == "primary" || strings.Contains(strings.ToLower(line), "(primary)")
		cals = append(cals, c)
	}
	push()
	return cals
}
