package datetime

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/guilherme-santos/calcmd/internal"
)

// Layout is the wire format of every normalized timestamp.
const Layout = "2006-01-02T15:04:05.000Z"

var (
	ErrDateTimeInvalid = errors.New("invalid date-time")
	ErrWindowInvalid   = errors.New("invalid time window")
	ErrZoneInvalid     = errors.New("invalid time zone")
)

var (
	dateOnlyRe  = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	spaceSepRe  = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2}) (\d{2}:\d{2})`)
	noSecondsRe = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2}T\d{2}:\d{2})([zZ]|[+-]\d{2}:?\d{2})?$`)
	offsetRe    = regexp.MustCompile(`([zZ]|[+-]\d{2}:?\d{2})$`)
	timeOnlyRe  = regexp.MustCompile(`T\d{2}:\d{2}(:\d{2}(\.\d+)?)?$`)
)

var parseLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999Z0700",
}

// Normalize coerces v into RFC3339 UTC with millisecond precision. Values
// without an explicit offset are read as UTC, never as local time.
func Normalize(v any) (string, error) {
	switch t := v.(type) {
	case time.Time:
		if t.IsZero() {
			return "", fmt.Errorf("%w: zero time", ErrDateTimeInvalid)
		}
		return Format(t), nil
	case *time.Time:
		if t == nil {
			return "", fmt.Errorf("%w: nil time", ErrDateTimeInvalid)
		}
		return Normalize(*t)
	case string:
		return normalizeString(t)
	case fmt.Stringer:
		return normalizeString(t.String())
	case nil:
		return "", fmt.Errorf("%w: empty value", ErrDateTimeInvalid)
	default:
		return "", fmt.Errorf("%w: unsupported value %v", ErrDateTimeInvalid, v)
	}
}

// Parse is Normalize returning the instant instead of its wire form.
func Parse(v any) (time.Time, error) {
	s, err := Normalize(v)
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(Layout, s)
}

func Format(t time.Time) string {
	return t.UTC().Format(Layout)
}

func normalizeString(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("%w: empty value", ErrDateTimeInvalid)
	}
	if dateOnlyRe.MatchString(s) {
		s += "T00:00:00"
	}
	if m := spaceSepRe.FindStringSubmatchIndex(s); m != nil {
		s = s[:m[3]] + "T" + s[m[4]:]
	}
	if m := noSecondsRe.FindStringSubmatch(s); m != nil {
		s = m[1] + ":00" + m[2]
	}
	if !offsetRe.MatchString(s) {
		if !timeOnlyRe.MatchString(s) {
			return "", fmt.Errorf("%w: %q", ErrDateTimeInvalid, raw)
		}
		s += "Z"
	}
	s = strings.Replace(s, "z", "Z", 1)

	for _, layout := range parseLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return Format(t), nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrDateTimeInvalid, raw)
}

// LoadZone resolves an IANA zone name, falling back to def when name is empty.
func LoadZone(name, def string) (*time.Location, string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = def
	}
	if name == "" {
		name = "UTC"
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %q", ErrZoneInvalid, name)
	}
	return loc, name, nil
}

// NormalizeWindow normalizes both bounds and requires start < end. Equal or
// inverted bounds are rejected, never swapped.
func NormalizeWindow(start, end any, zone, defaultZone string) (internal.Window, error) {
	_, zoneName, err := LoadZone(zone, defaultZone)
	if err != nil {
		return internal.Window{}, err
	}
	from, err := Parse(start)
	if err != nil {
		return internal.Window{}, fmt.Errorf("start: %w", err)
	}
	to, err := Parse(end)
	if err != nil {
		return internal.Window{}, fmt.Errorf("end: %w", err)
	}
	if !from.Before(to) {
		return internal.Window{}, fmt.Errorf("%w: start %s is not before end %s", ErrWindowInvalid, Format(from), Format(to))
	}
	return internal.Window{
		Start: Format(from),
		End:   Format(to),
		Zone:  zoneName,
	}, nil
}

// Day is the window from the start of the day containing t in loc to the
// start of the next day.
func Day(t time.Time, loc *time.Location) internal.Window {
	day := internal.NewDateFromTime(t.In(loc))
	return DayOf(day)
}

func DayOf(day internal.Date) internal.Window {
	return internal.Window{
		Start: Format(day.Time),
		End:   Format(day.AddDate(0, 0, 1).Time),
		Zone:  day.Location().String(),
	}
}
