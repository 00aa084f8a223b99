package dispatcher

import (
	"context"
	"sort"
	"time"

	"github.com/guilherme-santos/calcmd/internal"
	"github.com/guilherme-santos/calcmd/internal/datetime"
	"github.com/guilherme-santos/calcmd/internal/sanitize"
)

func windowArgs(cal string, w Window) internal.Args {
	return internal.Args{
		"calendarId": cal,
		"timeMin":    w.Start,
		"timeMax":    w.End,
		"timeZone":   w.Zone,
	}
}

func (d *Dispatcher) list(ctx context.Context, cmd *Command) (map[string]any, error) {
	w, err := d.window(cmd, d.horizons.List)
	if err != nil {
		return nil, invalid(err)
	}
	cal, err := d.calendar(cmd)
	if err != nil {
		return nil, invalid(err)
	}

	raw, err := d.call(ctx, internal.OpListEvents, windowArgs(cal, w))
	if err != nil {
		return nil, err
	}
	data, err := d.normalize(cmd.Kind, raw)
	if err != nil {
		return nil, err
	}
	data["window"] = w
	return data, nil
}

func (d *Dispatcher) search(ctx context.Context, cmd *Command) (map[string]any, error) {
	query, err := stringParam(cmd, "query", true, queryKeys...)
	if err != nil {
		return nil, invalid(err)
	}
	w, err := d.window(cmd, d.horizons.Search)
	if err != nil {
		return nil, invalid(err)
	}
	cal, err := d.calendar(cmd)
	if err != nil {
		return nil, invalid(err)
	}

	args := windowArgs(cal, w)
	args["query"] = query
	raw, err := d.call(ctx, internal.OpSearchEvents, args)
	if err != nil {
		return nil, err
	}
	data, err := d.normalize(cmd.Kind, raw)
	if err != nil {
		return nil, err
	}
	data["window"] = w
	data["query"] = query
	return data, nil
}

// availability lists the events of the window and splits it into busy and
// free intervals.
func (d *Dispatcher) availability(ctx context.Context, cmd *Command) (map[string]any, error) {
	w, err := d.window(cmd, d.horizons.Availability)
	if err != nil {
		return nil, invalid(err)
	}
	cal, err := d.calendar(cmd)
	if err != nil {
		return nil, invalid(err)
	}

	raw, err := d.call(ctx, internal.OpListEvents, windowArgs(cal, w))
	if err != nil {
		return nil, err
	}
	data, err := d.normalize(cmd.Kind, raw)
	if err != nil {
		return nil, err
	}
	events, _ := data["events"].([]Event)
	busy, free := Slots(w, events)
	return map[string]any{
		"window": w,
		"busy":   busy,
		"free":   free,
	}, nil
}

func (d *Dispatcher) freeBusy(ctx context.Context, cmd *Command) (map[string]any, error) {
	w, err := d.window(cmd, d.horizons.FreeBusy)
	if err != nil {
		return nil, invalid(err)
	}
	cal, err := d.calendar(cmd)
	if err != nil {
		return nil, invalid(err)
	}
	ids, err := calendarIDs(cmd)
	if err != nil {
		return nil, invalid(err)
	}
	if len(ids) == 0 {
		ids = []string{cal}
	}

	args := windowArgs(cal, w)
	delete(args, "calendarId")
	args["calendars"] = ids
	raw, err := d.call(ctx, internal.OpGetFreeBusy, args)
	if err != nil {
		return nil, err
	}
	data, err := d.normalize(cmd.Kind, raw)
	if err != nil {
		return nil, err
	}
	data["window"] = w
	return data, nil
}

// calendarIDs accepts ids as a string, a list of strings, or a list of
// {"id": ...} objects.
func calendarIDs(cmd *Command) ([]string, error) {
	v, ok := cmd.Param("calendars", "calendarIds", "items")
	if !ok {
		return nil, nil
	}
	if list, ok := v.([]any); ok {
		ids := make([]string, 0, len(list))
		for _, item := range list {
			if obj, ok := item.(map[string]any); ok {
				item = obj["id"]
			}
			id, err := sanitize.String(item, "calendars", false)
			if err != nil {
				return nil, err
			}
			if id != "" {
				ids = append(ids, id)
			}
		}
		return ids, nil
	}
	return sanitize.Strings(v, "calendars")
}

// Slots clips events to w, merges overlapping ones into busy intervals and
// returns the gaps between them as free intervals. Events without both
// bounds are ignored.
func Slots(w Window, events []Event) (busy, free []internal.Interval) {
	busy, free = []internal.Interval{}, []internal.Interval{}
	from, err1 := datetime.Parse(w.Start)
	to, err2 := datetime.Parse(w.End)
	if err1 != nil || err2 != nil {
		return busy, free
	}

	type span struct{ start, end time.Time }
	var spans []span
	for _, e := range events {
		if e.Start == "" || e.End == "" {
			continue
		}
		start, err1 := datetime.Parse(e.Start)
		end, err2 := datetime.Parse(e.End)
		if err1 != nil || err2 != nil || !start.Before(end) {
			continue
		}
		if start.Before(from) {
			start = from
		}
		if end.After(to) {
			end = to
		}
		if !start.Before(end) {
			continue
		}
		spans = append(spans, span{start, end})
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].start.Before(spans[j].start) })

	var merged []span
	for _, s := range spans {
		if n := len(merged); n > 0 && !s.start.After(merged[n-1].end) {
			if s.end.After(merged[n-1].end) {
				merged[n-1].end = s.end
			}
			continue
		}
		merged = append(merged, s)
	}

	cursor := from
	for _, s := range merged {
		if cursor.Before(s.start) {
			free = append(free, internal.Interval{Start: datetime.Format(cursor), End: datetime.Format(s.start)})
		}
		busy = append(busy, internal.Interval{Start: datetime.Format(s.start), End: datetime.Format(s.end)})
		cursor = s.end
	}
	if cursor.Before(to) {
		free = append(free, internal.Interval{Start: datetime.Format(cursor), End: datetime.Format(to)})
	}
	return busy, free
}
