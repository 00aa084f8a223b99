package dispatcher

import (
	"context"
	"errors"
	"fmt"

	"github.com/guilherme-santos/calcmd/internal"
	"github.com/guilherme-santos/calcmd/internal/sanitize"
)

var (
	ErrNoTarget  = errors.New("no matching event found")
	ErrNoChanges = errors.New("nothing to update")
)

func (d *Dispatcher) create(ctx context.Context, cmd *Command) (map[string]any, error) {
	args, err := d.eventFields(cmd, true)
	if err != nil {
		return nil, invalid(err)
	}
	cal, err := d.calendar(cmd)
	if err != nil {
		return nil, invalid(err)
	}
	args["calendarId"] = cal

	d.logger.Debug("dispatcher.create", "calendar", cal, "start", args["start"], "end", args["end"])
	raw, err := d.call(ctx, internal.OpCreateEvent, args)
	if err != nil {
		return nil, err
	}
	return d.normalize(cmd.Kind, raw)
}

func (d *Dispatcher) update(ctx context.Context, cmd *Command) (map[string]any, error) {
	args, err := d.eventFields(cmd, false)
	if err != nil {
		return nil, invalid(err)
	}
	changes := 0
	for k := range args {
		if k != "timeZone" {
			changes++
		}
	}
	if changes == 0 {
		return nil, invalid(fmt.Errorf("%w: give at least one of title, description, start, end, location, attendees, colorId or recurrence", ErrNoChanges))
	}
	t, err := d.targetOf(cmd)
	if err != nil {
		return nil, invalid(err)
	}

	target, err := d.resolve(ctx, t)
	if err != nil {
		return nil, err
	}
	args["calendarId"] = t.calendarID
	args["eventId"] = target.ID

	raw, err := d.call(ctx, internal.OpUpdateEvent, args)
	if err != nil {
		return nil, err
	}
	return d.normalize(cmd.Kind, raw)
}

func (d *Dispatcher) delete(ctx context.Context, cmd *Command) (map[string]any, error) {
	t, err := d.targetOf(cmd)
	if err != nil {
		return nil, invalid(err)
	}
	target, err := d.resolve(ctx, t)
	if err != nil {
		return nil, err
	}

	raw, err := d.call(ctx, internal.OpDeleteEvent, internal.Args{
		"calendarId": t.calendarID,
		"eventId":    target.ID,
	})
	if err != nil {
		return nil, err
	}
	data, err := d.normalize(cmd.Kind, raw)
	if err != nil {
		return nil, err
	}
	data["eventId"] = target.ID
	if t.eventID == "" {
		data["event"] = *target
	}
	return data, nil
}

// target is what an update or delete points at, either by id or by a
// search that runs once the command is known to be valid.
type target struct {
	calendarID string
	eventID    string
	query      string
	window     *Window
}

func (d *Dispatcher) targetOf(cmd *Command) (target, error) {
	cal, err := d.calendar(cmd)
	if err != nil {
		return target{}, err
	}
	t := target{calendarID: cal}

	if t.eventID, err = stringParam(cmd, "eventId", false, eventIDKeys...); err != nil {
		return target{}, err
	}
	if t.eventID != "" {
		return t, nil
	}
	if t.query, err = stringParam(cmd, "searchQuery", false, searchKeys...); err != nil {
		return target{}, err
	}
	if t.query == "" {
		return target{}, &sanitize.FieldError{Field: "eventId", Reason: "or searchQuery is required"}
	}
	if t.window, err = d.searchWindow(cmd); err != nil {
		return target{}, err
	}
	return t, nil
}

func (d *Dispatcher) resolve(ctx context.Context, t target) (*Event, error) {
	if t.eventID != "" {
		return &Event{ID: t.eventID, CalendarID: t.calendarID}, nil
	}
	if err := d.client.Connect(ctx); err != nil {
		return nil, upstream(fmt.Errorf("connecting to calendar: %w", err))
	}
	e, err := d.resolver.Resolve(ctx, t.calendarID, t.query, t.window)
	if err != nil {
		return nil, upstream(err)
	}
	if e == nil {
		if t.window != nil {
			return nil, unresolved(fmt.Errorf("%w for %q between %s and %s", ErrNoTarget, t.query, t.window.Start, t.window.End))
		}
		return nil, unresolved(fmt.Errorf("%w for %q today", ErrNoTarget, t.query))
	}
	d.logger.Debug("dispatcher.resolved", "query", t.query, "event_id", e.ID)
	return e, nil
}
