// Package resolver finds the event an update or delete is about when the
// command names it by description instead of by id.
package resolver

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/guilherme-santos/calcmd/internal"
	"github.com/guilherme-santos/calcmd/internal/datetime"
	"github.com/guilherme-santos/calcmd/internal/response"
)

type Resolver struct {
	client internal.Client
	loc    *time.Location
	logger *slog.Logger

	Now func() time.Time
}

func New(client internal.Client, loc *time.Location, logger *slog.Logger) *Resolver {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = internal.NopLogger()
	}
	return &Resolver{
		client: client,
		loc:    loc,
		logger: logger,
		Now:    time.Now,
	}
}

// Resolve searches calendarID for query within window, today in the
// configured zone when window is nil, and returns the first event in the
// order the backend listed them. It returns nil, nil when nothing matched;
// the window is never widened.
func (r *Resolver) Resolve(ctx context.Context, calendarID, query string, window *internal.Window) (*internal.Event, error) {
	if window == nil {
		w := datetime.Day(r.Now(), r.loc)
		window = &w
	}
	args := internal.Args{
		"calendarId": calendarID,
		"query":      strings.TrimSpace(query),
		"timeMin":    window.Start,
		"timeMax":    window.End,
	}
	if window.Zone != "" {
		args["timeZone"] = window.Zone
	}

	raw, err := r.client.Call(ctx, internal.OpSearchEvents, args)
	if err != nil {
		return nil, err
	}
	events, err := response.Events(raw)
	if err != nil {
		return nil, err
	}

	r.logger.Debug("resolver.search", "query", query, "start", window.Start, "end", window.End, "matches", len(events))
	for _, e := range events {
		if e.ID != "" {
			e := e
			return &e, nil
		}
	}
	return nil, nil
}
