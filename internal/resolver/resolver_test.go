package resolver_test

import (
	"context"
	"testing"
	"time"

	"github.com/guilherme-santos/calcmd/calendar"
	"github.com/guilherme-santos/calcmd/calendar/calendartest"
	"github.com/guilherme-santos/calcmd/internal"
	"github.com/guilherme-santos/calcmd/internal/resolver"
)

func connected(t *testing.T) (*calendartest.Fake, *calendar.Client) {
	t.Helper()
	fake := calendartest.NewFake()
	client := calendar.NewClient(fake, time.Second, nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	return fake, client
}

func TestResolveDefaultsToToday(t *testing.T) {
	fake, client := connected(t)
	berlin, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Skipf("zone data unavailable: %v", err)
	}
	fake.AddEvent("primary", "Dinner with Bob", "2025-08-20T16:00:00Z", "2025-08-20T17:00:00Z")
	fake.AddEvent("primary", "Dinner with Bob", "2025-08-21T16:00:00Z", "2025-08-21T17:00:00Z")

	r := resolver.New(client, berlin, nil)
	r.Now = func() time.Time { return time.Date(2025, 8, 20, 9, 0, 0, 0, berlin) }

	e, err := r.Resolve(context.Background(), "primary", "dinner", nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if e == nil || e.Start != "2025-08-20T16:00:00.000Z" {
		t.Fatalf("expected today's dinner, got %+v", e)
	}

	calls := fake.Calls()
	if len(calls) != 1 || calls[0].Op != internal.OpSearchEvents {
		t.Fatalf("expected a single search, got %v", fake.Ops())
	}
	if calls[0].Args["timeMin"] != "2025-08-19T22:00:00.000Z" || calls[0].Args["timeMax"] != "2025-08-20T22:00:00.000Z" {
		t.Fatalf("unexpected window %v..%v", calls[0].Args["timeMin"], calls[0].Args["timeMax"])
	}
}

func TestResolveNoMatch(t *testing.T) {
	fake, client := connected(t)
	r := resolver.New(client, time.UTC, nil)

	window := &internal.Window{Start: "2025-08-20T00:00:00.000Z", End: "2025-08-21T00:00:00.000Z", Zone: "UTC"}
	e, err := r.Resolve(context.Background(), "primary", "dentist", window)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if e != nil {
		t.Fatalf("expected no target, got %+v", e)
	}
	if len(fake.Calls()) != 1 {
		t.Fatalf("the window must not be widened, got %v", fake.Ops())
	}
}

func TestResolveTakesBackendOrder(t *testing.T) {
	fake, client := connected(t)
	fake.Respond(internal.OpSearchEvents, `{"events":[
		{"id":"second","summary":"Gym","start":"2025-08-20T18:00:00Z","end":"2025-08-20T19:00:00Z"},
		{"id":"first","summary":"Gym","start":"2025-08-20T07:00:00Z","end":"2025-08-20T08:00:00Z"}
	]}`)
	r := resolver.New(client, time.UTC, nil)

	e, err := r.Resolve(context.Background(), "primary", "gym", nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if e == nil || e.ID != "second" {
		t.Fatalf("expected the first listed event, got %+v", e)
	}
}

func TestResolveUpstreamError(t *testing.T) {
	fake, client := connected(t)
	fake.Fail(internal.OpSearchEvents, calendartest.ErrUnavailable)
	r := resolver.New(client, time.UTC, nil)

	if _, err := r.Resolve(context.Background(), "primary", "gym", nil); err == nil {
		t.Fatalf("expected the search error to surface")
	}
}
