package dispatcher_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/guilherme-santos/calcmd/calendar"
	"github.com/guilherme-santos/calcmd/calendar/calendartest"
	"github.com/guilherme-santos/calcmd/internal"
	"github.com/guilherme-santos/calcmd/internal/dispatcher"
)

var now = time.Date(2025, 8, 20, 9, 0, 0, 0, time.UTC)

type journal struct {
	mu      sync.Mutex
	entries []internal.Dispatch
}

func (j *journal) RecordDispatch(_ context.Context, d internal.Dispatch) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, d)
	return nil
}

func setup(t *testing.T) (*dispatcher.Dispatcher, *calendartest.Fake, *journal) {
	t.Helper()
	fake := calendartest.NewFake()
	client := calendar.NewClient(fake, time.Second, nil)
	j := &journal{}
	d, err := dispatcher.New(client, j, nil, dispatcher.Config{TimeZone: "UTC"})
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	d.Now = func() time.Time { return now }
	return d, fake, j
}

func cmd(kind internal.Kind, params map[string]any) *internal.Command {
	return &internal.Command{Kind: kind, Params: params}
}

func expectFailure(t *testing.T, res internal.Result, stage internal.Stage) {
	t.Helper()
	if res.OK || res.Error == nil {
		t.Fatalf("expected failure at %s, got %+v", stage, res)
	}
	if res.Error.Stage != stage {
		t.Fatalf("expected stage %s, got %s (%s)", stage, res.Error.Stage, res.Error.Message)
	}
}

func TestInterpretCreate(t *testing.T) {
	d, fake, j := setup(t)

	res := d.Interpret(context.Background(), `Sure! {"kind":"create","title":"Study","start":"2025-08-20T15:00","end":"2025-08-20T16:00"}`)
	if !res.OK {
		t.Fatalf("expected success, got %+v", res.Error)
	}

	calls := fake.Calls()
	if len(calls) != 1 || calls[0].Op != internal.OpCreateEvent {
		t.Fatalf("expected one create-event call, got %v", fake.Ops())
	}
	args := calls[0].Args
	if args["start"] != "2025-08-20T15:00:00.000Z" || args["end"] != "2025-08-20T16:00:00.000Z" {
		t.Fatalf("expected normalized timestamps, got %v %v", args["start"], args["end"])
	}
	if args["calendarId"] != "primary" {
		t.Fatalf("expected calendarId to default to primary, got %v", args["calendarId"])
	}
	if args["summary"] != "Study" {
		t.Fatalf("unexpected summary %v", args["summary"])
	}

	e, ok := res.Data["event"].(internal.Event)
	if !ok || e.ID == "" || e.Title != "Study" || e.Start != "2025-08-20T15:00:00.000Z" {
		t.Fatalf("unexpected event %+v", res.Data)
	}
	if len(j.entries) != 1 || !j.entries[0].OK || j.entries[0].Kind != internal.KindCreate {
		t.Fatalf("expected one journal entry, got %+v", j.entries)
	}
}

func TestDispatchCreateValidation(t *testing.T) {
	tests := []struct {
		name   string
		params map[string]any
	}{
		{"missing title", map[string]any{"start": "2025-08-20T15:00", "end": "2025-08-20T16:00"}},
		{"blank title", map[string]any{"title": "  ", "start": "2025-08-20T15:00", "end": "2025-08-20T16:00"}},
		{"missing end", map[string]any{"title": "x", "start": "2025-08-20T15:00"}},
		{"invalid date", map[string]any{"title": "x", "start": "2025-13-40T25:70:70", "end": "2025-08-20T16:00"}},
		{"inverted window", map[string]any{"title": "x", "start": "2025-08-20T16:00:00", "end": "2025-08-20T15:00:00"}},
		{"empty window", map[string]any{"title": "x", "start": "2025-08-20T16:00", "end": "2025-08-20T16:00"}},
		{"bad attendee", map[string]any{"title": "x", "start": "2025-08-20T15:00", "end": "2025-08-20T16:00", "attendees": "bob"}},
		{"bad zone", map[string]any{"title": "x", "start": "2025-08-20T15:00", "end": "2025-08-20T16:00", "timeZone": "Mars/Olympus"}},
		{"bad rule", map[string]any{"title": "x", "start": "2025-08-20T15:00", "end": "2025-08-20T16:00", "recurrence": "RRULE:FREQ=SOMETIMES"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, fake, _ := setup(t)
			res := d.Dispatch(context.Background(), cmd(internal.KindCreate, tt.params))
			expectFailure(t, res, internal.StageValidate)
			if len(fake.Calls()) != 0 || fake.Opens() != 0 {
				t.Fatalf("validation failures must not reach the backend")
			}
		})
	}
}

func TestDispatchCreateOptionalFields(t *testing.T) {
	d, fake, _ := setup(t)

	res := d.Dispatch(context.Background(), cmd(internal.KindCreate, map[string]any{
		"summary":    "Standup",
		"start":      "2025-08-21T09:00:00+02:00",
		"end":        "2025-08-21T09:15:00+02:00",
		"attendees":  []any{"a@example.com", map[string]any{"email": "b@example.com"}},
		"recurrence": "FREQ=WEEKLY;BYDAY=MO,WE",
		"colorId":    7,
		"calendarId": "work",
		"timezone":   "Europe/Berlin",
	}))
	if !res.OK {
		t.Fatalf("expected success, got %+v", res.Error)
	}
	args := fake.Calls()[0].Args
	if args["start"] != "2025-08-21T07:00:00.000Z" || args["timeZone"] != "Europe/Berlin" || args["calendarId"] != "work" {
		t.Fatalf("unexpected args %v", args)
	}
	if rules := args["recurrence"].([]string); len(rules) != 1 || rules[0] != "RRULE:FREQ=WEEKLY;BYDAY=MO,WE" {
		t.Fatalf("unexpected recurrence %v", args["recurrence"])
	}
	if emails := args["attendees"].([]string); len(emails) != 2 || emails[1] != "b@example.com" {
		t.Fatalf("unexpected attendees %v", args["attendees"])
	}
	if args["colorId"] != "7" {
		t.Fatalf("expected colorId as string, got %v", args["colorId"])
	}
}

func TestDispatchDeleteNoTarget(t *testing.T) {
	for _, kind := range []internal.Kind{internal.KindDelete, internal.KindUpdate} {
		t.Run(string(kind), func(t *testing.T) {
			d, fake, _ := setup(t)
			fake.AddEvent("primary", "Dinner", "2025-08-22T18:00:00Z", "2025-08-22T19:00:00Z")

			res := d.Dispatch(context.Background(), cmd(kind, map[string]any{
				"searchQuery": "dinner",
				"title":       "Late dinner",
			}))
			expectFailure(t, res, internal.StageResolve)
			for _, op := range fake.Ops() {
				if op != internal.OpSearchEvents {
					t.Fatalf("no mutating call expected, got %v", fake.Ops())
				}
			}
			if len(fake.Ops()) != 1 {
				t.Fatalf("expected exactly one search, got %v", fake.Ops())
			}
		})
	}
}

func TestDispatchDeleteByQuery(t *testing.T) {
	d, fake, _ := setup(t)
	id := fake.AddEvent("primary", "Dinner with Bob", "2025-08-20T18:00:00Z", "2025-08-20T19:00:00Z")

	res := d.Dispatch(context.Background(), cmd(internal.KindDelete, map[string]any{"query": "Bob"}))
	if !res.OK {
		t.Fatalf("expected success, got %+v", res.Error)
	}
	ops := fake.Ops()
	if len(ops) != 2 || ops[0] != internal.OpSearchEvents || ops[1] != internal.OpDeleteEvent {
		t.Fatalf("unexpected ops %v", ops)
	}
	if fake.Calls()[1].Args["eventId"] != id {
		t.Fatalf("deleted the wrong event: %v", fake.Calls()[1].Args)
	}
	if res.Data["deleted"] != true || res.Data["eventId"] != id {
		t.Fatalf("unexpected data %v", res.Data)
	}
	if e, ok := res.Data["event"].(internal.Event); !ok || e.Title != "Dinner with Bob" {
		t.Fatalf("expected the resolved event in data, got %v", res.Data["event"])
	}
}

func TestDispatchDeleteByDate(t *testing.T) {
	d, fake, _ := setup(t)
	id := fake.AddEvent("primary", "Dentist", "2025-08-25T10:00:00Z", "2025-08-25T11:00:00Z")

	res := d.Dispatch(context.Background(), cmd(internal.KindDelete, map[string]any{"searchQuery": "dentist", "date": "2025-08-25"}))
	if !res.OK {
		t.Fatalf("expected success, got %+v", res.Error)
	}
	search := fake.Calls()[0].Args
	if search["timeMin"] != "2025-08-25T00:00:00.000Z" || search["timeMax"] != "2025-08-26T00:00:00.000Z" {
		t.Fatalf("unexpected search window %v", search)
	}
	if res.Data["eventId"] != id {
		t.Fatalf("unexpected data %v", res.Data)
	}
}

func TestDispatchUpdate(t *testing.T) {
	d, fake, _ := setup(t)
	id := fake.AddEvent("primary", "Gym", "2025-08-20T18:00:00Z", "2025-08-20T19:00:00Z")

	res := d.Dispatch(context.Background(), cmd(internal.KindUpdate, map[string]any{"eventId": id}))
	expectFailure(t, res, internal.StageValidate)

	res = d.Dispatch(context.Background(), cmd(internal.KindUpdate, map[string]any{"title": "Gym"}))
	expectFailure(t, res, internal.StageValidate)
	if len(fake.Calls()) != 0 {
		t.Fatalf("invalid updates must not reach the backend, got %v", fake.Ops())
	}

	res = d.Dispatch(context.Background(), cmd(internal.KindUpdate, map[string]any{
		"id":    id,
		"start": "2025-08-20T19:00",
		"end":   "2025-08-20T20:00",
	}))
	if !res.OK {
		t.Fatalf("expected success, got %+v", res.Error)
	}
	args := fake.Calls()[0].Args
	if args["eventId"] != id || args["start"] != "2025-08-20T19:00:00.000Z" {
		t.Fatalf("unexpected args %v", args)
	}
	if _, ok := args["summary"]; ok {
		t.Fatalf("untouched fields must not be sent, got %v", args)
	}
	e := res.Data["event"].(internal.Event)
	if e.Title != "Gym" || e.End != "2025-08-20T20:00:00.000Z" {
		t.Fatalf("unexpected event %+v", e)
	}
}

func TestDispatchListWindow(t *testing.T) {
	d, fake, _ := setup(t)
	fake.AddEvent("primary", "Lunch", "2025-08-20T12:00:00Z", "2025-08-20T13:00:00Z")

	res := d.Dispatch(context.Background(), cmd(internal.KindList, nil))
	if !res.OK {
		t.Fatalf("expected success, got %+v", res.Error)
	}
	args := fake.Calls()[0].Args
	if args["timeMin"] != "2025-08-20T09:00:00.000Z" || args["timeMax"] != "2025-08-27T09:00:00.000Z" {
		t.Fatalf("expected a one week default window, got %v..%v", args["timeMin"], args["timeMax"])
	}
	if events := res.Data["events"].([]internal.Event); len(events) != 1 {
		t.Fatalf("unexpected events %v", events)
	}
	if w := res.Data["window"].(internal.Window); w.Zone != "UTC" {
		t.Fatalf("unexpected window %+v", w)
	}

	res = d.Dispatch(context.Background(), cmd(internal.KindList, map[string]any{"start": "2025-09-01"}))
	if !res.OK {
		t.Fatalf("expected success, got %+v", res.Error)
	}
	args = fake.Calls()[1].Args
	if args["timeMin"] != "2025-09-01T00:00:00.000Z" || args["timeMax"] != "2025-09-08T00:00:00.000Z" {
		t.Fatalf("expected start plus horizon, got %v..%v", args["timeMin"], args["timeMax"])
	}

	res = d.Dispatch(context.Background(), cmd(internal.KindList, map[string]any{"timeMax": "2025-08-19T00:00:00Z"}))
	expectFailure(t, res, internal.StageValidate)
}

func TestDispatchSearch(t *testing.T) {
	d, fake, _ := setup(t)

	res := d.Dispatch(context.Background(), cmd(internal.KindSearch, map[string]any{}))
	expectFailure(t, res, internal.StageValidate)

	fake.AddEvent("primary", "Yoga", "2025-09-10T07:00:00Z", "2025-09-10T08:00:00Z")
	res = d.Dispatch(context.Background(), cmd(internal.KindSearch, map[string]any{"searchQuery": "yoga"}))
	if !res.OK {
		t.Fatalf("expected success, got %+v", res.Error)
	}
	args := fake.Calls()[0].Args
	if args["query"] != "yoga" || args["timeMax"] != "2025-09-19T09:00:00.000Z" {
		t.Fatalf("unexpected args %v", args)
	}
	if events := res.Data["events"].([]internal.Event); len(events) != 1 {
		t.Fatalf("expected one match within a month, got %v", events)
	}
}

func TestDispatchAvailability(t *testing.T) {
	d, fake, _ := setup(t)
	fake.AddEvent("primary", "A", "2025-08-20T10:00:00Z", "2025-08-20T11:00:00Z")
	fake.AddEvent("primary", "B", "2025-08-20T10:30:00Z", "2025-08-20T12:00:00Z")
	fake.AddEvent("primary", "C", "2025-08-20T15:00:00Z", "2025-08-20T19:00:00Z")

	res := d.Dispatch(context.Background(), cmd(internal.KindAvailability, map[string]any{
		"start": "2025-08-20T09:00",
		"end":   "2025-08-20T17:00",
	}))
	if !res.OK {
		t.Fatalf("expected success, got %+v", res.Error)
	}
	if ops := fake.Ops(); len(ops) != 1 || ops[0] != internal.OpListEvents {
		t.Fatalf("availability must list events, got %v", ops)
	}
	busy := res.Data["busy"].([]internal.Interval)
	free := res.Data["free"].([]internal.Interval)
	want := []internal.Interval{
		{Start: "2025-08-20T10:00:00.000Z", End: "2025-08-20T12:00:00.000Z"},
		{Start: "2025-08-20T15:00:00.000Z", End: "2025-08-20T17:00:00.000Z"},
	}
	if len(busy) != 2 || busy[0] != want[0] || busy[1] != want[1] {
		t.Fatalf("unexpected busy %v", busy)
	}
	if len(free) != 2 || free[0].Start != "2025-08-20T09:00:00.000Z" || free[1].End != "2025-08-20T15:00:00.000Z" {
		t.Fatalf("unexpected free %v", free)
	}
}

func TestDispatchFreeBusy(t *testing.T) {
	d, fake, _ := setup(t)
	fake.AddEvent("primary", "A", "2025-08-20T10:00:00Z", "2025-08-20T11:00:00Z")

	res := d.Dispatch(context.Background(), cmd(internal.KindFreeBusy, nil))
	if !res.OK {
		t.Fatalf("expected success, got %+v", res.Error)
	}
	if ids := fake.Calls()[0].Args["calendars"].([]string); len(ids) != 1 || ids[0] != "primary" {
		t.Fatalf("expected the default calendar, got %v", ids)
	}
	busy := res.Data["calendars"].(map[string][]internal.Interval)
	if len(busy["primary"]) != 1 {
		t.Fatalf("unexpected busy map %v", busy)
	}
}

func TestDispatchSimpleOperations(t *testing.T) {
	d, fake, _ := setup(t)
	fake.Now = func() time.Time { return now }

	res := d.Dispatch(context.Background(), cmd(internal.KindListCalendars, nil))
	if cals, ok := res.Data["calendars"].([]internal.Calendar); !res.OK || !ok || len(cals) != 1 {
		t.Fatalf("unexpected calendars result %+v", res)
	}

	res = d.Dispatch(context.Background(), cmd(internal.KindListColors, nil))
	if colors, ok := res.Data["colors"].(map[string]internal.Color); !res.OK || !ok || len(colors) != 2 {
		t.Fatalf("unexpected colors result %+v", res)
	}

	res = d.Dispatch(context.Background(), cmd(internal.KindCurrentTime, map[string]any{"timeZone": "Asia/Tokyo"}))
	if !res.OK || res.Data["utc"] != "2025-08-20T09:00:00.000Z" || res.Data["timeZone"] != "Asia/Tokyo" {
		t.Fatalf("unexpected current time result %+v", res)
	}

	res = d.Dispatch(context.Background(), cmd(internal.KindCurrentTime, map[string]any{"timeZone": "Nowhere/Special"}))
	expectFailure(t, res, internal.StageValidate)
}

func TestDispatchUpstreamFailure(t *testing.T) {
	d, fake, j := setup(t)
	fake.Fail(internal.OpListEvents, &calendar.RemoteError{Code: "backendError", Message: "try later"})

	res := d.Dispatch(context.Background(), cmd(internal.KindList, nil))
	expectFailure(t, res, internal.StageUpstream)
	if !res.Error.Retryable {
		t.Fatalf("upstream failures are retryable")
	}
	if len(fake.Calls()) != 1 {
		t.Fatalf("failed calls must not be retried, got %v", fake.Ops())
	}
	if len(j.entries) != 1 || j.entries[0].Stage != internal.StageUpstream {
		t.Fatalf("expected the failure to be journaled, got %+v", j.entries)
	}

	fake.Respond(internal.OpListCalendars, `{"content":[{"type":"text","text":"quota exceeded"}],"isError":true}`)
	res = d.Dispatch(context.Background(), cmd(internal.KindListCalendars, nil))
	expectFailure(t, res, internal.StageUpstream)
}

func TestDispatchConnectFailure(t *testing.T) {
	fake := calendartest.NewFake()
	fake.OpenErr = calendartest.ErrUnavailable
	d, err := dispatcher.New(calendar.NewClient(fake, time.Second, nil), nil, nil, dispatcher.Config{})
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}

	res := d.Dispatch(context.Background(), cmd(internal.KindListCalendars, nil))
	expectFailure(t, res, internal.StageUpstream)
}

func TestInterpretProse(t *testing.T) {
	d, fake, j := setup(t)

	res := d.Interpret(context.Background(), "You have nothing planned this afternoon.")
	if res.IsCommand() {
		t.Fatalf("plain text must not count as a command")
	}
	if len(fake.Calls()) != 0 || len(j.entries) != 0 {
		t.Fatalf("prose must not reach the backend or the journal")
	}

	res = d.Interpret(context.Background(), `{"kind": "list", "start": }`)
	expectFailure(t, res, internal.StageParse)
	if res.IsCommand() {
		t.Fatalf("unparseable commands fall back to prose")
	}

	res = d.Interpret(context.Background(), `{"kind":"teleport"}`)
	expectFailure(t, res, internal.StageValidate)
}

func TestNewRejectsBadZone(t *testing.T) {
	if _, err := dispatcher.New(nil, nil, nil, dispatcher.Config{TimeZone: "Not/AZone"}); err == nil {
		t.Fatalf("expected an invalid zone to be rejected")
	}
}
