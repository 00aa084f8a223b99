package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	calcmd "github.com/guilherme-santos/calcmd/calendar"
	"github.com/guilherme-santos/calcmd/internal"
)

const Platform = "google"

// TokenStore keeps the OAuth token of each account.
type TokenStore interface {
	AccountToken(_ context.Context, account string) ([]byte, error)
	SaveAccountToken(_ context.Context, account string, token []byte) error
}

// Client is a calendar transport talking to the Google Calendar API.
type Client struct {
	oauthCfg *oauth2.Config
	tokens   TokenStore
	account  string

	mu  sync.Mutex
	svc *calendar.Service

	// Options are added to the ones built from the stored token.
	Options []option.ClientOption
	// RedirectAddr is where Login listens for the OAuth callback.
	RedirectAddr string
	Output       io.Writer
	Verbose      bool
}

var _ calcmd.Transport = (*Client)(nil)

func NewClient(credJSON []byte, tokens TokenStore, account string) (*Client, error) {
	oauthCfg, err := google.ConfigFromJSON(credJSON, calendar.CalendarScope)
	if err != nil {
		return nil, fmt.Errorf("google: parsing credentials file: %v", err)
	}
	return &Client{
		oauthCfg:     oauthCfg,
		tokens:       tokens,
		account:      account,
		RedirectAddr: ":8080",
		Output:       os.Stdout,
	}, nil
}

// Open builds the API service from the stored token and makes one cheap
// request to prove the token works.
func (c *Client) Open(ctx context.Context) error {
	opts, err := c.authOptions(ctx)
	if err != nil {
		return err
	}
	svc, err := calendar.NewService(ctx, append(opts, c.Options...)...)
	if err != nil {
		return fmt.Errorf("google: creating service: %w", err)
	}
	if _, err := svc.CalendarList.List().MaxResults(1).Context(ctx).Do(); err != nil {
		return fmt.Errorf("google: %w", remoteError(err))
	}

	c.mu.Lock()
	c.svc = svc
	c.mu.Unlock()
	c.logf(nil, "connected as %s", c.account)
	return nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	c.svc = nil
	c.mu.Unlock()
	return nil
}

func (c *Client) Invoke(ctx context.Context, op string, args internal.Args) (json.RawMessage, error) {
	c.mu.Lock()
	svc := c.svc
	c.mu.Unlock()
	if svc == nil {
		return nil, calcmd.ErrClosed
	}

	res, err := c.invoke(ctx, svc, op, args)
	if err != nil {
		return nil, remoteError(err)
	}
	return json.Marshal(res)
}

func (c *Client) invoke(ctx context.Context, svc *calendar.Service, op string, args internal.Args) (any, error) {
	calID := str(args, "calendarId")
	if calID == "" {
		calID = "primary"
	}
	cal := &internal.Calendar{ID: calID}

	switch op {
	case internal.OpCreateEvent:
		msg := fmt.Sprintf("creating event: %q on %s... ", str(args, "summary"), str(args, "start"))
		event := newGoogleEvent(args)
		event.Reminders = &calendar.EventReminders{UseDefault: true}
		gevent, err := svc.Events.Insert(calID, event).Context(ctx).Do()
		c.logResult(cal, msg, err)
		if err != nil {
			return nil, err
		}
		return map[string]any{"event": gevent}, nil

	case internal.OpListEvents, internal.OpSearchEvents:
		call := svc.Events.List(calID).
			Context(ctx).
			ShowDeleted(false).
			SingleEvents(true).
			OrderBy("startTime").
			MaxResults(250)
		if v := str(args, "timeMin"); v != "" {
			call = call.TimeMin(v)
		}
		if v := str(args, "timeMax"); v != "" {
			call = call.TimeMax(v)
		}
		if v := str(args, "timeZone"); v != "" {
			call = call.TimeZone(v)
		}
		if v := str(args, "query"); v != "" {
			call = call.Q(v)
		}
		it := newEventIterator()
		go c.events(ctx, cal, call, it.events)

		items := []*calendar.Event{}
		for it.Next() {
			items = append(items, it.Event())
		}
		if err := it.Err(); err != nil {
			return nil, err
		}
		return map[string]any{"events": items}, nil

	case internal.OpUpdateEvent:
		id := str(args, "eventId")
		msg := fmt.Sprintf("updating event %s... ", id)
		gevent, err := svc.Events.Patch(calID, id, newGoogleEvent(args)).Context(ctx).Do()
		c.logResult(cal, msg, err)
		if err != nil {
			return nil, err
		}
		return map[string]any{"event": gevent}, nil

	case internal.OpDeleteEvent:
		id := str(args, "eventId")
		msg := fmt.Sprintf("deleting event %s... ", id)
		err := svc.Events.Delete(calID, id).Context(ctx).Do()
		if alreadyDeleted(err) {
			err = nil
		}
		c.logResult(cal, msg, err)
		if err != nil {
			return nil, err
		}
		return map[string]any{"message": "Event " + id + " deleted"}, nil

	case internal.OpListCalendars:
		items := []*calendar.CalendarListEntry{}
		err := svc.CalendarList.List().Context(ctx).Pages(ctx, func(page *calendar.CalendarList) error {
			items = append(items, page.Items...)
			return nil
		})
		if err != nil {
			return nil, err
		}
		return map[string]any{"calendars": items}, nil

	case internal.OpListColors:
		return svc.Colors.Get().Context(ctx).Do()

	case internal.OpGetCurrentTime:
		zone := str(args, "timeZone")
		if zone == "" {
			setting, err := svc.Settings.Get("timezone").Context(ctx).Do()
			if err != nil {
				return nil, err
			}
			zone = setting.Value
		}
		loc, err := time.LoadLocation(zone)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"currentTime": time.Now().In(loc).Format(time.RFC3339),
			"timeZone":    zone,
		}, nil

	case internal.OpGetFreeBusy:
		req := &calendar.FreeBusyRequest{
			TimeMin:  str(args, "timeMin"),
			TimeMax:  str(args, "timeMax"),
			TimeZone: str(args, "timeZone"),
		}
		ids, _ := args["calendars"].([]string)
		if len(ids) == 0 {
			ids = []string{calID}
		}
		for _, id := range ids {
			req.Items = append(req.Items, &calendar.FreeBusyRequestItem{Id: id})
		}
		return svc.Freebusy.Query(req).Context(ctx).Do()

	default:
		return nil, &calcmd.RemoteError{Code: "unknownOperation", Message: op}
	}
}

// events pages through call and feeds every event into eventCh.
func (c *Client) events(ctx context.Context, cal *internal.Calendar, call *calendar.EventsListCall, eventCh chan eventOrError) {
	c.logf(cal, "checking for events")

	defer close(eventCh)

	var nextPageToken string
	for {
		events, err := call.PageToken(nextPageToken).Do()
		if err != nil {
			c.logf(cal, "unable to get list of events: %v", err)
			eventCh <- eventOrError{err: err}
			return
		}
		for _, item := range events.Items {
			select {
			case eventCh <- eventOrError{e: item}:
			case <-ctx.Done():
				eventCh <- eventOrError{err: ctx.Err()}
				return
			}
		}
		nextPageToken = events.NextPageToken
		if nextPageToken == "" {
			return
		}
	}
}

// Login runs the OAuth consent flow and returns the token as JSON.
func (c *Client) Login(ctx context.Context) ([]byte, error) {
	state := fmt.Sprintf("calcmd-%d", time.Now().UTC().Nanosecond())
	authURL := c.oauthCfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	fmt.Fprintf(c.Output, "\nGo to the following link in your browser\n%s\n", authURL)

	mux := http.NewServeMux()
	server := &http.Server{
		Addr:    c.RedirectAddr,
		Handler: mux,
	}

	var (
		token   *oauth2.Token
		authErr error
	)

	mux.HandleFunc("/calcmd", func(w http.ResponseWriter, req *http.Request) {
		defer func() {
			go server.Shutdown(ctx)
		}()

		query := req.URL.Query()
		if query.Get("state") != state {
			authErr = errors.New("oauth link is not valid")
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		token, authErr = c.oauthCfg.Exchange(ctx, query.Get("code"))
		if authErr != nil {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprintln(w, "Unable to retrieve token:", authErr)
			return
		}

		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "All good, you can close this window!")
	})

	serverCh := make(chan struct{})
	var svrErr error
	go func() {
		svrErr = server.ListenAndServe()
		close(serverCh)
	}()

	select {
	case <-serverCh:
	case <-ctx.Done():
		_ = server.Close()
		<-serverCh
		return nil, ctx.Err()
	}

	if svrErr != nil && svrErr != http.ErrServerClosed {
		return nil, svrErr
	}
	if authErr != nil {
		return nil, authErr
	}
	return json.Marshal(token)
}

func (c *Client) authOptions(ctx context.Context) ([]option.ClientOption, error) {
	if c.oauthCfg == nil || c.tokens == nil {
		return nil, nil
	}
	raw, err := c.tokens.AccountToken(ctx, c.account)
	if err != nil {
		return nil, fmt.Errorf("google: loading token of %s: %w", c.account, err)
	}
	var tok *oauth2.Token
	if err := json.Unmarshal(raw, &tok); err != nil {
		return nil, fmt.Errorf("google: decoding token of %s: %w", c.account, err)
	}

	// The service outlives ctx, which only bounds the connect attempt.
	src := &savingTokenSource{
		src:     c.oauthCfg.TokenSource(context.Background(), tok),
		last:    tok.AccessToken,
		save:    c.tokens.SaveAccountToken,
		account: c.account,
	}
	return []option.ClientOption{option.WithTokenSource(oauth2.ReuseTokenSource(tok, src))}, nil
}

// savingTokenSource stores refreshed tokens so the next run starts with a
// valid one.
type savingTokenSource struct {
	src     oauth2.TokenSource
	save    func(context.Context, string, []byte) error
	account string

	mu   sync.Mutex
	last string
}

func (s *savingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.src.Token()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.AccessToken != s.last {
		s.last = tok.AccessToken
		if raw, err := json.Marshal(tok); err == nil {
			_ = s.save(context.Background(), s.account, raw)
		}
	}
	return tok, nil
}

func (c *Client) logResult(cal *internal.Calendar, msg string, err error) {
	if err != nil {
		c.logf(cal, "%s❌ %v", msg, err)
		return
	}
	c.logf(cal, "%s✅", msg)
}

func (c *Client) logf(cal *internal.Calendar, format string, a ...any) {
	if c.Verbose && c.Output != nil {
		internal.Logf(c.Output, "google:", cal, format, a...)
	}
}

func str(args internal.Args, key string) string {
	v, _ := args[key].(string)
	return v
}

// remoteError turns API errors into calendar.RemoteError, keeping the first
// reason Google reported as the code.
func remoteError(err error) error {
	var gErr *googleapi.Error
	if !errors.As(err, &gErr) {
		return err
	}
	code := strconv.Itoa(gErr.Code)
	for _, e := range gErr.Errors {
		if e.Reason != "" {
			code = e.Reason
			break
		}
	}
	msg := gErr.Message
	if msg == "" {
		msg = http.StatusText(gErr.Code)
	}
	return &calcmd.RemoteError{Code: code, Message: msg}
}

func alreadyDeleted(err error) bool {
	return errIsReason(err, "deleted")
}

func errIsReason(err error, reason string) bool {
	var gErr *googleapi.Error
	if !errors.As(err, &gErr) {
		return false
	}

	for _, err := range gErr.Errors {
		switch err.Reason {
		case reason:
			return true
		}
	}
	return false
}
