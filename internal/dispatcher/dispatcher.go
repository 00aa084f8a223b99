package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/guilherme-santos/calcmd/internal"
	"github.com/guilherme-santos/calcmd/internal/command"
	"github.com/guilherme-santos/calcmd/internal/datetime"
	"github.com/guilherme-santos/calcmd/internal/resolver"
	"github.com/guilherme-santos/calcmd/internal/response"
)

type (
	Command = internal.Command
	Result  = internal.Result
	Event   = internal.Event
	Window  = internal.Window
)

// Journal keeps a record of every dispatched command.
type Journal interface {
	RecordDispatch(context.Context, internal.Dispatch) error
}

type Horizons struct {
	List         time.Duration
	Search       time.Duration
	Availability time.Duration
	FreeBusy     time.Duration
}

func DefaultHorizons() Horizons {
	return Horizons{
		List:         7 * 24 * time.Hour,
		Search:       30 * 24 * time.Hour,
		Availability: 7 * 24 * time.Hour,
		FreeBusy:     7 * 24 * time.Hour,
	}
}

type Config struct {
	TimeZone   string
	CalendarID string
	Horizons   Horizons
}

type Dispatcher struct {
	client   internal.Client
	resolver *resolver.Resolver
	journal  Journal
	logger   *slog.Logger

	loc        *time.Location
	zone       string
	calendarID string
	horizons   Horizons

	Now func() time.Time
}

// New validates cfg and returns a Dispatcher. journal and logger may be nil.
func New(client internal.Client, journal Journal, logger *slog.Logger, cfg Config) (*Dispatcher, error) {
	loc, zone, err := datetime.LoadZone(cfg.TimeZone, "UTC")
	if err != nil {
		return nil, err
	}
	if cfg.CalendarID == "" {
		cfg.CalendarID = "primary"
	}
	h := DefaultHorizons()
	if cfg.Horizons.List > 0 {
		h.List = cfg.Horizons.List
	}
	if cfg.Horizons.Search > 0 {
		h.Search = cfg.Horizons.Search
	}
	if cfg.Horizons.Availability > 0 {
		h.Availability = cfg.Horizons.Availability
	}
	if cfg.Horizons.FreeBusy > 0 {
		h.FreeBusy = cfg.Horizons.FreeBusy
	}
	if logger == nil {
		logger = internal.NopLogger()
	}

	d := &Dispatcher{
		client:     client,
		journal:    journal,
		logger:     logger,
		loc:        loc,
		zone:       zone,
		calendarID: cfg.CalendarID,
		horizons:   h,
		Now:        time.Now,
	}
	d.resolver = resolver.New(client, loc, logger)
	d.resolver.Now = func() time.Time { return d.Now() }
	return d, nil
}

// Interpret parses text and dispatches the command it carries. Extract and
// parse failures come back as results too; Result.IsCommand tells the
// caller to treat text as prose instead.
func (d *Dispatcher) Interpret(ctx context.Context, text string) Result {
	cmd, err := command.Parse(text)
	if err != nil {
		var f *command.Failure
		if !errors.As(err, &f) {
			return internal.Failed("", internal.StageParse, err.Error())
		}
		res := internal.Failed("", f.Stage, f.Err.Error())
		if f.Stage != internal.StageExtract {
			d.record(ctx, uuid.NewString(), res)
		}
		return res
	}
	if cmd.Repaired {
		d.logger.Debug("dispatcher.repaired", "kind", cmd.Kind)
	}
	return d.Dispatch(ctx, cmd)
}

// Dispatch validates cmd, runs it against the calendar backend and
// normalizes what came back. It never retries.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd *Command) Result {
	if cmd == nil {
		return internal.Failed("", internal.StageValidate, "missing command")
	}
	reqID := uuid.NewString()
	started := d.Now()

	data, err := d.dispatch(ctx, cmd)
	var res Result
	if err != nil {
		stage := internal.StageUpstream
		var se *stageError
		if errors.As(err, &se) {
			stage = se.stage
		}
		res = internal.Failed(cmd.Kind, stage, err.Error())
	} else {
		res = internal.Succeeded(cmd.Kind, data)
	}

	attrs := []any{"request_id", reqID, "kind", cmd.Kind, "ok", res.OK, "duration_ms", d.Now().Sub(started).Milliseconds()}
	if res.Error != nil {
		attrs = append(attrs, "stage", res.Error.Stage, "error", res.Error.Message)
		d.logger.Warn("dispatcher.dispatch", attrs...)
	} else {
		d.logger.Info("dispatcher.dispatch", attrs...)
	}
	d.record(ctx, reqID, res)
	return res
}

func (d *Dispatcher) record(ctx context.Context, reqID string, res Result) {
	if d.journal == nil {
		return
	}
	if err := d.journal.RecordDispatch(ctx, internal.NewDispatch(reqID, res, d.Now())); err != nil {
		d.logger.Warn("dispatcher.journal_failed", "request_id", reqID, "error", err.Error())
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, cmd *Command) (map[string]any, error) {
	if cmd.Params == nil {
		cmd.Params = map[string]any{}
	}

	switch cmd.Kind {
	case internal.KindCreate:
		return d.create(ctx, cmd)
	case internal.KindUpdate:
		return d.update(ctx, cmd)
	case internal.KindDelete:
		return d.delete(ctx, cmd)
	case internal.KindList:
		return d.list(ctx, cmd)
	case internal.KindSearch:
		return d.search(ctx, cmd)
	case internal.KindAvailability:
		return d.availability(ctx, cmd)
	case internal.KindFreeBusy:
		return d.freeBusy(ctx, cmd)
	case internal.KindListCalendars:
		return d.simple(ctx, cmd, internal.OpListCalendars)
	case internal.KindListColors:
		return d.simple(ctx, cmd, internal.OpListColors)
	case internal.KindCurrentTime:
		return d.simple(ctx, cmd, internal.OpGetCurrentTime)
	default:
		return nil, invalid(fmt.Errorf("%w: %q", internal.ErrUnknownKind, cmd.Kind))
	}
}

// call connects if needed and invokes op. Every error it returns is an
// upstream one.
func (d *Dispatcher) call(ctx context.Context, op string, args internal.Args) ([]byte, error) {
	if err := d.client.Connect(ctx); err != nil {
		return nil, upstream(fmt.Errorf("connecting to calendar: %w", err))
	}
	raw, err := d.client.Call(ctx, op, args)
	if err != nil {
		return nil, upstream(err)
	}
	return raw, nil
}

func (d *Dispatcher) normalize(kind internal.Kind, raw []byte) (map[string]any, error) {
	data, err := response.Normalize(kind, raw)
	if err != nil {
		return nil, upstream(err)
	}
	return data, nil
}

// simple runs the operations whose only parameter is an optional zone.
func (d *Dispatcher) simple(ctx context.Context, cmd *Command, op string) (map[string]any, error) {
	zone, err := d.timeZone(cmd)
	if err != nil {
		return nil, invalid(err)
	}
	args := internal.Args{}
	if op == internal.OpGetCurrentTime || zone != d.zone {
		args["timeZone"] = zone
	}
	raw, err := d.call(ctx, op, args)
	if err != nil {
		return nil, err
	}
	return d.normalize(cmd.Kind, raw)
}

type stageError struct {
	stage internal.Stage
	err   error
}

func (e *stageError) Error() string {
	return e.err.Error()
}

func (e *stageError) Unwrap() error {
	return e.err
}

func invalid(err error) error {
	return &stageError{stage: internal.StageValidate, err: err}
}

func upstream(err error) error {
	return &stageError{stage: internal.StageUpstream, err: err}
}

func unresolved(err error) error {
	return &stageError{stage: internal.StageResolve, err: err}
}
