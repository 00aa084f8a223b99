package main

import (
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/guilherme-santos/calcmd/calendar"
	"github.com/guilherme-santos/calcmd/calendar/calendartest"
	"github.com/guilherme-santos/calcmd/calendar/google"
	"github.com/guilherme-santos/calcmd/calendar/mcp"
	"github.com/guilherme-santos/calcmd/file"
	"github.com/guilherme-santos/calcmd/internal"
	"github.com/guilherme-santos/calcmd/internal/dispatcher"
	"github.com/guilherme-santos/calcmd/internal/sqlite"
)

// app holds what the subcommands share.
type app struct {
	cfgFile string
	cfg     *file.Config
	verbose bool
	logger  *slog.Logger
	out     io.Writer

	db      *sql.DB
	storage *sqlite.Storage
}

func newApp(cfgFile, dbFile string, verbose bool) (*app, error) {
	cfg, err := file.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if dbFile != "" {
		cfg.Database = dbFile
	}
	return &app{
		cfgFile: cfgFile,
		cfg:     cfg,
		verbose: verbose,
		logger:  newLogger(verbose),
		out:     os.Stdout,
	}, nil
}

func (a *app) Storage() (*sqlite.Storage, error) {
	if a.storage != nil {
		return a.storage, nil
	}
	db, err := sql.Open(sqlite.DriverName, a.cfg.Database)
	if err != nil {
		return nil, err
	}
	a.db = db
	a.storage = sqlite.NewStorage(db)
	return a.storage, nil
}

func (a *app) close() {
	if a.db != nil {
		a.db.Close()
	}
}

func (a *app) googleClient(storage *sqlite.Storage) (*google.Client, error) {
	credFile, err := os.ReadFile(a.cfg.Google.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("reading credentials file: %w", err)
	}
	acc := internal.Account{Platform: google.Platform, Name: a.cfg.Google.Account}
	googleCal, err := google.NewClient(credFile, storage, acc.ID())
	if err != nil {
		return nil, err
	}
	googleCal.Verbose = a.verbose
	googleCal.Output = os.Stderr
	return googleCal, nil
}

func (a *app) transport(storage *sqlite.Storage) (calendar.Transport, error) {
	if err := a.cfg.Validate(); err != nil {
		return nil, err
	}

	env := make([]string, 0, len(a.cfg.MCP.Env))
	for k, v := range a.cfg.MCP.Env {
		env = append(env, k+"="+v)
	}

	mux := calendar.NewMux()
	mux.Register(file.BackendFake, calendartest.NewFake())
	mux.Register(file.BackendMCP, mcp.New(mcp.Config{
		Command: a.cfg.MCP.Command,
		Args:    a.cfg.MCP.Args,
		Env:     env,
	}, a.logger))
	if a.cfg.Backend == file.BackendGoogle {
		googleCal, err := a.googleClient(storage)
		if err != nil {
			return nil, err
		}
		mux.Register(file.BackendGoogle, googleCal)
	}
	return mux.Get(a.cfg.Backend)
}

// newDispatcher wires the configured backend and the sqlite journal. The
// returned client must be disconnected by the caller.
func (a *app) newDispatcher() (*dispatcher.Dispatcher, *calendar.Client, error) {
	storage, err := a.Storage()
	if err != nil {
		return nil, nil, err
	}
	t, err := a.transport(storage)
	if err != nil {
		return nil, nil, err
	}

	client := calendar.NewClient(t, time.Duration(a.cfg.ConnectTimeout), a.logger)
	d, err := dispatcher.New(client, storage, a.logger, dispatcher.Config{
		TimeZone:   a.cfg.Timezone,
		CalendarID: a.cfg.DefaultCalendarID,
		Horizons: dispatcher.Horizons{
			List:         time.Duration(a.cfg.Horizons.List),
			Search:       time.Duration(a.cfg.Horizons.Search),
			Availability: time.Duration(a.cfg.Horizons.Availability),
			FreeBusy:     time.Duration(a.cfg.Horizons.FreeBusy),
		},
	})
	if err != nil {
		return nil, nil, err
	}
	return d, client, nil
}
