package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/guilherme-santos/calcmd/internal"
)

var JournalCommand = _journalCommand{
	Name:        "journal",
	Description: "Show the latest dispatched commands",
}

type _journalCommand struct {
	Name        string
	Description string
}

func (s _journalCommand) Run(ctx context.Context, a *app, args []string) error {
	var limit int

	fs := flag.NewFlagSet(s.Name, flag.ExitOnError)
	fs.Usage = func() {
		w := flag.CommandLine.Output()
		fmt.Fprintf(w, "Usage of %s %s:\n", os.Args[0], fs.Name())
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Options:\n")
		fs.PrintDefaults()
	}
	fs.IntVar(&limit, "limit", 20, "number of entries")
	if err := fs.Parse(args); err != nil {
		return err
	}

	storage, err := a.Storage()
	if err != nil {
		return err
	}
	entries, err := storage.Dispatches(ctx, limit)
	if err != nil {
		return fmt.Errorf("reading journal: %v", err)
	}

	for _, e := range entries {
		status := "ok"
		if !e.OK {
			status = fmt.Sprintf("failed at %s: %s", e.Stage, e.Message)
		}
		kind := e.Kind.String()
		if kind == "" {
			kind = "-"
		}
		internal.Logf(a.out, e.CreatedAt.Format(time.RFC3339), nil, "%s %s %s", e.RequestID, kind, status)
	}
	return nil
}
