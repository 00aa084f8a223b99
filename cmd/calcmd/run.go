package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/guilherme-santos/calcmd/internal"
	"github.com/guilherme-santos/calcmd/internal/command"
)

var errCommandFailed = errors.New("command failed")

var RunCommand = _runCommand{
	Name:        "run",
	Description: "Interpret model output and run the calendar command it carries",
}

type _runCommand struct {
	Name        string
	Description string
}

func (s _runCommand) Run(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet(s.Name, flag.ExitOnError)
	fs.Usage = func() {
		w := flag.CommandLine.Output()
		fmt.Fprintf(w, "Usage of %s %s: [text]\n", os.Args[0], fs.Name())
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Reads the text from stdin when none is given.")
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Options:\n")
		fs.PrintDefaults()
	}
	fs.StringVar(&a.cfg.Backend, "backend", a.cfg.Backend, "calendar backend (google, mcp, fake)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	text, err := readText(fs.Args())
	if err != nil {
		return err
	}

	d, client, err := a.newDispatcher()
	if err != nil {
		return err
	}
	defer client.Disconnect()

	res := d.Interpret(ctx, text)
	if !res.IsCommand() {
		// Plain prose, nothing to run.
		fmt.Fprintln(a.out, text)
		return nil
	}
	if cmd, err := command.Parse(text); err == nil && cmd.Message != "" {
		internal.Logf(os.Stderr, "", nil, "%s", cmd.Message)
	}
	if err := printJSON(a.out, res); err != nil {
		return err
	}
	if !res.OK {
		return fmt.Errorf("%w: %v", errCommandFailed, res.Error)
	}
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
