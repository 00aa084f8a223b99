package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/guilherme-santos/calcmd/internal/command"
)

var ParseCommand = _parseCommand{
	Name:        "parse",
	Description: "Show the command found in model output without running it",
}

type _parseCommand struct {
	Name        string
	Description string
}

func (s _parseCommand) Run(_ context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet(s.Name, flag.ExitOnError)
	fs.Usage = func() {
		w := flag.CommandLine.Output()
		fmt.Fprintf(w, "Usage of %s %s: [text]\n", os.Args[0], fs.Name())
	}
	if err := fs.Parse(args); err != nil {
		return err
	}

	text, err := readText(fs.Args())
	if err != nil {
		return err
	}
	cmd, err := command.Parse(text)
	if err != nil {
		return err
	}
	return printJSON(a.out, cmd)
}
