package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
)

type subcommand interface {
	Run(ctx context.Context, a *app, args []string) error
}

var subcommands = []struct {
	Name        string
	Description string
	Cmd         subcommand
}{
	{ConfigureCommand.Name, ConfigureCommand.Description, ConfigureCommand},
	{RunCommand.Name, RunCommand.Description, RunCommand},
	{ParseCommand.Name, ParseCommand.Description, ParseCommand},
	{JournalCommand.Name, JournalCommand.Description, JournalCommand},
}

func main() {
	var (
		cfgFile string
		dbFile  string
		verbose bool
	)

	flag.StringVar(&cfgFile, "config", "calcmd.yaml", "config file")
	flag.StringVar(&dbFile, "db", "", "sqlite database (default from config)")
	flag.BoolVar(&verbose, "verbose", false, "debug logs on stderr")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	ctx := context.Background()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt)
		<-ch
		cancel()
	}()

	name := flag.Arg(0)
	for _, sc := range subcommands {
		if sc.Name != name {
			continue
		}

		a, err := newApp(cfgFile, dbFile, verbose)
		if err != nil {
			fmt.Fprintln(os.Stderr, "Unable to load config:", err)
			os.Exit(1)
		}
		err = sc.Cmd.Run(ctx, a, flag.Args()[1:])
		a.close()
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s failed: %v\n", name, err)
			os.Exit(1)
		}
		return
	}

	fmt.Fprintf(os.Stderr, "Unknown command %q\n\n", name)
	flag.Usage()
	os.Exit(2)
}

func usage() {
	w := flag.CommandLine.Output()
	fmt.Fprintf(w, "Usage of %s: [options] <command> [args]\n", os.Args[0])
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	for _, sc := range subcommands {
		fmt.Fprintf(w, "  %-10s %s\n", sc.Name, sc.Description)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Options:")
	flag.PrintDefaults()
}

func newLogger(verbose bool) *slog.Logger {
	if verbose {
		return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

// readText returns args joined by spaces, or stdin when there are none.
func readText(args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	return string(data), nil
}
