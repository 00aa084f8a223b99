package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/guilherme-santos/calcmd/calendar/google"
	"github.com/guilherme-santos/calcmd/file"
	"github.com/guilherme-santos/calcmd/internal"
)

var ConfigureCommand = _configureCommand{
	Name:        "configure",
	Description: "Give access to a Google account and use it as backend",
}

type _configureCommand struct {
	Name        string
	Description string
}

func (s _configureCommand) Run(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet(s.Name, flag.ExitOnError)
	fs.Usage = func() {
		w := flag.CommandLine.Output()
		fmt.Fprintf(w, "Usage of %s %s:\n", os.Args[0], fs.Name())
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Options:\n")
		fs.PrintDefaults()
	}
	fs.StringVar(&a.cfg.Google.Account, "account", a.cfg.Google.Account, "e-mail of the google account")
	fs.StringVar(&a.cfg.Google.CredentialsFile, "google-cred", a.cfg.Google.CredentialsFile, "credentials file for google")
	fs.StringVar(&a.cfg.Timezone, "timezone", a.cfg.Timezone, "default timezone (e.g. Europe/Berlin)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if a.cfg.Google.Account == "" {
		return errors.New("-account is required")
	}

	storage, err := a.Storage()
	if err != nil {
		return err
	}
	googleCal, err := a.googleClient(storage)
	if err != nil {
		return fmt.Errorf("creating client: %v", err)
	}
	googleCal.Output = flag.CommandLine.Output()

	authToken, err := googleCal.Login(ctx)
	if err != nil {
		return fmt.Errorf("google: logging in: %v", err)
	}

	w := flag.CommandLine.Output()
	acc := internal.Account{
		Platform: google.Platform,
		Name:     a.cfg.Google.Account,
		Auth:     string(authToken),
	}
	internal.Logf(w, "", nil, "Saving account %q for %q provider...", acc.Name, acc.Platform)
	if err := storage.AddAccount(ctx, &acc); err != nil {
		return fmt.Errorf("saving account: %v", err)
	}

	if err := googleCal.Open(ctx); err != nil {
		return fmt.Errorf("checking access: %v", err)
	}
	googleCal.Close()

	a.cfg.Backend = file.BackendGoogle
	if err := a.cfg.Save(a.cfgFile); err != nil {
		return fmt.Errorf("saving config: %v", err)
	}
	internal.Logf(w, "", nil, "Config saved to %s", a.cfgFile)
	return nil
}
