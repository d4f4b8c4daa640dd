package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
)

// Version info (injected via ldflags)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newCLI().RunContext(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newCLI() *cli.App {
	return &cli.App{
		Name:    "folio",
		Usage:   "Browse the bookstore and read what you own",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Load configuration from `FILE`",
				EnvVars: []string{"FOLIO_CONFIG"},
			},
		},
		Action: withApp(func(c *cli.Context, a *app) error {
			return runUI(a, "", false, false)
		}),
		Commands: []*cli.Command{
			{
				Name:      "read",
				Usage:     "Open a book",
				ArgsUsage: "BOOK_ID",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "preview", Aliases: []string{"p"}, Usage: "Read the free preview"},
					&cli.BoolFlag{Name: "fresh", Usage: "Forget the saved position"},
				},
				Action: withApp(readBook),
			},
			{
				Name:   "books",
				Usage:  "List the catalog",
				Action: withApp(listBooks),
			},
			{
				Name:      "buy",
				Usage:     "Purchase a book",
				ArgsUsage: "BOOK_ID",
				Action:    withApp(buyBook),
			},
			{
				Name:      "download",
				Usage:     "Save book text for offline reading",
				ArgsUsage: "[BOOK_ID...]",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "workers", Value: 4, Usage: "Concurrent writes"},
				},
				Action: withApp(downloadBooks),
			},
			{
				Name:      "import",
				Usage:     "Import a local file as the text of a book",
				ArgsUsage: "FILE",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "id", Usage: "Book `ID` to store the text under", Required: true},
				},
				Action: withApp(importBook),
			},
			{
				Name:   "library",
				Usage:  "List books saved for offline reading",
				Action: withApp(listLibrary),
				Subcommands: []*cli.Command{
					{
						Name:      "rm",
						Usage:     "Remove a saved book and its reading position",
						ArgsUsage: "BOOK_ID",
						Action:    withApp(removeFromLibrary),
					},
				},
			},
			{
				Name:  "register",
				Usage: "Create a local account",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "email", Required: true},
					&cli.StringFlag{Name: "name"},
				},
				Action: withApp(register),
			},
			{
				Name:  "login",
				Usage: "Sign in on this device",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "email", Required: true},
				},
				Action: withApp(login),
			},
			{
				Name:   "logout",
				Usage:  "Sign out on this device",
				Action: withApp(logout),
			},
			{
				Name:   "whoami",
				Usage:  "Show the signed-in account",
				Action: withApp(whoami),
			},
			{
				Name:   "prefs",
				Usage:  "Show display preferences",
				Action: withApp(showPrefs),
				Subcommands: []*cli.Command{
					{
						Name:      "set",
						Usage:     "Change a preference: theme, language or currency",
						ArgsUsage: "KEY VALUE",
						Action:    withApp(setPref),
					},
				},
			},
		},
	}
}

// withApp opens the app for the duration of one command.
func withApp(fn func(c *cli.Context, a *app) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		a, err := newApp(c.Context, c.String("config"))
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(c, a)
	}
}
