// Command sitecat-queue shows or clears the tracker calls a session has
// deferred to its next page view.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"Sitecat/internal/config"
	"Sitecat/internal/session"
	"Sitecat/internal/store"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
)

var errUsage = errors.New("usage: sitecat-queue [-config path] [-clear] [-json] <session-id>")

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	flags := flag.NewFlagSet("sitecat-queue", flag.ContinueOnError)
	flags.SetOutput(io.Discard)
	configPath := flags.String("config", "", "Path to configuration file (optional)")
	clearQueue := flags.Bool("clear", false, "Remove the queued calls")
	asJSON := flags.Bool("json", false, "Print the queue as JSON")
	if err := flags.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if flags.NArg() != 1 {
		return errUsage
	}
	id := flags.Arg(0)
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("invalid session id %q: %w", id, err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	st, err := store.New(cfg.StoreConfig())
	if err != nil {
		return fmt.Errorf("failed to create store: %w", err)
	}
	defer st.Close()

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	return inspect(session.NewManager(st, cfg.SessionConfig()).User(ctx, id), *clearQueue, *asJSON, out)
}

func inspect(user *session.User, clearQueue, asJSON bool, out io.Writer) error {
	calls, err := user.Callables()
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(calls); err != nil {
			return fmt.Errorf("failed to encode JSON: %w", err)
		}
	} else {
		fmt.Fprintf(out, "session %s: %s deferred %s\n", user.ID(), humanize.Comma(int64(len(calls))), plural(len(calls), "call", "calls"))
		if len(calls) > 0 {
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "#\tFIELD\tNUM\tVALUE")
			for i, c := range calls {
				num := "-"
				if c.Field.Numbered() {
					num = fmt.Sprint(c.Num)
				}
				fmt.Fprintf(tw, "%d\t%s\t%s\t%q\n", i+1, c.Field, num, c.Value)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
		}
	}

	if !clearQueue || len(calls) == 0 {
		return nil
	}
	if err := user.SetCallables(nil); err != nil {
		return err
	}
	if !asJSON {
		fmt.Fprintln(out, "queue cleared")
	}
	return nil
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
