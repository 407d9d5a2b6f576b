// Command mango-scraper-cli runs one-off maintenance tasks against the same
// database and configuration as the server.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/vrsandeep/mango-scraper/internal/auth"
	"github.com/vrsandeep/mango-scraper/internal/core"
)

const usage = `Usage: mango-scraper-cli <command> [arguments]

Commands:
  check <sourceID>   check one source now
  check-due          check every source whose interval has elapsed
  reconcile          refresh cached storage usage from the providers
  retry <itemID>     reset a failed queue item to pending
  token [subject]    print an admin API token (-ttl sets its lifetime)
`

func main() {
	ttl := flag.Duration("ttl", 0, "token lifetime; defaults to auth.token_ttl hours")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()
	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	app, err := core.New()
	if err != nil {
		log.Fatalf("Fatal error during application setup: %v", err)
	}
	defer app.Close()
	app.RegisterAdapters()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, app, flag.Args(), *ttl); err != nil {
		log.Printf("Error: %v", err)
		app.Close()
		os.Exit(1)
	}
}

func run(ctx context.Context, app *core.App, args []string, ttl time.Duration) error {
	switch args[0] {
	case "check":
		id, err := argID(args)
		if err != nil {
			return err
		}
		res, err := app.Checker().CheckSourceByID(ctx, id)
		if err != nil {
			return err
		}
		return printJSON(res)

	case "check-due":
		summary, err := app.Checker().CheckDue(ctx)
		if err != nil {
			return err
		}
		return printJSON(summary)

	case "reconcile":
		results, err := app.StorageBackend().Reconcile(ctx)
		if err != nil {
			return err
		}
		return printJSON(results)

	case "retry":
		id, err := argID(args)
		if err != nil {
			return err
		}
		if err := app.Store().RetryQueueItem(ctx, id); err != nil {
			return err
		}
		fmt.Printf("Queue item %d reset to pending.\n", id)
		return nil

	case "token":
		subject := "admin"
		if len(args) > 1 {
			subject = args[1]
		}
		if ttl == 0 {
			ttl = time.Duration(app.Config().Auth.TokenTTL) * time.Hour
		}
		token, err := auth.IssueToken(app.Config().Auth.JWTSecret, subject, auth.RoleAdmin, ttl)
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil
	}
	return fmt.Errorf("unknown command %q\n\n%s", args[0], usage)
}

func argID(args []string) (int64, error) {
	if len(args) < 2 {
		return 0, fmt.Errorf("%s needs an id", args[0])
	}
	id, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", args[1])
	}
	return id, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
