package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fightinglucida/FastMP/pkg/credentials"
	"github.com/fightinglucida/FastMP/pkg/syncer"
)

var syncMaxItems int

var syncCmd = &cobra.Command{
	Use:   "sync <account>",
	Short: "Mirror an official account's published articles",
	Long: `Mirror an official account's published articles into the local store.

The first run for an account walks its full publishing history. Later
runs stop at the first article already stored, fetching only what is
new. Progress is printed per page; cancelling with Ctrl+C keeps
everything fetched so far.`,
	Example: `  # Mirror an account by name
  fastmp sync "Some Official Account"

  # Keep the newest 10 articles in each progress snapshot
  fastmp sync "Some Official Account" --max-items 10`,
	Args: cobra.ExactArgs(1),
	RunE: runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)
	syncCmd.Flags().IntVar(&syncMaxItems, "max-items", 0, "newest articles to include in each progress snapshot (0 = all)")
}

func runSync(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cred, err := a.scheduler.Acquire(ctx, owner)
	if err != nil {
		if stderrors.Is(err, credentials.ErrNotAvailable) {
			return fmt.Errorf("no credential available, run 'fastmp login' to add one")
		}
		return err
	}

	view := credentials.ViewOf(*cred)
	if material, err := a.manager.CookieMaterial(cred.Token); err == nil {
		view.CookieMaterial = material
	}

	for event := range a.syncer.Sync(ctx, view, args[0], syncMaxItems) {
		switch event.Type {
		case syncer.EventAccountDiscovered:
			fmt.Printf("Account: %s (%d articles stored)\n",
				event.Account.CanonicalName, event.Account.ArticleCount)
		case syncer.EventPageIngested:
			fmt.Printf("  page %d: +%d new, %d stored\n",
				event.Page.PageNumber, event.Page.NewlyAdded, event.Page.TotalStored)
		case syncer.EventDone:
			fmt.Printf("Done: %d articles stored\n", event.Done.TotalStored)
		case syncer.EventError:
			return fmt.Errorf("sync failed: %s", event.Error)
		}
	}

	if ctx.Err() != nil {
		fmt.Println("Sync cancelled; articles fetched so far are kept.")
	}
	return nil
}
