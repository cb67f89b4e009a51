package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"equitywatch/internal/storage"
)

// WatchlistAdd puts a symbol on a user's watchlist.
func (a *App) WatchlistAdd(ctx context.Context, userID int64, symbol string) error {
	store, closeStore, err := a.requireStore(ctx)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}

	upper := strings.ToUpper(strings.TrimSpace(symbol))
	if upper == "" {
		return errors.New("symbol required")
	}

	item, err := store.AddWatchItem(ctx, userID, upper)
	if errors.Is(err, storage.ErrDuplicateSymbol) {
		fmt.Fprintf(os.Stdout, "%s is already on the watchlist\n", upper)
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "added %s (id %d)\n", item.Symbol, item.ID)
	return nil
}

// WatchlistRemove deletes a symbol and its position state, so a re-added
// symbol starts from an unknown position.
func (a *App) WatchlistRemove(ctx context.Context, userID int64, symbol string) error {
	store, closeStore, err := a.requireStore(ctx)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}

	upper := strings.ToUpper(strings.TrimSpace(symbol))
	if err := store.RemoveWatchItem(ctx, userID, upper); err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "removed %s\n", upper)
	return nil
}

// WatchlistList prints a user's watched symbols.
func (a *App) WatchlistList(ctx context.Context, userID int64) error {
	store, closeStore, err := a.requireStore(ctx)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}

	items, err := store.ListWatchlist(ctx, userID)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		fmt.Fprintln(os.Stdout, "watchlist is empty")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Symbol\tAdded (UTC)")
	for _, item := range items {
		fmt.Fprintf(writer, "%s\t%s\n", item.Symbol, item.AddedAt.UTC().Format(time.RFC3339))
	}
	writer.Flush()
	return nil
}
