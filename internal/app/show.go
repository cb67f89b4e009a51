package app

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"
)

// Show prints a user's recent alert history.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.requireStore(ctx)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}

	alerts, err := store.ListRecentAlerts(ctx, opts.UserID, opts.Limit)
	if err != nil {
		return err
	}
	if len(alerts) == 0 {
		fmt.Fprintln(os.Stdout, "no alerts found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Sent (UTC)\tSymbol\tKind\tPrice\tSMA200\tDelivered")

	for _, alert := range alerts {
		delivered := "no"
		if alert.TelegramSuccess {
			delivered = "yes"
		}
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%s\n",
			alert.SentAt.UTC().Format(time.RFC3339),
			alert.Symbol,
			alert.CrossType,
			alert.Price.StringFixed(2),
			alert.SMAValue.StringFixed(2),
			delivered,
		)
	}

	writer.Flush()
	return nil
}
