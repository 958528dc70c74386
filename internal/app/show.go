package app

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"
)

// Show prints recent snapshots.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	to := time.Now().UTC()
	from := to.AddDate(0, 0, -opts.Days)

	snaps, err := store.ListSnapshotsBetween(ctx, from, to)
	if err != nil {
		return err
	}
	if len(snaps) == 0 {
		fmt.Fprintln(os.Stdout, "no snapshots found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Cached (UTC)\tValue\tScore\tClassification\tSource\tObserved (UTC)")

	for _, snap := range snaps {
		fmt.Fprintf(
			writer,
			"%s\t%d\t%s\t%s\t%s\t%s\n",
			snap.CachedAt.UTC().Format(time.RFC3339),
			snap.Value,
			snap.Score.StringFixed(2),
			snap.Classification,
			snap.Source,
			snap.ObservedAt.UTC().Format(time.RFC3339),
		)
	}

	return writer.Flush()
}

func fmtInt(v int) string {
	return strconv.Itoa(v)
}
