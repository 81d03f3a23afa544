package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/synheart/synheart-seizure/internal/store"
)

var (
	historyLimit int
	historyJSON  bool
)

var historyCmd = &cobra.Command{
	Use:   "history [episode-id]",
	Short: "Show recorded episodes",
	Long: `Lists episodes from the local SQLite history, newest first, or shows
one episode as a FHIR observation.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum episodes to list (0 for all)")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "Print summaries as JSON")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Store.SQLitePath == "" {
		return fmt.Errorf("no local history: set store.sqlite_path or SEIZURE_SQLITE_PATH")
	}

	ctx := context.Background()
	db, err := store.OpenSQLite(ctx, cfg.Store.SQLitePath)
	if err != nil {
		return err
	}
	defer db.Close()

	out := cmd.OutOrStdout()
	if len(args) == 1 {
		summary, err := db.Get(ctx, args[0])
		if err != nil {
			return fmt.Errorf("episode %s: %w", args[0], err)
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(summary.Observation())
	}

	episodes, err := db.List(ctx, historyLimit)
	if err != nil {
		return err
	}
	if historyJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(episodes)
	}
	if len(episodes) == 0 {
		fmt.Fprintln(out, "No episodes recorded")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 2, 2, ' ', 0)
	fmt.Fprintln(tw, "EPISODE\tSTARTED\tTRIGGER\tDURATION\tESCALATED\tNOTIFIED")
	for _, e := range episodes {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%v\t%d\n",
			e.EpisodeID,
			e.StartedAt.Local().Format("2006-01-02 15:04:05"),
			e.Trigger,
			e.Duration.Round(time.Second),
			e.Escalated,
			len(e.NotifiedContactIDs()),
		)
	}
	return tw.Flush()
}
