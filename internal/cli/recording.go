package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/synheart/synheart-seizure/internal/models"
	"github.com/synheart/synheart-seizure/internal/recorder"
)

var recordingCmd = &cobra.Command{
	Use:   "recording <file>",
	Short: "Summarize a recorded event file",
	Long: `Counts the events of an NDJSON recording made with 'monitor --record'.

Replay it with:
  synheart-seizure monitor --replay <file> --speed 2`,
	Args: cobra.ExactArgs(1),
	RunE: runRecording,
}

func runRecording(cmd *cobra.Command, args []string) error {
	counts, err := recorder.Summary(args[0])
	if err != nil {
		return fmt.Errorf("failed to read recording: %w", err)
	}

	kinds := make([]string, 0, len(counts))
	total := 0
	for k, n := range counts {
		kinds = append(kinds, string(k))
		total += n
	}
	sort.Strings(kinds)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "File:    %s\n", args[0])
	fmt.Fprintf(out, "Events:  %d\n\n", total)
	for _, k := range kinds {
		fmt.Fprintf(out, "  %-12s %d\n", k, counts[models.EventKind(k)])
	}
	if counts[models.KindTelemetry] == 0 {
		fmt.Fprintln(out, "\nNo telemetry events; nothing to replay")
	}
	return nil
}
