package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "synheart-seizure",
	Short: "Synheart Seizure - episode timing, guidance and escalation",
	Long: `Synheart Seizure watches wearable telemetry, times seizure episodes,
speaks first-aid checkpoints to the bystander and notifies emergency
contacts when an episode turns into status epilepticus.

A control API and a live event stream let a caregiver dashboard follow
and drive the active episode.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	bindGlobalFlags(rootCmd)

	rootCmd.AddCommand(monitorCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(scenariosCmd)
	rootCmd.AddCommand(recordingCmd)
	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(versionCmd)
}
