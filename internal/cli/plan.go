package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Print the checkpoint plan",
	Long:  `Shows every timed instruction, the phases it applies to and where it falls relative to the emergency threshold.`,
	RunE:  runPlan,
}

func runPlan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	plan, err := buildPlan(cfg)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	emergency := cfg.Thresholds.Emergency
	fmt.Fprintf(out, "Aura threshold:       %s\n", cfg.Thresholds.Aura)
	fmt.Fprintf(out, "Emergency threshold:  %s\n\n", emergency)

	for _, cp := range plan {
		phases := make([]string, len(cp.Phases))
		for i, p := range cp.Phases {
			phases[i] = string(p)
		}
		fmt.Fprintf(out, "%6s  %s  %-8s %s\n",
			cp.Offset,
			renderTimeline(cp.Offset, cfg.Thresholds.Aura, emergency, 20),
			cp.Haptic,
			strings.Join(phases, ","),
		)
		fmt.Fprintf(out, "        %q\n", cp.Voice)
	}
	return nil
}
