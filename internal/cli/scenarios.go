package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/synheart/synheart-seizure/internal/scenario"
)

var scenariosCmd = &cobra.Command{
	Use:   "scenarios",
	Short: "Simulator scenarios",
}

var listScenariosCmd = &cobra.Command{
	Use:   "list",
	Short: "List available scenarios",
	Long:  `Lists all built-in scenarios and any found in ./scenarios with their descriptions.`,
	RunE:  runListScenarios,
}

var describeCmd = &cobra.Command{
	Use:   "describe <scenario>",
	Short: "Describe a scenario in detail",
	Long:  `Shows signals, phases and overrides of a scenario.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runDescribe,
}

func init() {
	scenariosCmd.AddCommand(listScenariosCmd)
	scenariosCmd.AddCommand(describeCmd)
}

func runListScenarios(cmd *cobra.Command, args []string) error {
	registry, err := scenario.Defaults(getScenarioDir())
	if err != nil {
		return fmt.Errorf("failed to load scenarios: %w", err)
	}

	out := cmd.OutOrStdout()
	descriptions := registry.ListWithDescriptions()
	fmt.Fprintln(out, "Available scenarios:")
	fmt.Fprintln(out)
	for _, name := range registry.List() {
		fmt.Fprintf(out, "  %-20s %s\n", name, descriptions[name])
	}
	fmt.Fprintln(out)
	return nil
}

func runDescribe(cmd *cobra.Command, args []string) error {
	registry, err := scenario.Defaults(getScenarioDir())
	if err != nil {
		return fmt.Errorf("failed to load scenarios: %w", err)
	}
	scen, err := registry.Get(args[0])
	if err != nil {
		return fmt.Errorf("scenario not found: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Scenario: %s\n", scen.Name)
	fmt.Fprintf(out, "Description: %s\n", scen.Description)
	fmt.Fprintf(out, "Duration: %s\n\n", orUnlimited(scen.Duration))

	fmt.Fprintln(out, "Signals:")
	for _, name := range sortedKeys(scen.Signals) {
		sc := scen.Signals[name]
		fmt.Fprintf(out, "  %s\n", name)
		if sc.Value != "" {
			fmt.Fprintf(out, "    Value: %s\n", sc.Value)
			continue
		}
		fmt.Fprintf(out, "    Baseline: %.1f %s\n", sc.Baseline, sc.Unit)
		if sc.Noise != 0 {
			fmt.Fprintf(out, "    Noise: %.1f\n", sc.Noise)
		}
	}

	if len(scen.Phases) > 0 {
		fmt.Fprintln(out, "\nPhases:")
		for i, phase := range scen.Phases {
			fall := ""
			if phase.Fall {
				fall = " [fall]"
			}
			fmt.Fprintf(out, "  %d. %s (duration: %s)%s\n", i+1, phase.Name, orUnlimited(phase.Duration), fall)
			if len(phase.Overrides) == 0 {
				continue
			}
			fmt.Fprintln(out, "     Overrides:")
			for _, signal := range sortedKeys(phase.Overrides) {
				override := phase.Overrides[signal]
				fmt.Fprintf(out, "       %s:", signal)
				if override.Add != 0 {
					fmt.Fprintf(out, " add=%.1f", override.Add)
				}
				if override.Multiply != 0 {
					fmt.Fprintf(out, " multiply=%.2f", override.Multiply)
				}
				if override.Value != "" {
					fmt.Fprintf(out, " value=%s", override.Value)
				}
				if override.Baseline != 0 {
					fmt.Fprintf(out, " baseline=%.1f", override.Baseline)
				}
				fmt.Fprintln(out)
			}
		}
	}

	fmt.Fprintln(out)
	return nil
}

func orUnlimited(d string) string {
	if d == "" {
		return "unlimited"
	}
	return d
}

func sortedKeys(m map[string]*scenario.SignalConfig) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
