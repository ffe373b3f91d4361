package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/tturner/farmreg/internal/collector"
	"github.com/tturner/farmreg/internal/dispatch"
	"github.com/tturner/farmreg/internal/ui"
)

type readFlags struct {
	sensors  bool
	category string
}

func newReadCmd(g *globalFlags) *cobra.Command {
	flags := &readFlags{}

	cmd := &cobra.Command{
		Use:   "read <name>...",
		Short: "Read signals by name",
		Long: `Read one or more signals and print their decoded values.

Signals sharing a register address are decoded from a single read of that
address, so bits of one status word always reflect the same instant.`,
		Example: `  farmreg read indoor_current_temperature
  farmreg read circulation_fan_temperature_control_enable rain_sensor_detecting
  farmreg read --sensors`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if handleHelpArg(cmd, args) {
				return nil
			}
			s, err := g.openSession()
			if err != nil {
				return err
			}
			defer s.Close()

			names := args
			switch {
			case flags.sensors:
				names = append(names, collector.DefaultSignals(s.catalog)...)
			case flags.category != "":
				names = append(names, s.catalog.ByCategory(catalogCategory(flags.category))...)
			}
			if len(names) == 0 {
				_ = cmd.Help()
				return fmt.Errorf("at least one signal name, --sensors or --category is required")
			}
			return runRead(cmd, s, names)
		},
	}

	cmd.Flags().BoolVar(&flags.sensors, "sensors", false, "Read the sensor signals collected by default")
	cmd.Flags().StringVar(&flags.category, "category", "", "Read every signal in a category (sensors, settings, status)")

	return cmd
}

func runRead(cmd *cobra.Command, s *session, names []string) error {
	ctx, cancel := signalContext(cmd)
	defer cancel()

	out := cmd.OutOrStdout()
	if len(names) == 1 {
		v, err := s.disp.Read(ctx, names[0])
		if err != nil {
			return s.signalError(err, names[0])
		}
		fmt.Fprintln(out, ui.RenderValues(names, dispatch.Results{names[0]: {Value: v}}))
		return nil
	}

	results := s.disp.ReadMany(ctx, names)
	fmt.Fprintln(out, ui.RenderValues(uniqueNames(names), results))

	failed := results.Failed()
	if len(failed) > 0 {
		sort.Strings(failed)
		return fmt.Errorf("%d of %d signal(s) failed: %v", len(failed), len(results), failed)
	}
	return nil
}

func uniqueNames(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}
