package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tturner/farmreg/internal/collector"
	"github.com/tturner/farmreg/internal/dispatch"
	"github.com/tturner/farmreg/internal/tui"
)

type watchFlags struct {
	interval time.Duration
	category string
}

func newWatchCmd(g *globalFlags) *cobra.Command {
	flags := &watchFlags{}

	cmd := &cobra.Command{
		Use:   "watch [name]...",
		Short: "Show live signal values",
		Long: `Re-read signals on an interval and show them full-screen.

Without names the sensor signals collected by default are shown.
Keys: q quit, r refresh now, p pause.`,
		Example: `  farmreg watch
  farmreg watch --category status --interval 5s
  farmreg watch indoor_current_temperature indoor_current_humidity`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if handleHelpArg(cmd, args) {
				return nil
			}
			if flags.interval <= 0 {
				return fmt.Errorf("--interval must be positive")
			}
			s, err := g.openSession()
			if err != nil {
				return err
			}
			defer s.Close()

			names := uniqueNames(args)
			if flags.category != "" {
				names = append(names, s.catalog.ByCategory(catalogCategory(flags.category))...)
			}
			if len(names) == 0 {
				names = collector.DefaultSignals(s.catalog)
			}
			for _, name := range names {
				if _, ok := s.catalog.Lookup(name); !ok {
					return suggestSignal(s.catalog, name)
				}
			}

			title := fmt.Sprintf("farmreg watch  %s:%d unit %d", s.cfg.Device.Host, s.cfg.Device.Port, s.cfg.Device.UnitID)
			if g.simulate {
				title = "farmreg watch  simulated register bank"
			}
			read := func(ctx context.Context, names []string) dispatch.Results {
				return s.disp.ReadMany(ctx, names)
			}
			timeout := s.cfg.ModbusConfig().Timeout * time.Duration(len(names)+1)
			return tui.RunWatch(tui.NewWatchModel(title, names, read, flags.interval, timeout))
		},
	}

	cmd.Flags().DurationVar(&flags.interval, "interval", 2*time.Second, "Time between reads")
	cmd.Flags().StringVar(&flags.category, "category", "", "Watch every signal in a category (sensors, settings, status)")

	return cmd
}
