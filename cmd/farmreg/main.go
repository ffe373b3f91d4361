package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "farmreg",
		Short: "Greenhouse controller register tool",
		Long: `farmreg reads and writes greenhouse controller signals by name over
Modbus/TCP, collects averaged sensor data to CSV and can simulate the
controller's register bank.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "Config file (default ./farmreg.yaml if present)")
	pf.StringVar(&flags.host, "host", "", "Controller host (overrides device.host)")
	pf.IntVar(&flags.port, "port", 0, "Controller Modbus/TCP port (overrides device.port)")
	pf.IntVar(&flags.unitID, "unit", 0, "Modbus unit id (overrides device.unit_id)")
	pf.StringVar(&flags.catalogPath, "catalog", "", "Signal catalog YAML (default embedded greenhouse catalog)")
	pf.BoolVar(&flags.simulate, "simulate", false, "Use an in-memory register bank instead of a controller")
	pf.StringVar(&flags.seedFile, "seed", "", "Seed file for --simulate (overrides simulator.seed_file)")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "Verbose output")
	pf.BoolVar(&flags.debug, "debug", false, "Debug output including raw words")
	pf.StringVar(&flags.logFile, "log-file", "", "Also write log output to this file")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newCatalogCmd(flags))
	rootCmd.AddCommand(newReadCmd(flags))
	rootCmd.AddCommand(newWriteCmd(flags))
	rootCmd.AddCommand(newRawCmd(flags))
	rootCmd.AddCommand(newCollectCmd(flags))
	rootCmd.AddCommand(newWatchCmd(flags))
	rootCmd.AddCommand(newSimCmd(flags))
	rootCmd.AddCommand(newConfigCmd(flags))

	// Custom help command
	rootCmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		if cmd != rootCmd {
			fmt.Fprint(cmd.OutOrStdout(), cmd.UsageString())
			return
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Usage:\n  %s <command> [arguments] [options]\n\n", cmd.Name())
		fmt.Fprintf(out, "Available Commands:\n")
		for _, subCmd := range cmd.Commands() {
			if !subCmd.Hidden && subCmd.IsAvailableCommand() {
				fmt.Fprintf(out, "  %-15s %s\n", subCmd.Name(), subCmd.Short)
			}
		}
		fmt.Fprintf(out, "\nUse \"%s help <command>\" for more information about a command.\n", cmd.Name())
	})

	return rootCmd
}
