package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tturner/farmreg/internal/config"
	"github.com/tturner/farmreg/internal/ui"
)

func newConfigCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration file helpers",
	}

	cmd.AddCommand(&cobra.Command{
		Use:     "print-default",
		Short:   "Print the default configuration",
		Example: `  farmreg config print-default > farmreg.yaml`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := config.MarshalDefault()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "init [path]",
		Short: "Write the default configuration to a file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.DefaultPath
			if len(args) == 1 {
				path = args[0]
			}
			if _, err := config.LoadConfig(path, true); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), ui.OK("config at %s", path))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:     "validate",
		Short:   "Validate the configuration and print it with defaults applied",
		Example: `  farmreg config validate --config farmreg.yaml`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, err := g.loadConfig()
			if err != nil {
				return err
			}
			if path == "" {
				path = "(defaults)"
			}
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("marshal config: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, ui.OK("%s is valid", path))
			_, err = out.Write(data)
			return err
		},
	})

	return cmd
}
