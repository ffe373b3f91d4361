package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tturner/farmreg/internal/dispatch"
	"github.com/tturner/farmreg/internal/ui"
)

func newWriteCmd(g *globalFlags) *cobra.Command {
	var verify bool

	cmd := &cobra.Command{
		Use:   "write <name> <value>",
		Short: "Write a setting by name",
		Long: `Encode a value and write it to a writable signal.

Registers take engineering values (25.3 for a scale of 10). Bits take 0/1 or
on/off. Bit ranges take an integer up to their mask and are updated with a
read-modify-write that leaves the other bits of the word unchanged.

Flags go before the name or after the value. A negative value needs no
quoting or "--".`,
		Example: `  farmreg write circulation_fan_on_temperature 25.3
  farmreg write circulation_fan_temperature_control_enable on
  farmreg write irrigation_start_hour 19 --verify
  farmreg write temperature_diff_open_close_deviation -1.5 --verify`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			args, err := trailingFlags(cmd, args, 2)
			if err != nil {
				return err
			}
			name := args[0]
			value, err := parseValue(args[1])
			if err != nil {
				return err
			}

			s, err := g.openSession()
			if err != nil {
				return err
			}
			defer s.Close()

			ctx, cancel := signalContext(cmd)
			defer cancel()

			out := cmd.OutOrStdout()
			if !verify {
				if err := s.disp.Write(ctx, name, value); err != nil {
					return s.signalError(err, name)
				}
				sig := s.catalog.MustLookup(name)
				fmt.Fprintln(out, ui.OK("%s = %s", name, dispatch.FormatNumber(sig, value)))
				return nil
			}

			v, err := s.disp.WriteVerify(ctx, name, value)
			if v != nil {
				fmt.Fprintln(out, ui.RenderValues([]string{name}, dispatch.Results{name: {Value: v}}))
			}
			if err != nil {
				return s.signalError(err, name)
			}
			fmt.Fprintln(out, ui.OK("verified"))
			return nil
		},
	}

	cmd.Flags().SetInterspersed(false)
	cmd.Flags().BoolVar(&verify, "verify", false, "Read the signal back after writing and compare")
	return cmd
}
