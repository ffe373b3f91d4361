package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tturner/farmreg/internal/channel"
	"github.com/tturner/farmreg/internal/ui"
)

func newRawCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "raw",
		Short: "Raw holding register access",
		Long: `Read and write holding registers by address, bypassing the catalog.

Raw writes are limited to the settings area (addresses 0-59).`,
	}

	cmd.AddCommand(newRawReadCmd(g))
	cmd.AddCommand(newRawWriteCmd(g))
	return cmd
}

func newRawReadCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "read <address> [count]",
		Short: "Read raw registers",
		Example: `  farmreg raw read 65
  farmreg raw read 60 25`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := parseUint16(args[0], "address")
			if err != nil {
				return err
			}
			count := uint16(1)
			if len(args) == 2 {
				if count, err = parseUint16(args[1], "count"); err != nil {
					return err
				}
				if count == 0 || count > channel.MaxReadCount {
					return fmt.Errorf("invalid count %d: must be 1-%d", count, channel.MaxReadCount)
				}
			}

			s, err := g.openSession()
			if err != nil {
				return err
			}
			defer s.Close()

			ctx, cancel := signalContext(cmd)
			defer cancel()

			words, err := s.disp.ReadAddress(ctx, addr, count)
			if err != nil {
				return s.deviceError(err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), ui.RenderWords(s.catalog, addr, words))
			return nil
		},
	}
}

func newRawWriteCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "write <address> <value>",
		Short: "Write a raw register in the settings area",
		Example: `  farmreg raw write 9 0x9800
  farmreg raw write 12 0b0000000000000101`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := parseUint16(args[0], "address")
			if err != nil {
				return err
			}
			value, err := parseUint16(args[1], "value")
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

			if err := s.disp.WriteRaw(ctx, addr, value); err != nil {
				return s.deviceError(err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), ui.OK("@%d = 0x%04X (%d)", addr, value, value))
			return nil
		},
	}
}
