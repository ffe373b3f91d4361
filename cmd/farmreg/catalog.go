package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tturner/farmreg/internal/catalog"
	"github.com/tturner/farmreg/internal/errors"
	"github.com/tturner/farmreg/internal/ui"
)

func newCatalogCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Signal catalog operations",
		Long: `Browse and validate the signal catalog.

The catalog maps every controller signal name to its register address,
bit span, scale and access.`,
	}

	cmd.AddCommand(newCatalogListCmd(g))
	cmd.AddCommand(newCatalogShowCmd(g))
	cmd.AddCommand(newCatalogValidateCmd(g))

	return cmd
}

// --- catalog list ---

type catalogListFlags struct {
	kind     string
	category string
	search   string
	address  int
	names    bool
}

func newCatalogListCmd(g *globalFlags) *cobra.Command {
	flags := &catalogListFlags{}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List catalog signals",
		Long:  `List catalog signals, optionally filtered by kind, category, address or a search query.`,
		Example: `  farmreg catalog list
  farmreg catalog list --category sensors
  farmreg catalog list --kind bit_range
  farmreg catalog list --address 9
  farmreg catalog list --search fan`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := g.openCatalog()
			if err != nil {
				return err
			}
			return runCatalogList(cmd, cat, flags)
		},
	}

	cmd.Flags().StringVar(&flags.kind, "kind", "", "Filter by kind (register, signed_register, bit, bit_range)")
	cmd.Flags().StringVar(&flags.category, "category", "", "Filter by category (sensors, settings, status)")
	cmd.Flags().StringVar(&flags.search, "search", "", "Search query (matches name, label, description)")
	cmd.Flags().IntVar(&flags.address, "address", -1, "Only signals at this register address")
	cmd.Flags().BoolVar(&flags.names, "names", false, "Print names only")

	return cmd
}

func runCatalogList(cmd *cobra.Command, cat *catalog.Catalog, flags *catalogListFlags) error {
	signals := cat.ListAll()
	if flags.search != "" {
		signals = cat.Search(flags.search)
	}

	if flags.kind != "" {
		kind := catalog.Kind(flags.kind)
		if !kind.Valid() {
			return fmt.Errorf("unknown kind %q (register, signed_register, bit, bit_range)", flags.kind)
		}
		signals = filterSignals(signals, func(s *catalog.Signal) bool { return s.Kind == kind })
	}
	if flags.category != "" {
		category := catalog.Category(flags.category)
		switch category {
		case catalog.CategorySensors, catalog.CategorySettings, catalog.CategoryStatus:
		default:
			return fmt.Errorf("unknown category %q (sensors, settings, status)", flags.category)
		}
		signals = filterSignals(signals, func(s *catalog.Signal) bool { return s.Category() == category })
	}
	if flags.address >= 0 {
		addr := flags.address
		signals = filterSignals(signals, func(s *catalog.Signal) bool { return int(s.Address) == addr })
	}

	out := cmd.OutOrStdout()
	if flags.names {
		for _, s := range signals {
			fmt.Fprintln(out, s.Name)
		}
		return nil
	}
	fmt.Fprintln(out, ui.RenderSignalTable(signals))
	return nil
}

func filterSignals(signals []*catalog.Signal, keep func(*catalog.Signal) bool) []*catalog.Signal {
	out := signals[:0:0]
	for _, s := range signals {
		if keep(s) {
			out = append(out, s)
		}
	}
	return out
}

// --- catalog show ---

func newCatalogShowCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "show <name>",
		Short:   "Show one signal",
		Example: `  farmreg catalog show indoor_current_temperature`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := g.openCatalog()
			if err != nil {
				return err
			}
			sig, ok := cat.Lookup(args[0])
			if !ok {
				return suggestSignal(cat, args[0])
			}
			fmt.Fprintln(cmd.OutOrStdout(), ui.RenderSignalDetail(sig))
			return nil
		},
	}
}

// suggestSignal builds a not-found error, listing close matches if any.
func suggestSignal(cat *catalog.Catalog, name string) error {
	err := errors.WrapSignalError(errors.NotFound(name), name)
	matches := cat.Search(name)
	if len(matches) == 0 {
		return err
	}
	names := make([]string, 0, 5)
	for i, s := range matches {
		if i == 5 {
			break
		}
		names = append(names, s.Name)
	}
	return fmt.Errorf("%w\n  Did you mean: %s", err, strings.Join(names, ", "))
}

// --- catalog validate ---

func newCatalogValidateCmd(g *globalFlags) *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "validate [file]",
		Short: "Validate a catalog file",
		Long: `Validate a catalog YAML file (or the configured catalog) and report lint
findings such as unused bits in packed words.`,
		Example: `  farmreg catalog validate
  farmreg catalog validate my-catalog.yaml --strict`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				cat *catalog.Catalog
				err error
			)
			if len(args) == 1 {
				var file *catalog.File
				file, err = catalog.LoadAndValidate(args[0])
				if err == nil {
					cat = catalog.NewCatalog(file)
				}
			} else {
				cat, err = g.openCatalog()
			}
			if err != nil {
				return err
			}

			result := catalog.Lint(cat)
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, ui.OK("%s: %d signal(s) at %d address(es)", cat.Name(), cat.Len(), len(cat.Addresses())))
			fmt.Fprintln(out, ui.RenderLint(result))
			if !result.IsValid() || (strict && len(result.Warnings) > 0) {
				return fmt.Errorf("catalog has %d error(s), %d warning(s)", len(result.Errors), len(result.Warnings))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "Treat warnings as errors")
	return cmd
}

func catalogCategory(s string) catalog.Category {
	return catalog.Category(strings.ToLower(strings.TrimSpace(s)))
}
