package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tturner/farmreg/internal/catalog"
	"github.com/tturner/farmreg/internal/channel"
	"github.com/tturner/farmreg/internal/config"
	"github.com/tturner/farmreg/internal/dispatch"
	"github.com/tturner/farmreg/internal/errors"
	"github.com/tturner/farmreg/internal/logging"
	"github.com/tturner/farmreg/internal/modbus"
)

type globalFlags struct {
	configPath  string
	host        string
	port        int
	unitID      int
	catalogPath string
	simulate    bool
	seedFile    string
	verbose     bool
	debug       bool
	logFile     string
}

// loadConfig reads --config, or ./farmreg.yaml when present, or the
// defaults. FARMREG_* variables (also read from ./.env) override the file
// and flags override both.
func (g *globalFlags) loadConfig() (*config.Config, string, error) {
	path := g.configPath
	if path == "" {
		if _, err := os.Stat(config.DefaultPath); err == nil {
			path = config.DefaultPath
		}
	}

	var cfg *config.Config
	if path != "" {
		var err error
		cfg, err = config.LoadConfig(path, false)
		if err != nil {
			return nil, path, err
		}
	} else {
		cfg = config.CreateDefaultConfig()
		config.ApplyDefaults(cfg)
	}

	if _, err := config.LoadDotEnv(config.DefaultEnvPath); err != nil {
		return nil, path, err
	}
	if _, err := config.ApplyEnv(cfg); err != nil {
		return nil, path, err
	}

	if g.host != "" {
		cfg.Device.Host = g.host
	}
	if g.port != 0 {
		cfg.Device.Port = g.port
	}
	if g.unitID != 0 {
		cfg.Device.UnitID = g.unitID
	}
	if g.catalogPath != "" {
		cfg.Catalog.Path = g.catalogPath
	}
	if g.seedFile != "" {
		cfg.Simulator.SeedFile = g.seedFile
	}
	if g.logFile != "" {
		cfg.Logging.File = g.logFile
	}
	switch {
	case g.debug:
		cfg.Logging.Level = "debug"
	case g.verbose:
		cfg.Logging.Level = "verbose"
	}

	config.ApplyDefaults(cfg)
	if err := config.Validate(cfg); err != nil {
		if path == "" {
			return nil, path, err
		}
		return nil, path, errors.WrapConfigError(err, path)
	}
	return cfg, path, nil
}

func (g *globalFlags) newLogger(cfg *config.Config) (*logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	return logging.NewLogger(level, cfg.Logging.File)
}

// session bundles what a device command needs.
type session struct {
	cfg     *config.Config
	logger  *logging.Logger
	catalog *catalog.Catalog
	ch      channel.Channel
	disp    *dispatch.Dispatcher
}

func (g *globalFlags) openCatalog() (*catalog.Catalog, error) {
	cfg, _, err := g.loadConfig()
	if err != nil {
		return nil, err
	}
	return catalog.Open(cfg.Catalog.Path)
}

func (g *globalFlags) openSession() (*session, error) {
	cfg, _, err := g.loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := g.newLogger(cfg)
	if err != nil {
		return nil, err
	}
	cat, err := catalog.Open(cfg.Catalog.Path)
	if err != nil {
		logger.Close()
		return nil, err
	}

	var ch channel.Channel
	if g.simulate {
		store := modbus.NewDataStore(modbus.DefaultRegisterCount)
		if cfg.Simulator.SeedFile != "" {
			seed, err := modbus.LoadSeedFile(cfg.Simulator.SeedFile)
			if err != nil {
				logger.Close()
				return nil, err
			}
			if err := store.Load(seed); err != nil {
				logger.Close()
				return nil, fmt.Errorf("seed %s: %w", cfg.Simulator.SeedFile, err)
			}
		}
		ch = channel.NewMemoryChannel(store, logger)
		logger.Verbose("Using in-memory register bank (%d registers)", store.Len())
	} else {
		ch = channel.NewModbusChannel(cfg.ModbusConfig(), logger)
	}

	return &session{
		cfg:     cfg,
		logger:  logger,
		catalog: cat,
		ch:      ch,
		disp:    dispatch.New(cat, ch, dispatch.WithLogger(logger)),
	}, nil
}

func (s *session) Close() {
	s.ch.Close()
	s.logger.Close()
}

// deviceError adds controller context to channel failures.
func (s *session) deviceError(err error) error {
	switch errors.KindOf(err) {
	case errors.KindChannel, errors.KindTimeout:
		return errors.WrapDeviceError(err, s.cfg.Device.Host, s.cfg.Device.Port)
	}
	return err
}

// signalError explains a failed signal operation: device context for
// channel failures, signal context for everything else.
func (s *session) signalError(err error, name string) error {
	switch errors.KindOf(err) {
	case errors.KindNotFound:
		return suggestSignal(s.catalog, name)
	case errors.KindChannel, errors.KindTimeout:
		return s.deviceError(err)
	}
	return errors.WrapSignalError(err, name)
}

// signalContext returns a context cancelled on SIGINT/SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func handleHelpArg(cmd *cobra.Command, args []string) bool {
	if len(args) == 0 {
		return false
	}
	if strings.EqualFold(args[0], "help") {
		_ = cmd.Help()
		return true
	}
	return false
}

// parseUint16 accepts decimal, 0x hex and 0b binary.
func parseUint16(s, what string) (uint16, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 0, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: must be 0-65535 (decimal, 0x hex or 0b binary)", what, s)
	}
	return uint16(v), nil
}

func parseValue(s string) (float64, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "on", "true":
		return 1, nil
	case "off", "false":
		return 0, nil
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid value %q: must be a number, on/off or true/false", s)
	}
	return v, nil
}

// trailingFlags parses the flags that follow the n positional arguments of a
// command whose flags are not interspersed, so a value such as -5 stays
// positional. A "--" among the positionals is dropped.
func trailingFlags(cmd *cobra.Command, args []string, n int) ([]string, error) {
	if i := slices.Index(args, "--"); i >= 0 && i <= n {
		args = slices.Delete(slices.Clone(args), i, i+1)
	}
	if len(args) < n {
		return nil, fmt.Errorf("accepts %d arg(s), received %d", n, len(args))
	}
	if err := cmd.Flags().Parse(args[n:]); err != nil {
		return nil, err
	}
	if extra := cmd.Flags().Args(); len(extra) > 0 {
		return nil, fmt.Errorf("unexpected argument(s): %s", strings.Join(extra, " "))
	}
	return args[:n], nil
}
