package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tturner/farmreg/internal/modbus"
	"github.com/tturner/farmreg/internal/ui"
)

type simFlags struct {
	listenIP    string
	listenPort  int
	registers   int
	delay       time.Duration
	idleTimeout time.Duration
}

func newSimCmd(g *globalFlags) *cobra.Command {
	flags := &simFlags{}

	cmd := &cobra.Command{
		Use:   "sim",
		Short: "Serve a simulated controller register bank over Modbus/TCP",
		Long: `Serve holding registers over Modbus/TCP (function codes 3, 6, 16 and 22)
so the other commands can be exercised without a controller. Registers start
at zero unless a seed file (YAML "registers: {address: value}") is given.`,
		Example: `  farmreg sim
  farmreg sim --listen-port 1502 --seed greenhouse-seed.yaml
  farmreg read indoor_current_temperature --host 127.0.0.1 --port 5020`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if handleHelpArg(cmd, args) {
				return nil
			}
			return runSim(cmd, g, flags)
		},
	}

	cmd.Flags().StringVar(&flags.listenIP, "listen-ip", "", "Listen address (default simulator.listen_ip)")
	cmd.Flags().IntVar(&flags.listenPort, "listen-port", 0, "Listen port (default simulator.port)")
	cmd.Flags().IntVar(&flags.registers, "registers", modbus.DefaultRegisterCount, "Number of holding registers served")
	cmd.Flags().DurationVar(&flags.delay, "delay", 0, "Delay added before every response (simulates a slow link)")
	cmd.Flags().DurationVar(&flags.idleTimeout, "idle-timeout", 0, "Close client connections idle this long (0 = never)")

	return cmd
}

func runSim(cmd *cobra.Command, g *globalFlags, flags *simFlags) error {
	cfg, _, err := g.loadConfig()
	if err != nil {
		return err
	}
	logger, err := g.newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Close()

	if flags.registers < 1 || flags.registers > 65536 {
		return fmt.Errorf("--registers must be 1-65536")
	}
	store := modbus.NewDataStore(flags.registers)
	if cfg.Simulator.SeedFile != "" {
		seed, err := modbus.LoadSeedFile(cfg.Simulator.SeedFile)
		if err != nil {
			return err
		}
		if err := store.Load(seed); err != nil {
			return fmt.Errorf("seed %s: %w", cfg.Simulator.SeedFile, err)
		}
		logger.Info("Seeded %d register(s) from %s", len(seed), cfg.Simulator.SeedFile)
	}

	simCfg := modbus.SimulatorConfig{
		ListenIP:      cfg.Simulator.ListenIP,
		Port:          cfg.Simulator.Port,
		IdleTimeout:   flags.idleTimeout,
		ResponseDelay: flags.delay,
	}
	if flags.listenIP != "" {
		simCfg.ListenIP = flags.listenIP
	}
	if flags.listenPort != 0 {
		simCfg.Port = flags.listenPort
	}

	sim := modbus.NewSimulator(simCfg, store, logger)
	if err := sim.Start(); err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	fmt.Fprintln(cmd.OutOrStdout(), ui.Title(fmt.Sprintf("Simulating controller on %s", sim.Addr())))
	<-ctx.Done()

	err = sim.Stop()
	total, exceptions := sim.Requests()
	fmt.Fprintln(cmd.OutOrStdout(), ui.OK("served %d request(s), %d exception(s)", total, exceptions))
	return err
}
