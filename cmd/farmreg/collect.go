package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/tturner/farmreg/internal/collector"
	"github.com/tturner/farmreg/internal/ui"
)

type collectFlags struct {
	interval time.Duration
	samples  int
	signals  []string
	csvPath  string
	csvDir   string
	backup   string
	align    time.Duration
	rows     int
	sqlite   string
	noMQTT   bool
}

func newCollectCmd(g *globalFlags) *cobra.Command {
	flags := &collectFlags{}

	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Collect averaged sensor readings to CSV",
		Long: `Sample signals every interval and append one averaged row per
samples readings to a CSV file, optionally also to SQLite and as MQTT
telemetry. Failed samples are left out of the
average; a signal with no successful sample in a row is written empty.

With --csv-dir rows go to one file per day (@YYYY-MM-DD.csv) instead, and
--backup-dir keeps a second copy of those files; a row is lost only when
both copies fail. --align cuts rows on wall-clock boundaries (every full
minute for 1m) and stamps them with the boundary, instead of every
--samples readings.

Runs until interrupted or until --rows rows have been written. A partial
row is flushed on interrupt.`,
		Example: `  farmreg collect
  farmreg collect --interval 10s --samples 6 --csv sensors.csv
  farmreg collect --signals indoor_current_temperature,outdoor_current_temperature --rows 1
  farmreg collect --interval 10s --align 1m --csv-dir sensor_data --backup-dir ~/Desktop/sensor_backup`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if handleHelpArg(cmd, args) {
				return nil
			}
			return runCollect(cmd, g, flags)
		},
	}

	cmd.Flags().DurationVar(&flags.interval, "interval", 0, "Time between samples (default collector.interval_sec)")
	cmd.Flags().IntVar(&flags.samples, "samples", 0, "Samples averaged per row (default collector.samples)")
	cmd.Flags().StringSliceVar(&flags.signals, "signals", nil, "Signals to collect (default collector.signals or the sensor set)")
	cmd.Flags().StringVar(&flags.csvPath, "csv", "", "CSV output path (default collector.csv_path)")
	cmd.Flags().StringVar(&flags.csvDir, "csv-dir", "", "Write daily CSV files to this directory (default collector.csv_dir)")
	cmd.Flags().StringVar(&flags.backup, "backup-dir", "", "Keep a copy of the daily CSV files here (default collector.backup_dir)")
	cmd.Flags().DurationVar(&flags.align, "align", 0, "Cut rows on wall-clock boundaries of this length (default collector.align_sec)")
	cmd.Flags().IntVar(&flags.rows, "rows", 0, "Stop after this many rows (0 runs until interrupted)")
	cmd.Flags().StringVar(&flags.sqlite, "sqlite", "", "Also store rows in this SQLite database (default collector.sqlite_path)")
	cmd.Flags().BoolVar(&flags.noMQTT, "no-mqtt", false, "Do not publish rows even if mqtt.broker is configured")
	cmd.MarkFlagsMutuallyExclusive("csv", "csv-dir")

	return cmd
}

func runCollect(cmd *cobra.Command, g *globalFlags, flags *collectFlags) error {
	if flags.rows < 0 {
		return fmt.Errorf("--rows must be >= 0")
	}

	s, err := g.openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	cc := s.cfg.Collector
	cfg := collector.Config{
		Signals:  cc.Signals,
		Interval: s.cfg.CollectInterval(),
		Samples:  cc.Samples,
		Align:    s.cfg.CollectAlign(),
	}
	if flags.interval != 0 {
		cfg.Interval = flags.interval
	}
	if flags.align != 0 {
		cfg.Align = flags.align
	}
	if flags.samples != 0 {
		cfg.Samples = flags.samples
	}
	if len(flags.signals) > 0 {
		cfg.Signals = flags.signals
	}
	out := outputs{csvPath: cc.CSVPath, csvDir: cc.CSVDir, backupDir: cc.BackupDir, sqlitePath: cc.SQLitePath}
	if flags.csvPath != "" {
		out.csvPath = flags.csvPath
		out.csvDir = ""
	}
	if flags.csvDir != "" {
		out.csvDir = flags.csvDir
	}
	if flags.backup != "" {
		out.backupDir = flags.backup
	}
	if flags.sqlite != "" {
		out.sqlitePath = flags.sqlite
	}
	out.mqtt = !flags.noMQTT

	c, err := collector.New(s.disp, cfg, s.logger)
	if err != nil {
		return err
	}
	sink, err := openSinks(s, c, out)
	if err != nil {
		return err
	}
	defer sink.Close()

	mc := s.cfg.ModbusConfig()
	s.logger.LogStartup("collect", mc.Host, mc.Port, mc.UnitID, mc.Timeout, s.catalog.Name())

	ctx, cancel := signalContext(cmd)
	defer cancel()

	w := cmd.OutOrStdout()
	written := 0
	err = c.Run(ctx, func(row collector.Row) error {
		if err := sink.WriteRow(row); err != nil {
			return err
		}
		written++
		missing := 0
		for _, v := range row.Values {
			if v == nil {
				missing++
			}
		}
		line := ui.OK("row %d: %d sample(s), %d/%d signal(s)", written, row.Samples, len(row.Values)-missing, len(row.Values))
		if missing > 0 {
			line = ui.Fail("row %d: %d sample(s), %d/%d signal(s)", written, row.Samples, len(row.Values)-missing, len(row.Values))
		}
		fmt.Fprintln(w, line)
		if flags.rows > 0 && written >= flags.rows {
			return collector.ErrStop
		}
		return nil
	})
	if err != nil {
		return err
	}

	stats := c.Stats()
	s.logger.Info("Collected %d row(s) from %d sample(s), %d failed read(s)", stats.Rows, stats.Samples, stats.FailedReads)
	return nil
}

// outputs are the destinations of collected rows.
type outputs struct {
	csvPath    string
	csvDir     string // daily files; replaces csvPath
	backupDir  string
	sqlitePath string
	mqtt       bool
}

// openSinks opens the CSV output plus the optional backup, SQLite and MQTT
// sinks.
func openSinks(s *session, c *collector.Collector, out outputs) (collector.Sink, error) {
	var primary collector.Sink
	if out.csvDir != "" {
		dw, err := collector.NewDailyWriter(out.csvDir, c.Signals(), s.logger)
		if err != nil {
			return nil, err
		}
		primary = dw
		s.logger.Info("Writing rows to %s", filepath.Join(out.csvDir, "@YYYY-MM-DD.csv"))
	} else {
		w, err := collector.NewWriter(out.csvPath, c.Signals())
		if err != nil {
			return nil, err
		}
		primary = w
		s.logger.Info("Writing rows to %s", out.csvPath)
	}

	if out.backupDir != "" {
		backup, err := collector.NewDailyWriter(out.backupDir, c.Signals(), s.logger)
		if err != nil {
			primary.Close()
			return nil, err
		}
		primary = &collector.Mirrored{Primary: primary, Backup: backup, Logger: s.logger}
		s.logger.Info("Backing up rows to %s", out.backupDir)
	}
	sinks := collector.MultiSink{primary}

	if out.sqlitePath != "" {
		db, err := collector.OpenSQLite(out.sqlitePath, c.Signals())
		if err != nil {
			sinks.Close()
			return nil, err
		}
		sinks = append(sinks, db)
		s.logger.Info("Storing rows in %s", out.sqlitePath)
	}

	if m := s.cfg.MQTT; m.Enabled() && out.mqtt {
		pub, err := collector.DialMQTT(collector.MQTTConfig{
			Broker:   m.Broker,
			ClientID: m.ClientID,
			Username: m.Username,
			Password: m.Password,
			Topic:    m.Topic,
			QoS:      byte(m.QoS),
			Timeout:  time.Duration(m.TimeoutMs) * time.Millisecond,
		}, s.logger)
		if err != nil {
			sinks.Close()
			return nil, err
		}
		sinks = append(sinks, pub)
		s.logger.Info("Publishing rows to %s (%s)", m.Broker, m.Topic)
	}

	return sinks, nil
}
