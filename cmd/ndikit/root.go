package main

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/zsiec/ndikit/internal/config"
	"github.com/zsiec/ndikit/internal/logger"
	"github.com/zsiec/ndikit/internal/metrics"
	"github.com/zsiec/ndikit/pkg/ndi"
)

// app carries what the subcommands share once flags are parsed.
type app struct {
	configPath string
	backend    string

	cfg *config.Config
	log *logrus.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:          "ndikit",
		Short:        "NDI source discovery, snapshots and monitoring",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "Path to configuration file")
	root.PersistentFlags().StringVar(&a.backend, "backend", "", "NDI backend, sdk or loopback (overrides config)")

	root.AddCommand(newServeCmd(a))
	root.AddCommand(newSourcesCmd(a))
	root.AddCommand(newSnapshotCmd(a))
	root.AddCommand(newMonitorCmd(a))
	root.AddCommand(newSendCmd(a))
	root.AddCommand(newProbeCmd())
	root.AddCommand(newVersionCmd())

	return root
}

// setup loads config and builds the logger. One-shot commands keep stdout
// for their own output, so their logs go to stderr.
func (a *app) setup(cmd *cobra.Command, interactive bool) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if a.backend != "" {
		cfg.NDI.Backend = a.backend
		if err := cfg.NDI.Validate(); err != nil {
			return fmt.Errorf("invalid config: ndi config: %w", err)
		}
	}

	log, err := logger.New(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	if interactive && cfg.Logging.Output == "stdout" {
		log.SetOutput(cmd.ErrOrStderr())
		if log.GetLevel() > logrus.WarnLevel {
			log.SetLevel(logrus.WarnLevel)
		}
	}

	ndi.SetLogger(log)
	ndi.SetObserver(metrics.NewObserver())

	a.cfg, a.log = cfg, log
	a.log.WithField("config_path", a.configPath).Debug("Configuration loaded")
	return nil
}

// silence drops all log output, for the full-screen monitor.
func (a *app) silence() {
	if a.cfg.Logging.Output == "stdout" || a.cfg.Logging.Output == "stderr" {
		a.log.SetOutput(io.Discard)
	}
}

func (a *app) logAdapter() logger.Logger {
	return logger.NewLogrusAdapter(logrus.NewEntry(a.log))
}
