package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/holla2040/droidscript/internal/config"
	"github.com/holla2040/droidscript/internal/observability"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "1.0.0"

// app carries what PersistentPreRunE loaded to the subcommands.
type app struct {
	cfgFile  string
	logLevel string
	cfg      *config.Config
	logger   *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "droidscript",
		Short:         "Script-driven Android device automation with human-like gestures.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
	}
	root.PersistentFlags().StringVarP(&a.cfgFile, "config", "c", "", "config file (default is ./droidscript.yaml)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override logger.level")
	root.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	root.AddCommand(
		newRunCmd(a),
		newValidateCmd(a),
		newServeCmd(a),
		newAgentCmd(a),
		newTrajectoryCmd(a),
		newProfilesCmd(a),
		newRunsCmd(a),
		newReportCmd(a),
	)
	return root
}

func (a *app) init() error {
	cfg, err := config.Load(config.New(a.cfgFile))
	if err != nil {
		observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "droidscript"})
		return err
	}
	if a.logLevel != "" {
		cfg.Logger.Level = a.logLevel
	}
	observability.InitializeLogger(cfg.Logger)
	a.cfg = cfg
	a.logger = observability.GetLogger()
	a.logger.Debug("configuration loaded", zap.String("version", Version), zap.String("backend", cfg.Device.Backend))
	return nil
}
