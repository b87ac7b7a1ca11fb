package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/holla2040/droidscript/internal/agent"
	"github.com/holla2040/droidscript/internal/config"
	"github.com/holla2040/droidscript/internal/redishealth"
)

func newAgentCmd(a *app) *cobra.Command {
	var instance, backend string
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Expose a local device to remote script runs over Redis",
		Long: `Serve actuator calls for one device. Controllers configured with the
remote backend and device.agent set to this instance send their calls here.
The agent publishes heartbeats and aborts its in-flight call on stop-all.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger := a.cfg, a.logger
			if instance == "" {
				instance = cfg.Agent.Instance
			}
			if instance == "" {
				host, err := os.Hostname()
				if err != nil {
					return fmt.Errorf("agent.instance is not set and hostname failed: %w", err)
				}
				instance = host
			}
			if backend == "" {
				backend = cfg.Agent.Backend
			}
			if backend == config.BackendRemote {
				return fmt.Errorf("an agent cannot use the remote backend")
			}

			dev, err := openDevice(cfg, backend, logger)
			if err != nil {
				return err
			}
			defer dev.close()

			ctx := cmd.Context()
			info, err := dev.act.Connect(ctx, cfg.Device.Serial)
			if err != nil {
				return fmt.Errorf("connect device: %w", err)
			}
			logger.Info("device connected",
				zap.String("serial", info.Serial),
				zap.String("product", info.ProductName))

			rdb := newRedis(cfg.Redis)
			defer rdb.Close()

			ag := agent.New(rdb, dev.act, instance,
				agent.WithLogger(logger),
				agent.WithHeartbeatInterval(cfg.Agent.HeartbeatInterval),
				agent.WithBackend(backend))
			mon := redishealth.New(rdb,
				redishealth.WithInterval(cfg.Redis.HealthInterval),
				redishealth.WithLogger(logger))

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				mon.Run(ctx)
				return nil
			})
			g.Go(func() error { return ag.Run(ctx) })
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&instance, "instance", "", "agent instance name (default agent.instance, then hostname)")
	cmd.Flags().StringVar(&backend, "backend", "", "local device backend: adb or fake (default agent.backend)")
	return cmd
}
