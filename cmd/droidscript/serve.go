package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/holla2040/droidscript/internal/api"
	"github.com/holla2040/droidscript/internal/dashboard"
	"github.com/holla2040/droidscript/internal/library"
	"github.com/holla2040/droidscript/internal/protocol"
	"github.com/holla2040/droidscript/internal/redishealth"
	"github.com/holla2040/droidscript/internal/registry"
	"github.com/holla2040/droidscript/internal/session"
	"github.com/holla2040/droidscript/internal/stopall"
	"github.com/holla2040/droidscript/internal/store"
)

// pruneInterval is how often finished runs past server.run_retention are
// deleted while serving.
const pruneInterval = time.Hour

func newServeCmd(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the script API, run history and live events over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				a.cfg.Server.Addr = addr
			}
			return a.serve(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default server.addr)")
	return cmd
}

func (a *app) serve(ctx context.Context) error {
	cfg, logger := a.cfg, a.logger
	src := controllerSource()

	st, err := store.New(cfg.Server.DBPath)
	if err != nil {
		return fmt.Errorf("open database %s: %w", cfg.Server.DBPath, err)
	}
	defer st.Close()
	logger.Info("opened database", zap.String("path", cfg.Server.DBPath))

	lib, err := library.New(cfg.Scripts.Dir)
	if err != nil {
		return err
	}

	dev, err := openDevice(cfg, cfg.Device.Backend, logger)
	if err != nil {
		return err
	}
	defer dev.close()
	execOpts, err := executorOptions(cfg, dev.act, logger)
	if err != nil {
		return err
	}

	var rdb *redis.Client
	if cfg.Server.UseRedis {
		rdb = newRedis(cfg.Redis)
		defer rdb.Close()
	}

	g, ctx := errgroup.WithContext(ctx)
	hub := api.NewHub(logger)

	var sessions *session.Manager
	stop := stopall.New(func(state stopall.State) {
		n := sessions.StopAll()
		hub.BroadcastEvent("stop_all", state)
		if err := st.RecordDeviceEvent("system", src.Instance, "stop_all", state.Reason); err != nil {
			logger.Warn("record stop-all failed", zap.Error(err))
		}
		logger.Warn("stop-all latched", zap.String("reason", state.Reason), zap.Int("sessions_stopped", n))
	})
	sessions = session.New(ctx,
		session.WithExecutorOptions(execOpts...),
		session.WithRecorder(st),
		session.WithBroadcaster(hub),
		session.WithGate(stop.Check),
		session.WithMaxSessions(cfg.Executor.MaxSessions),
		session.WithLogger(logger),
	)

	handler := &api.Handler{
		Library:  lib,
		Sessions: sessions,
		Store:    st,
		StopAll:  stop,
		Logger:   logger.Named("api"),
		Serial:   dev.serial,
	}

	g.Go(func() error {
		hub.Run(ctx)
		return nil
	})
	if dev.run != nil {
		g.Go(func() error { return dev.run(ctx) })
	}
	if cfg.Scripts.Watch {
		g.Go(func() error {
			return lib.Watch(ctx, library.DefaultDebounce, logger, func(c library.Change) {
				hub.BroadcastEvent("script_changed", c)
			})
		})
	}
	if cfg.Server.RunRetention > 0 {
		g.Go(func() error {
			pruneRuns(ctx, st, cfg.Server.RunRetention, logger)
			return nil
		})
	}
	if rdb != nil {
		a.wireRedis(ctx, g, rdb, src, hub, st, stop, handler)
	}

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.HandleFunc("GET /ws", hub.HandleWebSocket)
	mux.HandleFunc("GET /version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"service":"droidscript","version":"` + Version + `"}`))
	})

	// The dashboard page is static; every call it makes goes through the
	// token check.
	root := http.NewServeMux()
	root.Handle("GET /{$}", dashboard.Handler())
	root.Handle("/", api.RequireToken(cfg.Server.APIToken, mux))
	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           root,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		logger.Info("HTTP server listening", zap.String("addr", cfg.Server.Addr))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	sessions.Wait()
	logger.Info("shutdown complete")
	return err
}

// wireRedis starts the device registry, stop-all fan-out and Redis health
// monitor.
func (a *app) wireRedis(ctx context.Context, g *errgroup.Group, rdb *redis.Client, src protocol.Source, hub *api.Hub, st *store.Store, stop *stopall.Coordinator, handler *api.Handler) {
	cfg, logger := a.cfg, a.logger
	reg := registry.New()
	mon := redishealth.New(rdb,
		redishealth.WithInterval(cfg.Redis.HealthInterval),
		redishealth.WithLogger(logger),
		redishealth.WithOnDown(func() {
			hub.BroadcastEvent("redis_health", map[string]string{"status": "disconnected"})
		}),
		redishealth.WithOnUp(func() {
			hub.BroadcastEvent("redis_health", map[string]string{"status": "connected"})
		}),
	)

	handler.Registry = reg
	handler.RedisStatus = mon.GetStatus
	handler.PublishStopAll = func(ctx context.Context, state stopall.State) error {
		return stopall.Publish(ctx, rdb, src, state)
	}

	g.Go(func() error {
		mon.Run(ctx)
		return nil
	})
	g.Go(func() error {
		reg.Listen(ctx, rdb, logger, func(instance string, p *protocol.HeartbeatPayload) {
			hub.BroadcastEvent("heartbeat", map[string]interface{}{"instance": instance, "payload": p})
		})
		return nil
	})
	g.Go(func() error {
		reg.RunHealthChecks(ctx, cfg.Agent.HeartbeatInterval, func(agent *registry.AgentEntry) {
			hub.BroadcastEvent("agent_status", agent)
			for _, serial := range agent.Devices {
				if err := st.RecordDeviceEvent(serial, agent.Instance, agent.Status, ""); err != nil {
					logger.Warn("record device event failed", zap.String("serial", serial), zap.Error(err))
				}
			}
		})
		return nil
	})
	g.Go(func() error {
		stop.Listen(ctx, rdb, src.Instance, logger)
		return nil
	})
}

// pruneRuns deletes runs older than retention now and every pruneInterval.
func pruneRuns(ctx context.Context, st *store.Store, retention time.Duration, logger *zap.Logger) {
	prune := func() {
		n, err := st.PruneRuns(time.Now().Add(-retention))
		if err != nil {
			logger.Warn("prune runs failed", zap.Error(err))
			return
		}
		if n > 0 {
			logger.Info("pruned runs", zap.Int64("count", n), zap.Duration("retention", retention))
		}
	}
	prune()

	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prune()
		}
	}
}
