package main

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/holla2040/droidscript/internal/actuator"
	"github.com/holla2040/droidscript/internal/actuator/adb"
	"github.com/holla2040/droidscript/internal/actuator/fake"
	"github.com/holla2040/droidscript/internal/actuator/remote"
	"github.com/holla2040/droidscript/internal/config"
	"github.com/holla2040/droidscript/internal/gesture"
	"github.com/holla2040/droidscript/internal/protocol"
	"github.com/holla2040/droidscript/internal/script/executor"
	"github.com/holla2040/droidscript/internal/script/profile"
)

// device is the actuator a command drives. run, when set, must be running
// for the actuator to work; close releases it.
type device struct {
	act    actuator.Actuator
	serial string
	run    func(ctx context.Context) error
	close  func()
}

func newRedis(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// controllerSource identifies this process on the bus. Each process gets
// its own instance so reply streams never collide.
func controllerSource() protocol.Source {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "droidscript"
	}
	return protocol.Source{
		Service:  "droidscript",
		Instance: fmt.Sprintf("%s-%s", host, uuid.NewString()[:8]),
		Version:  Version,
	}
}

// openDevice builds the backend named by backend.
func openDevice(cfg *config.Config, backend string, logger *zap.Logger) (*device, error) {
	switch backend {
	case config.BackendFake:
		opts := fake.DefaultOptions()
		if cfg.Device.Serial != "" {
			opts.Serial = cfg.Device.Serial
		}
		act, err := fake.New(opts)
		if err != nil {
			return nil, err
		}
		return &device{act: act, serial: opts.Serial, close: func() {}}, nil

	case config.BackendADB:
		act := adb.New(adb.ExecRunner{Path: cfg.ADB.Path}, adb.Config{
			InputRate:    cfg.ADB.InputRate,
			PollInterval: cfg.ADB.PollInterval,
		}, logger)
		return &device{act: act, serial: cfg.Device.Serial, close: func() {}}, nil

	case config.BackendRemote:
		rdb := newRedis(cfg.Redis)
		src := controllerSource()
		caller := remote.NewRedisCaller(rdb, src.Instance, cfg.Device.Agent, logger)
		act := remote.New(caller, src,
			remote.WithSerial(cfg.Device.Serial),
			remote.WithTimeout(cfg.Device.CallTimeout))
		return &device{
			act:    act,
			serial: cfg.Device.Serial,
			run:    caller.Run,
			close:  func() { rdb.Close() },
		}, nil

	default:
		return nil, fmt.Errorf("unknown backend %q", backend)
	}
}

// executorOptions applies the executor and gesture settings of cfg.
func executorOptions(cfg *config.Config, act actuator.Actuator, logger *zap.Logger) ([]executor.Option, error) {
	prof, err := profile.Find(cfg.Gesture.ProfilesDir, cfg.Gesture.Profile)
	if err != nil {
		return nil, err
	}
	opts := []executor.Option{
		executor.WithActuator(act),
		executor.WithMaxIterations(cfg.Executor.MaxIterations),
		executor.WithMaxCallDepth(cfg.Executor.MaxCallDepth),
		executor.WithProfile(prof),
		executor.WithLogger(logger),
	}
	if cfg.Gesture.Seed != 0 {
		opts = append(opts, executor.WithSynthesizer(gesture.Seeded(cfg.Gesture.Seed)))
	}
	return opts, nil
}
