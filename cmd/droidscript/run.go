package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/holla2040/droidscript/internal/script/executor"
	"github.com/holla2040/droidscript/internal/script/result"
	"github.com/holla2040/droidscript/internal/store"
)

func newRunCmd(a *app) *cobra.Command {
	var (
		vars    []string
		backend string
		record  bool
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "run <script>",
		Short: "Run a script against a device",
		Long: `Run a script file. Log lines are printed as they are produced and a
summary follows. Variables given with --var are set before the first
statement; values are parsed as YAML scalars, so --var n=3 is a number.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if backend == "" {
				backend = a.cfg.Device.Backend
			}
			values, err := parseVars(vars)
			if err != nil {
				return err
			}
			res, err := a.runScript(cmd.Context(), cmd.OutOrStdout(), args[0], values, backend, record, !jsonOut)
			if err != nil {
				return err
			}
			if jsonOut {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(res); err != nil {
					return err
				}
			} else {
				printSummary(cmd.OutOrStdout(), res)
			}
			if !res.Success {
				return exitCode(1)
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&vars, "var", nil, "set a variable, name=value (repeatable)")
	cmd.Flags().StringVar(&backend, "backend", "", "device backend: fake, adb or remote (default device.backend)")
	cmd.Flags().BoolVar(&record, "record", false, "record the run in server.db_path")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print the full result as JSON instead of log lines")
	return cmd
}

func (a *app) runScript(ctx context.Context, out io.Writer, path string, vars map[string]interface{}, backend string, record, stream bool) (*result.ExecutionResult, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	dev, err := openDevice(a.cfg, backend, a.logger)
	if err != nil {
		return nil, err
	}
	defer dev.close()

	opts, err := executorOptions(a.cfg, dev.act, a.logger)
	if err != nil {
		return nil, err
	}
	opts = append(opts, executor.WithScriptDir(filepath.Dir(path)))
	if stream {
		opts = append(opts, executor.WithSink(result.SinkFunc(func(entry string) {
			fmt.Fprintln(out, entry)
		})))
	}

	var (
		st    *store.Store
		runID string
	)
	if record {
		st, err = store.New(a.cfg.Server.DBPath)
		if err != nil {
			return nil, err
		}
		defer st.Close()
		runID = uuid.NewString()
		if err := st.CreateRun(runID, filepath.Base(path), dev.serial); err != nil {
			return nil, err
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	if dev.run != nil {
		g.Go(func() error { return dev.run(gctx) })
	}

	res := executor.New(gctx, opts...).ExecuteScript(string(source), vars)

	cancel()
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		a.logger.Warn("device backend stopped with error", zap.Error(err))
	}

	if st != nil {
		stopped := res.Error == executor.ErrStopped.Error()
		if err := st.FinishRun(runID, res, stopped); err != nil {
			return res, fmt.Errorf("record run: %w", err)
		}
		a.logger.Info("run recorded", zap.String("run_id", runID))
	}
	return res, nil
}

func printSummary(w io.Writer, res *result.ExecutionResult) {
	fmt.Fprintln(w, strings.Repeat("-", 40))
	if res.Success {
		fmt.Fprintf(w, "PASSED in %s (%d commands)\n", res.Duration.Round(time.Millisecond), len(res.Commands))
	} else {
		fmt.Fprintf(w, "FAILED in %s: %s\n", res.Duration.Round(time.Millisecond), res.Error)
	}
}

// parseVars turns name=value pairs into script variables. Values are YAML
// scalars: 3 is an int, 2.5 a float, true a bool, anything else a string.
func parseVars(pairs []string) (map[string]interface{}, error) {
	vars := make(map[string]interface{}, len(pairs))
	for _, pair := range pairs {
		name, raw, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --var %q: want name=value", pair)
		}
		var v interface{}
		if err := yaml.Unmarshal([]byte(raw), &v); err != nil {
			v = raw
		}
		switch v.(type) {
		case nil, map[string]interface{}, []interface{}:
			v = raw
		}
		vars[name] = v
	}
	return vars, nil
}
